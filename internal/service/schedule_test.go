package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openacad/sis-api/internal/models"
)

func block(day, start, end string) models.ScheduleBlock {
	return models.ScheduleBlock{Day: day, StartTime: start, EndTime: end}
}

func TestBlocksOverlap(t *testing.T) {
	assert.True(t, BlocksOverlap(
		block("MONDAY", "09:00", "10:30"),
		block("MONDAY", "10:00", "11:00"),
	), "partial overlap on the same day")

	assert.False(t, BlocksOverlap(
		block("MONDAY", "09:00", "10:00"),
		block("MONDAY", "10:00", "11:00"),
	), "back-to-back blocks share only the boundary instant")

	assert.False(t, BlocksOverlap(
		block("MONDAY", "09:00", "10:30"),
		block("TUESDAY", "09:00", "10:30"),
	), "different days never conflict")

	assert.True(t, BlocksOverlap(
		block("FRIDAY", "08:00", "12:00"),
		block("FRIDAY", "09:00", "10:00"),
	), "containment counts as overlap")

	assert.True(t, BlocksOverlap(
		block("monday", "09:00", "10:00"),
		block("MONDAY", "09:30", "10:30"),
	), "day comparison is case insensitive")
}

func TestSchedulesConflict(t *testing.T) {
	a := models.ScheduleBlocks{
		block("MONDAY", "09:00", "10:30"),
		block("WEDNESDAY", "09:00", "10:30"),
	}
	b := models.ScheduleBlocks{
		block("TUESDAY", "09:00", "10:30"),
		block("WEDNESDAY", "10:00", "11:00"),
	}
	assert.True(t, SchedulesConflict(a, b))

	c := models.ScheduleBlocks{
		block("TUESDAY", "09:00", "10:30"),
		block("WEDNESDAY", "10:30", "12:00"),
	}
	assert.False(t, SchedulesConflict(a, c))
	assert.False(t, SchedulesConflict(nil, a))
}

func TestValidateScheduleBlocks(t *testing.T) {
	valid := models.ScheduleBlocks{
		block("MONDAY", "09:00", "10:30"),
		block("FRIDAY", "13:00", "14:00"),
	}
	require.NoError(t, ValidateScheduleBlocks(valid))

	assert.Error(t, ValidateScheduleBlocks(models.ScheduleBlocks{
		block("FUNDAY", "09:00", "10:00"),
	}), "unknown day")

	assert.Error(t, ValidateScheduleBlocks(models.ScheduleBlocks{
		block("MONDAY", "9am", "10:00"),
	}), "unparseable time")

	assert.Error(t, ValidateScheduleBlocks(models.ScheduleBlocks{
		block("MONDAY", "10:00", "10:00"),
	}), "empty interval")

	assert.Error(t, ValidateScheduleBlocks(models.ScheduleBlocks{
		block("MONDAY", "11:00", "10:00"),
	}), "inverted interval")

	assert.Error(t, ValidateScheduleBlocks(models.ScheduleBlocks{
		block("MONDAY", "24:00", "25:00"),
	}), "hour out of range")
}
