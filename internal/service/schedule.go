package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/openacad/sis-api/internal/models"
)

// BlocksOverlap reports whether two weekly schedule blocks intersect.
// Blocks on different days never overlap; on the same day the half-open
// intervals [start, end) are compared, so back-to-back blocks
// (09:00-10:00 and 10:00-11:00) do not conflict.
func BlocksOverlap(a, b models.ScheduleBlock) bool {
	if !strings.EqualFold(a.Day, b.Day) {
		return false
	}
	aStart, aEnd, errA := blockMinutes(a)
	bStart, bEnd, errB := blockMinutes(b)
	if errA != nil || errB != nil {
		return false
	}
	return aStart < bEnd && aEnd > bStart
}

// SchedulesConflict reports whether any pair of blocks across the two
// schedules overlaps.
func SchedulesConflict(a, b models.ScheduleBlocks) bool {
	for _, blockA := range a {
		for _, blockB := range b {
			if BlocksOverlap(blockA, blockB) {
				return true
			}
		}
	}
	return false
}

// ValidateScheduleBlocks rejects malformed block lists at input time:
// unknown days, unparseable times, or empty intervals.
func ValidateScheduleBlocks(blocks models.ScheduleBlocks) error {
	for i, block := range blocks {
		day := strings.ToUpper(strings.TrimSpace(block.Day))
		if !models.DaysOfWeek[day] {
			return fmt.Errorf("block %d: unknown day %q", i, block.Day)
		}
		start, end, err := blockMinutes(block)
		if err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
		if start >= end {
			return fmt.Errorf("block %d: start %s is not before end %s", i, block.StartTime, block.EndTime)
		}
	}
	return nil
}

func blockMinutes(block models.ScheduleBlock) (int, int, error) {
	start, err := parseClock(block.StartTime)
	if err != nil {
		return 0, 0, err
	}
	end, err := parseClock(block.EndTime)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func parseClock(raw string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q", raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", raw)
	}
	return hour*60 + minute, nil
}
