package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGradeScaleBands(t *testing.T) {
	cases := []struct {
		percentage float64
		letter     string
		points     float64
	}{
		{100, "A+", 4.00},
		{95, "A+", 4.00},
		{94.9, "A", 4.00},
		{90, "A", 4.00},
		{85, "B+", 3.50},
		{80, "B", 3.00},
		{75, "C+", 2.50},
		{73, "C", 2.00},
		{70, "C", 2.00},
		{69.9, "D", 1.00},
		{60, "D", 1.00},
		{59.9, "F", 0.00},
		{0, "F", 0.00},
	}
	for _, tc := range cases {
		letter, points := DefaultGradeScale.LetterAndPoints(tc.percentage)
		assert.Equal(t, tc.letter, letter, "percentage %.1f", tc.percentage)
		assert.Equal(t, tc.points, points, "percentage %.1f", tc.percentage)
	}
}

func TestGradeScaleTotalOverOutOfRangeInputs(t *testing.T) {
	letter, points := DefaultGradeScale.LetterAndPoints(112.5)
	assert.Equal(t, "A+", letter)
	assert.Equal(t, 4.00, points)

	letter, points = DefaultGradeScale.LetterAndPoints(-3)
	assert.Equal(t, "F", letter)
	assert.Equal(t, 0.00, points)
}

func TestPointsForLetter(t *testing.T) {
	points, ok := DefaultGradeScale.PointsForLetter("B+")
	assert.True(t, ok)
	assert.Equal(t, 3.50, points)

	_, ok = DefaultGradeScale.PointsForLetter("E")
	assert.False(t, ok)
}

func TestPassing(t *testing.T) {
	assert.True(t, Passing(1.0))
	assert.True(t, Passing(2.0))
	assert.False(t, Passing(0.0))
}
