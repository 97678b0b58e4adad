package service

// GradeBand maps a percentage range to a letter grade and grade-point
// value. Min is inclusive; the band reaches up to the next band's Min.
type GradeBand struct {
	Min    float64
	Letter string
	Points float64
}

// GradeScale is an ordered band table, highest band first. The table is
// configuration: auditable in one place and total over [0, 100].
type GradeScale []GradeBand

// DefaultGradeScale is the institutional 4.0 scale.
var DefaultGradeScale = GradeScale{
	{Min: 95, Letter: "A+", Points: 4.00},
	{Min: 90, Letter: "A", Points: 4.00},
	{Min: 85, Letter: "B+", Points: 3.50},
	{Min: 80, Letter: "B", Points: 3.00},
	{Min: 75, Letter: "C+", Points: 2.50},
	{Min: 70, Letter: "C", Points: 2.00},
	{Min: 60, Letter: "D", Points: 1.00},
	{Min: 0, Letter: "F", Points: 0.00},
}

// LetterAndPoints maps a percentage to its band. Percentages below 0
// clamp to the lowest band; values above 100 take the highest band, so
// the mapping stays total for out-of-range provisional inputs.
func (s GradeScale) LetterAndPoints(percentage float64) (string, float64) {
	for _, band := range s {
		if percentage >= band.Min {
			return band.Letter, band.Points
		}
	}
	last := s[len(s)-1]
	return last.Letter, last.Points
}

// PointsForLetter resolves a letter grade to its grade-point value.
// Matching is exact on the configured letters.
func (s GradeScale) PointsForLetter(letter string) (float64, bool) {
	for _, band := range s {
		if band.Letter == letter {
			return band.Points, true
		}
	}
	return 0, false
}

// Passing reports whether the grade-point value counts as a pass.
// Prerequisite checks require a completed enrollment with points > 0.
func Passing(points float64) bool {
	return points > 0
}
