package schedule

import "fmt"

// Wall-clock helpers for zero-padded "HH:MM" strings. Lexicographic
// comparison is valid only within a single calendar day; multi-day spans
// are rejected by validation upstream.

func minutesOf(clock string) int {
	var h, m int
	fmt.Sscanf(clock, "%d:%d", &h, &m)
	return h*60 + m
}

func clockOf(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// overlaps tests half-open interval overlap [s1,e1) vs [s2,e2).
func overlaps(s1, e1, s2, e2 string) bool {
	return s1 < e2 && e1 > s2
}
