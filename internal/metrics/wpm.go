package metrics

import "github.com/xsuryanshx/cognitive-load/internal/models"

// SpecialKeys are the named keys excluded from speed computation. They are
// still journaled, they just never count as typed characters.
var SpecialKeys = map[string]struct{}{
	"SHIFT": {},
	"CTRL":  {},
	"ALT":   {},
	"CAPS":  {},
	"ESC":   {},
	"TAB":   {},
	"BKSP":  {},
	"ENTER": {},
}

// CalculateWPM converts a character count and elapsed milliseconds into
// words per minute using the standard 5-characters-per-word convention.
func CalculateWPM(totalChars int, totalTimeMs int64) float64 {
	if totalChars <= 0 || totalTimeMs <= 0 {
		return 0.0
	}
	words := float64(totalChars) / 5.0
	minutes := float64(totalTimeMs) / 60000.0
	return words / minutes
}

// CharCount counts the events that resolve to a single typed character.
// Modifier, navigation, and correction keys are skipped.
func CharCount(events []models.KeystrokeEvent) int {
	count := 0
	for _, ev := range events {
		if len(ev.Letter) != 1 {
			continue
		}
		if _, special := SpecialKeys[ev.Letter]; special {
			continue
		}
		count++
	}
	return count
}

// SentenceElapsed returns the wall-clock span of a batch in milliseconds:
// the latest release minus the earliest press. An empty batch yields 0.
// Client clocks can misbehave, so callers clamp the result to >= 0 before
// accumulating.
func SentenceElapsed(events []models.KeystrokeEvent) int64 {
	if len(events) == 0 {
		return 0
	}
	minPress := events[0].PressTime
	maxRelease := events[0].ReleaseTime
	for _, ev := range events[1:] {
		if ev.PressTime < minPress {
			minPress = ev.PressTime
		}
		if ev.ReleaseTime > maxRelease {
			maxRelease = ev.ReleaseTime
		}
	}
	return maxRelease - minPress
}
