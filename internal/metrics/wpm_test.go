package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xsuryanshx/cognitive-load/internal/models"
)

func TestCalculateWPM(t *testing.T) {
	tests := []struct {
		name    string
		chars   int
		timeMs  int64
		wantWPM float64
	}{
		{"one hundred chars in a minute", 100, 60000, 20.0},
		{"zero chars", 0, 60000, 0.0},
		{"negative chars", -5, 60000, 0.0},
		{"zero time", 100, 0, 0.0},
		{"negative time", 100, -100, 0.0},
		{"half minute", 50, 30000, 20.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.wantWPM, CalculateWPM(tt.chars, tt.timeMs), 1e-9)
		})
	}
}

func TestCharCount(t *testing.T) {
	events := []models.KeystrokeEvent{
		{Letter: "T"},
		{Letter: "h"},
		{Letter: "e"},
		{Letter: "SHIFT"},
		{Letter: "BKSP"},
		{Letter: "ENTER"},
		{Letter: " "},
		{Letter: ""},
	}
	// "T", "h", "e", and the space count; named keys and empties do not.
	assert.Equal(t, 4, CharCount(events))
}

func TestCharCountEmpty(t *testing.T) {
	assert.Equal(t, 0, CharCount(nil))
}

func TestSentenceElapsed(t *testing.T) {
	// Press at millisecond zero is a real timestamp, not a missing value.
	events := []models.KeystrokeEvent{
		{PressTime: 0, ReleaseTime: 50},
		{PressTime: 100, ReleaseTime: 150},
		{PressTime: 200, ReleaseTime: 260},
	}
	assert.Equal(t, int64(260), SentenceElapsed(events))
}

func TestSentenceElapsedEmpty(t *testing.T) {
	assert.Equal(t, int64(0), SentenceElapsed(nil))
	assert.Equal(t, int64(0), SentenceElapsed([]models.KeystrokeEvent{}))
}

func TestSentenceElapsedSkewedClock(t *testing.T) {
	// A release before the earliest press yields a negative span. The
	// calculator reports it as-is; accumulation clamps it to zero.
	events := []models.KeystrokeEvent{
		{PressTime: 500, ReleaseTime: 100},
	}
	assert.Equal(t, int64(-400), SentenceElapsed(events))
}
