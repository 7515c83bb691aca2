package metrics

import (
	"math"
	"sort"

	"github.com/xsuryanshx/cognitive-load/internal/models"
)

// MetricResult is a single computed rhythm metric. Calculated is false when
// the batch was too small for the metric to be meaningful.
type MetricResult struct {
	Value      float64 `json:"value"`
	Calculated bool    `json:"calculated"`
	SampleSize int     `json:"sampleSize,omitempty"`
}

// RhythmMetrics analyzes the typing rhythm of one sentence batch: inter-key
// cadence, key hold times, and correction behavior. Everything is derived
// from press/release timestamps, so a batch with sparse timing simply yields
// uncalculated entries.
func RhythmMetrics(events []models.KeystrokeEvent) map[string]MetricResult {
	result := map[string]MetricResult{
		"average_inter_key_interval":    {Value: 0.0, Calculated: false},
		"typing_rhythm_variability":     {Value: 0.0, Calculated: false},
		"average_key_hold_time":         {Value: 0.0, Calculated: false},
		"key_hold_variability":          {Value: 0.0, Calculated: false},
		"correction_rate":               {Value: 0.0, Calculated: false},
		"immediate_correction_tendency": {Value: 0.0, Calculated: false},
	}

	if len(events) < 3 {
		return result
	}

	ordered := make([]models.KeystrokeEvent, len(events))
	copy(ordered, events)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].PressTime < ordered[j].PressTime
	})

	intervals := make([]float64, 0, len(ordered)-1)
	for i := 1; i < len(ordered); i++ {
		if ordered[i].PressTime > 0 && ordered[i-1].PressTime > 0 {
			intervals = append(intervals, float64(ordered[i].PressTime-ordered[i-1].PressTime))
		}
	}

	if len(intervals) >= 3 {
		// Drop extreme pauses so one long stall doesn't dominate the cadence.
		sorted := make([]float64, len(intervals))
		copy(sorted, intervals)
		sort.Float64s(sorted)

		p95idx := int(float64(len(sorted)) * 0.95)
		if p95idx >= len(sorted) {
			p95idx = len(sorted) - 1
		}
		maxInterval := sorted[p95idx] * 1.5

		filtered := make([]float64, 0, len(intervals))
		for _, interval := range intervals {
			if interval <= maxInterval {
				filtered = append(filtered, interval)
			}
		}

		if len(filtered) >= 3 {
			avg := mean(filtered)
			result["average_inter_key_interval"] = MetricResult{Value: avg, Calculated: true, SampleSize: len(filtered)}
			if avg > 0 {
				cv := math.Sqrt(sampleVariance(filtered, avg)) / avg
				result["typing_rhythm_variability"] = MetricResult{Value: cv, Calculated: true, SampleSize: len(filtered)}
			}
		}
	}

	holdTimes := make([]float64, 0, len(ordered))
	for _, ev := range ordered {
		if ev.PressTime > 0 && ev.ReleaseTime > ev.PressTime {
			hold := float64(ev.ReleaseTime - ev.PressTime)
			// Physical key holds live in this band; anything outside is clock noise.
			if hold >= 20 && hold <= 1000 {
				holdTimes = append(holdTimes, hold)
			}
		}
	}

	if len(holdTimes) >= 5 {
		sort.Float64s(holdTimes)
		q1 := holdTimes[len(holdTimes)/4]
		q3 := holdTimes[(len(holdTimes)*3)/4]
		iqr := q3 - q1

		filtered := make([]float64, 0, len(holdTimes))
		for _, t := range holdTimes {
			if t >= q1-(1.5*iqr) && t <= q3+(1.5*iqr) {
				filtered = append(filtered, t)
			}
		}

		if len(filtered) >= 5 {
			avg := mean(filtered)
			result["average_key_hold_time"] = MetricResult{Value: avg, Calculated: true, SampleSize: len(filtered)}
			if avg > 0 {
				cv := math.Sqrt(sampleVariance(filtered, avg)) / avg
				result["key_hold_variability"] = MetricResult{Value: cv, Calculated: true, SampleSize: len(filtered)}
			}
		}
	}

	corrections := 0
	immediateCorrections := 0
	lastCorrection := -1
	chars := 0
	for i, ev := range ordered {
		if ev.Letter == "BKSP" {
			corrections++
			if lastCorrection >= 0 && i-lastCorrection <= 3 {
				immediateCorrections++
			}
			lastCorrection = i
		} else if len(ev.Letter) == 1 {
			chars++
		}
	}

	if chars >= 3 {
		result["correction_rate"] = MetricResult{Value: float64(corrections) / float64(chars), Calculated: true, SampleSize: chars}
		if corrections > 0 {
			result["immediate_correction_tendency"] = MetricResult{Value: float64(immediateCorrections) / float64(corrections), Calculated: true, SampleSize: corrections}
		}
	}

	return result
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func sampleVariance(values []float64, avg float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var variance float64
	for _, v := range values {
		variance += math.Pow(v-avg, 2)
	}
	return variance / float64(len(values)-1)
}
