package compositor

import "math"

// Alpha returns the blend weight in [0,1] of a task window at time t.
//
// The weight ramps linearly from 0 to 1 over [start, start+fade), stays at 1
// until end-fade, and ramps back down to 0 over (end-fade, end]. Outside
// [start, end] it is 0. When the window is shorter than two fades the ramps
// overlap; the fade-in ramp is evaluated first and the result is only clamped.
// A NaN time gives 0.
func Alpha(t, start, end, fade float64) float64 {
	if math.IsNaN(t) || t < start || t > end {
		return 0
	}
	if fade <= 0 {
		return 1
	}

	var a float64
	switch {
	case t < start+fade:
		a = (t - start) / fade
	case t > end-fade:
		a = (end - t) / fade
	default:
		a = 1
	}
	return clamp01(a)
}

// AlphaAt evaluates Alpha for a task.
func (t RegionTask) AlphaAt(ts float64) float64 {
	return Alpha(ts, t.StartTime, t.EndTime, t.FadeDuration)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
