// internal/detect/detect.go

// Package detect decides whether air quality crossed the alerting
// threshold between two readings. Detection is edge-triggered: sustained
// bad air produces exactly one event at the crossing.
package detect

// Event is the outcome of one threshold evaluation.
type Event string

const (
	// EventNone means no crossing happened.
	EventNone Event = "none"
	// EventGood means air quality dropped to or below the threshold.
	EventGood Event = "air_quality_good"
	// EventBad means air quality rose above the threshold.
	EventBad Event = "air_quality_bad"
)

// DefaultThreshold is the AQI level separating acceptable air from air
// worth an alert.
const DefaultThreshold = 65.0

// Detector compares consecutive AQI values against a fixed threshold.
type Detector struct {
	threshold float64
}

// New builds a detector. Non-positive thresholds fall back to the
// default.
func New(threshold float64) Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return Detector{threshold: threshold}
}

// Threshold exposes the configured level for logs and reports.
func (d Detector) Threshold() float64 {
	return d.threshold
}

// Evaluate reports the crossing between the previous and current AQI.
// Both predicates are plain float comparisons, so a NaN on either side
// can never satisfy a crossing and yields EventNone. Re-evaluating the
// same pair always returns the same event.
func (d Detector) Evaluate(previous, current float64) Event {
	if previous > d.threshold && current <= d.threshold {
		return EventGood
	}
	if previous <= d.threshold && current > d.threshold {
		return EventBad
	}
	return EventNone
}
