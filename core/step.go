package volstress

import (
	"time"
)

type Step struct {
	Name        string
	User        *User
	Expectation *Expectation
}

// Expectation is persisted with a step's archive and evaluated against the
// aggregated samples at report time.
type Expectation struct {
	SuccessPercentageAtLeast        *PercentageExpectation
	FailurePercentageAtMost         *PercentageExpectation
	ErrorPercentageAtMost           *PercentageExpectation
	TimeoutPercentageAtMost         *PercentageExpectation
	RoundTripTimePercentileLimits   []*PercentileExpectation
	TimeToFirstBytePercentileLimits []*PercentileExpectation
	StatusCodeBelowThresholds       []*StatusCodeExpectation
}

type PercentageExpectation struct {
	Percentage  float64
	Unmet       bool
	ActualValue float64
}

type PercentileExpectation struct {
	Percentile  float64
	Duration    time.Duration
	Unmet       bool
	ActualValue time.Duration
}

// StatusCodeExpectation expects at least Percentage percent of the received
// status codes to lie below StatusCodeBelow.
type StatusCodeExpectation struct {
	StatusCodeBelow int
	Percentage      float64
	Unmet           bool
	ActualValue     float64
}

func (step *Step) isValidPercentage(percentage float64) bool {
	if percentage < 0 || percentage > 100 {
		step.User.runner.log.WithField("percentage", percentage).Warn("invalid percentage provided (expected between 0.0 and 100.0)")
		return false
	}
	return true
}

// ExpectSuccessPercentageAtLeast sets the minimum success percentage level which is expected for this step.
// Values may range from 0.0 to 100.0 percent.
//
// When invoked multiple times, only the percentage level when archiving the step's stats for the first time is used
// (i.e. subsequent invocations post-archive are silently ignored).
func (step *Step) ExpectSuccessPercentageAtLeast(percentage float64) *Step {
	if step.isValidPercentage(percentage) {
		step.Expectation.SuccessPercentageAtLeast = &PercentageExpectation{Percentage: percentage}
	}
	return step
}

// ExpectFailurePercentageAtMost sets the maximum failure percentage level which is expected for this step.
// Values may range from 0.0 to 100.0 percent.
//
// When invoked multiple times, only the percentage level when archiving the step's stats for the first time is used
// (i.e. subsequent invocations post-archive are silently ignored).
func (step *Step) ExpectFailurePercentageAtMost(percentage float64) *Step {
	if step.isValidPercentage(percentage) {
		step.Expectation.FailurePercentageAtMost = &PercentageExpectation{Percentage: percentage}
	}
	return step
}

// ExpectErrorPercentageAtMost sets the maximum error percentage level which is expected for this step.
// Values may range from 0.0 to 100.0 percent.
//
// When invoked multiple times, only the percentage level when archiving the step's stats for the first time is used
// (i.e. subsequent invocations post-archive are silently ignored).
func (step *Step) ExpectErrorPercentageAtMost(percentage float64) *Step {
	if step.isValidPercentage(percentage) {
		step.Expectation.ErrorPercentageAtMost = &PercentageExpectation{Percentage: percentage}
	}
	return step
}

// ExpectTimeoutPercentageAtMost sets the maximum timeout percentage level which is expected for this step.
// Values may range from 0.0 to 100.0 percent.
//
// When invoked multiple times, only the percentage level when archiving the step's stats for the first time is used
// (i.e. subsequent invocations post-archive are silently ignored).
func (step *Step) ExpectTimeoutPercentageAtMost(percentage float64) *Step {
	if step.isValidPercentage(percentage) {
		step.Expectation.TimeoutPercentageAtMost = &PercentageExpectation{Percentage: percentage}
	}
	return step
}

// ExpectRoundTripTimePercentileLimit expects the round-trip duration of the
// given percentile to stay within the given maximum duration.
//
// When invoked multiple times, only the percentile expectation value when archiving the step's stats for the first time is used
// (i.e. subsequent invocations post-archive are silently ignored).
func (step *Step) ExpectRoundTripTimePercentileLimit(percentile float64, duration time.Duration) *Step {
	if step.isValidPercentage(percentile) {
		step.Expectation.RoundTripTimePercentileLimits = append(step.Expectation.RoundTripTimePercentileLimits, &PercentileExpectation{
			Percentile: percentile,
			Duration:   duration,
		})
	}
	return step
}

// ExpectTimeToFirstBytePercentileLimit expects the time-to-first-byte of the
// given percentile to stay within the given maximum duration.
//
// When invoked multiple times, only the percentile expectation value when archiving the step's stats for the first time is used
// (i.e. subsequent invocations post-archive are silently ignored).
func (step *Step) ExpectTimeToFirstBytePercentileLimit(percentile float64, duration time.Duration) *Step {
	if step.isValidPercentage(percentile) {
		step.Expectation.TimeToFirstBytePercentileLimits = append(step.Expectation.TimeToFirstBytePercentileLimits, &PercentileExpectation{
			Percentile: percentile,
			Duration:   duration,
		})
	}
	return step
}

// ExpectStatusCodeBelowPercentageAtLeast expects at least the given
// percentage of received status codes to be below the given threshold. It is
// the aggregate counterpart of AssertStatusCodeBelow on responses.
//
// When invoked multiple times, only the expectation value when archiving the step's stats for the first time is used
// (i.e. subsequent invocations post-archive are silently ignored).
func (step *Step) ExpectStatusCodeBelowPercentageAtLeast(statusCode int, percentage float64) *Step {
	if step.isValidPercentage(percentage) {
		step.Expectation.StatusCodeBelowThresholds = append(step.Expectation.StatusCodeBelowThresholds, &StatusCodeExpectation{
			StatusCodeBelow: statusCode,
			Percentage:      percentage,
		})
	}
	return step
}
