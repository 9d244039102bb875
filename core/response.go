package volstress

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PaesslerAG/gval"
	"github.com/PaesslerAG/jsonpath"
	"github.com/sirupsen/logrus"
)

type Response struct {
	Scenario        string
	Step            *Step
	RequestSize     int
	ResponseSize    int
	RequestURL      string
	FinalURL        string
	StatusCode      int
	Status          string
	Timestamps      *Timestamps
	Timeout         error
	Error           error
	AssertionFailed string
	Body            []byte
	// internal
	archived bool
	disabled bool
}

func (response *Response) IsFailed() bool {
	return len(response.AssertionFailed) > 0
}

func (response *Response) MarkAsFailed(message string) {
	response.AssertionFailed = message
	if response.Step.User.runner.Verbose {
		response.Step.User.runner.log.WithField("step", response.Step.Name).Debug(message)
	}
}

// ConsideredUnsuccessful reports whether this response should short-circuit
// the remaining chain calls: an assertion already failed, the transport
// errored or timed out, or the user is disabled. Runners use it to abort
// the rest of a request sequence within the current loop.
func (response *Response) ConsideredUnsuccessful() bool {
	return response.disabled || len(response.AssertionFailed) > 0 || response.Error != nil || response.Timeout != nil
}

func (response *Response) Assert(fn func(response *Response) (message string, ok bool)) *Response {
	if response.ConsideredUnsuccessful() {
		return response // earlier checked assertion already failed or error or timeout happened
	}
	message, ok := fn(response)
	if !ok {
		response.MarkAsFailed(fmt.Sprint("assertion of function on response failed ", message))
	}
	return response
}

func (response *Response) AssertStatusCode(statusCode int) *Response {
	if response.ConsideredUnsuccessful() {
		return response // earlier checked assertion already failed or error or timeout happened
	}
	ok := response.StatusCode == statusCode
	if !ok {
		response.MarkAsFailed(fmt.Sprint("assertion of status code failed: got ", response.StatusCode, " want ", statusCode))
	}
	return response
}

// AssertStatusCodeBelow fails the response when its status code is at or
// above the given threshold, e.g. 400 to treat every client and server
// error as a failure.
func (response *Response) AssertStatusCodeBelow(threshold int) *Response {
	if response.ConsideredUnsuccessful() {
		return response // earlier checked assertion already failed or error or timeout happened
	}
	ok := response.StatusCode < threshold
	if !ok {
		response.MarkAsFailed(fmt.Sprint("assertion of status code failed: got ", response.StatusCode, " want below ", threshold))
		response.Step.User.runner.log.WithFields(logrus.Fields{
			"scenario": response.Scenario,
			"step":     response.Step.Name,
			"status":   response.StatusCode,
		}).Warn("status threshold exceeded: ", truncate(string(response.Body), 256))
	}
	return response
}

func (response *Response) AssertBodyContains(s string) *Response {
	if response.ConsideredUnsuccessful() {
		return response // earlier checked assertion already failed or error or timeout happened
	}
	ok := strings.Contains(string(response.Body), s)
	if !ok {
		response.MarkAsFailed(fmt.Sprint("assertion of body content failed (response body did not contain expected value): ", s))
	}
	return response
}

// ArchiveStats records this response as one sample of its step: it feeds the
// runner's metrics and appends a step entry to the step's archive file. A
// response is archived at most once; repeated calls are ignored, as are
// responses of disabled users and responses of a cancelled run.
func (response *Response) ArchiveStats() *Response {
	if response.disabled || response.archived {
		return response
	}
	user := response.Step.User
	if user.context().Err() != nil {
		return response
	}
	runner := user.runner
	entry := response.stepEntry()
	runner.Metrics.observeSample(response.Scenario, response.Step.Name, entry)
	writer, err := runner.stepWriter(response.Step)
	if err != nil {
		runner.log.WithError(err).WithField("step", response.Step.Name).Error("unable to open step archive")
		return response
	}
	if writer != nil {
		if err := writer.writeStepEntry(entry); err != nil {
			runner.log.WithError(err).WithField("step", response.Step.Name).Error("unable to write step entry")
			return response
		}
	}
	response.archived = true
	return response
}

func (response *Response) TotalDuration() time.Duration {
	return response.Timestamps.Done.Sub(response.Timestamps.Start)
}

func (response *Response) stepEntry() *StepEntry {
	return &StepEntry{
		Scenario:                 response.Scenario,
		Timeout:                  response.Timeout != nil,
		TimeoutRootCause:         UnwrapDeepestError(response.Timeout),
		Error:                    response.Error != nil,
		ErrorRootCause:           UnwrapDeepestError(response.Error),
		AssertionFailed:          len(response.AssertionFailed) > 0,
		AssertionFailedRootCause: response.AssertionFailed,
		StatusCode:               response.StatusCode,
		Timestamps:               *response.Timestamps,
		RequestSize:              response.RequestSize,
		ResponseSize:             response.ResponseSize,
	}
}

func (response *Response) PrintStats(w io.Writer) *Response {
	response.Step.User.runner.printLock.Lock()
	defer response.Step.User.runner.printLock.Unlock()
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "------------------------------------------------------------------")
	_, _ = fmt.Fprintln(w, response.RequestURL)
	_, _ = fmt.Fprintln(w, response.Status)
	_, _ = fmt.Fprintln(w, "Total-Duration:", durationMeasurement(response.Timestamps.TotalDuration()))
	_, _ = fmt.Fprintln(w, "Time-to-First-Byte:", durationMeasurement(response.Timestamps.TimeToFirstByte(false)))
	_, _ = fmt.Fprintln(w, "Time-to-First-Byte (after Request-Sent):", durationMeasurement(response.Timestamps.TimeToFirstByte(true)))
	_, _ = fmt.Fprintln(w, "------------------------------------------------------------------")
	_, _ = fmt.Fprintln(w)
	return response
}

// ExtractStringFromJSON evaluates a jsonpath expression like $.id on the
// response body and returns the matched string, or "" when nothing matched
// or the match is not a string.
func (response *Response) ExtractStringFromJSON(expression string) string {
	res := response.EvalExpressionOnJSON(expression)
	s, ok := res.(string)
	if !ok {
		return ""
	}
	return s
}

// ExtractFirstStringFromJSON is for filter expressions which select a list
// of matches, like $[?@.name=="mypool"].id on a listing. It returns the
// first matched string, or "" when nothing matched.
func (response *Response) ExtractFirstStringFromJSON(expression string) string {
	switch res := response.EvalExpressionOnJSON(expression).(type) {
	case string:
		return res
	case []interface{}:
		if len(res) > 0 {
			if s, ok := res[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

// EvalExpressionOnJSON evaluates a gval/jsonpath expression on the response
// body, see https://goessner.net/articles/JsonPath/ for the expression
// syntax. Returns nil when the body is no valid JSON or nothing matched.
func (response *Response) EvalExpressionOnJSON(expression string) interface{} {
	builder := gval.Full(jsonpath.PlaceholderExtension())
	// expressions like {#1: $..[?@.ping && @.speed > 100].name}
	// or simpler examples like $.store.book[*].author
	// or simpler examples like $["user-agent"]
	path, err := builder.NewEvaluable(expression)
	if err != nil {
		response.Step.User.runner.log.WithError(err).WithField("expression", expression).Error("invalid jsonpath expression")
		return nil
	}
	result, err := path(context.Background(), DynamicJSON(response.Body))
	if err != nil {
		if response.Step.User.runner.Verbose {
			response.Step.User.runner.log.WithError(err).WithField("expression", expression).Debug("jsonpath evaluation without result")
		}
		return nil
	}
	return result
}
