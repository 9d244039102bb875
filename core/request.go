package volstress

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultRequestTimeout is applied by Send. Use SendWithTimeout or
// SendWithoutTimeout to deviate per request.
const DefaultRequestTimeout = 30 * time.Second

type Request struct {
	Step     *Step
	Method   string
	URL      string
	Disabled bool
	User     *User
	Headers  map[string]string
	Timeout  time.Duration

	body []byte
	err  error
}

// Request starts building an HTTP request for this step. Nothing goes over
// the wire until one of the Send methods is called on the result. Requests
// of a disabled user produce an inert response that skips all assertions
// and archiving.
func (step *Step) Request(method, url string) *Request {
	request := &Request{Step: step, User: step.User, Method: method, URL: url}
	if step.User.Disabled {
		request.Disabled = true
	}
	return request
}

func (request *Request) SetHeader(key, value string) *Request {
	if request.Headers == nil {
		request.Headers = make(map[string]string)
	}
	request.Headers[key] = value
	return request
}

func (request *Request) SetBodyString(body string) *Request {
	request.body = []byte(body)
	return request
}

// SetJSONBody marshals v into the request body and sets the Content-Type
// header unless one was already set explicitly.
func (request *Request) SetJSONBody(v interface{}) *Request {
	b, err := json.Marshal(v)
	if err != nil {
		request.err = fmt.Errorf("marshal request body: %w", err)
		return request
	}
	request.body = b
	if _, ok := request.Headers["Content-Type"]; !ok {
		request.SetHeader("Content-Type", "application/json")
	}
	return request
}

func (request *Request) Send() *Response {
	request.Timeout = DefaultRequestTimeout
	return request.User.executeRequestWithTracing(request)
}

func (request *Request) SendWithTimeout(timeout time.Duration) *Response {
	request.Timeout = timeout
	return request.User.executeRequestWithTracing(request)
}

// SendWithoutTimeout sends with no client-side timeout. The request still
// ends when the user's context is cancelled.
func (request *Request) SendWithoutTimeout() *Response {
	request.Timeout = 0
	return request.User.executeRequestWithTracing(request)
}

func (user *User) executeRequestWithTracing(request *Request) *Response {
	response := &Response{
		Scenario:   user.Scenario,
		Step:       request.Step,
		RequestURL: request.URL,
		Timestamps: &Timestamps{},
	}
	if request.Disabled || user.Disabled {
		response.disabled = true
		return response
	}
	if request.err != nil {
		response.Error = request.err
		return response
	}
	runner := user.runner

	var bodyReader io.Reader
	if request.body != nil {
		bodyReader = bytes.NewReader(request.body)
	}
	req, err := http.NewRequestWithContext(user.context(), request.Method, request.URL, bodyReader)
	if err != nil {
		response.Error = fmt.Errorf("build request: %w", err)
		return response
	}
	for k, v := range user.baseHeaders {
		req.Header.Set(k, v)
	}
	for k, v := range request.Headers {
		req.Header.Set(k, v)
	}
	if runner.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", runner.UserAgent)
	}
	if runner.TagRequests {
		req.Header.Set("Volstress-Scenario-Step", user.Scenario+": "+request.Step.Name)
		req.Header.Set("Volstress-User-Loop", strconv.Itoa(user.CurrentUser)+"/"+strconv.Itoa(user.CurrentLoop))
	}

	// call all registered request interceptors
	for _, fn := range runner.interceptors {
		fn(user, req)
	}

	if runner.Verbose {
		runner.log.WithFields(logrus.Fields{
			"scenario": user.Scenario,
			"step":     request.Step.Name,
			"user":     user.CurrentUser,
			"loop":     user.CurrentLoop,
		}).Debug("sending request")
	}

	trace := &httptrace.ClientTrace{
		GotFirstResponseByte: response.gotFirstResponseByte,
		WroteRequest:         response.wroteRequest,
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	user.HttpClient.Timeout = request.Timeout
	response.Timestamps.Start = time.Now()
	responseOfCall, err := user.HttpClient.Do(req)
	response.Timestamps.Done = time.Now()
	if err != nil {
		response.trackTransportError(err)
	}
	var (
		respBody   []byte
		statusCode int
		status     string
		headerSize int
	)
	if responseOfCall != nil && responseOfCall.Body != nil {
		defer responseOfCall.Body.Close()
		respBody, err = io.ReadAll(responseOfCall.Body)
		if err != nil {
			response.trackTransportError(err)
		}
		headerSize = HeaderSize(responseOfCall.Header)
		statusCode = responseOfCall.StatusCode
		status = responseOfCall.Status
	}
	response.StatusCode = statusCode
	response.Status = status
	if responseOfCall != nil {
		response.FinalURL = responseOfCall.Request.URL.String()
	}
	response.Body = respBody
	response.RequestSize = HeaderSize(req.Header) + len(request.body)
	response.ResponseSize = headerSize + len(respBody)
	return response
}

// trackTransportError files err as either a timeout or a hard error,
// keeping only the first of each kind.
func (response *Response) trackTransportError(err error) {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		if response.Timeout == nil {
			response.Timeout = err
		}
		return
	}
	if response.Error == nil {
		response.Error = err
	}
}

type Timestamps struct {
	Start                time.Time
	WroteRequest         time.Time
	GotFirstResponseByte time.Time
	Done                 time.Time
}

func (response *Response) gotFirstResponseByte() {
	// for calculating the time from start to first byte (TTFB)
	response.Timestamps.GotFirstResponseByte = time.Now()
}

func (response *Response) wroteRequest(info httptrace.WroteRequestInfo) {
	// for more precise calculation of timing from the moment the request was fully sent
	response.Timestamps.WroteRequest = time.Now()
}

func (stats *Timestamps) TotalDuration() (d time.Duration, completed bool) {
	if stats.Done.IsZero() {
		return 0, false
	}
	res := stats.Done.Sub(stats.Start)
	if res < 0 {
		res = 0
	}
	return res, true
}

func (stats *Timestamps) TimeToFirstByte(afterRequestSent bool) (d time.Duration, completed bool) {
	start := stats.Start
	if afterRequestSent {
		start = stats.WroteRequest
	}
	if stats.GotFirstResponseByte.IsZero() || stats.WroteRequest.IsZero() {
		return 0, false
	}
	res := stats.GotFirstResponseByte.Sub(start)
	if res < 0 {
		res = 0
	}
	return res, true
}
