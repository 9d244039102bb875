package volstress

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestTarget() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		qParams := r.URL.Query()
		if sc := qParams.Get("statuscode"); sc != "" {
			code, _ := strconv.Atoi(sc)
			w.WriteHeader(code)
		}
		if delay := qParams.Get("delay-ms"); delay != "" {
			ms, _ := strconv.Atoi(delay)
			time.Sleep(time.Duration(ms) * time.Millisecond)
		}
		_, _ = fmt.Fprintln(w, "hello")
		if content := qParams.Get("content"); content != "" {
			_, _ = w.Write([]byte(content))
		}
	}))
}

func TestRun(t *testing.T) {
	if testing.Short() {
		t.Skip("load run takes a few seconds")
	}
	target := newTestTarget()
	defer target.Close()

	resultsDir := t.TempDir()
	runner := NewRunner(nil)
	runner.ResultsDir = resultsDir

	load := LoadConfig{
		StartDelay:   RandomInterval{Min: 10 * time.Millisecond, Max: 50 * time.Millisecond},
		LoopingUsers: 5,
		LoopDelay:    RandomInterval{Min: 10 * time.Millisecond, Max: 30 * time.Millisecond},
		RampUp:       200 * time.Millisecond,
		Plateau:      1 * time.Second,
		RampDown:     200 * time.Millisecond,
	}

	var startedUsers uint64
	err := runner.AddScenario(&Scenario{
		Title: "healthy calls",
		OnStart: func(user *User) error {
			atomic.AddUint64(&startedUsers, 1)
			user.SetBaseHeader("Authorization", "Bearer test-token-"+strconv.Itoa(user.CurrentUser))
			return nil
		},
		Runner: func(user *User) {
			content := strconv.Itoa(RandomNumber(1111111, 9999999))
			response := user.Step("healthy request").ExpectSuccessPercentageAtLeast(99).
				Request(http.MethodGet, target.URL+"?content="+content).
				SendWithTimeout(5 * time.Second).
				AssertStatusCodeBelow(400).AssertBodyContains(content).
				ArchiveStats()
			if response.ConsideredUnsuccessful() {
				t.Errorf("healthy request unsuccessful: error=%v timeout=%v assertion=%q",
					response.Error, response.Timeout, response.AssertionFailed)
			}
			user.ThinkTimeRandom(time.Millisecond, 3*time.Millisecond)
			echo := user.Step("healthy echo").ExpectErrorPercentageAtMost(1).
				Request(http.MethodPost, target.URL+"?content="+content).
				SetHeader("Accept", "text/plain").
				SetBodyString("payload=" + content).
				SendWithoutTimeout().
				AssertStatusCodeBelow(400).AssertBodyContains(content).
				ArchiveStats()
			if echo.ConsideredUnsuccessful() {
				t.Errorf("healthy echo unsuccessful: error=%v timeout=%v assertion=%q",
					echo.Error, echo.Timeout, echo.AssertionFailed)
			}
			if user.CurrentLoop == 1 {
				user.Data["user"] = user.CurrentUser
			} else if user.Data["user"].(int) != user.CurrentUser {
				t.Error("user data was not carried over consistently between loops")
			}
		},
		LoadConfig: load,
	})
	if err != nil {
		t.Fatal(err)
	}

	err = runner.AddScenario(&Scenario{
		Title: "degraded calls",
		Runner: func(user *User) {
			response := user.Step("degraded request").ExpectFailurePercentageAtMost(1).
				Request(http.MethodGet, target.URL+"?statuscode=502").
				SendWithTimeout(5 * time.Second).
				AssertStatusCodeBelow(400).
				ArchiveStats()
			if !response.IsFailed() {
				t.Error("expected a failed assertion for status 502")
			}
		},
		LoadConfig: load,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := runner.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadUint64(&startedUsers); got != uint64(load.LoopingUsers) {
		t.Errorf("started users = %d, want %d", got, load.LoopingUsers)
	}

	report, err := GenerateResultsReport(nil, resultsDir)
	if err != nil {
		t.Fatal(err)
	}
	if !report.HasUnmetExpectation {
		t.Error("expected the degraded scenario to miss its failure percentage expectation")
	}
	healthy, exists := report.StatsByStep["healthy request"]
	if !exists {
		t.Fatal("missing stats for the healthy step")
	}
	if healthy.Counts.Requests == 0 {
		t.Error("no healthy requests recorded")
	}
	if healthy.Counts.Failures != 0 || healthy.Counts.Errors != 0 || healthy.Counts.Timeouts != 0 {
		t.Errorf("healthy step recorded non-successes: %+v", healthy.Counts)
	}
	if got := healthy.StatusCodes[http.StatusOK]; got != int(healthy.Counts.Requests) {
		t.Errorf("healthy step status 200 count = %d, want %d", got, healthy.Counts.Requests)
	}
	if len(healthy.TRRT) == 0 || len(healthy.TTFB) == 0 {
		t.Error("healthy step recorded no timing samples")
	}
	echoStats, exists := report.StatsByStep["healthy echo"]
	if !exists {
		t.Fatal("missing stats for the echo step")
	}
	if echoStats.Counts.Requests == 0 {
		t.Error("no echo requests recorded")
	}
	degraded, exists := report.StatsByStep["degraded request"]
	if !exists {
		t.Fatal("missing stats for the degraded step")
	}
	if degraded.Counts.Failures != degraded.Counts.Requests {
		t.Errorf("degraded step failures = %d, want all %d requests failed",
			degraded.Counts.Failures, degraded.Counts.Requests)
	}
	for _, name := range []string{"scenarios.txt", "scenarios.json", "step-1.txt", "step-1.json", "step-2.txt", "step-2.json", "step-3.txt", "step-3.json"} {
		if _, err := os.Stat(filepath.Join(resultsDir, name)); err != nil {
			t.Errorf("missing report file %s: %v", name, err)
		}
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	target := newTestTarget()
	defer target.Close()

	runner := NewRunner(nil)
	err := runner.AddScenario(&Scenario{
		Title: "endless calls",
		Runner: func(user *User) {
			user.Step("ping").
				Request(http.MethodGet, target.URL).
				SendWithTimeout(5 * time.Second).
				ArchiveStats()
		},
		LoadConfig: LoadConfig{
			LoopingUsers: 2,
			Plateau:      time.Hour,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runner.Run(ctx)
	}()
	time.Sleep(300 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after context cancellation")
	}
}

func TestOnStartFailureDisablesUser(t *testing.T) {
	runner := NewRunner(nil)
	var loops uint64
	err := runner.AddScenario(&Scenario{
		Title:   "never starts",
		OnStart: func(user *User) error { return fmt.Errorf("no token left") },
		Runner:  func(user *User) { atomic.AddUint64(&loops, 1) },
		LoadConfig: LoadConfig{
			LoopingUsers: 3,
			Plateau:      300 * time.Millisecond,
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := runner.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadUint64(&loops); got != 0 {
		t.Errorf("runner looped %d times for users whose start failed", got)
	}
}

func TestAddScenarioValidation(t *testing.T) {
	runner := NewRunner(nil)
	noop := func(user *User) {}
	if err := runner.AddScenario(&Scenario{Title: "no runner", LoadConfig: LoadConfig{LoopingUsers: 1}}); err == nil {
		t.Error("expected an error for a scenario without runner")
	}
	if err := runner.AddScenario(&Scenario{Title: "no users", Runner: noop}); err == nil {
		t.Error("expected an error for zero looping users")
	}
	if err := runner.AddScenario(&Scenario{Title: "negative phase", Runner: noop, LoadConfig: LoadConfig{LoopingUsers: 1, RampUp: -time.Second}}); err == nil {
		t.Error("expected an error for a negative load phase")
	}
	valid := &Scenario{Title: "valid", Runner: noop, LoadConfig: LoadConfig{LoopingUsers: 1}}
	if err := runner.AddScenario(valid); err != nil {
		t.Fatal(err)
	}
	if err := runner.AddScenario(valid); err == nil {
		t.Error("expected an error for a duplicate scenario title")
	}
}

func TestAssertStatusCodeBelow(t *testing.T) {
	user := &User{runner: NewRunner(nil)}
	for _, tc := range []struct {
		code, threshold int
		wantFailed      bool
	}{
		{200, 400, false},
		{399, 400, false},
		{400, 400, true},
		{401, 400, true},
		{400, 401, false},
		{401, 401, true},
		{500, 401, true},
	} {
		response := &Response{Step: user.Step("status check"), StatusCode: tc.code, Timestamps: &Timestamps{}}
		response.AssertStatusCodeBelow(tc.threshold)
		if response.IsFailed() != tc.wantFailed {
			t.Errorf("status %d below %d: failed = %v, want %v", tc.code, tc.threshold, response.IsFailed(), tc.wantFailed)
		}
	}
}

func TestAssertionsShortCircuit(t *testing.T) {
	user := &User{runner: NewRunner(nil)}
	response := &Response{Step: user.Step("chain"), StatusCode: 500, Body: []byte(`{"id":"abc"}`), Timestamps: &Timestamps{}}
	response.AssertStatusCodeBelow(400).AssertBodyContains("nothing like this")
	if !response.IsFailed() {
		t.Fatal("expected a failed assertion")
	}
	if !strings.Contains(response.AssertionFailed, "status code") {
		t.Errorf("later assertion overwrote the first failure: %q", response.AssertionFailed)
	}
}

func TestExtractFromJSON(t *testing.T) {
	user := &User{runner: NewRunner(nil)}
	response := &Response{
		Step:       user.Step("extract"),
		Body:       []byte(`{"id":"8aac260c00000002","name":"vol1"}`),
		Timestamps: &Timestamps{},
	}
	if got := response.ExtractStringFromJSON("$.id"); got != "8aac260c00000002" {
		t.Errorf("ExtractStringFromJSON = %q, want 8aac260c00000002", got)
	}
	if got := response.ExtractStringFromJSON("$.missing"); got != "" {
		t.Errorf("ExtractStringFromJSON on missing key = %q, want empty", got)
	}
	listing := &Response{
		Step:       user.Step("extract first"),
		Body:       []byte(`[{"id":"dcc71b0500000000","name":"mypool"},{"id":"dcc71b0600000001","name":"otherpool"}]`),
		Timestamps: &Timestamps{},
	}
	if got := listing.ExtractFirstStringFromJSON(`$[?@.name=="mypool"].id`); got != "dcc71b0500000000" {
		t.Errorf("ExtractFirstStringFromJSON = %q, want dcc71b0500000000", got)
	}
	if got := listing.ExtractFirstStringFromJSON(`$[?@.name=="nosuchpool"].id`); got != "" {
		t.Errorf("ExtractFirstStringFromJSON without match = %q, want empty", got)
	}
}
