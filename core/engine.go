package volstress

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	scenariosFilename                      = "scenarios.volstress"
	stepFilenamePattern, stepFilenameMatch = "step-%d.volstress", "step-*.volstress"

	loopingUsersLogInterval = 10 * time.Second
)

// Scenario is one simulated-user behavior under load. Runner is executed once
// per loop for every concurrent user of the scenario. OnStart, when set, runs
// once per user before its first loop; returning an error disables that user
// before it ever loops (an exhausted token pool, for example).
type Scenario struct {
	Title, Description string
	OnStart            func(user *User) error
	Runner             func(user *User)
	LoadConfig         LoadConfig
	Ignored            bool
	ExecutionCount     uint64
}

type RandomInterval struct {
	Min, Max time.Duration
}

func (ri RandomInterval) String() string {
	return fmt.Sprint("random interval between ", ri.Min, " and ", ri.Max)
}

type LoadConfig struct {
	StartDelay                RandomInterval
	LoopingUsers              int
	LoopDelay                 RandomInterval
	RampUp, Plateau, RampDown time.Duration
}

// Runner drives the registered scenarios against a target and archives one
// sample per sent request for later report generation.
type Runner struct {
	// Knobs to set before calling Run.
	ResultsDir                string
	SkipCertificateValidation bool
	Proxy                     string
	UserAgent                 string
	TagRequests               bool // annotate outgoing requests with a scenario/step header
	Verbose                   bool
	Metrics                   *Metrics

	log          *logrus.Entry
	scenarios    map[string]*Scenario
	interceptors []func(u *User, r *http.Request)

	loopingUsers safeTracker
	printLock    sync.Mutex

	archiveLock     sync.Mutex
	scenariosWriter *scenariosGobWriter
	stepWriters     map[string]*stepGobWriter
	closed          bool
}

func NewRunner(log *logrus.Entry) *Runner {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Runner{
		log:          log,
		scenarios:    make(map[string]*Scenario),
		loopingUsers: safeTracker{counters: make(map[string]int)},
		stepWriters:  make(map[string]*stepGobWriter),
	}
}

func (r *Runner) AddScenario(scenario *Scenario) error {
	if scenario.Runner == nil {
		return fmt.Errorf("scenario '%s' has no runner", scenario.Title)
	}
	if scenario.LoadConfig.LoopingUsers <= 0 {
		return fmt.Errorf("scenario '%s' has zero or negative LoopingUsers", scenario.Title)
	}
	if scenario.LoadConfig.RampUp < 0 || scenario.LoadConfig.Plateau < 0 || scenario.LoadConfig.RampDown < 0 {
		return fmt.Errorf("scenario '%s' has a negative load phase duration", scenario.Title)
	}
	if _, exists := r.scenarios[scenario.Title]; exists {
		return fmt.Errorf("scenario already exists '%s'", scenario.Title)
	}
	r.scenarios[scenario.Title] = scenario
	return nil
}

// AddRequestInterceptor registers a function invoked on every outgoing
// request just before it is sent, e.g. to stamp a run id header.
func (r *Runner) AddRequestInterceptor(fn func(u *User, req *http.Request)) {
	r.interceptors = append(r.interceptors, fn)
}

// Run executes all non-ignored scenarios concurrently and blocks until their
// load phases have completed or ctx is cancelled. Archives are flushed and
// closed in both cases.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.openArchive(); err != nil {
		return err
	}
	defer r.writeSummaryAndCloseFiles()

	logTicker := time.NewTicker(loopingUsersLogInterval)
	logTickerDone := make(chan struct{})
	go func() {
		for {
			select {
			case <-logTickerDone:
				return
			case <-logTicker.C:
				for _, scenario := range r.scenarios {
					r.log.WithFields(logrus.Fields{
						"scenario": scenario.Title,
						"looping":  r.loopingUsers.Value(scenario.Title),
					}).Info("looping users")
				}
			}
		}
	}()
	defer func() {
		logTicker.Stop()
		close(logTickerDone)
	}()

	var wg sync.WaitGroup
	for _, scenario := range r.scenarios {
		if scenario.Ignored {
			continue
		}
		r.log.WithField("scenario", scenario.Title).Info("running scenario")
		wg.Add(1)
		go func(scenario *Scenario) {
			defer wg.Done()
			scenario.ExecutionCount = 0
			sleepContext(ctx, RandomDuration(scenario.LoadConfig.StartDelay.Min, scenario.LoadConfig.StartDelay.Max))
			end := time.Now().Add(scenario.LoadConfig.RampUp).Add(scenario.LoadConfig.Plateau).Add(scenario.LoadConfig.RampDown)
			rampDownPhaseEntry := end.Add(-scenario.LoadConfig.RampDown)
			rampDownStep := int64(scenario.LoadConfig.RampDown) / int64(scenario.LoadConfig.LoopingUsers)
			for currentUser := 1; currentUser <= scenario.LoadConfig.LoopingUsers; currentUser++ {
				if ctx.Err() != nil {
					return
				}
				rampDownCutoff := rampDownPhaseEntry.Add(time.Duration(int64(currentUser) * rampDownStep))
				wg.Add(1)
				go r.loopUser(ctx, &wg, scenario, currentUser, end, rampDownCutoff)
				// stagger user starts across the ramp-up window
				if scenario.LoadConfig.LoopingUsers > 1 {
					sleepContext(ctx, time.Duration(int64(scenario.LoadConfig.RampUp)/int64(scenario.LoadConfig.LoopingUsers-1)))
				}
			}
		}(scenario) // to not capture loop variables in goroutine the undesired way
	}
	wg.Wait()
	return nil
}

func (r *Runner) loopUser(ctx context.Context, wg *sync.WaitGroup, scenario *Scenario, currentUser int, end, rampDownCutoff time.Time) {
	defer wg.Done()
	count := r.loopingUsers.Inc(scenario.Title)
	r.Metrics.setLoopingUsers(scenario.Title, count)
	if r.Verbose {
		r.log.WithFields(logrus.Fields{"scenario": scenario.Title, "looping": count}).Debug("ramp-up: looping user added")
	}
	defer func() {
		n := r.loopingUsers.Dec(scenario.Title)
		r.Metrics.setLoopingUsers(scenario.Title, n)
	}()

	user := &User{
		Scenario:    scenario.Title,
		CurrentUser: currentUser,
		HttpClient:  &http.Client{Transport: r.newTransport()},
		Data:        make(map[string]interface{}),
		runner:      r,
		ctx:         ctx,
	}
	if scenario.OnStart != nil {
		if err := scenario.OnStart(user); err != nil {
			user.Disabled = true
			r.log.WithFields(logrus.Fields{
				"scenario": scenario.Title,
				"user":     currentUser,
			}).WithError(err).Warn("user start failed, user disabled")
			return
		}
	}
	for time.Now().Before(end) {
		if ctx.Err() != nil {
			return
		}
		user.CurrentLoop++
		scenario.Runner(user)
		atomic.AddUint64(&scenario.ExecutionCount, 1)
		if time.Now().After(rampDownCutoff) {
			user.Disabled = true
			if r.Verbose {
				r.log.WithFields(logrus.Fields{"scenario": scenario.Title, "user": currentUser}).Debug("ramp-down: looping user removed")
			}
			return
		}
		user.ThinkTime(RandomDuration(scenario.LoadConfig.LoopDelay.Min, scenario.LoadConfig.LoopDelay.Max))
	}
}

func (r *Runner) newTransport() *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if r.SkipCertificateValidation {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if r.Proxy != "" {
		proxyURL, err := url.Parse(r.Proxy)
		if err != nil {
			r.log.WithError(err).Warn("ignoring unparsable proxy url")
		} else {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return transport
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// safeTracker is safe to use concurrently.
type safeTracker struct {
	lock     sync.RWMutex
	counters map[string]int
}

// Inc increments the counter for the given key and returns the new value.
func (sk *safeTracker) Inc(key string) int {
	sk.lock.Lock()
	defer sk.lock.Unlock()
	sk.counters[key]++
	return sk.counters[key]
}

// Dec decrements the counter for the given key and returns the new value.
func (sk *safeTracker) Dec(key string) int {
	sk.lock.Lock()
	defer sk.lock.Unlock()
	sk.counters[key]--
	return sk.counters[key]
}

// Value returns the current value of the counter for the given key.
func (sk *safeTracker) Value(key string) int {
	sk.lock.RLock()
	defer sk.lock.RUnlock()
	return sk.counters[key]
}
