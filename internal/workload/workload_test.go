package workload

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	volstress "github.com/volstress/volstress/core"
	"github.com/volstress/volstress/internal/arraysim"
	"github.com/volstress/volstress/internal/tokens"
)

func testConfig(t *testing.T, target string) Config {
	t.Helper()
	tokensFile := filepath.Join(t.TempDir(), "tokens.txt")
	generated, err := tokens.Generate(8, "secret", tokens.DefaultRole)
	if err != nil {
		t.Fatal(err)
	}
	if err := tokens.WriteFile(tokensFile, generated); err != nil {
		t.Fatal(err)
	}
	return Config{
		Target:           target,
		IntendedEndpoint: "https://10.247.66.155:8000",
		PluginID:         "csi-vxflexos",
		SystemID:         arraysim.SystemID,
		StoragePoolID:    arraysim.StoragePoolID,
		StoragePoolName:  arraysim.StoragePoolName,
		SdcID:            arraysim.SdcID,
		VolumeSizeKb:     "100",
		TokensFile:       tokensFile,
		Load: volstress.LoadConfig{
			LoopingUsers: 2,
			LoopDelay:    volstress.RandomInterval{Min: 5 * time.Millisecond, Max: 10 * time.Millisecond},
			RampUp:       50 * time.Millisecond,
			Plateau:      400 * time.Millisecond,
			RampDown:     50 * time.Millisecond,
		},
	}
}

func runScenario(t *testing.T, cfg Config, name string) *volstress.Report {
	t.Helper()
	runner := volstress.NewRunner(nil)
	runner.ResultsDir = t.TempDir()
	if err := Register(runner, cfg, name); err != nil {
		t.Fatal(err)
	}
	if err := runner.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	report, err := volstress.GenerateResultsReport(nil, runner.ResultsDir)
	if err != nil {
		t.Fatal(err)
	}
	return report
}

func TestLifecycleScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping load run in short mode")
	}
	sim := arraysim.New(nil)
	server := httptest.NewServer(sim)
	defer server.Close()

	cfg := testConfig(t, server.URL)
	report := runScenario(t, cfg, ScenarioLifecycle)

	if report.HasUnmetExpectation {
		t.Error("expectations unmet for a clean lifecycle run")
	}
	created := report.StatsByStep["create volume"].Counts
	if created.Requests == 0 {
		t.Fatal("no volumes created")
	}
	if created.Failures != 0 || created.Errors != 0 {
		t.Errorf("create volume: %d failures, %d errors", created.Failures, created.Errors)
	}
	removed := report.StatsByStep["remove volume"].Counts
	if removed.Requests != created.Requests {
		t.Errorf("got %d removes for %d creates", removed.Requests, created.Requests)
	}
	resolved := report.StatsByStep["resolve storage pool"].Counts
	if resolved.Requests != uint64(cfg.Load.LoopingUsers) {
		t.Errorf("got %d pool resolutions, want one per user (%d)", resolved.Requests, cfg.Load.LoopingUsers)
	}
	if sim.VolumeCount() != 0 {
		t.Errorf("%d volumes left on the array after the run", sim.VolumeCount())
	}
}

func TestLifecycleMixedScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping load run in short mode")
	}
	sim := arraysim.New(nil)
	server := httptest.NewServer(sim)
	defer server.Close()

	cfg := testConfig(t, server.URL)
	report := runScenario(t, cfg, ScenarioLifecycleMixed)

	if report.OverallStats.Counts.Requests == 0 {
		t.Fatal("no requests issued")
	}
	if failures := report.OverallStats.Counts.Failures; failures != 0 {
		t.Errorf("state-guarded tasks produced %d failures", failures)
	}
	if left := sim.VolumeCount(); left > cfg.Load.LoopingUsers {
		t.Errorf("%d volumes left, want at most one per user (%d)", left, cfg.Load.LoopingUsers)
	}
}

func TestCreateFixedScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping load run in short mode")
	}
	var missingForwarded uint64
	var sawAuthorization uint64
	sim := arraysim.New(nil)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Forwarded") == "" {
			atomic.AddUint64(&missingForwarded, 1)
		}
		if r.Header.Get("Authorization") != "" {
			atomic.AddUint64(&sawAuthorization, 1)
		}
		sim.ServeHTTP(w, r)
	}))
	defer server.Close()

	cfg := testConfig(t, server.URL)
	report := runScenario(t, cfg, ScenarioCreateFixed)

	counts := report.StatsByStep["create volume unauthenticated"].Counts
	if counts.Requests == 0 {
		t.Fatal("no requests issued")
	}
	// One success per persona, then name collisions.
	if counts.Successes() != 2 {
		t.Errorf("got %d successes, want 2", counts.Successes())
	}
	if counts.Failures != counts.Requests-2 {
		t.Errorf("got %d failures out of %d requests", counts.Failures, counts.Requests)
	}
	if !report.HasUnmetExpectation {
		t.Error("persistent name collisions should leave the success expectation unmet")
	}
	if missingForwarded != 0 {
		t.Errorf("%d requests arrived without a Forwarded header", missingForwarded)
	}
	if sawAuthorization != 0 {
		t.Errorf("%d requests carried an Authorization header", sawAuthorization)
	}
}

func TestCreateTokenedScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping load run in short mode")
	}
	var missingBearer uint64
	sim := arraysim.New(nil)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			atomic.AddUint64(&missingBearer, 1)
		}
		sim.ServeHTTP(w, r)
	}))
	defer server.Close()

	cfg := testConfig(t, server.URL)
	report := runScenario(t, cfg, ScenarioCreateTokened)

	counts := report.StatsByStep["create volume as tenant"].Counts
	if counts.Requests == 0 {
		t.Fatal("no requests issued")
	}
	if counts.Successes() != 2 {
		t.Errorf("got %d successes, want 2", counts.Successes())
	}
	if missingBearer != 0 {
		t.Errorf("%d requests arrived without a bearer token", missingBearer)
	}
}

func TestRegisterUnknownScenario(t *testing.T) {
	runner := volstress.NewRunner(nil)
	err := Register(runner, Config{}, "tenant-nonsense")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "unknown scenario") {
		t.Errorf("got error %q", err)
	}
}

func TestRegisterNoScenarios(t *testing.T) {
	runner := volstress.NewRunner(nil)
	if err := Register(runner, Config{}); err == nil {
		t.Fatal("expected an error")
	}
}

func TestPersonaVolumeName(t *testing.T) {
	if got := personaVolumeName(1); got != "TenantAVol" {
		t.Errorf("user 1: got %q", got)
	}
	if got := personaVolumeName(2); got != "TenantBVol" {
		t.Errorf("user 2: got %q", got)
	}
	if got := personaVolumeName(3); got != "TenantAVol" {
		t.Errorf("user 3: got %q", got)
	}
}
