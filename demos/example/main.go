// Command example is a self-contained tour of the library surface: it
// starts the in-process array simulator, provisions a small token pool,
// runs the ordered volume lifecycle scenario at low load and renders the
// report. No proxy, no real array and nothing on disk outside a
// temporary directory.
//
// The same wiring through the command line:
//
//	volstress simulate --addr 127.0.0.1:8000 --tls=false &
//	volstress tokens generate -n 4
//	volstress run --users 3 --plateau 10s http://127.0.0.1:8000
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	volstress "github.com/volstress/volstress/core"
	"github.com/volstress/volstress/internal/arraysim"
	"github.com/volstress/volstress/internal/tokens"
	"github.com/volstress/volstress/internal/workload"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log := logrus.NewEntry(logger).WithField("app", "example")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	server := arraysim.NewServer(log, arraysim.New(log), false)
	if err := server.Start("127.0.0.1:0"); err != nil {
		return err
	}
	defer server.Shutdown(context.Background())

	workDir, err := os.MkdirTemp("", "volstress-example-")
	if err != nil {
		return err
	}
	log.WithField("dir", workDir).Info("keeping tokens and results")

	pool, err := tokens.Generate(4, "secret", tokens.DefaultRole)
	if err != nil {
		return err
	}
	tokensFile := filepath.Join(workDir, "tokens.txt")
	if err := tokens.WriteFile(tokensFile, pool); err != nil {
		return err
	}

	cfg := workload.Config{
		Target:           "http://" + server.Addr(),
		IntendedEndpoint: "https://10.247.66.155:8000",
		PluginID:         "csi-vxflexos",
		SystemID:         arraysim.SystemID,
		StoragePoolID:    arraysim.StoragePoolID,
		StoragePoolName:  arraysim.StoragePoolName,
		VolumeSizeKb:     "100",
		TokensFile:       tokensFile,
		Load: volstress.LoadConfig{
			LoopingUsers: 3,
			LoopDelay:    volstress.RandomInterval{Min: 100 * time.Millisecond, Max: 250 * time.Millisecond},
			RampUp:       2 * time.Second,
			Plateau:      10 * time.Second,
			RampDown:     2 * time.Second,
		},
	}

	runner := volstress.NewRunner(log)
	runner.ResultsDir = filepath.Join(workDir, "results")
	if err := workload.Register(runner, cfg, workload.ScenarioLifecycle); err != nil {
		return err
	}
	if err := runner.Run(ctx); err != nil {
		return err
	}

	report, err := volstress.GenerateResultsReport(log, runner.ResultsDir)
	if err != nil {
		return err
	}
	if report.HasUnmetExpectation {
		return fmt.Errorf("expectations not met, see %s", runner.ResultsDir)
	}
	log.Info("all expectations met")
	return nil
}
