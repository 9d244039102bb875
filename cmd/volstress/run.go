package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	volstress "github.com/volstress/volstress/core"
	"github.com/volstress/volstress/internal/workload"
)

func newRunCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run [flags] <target-url>",
		Short:   "Run load scenarios against an authorization proxy or array",
		Args:    cobra.ExactArgs(1),
		PreRunE: bindCommandFlags,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd, a, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringSlice("scenario", []string{"all"}, "scenario to run, repeatable ("+strings.Join(workload.Names(), ", ")+" or all)")
	flags.Int("users", 10, "looping users per scenario")
	flags.Duration("ramp-up", 10*time.Second, "time over which users are started")
	flags.Duration("plateau", time.Minute, "time all users loop at full strength")
	flags.Duration("ramp-down", 10*time.Second, "time over which users are retired")
	flags.Duration("start-delay", 0, "maximum random delay before a scenario starts")
	flags.Duration("think-min", time.Second, "minimum think time between loops")
	flags.Duration("think-max", 2500*time.Millisecond, "maximum think time between loops")
	flags.String("results", "results", "directory for result archives and reports (empty disables archiving)")
	flags.Bool("no-report", false, "skip report generation after the run")
	flags.Bool("insecure", true, "skip TLS certificate validation (proxies present self-signed certificates)")
	flags.String("proxy", "", "outbound HTTP proxy URL")
	flags.String("user-agent", "volstress", "User-Agent header for requests without one")
	flags.Bool("tag-requests", false, "add scenario, step and user headers to every request")
	flags.Bool("verbose", false, "log every request and response at debug level")
	flags.String("metrics-addr", "", "listen address for the Prometheus metrics endpoint (empty disables)")
	flags.String("tokens-file", "tokens.txt", "file with one tenant access token per line")
	flags.String("plugin-id", "csi-vxflexos", "plugin name in the Forwarded header")
	flags.String("system-id", "7045c4cc20dffc0f", "array system id")
	flags.String("intended-endpoint", "https://10.247.66.155:8000", "array endpoint named in the Forwarded header")
	flags.String("storage-pool-id", "3df6b86600000000", "storage pool id for fixed-name creates")
	flags.String("storage-pool-name", "mypool", "storage pool name resolved by the lifecycle scenarios")
	flags.String("sdc-id", "", "fallback SDC id when the system reports none")
	flags.String("volume-size-kb", "100", "volume size in kilobytes, sent as a string")
	return cmd
}

func runLoad(cmd *cobra.Command, a *app, target string) error {
	cfg := workload.Config{
		Target:           strings.TrimSuffix(target, "/"),
		IntendedEndpoint: viper.GetString("intended-endpoint"),
		PluginID:         viper.GetString("plugin-id"),
		SystemID:         viper.GetString("system-id"),
		StoragePoolID:    viper.GetString("storage-pool-id"),
		StoragePoolName:  viper.GetString("storage-pool-name"),
		SdcID:            viper.GetString("sdc-id"),
		VolumeSizeKb:     viper.GetString("volume-size-kb"),
		TokensFile:       viper.GetString("tokens-file"),
		Load: volstress.LoadConfig{
			StartDelay:   volstress.RandomInterval{Max: viper.GetDuration("start-delay")},
			LoopingUsers: viper.GetInt("users"),
			LoopDelay: volstress.RandomInterval{
				Min: viper.GetDuration("think-min"),
				Max: viper.GetDuration("think-max"),
			},
			RampUp:   viper.GetDuration("ramp-up"),
			Plateau:  viper.GetDuration("plateau"),
			RampDown: viper.GetDuration("ramp-down"),
		},
	}
	if cfg.Load.LoopDelay.Min > cfg.Load.LoopDelay.Max {
		return fmt.Errorf("think-min (%s) exceeds think-max (%s)", cfg.Load.LoopDelay.Min, cfg.Load.LoopDelay.Max)
	}

	runner := volstress.NewRunner(a.log)
	runner.ResultsDir = viper.GetString("results")
	runner.SkipCertificateValidation = viper.GetBool("insecure")
	runner.Proxy = viper.GetString("proxy")
	runner.UserAgent = viper.GetString("user-agent")
	runner.TagRequests = viper.GetBool("tag-requests")
	runner.Verbose = viper.GetBool("verbose")

	if addr := viper.GetString("metrics-addr"); addr != "" {
		metrics := volstress.NewMetrics(a.log)
		if err := metrics.Serve(addr); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metrics.Shutdown(shutdownCtx)
		}()
		runner.Metrics = metrics
	}

	if err := workload.Register(runner, cfg, expandScenarioNames(viper.GetStringSlice("scenario"))...); err != nil {
		return err
	}
	if err := runner.Run(cmd.Context()); err != nil {
		return err
	}

	if viper.GetBool("no-report") || runner.ResultsDir == "" {
		return nil
	}
	report, err := volstress.GenerateResultsReport(a.log, runner.ResultsDir)
	if err != nil {
		return err
	}
	if report.HasUnmetExpectation {
		return errUnmetExpectation
	}
	return nil
}

// expandScenarioNames replaces the "all" keyword with every known name.
func expandScenarioNames(names []string) []string {
	for _, name := range names {
		if name == "all" {
			return workload.Names()
		}
	}
	return names
}
