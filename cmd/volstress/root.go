package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Returned when a run or report finds an unmet expectation; execute
// maps it to exit code 3 so CI pipelines can tell "load ran but missed
// its targets" from plain errors.
var errUnmetExpectation = errors.New("at least one expectation was not met")

type app struct {
	log *logrus.Entry
}

func execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	cmd := newRootCommand(a)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, errUnmetExpectation) {
			return 3
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "volstress",
		Short:         "Tenant volume load generator for PowerFlex authorization proxies",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfigFile(); err != nil {
				return err
			}
			log, err := newLogger()
			if err != nil {
				return err
			}
			a.log = log
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "path to a config file (default: volstress.yaml in . or /etc/volstress/)")
	flags.String("log-level", "info", "log level (trace|debug|info|warn|error)")
	flags.String("log-format", "text", "log format (text|json)")
	_ = viper.BindPFlags(flags)

	viper.SetEnvPrefix("VOLSTRESS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	cmd.AddCommand(newRunCommand(a))
	cmd.AddCommand(newReportCommand(a))
	cmd.AddCommand(newTokensCommand(a))
	cmd.AddCommand(newSimulateCommand(a))
	return cmd
}

// bindCommandFlags is the PreRunE of every subcommand, binding its
// local flags to the viper keys of the same names. Values then resolve
// flag first, then environment, then config file, then flag default.
// Subcommands reuse key names (results, count), so only the executing
// command's flags may be bound.
func bindCommandFlags(cmd *cobra.Command, _ []string) error {
	return viper.BindPFlags(cmd.Flags())
}

func loadConfigFile() error {
	if path := strings.TrimSpace(viper.GetString("config")); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
		return nil
	}
	viper.SetConfigName("volstress")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/volstress/")
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	return nil
}

func newLogger() (*logrus.Entry, error) {
	level, err := logrus.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	logger := logrus.New()
	logger.SetLevel(level)
	switch format := viper.GetString("log-format"); format {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return logrus.NewEntry(logger).WithField("app", "volstress"), nil
}
