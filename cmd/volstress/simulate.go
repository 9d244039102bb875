package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/volstress/volstress/internal/arraysim"
)

func newSimulateCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "simulate",
		Short:   "Serve an in-memory PowerFlex array for workload development",
		Args:    cobra.NoArgs,
		PreRunE: bindCommandFlags,
		RunE: func(cmd *cobra.Command, args []string) error {
			server := arraysim.NewServer(a.log, arraysim.New(a.log), viper.GetBool("tls"))
			server.CertFile = viper.GetString("cert")
			server.KeyFile = viper.GetString("key")
			if err := server.Start(viper.GetString("addr")); err != nil {
				return err
			}
			<-cmd.Context().Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
	flags := cmd.Flags()
	flags.String("addr", ":8000", "listen address")
	flags.Bool("tls", true, "serve HTTPS (self-signed unless cert and key are given)")
	flags.String("cert", "", "TLS certificate file")
	flags.String("key", "", "TLS key file")
	return cmd
}
