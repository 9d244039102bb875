package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/volstress/volstress/internal/tokens"
)

func newTokensCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Provision the tenant token pool",
	}
	cmd.AddCommand(newTokensGenerateCommand(a))
	cmd.AddCommand(newTokensFetchCommand(a))
	return cmd
}

func newTokensGenerateCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "generate",
		Short:   "Mint signed tenant tokens into a token file",
		Args:    cobra.NoArgs,
		PreRunE: bindCommandFlags,
		RunE: func(cmd *cobra.Command, args []string) error {
			count := viper.GetInt("count")
			generated, err := tokens.Generate(count, viper.GetString("secret"), viper.GetString("role"))
			if err != nil {
				return err
			}
			output := viper.GetString("output")
			if err := tokens.WriteFile(output, generated); err != nil {
				return err
			}
			a.log.WithFields(logrus.Fields{"count": count, "file": output}).Info("token pool written")
			return nil
		},
	}
	flags := cmd.Flags()
	flags.IntP("count", "n", 500, "number of tenant tokens to mint")
	flags.String("secret", "secret", "shared signing secret the proxy validates with")
	flags.String("role", tokens.DefaultRole, "role claim bound to every tenant")
	flags.StringP("output", "o", "tokens.txt", "token file to write")
	return cmd
}

func newTokensFetchCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "fetch <array-url>",
		Short:   "Fetch session tokens from an array login endpoint",
		Args:    cobra.ExactArgs(1),
		PreRunE: bindCommandFlags,
		RunE: func(cmd *cobra.Command, args []string) error {
			fetched, err := tokens.Fetch(cmd.Context(), a.log, tokens.FetchConfig{
				Endpoint:                  args[0],
				Username:                  viper.GetString("username"),
				Password:                  viper.GetString("password"),
				Count:                     viper.GetInt("count"),
				Concurrency:               viper.GetInt("concurrency"),
				SkipCertificateValidation: viper.GetBool("insecure"),
			})
			if err != nil {
				return err
			}
			output := viper.GetString("output")
			if err := tokens.WriteFile(output, fetched); err != nil {
				return err
			}
			a.log.WithFields(logrus.Fields{"count": len(fetched), "file": output}).Info("token pool written")
			return nil
		},
	}
	flags := cmd.Flags()
	flags.IntP("count", "n", 500, "number of session tokens to fetch")
	flags.String("username", "admin", "login user")
	flags.String("password", "", "login password (or VOLSTRESS_PASSWORD)")
	flags.Int("concurrency", 8, "concurrent logins")
	flags.Bool("insecure", true, "skip TLS certificate validation")
	flags.StringP("output", "o", "tokens.txt", "token file to write")
	return cmd
}
