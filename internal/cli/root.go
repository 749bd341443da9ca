// Package cli is the command line of the storefront.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/abgdnv/storefront/internal/config"
	"github.com/abgdnv/storefront/pkg/bootstrap"
	"github.com/abgdnv/storefront/pkg/config/configloader"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
	EnvFile    string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of the storefront CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "storefront",
		Short: "Storefront session, cart and checkout",
		Long: `Storefront keeps a signed-in user's shopping cart in sync with the storefront API.

Run "storefront serve" for the HTTP API used by the web UI, or use the
account, cart and order commands directly. The signed-in user is kept in
the session database (session.path) between invocations.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "config file (default ./config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "dotenv file (default ./.env)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSignInCommand(opts))
	cmd.AddCommand(NewSignUpCommand(opts))
	cmd.AddCommand(NewSignOutCommand(opts))
	cmd.AddCommand(NewWhoAmICommand(opts))
	cmd.AddCommand(NewCartCommand(opts))
	cmd.AddCommand(NewCheckoutCommand(opts))
	cmd.AddCommand(NewOrdersCommand(opts))

	return cmd
}

func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configloader.WithConfigFile(o.ConfigFile), configloader.WithEnvFile(o.EnvFile))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	return cfg, nil
}

// logger writes JSON logs to w; --verbose forces debug.
func (o *RootOptions) logger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := cfg.Log.Level
	if o.Verbose {
		level = "debug"
	}
	return bootstrap.NewLoggerTo(w, level)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format: o.Format,
		Writer: cmd.OutOrStdout(),
	}
}
