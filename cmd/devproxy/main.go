package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rathix/devproxy/internal/config"
)

// Version is injected at build time using ldflags.
var Version = "(unknown)"

const rootLongDesc string = `devproxy is a local development server for a single-page application.

It serves the frontend and forwards API calls under /api to a backend,
either stripping the prefix (profile "lan", backend on 192.168.1.8:5000)
or keeping it (profile "local", backend on localhost:5000). The frontend
reads its API base URL from VITE_API_URL and falls back to /api.

Running devproxy without a subcommand is the same as "devproxy serve".`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	o := optionsFromEnv()

	root := &cobra.Command{
		Use:           "devproxy",
		Short:         "Development server with API proxy rules",
		Long:          rootLongDesc,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), o)
		},
	}
	bindConfigFlag(root, o)
	bindServeFlags(root, o)

	root.AddCommand(
		newServeCmd(o),
		newResolveCmd(o),
		newCheckCmd(o),
		newProfilesCmd(o),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the devproxy version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "devproxy version %s\n", Version)
		},
	}
}

// loadConfigFile loads path, or returns an empty config when path is empty.
// A parse failure is returned as err; validation problems are returned in
// warnings alongside the cleaned config.
func loadConfigFile(path string) (cfg *config.Config, warnings []error, err error) {
	if path == "" {
		return &config.Config{}, nil, nil
	}
	cfg, errs := config.Load(path)
	if cfg == nil {
		return nil, nil, fmt.Errorf("config %s: %w", path, errors.Join(errs...))
	}
	return cfg, errs, nil
}
