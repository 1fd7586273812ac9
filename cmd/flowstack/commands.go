package main

import (
	"fmt"
	"io"

	"github.com/artpar/flowstack/internal/core/domain"
	"github.com/spf13/cobra"
)

// installFlags are the mode flags of install and cleanup.
type installFlags struct {
	auto        bool
	interactive bool
	minimal     bool
	noDomain    bool
	cleanupOnly bool
}

func newRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var configPath string
	var flags installFlags

	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "flowstack",
		Short: "Install an n8n automation stack on this host",
		Long: `flowstack installs n8n and optional companions (Qdrant, Caddy, Portainer,
Dozzle, Watchtower) as Docker containers, writes their configuration to the
config directory and verifies that every service comes up healthy.

Running without a subcommand is the same as "flowstack install".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.install(cmd, configPath, flags)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	})

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	addInstallFlags(root, &flags)

	install := &cobra.Command{
		Use:   "install",
		Short: "Install or reconfigure the stack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.install(cmd, configPath, flags)
		},
	}
	addInstallFlags(install, &flags)

	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove the installation: containers, network, volumes and config directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags.cleanupOnly = true
			return a.install(cmd, configPath, flags)
		},
	}
	cleanup.Flags().BoolVarP(&flags.auto, "auto", "y", false, "run unattended, without confirmation")
	cleanup.Flags().BoolVar(&flags.interactive, "interactive", false, "ask for confirmation even without a terminal")
	cleanup.Flags().String("name", "", "installation name")

	var limit int
	history := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show past runs, or the phases of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.history(cmd, configPath, args, limit)
		},
	}
	history.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show (0 for all)")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "flowstack %s (built %s)\n", Version, BuildTime)
		},
	}

	root.AddCommand(install, cleanup, history, version)
	return root
}

func addInstallFlags(cmd *cobra.Command, flags *installFlags) {
	f := cmd.Flags()
	f.BoolVarP(&flags.auto, "auto", "y", false, "run unattended: never prompt, fail instead of asking")
	f.BoolVar(&flags.interactive, "interactive", false, "prompt even without a terminal")
	f.BoolVar(&flags.minimal, "minimal", false, "install n8n only")
	f.BoolVar(&flags.noDomain, "no-domain", false, "ignore the configured domain and publish ports")
	f.BoolVar(&flags.cleanupOnly, "cleanup-only", false, "remove the installation and install nothing")
	f.String("domain", "", "root domain; services get subdomains of it")
	f.String("email", "", "admin email, used for certificates and logins")
	f.Bool("media", false, "build n8n with ffmpeg and imagemagick")
	f.String("name", "", "installation name, the prefix of every resource")
}
