// Package commands provides the ygg command-line interface.
package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	// Realms register themselves via init().
	_ "github.com/ngisweden/yggdrasil/realm/smartseq3"
	_ "github.com/ngisweden/yggdrasil/realm/tenx"
)

// Version is the release version stamped at build time.
var Version = "0.1.0"

// errUsage marks argument errors so main can exit with code 2.
var errUsage = errors.New("usage error")

// rootOptions carries the persistent flags shared by all subcommands.
type rootOptions struct {
	dev       bool
	configDir string
}

// NewRootCmd builds the ygg command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:     "ygg",
		Short:   "Yggdrasil bioinformatics pipeline orchestrator",
		Version: Version,
		Long: `Yggdrasil watches the projects database and instrument filesystems for
new work, resolves each project to a processing realm, and drives that
realm through submission, monitoring and post-processing of HPC jobs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVar(&opts.dev, "dev", false, "run in development mode (mock scheduler, dev config overlay)")
	cmd.PersistentFlags().StringVar(&opts.configDir, "config-dir", "config", "directory containing the JSON configuration files")
	cmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})

	cmd.AddCommand(newDaemonCmd(opts))
	cmd.AddCommand(newRunDocCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))

	return cmd
}

// Execute runs the CLI and maps errors to process exit codes: 0 for
// normal shutdown, 2 for argument errors, 1 otherwise.
func Execute() int {
	return run(NewRootCmd())
}

func run(cmd *cobra.Command) int {
	err := cmd.Execute()
	if err == nil {
		return 0
	}
	// Cobra reports unknown subcommands with a plain error; count them as
	// usage errors like any other bad argument.
	if strings.HasPrefix(err.Error(), "unknown command") {
		err = fmt.Errorf("%w: %v", errUsage, err)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	if errors.Is(err, errUsage) {
		return 2
	}
	return 1
}

// exactArgs wraps cobra's validator so violations count as usage errors.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("%w: %s expects %d argument(s), got %d", errUsage, cmd.Name(), n, len(args))
		}
		return nil
	}
}
