package commands

import (
	"github.com/spf13/cobra"

	"github.com/ngisweden/yggdrasil/session"
)

// newRunDocCmd builds the single-document processing command.
func newRunDocCmd(opts *rootOptions) *cobra.Command {
	var manualSubmit bool

	cmd := &cobra.Command{
		Use:   "run-doc <doc_id>",
		Short: "Process a single project document and exit",
		Long: `Fetch one document from the projects database, resolve its realm and
run a full lifecycle pass without starting any watchers.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := session.Init(opts.dev, manualSubmit); err != nil {
				return err
			}
			ctx := cmd.Context()

			eng, err := buildEngine(ctx, opts)
			if err != nil {
				return err
			}
			defer eng.close()

			return eng.core.RunOnce(ctx, args[0])
		},
	}
	cmd.Flags().BoolVarP(&manualSubmit, "manual-submit", "m", false,
		"register samples but leave HPC submission to the operator")
	return cmd
}
