package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ngisweden/yggdrasil/session"
)

// newStatusCmd builds the project status inspection command.
func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <project_id>",
		Short: "Print the processing state of a project",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := session.Init(opts.dev, false); err != nil {
				return err
			}
			ctx := cmd.Context()
			projectID := args[0]

			eng, err := buildEngine(ctx, opts)
			if err != nil {
				return err
			}
			defer eng.close()

			doc, err := eng.docs.Get(ctx, projectID)
			if err != nil {
				return err
			}
			if doc == nil {
				return fmt.Errorf("project %s has no processing document", projectID)
			}

			// Round-trip through JSON so the YAML output uses the
			// document's wire field names.
			raw, err := json.Marshal(doc)
			if err != nil {
				return err
			}
			var view map[string]any
			if err := json.Unmarshal(raw, &view); err != nil {
				return err
			}
			out, err := yaml.Marshal(view)
			if err != nil {
				return err
			}
			cmd.Print(string(out))
			return nil
		},
	}
}
