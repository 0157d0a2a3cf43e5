package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/fengqlin/GrandR/internal/scaffold"
)

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a new workspace",
		Long: `Create a grandr workspace skeleton: grandr.yaml, the vault and
reports directories, and a .gitignore for generated artifacts.

Defaults to the current directory.

Example:
  grandr init
  grandr init ./my-study`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "." {
				if wd, err := os.Getwd(); err == nil {
					dir = wd
				}
			}
			if err := scaffold.Init(dir); err != nil {
				return WrapExitError(ExitCommandError, "failed to initialize workspace", err)
			}

			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}
			return out.SuccessText("initialized workspace in "+dir, map[string]string{"dir": dir})
		},
	}
	return cmd
}
