package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/sdlcfactory/internal/prompt"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage prompt templates",
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the prompt template names",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range prompt.Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

var templatesInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Write the built-in prompt templates to disk for editing",
	Long: `Copy the built-in prompt templates into a directory (default ~/.sdlc/templates,
or templates_dir from the config). Existing files are left untouched, so local
edits survive re-running the command.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			dir = cfg.TemplatesDir
		}
		if dir == "" {
			dir = prompt.DefaultDir()
		}

		written, err := prompt.Install(dir)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Installed %d template(s) into %s\n", len(written), dir)
		for _, name := range written {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
		}
		return nil
	},
}

func init() {
	templatesInstallCmd.Flags().String("dir", "", "target directory")
	templatesCmd.AddCommand(templatesListCmd)
	templatesCmd.AddCommand(templatesInstallCmd)
}
