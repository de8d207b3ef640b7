package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scholarrag/zoterag/config"
)

func newConfigCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "config",
		Short: "Inspect or edit the active profile's configuration",
	}
	root.AddCommand(newConfigExportCmd())
	root.AddCommand(newConfigApplyCmd())
	return root
}

func newConfigExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print the active configuration as YAML",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			out, err := cfg.ExportYAML()
			if err != nil {
				return fmt.Errorf("rendering config: %w", err)
			}
			_, err = c.OutOrStdout().Write(out)
			return err
		},
	}
}

func newConfigApplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply <file.yaml>",
		Short: "Apply a YAML file of setting overrides onto the active profile",
		Long: `Reads a YAML file containing any subset of the config fields shown by
'zoterag config export' and writes the merged result back to the active
profile file. Unset fields are left untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := cfg.LoadYAMLOverrides(args[0]); err != nil {
				return fmt.Errorf("applying overrides: %w", err)
			}
			path, err := config.ResolvedPath()
			if err != nil {
				return fmt.Errorf("resolving config path: %w", err)
			}
			if err := cfg.Save(path); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}
			fmt.Fprintf(c.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
}
