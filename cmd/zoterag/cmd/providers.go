package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scholarrag/zoterag/internal/llm"
)

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List every registered LM provider",
		RunE: func(c *cobra.Command, args []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}
			defer svc.Close()

			for _, p := range svc.ListProviders() {
				requiresKey := ""
				if p.RequiresAPIKey {
					requiresKey = " (requires api key)"
				}
				fmt.Fprintf(c.OutOrStdout(), "%-12s %s — default model %s%s\n", p.ID, p.Label, p.DefaultModel, requiresKey)
			}
			return nil
		},
	}
}

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models <provider>",
		Short: "List models available from a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}
			defer svc.Close()

			models, err := svc.ListModels(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("listing models for %s: %w", args[0], err)
			}
			for _, m := range models {
				fmt.Fprintf(c.OutOrStdout(), "%-30s %s\n", m.ID, m.Name)
			}
			return nil
		},
	}
}

func newValidateCmd() *cobra.Command {
	var apiKey string
	var baseURL string

	cmd := &cobra.Command{
		Use:   "validate <provider>",
		Short: "Check a provider's credentials with a cheap authenticated round-trip",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}
			defer svc.Close()

			err = svc.Validate(context.Background(), args[0], llm.Credentials{APIKey: apiKey, BaseURL: baseURL})
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			fmt.Fprintf(c.OutOrStdout(), "%s: credentials valid\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key to validate")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "override base URL (for local servers)")
	return cmd
}
