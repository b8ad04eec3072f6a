package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// Execute runs the ramlenhance CLI. Cancelling ctx stops loading and type
// expansion.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd constructs the root command so tests can exercise the CLI easily.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ramlenhance",
		Short: "Enhance RAML parser JSON for documentation tooling",
		Long: "ramlenhance takes the JSON a RAML parser produces (or an OpenAPI/Swagger document) " +
			"and expands types, resolves security schemes and computes full resource URIs.",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	// Convert Cobra flag errors (like unknown flags) into friendly usage errors
	// that also show the command's help text.
	cmd.SetFlagErrorFunc(flagError)

	cmd.PersistentFlags().StringP("config", "c", "", "Config file path (YAML, JSON or TOML)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging output")
	cmd.PersistentFlags().String("log-file", "", "Also write logs to this file (rotated)")

	for _, sub := range []*cobra.Command{newEnhanceCmd(), newInitCmd()} {
		sub.SetFlagErrorFunc(flagError)
		cmd.AddCommand(sub)
	}

	return cmd
}

func flagError(c *cobra.Command, err error) error {
	return newUsageError(fmt.Sprintf("%v\n\n%s", err, c.UsageString()))
}
