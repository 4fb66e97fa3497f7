package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// cancelTimeout bounds the provider cancellation call.
const cancelTimeout = 30 * time.Second

// newCancelCmd creates and returns the cancel command.
func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <batch-handle>",
		Short: "Cancel an in-progress inference batch",
		Long: `Ask the provider to cancel an in-progress inference batch.

Cancellation is asynchronous on the provider side. The worker's next poll
observes the cancelled state, finalizes the batch job, and resubmits the
bill keys while the retry ceiling allows.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCancel(cmd, args[0])
		},
	}
}

// runCancel requests provider-side cancellation and prints the batch state.
func runCancel(cmd *cobra.Command, batchHandle string) error {
	client, err := createInferenceClient(GetConfig())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
	defer cancel()

	info, err := client.CancelBatch(ctx, batchHandle)
	if err != nil {
		return fmt.Errorf("failed to cancel batch %s: %w", batchHandle, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Batch %s is now %s\n", info.Handle, info.State)
	return nil
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newCancelCmd())
}
