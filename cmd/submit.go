package cmd

import (
	"billevents/internal/application/common/slogger"
	"billevents/internal/domain/messaging"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// publishTimeout bounds one CLI publish, including the NATS connect.
const publishTimeout = 30 * time.Second

// newSubmitCmd creates and returns the submit command.
func newSubmitCmd() *cobra.Command {
	var (
		ids    []string
		update bool
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Publish an extract job for a set of bills",
		Long: `Publish an extract job onto the work queue.

The worker consumes the job, loads each bill, and submits one inference
batch covering the requested bill keys. Pass --update to re-extract bills
that already have events.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSubmit(cmd, ids, update)
		},
	}

	cmd.Flags().StringSliceVar(&ids, "ids", nil, "Bill keys to submit (comma-separated or repeated)")
	cmd.Flags().BoolVar(&update, "update", false, "Re-extract bills that already have events")

	if err := cmd.MarkFlagRequired("ids"); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error marking ids flag required: %v\n", err)
	}

	return cmd
}

// runSubmit publishes one extract envelope covering the given bill keys.
func runSubmit(cmd *cobra.Command, ids []string, update bool) error {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			keys = append(keys, trimmed)
		}
	}
	if len(keys) == 0 {
		return errors.New("at least one bill key is required")
	}

	kind := messaging.KindNew
	if update {
		kind = messaging.KindUpdate
	}

	envelope, err := messaging.NewExtractEnvelope(messaging.ExtractPayload{
		BillKeys: keys,
		Kind:     kind,
	})
	if err != nil {
		return err
	}

	publisher, err := setupMessagePublisher(GetConfig())
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Disconnect(); err != nil {
			slogger.ErrorNoCtx("Error disconnecting message publisher", slogger.Fields{"error": err.Error()})
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := publisher.PublishExtract(ctx, envelope); err != nil {
		return fmt.Errorf("failed to publish extract job: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Published extract job %s for %d bill(s)\n", envelope.MessageID, len(keys))
	return nil
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newSubmitCmd())
}
