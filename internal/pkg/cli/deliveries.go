package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/ledgersync/app/repository"
)

type listOptions struct {
	*RootOptions
	Status     string
	EntityType string
	Limit      int
	Offset     int
}

// NewDeliveriesCommand groups the delivery log commands.
func NewDeliveriesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deliveries",
		Short: "Inspect and replay logged webhook deliveries",
	}
	cmd.AddCommand(newListCommand(rootOpts))
	cmd.AddCommand(newShowCommand(rootOpts))
	cmd.AddCommand(newReplayCommand(rootOpts))
	return cmd
}

func newListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &listOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deliveries, newest first",
		Example: `  ledgersyncctl deliveries list --status failed
  ledgersyncctl deliveries list --entity-type Invoice --limit 5 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, release, err := opts.backend(ctx)
			if err != nil {
				return err
			}
			defer release()

			rows, err := b.Deliveries.List(ctx, repository.DeliveryFilter{
				Status:     opts.Status,
				EntityType: opts.EntityType,
			}, opts.Offset, opts.Limit)
			if err != nil {
				return fmt.Errorf("list deliveries: %w", err)
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			if len(rows) == 0 {
				fmt.Fprintln(out, "No deliveries found.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tENTITY\tACTION\tSIGNED\tERRORS\tRECEIVED")
			for _, d := range rows {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\t%d\t%s\n",
					d.ID, d.Status, d.EntityType, d.Action, d.SignatureValid, len(d.Errors),
					d.ReceivedAt.UTC().Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "filter by status (received|completed|failed)")
	cmd.Flags().StringVar(&opts.EntityType, "entity-type", "", "filter by first entity type")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum rows")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "rows to skip")

	return cmd
}

func newShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one delivery including its raw payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRowID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			b, release, err := opts.backend(ctx)
			if err != nil {
				return err
			}
			defer release()

			d, err := b.Deliveries.GetByID(ctx, id)
			if err != nil {
				return fmt.Errorf("load delivery %d: %w", id, err)
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(d)
			}

			fmt.Fprintf(out, "ID:          %d\n", d.ID)
			fmt.Fprintf(out, "Delivery:    %s\n", d.DeliveryID)
			fmt.Fprintf(out, "Request:     %s\n", d.RequestID)
			fmt.Fprintf(out, "Status:      %s\n", d.Status)
			fmt.Fprintf(out, "Entity:      %s %s\n", d.EntityType, d.Action)
			fmt.Fprintf(out, "Signed:      %t\n", d.SignatureValid)
			if d.VerificationWarning != "" {
				fmt.Fprintf(out, "Warning:     %s\n", d.VerificationWarning)
			}
			if d.ReplayOf != nil {
				fmt.Fprintf(out, "Replay of:   %d\n", *d.ReplayOf)
			}
			fmt.Fprintf(out, "Received:    %s\n", d.ReceivedAt.UTC().Format(time.RFC3339))
			fmt.Fprintf(out, "Duration:    %dms\n", d.ProcessingTimeMs)
			printList(cmd, "Processed", d.ProcessedEntities)
			printList(cmd, "Skipped", d.SkippedEntities)
			printList(cmd, "Errors", d.Errors)
			fmt.Fprintln(out, "Payload:")
			fmt.Fprintln(out, d.RawPayload)
			if d.PayloadTruncated {
				fmt.Fprintf(out, "(truncated, archive key %q)\n", d.PayloadArchiveKey)
			}
			return nil
		},
	}
}

func newReplayCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay ID",
		Short: "Reprocess a delivery inline",
		Long: `Reprocess a delivery inline. A delivery still in received is finished in
place; a completed or failed delivery is replayed as a new row linked to the
original.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRowID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			b, release, err := opts.backend(ctx)
			if err != nil {
				return err
			}
			defer release()

			processed, err := b.Replayer.Reprocess(ctx, id)
			if err != nil {
				return fmt.Errorf("replay delivery %d: %w", id, err)
			}
			d, err := b.Deliveries.GetByID(ctx, processed)
			if err != nil {
				return fmt.Errorf("load delivery %d: %w", processed, err)
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return json.NewEncoder(out).Encode(map[string]interface{}{
					"source_id": id,
					"row_id":    processed,
					"status":    d.Status,
					"errors":    d.Errors,
				})
			}
			fmt.Fprintf(out, "delivery %d processed as row %d: %s\n", id, processed, d.Status)
			printList(cmd, "Errors", d.Errors)
			return nil
		},
	}
}

func parseRowID(arg string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(arg), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid delivery id %q", arg)
	}
	return uint(id), nil
}

func printList(cmd *cobra.Command, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s:\n", label)
	for _, item := range items {
		fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", item)
	}
}
