// Package cli implements the ledgersyncctl operator commands.
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/ledgersync/app/repository"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Reprocessor finishes or replays one delivery row inline.
type Reprocessor interface {
	Reprocess(ctx context.Context, rowID uint) (uint, error)
}

// Backend is what the delivery commands operate on.
type Backend struct {
	Deliveries repository.DeliveryRepository
	Replayer   Reprocessor
}

// Opener connects to the backend. The returned func releases it.
type Opener func(ctx context.Context) (*Backend, func(), error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string
	Open   Opener
}

// NewRootCommand creates the root command. open is only called by commands
// that need the database.
func NewRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{Open: open}

	cmd := &cobra.Command{
		Use:   "ledgersyncctl",
		Short: "Operate the ledgersync webhook pipeline",
		Long:  "Inspect and replay logged webhook deliveries, and sign payloads for manual testing.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewDeliveriesCommand(opts))
	cmd.AddCommand(NewSignCommand(opts))

	return cmd
}

func (o *RootOptions) backend(ctx context.Context) (*Backend, func(), error) {
	if o.Open == nil {
		return nil, nil, fmt.Errorf("no backend configured")
	}
	return o.Open(ctx)
}
