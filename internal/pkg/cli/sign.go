package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/ledgersync/internal/pkg/webhook"
)

type signOptions struct {
	*RootOptions
	Secret string
	File   string
}

// NewSignCommand prints the signature header value for a payload, for use
// with curl against a local instance.
func NewSignCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &signOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Compute the webhook signature for a payload",
		Example: `  ledgersyncctl sign --secret "$WEBHOOK_VERIFIER_TOKEN" --file payload.json
  cat payload.json | ledgersyncctl sign --secret token`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				body []byte
				err  error
			)
			if opts.File == "" || opts.File == "-" {
				body, err = io.ReadAll(cmd.InOrStdin())
			} else {
				body, err = os.ReadFile(opts.File)
			}
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}

			sig := webhook.ComputeSignature(body, opts.Secret)
			if opts.Format == "json" {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "{%q:%q}\n", webhook.SignatureHeader, sig)
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), sig)
			return err
		},
	}

	cmd.Flags().StringVar(&opts.Secret, "secret", "", "webhook verifier token (required)")
	_ = cmd.MarkFlagRequired("secret")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "payload file, stdin when empty or -")

	return cmd
}
