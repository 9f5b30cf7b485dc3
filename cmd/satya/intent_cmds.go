package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newScanCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <upi-link>",
		Short: "Parse a UPI payment link and print its fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := c.svc.ScanCode(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), parsed)
		},
	}
}

func newSignCmd(c *cli) *cobra.Command {
	var publish bool
	cmd := &cobra.Command{
		Use:   "sign <identity-id|did> <upi-link>",
		Short: "Sign a payment intent and print the envelope JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.unlock(cmd); err != nil {
				return err
			}
			envelope, err := c.svc.SignIntent(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), envelope)
			if !publish {
				return nil
			}
			// Signing is done; the vault is not needed for the relay call.
			c.svc.Lock()
			if _, err := c.svc.PublishIntent(cmdContext(cmd), envelope); err != nil {
				return err
			}
			c.reportPublished(cmd.ErrOrStderr())
			return nil
		},
	}
	cmd.Flags().BoolVar(&publish, "publish", false, "relay the envelope after signing")
	return cmd
}

func newPublishCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "publish [envelope.json|-]",
		Short: "Relay a previously signed envelope",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := "-"
			if len(args) == 1 {
				src = args[0]
			}
			envelope, err := readEnvelope(cmd, src)
			if err != nil {
				return err
			}
			if _, err := c.svc.PublishIntent(cmdContext(cmd), envelope); err != nil {
				return err
			}
			c.reportPublished(cmd.OutOrStdout())
			return nil
		},
	}
}

// reportPublished confirms a publish, or warns when the relay never leaves
// this process.
func (c *cli) reportPublished(w io.Writer) {
	if c.svc.RelayNetworked() {
		fmt.Fprintf(w, "%s published\n", successMark())
		return
	}
	fmt.Fprintf(w, "%s published to the in-process relay only; other processes will not see it (set relay.transport to nostr)\n", warnMark())
}

func readEnvelope(cmd *cobra.Command, src string) (string, error) {
	var (
		b   []byte
		err error
	)
	if src == "-" {
		b, err = io.ReadAll(cmd.InOrStdin())
	} else {
		b, err = os.ReadFile(src)
	}
	if err != nil {
		return "", fmt.Errorf("read envelope: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
