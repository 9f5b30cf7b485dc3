package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newIdentityCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Manage vault identities",
	}
	cmd.AddCommand(newIdentityCreateCmd(c), newIdentityListCmd(c))
	return cmd
}

func newIdentityCreateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "create [label]",
		Short: "Derive a new identity from the vault's master seed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.unlock(cmd); err != nil {
				return err
			}
			ident, err := c.svc.CreateIdentity(strings.Join(args, ""))
			if err != nil {
				return err
			}
			words, err := c.svc.SafetyWords(ident.ID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s created %s\n", successMark(), label(ident.Label))
			fmt.Fprintf(out, "  id:    %s\n", ident.ID)
			fmt.Fprintf(out, "  did:   %s\n", ident.DID)
			fmt.Fprintf(out, "  words: %s\n", words)
			return nil
		},
	}
}

func newIdentityListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List identities in creation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.unlock(cmd); err != nil {
				return err
			}
			list, err := c.svc.GetIdentities()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, muted("no identities yet; run `satya identity create`"))
				return nil
			}
			for _, ident := range list {
				words, err := c.svc.SafetyWords(ident.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%d. %s  %s\n", ident.Index+1, label(ident.Label), ident.DID)
				fmt.Fprintf(out, "   %s %s\n", muted(ident.CreatedAt.Format("2006-01-02 15:04:05Z07:00")), words)
			}
			return nil
		},
	}
}
