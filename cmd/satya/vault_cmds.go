package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newInitCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the vault, or check that the PIN opens an existing one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.unlock(cmd); err != nil {
				return err
			}
			list, err := c.svc.GetIdentities()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s vault ready at %s %s\n",
				successMark(), c.svc.Config().StorageRoot, muted(fmt.Sprintf("(%d identities)", len(list))))
			return nil
		},
	}
}

func newResetCmd(c *cli) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Move the vault aside and start over",
		Long: `Reset moves the current vault file aside (it is not deleted) so the next
init creates an empty vault with a fresh master seed. Identities in the old
vault become unreachable from this CLI.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes && !confirm(cmd, "Reset the vault? Existing identities will no longer be usable.") {
				return errors.New("reset aborted; pass --yes to confirm")
			}
			if _, err := c.svc.ResetVault(""); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s vault reset\n", successMark())
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "do not ask for confirmation")
	return cmd
}
