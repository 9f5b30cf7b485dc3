package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"satya/go-core/internal/doctor"
)

func newDoctorCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the vault root and relay settings without unlocking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := doctor.Run(c.cfg, time.Now())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(out, report); err != nil {
					return err
				}
			} else {
				for _, check := range report.Checks {
					mark := successMark()
					if !check.Pass {
						mark = errorMark()
					}
					line := fmt.Sprintf("%s %s", mark, check.Name)
					if check.Reason != "" {
						line += " " + muted("("+check.Reason+")")
					}
					fmt.Fprintln(out, line)
				}
				if n := len(report.ResetArchives); n > 0 {
					fmt.Fprintf(out, "%s %d archived vault(s) from earlier resets\n", muted("note:"), n)
				}
			}
			if !report.Ready {
				return fmt.Errorf("doctor: not ready")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
