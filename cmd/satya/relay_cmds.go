package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"satya/go-core/internal/intent"
	"satya/go-core/internal/vaulterr"
)

func newFetchCmd(c *cli) *cobra.Command {
	var (
		limit   int
		timeout time.Duration
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Show recent envelopes seen on the relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			envs, err := c.svc.FetchRecent(cmdContext(cmd), limit, timeout)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), envs)
			}
			if len(envs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), muted("no envelopes"))
				return nil
			}
			for _, env := range envs {
				printEnvelope(cmd.OutOrStdout(), env)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum envelopes to show")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "relay query timeout")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print envelopes as JSON")
	return cmd
}

func newWatchCmd(c *cli) *cobra.Command {
	var (
		interval    time.Duration
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the relay and print new envelopes until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmdContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			addr := metricsAddr
			if addr == "" {
				addr = c.svc.Config().MetricsAddr
			}
			if addr != "" {
				srv := &http.Server{Addr: addr, Handler: c.svc.Metrics().Handler(), ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						fmt.Fprintln(cmd.ErrOrStderr(), errorMark(), "metrics server:", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}
			return watchLoop(ctx, c, cmd.OutOrStdout(), cmd.ErrOrStderr(), interval)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "poll interval")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address (default from config)")
	return cmd
}

func watchLoop(ctx context.Context, c *cli, out, errOut io.Writer, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	seen := make(map[string]struct{})
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		envs, err := c.svc.FetchRecent(ctx, 50, interval)
		switch {
		case err == nil:
			// Oldest first so the terminal reads chronologically.
			for i := len(envs) - 1; i >= 0; i-- {
				if _, ok := seen[envs[i].CID]; ok {
					continue
				}
				seen[envs[i].CID] = struct{}{}
				printEnvelope(out, envs[i])
			}
		case ctx.Err() != nil:
			return nil
		case vaulterr.KindOf(err).Recoverable():
			fmt.Fprintln(errOut, errorMark(), err)
		default:
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func printEnvelope(w io.Writer, env intent.SignedEnvelope) {
	upi := env.Payload.UPI
	fmt.Fprintf(w, "%s %s %s %s -> %s (%s)\n",
		muted(env.Payload.Time().UTC().Format(time.RFC3339)),
		verifiedMark(env.Verified),
		label(upi.Amount+" "+upi.Currency),
		env.SignerDID,
		upi.VPA,
		upi.Name,
	)
	fmt.Fprintf(w, "  %s\n", muted(env.CID))
}
