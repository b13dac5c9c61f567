package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pharosbot/internal/collector"
	"pharosbot/internal/core"
	"pharosbot/internal/progress"
)

func newRunCmd(c *cli) *cobra.Command {
	var (
		inviteCode string
		only       string
		output     string
		quiet      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daily routine once for every account",
		Long: `Runs the daily routine once and prints a summary.

Press Ctrl+C once to stop after the current account, twice to abort
immediately.

Exit codes: 0 all accounts succeeded, 1 some account failed, 2 setup error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "text" && output != "json" {
				return setupError(fmt.Errorf("--output must be 'text' or 'json', got %q", output))
			}

			cfg, baseDir, err := c.loadConfig()
			if err != nil {
				return setupError(err)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			ledger, err := dialLedger(ctx, cfg, c.logger)
			if err != nil {
				return setupError(err)
			}
			defer ledger.Close()

			coll := collector.NewCollector()
			prog := progress.NewProgress(quiet)
			prog.SetOutput(cmd.ErrOrStderr())

			store := c.accountStore(cfg, baseDir, only)
			runner := newRunner(cfg, store, ledger, core.MultiReporter{coll, prog}, c.logger)

			sigCh := make(chan os.Signal, 2)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case <-sigCh:
				case <-ctx.Done():
					return
				}
				prog.Print("Stopping after the current account (Ctrl+C again to abort)...")
				runner.Stop()
				select {
				case <-sigCh:
				case <-ctx.Done():
					return
				}
				prog.Print("Aborting...")
				cancel()
			}()

			if err := runner.Start(ctx, inviteCode); err != nil {
				return setupError(err)
			}
			prog.Start()
			runner.Wait()
			prog.Stop()
			coll.Close()

			snap := runner.Status()
			summary := collector.ComputeSummary(coll.Events())
			if output == "json" {
				collector.FormatJSON(cmd.OutOrStdout(), snap, summary)
			} else {
				collector.FormatText(cmd.OutOrStdout(), snap, summary)
			}

			if code := exitCode(snap); code != ExitSuccess {
				return &exitError{code: code, err: fmt.Errorf("%d of %d accounts failed", snap.Failed(), len(snap.Results))}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&inviteCode, "invite-code", "", "invite code sent with every login (default: config api.invite_code)")
	cmd.Flags().StringVar(&only, "account", "", "only run the account with this address")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")
	return cmd
}
