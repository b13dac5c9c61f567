// Command pharosbot runs the Pharos testnet daily routine for a set of
// accounts, either once from the terminal or behind a small control API.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pharosbot/internal/account"
	"pharosbot/internal/config"
)

const (
	ExitSuccess       = 0
	ExitAccountFailed = 1
	ExitError         = 2
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func setupError(err error) error {
	return &exitError{code: ExitError, err: err}
}

// cli holds the global flags and the logger shared by all subcommands.
type cli struct {
	configPath string
	verbose    bool
	logger     *zap.Logger
	stdout     io.Writer
	stderr     io.Writer
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "pharosbot",
		Short: "Pharos testnet daily task runner",
		Long: `pharosbot logs every configured account into the Pharos task service,
performs the daily check-in and faucet claim, then runs the on-chain rounds
(transfers, wraps, swaps, liquidity) and submits each transaction for
verification. Accounts are processed one at a time in random order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.logger != nil {
				return nil
			}
			zc := zap.NewProductionConfig()
			if c.verbose {
				zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := zc.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			c.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to YAML config file (default: built-in testnet config)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging (request/response and transaction detail)")

	root.AddCommand(newRunCmd(c))
	root.AddCommand(newServeCmd(c))
	root.AddCommand(newAccountsCmd(c))
	root.AddCommand(newVersionCmd(c))
	return root
}

// loadConfig reads --config, or returns the validated defaults when unset.
// The second return value is the directory relative paths resolve against.
func (c *cli) loadConfig() (*config.Config, string, error) {
	if c.configPath == "" {
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, "", err
		}
		return cfg, "", nil
	}
	cfg, err := config.LoadConfig(c.configPath)
	if err != nil {
		return nil, "", err
	}
	return cfg, filepath.Dir(c.configPath), nil
}

func (c *cli) accountStore(cfg *config.Config, baseDir, only string) account.Store {
	var store account.Store = account.NewFileStore(cfg.Accounts.File, baseDir)
	if only != "" {
		store = account.Filter(store, only)
	}
	return store
}

func run(args []string, stdout, stderr io.Writer) int {
	c := &cli{stdout: stdout, stderr: stderr}
	root := newRootCmd(c)
	root.SetArgs(args)

	err := root.Execute()
	if err == nil {
		return ExitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil && ee.code == ExitError {
			fmt.Fprintf(stderr, "error: %v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return ExitError
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
