// Command testserver runs the fake Pharos task API for local runs.
//
// Usage:
//
//	testserver [flags]
//
// Flags:
//
//	--port             Port to listen on (default: 8080)
//	--host             Host to bind to (default: localhost)
//	--fail-login       Addresses whose login always fails (repeatable)
//	--faucet-disabled  Report the faucet as unavailable
//	--reject-verify    Answer every task verification with verified=false
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pharosbot/testserver"
)

func main() {
	var (
		port           int
		host           string
		failLogin      []string
		faucetDisabled bool
		rejectVerify   bool
	)

	cmd := &cobra.Command{
		Use:   "testserver",
		Short: "Run a fake Pharos task API",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			opts := []testserver.Option{testserver.WithFailingLogin(failLogin...)}
			if faucetDisabled {
				opts = append(opts, testserver.WithFaucetDisabled())
			}
			if rejectVerify {
				opts = append(opts, testserver.WithRejectedVerification())
			}

			addr := net.JoinHostPort(host, fmt.Sprint(port))
			srv := &http.Server{
				Addr:              addr,
				Handler:           testserver.NewServer(opts...).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			fmt.Println("Pharos Test Server")
			fmt.Println("==================")
			fmt.Printf("Listening on http://%s\n\n", addr)
			fmt.Println("Endpoints:")
			fmt.Println("  GET  /health          - Health check")
			fmt.Println("  POST /user/login      - Signed login (?address&signature&invite_code)")
			fmt.Println("  POST /sign/in         - Daily check-in")
			fmt.Println("  GET  /faucet/status   - Faucet availability")
			fmt.Println("  POST /faucet/daily    - Claim faucet")
			fmt.Println("  GET  /user/profile    - Points")
			fmt.Println("  POST /task/verify     - Verify a task (?task_id&tx_hash)")
			fmt.Println()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "port to listen on")
	cmd.Flags().StringVar(&host, "host", "localhost", "host to bind to")
	cmd.Flags().StringSliceVar(&failLogin, "fail-login", nil, "addresses whose login always fails")
	cmd.Flags().BoolVar(&faucetDisabled, "faucet-disabled", false, "report the faucet as unavailable")
	cmd.Flags().BoolVar(&rejectVerify, "reject-verify", false, "answer every verification with verified=false")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
