package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/visium/internal/metrics"
	"github.com/me/visium/internal/session"
)

// lockedWriter serialises writes from the watch goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func newWatchCmd() *cobra.Command {
	var path, metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the session until interrupted",
		Long: "Stay on a view and follow the session: logins and logouts made by other " +
			"visium processes, and expiry. Leaving a protected view when the session ends " +
			"is reported as navigation to the login view.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			out := &lockedWriter{w: cmd.OutOrStdout()}

			router.OnNavigate(func(p string) {
				fmt.Fprintf(out, "navigate: %s\n", p)
			})
			router.Navigate(path)

			report := func(s session.Snapshot) {
				collector.RecordSessionState(s.State)
				if s.Session != nil {
					fmt.Fprintf(out, "session: %s %s\n", s.State, s.Session.Username)
				} else {
					fmt.Fprintf(out, "session: %s\n", s.State)
				}
			}
			unsubscribe := sessions.Subscribe(report)
			defer unsubscribe()
			report(session.Snapshot{State: sessions.State(), Session: sessions.Session(), ExpiresAt: sessions.ExpiresAt()})

			if metricsAddr != "" {
				stop, err := serveMetrics(ctx, metricsAddr, out)
				if err != nil {
					return err
				}
				defer stop()
			}

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				sessions.RunExpirySweep(ctx, cfg.SweepInterval)
			}()

			err := sessions.Sync(ctx)
			cancel()
			wg.Wait()
			return err
		},
	}

	cmd.Flags().StringVar(&path, "path", session.PathGallery, "View to stay on")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}

// serveMetrics exposes /metrics on addr until the returned stop is called.
func serveMetrics(ctx context.Context, addr string, out io.Writer) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           metrics.Routes(registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()
	fmt.Fprintf(out, "metrics: http://%s/metrics\n", ln.Addr())

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}, nil
}
