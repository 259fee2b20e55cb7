package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/erauner12/firerest/internal/fakebackend"
	"github.com/erauner12/firerest/internal/metrics"
)

func serveFakeCmd() *cobra.Command {
	var addr, apiKey, secret string
	var tokenTTL time.Duration

	cmd := &cobra.Command{
		Use:   "serve-fake",
		Short: "Run the in-memory fake backend for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := metrics.Register(nil); err != nil {
				return err
			}
			fake := fakebackend.New(apiKey,
				fakebackend.WithSecret(secret),
				fakebackend.WithTokenTTL(tokenTTL),
			)

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			mux.Handle("/", fake.Routes())

			httpServer := &http.Server{
				Addr:         addr,
				Handler:      mux,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 30 * time.Second,
				IdleTimeout:  120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().
					Str("addr", addr).
					Str("authURL", "http://"+displayAddr(addr)+"/v1/accounts").
					Str("tokenURL", "http://"+displayAddr(addr)+"/v1/token").
					Str("databaseURL", "http://"+displayAddr(addr)+"/db").
					Msg("starting fake backend")
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err, ok := <-errCh:
				if ok {
					return err
				}
				return nil
			case <-cmd.Context().Done():
			}

			log.Info().Msg("shutting down gracefully...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("HTTP server shutdown error")
				return err
			}
			log.Info().Msg("fake backend stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", env("FIREREST_FAKE_ADDR", "127.0.0.1:9099"), "listen address")
	cmd.Flags().StringVar(&apiKey, "api-key", env("FIREREST_API_KEY", "fake-api-key"), "API key clients must send")
	cmd.Flags().StringVar(&secret, "secret", env("FIREREST_FAKE_SECRET", "fake-backend-secret"), "HS256 token signing secret")
	cmd.Flags().DurationVar(&tokenTTL, "token-ttl", time.Hour, "id token lifetime")
	return cmd
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
