package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/erauner12/firerest/internal/metrics"
	"github.com/erauner12/firerest/pkg/client"
	"github.com/erauner12/firerest/pkg/config"
	"github.com/erauner12/firerest/pkg/credstore"
)

// app carries the flags shared by every subcommand and the lazily built
// client.
type app struct {
	out io.Writer

	configPath string
	email      string
	password   string
	redisURL   string
	rateLimit  float64
	verbose    bool

	client  *client.Client
	cleanup []func()
}

// execute runs the command line in args and releases everything connect
// opened, whether or not the command succeeds.
func (a *app) execute(ctx context.Context, args []string) error {
	defer a.close()
	root := a.rootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "firerest",
		Short:         "Command-line access to the identity, data-store, document, storage and messaging services",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if a.verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", env("FIREREST_CONFIG", ""), "YAML settings file (env FIREREST_CONFIG); FIREREST_* variables are used when unset")
	flags.StringVar(&a.email, "email", env("FIREREST_EMAIL", ""), "sign in with this email before running the command")
	flags.StringVar(&a.password, "password", env("FIREREST_PASSWORD", ""), "password for --email")
	flags.StringVar(&a.redisURL, "redis-url", env("FIREREST_REDIS_URL", ""), "persist the session in Redis between runs")
	flags.Float64Var(&a.rateLimit, "rate-limit", 0, "max requests per second (0 = unlimited)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		a.signInCmd(),
		a.signUpCmd(),
		a.tokenCmd(),
		a.dbCmd(),
		a.docCmd(),
		a.storageCmd(),
		a.sendCmd(),
		serveFakeCmd(),
	)
	return root
}

func (a *app) settings() (config.Settings, error) {
	if a.configPath != "" {
		return config.Load(a.configPath)
	}
	return config.FromEnv(), nil
}

// connect builds the client, restores a persisted session and signs in with
// --email/--password when nobody is signed in.
func (a *app) connect(ctx context.Context) (*client.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	settings, err := a.settings()
	if err != nil {
		return nil, err
	}

	var transportOpts []client.HTTPTransportOption
	if a.rateLimit > 0 {
		transportOpts = append(transportOpts, client.WithRateLimit(a.rateLimit, 1))
	}
	c, err := client.New(settings,
		client.WithTransport(client.NewHTTPTransport(transportOpts...)),
		client.WithLogger(log.Logger),
	)
	if err != nil {
		return nil, err
	}
	if err := metrics.Register(nil); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	if a.redisURL != "" {
		store, err := credstore.NewRedisStore(ctx, a.redisURL)
		if err != nil {
			return nil, err
		}
		detach, err := credstore.Attach(ctx, c, store)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		a.cleanup = append(a.cleanup, detach, func() { _ = store.Close() })
	}

	if a.email != "" && c.Auth().CurrentUser() == nil {
		if _, err := c.Auth().SignInWithPassword(ctx, a.email, a.password); err != nil {
			return nil, err
		}
	}

	a.client = c
	return c, nil
}

func (a *app) close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}

// print writes v as indented JSON.
func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseJSONArg decodes a command-line JSON value.
func parseJSONArg(raw string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("value is not valid JSON: %w", err)
	}
	return v, nil
}
