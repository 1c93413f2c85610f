package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/craftwork/sessioncore/internal/config"
	"github.com/craftwork/sessioncore/pkg/api"
	"github.com/craftwork/sessioncore/pkg/cache"
	"github.com/craftwork/sessioncore/pkg/metrics"
	"github.com/craftwork/sessioncore/pkg/nav"
	"github.com/craftwork/sessioncore/pkg/resolve"
	"github.com/craftwork/sessioncore/pkg/session"
	"github.com/craftwork/sessioncore/pkg/token"
	"github.com/craftwork/sessioncore/pkg/transport"
)

// core bundles the wired-up session components for one CLI invocation.
type core struct {
	cfg       *config.Config
	state     *session.State
	store     cache.Store
	client    *api.Client
	resolver  *resolve.Resolver
	refresher *token.Coordinator
	recorder  *nav.Recorder
	log       *slog.Logger
}

// buildCore loads config and wires the session core. The navigation sink
// is a recorder so commands can report where a browser would have gone.
func buildCore(cmd *cobra.Command) (*core, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	timeout, err := cfg.ParseTimeout()
	if err != nil {
		return nil, err
	}
	ttl, err := cfg.ParseCacheTTL()
	if err != nil {
		return nil, err
	}

	tr, err := transport.NewHTTP(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	state := session.NewState()
	recorder := &nav.Recorder{}
	m := metrics.New(metrics.WithSubsystem("cli"))
	refresher := token.NewCoordinator(tr, token.WithTimeout(timeout), token.WithLogger(log))
	client := api.NewClient(state, tr, refresher, recorder,
		api.WithLogger(log),
		api.WithMetrics(m),
		api.WithTracer("sessionctl"),
	)
	resolver := resolve.New(state, client, refresher, recorder,
		resolve.WithCache(store),
		resolve.WithCacheTTL(ttl),
		resolve.WithLogger(log),
		resolve.WithMetrics(m),
	)

	return &core{
		cfg:       cfg,
		state:     state,
		store:     store,
		client:    client,
		resolver:  resolver,
		refresher: refresher,
		recorder:  recorder,
		log:       log,
	}, nil
}

func openStore(cfg *config.Config) (cache.Store, error) {
	switch cfg.Cache {
	case "memory":
		return cache.NewMemoryStore(), nil
	case "file":
		return cache.NewFileStore(cfg.CachePath)
	case "sqlite":
		return cache.NewSQLiteStore(cfg.CachePath)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache)
	}
}

func (c *core) close() {
	if c.store != nil {
		c.store.Close()
	}
}

// reportNavigation prints any redirect the core issued, since there is no
// browser to follow it.
func (c *core) reportNavigation() {
	if last := c.recorder.Last(); last.Route != "" {
		fmt.Printf("redirect -> %s (replace=%v)\n", last.Route, last.Options.Replace)
	}
}
