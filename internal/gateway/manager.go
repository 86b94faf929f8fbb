package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/halcyonchat/gateway/internal/config"
	"github.com/halcyonchat/gateway/internal/logger"
	"github.com/halcyonchat/gateway/internal/rest"
	"github.com/halcyonchat/gateway/internal/shard"
	"github.com/halcyonchat/gateway/internal/store"
	"github.com/halcyonchat/gateway/internal/tracing"
)

// Manager runs one client per shard against a shared identify
// coordinator, event channel and resume store.
type Manager struct {
	cfg   *config.Config
	rest  *rest.Client
	coord *shard.Coordinator
	store *store.ResumeStore
	log   *zap.Logger

	events chan Event

	mu         sync.Mutex
	clients    []*Client
	gatewayURL string
}

// NewManager wires the collaborators from config.
func NewManager(cfg *config.Config, log *zap.Logger) *Manager {
	if log == nil {
		log = logger.L
	}
	m := &Manager{
		cfg: cfg,
		rest: rest.NewClient(rest.Config{
			BaseURL:    cfg.Rest.BaseURL,
			Token:      cfg.Token,
			Timeout:    cfg.Rest.Timeout,
			MaxRetries: cfg.Rest.MaxRetries,
			RetryDelay: cfg.Rest.RetryDelay,
		}),
		coord: shard.NewCoordinator(shard.Config{
			BatchDelay: cfg.Gateway.SessionBatchDelay,
			Logger:     log,
		}),
		log:    log,
		events: make(chan Event, 1024),
	}
	if cfg.Store.Enabled {
		m.store = store.NewResumeStore(&cfg.Store)
	}
	return m
}

// Start bootstraps against the REST API, sizes the shard set, and
// connects every shard. The context governs the lifetime of all
// connections.
func (m *Manager) Start(ctx context.Context) error {
	spanCtx, span := tracing.StartSpan(ctx, "gateway.manager.start")
	defer span.End()

	if m.store != nil {
		if err := m.store.Ping(spanCtx); err != nil {
			return fmt.Errorf("resume store unreachable: %w", err)
		}
	}

	info, err := m.rest.GetGatewayBot(spanCtx)
	if err != nil {
		return err
	}
	m.applyBootstrap(info)

	count, err := m.shardCount(spanCtx, info.Shards)
	if err != nil {
		return err
	}
	m.log.Info("starting gateway shards",
		zap.Int("shards", count),
		zap.Int("recommended", info.Shards),
		zap.Int("max_concurrency", info.SessionStartLimit.MaxConcurrency),
		zap.Int("sessions_remaining", info.SessionStartLimit.Remaining),
	)

	var persist Persister
	if m.store != nil {
		persist = m.store
	}
	clients := make([]*Client, 0, count)
	for i := 0; i < count; i++ {
		client, err := NewClient(ClientOptions{
			Config:      m.cfg,
			ShardID:     i,
			ShardCount:  count,
			Bootstrap:   m.bootstrap,
			Coordinator: m.coord,
			Persist:     persist,
			Events:      m.events,
			Logger:      m.log.With(zap.Int("shard", i)),
		})
		if err != nil {
			return err
		}
		if persist != nil {
			snap, ok, err := persist.Load(spanCtx, i)
			if err != nil {
				m.log.Warn("failed to load resume snapshot", zap.Int("shard", i), zap.Error(err))
			} else if ok {
				client.RestoreSession(snap)
			}
		}
		clients = append(clients, client)
	}
	m.mu.Lock()
	m.clients = clients
	m.mu.Unlock()

	// Connect concurrently; the coordinator batches the handshakes.
	errs := make(chan error, count)
	var wg sync.WaitGroup
	for _, cl := range clients {
		wg.Add(1)
		go func(cl *Client) {
			defer wg.Done()
			if err := cl.Connect(ctx); err != nil {
				errs <- err
			}
		}(cl)
	}
	wg.Wait()

	select {
	case err := <-errs:
		m.Shutdown(context.Background())
		return fmt.Errorf("shard connect failed: %w", err)
	default:
		return nil
	}
}

// bootstrap is the per-reconnect URL resolver shared by all clients.
// A REST failure falls back to the last known URL so a transient API
// blip does not stall reconnects.
func (m *Manager) bootstrap(ctx context.Context) (string, error) {
	info, err := m.rest.GetGatewayBot(ctx)
	if err != nil {
		m.mu.Lock()
		cached := m.gatewayURL
		m.mu.Unlock()
		if cached != "" {
			m.log.Warn("gateway bootstrap failed, using cached URL", zap.Error(err))
			return cached, nil
		}
		return "", err
	}
	m.applyBootstrap(info)
	return info.URL, nil
}

func (m *Manager) applyBootstrap(info *rest.GatewayBot) {
	m.coord.UpdateLimit(shard.Limit{
		Total:             info.SessionStartLimit.Total,
		Remaining:         info.SessionStartLimit.Remaining,
		ResetAfter:        time.Duration(info.SessionStartLimit.ResetAfter) * time.Millisecond,
		MaxConcurrency:    info.SessionStartLimit.MaxConcurrency,
		RecommendedShards: info.Shards,
	})
	m.mu.Lock()
	m.gatewayURL = info.URL
	m.mu.Unlock()
}

// shardCount resolves the shard count: an explicit config value wins,
// otherwise the server recommendation, raised if the guild count needs
// more shards.
func (m *Manager) shardCount(ctx context.Context, recommended int) (int, error) {
	if m.cfg.Shards.Count > 0 {
		return m.cfg.Shards.Count, nil
	}
	count := recommended
	if count < 1 {
		count = 1
	}
	guilds, err := m.rest.GetGuildCount(ctx)
	if err != nil {
		m.log.Warn("guild count unavailable, using recommended shard count", zap.Error(err))
		return count, nil
	}
	perShard := m.cfg.Shards.GuildsPerShard
	if needed := (guilds + perShard - 1) / perShard; needed > count {
		count = needed
	}
	return count, nil
}

// Events returns the shared event channel for all shards.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Clients returns the shard clients, connect order by shard id.
func (m *Manager) Clients() []*Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Client(nil), m.clients...)
}

// Healthy reports whether every shard is ready and acking heartbeats.
func (m *Manager) Healthy() bool {
	m.mu.Lock()
	clients := append([]*Client(nil), m.clients...)
	m.mu.Unlock()
	if len(clients) == 0 {
		return false
	}
	for _, cl := range clients {
		if !cl.Healthy() {
			return false
		}
	}
	return true
}

// Shutdown closes every shard without ending the sessions server-side,
// so a restarted process can resume them, then releases the shared
// resources.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	clients := append([]*Client(nil), m.clients...)
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for _, cl := range clients {
			wg.Add(1)
			go func(cl *Client) {
				defer wg.Done()
				cl.Destroy(websocket.CloseServiceRestart)
			}(cl)
		}
		wg.Wait()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.log.Warn("shutdown deadline reached before all shards closed")
	}

	m.coord.Destroy()
	if m.store != nil {
		if err := m.store.Close(); err != nil {
			return fmt.Errorf("close resume store: %w", err)
		}
	}
	return nil
}
