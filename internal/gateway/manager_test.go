package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/halcyonchat/gateway/internal/payload"
)

// newRestServer fakes the bootstrap REST API in front of a gateway
// server. guilds controls how many guilds the paginated endpoint
// reports.
func newRestServer(t *testing.T, gs *gatewayServer, shards, maxConcurrency, guilds int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gateway/bot":
			json.NewEncoder(w).Encode(map[string]any{
				"url":    gs.url(),
				"shards": shards,
				"session_start_limit": map[string]any{
					"total":           1000,
					"remaining":       1000,
					"reset_after":     14400000,
					"max_concurrency": maxConcurrency,
				},
			})
		case "/users/@me/guilds":
			after := r.URL.Query().Get("after")
			var page []map[string]string
			if after == "" {
				n := guilds
				if n > 200 {
					n = 200
				}
				for i := 0; i < n; i++ {
					page = append(page, map[string]string{"id": fmt.Sprintf("g%d", i)})
				}
			} else {
				for i := 200; i < guilds; i++ {
					page = append(page, map[string]string{"id": fmt.Sprintf("g%d", i)})
				}
			}
			json.NewEncoder(w).Encode(page)
		default:
			t.Errorf("Unexpected REST path %q", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestManager_StartSingleShard(t *testing.T) {
	gs := newGatewayServer(t)
	restSrv := newRestServer(t, gs, 1, 1, 0)

	cfg := testConfig(t)
	cfg.Rest.BaseURL = restSrv.URL
	m := NewManager(cfg, nil)
	t.Cleanup(func() { m.Shutdown(context.Background()) })

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	conn := gs.accept(t)
	sendHello(t, conn, 41250)
	readFrameOp(t, conn, int(payload.OpcodeIdentify))
	sendReady(t, conn, "sess-0", gs.url(), 1)

	ev := waitEvent(t, m.Events(), func(ev Event) bool {
		_, ok := ev.(SessionStartEvent)
		return ok
	}).(SessionStartEvent)
	if ev.SessionID != "sess-0" {
		t.Errorf("Unexpected session start event %+v", ev)
	}

	deadline := time.Now().Add(3 * time.Second)
	for !m.Healthy() {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for a healthy manager")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(m.Clients()) != 1 {
		t.Errorf("Expected 1 client, got %d", len(m.Clients()))
	}
}

func TestManager_ShardCountScalesWithGuilds(t *testing.T) {
	gs := newGatewayServer(t)
	// 250 guilds at 100 per shard needs 3 shards, above the
	// recommended 1
	restSrv := newRestServer(t, gs, 1, 3, 250)

	cfg := testConfig(t)
	cfg.Rest.BaseURL = restSrv.URL
	cfg.Shards.GuildsPerShard = 100
	cfg.Gateway.SessionBatchDelay = 10 * time.Millisecond
	m := NewManager(cfg, nil)
	t.Cleanup(func() { m.Shutdown(context.Background()) })

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	seen := map[int]bool{}
	for i := 0; i < 3; i++ {
		conn := gs.accept(t)
		sendHello(t, conn, 41250)
		env := readFrameOp(t, conn, int(payload.OpcodeIdentify))
		var idn payload.Identify
		if err := json.Unmarshal(env.D, &idn); err != nil {
			t.Fatalf("Failed to decode identify: %v", err)
		}
		if idn.Shard == nil || idn.Shard[1] != 3 {
			t.Fatalf("Expected shard count 3 in identify, got %v", idn.Shard)
		}
		seen[idn.Shard[0]] = true
	}
	if len(seen) != 3 {
		t.Errorf("Expected 3 distinct shard ids, got %v", seen)
	}
}

func TestManager_ExplicitShardCountWins(t *testing.T) {
	gs := newGatewayServer(t)
	restSrv := newRestServer(t, gs, 4, 2, 0)

	cfg := testConfig(t)
	cfg.Rest.BaseURL = restSrv.URL
	cfg.Shards.Count = 2
	cfg.Gateway.SessionBatchDelay = 10 * time.Millisecond
	m := NewManager(cfg, nil)
	t.Cleanup(func() { m.Shutdown(context.Background()) })

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if got := len(m.Clients()); got != 2 {
		t.Errorf("Expected 2 clients, got %d", got)
	}
}
