package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetGatewayBot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gateway/bot" {
			t.Errorf("Unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bot test-token" {
			t.Errorf("Unexpected authorization header %q", got)
		}
		json.NewEncoder(w).Encode(GatewayBot{
			URL:    "wss://gateway.example",
			Shards: 2,
			SessionStartLimit: SessionStartLimit{
				Total: 1000, Remaining: 999, ResetAfter: 14400000, MaxConcurrency: 1,
			},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Token: "test-token"})
	info, err := c.GetGatewayBot(context.Background())
	if err != nil {
		t.Fatalf("GetGatewayBot failed: %v", err)
	}
	if info.URL != "wss://gateway.example" || info.Shards != 2 {
		t.Errorf("Unexpected bootstrap info: %+v", info)
	}
	if info.SessionStartLimit.Remaining != 999 || info.SessionStartLimit.MaxConcurrency != 1 {
		t.Errorf("Unexpected session start limit: %+v", info.SessionStartLimit)
	}
}

func TestGetGatewayBot_RetriesTransientFailure(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(GatewayBot{URL: "wss://gateway.example", Shards: 1})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Token: "t", RetryDelay: time.Millisecond})
	info, err := c.GetGatewayBot(context.Background())
	if err != nil {
		t.Fatalf("GetGatewayBot failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}
	if info.URL != "wss://gateway.example" {
		t.Errorf("Unexpected URL %q", info.URL)
	}
}

func TestGetGuildCount_Paginates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/@me/guilds" {
			t.Errorf("Unexpected path %q", r.URL.Path)
		}
		after := r.URL.Query().Get("after")
		var page []guild
		if after == "" {
			for i := 0; i < guildPageSize; i++ {
				page = append(page, guild{ID: fmt.Sprintf("g%d", i)})
			}
		} else {
			page = []guild{{ID: "last-1"}, {ID: "last-2"}}
		}
		json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Token: "t"})
	count, err := c.GetGuildCount(context.Background())
	if err != nil {
		t.Fatalf("GetGuildCount failed: %v", err)
	}
	if count != guildPageSize+2 {
		t.Errorf("Expected %d guilds, got %d", guildPageSize+2, count)
	}
}

func TestClient_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Token: "t", MaxRetries: 3, RetryDelay: time.Millisecond})
	for i := 0; i < 2; i++ {
		if _, err := c.GetGatewayBot(context.Background()); err == nil {
			t.Fatal("Expected error from failing server")
		}
	}
	if calls < int(breakerMaxFailures) {
		t.Fatalf("Expected at least %d upstream calls, got %d", breakerMaxFailures, calls)
	}

	before := calls
	if _, err := c.GetGatewayBot(context.Background()); err == nil {
		t.Error("Expected error while circuit is open")
	}
	if calls != before {
		t.Errorf("Expected no upstream calls while open, got %d more", calls-before)
	}
}

func TestGetGatewayBot_AuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"401: Unauthorized"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Token: "bad", MaxRetries: 1, RetryDelay: time.Millisecond})
	if _, err := c.GetGatewayBot(context.Background()); err == nil {
		t.Error("Expected error for unauthorized response")
	}
}
