// mockgateway is a local stand-in for the remote gateway, used to
// exercise the client by hand: it speaks the Hello/Identify/Resume
// handshake, acks heartbeats, emits dispatch events at a configurable
// rate, and can periodically drop connections to force resumes.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zlib"
)

var (
	addr      = flag.String("addr", ":8081", "Listen address")
	interval  = flag.Int("heartbeat-interval", 41250, "Heartbeat interval in milliseconds")
	rate      = flag.Float64("rate", 2.0, "Dispatch events per second per connection")
	dropEvery = flag.Duration("drop-every", 0, "Drop each connection after this interval (0 disables)")
)

var stats struct {
	Connections int64
	Identifies  int64
	Resumes     int64
	Dispatches  int64
	Heartbeats  int64
}

var upgrader = websocket.Upgrader{}

type envelope struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// session state shared across connections so resumes can be validated
var (
	sessionsMu sync.Mutex
	sessions   = map[string]int64{} // session id -> last delivered seq
)

func main() {
	flag.Parse()

	http.HandleFunc("/", handle)
	go reportStats()

	fmt.Printf("mock gateway listening on %s (heartbeat %dms, %.1f events/s)\n",
		*addr, *interval, *rate)
	if *dropEvery > 0 {
		fmt.Printf("dropping connections every %v to exercise resume\n", *dropEvery)
	}
	if err := http.ListenAndServe(*addr, nil); err != nil {
		fmt.Printf("listen failed: %v\n", err)
	}
}

// sender serializes writes, compressing with a shared zlib context and
// per-message sync flush when the client asked for zlib-stream.
type sender struct {
	mu   sync.Mutex
	conn *websocket.Conn
	zw   *zlib.Writer
	zbuf bytes.Buffer
}

func newSender(conn *websocket.Conn, compress bool) *sender {
	s := &sender{conn: conn}
	if compress {
		s.zw = zlib.NewWriter(&s.zbuf)
	}
	return s
}

func (s *sender) send(env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.zw == nil {
		return s.conn.WriteMessage(websocket.TextMessage, data)
	}
	if _, err := s.zw.Write(data); err != nil {
		return err
	}
	if err := s.zw.Flush(); err != nil {
		return err
	}
	chunk := append([]byte(nil), s.zbuf.Bytes()...)
	s.zbuf.Reset()
	return s.conn.WriteMessage(websocket.BinaryMessage, chunk)
}

func handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("encoding") != "json" {
		http.Error(w, "only json encoding is supported", http.StatusBadRequest)
		return
	}
	compress := r.URL.Query().Get("compress") == "zlib-stream"
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	atomic.AddInt64(&stats.Connections, 1)

	out := newSender(conn, compress)
	raw := func(v any) json.RawMessage {
		b, _ := json.Marshal(v)
		return b
	}
	if err := out.send(envelope{Op: 10, D: raw(map[string]any{"heartbeat_interval": *interval})}); err != nil {
		return
	}

	var seq atomic.Int64
	sessionID := ""
	ready := make(chan struct{})
	var readyOnce sync.Once
	done := make(chan struct{})
	defer close(done)

	// dispatch pump, started once the handshake completes
	go func() {
		select {
		case <-ready:
		case <-done:
			return
		}
		tick := time.NewTicker(time.Duration(float64(time.Second) / *rate))
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				n := seq.Add(1)
				sessionsMu.Lock()
				sessions[sessionID] = n
				sessionsMu.Unlock()
				env := envelope{Op: 0, S: &n, T: "MESSAGE_CREATE", D: raw(map[string]any{
					"id":      fmt.Sprintf("%d", rand.Int63()),
					"content": "mock event",
				})}
				if out.send(env) != nil {
					return
				}
				atomic.AddInt64(&stats.Dispatches, 1)
			}
		}
	}()

	if *dropEvery > 0 {
		go func() {
			select {
			case <-done:
			case <-time.After(*dropEvery):
				deadline := time.Now().Add(time.Second)
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(4000, "scripted drop"), deadline)
				conn.Close()
			}
		}()
	}

	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		switch env.Op {
		case 1: // heartbeat
			atomic.AddInt64(&stats.Heartbeats, 1)
			if out.send(envelope{Op: 11}) != nil {
				return
			}
		case 2: // identify
			atomic.AddInt64(&stats.Identifies, 1)
			sessionID = fmt.Sprintf("mock-%08x", rand.Int63())
			one := int64(1)
			seq.Store(1)
			d := raw(map[string]any{
				"v":                  10,
				"user":               map[string]any{"id": "1", "username": "mock"},
				"session_id":         sessionID,
				"resume_gateway_url": "ws://" + r.Host,
				"guilds":             []any{},
			})
			if out.send(envelope{Op: 0, S: &one, T: "READY", D: d}) != nil {
				return
			}
			readyOnce.Do(func() { close(ready) })
		case 6: // resume
			var res struct {
				SessionID string `json:"session_id"`
				Seq       int64  `json:"seq"`
			}
			json.Unmarshal(env.D, &res)
			sessionsMu.Lock()
			last, known := sessions[res.SessionID]
			sessionsMu.Unlock()
			if !known {
				out.send(envelope{Op: 9, D: raw(false)})
				continue
			}
			atomic.AddInt64(&stats.Resumes, 1)
			sessionID = res.SessionID
			n := last + 1
			seq.Store(n)
			if out.send(envelope{Op: 0, S: &n, T: "RESUMED", D: raw(map[string]any{})}) != nil {
				return
			}
			readyOnce.Do(func() { close(ready) })
		}
	}
}

func reportStats() {
	tick := time.NewTicker(5 * time.Second)
	defer tick.Stop()
	for range tick.C {
		fmt.Printf("[stats] conns: %d | identifies: %d | resumes: %d | dispatches: %d | heartbeats: %d\n",
			atomic.LoadInt64(&stats.Connections),
			atomic.LoadInt64(&stats.Identifies),
			atomic.LoadInt64(&stats.Resumes),
			atomic.LoadInt64(&stats.Dispatches),
			atomic.LoadInt64(&stats.Heartbeats),
		)
	}
}
