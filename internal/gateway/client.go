// Package gateway implements the connection core: one websocket client
// per shard that dials the gateway, completes the Hello/Identify or
// Hello/Resume handshake, keeps the session alive with heartbeats, and
// applies the reconnect policy when the socket drops.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/halcyonchat/gateway/internal/compression"
	"github.com/halcyonchat/gateway/internal/config"
	"github.com/halcyonchat/gateway/internal/heartbeat"
	"github.com/halcyonchat/gateway/internal/logger"
	"github.com/halcyonchat/gateway/internal/metrics"
	"github.com/halcyonchat/gateway/internal/payload"
	"github.com/halcyonchat/gateway/internal/retry"
	"github.com/halcyonchat/gateway/internal/session"
	"github.com/halcyonchat/gateway/internal/shard"
	"github.com/halcyonchat/gateway/internal/tracing"
)

var (
	ErrAlreadyConnected = errors.New("gateway: connection already open")
	ErrNotOpen          = errors.New("gateway: socket not open")

	// errReconnectRequested flows out of the message handlers when the
	// server asked for a reconnect (opcode 7, invalid session) or the
	// heartbeat monitor declared the connection zombied.
	errReconnectRequested = errors.New("gateway: reconnect requested")
)

// State is the connection lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateAwaitingHello
	StateIdentifying
	StateResuming
	StateReady
	StateClosing
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAwaitingHello:
		return "awaiting_hello"
	case StateIdentifying:
		return "identifying"
	case StateResuming:
		return "resuming"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// BootstrapFunc supplies the gateway connection URL for a fresh
// connect, typically by calling the REST bootstrap endpoint.
type BootstrapFunc func(ctx context.Context) (string, error)

// Persister stores resume state across process restarts.
type Persister interface {
	Save(ctx context.Context, shardID int, snap session.Snapshot) error
	Load(ctx context.Context, shardID int) (session.Snapshot, bool, error)
	Clear(ctx context.Context, shardID int) error
}

// ClientOptions configures one shard connection.
type ClientOptions struct {
	Config     *config.Config
	ShardID    int
	ShardCount int

	// Bootstrap resolves the connection URL. Required unless every
	// connect goes to a resume URL.
	Bootstrap BootstrapFunc

	// Coordinator throttles identify handshakes. Optional; without it
	// the client identifies immediately.
	Coordinator *shard.Coordinator

	// Persist stores resume snapshots. Optional.
	Persist Persister

	// Events receives lifecycle and dispatch events. When nil the
	// client allocates its own channel.
	Events chan Event

	Logger *zap.Logger
}

// Client is the connection core for one shard.
type Client struct {
	cfg        *config.Config
	shardID    int
	shardCount int
	shardLabel string

	codec       payload.Codec
	backoff     retry.Schedule
	bootstrap   BootstrapFunc
	coordinator *shard.Coordinator
	persist     Persister
	dialer      *websocket.Dialer
	log         *zap.Logger
	events      chan Event

	sess    *session.Session
	monitor *heartbeat.Monitor
	decomp  *compression.Service

	state atomic.Int32

	mu         sync.Mutex
	conn       *websocket.Conn
	cancel     context.CancelFunc
	gatewayURL string
	attempts   int

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// NewClient creates a disconnected client.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Config == nil {
		return nil, errors.New("gateway: config is required")
	}
	codec, err := payload.NewCodec(opts.Config.Gateway.Encoding)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logger.L
	}
	events := opts.Events
	if events == nil {
		events = make(chan Event, 256)
	}
	c := &Client{
		cfg:        opts.Config,
		shardID:    opts.ShardID,
		shardCount: opts.ShardCount,
		shardLabel: strconv.Itoa(opts.ShardID),
		codec:      codec,
		backoff:    retry.Schedule(opts.Config.Gateway.BackoffSchedule),
		bootstrap:  opts.Bootstrap,

		coordinator: opts.Coordinator,
		persist:     opts.Persist,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.Config.Gateway.HandshakeTimeout,
		},
		log:    log,
		events: events,
		sess:   session.New(),
		decomp: compression.NewService(),
	}
	c.monitor = heartbeat.NewMonitor(heartbeat.Config{
		MaxMissed:      opts.Config.Gateway.MaxMissedHeartbeats,
		InitialDelay:   opts.Config.Gateway.HeartbeatInitialDelay,
		LatencyCeiling: opts.Config.Gateway.LatencyCeiling,
		Logger:         log,
	})
	return c, nil
}

// RestoreSession seeds resume state from a persisted snapshot, so the
// first connect after a restart resumes instead of identifying.
func (c *Client) RestoreSession(snap session.Snapshot) {
	c.sess.Restore(snap)
}

// Connect establishes the connection and starts the event loop. The
// context governs the whole connection lifetime including reconnects.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	spanCtx, span := tracing.StartSpan(runCtx, "gateway.connect")
	err := c.establish(spanCtx, "", true)
	span.End()
	if err != nil {
		cancel()
		c.setState(StateIdle)
		metrics.ConnectFailures.WithLabelValues(c.shardLabel).Inc()
		return err
	}

	c.wg.Add(1)
	go c.run(runCtx)
	return nil
}

// establish resolves the target URL, optionally acquires an identify
// slot, and dials. fresh marks a from-scratch connect; resumes reuse
// the session's resume URL and skip the identify budget.
func (c *Client) establish(ctx context.Context, dialURL string, fresh bool) error {
	c.setState(StateConnecting)

	if dialURL == "" {
		c.mu.Lock()
		base := c.gatewayURL
		c.mu.Unlock()
		if fresh || base == "" {
			if c.bootstrap == nil {
				return errors.New("gateway: no connection URL available")
			}
			u, err := c.bootstrap(ctx)
			if err != nil {
				return fmt.Errorf("gateway bootstrap: %w", err)
			}
			c.mu.Lock()
			c.gatewayURL = u
			c.mu.Unlock()
			base = u
		}
		dialURL = base
	}

	if fresh && c.coordinator != nil {
		start := time.Now()
		if err := c.coordinator.Acquire(ctx); err != nil {
			return fmt.Errorf("acquire identify slot: %w", err)
		}
		metrics.ShardAcquireWait.Observe(time.Since(start).Seconds())
	}

	target := c.buildURL(dialURL)
	conn, _, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}

	if c.cfg.Gateway.Compression != "" {
		c.decomp.Destroy()
		if err := c.decomp.Init(compression.Algorithm(c.cfg.Gateway.Compression)); err != nil {
			conn.Close()
			return err
		}
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(StateAwaitingHello)
	c.log.Info("gateway socket open",
		zap.Int("shard", c.shardID),
		zap.String("url", dialURL),
		zap.Bool("fresh", fresh),
	)
	return nil
}

// buildURL appends the protocol version, encoding and compression
// query parameters to the connection URL.
func (c *Client) buildURL(base string) string {
	q := url.Values{}
	q.Set("v", strconv.Itoa(c.cfg.Gateway.Version))
	q.Set("encoding", c.codec.Name())
	if c.cfg.Gateway.Compression != "" {
		q.Set("compress", c.cfg.Gateway.Compression)
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + q.Encode()
}

// run drives one connection at a time, applying the reconnect policy
// between them, until the context ends or reconnection is off.
func (c *Client) run(ctx context.Context) {
	defer c.wg.Done()
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			c.setState(StateIdle)
			return
		}
		code := c.pump(ctx, conn)
		if ctx.Err() != nil {
			c.setState(StateIdle)
			return
		}
		if !c.reconnect(ctx, code) {
			c.setState(StateIdle)
			return
		}
	}
}

// pump processes inbound messages and heartbeat signals for one
// connection and returns the close code that ended it.
func (c *Client) pump(ctx context.Context, conn *websocket.Conn) int {
	inbound := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case inbound <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			c.teardown(conn, websocket.CloseNormalClosure)
			return -1

		case data := <-inbound:
			err := c.handleMessage(ctx, data)
			if err == nil {
				continue
			}
			if errors.Is(err, errReconnectRequested) {
				c.teardown(conn, websocket.CloseServiceRestart)
				drainReader(inbound, readErr)
				return CloseUnknownError
			}
			c.log.Warn("failed to handle gateway message",
				zap.Int("shard", c.shardID),
				zap.Error(err),
			)

		case sig := <-c.monitor.Signals():
			switch sig.Type {
			case heartbeat.SignalBeat:
				if err := c.sendHeartbeat(sig.Seq); err != nil {
					c.log.Warn("failed to send heartbeat", zap.Error(err))
				}
			case heartbeat.SignalZombie:
				metrics.ZombieConnections.WithLabelValues(c.shardLabel).Inc()
				c.log.Warn("connection zombied, too many missed heartbeat acks",
					zap.Int("shard", c.shardID),
				)
				c.teardown(conn, websocket.CloseServiceRestart)
				drainReader(inbound, readErr)
				return CloseUnknownError
			}

		case err := <-readErr:
			code := closeCode(err)
			c.log.Info("gateway socket closed",
				zap.Int("shard", c.shardID),
				zap.Int("code", code),
				zap.Error(err),
			)
			c.teardown(conn, 0)
			return code
		}
	}
}

// drainMonitorSignals discards beat requests queued by a connection
// that is going away, so the next connection's pump does not transmit
// a stale heartbeat. Callers destroy the monitor first.
func (c *Client) drainMonitorSignals() {
	for {
		select {
		case <-c.monitor.Signals():
		default:
			return
		}
	}
}

// drainReader unblocks the reader goroutine after a local close so it
// can observe the read error and exit.
func drainReader(inbound chan []byte, readErr chan error) {
	for {
		select {
		case <-inbound:
		case <-readErr:
			return
		}
	}
}

// teardown closes the socket and resets per-connection state. Session
// state survives for the reconnect policy to inspect. A non-zero code
// sends a close frame before closing.
func (c *Client) teardown(conn *websocket.Conn, code int) {
	c.setState(StateClosing)
	c.monitor.Destroy()
	c.drainMonitorSignals()
	c.decomp.Destroy()
	if code > 0 {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""), deadline)
	}
	_ = conn.Close()
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	if id := c.sess.ID(); id != "" {
		c.emit(SessionEndEvent{Shard: c.shardID, SessionID: id})
	}
}

// reconnect applies the backoff schedule and re-establishes the
// connection, resuming when the close code and session state allow it.
// Returns false when the client should stay down.
func (c *Client) reconnect(ctx context.Context, code int) bool {
	if !c.cfg.Gateway.AutoReconnectEnabled() {
		c.log.Info("auto reconnect disabled, staying down", zap.Int("shard", c.shardID))
		return false
	}
	for {
		c.setState(StateReconnecting)
		c.mu.Lock()
		c.attempts++
		attempt := c.attempts
		c.mu.Unlock()

		resume := ResumableCloseCode(code) && c.sess.CanResume()
		mode := "identify"
		if resume {
			mode = "resume"
		}
		metrics.Reconnects.WithLabelValues(c.shardLabel, mode).Inc()
		c.log.Info("reconnecting",
			zap.Int("shard", c.shardID),
			zap.Int("attempt", attempt),
			zap.Int("close_code", code),
			zap.String("mode", mode),
			zap.Duration("delay", c.backoff.Delay(attempt)),
		)
		if err := c.backoff.Wait(ctx, attempt); err != nil {
			return false
		}

		var err error
		if resume {
			err = c.establish(ctx, c.sess.ResumeURL(), false)
		} else {
			c.resetSession(ctx)
			err = c.establish(ctx, "", true)
		}
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		metrics.ConnectFailures.WithLabelValues(c.shardLabel).Inc()
		c.log.Error("reconnect attempt failed",
			zap.Int("shard", c.shardID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		code = websocket.CloseAbnormalClosure
	}
}

// handleMessage decompresses, decodes and dispatches one transport
// message.
func (c *Client) handleMessage(ctx context.Context, data []byte) error {
	if c.decomp.Initialized() {
		out, err := c.decomp.Decompress(data)
		if err != nil {
			metrics.DecodeErrors.WithLabelValues(c.shardLabel, "decompress").Inc()
			return fmt.Errorf("decompress payload: %w", err)
		}
		if len(out) == 0 {
			// partial zlib chunk, more transport frames follow
			return nil
		}
		data = out
	}
	metrics.PayloadBytes.WithLabelValues(c.shardLabel, "in").Add(float64(len(data)))

	frame, err := c.codec.Decode(data)
	if err != nil {
		metrics.DecodeErrors.WithLabelValues(c.shardLabel, "decode").Inc()
		return err
	}

	switch frame.Op {
	case payload.OpcodeHello:
		return c.handleHello(frame)
	case payload.OpcodeDispatch:
		return c.handleDispatch(ctx, frame)
	case payload.OpcodeHeartbeat:
		// immediate beat requested by the server
		return c.sendHeartbeat(c.sess.Sequence())
	case payload.OpcodeHeartbeatAck:
		c.monitor.Ack()
		lat := c.monitor.Latency()
		metrics.HeartbeatLatency.WithLabelValues(c.shardLabel).Set(lat.Seconds())
		c.emit(HeartbeatEvent{Shard: c.shardID, Latency: lat, Average: c.monitor.AverageLatency()})
		return nil
	case payload.OpcodeReconnect:
		c.log.Info("server requested reconnect", zap.Int("shard", c.shardID))
		return errReconnectRequested
	case payload.OpcodeInvalidSession:
		return c.handleInvalidSession(ctx, frame)
	default:
		c.log.Debug("ignoring unhandled opcode", zap.Int("op", int(frame.Op)))
		return nil
	}
}

// handleHello starts the heartbeat monitor and opens the handshake,
// resuming when the session allows it and identifying otherwise.
func (c *Client) handleHello(frame *payload.Frame) error {
	var hello payload.Hello
	if err := c.codec.Unmarshal(frame.Data, &hello); err != nil {
		return err
	}
	interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond
	if err := c.monitor.Start(interval); err != nil {
		return fmt.Errorf("start heartbeat monitor: %w", err)
	}

	if c.sess.CanResume() {
		c.setState(StateResuming)
		c.log.Info("resuming session",
			zap.Int("shard", c.shardID),
			zap.String("session_id", c.sess.ID()),
			zap.Int64("seq", c.sess.Sequence()),
		)
		return c.write(payload.OpcodeResume, payload.Resume{
			Token:     c.cfg.Token,
			SessionID: c.sess.ID(),
			Seq:       c.sess.Sequence(),
		})
	}

	c.setState(StateIdentifying)
	identify := payload.Identify{
		Token: c.cfg.Token,
		Properties: payload.IdentifyProperties{
			OS:      c.cfg.Gateway.Identify.OS,
			Browser: c.cfg.Gateway.Identify.Browser,
			Device:  c.cfg.Gateway.Identify.Device,
		},
		Intents: c.cfg.Intents,
	}
	if c.shardCount > 1 {
		identify.Shard = &[2]int{c.shardID, c.shardCount}
	}
	return c.write(payload.OpcodeIdentify, identify)
}

// handleDispatch advances the sequence, reacts to the session lifecycle
// dispatches, and forwards the event to the application.
func (c *Client) handleDispatch(ctx context.Context, frame *payload.Frame) error {
	var seq int64
	if frame.Seq != nil {
		seq = *frame.Seq
		if c.sess.UpdateSequence(seq) {
			if err := c.monitor.UpdateSequence(seq); err != nil {
				c.log.Warn("sequence rejected by heartbeat monitor",
					zap.Int64("seq", seq), zap.Error(err))
			}
		}
	}
	metrics.EventsDispatched.WithLabelValues(c.shardLabel, frame.Type).Inc()

	switch frame.Type {
	case payload.EventReady:
		var ready payload.Ready
		if err := c.codec.Unmarshal(frame.Data, &ready); err != nil {
			return err
		}
		c.sess.Populate(ready.SessionID, ready.ResumeGatewayURL, ready.User.ID, len(ready.Guilds))
		c.mu.Lock()
		c.attempts = 0
		c.mu.Unlock()
		c.setState(StateReady)
		metrics.SessionsStarted.WithLabelValues(c.shardLabel, "false").Inc()
		c.saveSnapshot(ctx)
		c.emit(SessionStartEvent{Shard: c.shardID, SessionID: ready.SessionID})
		c.log.Info("session ready",
			zap.Int("shard", c.shardID),
			zap.String("session_id", ready.SessionID),
			zap.String("user_id", ready.User.ID),
			zap.Int("guilds", len(ready.Guilds)),
		)

	case payload.EventResumed:
		c.sess.MarkResumed()
		c.mu.Lock()
		c.attempts = 0
		c.mu.Unlock()
		c.setState(StateReady)
		metrics.SessionsStarted.WithLabelValues(c.shardLabel, "true").Inc()
		c.saveSnapshot(ctx)
		c.emit(SessionStartEvent{Shard: c.shardID, SessionID: c.sess.ID(), Resumed: true})
		c.log.Info("session resumed",
			zap.Int("shard", c.shardID),
			zap.String("session_id", c.sess.ID()),
			zap.Int64("seq", c.sess.Sequence()),
		)
	}

	c.emit(DispatchEvent{
		Shard: c.shardID,
		Type:  frame.Type,
		Seq:   seq,
		Data:  append([]byte(nil), frame.Data...),
	})

	// checkpoint the sequence so a process restart resumes close to
	// the live position
	if seq > 0 && seq%64 == 0 {
		c.saveSnapshot(ctx)
	}
	return nil
}

// handleInvalidSession clears resume state if the server says the
// session is gone, then forces a reconnect. The Hello handler on the
// next connection picks identify or resume from the surviving state.
func (c *Client) handleInvalidSession(ctx context.Context, frame *payload.Frame) error {
	var resumable bool
	if err := c.codec.Unmarshal(frame.Data, &resumable); err != nil {
		resumable = false
	}
	metrics.SessionsInvalidated.WithLabelValues(c.shardLabel).Inc()
	c.log.Warn("session invalidated by server",
		zap.Int("shard", c.shardID),
		zap.Bool("resumable", resumable),
	)
	c.emit(SessionInvalidEvent{Shard: c.shardID, Resumable: resumable})
	c.sess.Invalidate(resumable)
	if !resumable {
		c.clearSnapshot(ctx)
	}
	return errReconnectRequested
}

func (c *Client) sendHeartbeat(seq int64) error {
	var d any
	if seq > 0 {
		d = seq
	}
	return c.write(payload.OpcodeHeartbeat, d)
}

// write encodes and transmits one command on the current socket.
func (c *Client) write(op payload.Opcode, data any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotOpen
	}

	var seqPtr *int64
	if seq := c.sess.Sequence(); seq > 0 {
		seqPtr = &seq
	}
	buf, err := c.codec.Encode(payload.Command{Op: op, Seq: seqPtr, Data: data})
	if err != nil {
		return err
	}
	msgType := websocket.TextMessage
	if c.codec.Binary() {
		msgType = websocket.BinaryMessage
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.Gateway.WriteTimeout))
	if err := conn.WriteMessage(msgType, buf); err != nil {
		return fmt.Errorf("write op %d: %w", op, err)
	}
	metrics.PayloadBytes.WithLabelValues(c.shardLabel, "out").Add(float64(len(buf)))
	return nil
}

// Send transmits an application command. Fails unless the socket is
// open.
func (c *Client) Send(op payload.Opcode, data any) error {
	switch c.State() {
	case StateIdle, StateConnecting, StateReconnecting, StateClosing:
		return ErrNotOpen
	}
	return c.write(op, data)
}

// UpdatePresence sets the client presence on the current session.
func (c *Client) UpdatePresence(p payload.PresenceUpdate) error {
	return c.Send(payload.OpcodePresenceUpdate, p)
}

// Healthy reports whether the connection is ready, acknowledging
// heartbeats, and under the latency ceiling.
func (c *Client) Healthy() bool {
	if c.State() != StateReady {
		return false
	}
	return c.monitor.Missed() < c.cfg.Gateway.MaxMissedHeartbeats &&
		c.monitor.Latency() < c.cfg.Gateway.LatencyCeiling
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Events returns the lifecycle and dispatch event channel.
func (c *Client) Events() <-chan Event {
	return c.events
}

// SessionID returns the active session id, or "" before ready.
func (c *Client) SessionID() string {
	return c.sess.ID()
}

// Latency returns the last heartbeat round trip.
func (c *Client) Latency() time.Duration {
	return c.monitor.Latency()
}

// AverageLatency returns the mean heartbeat round trip.
func (c *Client) AverageLatency() time.Duration {
	return c.monitor.AverageLatency()
}

// Destroy closes the socket with the given code, stops the reconnect
// loop, waits for the event loop to exit and clears the in-memory
// session. A clean close code ends the session server-side, so the
// persisted snapshot is cleared too; any other code keeps the snapshot
// so a restarted process can resume.
func (c *Client) Destroy(code int) {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	conn := c.conn
	c.mu.Unlock()

	ctx, ctxCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer ctxCancel()
	if ResumableCloseCode(code) {
		c.saveSnapshot(ctx)
	} else {
		c.clearSnapshot(ctx)
	}

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""), deadline)
		_ = conn.Close()
	}
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	c.monitor.Destroy()
	c.drainMonitorSignals()
	c.decomp.Destroy()
	c.sess.Reset()
	c.mu.Lock()
	c.attempts = 0
	c.conn = nil
	c.mu.Unlock()
	c.setState(StateIdle)
}

func (c *Client) resetSession(ctx context.Context) {
	c.sess.Reset()
	c.clearSnapshot(ctx)
}

func (c *Client) saveSnapshot(ctx context.Context) {
	if c.persist == nil {
		return
	}
	snap := c.sess.Snapshot()
	if snap.ID == "" {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.persist.Save(sctx, c.shardID, snap); err != nil {
		c.log.Warn("failed to persist resume state", zap.Error(err))
	}
}

func (c *Client) clearSnapshot(ctx context.Context) {
	if c.persist == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.persist.Clear(sctx, c.shardID); err != nil {
		c.log.Warn("failed to clear resume state", zap.Error(err))
	}
}

func (c *Client) setState(next State) {
	prev := State(c.state.Swap(int32(next)))
	if prev == next {
		return
	}
	metrics.ConnectionState.WithLabelValues(c.shardLabel).Set(float64(next))
	if prev == StateReady {
		metrics.ActiveShards.Dec()
	}
	if next == StateReady {
		metrics.ActiveShards.Inc()
	}
	c.emit(StateChangeEvent{Shard: c.shardID, From: prev, To: next})
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn("gateway event dropped, consumer not draining",
			zap.String("event", fmt.Sprintf("%T", ev)),
		)
	}
}
