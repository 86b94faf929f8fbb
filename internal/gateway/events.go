package gateway

import "time"

// Event is a lifecycle or dispatch notification delivered on the event
// channel. Emission never blocks; events to a full channel are dropped
// with a warning log.
type Event interface {
	isEvent()
}

// StateChangeEvent reports a connection state transition.
type StateChangeEvent struct {
	Shard int
	From  State
	To    State
}

// SessionStartEvent reports a session becoming ready, either freshly
// identified or resumed.
type SessionStartEvent struct {
	Shard     int
	SessionID string
	Resumed   bool
}

// SessionEndEvent reports the socket of an established session closing.
type SessionEndEvent struct {
	Shard     int
	SessionID string
}

// SessionInvalidEvent reports a server-side session invalidation.
type SessionInvalidEvent struct {
	Shard     int
	Resumable bool
}

// HeartbeatEvent reports an acknowledged heartbeat round trip.
type HeartbeatEvent struct {
	Shard   int
	Latency time.Duration
	Average time.Duration
}

// DispatchEvent carries one dispatch payload to the application. Data
// is still in the negotiated wire encoding.
type DispatchEvent struct {
	Shard int
	Type  string
	Seq   int64
	Data  []byte
}

func (StateChangeEvent) isEvent()    {}
func (SessionStartEvent) isEvent()   {}
func (SessionEndEvent) isEvent()     {}
func (SessionInvalidEvent) isEvent() {}
func (HeartbeatEvent) isEvent()      {}
func (DispatchEvent) isEvent()       {}
