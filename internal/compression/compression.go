// Package compression reassembles the gateway's two streaming transport
// compression formats into complete decompressed payloads.
//
// Both formats share one decompression context for the lifetime of a
// connection: the remote side compresses the whole event stream as a
// single deflate/zstd stream and flushes it at message boundaries, so
// the service must keep inflater state between messages and must be
// destroyed and re-initialized when the connection is replaced.
package compression

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
)

// Algorithm selects the transport compression format. The value doubles
// as the `compress` query parameter on the connection URL.
type Algorithm string

const (
	// ZlibStream is a shared-context deflate stream. Messages are
	// complete only when they end with the deflate sync-flush marker.
	ZlibStream Algorithm = "zlib-stream"

	// ZstdStream is a shared-context zstd stream with frame-native
	// message boundaries.
	ZstdStream Algorithm = "zstd-stream"
)

// flushMarker terminates every complete zlib-stream message (an empty
// stored deflate block emitted by a sync flush).
var flushMarker = []byte{0x00, 0x00, 0xff, 0xff}

var (
	ErrNotInitialized     = errors.New("compression: service not initialized")
	ErrAlreadyInitialized = errors.New("compression: service already initialized")
)

// Service owns at most one live decompression stream. It is created
// empty; Init attaches a stream for one algorithm, Destroy detaches it.
// Changing algorithm or clearing state requires Destroy followed by a
// fresh Init.
type Service struct {
	mu      sync.Mutex
	alg     Algorithm
	st      *stream
	pending bytes.Buffer // zlib-stream: chunks awaiting the flush marker
}

// NewService returns an uninitialized service.
func NewService() *Service {
	return &Service{}
}

// Init attaches a decompression stream for the given algorithm.
func (s *Service) Init(alg Algorithm) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st != nil {
		return ErrAlreadyInitialized
	}
	switch alg {
	case ZlibStream:
		s.st = newZlibStream()
	case ZstdStream:
		st, err := newZstdStream()
		if err != nil {
			return fmt.Errorf("compression: init %s: %w", alg, err)
		}
		s.st = st
	default:
		return fmt.Errorf("compression: unknown algorithm %q", alg)
	}
	s.alg = alg
	s.pending.Reset()
	return nil
}

// Initialized reports whether a stream handle is attached.
func (s *Service) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st != nil
}

// Algorithm returns the algorithm of the attached stream, or "" when
// uninitialized.
func (s *Service) Algorithm() Algorithm {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == nil {
		return ""
	}
	return s.alg
}

// Decompress feeds one transport message into the stream and returns
// the decompressed bytes produced so far.
//
// For zlib-stream, input is buffered until a chunk arrives whose last
// four bytes are the sync-flush marker; incomplete input returns an
// empty result and no error. For zstd-stream every chunk is fed
// directly and the output accumulated since the last call is returned.
func (s *Service) Decompress(chunk []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == nil {
		return nil, ErrNotInitialized
	}

	if s.alg == ZlibStream {
		s.pending.Write(chunk)
		if !bytes.HasSuffix(s.pending.Bytes(), flushMarker) {
			return nil, nil
		}
		complete := append([]byte(nil), s.pending.Bytes()...)
		s.pending.Reset()
		return s.st.feed(complete)
	}

	return s.st.feed(chunk)
}

// Destroy tears down the stream and discards buffered input. The
// service can be re-initialized afterwards. Idempotent.
func (s *Service) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st != nil {
		s.st.close()
		s.st = nil
	}
	s.alg = ""
	s.pending.Reset()
}
