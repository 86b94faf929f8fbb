package compression

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"

	"github.com/halcyonchat/gateway/internal/buffer"
)

// streamBuffer is the input side of a decompression stream. The
// inflater reads from it on a dedicated goroutine; Read blocks while
// the buffer is empty instead of reporting EOF, which keeps the
// inflater's shared context alive between messages. waitStarved lets
// the feeder detect that the inflater has consumed all input and is
// blocked again, i.e. every byte of output for the fed input has been
// emitted.
type streamBuffer struct {
	mu      sync.Mutex
	cond    *sync.Cond
	data    []byte
	closed  bool
	waiting bool
}

func newStreamBuffer() *streamBuffer {
	b := &streamBuffer{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *streamBuffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.data) == 0 && !b.closed {
		b.waiting = true
		b.cond.Broadcast()
		b.cond.Wait()
	}
	b.waiting = false
	if len(b.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, b.data)
	b.data = b.data[n:]
	return n, nil
}

func (b *streamBuffer) write(p []byte) {
	b.mu.Lock()
	b.data = append(b.data, p...)
	b.cond.Broadcast()
	b.mu.Unlock()
}

func (b *streamBuffer) close() {
	b.mu.Lock()
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()
}

// waitStarved blocks until the reader is blocked on an empty buffer
// again, or the stream has shut down. done reports reader exit.
func (b *streamBuffer) waitStarved(done <-chan struct{}) {
	exited := func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for !(b.waiting && len(b.data) == 0) && !b.closed && !exited() {
		b.cond.Wait()
	}
}

// stream couples a streamBuffer with an inflater goroutine and an
// output fragment accumulator.
type stream struct {
	buf  *streamBuffer
	done chan struct{}

	mu    sync.Mutex
	frags [][]byte
	err   error
}

func newStream(open func(io.Reader) (io.Reader, error)) *stream {
	s := &stream{
		buf:  newStreamBuffer(),
		done: make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		defer s.buf.close()
		r, err := open(s.buf)
		if err != nil {
			s.setErr(err)
			return
		}
		tmp := buffer.Get()
		defer buffer.Put(tmp)
		for {
			n, err := r.Read(tmp)
			if n > 0 {
				frag := append([]byte(nil), tmp[:n]...)
				s.mu.Lock()
				s.frags = append(s.frags, frag)
				s.mu.Unlock()
			}
			if err != nil {
				if err != io.EOF {
					s.setErr(err)
				}
				return
			}
		}
	}()
	return s
}

func newZlibStream() *stream {
	return newStream(func(r io.Reader) (io.Reader, error) {
		// NewReader consumes the two-byte zlib header, which only
		// arrives with the first fed message; it must run on the
		// inflater goroutine so feed() does not deadlock.
		return zlib.NewReader(r)
	})
}

func newZstdStream() (*stream, error) {
	// Concurrency 1 keeps decoding on the inflater goroutine so that
	// input starvation implies all decoded output has been emitted.
	return newStream(func(r io.Reader) (io.Reader, error) {
		return zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	}), nil
}

func (s *stream) setErr(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

// feed hands input to the inflater, waits until it has consumed all of
// it, and returns the output fragments accumulated since the last call
// concatenated into one payload.
func (s *stream) feed(chunk []byte) ([]byte, error) {
	s.buf.write(chunk)
	s.buf.waitStarved(s.done)

	s.mu.Lock()
	err := s.err
	frags := s.frags
	s.frags = nil
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	total := 0
	for _, f := range frags {
		total += len(f)
	}
	out := make([]byte, 0, total)
	for _, f := range frags {
		out = append(out, f...)
	}
	return out, nil
}

func (s *stream) close() {
	s.buf.close()
	<-s.done
}
