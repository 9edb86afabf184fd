package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// discardUnit is the step used when decompressing up to a seek target.
// The producer checks for Close between steps.
const discardUnit = 32 << 10

// errQuit stops the producer when the session is closed.
var errQuit = errors.New("stream: session closed")

// Source opens the decompressed content of one member.
type Source interface {
	// Open returns a new reader positioned at offset 0 of the member.
	Open(ctx context.Context) (io.ReadCloser, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (io.ReadCloser, error)

// Open calls f.
func (f SourceFunc) Open(ctx context.Context) (io.ReadCloser, error) {
	return f(ctx)
}

// Session is a seekable reader over a decompressing Source.
//
// Read and Seek may be called from one goroutine at a time; Close may be
// called concurrently with either and wakes a blocked caller with
// fs.ErrClosed.
type Session struct {
	src         Source
	size        int64
	id          string
	window      int
	readTimeout time.Duration
	seekTimeout time.Duration
	logger      *slog.Logger
	parent      context.Context
	ctx         context.Context
	cancel      context.CancelFunc

	// One-slot signal channels. The consumer sends emptySignal or
	// seekSignal and the producer answers with fillSignal or
	// seekDoneSignal respectively. quitSignal is closed by Close.
	fillSignal     chan struct{}
	emptySignal    chan struct{}
	seekSignal     chan struct{}
	seekDoneSignal chan struct{}
	quitSignal     chan struct{}
	done           chan struct{} // closed when the producer exits

	// buf is written by the producer only while the consumer does not
	// hold it, and read by the consumer only while it does.
	buf []byte

	mu         sync.Mutex // guards the fields below
	bufStart   int64
	filled     int
	eof        bool
	seekTarget int64
	err        error
	closed     bool

	// Consumer state, guarded by opMu.
	opMu     sync.Mutex
	pos      int64
	awaiting chan struct{} // signal the consumer still waits for, nil when holding the window

	closeOnce sync.Once
}

// New starts a session over src. size is the member's uncompressed size,
// or negative if unknown, in which case the session cannot seek.
// The producer starts decompressing the first window immediately.
func New(src Source, size int64, opts ...Option) *Session {
	s := &Session{
		src:            src,
		size:           size,
		id:             uuid.NewString(),
		window:         DefaultWindowSize,
		readTimeout:    DefaultReadTimeout,
		seekTimeout:    DefaultSeekTimeout,
		parent:         context.Background(),
		fillSignal:     make(chan struct{}, 1),
		emptySignal:    make(chan struct{}, 1),
		seekSignal:     make(chan struct{}, 1),
		seekDoneSignal: make(chan struct{}, 1),
		quitSignal:     make(chan struct{}),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger != nil {
		s.logger = s.logger.With("session", s.id)
	}
	s.ctx, s.cancel = context.WithCancel(s.parent)
	s.buf = make([]byte, s.window)
	s.awaiting = s.fillSignal

	go s.produce()
	return s
}

// log returns the session logger, falling back to a discard logger if nil.
func (s *Session) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// Size returns the member size, or a negative value if unknown.
func (s *Session) Size() int64 {
	return s.size
}

// Position returns the current read offset.
func (s *Session) Position() int64 {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.pos
}

// Read implements io.Reader.
func (s *Session) Read(p []byte) (int, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.terminal(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}

	for {
		if s.awaiting != nil {
			if err := s.await(s.awaiting, s.readTimeout, "read"); err != nil {
				return 0, err
			}
		}

		s.mu.Lock()
		end := s.bufStart + int64(s.filled)
		if s.pos >= s.bufStart && s.pos < end {
			n := copy(p, s.buf[s.pos-s.bufStart:s.filled])
			s.pos += int64(n)
			s.mu.Unlock()
			return n, nil
		}
		eof := s.eof
		s.mu.Unlock()

		if eof {
			return 0, io.EOF
		}
		// Window drained: hand it back for the next one.
		s.request(s.emptySignal, s.fillSignal)
	}
}

// Seek implements io.Seeker.
//
// Seek(0, io.SeekEnd) reports the size without moving the read offset.
func (s *Session) Seek(offset int64, whence int) (int64, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.terminal(); err != nil {
		return 0, err
	}

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		if offset == 0 {
			return s.pos, nil
		}
		target = s.pos + offset
	case io.SeekEnd:
		if s.size < 0 {
			return 0, ErrNotSeekable
		}
		if offset == 0 {
			return s.size, nil
		}
		target = s.size + offset
	default:
		return 0, fmt.Errorf("%w: whence %d", ErrInvalidOffset, whence)
	}
	if s.size < 0 {
		return 0, ErrNotSeekable
	}
	if target < 0 || target > s.size {
		return 0, fmt.Errorf("%w: %d not in [0, %d]", ErrInvalidOffset, target, s.size)
	}
	if target == s.pos {
		return target, nil
	}

	if s.awaiting != nil {
		if err := s.await(s.awaiting, s.readTimeout, "seek"); err != nil {
			return 0, err
		}
	}

	s.mu.Lock()
	inWindow := target >= s.bufStart && target <= s.bufStart+int64(s.filled)
	if !inWindow {
		s.seekTarget = target
	}
	s.mu.Unlock()

	if !inWindow {
		s.log().Debug("seeking outside window", "from", s.pos, "to", target)
		s.request(s.seekSignal, s.seekDoneSignal)
		if err := s.await(s.seekDoneSignal, s.seekTimeout, "seek"); err != nil {
			return 0, err
		}
	}
	s.pos = target
	return target, nil
}

// Close stops the producer, waits for it to exit and releases the source.
// It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		close(s.quitSignal)
		s.cancel()
		<-s.done
		s.log().Debug("stream session closed")
	})
	return nil
}

// terminal returns the error every operation fails with, if any.
func (s *Session) terminal() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fs.ErrClosed
	}
	return s.err
}

// request gives the window back to the producer with signal and records
// the answer the consumer has to wait for.
func (s *Session) request(signal, answer chan struct{}) {
	s.awaiting = answer
	notify(signal)
}

// await waits for the producer's answer on ch, bounded by timeout.
func (s *Session) await(ch chan struct{}, timeout time.Duration, op string) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		s.awaiting = nil
		return nil
	case <-s.quitSignal:
		return fs.ErrClosed
	case <-s.done:
		if err := s.terminal(); err != nil {
			return err
		}
		return fs.ErrClosed
	case <-timer.C:
		s.log().Warn("stream producer timed out", "op", op, "timeout", timeout, "pos", s.pos)
		s.fail(ErrTimeout)
		return ErrTimeout
	}
}

// fail records the first terminal error.
func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// produce is the producer goroutine.
func (s *Session) produce() {
	defer close(s.done)

	var (
		rc       io.ReadCloser
		produced int64 // offset of rc within the member
		target   int64 // offset the next window starts at
		answer   = s.fillSignal
	)
	defer func() {
		if rc != nil {
			_ = rc.Close() //nolint:errcheck // nothing to report to
		}
	}()

	for {
		if rc == nil || target < produced {
			if rc != nil {
				_ = rc.Close() //nolint:errcheck // reopening
				rc = nil
			}
			r, err := s.src.Open(s.ctx)
			if err != nil {
				s.producerFailed(err)
				return
			}
			rc, produced = r, 0
		}

		reachedEOF := false
		if target > produced {
			n, err := s.discard(rc, target-produced)
			produced += n
			switch {
			case errors.Is(err, io.EOF):
				reachedEOF = true
			case err != nil:
				s.producerFailed(err)
				return
			}
		}

		var n int
		if !reachedEOF {
			var err error
			n, reachedEOF, err = s.fill(rc)
			produced += int64(n)
			if err != nil {
				s.producerFailed(err)
				return
			}
		}
		if s.size >= 0 && produced >= s.size {
			reachedEOF = true
		}

		s.mu.Lock()
		s.bufStart = produced - int64(n)
		s.filled = n
		s.eof = reachedEOF
		s.mu.Unlock()
		notify(answer)

		select {
		case <-s.emptySignal:
			target = produced
			answer = s.fillSignal
		case <-s.seekSignal:
			s.mu.Lock()
			target = s.seekTarget
			s.mu.Unlock()
			answer = s.seekDoneSignal
		case <-s.quitSignal:
			return
		}
	}
}

// producerFailed records a producer error unless the session is closing.
func (s *Session) producerFailed(err error) {
	if errors.Is(err, errQuit) {
		return
	}
	select {
	case <-s.quitSignal:
		return
	default:
	}
	if errors.Is(err, fs.ErrNotExist) && !errors.Is(err, ErrVolumeMissing) {
		err = fmt.Errorf("%w: %w", ErrVolumeMissing, err)
	}
	s.log().Warn("stream producer failed", "error", err)
	s.fail(err)
}

// discard decompresses and drops n bytes. It returns io.EOF if the member
// ends first.
func (s *Session) discard(r io.Reader, n int64) (int64, error) {
	scratch := make([]byte, min(n, discardUnit))
	var done int64
	for done < n {
		select {
		case <-s.quitSignal:
			return done, errQuit
		default:
		}
		m, err := io.ReadFull(r, scratch[:min(n-done, int64(len(scratch)))])
		done += int64(m)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return done, io.EOF
		}
		if err != nil {
			return done, err
		}
	}
	return done, nil
}

// fill reads into the window until it is full or the member ends.
func (s *Session) fill(r io.Reader) (n int, eof bool, err error) {
	for n < len(s.buf) {
		select {
		case <-s.quitSignal:
			return n, false, errQuit
		default:
		}
		m, err := r.Read(s.buf[n:])
		n += m
		if errors.Is(err, io.EOF) {
			return n, true, nil
		}
		if err != nil {
			return n, false, err
		}
	}
	return n, false, nil
}
