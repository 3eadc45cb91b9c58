package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Source is a live audio input. Frames captured while nobody is subscribed are
// discarded, the way a microphone keeps running while nothing listens.
type Source interface {
	// Format returns the native format of emitted frames.
	Format() Format

	// Subscribe returns a channel of frames that is closed when ctx is done
	// or the source ends.
	Subscribe(ctx context.Context) <-chan Frame
}

const (
	defaultFrameDuration = 20 * time.Millisecond
	subscriberBuffer     = 64
)

// ReaderSource reads raw PCM from an io.Reader (stdin, a FIFO, a file) and
// broadcasts it to subscribers.
type ReaderSource struct {
	r        io.Reader
	format   Format
	frameDur time.Duration
	realtime bool

	mu   sync.Mutex
	subs map[chan Frame]struct{}
	done bool
}

// ReaderOption configures a ReaderSource.
type ReaderOption func(*ReaderSource)

// WithFrameDuration sets the duration of each emitted frame. Default: 20ms.
func WithFrameDuration(d time.Duration) ReaderOption {
	return func(s *ReaderSource) { s.frameDur = d }
}

// WithRealtime paces reads to wall-clock time. Use it for pre-recorded files
// so that recognisers see audio at the rate it was spoken.
func WithRealtime(on bool) ReaderOption {
	return func(s *ReaderSource) { s.realtime = on }
}

// NewReaderSource returns a Source reading PCM in format f from r. Call Run
// to start capturing.
func NewReaderSource(r io.Reader, f Format, opts ...ReaderOption) (*ReaderSource, error) {
	if r == nil {
		return nil, errors.New("audio: reader must not be nil")
	}
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return nil, fmt.Errorf("audio: invalid format %s", f)
	}
	s := &ReaderSource{
		r:        r,
		format:   f,
		frameDur: defaultFrameDuration,
		subs:     make(map[chan Frame]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Format implements Source.
func (s *ReaderSource) Format() Format { return s.format }

// Subscribe implements Source.
func (s *ReaderSource) Subscribe(ctx context.Context) <-chan Frame {
	ch := make(chan Frame, subscriberBuffer)
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		close(ch)
		return ch
	}
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.unsubscribe(ch)
	}()
	return ch
}

func (s *ReaderSource) unsubscribe(ch chan Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
}

// Run reads frames until the reader is exhausted or ctx is cancelled. EOF is
// not an error. All subscriber channels are closed when Run returns.
func (s *ReaderSource) Run(ctx context.Context) error {
	defer s.closeAll()

	size := s.format.FrameBytes(s.frameDur)
	if size <= 0 {
		return fmt.Errorf("audio: frame duration %s too short for %s", s.frameDur, s.format)
	}

	var tick <-chan time.Time
	if s.realtime {
		ticker := time.NewTicker(s.frameDur)
		defer ticker.Stop()
		tick = ticker.C
	}

	var offset time.Duration
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		buf := make([]byte, size)
		n, err := io.ReadFull(s.r, buf)
		if n > 0 {
			s.broadcast(Frame{Data: buf[:n-n%(s.format.Channels*2)], Format: s.format, Timestamp: offset})
			offset += s.frameDur
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			slog.Debug("audio: source exhausted", "captured", offset)
			return nil
		}
		if err != nil {
			return fmt.Errorf("audio: read: %w", err)
		}
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		}
	}
}

// broadcast delivers f to every subscriber without blocking; slow
// subscribers lose frames.
func (s *ReaderSource) broadcast(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- f:
		default:
		}
	}
}

func (s *ReaderSource) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
}

var _ Source = (*ReaderSource)(nil)
