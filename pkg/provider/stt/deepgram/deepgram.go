// Package deepgram provides a speech recognition capability backed by the
// Deepgram streaming WebSocket API. Audio is taken from an [audio.Source].
//
// Each Start opens one streaming connection. In continuous mode the
// connection stays open until Stop, Abort or the server closes it; otherwise
// the session is closed after the first committed fragment, mirroring
// session-per-fragment recognisers.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/jurubahasa/pkg/audio"
	"github.com/MrWong99/jurubahasa/pkg/provider/stt"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "id"
	defaultSampleRate = 16000
	eventBuffer       = 64
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithEndpoint overrides the streaming endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// WithSampleRate sets the sample rate audio is converted to before upload.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithMaxSession bounds how long a single session may stay open. When the
// limit is reached the session is stopped gracefully and ends on its own.
// Zero means unbounded.
func WithMaxSession(d time.Duration) Option {
	return func(p *Provider) {
		p.maxSession = d
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey     string
	source     audio.Source
	endpoint   string
	model      string
	sampleRate int
	maxSession time.Duration
}

// New creates a new Deepgram Provider reading audio from source. apiKey must
// be non-empty.
func New(apiKey string, source audio.Source, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		source:     source,
		endpoint:   deepgramEndpoint,
		model:      defaultModel,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// NewRecognizer implements stt.Provider. Without an audio source there is
// nothing to recognise and ErrUnavailable is returned.
func (p *Provider) NewRecognizer(cfg stt.Config) (stt.Recognizer, error) {
	if p.source == nil {
		return nil, fmt.Errorf("deepgram: no audio source: %w", stt.ErrUnavailable)
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = p.sampleRate
	}
	return &recognizer{
		p:      p,
		cfg:    cfg,
		events: make(chan stt.Event, eventBuffer),
		done:   make(chan struct{}),
	}, nil
}

// buildURL constructs the streaming endpoint URL for cfg.
func (p *Provider) buildURL(cfg stt.Config) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = defaultLanguage
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = p.sampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("interim_results", strconv.FormatBool(cfg.InterimResults))
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sr))
	q.Set("channels", "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

var _ stt.Provider = (*Provider)(nil)

// ---- recognizer ----

type recognizer struct {
	p      *Provider
	cfg    stt.Config
	events chan stt.Event

	mu     sync.Mutex
	active *session
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// session is one streaming connection.
type session struct {
	cancel   context.CancelFunc
	stopCh   chan struct{}
	stopOnce sync.Once
}

func (s *session) requestStop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Start implements stt.Recognizer. The connection is dialled in the
// background; dial failures are reported as an error event followed by an
// end event.
func (r *recognizer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return stt.ErrClosed
	}
	if r.active != nil {
		return stt.ErrAlreadyStarted
	}
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &session{cancel: cancel, stopCh: make(chan struct{})}
	r.active = s
	r.wg.Add(1)
	go r.run(sctx, s)
	return nil
}

// Stop implements stt.Recognizer.
func (r *recognizer) Stop() error {
	r.mu.Lock()
	s := r.active
	r.mu.Unlock()
	if s != nil {
		s.requestStop()
	}
	return nil
}

// Abort implements stt.Recognizer.
func (r *recognizer) Abort() error {
	r.mu.Lock()
	s := r.active
	r.mu.Unlock()
	if s != nil {
		s.cancel()
	}
	return nil
}

// Events implements stt.Recognizer.
func (r *recognizer) Events() <-chan stt.Event { return r.events }

// Close aborts any active session and closes the event channel.
func (r *recognizer) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	s := r.active
	close(r.done)
	r.mu.Unlock()

	if s != nil {
		s.cancel()
	}
	r.wg.Wait()
	close(r.events)
	return nil
}

func (r *recognizer) emit(ev stt.Event) {
	select {
	case r.events <- ev:
	case <-r.done:
	}
}

// run owns one session from dial to end.
func (r *recognizer) run(ctx context.Context, s *session) {
	defer r.wg.Done()
	defer func() {
		s.cancel()
		r.mu.Lock()
		if r.active == s {
			r.active = nil
		}
		r.mu.Unlock()
		r.emit(stt.EndEvent())
	}()

	conn, err := r.dial(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.emit(stt.Event{Kind: stt.EventError, Err: dialError(err)})
		}
		return
	}
	defer conn.CloseNow()
	r.emit(stt.StartEvent())

	if r.p.maxSession > 0 {
		t := time.AfterFunc(r.p.maxSession, s.requestStop)
		defer t.Stop()
	}

	var writerWG sync.WaitGroup
	writerWG.Add(1)
	go func() {
		defer writerWG.Done()
		r.writeLoop(ctx, conn, s)
	}()

	r.readLoop(ctx, conn, s)
	s.cancel()
	writerWG.Wait()
}

func (r *recognizer) dial(ctx context.Context) (*websocket.Conn, error) {
	wsURL, err := r.p.buildURL(r.cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}
	headers := http.Header{}
	headers.Set("Authorization", "Token "+r.p.apiKey)

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		if resp != nil {
			return nil, &dialStatusError{status: resp.StatusCode, err: err}
		}
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}
	return conn, nil
}

// writeLoop streams audio until the session is stopped or cancelled. A stop
// request sends CloseStream so Deepgram flushes its final results.
func (r *recognizer) writeLoop(ctx context.Context, conn *websocket.Conn, s *session) {
	target := audio.Format{SampleRate: r.cfg.SampleRate, Channels: 1}
	frames := audio.ConvertStream(r.p.source.Subscribe(ctx), target)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
				slog.Debug("deepgram: close stream", "err", err)
			}
			return
		case f, ok := <-frames:
			if !ok {
				s.requestStop()
				frames = nil
				continue
			}
			if err := conn.Write(ctx, websocket.MessageBinary, f.Data); err != nil {
				return
			}
		}
	}
}

// readLoop forwards Results messages as result events until the connection
// closes.
func (r *recognizer) readLoop(ctx context.Context, conn *websocket.Conn, s *session) {
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				r.emit(stt.ErrorEvent(stt.CodeNetwork, err.Error()))
			}
			return
		}

		res, ok := parseResponse(msg)
		if !ok {
			continue
		}
		r.emit(stt.ResultEvent(0, res))
		if res.IsFinal && !r.cfg.Continuous {
			s.requestStop()
		}
	}
}

// dialStatusError is a handshake failure with an HTTP status.
type dialStatusError struct {
	status int
	err    error
}

func (e *dialStatusError) Error() string {
	return fmt.Sprintf("deepgram: dial: HTTP %d: %v", e.status, e.err)
}

func (e *dialStatusError) Unwrap() error { return e.err }

// dialError maps a dial failure to a capability error code.
func dialError(err error) *stt.Error {
	var se *dialStatusError
	if errors.As(err, &se) && (se.status == http.StatusUnauthorized || se.status == http.StatusForbidden) {
		return &stt.Error{Code: stt.CodeNotAllowed, Message: err.Error()}
	}
	return &stt.Error{Code: stt.CodeNetwork, Message: err.Error()}
}

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseResponse parses a raw Deepgram message into a result. It returns false
// for non-result messages and for results without text.
func parseResponse(data []byte) (stt.Result, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Result{}, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return stt.Result{}, false
	}
	alt := resp.Channel.Alternatives[0]
	text := strings.TrimSpace(alt.Transcript)
	if text == "" {
		return stt.Result{}, false
	}
	return stt.Result{
		Transcript: text,
		IsFinal:    resp.IsFinal,
		Confidence: alt.Confidence,
	}, true
}
