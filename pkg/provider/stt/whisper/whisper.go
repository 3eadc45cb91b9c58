// Package whisper provides a speech recognition capability backed by a
// running whisper.cpp server (POST /inference).
//
// whisper.cpp is a batch engine, so the recognizer segments incoming audio
// with an energy-based silence detector and submits each utterance as one
// inference request. Every committed utterance is reported as a single final
// result; no interim results are produced. When the recognizer is not
// continuous the session ends after the first committed utterance, which
// yields the session-per-fragment behaviour of mobile speech engines.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", src,
//	    whisper.WithSilenceThresholdMs(500),
//	)
//	rec, err := p.NewRecognizer(stt.Config{Language: "id", Continuous: false})
package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/jurubahasa/pkg/audio"
	"github.com/MrWong99/jurubahasa/pkg/provider/stt"
)

const (
	// defaultRMSThreshold is the RMS energy (in 16-bit PCM units) below which
	// a chunk counts as silence.
	defaultRMSThreshold = 300.0

	defaultSampleRate          = 16000
	defaultSilenceThresholdMs  = 500
	defaultMaxBufferDurationMs = 10_000
	eventBuffer                = 64
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the server. When empty the
// server uses whichever model it was started with.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithSampleRate sets the sample rate audio is converted to before inference.
// Defaults to 16000, which is what whisper.cpp expects.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithSilenceThresholdMs sets the trailing silence that commits an
// utterance. Defaults to 500 ms.
func WithSilenceThresholdMs(ms int) Option {
	return func(p *Provider) {
		p.silenceThresholdMs = ms
	}
}

// WithMaxBufferDurationMs sets the longest utterance buffered before a commit
// is forced regardless of silence. Defaults to 10 000 ms.
func WithMaxBufferDurationMs(ms int) Option {
	return func(p *Provider) {
		p.maxBufferDurationMs = ms
	}
}

// WithHTTPClient replaces the HTTP client used for inference requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL           string
	source              audio.Source
	model               string
	sampleRate          int
	silenceThresholdMs  int
	maxBufferDurationMs int
	httpClient          *http.Client
}

// New creates a Provider for the whisper.cpp server at serverURL (e.g.
// "http://localhost:8080") reading audio from source.
func New(serverURL string, source audio.Source, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:           strings.TrimRight(serverURL, "/"),
		source:              source,
		sampleRate:          defaultSampleRate,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
		httpClient:          &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// NewRecognizer implements stt.Provider.
func (p *Provider) NewRecognizer(cfg stt.Config) (stt.Recognizer, error) {
	if p.source == nil {
		return nil, fmt.Errorf("whisper: no audio source: %w", stt.ErrUnavailable)
	}
	return &recognizer{
		p:      p,
		cfg:    cfg,
		lang:   baseLanguage(cfg.Language),
		events: make(chan stt.Event, eventBuffer),
		done:   make(chan struct{}),
	}, nil
}

// baseLanguage reduces a BCP-47 tag to the primary subtag whisper.cpp
// understands ("id-ID" -> "id").
func baseLanguage(tag string) string {
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		return strings.ToLower(tag[:i])
	}
	return strings.ToLower(tag)
}

// ---- recognizer ----

type recognizer struct {
	p      *Provider
	cfg    stt.Config
	lang   string
	events chan stt.Event

	mu     sync.Mutex
	active *session
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

type session struct {
	cancel   context.CancelFunc
	stopCh   chan struct{}
	stopOnce sync.Once
}

func (s *session) requestStop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Start implements stt.Recognizer.
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

// Stop implements stt.Recognizer. Buffered speech is still transcribed.
func (r *recognizer) Stop() error {
	r.mu.Lock()
	s := r.active
	r.mu.Unlock()
	if s != nil {
		s.requestStop()
	}
	return nil
}

// Abort implements stt.Recognizer. Buffered speech is discarded.
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

// Close implements stt.Recognizer.
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

// run is the single goroutine of a session. All buffering state is confined
// to it.
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

	r.emit(stt.StartEvent())

	target := audio.Format{SampleRate: r.p.sampleRate, Channels: 1}
	frames := audio.ConvertStream(r.p.source.Subscribe(ctx), target)

	var (
		buffer    []byte
		hadSpeech bool
		silenceMs int
	)
	maxBufferBytes := target.FrameBytes(time.Duration(r.p.maxBufferDurationMs) * time.Millisecond)

	// commit transcribes the buffered utterance and reports whether the
	// session should end because it is session-per-fragment.
	commit := func(cctx context.Context) bool {
		pcm := buffer
		speech := hadSpeech
		buffer, hadSpeech, silenceMs = nil, false, 0
		if len(pcm) == 0 || !speech {
			return false
		}
		text, err := r.infer(cctx, pcm)
		if err != nil {
			if ctx.Err() == nil {
				r.emit(stt.ErrorEvent(stt.CodeNetwork, err.Error()))
			}
			return false
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return false
		}
		r.emit(stt.ResultEvent(0, stt.Result{Transcript: text, IsFinal: true}))
		return !r.cfg.Continuous
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-s.stopCh:
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			commit(fctx)
			cancel()
			return

		case f, ok := <-frames:
			if !ok {
				commit(ctx)
				return
			}
			chunkMs := int(int64(len(f.Data)) * 1000 / int64(target.BytesPerSecond()))
			if computeRMS(f.Data) < defaultRMSThreshold {
				if !hadSpeech {
					continue
				}
				silenceMs += chunkMs
				buffer = append(buffer, f.Data...)
				if silenceMs >= r.p.silenceThresholdMs && commit(ctx) {
					return
				}
				continue
			}
			hadSpeech = true
			silenceMs = 0
			buffer = append(buffer, f.Data...)
			if maxBufferBytes > 0 && len(buffer) >= maxBufferBytes && commit(ctx) {
				return
			}
		}
	}
}

// infer uploads pcm as a WAV file to the /inference endpoint and returns the
// transcribed text.
func (r *recognizer) infer(ctx context.Context, pcm []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(encodeWAV(pcm, r.p.sampleRate, 1)); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}
	if r.lang != "" {
		if err := mw.WriteField("language", r.lang); err != nil {
			return "", fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if r.p.model != "" {
		if err := mw.WriteField("model", r.p.model); err != nil {
			return "", fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("whisper: write format field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.p.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := r.p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}
	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	slog.Debug("whisper: utterance transcribed", "bytes", len(pcm), "chars", len(result.Text))
	return result.Text, nil
}

// ---- helpers ----------------------------------------------------------------

// encodeWAV wraps 16-bit PCM in a RIFF/WAV container.
func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const bps = 16
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bps))

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)
	return buf
}

// computeRMS returns the root-mean-square energy of 16-bit PCM.
func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
