// Package kafka publishes a session's translations to Kafka.
//
// Live card changes go to one topic and final cards to another, so that
// consumers interested only in committed translations never see previews.
// Status lines and notifications are not published.
//
// Sink methods never block: events are queued and written by a background
// goroutine. When the queue is full the event is dropped and counted.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/MrWong99/jurubahasa/internal/display"
	"github.com/MrWong99/jurubahasa/internal/observe"
)

const defaultQueueSize = 256

// MessageWriter is the subset of *kafkago.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config configures a Sink.
type Config struct {
	Brokers    []string
	LiveTopic  string
	FinalTopic string

	// Session keys every message so that one session's events stay ordered
	// within a partition.
	Session string

	// QueueSize bounds the number of unsent events. Default: 256.
	QueueSize int
}

// Validate reports every problem with cfg.
func (cfg Config) Validate() error {
	var errs []error
	if len(cfg.Brokers) == 0 {
		errs = append(errs, errors.New("kafka: at least one broker is required"))
	}
	if cfg.LiveTopic == "" || cfg.FinalTopic == "" {
		errs = append(errs, errors.New("kafka: live and final topics are required"))
	}
	return errors.Join(errs...)
}

// Event is the JSON payload of every message.
type Event struct {
	Session string     `json:"session"`
	Op      display.Op `json:"op"`
	At      time.Time  `json:"at"`
}

// Option configures a Sink.
type Option func(*Sink)

// WithWriters replaces the Kafka writers, mainly for tests.
func WithWriters(live, final MessageWriter) Option {
	return func(s *Sink) {
		s.live = live
		s.final = final
	}
}

// WithMetrics sets the metrics sink for publish counters.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Sink) { s.metrics = m }
}

// WithClock overrides the event timestamp clock.
func WithClock(now func() time.Time) Option {
	return func(s *Sink) { s.now = now }
}

type job struct {
	w     MessageWriter
	topic string
	msg   kafkago.Message
}

// Sink is a display.Sink that publishes live and final translation events.
type Sink struct {
	cfg     Config
	live    MessageWriter
	final   MessageWriter
	metrics *observe.Metrics
	now     func() time.Time

	mu      sync.Mutex // guards closed and sends on queue
	closed  bool
	queue   chan job
	wg      sync.WaitGroup
	dropped atomic.Int64
}

// New creates a Sink and starts its writer goroutine.
func New(cfg Config, opts ...Option) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	s := &Sink{cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if s.live == nil || s.final == nil {
		transport := &kafkago.Transport{
			Dial: (&kafkago.Dialer{Timeout: 10 * time.Second, DualStack: true}).DialFunc,
		}
		s.live = newWriter(cfg.Brokers, cfg.LiveTopic, transport)
		s.final = newWriter(cfg.Brokers, cfg.FinalTopic, transport)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.queue = make(chan job, cfg.QueueSize)

	s.wg.Add(1)
	go s.run()

	slog.Info("kafka: publisher initialised",
		"brokers", cfg.Brokers,
		"live_topic", cfg.LiveTopic,
		"final_topic", cfg.FinalTopic,
		"session", cfg.Session,
	)
	return s, nil
}

func newWriter(brokers []string, topic string, transport *kafkago.Transport) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafkago.RequireOne,
		Transport:    transport,
	}
}

// Dropped returns how many events were discarded because the queue was full
// or the sink was closed.
func (s *Sink) Dropped() int64 { return s.dropped.Load() }

// ShowStatus is not published.
func (s *Sink) ShowStatus(display.Status) {}

// ShowNotification is not published.
func (s *Sink) ShowNotification(display.Notification) {}

// UpsertLiveCard publishes to the live topic.
func (s *Sink) UpsertLiveCard(c display.LiveCard) {
	s.enqueue(s.live, s.cfg.LiveTopic, display.Op{Type: display.OpLiveUpsert, Live: &c})
}

// RemoveLiveCard publishes to the live topic.
func (s *Sink) RemoveLiveCard() {
	s.enqueue(s.live, s.cfg.LiveTopic, display.Op{Type: display.OpLiveRemove})
}

// AppendFinalCard publishes to the final topic.
func (s *Sink) AppendFinalCard(c display.FinalCard) {
	s.enqueue(s.final, s.cfg.FinalTopic, display.Op{Type: display.OpFinalAppend, Final: &c})
}

func (s *Sink) enqueue(w MessageWriter, topic string, op display.Op) {
	payload, err := json.Marshal(Event{Session: s.cfg.Session, Op: op, At: s.now()})
	if err != nil {
		slog.Error("kafka: marshal event", "topic", topic, "err", err)
		return
	}
	msg := kafkago.Message{
		Key:   []byte(s.cfg.Session),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: "op", Value: []byte(op.Type)},
		},
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.queue <- job{w: w, topic: topic, msg: msg}:
	default:
		s.dropped.Add(1)
		slog.Warn("kafka: queue full, event dropped", "topic", topic, "op", op.Type)
	}
}

func (s *Sink) run() {
	defer s.wg.Done()
	for j := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := j.w.WriteMessages(ctx, j.msg)
		cancel()
		status := "ok"
		if err != nil {
			status = "error"
			s.metrics.RecordProviderError(context.Background(), "kafka", j.topic)
			slog.Error("kafka: write failed", "topic", j.topic, "err", err)
		}
		s.metrics.RecordProviderRequest(context.Background(), "kafka", j.topic, status)
	}
}

// Close flushes queued events and closes both writers.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
	return errors.Join(s.live.Close(), s.final.Close())
}

var _ display.Sink = (*Sink)(nil)
