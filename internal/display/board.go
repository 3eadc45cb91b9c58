package display

import (
	"sync"
	"time"
)

const defaultMaxFinals = 200

// Board is a Sink that keeps the current display state of a session and
// forwards every operation to its subscribers. It marks the newest final card
// as latest; older cards are past.
//
// Board is safe for concurrent use. Subscribers are called with the board
// lock held and must not block.
type Board struct {
	mu        sync.Mutex
	maxFinals int
	now       func() time.Time

	status       Status
	live         *LiveCard
	finals       []FinalCard
	notification *Notification
	notifiedAt   time.Time

	subs   map[uint64]func(Op)
	nextID uint64
}

// BoardOption configures a Board.
type BoardOption func(*Board)

// WithMaxFinals bounds the retained final history. Default: 200.
func WithMaxFinals(n int) BoardOption {
	return func(b *Board) { b.maxFinals = n }
}

// WithBoardClock overrides the clock used to expire notifications.
func WithBoardClock(now func() time.Time) BoardOption {
	return func(b *Board) { b.now = now }
}

// NewBoard returns an empty Board.
func NewBoard(opts ...BoardOption) *Board {
	b := &Board{
		maxFinals: defaultMaxFinals,
		now:       time.Now,
		subs:      make(map[uint64]func(Op)),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Snapshot is a point-in-time copy of a Board.
type Snapshot struct {
	Status       Status        `json:"status"`
	Live         *LiveCard     `json:"live,omitempty"`
	Finals       []FinalCard   `json:"finals"`
	Notification *Notification `json:"notification,omitempty"`
}

// Latest returns the newest final card.
func (s Snapshot) Latest() (FinalCard, bool) {
	if len(s.Finals) == 0 {
		return FinalCard{}, false
	}
	return s.Finals[len(s.Finals)-1], true
}

// Ops returns the operations that rebuild s on an empty sink.
func (s Snapshot) Ops() []Op {
	ops := make([]Op, 0, len(s.Finals)+3)
	st := s.Status
	ops = append(ops, Op{Type: OpStatus, Status: &st})
	for i := range s.Finals {
		c := s.Finals[i]
		ops = append(ops, Op{Type: OpFinalAppend, Final: &c})
	}
	if s.Live != nil {
		c := *s.Live
		ops = append(ops, Op{Type: OpLiveUpsert, Live: &c})
	}
	if s.Notification != nil {
		n := *s.Notification
		ops = append(ops, Op{Type: OpNotification, Notification: &n})
	}
	return ops
}

// Snapshot returns a copy of the current state.
func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Board) snapshotLocked() Snapshot {
	s := Snapshot{
		Status: b.status,
		Finals: append([]FinalCard(nil), b.finals...),
	}
	if b.live != nil {
		c := *b.live
		s.Live = &c
	}
	if n := b.notification; n != nil {
		if n.Persistent() || b.now().Before(b.notifiedAt.Add(n.TTL)) {
			c := *n
			s.Notification = &c
		}
	}
	return s
}

// Subscribe atomically returns the current state and registers fn for every
// later operation. Call cancel to unsubscribe.
func (b *Board) Subscribe(fn func(Op)) (Snapshot, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[id] = fn
	return b.snapshotLocked(), func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

func (b *Board) publishLocked(op Op) {
	for _, fn := range b.subs {
		fn(op)
	}
}

// ShowStatus implements Sink.
func (b *Board) ShowStatus(s Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = s
	b.publishLocked(Op{Type: OpStatus, Status: &s})
}

// UpsertLiveCard implements Sink.
func (b *Board) UpsertLiveCard(c LiveCard) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.live = &c
	b.publishLocked(Op{Type: OpLiveUpsert, Live: &c})
}

// RemoveLiveCard implements Sink. Removing an absent card is a no-op and is
// not forwarded.
func (b *Board) RemoveLiveCard() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.live == nil {
		return
	}
	b.live = nil
	b.publishLocked(Op{Type: OpLiveRemove})
}

// AppendFinalCard implements Sink.
func (b *Board) AppendFinalCard(c FinalCard) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finals = append(b.finals, c)
	if b.maxFinals > 0 && len(b.finals) > b.maxFinals {
		b.finals = append([]FinalCard(nil), b.finals[len(b.finals)-b.maxFinals:]...)
	}
	b.publishLocked(Op{Type: OpFinalAppend, Final: &c})
}

// ShowNotification implements Sink.
func (b *Board) ShowNotification(n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notification = &n
	b.notifiedAt = b.now()
	b.publishLocked(Op{Type: OpNotification, Notification: &n})
}

var _ Sink = (*Board)(nil)
