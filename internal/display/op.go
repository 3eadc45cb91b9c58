package display

import "fmt"

// OpType names a display operation on the wire.
type OpType string

const (
	OpStatus       OpType = "status"
	OpLiveUpsert   OpType = "live.upsert"
	OpLiveRemove   OpType = "live.remove"
	OpFinalAppend  OpType = "final.append"
	OpNotification OpType = "notification"
)

// Op is one display operation in serialisable form. Exactly the field that
// matches Type is set. Ops are what websocket viewers and event streams
// receive.
type Op struct {
	Type         OpType        `json:"type"`
	Status       *Status       `json:"status,omitempty"`
	Live         *LiveCard     `json:"live,omitempty"`
	Final        *FinalCard    `json:"final,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}

// Apply replays op onto s.
func (op Op) Apply(s Sink) error {
	switch op.Type {
	case OpStatus:
		if op.Status == nil {
			return fmt.Errorf("display: %s op without status", op.Type)
		}
		s.ShowStatus(*op.Status)
	case OpLiveUpsert:
		if op.Live == nil {
			return fmt.Errorf("display: %s op without card", op.Type)
		}
		s.UpsertLiveCard(*op.Live)
	case OpLiveRemove:
		s.RemoveLiveCard()
	case OpFinalAppend:
		if op.Final == nil {
			return fmt.Errorf("display: %s op without card", op.Type)
		}
		s.AppendFinalCard(*op.Final)
	case OpNotification:
		if op.Notification == nil {
			return fmt.Errorf("display: %s op without notification", op.Type)
		}
		s.ShowNotification(*op.Notification)
	default:
		return fmt.Errorf("display: unknown op type %q", op.Type)
	}
	return nil
}

// OpFunc adapts a function receiving ops to the Sink interface.
type OpFunc func(Op)

func (f OpFunc) ShowStatus(s Status)             { f(Op{Type: OpStatus, Status: &s}) }
func (f OpFunc) UpsertLiveCard(c LiveCard)       { f(Op{Type: OpLiveUpsert, Live: &c}) }
func (f OpFunc) RemoveLiveCard()                 { f(Op{Type: OpLiveRemove}) }
func (f OpFunc) AppendFinalCard(c FinalCard)     { f(Op{Type: OpFinalAppend, Final: &c}) }
func (f OpFunc) ShowNotification(n Notification) { f(Op{Type: OpNotification, Notification: &n}) }

var _ Sink = OpFunc(nil)
