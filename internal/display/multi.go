package display

// Multi fans every operation out to several sinks in order.
type Multi []Sink

// NewMulti returns a Multi over the non-nil sinks.
func NewMulti(sinks ...Sink) Multi {
	m := make(Multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

func (m Multi) ShowStatus(s Status) {
	for _, sink := range m {
		sink.ShowStatus(s)
	}
}

func (m Multi) UpsertLiveCard(c LiveCard) {
	for _, sink := range m {
		sink.UpsertLiveCard(c)
	}
}

func (m Multi) RemoveLiveCard() {
	for _, sink := range m {
		sink.RemoveLiveCard()
	}
}

func (m Multi) AppendFinalCard(c FinalCard) {
	for _, sink := range m {
		sink.AppendFinalCard(c)
	}
}

func (m Multi) ShowNotification(n Notification) {
	for _, sink := range m {
		sink.ShowNotification(n)
	}
}

var _ Sink = Multi(nil)
