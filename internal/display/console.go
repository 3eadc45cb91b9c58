package display

import (
	"context"
	"log/slog"
)

// Console is a Sink that writes every operation to a structured logger. It
// is the display of headless sessions when no other sink is configured.
type Console struct {
	log *slog.Logger
}

// NewConsole returns a Console logging to l, or to slog.Default when l is nil.
func NewConsole(l *slog.Logger) *Console {
	if l == nil {
		l = slog.Default()
	}
	return &Console{log: l}
}

func (c *Console) ShowStatus(s Status) {
	c.log.Debug("display: status", "kind", s.Kind, "text", s.Text)
}

func (c *Console) UpsertLiveCard(card LiveCard) {
	c.log.Info("display: live", "translated", card.Translated, "original", card.Original)
}

func (c *Console) RemoveLiveCard() {
	c.log.Debug("display: live removed")
}

func (c *Console) AppendFinalCard(card FinalCard) {
	c.log.Info("display: final",
		"id", card.ID,
		"translated", card.Translated,
		"original", card.Original,
		"provider", card.Provider,
	)
}

func (c *Console) ShowNotification(n Notification) {
	level := slog.LevelInfo
	switch n.Level {
	case LevelWarning:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	}
	c.log.Log(context.Background(), level, "display: notification", "text", n.Text, "ttl", n.TTL)
}

var _ Sink = (*Console)(nil)
