package discord

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/jurubahasa/internal/display"
)

// MessageAPI is the subset of *discordgo.Session the dashboard uses.
type MessageAPI interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
}

// Embed sidebar colours.
const (
	embedColorGreen = 0x2ECC71
	embedColorRed   = 0xE74C3C
	embedColorBlue  = 0x3498DB
	embedColorGrey  = 0x95A5A6
	embedColorAmber = 0xF1C40F
)

// defaultInterval is the default minimum time between two Discord updates.
const defaultInterval = time.Second

// Dashboard is a display.Sink that renders a session into a Discord channel.
//
// The status line and the current notification share one embed that is
// created on first update and edited in place. The live card is a second
// embed, also edited in place, that always sits below the newest final card.
// Every final card is posted as its own message and never touched again.
//
// Sink methods only record the desired state; a background loop pushes it to
// Discord at most once per interval, so rapid live card updates collapse into
// one edit.
//
// Thread-safe for concurrent use.
type Dashboard struct {
	api       MessageAPI
	channelID string
	interval  time.Duration
	now       func() time.Time

	mu           sync.Mutex
	status       display.Status
	statusDirty  bool
	notification *display.Notification
	notifyUntil  time.Time // zero for persistent notifications
	live         *display.LiveCard
	liveDirty    bool
	finals       []display.FinalCard

	flushMu     sync.Mutex // serialises flush; guards the message IDs
	statusMsgID string
	liveMsgID   string

	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// DashboardConfig holds dependencies for creating a Dashboard.
type DashboardConfig struct {
	API       MessageAPI
	ChannelID string
	Interval  time.Duration // Default: 1 second
	Now       func() time.Time
}

// NewDashboard creates a Dashboard.
func NewDashboard(cfg DashboardConfig) *Dashboard {
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultInterval
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Dashboard{
		api:       cfg.API,
		channelID: cfg.ChannelID,
		interval:  interval,
		now:       now,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Start begins the update loop in a background goroutine.
func (d *Dashboard) Start(ctx context.Context) {
	go d.loop(ctx)
}

// Stop halts the update loop after pushing any pending changes.
func (d *Dashboard) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
		d.flush()
	})
}

func (d *Dashboard) loop(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.done:
			return
		case <-ctx.Done():
			return
		case <-d.wake:
			d.flush()
			// Rate limit: the next wake is served no earlier than one interval.
			select {
			case <-d.done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		case <-ticker.C:
			d.expireNotification()
			d.flush()
		}
	}
}

func (d *Dashboard) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// ---- display.Sink ----

// ShowStatus implements display.Sink.
func (d *Dashboard) ShowStatus(s display.Status) {
	d.mu.Lock()
	d.status = s
	d.statusDirty = true
	d.mu.Unlock()
	d.signal()
}

// UpsertLiveCard implements display.Sink.
func (d *Dashboard) UpsertLiveCard(c display.LiveCard) {
	d.mu.Lock()
	d.live = &c
	d.liveDirty = true
	d.mu.Unlock()
	d.signal()
}

// RemoveLiveCard implements display.Sink.
func (d *Dashboard) RemoveLiveCard() {
	d.mu.Lock()
	if d.live != nil {
		d.live = nil
		d.liveDirty = true
	}
	d.mu.Unlock()
	d.signal()
}

// AppendFinalCard implements display.Sink.
func (d *Dashboard) AppendFinalCard(c display.FinalCard) {
	d.mu.Lock()
	d.finals = append(d.finals, c)
	d.mu.Unlock()
	d.signal()
}

// ShowNotification implements display.Sink.
func (d *Dashboard) ShowNotification(n display.Notification) {
	d.mu.Lock()
	d.notification = &n
	d.notifyUntil = time.Time{}
	if !n.Persistent() {
		d.notifyUntil = d.now().Add(n.TTL)
	}
	d.statusDirty = true
	d.mu.Unlock()
	d.signal()
}

func (d *Dashboard) expireNotification() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.notification != nil && !d.notifyUntil.IsZero() && !d.now().Before(d.notifyUntil) {
		d.notification = nil
		d.statusDirty = true
	}
}

// ---- rendering ----

// flush pushes the recorded state to Discord.
func (d *Dashboard) flush() {
	d.flushMu.Lock()
	defer d.flushMu.Unlock()

	d.mu.Lock()
	finals := d.finals
	d.finals = nil
	var live *display.LiveCard
	if d.live != nil {
		c := *d.live
		live = &c
	}
	liveDirty := d.liveDirty || len(finals) > 0
	d.liveDirty = false
	status, notification := d.status, d.notification
	statusDirty := d.statusDirty
	d.statusDirty = false
	d.mu.Unlock()

	if statusDirty {
		d.upsert(&d.statusMsgID, buildStatusEmbed(status, notification))
	}

	// New finals go below the live card's current position, so the live card
	// is deleted and recreated after them.
	if len(finals) > 0 && d.liveMsgID != "" {
		d.deleteLive()
	}
	for _, c := range finals {
		if _, err := d.api.ChannelMessageSendEmbed(d.channelID, buildFinalEmbed(c)); err != nil {
			slog.Warn("discord: failed to post final card", "id", c.ID, "channel", d.channelID, "err", err)
		}
	}
	if !liveDirty {
		return
	}
	if live == nil {
		d.deleteLive()
		return
	}
	d.upsert(&d.liveMsgID, buildLiveEmbed(*live))
}

func (d *Dashboard) upsert(msgID *string, embed *discordgo.MessageEmbed) {
	if *msgID == "" {
		msg, err := d.api.ChannelMessageSendEmbed(d.channelID, embed)
		if err != nil {
			slog.Warn("discord: failed to create embed message", "channel", d.channelID, "err", err)
			return
		}
		*msgID = msg.ID
		slog.Debug("discord: created embed message", "message_id", msg.ID, "channel", d.channelID)
		return
	}
	if _, err := d.api.ChannelMessageEditEmbed(d.channelID, *msgID, embed); err != nil {
		slog.Warn("discord: failed to edit embed message", "message_id", *msgID, "err", err)
	}
}

func (d *Dashboard) deleteLive() {
	if d.liveMsgID == "" {
		return
	}
	if err := d.api.ChannelMessageDelete(d.channelID, d.liveMsgID); err != nil {
		slog.Warn("discord: failed to delete live card", "message_id", d.liveMsgID, "err", err)
	}
	d.liveMsgID = ""
}

func statusColor(k display.StatusKind) int {
	switch k {
	case display.StatusListening, display.StatusInterim:
		return embedColorBlue
	case display.StatusConfirmed:
		return embedColorGreen
	case display.StatusError:
		return embedColorRed
	default:
		return embedColorGrey
	}
}

func buildStatusEmbed(s display.Status, n *display.Notification) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "Live translation",
		Description: s.Text,
		Color:       statusColor(s.Kind),
		Footer:      &discordgo.MessageEmbedFooter{Text: s.Kind.String()},
	}
	if n != nil {
		embed.Fields = []*discordgo.MessageEmbedField{{Name: noticeTitle(n.Level), Value: n.Text}}
		if n.Level == display.LevelError {
			embed.Color = embedColorRed
		}
	}
	return embed
}

func noticeTitle(l display.Level) string {
	switch l {
	case display.LevelWarning:
		return "Warning"
	case display.LevelError:
		return "Error"
	default:
		return "Notice"
	}
}

func buildLiveEmbed(c display.LiveCard) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Description: c.Translated,
		Color:       embedColorAmber,
		Footer:      &discordgo.MessageEmbedFooter{Text: c.Original},
	}
}

func buildFinalEmbed(c display.FinalCard) *discordgo.MessageEmbed {
	footer := c.Original
	if c.Provider != "" {
		footer += " · " + c.Provider
	}
	embed := &discordgo.MessageEmbed{
		Description: c.Translated,
		Color:       embedColorGreen,
		Footer:      &discordgo.MessageEmbedFooter{Text: footer},
	}
	if !c.Timestamp.IsZero() {
		embed.Timestamp = c.Timestamp.UTC().Format(time.RFC3339)
	}
	return embed
}

var _ display.Sink = (*Dashboard)(nil)
