package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/jurubahasa/internal/session"
)

// Control is the part of a session controller the commands drive.
type Control interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Inspect(ctx context.Context) (session.Info, error)
}

// commandTimeout bounds how long a handler waits for the session loop.
// Discord expects an interaction answer within three seconds.
const commandTimeout = 2 * time.Second

var translateCommand = &discordgo.ApplicationCommand{
	Name:        "translate",
	Description: "Control live translation",
	Options: []*discordgo.ApplicationCommandOption{
		{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "start", Description: "Start listening"},
		{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "stop", Description: "Stop listening and flush pending text"},
		{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "status", Description: "Show the session state"},
	},
}

// Button custom IDs on the status panel.
const (
	buttonPrefix = "translate:"
	buttonStart  = buttonPrefix + "start"
	buttonStop   = buttonPrefix + "stop"
)

// TranslateCommands handles /translate start|stop|status and the Start and
// Stop buttons on the status panel.
type TranslateCommands struct {
	ctrl  Control
	perms *PermissionChecker
}

// NewTranslateCommands creates the handlers for ctrl.
func NewTranslateCommands(ctrl Control, perms *PermissionChecker) *TranslateCommands {
	if perms == nil {
		perms = NewPermissionChecker("")
	}
	return &TranslateCommands{ctrl: ctrl, perms: perms}
}

// Register adds the /translate command to r.
func (tc *TranslateCommands) Register(r *CommandRouter) {
	r.RegisterCommand("translate/start", translateCommand, tc.handleStart)
	r.RegisterCommand("translate/stop", translateCommand, tc.handleStop)
	r.RegisterCommand("translate/status", translateCommand, tc.handleStatus)
	r.RegisterComponentPrefix(buttonPrefix, tc.handleButton)
}

func (tc *TranslateCommands) handleButton(r Responder, i *discordgo.InteractionCreate) {
	switch id := i.MessageComponentData().CustomID; id {
	case buttonStart:
		tc.handleStart(r, i)
	case buttonStop:
		tc.handleStop(r, i)
	default:
		slog.Warn("discord: unknown translate button", "custom_id", id)
		RespondEphemeral(r, i, "Unknown component.")
	}
}

func (tc *TranslateCommands) handleStart(r Responder, i *discordgo.InteractionCreate) {
	tc.operate(r, i, "start", tc.ctrl.Start, "Listening started.")
}

func (tc *TranslateCommands) handleStop(r Responder, i *discordgo.InteractionCreate) {
	tc.operate(r, i, "stop", tc.ctrl.Stop, "Listening stopped.")
}

func (tc *TranslateCommands) operate(r Responder, i *discordgo.InteractionCreate, name string, op func(context.Context) error, ok string) {
	if !tc.perms.IsOperator(i) {
		RespondEphemeral(r, i, "You are not allowed to control the translation session.")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := op(ctx); err != nil {
		slog.Warn("discord: command failed", "command", name, "err", err)
		RespondError(r, i, err)
		return
	}
	RespondEphemeral(r, i, ok)
}

func (tc *TranslateCommands) handleStatus(r Responder, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	info, err := tc.ctrl.Inspect(ctx)
	if err != nil {
		RespondError(r, i, err)
		return
	}
	listening := info.State == session.StateStarting || info.State == session.StateListening || info.State == session.StateEnded
	RespondPanel(r, i, buildInfoEmbed(info),
		discordgo.Button{Label: "Start", Style: discordgo.SuccessButton, CustomID: buttonStart, Disabled: listening},
		discordgo.Button{Label: "Stop", Style: discordgo.DangerButton, CustomID: buttonStop, Disabled: info.State == session.StateIdle},
	)
}

func buildInfoEmbed(info session.Info) *discordgo.MessageEmbed {
	restart := "off"
	if info.RestartEnabled {
		restart = "on"
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Session ID", Value: fmt.Sprintf("`%s`", info.ID), Inline: true},
		{Name: "State", Value: info.State.String(), Inline: true},
		{Name: "Auto restart", Value: restart, Inline: true},
	}
	if t := info.Text.Accumulated; t != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Buffered", Value: t})
	}
	return &discordgo.MessageEmbed{
		Title:       "Translation session",
		Description: info.Text.LastFinalized,
		Color:       embedColorBlue,
		Fields:      fields,
	}
}
