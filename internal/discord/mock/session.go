// Package mock provides test doubles for the Discord API surface.
package mock

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// InteractionResponder records interaction responses for test assertions.
type InteractionResponder struct {
	// Responses records all InteractionRespond calls.
	Responses []*discordgo.InteractionResponse

	// Err is returned by InteractionRespond when non-nil.
	Err error
}

// InteractionRespond records the response and returns the configured error.
func (m *InteractionResponder) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	m.Responses = append(m.Responses, resp)
	return m.Err
}

// LastResponse returns the most recently recorded response, or nil.
func (m *InteractionResponder) LastResponse() *discordgo.InteractionResponse {
	if len(m.Responses) == 0 {
		return nil
	}
	return m.Responses[len(m.Responses)-1]
}

// Reset clears all recorded interactions and errors.
func (m *InteractionResponder) Reset() {
	m.Responses = nil
	m.Err = nil
}

// MessageCall is one recorded channel message operation.
type MessageCall struct {
	Method    string // "send", "edit" or "delete"
	ChannelID string
	MessageID string
	Embed     *discordgo.MessageEmbed
}

// Channel records channel message operations and hands out sequential
// message IDs ("m1", "m2", ...).
type Channel struct {
	mu     sync.Mutex
	calls  []MessageCall
	nextID int

	// Err is returned by every call when non-nil.
	Err error
}

func (c *Channel) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	c.nextID++
	id := fmt.Sprintf("m%d", c.nextID)
	c.calls = append(c.calls, MessageCall{Method: "send", ChannelID: channelID, MessageID: id, Embed: embed})
	return &discordgo.Message{ID: id, ChannelID: channelID}, nil
}

func (c *Channel) ChannelMessageEditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	c.calls = append(c.calls, MessageCall{Method: "edit", ChannelID: channelID, MessageID: messageID, Embed: embed})
	return &discordgo.Message{ID: messageID, ChannelID: channelID}, nil
}

func (c *Channel) ChannelMessageDelete(channelID, messageID string, _ ...discordgo.RequestOption) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.calls = append(c.calls, MessageCall{Method: "delete", ChannelID: channelID, MessageID: messageID})
	return nil
}

// Calls returns a copy of the recorded calls.
func (c *Channel) Calls() []MessageCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]MessageCall(nil), c.calls...)
}

// Methods returns the recorded methods in order.
func (c *Channel) Methods() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	for i, call := range c.calls {
		out[i] = call.Method
	}
	return out
}
