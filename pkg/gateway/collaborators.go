package gateway

import (
	"sync"

	"github.com/iasted/iasted/pkg/assistant"
)

// clientCollaborators implement the tool-facing capabilities for one attached
// browser client by forwarding command frames over its websocket. The browser
// executes them in the page (router push, toast, theme class, scrolling).
type clientCollaborators struct {
	client      *Client
	broadcaster *Broadcaster

	mu      sync.Mutex
	theme   string
	voice   string
	session *assistant.Session
}

func newClientCollaborators(client *Client, b *Broadcaster, theme, voice string) *clientCollaborators {
	if theme == "" {
		theme = "light"
	}
	return &clientCollaborators{
		client:      client,
		broadcaster: b,
		theme:       theme,
		voice:       voice,
	}
}

// bindSession attaches the realtime session once it exists, so speech rate
// changes reach the live channel.
func (c *clientCollaborators) bindSession(s *assistant.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
}

func (c *clientCollaborators) Navigate(path string, state map[string]interface{}) {
	c.broadcaster.SendTo(c.client, "command.navigate", map[string]interface{}{
		"path":  path,
		"state": state,
	})
}

func (c *clientCollaborators) SignOut() error {
	c.broadcaster.SendTo(c.client, "command.sign_out", nil)
	return nil
}

func (c *clientCollaborators) Toast(level, message string) {
	c.broadcaster.SendTo(c.client, "command.toast", map[string]interface{}{
		"level":   level,
		"message": message,
	})
}

func (c *clientCollaborators) SetTheme(theme string) error {
	c.mu.Lock()
	c.theme = theme
	c.mu.Unlock()
	c.broadcaster.SendTo(c.client, "command.theme", map[string]interface{}{"theme": theme})
	return nil
}

func (c *clientCollaborators) ToggleTheme() string {
	c.mu.Lock()
	if c.theme == "dark" {
		c.theme = "light"
	} else {
		c.theme = "dark"
	}
	theme := c.theme
	c.mu.Unlock()
	c.broadcaster.SendTo(c.client, "command.theme", map[string]interface{}{"theme": theme})
	return theme
}

func (c *clientCollaborators) ScrollTo(sectionID string) error {
	c.broadcaster.SendTo(c.client, "command.scroll", map[string]interface{}{"section_id": sectionID})
	return nil
}

func (c *clientCollaborators) CurrentVoice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voice
}

func (c *clientCollaborators) SetVoice(voice string) error {
	c.mu.Lock()
	c.voice = voice
	c.mu.Unlock()
	c.broadcaster.SendTo(c.client, "command.voice", map[string]interface{}{"voice": voice})
	return nil
}

func (c *clientCollaborators) SetSpeechRate(rate float64) float64 {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		if rate < 0.5 {
			rate = 0.5
		}
		if rate > 2.0 {
			rate = 2.0
		}
		return rate
	}
	return session.SetSpeechRate(rate)
}
