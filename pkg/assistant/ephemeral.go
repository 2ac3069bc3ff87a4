package assistant

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// EphemeralCredential is a short-lived client secret minted for a browser
// client that attaches to the realtime provider directly, so the server API
// key never reaches the page.
type EphemeralCredential struct {
	ClientSecret struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
	ID    string `json:"id"`
	Model string `json:"model"`
	Voice string `json:"voice"`
}

// Minter mints ephemeral realtime credentials.
type Minter struct {
	client openai.Client
	model  string
}

// NewMinter builds a minter for the given provider credentials. baseURL is
// optional and overrides the default API endpoint.
func NewMinter(apiKey, baseURL, model string) *Minter {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Minter{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Mint requests a fresh ephemeral session credential carrying the caller's
// voice and system instructions.
func (m *Minter) Mint(ctx context.Context, voice, instructions string) (*EphemeralCredential, error) {
	body := map[string]interface{}{
		"model": m.model,
		"voice": voice,
	}
	if instructions != "" {
		body["instructions"] = instructions
	}

	var cred EphemeralCredential
	if err := m.client.Post(ctx, "/realtime/sessions", body, &cred); err != nil {
		return nil, fmt.Errorf("failed to mint realtime credential: %w", err)
	}
	if cred.ClientSecret.Value == "" {
		return nil, fmt.Errorf("realtime credential response carried no client secret")
	}
	return &cred, nil
}
