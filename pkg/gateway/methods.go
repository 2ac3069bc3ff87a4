package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iasted/iasted/pkg/assistant"
	"github.com/iasted/iasted/pkg/clientstate"
	"github.com/iasted/iasted/pkg/prompt"
)

func (s *Server) registerMethods() {
	_ = s.router.Register("assistant.connect", s.handleAssistantConnect)
	_ = s.router.Register("assistant.disconnect", s.handleAssistantDisconnect)
	_ = s.router.Register("assistant.set_rate", s.handleSetRate)
	_ = s.router.Register("assistant.set_voice", s.handleSetVoice)
	_ = s.router.Register("assistant.state", s.handleAssistantState)
	_ = s.router.Register("assistant.credential", s.handleCredential)
	_ = s.router.Register("form.state", s.handleFormState)
	_ = s.router.Register("form.mount", s.handleFormMount)
	_ = s.router.Register("form.set_field", s.handleFormSetField)
	_ = s.router.Register("form.set_step", s.handleFormSetStep)
	_ = s.router.Register("routes.resolve", s.handleRouteResolve)
	_ = s.router.Register("status", s.handleStatus)
}

// handleAssistantConnect builds a session for this client and opens the
// realtime channel. The caller describes itself: device, role,
// identification mode and current route.
func (s *Server) handleAssistantConnect(client *Client, params map[string]interface{}) (interface{}, error) {
	if client.SessionID != "" {
		if session, ok := s.cfg.Manager.Get(client.SessionID); ok && session.State() != assistant.StateIdle {
			return nil, &Error{Code: InvalidRequest, Message: "session already connected"}
		}
		s.cfg.Manager.Remove(client.SessionID)
		client.SessionID = ""
	}

	deviceID, _ := params["device_id"].(string)
	if deviceID == "" {
		return nil, &Error{Code: InvalidParams, Message: "device_id is required"}
	}
	client.DeviceID = deviceID
	client.Role, _ = params["role"].(string)
	client.Identification, _ = params["identification"].(string)
	if client.Identification == "" {
		client.Identification = "anonymous"
	}
	route, _ := params["route"].(string)
	theme, _ := params["theme"].(string)

	voice, _ := params["voice"].(string)
	if voice != "" && !s.voiceAllowed(voice) {
		voice = ""
	}
	if voice == "" {
		voice = s.cfg.State.VoicePreference(deviceID, s.cfg.DefaultVoice)
	}

	sessionID := uuid.New().String()
	collab := newClientCollaborators(client, s.broadcaster, theme, voice)

	session, err := s.cfg.Manager.Create(assistant.SessionParams{
		SessionID:      sessionID,
		ClientID:       client.ID,
		DeviceID:       deviceID,
		UserRole:       client.Role,
		Identification: client.Identification,
	}, assistant.Collaborators{
		Voice:     collab,
		UI:        collab,
		Nav:       collab,
		Auth:      collab,
		Notify:    collab,
		Authorize: s.cfg.Authorize,
		Services:  s.cfg.Services,
	})
	if err != nil {
		return nil, &Error{Code: InternalError, Message: err.Error()}
	}
	collab.bindSession(session)

	instructions := s.cfg.Composer.Compose(prompt.Inputs{
		RoleTitle:          client.Role,
		TimeOfDay:          timeOfDay(),
		IdentificationMode: client.Identification,
		QuestionsRemaining: s.cfg.State.QuestionsRemaining(client.ID, s.cfg.Manager.QuestionAllowance()),
		RouteContext:       route,
		FormSnapshot:       s.cfg.Forms.Snapshot(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := session.Connect(ctx, voice, instructions); err != nil {
		s.cfg.Manager.Remove(sessionID)
		return nil, &Error{Code: InternalError, Message: err.Error()}
	}

	client.SessionID = sessionID
	return map[string]interface{}{
		"session_id": sessionID,
		"state":      string(session.State()),
		"voice":      voice,
	}, nil
}

func (s *Server) handleAssistantDisconnect(client *Client, _ map[string]interface{}) (interface{}, error) {
	if client.SessionID == "" {
		// Idempotent, nothing attached.
		return map[string]interface{}{"state": string(assistant.StateIdle)}, nil
	}
	s.cfg.Manager.Remove(client.SessionID)
	client.SessionID = ""
	return map[string]interface{}{"state": string(assistant.StateIdle)}, nil
}

func (s *Server) handleSetRate(client *Client, params map[string]interface{}) (interface{}, error) {
	session, err := s.clientSession(client)
	if err != nil {
		return nil, err
	}
	rate, ok := params["rate"].(float64)
	if !ok {
		return nil, &Error{Code: InvalidParams, Message: "rate is required"}
	}
	return map[string]interface{}{"rate": session.SetSpeechRate(rate)}, nil
}

func (s *Server) handleSetVoice(client *Client, params map[string]interface{}) (interface{}, error) {
	voice, ok := params["voice"].(string)
	if !ok || voice == "" {
		return nil, &Error{Code: InvalidParams, Message: "voice is required"}
	}
	if !s.voiceAllowed(voice) {
		return nil, &Error{Code: InvalidParams, Message: fmt.Sprintf("unknown voice %q", voice)}
	}
	if client.DeviceID != "" {
		if err := s.cfg.State.SetVoicePreference(client.DeviceID, voice); err != nil {
			return nil, &Error{Code: InternalError, Message: "failed to persist voice preference"}
		}
	}
	s.broadcaster.SendTo(client, "command.voice", map[string]interface{}{"voice": voice})
	return map[string]interface{}{"voice": voice}, nil
}

func (s *Server) handleAssistantState(client *Client, _ map[string]interface{}) (interface{}, error) {
	if client.SessionID == "" {
		return map[string]interface{}{"state": string(assistant.StateIdle)}, nil
	}
	session, ok := s.cfg.Manager.Get(client.SessionID)
	if !ok {
		return map[string]interface{}{"state": string(assistant.StateIdle)}, nil
	}
	return map[string]interface{}{
		"state":       string(session.State()),
		"voice_state": string(session.VoiceState()),
		"rate":        session.SpeechRate(),
	}, nil
}

// handleCredential mints an ephemeral realtime credential for clients that
// attach to the provider directly.
func (s *Server) handleCredential(client *Client, params map[string]interface{}) (interface{}, error) {
	if s.cfg.Minter == nil {
		return nil, &Error{Code: MethodNotFound, Message: "credential minting is not configured"}
	}
	voice, _ := params["voice"].(string)
	if voice == "" && client.DeviceID != "" {
		voice = s.cfg.State.VoicePreference(client.DeviceID, s.cfg.DefaultVoice)
	}
	route, _ := params["route"].(string)

	instructions := s.cfg.Composer.Compose(prompt.Inputs{
		RoleTitle:          client.Role,
		TimeOfDay:          timeOfDay(),
		IdentificationMode: client.Identification,
		QuestionsRemaining: s.cfg.State.QuestionsRemaining(client.ID, s.cfg.Manager.QuestionAllowance()),
		RouteContext:       route,
		FormSnapshot:       s.cfg.Forms.Snapshot(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	cred, err := s.cfg.Minter.Mint(ctx, voice, instructions)
	if err != nil {
		return nil, &Error{Code: InternalError, Message: err.Error()}
	}
	return cred, nil
}

func (s *Server) handleFormState(_ *Client, _ map[string]interface{}) (interface{}, error) {
	return s.cfg.Forms.Snapshot(), nil
}

// handleFormMount is called when a form-bearing page mounts: it resets the
// assist state to that form.
func (s *Server) handleFormMount(_ *Client, params map[string]interface{}) (interface{}, error) {
	formID, _ := params["form_id"].(string)
	if formID == "" {
		return nil, &Error{Code: InvalidParams, Message: "form_id is required"}
	}
	maxSteps := 0
	if v, ok := params["max_steps"].(float64); ok {
		maxSteps = int(v)
	}
	s.cfg.Forms.SetCurrentForm(formID, maxSteps)
	return s.cfg.Forms.Snapshot(), nil
}

// handleFormSetField records a manual user edit, which clears the
// auto-filled provenance for that field.
func (s *Server) handleFormSetField(_ *Client, params map[string]interface{}) (interface{}, error) {
	field, _ := params["field"].(string)
	if field == "" {
		return nil, &Error{Code: InvalidParams, Message: "field is required"}
	}
	value := fmt.Sprintf("%v", params["value"])
	s.cfg.Forms.SetField(field, value, "user")
	return map[string]interface{}{"field": field, "value": value}, nil
}

func (s *Server) handleFormSetStep(_ *Client, params map[string]interface{}) (interface{}, error) {
	step, ok := params["step"].(float64)
	if !ok {
		return nil, &Error{Code: InvalidParams, Message: "step is required"}
	}
	applied := s.cfg.Forms.SetCurrentStep(int(step))
	return map[string]interface{}{"step": applied}, nil
}

func (s *Server) handleRouteResolve(_ *Client, params map[string]interface{}) (interface{}, error) {
	query, _ := params["query"].(string)
	if query == "" {
		return nil, &Error{Code: InvalidParams, Message: "query is required"}
	}
	path, found := s.cfg.Routes.Resolve(query)
	return map[string]interface{}{"path": path, "found": found}, nil
}

func (s *Server) handleStatus(client *Client, _ map[string]interface{}) (interface{}, error) {
	status := map[string]interface{}{
		"clients":  s.clients.Count(),
		"sessions": s.cfg.Manager.Count(),
	}
	if client.DeviceID != "" {
		status["security_override"] = s.cfg.State.SecurityOverride(client.DeviceID)
		status["voice_preference"] = s.cfg.State.VoicePreference(client.DeviceID, s.cfg.DefaultVoice)
	}
	if target, ok := s.cfg.State.GetSession(client.ID, clientstate.KeyRedirectTarget); ok {
		status["redirect_target"] = target
	}
	return status, nil
}

func (s *Server) clientSession(client *Client) (*assistant.Session, *Error) {
	if client.SessionID == "" {
		return nil, &Error{Code: InvalidRequest, Message: "no assistant session attached"}
	}
	session, ok := s.cfg.Manager.Get(client.SessionID)
	if !ok {
		return nil, &Error{Code: InvalidRequest, Message: "no assistant session attached"}
	}
	return session, nil
}

// voiceAllowed checks a requested voice against the configured list. An empty
// list accepts anything.
func (s *Server) voiceAllowed(voice string) bool {
	if len(s.cfg.Voices) == 0 {
		return true
	}
	for _, v := range s.cfg.Voices {
		if v == voice {
			return true
		}
	}
	return false
}

func timeOfDay() string {
	switch h := time.Now().Hour(); {
	case h < 12:
		return "morning"
	case h < 18:
		return "afternoon"
	default:
		return "evening"
	}
}
