// Package clientstate persists the small set of client-side values the
// assistant depends on: device-scoped preferences survive restarts in SQLite,
// browser-session-scoped values live in memory and die with the session.
package clientstate

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// Fixed key names, shared with the portal front end.
const (
	KeyVoicePreference  = "iasted_voice_preference"
	KeySecurityOverride = "iasted_security_override"
	KeyRedirectTarget   = "iasted_post_login_redirect"
	KeyQuestionsLeft    = "iasted_questions_remaining"
)

// Store holds device-scoped preferences (persisted) and session-scoped values
// (in memory, swept when idle).
type Store struct {
	db *sql.DB

	mu       sync.Mutex
	sessions map[string]*sessionState
}

type sessionState struct {
	values   map[string]string
	lastSeen time.Time
}

// NewStore opens (creating if needed) the SQLite preference database.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS device_prefs (
			device_id  TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (device_id, key)
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize state schema: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("Client state store opened")

	return &Store{
		db:       db,
		sessions: make(map[string]*sessionState),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetDevice upserts a device-scoped value.
func (s *Store) SetDevice(deviceID, key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO device_prefs (device_id, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (device_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		deviceID, key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to write device pref %s: %w", key, err)
	}
	return nil
}

// GetDevice reads a device-scoped value.
func (s *Store) GetDevice(deviceID, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM device_prefs WHERE device_id = ? AND key = ?`,
		deviceID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read device pref %s: %w", key, err)
	}
	return value, true, nil
}

// VoicePreference returns the persisted voice for a device, or fallback.
func (s *Store) VoicePreference(deviceID, fallback string) string {
	v, ok, err := s.GetDevice(deviceID, KeyVoicePreference)
	if err != nil {
		log.Warn().Err(err).Msg("Voice preference read failed")
		return fallback
	}
	if !ok {
		return fallback
	}
	return v
}

// SetVoicePreference persists the selected voice for a device.
func (s *Store) SetVoicePreference(deviceID, voice string) error {
	return s.SetDevice(deviceID, KeyVoicePreference, voice)
}

// SecurityOverride reports the device's override flag.
func (s *Store) SecurityOverride(deviceID string) bool {
	v, ok, err := s.GetDevice(deviceID, KeySecurityOverride)
	if err != nil {
		log.Warn().Err(err).Msg("Security override read failed")
		return false
	}
	return ok && v == "true"
}

// SetSecurityOverride persists the device's override flag.
func (s *Store) SetSecurityOverride(deviceID string, active bool) error {
	return s.SetDevice(deviceID, KeySecurityOverride, strconv.FormatBool(active))
}

// SetSession writes a session-scoped value. The session is created on first
// write.
func (s *Store) SetSession(sessionID, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions[sessionID]
	if sess == nil {
		sess = &sessionState{values: make(map[string]string)}
		s.sessions[sessionID] = sess
	}
	sess.values[key] = value
	sess.lastSeen = time.Now()
}

// GetSession reads a session-scoped value.
func (s *Store) GetSession(sessionID, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions[sessionID]
	if sess == nil {
		return "", false
	}
	sess.lastSeen = time.Now()
	v, ok := sess.values[key]
	return v, ok
}

// EndSession drops all session-scoped values, mirroring a browser tab close.
func (s *Store) EndSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// QuestionsRemaining returns the anonymous question quota for a session,
// seeding it with allowance on first read.
func (s *Store) QuestionsRemaining(sessionID string, allowance int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions[sessionID]
	if sess == nil {
		sess = &sessionState{values: make(map[string]string)}
		s.sessions[sessionID] = sess
	}
	sess.lastSeen = time.Now()

	raw, ok := sess.values[KeyQuestionsLeft]
	if !ok {
		sess.values[KeyQuestionsLeft] = strconv.Itoa(allowance)
		return allowance
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// DecrementQuestions decrements the session quota, sticking at zero. It
// returns the remaining count and whether this call crossed to zero (the
// caller surfaces the one-time upsell on exactly that transition).
func (s *Store) DecrementQuestions(sessionID string, allowance int) (remaining int, exhausted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions[sessionID]
	if sess == nil {
		sess = &sessionState{values: make(map[string]string)}
		s.sessions[sessionID] = sess
	}
	sess.lastSeen = time.Now()

	n := allowance
	if raw, ok := sess.values[KeyQuestionsLeft]; ok {
		if parsed, err := strconv.Atoi(raw); err == nil {
			n = parsed
		}
	}

	if n <= 0 {
		sess.values[KeyQuestionsLeft] = "0"
		return 0, false
	}

	n--
	sess.values[KeyQuestionsLeft] = strconv.Itoa(n)
	return n, n == 0
}

// SweepIdle drops sessions idle longer than maxIdle and returns how many were
// removed.
func (s *Store) SweepIdle(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	removed := 0
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("Idle browser sessions swept")
	}
	return removed
}

// SessionCount returns the number of live browser sessions.
func (s *Store) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
