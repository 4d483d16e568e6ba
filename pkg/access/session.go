package access

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/models"
)

const (
	SessionKey     = "clover_session_v3"
	PreferencesKey = "clover_preferences"
)

// Preferences are per-installation choices that survive restarts.
type Preferences struct {
	Namespace string `json:"dbName,omitempty"`
}

type sessionRecord struct {
	Agent   models.Agent `json:"agent"`
	Token   string       `json:"token"`
	LoginAt time.Time    `json:"loginAt"`
}

// SessionState is the portal's single current session. It is restored once at startup and
// changed only by Login, Logout and Refresh.
type SessionState struct {
	mu     sync.RWMutex
	store  StateStore
	logger ectologger.Logger
	record *sessionRecord
	prefs  Preferences
}

func NewSessionState(store StateStore, logger ectologger.Logger) *SessionState {
	return &SessionState{store: store, logger: logger}
}

// Restore loads the persisted session and preferences. Unreadable state is discarded.
func (s *SessionState) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.store.Load(ctx, SessionKey)
	if err != nil {
		return err
	}
	if data != nil {
		var rec sessionRecord
		if err := json.Unmarshal(data, &rec); err != nil || rec.Agent.ID == "" || rec.Token == "" {
			s.logger.WithContext(ctx).WithError(err).Warn("discarding unreadable session")
		} else {
			rec.Agent.Role = models.ParseRole(string(rec.Agent.Role))
			s.record = &rec
			s.logger.WithContext(ctx).WithField("agent_id", rec.Agent.ID).Info("session restored")
		}
	}

	data, err = s.store.Load(ctx, PreferencesKey)
	if err != nil {
		return err
	}
	if data != nil {
		if err := json.Unmarshal(data, &s.prefs); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("discarding unreadable preferences")
			s.prefs = Preferences{}
		}
	}
	return nil
}

// Login replaces the current session and returns its bearer token.
func (s *SessionState) Login(ctx context.Context, agent models.Agent) (string, error) {
	rec := &sessionRecord{Agent: agent.Public(), Token: uuid.NewString(), LoginAt: time.Now().UTC()}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Save(ctx, SessionKey, data); err != nil {
		return "", err
	}
	s.record = rec
	return rec.Token, nil
}

func (s *SessionState) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = nil
	return s.store.Delete(ctx, SessionKey)
}

// Refresh updates the stored copy of the current user after their record changed.
func (s *SessionState) Refresh(ctx context.Context, agent models.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil || s.record.Agent.ID != agent.ID {
		return nil
	}
	rec := *s.record
	rec.Agent = agent.Public()
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, SessionKey, data); err != nil {
		return err
	}
	s.record = &rec
	return nil
}

func (s *SessionState) Current() (models.Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.record == nil {
		return models.Agent{}, false
	}
	return s.record.Agent, true
}

func (s *SessionState) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.record == nil {
		return ""
	}
	return s.record.Token
}

// ResolveToken maps a bearer token to the logged in agent.
func (s *SessionState) ResolveToken(token string) (string, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.record == nil || token == "" {
		return "", "", false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.record.Token)) != 1 {
		return "", "", false
	}
	return s.record.Agent.ID, string(s.record.Agent.Role), true
}

func (s *SessionState) Preferences() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

func (s *SessionState) SetPreferences(ctx context.Context, prefs Preferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Save(ctx, PreferencesKey, data); err != nil {
		return err
	}
	s.prefs = prefs
	return nil
}
