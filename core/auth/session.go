package auth

import (
	"context"
	"time"

	"securepatrol/config"
	"securepatrol/core/store"
	"securepatrol/core/utils"

	"github.com/gofrs/uuid/v5"
)

type contextKey string

const SessionContextKey contextKey = "session"

type Session struct {
	ID         string
	UserID     int64
	Username   string
	Roles      []string
	IP         string
	UserAgent  string
	CSRFToken  string
	CreatedAt  time.Time
	LastSeenAt time.Time
	ExpiresAt  time.Time
}

type SessionManager struct {
	store  store.SessionStore
	cfg    *config.AppConfig
	logger *utils.Logger
}

func NewSessionManager(store store.SessionStore, cfg *config.AppConfig, logger *utils.Logger) *SessionManager {
	return &SessionManager{store: store, cfg: cfg, logger: logger}
}

func (m *SessionManager) Create(ctx context.Context, user *store.User, ip, userAgent string) (*Session, error) {
	id := uuid.Must(uuid.NewV4()).String()
	var csrf string
	var err error
	if m.cfg != nil && m.cfg.CSRFKey != "" {
		csrf, err = GenerateCSRF(m.cfg.CSRFKey, id)
	} else {
		csrf, err = utils.RandString(32)
	}
	if err != nil {
		return nil, err
	}
	now := utils.NowUTC()
	sess := &Session{
		ID:         id,
		UserID:     user.ID,
		Username:   user.Username,
		Roles:      []string{user.Role},
		IP:         ip,
		UserAgent:  userAgent,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(m.cfg.EffectiveSessionTTL()),
		CSRFToken:  csrf,
	}
	if err := m.store.SaveSession(ctx, &store.SessionRecord{
		ID:         sess.ID,
		UserID:     sess.UserID,
		Username:   sess.Username,
		Roles:      sess.Roles,
		IP:         sess.IP,
		UserAgent:  sess.UserAgent,
		CSRFToken:  sess.CSRFToken,
		CreatedAt:  sess.CreatedAt,
		LastSeenAt: sess.LastSeenAt,
		ExpiresAt:  sess.ExpiresAt,
	}); err != nil {
		return nil, err
	}
	if m.logger != nil {
		m.logger.Debugf("session created for %s", user.Username)
	}
	return sess, nil
}

func (m *SessionManager) Refresh(ctx context.Context, sessID string) error {
	return m.store.UpdateActivity(ctx, sessID, utils.NowUTC(), m.cfg.EffectiveSessionTTL())
}

func (m *SessionManager) Delete(ctx context.Context, sessID string) error {
	return m.store.DeleteSession(ctx, sessID)
}

// FromContext returns the session attached by the session middleware.
func FromContext(ctx context.Context) (*store.SessionRecord, bool) {
	sr, ok := ctx.Value(SessionContextKey).(*store.SessionRecord)
	return sr, ok && sr != nil
}
