package handlers

import (
	"net/http"
	"time"

	"securepatrol/config"
	"securepatrol/core/auth"
	"securepatrol/core/rbac"
	"securepatrol/core/store"
	"securepatrol/core/utils"
)

// RequestInfo resolves transport facts the server knows about (trusted proxies, TLS).
type RequestInfo struct {
	ClientIP func(*http.Request) string
	IsHTTPS  func(*http.Request) bool
}

func (ri RequestInfo) clientIP(r *http.Request) string {
	if ri.ClientIP != nil {
		return ri.ClientIP(r)
	}
	return r.RemoteAddr
}

func (ri RequestInfo) secure(r *http.Request) bool {
	if ri.IsHTTPS != nil {
		return ri.IsHTTPS(r)
	}
	return r.TLS != nil
}

type AuthHandler struct {
	cfg            *config.AppConfig
	users          store.UsersStore
	guards         store.GuardsStore
	sessionManager *auth.SessionManager
	policy         *rbac.Policy
	info           RequestInfo
	logger         *utils.Logger
}

func NewAuthHandler(cfg *config.AppConfig, users store.UsersStore, guards store.GuardsStore, sm *auth.SessionManager, policy *rbac.Policy, info RequestInfo, logger *utils.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, users: users, guards: guards, sessionManager: sm, policy: policy, info: info, logger: logger}
}

type userDTO struct {
	ID          int64             `json:"id"`
	Username    string            `json:"username"`
	Name        string            `json:"name"`
	Email       string            `json:"email"`
	Roles       []string          `json:"roles"`
	Permissions []rbac.Permission `json:"permissions"`
	GuardID     *int64            `json:"guard_id"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var cred auth.Credentials
	if !decodeJSON(w, r, &cred) {
		return
	}
	cred.Username = utils.NormalizeUsername(cred.Username)
	if err := utils.ValidateUsername(cred.Username); err != nil {
		http.Error(w, "invalid username", http.StatusBadRequest)
		return
	}
	user, err := h.users.GetUserByUsername(r.Context(), cred.Username)
	if err != nil || user == nil || !user.Active {
		if h.logger != nil {
			h.logger.Printf("AUTH login failed user=%s: missing or inactive", cred.Username)
		}
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, cred.Password); err != nil {
		if h.logger != nil {
			h.logger.Printf("AUTH login failed user=%s: bad password", cred.Username)
		}
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	sess, err := h.sessionManager.Create(r.Context(), user, h.info.clientIP(r), r.UserAgent())
	if err != nil {
		if h.logger != nil {
			h.logger.Errorf("auth login session create failed for %s: %v", cred.Username, err)
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	secure := h.info.secure(r)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.ExpiresAt,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    sess.CSRFToken,
		Path:     "/",
		HttpOnly: false,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.ExpiresAt,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"user":       h.describe(r, user, sess.Roles),
		"csrf_token": sess.CSRFToken,
		"expires_at": sess.ExpiresAt,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sr := currentSession(r)
	if sr.ID != "" {
		_ = h.sessionManager.Delete(r.Context(), sr.ID)
	}
	secure := h.info.secure(r)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sr := currentSession(r)
	user, err := h.users.GetUser(r.Context(), sr.UserID)
	if err != nil || user == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":       h.describe(r, user, sr.Roles),
		"csrf_token": sr.CSRFToken,
	})
}

func (h *AuthHandler) describe(r *http.Request, user *store.User, roles []string) userDTO {
	dto := userDTO{ID: user.ID, Username: user.Username, Name: user.Name, Email: user.Email, Roles: roles}
	for _, p := range rbac.AllPermissions {
		if h.policy.Allowed(roles, p) {
			dto.Permissions = append(dto.Permissions, p)
		}
	}
	if g, err := h.guards.GetGuardByUserID(r.Context(), user.ID); err == nil && g != nil {
		dto.GuardID = &g.ID
	}
	return dto
}

type HealthHandler struct {
	now func() time.Time
}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{now: utils.NowUTC}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "timestamp": h.now().Format(time.RFC3339)})
}
