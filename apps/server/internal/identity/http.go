package identity

import (
	"encoding/json"
	"errors"
	"net/http"
)

// HTTPHandler exposes register/login/logout so clients can obtain the
// bearer tokens used in the WebSocket handshake.
type HTTPHandler struct {
	service Service
}

func NewHTTPHandler(service Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/auth/register", h.handleRegister)
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/logout", h.handleLogout)
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Token       string `json:"token"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *HTTPHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	h.handleCredentials(w, r, h.service.Register)
}

func (h *HTTPHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	h.handleCredentials(w, r, h.service.Login)
}

func (h *HTTPHandler) handleCredentials(
	w http.ResponseWriter,
	r *http.Request,
	fn func(username, password string) (Identity, string, error),
) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "POST required"})
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	id, token, err := fn(req.Username, req.Password)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, ErrInvalidUsername) || errors.Is(err, ErrInvalidPassword) {
			status = http.StatusBadRequest
		}
		if errors.Is(err, ErrUsernameTaken) {
			status = http.StatusConflict
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		PlayerID:    id.ID,
		DisplayName: id.DisplayName,
		Token:       token,
	})
}

func (h *HTTPHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "POST required"})
		return
	}
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		h.service.Logout(auth[len(prefix):])
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
