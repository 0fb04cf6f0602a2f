package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/MrEthical07/jwtauth"
	"github.com/MrEthical07/jwtauth/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 16

// Handler serves the token endpoints of one engine.
type Handler struct {
	engine *jwtauth.Engine
	logger *zap.Logger
}

// New creates a Handler. A nil logger discards output.
func New(engine *jwtauth.Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{engine: engine, logger: logger}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Register mounts the endpoints on r.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(requestID)
		r.Use(middleware.NoStoreBearer)

		r.With(middleware.Guard(h.engine)).Post("/jwt/token", h.issue)
		r.Post("/jwt/refresh", h.refresh)
	})
}

// Routes returns a router with only the token endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())

	pair, err := h.engine.IssuePair(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	ctx := jwtauth.WithClientIP(r.Context(), jwtauth.ClientIP(r))

	var req refreshRequest
	status, message := decodeJSON(w, r, &req)
	if status == 0 && req.RefreshToken == "" {
		status, message = http.StatusBadRequest, "refresh_token is required."
	}
	if status != 0 {
		// Unusable bodies still pass flood control and count as a failure.
		_, err := h.engine.Redeem(ctx, "")
		if err != nil && !errors.Is(err, jwtauth.ErrRefreshNotFound) {
			h.fail(w, r, err)
			return
		}
		writeError(w, status, message)
		return
	}

	pair, err := h.engine.Redeem(ctx, req.RefreshToken)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := jwtauth.StatusCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("token endpoint failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", w.Header().Get("X-Request-ID")),
			zap.Error(err),
		)
	}
	writeError(w, status, jwtauth.PublicMessage(err))
}

// requestID propagates X-Request-ID, generating one when absent.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// decodeJSON reads a JSON body into v. A non-zero status and message
// describe why the body was refused.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) (int, string) {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		return http.StatusUnsupportedMediaType, "Content-Type must be application/json."
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return http.StatusBadRequest, "Malformed JSON body."
	}
	return 0, ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
