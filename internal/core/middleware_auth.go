package core

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"fairground/internal/types"
)

// The API has two authenticated surfaces with different callers and
// different key handling:
//
//   - Ingest (POST /v1/events, feed endpoints): backend services holding
//     the shared ingest key. Compared in constant time.
//   - Admin (dead letter recovery): operators holding the admin key, whose
//     bcrypt hash is all the service ever stores.

// IngestAuthMiddleware authenticates service callers against the configured
// ingest API key and injects an api_key Actor into the request context.
func (s *Server) IngestAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := bearerToken(r)
		if key == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthKeyMissing, "API key is required")
			return
		}

		expected := s.Config.Security.IngestAPIKey.Unmask()
		if subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
			s.Logger.Warn("ingest auth rejected",
				"path", r.URL.Path,
				"request_id", types.GetRequestID(r.Context()),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthKeyInvalid, "invalid API key")
			return
		}

		ctx := types.WithActor(r.Context(), types.Actor{
			ID:     "svc_ingest",
			Type:   types.ActorTypeAPIKey,
			Source: "ingest_key",
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminAuthMiddleware authenticates operators against the bcrypt hash of the
// admin key and injects an admin Actor into the request context. The actor
// ID comes from the X-Admin-User header so audit entries name a person, not
// the shared key.
func (s *Server) AdminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := bearerToken(r)
		if key == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthKeyMissing, "API key is required")
			return
		}

		hash := s.Config.Security.AdminAPIKeyHash.Unmask()
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
			s.Logger.Warn("admin auth rejected",
				"path", r.URL.Path,
				"request_id", types.GetRequestID(r.Context()),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthKeyInvalid, "invalid API key")
			return
		}

		adminUser := strings.TrimSpace(r.Header.Get("X-Admin-User"))
		if adminUser == "" {
			adminUser = "admin"
		}

		ctx := types.WithActor(r.Context(), types.Actor{
			ID:     adminUser,
			Type:   types.ActorTypeAdmin,
			Source: "admin_key",
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header, returning "" when absent or malformed.
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	resp := APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   message,
			RequestID: types.GetRequestID(r.Context()),
		},
	}
	JSON(w, r, http.StatusUnauthorized, resp)
}
