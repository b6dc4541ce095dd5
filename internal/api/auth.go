// Package api implements HTTP handlers and helpers for the dispatch service.
package api

import (
	"net/http"
	"strings"

	"wastedispatch/internal/auth"
)

// getPrincipal extracts role and driver id from JWT or headers.
// - If Authorization: Bearer is present, uses the configured verifier.
// - Else falls back to headers for dev.
func (s *Server) getPrincipal(r *http.Request) auth.Principal {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
		tok := strings.TrimSpace(authz[len("Bearer "):])
		if pr, err := s.Auth.Verify(tok); err == nil {
			return pr
		}
	}
	role := r.Header.Get("X-Role")
	driverID := r.Header.Get("X-Driver-Id")
	if role == "" {
		role = auth.RoleAdmin
	}
	return auth.Principal{Role: strings.ToLower(role), DriverID: driverID}
}

func canDispatch(p auth.Principal) bool {
	return p.Role == auth.RoleAdmin || p.Role == auth.RoleDispatcher
}
