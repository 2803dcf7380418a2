package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"routeeta/internal/auth"
)

type ctxKeyPrincipal struct{}

var errNoCredentials = errors.New("missing bearer token")

// principalFrom resolves the caller from the Authorization header. In dev
// auth mode the X-Tenant-Id, X-Role and X-Driver-Id headers are accepted
// when no bearer token is sent.
func (s *Server) principalFrom(r *http.Request) (auth.Principal, error) {
	authz := r.Header.Get("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return s.Auth.Verify(r.Context(), strings.TrimSpace(authz[7:]))
	}
	if s.Auth.Mode() == "dev" {
		if tenant := strings.TrimSpace(r.Header.Get("X-Tenant-Id")); tenant != "" {
			role := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Role")))
			if role == "" {
				role = auth.RoleDriver
			}
			return auth.Principal{Tenant: tenant, Role: role, DriverID: r.Header.Get("X-Driver-Id")}, nil
		}
	}
	return auth.Principal{}, errNoCredentials
}

// authed rejects unauthenticated requests and stores the principal on the context.
func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.principalFrom(r)
		if err != nil {
			writeProblem(w, r, http.StatusUnauthorized, "Unauthorized", "Unauthorized", err.Error())
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ctxKeyPrincipal{}, p)))
	}
}

func principal(r *http.Request) auth.Principal {
	p, _ := r.Context().Value(ctxKeyPrincipal{}).(auth.Principal)
	return p
}

func isStaff(p auth.Principal) bool {
	return p.Role == auth.RoleAdmin || p.Role == auth.RoleDispatcher
}
