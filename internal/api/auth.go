// Package api implements HTTP handlers and helpers for the FieldServe
// dispatch service.
package api

import "net/http"

type Principal struct {
	BusinessID string
	Role       string // admin, dispatcher, technician
	TechID     string
}

// getPrincipal extracts business and role from headers. In production
// these come from the gateway after token verification; the header
// fallback keeps local development simple.
func (s *Server) getPrincipal(r *http.Request) Principal {
	biz := r.Header.Get("X-Business-Id")
	role := r.Header.Get("X-Role")
	techID := r.Header.Get("X-Tech-Id")
	if biz == "" {
		biz = "biz_demo"
	}
	if role == "" {
		role = "admin"
	}
	return Principal{BusinessID: biz, Role: role, TechID: techID}
}

// IsDispatcher reports whether the principal may manage schedules.
func (p Principal) IsDispatcher() bool { return p.Role == "admin" || p.Role == "dispatcher" }

// businessID resolves the acting business: query parameter first, then
// the principal.
func (s *Server) businessID(r *http.Request) string {
	if v := r.URL.Query().Get("businessId"); v != "" {
		return v
	}
	return s.getPrincipal(r).BusinessID
}
