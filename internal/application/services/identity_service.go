// Package services contains the application services: identity management,
// fetch orchestration, derived analytics, chat and operator auth.
package services

import (
	"net/http"
	"sync"

	"github.com/RevLensAI/revlens-go/internal/domain/entities/identity"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/gateway"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/observability/logging"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/persistence/localstore"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/security"
)

// Durable storage keys for the identity pair.
const (
	browserIDKey = "browserId"
	sessionIDKey = "sessionId"
)

// IdentityService manages the browser/session identifier pair. The browser
// id is minted once and survives restarts; the session id is minted per
// process but overwritten whenever the upstream echoes a different value,
// because the server is authoritative for sessions.
type IdentityService struct {
	store  *localstore.Store
	logger *logging.ChanneledLogger

	mu       sync.RWMutex
	identity *identity.Identity
}

// Compile-time check that the service can drive the gateway client.
var _ gateway.IdentityProvider = (*IdentityService)(nil)

// NewIdentityService loads or mints the identifier pair.
func NewIdentityService(store *localstore.Store, logger *logging.ChanneledLogger) *IdentityService {
	s := &IdentityService{store: store, logger: logger}

	browserID, found := store.Get(browserIDKey)
	if !found || browserID == "" {
		browserID = security.GenerateULID()
		store.Set(browserIDKey, browserID)
		if logger != nil {
			logger.Identity().Info("Minted new browser id", "browserId", browserID)
		}
	}

	sessionID, found := store.Get(sessionIDKey)
	if !found || sessionID == "" {
		sessionID = security.GenerateULID()
		store.Set(sessionIDKey, sessionID)
		if logger != nil {
			logger.Identity().Info("Minted new session id", "sessionId", sessionID)
		}
	}

	s.identity = identity.NewIdentity(browserID, sessionID)
	return s
}

// BrowserID returns the durable browser identifier.
func (s *IdentityService) BrowserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity.BrowserID
}

// SessionID returns the current session identifier.
func (s *IdentityService) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity.SessionID
}

// Snapshot returns a copy of the full identity record.
func (s *IdentityService) Snapshot() identity.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.identity
}

// AbsorbSessionHeader adopts the session id from an upstream response
// header. Absorption happens on every response regardless of status; a
// missing or unchanged header is a no-op.
func (s *IdentityService) AbsorbSessionHeader(header http.Header) {
	echoed := header.Get(gateway.HeaderSessionID)
	if echoed == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if echoed == s.identity.SessionID {
		return
	}

	previous := s.identity.SessionID
	s.identity.RotateSession(echoed)
	s.store.Set(sessionIDKey, echoed)
	if s.logger != nil {
		s.logger.Identity().Info("Adopted server session id", "previous", previous, "sessionId", echoed)
	}
}

// ResetSession mints a fresh session id, discarding the current one.
func (s *IdentityService) ResetSession() string {
	sessionID := security.GenerateULID()

	s.mu.Lock()
	s.identity.RotateSession(sessionID)
	s.mu.Unlock()

	s.store.Set(sessionIDKey, sessionID)
	if s.logger != nil {
		s.logger.Identity().Info("Session reset", "sessionId", sessionID)
	}
	return sessionID
}
