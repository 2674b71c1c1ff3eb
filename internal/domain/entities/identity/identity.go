// Package identity provides domain entities for browser and session
// identity. A browser identity is durable and minted once per installed
// client; a session identity rotates and may be overwritten by the value
// the upstream echoes back, which is authoritative.
package identity

import "time"

// Identity holds the identifier pair attached to every upstream request.
type Identity struct {
	BrowserID string    `json:"browserId"`
	SessionID string    `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewIdentity creates an identity record with the given identifiers.
func NewIdentity(browserID, sessionID string) *Identity {
	now := time.Now().UTC()
	return &Identity{
		BrowserID: browserID,
		SessionID: sessionID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// RotateSession overwrites the session identifier with a server-supplied
// value.
func (id *Identity) RotateSession(sessionID string) {
	id.SessionID = sessionID
	id.UpdatedAt = time.Now().UTC()
}
