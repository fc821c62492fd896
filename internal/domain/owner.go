package domain

import "fmt"

// OwnerRef identifies who a request acts on behalf of: exactly one of an
// authenticated user id or an anonymous guest session id.
type OwnerRef struct {
	UserID    string `json:"userId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Guest     bool   `json:"isGuestMode,omitempty"`
}

// NewUserOwner returns an OwnerRef for an authenticated user.
func NewUserOwner(userID string) OwnerRef {
	return OwnerRef{UserID: userID}
}

// NewGuestOwner returns an OwnerRef for an anonymous session.
func NewGuestOwner(sessionID string) OwnerRef {
	return OwnerRef{SessionID: sessionID, Guest: true}
}

// Key returns the storage key for this owner.
func (o OwnerRef) Key() string {
	if o.Guest {
		return o.SessionID
	}
	return o.UserID
}

// Validate checks that exactly one identity is present.
func (o OwnerRef) Validate() error {
	if o.Guest {
		if o.SessionID == "" {
			return fmt.Errorf("guest owner requires a session id")
		}
		if o.UserID != "" {
			return fmt.Errorf("owner carries both user id and guest session id")
		}
		return nil
	}
	if o.UserID == "" {
		return fmt.Errorf("owner requires a user id or a guest session id")
	}
	if o.SessionID != "" {
		return fmt.Errorf("owner carries both user id and guest session id")
	}
	return nil
}
