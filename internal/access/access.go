// Package access decides whether a caller may load a video page or stream its bytes.
package access

import (
	"errors" // Sentinel errors

	"vidvault/internal/domain" // Domain models
)

// Denial reasons
var (
	ErrNotFound        = errors.New("video not found")
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("access to this video is forbidden")
	ErrPaymentRequired = errors.New("this video must be unlocked before streaming")
)

// Requester is the caller identity resolved by the auth middleware.
// The zero value is an anonymous caller.
type Requester struct {
	UserID        uint // Authenticated user id
	Authenticated bool // False for anonymous callers
}

// Anonymous returns a requester with no identity
func Anonymous() Requester {
	return Requester{}
}

// User returns an authenticated requester
func User(id uint) Requester {
	return Requester{UserID: id, Authenticated: true}
}

// IsOwner reports whether the requester created the video
func (r Requester) IsOwner(v *domain.Video) bool {
	return r.Authenticated && v.OwnedBy(r.UserID)
}

// GrantChecker answers whether a user holds an unlock grant for a video
type GrantChecker func(userID, videoID uint) (bool, error)

// DecideStream returns nil when r may stream v, otherwise the denial reason.
// The checks run in a fixed order; hasGrant is only consulted for paid videos
// and authenticated non-owners.
func DecideStream(v *domain.Video, r Requester, hasGrant GrantChecker) error {
	if v == nil {
		return ErrNotFound
	}
	if v.IsPublic() {
		if !v.IsPaidUnlock || r.IsOwner(v) {
			return nil
		}
		unlocked, err := holdsGrant(v, r, hasGrant)
		if err != nil {
			return err
		}
		if unlocked {
			return nil
		}
		return ErrPaymentRequired
	}
	// Private video
	if !r.Authenticated {
		return ErrUnauthenticated
	}
	if r.IsOwner(v) {
		return nil
	}
	// A buyer keeps access after the owner hides a paid video
	unlocked, err := holdsGrant(v, r, hasGrant)
	if err != nil {
		return err
	}
	if unlocked {
		return nil
	}
	return ErrForbidden
}

// holdsGrant reports whether an authenticated caller bought a paid video
func holdsGrant(v *domain.Video, r Requester, hasGrant GrantChecker) (bool, error) {
	if !v.IsPaidUnlock || !r.Authenticated || hasGrant == nil {
		return false, nil
	}
	return hasGrant(r.UserID, v.ID)
}

// Page describes what a caller sees on a video page
type Page struct {
	Locked      bool // Stream needs a purchase; show the unlock button
	Purchasable bool // The caller can buy access
}

// DecidePage decides whether the video page may render.
// Public pages always render, paid ones locked until the caller owns or unlocks them.
// Private pages follow the stream rule.
func DecidePage(v *domain.Video, r Requester, hasGrant GrantChecker) (Page, error) {
	err := DecideStream(v, r, hasGrant)
	switch {
	case err == nil:
		return Page{}, nil
	case errors.Is(err, ErrPaymentRequired):
		return Page{Locked: true, Purchasable: r.Authenticated}, nil
	default:
		return Page{}, err
	}
}
