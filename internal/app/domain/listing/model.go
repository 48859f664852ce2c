// Package listing defines the polymorphic listing entity whose lifecycle the
// engine manages. Properties for sale/rent and buyer requirements share an
// identical lifecycle shape, so both are represented by Listing with a Kind
// discriminator.
package listing

import "time"

// Kind discriminates the two listing variants.
type Kind string

const (
	KindProperty    Kind = "property"
	KindRequirement Kind = "requirement"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindProperty || k == KindRequirement
}

// State is the derived lifecycle state of a listing.
type State string

const (
	// StateActive: visible, no challenge outstanding.
	StateActive State = "active"
	// StatePendingValidation: an unexpired confirmation challenge is outstanding.
	StatePendingValidation State = "pending_validation"
	// StateDeactivated: hidden from search and matching, no challenge outstanding.
	StateDeactivated State = "deactivated"
)

// Listing is a property or buyer-requirement record with its lifecycle fields.
// Deactivation only ever flips IsActive and clears the token fields; listings
// are never deleted by the engine.
type Listing struct {
	ID      string
	OwnerID string
	Kind    Kind
	Title   string

	IsActive                   bool
	LastValidated              time.Time
	LastValidationReminder     *time.Time
	ValidationToken            *string
	ValidationExpires          *time.Time
	ValidationResponseReceived bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasOutstandingToken reports whether an unexpired challenge exists at now.
func (l Listing) HasOutstandingToken(now time.Time) bool {
	return l.ValidationToken != nil && l.ValidationExpires != nil && now.Before(*l.ValidationExpires)
}

// ChallengeExpired reports whether a challenge exists whose expiry has passed.
func (l Listing) ChallengeExpired(now time.Time) bool {
	return l.ValidationToken != nil && l.ValidationExpires != nil && !now.Before(*l.ValidationExpires)
}

// State derives the lifecycle state at now. The authoritative check for
// deactivation is always "is the expiry in the past while the listing is still
// active", never a one-shot timer: an expired-but-unswept listing therefore
// reports Deactivated here even before the sweep persists the transition.
func (l Listing) State(now time.Time) State {
	if !l.IsActive {
		return StateDeactivated
	}
	if l.HasOutstandingToken(now) {
		return StatePendingValidation
	}
	if l.ChallengeExpired(now) {
		return StateDeactivated
	}
	return StateActive
}

// ValidationDue reports whether the listing is old enough for a new challenge:
// active, no outstanding or expired challenge, and last confirmed at least
// threshold ago.
func (l Listing) ValidationDue(now time.Time, threshold time.Duration) bool {
	if !l.IsActive || l.ValidationToken != nil {
		return false
	}
	return now.Sub(l.LastValidated) >= threshold
}

// Summary is the read-model handed to UI surfaces listing what needs
// confirmation. It deliberately omits the token value: tokens travel only in
// the emailed confirmation link.
type Summary struct {
	ID                string    `json:"id"`
	Kind              Kind      `json:"kind"`
	Title             string    `json:"title"`
	LastValidated     time.Time `json:"last_validated"`
	ValidationExpires time.Time `json:"validation_expires"`
}
