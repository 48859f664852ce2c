package lifecycle

import (
	"time"

	"github.com/hotprop/listing-engine/internal/app/domain/listing"
)

// ActionType names a due lifecycle transition.
type ActionType string

const (
	// ActionIssueChallenge: the listing is overdue for owner confirmation.
	ActionIssueChallenge ActionType = "issue_challenge"
	// ActionDeactivate: the listing's challenge expired unanswered.
	ActionDeactivate ActionType = "deactivate"
)

// Action is one transition the sweep should attempt.
type Action struct {
	Type      ActionType
	ListingID string
	Kind      listing.Kind
	OwnerID   string
}

// ComputeDueActions decides which transitions are due at now. It is pure: the
// executor applies each action through the store's conditional writes, so a
// stale decision degrades to a no-op rather than a wrong write.
//
// A listing with an unexpired outstanding challenge yields nothing (no
// duplicate reminders). A listing whose challenge expired unanswered yields a
// deactivation even if a previous sweep crashed before applying it.
func ComputeDueActions(listings []listing.Listing, now time.Time, ageThreshold time.Duration) []Action {
	actions := make([]Action, 0)
	for _, l := range listings {
		switch {
		case l.IsActive && l.ChallengeExpired(now):
			actions = append(actions, Action{
				Type:      ActionDeactivate,
				ListingID: l.ID,
				Kind:      l.Kind,
				OwnerID:   l.OwnerID,
			})
		case l.ValidationDue(now, ageThreshold):
			actions = append(actions, Action{
				Type:      ActionIssueChallenge,
				ListingID: l.ID,
				Kind:      l.Kind,
				OwnerID:   l.OwnerID,
			})
		}
	}
	return actions
}
