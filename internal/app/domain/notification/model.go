// Package notification defines the in-app notification record and its closed
// type enum. The type set is closed so the visibility gate's rule table stays
// exhaustive.
package notification

import "time"

// Type tags a notification with its lifecycle meaning.
type Type string

const (
	TypeListingDeactivated     Type = "listing_deactivated"
	TypeRequirementDeactivated Type = "requirement_deactivated"
	TypePropertyMatch          Type = "property_match"
	TypeLatestMatches          Type = "latest_matches"
	TypeNewMatches             Type = "new_matches"
	TypeRequirementMatch       Type = "requirement_match"
	TypeValidationReminder     Type = "validation_reminder"
	TypePropertyValidated      Type = "property_validated"
	TypeRequirementValidated   Type = "requirement_validated"
	TypeMessage                Type = "message"
	TypeOther                  Type = "other"
)

// Notification is an append-only record referencing a listing via RelatedID.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      Type      `json:"type"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	RelatedID string    `json:"related_id,omitempty"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
