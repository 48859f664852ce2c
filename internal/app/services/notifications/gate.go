package notifications

import (
	"github.com/hotprop/listing-engine/internal/app/domain/listing"
	"github.com/hotprop/listing-engine/internal/app/domain/notification"
)

// Gate filters a raw notification feed against the user's current listing
// portfolio. It is a pure function with no side effects, safe to recompute on
// every read.
//
// Rules: deactivation notices require at least one deactivated listing of the
// matching kind; match notices require at least one listing of the opposite
// side (active or not); validation notices require at least one active
// listing; everything else is always visible.
func Gate(feed []notification.Notification, ownedProperties, ownedRequirements []listing.Listing) []notification.Notification {
	hasDeactivatedProperty := false
	for _, l := range ownedProperties {
		if !l.IsActive {
			hasDeactivatedProperty = true
			break
		}
	}
	hasDeactivatedRequirement := false
	for _, l := range ownedRequirements {
		if !l.IsActive {
			hasDeactivatedRequirement = true
			break
		}
	}
	hasActiveListing := false
	for _, l := range ownedProperties {
		if l.IsActive {
			hasActiveListing = true
			break
		}
	}
	if !hasActiveListing {
		for _, l := range ownedRequirements {
			if l.IsActive {
				hasActiveListing = true
				break
			}
		}
	}

	visible := make([]notification.Notification, 0, len(feed))
	for _, n := range feed {
		switch n.Type {
		case notification.TypeListingDeactivated:
			if hasDeactivatedProperty {
				visible = append(visible, n)
			}
		case notification.TypeRequirementDeactivated:
			if hasDeactivatedRequirement {
				visible = append(visible, n)
			}
		case notification.TypePropertyMatch, notification.TypeLatestMatches, notification.TypeNewMatches:
			if len(ownedRequirements) > 0 {
				visible = append(visible, n)
			}
		case notification.TypeRequirementMatch:
			if len(ownedProperties) > 0 {
				visible = append(visible, n)
			}
		case notification.TypeValidationReminder, notification.TypePropertyValidated, notification.TypeRequirementValidated:
			if hasActiveListing {
				visible = append(visible, n)
			}
		default:
			visible = append(visible, n)
		}
	}
	return visible
}
