package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hotprop/listing-engine/internal/app/domain/listing"
	"github.com/hotprop/listing-engine/internal/app/domain/notification"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrNotApplied is returned by the conditional transition operations when the
// guard did not hold at write time. A losing racer observes ErrNotApplied
// instead of clobbering the winner's state.
var ErrNotApplied = errors.New("conditional update not applied")

// ListingStore persists listing records. The Mark* operations are the only way
// lifecycle fields change: each is a single compare-and-swap write keyed on the
// expected prior state, so no transition requires a lock across I/O.
type ListingStore interface {
	CreateListing(ctx context.Context, l listing.Listing) (listing.Listing, error)
	GetListing(ctx context.Context, id string, kind listing.Kind) (listing.Listing, error)
	GetListingByToken(ctx context.Context, token string, kind listing.Kind) (listing.Listing, error)
	ListListings(ctx context.Context, ownerID string) ([]listing.Listing, error)
	DeleteListing(ctx context.Context, id string, kind listing.Kind) error

	// MarkChallenged stores a freshly minted token and expiry. Guard: the
	// listing is active and carries no token.
	MarkChallenged(ctx context.Context, id string, kind listing.Kind, token string, expires, now time.Time) (listing.Listing, error)

	// MarkConfirmed consumes the token: clears it, records the response and
	// resets LastValidated. Guard: the stored token equals the given value and
	// has not expired. ErrNotFound when no listing holds the token,
	// ErrNotApplied when it is held but expired.
	MarkConfirmed(ctx context.Context, token string, kind listing.Kind, now time.Time) (listing.Listing, error)

	// MarkDeactivated hides the listing and clears the stale token. Guard: the
	// listing is still active and its challenge expiry is in the past. The
	// guard makes deactivation idempotent across concurrent sweeps.
	MarkDeactivated(ctx context.Context, id string, kind listing.Kind, now time.Time) (listing.Listing, error)

	// MarkReactivated restores an inactive listing. Guard: the listing is
	// inactive. Clears any stale token and resets LastValidated.
	MarkReactivated(ctx context.Context, id string, kind listing.Kind, now time.Time) (listing.Listing, error)
}

// NotificationStore persists in-app notifications. Creation is append-only;
// lifecycle notifications are never deleted when their listing goes away, which
// is why reads pass through the visibility gate.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error)
	ListNotifications(ctx context.Context, userID string) ([]notification.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID string) (notification.Notification, error)
}
