// Package lifecycle implements the listing lifecycle state machine: owner
// confirmation, expiry-driven deactivation and reactivation. Transitions are
// applied through the store's conditional writes, so a losing racer's update
// becomes a no-op instead of corrupting state.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hotprop/listing-engine/internal/app/domain/listing"
	"github.com/hotprop/listing-engine/internal/app/domain/notification"
	"github.com/hotprop/listing-engine/internal/app/services/notifications"
	"github.com/hotprop/listing-engine/internal/app/services/token"
	"github.com/hotprop/listing-engine/internal/app/storage"
	svcerr "github.com/hotprop/listing-engine/pkg/errors"
	"github.com/hotprop/listing-engine/pkg/logger"
)

// Result is the structured outcome handed back to transports. Endpoints always
// render it in-place, success or not.
type Result struct {
	Success   bool         `json:"success"`
	Message   string       `json:"message"`
	ListingID string       `json:"listing_id,omitempty"`
	Kind      listing.Kind `json:"kind,omitempty"`
}

// Service is the lifecycle state machine over the listing store.
type Service struct {
	store    storage.ListingStore
	tokens   *token.Service
	notifier *notifications.Service
	log      *logger.Logger
	now      func() time.Time
}

// New creates a lifecycle service.
func New(store storage.ListingStore, tokens *token.Service, notifier *notifications.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("lifecycle")
	}
	return &Service{
		store:    store,
		tokens:   tokens,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) {
	s.now = now
	if s.tokens != nil {
		s.tokens.WithClock(now)
	}
}

// Confirm consumes a validation token, keeping the listing active. An expired
// token triggers the lazy deactivation transition before the failure is
// reported, so the system self-heals even when the sweep missed the listing.
func (s *Service) Confirm(ctx context.Context, tokenValue string, kind listing.Kind) (Result, error) {
	if !kind.Valid() {
		return Result{Message: fmt.Sprintf("unknown listing kind %q", kind)}, svcerr.ListingNotFound("")
	}

	confirmed, err := s.tokens.Consume(ctx, tokenValue, kind)
	if err == nil {
		s.notifyValidated(ctx, confirmed)
		return Result{
			Success:   true,
			Message:   "listing confirmed",
			ListingID: confirmed.ID,
			Kind:      confirmed.Kind,
		}, nil
	}

	switch svcerr.CodeOf(err) {
	case svcerr.CodeTokenExpired:
		// confirmed here is the listing that held the expired token.
		if confirmed.ID != "" {
			s.DeactivateExpired(ctx, confirmed.ID, kind)
		}
		return Result{
			Message:   "confirmation window has passed; the listing was deactivated and can be reactivated",
			ListingID: confirmed.ID,
			Kind:      kind,
		}, err
	case svcerr.CodeTokenNotFound:
		return Result{Message: "validation token not found or already used"}, err
	default:
		return Result{Message: "confirmation failed, please try again"}, err
	}
}

// Reactivate restores a deactivated listing for its owner. Always permitted
// from Deactivated regardless of elapsed time: reactivation is a one-click
// trust-restoring action, not a re-challenge. Requesting it on an active
// listing is an idempotent success.
func (s *Service) Reactivate(ctx context.Context, callerID, listingID string, kind listing.Kind) (Result, error) {
	if !kind.Valid() {
		return Result{Message: fmt.Sprintf("unknown listing kind %q", kind)}, svcerr.ListingNotFound(listingID)
	}

	current, err := s.store.GetListing(ctx, listingID, kind)
	if errors.Is(err, storage.ErrNotFound) {
		return Result{Message: "listing not found"}, svcerr.ListingNotFound(listingID)
	}
	if err != nil {
		return Result{Message: "reactivation failed, please try again"}, svcerr.StoreUnavailable(err)
	}
	if current.OwnerID != callerID {
		return Result{Message: "only the owner can reactivate a listing"}, svcerr.NotOwner(listingID)
	}

	updated, err := s.store.MarkReactivated(ctx, listingID, kind, s.now())
	switch {
	case errors.Is(err, storage.ErrNotApplied):
		return Result{
			Success:   true,
			Message:   "listing is already active",
			ListingID: listingID,
			Kind:      kind,
		}, nil
	case errors.Is(err, storage.ErrNotFound):
		return Result{Message: "listing not found"}, svcerr.ListingNotFound(listingID)
	case err != nil:
		return Result{Message: "reactivation failed, please try again"}, svcerr.StoreUnavailable(err)
	}

	s.log.WithField("listing_id", updated.ID).
		WithField("kind", string(updated.Kind)).
		Info("listing reactivated")
	s.notifyValidated(ctx, updated)
	return Result{
		Success:   true,
		Message:   "listing reactivated",
		ListingID: updated.ID,
		Kind:      updated.Kind,
	}, nil
}

// DeactivateExpired applies the expiry transition. It reports whether this
// call won the conditional write; the deactivation notification fires only for
// the winner, which keeps the transition idempotent and the notification
// single-shot under concurrent sweeps.
func (s *Service) DeactivateExpired(ctx context.Context, listingID string, kind listing.Kind) (bool, error) {
	updated, err := s.store.MarkDeactivated(ctx, listingID, kind, s.now())
	switch {
	case errors.Is(err, storage.ErrNotApplied):
		return false, nil
	case errors.Is(err, storage.ErrNotFound):
		return false, svcerr.ListingNotFound(listingID)
	case err != nil:
		return false, svcerr.StoreUnavailable(err)
	}

	s.log.WithField("listing_id", updated.ID).
		WithField("kind", string(updated.Kind)).
		Info("listing deactivated after unanswered validation challenge")

	if s.notifier != nil {
		typ := notification.TypeListingDeactivated
		title := "Your property listing was deactivated"
		if updated.Kind == listing.KindRequirement {
			typ = notification.TypeRequirementDeactivated
			title = "Your buyer requirement was deactivated"
		}
		content := fmt.Sprintf("%q was deactivated because its validation challenge expired. You can reactivate it at any time.", updated.Title)
		if _, err := s.notifier.Notify(ctx, updated.OwnerID, typ, title, content, updated.ID); err != nil {
			s.log.WithError(err).WithField("listing_id", updated.ID).Warn("deactivation notification failed")
		}
	}
	return true, nil
}

// ListPendingValidations returns the user's listings with an unexpired
// outstanding challenge. Expired challenges are excluded: by the lazy rule
// those listings already read as deactivated.
func (s *Service) ListPendingValidations(ctx context.Context, userID string) ([]listing.Summary, error) {
	owned, err := s.store.ListListings(ctx, userID)
	if err != nil {
		return nil, svcerr.StoreUnavailable(err)
	}

	now := s.now()
	result := make([]listing.Summary, 0)
	for _, l := range owned {
		if !l.HasOutstandingToken(now) {
			continue
		}
		result = append(result, listing.Summary{
			ID:                l.ID,
			Kind:              l.Kind,
			Title:             l.Title,
			LastValidated:     l.LastValidated,
			ValidationExpires: *l.ValidationExpires,
		})
	}
	return result, nil
}

func (s *Service) notifyValidated(ctx context.Context, l listing.Listing) {
	if s.notifier == nil {
		return
	}
	typ := notification.TypePropertyValidated
	title := "Property listing confirmed"
	if l.Kind == listing.KindRequirement {
		typ = notification.TypeRequirementValidated
		title = "Buyer requirement confirmed"
	}
	content := fmt.Sprintf("%q is active again and visible in search results.", l.Title)
	if _, err := s.notifier.Notify(ctx, l.OwnerID, typ, title, content, l.ID); err != nil {
		s.log.WithError(err).WithField("listing_id", l.ID).Warn("validated notification failed")
	}
}
