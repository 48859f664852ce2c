// Package token mints and consumes the single-use, time-boxed tokens that bind
// a listing to an owner confirmation action.
package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/hotprop/listing-engine/internal/app/domain/listing"
	"github.com/hotprop/listing-engine/internal/app/storage"
	svcerr "github.com/hotprop/listing-engine/pkg/errors"
	"github.com/hotprop/listing-engine/pkg/logger"
)

// tokenBytes gives 128 bits of entropy per challenge token.
const tokenBytes = 16

// Service issues and verifies validation challenge tokens. The store's
// conditional writes carry the atomicity: Issue cannot create a second live
// token and Consume cannot succeed twice for the same value.
type Service struct {
	store storage.ListingStore
	log   *logger.Logger
	now   func() time.Time
}

// New creates a token service.
func New(store storage.ListingStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("token")
	}
	return &Service{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) {
	s.now = now
}

// Issue mints a token for the listing and persists it with expiry now+ttl.
// Fails with TokenAlreadyOutstanding when an unconsumed challenge exists, which
// doubles as the guard against duplicate reminder emails.
func (s *Service) Issue(ctx context.Context, listingID string, kind listing.Kind, ttl time.Duration) (listing.Listing, error) {
	if ttl <= 0 {
		return listing.Listing{}, fmt.Errorf("ttl must be positive")
	}

	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return listing.Listing{}, fmt.Errorf("generate token: %w", err)
	}
	value := hex.EncodeToString(raw)

	now := s.now()
	updated, err := s.store.MarkChallenged(ctx, listingID, kind, value, now.Add(ttl), now)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return listing.Listing{}, svcerr.ListingNotFound(listingID)
	case errors.Is(err, storage.ErrNotApplied):
		return listing.Listing{}, svcerr.TokenAlreadyOutstanding(listingID)
	case err != nil:
		return listing.Listing{}, svcerr.StoreUnavailable(err)
	}

	s.log.WithField("listing_id", listingID).
		WithField("kind", string(kind)).
		WithField("expires", updated.ValidationExpires).
		Info("validation challenge issued")
	return updated, nil
}

// Consume verifies and clears a token, resetting the listing's validation
// clock. Tokens are single-use: once consumed the value no longer resolves and
// a second attempt fails with TokenNotFound. An expired token surfaces
// TokenExpired together with the listing that held it, so the caller can apply
// the lazy deactivation transition on the spot rather than waiting for the
// next sweep.
func (s *Service) Consume(ctx context.Context, value string, kind listing.Kind) (listing.Listing, error) {
	now := s.now()
	updated, err := s.store.MarkConfirmed(ctx, value, kind, now)
	if err == nil {
		s.log.WithField("listing_id", updated.ID).
			WithField("kind", string(kind)).
			Info("validation challenge confirmed")
		return updated, nil
	}

	switch {
	case errors.Is(err, storage.ErrNotFound):
		return listing.Listing{}, svcerr.TokenNotFound()
	case errors.Is(err, storage.ErrNotApplied):
		expired, lookupErr := s.store.GetListingByToken(ctx, value, kind)
		if lookupErr != nil {
			return listing.Listing{}, svcerr.TokenExpired()
		}
		return expired, svcerr.TokenExpired()
	default:
		return listing.Listing{}, svcerr.StoreUnavailable(err)
	}
}
