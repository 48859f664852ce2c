package token

import (
	"context"
	"testing"
	"time"

	"github.com/hotprop/listing-engine/internal/app/domain/listing"
	"github.com/hotprop/listing-engine/internal/app/storage/memory"
	svcerr "github.com/hotprop/listing-engine/pkg/errors"
	"github.com/hotprop/listing-engine/pkg/testutil"
)

func newFixture(t *testing.T) (*Service, *memory.Store, *testutil.Clock, listing.Listing) {
	t.Helper()
	store := memory.New()
	clock := testutil.NewClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := New(store, nil)
	svc.WithClock(clock.Now)

	l, err := store.CreateListing(context.Background(), listing.Listing{
		OwnerID: "owner-1",
		Kind:    listing.KindProperty,
		Title:   "sunny duplex",
	})
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	return svc, store, clock, l
}

func TestService_IssueAndConsume(t *testing.T) {
	svc, _, clock, l := newFixture(t)

	challenged, err := svc.Issue(context.Background(), l.ID, l.Kind, 24*time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if challenged.ValidationToken == nil {
		t.Fatalf("no token persisted")
	}
	// 16 random bytes, hex encoded.
	if len(*challenged.ValidationToken) != 32 {
		t.Fatalf("unexpected token length %d", len(*challenged.ValidationToken))
	}
	if !challenged.ValidationExpires.Equal(clock.Now().Add(24 * time.Hour)) {
		t.Fatalf("unexpected expiry %v", challenged.ValidationExpires)
	}

	clock.Advance(time.Hour)
	confirmed, err := svc.Consume(context.Background(), *challenged.ValidationToken, l.Kind)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if confirmed.ValidationToken != nil || !confirmed.LastValidated.Equal(clock.Now()) {
		t.Fatalf("consume did not reset validation state: %#v", confirmed)
	}
}

func TestService_IssueRejectsSecondToken(t *testing.T) {
	svc, _, _, l := newFixture(t)

	if _, err := svc.Issue(context.Background(), l.ID, l.Kind, 24*time.Hour); err != nil {
		t.Fatalf("first issue: %v", err)
	}
	_, err := svc.Issue(context.Background(), l.ID, l.Kind, 24*time.Hour)
	if svcerr.CodeOf(err) != svcerr.CodeTokenAlreadyOutstanding {
		t.Fatalf("expected token_already_outstanding, got %v", err)
	}
}

func TestService_IssueUnknownListing(t *testing.T) {
	svc, _, _, l := newFixture(t)

	if _, err := svc.Issue(context.Background(), "missing", l.Kind, time.Hour); svcerr.CodeOf(err) != svcerr.CodeListingNotFound {
		t.Fatalf("expected listing_not_found, got %v", err)
	}
	if _, err := svc.Issue(context.Background(), l.ID, l.Kind, 0); err == nil {
		t.Fatalf("expected error for non-positive ttl")
	}
}

func TestService_ConsumeSingleUse(t *testing.T) {
	svc, _, _, l := newFixture(t)

	challenged, err := svc.Issue(context.Background(), l.ID, l.Kind, 24*time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	value := *challenged.ValidationToken

	if _, err := svc.Consume(context.Background(), value, l.Kind); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if _, err := svc.Consume(context.Background(), value, l.Kind); svcerr.CodeOf(err) != svcerr.CodeTokenNotFound {
		t.Fatalf("expected token_not_found on reuse, got %v", err)
	}
}

func TestService_ConsumeExpiredReturnsHolder(t *testing.T) {
	svc, _, clock, l := newFixture(t)

	challenged, err := svc.Issue(context.Background(), l.ID, l.Kind, 24*time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clock.Advance(25 * time.Hour)
	holder, err := svc.Consume(context.Background(), *challenged.ValidationToken, l.Kind)
	if svcerr.CodeOf(err) != svcerr.CodeTokenExpired {
		t.Fatalf("expected token_expired, got %v", err)
	}
	if holder.ID != l.ID {
		t.Fatalf("expected the holding listing back, got %#v", holder)
	}

	// Consume itself does not deactivate; the caller owns that transition.
	if !holder.IsActive {
		t.Fatalf("consume must not flip active state")
	}
}

func TestService_ConsumeWrongKind(t *testing.T) {
	svc, _, _, l := newFixture(t)

	challenged, err := svc.Issue(context.Background(), l.ID, l.Kind, 24*time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.Consume(context.Background(), *challenged.ValidationToken, listing.KindRequirement); svcerr.CodeOf(err) != svcerr.CodeTokenNotFound {
		t.Fatalf("expected token_not_found for kind mismatch, got %v", err)
	}
}
