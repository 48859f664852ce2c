// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hotprop/listing-engine/internal/app/domain/listing"
	"github.com/hotprop/listing-engine/internal/app/domain/notification"
	"github.com/hotprop/listing-engine/internal/app/storage"
)

// Store is the in-memory store. The single mutex makes every conditional
// transition atomic with its guard, matching the semantics the Postgres store
// gets from conditional UPDATEs.
type Store struct {
	mu            sync.RWMutex
	nextID        int64
	listings      map[string]listing.Listing
	byToken       map[string]string
	notifications map[string]notification.Notification
	notifOrder    []string
}

var _ storage.ListingStore = (*Store)(nil)
var _ storage.NotificationStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:        1,
		listings:      make(map[string]listing.Listing),
		byToken:       make(map[string]string),
		notifications: make(map[string]notification.Notification),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

func key(kind listing.Kind, id string) string {
	return string(kind) + "/" + id
}

func cloneListing(l listing.Listing) listing.Listing {
	if l.ValidationToken != nil {
		token := *l.ValidationToken
		l.ValidationToken = &token
	}
	if l.ValidationExpires != nil {
		exp := *l.ValidationExpires
		l.ValidationExpires = &exp
	}
	if l.LastValidationReminder != nil {
		rem := *l.LastValidationReminder
		l.LastValidationReminder = &rem
	}
	return l
}

// ListingStore implementation -------------------------------------------------

func (s *Store) CreateListing(_ context.Context, l listing.Listing) (listing.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !l.Kind.Valid() {
		return listing.Listing{}, fmt.Errorf("invalid listing kind %q", l.Kind)
	}
	if l.ID == "" {
		l.ID = s.nextIDLocked()
	} else if _, exists := s.listings[key(l.Kind, l.ID)]; exists {
		return listing.Listing{}, fmt.Errorf("listing %s already exists", l.ID)
	}

	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now
	l.IsActive = true
	if l.LastValidated.IsZero() {
		l.LastValidated = now
	}
	l.ValidationToken = nil
	l.ValidationExpires = nil
	l.ValidationResponseReceived = false

	s.listings[key(l.Kind, l.ID)] = l
	return cloneListing(l), nil
}

func (s *Store) GetListing(_ context.Context, id string, kind listing.Kind) (listing.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[key(kind, id)]
	if !ok {
		return listing.Listing{}, storage.ErrNotFound
	}
	return cloneListing(l), nil
}

func (s *Store) GetListingByToken(_ context.Context, token string, kind listing.Kind) (listing.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.byToken[token]
	if !ok {
		return listing.Listing{}, storage.ErrNotFound
	}
	l := s.listings[k]
	if l.Kind != kind {
		return listing.Listing{}, storage.ErrNotFound
	}
	return cloneListing(l), nil
}

func (s *Store) ListListings(_ context.Context, ownerID string) ([]listing.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]listing.Listing, 0)
	for _, l := range s.listings {
		if ownerID == "" || l.OwnerID == ownerID {
			result = append(result, cloneListing(l))
		}
	}
	return result, nil
}

func (s *Store) DeleteListing(_ context.Context, id string, kind listing.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(kind, id)
	l, ok := s.listings[k]
	if !ok {
		return storage.ErrNotFound
	}
	if l.ValidationToken != nil {
		delete(s.byToken, *l.ValidationToken)
	}
	delete(s.listings, k)
	return nil
}

func (s *Store) MarkChallenged(_ context.Context, id string, kind listing.Kind, token string, expires, now time.Time) (listing.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(kind, id)
	l, ok := s.listings[k]
	if !ok {
		return listing.Listing{}, storage.ErrNotFound
	}
	if !l.IsActive || l.ValidationToken != nil {
		return listing.Listing{}, storage.ErrNotApplied
	}

	nowUTC := now.UTC()
	expUTC := expires.UTC()
	l.ValidationToken = &token
	l.ValidationExpires = &expUTC
	l.ValidationResponseReceived = false
	l.LastValidationReminder = &nowUTC
	l.UpdatedAt = nowUTC

	s.listings[k] = l
	s.byToken[token] = k
	return cloneListing(l), nil
}

func (s *Store) MarkConfirmed(_ context.Context, token string, kind listing.Kind, now time.Time) (listing.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.byToken[token]
	if !ok {
		return listing.Listing{}, storage.ErrNotFound
	}
	l := s.listings[k]
	if l.Kind != kind {
		return listing.Listing{}, storage.ErrNotFound
	}
	if l.ValidationExpires == nil || !now.Before(*l.ValidationExpires) {
		return listing.Listing{}, storage.ErrNotApplied
	}

	nowUTC := now.UTC()
	l.ValidationToken = nil
	l.ValidationExpires = nil
	l.ValidationResponseReceived = true
	l.LastValidationReminder = nil
	l.LastValidated = nowUTC
	l.UpdatedAt = nowUTC

	s.listings[k] = l
	delete(s.byToken, token)
	return cloneListing(l), nil
}

func (s *Store) MarkDeactivated(_ context.Context, id string, kind listing.Kind, now time.Time) (listing.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(kind, id)
	l, ok := s.listings[k]
	if !ok {
		return listing.Listing{}, storage.ErrNotFound
	}
	if !l.IsActive || l.ValidationExpires == nil || now.Before(*l.ValidationExpires) {
		return listing.Listing{}, storage.ErrNotApplied
	}

	if l.ValidationToken != nil {
		delete(s.byToken, *l.ValidationToken)
	}
	l.IsActive = false
	l.ValidationToken = nil
	l.ValidationExpires = nil
	l.UpdatedAt = now.UTC()

	s.listings[k] = l
	return cloneListing(l), nil
}

func (s *Store) MarkReactivated(_ context.Context, id string, kind listing.Kind, now time.Time) (listing.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(kind, id)
	l, ok := s.listings[k]
	if !ok {
		return listing.Listing{}, storage.ErrNotFound
	}
	if l.IsActive {
		return listing.Listing{}, storage.ErrNotApplied
	}

	if l.ValidationToken != nil {
		delete(s.byToken, *l.ValidationToken)
	}
	nowUTC := now.UTC()
	l.IsActive = true
	l.ValidationToken = nil
	l.ValidationExpires = nil
	l.ValidationResponseReceived = true
	l.LastValidationReminder = nil
	l.LastValidated = nowUTC
	l.UpdatedAt = nowUTC

	s.listings[k] = l
	return cloneListing(l), nil
}

// NotificationStore implementation -------------------------------------------

func (s *Store) CreateNotification(_ context.Context, n notification.Notification) (notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = s.nextIDLocked()
	} else if _, exists := s.notifications[n.ID]; exists {
		return notification.Notification{}, fmt.Errorf("notification %s already exists", n.ID)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	s.notifications[n.ID] = n
	s.notifOrder = append(s.notifOrder, n.ID)
	return n, nil
}

func (s *Store) ListNotifications(_ context.Context, userID string) ([]notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]notification.Notification, 0)
	for _, id := range s.notifOrder {
		n := s.notifications[id]
		if userID == "" || n.UserID == userID {
			result = append(result, n)
		}
	}
	return result, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, id, userID string) (notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok || n.UserID != userID {
		return notification.Notification{}, storage.ErrNotFound
	}
	n.IsRead = true
	s.notifications[id] = n
	return n, nil
}
