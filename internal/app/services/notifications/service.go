// Package notifications creates lifecycle notifications and filters the feed
// through the visibility gate.
package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/hotprop/listing-engine/internal/app/domain/listing"
	"github.com/hotprop/listing-engine/internal/app/domain/notification"
	"github.com/hotprop/listing-engine/internal/app/storage"
	"github.com/hotprop/listing-engine/pkg/logger"
)

// Service manages the notification feed.
type Service struct {
	store    storage.NotificationStore
	listings storage.ListingStore
	log      *logger.Logger
}

// New creates a notification service.
func New(store storage.NotificationStore, listings storage.ListingStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("notifications")
	}
	return &Service{
		store:    store,
		listings: listings,
		log:      log,
	}
}

// Notify appends a notification record.
func (s *Service) Notify(ctx context.Context, userID string, typ notification.Type, title, content, relatedID string) (notification.Notification, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return notification.Notification{}, fmt.Errorf("user_id is required")
	}

	n := notification.Notification{
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Content:   content,
		RelatedID: relatedID,
	}
	n, err := s.store.CreateNotification(ctx, n)
	if err != nil {
		return notification.Notification{}, err
	}
	s.log.WithField("notification_id", n.ID).
		WithField("user_id", userID).
		WithField("type", string(typ)).
		Info("notification created")
	return n, nil
}

// Feed returns the user's notifications filtered by the visibility gate
// against their current listing portfolio. The gate is recomputed on every
// read: notification records persist even after the listings they reference
// are deleted, so relevance is a property of the read, not the record.
func (s *Service) Feed(ctx context.Context, userID string) ([]notification.Notification, error) {
	raw, err := s.store.ListNotifications(ctx, userID)
	if err != nil {
		return nil, err
	}

	owned, err := s.listings.ListListings(ctx, userID)
	if err != nil {
		return nil, err
	}
	var properties, requirements []listing.Listing
	for _, l := range owned {
		switch l.Kind {
		case listing.KindProperty:
			properties = append(properties, l)
		case listing.KindRequirement:
			requirements = append(requirements, l)
		}
	}

	return Gate(raw, properties, requirements), nil
}

// MarkRead flags a notification as read.
func (s *Service) MarkRead(ctx context.Context, id, userID string) (notification.Notification, error) {
	return s.store.MarkNotificationRead(ctx, id, userID)
}
