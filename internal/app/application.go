// Package app wires the lifecycle engine's stores, services and background
// runners together and manages their lifecycle.
package app

import (
	"context"
	"fmt"

	"github.com/hotprop/listing-engine/internal/app/metrics"
	"github.com/hotprop/listing-engine/internal/app/services/lifecycle"
	"github.com/hotprop/listing-engine/internal/app/services/mailer"
	"github.com/hotprop/listing-engine/internal/app/services/notifications"
	"github.com/hotprop/listing-engine/internal/app/services/sweeper"
	tokensvc "github.com/hotprop/listing-engine/internal/app/services/token"
	"github.com/hotprop/listing-engine/internal/app/storage"
	"github.com/hotprop/listing-engine/internal/app/storage/memory"
	"github.com/hotprop/listing-engine/internal/app/system"
	"github.com/hotprop/listing-engine/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Listings      storage.ListingStore
	Notifications storage.NotificationStore
}

// Options carries optional collaborators and sweep tuning.
type Options struct {
	Sweep          sweeper.Options
	MailSender     mailer.Sender
	OwnerDirectory sweeper.OwnerDirectory
	Metrics        *metrics.Metrics
}

// Application ties the engine's services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Listings      storage.ListingStore
	Tokens        *tokensvc.Service
	Lifecycle     *lifecycle.Service
	Notifications *notifications.Service
	Sweeper       *sweeper.Sweeper
	Mail          *mailer.Dispatcher
	Metrics       *metrics.Metrics
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Listings == nil {
		stores.Listings = mem
	}
	if stores.Notifications == nil {
		stores.Notifications = mem
	}

	manager := system.NewManager()

	notifier := notifications.New(stores.Notifications, stores.Listings, log)
	tokens := tokensvc.New(stores.Listings, log)
	lc := lifecycle.New(stores.Listings, tokens, notifier, log)
	mail := mailer.NewDispatcher(opts.MailSender, log)

	sw := sweeper.New(stores.Listings, lc, tokens, notifier, mail, opts.Sweep, log)
	if opts.OwnerDirectory != nil {
		sw.WithOwnerDirectory(opts.OwnerDirectory)
	}
	if opts.Metrics != nil {
		sw.WithCounters(opts.Metrics.ChallengesIssued.Inc, opts.Metrics.Deactivations.Inc, opts.Metrics.SweepErrors.Inc)
	}

	for _, svc := range []system.Service{mail, sw} {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:       manager,
		log:           log,
		Listings:      stores.Listings,
		Tokens:        tokens,
		Lifecycle:     lc,
		Notifications: notifier,
		Sweeper:       sw,
		Mail:          mail,
		Metrics:       opts.Metrics,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
