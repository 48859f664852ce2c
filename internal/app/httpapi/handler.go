// Package httpapi exposes the lifecycle engine over REST. Responses are
// structured {success, message, ...} payloads so UI surfaces can render
// outcomes in place; taxonomy errors map to HTTP statuses.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	app "github.com/hotprop/listing-engine/internal/app"
	"github.com/hotprop/listing-engine/internal/app/domain/listing"
	"github.com/hotprop/listing-engine/internal/app/storage"
	"github.com/hotprop/listing-engine/internal/middleware"
	svcerr "github.com/hotprop/listing-engine/pkg/errors"
	"github.com/hotprop/listing-engine/pkg/logger"
)

// handler bundles HTTP endpoints for the lifecycle engine.
type handler struct {
	app *app.Application
	log *logger.Logger
}

// NewRouter returns a mux exposing the REST API. The returned router carries
// no auth; callers wrap it with the middleware chain.
func NewRouter(application *app.Application, log *logger.Logger) *mux.Router {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{app: application, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.HandleFunc("/listings", h.searchListings).Methods(http.MethodGet)
	r.HandleFunc("/listings/confirm", h.confirm).Methods(http.MethodPost)
	r.HandleFunc("/listings/{kind}", h.createListing).Methods(http.MethodPost)
	r.HandleFunc("/listings/{kind}/{id}/reactivate", h.reactivate).Methods(http.MethodPost)
	r.HandleFunc("/listings/{kind}/{id}", h.deleteListing).Methods(http.MethodDelete)
	r.HandleFunc("/users/me/pending-validations", h.pendingValidations).Methods(http.MethodGet)
	r.HandleFunc("/users/me/notifications", h.notifications).Methods(http.MethodGet)
	r.HandleFunc("/users/me/notifications/{id}/read", h.markNotificationRead).Methods(http.MethodPost)
	r.HandleFunc("/admin/sweep", h.sweep).Methods(http.MethodPost)
	return r
}

// listingView is the public read model. Lifecycle token fields never appear in
// any listing read; the token travels only inside the emailed confirmation
// link.
type listingView struct {
	ID            string       `json:"id"`
	Kind          listing.Kind `json:"kind"`
	OwnerID       string       `json:"owner_id"`
	Title         string       `json:"title"`
	IsActive      bool         `json:"is_active"`
	LastValidated time.Time    `json:"last_validated"`
	CreatedAt     time.Time    `json:"created_at"`
}

func toView(l listing.Listing) listingView {
	return listingView{
		ID:            l.ID,
		Kind:          l.Kind,
		OwnerID:       l.OwnerID,
		Title:         l.Title,
		IsActive:      l.IsActive,
		LastValidated: l.LastValidated,
		CreatedAt:     l.CreatedAt,
	}
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) confirm(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Token string `json:"token"`
		Kind  string `json:"kind"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(payload.Token) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("token is required"))
		return
	}

	result, err := h.app.Lifecycle.Confirm(r.Context(), payload.Token, listing.Kind(payload.Kind))
	status := http.StatusOK
	if err != nil {
		status = svcerr.HTTPStatusOf(err)
	}
	if result.Success && h.app.Metrics != nil {
		h.app.Metrics.Confirmations.Inc()
	}
	writeJSON(w, status, result)
}

func (h *handler) reactivate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	callerID := middleware.GetUserID(r.Context())
	if callerID == "" {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("authentication required"))
		return
	}

	result, err := h.app.Lifecycle.Reactivate(r.Context(), callerID, vars["id"], listing.Kind(vars["kind"]))
	status := http.StatusOK
	if err != nil {
		status = svcerr.HTTPStatusOf(err)
	}
	if result.Success && h.app.Metrics != nil {
		h.app.Metrics.Reactivations.Inc()
	}
	writeJSON(w, status, result)
}

func (h *handler) pendingValidations(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.GetUserID(r.Context())
	if callerID == "" {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("authentication required"))
		return
	}

	pending, err := h.app.Lifecycle.ListPendingValidations(r.Context(), callerID)
	if err != nil {
		writeError(w, svcerr.HTTPStatusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

func (h *handler) notifications(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.GetUserID(r.Context())
	if callerID == "" {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("authentication required"))
		return
	}

	feed, err := h.app.Notifications.Feed(r.Context(), callerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

func (h *handler) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.GetUserID(r.Context())
	if callerID == "" {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("authentication required"))
		return
	}

	n, err := h.app.Notifications.MarkRead(r.Context(), mux.Vars(r)["id"], callerID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Errorf("notification not found"))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *handler) sweep(w http.ResponseWriter, r *http.Request) {
	if middleware.GetUserID(r.Context()) == "" {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("authentication required"))
		return
	}

	report, err := h.app.Sweeper.RunSweep(r.Context())
	if err != nil {
		writeError(w, svcerr.HTTPStatusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handler) createListing(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.GetUserID(r.Context())
	if callerID == "" {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("authentication required"))
		return
	}

	kind := listing.Kind(mux.Vars(r)["kind"])
	if !kind.Valid() {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown listing kind %q", kind))
		return
	}

	var payload struct {
		Title string `json:"title"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(payload.Title) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("title is required"))
		return
	}

	created, err := h.app.Listings.CreateListing(r.Context(), listing.Listing{
		OwnerID: callerID,
		Kind:    kind,
		Title:   strings.TrimSpace(payload.Title),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, toView(created))
}

func (h *handler) deleteListing(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	callerID := middleware.GetUserID(r.Context())
	if callerID == "" {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("authentication required"))
		return
	}

	kind := listing.Kind(vars["kind"])
	current, err := h.app.Listings.GetListing(r.Context(), vars["id"], kind)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Errorf("listing not found"))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if current.OwnerID != callerID {
		writeError(w, http.StatusForbidden, fmt.Errorf("only the owner can delete a listing"))
		return
	}

	if err := h.app.Listings.DeleteListing(r.Context(), vars["id"], kind); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// searchListings returns active listings only: a deactivated listing must
// never appear in public search results.
func (h *handler) searchListings(w http.ResponseWriter, r *http.Request) {
	all, err := h.app.Listings.ListListings(r.Context(), "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	kindFilter := listing.Kind(r.URL.Query().Get("kind"))
	now := time.Now()
	views := make([]listingView, 0, len(all))
	for _, l := range all {
		if l.State(now) == listing.StateDeactivated {
			continue
		}
		if kindFilter != "" && l.Kind != kindFilter {
			continue
		}
		views = append(views, toView(l))
	}
	writeJSON(w, http.StatusOK, views)
}

// Helpers --------------------------------------------------------------------

func decodeJSON(body io.Reader, dst any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON payload: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"message": err.Error(),
	})
}
