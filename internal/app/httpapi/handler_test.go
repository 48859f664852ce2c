package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	app "github.com/hotprop/listing-engine/internal/app"
	"github.com/hotprop/listing-engine/internal/app/domain/listing"
	"github.com/hotprop/listing-engine/internal/app/domain/notification"
	"github.com/hotprop/listing-engine/internal/middleware"
)

func newTestApp(t *testing.T) *app.Application {
	t.Helper()
	application, err := app.New(app.Stores{}, app.Options{}, nil)
	require.NoError(t, err)
	return application
}

func doRequest(t *testing.T, router http.Handler, method, path, userID string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &body)
	if userID != "" {
		req = req.WithContext(context.WithValue(req.Context(), middleware.UserIDKey, userID))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func createListing(t *testing.T, application *app.Application, owner string, kind listing.Kind) listing.Listing {
	t.Helper()
	l, err := application.Listings.CreateListing(context.Background(), listing.Listing{
		OwnerID: owner,
		Kind:    kind,
		Title:   "penthouse with terrace",
	})
	require.NoError(t, err)
	return l
}

func TestHandler_Health(t *testing.T) {
	application := newTestApp(t)
	router := NewRouter(application, nil)

	rec := doRequest(t, router, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_ConfirmSuccess(t *testing.T) {
	application := newTestApp(t)
	router := NewRouter(application, nil)
	l := createListing(t, application, "owner-1", listing.KindProperty)

	challenged, err := application.Tokens.Issue(context.Background(), l.ID, l.Kind, 24*time.Hour)
	require.NoError(t, err)

	rec := doRequest(t, router, http.MethodPost, "/listings/confirm", "", map[string]string{
		"token": *challenged.ValidationToken,
		"kind":  string(l.Kind),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Success   bool   `json:"success"`
		Message   string `json:"message"`
		ListingID string `json:"listing_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.True(t, result.Success)
	require.Equal(t, l.ID, result.ListingID)
}

func TestHandler_ConfirmUnknownToken(t *testing.T) {
	application := newTestApp(t)
	router := NewRouter(application, nil)

	rec := doRequest(t, router, http.MethodPost, "/listings/confirm", "", map[string]string{
		"token": "bogus",
		"kind":  "property",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)

	var result struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.False(t, result.Success)
	require.NotEmpty(t, result.Message)
}

func TestHandler_ConfirmRequiresToken(t *testing.T) {
	application := newTestApp(t)
	router := NewRouter(application, nil)

	rec := doRequest(t, router, http.MethodPost, "/listings/confirm", "", map[string]string{"kind": "property"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_ReactivateForbiddenForNonOwner(t *testing.T) {
	application := newTestApp(t)
	router := NewRouter(application, nil)
	l := createListing(t, application, "owner-1", listing.KindProperty)

	path := fmt.Sprintf("/listings/%s/%s/reactivate", l.Kind, l.ID)
	rec := doRequest(t, router, http.MethodPost, path, "intruder", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Unauthenticated requests never reach the service.
	rec = doRequest(t, router, http.MethodPost, path, "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_ReactivateDeactivatedListing(t *testing.T) {
	application := newTestApp(t)
	router := NewRouter(application, nil)
	l := createListing(t, application, "owner-1", listing.KindRequirement)

	_, err := application.Tokens.Issue(context.Background(), l.ID, l.Kind, time.Millisecond)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	applied, err := application.Lifecycle.DeactivateExpired(context.Background(), l.ID, l.Kind)
	require.NoError(t, err)
	require.True(t, applied)

	path := fmt.Sprintf("/listings/%s/%s/reactivate", l.Kind, l.ID)
	rec := doRequest(t, router, http.MethodPost, path, "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Success bool `json:"success"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.True(t, result.Success)

	current, err := application.Listings.GetListing(context.Background(), l.ID, l.Kind)
	require.NoError(t, err)
	require.True(t, current.IsActive)
}

func TestHandler_PendingValidations(t *testing.T) {
	application := newTestApp(t)
	router := NewRouter(application, nil)
	l := createListing(t, application, "owner-1", listing.KindProperty)
	createListing(t, application, "owner-1", listing.KindProperty)

	_, err := application.Tokens.Issue(context.Background(), l.ID, l.Kind, 24*time.Hour)
	require.NoError(t, err)

	rec := doRequest(t, router, http.MethodGet, "/users/me/pending-validations", "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var pending []listing.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	require.Len(t, pending, 1)
	require.Equal(t, l.ID, pending[0].ID)
}

func TestHandler_NotificationsAreGated(t *testing.T) {
	application := newTestApp(t)
	router := NewRouter(application, nil)
	createListing(t, application, "owner-1", listing.KindProperty)

	// A property match notice is stale for a user with no requirement.
	_, err := application.Notifications.Notify(context.Background(), "owner-1",
		notification.TypePropertyMatch, "New match", "a property matches your requirement", "")
	require.NoError(t, err)
	_, err = application.Notifications.Notify(context.Background(), "owner-1",
		notification.TypeMessage, "Hello", "welcome aboard", "")
	require.NoError(t, err)

	rec := doRequest(t, router, http.MethodGet, "/users/me/notifications", "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var feed []notification.Notification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &feed))
	require.Len(t, feed, 1)
	require.Equal(t, notification.TypeMessage, feed[0].Type)
}

func TestHandler_MarkNotificationRead(t *testing.T) {
	application := newTestApp(t)
	router := NewRouter(application, nil)

	n, err := application.Notifications.Notify(context.Background(), "owner-1",
		notification.TypeMessage, "Hello", "welcome aboard", "")
	require.NoError(t, err)

	rec := doRequest(t, router, http.MethodPost, "/users/me/notifications/"+n.ID+"/read", "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Another user cannot touch it.
	rec = doRequest(t, router, http.MethodPost, "/users/me/notifications/"+n.ID+"/read", "owner-2", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_CreateAndSearchListings(t *testing.T) {
	application := newTestApp(t)
	router := NewRouter(application, nil)

	rec := doRequest(t, router, http.MethodPost, "/listings/property", "owner-1", map[string]string{
		"title": "studio near the river",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created listingView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	require.True(t, created.IsActive)

	// Token fields never leak through the read model.
	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	require.NotContains(t, raw, "validation_token")
	require.NotContains(t, raw, "validation_expires")

	hidden := createListing(t, application, "owner-2", listing.KindProperty)
	_, err := application.Tokens.Issue(context.Background(), hidden.ID, hidden.Kind, time.Millisecond)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	// The expired challenge hides the listing from search even before any
	// sweep persists the deactivation.
	rec = doRequest(t, router, http.MethodGet, "/listings?kind=property", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var results []listingView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	require.Equal(t, created.ID, results[0].ID)
}

func TestHandler_CreateListingValidation(t *testing.T) {
	application := newTestApp(t)
	router := NewRouter(application, nil)

	rec := doRequest(t, router, http.MethodPost, "/listings/garage", "owner-1", map[string]string{"title": "x"})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/listings/property", "owner-1", map[string]string{"title": "  "})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/listings/property", "", map[string]string{"title": "x"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_DeleteListing(t *testing.T) {
	application := newTestApp(t)
	router := NewRouter(application, nil)
	l := createListing(t, application, "owner-1", listing.KindProperty)

	path := fmt.Sprintf("/listings/%s/%s", l.Kind, l.ID)
	rec := doRequest(t, router, http.MethodDelete, path, "owner-2", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, router, http.MethodDelete, path, "owner-1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, router, http.MethodDelete, path, "owner-1", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_Sweep(t *testing.T) {
	application := newTestApp(t)
	router := NewRouter(application, nil)

	rec := doRequest(t, router, http.MethodPost, "/admin/sweep", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/admin/sweep", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report struct {
		Issued      int `json:"issued"`
		Deactivated int `json:"deactivated"`
		Errors      int `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Zero(t, report.Errors)
}
