package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wgoossens/trackside/api"
)

type staticTokens string

func (t staticTokens) AccessToken(_ context.Context) (string, error) {
	return string(t), nil
}

func TestSearchEvents(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.Method + " " + r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"events":[{"id":"e1","name":"Memorial Van Damme","location":"Brussel","date":"2025-09-05","disciplines":["100m"]}]}`))
	}))
	defer server.Close()

	client := api.NewClient(server.URL, staticTokens("tok-123"))
	events, err := client.SearchEvents(context.Background(), "memorial", 500)
	assert.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, "Memorial Van Damme", events[0].Name)
	assert.Equal(t, []string{"100m"}, events[0].Disciplines)

	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "POST /events/search", gotPath)
	assert.Equal(t, "memorial", gotBody["q"])
	assert.Equal(t, float64(500), gotBody["limit"])
}

func TestNoTokenShortCircuits(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer server.Close()

	client := api.NewClient(server.URL, staticTokens(""))

	events, err := client.SearchEvents(context.Background(), "", 500)
	assert.NoError(t, err)
	assert.Nil(t, events)

	subs, err := client.GetSubscribedEvents(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, subs)

	profile, err := client.GetProfile(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, profile)

	assert.NoError(t, client.SubscribeToEvent(context.Background(), "e1", []string{"100m"}, "417", []string{"All"}))

	assert.Equal(t, 0, requests)
}

func TestSubscribePayload(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := api.NewClient(server.URL, staticTokens("tok"))
	err := client.SubscribeToEvent(context.Background(), "e1", []string{"100m", "200m"}, "417", []string{"Junior"})
	assert.NoError(t, err)
	assert.Equal(t, "/events/e1/subscribe", gotPath)
	assert.Equal(t, "417", gotBody["chest_number"])
	assert.Equal(t, []any{"100m", "200m"}, gotBody["disciplines"])
	assert.Equal(t, []any{"Junior"}, gotBody["categories"])
}

func errorServer(status int, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestInsufficientCredits(t *testing.T) {
	server := errorServer(402, `{"code":"insufficient_credits","message":"No search credits left"}`)
	defer server.Close()

	client := api.NewClient(server.URL, staticTokens("tok"))
	_, err := client.SearchMediaByBib(context.Background(), "e1", "417")
	assert.Error(t, err)
	assert.True(t, api.IsInsufficientCredits(err))
	assert.False(t, api.IsMissingConsent(err))
	assert.Contains(t, err.Error(), "No search credits left")
}

func TestMissingConsent(t *testing.T) {
	server := errorServer(403, `{"code":"face_consent_required","message":"Grant face consent first"}`)
	defer server.Close()

	client := api.NewClient(server.URL, staticTokens("tok"))
	_, err := client.SearchFaceByEnrollment(context.Background(), "e1")
	assert.True(t, api.IsMissingConsent(err))
	assert.False(t, api.IsIncompleteEnrollment(err))
}

func TestIncompleteEnrollment(t *testing.T) {
	server := errorServer(400, `{"code":"missing_angles","message":"Enrollment needs more angles"}`)
	defer server.Close()

	client := api.NewClient(server.URL, staticTokens("tok"))
	_, err := client.SearchFaceByEnrollment(context.Background(), "e1")
	assert.True(t, api.IsIncompleteEnrollment(err))
}

func TestPlainForbiddenIsNotMissingConsent(t *testing.T) {
	server := errorServer(403, `forbidden`)
	defer server.Close()

	client := api.NewClient(server.URL, staticTokens("tok"))
	_, err := client.GetProfile(context.Background())
	assert.Error(t, err)
	assert.False(t, api.IsMissingConsent(err))

	var apiErr *api.Error
	assert.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 403, apiErr.Status)
}

func TestMediaEndpoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/media/m1":
			w.Write([]byte(`{"id":"m1","event_id":"e1","kind":"photo","url":"https://cdn.example/m1.jpg"}`))
		case "/events/e1/media":
			w.Write([]byte(`{"media":[{"id":"m1"},{"id":"m2"}]}`))
		case "/events/e1/search/object":
			w.Write([]byte(`{"media":[{"id":"m2"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := api.NewClient(server.URL, staticTokens("tok"))

	media, err := client.GetMediaById(context.Background(), "m1")
	assert.NoError(t, err)
	assert.Equal(t, "photo", media.Kind)

	all, err := client.GetMediaViewAll(context.Background(), "e1")
	assert.NoError(t, err)
	assert.Len(t, all, 2)

	found, err := client.SearchObject(context.Background(), "e1", "red bib")
	assert.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestUnsubscribe(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := api.NewClient(server.URL, staticTokens("tok"))
	assert.NoError(t, client.UnsubscribeToEvent(context.Background(), "e1"))
	assert.Equal(t, "/events/e1/unsubscribe", gotPath)
}
