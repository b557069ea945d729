package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// TokenSource hands out the current bearer access token. An empty token
// with a nil error means "not logged in".
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// RawEvent is an event exactly as the gateway delivers it. Type and date are
// not authoritative; the catalog derives its own.
type RawEvent struct {
	Id             string   `json:"id"`
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	Location       string   `json:"location"`
	Date           string   `json:"date"`
	OrganizingClub string   `json:"organizing_club"`
	Thumbnail      string   `json:"thumbnail"`
	Disciplines    []string `json:"disciplines"`
}

type RawSubscription struct {
	Event        RawEvent  `json:"event"`
	Disciplines  []string  `json:"disciplines"`
	ChestNumber  string    `json:"chest_number"`
	Categories   []string  `json:"categories"`
	SubscribedAt time.Time `json:"subscribed_at"`
}

type RawProfile struct {
	Id           string            `json:"id"`
	Name         string            `json:"name"`
	ChestNumbers map[string]string `json:"chest_numbers"`
	FaceConsent  bool              `json:"face_consent"`
}

type Media struct {
	Id      string `json:"id"`
	EventId string `json:"event_id"`
	Kind    string `json:"kind"`
	Url     string `json:"url"`
}

// Client talks to the API gateway. All calls require a bearer token; without
// one they short-circuit to an empty or no-op result instead of touching the
// network. Failed calls are never retried automatically, the platform leaves
// a retry to an explicit user action.
type Client struct {
	baseURL string
	tokens  TokenSource
	http    *retryablehttp.Client
}

func NewClient(baseURL string, tokens TokenSource) *Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 0
	c.Logger = nil
	c.HTTPClient.Timeout = 30 * time.Second
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), tokens: tokens, http: c}
}

type searchEventsRequest struct {
	Q     string `json:"q"`
	Limit int    `json:"limit"`
}

type searchEventsResponse struct {
	Events []RawEvent `json:"events"`
}

func (c *Client) SearchEvents(ctx context.Context, q string, limit int) ([]RawEvent, error) {
	var resp searchEventsResponse
	ok, err := c.call(ctx, http.MethodPost, "/events/search", searchEventsRequest{Q: q, Limit: limit}, &resp)
	if err != nil || !ok {
		return nil, err
	}
	return resp.Events, nil
}

func (c *Client) GetSubscribedEvents(ctx context.Context) ([]RawSubscription, error) {
	var resp struct {
		Subscriptions []RawSubscription `json:"subscriptions"`
	}
	ok, err := c.call(ctx, http.MethodGet, "/events/subscribed", nil, &resp)
	if err != nil || !ok {
		return nil, err
	}
	return resp.Subscriptions, nil
}

type subscribeRequest struct {
	Disciplines []string `json:"disciplines"`
	ChestNumber string   `json:"chest_number"`
	Categories  []string `json:"categories"`
}

func (c *Client) SubscribeToEvent(ctx context.Context, eventId string, disciplines []string, chestNumber string, categories []string) error {
	req := subscribeRequest{Disciplines: disciplines, ChestNumber: chestNumber, Categories: categories}
	_, err := c.call(ctx, http.MethodPost, "/events/"+eventId+"/subscribe", req, nil)
	return err
}

func (c *Client) UnsubscribeToEvent(ctx context.Context, eventId string) error {
	_, err := c.call(ctx, http.MethodPost, "/events/"+eventId+"/unsubscribe", nil, nil)
	return err
}

func (c *Client) GrantFaceRecognitionConsent(ctx context.Context) error {
	_, err := c.call(ctx, http.MethodPost, "/consent/face", nil, nil)
	return err
}

func (c *Client) GetProfile(ctx context.Context) (*RawProfile, error) {
	var resp RawProfile
	ok, err := c.call(ctx, http.MethodGet, "/profile", nil, &resp)
	if err != nil || !ok {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetMediaById(ctx context.Context, id string) (*Media, error) {
	var resp Media
	ok, err := c.call(ctx, http.MethodGet, "/media/"+id, nil, &resp)
	if err != nil || !ok {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetMediaViewAll(ctx context.Context, eventId string) ([]Media, error) {
	var resp struct {
		Media []Media `json:"media"`
	}
	ok, err := c.call(ctx, http.MethodGet, "/events/"+eventId+"/media", nil, &resp)
	if err != nil || !ok {
		return nil, err
	}
	return resp.Media, nil
}

func (c *Client) SearchMediaByBib(ctx context.Context, eventId, bib string) ([]Media, error) {
	req := struct {
		Bib string `json:"bib"`
	}{Bib: bib}
	var resp struct {
		Media []Media `json:"media"`
	}
	ok, err := c.call(ctx, http.MethodPost, "/events/"+eventId+"/search/bib", req, &resp)
	if err != nil || !ok {
		return nil, err
	}
	return resp.Media, nil
}

func (c *Client) SearchFaceByEnrollment(ctx context.Context, eventId string) ([]Media, error) {
	var resp struct {
		Media []Media `json:"media"`
	}
	ok, err := c.call(ctx, http.MethodPost, "/events/"+eventId+"/search/face", nil, &resp)
	if err != nil || !ok {
		return nil, err
	}
	return resp.Media, nil
}

func (c *Client) SearchObject(ctx context.Context, eventId, query string) ([]Media, error) {
	req := struct {
		Query string `json:"query"`
	}{Query: query}
	var resp struct {
		Media []Media `json:"media"`
	}
	ok, err := c.call(ctx, http.MethodPost, "/events/"+eventId+"/search/object", req, &resp)
	if err != nil || !ok {
		return nil, err
	}
	return resp.Media, nil
}

// call issues one request. The bool reports whether a request was actually
// made; it is false when no token is available.
func (c *Client) call(ctx context.Context, method, path string, body, out any) (bool, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return false, err
	}
	if token == "" {
		return false, nil
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return false, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return true, parseError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return true, fmt.Errorf("decode gateway response: %w", err)
		}
	}
	return true, nil
}

func parseError(resp *http.Response) error {
	apiErr := &Error{Status: resp.StatusCode, Message: resp.Status}
	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err == nil && json.Unmarshal(data, &payload) == nil {
		if payload.Code != "" {
			apiErr.Code = payload.Code
		}
		if payload.Message != "" {
			apiErr.Message = payload.Message
		}
	}
	return apiErr
}
