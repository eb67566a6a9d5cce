package shelterclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal shelter HTTP API client.
type Client struct {
	BaseURL string
	// BasePath is the API prefix the server was started with.
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Role          string `json:"role"`
	HasExperience bool   `json:"has_experience"`
	HasOtherPets  bool   `json:"has_other_pets"`
	ReadyForPet   string `json:"ready_for_pet,omitempty"`
	CreatedAt     string `json:"created_at"`
}

type Animal struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Species      string `json:"species"`
	Breed        string `json:"breed,omitempty"`
	AgeYears     int    `json:"age_years"`
	AgeMonths    int    `json:"age_months"`
	HealthStatus string `json:"health_status"`
	Description  string `json:"description,omitempty"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at,omitempty"`
}

type Adoption struct {
	ID              string `json:"id"`
	UserID          string `json:"user_id"`
	AnimalID        string `json:"animal_id"`
	Status          string `json:"status"`
	SubmittedAt     string `json:"submitted_at"`
	RejectionReason string `json:"rejection_reason"`
	HasReturn       *bool  `json:"has_return,omitempty"`
}

type Return struct {
	ID          string  `json:"id"`
	AdoptionID  string  `json:"adoption_id"`
	Reason      string  `json:"reason"`
	ReturnedAt  string  `json:"returned_at"`
	ProcessedBy *string `json:"processed_by"`
}

// Event represents a log entry.
type Event struct {
	ID         string `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Me is the authenticated user and how they authenticated.
type Me struct {
	User   User   `json:"user"`
	Source string `json:"source"`
}

// APIKey carries the plaintext key, which the server returns only once.
type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Key       string `json:"key"`
	CreatedAt string `json:"created_at"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedAdoptions wraps list responses with cursors.
type PaginatedAdoptions struct {
	Items      []Adoption `json:"items"`
	NextCursor string     `json:"next_cursor"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// AdoptionQuery filters ListAdoptions. Zero fields are ignored.
type AdoptionQuery struct {
	Status   string
	AnimalID string
	UserID   string
	Limit    int
	Cursor   string
}

func (q AdoptionQuery) values() url.Values {
	v := url.Values{}
	set(v, "status", q.Status)
	set(v, "animal_id", q.AnimalID)
	set(v, "user_id", q.UserID)
	set(v, "cursor", q.Cursor)
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

func set(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

// Login exchanges a username for a bearer token on servers with dev login
// enabled and stores it on the client.
func (c *Client) Login(ctx context.Context, username string) error {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "auth/dev/login", map[string]any{"username": username}, &resp); err != nil {
		return err
	}
	c.BearerToken = resp.Token
	return nil
}

// Register creates an adopter account.
func (c *Client) Register(ctx context.Context, username string, hasExperience, hasOtherPets bool, readyForPet string) (User, error) {
	body := map[string]any{
		"username":       username,
		"has_experience": hasExperience,
		"has_other_pets": hasOtherPets,
		"ready_for_pet":  readyForPet,
	}
	var resp User
	err := c.do(ctx, http.MethodPost, "auth/register", body, &resp)
	return resp, err
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (Me, error) {
	var resp Me
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

// CreateUser creates a user; administrators only.
func (c *Client) CreateUser(ctx context.Context, username, role string) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodPost, "users", map[string]any{"username": username, "role": role}, &resp)
	return resp, err
}

// IssueAPIKey issues a key for userID.
func (c *Client) IssueAPIKey(ctx context.Context, userID, name string) (APIKey, error) {
	var resp APIKey
	endpoint := fmt.Sprintf("users/%s/api-keys", url.PathEscape(userID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"name": name}, &resp)
	return resp, err
}

// ListAnimals browses the directory; species and status may be empty.
func (c *Client) ListAnimals(ctx context.Context, species, status string) ([]Animal, error) {
	v := url.Values{}
	set(v, "species", species)
	set(v, "status", status)
	var resp []Animal
	err := c.do(ctx, http.MethodGet, withQuery("animals", v), nil, &resp)
	return resp, err
}

// CreateAnimal adds an animal; staff only.
func (c *Client) CreateAnimal(ctx context.Context, a Animal) (Animal, error) {
	body := map[string]any{
		"name":          a.Name,
		"species":       a.Species,
		"breed":         a.Breed,
		"age_years":     a.AgeYears,
		"age_months":    a.AgeMonths,
		"health_status": a.HealthStatus,
		"description":   a.Description,
	}
	var resp Animal
	err := c.do(ctx, http.MethodPost, "animals", body, &resp)
	return resp, err
}

// GetAnimal fetches an animal by id.
func (c *Client) GetAnimal(ctx context.Context, id string) (Animal, error) {
	var resp Animal
	err := c.do(ctx, http.MethodGet, "animals/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// CreateAdoption submits a request for the authenticated adopter.
func (c *Client) CreateAdoption(ctx context.Context, animalID string) (Adoption, error) {
	return c.CreateAdoptionFor(ctx, "", animalID)
}

// CreateAdoptionFor files a request on behalf of userID; administrators only.
func (c *Client) CreateAdoptionFor(ctx context.Context, userID, animalID string) (Adoption, error) {
	body := map[string]any{"animal_id": animalID}
	if userID != "" {
		body["user_id"] = userID
	}
	var resp Adoption
	err := c.do(ctx, http.MethodPost, "adoptions", body, &resp)
	return resp, err
}

// GetAdoption fetches a request, including whether it has a return.
func (c *Client) GetAdoption(ctx context.Context, id string) (Adoption, error) {
	var resp Adoption
	err := c.do(ctx, http.MethodGet, "adoptions/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListAdoptions returns one page of requests, newest first.
func (c *Client) ListAdoptions(ctx context.Context, q AdoptionQuery) (PaginatedAdoptions, error) {
	var resp PaginatedAdoptions
	err := c.do(ctx, http.MethodGet, withQuery("adoptions", q.values()), nil, &resp)
	return resp, err
}

// Returnable lists the caller's approved requests without a return.
func (c *Client) Returnable(ctx context.Context) ([]Adoption, error) {
	var resp []Adoption
	err := c.do(ctx, http.MethodGet, "adoptions/returnable", nil, &resp)
	return resp, err
}

// UpdateAdoptionStatus moves a request to approved or rejected.
func (c *Client) UpdateAdoptionStatus(ctx context.Context, id, status, reason string) (Adoption, error) {
	body := map[string]any{"status": status}
	if reason != "" {
		body["rejection_reason"] = reason
	}
	var resp Adoption
	err := c.do(ctx, http.MethodPut, "adoptions/"+url.PathEscape(id), body, &resp)
	return resp, err
}

// Approve approves a pending request.
func (c *Client) Approve(ctx context.Context, id string) (Adoption, error) {
	return c.UpdateAdoptionStatus(ctx, id, "approved", "")
}

// Reject rejects a request with a reason.
func (c *Client) Reject(ctx context.Context, id, reason string) (Adoption, error) {
	return c.UpdateAdoptionStatus(ctx, id, "rejected", reason)
}

// DeleteAdoption removes a request.
func (c *Client) DeleteAdoption(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "adoptions/"+url.PathEscape(id), nil, nil)
}

// ReturnAnimal records a return for the caller's approved request.
func (c *Client) ReturnAnimal(ctx context.Context, adoptionID, reason string) (Return, error) {
	var resp Return
	endpoint := fmt.Sprintf("adoptions/%s/return", url.PathEscape(adoptionID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"reason": reason}, &resp)
	return resp, err
}

// ProcessReturn records a return on behalf of the adopter; administrators only.
func (c *Client) ProcessReturn(ctx context.Context, adoptionID, reason string) (Return, error) {
	body := map[string]any{"adoption_id": adoptionID, "reason": reason}
	var resp Return
	err := c.do(ctx, http.MethodPost, "returns", body, &resp)
	return resp, err
}

// ListReturns lists the returns visible to the caller.
func (c *Client) ListReturns(ctx context.Context) ([]Return, error) {
	var resp []Return
	err := c.do(ctx, http.MethodGet, "returns", nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	v := url.Values{}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	set(v, "cursor", cursor)
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery("events", v), nil, &resp)
	return resp, err
}

func withQuery(endpoint string, v url.Values) string {
	if len(v) == 0 {
		return endpoint
	}
	return endpoint + "?" + v.Encode()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
