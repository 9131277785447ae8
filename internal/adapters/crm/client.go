package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/caselink/voice-call-service/pkg/logger"
	"go.uber.org/zap"
)

// Contact is a CRM contact. Tags and CustomFields are the fields the call
// lifecycle mutates; everything else the CRM holds is opaque to us.
type Contact struct {
	ID           string            `json:"id"`
	Phone        string            `json:"phone"`
	FirstName    string            `json:"firstName,omitempty"`
	LastName     string            `json:"lastName,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	CustomFields map[string]string `json:"customFields,omitempty"`
}

// ContactUpdate is a partial contact mutation. Nil fields are untouched.
type ContactUpdate struct {
	Tags         []string          `json:"tags,omitempty"`
	CustomFields map[string]string `json:"customFields,omitempty"`
}

// Task is a follow-up work item created against a contact.
type Task struct {
	ContactID   string    `json:"contactId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	DueDate     time.Time `json:"dueDate"`
	Urgent      bool      `json:"urgent,omitempty"`
}

// Client is the CRM collaborator. The router looks up contacts, the status
// engine mirrors call state onto them, and the recording pipeline tags them.
type Client interface {
	FindContactByPhone(ctx context.Context, phone string) (*Contact, error)
	GetContact(ctx context.Context, contactID string) (*Contact, error)
	UpdateContact(ctx context.Context, contactID string, update *ContactUpdate) error
	AddNote(ctx context.Context, contactID, note string) error
	CreateTask(ctx context.Context, task *Task) error
	TriggerCampaign(ctx context.Context, contactID, campaignID string) error
}

// HTTPClient talks to the CRM's REST API.
type HTTPClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewHTTPClient creates a CRM client.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// FindContactByPhone looks up a contact by phone number. A missing contact
// returns (nil, nil) so callers can distinguish "no contact" from failure.
func (c *HTTPClient) FindContactByPhone(ctx context.Context, phone string) (*Contact, error) {
	path := "/contacts/lookup?phone=" + url.QueryEscape(phone)

	var result struct {
		Contacts []*Contact `json:"contacts"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &result)
	if err != nil {
		if apiErr, ok := err.(*APIError); ok && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	if len(result.Contacts) == 0 {
		return nil, nil
	}
	return result.Contacts[0], nil
}

// GetContact fetches a contact by id.
func (c *HTTPClient) GetContact(ctx context.Context, contactID string) (*Contact, error) {
	var result struct {
		Contact *Contact `json:"contact"`
	}
	if err := c.do(ctx, http.MethodGet, "/contacts/"+contactID, nil, &result); err != nil {
		return nil, err
	}
	return result.Contact, nil
}

// UpdateContact applies a partial update to a contact.
func (c *HTTPClient) UpdateContact(ctx context.Context, contactID string, update *ContactUpdate) error {
	return c.do(ctx, http.MethodPut, "/contacts/"+contactID, update, nil)
}

// AddNote appends a note to a contact's timeline.
func (c *HTTPClient) AddNote(ctx context.Context, contactID, note string) error {
	body := map[string]string{"body": note}
	return c.do(ctx, http.MethodPost, "/contacts/"+contactID+"/notes", body, nil)
}

// CreateTask creates a follow-up task.
func (c *HTTPClient) CreateTask(ctx context.Context, task *Task) error {
	return c.do(ctx, http.MethodPost, "/contacts/"+task.ContactID+"/tasks", task, nil)
}

// TriggerCampaign enrolls a contact in a campaign.
func (c *HTTPClient) TriggerCampaign(ctx context.Context, contactID, campaignID string) error {
	body := map[string]string{"contactId": contactID}
	return c.do(ctx, http.MethodPost, "/campaigns/"+campaignID+"/enroll", body, nil)
}

// APIError is a non-2xx response from the CRM.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("CRM API error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		logger.Base().Error("CRM request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return fmt.Errorf("CRM request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	if out != nil && len(bodyBytes) > 0 {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
