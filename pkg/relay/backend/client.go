// Copyright 2024-2026 Aiku AI

// Package backend implements the persistence RPC client for the redirections
// API. Every call is a POST to an rpc/* endpoint carrying the API key both as
// an apikey header and a bearer token, mirroring what the API gateway
// expects.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/telegram-redirector/pkg/relay"
)

// Client calls the redirections backend API. It implements relay.Store.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     zerolog.Logger
}

var _ relay.Store = (*Client)(nil)

// NewClient creates a backend client with the configured request timeout.
func NewClient(cfg relay.BackendConfig, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.RequestTimeoutDuration()},
		log:     log.With().Str("component", "backend").Logger(),
	}
}

// userRecord is the wire shape of the users table.
type userRecord struct {
	ID              int64  `json:"id"`
	Username        string `json:"username"`
	Name            string `json:"name"`
	PhoneNumber     string `json:"phonenumber"`
	LastPaymentDate string `json:"lastpaymentdate"`
	PaymentDate     string `json:"paymentdate"`
	CreateAt        string `json:"createat"`
}

// redirectionRecord is the wire shape of the redirections table. The API is
// not consistent about numeric types, so ids are decoded as json.Number.
type redirectionRecord struct {
	UserID            json.Number `json:"user_id"`
	RedirectionID     string      `json:"redirection_id"`
	SourceChatID      json.Number `json:"source_chat_id"`
	DestinationChatID json.Number `json:"destination_chat_id"`
}

// rpc POSTs a payload to an rpc endpoint and returns the raw response body
// for 2xx responses. Non-2xx responses come back as *relay.BackendError.
func (c *Client) rpc(ctx context.Context, name string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &relay.BackendError{Op: name, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc/"+name, bytes.NewReader(body))
	if err != nil {
		return nil, &relay.BackendError{Op: name, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &relay.BackendError{Op: name, Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &relay.BackendError{Op: name, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Debug().Str("op", name).Int("status", resp.StatusCode).Msg("Backend call failed")
		return data, &relay.BackendError{Op: name, Status: resp.StatusCode}
	}
	return data, nil
}

// GetUser implements relay.Store. The API reports a missing user either as a
// 404 or as a 200 with an error envelope, so both map to ErrUserNotFound.
func (c *Client) GetUser(ctx context.Context, userID int64) (*relay.UserProfile, error) {
	data, err := c.rpc(ctx, "get_user_by_id", map[string]any{"user_id_input": userID})
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, fmt.Errorf("get_user_by_id: %w", relay.ErrUserNotFound)
		}
		return nil, err
	}

	var out struct {
		Error      string `json:"error"`
		StatusCode int    `json:"status_code"`
		userRecord
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &relay.BackendError{Op: "get_user_by_id", Err: err}
	}
	if out.Error != "" && out.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("get_user_by_id: %w", relay.ErrUserNotFound)
	}
	return &relay.UserProfile{
		ID:              out.ID,
		Username:        out.Username,
		Name:            out.Name,
		Phone:           out.PhoneNumber,
		LastPaymentDate: parseAPITime(out.LastPaymentDate),
		NextPaymentDate: parseAPITime(out.PaymentDate),
		CreatedAt:       parseAPITime(out.CreateAt),
	}, nil
}

// CreateUser implements relay.Store.
func (c *Client) CreateUser(ctx context.Context, profile *relay.UserProfile) error {
	record := userRecord{
		ID:              profile.ID,
		Username:        profile.Username,
		Name:            profile.Name,
		PhoneNumber:     profile.Phone,
		LastPaymentDate: profile.LastPaymentDate.Format(time.RFC3339),
		PaymentDate:     profile.NextPaymentDate.Format(time.RFC3339),
		CreateAt:        profile.CreatedAt.Format(time.RFC3339),
	}
	_, err := c.rpc(ctx, "create_user", map[string]any{"user_data": record})
	return err
}

// ListRedirections implements relay.Store. Records with unparseable ids are
// skipped with a warning rather than failing the whole load.
func (c *Client) ListRedirections(ctx context.Context) ([]relay.StoredRedirection, error) {
	data, err := c.rpc(ctx, "get_all_redirections", map[string]any{})
	if err != nil {
		return nil, err
	}
	var records []redirectionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &relay.BackendError{Op: "get_all_redirections", Err: err}
	}

	stored := make([]relay.StoredRedirection, 0, len(records))
	for _, rec := range records {
		s, err := rec.toStored()
		if err != nil {
			c.log.Warn().Err(err).Str("redirection_id", rec.RedirectionID).Msg("Skipping malformed redirection record")
			continue
		}
		stored = append(stored, s)
	}
	return stored, nil
}

func (r redirectionRecord) toStored() (relay.StoredRedirection, error) {
	userID, err := r.UserID.Int64()
	if err != nil {
		return relay.StoredRedirection{}, fmt.Errorf("bad user_id %q: %w", r.UserID, err)
	}
	source, err := r.SourceChatID.Int64()
	if err != nil {
		return relay.StoredRedirection{}, fmt.Errorf("bad source_chat_id %q: %w", r.SourceChatID, err)
	}
	destination, err := r.DestinationChatID.Int64()
	if err != nil {
		return relay.StoredRedirection{}, fmt.Errorf("bad destination_chat_id %q: %w", r.DestinationChatID, err)
	}
	return relay.StoredRedirection{
		UserID:            userID,
		RuleID:            r.RedirectionID,
		SourceChatID:      source,
		DestinationChatID: destination,
	}, nil
}

// InsertRedirection implements relay.Store. A conflict maps to
// ErrDuplicateRule.
func (c *Client) InsertRedirection(ctx context.Context, userID int64, ruleID string) error {
	_, err := c.rpc(ctx, "insert_redirection", map[string]any{
		"user_id":        userID,
		"redirection_id": ruleID,
	})
	if isStatus(err, http.StatusConflict) {
		return fmt.Errorf("insert_redirection: %w", relay.ErrDuplicateRule)
	}
	return err
}

// InsertChatRedirection implements relay.Store.
func (c *Client) InsertChatRedirection(ctx context.Context, userID int64, ruleID string, role relay.ChatRole, chatID int64) error {
	_, err := c.rpc(ctx, "insert_chat_redirection", map[string]any{
		"user_id":        userID,
		"redirection_id": ruleID,
		"role":           string(role),
		"chat_id":        chatID,
	})
	return err
}

// DeleteRedirection implements relay.Store. A 404 maps to ErrRuleNotFound.
func (c *Client) DeleteRedirection(ctx context.Context, userID int64, ruleID string) error {
	_, err := c.rpc(ctx, "delete_redirection", map[string]any{
		"user_id":        userID,
		"redirection_id": ruleID,
	})
	if isStatus(err, http.StatusNotFound) {
		return fmt.Errorf("delete_redirection: %w", relay.ErrRuleNotFound)
	}
	return err
}

// GetChatRedirection fetches one persisted redirection with its chat ids.
// Not part of relay.Store (the registry serves reads from memory); kept for
// operational tooling against the same API.
func (c *Client) GetChatRedirection(ctx context.Context, userID int64, ruleID string) (*relay.StoredRedirection, error) {
	data, err := c.rpc(ctx, "get_chat_redirection_by_user_and_id", map[string]any{
		"user_id":        userID,
		"redirection_id": ruleID,
	})
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, fmt.Errorf("get_chat_redirection_by_user_and_id: %w", relay.ErrRuleNotFound)
		}
		return nil, err
	}
	var rec redirectionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &relay.BackendError{Op: "get_chat_redirection_by_user_and_id", Err: err}
	}
	stored, err := rec.toStored()
	if err != nil {
		return nil, &relay.BackendError{Op: "get_chat_redirection_by_user_and_id", Err: err}
	}
	return &stored, nil
}

// isStatus reports whether err is a BackendError with the given HTTP status.
func isStatus(err error, status int) bool {
	if err == nil {
		return false
	}
	be, ok := err.(*relay.BackendError)
	return ok && be.Status == status
}

// parseAPITime tolerates the mixed timestamp formats the API emits.
func parseAPITime(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
