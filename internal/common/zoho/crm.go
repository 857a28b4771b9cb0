package zoho

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	DefaultBaseURL     = "https://www.zohoapis.com/crm/v3"
	DefaultAccountsURL = "https://accounts.zoho.com"
)

// CRMClient writes helpdesk escalations to the Zoho CRM Cases module.
type CRMClient struct {
	tokens     oauth2.TokenSource
	baseURL    string
	httpClient *http.Client
}

// Case is the subset of Zoho's Cases fields the helpdesk fills in.
type Case struct {
	ID          string `json:"id,omitempty"`
	Subject     string `json:"Subject"`
	Description string `json:"Description,omitempty"`
	Status      string `json:"Status,omitempty"`
	Priority    string `json:"Priority,omitempty"`
	Origin      string `json:"Case_Origin,omitempty"`
	Type        string `json:"Type,omitempty"`
	Reason      string `json:"Case_Reason,omitempty"`
}

type createResponse struct {
	Data []struct {
		Code    string `json:"code"`
		Details struct {
			ID string `json:"id"`
		} `json:"details"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"data"`
}

// StaticToken wraps a long-lived access token.
func StaticToken(accessToken string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
}

// RefreshTokenSource exchanges a self-client refresh token for access tokens
// at accountsURL, refreshing them as they expire.
func RefreshTokenSource(ctx context.Context, accountsURL, clientID, clientSecret, refreshToken string) oauth2.TokenSource {
	if accountsURL == "" {
		accountsURL = DefaultAccountsURL
	}
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  strings.TrimSuffix(accountsURL, "/") + "/oauth/v2/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	return cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
}

func NewCRMClient(baseURL string, tokens oauth2.TokenSource, timeout time.Duration) *CRMClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CRMClient{
		tokens:     tokens,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CreateCase inserts c and returns the record ID Zoho assigned.
func (c *CRMClient) CreateCase(ctx context.Context, cs *Case) (string, error) {
	payload := map[string]interface{}{
		"data": []Case{*cs},
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal case: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/Cases", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(req); err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to create case (status %d): %s", resp.StatusCode, string(body))
	}

	var createResp createResponse
	if err := json.Unmarshal(body, &createResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(createResp.Data) == 0 {
		return "", fmt.Errorf("no data in response")
	}
	if createResp.Data[0].Status != "success" {
		return "", fmt.Errorf("case creation failed: %s", createResp.Data[0].Message)
	}

	return createResp.Data[0].Details.ID, nil
}

// Zoho expects its own scheme rather than Bearer.
func (c *CRMClient) authorize(req *http.Request) error {
	tok, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("failed to obtain zoho token: %w", err)
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+tok.AccessToken)
	return nil
}
