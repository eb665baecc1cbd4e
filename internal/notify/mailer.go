// Package notify holds the outbound notification and document boundaries.
// Mail failures are non-fatal post-commit: a registration's validity never
// depends on them.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Recipient is one mail target with template merge fields.
type Recipient struct {
	Email     string            `json:"email"`
	Name      string            `json:"name"`
	MergeData map[string]string `json:"merge_data,omitempty"`
}

// Mailer sends a template email to a list of recipients.
type Mailer interface {
	SendTemplate(ctx context.Context, templateKey string, recipients []Recipient) error
}

// TemplateMailer posts template-merge requests to the mail provider's API.
type TemplateMailer struct {
	apiURL string
	apiKey string
	http   *http.Client
}

// NewTemplateMailer creates a mailer against the provider's template endpoint.
func NewTemplateMailer(apiURL, apiKey string) *TemplateMailer {
	return &TemplateMailer{
		apiURL: apiURL,
		apiKey: apiKey,
		http:   &http.Client{Timeout: 20 * time.Second},
	}
}

type templateMailRequest struct {
	TemplateKey string      `json:"template_key"`
	Recipients  []Recipient `json:"recipients"`
}

// SendTemplate sends one template email per recipient batch.
func (m *TemplateMailer) SendTemplate(ctx context.Context, templateKey string, recipients []Recipient) error {
	if m.apiURL == "" {
		return fmt.Errorf("mailer is not configured")
	}
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients")
	}

	body, err := json.Marshal(templateMailRequest{
		TemplateKey: templateKey,
		Recipients:  recipients,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal mail request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", m.apiKey)

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("mail request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("mail provider returned %d: %s", resp.StatusCode, respBody)
	}
	return nil
}
