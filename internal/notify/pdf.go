package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"btl-backend/internal/models"
)

// PDFRenderer produces confirmation documents. A render failure must never
// block a registration; callers treat errors as log-and-continue.
type PDFRenderer interface {
	RenderSchoolConfirmation(ctx context.Context, school *models.School) ([]byte, string, error)
	RenderTeamConfirmation(ctx context.Context, school *models.School, teams []models.Team) ([]byte, string, error)
}

// HTTPRenderer delegates rendering to an external document service.
type HTTPRenderer struct {
	renderURL string
	http      *http.Client
}

// NewHTTPRenderer creates a renderer against the document service. An empty
// URL yields a renderer whose calls fail, which callers already tolerate.
func NewHTTPRenderer(renderURL string) *HTTPRenderer {
	return &HTTPRenderer{
		renderURL: renderURL,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

type renderRequest struct {
	Template string         `json:"template"`
	School   *models.School `json:"school"`
	Teams    []models.Team  `json:"teams,omitempty"`
}

func (r *HTTPRenderer) render(ctx context.Context, req renderRequest) ([]byte, error) {
	if r.renderURL == "" {
		return nil, fmt.Errorf("pdf renderer is not configured")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal render request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.renderURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("render request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("renderer returned %d", resp.StatusCode)
	}

	pdf, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered document: %w", err)
	}
	return pdf, nil
}

// RenderSchoolConfirmation renders the school registration confirmation.
func (r *HTTPRenderer) RenderSchoolConfirmation(ctx context.Context, school *models.School) ([]byte, string, error) {
	pdf, err := r.render(ctx, renderRequest{Template: "school", School: school})
	if err != nil {
		return nil, "", err
	}
	return pdf, fmt.Sprintf("School_Registration_%s.pdf", school.SchoolRegID), nil
}

// RenderTeamConfirmation renders the batch team registration confirmation.
func (r *HTTPRenderer) RenderTeamConfirmation(ctx context.Context, school *models.School, teams []models.Team) ([]byte, string, error) {
	pdf, err := r.render(ctx, renderRequest{Template: "team_batch", School: school, Teams: teams})
	if err != nil {
		return nil, "", err
	}
	return pdf, fmt.Sprintf("Team_Registration_Details_%s.pdf", school.SchoolRegID), nil
}
