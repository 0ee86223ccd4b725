// Package league is the HTTP client for the league service, which owns
// league membership. The auction service reads the roster and size bounds at
// auction creation; membership is frozen into the auction from then on.
package league

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Member is a league member eligible to join the auction.
type Member struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
}

// League is the subset of league-service state the auction needs.
type League struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	CommissionerID uuid.UUID `json:"commissioner_id"`
	MinTeams       int       `json:"min_teams"`
	MaxTeams       int       `json:"max_teams"`
	Members        []Member  `json:"members"`
}

// Client calls the league service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a league service client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// GetLeague fetches a league with its member roster.
func (c *Client) GetLeague(ctx context.Context, id uuid.UUID) (*League, error) {
	url := fmt.Sprintf("%s/leagues/%s", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build league request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch league %s: %w", id, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("league %s not found", id)
	default:
		return nil, fmt.Errorf("league service returned %s", resp.Status)
	}

	var lg League
	if err := json.NewDecoder(resp.Body).Decode(&lg); err != nil {
		return nil, fmt.Errorf("decode league response: %w", err)
	}
	return &lg, nil
}
