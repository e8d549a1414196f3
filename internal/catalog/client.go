package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"ms-grounds/internal/models"
)

// Ground is the catalog service's view of a bookable facility. The booking
// flow only needs existence, ownership, opening hours and the hourly rate
// used to fix the reservation price at creation time.
type Ground struct {
	GroundID     string  `json:"ground_id"`
	OwnerID      string  `json:"owner_id"`
	Name         string  `json:"name"`
	PricePerHour float64 `json:"price_per_hour"`
	OpensAt      string  `json:"opens_at"`
	ClosesAt     string  `json:"closes_at"`
}

type Client struct {
	BaseURL string
	Client  *http.Client
}

func NewClient(baseURL string, client *http.Client) *Client {
	return &Client{BaseURL: baseURL, Client: client}
}

// GetGround looks up a ground by id. The http.Client carries the timeout, so
// a stuck catalog surfaces as an error instead of hanging the booking flow.
func (c *Client) GetGround(ctx context.Context, groundID string) (*Ground, error) {
	url := fmt.Sprintf("%s/api/grounds/%s", c.BaseURL, groundID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog request: %w", err)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog service error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: ground %s", models.ErrNotFound, groundID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog lookup failed: status %d", resp.StatusCode)
	}

	var ground Ground
	if err := json.NewDecoder(resp.Body).Decode(&ground); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}
	return &ground, nil
}
