// Package meetapi is the client for the meeting HTTP API, used to seed
// meeting metadata independently of the signaling channel.
package meetapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/collabkit/meet/internal/domain"
)

// Client fetches meeting snapshots. Authentication happens beneath the
// request layer and is not a concern here.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given API base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// GetMeeting returns the MeetingInfo snapshot for id.
func (c *Client) GetMeeting(ctx context.Context, id string) (domain.MeetingInfo, error) {
	url := fmt.Sprintf("%s/meetings/%s", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.MeetingInfo{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return domain.MeetingInfo{}, fmt.Errorf("meetapi: get meeting: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.MeetingInfo{}, fmt.Errorf("meetapi: get meeting: unexpected status %d", resp.StatusCode)
	}
	var info domain.MeetingInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return domain.MeetingInfo{}, fmt.Errorf("meetapi: decode meeting: %w", err)
	}
	return info, nil
}
