package homeapi

import (
	"context"
	"net/http"
	"time"
)

// Probes are kept short so status endpoints never stall on a dead backend.
const probeTimeout = 2 * time.Second

// Reachable returns true if the backend answers HTTP at all.
func (c *Client) Reachable(ctx context.Context) bool {
	return probeURL(ctx, c.baseURL)
}

func probeURL(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}

	client := &http.Client{
		Timeout: probeTimeout,
	}

	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()

	// Any non-error HTTP status means something is listening
	return resp.StatusCode >= 200 && resp.StatusCode < 500
}
