package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a single stats fetch.
const DefaultTimeout = 5 * time.Second

// Reader abstracts read-only data access for CLI commands.
type Reader interface {
	Stats(ctx context.Context) (*Stats, error)
}

// HTTPReader reads from a serving process's metrics listener.
type HTTPReader struct {
	baseURL string
	client  *http.Client
}

// NewHTTPReader creates a reader for addr, either a host:port or a full URL.
func NewHTTPReader(addr string) *HTTPReader {
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &HTTPReader{
		baseURL: base,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
}

// Stats fetches the current stats snapshot.
func (r *HTTPReader) Stats(ctx context.Context) (*Stats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+StatsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build stats request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", r.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status from %s%s: %s", r.baseURL, StatsPath, resp.Status)
	}

	var s Stats
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("invalid stats payload: %w", err)
	}
	return &s, nil
}

// Handler serves the stats produced by snapshot as JSON.
func Handler(snapshot func() Stats) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snapshot())
	})
}
