package refcheck

import (
	"context"
	"fmt"
	"net/http"
)

// HTTPProber probes remote URIs with HEAD requests.
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber builds a prober; a nil client uses http.DefaultClient.
// Per-probe timeouts come from the resolver's context, not the client.
func NewHTTPProber(client *http.Client) *HTTPProber {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProber{client: client}
}

// Probe issues a HEAD request; any 2xx status means the URI exists.
func (p *HTTPProber) Probe(ctx context.Context, uri string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, uri, nil)
	if err != nil {
		return false, fmt.Errorf("build probe request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("probe %s: %w", uri, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}
