// Package upstream implements the Upstream Call: builds the
// generateAssistantResponse request against q.<region>.amazonaws.com with
// the required header set and an optional Chrome-uTLS-fingerprinted proxy
// transport, and streams the 2xx response body back unchanged.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/martinfeng/kiro-relay/internal/translate"
)

// Caller issues generateAssistantResponse calls. One Caller is shared
// across requests; it holds no per-account state (the uTLS transport is
// keyed only by whether a proxy is configured, not by account, since
// every credential shares the same egress path in this deployment shape).
type Caller struct {
	client      *http.Client
	region      string
	kiroVersion string
	machineID   string
}

func NewCaller(region, kiroVersion, machineID, proxyURL string, timeout time.Duration) (*Caller, error) {
	rt, err := buildRoundTripper(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("build transport: %w", err)
	}
	return &Caller{
		client:      &http.Client{Transport: rt, Timeout: timeout},
		region:      region,
		kiroVersion: kiroVersion,
		machineID:   machineID,
	}, nil
}

// Response is a successful upstream call's result: the status and a
// still-open body the caller must close after streaming it out.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Call sends body to the upstream and returns the raw response for the
// caller to stream or inspect; it never buffers the body itself, since the
// response is an event stream that must be forwarded unchanged.
func (c *Caller) Call(ctx context.Context, accessToken string, body *translate.UpstreamBody) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal upstream body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL(c.region), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header = buildHeaders(c.region, c.kiroVersion, c.machineID, accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream call: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: resp.Body}, nil
}

// ReadErrorBody drains and closes a non-2xx response for trigger
// inspection (degrade.ShouldRetry) or surfacing to the caller. Bodies from
// the upstream's error path are small JSON payloads, never the streamed
// event-stream, so buffering here is safe.
func ReadErrorBody(resp *Response) []byte {
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return data
}
