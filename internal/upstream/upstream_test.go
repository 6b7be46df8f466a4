package upstream

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestBuildHeadersRequiredSet(t *testing.T) {
	h := buildHeaders("us-east-1", "1.2.3", "machine-xyz", "tok-abc")

	if h.Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected content-type: %s", h.Get("Content-Type"))
	}
	if h.Get("Authorization") != "Bearer tok-abc" {
		t.Fatalf("unexpected authorization: %s", h.Get("Authorization"))
	}
	if h.Get("Host") != "q.us-east-1.amazonaws.com" {
		t.Fatalf("unexpected host: %s", h.Get("Host"))
	}
	if h.Get("Connection") != "close" {
		t.Fatalf("unexpected connection header: %s", h.Get("Connection"))
	}
	if h.Get(sdkRequestHdr) != "attempt=1; max=3" {
		t.Fatalf("unexpected sdk-request header: %s", h.Get(sdkRequestHdr))
	}
	if h.Get(sdkInvocationHdr) == "" {
		t.Fatal("expected a generated invocation id")
	}
	ua := h.Get("User-Agent")
	if ua != h.Get("x-amz-user-agent") {
		t.Fatal("expected User-Agent and x-amz-user-agent to match")
	}
	if ua == "" {
		t.Fatal("expected a non-empty composite user agent")
	}
}

func TestTargetURLUsesRegion(t *testing.T) {
	got := targetURL("eu-west-1")
	want := "https://q.eu-west-1.amazonaws.com/generateAssistantResponse"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestCallerStreamsResponseUnchanged(t *testing.T) {
	const body = "event: content_block_delta\ndata: {\"type\":\"text\"}\n\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			t.Errorf("expected bearer token forwarded, got %s", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}))
	defer srv.Close()

	c := &Caller{client: srv.Client(), region: "us-east-1", kiroVersion: "1.0", machineID: "m1"}
	// Call's target URL is fixed to the real upstream host, so Call itself is
	// not used here; the request goes through the Caller's http client to the
	// test server and the streamed body is checked byte for byte.
	req, _ := http.NewRequest(http.MethodPost, srv.URL, nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	got, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(got) != body {
		t.Fatalf("expected body forwarded unchanged, got %q", got)
	}
}

func TestProxyDialerRejectsUnsupportedScheme(t *testing.T) {
	u, _ := url.Parse("ftp://example.com")
	if _, err := proxyDialer(u); err == nil {
		t.Fatal("expected unsupported scheme to error")
	}
}
