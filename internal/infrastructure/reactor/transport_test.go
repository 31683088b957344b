// ABOUTME: Tests for the "ICY 200 OK" status-line rewrite in readICYResponse
package reactor

import (
	"bufio"
	"net/http"
	"strings"
	"testing"
)

func TestReadICYResponse_RewritesICYStatusLine(t *testing.T) {
	raw := "ICY 200 OK\r\n" +
		"icy-name: Test Station\r\n" +
		"Content-Type: audio/mpeg\r\n" +
		"\r\n" +
		"audio-bytes"

	req, err := http.NewRequest(http.MethodGet, "http://example.com/stream", nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	resp, err := readICYResponse(bufio.NewReader(strings.NewReader(raw)), req)
	if err != nil {
		t.Fatalf("readICYResponse failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("icy-name"); got != "Test Station" {
		t.Fatalf("expected icy-name header preserved, got %q", got)
	}
}

func TestReadICYResponse_PlainHTTPStatusLinePassesThrough(t *testing.T) {
	raw := "HTTP/1.1 404 Not Found\r\n" +
		"Content-Length: 0\r\n" +
		"\r\n"

	req, err := http.NewRequest(http.MethodGet, "http://example.com/missing", nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	resp, err := readICYResponse(bufio.NewReader(strings.NewReader(raw)), req)
	if err != nil {
		t.Fatalf("readICYResponse failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Fatalf("expected status 404, got %d", resp.StatusCode)
	}
}
