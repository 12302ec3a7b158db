package fetcher

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"
)

// SpeechTransport fetches the raw body of the legislative speech page. The
// upstream serves this one endpoint with a TLSv1.2-only certificate chain
// that a strict client refuses to verify; implementations are free to
// relax that however suits the deployment environment.
type SpeechTransport interface {
	FetchSpeechPage(ctx context.Context, url string) (string, error)
}

// lenientHTTPTransport is the default SpeechTransport: an in-process HTTP
// client configured to accept the upstream's certificate without
// verification, scoped to this one transport instance rather than any
// shared client in the process.
type lenientHTTPTransport struct {
	client *http.Client
}

// NewLenientHTTPTransport builds the default in-process SpeechTransport.
func NewLenientHTTPTransport(timeout time.Duration) SpeechTransport {
	return &lenientHTTPTransport{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: true,
					MinVersion:         tls.VersionTLS12,
					MaxVersion:         tls.VersionTLS12,
				},
			},
		},
	}
}

func (t *lenientHTTPTransport) FetchSpeechPage(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("speech page returned status %d", resp.StatusCode)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return "", fmt.Errorf("read speech body: %w", err)
	}
	return buf.String(), nil
}

// curlSpeechTransport shells out to curl for environments where Go's TLS
// stack cannot be made to negotiate the upstream's chain. Mirrors the
// legacy `curl --tlsv1.2 --insecure -sSf` invocation this transport
// replaces by default.
type curlSpeechTransport struct {
	timeout time.Duration
}

// NewCurlFallbackTransport builds a SpeechTransport backed by the system
// curl binary. Use when NewLenientHTTPTransport cannot complete the
// handshake in a given environment.
func NewCurlFallbackTransport(timeout time.Duration) SpeechTransport {
	return &curlSpeechTransport{timeout: timeout}
}

func (t *curlSpeechTransport) FetchSpeechPage(ctx context.Context, url string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "curl", "--tlsv1.2", "--insecure", "-sSf", url)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("curl fallback: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out.String(), nil
}
