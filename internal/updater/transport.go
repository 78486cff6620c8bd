package updater

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/exec"
	"strings"
	"time"
)

// connectTimeout bounds connection setup for every transport.
const connectTimeout = 10 * time.Second

// lookPath is a test seam for exec.LookPath.
var lookPath = exec.LookPath

// Transport retrieves a remote resource. Implementations are
// interchangeable; the Fetcher uses the first available one.
type Transport interface {
	Name() string
	Available() bool
	Fetch(ctx context.Context, url string, w io.Writer) error
}

// commandTransport runs an external download tool that writes the body to
// stdout.
type commandTransport struct {
	name string
	args func(url string) []string
}

// CurlTransport downloads with curl. It is the primary transport.
func CurlTransport() Transport {
	return &commandTransport{
		name: "curl",
		args: func(url string) []string {
			return []string{"--fail", "-q", "-sSL", "--connect-timeout", fmt.Sprint(int(connectTimeout.Seconds())), url}
		},
	}
}

// WgetTransport downloads with wget.
func WgetTransport() Transport {
	return &commandTransport{
		name: "wget",
		args: func(url string) []string {
			return []string{"-T", "15", "-q", "-O", "-", url}
		},
	}
}

func (c *commandTransport) Name() string { return c.name }

func (c *commandTransport) Available() bool {
	_, err := lookPath(c.name)
	return err == nil
}

func (c *commandTransport) Fetch(ctx context.Context, url string, w io.Writer) error {
	path, err := lookPath(c.name)
	if err != nil {
		return fmt.Errorf("%s not found: %w", c.name, err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, c.args(url)...)
	cmd.Stdout = w
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s %s: %w: %s", c.name, url, err, msg)
		}
		return fmt.Errorf("%s %s: %w", c.name, url, err)
	}
	return nil
}

// HTTPTransport downloads with the in-process HTTP client. It is always
// available and is opt-in through the TRANSPORTS setting.
type HTTPTransport struct {
	Client *http.Client
}

// NewHTTPTransport returns an HTTPTransport whose dialer enforces the
// connect timeout.
func NewHTTPTransport() *HTTPTransport {
	dialer := &net.Dialer{Timeout: connectTimeout}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = dialer.DialContext
	tr.TLSHandshakeTimeout = connectTimeout
	return &HTTPTransport{Client: &http.Client{Transport: tr}}
}

func (h *HTTPTransport) Name() string    { return "http" }
func (h *HTTPTransport) Available() bool { return true }

func (h *HTTPTransport) Fetch(ctx context.Context, url string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "agentd-updater")

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching %s: server returned status %d", url, resp.StatusCode)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("reading %s: %w", url, err)
	}
	return nil
}

// TransportByName maps a TRANSPORTS entry to its implementation.
func TransportByName(name string) (Transport, error) {
	switch name {
	case "curl":
		return CurlTransport(), nil
	case "wget":
		return WgetTransport(), nil
	case "http":
		return NewHTTPTransport(), nil
	}
	return nil, fmt.Errorf("unknown transport %q", name)
}
