// Package http is the pooled HTTP transport that issues benchmark requests
// and classifies their outcomes.
package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/quic-go/quic-go/http3"

	"github.com/wesleyorama2/volley/internal/bench"
)

// Protocol selects the HTTP version used by a Client.
type Protocol string

const (
	ProtocolHTTP1 Protocol = "h1"
	ProtocolHTTP2 Protocol = "h2"
	ProtocolHTTP3 Protocol = "h3"
)

// ParseProtocol accepts h1, h2, h3 and the http/1.1, http/2, http/3 spellings.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "h1", "http1", "http/1.1":
		return ProtocolHTTP1, nil
	case "h2", "http2", "http/2":
		return ProtocolHTTP2, nil
	case "h3", "http3", "http/3":
		return ProtocolHTTP3, nil
	}
	return "", fmt.Errorf("unknown protocol %q (want h1, h2 or h3)", s)
}

// Client issues requests for the runner over pooled connections. It is safe
// for concurrent use.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	logger     *slog.Logger

	protocol       Protocol
	timeout        time.Duration
	insecure       bool
	maxIdlePerHost int

	closeIdle func()
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout applied when a target has none.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithHeader adds a header sent with every request. Target headers win.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithProtocol selects HTTP/1.1, HTTP/2 or HTTP/3.
func WithProtocol(p Protocol) ClientOption {
	return func(c *Client) {
		c.protocol = p
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
func WithInsecureSkipVerify(skip bool) ClientOption {
	return func(c *Client) {
		c.insecure = skip
	}
}

// WithMaxIdleConnsPerHost sizes the idle connection pool. It should be at
// least the campaign concurrency so connections are reused.
func WithMaxIdleConnsPerHost(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxIdlePerHost = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a new client with the given options.
func NewClient(options ...ClientOption) *Client {
	c := &Client{
		headers:        make(map[string]string),
		logger:         slog.Default(),
		protocol:       ProtocolHTTP1,
		timeout:        30 * time.Second,
		maxIdlePerHost: 100,
	}
	for _, option := range options {
		option(c)
	}

	tlsConfig := &tls.Config{InsecureSkipVerify: c.insecure}

	var rt http.RoundTripper
	switch c.protocol {
	case ProtocolHTTP3:
		h3 := &http3.Transport{TLSClientConfig: tlsConfig}
		c.closeIdle = func() { _ = h3.Close() }
		rt = h3
	default:
		dialer := &net.Dialer{
			Timeout:   c.timeout,
			KeepAlive: 30 * time.Second,
		}
		transport := &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			TLSClientConfig:     tlsConfig,
			ForceAttemptHTTP2:   c.protocol == ProtocolHTTP2,
			MaxIdleConns:        c.maxIdlePerHost,
			MaxIdleConnsPerHost: c.maxIdlePerHost,
			IdleConnTimeout:     90 * time.Second,
		}
		if c.protocol == ProtocolHTTP1 {
			tlsConfig.NextProtos = []string{"http/1.1"}
			// A non-nil empty map disables HTTP/2 upgrades.
			transport.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
		} else {
			tlsConfig.NextProtos = []string{"h2", "http/1.1"}
		}
		c.closeIdle = transport.CloseIdleConnections
		rt = transport
	}

	c.httpClient = &http.Client{
		Transport: rt,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return c
}

// Protocol returns the configured protocol.
func (c *Client) Protocol() Protocol {
	return c.protocol
}

// Close releases pooled connections.
func (c *Client) Close() {
	if c.closeIdle != nil {
		c.closeIdle()
	}
}

// Issue sends one request for the target and classifies the result.
// Elapsed runs from just before sending until the response body is fully
// read. Redirects are not followed; a 3xx counts against the expected set.
func (c *Client) Issue(ctx context.Context, target *bench.Target) bench.Attempt {
	timeout := target.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := c.newRequest(ctx, target)
	if err != nil {
		c.logger.Debug("building request failed", slog.String("target", target.ID), slog.Any("error", err))
		return bench.Attempt{Outcome: bench.Failure(bench.ReasonTransport)}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return bench.Attempt{
			Elapsed: time.Since(start),
			Outcome: bench.Failure(classify(err)),
		}
	}

	n, readErr := io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	elapsed := time.Since(start)

	if readErr != nil {
		reason := bench.ReasonTransport
		if isTimeout(readErr) {
			reason = bench.ReasonTimeout
		}
		return bench.Attempt{Elapsed: elapsed, Outcome: bench.Failure(reason), Bytes: n}
	}
	if !target.Expects(resp.StatusCode) {
		return bench.Attempt{Elapsed: elapsed, Outcome: bench.UnexpectedStatus(resp.StatusCode), Bytes: n}
	}
	return bench.Attempt{Elapsed: elapsed, Outcome: bench.Success(resp.StatusCode), Bytes: n}
}
