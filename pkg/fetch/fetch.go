// Package fetch is the process-wide HTTP client used by every source
// adapter. It sends a fixed desktop User-Agent, bounds each request with a
// timeout, and decodes legacy page charsets to UTF-8. It never retries; the
// caller decides what a failure means.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/WessleyAI/autocrawl/pkg/resilience"
)

// DefaultUserAgent is a desktop browser string; the listing sites serve a
// reduced mobile layout to unknown agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

const (
	defaultTimeout = 8 * time.Second
	defaultMaxBody = 16 << 20
)

// Options configures a Client. Zero values pick the defaults.
type Options struct {
	UserAgent string
	Timeout   time.Duration
	// Transport is the base round tripper; it is wrapped for tracing.
	Transport http.RoundTripper
	// Limiter, if set, paces requests per host.
	Limiter *resilience.HostLimiter
	// MaxBody caps how many bytes of a response are read.
	MaxBody int64
	// Observe, if set, is called after every request.
	Observe func(Observation)
}

// Observation describes one completed request.
type Observation struct {
	Host     string
	Status   int
	Duration time.Duration
	Err      error
}

// Client fetches pages. It is safe for concurrent use.
type Client struct {
	http    *http.Client
	ua      string
	limiter *resilience.HostLimiter
	maxBody int64
	observe func(Observation)
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxBody <= 0 {
		opts.MaxBody = defaultMaxBody
	}
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return &Client{
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(base),
		},
		ua:      opts.UserAgent,
		limiter: opts.Limiter,
		maxBody: opts.MaxBody,
		observe: opts.Observe,
	}
}

// Get fetches rawURL and returns the body as UTF-8 text. If charset is not
// empty the body is decoded from that encoding (e.g. "windows-1251").
// Non-2xx responses fail with a KindStatus *Error.
func (c *Client) Get(ctx context.Context, rawURL, charset string) (string, error) {
	start := time.Now()
	status, body, err := c.get(ctx, rawURL, charset)
	if c.observe != nil {
		host := ""
		if u, perr := url.Parse(rawURL); perr == nil {
			host = u.Host
		}
		c.observe(Observation{Host: host, Status: status, Duration: time.Since(start), Err: err})
	}
	return body, err
}

func (c *Client) get(ctx context.Context, rawURL, charset string) (int, string, error) {
	if err := c.limiter.Wait(ctx, rawURL); err != nil {
		return 0, "", &Error{Kind: KindTransport, URL: rawURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, "", &Error{Kind: KindTransport, URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", c.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "bg,ro;q=0.9,en;q=0.8")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", &Error{Kind: KindTransport, URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return resp.StatusCode, "", &Error{Kind: KindStatus, URL: rawURL, Status: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return resp.StatusCode, "", &Error{Kind: KindTransport, URL: rawURL, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	text, err := decode(raw, charset)
	if err != nil {
		return resp.StatusCode, "", &Error{Kind: KindDecode, URL: rawURL, Status: resp.StatusCode, Err: err}
	}
	return resp.StatusCode, text, nil
}

func decode(raw []byte, charset string) (string, error) {
	charset = strings.TrimSpace(charset)
	if charset == "" || strings.EqualFold(charset, "utf-8") || strings.EqualFold(charset, "utf8") {
		return string(raw), nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", fmt.Errorf("charset %q: %w", charset, err)
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", charset, err)
	}
	return string(out), nil
}

// Kind classifies a fetch failure.
type Kind int

const (
	KindTransport Kind = iota + 1 // network, timeout or body read failure
	KindStatus                    // non-2xx response
	KindDecode                    // body could not be decoded from the charset
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error is returned by Client.Get.
type Error struct {
	Kind   Kind
	URL    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindStatus:
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransport reports whether err is a fetch failure of any kind, which the
// pipeline counts as a transport drop.
func IsTransport(err error) bool {
	var fe *Error
	return errors.As(err, &fe)
}

// Status returns the HTTP status carried by err, or 0.
func Status(err error) int {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Status
	}
	return 0
}

// Temporary reports whether repeating the request could succeed: timeouts,
// connection failures, 5xx and 429. Cancellation of the caller's context is
// never temporary.
func Temporary(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var fe *Error
	if !errors.As(err, &fe) {
		return false
	}
	switch fe.Kind {
	case KindStatus:
		return fe.Status == http.StatusTooManyRequests || fe.Status >= 500
	case KindTransport:
		return true
	default:
		return false
	}
}
