// Package httpgql sends single GraphQL operations over HTTP and normalizes
// whatever comes back into a ProbeResult. It has no schema awareness: a 500,
// a GraphQL error list, or a happy data payload are all equally valid
// outcomes for the caller to interpret. Only connection-level faults surface
// as Go errors.
package httpgql

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/ksuid"
	"golang.org/x/time/rate"

	"github.com/giuseppesec/gqlmap"
	"github.com/giuseppesec/gqlmap/qerrors"
)

const DefaultTimeout = 30 * time.Second

// A browser user agent keeps WAFs from short-circuiting the probes.
const defaultUserAgent = "Mozilla/5.0 (Linux; Android 16) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.7499.194 Mobile Safari/537.36"

type Options struct {
	// Headers are sent on every request, e.g. Authorization.
	Headers http.Header
	// Proxy is an optional upstream http://, https:// or socks5:// proxy URL.
	Proxy string
	// Timeout bounds a single round trip. Zero means DefaultTimeout.
	Timeout time.Duration
	// Insecure skips TLS certificate verification.
	Insecure bool
	// RPS throttles outgoing requests with a token bucket. Zero disables
	// pacing.
	RPS   float64
	Burst int
	// Debug tags every request with an X-GQLMap-Probe header naming the
	// probe that produced it, which makes proxy logs legible.
	Debug     bool
	UserAgent string
}

// Client executes GraphQL operations against a single endpoint URL.
type Client struct {
	URL        string
	HTTPClient *http.Client

	runID   string
	headers http.Header
	limiter *rate.Limiter
	debug   bool
}

// NewClient validates the endpoint and proxy configuration up front; a bad
// URL here is a FatalConfigError, the run must not start.
func NewClient(endpoint string, opts Options) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, qerrors.FatalConfig(err, "invalid target URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, qerrors.FatalConfig(errors.Errorf("unsupported scheme %q", u.Scheme), "invalid target URL")
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
	}
	if opts.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, qerrors.FatalConfig(err, "invalid proxy URL")
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	headers := http.Header{}
	for k, vs := range opts.Headers {
		for _, v := range vs {
			headers.Add(k, v)
		}
	}
	if headers.Get("User-Agent") == "" {
		ua := opts.UserAgent
		if ua == "" {
			ua = defaultUserAgent
		}
		headers.Set("User-Agent", ua)
	}

	var limiter *rate.Limiter
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}

	return &Client{
		URL: endpoint,
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		runID:   ksuid.New().String(),
		headers: headers,
		limiter: limiter,
		debug:   opts.Debug,
	}, nil
}

// RunID identifies this client's probing session in debug headers and logs.
func (client *Client) RunID() string {
	return client.runID
}

// WithURL returns a client identical to this one but pointed at a different
// endpoint. Endpoint discovery uses it to probe many paths with one
// configuration.
func (client *Client) WithURL(endpoint string) *Client {
	clone := *client
	clone.URL = endpoint
	return &clone
}

// Post sends the operation as an application/json POST, the standard GraphQL
// transport.
func (client *Client) Post(ctx context.Context, query string, variables interface{}, probe string) (*ProbeResult, error) {
	body, err := json.Marshal(&gqlmap.Request{Query: query, Variables: variables})
	if err != nil {
		return nil, errors.Wrap(err, "marshaling request")
	}
	return client.roundTrip(ctx, http.MethodPost, client.URL, "application/json", string(body), probe)
}

// PostBatch sends several operations as a JSON array in one request. Many
// servers accept this; the batching security check wants to know which.
func (client *Client) PostBatch(ctx context.Context, requests []gqlmap.Request, probe string) (*ProbeResult, error) {
	body, err := json.Marshal(requests)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling batch request")
	}
	return client.roundTrip(ctx, http.MethodPost, client.URL, "application/json", string(body), probe)
}

// PostForm sends the operation form-encoded, the CSRF-relevant transport.
func (client *Client) PostForm(ctx context.Context, query string, probe string) (*ProbeResult, error) {
	form := url.Values{"query": []string{query}}
	return client.roundTrip(ctx, http.MethodPost, client.URL, "application/x-www-form-urlencoded", form.Encode(), probe)
}

// Get sends the operation as a query parameter.
func (client *Client) Get(ctx context.Context, query string, probe string) (*ProbeResult, error) {
	u, err := url.Parse(client.URL)
	if err != nil {
		return nil, qerrors.FatalConfig(err, "invalid target URL")
	}
	q := u.Query()
	q.Set("query", query)
	u.RawQuery = q.Encode()
	return client.roundTrip(ctx, http.MethodGet, u.String(), "", "", probe)
}

// GetHTML fetches the endpoint as a browser would, for IDE-page detection.
func (client *Client) GetHTML(ctx context.Context, probe string) (int, string, error) {
	if err := client.wait(ctx); err != nil {
		return 0, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, client.URL, nil)
	if err != nil {
		return 0, "", errors.Wrap(err, "building request")
	}
	client.applyHeaders(req, probe)
	req.Header.Set("Accept", "text/html")

	resp, err := client.HTTPClient.Do(req)
	if err != nil {
		return 0, "", qerrors.Transport(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return resp.StatusCode, string(body), nil
}

func (client *Client) roundTrip(ctx context.Context, method, target, contentType, body, probe string) (*ProbeResult, error) {
	if err := client.wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	client.applyHeaders(req, probe)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := client.HTTPClient.Do(req)
	if err != nil {
		return nil, qerrors.Transport(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, qerrors.Transport(err)
	}

	result := &ProbeResult{
		Status: resp.StatusCode,
		Probe:  probe,
		Curl:   curlCommand(method, target, contentType, body),
		Raw:    raw,
	}
	result.Decode()
	return result, nil
}

func (client *Client) wait(ctx context.Context) error {
	if client.limiter == nil {
		return nil
	}
	if err := client.limiter.Wait(ctx); err != nil {
		return qerrors.Transport(err)
	}
	return nil
}

func (client *Client) applyHeaders(req *http.Request, probe string) {
	for k, vs := range client.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if client.debug && probe != "" {
		req.Header.Set("X-GQLMap-Probe", probe)
		req.Header.Set("X-GQLMap-Run", client.runID)
	}
}

func curlCommand(method, target, contentType, body string) string {
	if method == http.MethodGet {
		return "curl -X GET '" + target + "'"
	}
	sb := strings.Builder{}
	sb.WriteString("curl -X ")
	sb.WriteString(method)
	sb.WriteString(" '")
	sb.WriteString(target)
	sb.WriteString("'")
	if contentType != "" {
		sb.WriteString(" -H 'Content-Type: ")
		sb.WriteString(contentType)
		sb.WriteString("'")
	}
	if body != "" {
		sb.WriteString(" -d '")
		sb.WriteString(strings.ReplaceAll(body, "'", `'\''`))
		sb.WriteString("'")
	}
	return sb.String()
}
