// Package carrier implements a client for the Carrier/Bryant Infinity
// cloud API: OAuth 1.0a request signing, session management, telemetry
// reads, and the stateful config mutations used to change setpoints.
package carrier

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"
)

const (
	defaultBaseURL = "https://www.app-api.ing.carrier.com"

	// Consumer credentials shipped with the consumer portal; shared by all
	// clients of this API.
	consumerKey    = "8j30j19aj103911h"
	consumerSecret = "0f5ur7d89sjv8d45"

	defaultTimeout     = 30 * time.Second
	defaultSettleDelay = 3 * time.Second
)

// Client is a single-session client for one Infinity account. Requests are
// issued one at a time; if an instance is shared across goroutines, the
// token refresh is the only internally serialized section.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	cred        *Credential
	password    string
	settleDelay time.Duration
	logger      *slog.Logger

	// refreshMu serializes re-authentication so concurrent retries cannot
	// interleave stale and fresh tokens.
	refreshMu sync.Mutex

	// systems is discovered once per session and immutable afterwards.
	systems []string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the production API host.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSettleDelay sets the pause between the two pushes of a hold
// transition. The thermostat needs time to process the hold-off edge;
// tests set this to zero.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Client) { c.settleDelay = d }
}

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates an unauthenticated client for the given account.
func NewClient(username, password string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    defaultBaseURL,
		cred: &Credential{
			ConsumerKey:    consumerKey,
			ConsumerSecret: consumerSecret,
			Username:       username,
		},
		password:    password,
		settleDelay: defaultSettleDelay,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type credentialsPayload struct {
	XMLName  xml.Name `xml:"credentials"`
	Username string   `xml:"username"`
	Password string   `xml:"password"`
}

// Login authenticates and stores the issued access token. The login
// request itself is signed with an empty token.
func (c *Client) Login(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	return c.login(ctx)
}

func (c *Client) login(ctx context.Context) error {
	c.cred.AccessToken = ""

	payload, err := xml.Marshal(credentialsPayload{
		Username: c.cred.Username,
		Password: c.password,
	})
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}
	body := "data=" + url.QueryEscape(string(payload))

	status, respBody, err := c.do(ctx, "POST", "/users/authenticated", body,
		map[string]string{"Accept": "application/json"})
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	if status != http.StatusOK {
		return &AuthError{Status: status, Body: respBody}
	}

	var result struct {
		Result struct {
			AccessToken string `json:"accessToken"`
		} `json:"result"`
	}
	if err := json.Unmarshal([]byte(respBody), &result); err != nil {
		return fmt.Errorf("decoding login response: %w", err)
	}
	if result.Result.AccessToken == "" {
		return &AuthError{Status: status, Body: respBody}
	}

	c.cred.AccessToken = result.Result.AccessToken
	c.logger.Debug("login successful", "user", c.cred.Username)
	return nil
}

// request issues one signed request. On a 401 it re-authenticates and
// retries the request exactly once; a second rejection is returned as an
// AuthError with no further retries.
func (c *Client) request(ctx context.Context, method, path, body string, headers map[string]string) (string, error) {
	status, respBody, err := c.do(ctx, method, path, body, headers)
	if err != nil {
		return "", err
	}

	if status == http.StatusUnauthorized {
		c.logger.Info("access token rejected, re-authenticating", "path", path)
		c.refreshMu.Lock()
		err = c.login(ctx)
		c.refreshMu.Unlock()
		if err != nil {
			return "", fmt.Errorf("re-authenticating: %w", err)
		}
		status, respBody, err = c.do(ctx, method, path, body, headers)
		if err != nil {
			return "", err
		}
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "", &AuthError{Status: status, Body: respBody}
	case status < 200 || status >= 300:
		return "", &RequestError{Status: status, Body: respBody}
	}
	return respBody, nil
}

// do signs and sends a single request without any retry handling.
func (c *Client) do(ctx context.Context, method, path, body string, headers map[string]string) (int, string, error) {
	reqURL := c.baseURL + path

	bodyParams, err := parseFormBody(body)
	if err != nil {
		return 0, "", fmt.Errorf("parsing request body: %w", err)
	}

	authHeader, err := newAuthorizationHeader(c.cred, method, reqURL, bodyParams, time.Now().Unix())
	if err != nil {
		return 0, "", err
	}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return 0, "", fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", authHeader)
	req.Header.Set("featureset", "CONSUMER_PORTAL")
	req.Header.Set("Accept", "application/xml")
	if body != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("sending request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, string(respBody), nil
}

// parseFormBody decodes a form-encoded request body into the individual
// parameters the signature must cover. Values arrive pre-encoded and are
// decoded here; the signer re-encodes them canonically.
func parseFormBody(body string) (map[string]string, error) {
	if body == "" {
		return nil, nil
	}
	params := make(map[string]string)
	for _, pair := range strings.Split(body, "&") {
		k, v, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		decoded, err := url.QueryUnescape(v)
		if err != nil {
			return nil, fmt.Errorf("decoding parameter %s: %w", k, err)
		}
		params[k] = decoded
	}
	return params, nil
}

// Activate sends the keepalive signal that keeps the thermostat receptive
// to polling. It is issued before every document fetch.
func (c *Client) Activate(ctx context.Context) error {
	_, err := c.request(ctx, "POST", "/users/"+c.cred.Username+"/activateSystems", "",
		map[string]string{"Accept": "application/json"})
	if err != nil {
		return fmt.Errorf("activating systems: %w", err)
	}
	return nil
}

// Systems returns the serial numbers of the controllers on the account,
// discovered from the locations feed once per session and cached.
func (c *Client) Systems(ctx context.Context) ([]string, error) {
	if len(c.systems) > 0 {
		return c.systems, nil
	}

	body, err := c.request(ctx, "GET", "/users/"+c.cred.Username+"/locations", "", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching locations: %w", err)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromString(body); err != nil {
		return nil, fmt.Errorf("parsing locations: %w", err)
	}
	if doc.Root() == nil {
		return nil, &NotFoundError{What: "locations document root"}
	}

	var serials []string
	walkElements(doc.Root(), func(el *etree.Element) {
		if el.Tag != "link" {
			return
		}
		href := el.SelectAttrValue("href", "")
		i := strings.Index(href, "/systems/")
		if i < 0 {
			return
		}
		serial, _, _ := strings.Cut(href[i+len("/systems/"):], "/")
		if serial != "" {
			serials = append(serials, serial)
		}
	})

	if len(serials) > 0 {
		c.systems = serials
	}
	return serials, nil
}

// walkElements visits every element in the tree, namespaces included. The
// locations feed nests its system links under namespaced Atom elements.
func walkElements(el *etree.Element, visit func(*etree.Element)) {
	visit(el)
	for _, child := range el.ChildElements() {
		walkElements(child, visit)
	}
}

// Status fetches and parses the system status document.
func (c *Client) Status(ctx context.Context, serial string) (*StatusDoc, error) {
	c.activateQuietly(ctx)
	body, err := c.request(ctx, "GET", "/systems/"+serial+"/status", "", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching status: %w", err)
	}
	return ParseStatus(body)
}

// Config fetches and parses the system config document.
func (c *Client) Config(ctx context.Context, serial string) (*ConfigDoc, error) {
	c.activateQuietly(ctx)
	body, err := c.request(ctx, "GET", "/systems/"+serial+"/config", "", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching config: %w", err)
	}
	return ParseConfig(body)
}

// Profile fetches and parses the system profile document.
func (c *Client) Profile(ctx context.Context, serial string) (*ProfileDoc, error) {
	c.activateQuietly(ctx)
	body, err := c.request(ctx, "GET", "/systems/"+serial+"/profile", "", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching profile: %w", err)
	}
	return ParseProfile(body)
}

// activateQuietly sends the keepalive and logs rather than fails: a missed
// keepalive degrades freshness, it does not invalidate the read.
func (c *Client) activateQuietly(ctx context.Context) {
	if err := c.Activate(ctx); err != nil {
		c.logger.Warn("keepalive failed", "error", err)
	}
}
