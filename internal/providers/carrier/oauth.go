package carrier

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Credential carries the OAuth 1.0a signing state for one session. The
// access token is empty until login succeeds; it is part of the signing key
// for every request issued afterwards, so a refresh must fully replace it
// before the next request is signed.
type Credential struct {
	ConsumerKey    string
	ConsumerSecret string
	// Username is sent as oauth_token and identifies the account
	Username string
	// AccessToken is issued at login and appended to the signing key
	AccessToken string
}

func (c *Credential) signingKey() string {
	return c.ConsumerSecret + "&" + c.AccessToken
}

// sign computes the HMAC-SHA1 request signature over the canonical
// parameter string. The API verifies signatures against the http:// form of
// the URL even though transport is https.
func sign(cred *Credential, method, rawURL string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, percentEncode(k)+"="+percentEncode(params[k]))
	}
	paramString := strings.Join(pairs, "&")

	baseString := strings.ToUpper(method) + "&" +
		percentEncode(insecureURL(rawURL)) + "&" +
		percentEncode(paramString)

	mac := hmac.New(sha1.New, []byte(cred.signingKey()))
	mac.Write([]byte(baseString))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// authorizationHeader assembles the OAuth Authorization header value. The
// nonce and timestamp are supplied by the caller so the output is
// deterministic under test; production callers use newAuthorizationHeader.
func authorizationHeader(cred *Credential, method, rawURL string, bodyParams map[string]string, nonce string, timestamp int64) string {
	oauthParams := [][2]string{
		{"oauth_consumer_key", cred.ConsumerKey},
		{"oauth_token", cred.Username},
		{"oauth_signature_method", "HMAC-SHA1"},
		{"oauth_timestamp", strconv.FormatInt(timestamp, 10)},
		{"oauth_nonce", nonce},
		{"oauth_version", "1.0"},
	}

	sigParams := make(map[string]string, len(oauthParams)+len(bodyParams))
	for _, p := range oauthParams {
		sigParams[p[0]] = p[1]
	}
	for k, v := range bodyParams {
		sigParams[k] = v
	}
	signature := sign(cred, method, rawURL, sigParams)

	parts := make([]string, 0, len(oauthParams)+2)
	parts = append(parts, "realm="+percentEncode(stripScheme(rawURL)))
	for _, p := range oauthParams {
		parts = append(parts, p[0]+"="+p[1])
	}
	parts = append(parts, "oauth_signature="+percentEncode(signature))

	return "OAuth " + strings.Join(parts, ",")
}

// newAuthorizationHeader generates a fresh nonce/timestamp pair and builds
// the header for one request. Nonces are never reused.
func newAuthorizationHeader(cred *Credential, method, rawURL string, bodyParams map[string]string, timestamp int64) (string, error) {
	nonce, err := newNonce()
	if err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	return authorizationHeader(cred, method, rawURL, bodyParams, nonce, timestamp), nil
}

// newNonce returns 12 random bytes, base64-encoded.
func newNonce() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// insecureURL rewrites the URL to its http:// form for signing.
func insecureURL(rawURL string) string {
	return "http://" + stripScheme(rawURL)
}

func stripScheme(rawURL string) string {
	rawURL = strings.TrimPrefix(rawURL, "https://")
	return strings.TrimPrefix(rawURL, "http://")
}

// percentEncode applies RFC 3986 encoding, preserving only the unreserved
// characters. url.QueryEscape is not suitable: it encodes spaces as '+'.
func percentEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return c >= 'A' && c <= 'Z' ||
		c >= 'a' && c <= 'z' ||
		c >= '0' && c <= '9' ||
		c == '-' || c == '.' || c == '_' || c == '~'
}
