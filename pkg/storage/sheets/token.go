package sheets

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
)

const (
	jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	assertionLifetime = time.Hour
	// expiryDelta renews a token this long before it actually expires.
	expiryDelta = time.Minute
)

var (
	ErrInvalidCredentials = errors.New("invalid service account credentials")
	ErrTokenRequest       = errors.New("access token request failed")
)

// TokenSource supplies the bearer token sent with every request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// Credentials is the subset of a service account key file needed to obtain tokens.
type Credentials struct {
	ClientEmail  string
	PrivateKey   string
	PrivateKeyID string
	TokenURI     string
}

// ParseCredentials reads a service account key file in its JSON form.
func ParseCredentials(data []byte) (*Credentials, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidCredentials)
	}

	res := gjson.ParseBytes(data)
	creds := &Credentials{
		ClientEmail:  res.Get("client_email").String(),
		PrivateKey:   res.Get("private_key").String(),
		PrivateKeyID: res.Get("private_key_id").String(),
		TokenURI:     res.Get("token_uri").String(),
	}
	if creds.ClientEmail == "" || creds.PrivateKey == "" {
		return nil, fmt.Errorf("%w: client_email and private_key are required", ErrInvalidCredentials)
	}
	return creds, nil
}

// LoadCredentials reads and parses the key file at path.
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}
	return ParseCredentials(data)
}

// ServiceAccountTokenSource exchanges a signed RS256 assertion for an access
// token and caches it until shortly before it expires.
type ServiceAccountTokenSource struct {
	creds    *Credentials
	key      *rsa.PrivateKey
	tokenURL string
	client   *retryablehttp.Client
	now      func() time.Time

	mu     sync.Mutex
	token  string    // GUARDED_BY(mu)
	expiry time.Time // GUARDED_BY(mu)
}

var _ TokenSource = (*ServiceAccountTokenSource)(nil)

// TokenSourceOption configures a ServiceAccountTokenSource.
type TokenSourceOption func(*ServiceAccountTokenSource)

// WithTokenURL overrides the token endpoint of the credentials.
func WithTokenURL(u string) TokenSourceOption {
	return func(ts *ServiceAccountTokenSource) {
		if u != "" {
			ts.tokenURL = u
		}
	}
}

// WithTokenHTTPClient sets the client used against the token endpoint.
func WithTokenHTTPClient(c *retryablehttp.Client) TokenSourceOption {
	return func(ts *ServiceAccountTokenSource) {
		ts.client = c
	}
}

func withClock(now func() time.Time) TokenSourceOption {
	return func(ts *ServiceAccountTokenSource) {
		ts.now = now
	}
}

func NewServiceAccountTokenSource(creds *Credentials, opts ...TokenSourceOption) (*ServiceAccountTokenSource, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(creds.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}

	ts := &ServiceAccountTokenSource{
		creds:    creds,
		key:      key,
		tokenURL: creds.TokenURI,
		now:      time.Now,
	}
	if ts.tokenURL == "" {
		ts.tokenURL = DefaultTokenURL
	}

	for _, opt := range opts {
		opt(ts)
	}

	if ts.client == nil {
		ts.client = newHTTPClient(NewConfig(""))
	}
	return ts, nil
}

// Token returns the cached token, fetching a new one when it is about to expire.
func (ts *ServiceAccountTokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && ts.now().Add(expiryDelta).Before(ts.expiry) {
		return ts.token, nil
	}

	token, expiry, err := ts.fetch(ctx)
	if err != nil {
		return "", err
	}
	ts.token, ts.expiry = token, expiry
	return token, nil
}

func (ts *ServiceAccountTokenSource) assertion(now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iss":   ts.creds.ClientEmail,
		"scope": Scope,
		"aud":   ts.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionLifetime).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if ts.creds.PrivateKeyID != "" {
		token.Header["kid"] = ts.creds.PrivateKeyID
	}
	return token.SignedString(ts.key)
}

func (ts *ServiceAccountTokenSource) fetch(ctx context.Context) (string, time.Time, error) {
	now := ts.now()
	assertion, err := ts.assertion(now)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing assertion: %w", err)
	}

	form := url.Values{
		"grant_type": {jwtBearerGrant},
		"assertion":  {assertion},
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURL, []byte(form.Encode()))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("error forming token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := ts.client.Do(req)
	if err != nil {
		return "", time.Time{}, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("error reading token response: %w", err)
	}

	parsed := gjson.ParseBytes(body)
	if res.StatusCode != http.StatusOK {
		return "", time.Time{}, fmt.Errorf("%w: status %d: %s", ErrTokenRequest, res.StatusCode, parsed.Get("error_description").String())
	}

	accessToken := parsed.Get("access_token").String()
	if accessToken == "" {
		return "", time.Time{}, fmt.Errorf("%w: response carries no access_token", ErrTokenRequest)
	}
	expiresIn := time.Duration(parsed.Get("expires_in").Int()) * time.Second
	return accessToken, now.Add(expiresIn), nil
}
