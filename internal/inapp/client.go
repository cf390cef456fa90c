package inapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Mohsinsiddi/w3link/internal/config"
	"github.com/Mohsinsiddi/w3link/internal/wallet"
)

// APIError is a non-2xx answer from the wallet backend.
type APIError struct {
	Status   int
	Message  string
	CanRetry bool
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("wallet backend: status %d", e.Status)
	}
	return fmt.Sprintf("wallet backend: status %d: %s", e.Status, e.Message)
}

// AuthResult is what every login endpoint returns.
type AuthResult struct {
	AuthToken     string `json:"authToken"`
	WalletAddress string `json:"walletAddress"`
	AuthProvider  string `json:"authProvider"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	IsNewUser     bool   `json:"isNewUser,omitempty"`
}

// SiwePayload is the sign-in-with-Ethereum challenge.
type SiwePayload struct {
	Domain         string `json:"domain"`
	Address        string `json:"address"`
	Statement      string `json:"statement,omitempty"`
	URI            string `json:"uri,omitempty"`
	Version        string `json:"version"`
	ChainID        string `json:"chain_id"`
	Nonce          string `json:"nonce"`
	IssuedAt       string `json:"issued_at"`
	ExpirationTime string `json:"expiration_time,omitempty"`
}

// Message renders the payload in EIP-4361 text form.
func (p SiwePayload) Message() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s wants you to sign in with your Ethereum account:\n%s\n\n", p.Domain, p.Address)
	if p.Statement != "" {
		fmt.Fprintf(&b, "%s\n\n", p.Statement)
	}
	if p.URI != "" {
		fmt.Fprintf(&b, "URI: %s\n", p.URI)
	}
	fmt.Fprintf(&b, "Version: %s\nChain ID: %s\nNonce: %s\nIssued At: %s", p.Version, p.ChainID, p.Nonce, p.IssuedAt)
	if p.ExpirationTime != "" {
		fmt.Fprintf(&b, "\nExpiration Time: %s", p.ExpirationTime)
	}
	return b.String()
}

// Client talks to the hosted wallet backend.
type Client struct {
	baseURL     string
	clientID    string
	bundleID    string
	ecosystemID string
	partnerID   string
	http        *http.Client
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at another backend (tests).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithBundleID sets the x-bundle-id header.
func WithBundleID(id string) ClientOption {
	return func(c *Client) { c.bundleID = id }
}

// WithEcosystem scopes every request to an ecosystem and partner.
func WithEcosystem(ecosystemID, partnerID string) ClientOption {
	return func(c *Client) {
		c.ecosystemID = ecosystemID
		c.partnerID = partnerID
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient returns a backend client for clientID.
func NewClient(clientID string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  config.EmbeddedWalletBaseURL,
		clientID: clientID,
		http:     &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(10, 5),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendEmailOTP asks the backend to email a one-time password.
func (c *Client) SendEmailOTP(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/login/email", "", map[string]string{"email": email}, nil)
}

// SendPhoneOTP asks the backend to text a one-time password.
func (c *Client) SendPhoneOTP(ctx context.Context, phone string) error {
	return c.do(ctx, http.MethodPost, "/login/phone", "", map[string]string{"phone": phone}, nil)
}

// VerifyOTP exchanges a one-time password for a session. A rejected code
// comes back as an *APIError whose CanRetry says whether another attempt
// is allowed.
func (c *Client) VerifyOTP(ctx context.Context, email, phone, code string) (*AuthResult, error) {
	body := map[string]string{"code": code}
	if email != "" {
		body["email"] = email
	} else {
		body["phone"] = phone
	}
	var out AuthResult
	if err := c.do(ctx, http.MethodPost, "/login/verify", "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SiwePayload fetches a sign-in challenge for address.
func (c *Client) SiwePayload(ctx context.Context, address string, chainID int64) (*SiwePayload, error) {
	q := url.Values{"address": {address}, "chainId": {fmt.Sprint(chainID)}}
	var out struct {
		Payload SiwePayload `json:"payload"`
	}
	if err := c.do(ctx, http.MethodGet, "/login/siwe?"+q.Encode(), "", nil, &out); err != nil {
		return nil, err
	}
	return &out.Payload, nil
}

// LoginSiwe submits a signed challenge.
func (c *Client) LoginSiwe(ctx context.Context, payload *SiwePayload, signature string) (*AuthResult, error) {
	body := map[string]any{"payload": payload, "signature": signature}
	var out AuthResult
	if err := c.do(ctx, http.MethodPost, "/login/siwe", "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoginJWT exchanges a developer-issued JWT.
func (c *Client) LoginJWT(ctx context.Context, jwt string) (*AuthResult, error) {
	var out AuthResult
	if err := c.do(ctx, http.MethodPost, "/login/jwt", "", map[string]string{"jwt": jwt}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoginAuthEndpoint forwards payload to the developer's auth endpoint.
func (c *Client) LoginAuthEndpoint(ctx context.Context, payload string) (*AuthResult, error) {
	var out AuthResult
	if err := c.do(ctx, http.MethodPost, "/login/auth-endpoint", "", map[string]string{"payload": payload}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoginGuest creates or resumes an anonymous session.
func (c *Client) LoginGuest(ctx context.Context, sessionID string) (*AuthResult, error) {
	var out AuthResult
	if err := c.do(ctx, http.MethodPost, "/login/guest", "", map[string]string{"sessionId": sessionID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OAuthURL is the page that starts a browser login with provider and
// redirects back to redirectURL.
func (c *Client) OAuthURL(provider wallet.AuthProvider, redirectURL string) string {
	q := url.Values{"clientId": {c.clientID}, "redirectUrl": {redirectURL}}
	if c.ecosystemID != "" {
		q.Set("ecosystemId", c.ecosystemID)
	}
	if c.partnerID != "" {
		q.Set("ecosystemPartnerId", c.partnerID)
	}
	return fmt.Sprintf("%s/login/%s?%s", c.baseURL, url.PathEscape(string(provider)), q.Encode())
}

// SignMessage signs message server-side with the session's key.
func (c *Client) SignMessage(ctx context.Context, token string, message []byte) (string, error) {
	body := map[string]any{"message": fmt.Sprintf("0x%x", message), "isRaw": true}
	return c.sign(ctx, "/sign/message", token, body)
}

// SignTypedData signs EIP-712 data server-side.
func (c *Client) SignTypedData(ctx context.Context, token string, typedData any) (string, error) {
	return c.sign(ctx, "/sign/typed-data", token, typedData)
}

// SignTransaction returns the raw signed transaction as hex.
func (c *Client) SignTransaction(ctx context.Context, token string, tx any) (string, error) {
	return c.sign(ctx, "/sign/transaction", token, map[string]any{"transaction": tx})
}

// LinkedAccounts lists the auth methods attached to the session's user.
func (c *Client) LinkedAccounts(ctx context.Context, token string) ([]wallet.LinkedAccount, error) {
	var out struct {
		LinkedAccounts []wallet.LinkedAccount `json:"linkedAccounts"`
	}
	if err := c.do(ctx, http.MethodGet, "/accounts", token, nil, &out); err != nil {
		return nil, err
	}
	return out.LinkedAccounts, nil
}

// LinkAccount attaches the user behind otherToken to the session's user.
func (c *Client) LinkAccount(ctx context.Context, token, otherToken string) ([]wallet.LinkedAccount, error) {
	var out struct {
		LinkedAccounts []wallet.LinkedAccount `json:"linkedAccounts"`
	}
	body := map[string]string{"accountAuthTokenToConnect": otherToken}
	if err := c.do(ctx, http.MethodPost, "/accounts/link", token, body, &out); err != nil {
		return nil, err
	}
	return out.LinkedAccounts, nil
}

func (c *Client) sign(ctx context.Context, path, token string, body any) (string, error) {
	var out struct {
		Signature string `json:"signature"`
	}
	if err := c.do(ctx, http.MethodPost, path, token, body, &out); err != nil {
		return "", err
	}
	if out.Signature == "" {
		return "", fmt.Errorf("%s: empty signature", path)
	}
	return out.Signature, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-client-id", c.clientID)
	req.Header.Set("x-sdk-name", "w3link")
	req.Header.Set("x-sdk-version", config.SDKVersion)
	if c.bundleID != "" {
		req.Header.Set("x-bundle-id", c.bundleID)
	}
	if c.ecosystemID != "" {
		req.Header.Set("x-ecosystem-id", c.ecosystemID)
	}
	if c.partnerID != "" {
		req.Header.Set("x-ecosystem-partner-id", c.partnerID)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("wallet backend", "method", method, "path", path, "status", resp.StatusCode, "took", time.Since(start))

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Message  string `json:"message"`
			Error    string `json:"error"`
			CanRetry bool   `json:"canRetry"`
		}
		if json.Unmarshal(data, &payload) == nil {
			apiErr.Message = payload.Message
			if apiErr.Message == "" {
				apiErr.Message = payload.Error
			}
			apiErr.CanRetry = payload.CanRetry
		}
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// canRetry reports whether err is a backend rejection that allows another
// attempt.
func canRetry(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.CanRetry
}
