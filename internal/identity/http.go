package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/abgdnv/storefront/pkg/web"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var _ Authenticator = (*HTTPAuthenticator)(nil)

// HTTPAuthenticator authenticates against the storefront API.
type HTTPAuthenticator struct {
	baseURL *url.URL
	http    *http.Client
}

func NewHTTPAuthenticator(baseURL string, timeout time.Duration) (*HTTPAuthenticator, error) {
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid auth base URL %q: %w", baseURL, err)
	}
	return &HTTPAuthenticator{
		baseURL: base,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

type checkPasswordResponse struct {
	Valid    bool   `json:"valid"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Email    string `json:"email"`
	Message  string `json:"message"`
}

// SignIn posts the credentials to /checkpassword.
func (a *HTTPAuthenticator) SignIn(ctx context.Context, email, password string) (User, error) {
	var resp checkPasswordResponse
	status, err := a.post(ctx, "/checkpassword", map[string]string{"email": email, "password": password}, &resp)
	if err != nil {
		return User{}, err
	}
	if status < 200 || status > 299 || !resp.Valid {
		return User{}, &RejectedError{Err: ErrInvalidCredentials, Message: resp.Message}
	}
	return User{ID: resp.UserID, Name: resp.UserName, Email: firstNonEmpty(resp.Email, email)}, nil
}

// SignUp posts the registration form to /signup.
func (a *HTTPAuthenticator) SignUp(ctx context.Context, req SignUpRequest) (User, error) {
	var resp checkPasswordResponse
	status, err := a.post(ctx, "/signup", req, &resp)
	if err != nil {
		return User{}, err
	}
	switch {
	case status == http.StatusConflict:
		return User{}, &RejectedError{Err: ErrUserAlreadyExists, Message: resp.Message}
	case status < 200 || status > 299:
		return User{}, &RejectedError{Err: ErrInvalidUserData, Message: resp.Message}
	}
	return User{ID: resp.UserID, Name: firstNonEmpty(resp.UserName, req.UserName), Email: firstNonEmpty(resp.Email, req.Email)}, nil
}

// post sends body and decodes the response into dst whatever the status.
// Transport failures and undecodable bodies are reported as ErrNetwork.
func (a *HTTPAuthenticator) post(ctx context.Context, path string, body, dst any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL.JoinPath(path).String(), bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	reqID, ok := web.GetRequestID(ctx)
	if !ok {
		reqID = uuid.NewString()
	}
	req.Header.Set(web.XRequestID, reqID)

	resp, err := a.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("%w: read body: %w", ErrNetwork, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return 0, fmt.Errorf("%w: decode %s response (status %d): %w", ErrNetwork, path, resp.StatusCode, err)
	}
	return resp.StatusCode, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
