package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/Nerzal/gocloak/v13"
	"github.com/abgdnv/storefront/pkg/config"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockGoCloakClient is a hand-written fake of the gocloak client.
type mockGoCloakClient struct {
	loginToken *gocloak.JWT
	loginErr   error

	clientToken    *gocloak.JWT
	clientLoginErr error

	createID   string
	createErr  error
	createUser gocloak.User

	setPwdErr    error
	deleteCalled bool
}

func (m *mockGoCloakClient) Login(context.Context, string, string, string, string, string) (*gocloak.JWT, error) {
	return m.loginToken, m.loginErr
}

func (m *mockGoCloakClient) LoginClient(context.Context, string, string, string, ...string) (*gocloak.JWT, error) {
	return m.clientToken, m.clientLoginErr
}

func (m *mockGoCloakClient) CreateUser(_ context.Context, _ string, _ string, user gocloak.User) (string, error) {
	m.createUser = user
	return m.createID, m.createErr
}

func (m *mockGoCloakClient) SetPassword(context.Context, string, string, string, string, bool) error {
	return m.setPwdErr
}

func (m *mockGoCloakClient) DeleteUser(context.Context, string, string, string) error {
	m.deleteCalled = true
	return nil
}

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, tokenString string) (jwt.Token, error) {
	args := m.Called(ctx, tokenString)
	var token jwt.Token
	if args.Get(0) != nil {
		token = args.Get(0).(jwt.Token)
	}
	return token, args.Error(1)
}

var keycloakCfg = config.KeycloakConfig{URL: "http://kc", Realm: "storefront", ClientID: "storefront", Secret: "s3cr3t"}

func newKeycloak(client GoCloak, v *MockVerifier) *KeycloakAuthenticator {
	return NewKeycloakAuthenticator(client, v, keycloakCfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestKeycloakAuthenticator_SignIn(t *testing.T) {
	token, err := jwt.NewBuilder().
		Subject("kc-user-1").
		Claim("email", "alice@example.com").
		Claim("preferred_username", "alice").
		Expiration(time.Now().Add(time.Hour)).
		Build()
	require.NoError(t, err)
	noSubject, err := jwt.NewBuilder().Claim("email", "alice@example.com").Build()
	require.NoError(t, err)

	testCases := []struct {
		name        string
		client      *mockGoCloakClient
		setupMock   func(m *MockVerifier)
		expected    User
		expectedErr error
	}{
		{
			name:   "success",
			client: &mockGoCloakClient{loginToken: &gocloak.JWT{AccessToken: "access"}},
			setupMock: func(m *MockVerifier) {
				m.On("Verify", mock.Anything, "access").Return(token, nil).Once()
			},
			expected: User{ID: "kc-user-1", Name: "alice", Email: "alice@example.com"},
		},
		{
			name:        "bad credentials",
			client:      &mockGoCloakClient{loginErr: &gocloak.APIError{Code: http.StatusUnauthorized}},
			setupMock:   func(m *MockVerifier) {},
			expectedErr: ErrInvalidCredentials,
		},
		{
			name:        "keycloak down",
			client:      &mockGoCloakClient{loginErr: errors.New("dial tcp: connection refused")},
			setupMock:   func(m *MockVerifier) {},
			expectedErr: ErrNetwork,
		},
		{
			name:   "token rejected",
			client: &mockGoCloakClient{loginToken: &gocloak.JWT{AccessToken: "access"}},
			setupMock: func(m *MockVerifier) {
				m.On("Verify", mock.Anything, "access").Return(nil, errors.New("bad signature")).Once()
			},
			expectedErr: ErrIdPInteractionFailed,
		},
		{
			name:   "token without subject",
			client: &mockGoCloakClient{loginToken: &gocloak.JWT{AccessToken: "access"}},
			setupMock: func(m *MockVerifier) {
				m.On("Verify", mock.Anything, "access").Return(noSubject, nil).Once()
			},
			expectedErr: ErrIdPInteractionFailed,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v := new(MockVerifier)
			tc.setupMock(v)

			user, err := newKeycloak(tc.client, v).SignIn(context.Background(), "alice@example.com", "secret1")

			if tc.expectedErr != nil {
				require.ErrorIs(t, err, tc.expectedErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.expected, user)
			}
			v.AssertExpectations(t)
		})
	}
}

func TestKeycloakAuthenticator_SignUp(t *testing.T) {
	req := SignUpRequest{UserName: "alice", Email: "alice@example.com", Password: "secret1"}
	clientToken := &gocloak.JWT{AccessToken: "svc"}

	tests := []struct {
		name         string
		mock         *mockGoCloakClient
		expectedErr  error
		expectDelete bool
	}{
		{
			name: "success",
			mock: &mockGoCloakClient{clientToken: clientToken, createID: "uid"},
		},
		{
			name:        "login error",
			mock:        &mockGoCloakClient{clientLoginErr: errors.New("login failed")},
			expectedErr: ErrIdPInteractionFailed,
		},
		{
			name:        "user exists",
			mock:        &mockGoCloakClient{clientToken: clientToken, createErr: &gocloak.APIError{Code: http.StatusConflict}},
			expectedErr: ErrUserAlreadyExists,
		},
		{
			name:        "invalid user data",
			mock:        &mockGoCloakClient{clientToken: clientToken, createErr: &gocloak.APIError{Code: http.StatusBadRequest}},
			expectedErr: ErrInvalidUserData,
		},
		{
			name:        "create error",
			mock:        &mockGoCloakClient{clientToken: clientToken, createErr: errors.New("boom")},
			expectedErr: ErrIdPInteractionFailed,
		},
		{
			name:         "set password error rolls back",
			mock:         &mockGoCloakClient{clientToken: clientToken, createID: "uid", setPwdErr: errors.New("weak")},
			expectedErr:  ErrIdPInteractionFailed,
			expectDelete: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := newKeycloak(tt.mock, new(MockVerifier)).SignUp(context.Background(), req)

			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, User{ID: "uid", Name: "alice", Email: "alice@example.com"}, user)
				assert.Equal(t, "alice", *tt.mock.createUser.Username)
				assert.True(t, *tt.mock.createUser.Enabled)
			}
			assert.Equal(t, tt.expectDelete, tt.mock.deleteCalled)
		})
	}
}
