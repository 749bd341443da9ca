package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) SignIn(ctx context.Context, email, password string) (User, error) {
	args := m.Called(ctx, email, password)
	return args.Get(0).(User), args.Error(1)
}

func (m *MockAuthenticator) SignUp(ctx context.Context, req SignUpRequest) (User, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(User), args.Error(1)
}

type memoryStore struct {
	user    *User
	loadErr error
	saves   int
	deletes int
}

func (s *memoryStore) Load(context.Context) (*User, error) { return s.user, s.loadErr }
func (s *memoryStore) Save(_ context.Context, u User) error {
	s.saves++
	s.user = &u
	return nil
}
func (s *memoryStore) Delete(context.Context) error {
	s.deletes++
	s.user = nil
	return nil
}

var alice = User{ID: "u-1", Name: "alice", Email: "alice@example.com"}

func newTestProvider(auth Authenticator, opts ...ProviderOption) *Provider {
	return NewProvider(auth, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
}

// recordChanges collects the identities passed to listeners.
func recordChanges(p *Provider) *[]string {
	var seen []string
	p.OnChange(func(_ context.Context, u *User) {
		seen = append(seen, EmailOf(u))
	})
	return &seen
}

func TestProvider_SignIn(t *testing.T) {
	testCases := []struct {
		name      string
		email     string
		password  string
		setupMock func(m *MockAuthenticator)
		expected  Result
		wantUser  *User
		wantSeen  []string
	}{
		{
			name:     "Success",
			email:    " alice@example.com ",
			password: "secret1",
			setupMock: func(m *MockAuthenticator) {
				m.On("SignIn", mock.Anything, "alice@example.com", "secret1").Return(alice, nil).Once()
			},
			expected: Result{Success: true},
			wantUser: &alice,
			wantSeen: []string{"alice@example.com"},
		},
		{
			name:     "Failure - backend message is shown",
			email:    "alice@example.com",
			password: "wrong",
			setupMock: func(m *MockAuthenticator) {
				m.On("SignIn", mock.Anything, "alice@example.com", "wrong").
					Return(User{}, &RejectedError{Err: ErrInvalidCredentials, Message: "Wrong password"}).Once()
			},
			expected: Result{Error: "Wrong password"},
		},
		{
			name:     "Failure - default message",
			email:    "alice@example.com",
			password: "wrong",
			setupMock: func(m *MockAuthenticator) {
				m.On("SignIn", mock.Anything, mock.Anything, mock.Anything).
					Return(User{}, &RejectedError{Err: ErrInvalidCredentials}).Once()
			},
			expected: Result{Error: "Invalid credentials"},
		},
		{
			name:     "Failure - network",
			email:    "alice@example.com",
			password: "secret1",
			setupMock: func(m *MockAuthenticator) {
				m.On("SignIn", mock.Anything, mock.Anything, mock.Anything).
					Return(User{}, errors.Join(ErrNetwork, errors.New("connection refused"))).Once()
			},
			expected: Result{Error: "Network error - check server"},
		},
		{
			name:      "Failure - empty credentials are not sent",
			email:     "",
			password:  "",
			setupMock: func(m *MockAuthenticator) {},
			expected:  Result{Error: "Invalid credentials"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			auth := new(MockAuthenticator)
			tc.setupMock(auth)
			store := &memoryStore{}
			p := newTestProvider(auth, WithStore(store))
			seen := recordChanges(p)

			res := p.SignIn(context.Background(), tc.email, tc.password)

			assert.Equal(t, tc.expected, res)
			assert.Equal(t, tc.wantUser, p.Current())
			assert.Equal(t, tc.wantSeen, *seen)
			assert.Equal(t, tc.wantUser, store.user)
			auth.AssertExpectations(t)
		})
	}
}

func TestProvider_SignUp(t *testing.T) {
	valid := SignUpRequest{UserName: "alice", Email: "alice@example.com", Password: "secret1", ConfirmPassword: "secret1"}
	testCases := []struct {
		name      string
		req       SignUpRequest
		setupMock func(m *MockAuthenticator)
		expected  Result
	}{
		{
			name: "Success",
			req:  valid,
			setupMock: func(m *MockAuthenticator) {
				m.On("SignUp", mock.Anything, valid).Return(alice, nil).Once()
			},
			expected: Result{Success: true},
		},
		{
			name:      "Failure - password mismatch",
			req:       SignUpRequest{UserName: "alice", Email: "alice@example.com", Password: "secret1", ConfirmPassword: "secret2"},
			setupMock: func(m *MockAuthenticator) {},
			expected:  Result{Error: "Passwords do not match"},
		},
		{
			name:      "Failure - short password",
			req:       SignUpRequest{UserName: "alice", Email: "alice@example.com", Password: "abc"},
			setupMock: func(m *MockAuthenticator) {},
			expected:  Result{Error: "Signup failed"},
		},
		{
			name:      "Failure - invalid email",
			req:       SignUpRequest{UserName: "alice", Email: "alice", Password: "secret1"},
			setupMock: func(m *MockAuthenticator) {},
			expected:  Result{Error: "Signup failed"},
		},
		{
			name: "Failure - user exists",
			req:  valid,
			setupMock: func(m *MockAuthenticator) {
				m.On("SignUp", mock.Anything, valid).Return(User{}, ErrUserAlreadyExists).Once()
			},
			expected: Result{Error: "User already exists"},
		},
		{
			name: "Failure - backend error",
			req:  valid,
			setupMock: func(m *MockAuthenticator) {
				m.On("SignUp", mock.Anything, valid).Return(User{}, ErrIdPInteractionFailed).Once()
			},
			expected: Result{Error: "Signup failed"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			auth := new(MockAuthenticator)
			tc.setupMock(auth)
			p := newTestProvider(auth)
			seen := recordChanges(p)

			res := p.SignUp(context.Background(), tc.req)

			assert.Equal(t, tc.expected, res)
			if tc.expected.Success {
				assert.Equal(t, &alice, p.Current())
				assert.Equal(t, []string{"alice@example.com"}, *seen)
			} else {
				assert.Nil(t, p.Current())
				assert.Empty(t, *seen)
			}
			auth.AssertExpectations(t)
		})
	}
}

func TestProvider_SignOut(t *testing.T) {
	auth := new(MockAuthenticator)
	auth.On("SignIn", mock.Anything, mock.Anything, mock.Anything).Return(alice, nil)
	store := &memoryStore{}
	p := newTestProvider(auth, WithStore(store))
	seen := recordChanges(p)
	require.True(t, p.SignIn(context.Background(), alice.Email, "secret1").Success)

	p.SignOut(context.Background())

	assert.Nil(t, p.Current())
	assert.Equal(t, []string{"alice@example.com", ""}, *seen)
	assert.Nil(t, store.user)
	assert.Equal(t, 1, store.deletes)
}

func TestProvider_Restore(t *testing.T) {
	t.Run("stored user", func(t *testing.T) {
		stored := alice
		p := newTestProvider(new(MockAuthenticator), WithStore(&memoryStore{user: &stored}))
		seen := recordChanges(p)

		require.NoError(t, p.Restore(context.Background()))

		assert.Equal(t, &alice, p.Current())
		assert.Equal(t, []string{"alice@example.com"}, *seen)
	})

	t.Run("nobody stored", func(t *testing.T) {
		p := newTestProvider(new(MockAuthenticator), WithStore(&memoryStore{}))
		seen := recordChanges(p)

		require.NoError(t, p.Restore(context.Background()))

		assert.Nil(t, p.Current())
		assert.Equal(t, []string{""}, *seen)
	})

	t.Run("without store", func(t *testing.T) {
		p := newTestProvider(new(MockAuthenticator))
		seen := recordChanges(p)

		require.NoError(t, p.Restore(context.Background()))

		assert.Equal(t, []string{""}, *seen)
	})

	t.Run("load error", func(t *testing.T) {
		store := &memoryStore{loadErr: errors.New("disk full")}
		p := newTestProvider(new(MockAuthenticator), WithStore(store))

		err := p.Restore(context.Background())

		assert.Error(t, err)
		assert.Nil(t, p.Current())
	})
}

func TestProvider_CurrentIsACopy(t *testing.T) {
	auth := new(MockAuthenticator)
	auth.On("SignIn", mock.Anything, mock.Anything, mock.Anything).Return(alice, nil)
	p := newTestProvider(auth)
	require.True(t, p.SignIn(context.Background(), alice.Email, "secret1").Success)

	p.Current().Email = "mallory@example.com"

	assert.Equal(t, alice.Email, p.Current().Email)
}
