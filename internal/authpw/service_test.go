package authpw

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"journal/api/internal/store"
)

type resetRecord struct {
	userID    string
	expiresAt time.Time
	used      bool
}

// mockUserStore is an in-memory UserStore.
type mockUserStore struct {
	users         map[string]store.User
	emailIndex    map[string]string // email -> userID
	verifications map[string]string // token -> userID
	resets        map[string]resetRecord
	seq           int
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:         make(map[string]store.User),
		emailIndex:    make(map[string]string),
		verifications: make(map[string]string),
		resets:        make(map[string]resetRecord),
	}
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if userID, ok := m.emailIndex[email]; ok {
		return m.users[userID], nil
	}
	return store.User{}, store.ErrNotFound
}

func (m *mockUserStore) CreateUser(ctx context.Context, user store.User) (store.User, error) {
	m.seq++
	user.ID = fmt.Sprintf("user-%d", m.seq)
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = user
	m.emailIndex[user.Email] = user.ID
	return user, nil
}

func (m *mockUserStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	user, ok := m.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	user.VerificationToken = token
	user.VerificationExpiresAt = &expiresAt
	m.users[userID] = user
	m.verifications[token] = userID
	return nil
}

func (m *mockUserStore) VerifyUserEmail(ctx context.Context, token string) error {
	userID, ok := m.verifications[token]
	if !ok {
		return store.ErrNotFound
	}
	user := m.users[userID]
	user.IsEmailVerified = true
	user.VerificationToken = ""
	m.users[userID] = user
	delete(m.verifications, token)
	return nil
}

func (m *mockUserStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	user, ok := m.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	user.PasswordHash = passwordHash
	m.users[userID] = user
	return nil
}

func (m *mockUserStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	m.resets[token] = resetRecord{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *mockUserStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	reset, ok := m.resets[token]
	if !ok || reset.used || time.Now().After(reset.expiresAt) {
		return "", store.ErrNotFound
	}
	return reset.userID, nil
}

func (m *mockUserStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	reset, ok := m.resets[token]
	if !ok {
		return store.ErrNotFound
	}
	reset.used = true
	m.resets[token] = reset
	return nil
}

func newTestService() (*Service, *mockUserStore) {
	users := newMockUserStore()
	return NewServiceWithCost(users, bcrypt.MinCost), users
}

func TestSignUp(t *testing.T) {
	svc, users := newTestService()
	ctx := context.Background()

	resp, err := svc.SignUp(ctx, SignUpRequest{
		Email:       "  Test@Example.com ",
		Password:    "password123",
		DisplayName: "Test User",
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if resp.Email != "test@example.com" {
		t.Errorf("email not normalized: %q", resp.Email)
	}
	if resp.VerificationToken == "" {
		t.Error("expected verification token")
	}

	user := users.users[resp.UserID]
	if user.IsEmailVerified {
		t.Error("new user should not be verified")
	}
	if user.PasswordHash == "password123" || user.PasswordHash == "" {
		t.Error("password should be stored hashed")
	}

	_, err = svc.SignUp(ctx, SignUpRequest{
		Email:       "test@example.com",
		Password:    "password456",
		DisplayName: "Another User",
	})
	if !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}
}

func TestSignUpValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cases := map[string]SignUpRequest{
		"missing email":     {Password: "password123", DisplayName: "A"},
		"missing name":      {Email: "a@example.com", Password: "password123"},
		"short password":    {Email: "a@example.com", Password: "short", DisplayName: "A"},
		"malformed address": {Email: "not-an-email", Password: "password123", DisplayName: "A"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.SignUp(ctx, req)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestSignIn(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	signUp, err := svc.SignUp(ctx, SignUpRequest{
		Email:       "test@example.com",
		Password:    "password123",
		DisplayName: "Test User",
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	resp, err := svc.SignIn(ctx, SignInRequest{Email: "test@example.com", Password: "password123"})
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if !resp.RequiresVerify {
		t.Error("unverified user should require verification")
	}

	if err := svc.VerifyEmail(ctx, signUp.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	resp, err = svc.SignIn(ctx, SignInRequest{Email: "TEST@example.com", Password: "password123"})
	if err != nil {
		t.Fatalf("SignIn after verify failed: %v", err)
	}
	if resp.RequiresVerify {
		t.Error("verified user should not require verification")
	}
	if resp.User.ID != signUp.UserID {
		t.Errorf("user id = %q, want %q", resp.User.ID, signUp.UserID)
	}

	if _, err := svc.SignIn(ctx, SignInRequest{Email: "test@example.com", Password: "wrong-password"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := svc.SignIn(ctx, SignInRequest{Email: "nobody@example.com", Password: "password123"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestVerifyEmailRejectsUnknownToken(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if err := svc.VerifyEmail(ctx, "nope"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
	if err := svc.VerifyEmail(ctx, " "); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPasswordReset(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.SignUp(ctx, SignUpRequest{
		Email:       "test@example.com",
		Password:    "oldpassword1",
		DisplayName: "Test User",
	}); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	token, err := svc.RequestPasswordReset(ctx, "test@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected reset token")
	}

	if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "newpassword1"}); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	if _, err := svc.SignIn(ctx, SignInRequest{Email: "test@example.com", Password: "newpassword1"}); err != nil {
		t.Errorf("sign in with new password failed: %v", err)
	}
	if _, err := svc.SignIn(ctx, SignInRequest{Email: "test@example.com", Password: "oldpassword1"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old password should be rejected, got %v", err)
	}

	if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "another123"}); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("reused token should be rejected, got %v", err)
	}
}

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	svc, users := newTestService()

	token, err := svc.RequestPasswordReset(context.Background(), "ghost@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "" {
		t.Error("no token should be issued for an unknown address")
	}
	if len(users.resets) != 0 {
		t.Error("no reset should be recorded")
	}
}
