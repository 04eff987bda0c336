package tests

import (
	"errors"
	"fmt"
	"revx_backend/backend/auth"
	"revx_backend/backend/schema"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func TestRegisterAndLogin(t *testing.T) {
	env := setupTestEnv(t)

	for i := 0; i < 5; i++ {
		username := fmt.Sprintf("user%d", i)
		email := fmt.Sprintf("user%d@mail.com", i)
		password := fmt.Sprintf("user%d_password", i)

		client := env.newClient()
		if err := client.register(username, email, password); err != nil {
			t.Fatal(err)
		}
		if client.authToken == "" {
			t.Fatal("registration should return an auth token")
		}

		dup := env.newClient()
		err := dup.register(username, "other"+email, password)
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("duplicate username should conflict: %v", err)
		}

		err = dup.register("other"+username, email, password)
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("duplicate email should conflict: %v", err)
		}

		err = dup.login(email, "wrong_password")
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("login should fail with wrong password: %v", err)
		}

		err = dup.login("unknown@mail.com", password)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("login should fail with unknown email: %v", err)
		}

		if err := dup.login(email, password); err != nil {
			t.Fatal(err)
		}
		if dup.username != username || dup.userId != client.userId {
			t.Fatalf("invalid login info %v %v", dup.username, dup.userId)
		}
	}
}

func TestRegistrationValidation(t *testing.T) {
	env := setupTestEnv(t)

	client := env.newClient()

	err := client.register("ab", "ab@mail.com", "long_enough_password")
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("short username should be rejected: %v", err)
	}

	err = client.register("valid_user", "valid@mail.com", "short")
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("short password should be rejected: %v", err)
	}

	err = client.Post("/auth/register").Json(map[string]string{"username": "valid_user"}).Do(nil)
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("missing fields should be rejected: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	env := setupTestEnv(t)

	client := env.newUser(t, "abc")

	err := client.changePassword("wrong_password", "new_password123")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("change password should verify current password: %v", err)
	}

	if err := client.changePassword("abc_password", "new_password123"); err != nil {
		t.Fatal(err)
	}

	fresh := env.newClient()
	if err := fresh.login("abc@mail.com", "abc_password"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("old password should be rejected: %v", err)
	}
	if err := fresh.login("abc@mail.com", "new_password123"); err != nil {
		t.Fatal(err)
	}
}

func TestLogout(t *testing.T) {
	env := setupTestEnv(t)

	client := env.newUser(t, "abc")

	if err := client.logout(); err != nil {
		t.Fatal(err)
	}

	unauthed := env.newClient()
	if err := unauthed.logout(); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("logout requires authentication: %v", err)
	}
}

func TestAdminUserCreatedOnStartup(t *testing.T) {
	env := setupTestEnv(t)

	admin := env.adminClient(t)
	if admin.username != adminUsername {
		t.Fatalf("unexpected admin username %v", admin.username)
	}

	metrics, err := admin.adminMetrics()
	if err != nil {
		t.Fatal(err)
	}
	if metrics.TotalUsers != 1 {
		t.Fatalf("expected only the admin user, got %d", metrics.TotalUsers)
	}
}

// stubProvider fails nothing on account creation but always hands back the
// same user id, which lets tests force a profile insert failure.
type stubProvider struct {
	accountId      uuid.UUID
	deletedAccount *uuid.UUID
}

func (s *stubProvider) AuthMiddleware() chi.Middlewares {
	return chi.Middlewares{}
}

func (s *stubProvider) CreateAccount(username, email, password string) (auth.AccountInfo, error) {
	return auth.AccountInfo{Id: s.accountId}, nil
}

func (s *stubProvider) DeleteAccount(userId uuid.UUID) error {
	s.deletedAccount = &userId
	return nil
}

func (s *stubProvider) LoginWithEmail(email, password string) (auth.LoginResult, error) {
	return auth.LoginResult{}, auth.ErrInvalidCredentials
}

func (s *stubProvider) Logout(accessToken string) error {
	return nil
}

func (s *stubProvider) ChangePassword(userId uuid.UUID, currentPassword, newPassword string) error {
	return nil
}

func (s *stubProvider) SendPasswordReset(email, redirectUrl string) error {
	return auth.ErrNotSupported
}

func (s *stubProvider) UpdateAccount(userId uuid.UUID, email, password *string) error {
	return nil
}

func (s *stubProvider) AccountEmail(userId uuid.UUID) (string, error) {
	return "", nil
}

func TestRegisterCompensatesFailedProfileInsert(t *testing.T) {
	db := setupTestDb(t)

	accountId := uuid.New()
	provider := &stubProvider{accountId: accountId}
	env := setupTestEnvWithProvider(t, db, provider)

	// Occupying the id the provider will return makes the profile insert fail.
	err := db.Create(&schema.Profile{
		Id: accountId, Username: "existing", Email: "existing@mail.com", FullName: "existing",
	}).Error
	if err != nil {
		t.Fatal(err)
	}

	client := env.newClient()
	err = client.register("newuser", "newuser@mail.com", "newuser_password")
	if err == nil {
		t.Fatal("registration should fail when the profile cannot be created")
	}

	if provider.deletedAccount == nil || *provider.deletedAccount != accountId {
		t.Fatal("provider account should be deleted when the profile insert fails")
	}
}
