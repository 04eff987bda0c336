package tests

import (
	"bytes"
	"errors"
	"revx_backend/backend/auth"
	"revx_backend/backend/schema"
	"testing"

	"github.com/google/uuid"
)

func TestUpdateProfile(t *testing.T) {
	env := setupTestEnv(t)

	client := env.newUser(t, "abc")
	env.newUser(t, "taken")

	updated, err := client.updateProfile(map[string]interface{}{
		"full_name": "New Name",
		"bio":       "a short bio",
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.FullName != "New Name" || updated.Bio == nil || *updated.Bio != "a short bio" {
		t.Fatalf("invalid profile %+v", updated)
	}
	if updated.Username != "abc" {
		t.Fatalf("username should be untouched %+v", updated)
	}

	_, err = client.updateProfile(map[string]interface{}{"username": "taken"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("taken username should conflict: %v", err)
	}

	_, err = client.updateProfile(map[string]interface{}{"username": "ab"})
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("short username should be rejected: %v", err)
	}

	updated, err = client.updateProfile(map[string]interface{}{"username": "renamed"})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Username != "renamed" {
		t.Fatalf("invalid profile %+v", updated)
	}
}

func TestUpdateProfileCredentials(t *testing.T) {
	env := setupTestEnv(t)

	client := env.newUser(t, "abc")

	_, err := client.updateProfile(map[string]interface{}{"password": "short"})
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("short password should be rejected: %v", err)
	}

	_, err = client.updateProfile(map[string]interface{}{
		"email":    "fresh@mail.com",
		"password": "fresh_password123",
	})
	if err != nil {
		t.Fatal(err)
	}

	fresh := env.newClient()
	if err := fresh.login("abc@mail.com", "abc_password"); err == nil {
		t.Fatal("old credentials should be rejected")
	}
	if err := fresh.login("fresh@mail.com", "fresh_password123"); err != nil {
		t.Fatal(err)
	}

	other := env.newUser(t, "other")
	_, err = other.updateProfile(map[string]interface{}{"email": "fresh@mail.com"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("taken email should conflict: %v", err)
	}
}

func TestMyReviews(t *testing.T) {
	env := setupTestEnv(t)

	owner := env.newUser(t, "owner")
	reviewer := env.newUser(t, "reviewer")

	first, err := owner.createProject("First Project", "", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := owner.createProject("Second Project", "", nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := reviewer.addReview(first.Id, "good", 4); err != nil {
		t.Fatal(err)
	}
	if err := reviewer.addReview(second.Id, "bad", 1); err != nil {
		t.Fatal(err)
	}

	reviews, err := reviewer.myReviews()
	if err != nil {
		t.Fatal(err)
	}
	if len(reviews) != 2 {
		t.Fatalf("expected 2 reviews, got %d", len(reviews))
	}

	titles := map[string]int{}
	for _, review := range reviews {
		titles[review.ProjectTitle] = review.Rating
	}
	if titles["First Project"] != 4 || titles["Second Project"] != 1 {
		t.Fatalf("invalid reviews %+v", reviews)
	}

	empty, err := owner.myReviews()
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no reviews, got %d", len(empty))
	}
}

// externalAccountProvider models an identity provider that stores credentials
// outside the database, so profile rows only change when the service writes
// them itself.
type externalAccountProvider struct {
	auth.IdentityProvider
	updatedEmail *string
}

func (p *externalAccountProvider) UpdateAccount(userId uuid.UUID, email, password *string) error {
	p.updatedEmail = email
	return nil
}

func TestUpdateEmailKeepsProfileInSync(t *testing.T) {
	db := setupTestDb(t)

	basic, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(new(bytes.Buffer)),
		auth.BasicProviderArgs{
			Secret:        []byte("290zcv02ai249"),
			AdminUsername: adminUsername,
			AdminEmail:    adminEmail,
			AdminPassword: adminPassword,
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	provider := &externalAccountProvider{IdentityProvider: basic}
	env := setupTestEnvWithProvider(t, db, provider)

	client := env.newUser(t, "mover")

	newEmail := "mover_new@mail.com"
	if _, err := client.updateProfile(map[string]interface{}{"email": newEmail}); err != nil {
		t.Fatal(err)
	}

	if provider.updatedEmail == nil || *provider.updatedEmail != newEmail {
		t.Fatal("expected email change to be forwarded to the identity provider")
	}

	var profile schema.Profile
	if err := db.First(&profile, "username = ?", "mover").Error; err != nil {
		t.Fatal(err)
	}
	if profile.Email != newEmail {
		t.Fatalf("expected profile email %v, got %v", newEmail, profile.Email)
	}

	// The old address must be free for a new registration.
	fresh := env.newClient()
	if err := fresh.register("newcomer", "mover@mail.com", "newcomer_password"); err != nil {
		t.Fatal(err)
	}
}
