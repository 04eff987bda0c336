package tests

import (
	"bytes"
	"revx_backend/backend/auth"
	"revx_backend/backend/schema"
	"revx_backend/backend/services"
	"testing"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	backend services.Backend
	api     chi.Router
	db      *gorm.DB
}

const (
	adminUsername = "admin123"
	adminEmail    = "admin123@mail.com"
	adminPassword = "admin_password123"

	testImagekitKey = "private_test_key_123"
)

func setupTestDb(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	err = db.AutoMigrate(
		&schema.Profile{}, &schema.Project{}, &schema.ProjectImage{},
		&schema.Tag{}, &schema.Contributor{}, &schema.Review{},
	)
	if err != nil {
		t.Fatal(err)
	}

	return db
}

func setupTestEnvWithProvider(t *testing.T, db *gorm.DB, userAuth auth.IdentityProvider) *testEnv {
	backend := services.NewBackend(db, userAuth, services.Variables{
		ResetPasswordUrl:   "http://localhost:3000/reset-password",
		ImagekitPrivateKey: testImagekitKey,
	})

	return &testEnv{backend: backend, api: backend.Routes(), db: db}
}

func setupTestEnv(t *testing.T) *testEnv {
	db := setupTestDb(t)

	userAuth, err := auth.NewBasicIdentityProvider(
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

	return setupTestEnvWithProvider(t, db, userAuth)
}

func (t *testEnv) newClient() client {
	return client{api: t.api}
}

func (t *testEnv) newUser(tt *testing.T, username string) client {
	c := t.newClient()
	err := c.register(username, username+"@mail.com", username+"_password")
	if err != nil {
		tt.Fatal(err)
	}
	return c
}

func (t *testEnv) adminClient(tt *testing.T) client {
	c := t.newClient()
	err := c.login(adminEmail, adminPassword)
	if err != nil {
		tt.Fatal(err)
	}
	return c
}
