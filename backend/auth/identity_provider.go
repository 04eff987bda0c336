package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"revx_backend/backend/schema"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFoundWithEmail = errors.New("no user found for given email")
	ErrInvalidCredentials    = errors.New("invalid login credentials")
	ErrGeneratingJwt         = errors.New("error generating jwt")
	ErrEmailAlreadyInUse     = errors.New("email is already in use")
	ErrUsernameAlreadyInUse  = errors.New("username is already in use")
	ErrNotSupported          = errors.New("operation is not supported by this identity provider")
)

type LoginResult struct {
	UserId      uuid.UUID
	AccessToken string
}

// AccountInfo describes a newly created identity-provider account. PasswordHash
// is only populated by providers that rely on this application for credential
// storage, it is nil when the provider manages credentials itself.
type AccountInfo struct {
	Id           uuid.UUID
	PasswordHash []byte
}

// IdentityProvider is the boundary to the external authentication service. The
// application never verifies credentials itself, every operation here is a thin
// wrapper over remote calls (or local jwt/bcrypt checks for the basic provider).
type IdentityProvider interface {
	AuthMiddleware() chi.Middlewares

	CreateAccount(username, email, password string) (AccountInfo, error)

	DeleteAccount(userId uuid.UUID) error

	LoginWithEmail(email, password string) (LoginResult, error)

	Logout(accessToken string) error

	ChangePassword(userId uuid.UUID, currentPassword, newPassword string) error

	SendPasswordReset(email, redirectUrl string) error

	UpdateAccount(userId uuid.UUID, email, password *string) error

	AccountEmail(userId uuid.UUID) (string, error)
}

func addInitialAdminToDb(db *gorm.DB, userId uuid.UUID, username, email string, password []byte) error {
	admin := schema.Profile{
		Id:       userId,
		Username: username,
		Email:    email,
		FullName: "Administrator",
		IsAdmin:  true,
	}
	if password != nil {
		admin.Password = password
	}

	err := db.Transaction(func(txn *gorm.DB) error {
		var existing schema.Profile
		result := txn.Limit(1).Find(&existing, "id = ? or username = ? or email = ?", userId, username, email)
		if result.Error != nil {
			slog.Error("sql error checking if admin has already been added", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected == 0 {
			result := txn.Create(&admin)
			if result.Error != nil {
				slog.Error("sql error creating initial admin profile", "error", result.Error)
				return schema.ErrDbAccessFailed
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error adding initial admin to db: %w", err)
	}

	return nil
}

type requestContextKey string

const userRequestContextKey requestContextKey = "user"
