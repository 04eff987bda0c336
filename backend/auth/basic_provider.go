package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"revx_backend/backend/schema"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// BasicIdentityProvider implements authentication locally with jwts and bcrypt
// hashes stored on the profile row. It exists so that the backend can run (and
// be tested) without a keycloak deployment.
type BasicIdentityProvider struct {
	jwtManager *JwtManager
	db         *gorm.DB
	auditLog   AuditLogger
}

type BasicProviderArgs struct {
	Secret        []byte
	AdminUsername string
	AdminEmail    string
	AdminPassword string
}

func NewBasicIdentityProvider(db *gorm.DB, auditLog AuditLogger, args BasicProviderArgs) (IdentityProvider, error) {
	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(args.AdminPassword), 10)
	if err != nil {
		return nil, fmt.Errorf("error encrypting admin password: %w", err)
	}

	err = addInitialAdminToDb(db, uuid.New(), args.AdminUsername, args.AdminEmail, hashedPwd)
	if err != nil {
		return nil, fmt.Errorf("error adding initial admin to db: %w", err)
	}

	return &BasicIdentityProvider{
		jwtManager: NewJwtManager(args.Secret),
		db:         db,
		auditLog:   auditLog,
	}, nil
}

func (auth *BasicIdentityProvider) addUserToContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := func(w http.ResponseWriter, r *http.Request) {
			userId, err := ValueFromContext(r, userIdKey)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			userUUID, err := uuid.Parse(userId)
			if err != nil {
				http.Error(w, fmt.Sprintf("invalid user uuid '%v': %v'", userId, err), http.StatusUnauthorized)
				return
			}

			user, err := schema.GetProfile(userUUID, auth.db)
			if err != nil {
				if errors.Is(err, schema.ErrProfileNotFound) {
					http.Error(w, err.Error(), http.StatusNotFound)
					return
				}
				http.Error(w, fmt.Sprintf("unable to find user %v: %v", userId, err), http.StatusInternalServerError)
				return
			}

			reqCtx := r.Context()
			reqCtx = context.WithValue(reqCtx, userRequestContextKey, user)
			next.ServeHTTP(w, r.WithContext(reqCtx))
		}

		return http.HandlerFunc(handler)
	}
}

func (auth *BasicIdentityProvider) AuthMiddleware() chi.Middlewares {
	return chi.Middlewares{auth.jwtManager.Verifier(), auth.jwtManager.Authenticator(), auth.addUserToContext(), auth.auditLog.Middleware}
}

func (auth *BasicIdentityProvider) CreateAccount(username, email, password string) (AccountInfo, error) {
	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	if err != nil {
		return AccountInfo{}, fmt.Errorf("error encrypting password: %w", err)
	}

	var existing schema.Profile
	result := auth.db.Limit(1).Find(&existing, "username = ? or email = ?", username, email)
	if result.Error != nil {
		slog.Error("sql error checking for existing username/email", "error", result.Error)
		return AccountInfo{}, schema.ErrDbAccessFailed
	}
	if result.RowsAffected != 0 {
		if existing.Username == username {
			return AccountInfo{}, ErrUsernameAlreadyInUse
		}
		return AccountInfo{}, ErrEmailAlreadyInUse
	}

	return AccountInfo{Id: uuid.New(), PasswordHash: hashedPwd}, nil
}

func (auth *BasicIdentityProvider) DeleteAccount(userId uuid.UUID) error {
	// Credentials live on the profile row, deleting the profile deletes the account.
	return nil
}

func (auth *BasicIdentityProvider) LoginWithEmail(email, password string) (LoginResult, error) {
	var user schema.Profile
	result := auth.db.First(&user, "email = ?", email)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return LoginResult{}, ErrUserNotFoundWithEmail
		}
		slog.Error("sql error looking up user by email", "error", result.Error)
		return LoginResult{}, schema.ErrDbAccessFailed
	}

	err := bcrypt.CompareHashAndPassword(user.Password, []byte(password))
	if err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := auth.jwtManager.CreateUserJwt(user.Id, 24*time.Hour)
	if err != nil {
		return LoginResult{}, ErrGeneratingJwt
	}

	return LoginResult{UserId: user.Id, AccessToken: token}, nil
}

func (auth *BasicIdentityProvider) Logout(accessToken string) error {
	// Jwts are stateless, there is no session to invalidate.
	return nil
}

func (auth *BasicIdentityProvider) ChangePassword(userId uuid.UUID, currentPassword, newPassword string) error {
	user, err := schema.GetProfile(userId, auth.db)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword(user.Password, []byte(currentPassword)); err != nil {
		return ErrInvalidCredentials
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(newPassword), 10)
	if err != nil {
		return fmt.Errorf("error encrypting password: %w", err)
	}

	result := auth.db.Model(&schema.Profile{}).Where("id = ?", userId).Update("password", hashedPwd)
	if result.Error != nil {
		slog.Error("sql error updating password", "user_id", userId, "error", result.Error)
		return schema.ErrDbAccessFailed
	}

	return nil
}

func (auth *BasicIdentityProvider) SendPasswordReset(email, redirectUrl string) error {
	return ErrNotSupported
}

func (auth *BasicIdentityProvider) UpdateAccount(userId uuid.UUID, email, password *string) error {
	updates := map[string]interface{}{}

	if email != nil {
		var existing schema.Profile
		result := auth.db.Limit(1).Find(&existing, "email = ? and id <> ?", *email, userId)
		if result.Error != nil {
			slog.Error("sql error checking for existing email", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected != 0 {
			return ErrEmailAlreadyInUse
		}
		updates["email"] = *email
	}

	if password != nil {
		hashedPwd, err := bcrypt.GenerateFromPassword([]byte(*password), 10)
		if err != nil {
			return fmt.Errorf("error encrypting password: %w", err)
		}
		updates["password"] = hashedPwd
	}

	if len(updates) == 0 {
		return nil
	}

	result := auth.db.Model(&schema.Profile{}).Where("id = ?", userId).Updates(updates)
	if result.Error != nil {
		slog.Error("sql error updating account", "user_id", userId, "error", result.Error)
		return schema.ErrDbAccessFailed
	}

	return nil
}

func (auth *BasicIdentityProvider) AccountEmail(userId uuid.UUID) (string, error) {
	user, err := schema.GetProfile(userId, auth.db)
	if err != nil {
		return "", err
	}
	return user.Email, nil
}
