package auth

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"revx_backend/backend/schema"
	"time"

	"github.com/Nerzal/gocloak/v13"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	keycloakRealm    = "RevX"
	keycloakClientId = "revx-frontend-login"
)

type KeycloakIdentityProvider struct {
	keycloak *gocloak.GoCloak
	db       *gorm.DB
	auditLog AuditLogger

	realm                        string
	adminUsername, adminPassword string
}

func isConflict(err error) bool {
	apiErr, ok := err.(*gocloak.APIError)
	// Keycloak returns 409 if user/realm etc already exists when creating it.
	return ok && apiErr.Code == http.StatusConflict
}

func pArg[T any](value T) *T {
	p := new(T)
	*p = value
	return p
}

var boolArg = pArg[bool]
var intArg = pArg[int]
var strArg = pArg[string]

func adminLogin(client *gocloak.GoCloak, adminUsername, adminPassword string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// The "master" realm is the default admin realm in Keycloak.
	adminToken, err := client.LoginAdmin(ctx, adminUsername, adminPassword, "master")
	if err != nil {
		return "", fmt.Errorf("error during keycloak admin login: %w", err)
	}
	return adminToken.AccessToken, nil
}

func getUserID(ctx context.Context, client *gocloak.GoCloak, adminToken, username, realmName string) (*string, error) {
	users, err := client.GetUsers(ctx, adminToken, realmName, gocloak.GetUsersParams{
		Username: &username,
		Max:      intArg(1),
		Exact:    boolArg(true),
	})
	if err != nil {
		return nil, fmt.Errorf("error retrieving user id: %w", err)
	}
	if len(users) == 1 {
		return users[0].ID, nil
	}
	return nil, nil
}

func createRealm(client *gocloak.GoCloak, adminToken, realmName string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := client.CreateRealm(ctx, adminToken, gocloak.RealmRepresentation{
		Realm:                 &realmName,
		Enabled:               boolArg(true),
		DefaultRoles:          &[]string{"user"},
		RegistrationAllowed:   boolArg(true),
		ResetPasswordAllowed:  boolArg(true),
		LoginWithEmailAllowed: boolArg(true),
		AccessTokenLifespan:   intArg(1500),
		PasswordPolicy:        strArg("length(8)"),
		BruteForceProtected:   boolArg(true),
	})
	if err != nil {
		if isConflict(err) {
			slog.Info(fmt.Sprintf("KEYCLOAK: realm '%v' has already been created", realmName))
			return nil // Ok if realm already exists
		}
		return fmt.Errorf("error creating realm: %w", err)
	}
	return nil
}

func createClient(client *gocloak.GoCloak, adminToken, realm, frontendUrl string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	clients, err := client.GetClients(ctx, adminToken, realm, gocloak.GetClientsParams{
		ClientID: strArg(keycloakClientId),
	})
	if err != nil {
		return fmt.Errorf("error listing existing clients for realm: %w", err)
	}
	if len(clients) == 1 {
		slog.Info(fmt.Sprintf("KEYCLOAK: client '%v' already exists for realm '%v'", keycloakClientId, realm))
		return nil
	}

	redirectUrls := []string{frontendUrl + "/*", "http://localhost/*", "http://localhost:3000/*"}

	_, err = client.CreateClient(ctx, adminToken, realm, gocloak.Client{
		ClientID:                  strArg(keycloakClientId),
		Enabled:                   boolArg(true),
		PublicClient:              boolArg(true),
		RedirectURIs:              &redirectUrls,
		RootURL:                   &frontendUrl,
		DirectAccessGrantsEnabled: boolArg(true), // Password grant is used for /auth/login.
		StandardFlowEnabled:       boolArg(true),
		ImplicitFlowEnabled:       boolArg(false),
		FullScopeAllowed:          boolArg(false),
		DefaultClientScopes:       &[]string{"profile", "email", "openid", "roles"},
		WebOrigins:                &redirectUrls,
	})
	if err != nil {
		if isConflict(err) {
			slog.Info(fmt.Sprintf("KEYCLOAK: client '%v' has already been created for realm '%v'", keycloakClientId, realm))
			return nil
		}
		return fmt.Errorf("error creating realm client: %w", err)
	}
	return nil
}

func createAdminIfNotExists(client *gocloak.GoCloak, adminToken, username, email, password, realmName string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	existingUserId, err := getUserID(ctx, client, adminToken, username, realmName)
	if err != nil {
		return "", fmt.Errorf("error checking for existing admin: %w", err)
	}
	if existingUserId != nil {
		slog.Info("KEYCLOAK: admin user has already been created")
		return *existingUserId, nil
	}

	userId, err := client.CreateUser(ctx, adminToken, realmName, gocloak.User{
		Username:      &username,
		Email:         &email,
		Enabled:       boolArg(true),
		EmailVerified: boolArg(true),
		Credentials: &[]gocloak.CredentialRepresentation{
			{
				Type:      strArg("password"),
				Value:     &password,
				Temporary: boolArg(false),
			},
		},
	})
	if err != nil {
		if isConflict(err) {
			userId, err := getUserID(ctx, client, adminToken, username, realmName)
			if err != nil {
				return "", fmt.Errorf("error retrieving existing admin after conflict creating admin: %w", err)
			}
			if userId == nil {
				return "", fmt.Errorf("no user found after conflict creating admin")
			}
			return *userId, nil
		}
		return "", fmt.Errorf("error creating new admin: %w", err)
	}

	return userId, nil
}

type KeycloakArgs struct {
	KeycloakServerUrl string

	KeycloakAdminUsername string
	KeycloakAdminPassword string

	AdminUsername string
	AdminEmail    string
	AdminPassword string

	FrontendUrl string

	SslLogin bool

	Verbose bool
}

func NewKeycloakIdentityProvider(db *gorm.DB, auditLog AuditLogger, args KeycloakArgs) (IdentityProvider, error) {
	client := gocloak.NewClient(args.KeycloakServerUrl)
	restyClient := client.RestyClient()
	restyClient.SetDebug(args.Verbose)

	if !args.SslLogin {
		restyClient.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}

	adminToken, err := adminLogin(client, args.KeycloakAdminUsername, args.KeycloakAdminPassword)
	if err != nil {
		slog.Error("KEYCLOAK: admin login failed", "error", err)
		return nil, err
	}
	slog.Info("KEYCLOAK: admin login successful")

	err = createRealm(client, adminToken, keycloakRealm)
	if err != nil {
		slog.Error("KEYCLOAK: realm creation failed", "error", err)
		return nil, err
	}
	slog.Info("KEYCLOAK: realm creation successful")

	err = createClient(client, adminToken, keycloakRealm, args.FrontendUrl)
	if err != nil {
		slog.Error("KEYCLOAK: client creation failed", "error", err)
		return nil, err
	}
	slog.Info("KEYCLOAK: client creation successful")

	userId, err := createAdminIfNotExists(client, adminToken, args.AdminUsername, args.AdminEmail, args.AdminPassword, keycloakRealm)
	if err != nil {
		slog.Error("KEYCLOAK: new admin creation failed", "realm", keycloakRealm, "error", err)
		return nil, err
	}
	slog.Info("KEYCLOAK: new admin creation successful")

	userUUID, err := uuid.Parse(userId)
	if err != nil {
		return nil, fmt.Errorf("invalid uuid '%v' returned from keycloak: %w", userId, err)
	}

	err = addInitialAdminToDb(db, userUUID, args.AdminUsername, args.AdminEmail, nil)
	if err != nil {
		slog.Error("KEYCLOAK: adding new admin to db failed", "error", err)
		return nil, err
	}
	slog.Info("KEYCLOAK: adding new admin to db successful")

	return &KeycloakIdentityProvider{
		keycloak:      client,
		db:            db,
		auditLog:      auditLog,
		realm:         keycloakRealm,
		adminUsername: args.KeycloakAdminUsername,
		adminPassword: args.KeycloakAdminPassword,
	}, nil
}

func getToken(r *http.Request) (string, error) {
	if token := jwtauth.TokenFromHeader(r); token != "" {
		return token, nil
	}
	if token := jwtauth.TokenFromCookie(r); token != "" {
		return token, nil
	}
	return "", fmt.Errorf("unable to find auth token")
}

func (auth *KeycloakIdentityProvider) middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := func(w http.ResponseWriter, r *http.Request) {
			token, err := getToken(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			userInfo, err := auth.keycloak.GetUserInfo(ctx, token, auth.realm)
			if err != nil {
				http.Error(w, fmt.Sprintf("unable to verify token with keycloak: %v", err), http.StatusUnauthorized)
				return
			}

			if userInfo.Sub == nil {
				http.Error(w, "user identifier missing in keycloak response", http.StatusInternalServerError)
				return
			}

			userUUID, err := uuid.Parse(*userInfo.Sub)
			if err != nil {
				http.Error(w, fmt.Sprintf("invalid uuid '%v' returned from keycloak: %v", *userInfo.Sub, err), http.StatusInternalServerError)
				return
			}

			user, err := schema.GetProfile(userUUID, auth.db)
			if err != nil {
				if errors.Is(err, schema.ErrProfileNotFound) {
					http.Error(w, err.Error(), http.StatusNotFound)
					return
				}
				slog.Error("unable to find profile from keycloak id", "keycloak_id", *userInfo.Sub, "error", err)
				http.Error(w, fmt.Sprintf("unable to find user %v: %v", *userInfo.Sub, schema.ErrDbAccessFailed), http.StatusInternalServerError)
				return
			}

			reqCtx := r.Context()
			reqCtx = context.WithValue(reqCtx, userRequestContextKey, user)
			next.ServeHTTP(w, r.WithContext(reqCtx))
		}

		return http.HandlerFunc(handler)
	}
}

func (auth *KeycloakIdentityProvider) AuthMiddleware() chi.Middlewares {
	return chi.Middlewares{auth.middleware(), auth.auditLog.Middleware}
}

func (auth *KeycloakIdentityProvider) checkExistingUsers(adminToken, field string, params gocloak.GetUsersParams) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	params.Max = intArg(1)
	users, err := auth.keycloak.GetUsers(ctx, adminToken, auth.realm, params)
	if err != nil {
		return fmt.Errorf("unable to get users: %w", err)
	}

	if len(users) > 0 {
		if field == "username" {
			return ErrUsernameAlreadyInUse
		}
		return ErrEmailAlreadyInUse
	}

	return nil
}

func (auth *KeycloakIdentityProvider) CreateAccount(username, email, password string) (AccountInfo, error) {
	adminToken, err := adminLogin(auth.keycloak, auth.adminUsername, auth.adminPassword)
	if err != nil {
		return AccountInfo{}, err
	}

	if err := auth.checkExistingUsers(adminToken, "username", gocloak.GetUsersParams{Username: &username, Exact: boolArg(true)}); err != nil {
		return AccountInfo{}, err
	}

	if err := auth.checkExistingUsers(adminToken, "email", gocloak.GetUsersParams{Email: &email, Exact: boolArg(true)}); err != nil {
		return AccountInfo{}, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	userId, err := auth.keycloak.CreateUser(ctx, adminToken, auth.realm, gocloak.User{
		Username:      &username,
		Email:         &email,
		Enabled:       boolArg(true),
		EmailVerified: boolArg(true),
		Credentials: &[]gocloak.CredentialRepresentation{{
			Type: strArg("password"), Value: &password, Temporary: boolArg(false),
		}},
	})
	if err != nil {
		if isConflict(err) {
			return AccountInfo{}, ErrUsernameAlreadyInUse
		}
		return AccountInfo{}, fmt.Errorf("error creating new user in keycloak: %w", err)
	}

	userUUID, err := uuid.Parse(userId)
	if err != nil {
		return AccountInfo{}, fmt.Errorf("invalid uuid '%v' returned from keycloak: %w", userId, err)
	}

	return AccountInfo{Id: userUUID}, nil
}

func (auth *KeycloakIdentityProvider) DeleteAccount(userId uuid.UUID) error {
	adminToken, err := adminLogin(auth.keycloak, auth.adminUsername, auth.adminPassword)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err = auth.keycloak.DeleteUser(ctx, adminToken, auth.realm, userId.String())
	if err != nil {
		slog.Error("failed to delete user with keycloak", "user_id", userId, "error", err)
		return fmt.Errorf("failed to delete user with keycloak: %w", err)
	}

	return nil
}

func (auth *KeycloakIdentityProvider) LoginWithEmail(email, password string) (LoginResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token, err := auth.keycloak.Login(ctx, keycloakClientId, "", auth.realm, email, password)
	if err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	userInfo, err := auth.keycloak.GetUserInfo(ctx, token.AccessToken, auth.realm)
	if err != nil || userInfo.Sub == nil {
		slog.Error("failed to get user info after keycloak login", "error", err)
		return LoginResult{}, fmt.Errorf("failed to resolve user identity after login")
	}

	userId, err := uuid.Parse(*userInfo.Sub)
	if err != nil {
		return LoginResult{}, fmt.Errorf("invalid uuid '%v' returned from keycloak: %w", *userInfo.Sub, err)
	}

	return LoginResult{UserId: userId, AccessToken: token.AccessToken}, nil
}

func (auth *KeycloakIdentityProvider) Logout(accessToken string) error {
	// The token is not verified here, it is only decoded so the revocation can be
	// logged with the session's subject and remaining lifetime.
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err == nil {
		sub, _ := claims.GetSubject()
		exp, _ := claims.GetExpirationTime()
		if exp != nil {
			slog.Info("revoking keycloak session", "sub", sub, "expires_at", exp.Time)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := auth.keycloak.RevokeToken(ctx, auth.realm, keycloakClientId, "", accessToken)
	if err != nil {
		return fmt.Errorf("failed to revoke token with keycloak: %w", err)
	}

	return nil
}

func (auth *KeycloakIdentityProvider) ChangePassword(userId uuid.UUID, currentPassword, newPassword string) error {
	email, err := auth.AccountEmail(userId)
	if err != nil {
		return err
	}

	// Re-authenticate to prove possession of the current password before setting the new one.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := auth.keycloak.Login(ctx, keycloakClientId, "", auth.realm, email, currentPassword); err != nil {
		return ErrInvalidCredentials
	}

	adminToken, err := adminLogin(auth.keycloak, auth.adminUsername, auth.adminPassword)
	if err != nil {
		return err
	}

	err = auth.keycloak.SetPassword(ctx, adminToken, userId.String(), auth.realm, newPassword, false)
	if err != nil {
		return fmt.Errorf("failed to set new password with keycloak: %w", err)
	}

	return nil
}

func (auth *KeycloakIdentityProvider) SendPasswordReset(email, redirectUrl string) error {
	adminToken, err := adminLogin(auth.keycloak, auth.adminUsername, auth.adminPassword)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	users, err := auth.keycloak.GetUsers(ctx, adminToken, auth.realm, gocloak.GetUsersParams{Email: &email, Exact: boolArg(true), Max: intArg(1)})
	if err != nil {
		return fmt.Errorf("unable to look up user for password reset: %w", err)
	}
	if len(users) == 0 || users[0].ID == nil {
		return ErrUserNotFoundWithEmail
	}

	err = auth.keycloak.ExecuteActionsEmail(ctx, adminToken, auth.realm, gocloak.ExecuteActionsEmail{
		UserID:      users[0].ID,
		ClientID:    strArg(keycloakClientId),
		RedirectURI: &redirectUrl,
		Lifespan:    intArg(1800),
		Actions:     &[]string{"UPDATE_PASSWORD"},
	})
	if err != nil {
		return fmt.Errorf("failed to send password reset email: %w", err)
	}

	return nil
}

func (auth *KeycloakIdentityProvider) UpdateAccount(userId uuid.UUID, email, password *string) error {
	adminToken, err := adminLogin(auth.keycloak, auth.adminUsername, auth.adminPassword)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if email != nil {
		if err := auth.checkExistingUsers(adminToken, "email", gocloak.GetUsersParams{Email: email, Exact: boolArg(true)}); err != nil {
			return err
		}

		userIdStr := userId.String()
		err = auth.keycloak.UpdateUser(ctx, adminToken, auth.realm, gocloak.User{ID: &userIdStr, Email: email})
		if err != nil {
			return fmt.Errorf("failed to update email with keycloak: %w", err)
		}
	}

	if password != nil {
		err = auth.keycloak.SetPassword(ctx, adminToken, userId.String(), auth.realm, *password, false)
		if err != nil {
			return fmt.Errorf("failed to update password with keycloak: %w", err)
		}
	}

	return nil
}

func (auth *KeycloakIdentityProvider) AccountEmail(userId uuid.UUID) (string, error) {
	adminToken, err := adminLogin(auth.keycloak, auth.adminUsername, auth.adminPassword)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	user, err := auth.keycloak.GetUserByID(ctx, adminToken, auth.realm, userId.String())
	if err != nil {
		return "", fmt.Errorf("unable to look up user email with keycloak: %w", err)
	}
	if user.Email == nil {
		return "", fmt.Errorf("no email found for user %v", userId)
	}

	return *user.Email, nil
}
