package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"revx_backend/backend/auth"
	"revx_backend/backend/schema"
	"revx_backend/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"gorm.io/gorm"
)

type AuthService struct {
	db               *gorm.DB
	userAuth         auth.IdentityProvider
	resetPasswordUrl string
}

func (s *AuthService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Post("/register", s.Register)
		r.Post("/login", s.Login)
		r.Post("/forgot-password", s.ForgotPassword)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Post("/logout", s.Logout)
		r.Post("/change-password", s.ChangePassword)
	})

	return r
}

type registerRequest struct {
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	FullName string  `json:"full_name"`
	Bio      *string `json:"bio"`
	Avatar   *string `json:"avatar"`
}

type profileResponse struct {
	Id        string  `json:"id"`
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	FullName  string  `json:"full_name"`
	Bio       *string `json:"bio"`
	Avatar    *string `json:"avatar"`
	IsAdmin   bool    `json:"is_admin"`
	CreatedAt string  `json:"created_at"`
}

func convertToProfileResponse(profile *schema.Profile, email string) profileResponse {
	return profileResponse{
		Id:        profile.Id.String(),
		Username:  profile.Username,
		Email:     email,
		FullName:  profile.FullName,
		Bio:       profile.Bio,
		Avatar:    profile.Avatar,
		IsAdmin:   profile.IsAdmin,
		CreatedAt: profile.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func validateRegistration(params *registerRequest) error {
	if params.Username == "" || params.Email == "" || params.Password == "" || params.FullName == "" {
		return errors.New("username, email, password, and full_name are required")
	}
	if len(params.Username) < 3 || len(params.Username) > 20 {
		return errors.New("username must be between 3 and 20 characters")
	}
	if len(params.Password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	return nil
}

func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	var params registerRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if err := validateRegistration(&params); err != nil {
		utils.WriteErrorDetail(w, err.Error(), http.StatusBadRequest)
		return
	}

	// The username is checked before any identity-provider account is created so
	// that a conflict never leaves a dangling account.
	var existing schema.Profile
	result := s.db.Limit(1).Find(&existing, "username = ?", params.Username)
	if result.Error != nil {
		slog.Error("sql error checking for existing username", "error", result.Error)
		utils.WriteErrorDetail(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}
	if result.RowsAffected != 0 {
		utils.WriteErrorDetail(w, auth.ErrUsernameAlreadyInUse.Error(), http.StatusConflict)
		return
	}

	account, err := s.userAuth.CreateAccount(params.Username, params.Email, params.Password)
	if err != nil {
		responseCode := http.StatusInternalServerError
		if errors.Is(err, auth.ErrUsernameAlreadyInUse) || errors.Is(err, auth.ErrEmailAlreadyInUse) {
			responseCode = http.StatusConflict
		}
		utils.WriteErrorDetail(w, fmt.Sprintf("registration failed: %v", err), responseCode)
		return
	}

	profile := schema.Profile{
		Id:       account.Id,
		Username: params.Username,
		Email:    params.Email,
		FullName: params.FullName,
		Bio:      params.Bio,
		Avatar:   params.Avatar,
		Password: account.PasswordHash,
	}

	if result := s.db.Create(&profile); result.Error != nil {
		slog.Error("sql error creating profile after account creation", "user_id", account.Id, "error", result.Error)

		// Compensating action: without a profile the account is an orphaned login,
		// so the identity-provider account is removed again.
		if delErr := s.userAuth.DeleteAccount(account.Id); delErr != nil {
			slog.Error("failed to delete identity-provider account after profile creation failure", "user_id", account.Id, "error", delErr)
		}

		utils.WriteErrorDetail(w, "failed to create user profile", http.StatusInternalServerError)
		return
	}

	registerMetric.Inc()

	data := map[string]interface{}{"profile": convertToProfileResponse(&profile, params.Email)}
	if login, err := s.userAuth.LoginWithEmail(params.Email, params.Password); err == nil {
		data["auth_token"] = login.AccessToken
	} else {
		slog.Error("login after registration failed", "user_id", account.Id, "error", err)
	}

	utils.WriteCreatedResponse(w, "User registered successfully", data)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	var params loginRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Email == "" || params.Password == "" {
		utils.WriteErrorDetail(w, "email and password are required", http.StatusBadRequest)
		return
	}

	login, err := s.userAuth.LoginWithEmail(params.Email, params.Password)
	if err != nil {
		responseCode := http.StatusInternalServerError
		switch {
		case errors.Is(err, auth.ErrUserNotFoundWithEmail):
			responseCode = http.StatusNotFound
		case errors.Is(err, auth.ErrInvalidCredentials):
			responseCode = http.StatusUnauthorized
		}
		utils.WriteErrorDetail(w, fmt.Sprintf("login failed: %v", err), responseCode)
		return
	}

	profile, err := schema.GetProfile(login.UserId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrProfileNotFound) {
			// Authentication succeeded but no profile row exists, the two stores are
			// out of sync.
			utils.WriteErrorDetail(w, "no profile found for authenticated user", http.StatusNotFound)
			return
		}
		utils.WriteErrorDetail(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := map[string]interface{}{
		"profile":    convertToProfileResponse(&profile, params.Email),
		"auth_token": login.AccessToken,
	}
	utils.WriteJsonResponse(w, "Login successful", data)
}

func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token := jwtauth.TokenFromHeader(r)
	if token == "" {
		utils.WriteErrorDetail(w, "missing bearer token", http.StatusUnauthorized)
		return
	}

	if err := s.userAuth.Logout(token); err != nil {
		utils.WriteErrorDetail(w, fmt.Sprintf("logout failed: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, "Logged out successfully", nil)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (s *AuthService) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		utils.WriteErrorDetail(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params changePasswordRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.CurrentPassword == "" || params.NewPassword == "" {
		utils.WriteErrorDetail(w, "current_password and new_password are required", http.StatusBadRequest)
		return
	}
	if len(params.NewPassword) < 8 {
		utils.WriteErrorDetail(w, "new password must be at least 8 characters", http.StatusBadRequest)
		return
	}

	err = s.userAuth.ChangePassword(user.Id, params.CurrentPassword, params.NewPassword)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			utils.WriteErrorDetail(w, "current password is incorrect", http.StatusUnauthorized)
			return
		}
		utils.WriteErrorDetail(w, fmt.Sprintf("password change failed: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, "Password updated successfully", nil)
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (s *AuthService) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var params forgotPasswordRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Email == "" {
		utils.WriteErrorDetail(w, "email is required", http.StatusBadRequest)
		return
	}

	err := s.userAuth.SendPasswordReset(params.Email, s.resetPasswordUrl)
	if err != nil {
		responseCode := http.StatusInternalServerError
		switch {
		case errors.Is(err, auth.ErrUserNotFoundWithEmail):
			responseCode = http.StatusNotFound
		case errors.Is(err, auth.ErrNotSupported):
			responseCode = http.StatusBadRequest
		}
		utils.WriteErrorDetail(w, fmt.Sprintf("password reset failed: %v", err), responseCode)
		return
	}

	utils.WriteJsonResponse(w, "Password reset email sent", nil)
}
