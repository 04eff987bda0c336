package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"revx_backend/backend/auth"
	"revx_backend/backend/schema"
	"revx_backend/utils"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type UserService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *UserService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Put("/update", s.Update)
	r.Get("/my_projects", s.MyProjects)
	r.Get("/my_reviews", s.MyReviews)

	return r
}

type updateProfileRequest struct {
	Username *string `json:"username"`
	FullName *string `json:"full_name"`
	Bio      *string `json:"bio"`
	Avatar   *string `json:"avatar"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

// Update applies a partial profile update. Fields absent from the payload (or
// explicitly null) are left untouched. Email changes are written to the profile
// row and forwarded to the identity provider, password changes only go to the
// provider.
func (s *UserService) Update(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		utils.WriteErrorDetail(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params updateProfileRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Password != nil && len(*params.Password) < 8 {
		utils.WriteErrorDetail(w, "password must be at least 8 characters", http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		updates := map[string]interface{}{}

		if params.Username != nil {
			if len(*params.Username) < 3 || len(*params.Username) > 20 {
				return CodedError(errors.New("username must be between 3 and 20 characters"), http.StatusBadRequest)
			}

			var existing schema.Profile
			result := txn.Limit(1).Find(&existing, "username = ? and id <> ?", *params.Username, user.Id)
			if result.Error != nil {
				slog.Error("sql error checking for existing username", "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
			if result.RowsAffected != 0 {
				return CodedError(auth.ErrUsernameAlreadyInUse, http.StatusConflict)
			}

			updates["username"] = *params.Username
		}

		if params.Email != nil {
			var existing schema.Profile
			result := txn.Limit(1).Find(&existing, "email = ? and id <> ?", *params.Email, user.Id)
			if result.Error != nil {
				slog.Error("sql error checking for existing email", "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
			if result.RowsAffected != 0 {
				return CodedError(auth.ErrEmailAlreadyInUse, http.StatusConflict)
			}

			updates["email"] = *params.Email
		}

		if params.FullName != nil {
			updates["full_name"] = *params.FullName
		}
		if params.Bio != nil {
			updates["bio"] = *params.Bio
		}
		if params.Avatar != nil {
			updates["avatar"] = *params.Avatar
		}

		if len(updates) == 0 {
			return nil
		}

		result := txn.Model(&schema.Profile{}).Where("id = ?", user.Id).Updates(updates)
		if result.Error != nil {
			slog.Error("sql error updating profile", "user_id", user.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if params.Email != nil || params.Password != nil {
		err = s.userAuth.UpdateAccount(user.Id, params.Email, params.Password)
		if err != nil {
			// The profile row already carries the new email, restore the old one
			// so it does not diverge from the identity provider.
			if params.Email != nil {
				restore := s.db.Model(&schema.Profile{}).Where("id = ?", user.Id).Update("email", user.Email)
				if restore.Error != nil {
					slog.Error("unable to restore email after failed account update", "user_id", user.Id, "error", restore.Error)
				}
			}
			if errors.Is(err, auth.ErrEmailAlreadyInUse) {
				utils.WriteErrorDetail(w, err.Error(), http.StatusConflict)
				return
			}
			utils.WriteErrorDetail(w, fmt.Sprintf("error updating account: %v", err), http.StatusInternalServerError)
			return
		}
	}

	updated, err := schema.GetProfile(user.Id, s.db)
	if err != nil {
		utils.WriteErrorDetail(w, err.Error(), http.StatusInternalServerError)
		return
	}

	email, err := s.userAuth.AccountEmail(user.Id)
	if err != nil {
		slog.Error("unable to fetch account email", "user_id", user.Id, "error", err)
		email = ""
	}

	utils.WriteJsonResponse(w, "Profile updated successfully", convertToProfileResponse(&updated, email))
}

func (s *UserService) MyProjects(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		utils.WriteErrorDetail(w, err.Error(), http.StatusInternalServerError)
		return
	}

	listProjects(w, s.db.Where("owner_id = ?", user.Id))
}

type myReviewInfo struct {
	Id           string `json:"id"`
	ProjectId    string `json:"project_id"`
	ProjectTitle string `json:"project_title"`
	Review       string `json:"review"`
	Rating       int    `json:"rating"`
	CreatedAt    string `json:"created_at"`
}

func (s *UserService) MyReviews(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		utils.WriteErrorDetail(w, err.Error(), http.StatusInternalServerError)
		return
	}

	type reviewRow struct {
		schema.Review
		ProjectTitle string
	}

	var reviews []reviewRow
	result := s.db.Model(&schema.Review{}).
		Select("reviews.*, projects.title as project_title").
		Joins("join projects on projects.id = reviews.project_id").
		Where("reviews.user_id = ?", user.Id).
		Order("reviews.created_at desc").
		Find(&reviews)
	if result.Error != nil {
		slog.Error("sql error listing user reviews", "user_id", user.Id, "error", result.Error)
		utils.WriteErrorDetail(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	infos := make([]myReviewInfo, 0, len(reviews))
	for _, review := range reviews {
		infos = append(infos, myReviewInfo{
			Id:           review.Id.String(),
			ProjectId:    review.ProjectId.String(),
			ProjectTitle: review.ProjectTitle,
			Review:       review.Review.Review,
			Rating:       review.Rating,
			CreatedAt:    review.CreatedAt.Format(time.RFC3339),
		})
	}

	utils.WriteJsonResponse(w, "", infos)
}
