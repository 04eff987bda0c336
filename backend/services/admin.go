package services

import (
	"log/slog"
	"net/http"
	"revx_backend/backend/auth"
	"revx_backend/backend/schema"
	"revx_backend/utils"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type AdminService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *AdminService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)
	r.Use(auth.AdminOnly(s.db))

	r.Get("/metrics", s.Metrics)
	r.Get("/users", s.ListUsers)
	r.Get("/projects", s.ListProjects)
	r.Put("/users/{user_id}/admin", s.SetAdmin)
	r.Delete("/users/{user_id}", s.DeleteUser)
	r.Delete("/projects/{project_id}", s.DeleteProject)

	return r
}

func paginationParams(r *http.Request) (int, int, error) {
	limit, err := utils.QueryParamInt(r, "limit", 50)
	if err != nil {
		return 0, 0, err
	}
	offset, err := utils.QueryParamInt(r, "offset", 0)
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

type recentReviewInfo struct {
	Id           string `json:"id"`
	ProjectTitle string `json:"project_title"`
	Username     string `json:"username"`
	Rating       int    `json:"rating"`
	Review       string `json:"review"`
	CreatedAt    string `json:"created_at"`
}

type dashboardMetrics struct {
	TotalUsers     int64              `json:"total_users"`
	TotalProjects  int64              `json:"total_projects"`
	TotalReviews   int64              `json:"total_reviews"`
	NewUsers30d    int64              `json:"new_users_30d"`
	NewProjects30d int64              `json:"new_projects_30d"`
	NewReviews30d  int64              `json:"new_reviews_30d"`
	RecentReviews  []recentReviewInfo `json:"recent_reviews"`
}

func (s *AdminService) countRows(model interface{}, since *time.Time) (int64, error) {
	query := s.db.Model(model)
	if since != nil {
		query = query.Where("created_at >= ?", *since)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		slog.Error("sql error counting rows for dashboard", "error", err)
		return 0, CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}
	return count, nil
}

func (s *AdminService) Metrics(w http.ResponseWriter, r *http.Request) {
	cutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)

	var metrics dashboardMetrics
	var err error

	counts := []struct {
		dest  *int64
		model interface{}
		since *time.Time
	}{
		{&metrics.TotalUsers, &schema.Profile{}, nil},
		{&metrics.TotalProjects, &schema.Project{}, nil},
		{&metrics.TotalReviews, &schema.Review{}, nil},
		{&metrics.NewUsers30d, &schema.Profile{}, &cutoff},
		{&metrics.NewProjects30d, &schema.Project{}, &cutoff},
		{&metrics.NewReviews30d, &schema.Review{}, &cutoff},
	}

	for _, c := range counts {
		*c.dest, err = s.countRows(c.model, c.since)
		if err != nil {
			writeError(w, err)
			return
		}
	}

	type recentReviewRow struct {
		schema.Review
		ProjectTitle string
		Username     string
	}

	var recent []recentReviewRow
	result := s.db.Model(&schema.Review{}).
		Select("reviews.*, projects.title as project_title, profiles.username as username").
		Joins("join projects on projects.id = reviews.project_id").
		Joins("join profiles on profiles.id = reviews.user_id").
		Order("reviews.created_at desc").
		Limit(5).
		Find(&recent)
	if result.Error != nil {
		slog.Error("sql error listing recent reviews", "error", result.Error)
		utils.WriteErrorDetail(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	metrics.RecentReviews = make([]recentReviewInfo, 0, len(recent))
	for _, row := range recent {
		metrics.RecentReviews = append(metrics.RecentReviews, recentReviewInfo{
			Id:           row.Id.String(),
			ProjectTitle: row.ProjectTitle,
			Username:     row.Username,
			Rating:       row.Rating,
			Review:       row.Review.Review,
			CreatedAt:    row.CreatedAt.Format(time.RFC3339),
		})
	}

	utils.WriteJsonResponse(w, "", metrics)
}

type adminUserInfo struct {
	Id        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	IsAdmin   bool   `json:"is_admin"`
	CreatedAt string `json:"created_at"`
}

func (s *AdminService) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := paginationParams(r)
	if err != nil {
		utils.WriteErrorDetail(w, err.Error(), http.StatusBadRequest)
		return
	}

	var profiles []schema.Profile
	result := s.db.Order("created_at desc").Limit(limit).Offset(offset).Find(&profiles)
	if result.Error != nil {
		slog.Error("sql error listing users", "error", result.Error)
		utils.WriteErrorDetail(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	users := make([]adminUserInfo, 0, len(profiles))
	for _, profile := range profiles {
		email, err := s.userAuth.AccountEmail(profile.Id)
		if err != nil {
			slog.Error("unable to fetch account email", "user_id", profile.Id, "error", err)
			email = ""
		}

		users = append(users, adminUserInfo{
			Id:        profile.Id.String(),
			Username:  profile.Username,
			Email:     email,
			FullName:  profile.FullName,
			IsAdmin:   profile.IsAdmin,
			CreatedAt: profile.CreatedAt.Format(time.RFC3339),
		})
	}

	utils.WriteJsonResponse(w, "", users)
}

type adminProjectInfo struct {
	Id            string  `json:"id"`
	Title         string  `json:"title"`
	OwnerUsername string  `json:"owner_username"`
	ReviewCount   int64   `json:"review_count"`
	AvgRating     float64 `json:"avg_rating"`
	CreatedAt     string  `json:"created_at"`
}

func (s *AdminService) ListProjects(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := paginationParams(r)
	if err != nil {
		utils.WriteErrorDetail(w, err.Error(), http.StatusBadRequest)
		return
	}

	type projectRow struct {
		schema.Project
		OwnerUsername string
		ReviewCount   int64
		AvgRating     float64
	}

	var rows []projectRow
	result := s.db.Model(&schema.Project{}).
		Select("projects.*, profiles.username as owner_username, " +
			"count(reviews.id) as review_count, coalesce(avg(reviews.rating), 0) as avg_rating").
		Joins("join profiles on profiles.id = projects.owner_id").
		Joins("left join reviews on reviews.project_id = projects.id").
		Group("projects.id, profiles.username").
		Order("projects.created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&rows)
	if result.Error != nil {
		slog.Error("sql error listing projects for admin", "error", result.Error)
		utils.WriteErrorDetail(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	projects := make([]adminProjectInfo, 0, len(rows))
	for _, row := range rows {
		projects = append(projects, adminProjectInfo{
			Id:            row.Id.String(),
			Title:         row.Title,
			OwnerUsername: row.OwnerUsername,
			ReviewCount:   row.ReviewCount,
			AvgRating:     row.AvgRating,
			CreatedAt:     row.CreatedAt.Format(time.RFC3339),
		})
	}

	utils.WriteJsonResponse(w, "", projects)
}

type setAdminRequest struct {
	IsAdmin bool `json:"is_admin"`
}

func (s *AdminService) SetAdmin(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		utils.WriteErrorDetail(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params setAdminRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	result := s.db.Model(&schema.Profile{}).Where("id = ?", userId).Update("is_admin", params.IsAdmin)
	if result.Error != nil {
		slog.Error("sql error updating admin flag", "user_id", userId, "error", result.Error)
		utils.WriteErrorDetail(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		utils.WriteErrorDetail(w, schema.ErrProfileNotFound.Error(), http.StatusNotFound)
		return
	}

	slog.Info("admin flag updated", "user_id", userId, "is_admin", params.IsAdmin)
	utils.WriteJsonResponse(w, "User admin status updated successfully", nil)
}

type userDeleteCounts struct {
	DeleteCounts
	ProjectsDeleted int `json:"projects_deleted"`
}

// DeleteUser removes the profile along with every review the user wrote, every
// contributor row they appear in, and every project they own (each with its own
// cascade). The identity provider account is deleted last; a failure there is
// logged but does not fail the request since the local data is already gone.
func (s *AdminService) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		utils.WriteErrorDetail(w, err.Error(), http.StatusBadRequest)
		return
	}

	var counts userDeleteCounts

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkProfileExists(txn, userId); err != nil {
			return err
		}

		reviews := txn.Where("user_id = ?", userId).Delete(&schema.Review{})
		if reviews.Error != nil {
			slog.Error("sql error deleting user reviews", "user_id", userId, "error", reviews.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		counts.Reviews += reviews.RowsAffected

		contributors := txn.Where("user_id = ?", userId).Delete(&schema.Contributor{})
		if contributors.Error != nil {
			slog.Error("sql error deleting user contributor rows", "user_id", userId, "error", contributors.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		counts.Contributors += contributors.RowsAffected

		var owned []schema.Project
		if err := txn.Where("owner_id = ?", userId).Find(&owned).Error; err != nil {
			slog.Error("sql error listing owned projects", "user_id", userId, "error", err)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		for _, project := range owned {
			projectCounts, err := deleteProjectCascade(txn, project.Id)
			if err != nil {
				return err
			}
			counts.DeleteCounts.add(projectCounts)
			counts.ProjectsDeleted++
		}

		if err := txn.Delete(&schema.Profile{Id: userId}).Error; err != nil {
			slog.Error("sql error deleting profile", "user_id", userId, "error", err)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.userAuth.DeleteAccount(userId); err != nil {
		slog.Error("unable to delete identity provider account", "user_id", userId, "error", err)
	}

	slog.Info("user deleted", "user_id", userId, "projects_deleted", counts.ProjectsDeleted)
	utils.WriteJsonResponse(w, "User deleted successfully", counts)
}

func (s *AdminService) DeleteProject(w http.ResponseWriter, r *http.Request) {
	projectId, err := utils.URLParamUUID(r, "project_id")
	if err != nil {
		utils.WriteErrorDetail(w, err.Error(), http.StatusBadRequest)
		return
	}

	var counts DeleteCounts
	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkProjectExists(txn, projectId); err != nil {
			return err
		}

		counts, err = deleteProjectCascade(txn, projectId)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	projectDeleteMetric.Inc()
	slog.Info("project deleted by admin", "project_id", projectId)
	utils.WriteJsonResponse(w, "Project deleted successfully", counts)
}
