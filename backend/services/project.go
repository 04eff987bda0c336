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
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProjectService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *ProjectService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Post("/create", s.Create)
	r.Get("/list", s.List)
	r.Get("/my_projects", s.MyProjects)
	r.Get("/tags", s.ListTags)
	r.Get("/get/{project_id}", s.Get)

	r.Post("/add_review/{project_id}", s.AddReview)
	r.Delete("/remove_review/{project_id}", s.RemoveReview)

	r.Group(func(r chi.Router) {
		r.Use(auth.ProjectOwnerOnly(s.db))

		r.Put("/update/{project_id}", s.Update)
		r.Delete("/delete/{project_id}", s.Delete)
		r.Post("/add_contributor/{project_id}", s.AddContributor)
		r.Delete("/remove_contributor/{project_id}/{contributor_id}", s.RemoveContributor)
	})

	return r
}

type ownerInfo struct {
	UserId   string  `json:"user_id"`
	Username string  `json:"username"`
	FullName string  `json:"full_name"`
	Avatar   *string `json:"avatar"`
}

type contributorInfo struct {
	UserId   string  `json:"user_id"`
	Username string  `json:"username"`
	FullName string  `json:"full_name"`
	Avatar   *string `json:"avatar"`
	Status   bool    `json:"status"`
}

type reviewInfo struct {
	Id        string  `json:"id"`
	UserId    string  `json:"user_id"`
	Username  string  `json:"username"`
	Avatar    *string `json:"avatar"`
	Review    string  `json:"review"`
	Rating    int     `json:"rating"`
	CreatedAt string  `json:"created_at"`
}

type projectDetails struct {
	Id          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	OwnerId     string  `json:"owner_id"`
	CreatedAt   string  `json:"created_at"`
	AvgRating   float64 `json:"avg_rating"`

	Owner        *ownerInfo        `json:"owner,omitempty"`
	Images       []string          `json:"images"`
	Tags         []string          `json:"tags"`
	Contributors []contributorInfo `json:"contributors"`
	Reviews      []reviewInfo      `json:"reviews"`
}

func convertToProjectDetails(project *schema.Project) projectDetails {
	details := projectDetails{
		Id:           project.Id.String(),
		Title:        project.Title,
		Description:  project.Description,
		OwnerId:      project.OwnerId.String(),
		CreatedAt:    project.CreatedAt.Format(time.RFC3339),
		Images:       make([]string, 0, len(project.Images)),
		Tags:         make([]string, 0, len(project.Tags)),
		Contributors: make([]contributorInfo, 0, len(project.Contributors)),
		Reviews:      make([]reviewInfo, 0, len(project.Reviews)),
	}

	if project.Owner != nil {
		details.Owner = &ownerInfo{
			UserId:   project.Owner.Id.String(),
			Username: project.Owner.Username,
			FullName: project.Owner.FullName,
			Avatar:   project.Owner.Avatar,
		}
	}

	for _, image := range project.Images {
		details.Images = append(details.Images, image.ImageLink)
	}

	for _, tag := range project.Tags {
		details.Tags = append(details.Tags, tag.TagName)
	}

	for _, contributor := range project.Contributors {
		info := contributorInfo{UserId: contributor.UserId.String(), Status: contributor.Status}
		if contributor.User != nil {
			info.Username = contributor.User.Username
			info.FullName = contributor.User.FullName
			info.Avatar = contributor.User.Avatar
		}
		details.Contributors = append(details.Contributors, info)
	}

	ratingTotal := 0
	for _, review := range project.Reviews {
		info := reviewInfo{
			Id:        review.Id.String(),
			UserId:    review.UserId.String(),
			Review:    review.Review,
			Rating:    review.Rating,
			CreatedAt: review.CreatedAt.Format(time.RFC3339),
		}
		if review.User != nil {
			info.Username = review.User.Username
			info.Avatar = review.User.Avatar
		}
		details.Reviews = append(details.Reviews, info)
		ratingTotal += review.Rating
	}

	if len(project.Reviews) > 0 {
		details.AvgRating = float64(ratingTotal) / float64(len(project.Reviews))
	}

	return details
}

func getOrCreateTag(txn *gorm.DB, tagName string) (schema.Tag, error) {
	var tag schema.Tag

	result := txn.Limit(1).Find(&tag, "tag_name = ?", tagName)
	if result.Error != nil {
		slog.Error("sql error looking up tag", "tag_name", tagName, "error", result.Error)
		return tag, CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}
	if result.RowsAffected != 0 {
		return tag, nil
	}

	tag = schema.Tag{Id: uuid.New(), TagName: tagName}
	if result := txn.Create(&tag); result.Error != nil {
		slog.Error("sql error creating tag", "tag_name", tagName, "error", result.Error)
		return tag, CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	return tag, nil
}

func replaceImages(txn *gorm.DB, projectId uuid.UUID, images []string) error {
	result := txn.Where("project_id = ?", projectId).Delete(&schema.ProjectImage{})
	if result.Error != nil {
		slog.Error("sql error deleting project images", "project_id", projectId, "error", result.Error)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	for _, link := range images {
		image := schema.ProjectImage{Id: uuid.New(), ProjectId: projectId, ImageLink: link}
		if result := txn.Create(&image); result.Error != nil {
			slog.Error("sql error inserting project image", "project_id", projectId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
	}

	return nil
}

func replaceTags(txn *gorm.DB, project *schema.Project, tagNames []string) error {
	tags := make([]schema.Tag, 0, len(tagNames))
	for _, name := range tagNames {
		tag, err := getOrCreateTag(txn, name)
		if err != nil {
			return err
		}
		tags = append(tags, tag)
	}

	err := txn.Model(project).Association("Tags").Replace(tags)
	if err != nil {
		slog.Error("sql error replacing project tags", "project_id", project.Id, "error", err)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	return nil
}

func checkTitleAvailable(txn *gorm.DB, title string, excludeId *uuid.UUID) error {
	query := txn.Limit(1)
	if excludeId != nil {
		query = query.Where("id <> ?", *excludeId)
	}

	var existing schema.Project
	result := query.Find(&existing, "title = ?", title)
	if result.Error != nil {
		slog.Error("sql error checking for duplicate project title", "error", result.Error)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}
	if result.RowsAffected != 0 {
		return CodedError(fmt.Errorf("project with title '%v' already exists", title), http.StatusConflict)
	}

	return nil
}

type createProjectRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Images      []string `json:"images"`
	Tags        []string `json:"tags"`
}

func (s *ProjectService) Create(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		utils.WriteErrorDetail(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params createProjectRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Title == "" {
		utils.WriteErrorDetail(w, "title is required", http.StatusBadRequest)
		return
	}

	project := schema.Project{
		Id:          uuid.New(),
		Title:       params.Title,
		Description: params.Description,
		OwnerId:     user.Id,
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkTitleAvailable(txn, params.Title, nil); err != nil {
			return err
		}

		if result := txn.Create(&project); result.Error != nil {
			slog.Error("sql error creating project", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if len(params.Images) > 0 {
			if err := replaceImages(txn, project.Id, params.Images); err != nil {
				return err
			}
		}

		if len(params.Tags) > 0 {
			if err := replaceTags(txn, &project, params.Tags); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}

	projectCreateMetric.Inc()

	created, err := schema.GetProject(project.Id, s.db, true)
	if err != nil {
		utils.WriteErrorDetail(w, err.Error(), http.StatusInternalServerError)
		return
	}

	details := convertToProjectDetails(&created)
	utils.WriteCreatedResponse(w, "Project created successfully", details)
}

type updateProjectRequest struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Images      *[]string `json:"images"`
	Tags        *[]string `json:"tags"`
}

// Fields absent from the payload (or explicitly null) are left untouched. For
// images and tags a present list, including an empty one, fully replaces the
// prior associations.
func (s *ProjectService) Update(w http.ResponseWriter, r *http.Request) {
	projectId, err := utils.URLParamUUID(r, "project_id")
	if err != nil {
		utils.WriteErrorDetail(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params updateProjectRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		project, err := schema.GetProject(projectId, txn, false)
		if err != nil {
			if errors.Is(err, schema.ErrProjectNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		updates := map[string]interface{}{}

		if params.Title != nil {
			if err := checkTitleAvailable(txn, *params.Title, &projectId); err != nil {
				return err
			}
			updates["title"] = *params.Title
		}

		if params.Description != nil {
			updates["description"] = *params.Description
		}

		if len(updates) > 0 {
			result := txn.Model(&schema.Project{}).Where("id = ?", projectId).Updates(updates)
			if result.Error != nil {
				slog.Error("sql error updating project", "project_id", projectId, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}

		if params.Images != nil {
			if err := replaceImages(txn, projectId, *params.Images); err != nil {
				return err
			}
		}

		if params.Tags != nil {
			if err := replaceTags(txn, &project, *params.Tags); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}

	updated, err := schema.GetProject(projectId, s.db, true)
	if err != nil {
		utils.WriteErrorDetail(w, err.Error(), http.StatusInternalServerError)
		return
	}

	details := convertToProjectDetails(&updated)
	utils.WriteJsonResponse(w, "Project updated successfully", details)
}

func (s *ProjectService) Get(w http.ResponseWriter, r *http.Request) {
	timer := time.Now()
	defer func() { projectGetMetric.Observe(time.Since(timer).Seconds()) }()

	projectId, err := utils.URLParamUUID(r, "project_id")
	if err != nil {
		utils.WriteErrorDetail(w, err.Error(), http.StatusBadRequest)
		return
	}

	project, err := schema.GetProject(projectId, s.db, true)
	if err != nil {
		if errors.Is(err, schema.ErrProjectNotFound) {
			utils.WriteErrorDetail(w, err.Error(), http.StatusNotFound)
			return
		}
		utils.WriteErrorDetail(w, err.Error(), http.StatusInternalServerError)
		return
	}

	details := convertToProjectDetails(&project)
	utils.WriteJsonResponse(w, "", details)
}

func listProjects(w http.ResponseWriter, query *gorm.DB) {
	var projects []schema.Project

	result := query.
		Preload("Owner").
		Preload("Images").
		Preload("Tags").
		Preload("Contributors").Preload("Contributors.User").
		Preload("Reviews").Preload("Reviews.User").
		Order("created_at desc").
		Find(&projects)
	if result.Error != nil {
		slog.Error("sql error listing projects", "error", result.Error)
		utils.WriteErrorDetail(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	details := make([]projectDetails, 0, len(projects))
	for i := range projects {
		details = append(details, convertToProjectDetails(&projects[i]))
	}

	utils.WriteJsonResponse(w, "", details)
}

func (s *ProjectService) List(w http.ResponseWriter, r *http.Request) {
	listProjects(w, s.db)
}

func (s *ProjectService) MyProjects(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		utils.WriteErrorDetail(w, err.Error(), http.StatusInternalServerError)
		return
	}

	listProjects(w, s.db.Where("owner_id = ?", user.Id))
}

type tagInfo struct {
	Id      string `json:"id"`
	TagName string `json:"tag_name"`
}

func (s *ProjectService) ListTags(w http.ResponseWriter, r *http.Request) {
	var tags []schema.Tag
	result := s.db.Order("tag_name").Find(&tags)
	if result.Error != nil {
		slog.Error("sql error listing tags", "error", result.Error)
		utils.WriteErrorDetail(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	infos := make([]tagInfo, 0, len(tags))
	for _, tag := range tags {
		infos = append(infos, tagInfo{Id: tag.Id.String(), TagName: tag.TagName})
	}

	utils.WriteJsonResponse(w, "", infos)
}

type addContributorRequest struct {
	Username string `json:"username"`
}

func (s *ProjectService) AddContributor(w http.ResponseWriter, r *http.Request) {
	projectId, err := utils.URLParamUUID(r, "project_id")
	if err != nil {
		utils.WriteErrorDetail(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params addContributorRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Username == "" {
		utils.WriteErrorDetail(w, "username is required", http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		project, err := schema.GetProject(projectId, txn, false)
		if err != nil {
			if errors.Is(err, schema.ErrProjectNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		contributor, err := schema.GetProfileByUsername(params.Username, txn)
		if err != nil {
			if errors.Is(err, schema.ErrProfileNotFound) {
				return CodedError(fmt.Errorf("no user found with username '%v'", params.Username), http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if contributor.Id == project.OwnerId {
			return CodedError(errors.New("project owner cannot be added as a contributor"), http.StatusConflict)
		}

		var existing schema.Contributor
		result := txn.Limit(1).Find(&existing, "project_id = ? and user_id = ?", projectId, contributor.Id)
		if result.Error != nil {
			slog.Error("sql error checking for existing contributor", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected != 0 {
			return CodedError(fmt.Errorf("user '%v' is already a contributor", params.Username), http.StatusConflict)
		}

		entry := schema.Contributor{ProjectId: projectId, UserId: contributor.Id, Status: true}
		if result := txn.Create(&entry); result.Error != nil {
			slog.Error("sql error creating contributor", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}

	contributorAddMetric.Inc()

	utils.WriteJsonResponse(w, "Contributor added successfully", nil)
}

func (s *ProjectService) RemoveContributor(w http.ResponseWriter, r *http.Request) {
	projectId, err := utils.URLParamUUID(r, "project_id")
	if err != nil {
		utils.WriteErrorDetail(w, err.Error(), http.StatusBadRequest)
		return
	}
	contributorId, err := utils.URLParamUUID(r, "contributor_id")
	if err != nil {
		utils.WriteErrorDetail(w, err.Error(), http.StatusBadRequest)
		return
	}

	result := s.db.Where("project_id = ? and user_id = ?", projectId, contributorId).Delete(&schema.Contributor{})
	if result.Error != nil {
		slog.Error("sql error removing contributor", "project_id", projectId, "user_id", contributorId, "error", result.Error)
		utils.WriteErrorDetail(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		utils.WriteErrorDetail(w, "contributor not found", http.StatusNotFound)
		return
	}

	utils.WriteJsonResponse(w, "Contributor removed successfully", nil)
}

type addReviewRequest struct {
	Review string `json:"review"`
	Rating int    `json:"rating"`
}

func (s *ProjectService) AddReview(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		utils.WriteErrorDetail(w, err.Error(), http.StatusInternalServerError)
		return
	}

	projectId, err := utils.URLParamUUID(r, "project_id")
	if err != nil {
		utils.WriteErrorDetail(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params addReviewRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Review == "" {
		utils.WriteErrorDetail(w, "review text is required", http.StatusBadRequest)
		return
	}
	if params.Rating < 1 || params.Rating > 5 {
		utils.WriteErrorDetail(w, "rating must be between 1 and 5", http.StatusBadRequest)
		return
	}

	review := schema.Review{
		Id:        uuid.New(),
		ProjectId: projectId,
		UserId:    user.Id,
		Review:    params.Review,
		Rating:    params.Rating,
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		project, err := schema.GetProject(projectId, txn, false)
		if err != nil {
			if errors.Is(err, schema.ErrProjectNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if project.OwnerId == user.Id {
			return CodedError(errors.New("project owner cannot review their own project"), http.StatusConflict)
		}

		var existing schema.Review
		result := txn.Limit(1).Find(&existing, "project_id = ? and user_id = ?", projectId, user.Id)
		if result.Error != nil {
			slog.Error("sql error checking for existing review", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected != 0 {
			return CodedError(errors.New("user has already reviewed this project"), http.StatusConflict)
		}

		if result := txn.Create(&review); result.Error != nil {
			slog.Error("sql error creating review", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}

	reviewAddMetric.Inc()

	utils.WriteCreatedResponse(w, "Review added successfully", reviewInfo{
		Id:        review.Id.String(),
		UserId:    user.Id.String(),
		Username:  user.Username,
		Avatar:    user.Avatar,
		Review:    review.Review,
		Rating:    review.Rating,
		CreatedAt: review.CreatedAt.Format(time.RFC3339),
	})
}

// RemoveReview deletes the caller's review of the project. Reviews can only be
// removed by their author, admins go through the admin cascade instead.
func (s *ProjectService) RemoveReview(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		utils.WriteErrorDetail(w, err.Error(), http.StatusInternalServerError)
		return
	}

	projectId, err := utils.URLParamUUID(r, "project_id")
	if err != nil {
		utils.WriteErrorDetail(w, err.Error(), http.StatusBadRequest)
		return
	}

	result := s.db.Where("project_id = ? and user_id = ?", projectId, user.Id).Delete(&schema.Review{})
	if result.Error != nil {
		slog.Error("sql error removing review", "project_id", projectId, "user_id", user.Id, "error", result.Error)
		utils.WriteErrorDetail(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		utils.WriteErrorDetail(w, schema.ErrReviewNotFound.Error(), http.StatusNotFound)
		return
	}

	utils.WriteJsonResponse(w, "Review removed successfully", nil)
}

func (s *ProjectService) Delete(w http.ResponseWriter, r *http.Request) {
	projectId, err := utils.URLParamUUID(r, "project_id")
	if err != nil {
		utils.WriteErrorDetail(w, err.Error(), http.StatusBadRequest)
		return
	}

	var counts DeleteCounts
	err = s.db.Transaction(func(txn *gorm.DB) error {
		counts, err = deleteProjectCascade(txn, projectId)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	projectDeleteMetric.Inc()

	utils.WriteJsonResponse(w, "Project deleted successfully", counts)
}
