package schema

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrProjectNotFound = errors.New("project not found")
	ErrReviewNotFound  = errors.New("review not found")
	ErrDbAccessFailed  = errors.New("db access failed")
)

func GetProfile(userId uuid.UUID, db *gorm.DB) (Profile, error) {
	var profile Profile

	result := db.First(&profile, "id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return profile, ErrProfileNotFound
		}
		slog.Error("sql error in get profile", "user_id", userId, "error", result.Error)
		return profile, ErrDbAccessFailed
	}

	return profile, nil
}

func GetProfileByUsername(username string, db *gorm.DB) (Profile, error) {
	var profile Profile

	result := db.First(&profile, "username = ?", username)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return profile, ErrProfileNotFound
		}
		slog.Error("sql error in get profile by username", "username", username, "error", result.Error)
		return profile, ErrDbAccessFailed
	}

	return profile, nil
}

func GetProject(projectId uuid.UUID, db *gorm.DB, loadDetails bool) (Project, error) {
	var project Project

	query := db
	if loadDetails {
		query = query.
			Preload("Owner").
			Preload("Images").
			Preload("Tags").
			Preload("Contributors").Preload("Contributors.User").
			Preload("Reviews").Preload("Reviews.User")
	}

	result := query.First(&project, "id = ?", projectId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return project, ErrProjectNotFound
		}
		slog.Error("sql error in get project", "project_id", projectId, "error", result.Error)
		return project, ErrDbAccessFailed
	}

	return project, nil
}
