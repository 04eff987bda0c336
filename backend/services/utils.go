package services

import (
	"errors"
	"log/slog"
	"net/http"
	"revx_backend/backend/schema"
	"revx_backend/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(err error, code int) error {
	return &codedError{err: err, code: code}
}

func GetResponseCode(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}
	slog.Error("non coded error passed to GetResponseCode", "error", err)
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	utils.WriteErrorDetail(w, err.Error(), GetResponseCode(err))
}

func checkProfileExists(txn *gorm.DB, userId uuid.UUID) error {
	_, err := schema.GetProfile(userId, txn)
	if err != nil {
		if errors.Is(err, schema.ErrProfileNotFound) {
			return CodedError(err, http.StatusNotFound)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	return nil
}

func checkProjectExists(txn *gorm.DB, projectId uuid.UUID) error {
	_, err := schema.GetProject(projectId, txn, false)
	if err != nil {
		if errors.Is(err, schema.ErrProjectNotFound) {
			return CodedError(err, http.StatusNotFound)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	return nil
}

// DeleteCounts reports how many dependent rows were removed by a cascading
// project delete.
type DeleteCounts struct {
	Reviews      int64 `json:"reviews_deleted"`
	Contributors int64 `json:"contributors_deleted"`
	Images       int64 `json:"images_deleted"`
	TagLinks     int64 `json:"tag_links_deleted"`
}

func (c *DeleteCounts) add(other DeleteCounts) {
	c.Reviews += other.Reviews
	c.Contributors += other.Contributors
	c.Images += other.Images
	c.TagLinks += other.TagLinks
}

// deleteProjectCascade removes a project and every row that references it. It
// must run inside a transaction so a failure part way through rolls back
// instead of leaving orphaned rows.
func deleteProjectCascade(txn *gorm.DB, projectId uuid.UUID) (DeleteCounts, error) {
	var counts DeleteCounts

	result := txn.Where("project_id = ?", projectId).Delete(&schema.Review{})
	if result.Error != nil {
		slog.Error("sql error deleting project reviews", "project_id", projectId, "error", result.Error)
		return counts, CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}
	counts.Reviews = result.RowsAffected

	result = txn.Where("project_id = ?", projectId).Delete(&schema.Contributor{})
	if result.Error != nil {
		slog.Error("sql error deleting project contributors", "project_id", projectId, "error", result.Error)
		return counts, CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}
	counts.Contributors = result.RowsAffected

	result = txn.Where("project_id = ?", projectId).Delete(&schema.ProjectImage{})
	if result.Error != nil {
		slog.Error("sql error deleting project images", "project_id", projectId, "error", result.Error)
		return counts, CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}
	counts.Images = result.RowsAffected

	result = txn.Exec("DELETE FROM project_tags WHERE project_id = ?", projectId)
	if result.Error != nil {
		slog.Error("sql error deleting project tag links", "project_id", projectId, "error", result.Error)
		return counts, CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}
	counts.TagLinks = result.RowsAffected

	result = txn.Delete(&schema.Project{Id: projectId})
	if result.Error != nil {
		slog.Error("sql error deleting project", "project_id", projectId, "error", result.Error)
		return counts, CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	return counts, nil
}
