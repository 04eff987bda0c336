package auth

import (
	"errors"
	"fmt"
	"net/http"
	"revx_backend/backend/schema"
	"revx_backend/utils"

	"gorm.io/gorm"
)

func AdminOnly(db *gorm.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r)
			if err != nil {
				utils.WriteErrorDetail(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if !user.IsAdmin {
				utils.WriteErrorDetail(w, fmt.Sprintf("user %v is not an admin", user.Id), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}

// ProjectOwnerOnly guards routes with a {project_id} url parameter so that only
// the owner of the project can reach the handler.
func ProjectOwnerOnly(db *gorm.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			projectId, err := utils.URLParamUUID(r, "project_id")
			if err != nil {
				utils.WriteErrorDetail(w, err.Error(), http.StatusBadRequest)
				return
			}

			user, err := UserFromContext(r)
			if err != nil {
				utils.WriteErrorDetail(w, err.Error(), http.StatusInternalServerError)
				return
			}

			project, err := schema.GetProject(projectId, db, false)
			if err != nil {
				if errors.Is(err, schema.ErrProjectNotFound) {
					utils.WriteErrorDetail(w, err.Error(), http.StatusNotFound)
					return
				}
				utils.WriteErrorDetail(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if project.OwnerId != user.Id {
				utils.WriteErrorDetail(w, fmt.Sprintf("user %v is not the owner of project %v", user.Id, projectId), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}
