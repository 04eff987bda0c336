package services

import (
	"log"
	"net/http"
	"os"
	"revx_backend/backend/auth"
	"revx_backend/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Variables holds deployment specific values that are threaded into the
// services at startup.
type Variables struct {
	ResetPasswordUrl   string
	ImagekitPrivateKey string
}

type Backend struct {
	auth     AuthService
	project  ProjectService
	user     UserService
	admin    AdminService
	imagekit ImagekitService

	db *gorm.DB
}

func NewBackend(db *gorm.DB, userAuth auth.IdentityProvider, variables Variables) Backend {
	return Backend{
		auth: AuthService{
			db:               db,
			userAuth:         userAuth,
			resetPasswordUrl: variables.ResetPasswordUrl,
		},
		project:  ProjectService{db: db, userAuth: userAuth},
		user:     UserService{db: db, userAuth: userAuth},
		admin:    AdminService{db: db, userAuth: userAuth},
		imagekit: ImagekitService{privateKey: variables.ImagekitPrivateKey},
		db:       db,
	}
}

func (b *Backend) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))

	r.Mount("/auth", b.auth.Routes())
	r.Mount("/project", b.project.Routes())
	r.Mount("/user", b.user.Routes())
	r.Mount("/admin", b.admin.Routes())
	r.Mount("/api/imagekit", b.imagekit.Routes())

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	return r
}
