package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"revx_backend/backend/auth"
	"revx_backend/backend/schema"
	"revx_backend/backend/services"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	slogmulti "github.com/samber/slog-multi"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

/**
 * ==========================================================================
 * ==== All variables that are used by the backend must be loaded here.  ====
 * ==== This is to make the data flow clear so that a user can see what  ====
 * ==== variables are exposed, and how the values are propagated through ====
 * ==== the system.                                                      ====
 * ==========================================================================
 */
type backendEnv struct {
	DatabaseUri string `env:"DATABASE_URI,required"`
	JwtSecret   string `env:"JWT_SECRET"`

	AdminUsername string `env:"ADMIN_USERNAME,required"`
	AdminEmail    string `env:"ADMIN_MAIL,required"`
	AdminPassword string `env:"ADMIN_PASSWORD,required"`

	FrontendUrl      string `env:"FRONTEND_URL,required"`
	ResetPasswordUrl string `env:"RESET_PASSWORD_URL"`

	IdentityProvider      string `env:"IDENTITY_PROVIDER" envDefault:"basic"`
	KeycloakServerUrl     string `env:"KEYCLOAK_SERVER_URL"`
	KeycloakAdminUsername string `env:"KEYCLOAK_ADMIN_USER"`
	KeycloakAdminPassword string `env:"KEYCLOAK_ADMIN_PASSWORD"`
	UseSslInLogin         bool   `env:"USE_SSL_IN_LOGIN"`

	ImagekitPrivateKey string `env:"IMAGEKIT_PRIVATE_KEY"`

	LogDir string `env:"LOG_DIR" envDefault:"logs"`
}

func loadEnv(envFile string) backendEnv {
	if envFile != "" {
		slog.Info(fmt.Sprintf("loading env from file %v", envFile))
		if err := godotenv.Load(envFile); err != nil {
			log.Fatalf("error loading .env file '%v': %v", envFile, err)
		}
	}

	cfg := backendEnv{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing env variables: %v", err)
	}

	if cfg.IdentityProvider == "keycloak" {
		if cfg.KeycloakServerUrl == "" || cfg.KeycloakAdminUsername == "" || cfg.KeycloakAdminPassword == "" {
			log.Fatal("KEYCLOAK_SERVER_URL, KEYCLOAK_ADMIN_USER, and KEYCLOAK_ADMIN_PASSWORD must be set when IDENTITY_PROVIDER is keycloak")
		}
	} else if cfg.JwtSecret == "" {
		log.Fatal("JWT_SECRET must be set when IDENTITY_PROVIDER is basic")
	}

	if cfg.ResetPasswordUrl == "" {
		cfg.ResetPasswordUrl = cfg.FrontendUrl + "/reset-password"
	}

	return cfg
}

func (cfg *backendEnv) postgresDsn() string {
	parts, err := url.Parse(cfg.DatabaseUri)
	if err != nil {
		log.Fatalf("error parsing db uri: %v", err)
	}
	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port())
}

func initLogging(logFile *os.File) {
	jsonHandler := slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: slog.LevelDebug}).
		WithAttrs([]slog.Attr{slog.String("service_type", "backend")})
	textHandler := slog.NewTextHandler(os.Stderr, nil)

	logger := slog.New(slogmulti.Fanout(jsonHandler, textHandler))
	slog.SetDefault(logger)

	slog.Info("logging initialized", "log_file", logFile.Name())
}

func initDb(dsn string) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	err = db.AutoMigrate(
		&schema.Profile{}, &schema.Project{}, &schema.ProjectImage{},
		&schema.Tag{}, &schema.Contributor{}, &schema.Review{},
	)
	if err != nil {
		log.Fatalf("error migrating db schema: %v", err)
	}

	return db
}

func main() {
	envFile := flag.String("env", "", "File to load env variables from. If not specified will just load them from the environment variables already defined.")
	port := flag.Int("port", 8000, "Port to run server on")

	flag.Parse()

	cfg := loadEnv(*envFile)

	if err := os.MkdirAll(cfg.LogDir, 0777); err != nil {
		log.Fatalf("error creating log dir: %v", err)
	}

	logFile, err := os.OpenFile(filepath.Join(cfg.LogDir, "backend.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer logFile.Close()

	auditLog, err := os.OpenFile(filepath.Join(cfg.LogDir, "audit.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening audit log file: %v", err)
	}
	defer auditLog.Close()

	initLogging(logFile)

	db := initDb(cfg.postgresDsn())

	var identityProvider auth.IdentityProvider
	if cfg.IdentityProvider == "keycloak" {
		identityProvider, err = auth.NewKeycloakIdentityProvider(
			db,
			auth.NewAuditLogger(auditLog),
			auth.KeycloakArgs{
				KeycloakServerUrl:     cfg.KeycloakServerUrl,
				KeycloakAdminUsername: cfg.KeycloakAdminUsername,
				KeycloakAdminPassword: cfg.KeycloakAdminPassword,
				AdminUsername:         cfg.AdminUsername,
				AdminEmail:            cfg.AdminEmail,
				AdminPassword:         cfg.AdminPassword,
				FrontendUrl:           cfg.FrontendUrl,
				SslLogin:              cfg.UseSslInLogin,
			},
		)
		if err != nil {
			log.Fatalf("error creating keycloak identity provider: %v", err)
		}
	} else {
		identityProvider, err = auth.NewBasicIdentityProvider(
			db,
			auth.NewAuditLogger(auditLog),
			auth.BasicProviderArgs{
				Secret:        []byte(cfg.JwtSecret),
				AdminUsername: cfg.AdminUsername,
				AdminEmail:    cfg.AdminEmail,
				AdminPassword: cfg.AdminPassword,
			},
		)
		if err != nil {
			log.Fatalf("error creating basic identity provider: %v", err)
		}
	}

	backend := services.NewBackend(db, identityProvider, services.Variables{
		ResetPasswordUrl:   cfg.ResetPasswordUrl,
		ImagekitPrivateKey: cfg.ImagekitPrivateKey,
	})

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.FrontendUrl},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Mount("/api/v1", backend.Routes())

	slog.Info("starting server", "port", *port)
	err = http.ListenAndServe(fmt.Sprintf(":%d", *port), r)
	if err != nil {
		log.Fatalf("listen and serve returned error: %v", err.Error())
	}
}
