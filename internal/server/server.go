package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/taskboard/apiserver/config"
	"github.com/taskboard/apiserver/internal/auth"
	"github.com/taskboard/apiserver/internal/db"
	"github.com/taskboard/apiserver/internal/handlers"
	"github.com/taskboard/apiserver/internal/logging"
	"github.com/taskboard/apiserver/internal/mq"
	"github.com/taskboard/apiserver/internal/services"
	"github.com/taskboard/apiserver/internal/storage"
	"github.com/taskboard/apiserver/internal/store"
	"github.com/taskboard/apiserver/internal/telemetry"
)

const shutdownTimeout = 15 * time.Second

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      *mq.MQ
	log        logging.Logger
	shutdownFn func(context.Context) error
}

// Deps are the collaborators the router is built from.
type Deps struct {
	Config      config.Config
	Log         logging.Logger
	Tokens      *auth.TokenService
	Auth        *services.AuthService
	Tasks       *services.TaskService
	Attachments *services.AttachmentService
}

// New opens every backend named by cfg and constructs a Server.
func New(ctx context.Context, cfg config.Config, log logging.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint)
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}

	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, err
	}

	blobs, err := storage.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		_ = shutdownTracing(ctx)
		return nil, err
	}
	if err := blobs.EnsureBucket(ctx); err != nil {
		_ = dbConn.Close()
		_ = shutdownTracing(ctx)
		return nil, fmt.Errorf("ensure bucket %s: %w", blobs.Bucket(), err)
	}

	queue, err := mq.NewFromConfig(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		_ = shutdownTracing(ctx)
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	taskRepo := store.NewTaskRepository(dbConn)
	attachmentRepo := store.NewAttachmentRepository(dbConn)

	tokens := auth.NewTokenService(cfg.Auth.SigningSecret, cfg.Auth.TokenTTL)
	router := NewRouter(Deps{
		Config:      cfg,
		Log:         log,
		Tokens:      tokens,
		Auth:        services.NewAuthService(userRepo, tokens),
		Tasks:       services.NewTaskService(taskRepo, attachmentRepo),
		Attachments: services.NewAttachmentService(attachmentRepo, taskRepo, blobs, queue, log),
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info(ctx, "server configured",
		"port", port,
		"storage", cfg.Storage.Backend,
		"bucket", blobs.Bucket(),
		"mq", cfg.MQ.Backend,
		"authz_enforced", cfg.Auth.Enforce,
	)

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		queue:      queue,
		log:        log,
		shutdownFn: shutdownTracing,
	}, nil
}

// NewRouter builds the chi router with identity attachment, the access
// policy and every API route.
func NewRouter(deps Deps) *chi.Mux {
	cfg := deps.Config
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
		telemetry.Middleware,
		handlers.CORS,
		handlers.Authenticate(deps.Tokens, deps.Log),
		handlers.Authorize(auth.DefaultPolicy(cfg.Auth.Enforce)),
	)

	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, deps.Auth, deps.Log)
	})

	attachments := handlers.NewAttachmentHandler(deps.Attachments, cfg.MaxUploadBytes, deps.Log)
	router.Route("/tasks", func(r chi.Router) {
		handlers.TaskRouter(r, deps.Tasks, attachments, cfg.DebugRoutes, deps.Log)
	})
	router.Route("/attachments", func(r chi.Router) {
		handlers.AttachmentRouter(r, attachments)
	})

	if cfg.DebugRoutes {
		router.Route("/debug", handlers.DebugRouter)
		router.Route("/environment", func(r chi.Router) {
			handlers.EnvironmentRouter(r, cfg)
		})
	}
	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		_ = s.close(context.Background())
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info(shutdownCtx, "shutting down")
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops accepting requests, waits for in-flight ones and releases
// every backend.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	return errors.Join(err, s.close(ctx))
}

func (s *Server) close(ctx context.Context) error {
	var errs []error
	if s.queue != nil {
		errs = append(errs, s.queue.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	if s.shutdownFn != nil {
		errs = append(errs, s.shutdownFn(ctx))
	}
	return errors.Join(errs...)
}
