package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var ErrNoTaskService = errors.New("task service is required")
var ErrNoAuthService = errors.New("auth service is required")

type Server struct {
	router *gin.Engine

	httpSrv *http.Server
}

type ServerOptions struct {
	TaskService taskService
	AuthService authService
	Logger      *zap.Logger
	Addr        string
}

func NewServer(opts *ServerOptions) (*Server, error) {
	if opts.TaskService == nil {
		return nil, ErrNoTaskService
	}
	if opts.AuthService == nil {
		return nil, ErrNoAuthService
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(
		RecoveryMiddleware(opts.Logger),
		RequestIDMiddleware(),
		LoggingMiddleware(opts.Logger),
	)

	h := NewHandler(opts.TaskService, opts.AuthService, opts.Logger)
	setupRouter(router, h, opts.Logger)

	return &Server{
		router: router,
		httpSrv: &http.Server{
			Addr:    opts.Addr,
			Handler: router,
		}}, nil
}

func (s *Server) Run() error {
	return s.httpSrv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) Router() http.Handler {
	return s.router
}

func setupRouter(router *gin.Engine, h *handler, logger *zap.Logger) {
	auth := router.Group("/auth")
	auth.POST("/register", h.register)
	auth.POST("/login", h.login)

	tasks := router.Group("/tasks")
	tasks.Use(AuthMiddleware(h.auth, logger), RequireUser())
	tasks.POST("", h.createTask)
	tasks.GET("", h.listTasks)
	tasks.GET("/:id", h.getTask)
	tasks.PATCH("/:id", h.updateTask)
	tasks.DELETE("/:id", h.deleteTask)
}
