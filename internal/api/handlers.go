package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/strings28/task-shelter/internal/core"
	"github.com/strings28/task-shelter/internal/service"
	"go.uber.org/zap"
)

type taskService interface {
	Create(ctx context.Context, ownerID string, in service.CreateTaskInput) (*core.Task, error)
	Get(ctx context.Context, actorID, taskID string) (*core.Task, error)
	Update(ctx context.Context, actorID, taskID string, in service.UpdateTaskInput) (*core.Task, error)
	DeleteToggle(ctx context.Context, actorID, taskID string) (*core.Task, error)
	List(ctx context.Context, ownerID string, q service.ListQuery) (*service.TaskPage, error)
}

type authService interface {
	Register(ctx context.Context, in service.RegisterInput) (*core.User, string, error)
	Login(ctx context.Context, email, password string) (string, error)
	VerifyToken(token string) (string, error)
}

type handler struct {
	tasks  taskService
	auth   authService
	logger *zap.Logger
}

const handlerTimeout = 30 * time.Second

// List view wire defaults.
const (
	defaultPage      = 1
	defaultLimit     = 10
	defaultSortBy    = core.SortByTitle
	defaultSortOrder = "asc"
)

func NewHandler(ts taskService, auth authService, logger *zap.Logger) *handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &handler{tasks: ts, auth: auth, logger: logger}
}

func (h *handler) register(c *gin.Context) {
	req := RegisterRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequestResponse(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	u, token, err := h.auth.Register(ctx, service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		Firstname: req.Firstname,
		Lastname:  req.Lastname,
	})
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusCreated, AuthResponse{
		User:        NewUserResponse(u),
		AccessToken: token,
	})
}

func (h *handler) login(c *gin.Context) {
	req := LoginRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequestResponse(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	token, err := h.auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, TokenResponse{AccessToken: token})
}

func (h *handler) createTask(c *gin.Context) {
	req := CreateTaskRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequestResponse(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	// The body's userId is ignored; the owner is the token identity.
	t, err := h.tasks.Create(ctx, GetUserID(c), service.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		DueDate:     req.DueDate,
	})
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	SetTaskID(c, t.ID)
	c.JSON(http.StatusCreated, NewTaskResponse(t))
}

func (h *handler) listTasks(c *gin.Context) {
	page, err := intQuery(c, "page", defaultPage)
	if err != nil {
		h.badRequestResponse(c, err)
		return
	}
	limit, err := intQuery(c, "limit", defaultLimit)
	if err != nil {
		h.badRequestResponse(c, err)
		return
	}

	q := service.ListQuery{
		Page:      page,
		Limit:     limit,
		Deleted:   c.DefaultQuery("deleted", "false") == "true",
		SortBy:    c.DefaultQuery("sortBy", defaultSortBy),
		SortOrder: c.DefaultQuery("sortOrder", defaultSortOrder),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	pageRes, listErr := h.tasks.List(ctx, GetUserID(c), q)
	if listErr != nil {
		h.errorResponse(c, listErr)
		return
	}
	c.JSON(http.StatusOK, NewTaskListResponse(pageRes.Tasks, pageRes.TotalTasks, pageRes.TotalPages))
}

func (h *handler) getTask(c *gin.Context) {
	id := c.Param("id")
	SetTaskID(c, id)
	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	t, err := h.tasks.Get(ctx, GetUserID(c), id)
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, NewTaskResponse(t))
}

func (h *handler) updateTask(c *gin.Context) {
	id := c.Param("id")
	SetTaskID(c, id)

	req := UpdateTaskRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequestResponse(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	t, err := h.tasks.Update(ctx, GetUserID(c), id, service.UpdateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		DueDate:     req.DueDate,
		Delete:      req.DeletedAt,
	})
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, NewTaskResponse(t))
}

// deleteTask toggles soft-deletion. Despite the verb, nothing is
// removed: a second call restores the task.
func (h *handler) deleteTask(c *gin.Context) {
	id := c.Param("id")
	SetTaskID(c, id)
	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	t, err := h.tasks.DeleteToggle(ctx, GetUserID(c), id)
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, NewTaskResponse(t))
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func (h *handler) badRequestResponse(c *gin.Context, err error) {
	if c != nil && err != nil {
		c.Error(err) //nolint:errcheck
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   "bad request",
		"details": err.Error(),
	})
}

func (h *handler) errorResponse(c *gin.Context, err error) {
	if c != nil && err != nil {
		c.Error(err) //nolint:errcheck
	}
	if err == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "internal server error",
		})
		return
	}

	if appErr, ok := core.AsAppError(err); ok {
		s := appErr.HTTPStatus()
		p := gin.H{
			"error": appErr.PublicMessage(),
			"code":  appErr.Code,
		}
		if appErr.SafeToShow {
			switch {
			case appErr.Err != nil:
				p["details"] = appErr.Err.Error()
			case appErr.Message != "":
				p["details"] = appErr.Message
			}
		}
		h.logger.Warn("handler error",
			zap.String("reqid", GetRequestID(c)),
			zap.String("task_id", GetTaskID(c)),
			zap.String("error", err.Error()),
		)
		c.AbortWithStatusJSON(s, p)
		return
	}

	h.logger.Error("handler unknown error",
		zap.String("reqid", GetRequestID(c)),
		zap.String("task_id", GetTaskID(c)),
		zap.String("error", err.Error()),
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error": "internal server error",
	})
}
