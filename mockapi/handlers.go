package mockapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"prism-board/domain"
)

const maxBodySize = 64 * 1024 // 64 KiB

func (s *Server) register(e *echo.Echo) {
	e.POST("/users/login", s.login)
	e.POST("/users/register", s.registerUser)
	e.GET("/tasks", s.listTasks)
	e.POST("/tasks", s.createTask)
	e.PATCH("/tasks/:id", s.patchTask)
	e.PUT("/tasks/:id", s.putTaskStatus)
	e.DELETE("/tasks/:id", s.deleteTask)
	e.GET("/healthz", healthz)
}

func healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func decodeBody(c echo.Context, out any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, maxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func message(c echo.Context, status int, msg string) error {
	return c.JSON(status, messageResponse{Message: msg})
}

func validationStatus(c echo.Context, err error) error {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return message(c, http.StatusBadRequest, verr.Error())
	}
	return message(c, http.StatusBadRequest, "invalid body")
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := decodeBody(c, &req); err != nil {
		return message(c, http.StatusBadRequest, "invalid body")
	}
	u, err := s.store.authenticate(req.Email, req.Password)
	if err != nil {
		return message(c, http.StatusUnauthorized, "Invalid credentials")
	}
	token, err := s.auth.Issue(u.ID, u.Email)
	if err != nil {
		s.logger.WithError(err).Error("mockapi.issue_token")
		return message(c, http.StatusInternalServerError, "failed to issue token")
	}
	return c.JSON(http.StatusOK, loginResponse{
		Token: token,
		User:  userResponse{ID: u.ID, Email: u.Email, Name: u.Name},
	})
}

func (s *Server) registerUser(c echo.Context) error {
	var req registerRequest
	if err := decodeBody(c, &req); err != nil || req.Email == "" || req.Password == "" {
		return message(c, http.StatusBadRequest, "invalid body")
	}
	id, err := s.store.AddUser(req.Email, req.Name, req.Password)
	if err != nil {
		return message(c, http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusCreated, userResponse{ID: id, Email: req.Email, Name: req.Name})
}

func (s *Server) listTasks(c echo.Context) error {
	userID, err := s.auth.userID(c)
	if err != nil {
		return message(c, http.StatusUnauthorized, err.Error())
	}
	f, err := domain.ParseFilter(c.QueryParam("status"), c.QueryParam("priority"))
	if err != nil {
		return validationStatus(c, err)
	}
	return c.JSON(http.StatusOK, tasksResponse{Tasks: toLegacyList(s.store.list(userID, f))})
}

func (s *Server) createTask(c echo.Context) error {
	userID, err := s.auth.userID(c)
	if err != nil {
		return message(c, http.StatusUnauthorized, err.Error())
	}
	var fields domain.TaskFields
	if err := decodeBody(c, &fields); err != nil {
		return validationStatus(c, err)
	}
	if fields.OwnerID != "" && fields.OwnerID != userID {
		return message(c, http.StatusForbidden, "cannot create tasks for another user")
	}
	fields.OwnerID = userID
	if err := fields.Validate(); err != nil {
		return validationStatus(c, err)
	}
	t := s.store.create(userID, fields)
	s.logger.WithFields(log.Fields{"task_id": t.ID, "user_id": userID}).Debug("mockapi.task.created")
	return c.JSON(http.StatusCreated, toLegacy(t))
}

func (s *Server) patchTask(c echo.Context) error {
	userID, err := s.auth.userID(c)
	if err != nil {
		return message(c, http.StatusUnauthorized, err.Error())
	}
	var patch domain.TaskPatch
	if err := decodeBody(c, &patch); err != nil {
		return validationStatus(c, err)
	}
	if err := patch.Validate(); err != nil {
		return validationStatus(c, err)
	}
	return s.applyPatch(c, userID, patch)
}

func (s *Server) putTaskStatus(c echo.Context) error {
	userID, err := s.auth.userID(c)
	if err != nil {
		return message(c, http.StatusUnauthorized, err.Error())
	}
	var body struct {
		Status *domain.Status `json:"status"`
	}
	if err := decodeBody(c, &body); err != nil {
		return validationStatus(c, err)
	}
	if body.Status == nil {
		return message(c, http.StatusBadRequest, "status is required")
	}
	return s.applyPatch(c, userID, domain.TaskPatch{Status: body.Status})
}

func (s *Server) applyPatch(c echo.Context, userID string, patch domain.TaskPatch) error {
	t, err := s.store.update(userID, c.Param("id"), patch)
	if errors.Is(err, errTaskNotFound) {
		return message(c, http.StatusNotFound, "Task not found")
	}
	if err != nil {
		return message(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toLegacy(t))
}

func (s *Server) deleteTask(c echo.Context) error {
	userID, err := s.auth.userID(c)
	if err != nil {
		return message(c, http.StatusUnauthorized, err.Error())
	}
	if err := s.store.remove(userID, c.Param("id")); err != nil {
		if errors.Is(err, errTaskNotFound) {
			return message(c, http.StatusNotFound, "Task not found")
		}
		return message(c, http.StatusInternalServerError, err.Error())
	}
	return message(c, http.StatusOK, "Task deleted")
}
