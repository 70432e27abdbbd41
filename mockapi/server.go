// Package mockapi serves an in-memory copy of the remote task and auth API.
// It backs `prism-board serve-mock` and the end-to-end tests of the client
// packages.
package mockapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"
)

// Server is an echo application over a Store.
type Server struct {
	store  *Store
	auth   *Auth
	logger *log.Logger
	faults faultQueue
	echo   *echo.Echo
}

// New builds the echo application. A nil logger uses a fresh logrus logger.
func New(store *Store, auth *Auth, logger *log.Logger) *Server {
	if store == nil {
		store = NewStore()
	}
	if auth == nil {
		panic("mockapi.New: auth is nil")
	}
	if logger == nil {
		logger = log.New()
	}
	s := &Server{store: store, auth: auth, logger: logger}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Request-ID"},
	}))
	e.Use(requestLogger(logger))
	e.Use(s.faults.middleware())
	s.register(e)
	s.echo = e
	return s
}

// Store returns the backing store.
func (s *Server) Store() *Store { return s.store }

// Auth returns the token issuer.
func (s *Server) Auth() *Auth { return s.auth }

// ServeHTTP makes Server usable with httptest.NewServer.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// FailNext makes the next request to method+route answer with status.
// route is the echo pattern, e.g. "/tasks/:id".
func (s *Server) FailNext(method, route string, status int, msg string) {
	s.faults.push(method, route, Fault{Status: status, Message: msg})
}

// InjectFault queues an arbitrary fault for method+route.
func (s *Server) InjectFault(method, route string, f Fault) {
	s.faults.push(method, route, f)
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.WithField("addr", addr).Info("mockapi.listening")
	err := s.echo.Start(addr)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func requestLogger(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			fields := log.Fields{
				"route":      c.Path(),
				"method":     c.Request().Method,
				"status":     c.Response().Status,
				"total_ms":   float64(time.Since(start)) / float64(time.Millisecond),
				"request_id": c.Request().Header.Get("X-Request-ID"),
			}
			if err != nil {
				fields["error"] = err.Error()
			}
			logger.WithFields(fields).Debug("mockapi.request")
			return nil
		}
	}
}
