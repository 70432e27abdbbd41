package mockapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// Fault replaces the next response of a route.
type Fault struct {
	Status  int
	Message string
	// Delay is applied before the fault, or before the real handler when
	// Status is zero.
	Delay time.Duration
}

type faultQueue struct {
	mu     sync.Mutex
	queued map[string][]Fault
}

func faultKey(method, route string) string { return method + " " + route }

func (q *faultQueue) push(method, route string, f Fault) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.queued == nil {
		q.queued = make(map[string][]Fault)
	}
	key := faultKey(method, route)
	q.queued[key] = append(q.queued[key], f)
}

func (q *faultQueue) pop(method, route string) (Fault, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := faultKey(method, route)
	pending := q.queued[key]
	if len(pending) == 0 {
		return Fault{}, false
	}
	f := pending[0]
	if len(pending) == 1 {
		delete(q.queued, key)
	} else {
		q.queued[key] = pending[1:]
	}
	return f, true
}

func (q *faultQueue) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			f, ok := q.pop(c.Request().Method, c.Path())
			if !ok {
				return next(c)
			}
			if f.Delay > 0 {
				select {
				case <-time.After(f.Delay):
				case <-c.Request().Context().Done():
					return c.Request().Context().Err()
				}
			}
			if f.Status == 0 {
				return next(c)
			}
			msg := f.Message
			if msg == "" {
				msg = http.StatusText(f.Status)
			}
			return c.JSON(f.Status, messageResponse{Message: msg})
		}
	}
}
