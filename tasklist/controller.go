// Package tasklist holds the flat task list with an active filter. Unlike
// the board it never updates optimistically: local state follows confirmed
// remote results only.
package tasklist

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"prism-board/domain"
	"prism-board/observe"
)

// TaskService is the part of the task client the list needs.
type TaskService interface {
	List(ctx context.Context, f domain.Filter) ([]domain.Task, error)
	Create(ctx context.Context, fields domain.TaskFields) (domain.Task, error)
	Patch(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error)
	Delete(ctx context.Context, id string) error
}

// Owner reports the id of the signed-in user.
type Owner interface {
	UserID() string
}

// View is what observers receive.
type View struct {
	Filter domain.Filter
	Tasks  []domain.Task
	All    []domain.Task
}

// Controller is safe for concurrent use.
type Controller struct {
	tasks  TaskService
	owner  Owner
	logger *log.Logger

	mu     sync.Mutex
	all    []domain.Task
	filter domain.Filter
	// loadSeq also advances on every confirmed write, so a list fetched
	// before the write never lands after it.
	loadSeq uint64
	version uint64

	pubMu     sync.Mutex
	published uint64
	subs      observe.Registry[View]
}

// New creates an empty Controller. owner may be nil, in which case Create
// requires an explicit OwnerID.
func New(tasks TaskService, owner Owner, logger *log.Logger) *Controller {
	if tasks == nil {
		panic("tasklist.New: task service is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Controller{tasks: tasks, owner: owner, logger: logger, all: []domain.Task{}}
}

// SetFilter validates and activates f, then reloads the list.
func (c *Controller) SetFilter(ctx context.Context, f domain.Filter) error {
	if err := f.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.filter = f
	view, version := c.changedLocked()
	c.mu.Unlock()
	c.publish(view, version)
	return c.Load(ctx)
}

// Load fetches every task; the filter is applied locally.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	c.loadSeq++
	seq := c.loadSeq
	c.mu.Unlock()

	tasks, err := c.tasks.List(ctx, domain.Filter{})
	if err != nil {
		return err
	}

	c.mu.Lock()
	if seq != c.loadSeq {
		c.mu.Unlock()
		c.logger.WithField("load", seq).Debug("tasklist.load.superseded")
		return nil
	}
	c.all = tasks
	view, version := c.changedLocked()
	c.mu.Unlock()

	c.logger.WithFields(log.Fields{"tasks": len(tasks), "visible": len(view.Tasks)}).Debug("tasklist.loaded")
	c.publish(view, version)
	return nil
}

// Delete removes id remotely and, once confirmed, locally. On failure the
// list is untouched.
func (c *Controller) Delete(ctx context.Context, id string) error {
	if err := c.tasks.Delete(ctx, id); err != nil {
		c.logger.WithError(err).WithField("task_id", id).Warn("tasklist.delete.failed")
		return err
	}

	c.mu.Lock()
	out := make([]domain.Task, 0, len(c.all))
	for _, t := range c.all {
		if t.ID != id {
			out = append(out, t)
		}
	}
	c.all = out
	c.loadSeq++
	view, version := c.changedLocked()
	c.mu.Unlock()

	c.publish(view, version)
	return nil
}

// Create stores a new task owned by the signed-in user and appends the
// server's copy.
func (c *Controller) Create(ctx context.Context, fields domain.TaskFields) (domain.Task, error) {
	if fields.OwnerID == "" && c.owner != nil {
		fields.OwnerID = c.owner.UserID()
	}
	t, err := c.tasks.Create(ctx, fields)
	if err != nil {
		return domain.Task{}, err
	}

	c.mu.Lock()
	all := make([]domain.Task, 0, len(c.all)+1)
	all = append(all, c.all...)
	c.all = append(all, t)
	c.loadSeq++
	view, version := c.changedLocked()
	c.mu.Unlock()

	c.publish(view, version)
	return t, nil
}

// Update applies patch remotely and replaces the local copy with the
// server's once confirmed. On failure the list is untouched.
func (c *Controller) Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	t, err := c.tasks.Patch(ctx, id, patch)
	if err != nil {
		c.logger.WithError(err).WithField("task_id", id).Warn("tasklist.update.failed")
		return domain.Task{}, err
	}

	c.mu.Lock()
	all := make([]domain.Task, len(c.all))
	copy(all, c.all)
	for i := range all {
		if all[i].ID == id {
			all[i] = t
		}
	}
	c.all = all
	c.loadSeq++
	view, version := c.changedLocked()
	c.mu.Unlock()

	c.publish(view, version)
	return t, nil
}

// Tasks returns the filtered projection.
func (c *Controller) Tasks() []domain.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter.Apply(c.all)
}

// All returns every loaded task.
func (c *Controller) All() []domain.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Task(nil), c.all...)
}

// Filter returns the active filter.
func (c *Controller) Filter() domain.Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// Subscribe registers fn for every list change. fn receives its own copy.
// Views arrive in change order; one older than a view already delivered is
// skipped.
func (c *Controller) Subscribe(fn func(View)) (cancel func()) {
	return c.subs.Subscribe(func(v View) {
		fn(View{
			Filter: v.Filter,
			Tasks:  append([]domain.Task(nil), v.Tasks...),
			All:    append([]domain.Task(nil), v.All...),
		})
	})
}

func (c *Controller) publish(v View, version uint64) {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	if version <= c.published {
		return
	}
	c.published = version
	c.subs.Publish(v)
}

// changedLocked records a change and returns the view to publish.
func (c *Controller) changedLocked() (View, uint64) {
	c.version++
	return c.viewLocked(), c.version
}

func (c *Controller) viewLocked() View {
	return View{
		Filter: c.filter,
		Tasks:  c.filter.Apply(c.all),
		All:    append([]domain.Task(nil), c.all...),
	}
}
