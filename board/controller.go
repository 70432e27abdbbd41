// Package board keeps a three-column view of the user's tasks in sync with
// the remote service. Column moves are applied optimistically and reconciled
// when the remote answers.
package board

import (
	"context"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"

	"prism-board/domain"
	"prism-board/observe"
)

// TaskService is the part of the task client the board needs.
type TaskService interface {
	List(ctx context.Context, f domain.Filter) ([]domain.Task, error)
	UpdateStatus(ctx context.Context, id string, status domain.Status) (domain.Task, error)
}

// Move drags TaskID from From[FromIndex] to To[ToIndex].
type Move struct {
	TaskID    string
	From      domain.Status
	FromIndex int
	To        domain.Status
	ToIndex   int
}

// Controller owns the board snapshot. It is safe for concurrent use; the
// lock is never held across remote calls.
type Controller struct {
	tasks  TaskService
	logger *log.Logger

	mu    sync.Mutex
	board domain.Board
	// epoch changes on every wholesale replacement (Load).
	epoch uint64
	// version changes on every mutation of board.
	version uint64
	// pending holds the newest unsettled status change per task.
	pending map[string]pendingMove
	nextGen uint64
	loadSeq uint64

	// pubMu orders notifications; published is the newest version delivered.
	pubMu     sync.Mutex
	published uint64
	subs      observe.Registry[domain.Board]
}

// pendingMove tracks the status change in flight for one task. base is the
// last copy of the task the remote confirmed.
type pendingMove struct {
	gen  uint64
	base domain.Task
}

// New creates a Controller with an empty board.
func New(tasks TaskService, logger *log.Logger) *Controller {
	if tasks == nil {
		panic("board.New: task service is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	b, _ := domain.NewBoard(nil)
	return &Controller{
		tasks:   tasks,
		logger:  logger,
		board:   b,
		pending: make(map[string]pendingMove),
	}
}

// Board returns a copy of the current board.
func (c *Controller) Board() domain.Board {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.board.Clone()
}

// Subscribe registers fn for every board change. fn receives its own copy.
// Notifications arrive in mutation order; a snapshot older than one already
// delivered is skipped.
func (c *Controller) Subscribe(fn func(domain.Board)) (cancel func()) {
	return c.subs.Subscribe(func(b domain.Board) { fn(b.Clone()) })
}

// publish delivers snap, taken at version, unless something newer went out.
func (c *Controller) publish(snap domain.Board, version uint64) {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	if version <= c.published {
		return
	}
	c.published = version
	c.subs.Publish(snap)
}

// Load fetches every task and replaces the board. Outcomes of moves still
// in flight are discarded once a load lands. On error the board is left as
// it was.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	c.loadSeq++
	seq := c.loadSeq
	c.mu.Unlock()

	tasks, err := c.tasks.List(ctx, domain.Filter{})
	if err != nil {
		return err
	}
	b, err := domain.NewBoard(tasks)
	if err != nil {
		return &domain.RemoteError{Message: "inconsistent task list: " + err.Error(), Err: err}
	}

	c.mu.Lock()
	if seq != c.loadSeq {
		c.mu.Unlock()
		c.logger.WithField("load", seq).Debug("board.load.superseded")
		return nil
	}
	c.board = b
	c.epoch++
	c.version++
	c.pending = make(map[string]pendingMove)
	snap, version := c.board.Clone(), c.version
	c.mu.Unlock()

	c.logger.WithField("tasks", len(tasks)).Debug("board.loaded")
	c.publish(snap, version)
	return nil
}

// moveTx is an applied, not yet settled move.
type moveTx struct {
	move     Move
	prev     domain.Task
	base     domain.Task
	snapshot domain.Board
	gen      uint64
	epoch    uint64
	version  uint64
}

// Move applies m locally, notifies observers and, for cross-column moves,
// persists the new status. When the remote call fails and no newer status
// change of the same task or reload happened in between, the task returns to
// its last confirmed status and a *domain.SyncError is returned. A superseded
// outcome is dropped and Move returns nil. Reordering within a column is
// local only and never supersedes a status change in flight.
func (c *Controller) Move(ctx context.Context, m Move) error {
	tx, noop, err := c.begin(m)
	if err != nil || noop || m.From == m.To {
		return err
	}

	updated, err := c.tasks.UpdateStatus(ctx, m.TaskID, m.To)
	if err != nil {
		return c.rollback(tx, err)
	}
	c.commit(tx, updated)
	return nil
}

func (c *Controller) begin(m Move) (*moveTx, bool, error) {
	c.mu.Lock()
	if err := validateMove(c.board, m); err != nil {
		c.mu.Unlock()
		return nil, false, err
	}
	if m.From == m.To && m.FromIndex == m.ToIndex {
		c.mu.Unlock()
		return nil, true, nil
	}

	tx := &moveTx{move: m, snapshot: c.board.Clone(), epoch: c.epoch}
	t := c.board.Remove(m.From, m.FromIndex)
	tx.prev = t
	t.Status = m.To
	c.board.Insert(m.To, m.ToIndex, t)
	c.version++
	tx.version = c.version
	if m.From != m.To {
		c.nextGen++
		tx.gen = c.nextGen
		p, ok := c.pending[m.TaskID]
		if !ok {
			p.base = tx.prev
		}
		p.gen = tx.gen
		c.pending[m.TaskID] = p
		tx.base = p.base
	}
	snap := c.board.Clone()
	c.mu.Unlock()

	c.logger.WithFields(log.Fields{
		"task_id": m.TaskID,
		"from":    m.From,
		"to":      m.To,
		"gen":     tx.gen,
	}).Debug("board.move.applied")
	c.publish(snap, tx.version)
	return tx, false, nil
}

// current reports whether tx is still the newest status change of its task.
// Callers hold c.mu.
func (c *Controller) current(tx *moveTx) bool {
	p, ok := c.pending[tx.move.TaskID]
	return ok && c.epoch == tx.epoch && p.gen == tx.gen
}

func (c *Controller) commit(tx *moveTx, updated domain.Task) {
	c.mu.Lock()
	if !c.current(tx) {
		// A newer change is still in flight; remember what the remote now holds
		// in case that one fails.
		if p, ok := c.pending[tx.move.TaskID]; ok && c.epoch == tx.epoch && updated.ID == tx.move.TaskID {
			p.base = updated
			c.pending[tx.move.TaskID] = p
		}
		c.mu.Unlock()
		c.logger.WithField("task_id", tx.move.TaskID).Debug("board.move.superseded")
		return
	}
	delete(c.pending, tx.move.TaskID)
	var snap domain.Board
	var version uint64
	if col, i, ok := c.board.Locate(tx.move.TaskID); ok && col == tx.move.To && updated.ID == tx.move.TaskID && updated.Status == col {
		if c.board[col][i] != updated {
			c.board[col][i] = updated
			c.version++
			snap, version = c.board.Clone(), c.version
		}
	}
	c.mu.Unlock()

	if snap != nil {
		c.publish(snap, version)
	}
}

func (c *Controller) rollback(tx *moveTx, cause error) error {
	c.mu.Lock()
	if !c.current(tx) {
		c.mu.Unlock()
		c.logger.WithError(cause).WithField("task_id", tx.move.TaskID).Debug("board.move.superseded")
		return nil
	}
	delete(c.pending, tx.move.TaskID)
	// The snapshot is exact only when nothing changed since this move and it
	// was taken with the task at its confirmed status.
	exact := c.version == tx.version && tx.base.Status == tx.move.From
	if exact {
		c.board = tx.snapshot
	} else if col, i, ok := c.board.Locate(tx.move.TaskID); ok {
		c.board.Remove(col, i)
		at := len(c.board[tx.base.Status])
		if tx.base.Status == tx.move.From {
			at = tx.move.FromIndex
		}
		c.board.Insert(tx.base.Status, at, tx.base)
	}
	c.version++
	snap, version := c.board.Clone(), c.version
	c.mu.Unlock()

	c.logger.WithError(cause).WithFields(log.Fields{
		"task_id": tx.move.TaskID,
		"status":  tx.base.Status,
		"exact":   exact,
	}).Warn("board.move.rolled_back")
	c.publish(snap, version)
	return &domain.SyncError{TaskID: tx.move.TaskID, RolledBack: true, Err: cause}
}

func validateMove(b domain.Board, m Move) error {
	if m.TaskID == "" {
		return &domain.ValidationError{Field: "taskId", Message: "task id is required"}
	}
	if !m.From.Valid() {
		return &domain.ValidationError{Field: "from", Message: "unknown status " + string(m.From)}
	}
	if !m.To.Valid() {
		return &domain.ValidationError{Field: "to", Message: "unknown status " + string(m.To)}
	}
	from := b[m.From]
	if m.FromIndex < 0 || m.FromIndex >= len(from) {
		return &domain.ValidationError{Field: "fromIndex", Message: "index " + strconv.Itoa(m.FromIndex) + " out of range"}
	}
	limit := len(b[m.To])
	if m.From == m.To {
		limit = len(from) - 1
	}
	if m.ToIndex < 0 || m.ToIndex > limit {
		return &domain.ValidationError{Field: "toIndex", Message: "index " + strconv.Itoa(m.ToIndex) + " out of range"}
	}
	if from[m.FromIndex].ID != m.TaskID {
		return &domain.ValidationError{Field: "taskId", Message: "task " + m.TaskID + " is not at " + string(m.From) + "[" + strconv.Itoa(m.FromIndex) + "]"}
	}
	return nil
}
