package domain

import "fmt"

// Board partitions tasks by status. Each task id appears in exactly one
// partition.
type Board map[Status][]Task

// NewBoard partitions tasks by status preserving their relative order. It
// fails on unknown statuses and duplicate ids.
func NewBoard(tasks []Task) (Board, error) {
	b := make(Board, len(Statuses))
	for _, st := range Statuses {
		b[st] = []Task{}
	}
	seen := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		if !t.Status.Valid() {
			return nil, fmt.Errorf("task %s has unknown status %q", t.ID, t.Status)
		}
		if _, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("duplicate task id %s", t.ID)
		}
		seen[t.ID] = struct{}{}
		b[t.Status] = append(b[t.Status], t)
	}
	return b, nil
}

// Clone returns a deep copy; DueDate pointers are shared since they are
// never mutated in place.
func (b Board) Clone() Board {
	out := make(Board, len(b))
	for st, col := range b {
		cp := make([]Task, len(col))
		copy(cp, col)
		out[st] = cp
	}
	return out
}

// Len is the number of tasks across all partitions.
func (b Board) Len() int {
	n := 0
	for _, col := range b {
		n += len(col)
	}
	return n
}

// Locate finds the partition and index holding id.
func (b Board) Locate(id string) (Status, int, bool) {
	for _, st := range Statuses {
		for i, t := range b[st] {
			if t.ID == id {
				return st, i, true
			}
		}
	}
	return "", 0, false
}

// Remove deletes and returns the task at col[i].
func (b Board) Remove(col Status, i int) Task {
	tasks := b[col]
	t := tasks[i]
	out := make([]Task, 0, len(tasks)-1)
	out = append(out, tasks[:i]...)
	out = append(out, tasks[i+1:]...)
	b[col] = out
	return t
}

// Insert places t at col[i], shifting later tasks. i is clamped to the
// partition bounds.
func (b Board) Insert(col Status, i int, t Task) {
	tasks := b[col]
	if i < 0 {
		i = 0
	}
	if i > len(tasks) {
		i = len(tasks)
	}
	out := make([]Task, 0, len(tasks)+1)
	out = append(out, tasks[:i]...)
	out = append(out, t)
	out = append(out, tasks[i:]...)
	b[col] = out
}

// Flatten returns every task in column then index order.
func (b Board) Flatten() []Task {
	out := make([]Task, 0, b.Len())
	for _, st := range Statuses {
		out = append(out, b[st]...)
	}
	return out
}

// Check verifies the partition invariants: every task sits in the column of
// its status and no id appears twice.
func (b Board) Check() error {
	seen := make(map[string]Status, b.Len())
	for st, col := range b {
		if !st.Valid() {
			return fmt.Errorf("unknown partition %q", st)
		}
		for _, t := range col {
			if prev, dup := seen[t.ID]; dup {
				return fmt.Errorf("task %s in both %s and %s", t.ID, prev, st)
			}
			seen[t.ID] = st
			if t.Status != st {
				return fmt.Errorf("task %s has status %s but sits in %s", t.ID, t.Status, st)
			}
		}
	}
	return nil
}
