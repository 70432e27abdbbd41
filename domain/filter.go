package domain

// Filter selects tasks by conjunction. Zero fields are unset and match
// everything.
type Filter struct {
	Status   Status   `json:"status,omitempty" yaml:"status"`
	Priority Priority `json:"priority,omitempty" yaml:"priority"`
}

// ParseFilter builds a Filter from user supplied labels. Empty strings leave
// the field unset.
func ParseFilter(status, priority string) (Filter, error) {
	var f Filter
	if status != "" {
		st, err := ParseStatus(status)
		if err != nil {
			return Filter{}, err
		}
		f.Status = st
	}
	if priority != "" {
		pr, err := ParsePriority(priority)
		if err != nil {
			return Filter{}, err
		}
		f.Priority = pr
	}
	return f, nil
}

// Validate rejects set fields holding values outside the enums.
func (f Filter) Validate() error {
	if f.Status != "" && !f.Status.Valid() {
		return &ValidationError{Field: "status", Message: "unknown status " + string(f.Status)}
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return &ValidationError{Field: "priority", Message: "unknown priority " + string(f.Priority)}
	}
	return nil
}

// Match reports whether t satisfies every set field.
func (f Filter) Match(t Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	return true
}

// Apply returns the tasks matching f, preserving order. The input is not
// modified.
func (f Filter) Apply(tasks []Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}
