package fsm

import "slices"

// Magazine is the navigation history of one conversation: an ordered list of
// state names that is never empty and never holds a name twice. The last
// name is the current state. Magazine values are immutable; Push returns a
// new one.
type Magazine struct {
	names []string
}

// NewMagazine returns a history positioned at initial.
func NewMagazine(initial string) Magazine {
	return Magazine{names: []string{initial}}
}

// MagazineFrom rebuilds a history from stored names, falling back to
// initial when nothing was stored. Names are replayed through Push so a
// corrupted list with repeats still yields a valid history.
func MagazineFrom(names []string, initial string) Magazine {
	if len(names) == 0 {
		return NewMagazine(initial)
	}
	m := Magazine{names: make([]string, 0, len(names))}
	for _, name := range names {
		m = m.Push(name)
	}
	return m
}

func (m Magazine) Current() string {
	return m.names[len(m.names)-1]
}

// Previous returns the second to last name, if any.
func (m Magazine) Previous() (string, bool) {
	if len(m.names) < 2 {
		return "", false
	}
	return m.names[len(m.names)-2], true
}

// Push moves the history to name. A name already present rewinds the
// history to that entry and drops everything after it; a new name is
// appended.
func (m Magazine) Push(name string) Magazine {
	if i := slices.Index(m.names, name); i >= 0 {
		return Magazine{names: slices.Clone(m.names[:i+1])}
	}
	next := make([]string, len(m.names), len(m.names)+1)
	copy(next, m.names)
	return Magazine{names: append(next, name)}
}

func (m Magazine) Names() []string {
	return slices.Clone(m.names)
}

func (m Magazine) Len() int {
	return len(m.names)
}
