package fsm

import (
	"strings"

	"github.com/drblury/botflow/internal/runtime/filter"
)

// InState is a filter predicate matching updates whose conversation is in
// one of States. The current state is loaded once per dispatch attempt no
// matter how many handlers test it.
type InState struct {
	States []*State
}

type currentState struct {
	state *State
}

func (InState) MemoKey() string { return "fsm.state" }

func (InState) Extract(in filter.Input) any {
	if in.Ctx == nil {
		return currentState{}
	}
	s, err := Current(in.Ctx)
	if err != nil {
		return currentState{}
	}
	return currentState{state: s}
}

func (p InState) Match(v any) bool {
	current := v.(currentState)
	if current.state == nil {
		return false
	}
	for _, s := range p.States {
		if s == current.state {
			return true
		}
	}
	return false
}

func (p InState) String() string {
	names := make([]string, len(p.States))
	for i, s := range p.States {
		names[i] = s.Name
	}
	return "state[" + strings.Join(names, ",") + "]"
}
