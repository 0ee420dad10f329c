package filter

import "reflect"

type memoKey struct {
	typ reflect.Type
	key string
}

// Memo caches extracted predicate values for one dispatch attempt. It is not
// safe for concurrent use; each worker creates its own per attempt.
type Memo struct {
	values      map[memoKey]any
	extractions int
}

func NewMemo() *Memo {
	return &Memo{values: make(map[memoKey]any)}
}

// Extractions reports how many times a predicate's Extract actually ran.
func (m *Memo) Extractions() int {
	if m == nil {
		return 0
	}
	return m.extractions
}

func (m *Memo) value(p Predicate, in Input) any {
	if m == nil {
		return p.Extract(in)
	}
	key := keyOf(p)
	if v, ok := m.values[key]; ok {
		return v
	}
	v := p.Extract(in)
	m.values[key] = v
	m.extractions++
	return v
}

func keyOf(p Predicate) memoKey {
	if k, ok := p.(Keyed); ok {
		return memoKey{key: k.MemoKey()}
	}
	return memoKey{typ: reflect.TypeOf(p)}
}
