package fsm

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMagazinePush(t *testing.T) {
	tests := []struct {
		name  string
		start []string
		push  string
		want  []string
	}{
		{"append new", []string{"A"}, "B", []string{"A", "B"}},
		{"rewind to middle", []string{"A", "B", "C"}, "B", []string{"A", "B"}},
		{"rewind to first", []string{"A", "B", "C"}, "A", []string{"A"}},
		{"push current", []string{"A", "B"}, "B", []string{"A", "B"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := MagazineFrom(tt.start, "A")
			got := m.Push(tt.push)
			assert.Equal(t, tt.want, got.Names())
			assert.Equal(t, tt.start, m.Names(), "Push must not mutate the receiver")
		})
	}
}

func TestMagazinePushDoesNotShareBackingArray(t *testing.T) {
	base := MagazineFrom([]string{"A", "B", "C"}, "A")
	rewound := base.Push("B")
	extended := rewound.Push("D")

	assert.Equal(t, []string{"A", "B", "C"}, base.Names())
	assert.Equal(t, []string{"A", "B"}, rewound.Names())
	assert.Equal(t, []string{"A", "B", "D"}, extended.Names())
}

func TestMagazineCurrentAndPrevious(t *testing.T) {
	m := NewMagazine("start")
	assert.Equal(t, "start", m.Current())
	_, ok := m.Previous()
	assert.False(t, ok)

	m = m.Push("ask")
	prev, ok := m.Previous()
	assert.True(t, ok)
	assert.Equal(t, "start", prev)
	assert.Equal(t, "ask", m.Current())
	assert.Equal(t, 2, m.Len())
}

func TestMagazineFrom(t *testing.T) {
	assert.Equal(t, []string{"init"}, MagazineFrom(nil, "init").Names())
	assert.Equal(t, []string{"init"}, MagazineFrom([]string{}, "init").Names())
	assert.Equal(t, []string{"a", "b"}, MagazineFrom([]string{"a", "b"}, "init").Names())
	assert.Equal(t, []string{"a"}, MagazineFrom([]string{"a", "b", "a"}, "init").Names(), "repeats rewind")
}

func TestMagazineNamesIsACopy(t *testing.T) {
	m := MagazineFrom([]string{"a", "b"}, "a")
	names := m.Names()
	names[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, m.Names())
}

func TestMagazineInvariantsUnderRandomPushes(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	alphabet := []string{"A", "B", "C", "D", "E", "F"}

	m := NewMagazine("A")
	for i := 0; i < 500; i++ {
		name := alphabet[rng.Intn(len(alphabet))]
		before := m.Names()
		m = m.Push(name)
		names := m.Names()

		assert.NotEmpty(t, names)
		assert.Equal(t, name, m.Current())
		assert.Equal(t, len(names), len(uniq(names)), "duplicate in %v", names)

		if idx := slices.Index(before, name); idx >= 0 {
			assert.Equal(t, before[:idx+1], names)
		} else {
			assert.Equal(t, append(before, name), names)
		}
	}
}

func uniq(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}
