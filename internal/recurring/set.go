package recurring

import (
	"sort"

	"recur/internal/core"
)

// Set is a collection of a group's transactions keyed by transaction ID.
// Sets are values: matchers build fresh ones and Union never mutates its
// operands.
type Set struct {
	members map[string]member
}

type member struct {
	pos int
	tx  core.Transaction
}

func newSet() Set {
	return Set{members: make(map[string]member)}
}

// add records tx found at position pos of its group. The first position wins.
func (s Set) add(pos int, tx core.Transaction) {
	if _, ok := s.members[tx.ID]; ok {
		return
	}
	s.members[tx.ID] = member{pos: pos, tx: tx}
}

func (s Set) Len() int {
	return len(s.members)
}

// Transactions returns the members most recent first. Members on the same
// date keep their group order.
func (s Set) Transactions() []core.Transaction {
	ms := make([]member, 0, len(s.members))
	for _, m := range s.members {
		ms = append(ms, m)
	}
	sort.Slice(ms, func(i, j int) bool {
		if !ms[i].tx.Date.Equal(ms[j].tx.Date.Time) {
			return ms[i].tx.Date.After(ms[j].tx.Date.Time)
		}
		return ms[i].pos < ms[j].pos
	})

	txs := make([]core.Transaction, len(ms))
	for i, m := range ms {
		txs[i] = m.tx
	}
	return txs
}

// Union returns a new set holding the members of both a and b.
func Union(a, b Set) Set {
	out := Set{members: make(map[string]member, a.Len()+b.Len())}
	for _, s := range []Set{a, b} {
		for id, m := range s.members {
			if existing, ok := out.members[id]; ok && existing.pos <= m.pos {
				continue
			}
			out.members[id] = m
		}
	}
	return out
}
