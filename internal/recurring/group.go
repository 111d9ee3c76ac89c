package recurring

import (
	"regexp"
	"sort"
	"strings"

	"recur/internal/core"
)

var digitRuns = regexp.MustCompile(`\d+`)

// CounterpartyKey normalizes a transaction label by removing every run of
// digits and trimming the surrounding whitespace. Keys are compared exactly.
func CounterpartyKey(name string) string {
	return strings.TrimSpace(digitRuns.ReplaceAllString(name, ""))
}

// Groups maps a counterparty key to its transactions in input order.
type Groups map[string][]core.Transaction

// Group partitions transactions by counterparty key. Members keep the order
// in which they appear in txs.
func Group(txs []core.Transaction) Groups {
	groups := make(Groups)
	for _, tx := range txs {
		key := CounterpartyKey(tx.Name)
		groups[key] = append(groups[key], tx)
	}
	return groups
}

// Keys returns the group keys in lexicographic order.
func (g Groups) Keys() []string {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
