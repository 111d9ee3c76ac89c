package recurring

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recur/internal/core"
)

func mustDate(t *testing.T, s string) core.Date {
	t.Helper()
	d, err := core.ParseDate(s)
	require.NoError(t, err)
	return d
}

func newTx(t *testing.T, id, name string, amount float64, date string) core.Transaction {
	t.Helper()
	return core.Transaction{ID: id, UserID: "1", Name: name, Amount: amount, Date: mustDate(t, date)}
}

func ids(txs []core.Transaction) []string {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = tx.ID
	}
	return out
}

func TestAmountsMatchReflexive(t *testing.T) {
	for _, a := range []float64{0, 0.01, 9.99, 100, 1234.56, -42.5} {
		for _, tol := range []float64{0, 5, 10, 50} {
			assert.True(t, AmountsMatch(a, a, tol), "AmountsMatch(%v, %v, %v)", a, a, tol)
		}
	}
}

func TestAmountsMatchIsAsymmetric(t *testing.T) {
	// 100's band at 10% is [90, 110]; 111's band is [99.9, 122.1].
	assert.False(t, AmountsMatch(100, 111, 10))
	assert.True(t, AmountsMatch(111, 100, 10))
}

func TestAmountsMatchRules(t *testing.T) {
	tests := []struct {
		name   string
		a1, a2 float64
		tol    float64
		want   bool
	}{
		{"equal", 12.5, 12.5, 0, true},
		{"same integer part", 9.01, 9.99, 0, true},
		{"floor not round", 9.6, 10.4, 0, false},
		{"inside band", 100, 95, 10, true},
		{"band edge", 100, 110, 10, true},
		{"outside band", 100, 121, 10, false},
		{"zero tolerance", 100, 101, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AmountsMatch(tt.a1, tt.a2, tt.tol))
		})
	}
}

func TestDatesMatch(t *testing.T) {
	tests := []struct {
		g1, g2, tol int
		want        bool
	}{
		{30, 30, 0, true},
		{30, 33, 3, true},
		{30, 27, 3, true},
		{30, 34, 3, false},
		{30, 26, 3, false},
		{7, 8, 0, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DatesMatch(tt.g1, tt.g2, tt.tol), "DatesMatch(%d, %d, %d)", tt.g1, tt.g2, tt.tol)
	}
}

func TestCounterpartyKey(t *testing.T) {
	tests := map[string]string{
		"Netflix 123":        "Netflix",
		"  Netflix  ":        "Netflix",
		"123 Netflix 456":    "Netflix",
		"AT&T 12 Payment 34": "AT&T  Payment",
		"netflix":            "netflix",
		"2018":               "",
	}
	for in, want := range tests {
		assert.Equal(t, want, CounterpartyKey(in), "CounterpartyKey(%q)", in)
	}
}

func TestGroupIsDeterministic(t *testing.T) {
	txs := []core.Transaction{
		newTx(t, "a", "Netflix 1", 9.99, "2018-03-02"),
		newTx(t, "b", "Amazon", 20, "2018-03-01"),
		newTx(t, "c", "Netflix 2", 9.99, "2018-01-31"),
		newTx(t, "d", "netflix", 9.99, "2018-01-01"),
	}

	first := Group(txs)
	second := Group(txs)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"Amazon", "Netflix", "netflix"}, first.Keys())
	assert.Equal(t, []string{"a", "c"}, ids(first["Netflix"]))
	assert.Empty(t, Group(nil))
}

func TestDayGaps(t *testing.T) {
	group := []core.Transaction{
		newTx(t, "a", "x", 1, "2018-03-22"),
		newTx(t, "b", "x", 1, "2018-03-12"),
		newTx(t, "c", "x", 1, "2018-03-01"),
	}
	assert.Equal(t, []int{10, 11}, DayGaps(group))
	assert.Nil(t, DayGaps(group[:1]))
}

func TestFindAmountMatchesSkipsAhead(t *testing.T) {
	e := NewEngine(Config{AmountTolerancePercent: 10, DateToleranceDays: 0})
	group := []core.Transaction{
		newTx(t, "a", "x", 10, "2018-04-01"),
		newTx(t, "b", "x", 50, "2018-03-01"),
		newTx(t, "c", "x", 10, "2018-02-01"),
		newTx(t, "d", "x", 50, "2018-01-01"),
	}

	set := e.FindAmountMatches(group)
	// After (a, c) matches the scan continues from c, so b and d are never paired.
	assert.Equal(t, []string{"a", "c"}, ids(set.Transactions()))
}

func TestFindDateMatchesAddsFollowingTransaction(t *testing.T) {
	e := NewEngine(Config{AmountTolerancePercent: 0, DateToleranceDays: 3})
	group := []core.Transaction{
		newTx(t, "a", "x", 1, "2018-05-06"),
		newTx(t, "b", "x", 200, "2018-04-06"),
		newTx(t, "c", "x", 3000, "2018-04-01"),
		newTx(t, "d", "x", 40000, "2018-03-02"),
	}
	require.Equal(t, []int{30, 5, 30}, DayGaps(group))

	set := e.FindDateMatches(group)
	assert.Equal(t, []string{"a", "c", "d"}, ids(set.Transactions()))
}

func TestUnionDoesNotMutateOperands(t *testing.T) {
	a := newSet()
	a.add(0, newTx(t, "a", "x", 1, "2018-03-01"))
	b := newSet()
	b.add(1, newTx(t, "b", "x", 1, "2018-02-01"))
	b.add(0, newTx(t, "a", "x", 1, "2018-03-01"))

	u := Union(a, b)
	assert.Equal(t, 2, u.Len())
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, 0, Union(Set{}, Set{}).Len())
}

func TestBuildEstimateRoundsMeanGapUp(t *testing.T) {
	members := []core.Transaction{
		newTx(t, "c", "Gym", 30, "2018-03-01"),
		newTx(t, "a", "Gym 2", 35, "2018-03-22"),
		newTx(t, "b", "Gym", 30, "2018-03-12"),
	}

	est, err := BuildEstimate(members)
	require.NoError(t, err)
	// Gaps are 10 and 11 days; the mean 10.5 rounds up to 11.
	assert.Equal(t, "2018-04-02", est.NextDate.String())
	assert.Equal(t, 35.0, est.NextAmount)
	assert.Equal(t, "Gym 2", est.Name)
	assert.Equal(t, []string{"a", "b", "c"}, ids(est.Transactions))
	assert.Equal(t, "c", members[0].ID, "input must not be reordered")
}

func TestBuildEstimateRejectsTooFewMembers(t *testing.T) {
	_, err := BuildEstimate([]core.Transaction{newTx(t, "a", "x", 1, "2018-01-01")})
	assert.ErrorIs(t, err, ErrInvariantViolation)

	_, err = BuildEstimate(nil)
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestDetectSkipsSmallGroups(t *testing.T) {
	e := NewEngine(DefaultConfig())
	res, err := e.Detect([]core.Transaction{
		newTx(t, "a", "Netflix", 9.99, "2018-02-01"),
		newTx(t, "b", "Netflix", 9.99, "2018-01-01"),
	})
	require.NoError(t, err)
	assert.Empty(t, res.Estimates)
	assert.NotNil(t, res.Estimates)
	assert.Empty(t, res.Matched)
}

func TestDetectEmptyInput(t *testing.T) {
	res, err := NewEngine(DefaultConfig()).Detect(nil)
	require.NoError(t, err)
	assert.Empty(t, res.Estimates)
}

func TestDetectThreeMatchingMembers(t *testing.T) {
	e := NewEngine(DefaultConfig())
	res, err := e.Detect([]core.Transaction{
		newTx(t, "a", "Spotify", 4.99, "2018-05-20"),
		newTx(t, "b", "Spotify", 4.99, "2018-03-02"),
		newTx(t, "c", "Spotify", 4.99, "2018-01-01"),
	})
	require.NoError(t, err)
	require.Len(t, res.Estimates, 1)
	assert.Equal(t, []string{"a", "b", "c"}, ids(res.Estimates[0].Transactions))
	assert.Equal(t, []string{"a", "b", "c"}, ids(res.Matched))
}

func TestDetectNetflixEndToEnd(t *testing.T) {
	e := NewEngine(Config{AmountTolerancePercent: 10, DateToleranceDays: 3})
	txs := []core.Transaction{
		newTx(t, "n3", "NETFLIX 0318", 9.99, "2018-03-02"),
		newTx(t, "s1", "Starbucks", 4.5, "2018-02-14"),
		newTx(t, "n2", "NETFLIX 0118", 9.99, "2018-01-31"),
		newTx(t, "n1", "NETFLIX 1217", 9.99, "2018-01-01"),
	}

	res, err := e.Detect(txs)
	require.NoError(t, err)
	require.Len(t, res.Estimates, 1)

	est := res.Estimates[0]
	assert.Equal(t, 9.99, est.NextAmount)
	assert.Equal(t, "2018-04-01", est.NextDate.String())
	assert.Equal(t, "NETFLIX 0318", est.Name)
	assert.Equal(t, "1", est.UserID)
	assert.Len(t, est.Transactions, 3)

	b, err := json.Marshal(est)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"next_amt":9.99`)
	assert.Contains(t, string(b), `"next_date":"2018-04-01"`)
}

func TestDetectOrdersEstimatesByKey(t *testing.T) {
	e := NewEngine(DefaultConfig())
	var txs []core.Transaction
	for i, d := range []string{"2018-03-01", "2018-02-01", "2018-01-01"} {
		txs = append(txs,
			newTx(t, "z"+d, "Zumba", 20, d),
			newTx(t, "a"+string(rune('0'+i)), "Apple", 0.99, d),
		)
	}

	res, err := e.Detect(txs)
	require.NoError(t, err)
	require.Len(t, res.Estimates, 2)
	assert.Equal(t, "Apple", res.Estimates[0].Name)
	assert.Equal(t, "Zumba", res.Estimates[1].Name)
}

func TestDetectIsIdempotent(t *testing.T) {
	e := NewEngine(DefaultConfig())
	txs := []core.Transaction{
		newTx(t, "n3", "NETFLIX", 9.99, "2018-03-02"),
		newTx(t, "n2", "NETFLIX", 9.99, "2018-01-31"),
		newTx(t, "n1", "NETFLIX", 9.99, "2018-01-01"),
		newTx(t, "g1", "Gym", 40, "2018-02-10"),
	}

	first, err := e.Detect(txs)
	require.NoError(t, err)

	matched := map[string]bool{}
	for _, tx := range first.Matched {
		matched[tx.ID] = true
	}
	flagged := make([]core.Transaction, len(txs))
	for i, tx := range txs {
		tx.IsRecurring = matched[tx.ID]
		flagged[i] = tx
	}

	second, err := e.Detect(flagged)
	require.NoError(t, err)
	require.Len(t, second.Estimates, len(first.Estimates))
	for i := range first.Estimates {
		assert.Equal(t, first.Estimates[i].NextAmount, second.Estimates[i].NextAmount)
		assert.Equal(t, first.Estimates[i].NextDate, second.Estimates[i].NextDate)
		assert.Equal(t, ids(first.Estimates[i].Transactions), ids(second.Estimates[i].Transactions))
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{AmountTolerancePercent: -1}.Validate())
	assert.Error(t, Config{DateToleranceDays: -1}.Validate())
}
