package filter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/murmur/internal/event"
)

func int64p(v int64) *int64 { return &v }

func sampleEvent() *event.Event {
	return &event.Event{
		ID:        "id1",
		PubKey:    "alice",
		CreatedAt: 1000,
		Kind:      1,
		Tags: [][]string{
			{"e", "ref1"},
			{"p", "bob"},
		},
		Content: "hello",
	}
}

func TestMatches_EmptyFilterMatchesEverything(t *testing.T) {
	f := Filter{}
	assert.True(t, f.Matches(sampleEvent()))
}

func TestMatches_FieldsConjunct(t *testing.T) {
	ev := sampleEvent()

	f := Filter{Authors: []string{"alice"}, Kinds: []int{1}}
	assert.True(t, f.Matches(ev))

	// One failing field fails the whole filter.
	f = Filter{Authors: []string{"alice"}, Kinds: []int{2}}
	assert.False(t, f.Matches(ev))
}

func TestMatches_ValuesDisjunct(t *testing.T) {
	ev := sampleEvent()

	f := Filter{Authors: []string{"carol", "alice"}}
	assert.True(t, f.Matches(ev))

	f = Filter{Kinds: []int{7, 1, 3}}
	assert.True(t, f.Matches(ev))

	f = Filter{IDs: []string{"other", "id1"}}
	assert.True(t, f.Matches(ev))
}

func TestMatches_TimeWindow(t *testing.T) {
	ev := sampleEvent() // created_at 1000

	assert.True(t, (&Filter{Since: int64p(1000)}).Matches(ev), "since is inclusive")
	assert.True(t, (&Filter{Until: int64p(1000)}).Matches(ev), "until is inclusive")
	assert.False(t, (&Filter{Since: int64p(1001)}).Matches(ev))
	assert.False(t, (&Filter{Until: int64p(999)}).Matches(ev))
	assert.True(t, (&Filter{Since: int64p(500), Until: int64p(1500)}).Matches(ev))
}

func TestMatches_Tags(t *testing.T) {
	ev := sampleEvent()

	// Values within one name disjunct.
	f := Filter{Tags: map[string][]string{"e": {"nope", "ref1"}}}
	assert.True(t, f.Matches(ev))

	// Names conjunct: both must be satisfied.
	f = Filter{Tags: map[string][]string{"e": {"ref1"}, "p": {"bob"}}}
	assert.True(t, f.Matches(ev))

	f = Filter{Tags: map[string][]string{"e": {"ref1"}, "p": {"carol"}}}
	assert.False(t, f.Matches(ev))

	// A name the event does not carry at all.
	f = Filter{Tags: map[string][]string{"t": {"topic"}}}
	assert.False(t, f.Matches(ev))
}

func TestMatchesAny(t *testing.T) {
	ev := sampleEvent()

	assert.False(t, MatchesAny(nil, ev), "empty list matches nothing")

	filters := []Filter{
		{Kinds: []int{7}},
		{Authors: []string{"alice"}},
	}
	assert.True(t, MatchesAny(filters, ev))

	filters = []Filter{
		{Kinds: []int{7}},
		{Authors: []string{"carol"}},
	}
	assert.False(t, MatchesAny(filters, ev))
}

func TestValidate(t *testing.T) {
	f := Filter{Tags: map[string][]string{"e": {"x"}, "P": {"y"}}}
	assert.NoError(t, f.Validate())

	f = Filter{Tags: map[string][]string{"ee": {"x"}}}
	assert.Error(t, f.Validate())

	f = Filter{Tags: map[string][]string{"1": {"x"}}}
	assert.Error(t, f.Validate())

	f = Filter{Limit: -1}
	assert.Error(t, f.Validate())
}

func TestUnmarshalJSON(t *testing.T) {
	raw := `{
		"ids": ["id1"],
		"authors": ["alice", "bob"],
		"kinds": [1, 7],
		"#e": ["ref1", "ref2"],
		"#p": ["carol"],
		"since": 100,
		"until": 200,
		"limit": 50,
		"unknown_key": "ignored"
	}`

	var f Filter
	require.NoError(t, json.Unmarshal([]byte(raw), &f))

	assert.Equal(t, []string{"id1"}, f.IDs)
	assert.Equal(t, []string{"alice", "bob"}, f.Authors)
	assert.Equal(t, []int{1, 7}, f.Kinds)
	assert.Equal(t, map[string][]string{"e": {"ref1", "ref2"}, "p": {"carol"}}, f.Tags)
	require.NotNil(t, f.Since)
	assert.Equal(t, int64(100), *f.Since)
	require.NotNil(t, f.Until)
	assert.Equal(t, int64(200), *f.Until)
	assert.Equal(t, 50, f.Limit)
}

func TestUnmarshalJSON_BadTagValues(t *testing.T) {
	var f Filter
	err := json.Unmarshal([]byte(`{"#e": "not-an-array"}`), &f)
	assert.Error(t, err)
}

func TestJSONRoundTrip(t *testing.T) {
	orig := Filter{
		Authors: []string{"alice"},
		Kinds:   []int{1},
		Tags:    map[string][]string{"e": {"ref1"}},
		Since:   int64p(100),
		Limit:   10,
	}

	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var back Filter
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, orig, back)
}
