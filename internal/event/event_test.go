package event_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/murmur/internal/event"
	"github.com/roach88/murmur/internal/testutil"
)

func TestSerialize_Canonical(t *testing.T) {
	ev := &event.Event{
		PubKey:    "ab12",
		CreatedAt: 1700000000,
		Kind:      1,
		Tags:      [][]string{{"e", "cafe"}},
		Content:   "hello",
	}

	got, err := ev.Serialize()
	require.NoError(t, err)
	assert.Equal(t, `[0,"ab12",1700000000,1,[["e","cafe"]],"hello"]`, string(got))
}

func TestSerialize_NilTagsAsEmptyArray(t *testing.T) {
	ev := &event.Event{PubKey: "ab12", Kind: 1, Content: "x"}

	got, err := ev.Serialize()
	require.NoError(t, err)
	assert.Contains(t, string(got), ",[],")
}

func TestSerialize_NoHTMLEscaping(t *testing.T) {
	ev := &event.Event{Kind: 1, Content: `<a href="x">&</a>`}

	got, err := ev.Serialize()
	require.NoError(t, err)
	assert.NotContains(t, string(got), `\u003c`)
	assert.Contains(t, string(got), `<a href=\"x\">&</a>`)
}

func TestComputeID_Deterministic(t *testing.T) {
	ev := &event.Event{
		PubKey:    strings.Repeat("a", 64),
		CreatedAt: 1700000000,
		Kind:      1,
		Tags:      [][]string{{"p", strings.Repeat("b", 64)}},
		Content:   "determinism",
	}

	first, err := ev.ComputeID()
	require.NoError(t, err)
	second, err := ev.ComputeID()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestComputeID_ChangesWithContent(t *testing.T) {
	a := &event.Event{Kind: 1, Content: "one"}
	b := &event.Event{Kind: 1, Content: "two"}

	idA, err := a.ComputeID()
	require.NoError(t, err)
	idB, err := b.ComputeID()
	require.NoError(t, err)

	assert.NotEqual(t, idA, idB)
}

func TestTagValue(t *testing.T) {
	ev := &event.Event{Tags: [][]string{
		{"solo"},
		{"e", "first"},
		{"e", "second"},
		{"d", "param"},
	}}

	v, ok := ev.TagValue("e")
	assert.True(t, ok)
	assert.Equal(t, "first", v)

	_, ok = ev.TagValue("x")
	assert.False(t, ok)

	_, ok = ev.TagValue("solo")
	assert.False(t, ok, "tags with a single element carry no value")

	assert.Equal(t, "param", ev.DTag())
}

func TestDTag_MissingIsEmpty(t *testing.T) {
	ev := &event.Event{Kind: 30000}
	assert.Equal(t, "", ev.DTag())
}

func TestExpiration(t *testing.T) {
	ev := &event.Event{Tags: [][]string{{"expiration", "1700000123"}}}
	ts, ok := ev.Expiration()
	assert.True(t, ok)
	assert.Equal(t, int64(1700000123), ts)

	ev = &event.Event{Tags: [][]string{{"expiration", "soon"}}}
	_, ok = ev.Expiration()
	assert.False(t, ok, "non-integer expiration is ignored")

	ev = &event.Event{}
	_, ok = ev.Expiration()
	assert.False(t, ok)
}

func TestClassOf(t *testing.T) {
	tests := []struct {
		kind int
		want event.Class
	}{
		{0, event.ClassReplaceable},
		{1, event.ClassRegular},
		{3, event.ClassReplaceable},
		{1984, event.ClassRegular},
		{10000, event.ClassReplaceable},
		{19999, event.ClassReplaceable},
		{20000, event.ClassEphemeral},
		{event.KindAuth, event.ClassEphemeral},
		{29999, event.ClassEphemeral},
		{30000, event.ClassParamReplaceable},
		{39999, event.ClassParamReplaceable},
		{40000, event.ClassRegular},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, event.ClassOf(tt.kind), "kind %d", tt.kind)
	}
}

func TestValidate_Valid(t *testing.T) {
	signer := testutil.NewSigner(t)
	v, err := event.NewVerifier(0)
	require.NoError(t, err)

	ev := signer.Event(t, 1, 1700000000, "a valid note")
	assert.NoError(t, v.Validate(ev))
}

func TestValidate_TamperedContent(t *testing.T) {
	signer := testutil.NewSigner(t)
	v, err := event.NewVerifier(0)
	require.NoError(t, err)

	ev := signer.Event(t, 1, 1700000000, "original")
	ev.Content = "tampered"

	err = v.Validate(ev)
	assert.ErrorIs(t, err, event.ErrBadID)
}

func TestValidate_WrongKeySignature(t *testing.T) {
	alice := testutil.NewSigner(t)
	mallory := testutil.NewSigner(t)
	v, err := event.NewVerifier(0)
	require.NoError(t, err)

	// Signed by mallory, then re-attributed to alice with the id fixed up.
	ev := mallory.Event(t, 1, 1700000000, "impersonation")
	ev.PubKey = alice.PubKey
	id, err := ev.ComputeID()
	require.NoError(t, err)
	ev.ID = id

	err = v.Validate(ev)
	assert.ErrorIs(t, err, event.ErrBadSignature)
}

func TestValidate_GarbageSignature(t *testing.T) {
	signer := testutil.NewSigner(t)
	v, err := event.NewVerifier(0)
	require.NoError(t, err)

	ev := signer.Event(t, 1, 1700000000, "note")
	ev.Sig = strings.Repeat("00", 64)

	err = v.Validate(ev)
	assert.ErrorIs(t, err, event.ErrBadSignature)
}

func TestValidate_Malformed(t *testing.T) {
	signer := testutil.NewSigner(t)
	v, err := event.NewVerifier(0)
	require.NoError(t, err)

	ev := signer.Event(t, 1, 1700000000, "note")
	ev.Kind = -1
	assert.ErrorIs(t, v.Validate(ev), event.ErrMalformed)

	ev = signer.Event(t, 1, 1700000000, "note")
	ev.CreatedAt = -5
	assert.ErrorIs(t, v.Validate(ev), event.ErrMalformed)

	ev = signer.Event(t, 1, 1700000000, "note")
	ev.Tags = append(ev.Tags, []string{})
	assert.ErrorIs(t, v.Validate(ev), event.ErrMalformed)
}

func TestValidate_CachedPubKey(t *testing.T) {
	signer := testutil.NewSigner(t)
	v, err := event.NewVerifier(2)
	require.NoError(t, err)

	// Same author twice: the second pass hits the parsed-pubkey cache and
	// must verify identically.
	first := signer.Event(t, 1, 1700000000, "first")
	second := signer.Event(t, 1, 1700000001, "second")
	require.NoError(t, v.Validate(first))
	assert.NoError(t, v.Validate(second))
}
