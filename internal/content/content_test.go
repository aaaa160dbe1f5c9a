package content

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqual_IgnoresSerializerArtifacts(t *testing.T) {
	a := Doc(`{"type":"doc","content":[{"type":"heading","attrs":{"level":2},"content":[{"type":"text","text":"Title"}]}]}`)
	b := Doc(`{
		"content": [{"content":[{"text":"Title","type":"text"}],"attrs":{"level":2.0},"type":"heading"}],
		"type": "doc"
	}`)

	assert.True(t, Equal(a, b))
}

func TestEqual_DetectsChanges(t *testing.T) {
	assert.False(t, Equal(FromText("hello"), FromText("hello world")))
	assert.False(t, Equal(FromText(""), nil))
	assert.True(t, Equal(nil, nil))
}

func TestEqual_InvalidFallsBackToBytes(t *testing.T) {
	assert.True(t, Equal(Doc(`{bad`), Doc(`{bad`)))
	assert.False(t, Equal(Doc(`{bad`), Doc(`{bad `)))
}

func TestFromText(t *testing.T) {
	assert.JSONEq(t, `{"type":"doc","content":[{"type":"paragraph"}]}`, FromText("").String())
	assert.JSONEq(t,
		`{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"hello"}]}]}`,
		FromText("hello").String())
	assert.JSONEq(t,
		`{"type":"doc","content":[
			{"type":"paragraph","content":[{"type":"text","text":"a"}]},
			{"type":"paragraph"},
			{"type":"paragraph","content":[{"type":"text","text":"b"}]}
		]}`,
		FromText("a\n\nb").String())
}

func TestText_RoundTrip(t *testing.T) {
	for _, s := range []string{"", "hello", "hello world", "a\n\nb"} {
		assert.Equal(t, s, Text(FromText(s)))
	}
	assert.Equal(t, "", Text(Doc(`not json`)))
}

func TestSize(t *testing.T) {
	tests := []struct {
		name string
		doc  Doc
		want int
	}{
		{"empty paragraph", FromText(""), 2},
		{"hello", FromText("hello"), 7},
		{"hello world", FromText("hello world"), 13},
		{"two paragraphs", FromText("ab\ncd"), 8},
		{"surrogate pair counts twice", FromText("\U0001F600"), 4},
		{"hard break is a leaf", Doc(`{"type":"doc","content":[{"type":"paragraph","content":[
			{"type":"text","text":"a"},{"type":"hardBreak"},{"type":"text","text":"b"}]}]}`), 5},
		{"invalid", Doc(`[`), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Size(tt.doc))
		})
	}
}

func TestDoc_JSONEmbedding(t *testing.T) {
	type envelope struct {
		Content Doc `json:"content"`
	}

	data, err := json.Marshal(envelope{Content: FromText("hi")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"hi"}]}]}}`, string(data))

	var back envelope
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, Equal(FromText("hi"), back.Content))

	data, err = json.Marshal(envelope{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":null}`, string(data))

	require.NoError(t, json.Unmarshal([]byte(`{"content":null}`), &back))
	assert.True(t, back.Content.IsZero())
}

func TestDoc_Clone(t *testing.T) {
	d := FromText("x")
	c := d.Clone()
	c[0] = ' '
	assert.NotEqual(t, d[0], c[0])
	assert.Nil(t, Doc(nil).Clone())
}
