package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_SortsKeysAndSkipsHTMLEscape(t *testing.T) {
	out, err := Marshal(map[string]any{
		"b": 1,
		"a": "<tag> & more",
		"c": []any{true, nil, 2.0, 2.5},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"<tag> & more","b":1,"c":[true,null,2,2.5]}`, string(out))
}

func TestMarshal_StableAcrossMapOrder(t *testing.T) {
	a := map[string]any{"x": 1, "y": map[string]any{"k": "v", "j": "w"}}
	b := map[string]any{"y": map[string]any{"j": "w", "k": "v"}, "x": 1}

	outA, err := Marshal(a)
	require.NoError(t, err)
	outB, err := Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, outA, outB)
}

func TestMarshal_NFCNormalizes(t *testing.T) {
	decomposed := "e\u0301"
	composed := "\u00e9"

	a, err := Marshal(decomposed)
	require.NoError(t, err)
	b, err := Marshal(composed)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestMarshal_EscapesControlCharacters(t *testing.T) {
	out, err := Marshal("a\"b\\c\nd\x01")
	require.NoError(t, err)
	assert.Equal(t, `"a\"b\\c\nd\u0001"`, string(out))
}

func TestMarshal_UTF16KeyOrder(t *testing.T) {
	// U+1F600 encodes as surrogates 0xD83D..., which sort before U+FB01
	// in UTF-16 but after it in UTF-8.
	out, err := Marshal(map[string]any{"\uFB01": 1, "\U0001F600": 2})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"\uFB01\":1}", string(out))
}

func TestMarshal_RejectsUnsupported(t *testing.T) {
	_, err := Marshal(struct{}{})
	assert.Error(t, err)
}

func TestHashWithDomain_SeparatesDomains(t *testing.T) {
	data := []byte(`{"a":1}`)
	h1 := HashWithDomain("docsync/a/v1", data)
	h2 := HashWithDomain("docsync/b/v1", data)

	assert.Len(t, h1, 64)
	assert.NotEqual(t, h1, h2)
	assert.Equal(t, h1, HashWithDomain("docsync/a/v1", data))
}
