package hotparams

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_BlankBlob(t *testing.T) {
	for _, blob := range []string{"", "   ", "\n\t"} {
		got, err := Decode(blob)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.NotNil(t, got)
	}
}

func TestDecode_DropsNullValues(t *testing.T) {
	got, err := Decode(`{"yarn.queue":"etl","yarn.queue.label-expr":null}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"yarn.queue": "etl"}, got)
}

func TestDecode_Scalars(t *testing.T) {
	got, err := Decode(`{"a":"x","b":12,"c":1.50,"d":true,"e":false,"f":[1,"<y>"]}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"a": "x",
		"b": "12",
		"c": "1.50",
		"d": "true",
		"e": "false",
		"f": `[1,"<y>"]`,
	}, got)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		blob string
	}{
		{"not json", "yarn.queue=etl"},
		{"array", `["etl"]`},
		{"null literal", "null"},
		{"trailing data", `{"a":"b"} {"c":"d"}`},
		{"truncated", `{"a":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.blob)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedBlob))

			assert.Empty(t, DecodeLenient(tt.blob))
		})
	}
}

func TestEncode_EmptyMapIsNoUpdate(t *testing.T) {
	blob, ok, err := Encode(nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, blob)

	blob, ok, err = Encode(map[string]string{})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, blob)
}

func TestEncode_Deterministic(t *testing.T) {
	blob, ok, err := Encode(map[string]string{"yarn.queue.label-expr": "gpu", "yarn.queue": "etl"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"yarn.queue":"etl","yarn.queue.label-expr":"gpu"}`, blob)
}

func TestRoundTrip(t *testing.T) {
	maps := []map[string]string{
		{"yarn.queue": "etl"},
		{"yarn.queue": "etl", "yarn.queue.label-expr": "gpu && ssd"},
		{"k": "", "quote": `say "hi"`, "unicode": "队列"},
	}

	for _, m := range maps {
		blob, ok, err := Encode(m)
		require.NoError(t, err)
		require.True(t, ok)

		got, err := Decode(blob)
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
}
