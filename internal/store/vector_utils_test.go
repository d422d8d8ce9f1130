package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVector(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []float32
		wantErr bool
	}{
		{name: "compact", input: "[1.1,2.2]", want: []float32{1.1, 2.2}},
		{name: "with spaces", input: "[ 1.1 , 2.2 ]", want: []float32{1.1, 2.2}},
		{name: "empty array", input: "[]", want: []float32{}},
		{name: "negative and zero", input: "[0, -1.5, 0.001]", want: []float32{0, -1.5, 0.001}},
		{name: "exponent", input: "[1e-3]", want: []float32{0.001}},
		{name: "not an array", input: "not json", wantErr: true},
		{name: "bad number", input: "[1.1,x]", wantErr: true},
		{name: "unterminated", input: "[1.1,2.2", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseVector([]byte(tt.input), nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, append([]float32{}, got...))
		})
	}
}

func TestEncodeVector_RoundTrip(t *testing.T) {
	in := []float32{0.9, -0.2, 0.5, 1e-7, 3.4028235e38}
	assert.Equal(t, "[0.9,-0.2,0.5,1e-07,3.4028235e+38]", encodeVector(in))

	out, err := parseVector([]byte(encodeVector(in)), nil)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestParseVector_ReusesBuffer(t *testing.T) {
	buf := make([]float32, 0, 8)
	out, err := parseVector([]byte("[1,2,3]"), buf)
	require.NoError(t, err)
	assert.Equal(t, cap(buf), cap(out))
}

func BenchmarkParseVector(b *testing.B) {
	data := []byte(encodeVector(make([]float32, 768)))
	dest := make([]float32, 0, 768)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		dest, _ = parseVector(data, dest)
	}
}
