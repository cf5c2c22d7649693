package moefile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeLine(t *testing.T) {
	tests := []struct {
		name  string
		cells []string
		want  string
	}{
		{"plain", []string{"a", "b", "c"}, "a,b,c\r\n"},
		{"comma and quote", []string{`a,b"c`}, `"a,b""c"` + "\r\n"},
		{"comma only", []string{"x,y", "z"}, `"x,y",z` + "\r\n"},
		{"lone quote", []string{`"`}, `""""` + "\r\n"},
		{"empty cells", []string{"", "", ""}, ",,\r\n"},
		{"no cells", nil, "\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EncodeLine(tt.cells))
		})
	}
}

func TestDecodeLine_RoundTrip(t *testing.T) {
	cells := []string{`a,b"c`, "plain", "", `"quoted"`, "O'Brien, Jr."}
	assert.Equal(t, cells, DecodeLine(EncodeLine(cells)))
}
