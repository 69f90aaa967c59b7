package torn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPage_Records(t *testing.T) {
	p, err := ParsePage([]byte(`{"attacks":[{"id":1},{"id":2}],"data":[{"id":3}]}`))
	require.NoError(t, err)
	assert.Len(t, p.Records("attacks", "data"), 2)

	p, err = ParsePage([]byte(`{"attacks":{"1":{}},"data":[{"id":3}]}`))
	require.NoError(t, err)
	assert.Len(t, p.Records("attacks", "data"), 1, "non-array key falls through")

	p, err = ParsePage([]byte(`{"other":[]}`))
	require.NoError(t, err)
	assert.Empty(t, p.Records("attacks", "data"))
}

func TestPage_NextCursor(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"explicit", `{"next_cursor":"c1","_metadata":{"links":{"next":"https://x/v2/attacks?cursor=c2"}}}`, "c1"},
		{"from next link", `{"_metadata":{"links":{"next":"https://x/v2/attacks?limit=200&cursor=c2"}}}`, "c2"},
		{"null next link", `{"_metadata":{"links":{"next":null}}}`, ""},
		{"empty next_cursor falls back", `{"next_cursor":"","_metadata":{"links":{"next":"https://x/?cursor=c3"}}}`, "c3"},
		{"none", `{"attacks":[]}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePage([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.NextCursor())
		})
	}
}

func TestParsePage_Invalid(t *testing.T) {
	_, err := ParsePage([]byte(`[1,2]`))
	assert.Error(t, err)
}
