package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	ID   string `json:"id" yaml:"id"`
	Body string `json:"body" yaml:"body"`
}

func TestJSONStrict_RejectsUnknownFields(t *testing.T) {
	var s sample
	err := JSONStrict.Unmarshal([]byte(`{"id":"1","extra":true}`), &s)
	require.Error(t, err)

	require.NoError(t, JSON.Unmarshal([]byte(`{"id":"1","extra":true}`), &s))
	require.Equal(t, "1", s.ID)
}

func TestJSONStrict_RejectsTrailingContent(t *testing.T) {
	var s sample
	err := JSONStrict.Unmarshal([]byte(`{"id":"1"} {"id":"2"}`), &s)
	require.ErrorIs(t, err, ErrTrailingContent)
}

func TestJSON_DoesNotEscapeHTML(t *testing.T) {
	b, err := JSONStrict.Marshal(sample{ID: "a", Body: "<b>&</b>"})
	require.NoError(t, err)
	require.Equal(t, `{"id":"a","body":"<b>&</b>"}`, string(b))
}

func TestYAML(t *testing.T) {
	b, err := YAML.Marshal(sample{ID: "a", Body: "x"})
	require.NoError(t, err)
	require.Equal(t, "id: a\nbody: x\n", string(b))

	var s sample
	require.NoError(t, YAML.Unmarshal(b, &s))
	require.Equal(t, sample{ID: "a", Body: "x"}, s)
	require.Equal(t, "application/yaml", YAML.ContentType())
}
