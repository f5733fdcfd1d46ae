package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONSchema_NullableAndStrict(t *testing.T) {
	s := &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"pricing_model": NullableString("pricing"),
			"tech_stack":    StringList("stack"),
		},
		Order: []string{"pricing_model", "tech_stack"},
	}

	out := s.JSONSchema()
	require.Equal(t, "object", out["type"])
	require.Equal(t, false, out["additionalProperties"])
	require.Equal(t, []string{"pricing_model", "tech_stack"}, out["required"])

	props := out["properties"].(map[string]any)
	pricing := props["pricing_model"].(map[string]any)
	require.Equal(t, []string{"string", "null"}, pricing["type"])
	stack := props["tech_stack"].(map[string]any)
	require.Equal(t, "array", stack["type"])
	require.Equal(t, map[string]any{"type": "string"}, stack["items"])
}

func TestPropertyNames_SortedWithoutOrder(t *testing.T) {
	s := &Schema{Type: TypeObject, Properties: map[string]*Schema{"b": String(""), "a": String("")}}
	require.Equal(t, []string{"a", "b"}, s.PropertyNames())
}

func TestMarshalJSON_Deterministic(t *testing.T) {
	s := &Schema{Type: TypeObject, Properties: map[string]*Schema{"x": NullableBool("flag")}}
	first, err := json.Marshal(s)
	require.NoError(t, err)
	second, err := json.Marshal(s)
	require.NoError(t, err)
	require.JSONEq(t, string(first), string(second))
}
