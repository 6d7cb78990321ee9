package format

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatPlainStringUnchanged(t *testing.T) {
	tests := []string{
		"hello world",
		"The weather is sunny today.",
		"multi\nline\ntext",
		"unbalanced { not closed",
	}

	for _, in := range tests {
		assert.Equal(t, in, Format(in))
	}
}

func TestFormatIdempotentOnPlainStrings(t *testing.T) {
	in := "a perfectly ordinary sentence"
	once := Format(in)
	assert.Equal(t, in, once)
	assert.Equal(t, once, Format(once))
}

func TestFormatNil(t *testing.T) {
	assert.Equal(t, "", Format(nil))
}

func TestFormatObjectString(t *testing.T) {
	in := `{"temperature": 22.5, "conditions": "Sunny", "wind_speed": 10}`
	out := Format(in)

	lines := strings.Split(out, "\n")
	assert.Equal(t, []string{
		"Temperature: 22.5",
		"Conditions: Sunny",
		"Wind Speed: 10",
	}, lines)
}

func TestFormatNestedObject(t *testing.T) {
	in := `{"location": {"city_name": "Berlin", "country": "DE"}, "ok": true}`
	out := Format(in)

	assert.Equal(t, strings.Join([]string{
		"Location:",
		"  • City Name: Berlin",
		"  • Country: DE",
		"Ok: true",
	}, "\n"), out)
}

func TestFormatNestedArrayCapped(t *testing.T) {
	in := `{"days": [1, 2, 3, 4, 5, 6, 7]}`
	out := Format(in)

	assert.Equal(t, strings.Join([]string{
		"Days:",
		"  • 1",
		"  • 2",
		"  • 3",
		"  • 4",
		"  • 5",
		"  ... and 2 more items",
	}, "\n"), out)
}

func TestFormatNestedArrayOfObjects(t *testing.T) {
	in := `{"results": [{"name": "alpha", "score": 1}, {"name": "beta", "score": 2}]}`
	out := Format(in)

	assert.Equal(t, strings.Join([]string{
		"Results:",
		"  [1]",
		"    • Name: alpha",
		"    • Score: 1",
		"  [2]",
		"    • Name: beta",
		"    • Score: 2",
	}, "\n"), out)
}

func TestFormatTopLevelArray(t *testing.T) {
	in := `[{"id": 1}, "plain", 3]`
	out := Format(in)

	assert.Equal(t, strings.Join([]string{
		"Item 1:",
		"  • Id: 1",
		"Item 2: plain",
		"Item 3: 3",
	}, "\n"), out)
}

func TestFormatTopLevelArrayCapped(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i < 11; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`"x"`)
	}
	sb.WriteString("]")

	out := Format(sb.String())
	lines := strings.Split(out, "\n")
	assert.Len(t, lines, 11)
	assert.Equal(t, "Item 10: x", lines[9])
	assert.Equal(t, "... and 1 more items", lines[10])
}

func TestFormatExtractsEmbeddedFragment(t *testing.T) {
	in := `Here is the data: {"status": "ok"} thanks`
	assert.Equal(t, "Status: ok", Format(in))
}

func TestFormatInvalidEmbeddedFragmentUnchanged(t *testing.T) {
	in := `some text {not valid json} more text`
	assert.Equal(t, in, Format(in))
}

func TestFormatGoMapSortedKeys(t *testing.T) {
	in := map[string]any{"b_key": 1, "a_key": "x"}
	out := Format(in)

	assert.Equal(t, strings.Join([]string{
		"A Key: x",
		"B Key: 1",
	}, "\n"), out)
}

func TestFormatStructKeepsFieldOrder(t *testing.T) {
	in := struct {
		Temperature float64 `json:"temperature"`
		Conditions  string  `json:"conditions"`
	}{22.5, "Sunny"}

	assert.Equal(t, "Temperature: 22.5\nConditions: Sunny", Format(in))
}

func TestFormatUnwrapsResultArtifacts(t *testing.T) {
	in := `{"result": {"artifacts": [{"parts": [{"text": "{\"status\": \"done\"}"}]}]}}`
	assert.Equal(t, "Status: done", Format(in))
}

func TestFormatScalarStrings(t *testing.T) {
	assert.Equal(t, "42", Format("42"))
	assert.Equal(t, "true", Format("true"))
	assert.Equal(t, "hello", Format(`"hello"`))
}
