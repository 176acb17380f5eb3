package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type recoPayload struct {
	Recommended []struct {
		ID     int64  `json:"id"`
		Reason string `json:"reason"`
	} `json:"recommended"`
}

func TestExtractObject_FencedJSON(t *testing.T) {
	raw := "```json\n{\"recommended\": [{\"id\": 3, \"reason\": \"pairs well\"}]}\n```"
	var out recoPayload
	assert.True(t, ExtractObject(raw, &out))
	assert.Len(t, out.Recommended, 1)
	assert.Equal(t, int64(3), out.Recommended[0].ID)
}

func TestExtractObject_ProseAroundObject(t *testing.T) {
	raw := "Sure! Here is my answer:\n{\"recommended\": []}\nHope that helps."
	var out recoPayload
	assert.True(t, ExtractObject(raw, &out))
	assert.Empty(t, out.Recommended)
}

func TestExtractObject_UppercaseFence(t *testing.T) {
	raw := "```JSON\n{\"recommended\": []}\n```"
	var out recoPayload
	assert.True(t, ExtractObject(raw, &out))
}

func TestExtractObject_Failures(t *testing.T) {
	cases := map[string]string{
		"empty":       "",
		"no object":   "I could not produce a result.",
		"malformed":   "{\"recommended\": [}",
		"only fences": "```json\n```",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var out recoPayload
			assert.False(t, ExtractObject(raw, &out))
		})
	}
}

func TestLimitWords(t *testing.T) {
	assert.Equal(t, "a b c", LimitWords("  a b c  ", 18))
	assert.Equal(t, "great for daily use", LimitWords("- great for daily use", 18))
	assert.Equal(t, "one two", LimitWords("one two three", 2))
	assert.Equal(t, "", LimitWords("   ", 18))
}
