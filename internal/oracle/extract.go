package oracle

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ExtractObject pulls a JSON object out of free-form oracle text. Models
// routinely wrap answers in markdown fences or surround them with prose, so
// the fences are stripped first and the object is taken greedily from the
// first '{' to the last '}'. Any failure, including no object at all,
// returns false rather than an error: absence and malformation are handled
// identically by callers.
func ExtractObject(raw string, out interface{}) bool {
	body := stripFences(raw)
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end < start {
		return false
	}
	return json.Unmarshal([]byte(body[start:end+1]), out) == nil
}

var fenceMarker = regexp.MustCompile("(?i)```(?:json)?")

// stripFences removes every markdown fence marker, with or without a
// language tag, wherever it appears.
func stripFences(raw string) string {
	return strings.TrimSpace(fenceMarker.ReplaceAllString(raw, ""))
}

// LimitWords clamps free text to at most max words and trims leading bullet
// markers. Oracle reasons and summaries pass through this before being
// returned to clients.
func LimitWords(s string, max int) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "-*• \t")
	fields := strings.Fields(s)
	if len(fields) > max {
		fields = fields[:max]
	}
	return strings.Join(fields, " ")
}
