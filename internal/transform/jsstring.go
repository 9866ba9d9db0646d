package transform

import (
	"encoding/json"
	"strings"
)

// JSString returns s as a double-quoted JavaScript string literal. JSON
// string syntax is a subset of JavaScript's and escapes U+2028/U+2029.
func JSString(s string) string {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	if err := enc.Encode(s); err != nil {
		return `""`
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// exportString is the module body exporting a single string.
func exportString(s string) []byte {
	return []byte("module.exports = " + JSString(s) + ";\n")
}
