package transform

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"kiln/internal/source"
)

// JSON validates a JSON document and exports it as the module value.
type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Apply(tc *Context, in []byte) ([]byte, error) {
	// Unmarshal locates the offending byte
	var raw json.RawMessage
	if err := json.Unmarshal(in, &raw); err != nil {
		var syn *json.SyntaxError
		if errors.As(err, &syn) {
			off := uint32(max(syn.Offset-1, 0))
			pos := source.NewLineIndex(in).Position(off)
			return nil, &Error{
				Transform: "json",
				Span:      source.Span{Start: off, End: off + 1},
				Err:       fmt.Errorf("invalid JSON at %s: %w", pos, err),
			}
		}
		return nil, err
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return nil, err
	}
	out := make([]byte, 0, compact.Len()+20)
	out = append(out, "module.exports = "...)
	out = append(out, compact.Bytes()...)
	out = append(out, ";\n"...)
	return out, nil
}
