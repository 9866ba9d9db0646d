package transform

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"kiln/internal/source"
)

// Options are the free-form settings a rule passes to a transform. TOML
// decodes integers as int64 and YAML as int, so accessors normalise.
type Options map[string]any

func (o Options) String(key, def string) string {
	v, ok := o[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (o Options) Int(key string, def int) int {
	switch v := o[key].(type) {
	case int:
		return v
	case int64:
		if v > math.MaxInt || v < math.MinInt {
			return def
		}
		return int(v)
	case uint64:
		if v > math.MaxInt {
			return def
		}
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func (o Options) Bool(key string, def bool) bool {
	switch v := o[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

func (o Options) Strings(key string) []string {
	switch v := o[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return strings.Split(v, ",")
	}
	return nil
}

// Fingerprint is a stable digest of the options, used in cache keys.
func (o Options) Fingerprint() source.Digest {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(map[string]any(o)); err != nil {
		return source.Sum([]byte(fmt.Sprintf("%#v", o)))
	}
	return source.Sum(buf.Bytes())
}
