package source

import (
	"fmt"
	"slices"
)

// Span is a half-open byte range [Start, End) inside one module's content.
type Span struct {
	Start uint32
	End   uint32
}

func (s Span) Len() uint32 {
	if s.End < s.Start {
		return 0
	}
	return s.End - s.Start
}

func (s Span) IsZero() bool { return s == Span{} }

func (s Span) Contains(off uint32) bool { return off >= s.Start && off < s.End }

func (s Span) String() string { return fmt.Sprintf("%d..%d", s.Start, s.End) }

// LineCol is a 1-based line and column.
type LineCol struct {
	Line uint32
	Col  uint32
}

func (lc LineCol) String() string { return fmt.Sprintf("%d:%d", lc.Line, lc.Col) }

// LineIndex holds the offsets of every '\n' in a buffer.
type LineIndex []uint32

func NewLineIndex(content []byte) LineIndex {
	out := make(LineIndex, 0, len(content)/32)
	for i, b := range content {
		if b == '\n' {
			out = append(out, uint32(i))
		}
	}
	return out
}

// Position maps a byte offset to a line/column pair.
func (idx LineIndex) Position(off uint32) LineCol {
	if len(idx) == 0 {
		return LineCol{Line: 1, Col: off + 1}
	}
	// number of newlines strictly before off
	line, _ := slices.BinarySearch(idx, off)
	var start uint32
	if line > 0 {
		start = idx[line-1] + 1
	}
	return LineCol{Line: uint32(line + 1), Col: off - start + 1}
}

// RemoveBOM strips a UTF-8 byte order mark.
func RemoveBOM(content []byte) ([]byte, bool) {
	if len(content) >= 3 && content[0] == 0xEF && content[1] == 0xBB && content[2] == 0xBF {
		return content[3:], true
	}
	return content, false
}

// NormalizeCRLF replaces every "\r\n" with "\n", leaving lone '\r' alone.
func NormalizeCRLF(content []byte) ([]byte, bool) {
	if !slices.Contains(content, '\r') {
		return content, false
	}
	out := make([]byte, 0, len(content))
	changed := false
	for i := 0; i < len(content); i++ {
		if content[i] == '\r' && i+1 < len(content) && content[i+1] == '\n' {
			out = append(out, '\n')
			i++
			changed = true
			continue
		}
		out = append(out, content[i])
	}
	return out, changed
}
