// Package naming expands output file name templates such as
// "static/js/[name].[contenthash:8].js".
//
// Supported tokens: [name], [ext] (without the dot), [hash], [contenthash]
// and the truncated forms [hash:N] and [contenthash:N].
package naming

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"kiln/internal/source"
)

// DefaultHashLen is the length used by [hash] and [contenthash].
const DefaultHashLen = 20

var (
	ErrUnknownToken = errors.New("unknown template token")
	ErrEmptyName    = errors.New("empty name")
	ErrUnsafePath   = errors.New("output path escapes the output directory")
)

// Vars are the values a template can refer to.
type Vars struct {
	Name        string
	Ext         string
	Hash        source.Digest
	ContentHash source.Digest
}

// TemplateError names the template and the offending token.
type TemplateError struct {
	Template string
	Token    string
	Err      error
}

func (e *TemplateError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("template %q: %s %q", e.Template, e.Err, e.Token)
	}
	return fmt.Sprintf("template %q: %s", e.Template, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// Expand substitutes every token in tmpl.
func Expand(tmpl string, v Vars) (string, error) {
	if v.Hash.IsZero() {
		v.Hash = v.ContentHash
	}
	var b strings.Builder
	rest := tmpl
	for {
		open := strings.IndexByte(rest, '[')
		if open < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:open])
		end := strings.IndexByte(rest[open:], ']')
		if end < 0 {
			return "", &TemplateError{Template: tmpl, Token: rest[open:], Err: ErrUnknownToken}
		}
		token := rest[open+1 : open+end]
		val, err := substitute(token, v)
		if err != nil {
			return "", &TemplateError{Template: tmpl, Token: "[" + token + "]", Err: err}
		}
		b.WriteString(val)
		rest = rest[open+end+1:]
	}

	out := b.String()
	if strings.TrimSpace(out) == "" {
		return "", &TemplateError{Template: tmpl, Err: ErrEmptyName}
	}
	clean := path.Clean(out)
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", &TemplateError{Template: tmpl, Err: ErrUnsafePath}
	}
	return clean, nil
}

func substitute(token string, v Vars) (string, error) {
	name, arg, hasArg := strings.Cut(token, ":")
	switch name {
	case "name":
		if hasArg {
			return "", ErrUnknownToken
		}
		if strings.TrimSpace(v.Name) == "" {
			return "", ErrEmptyName
		}
		return v.Name, nil
	case "ext":
		if hasArg {
			return "", ErrUnknownToken
		}
		return strings.TrimPrefix(v.Ext, "."), nil
	case "hash", "contenthash":
		n := DefaultHashLen
		if hasArg {
			parsed, err := strconv.Atoi(arg)
			if err != nil || parsed <= 0 {
				return "", ErrUnknownToken
			}
			n = parsed
		}
		d := v.ContentHash
		if name == "hash" {
			d = v.Hash
		}
		return d.Short(n), nil
	}
	return "", ErrUnknownToken
}

// Validate checks a template without real values.
func Validate(tmpl string) error {
	_, err := Expand(tmpl, Vars{Name: "x", Ext: ".x", ContentHash: source.Sum(nil)})
	return err
}

// HasHash reports whether tmpl refers to a hash token.
func HasHash(tmpl string) bool {
	return strings.Contains(tmpl, "[hash") || strings.Contains(tmpl, "[contenthash")
}
