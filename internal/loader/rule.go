package loader

import (
	"fmt"
	"strconv"

	"github.com/bmatcuk/doublestar/v4"

	"kiln/internal/config"
	"kiln/internal/source"
	"kiln/internal/transform"
)

// Rule is a compiled config.Rule: a path predicate plus a transform chain.
type Rule struct {
	Index       int
	Category    string
	Include     []string
	Exclude     []string
	FailOnError bool
	Chain       []Step

	fingerprint source.Digest
}

// Step is one transform of a chain. Exactly one of Transform and Linter is set.
type Step struct {
	Name      string
	Options   transform.Options
	Transform transform.Transform
	Linter    transform.Linter
}

func compileRules(rules []config.Rule, reg *transform.Registry) ([]Rule, error) {
	out := make([]Rule, 0, len(rules))
	for i, r := range rules {
		cr := Rule{
			Index:       i,
			Category:    r.Category,
			Include:     r.Include,
			Exclude:     r.Exclude,
			FailOnError: r.FailOnError,
		}
		parts := [][]byte{[]byte(strconv.Itoa(i)), []byte(r.Category)}
		for _, u := range r.Use {
			st := Step{Name: u.Name, Options: transform.Options(u.Options)}
			if r.Category == config.CategoryLint {
				l, ok := reg.Linter(u.Name)
				if !ok {
					return nil, fmt.Errorf("rule #%d (%s): %w %q", i, r.Category, ErrUnknownTransform, u.Name)
				}
				st.Linter = l
			} else {
				t, ok := reg.Transform(u.Name)
				if !ok {
					return nil, fmt.Errorf("rule #%d (%s): %w %q", i, r.Category, ErrUnknownTransform, u.Name)
				}
				st.Transform = t
			}
			fp := st.Options.Fingerprint()
			parts = append(parts, []byte(u.Name), fp[:])
			cr.Chain = append(cr.Chain, st)
		}
		cr.fingerprint = source.Combine(parts...)
		out = append(out, cr)
	}
	return out, nil
}

// Match reports whether the rule applies to rel, a root-relative slash path.
// An empty include list matches every path; any exclude match rejects.
func (r *Rule) Match(rel string) bool {
	if len(r.Include) > 0 && !matchAny(r.Include, rel) {
		return false
	}
	return !matchAny(r.Exclude, rel)
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		// patterns were validated when the config was loaded
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
