package chunk

import (
	"bytes"
	"slices"
	"strings"

	"kiln/internal/deps"
	"kiln/internal/graph"
	"kiln/internal/source"
	"kiln/internal/transform"
	runtimeembed "kiln/runtime"
)

// renderer serialises chunks. files maps a chunk name to the reference used
// for it in generated code: the chunk name itself while hashing, the output
// file once names are known.
type renderer struct {
	snap       *graph.Snapshot
	plan       *Plan
	publicPath string
	files      func(name string) string
}

func (r *renderer) render(c *Chunk) []byte {
	var b bytes.Buffer
	key := func(id source.ModuleID) string { return transform.JSString(id.Key(r.snap.Root)) }

	if c.Kind == KindEntry {
		b.WriteString(runtimeembed.Bootstrap(transform.JSString(r.publicPath)))
		b.WriteString("__kiln__.define({\n")
		r.writeModules(&b, c, key)
		b.WriteString("});\n")
		b.WriteString("__kiln__.start(")
		b.WriteString(r.fileList(c.Requires))
		b.WriteString(", ")
		b.WriteString(key(c.Root))
		b.WriteString(");\n")
		return b.Bytes()
	}

	b.WriteString(runtimeembed.StubOpen(transform.JSString(r.files(c.Name))))
	r.writeModules(&b, c, key)
	b.WriteString(runtimeembed.StubClose)
	return b.Bytes()
}

func (r *renderer) writeModules(b *bytes.Buffer, c *Chunk, key func(source.ModuleID) string) {
	for _, id := range c.Modules {
		rec, ok := r.snap.Record(id)
		if !ok {
			continue
		}
		b.WriteString(key(id))
		b.WriteString(": function (module, exports, require) {\n")
		b.Write(r.rewrite(rec, key))
		if n := len(rec.Code); n > 0 && rec.Code[n-1] != '\n' {
			b.WriteByte('\n')
		}
		b.WriteString("},\n")
	}
}

// rewrite replaces every resolved specifier with the target's registry key
// and every dynamic import call with a chunk load. Unresolved specifiers are
// left alone so the runtime reports them when they are reached.
func (r *renderer) rewrite(rec *graph.Record, key func(source.ModuleID) string) []byte {
	type edit struct {
		span source.Span
		text string
	}
	var edits []edit
	for i, d := range rec.Deps {
		if i >= len(rec.Resolved) || rec.Resolved[i] == "" {
			continue
		}
		to := rec.Resolved[i]
		if d.Kind == deps.Dynamic && !d.Call.IsZero() {
			edits = append(edits, edit{d.Call, "require.load(" + r.dynamicFiles(to) + ", " + key(to) + ")"})
			continue
		}
		edits = append(edits, edit{d.Span, key(to)})
	}
	if len(edits) == 0 {
		return rec.Code
	}
	slices.SortFunc(edits, func(a, b edit) int { return int(a.span.Start) - int(b.span.Start) })

	var out bytes.Buffer
	last := uint32(0)
	for _, e := range edits {
		if e.span.Start < last || int(e.span.End) > len(rec.Code) {
			continue
		}
		out.Write(rec.Code[last:e.span.Start])
		out.WriteString(e.text)
		last = e.span.End
	}
	out.Write(rec.Code[last:])
	return out.Bytes()
}

// dynamicFiles lists what must be loaded before a dynamic target runs: the
// shared chunks its chunk requires, then the chunk itself.
func (r *renderer) dynamicFiles(target source.ModuleID) string {
	name := r.plan.Dynamic[target]
	if name == "" {
		return "[]"
	}
	c, ok := r.plan.Chunk(name)
	if !ok {
		return "[]"
	}
	return r.fileList(append(slices.Clone(c.Requires), c.Name))
}

func (r *renderer) fileList(names []string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = transform.JSString(r.files(n))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
