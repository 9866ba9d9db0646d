package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"kiln/internal/buildpipeline"
	"kiln/internal/chunk"
	"kiln/internal/graph"
	"kiln/internal/source"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the module graph and the chunk partition",
	Long: `Graph loads every module reachable from the entries without writing any
output. The text format lists each module with its dependencies, import
cycles and the chunks the emitter would produce; dot renders the module
graph for Graphviz; json prints both for tooling.`,
	Args: cobra.NoArgs,
	RunE: runGraph,
}

func init() {
	graphCmd.Flags().String("format", "text", "output format (text|json|dot)")
}

type graphModule struct {
	ID      string   `json:"id"`
	Static  []string `json:"static,omitempty"`
	Dynamic []string `json:"dynamic,omitempty"`
}

type graphChunk struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Modules []string `json:"modules"`
}

type graphPayload struct {
	Entries map[string]string `json:"entries"`
	Modules []graphModule     `json:"modules"`
	Cycles  [][]string        `json:"cycles,omitempty"`
	Chunks  []graphChunk      `json:"chunks"`
}

func runGraph(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	format = strings.ToLower(format)
	switch format {
	case "text", "json", "dot":
	default:
		return fmt.Errorf("unsupported format %q (must be text, json or dot)", format)
	}
	cfg, err := loadConfig(cmd, "")
	if err != nil {
		return err
	}
	session, err := buildpipeline.NewSession(cmd.Context(), cfg, buildpipeline.WithoutDiskCache())
	if err != nil {
		return err
	}
	defer session.Close()

	snap, report, err := session.LoadGraph(cmd.Context())
	if err != nil {
		return err
	}
	printDiagnostics(cmd.ErrOrStderr(), cfg, report, maxDiagnostics(cmd))

	plan := chunk.NewPlan(snap, chunk.Policy{Hoist: cfg.Output.Hoist, MinShare: cfg.Output.MinShare})
	payload := describeGraph(snap, plan)
	out := cmd.OutOrStdout()
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(payload); err != nil {
			return err
		}
	case "dot":
		writeDot(out, payload)
	default:
		writeGraphText(out, payload)
	}
	if report.HasErrors() {
		return errBuildFailed
	}
	return nil
}

func describeGraph(snap *graph.Snapshot, plan *chunk.Plan) graphPayload {
	key := func(id source.ModuleID) string { return id.Key(snap.Root) }
	keys := func(ids []source.ModuleID) []string {
		out := make([]string, len(ids))
		for i, id := range ids {
			out[i] = key(id)
		}
		return out
	}

	p := graphPayload{Entries: make(map[string]string)}
	for _, e := range snap.Entries() {
		p.Entries[e.Name] = key(e.ID)
	}
	for _, r := range snap.Records() {
		p.Modules = append(p.Modules, graphModule{
			ID:      key(r.ID),
			Static:  keys(r.StaticDeps()),
			Dynamic: keys(r.DynamicDeps()),
		})
	}
	for _, c := range snap.Cycles() {
		p.Cycles = append(p.Cycles, keys(c))
	}
	for _, c := range plan.Chunks {
		p.Chunks = append(p.Chunks, graphChunk{Name: c.Name, Kind: c.Kind.String(), Modules: keys(c.Modules)})
	}
	return p
}

func writeGraphText(w io.Writer, p graphPayload) {
	fmt.Fprintf(w, "modules (%d)\n", len(p.Modules))
	for _, m := range p.Modules {
		fmt.Fprintf(w, "  %s\n", m.ID)
		for _, d := range m.Static {
			fmt.Fprintf(w, "    -> %s\n", d)
		}
		for _, d := range m.Dynamic {
			fmt.Fprintf(w, "    => %s (dynamic)\n", d)
		}
	}
	if len(p.Cycles) > 0 {
		fmt.Fprintf(w, "cycles (%d)\n", len(p.Cycles))
		for _, c := range p.Cycles {
			fmt.Fprintf(w, "  %s\n", strings.Join(c, " -> "))
		}
	}
	fmt.Fprintf(w, "chunks (%d)\n", len(p.Chunks))
	for _, c := range p.Chunks {
		fmt.Fprintf(w, "  %s [%s] %d modules\n", c.Name, c.Kind, len(c.Modules))
	}
}

func writeDot(w io.Writer, p graphPayload) {
	fmt.Fprintln(w, "digraph kiln {")
	fmt.Fprintln(w, "  node [shape=box];")
	for _, m := range p.Modules {
		for _, d := range m.Static {
			fmt.Fprintf(w, "  %q -> %q;\n", m.ID, d)
		}
		for _, d := range m.Dynamic {
			fmt.Fprintf(w, "  %q -> %q [style=dashed];\n", m.ID, d)
		}
	}
	fmt.Fprintln(w, "}")
}
