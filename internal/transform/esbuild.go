package transform

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"kiln/internal/diag"
	"kiln/internal/source"
)

// Esbuild compiles scripts to CommonJS at the configured target and lowers
// stylesheets. import() calls are preserved for the chunker.
//
// Options: target ("es2017"), loader (inferred from the extension), minify,
// jsx ("automatic" | "transform" | "preserve"), engines (["chrome58", ...]),
// define (map of identifier to replacement).
type Esbuild struct{}

func (Esbuild) Name() string { return "esbuild" }

var loaders = map[string]api.Loader{
	".js":   api.LoaderJS,
	".mjs":  api.LoaderJS,
	".cjs":  api.LoaderJS,
	".jsx":  api.LoaderJSX,
	".ts":   api.LoaderTS,
	".mts":  api.LoaderTS,
	".tsx":  api.LoaderTSX,
	".css":  api.LoaderCSS,
	".json": api.LoaderJSON,
}

var targets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ios":     api.EngineIOS,
	"node":    api.EngineNode,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

var engineRe = regexp.MustCompile(`^([a-z]+)(\d[\d.]*)$`)

func (Esbuild) Apply(tc *Context, in []byte) ([]byte, error) {
	opts, err := esbuildOptions(tc)
	if err != nil {
		return nil, err
	}
	res := api.Transform(string(in), opts)
	for _, w := range res.Warnings {
		diag.ReportWarning(tc.reporter(), diag.LdrInfo, tc.ID, source.Span{}, "esbuild: "+formatMessage(w)).Emit()
	}
	if len(res.Errors) > 0 {
		msgs := make([]string, 0, len(res.Errors))
		for _, m := range res.Errors {
			msgs = append(msgs, formatMessage(m))
		}
		return nil, errors.New(strings.Join(msgs, "; "))
	}
	return res.Code, nil
}

func esbuildOptions(tc *Context) (api.TransformOptions, error) {
	o := tc.Options
	ext := strings.ToLower(tc.ID.Ext())
	loader, ok := loaders[ext]
	if name := o.String("loader", ""); name != "" {
		loader, ok = loaders["."+strings.TrimPrefix(name, ".")]
		if !ok {
			return api.TransformOptions{}, fmt.Errorf("unknown loader %q", name)
		}
	}
	if !ok {
		return api.TransformOptions{}, fmt.Errorf("no esbuild loader for %q", ext)
	}

	minify := o.Bool("minify", tc.Mode == "production")
	opts := api.TransformOptions{
		Loader:            loader,
		Sourcefile:        tc.ID.Rel(tc.Root),
		MinifyWhitespace:  minify,
		MinifySyntax:      minify,
		MinifyIdentifiers: minify,
		LogLevel:          api.LogLevelSilent,
	}
	if loader == api.LoaderCSS {
		engines, err := parseEngines(o.Strings("engines"))
		if err != nil {
			return api.TransformOptions{}, err
		}
		opts.Engines = engines
		return opts, nil
	}

	target, ok := targets[strings.ToLower(o.String("target", "es2017"))]
	if !ok {
		return api.TransformOptions{}, fmt.Errorf("unknown target %q", o.String("target", ""))
	}
	opts.Target = target
	opts.Format = api.FormatCommonJS
	opts.Platform = api.PlatformBrowser
	opts.Supported = map[string]bool{"dynamic-import": true}
	switch o.String("jsx", "automatic") {
	case "automatic":
		opts.JSX = api.JSXAutomatic
	case "transform":
		opts.JSX = api.JSXTransform
	case "preserve":
		opts.JSX = api.JSXPreserve
	default:
		return api.TransformOptions{}, fmt.Errorf("unknown jsx mode %q", o.String("jsx", ""))
	}
	opts.Define = map[string]string{
		"process.env.NODE_ENV": JSString(modeOrDefault(tc.Mode)),
	}
	if defs, ok := o["define"].(map[string]any); ok {
		keys := make([]string, 0, len(defs))
		for k := range defs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			opts.Define[k] = fmt.Sprint(defs[k])
		}
	}
	return opts, nil
}

func parseEngines(list []string) ([]api.Engine, error) {
	var out []api.Engine
	for _, raw := range list {
		m := engineRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(raw)))
		if m == nil {
			return nil, fmt.Errorf("invalid engine %q", raw)
		}
		name, ok := engineNames[m[1]]
		if !ok {
			return nil, fmt.Errorf("unknown engine %q", m[1])
		}
		out = append(out, api.Engine{Name: name, Version: m[2]})
	}
	return out, nil
}

func formatMessage(m api.Message) string {
	if m.Location == nil {
		return m.Text
	}
	return fmt.Sprintf("%d:%d: %s", m.Location.Line, m.Location.Column+1, m.Text)
}

func modeOrDefault(mode string) string {
	if mode == "" {
		return "development"
	}
	return mode
}
