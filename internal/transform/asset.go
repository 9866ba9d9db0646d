package transform

import (
	"encoding/base64"
	"mime"
	"strings"

	"kiln/internal/naming"
	"kiln/internal/source"
)

// DefaultAssetName is used by file and url when no name option is set.
const DefaultAssetName = "[name].[hash:8].[ext]"

// File emits the module content as an asset and exports its public URL.
//
// Options: name (template, default DefaultAssetName).
type File struct{}

func (File) Name() string { return "file" }

func (File) Apply(tc *Context, in []byte) ([]byte, error) {
	return emitFile(tc, in)
}

// URL inlines content smaller than limit bytes as a data URI and otherwise
// behaves like File.
//
// Options: limit (bytes, default 10000), name, mimetype.
type URL struct{}

func (URL) Name() string { return "url" }

func (URL) Apply(tc *Context, in []byte) ([]byte, error) {
	limit := tc.Options.Int("limit", 10000)
	if limit > 0 && len(in) < limit {
		mt := tc.Options.String("mimetype", "")
		if mt == "" {
			mt = mimeType(tc.ID.Ext())
		}
		return exportString("data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(in)), nil
	}
	return emitFile(tc, in)
}

func emitFile(tc *Context, in []byte) ([]byte, error) {
	name, err := naming.Expand(tc.Options.String("name", DefaultAssetName), naming.Vars{
		Name:        tc.ID.Base(),
		Ext:         tc.ID.Ext(),
		ContentHash: source.Sum(in),
	})
	if err != nil {
		return nil, err
	}
	tc.EmitAsset(name, in)
	return exportString(publicURL(tc.PublicPath, name)), nil
}

func publicURL(publicPath, name string) string {
	if publicPath == "" {
		return name
	}
	if strings.HasSuffix(publicPath, "/") {
		return publicPath + name
	}
	return publicPath + "/" + name
}

func mimeType(ext string) string {
	if ext == ".svg" {
		return "image/svg+xml"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		// drop parameters such as "; charset=utf-8"
		t, _, _ = strings.Cut(t, ";")
		return t
	}
	return "application/octet-stream"
}
