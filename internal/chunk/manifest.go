package chunk

import (
	"encoding/json"
	"strings"
)

// Manifest is the asset-manifest.json document: logical names mapped to
// public URLs, plus the files an HTML page must load, in entry order.
type Manifest struct {
	Files       map[string]string `json:"files"`
	Entrypoints []string          `json:"entrypoints"`
}

func publicURL(publicPath, file string) string {
	if publicPath == "" {
		return file
	}
	return strings.TrimSuffix(publicPath, "/") + "/" + file
}

func (m *Manifest) encode() ([]byte, error) {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
