// Package runtimeembed provides the JavaScript that ships inside emitted
// chunks and the dev server's live-reload client.
package runtimeembed

import (
	_ "embed"
	"strings"
)

//go:embed bootstrap.js
var bootstrap string

//go:embed stub.js
var stub string

//go:embed client.js
var client string

// Bootstrap is the full runtime carried by entry chunks. publicPath must be
// a JavaScript string literal.
func Bootstrap(publicPath string) string {
	return strings.Replace(bootstrap, "__KILN_PUBLIC_PATH__", publicPath, 1)
}

// StubOpen starts a non-entry chunk registering itself under file, a
// JavaScript string literal. The module map follows, then StubClose.
func StubOpen(file string) string {
	return strings.Replace(stub, "__KILN_CHUNK_FILE__", file, 1)
}

const StubClose = "}]);\n"

// Client is the live-reload script. socketPath must be a JavaScript string
// literal.
func Client(socketPath string) string {
	return strings.Replace(client, "__KILN_SOCKET_PATH__", socketPath, 1)
}
