package runtimeembed

import (
	"strings"
	"testing"
)

func TestBootstrapSubstitutesPublicPath(t *testing.T) {
	js := Bootstrap(`"/assets/"`)
	if strings.Contains(js, "__KILN_PUBLIC_PATH__") {
		t.Fatalf("placeholder left in bootstrap")
	}
	if !strings.Contains(js, `var publicPath = "/assets/";`) {
		t.Fatalf("public path missing:\n%s", js)
	}
	for _, want := range []string{"function require(key)", "require.load", "kilnChunks"} {
		if !strings.Contains(js, want) {
			t.Fatalf("bootstrap lacks %q", want)
		}
	}
}

func TestStub(t *testing.T) {
	open := StubOpen(`"static/js/page.chunk.js"`)
	if !strings.HasPrefix(open, "(self.kilnChunks = self.kilnChunks || []).push([\"static/js/page.chunk.js\", {") {
		t.Fatalf("stub = %q", open)
	}
}

func TestClient(t *testing.T) {
	if !strings.Contains(Client(`"/__kiln/ws"`), `location.host + "/__kiln/ws"`) {
		t.Fatalf("socket path not substituted")
	}
}

func TestClientOverlay(t *testing.T) {
	c := Client(`"/__kiln/ws"`)
	for _, want := range []string{"showOverlay(errors)", "hideOverlay()", "msg.files"} {
		if !strings.Contains(c, want) {
			t.Fatalf("client lacks %q", want)
		}
	}
}
