package version

import (
	"testing"

	"github.com/fatih/color"
)

func withPlain(t *testing.T) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

func TestVersion_DefaultValues(t *testing.T) {
	if Version == "" {
		t.Error("Version should have a default value")
	}
}

func TestStyled_Plain(t *testing.T) {
	withPlain(t)
	if got := Styled(); got != Version {
		t.Errorf("Styled() = %q, want %q", got, Version)
	}
}

func TestStyled_Unparsable(t *testing.T) {
	withPlain(t)
	orig := Version
	t.Cleanup(func() { Version = orig })
	Version = "nightly"
	if got := Styled(); got != "nightly" {
		t.Errorf("Styled() = %q, want %q", got, "nightly")
	}
}

func TestString_WithMetadata(t *testing.T) {
	withPlain(t)
	origVersion, origCommit, origDate := Version, GitCommit, BuildDate
	t.Cleanup(func() {
		Version, GitCommit, BuildDate = origVersion, origCommit, origDate
	})

	Version = "1.2.3"
	GitCommit = "abc123def4567890"
	BuildDate = "2024-01-15T10:30:00Z"
	want := "kiln 1.2.3 (abc123def456, 2024-01-15T10:30:00Z)"
	if got := String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	GitCommit, BuildDate = "", ""
	if got := String(); got != "kiln 1.2.3" {
		t.Errorf("String() = %q, want %q", got, "kiln 1.2.3")
	}
}
