package diag

import (
	"fmt"
	"strings"
)

// Severity orders diagnostics; a report with any SevError fails the build.
type Severity uint8

const (
	SevInfo Severity = iota
	SevWarning
	SevError
)

func (s Severity) String() string {
	switch s {
	case SevInfo:
		return "INFO"
	case SevWarning:
		return "WARNING"
	case SevError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// ParseSeverity reads a rule level as written in kiln.toml. ok is false
// for "off", which silences the check.
func ParseSeverity(level string) (sev Severity, ok bool, err error) {
	switch strings.ToLower(level) {
	case "off":
		return 0, false, nil
	case "info":
		return SevInfo, true, nil
	case "warn", "warning":
		return SevWarning, true, nil
	case "error":
		return SevError, true, nil
	}
	return 0, false, fmt.Errorf("unknown level %q", level)
}
