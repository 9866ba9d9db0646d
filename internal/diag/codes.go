package diag

import (
	"errors"
	"fmt"
)

type Code uint16

const (
	UnknownCode Code = 0

	// Resolution
	ResInfo             Code = 1000
	ResNotFound         Code = 1001
	ResInvalidSpecifier Code = 1002

	// Loading and transforms
	LdrInfo             Code = 2000
	LdrReadFailed       Code = 2001
	LdrTransformFailed  Code = 2002
	LdrUnknownTransform Code = 2003
	LdrParseFailed      Code = 2004
	LdrESMSurvived      Code = 2005
	LdrLintFailed       Code = 2006

	// Lint findings
	LntInfo          Code = 3000
	LntNoDebugger    Code = 3001
	LntNoEval        Code = 3002
	LntNoConsole     Code = 3003
	LntNoEmptyImport Code = 3004

	// Graph
	GrfInfo         Code = 4000
	GrfImportCycle  Code = 4001
	GrfEntryMissing Code = 4002

	// Emission
	EmtInfo      Code = 5000
	EmtNaming    Code = 5001
	EmtWrite     Code = 5002
	EmtCollision Code = 5003
	EmtAsset     Code = 5004
	EmtHTML      Code = 5005

	ObsInfo    Code = 6000
	ObsTimings Code = 6001
)

var codeDescription = map[Code]string{
	UnknownCode:         "Unknown error",
	ResInfo:             "Resolution information",
	ResNotFound:         "Module not found",
	ResInvalidSpecifier: "Invalid import specifier",
	LdrInfo:             "Loader information",
	LdrReadFailed:       "Cannot read module",
	LdrTransformFailed:  "Transform failed",
	LdrUnknownTransform: "Unknown transform",
	LdrParseFailed:      "Cannot parse module",
	LdrESMSurvived:      "ES module syntax left after transforms",
	LdrLintFailed:       "Lint errors",
	LntInfo:             "Lint information",
	LntNoDebugger:       "Unexpected 'debugger' statement",
	LntNoEval:           "eval can be harmful",
	LntNoConsole:        "Unexpected console call",
	LntNoEmptyImport:    "Empty import specifier",
	GrfInfo:             "Graph information",
	GrfImportCycle:      "Import cycle",
	GrfEntryMissing:     "Entry cannot be loaded",
	EmtInfo:             "Emit information",
	EmtNaming:           "Invalid output name",
	EmtWrite:            "Cannot write output",
	EmtCollision:        "Output name collision",
	EmtAsset:            "Cannot write asset",
	EmtHTML:             "Cannot render HTML page",
	ObsInfo:             "Observability information",
	ObsTimings:          "Pipeline timings",
}

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("RES%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("LDR%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("LNT%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("GRF%04d", ic)
	case ic >= 5000 && ic < 6000:
		return fmt.Sprintf("EMT%04d", ic)
	case ic >= 6000 && ic < 7000:
		return fmt.Sprintf("OBS%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}

// Coded is implemented by typed pipeline errors that map onto a code.
type Coded interface {
	DiagCode() Code
}

// CodeOf returns the code of the first Coded error in err's chain.
func CodeOf(err error) Code {
	var c Coded
	if errors.As(err, &c) {
		return c.DiagCode()
	}
	return UnknownCode
}
