package diag

import (
	"kiln/internal/source"
)

type Note struct {
	Module source.ModuleID
	Span   source.Span
	Msg    string
}

type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Module   source.ModuleID
	Chunk    string
	Primary  source.Span
	Notes    []Note
	// Err is the typed error behind an error diagnostic, if any.
	Err error `msgpack:"-"`
}

func New(sev Severity, code Code, module source.ModuleID, primary source.Span, msg string) Diagnostic {
	return Diagnostic{
		Severity: sev,
		Code:     code,
		Module:   module,
		Primary:  primary,
		Message:  msg,
	}
}

func NewError(code Code, module source.ModuleID, primary source.Span, msg string) Diagnostic {
	return New(SevError, code, module, primary, msg)
}

func (d Diagnostic) WithNote(module source.ModuleID, sp source.Span, msg string) Diagnostic {
	d.Notes = append(d.Notes, Note{Module: module, Span: sp, Msg: msg})
	return d
}
