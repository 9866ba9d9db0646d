package diag

import "kiln/internal/source"

// Reporter is the minimal sink producers emit diagnostics into.
// Implementations: BagReporter, NopReporter.
type Reporter interface {
	Report(code Code, sev Severity, module source.ModuleID, primary source.Span, msg string, notes []Note)
}

// ReportBuilder accumulates diagnostic details before emitting to Reporter.
type ReportBuilder struct {
	reporter Reporter
	diag     Diagnostic
	emitted  bool
}

// NewReportBuilder constructs a builder bound to Reporter.
func NewReportBuilder(r Reporter, sev Severity, code Code, module source.ModuleID, primary source.Span, msg string) *ReportBuilder {
	return &ReportBuilder{
		reporter: r,
		diag:     New(sev, code, module, primary, msg),
	}
}

// ReportError is a shortcut for SevError diagnostics.
func ReportError(r Reporter, code Code, module source.ModuleID, primary source.Span, msg string) *ReportBuilder {
	return NewReportBuilder(r, SevError, code, module, primary, msg)
}

// ReportWarning is a shortcut for SevWarning diagnostics.
func ReportWarning(r Reporter, code Code, module source.ModuleID, primary source.Span, msg string) *ReportBuilder {
	return NewReportBuilder(r, SevWarning, code, module, primary, msg)
}

// WithNote appends a note to diagnostic.
func (b *ReportBuilder) WithNote(module source.ModuleID, sp source.Span, msg string) *ReportBuilder {
	if b == nil {
		return nil
	}
	b.diag = b.diag.WithNote(module, sp, msg)
	return b
}

// Emit sends diagnostic to underlying reporter exactly once.
func (b *ReportBuilder) Emit() {
	if b == nil || b.emitted {
		return
	}
	if b.reporter != nil {
		d := b.diag
		b.reporter.Report(d.Code, d.Severity, d.Module, d.Primary, d.Message, d.Notes)
	}
	b.emitted = true
}

// Diagnostic returns accumulated diagnostic without emitting.
func (b *ReportBuilder) Diagnostic() Diagnostic {
	if b == nil {
		return Diagnostic{}
	}
	return b.diag
}

// BagReporter writes into a *Bag.
type BagReporter struct{ Bag *Bag }

func (r BagReporter) Report(code Code, sev Severity, module source.ModuleID, primary source.Span, msg string, notes []Note) {
	if r.Bag == nil {
		return
	}
	r.Bag.Add(Diagnostic{
		Severity: sev, Code: code, Message: msg,
		Module: module, Primary: primary, Notes: notes,
	})
}

type NopReporter struct{}

func (NopReporter) Report(Code, Severity, source.ModuleID, source.Span, string, []Note) {}
