package engine

import (
	"fmt"
	"strings"
)

// OperationVerb is the kind of change a planned operation performs.
type OperationVerb string

const (
	// VerbInstall adds an item to the system.
	VerbInstall OperationVerb = "install"

	// VerbRemove removes an item from the system.
	VerbRemove OperationVerb = "remove"

	// VerbUpdate changes an item that is already present.
	VerbUpdate OperationVerb = "update"

	// VerbEnable enables an installed item.
	VerbEnable OperationVerb = "enable"

	// VerbDisable disables an installed item.
	VerbDisable OperationVerb = "disable"

	// VerbMask masks a systemd unit.
	VerbMask OperationVerb = "mask"

	// VerbUnmask unmasks a systemd unit.
	VerbUnmask OperationVerb = "unmask"

	// VerbSet writes a configuration value.
	VerbSet OperationVerb = "set"

	// VerbReset restores a configuration value to its default.
	VerbReset OperationVerb = "reset"

	// VerbCreate creates a generated file.
	VerbCreate OperationVerb = "create"

	// VerbDelete deletes a generated file.
	VerbDelete OperationVerb = "delete"

	// VerbCapture records live state into a manifest.
	VerbCapture OperationVerb = "capture"
)

// Verbs returns every known verb in display order.
func Verbs() []OperationVerb {
	return []OperationVerb{
		VerbInstall, VerbRemove, VerbUpdate, VerbEnable, VerbDisable,
		VerbMask, VerbUnmask, VerbSet, VerbReset, VerbCreate, VerbDelete, VerbCapture,
	}
}

// Validate checks if the verb is known.
func (v OperationVerb) Validate() error {
	switch v {
	case VerbInstall, VerbRemove, VerbUpdate, VerbEnable, VerbDisable,
		VerbMask, VerbUnmask, VerbSet, VerbReset, VerbCreate, VerbDelete, VerbCapture:
		return nil
	default:
		return fmt.Errorf("invalid operation verb: %s", v)
	}
}

// IsDestructive returns true if the operation takes something away from the system.
func (v OperationVerb) IsDestructive() bool {
	return v == VerbRemove || v == VerbDelete || v == VerbMask || v == VerbReset
}

// Operation is one planned unit of work. It only describes the change.
type Operation struct {
	// Verb is the kind of change.
	Verb OperationVerb `json:"verb"`

	// Target is a human-readable description of what is changed.
	Target string `json:"target"`

	// Subsystem is the id of the subsystem that owns the operation.
	Subsystem string `json:"subsystem"`
}

// String renders the operation as "<verb> <target>".
func (o Operation) String() string {
	return fmt.Sprintf("%s %s", o.Verb, o.Target)
}

// Warning is a non-fatal observation gathered while planning.
type Warning struct {
	Subsystem string `json:"subsystem"`
	Message   string `json:"message"`
}

// String renders the warning with its subsystem prefix.
func (w Warning) String() string {
	if w.Subsystem == "" {
		return w.Message
	}
	return fmt.Sprintf("%s: %s", w.Subsystem, w.Message)
}

// PlanSection groups the operations and warnings of one subsystem.
type PlanSection struct {
	// Name is the section heading, usually the subsystem display name.
	Name string `json:"name"`

	// Operations are listed in execution order.
	Operations []Operation `json:"operations"`

	// Warnings gathered while planning this section.
	Warnings []Warning `json:"warnings,omitempty"`
}

// PlanSummary is the immutable output of the planning phase.
type PlanSummary struct {
	Sections []PlanSection `json:"sections"`
}

// NewPlanSummary creates a summary with a single section.
func NewPlanSummary(name string, ops []Operation, warnings []Warning) PlanSummary {
	return PlanSummary{Sections: []PlanSection{{
		Name:       name,
		Operations: ops,
		Warnings:   warnings,
	}}}
}

// Operations returns every operation in execution order.
func (s PlanSummary) Operations() []Operation {
	ops := make([]Operation, 0, s.ActionCount())
	for _, sec := range s.Sections {
		ops = append(ops, sec.Operations...)
	}
	return ops
}

// Warnings returns every warning in section order.
func (s PlanSummary) Warnings() []Warning {
	var warnings []Warning
	for _, sec := range s.Sections {
		warnings = append(warnings, sec.Warnings...)
	}
	return warnings
}

// ActionCount returns the number of operations.
func (s PlanSummary) ActionCount() int {
	n := 0
	for _, sec := range s.Sections {
		n += len(sec.Operations)
	}
	return n
}

// IsEmpty returns true if the summary contains no operations.
func (s PlanSummary) IsEmpty() bool {
	return s.ActionCount() == 0
}

// CountByVerb returns the number of operations per verb.
func (s PlanSummary) CountByVerb() map[OperationVerb]int {
	counts := make(map[OperationVerb]int)
	for _, op := range s.Operations() {
		counts[op.Verb]++
	}
	return counts
}

// WithWarnings returns a copy of the summary with a trailing section holding
// the given warnings.
func (s PlanSummary) WithWarnings(name string, warnings []Warning) PlanSummary {
	out := s.Clone()
	if len(warnings) == 0 {
		return out
	}
	out.Sections = append(out.Sections, PlanSection{Name: name, Warnings: warnings})
	return out
}

// Clone returns a deep copy of the summary.
func (s PlanSummary) Clone() PlanSummary {
	out := PlanSummary{Sections: make([]PlanSection, len(s.Sections))}
	for i, sec := range s.Sections {
		out.Sections[i] = PlanSection{
			Name:       sec.Name,
			Operations: append([]Operation(nil), sec.Operations...),
			Warnings:   append([]Warning(nil), sec.Warnings...),
		}
	}
	return out
}

// String renders the summary as an indented plain-text listing.
func (s PlanSummary) String() string {
	var b strings.Builder
	for _, sec := range s.Sections {
		if len(sec.Operations) == 0 && len(sec.Warnings) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s:\n", sec.Name)
		for _, op := range sec.Operations {
			fmt.Fprintf(&b, "  %s\n", op)
		}
		for _, w := range sec.Warnings {
			fmt.Fprintf(&b, "  warning: %s\n", w.Message)
		}
	}
	return b.String()
}
