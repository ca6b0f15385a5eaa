// Package policy guards plans with Rego policies evaluated by OPA.
//
// A policy is a Rego module that may define two sets over the plan input:
//
//	deny contains msg if { ... }   blocks the plan with a planning error
//	warn contains msg if { ... }   adds a warning to the plan preview
//
// Elements are either strings or objects with "message" and an optional
// "subsystem". The input document is an Input: the direction (apply or
// capture), the context mode, the prune flag and the planned operations.
//
// Built-in policies warn about removals and elevated changes, and deny masking
// the units in DefaultProtectedUnits. More policies are loaded from the policy
// directories, for example:
//
//	package local.flatpak
//
//	import rego.v1
//
//	deny contains msg if {
//		some op in input.operations
//		op.subsystem == "flatpak"
//		op.verb == "remove"
//		op.target == "org.mozilla.firefox"
//		msg := "firefox must stay installed"
//	}
package policy
