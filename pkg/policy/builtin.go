package policy

// DefaultProtectedUnits are the units the built-in policy refuses to mask.
var DefaultProtectedUnits = []string{
	"dbus.service",
	"dbus-broker.service",
	"gdm.service",
	"NetworkManager.service",
	"polkit.service",
	"rpm-ostreed.service",
	"systemd-journald.service",
	"systemd-logind.service",
}

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		removalsPolicy(),
		protectedUnitsPolicy(),
		hostScopePolicy(),
	}
}

// removalsPolicy warns when a plan takes items away from the system.
func removalsPolicy() Policy {
	return Policy{
		Name:        "removals",
		Description: "Warns when a plan removes or deletes items",
		Enabled:     true,
		Rego: `package hostsync.removals

import rego.v1

removed contains item if {
	some op in input.operations
	op.verb in {"remove", "delete"}
	item := sprintf("%s/%s", [op.subsystem, op.target])
}

warn contains msg if {
	count(removed) > 0
	msg := sprintf("plan removes %d item(s): %s", [count(removed), concat(", ", sort(removed))])
}
`,
	}
}

// protectedUnitsPolicy denies masking units the session depends on.
func protectedUnitsPolicy() Policy {
	return Policy{
		Name:        "protected-units",
		Description: "Denies masking protected systemd units",
		Enabled:     true,
		Rego: `package hostsync.protected_units

import rego.v1

deny contains violation if {
	some op in input.operations
	op.subsystem == "service"
	op.verb == "mask"
	unit := split(op.target, " ")[0]
	unit in input.protected_units
	violation := {
		"message": sprintf("masking %s is not allowed, the unit is protected", [unit]),
		"subsystem": op.subsystem,
	}
}
`,
	}
}

// hostScopePolicy warns when host mode changes system-wide state.
func hostScopePolicy() Policy {
	return Policy{
		Name:        "host-scope",
		Description: "Warns when operations run with elevated privileges",
		Enabled:     true,
		Rego: `package hostsync.host_scope

import rego.v1

elevated contains name if {
	input.direction == "apply"
	input.mode == "host"
	some op in input.operations
	name := op.subsystem
	name in {"package", "flatpak", "service"}
}

warn contains msg if {
	count(elevated) > 0
	msg := sprintf("host mode runs %s changes through sudo", [concat(", ", sort(elevated))])
}
`,
	}
}
