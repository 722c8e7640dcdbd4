package domain

import "fmt"

// Module names a feature area a delegate may be granted access to.
type Module string

const (
	ModulePatients      Module = "patients"
	ModuleScheduling    Module = "scheduling"
	ModulePrescriptions Module = "prescriptions"
	ModuleExams         Module = "exams"
	ModuleNotes         Module = "notes"
	ModuleFinancial     Module = "financial"
	ModuleReports       Module = "reports"
)

// Action names an operation within a module.
type Action string

const (
	ActionRead        Action = "read"
	ActionWrite       Action = "write"
	ActionViewDetails Action = "view_details"
)

// PermissionMap is a per-module, per-action boolean grant table. Only the
// recognized module and action names may appear.
type PermissionMap map[Module]map[Action]bool

var knownModules = map[Module]bool{
	ModulePatients:      true,
	ModuleScheduling:    true,
	ModulePrescriptions: true,
	ModuleExams:         true,
	ModuleNotes:         true,
	ModuleFinancial:     true,
	ModuleReports:       true,
}

var knownActions = map[Action]bool{
	ActionRead:        true,
	ActionWrite:       true,
	ActionViewDetails: true,
}

// DefaultPermissions returns the grant table applied when a delegate is
// provisioned without an explicit permission map: read access to the
// day-to-day modules, no financial or report access.
func DefaultPermissions() PermissionMap {
	return PermissionMap{
		ModulePatients:      {ActionRead: true, ActionWrite: false, ActionViewDetails: true},
		ModuleScheduling:    {ActionRead: true, ActionWrite: true, ActionViewDetails: true},
		ModulePrescriptions: {ActionRead: true, ActionWrite: false, ActionViewDetails: false},
		ModuleExams:         {ActionRead: true, ActionWrite: false, ActionViewDetails: false},
		ModuleNotes:         {ActionRead: false, ActionWrite: false, ActionViewDetails: false},
		ModuleFinancial:     {ActionRead: false, ActionWrite: false, ActionViewDetails: false},
		ModuleReports:       {ActionRead: false, ActionWrite: false, ActionViewDetails: false},
	}
}

// Validate checks that every module and action name in the map is recognized.
// It reports the first invalid key found as a validation error.
func (p PermissionMap) Validate() error {
	for module, actions := range p {
		if !knownModules[module] {
			return NewValidationError(string(module), fmt.Sprintf("unknown permission module %q", module))
		}
		for action := range actions {
			if !knownActions[action] {
				return NewValidationError(
					fmt.Sprintf("%s.%s", module, action),
					fmt.Sprintf("unknown permission action %q in module %q", action, module),
				)
			}
		}
	}
	return nil
}

// ParsePermissionMap converts an untyped grant table, as decoded from a JSON
// request body, into a PermissionMap. Unknown module or action names and
// non-boolean values are rejected, naming the first offending key.
func ParsePermissionMap(raw map[string]map[string]any) (PermissionMap, error) {
	parsed := make(PermissionMap, len(raw))
	for moduleName, actions := range raw {
		module := Module(moduleName)
		if !knownModules[module] {
			return nil, NewValidationError(moduleName, fmt.Sprintf("unknown permission module %q", moduleName))
		}
		parsed[module] = make(map[Action]bool, len(actions))
		for actionName, value := range actions {
			action := Action(actionName)
			key := fmt.Sprintf("%s.%s", moduleName, actionName)
			if !knownActions[action] {
				return nil, NewValidationError(key, fmt.Sprintf("unknown permission action %q in module %q", actionName, moduleName))
			}
			granted, ok := value.(bool)
			if !ok {
				return nil, NewValidationError(key, fmt.Sprintf("permission value for %s must be a boolean", key))
			}
			parsed[module][action] = granted
		}
	}
	return parsed, nil
}

// Allows reports whether the map grants the given action on the given module.
// Missing modules or actions deny.
func (p PermissionMap) Allows(module Module, action Action) bool {
	actions, ok := p[module]
	if !ok {
		return false
	}
	return actions[action]
}
