// Package models - permissions.go defines the flat resource/action permission map shared
// by admin roles (defaults) and admins (per-resource overrides).
package models

import (
	"encoding/json"
	"sort"
)

// Resource identifies a class of objects an admin can act on. The set is open:
// unknown resources are valid identifiers that simply have no grants.
type Resource string

// Action is a verb on a resource.
type Action string

// Known resources
const (
	ResourceApplications Resource = "applications"
	ResourceAdmins       Resource = "admins"
	ResourceAuditLogs    Resource = "audit_logs"
	ResourceCampaigns    Resource = "campaigns"
	ResourceReleases     Resource = "releases"
	ResourceFeedback     Resource = "feedback"
	ResourceUsers        Resource = "users"
	ResourceChat         Resource = "chat"
)

// Known actions
const (
	ActionView    Action = "view"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionExport  Action = "export"
)

// ActionSet is the set of actions granted on one resource.
type ActionSet []Action

// Contains reports whether a is in the set.
func (s ActionSet) Contains(a Action) bool {
	for _, v := range s {
		if v == a {
			return true
		}
	}
	return false
}

// Permissions maps a resource to the actions granted on it.
//
// A present key with an empty set is a real entry: it grants nothing and it
// shadows any role default for that resource. Use Actions to tell the two apart.
type Permissions map[Resource]ActionSet

// Actions returns the action set for resource and whether an entry exists.
// A nil map has no entries.
func (p Permissions) Actions(resource Resource) (ActionSet, bool) {
	if p == nil {
		return nil, false
	}
	set, ok := p[resource]
	return set, ok
}

// Merge returns a new map holding base overlaid by override, entry by entry.
// An override entry replaces the base entry for that resource wholesale.
func (p Permissions) Merge(override Permissions) Permissions {
	out := make(Permissions, len(p)+len(override))
	for r, set := range p {
		out[r] = append(ActionSet{}, set...)
	}
	for r, set := range override {
		out[r] = append(ActionSet{}, set...)
	}
	return out
}

// Resources returns the resource keys in sorted order.
func (p Permissions) Resources() []Resource {
	keys := make([]Resource, 0, len(p))
	for r := range p {
		keys = append(keys, r)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// ParsePermissions decodes a JSONB column. NULL and empty input yield a nil map,
// which is distinct from an empty object ({}): the former means "no overrides".
func ParsePermissions(raw []byte) (Permissions, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var p Permissions
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	for r, set := range p {
		if set == nil {
			p[r] = ActionSet{}
		}
	}
	return p, nil
}

// MarshalPermissions encodes p for a JSONB column. A nil map encodes as SQL NULL.
func MarshalPermissions(p Permissions) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}
