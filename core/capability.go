package core

import "strings"

// Capability is a bitset of the operation groups a backend implements.
type Capability uint32

const (
	// CapBasic: flat access to the single folder BasicFolderID.
	CapBasic Capability = 1 << iota
	// CapFolders: folder-structured read access and folder management.
	CapFolders
	// CapGroupware: full groupware CRUD on top of folder access.
	CapGroupware
	// CapSync: delta queries and sequence numbers.
	CapSync
	// CapSearch: free-text event search.
	CapSearch
	// CapCTag: collection tag freshness token.
	CapCTag
	// CapAlarms: personal alarms and alarm triggers.
	CapAlarms
	// CapScheduling: scheduling message analysis and ingestion.
	CapScheduling
)

// CapAccess is the set of which at least one member is required.
const CapAccess = CapBasic | CapFolders | CapGroupware

var capabilityNames = []struct {
	c    Capability
	name string
}{
	{CapBasic, "basic"},
	{CapFolders, "folders"},
	{CapGroupware, "groupware"},
	{CapSync, "sync"},
	{CapSearch, "search"},
	{CapCTag, "ctag"},
	{CapAlarms, "alarms"},
	{CapScheduling, "scheduling"},
}

// Has reports whether every capability in other is present.
func (c Capability) Has(other Capability) bool {
	return c&other == other
}

// Any reports whether at least one capability in other is present.
func (c Capability) Any(other Capability) bool {
	return c&other != 0
}

// Valid reports whether the set contains an access capability.
func (c Capability) Valid() bool {
	return c.Any(CapAccess)
}

func (c Capability) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	for _, n := range capabilityNames {
		if c.Has(n.c) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Names returns the capability names, used when serializing folders.
func (c Capability) Names() []string {
	var names []string
	for _, n := range capabilityNames {
		if c.Has(n.c) {
			names = append(names, n.name)
		}
	}
	return names
}
