package types

import "github.com/google/uuid"

// SID is a 128-bit persistent server identity.
type SID = uuid.UUID

// Role is one of the nine server roles recognized by the SID snapshot
// format.
type Role string

const (
	RoleRoot     Role = "ROOT"
	RolePrime    Role = "PRIME"
	RoleConfig   Role = "CONFIG"
	RoleLocal    Role = "LOCAL"
	RoleMeta     Role = "META"
	RoleData     Role = "DATA"
	RoleDir      Role = "DIR"
	RoleDirData  Role = "DIRDATA"
	RoleSecurity Role = "SECURITY"
)

// Roles lists every recognized role, in snapshot-format order; used both
// to validate unknown role names at load time and to drive tests.
var Roles = []Role{
	RoleRoot, RolePrime, RoleConfig, RoleLocal,
	RoleMeta, RoleData, RoleDir, RoleDirData, RoleSecurity,
}

// ValidRole reports whether r is one of the nine recognized roles.
func ValidRole(r Role) bool {
	for _, known := range Roles {
		if known == r {
			return true
		}
	}
	return false
}

// TypeBinding is one (role, fs_id) pair a server advertises. fs_id == 0
// means "applies to all filesystems".
type TypeBinding struct {
	Role Role
	FSID uint32
}

// SidRecord is one entry in the SID cache.
type SidRecord struct {
	SID     SID
	Alias   string
	URL     string
	BMIAddr string // network handle, e.g. "tcp://host:port"
	Attrs   map[string]int32
	Types   []TypeBinding
}

// HasType reports whether the record advertises role for fsID, honoring
// the fs_id=0 "applies to all filesystems" wildcard.
func (r SidRecord) HasType(role Role, fsID uint32) bool {
	for _, t := range r.Types {
		if t.Role == role && (t.FSID == fsID || t.FSID == 0) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy, so callers (and the cache's secondary
// indices) never alias a caller's mutable maps/slices.
func (r SidRecord) Clone() SidRecord {
	out := r
	if r.Attrs != nil {
		out.Attrs = make(map[string]int32, len(r.Attrs))
		for k, v := range r.Attrs {
			out.Attrs[k] = v
		}
	}
	if r.Types != nil {
		out.Types = append([]TypeBinding(nil), r.Types...)
	}
	return out
}
