package tenant

import (
	"github.com/absentify/allowance-engine/generic"
)

// Caller is the identity an operation runs as.
type Caller struct {
	MemberID    generic.MemberID
	WorkspaceID generic.WorkspaceID
	IsAdmin     bool
}

// System is the identity of background jobs. It passes every check.
var System = Caller{IsAdmin: true}

func (c Caller) IsSystem() bool { return c.MemberID == "" && c.WorkspaceID == "" && c.IsAdmin }

// RequireWorkspace rejects cross-workspace access.
func (c Caller) RequireWorkspace(workspaceID generic.WorkspaceID) error {
	if c.IsSystem() {
		return nil
	}
	if c.WorkspaceID != workspaceID {
		return generic.Unauthorized("resource belongs to another workspace")
	}
	return nil
}

// RequireAdmin rejects non-admins and cross-workspace access.
func (c Caller) RequireAdmin(workspaceID generic.WorkspaceID) error {
	if err := c.RequireWorkspace(workspaceID); err != nil {
		return err
	}
	if !c.IsAdmin {
		return generic.Unauthorized("admin role required")
	}
	return nil
}

// RequireSelfOrAdmin lets a member act on their own data.
func (c Caller) RequireSelfOrAdmin(workspaceID generic.WorkspaceID, memberID generic.MemberID) error {
	if err := c.RequireWorkspace(workspaceID); err != nil {
		return err
	}
	if c.IsAdmin || c.MemberID == memberID {
		return nil
	}
	return generic.Unauthorized("only the member or an admin may do this")
}
