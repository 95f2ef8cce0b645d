// Package authz decides whether an actor may act on a department's documents.
package authz

import "strings"

// Role enumerates the roles issued by the identity provider.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleCEO        Role = "CEO"
	RoleDirector   Role = "DIRECTOR"
	RolePurchasing Role = "PURCHASING"
	RoleWarehouse  Role = "WAREHOUSE"
	RoleManager    Role = "MANAGER"
	RoleHR         Role = "HR"
	RoleAccountant Role = "ACCOUNTANT"
	RoleFinance    Role = "FINANCE"
	RoleStaff      Role = "STAFF"
)

var knownRoles = map[Role]bool{
	RoleAdmin: true, RoleCEO: true, RoleDirector: true, RolePurchasing: true,
	RoleWarehouse: true, RoleManager: true, RoleHR: true, RoleAccountant: true,
	RoleFinance: true, RoleStaff: true,
}

// ParseRole maps a claim onto the closed role set. Unknown claims become STAFF.
func ParseRole(raw string) Role {
	r := Role(strings.ToUpper(strings.TrimSpace(raw)))
	switch r {
	case "SUPERADMIN", "SUPER_ADMIN", "ADMINISTRATOR":
		return RoleAdmin
	case "DIREKTUR":
		return RoleDirector
	case "HEAD":
		return RoleManager
	}
	if knownRoles[r] {
		return r
	}
	return RoleStaff
}

// Super reports whether the role bypasses every other rule.
func (r Role) Super() bool {
	return r == RoleAdmin || r == RoleCEO || r == RoleDirector
}

// Action enumerates the guarded operations.
type Action string

const (
	ActionApprovePR     Action = "pr.approve"
	ActionRejectPR      Action = "pr.reject"
	ActionConvertPR     Action = "pr.convert"
	ActionReleaseStock  Action = "stock.release"
	ActionCreatePO      Action = "po.create"
	ActionSubmitPO      Action = "po.submit"
	ActionConfirmPO     Action = "po.confirm"
	ActionCancelPO      Action = "po.cancel"
	ActionReceiveGoods  Action = "grn.receive"
	ActionInspectGoods  Action = "grn.inspect"
	ActionAcceptGoods   Action = "grn.accept"
	ActionCreateInvoice Action = "invoice.create"
	ActionIssueInvoice  Action = "invoice.issue"
	ActionVoidInvoice   Action = "invoice.void"
	ActionSettleInvoice Action = "invoice.settle"
	ActionMarkOverdue   Action = "invoice.overdue"
)

// approvalActions are the decisions a department head or HR may take on
// documents of their own department.
var approvalActions = map[Action]bool{
	ActionApprovePR:    true,
	ActionRejectPR:     true,
	ActionReleaseStock: true,
	ActionSubmitPO:     true,
	ActionConfirmPO:    true,
	ActionCancelPO:     true,
}

// Approval reports whether a is a department level approval decision.
func (a Action) Approval() bool { return approvalActions[a] }

// Identity is what the upstream auth provider asserts about the caller.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// Actor is the resolved caller. It is built once per request and passed down.
type Actor struct {
	EmployeeID int64  `json:"employee_id"`
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Role       Role   `json:"role"`
	Department string `json:"department"`
	Position   string `json:"position"`
}
