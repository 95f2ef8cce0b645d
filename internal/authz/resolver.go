package authz

// Grants maps a role onto the actions it may take regardless of department.
type Grants map[Role][]Action

// DefaultGrants is the role scope used in production.
func DefaultGrants() Grants {
	return Grants{
		RolePurchasing: {
			ActionApprovePR, ActionRejectPR, ActionConvertPR, ActionReleaseStock,
			ActionCreatePO, ActionSubmitPO, ActionConfirmPO, ActionCancelPO,
			ActionCreateInvoice,
		},
		RoleWarehouse: {
			ActionReceiveGoods, ActionInspectGoods, ActionAcceptGoods,
		},
		RoleAccountant: {
			ActionCreateInvoice, ActionIssueInvoice, ActionVoidInvoice, ActionSettleInvoice, ActionMarkOverdue,
		},
		RoleFinance: {
			ActionCreateInvoice, ActionIssueInvoice, ActionVoidInvoice, ActionSettleInvoice, ActionMarkOverdue,
		},
	}
}

// restrictedRoles stop at their grants; department level rules do not widen them.
var restrictedRoles = map[Role]bool{
	RoleWarehouse: true,
}

// Resolver evaluates the authorization predicate. It holds no I/O and is safe
// for concurrent use once built.
type Resolver struct {
	grants map[Role]map[Action]bool
}

// NewResolver indexes grants. A nil map uses DefaultGrants.
func NewResolver(grants Grants) *Resolver {
	if grants == nil {
		grants = DefaultGrants()
	}
	idx := make(map[Role]map[Action]bool, len(grants))
	for role, actions := range grants {
		set := make(map[Action]bool, len(actions))
		for _, a := range actions {
			set[a] = true
		}
		idx[role] = set
	}
	return &Resolver{grants: idx}
}

// CanAct reports whether actor may perform action on a document owned by
// targetDepartment. Rules apply in priority order and the first match wins.
func (r *Resolver) CanAct(actor Actor, action Action, targetDepartment string) bool {
	ok, _ := r.Decision(actor, action, targetDepartment)
	return ok
}

// Decision is CanAct plus the name of the rule that decided. The reason goes
// into audit metadata and access denied messages.
func (r *Resolver) Decision(actor Actor, action Action, targetDepartment string) (bool, string) {
	switch {
	case actor.Role.Super():
		return true, "super role"
	case r.grants[actor.Role][action]:
		return true, "role grant"
	case restrictedRoles[actor.Role]:
		return false, "role scope excludes " + string(action)
	case !action.Approval():
		return false, "action requires role grant"
	case actor.IsHR() && ClassifyDepartment(targetDepartment) == ClassHR:
		return true, "hr department"
	case actor.IsManager():
		if SameDepartment(actor.Department, targetDepartment) {
			return true, "department manager"
		}
		return false, "manager of another department"
	}
	return false, "no matching rule"
}
