package authz

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanActExamples(t *testing.T) {
	r := NewResolver(nil)
	cases := []struct {
		name   string
		actor  Actor
		action Action
		target string
		want   bool
	}{
		{"director approves anything", Actor{Role: RoleDirector, Department: "Board"}, ActionConfirmPO, "Produksi", true},
		{"admin approves anything", Actor{Role: RoleAdmin}, ActionApprovePR, "Gudang", true},
		{"manager of same department", Actor{Role: RoleManager, Department: "Produksi"}, ActionApprovePR, "Produksi", true},
		{"manager compare ignores case and spacing", Actor{Role: RoleStaff, Department: "  produksi ", Position: "Manager Produksi"}, ActionApprovePR, "PRODUKSI", true},
		{"manager of other department", Actor{Role: RoleManager, Department: "Finance"}, ActionApprovePR, "Produksi", false},
		{"accountant of finance cannot approve PR", Actor{Role: RoleAccountant, Department: "Finance", Position: "Accountant"}, ActionApprovePR, "Produksi", false},
		{"accountant issues invoices", Actor{Role: RoleAccountant, Department: "Finance"}, ActionIssueInvoice, "", true},
		{"purchasing approves cross department", Actor{Role: RolePurchasing, Department: "Purchasing"}, ActionApprovePR, "Produksi", true},
		{"warehouse receives goods", Actor{Role: RoleWarehouse, Department: "Gudang"}, ActionReceiveGoods, "Produksi", true},
		{"warehouse head cannot approve PR", Actor{Role: RoleWarehouse, Department: "Gudang", Position: "Kepala Gudang"}, ActionApprovePR, "Gudang", false},
		{"hr staff on hr documents", Actor{Role: RoleStaff, Department: "SDM", Position: "Staff"}, ActionApprovePR, "HRD", true},
		{"hr position on hr documents", Actor{Role: RoleStaff, Department: "General Affairs", Position: "HR Officer"}, ActionApprovePR, "Human Resources", true},
		{"hr staff on production documents", Actor{Role: RoleStaff, Department: "SDM"}, ActionApprovePR, "Produksi", false},
		{"hr cannot confirm invoices", Actor{Role: RoleHR, Department: "HR"}, ActionIssueInvoice, "HR", false},
		{"staff default deny", Actor{Role: RoleStaff, Department: "Produksi", Position: "Operator"}, ActionApprovePR, "Produksi", false},
		{"manager cannot receive goods", Actor{Role: RoleManager, Department: "Produksi"}, ActionReceiveGoods, "Produksi", false},
		{"substring does not make HR", Actor{Role: RoleStaff, Department: "Shrink", Position: "Operator"}, ActionApprovePR, "Shrink", false},
		{"empty departments never match", Actor{Role: RoleManager}, ActionApprovePR, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, r.CanAct(tc.actor, tc.action, tc.target))
		})
	}
}

// TestCanActMatrix checks the predicate against an independent statement of
// the priority rules for every role, department, position and target.
func TestCanActMatrix(t *testing.T) {
	r := NewResolver(nil)
	roles := []Role{RoleAdmin, RoleCEO, RoleDirector, RolePurchasing, RoleWarehouse, RoleManager, RoleHR, RoleAccountant, RoleFinance, RoleStaff}
	departments := []string{"Produksi", "produksi ", "Finance", "SDM", "HRD", "Gudang", "Purchasing", ""}
	positions := []string{"", "Operator", "Manager", "Kepala Bagian", "HR Officer", "Supervisor Produksi"}
	actions := []Action{
		ActionApprovePR, ActionRejectPR, ActionConvertPR, ActionReleaseStock, ActionCreatePO, ActionSubmitPO,
		ActionConfirmPO, ActionCancelPO, ActionReceiveGoods, ActionInspectGoods, ActionAcceptGoods,
		ActionCreateInvoice, ActionIssueInvoice, ActionVoidInvoice, ActionSettleInvoice, ActionMarkOverdue,
	}
	grants := DefaultGrants()
	granted := func(role Role, a Action) bool {
		for _, g := range grants[role] {
			if g == a {
				return true
			}
		}
		return false
	}
	hrDept := map[string]bool{"SDM": true, "HRD": true}
	manager := map[string]bool{"Manager": true, "Kepala Bagian": true, "Supervisor Produksi": true}
	sameDept := func(a, b string) bool {
		norm := map[string]string{"Produksi": "produksi", "produksi ": "produksi"}
		na, ok := norm[a]
		if !ok {
			na = a
		}
		nb, ok := norm[b]
		if !ok {
			nb = b
		}
		return na != "" && na == nb
	}

	for _, role := range roles {
		for _, dept := range departments {
			for _, pos := range positions {
				for _, target := range departments {
					for _, action := range actions {
						actor := Actor{Role: role, Department: dept, Position: pos}
						var want bool
						switch {
						case role == RoleAdmin || role == RoleCEO || role == RoleDirector:
							want = true
						case granted(role, action):
							want = true
						case role == RoleWarehouse || !action.Approval():
							want = false
						case (role == RoleHR || hrDept[dept] || pos == "HR Officer") && hrDept[target]:
							want = true
						case role == RoleManager || manager[pos]:
							want = sameDept(dept, target)
						}
						name := fmt.Sprintf("%s/%q/%q/%q/%s", role, dept, pos, target, action)
						require.Equal(t, want, r.CanAct(actor, action, target), name)
					}
				}
			}
		}
	}
}

func TestDecisionReason(t *testing.T) {
	r := NewResolver(nil)
	ok, reason := r.Decision(Actor{Role: RoleManager, Department: "Finance"}, ActionApprovePR, "Produksi")
	require.False(t, ok)
	require.Equal(t, "manager of another department", reason)

	ok, reason = r.Decision(Actor{Role: RoleCEO}, ActionVoidInvoice, "")
	require.True(t, ok)
	require.Equal(t, "super role", reason)
}

func TestCustomGrants(t *testing.T) {
	r := NewResolver(Grants{RoleStaff: {ActionReceiveGoods}})
	require.True(t, r.CanAct(Actor{Role: RoleStaff}, ActionReceiveGoods, "Gudang"))
	require.False(t, r.CanAct(Actor{Role: RoleAccountant}, ActionIssueInvoice, ""))
}
