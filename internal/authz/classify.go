package authz

import (
	"strings"

	"golang.org/x/text/cases"
)

// Normalize folds case and collapses whitespace so " Produksi " and "PRODUKSI"
// compare equal. A Caser is stateful, so each call folds with its own.
func Normalize(s string) string {
	return strings.Join(strings.Fields(cases.Fold().String(s)), " ")
}

// SameDepartment compares two department names case and whitespace insensitively.
func SameDepartment(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	return na != "" && na == nb
}

// DepartmentClass groups departments whose names differ but which share an
// authorization meaning.
type DepartmentClass string

const (
	ClassNone DepartmentClass = ""
	ClassHR   DepartmentClass = "HR"
)

// hrNames lists complete department or position names that denote HR.
var hrNames = map[string]bool{
	"hr":                   true,
	"hrd":                  true,
	"hrga":                 true,
	"sdm":                  true,
	"personalia":           true,
	"human resources":      true,
	"human resource":       true,
	"human capital":        true,
	"sumber daya manusia":  true,
	"hr & ga":              true,
	"hr and ga":            true,
	"human resources & ga": true,
}

// hrTokens are whole words that mark a position or department as HR, so
// "HR Manager" and "Staff SDM" classify while "Shrink Wrap" does not.
var hrTokens = map[string]bool{
	"hr":  true,
	"hrd": true,
	"sdm": true,
}

// managerTokens are whole words that give a position manager authority.
var managerTokens = map[string]bool{
	"manager":    true,
	"manajer":    true,
	"kepala":     true,
	"kabag":      true,
	"head":       true,
	"supervisor": true,
	"gm":         true,
}

// ClassifyDepartment resolves name through the closed HR alias table.
func ClassifyDepartment(name string) DepartmentClass {
	n := Normalize(name)
	if n == "" {
		return ClassNone
	}
	if hrNames[n] {
		return ClassHR
	}
	for _, tok := range tokens(n) {
		if hrTokens[tok] {
			return ClassHR
		}
	}
	return ClassNone
}

// IsHR reports whether the actor belongs to HR by department or position.
func (a Actor) IsHR() bool {
	return a.Role == RoleHR || ClassifyDepartment(a.Department) == ClassHR || ClassifyDepartment(a.Position) == ClassHR
}

// IsManager reports whether the actor holds manager level authority.
func (a Actor) IsManager() bool {
	if a.Role == RoleManager {
		return true
	}
	for _, tok := range tokens(Normalize(a.Position)) {
		if managerTokens[tok] {
			return true
		}
	}
	return false
}

func tokens(normalized string) []string {
	return strings.FieldsFunc(normalized, func(r rune) bool {
		return r == ' ' || r == '/' || r == '-' || r == ',' || r == '&' || r == '.' || r == '(' || r == ')'
	})
}
