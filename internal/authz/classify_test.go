package authz

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	require.Equal(t, "produksi benang", Normalize("  PRODUKSI   Benang "))
	require.True(t, SameDepartment("Produksi", " produksi"))
	require.False(t, SameDepartment("", ""))
	require.False(t, SameDepartment("Produksi", "Produksi Kain"))
}

func TestClassifyDepartment(t *testing.T) {
	for _, name := range []string{"HR", "hrd", "SDM", "Human Resources", "Sumber Daya Manusia", "Personalia", "HR & GA", "Staff SDM"} {
		require.Equal(t, ClassHR, ClassifyDepartment(name), name)
	}
	for _, name := range []string{"", "Produksi", "Shrink", "Chrome Plating", "Finance"} {
		require.Equal(t, ClassNone, ClassifyDepartment(name), name)
	}
}

func TestIsManager(t *testing.T) {
	require.True(t, Actor{Position: "Kepala Bagian Produksi"}.IsManager())
	require.True(t, Actor{Position: "Head of Weaving"}.IsManager())
	require.True(t, Actor{Role: RoleManager}.IsManager())
	require.False(t, Actor{Position: "Headcount Analyst"}.IsManager())
	require.False(t, Actor{Position: "Operator"}.IsManager())
}
