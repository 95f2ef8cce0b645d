package inventory

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	d := decimal.NewFromInt
	cases := []struct {
		name  string
		total decimal.Decimal
		th    Thresholds
		want  Status
	}{
		{"manual alert does not override healthy stock", d(100), Thresholds{MinStock: d(10), ManualAlert: true}, StatusHealthy},
		{"zero stock is critical", d(0), Thresholds{MinStock: d(10)}, StatusCritical},
		{"below minimum is low", d(5), Thresholds{MinStock: d(10)}, StatusLowStock},
		{"below reorder level is low", d(15), Thresholds{MinStock: d(10), ReorderLevel: d(20)}, StatusLowStock},
		{"above both thresholds is healthy", d(50), Thresholds{MinStock: d(10), ReorderLevel: d(20)}, StatusHealthy},
		{"manual alert below reorder is critical", d(15), Thresholds{MinStock: d(10), ReorderLevel: d(20), ManualAlert: true}, StatusCritical},
		{"manual alert at reorder is critical", d(20), Thresholds{MinStock: d(10), ReorderLevel: d(20), ManualAlert: true}, StatusCritical},
		{"at minimum is low", d(10), Thresholds{MinStock: d(10)}, StatusLowStock},
		{"negative stock is critical", d(-1), Thresholds{}, StatusCritical},
		{"no thresholds and stock is healthy", decimal.RequireFromString("0.5"), Thresholds{}, StatusHealthy},
		{"manual alert with zero stock", d(0), Thresholds{ManualAlert: true}, StatusCritical},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Classify(tc.total, tc.th))
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	th := Thresholds{MinStock: decimal.NewFromInt(10), ReorderLevel: decimal.NewFromInt(20)}
	for i := int64(0); i <= 60; i++ {
		total := decimal.NewFromInt(i)
		first := Classify(total, th)
		require.Equal(t, first, Classify(total, th))
		switch {
		case i == 0:
			require.Equal(t, StatusCritical, first)
		case i < 20:
			require.Equal(t, StatusLowStock, first)
		default:
			require.Equal(t, StatusHealthy, first)
		}
	}
}

func TestAvailable(t *testing.T) {
	l := StockLevel{Quantity: decimal.NewFromInt(10), ReservedQty: decimal.NewFromInt(4)}
	require.True(t, l.Available().Equal(decimal.NewFromInt(6)))
	l.ReservedQty = decimal.NewFromInt(12)
	require.True(t, l.Available().IsZero())
}
