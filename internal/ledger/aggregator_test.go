package ledger

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		due  float64
		paid float64
		want ContributionStatus
	}{
		{"exactlyPaid", 1000, 1000, StatusPaid},
		{"withinTolerance", 1000, 999.99, StatusPaid},
		{"overpaid", 1000, 1100, StatusPaid},
		{"partial", 1000, 500, StatusPartial},
		{"nothingPaid", 1000, 0, StatusPending},
		{"tracePaymentIsPending", 1000, 0.005, StatusPending},
		{"zeroDue", 0, 0, StatusPaid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.due, tc.paid); got != tc.want {
				t.Fatalf("Classify(%v, %v) = %s, want %s", tc.due, tc.paid, got, tc.want)
			}
		})
	}
}

func TestClassifyAbsorbsFloatDrift(t *testing.T) {
	// Ten additions of 0.1 do not sum to exactly 1 in binary floating point.
	var paid float64
	for i := 0; i < 10; i++ {
		paid += 0.1
	}
	if got := Classify(1.0, paid); got != StatusPaid {
		t.Fatalf("accumulated payment should classify as PAID, got %s", got)
	}
}

func TestRemainingNeverNegative(t *testing.T) {
	if got := Remaining(100, 150); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
	if got := Remaining(100, 40); got != 60 {
		t.Fatalf("expected 60, got %v", got)
	}
}
