package models

import (
	"testing"
	"time"
)

func TestMonthOf(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			name: "mid month",
			in:   time.Date(2025, 6, 17, 13, 45, 12, 0, time.UTC),
			want: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "first instant of month",
			in:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			want: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "last instant of month",
			in:   time.Date(2025, 6, 30, 23, 59, 59, 999999999, time.UTC),
			want: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "non UTC zone normalized to UTC month",
			in:   time.Date(2025, 7, 1, 3, 0, 0, 0, time.FixedZone("UTC+5", 5*3600)),
			want: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "december",
			in:   time.Date(2024, 12, 31, 12, 0, 0, 0, time.UTC),
			want: time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MonthOf(tt.in)
			if !got.Equal(tt.want) {
				t.Errorf("MonthOf(%v) = %v, want %v", tt.in, got, tt.want)
			}
			if got.Location() != time.UTC {
				t.Errorf("MonthOf(%v) location = %v, want UTC", tt.in, got.Location())
			}
		})
	}
}

func TestMonthOfIsStableAcrossMonth(t *testing.T) {
	// Every instant of a month must map to the same period key, otherwise
	// a caller would get more than one balance row per month.
	first := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	mid := time.Date(2025, 2, 14, 9, 30, 0, 0, time.UTC)
	last := time.Date(2025, 2, 28, 23, 59, 59, 0, time.UTC)

	if MonthOf(first) != MonthOf(mid) || MonthOf(mid) != MonthOf(last) {
		t.Errorf("MonthOf not stable: %v, %v, %v", MonthOf(first), MonthOf(mid), MonthOf(last))
	}
}

func TestBalanceTransactionReasons(t *testing.T) {
	if TransactionReasonDeduction == TransactionReasonAdminAdjustment {
		t.Error("transaction reasons must be distinct")
	}
	if TransactionReasonDeduction != "deduction" {
		t.Errorf("TransactionReasonDeduction = %q, want %q", TransactionReasonDeduction, "deduction")
	}
	if TransactionReasonAdminAdjustment != "admin_adjustment" {
		t.Errorf("TransactionReasonAdminAdjustment = %q, want %q", TransactionReasonAdminAdjustment, "admin_adjustment")
	}
}
