package journal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func TestValidateLines(t *testing.T) {
	cases := []struct {
		name    string
		lines   []LineInput
		wantErr error
	}{
		{
			name:    "no lines",
			lines:   nil,
			wantErr: ErrNoLines,
		},
		{
			name: "missing account",
			lines: []LineInput{
				{Debit: dec("10.00")},
				{AccountID: 20, Credit: dec("10.00")},
			},
			wantErr: ErrMissingAccount,
		},
		{
			name: "negative amount",
			lines: []LineInput{
				{AccountID: 10, Debit: dec("-5.00")},
				{AccountID: 20, Credit: dec("-5.00")},
			},
			wantErr: ErrNegativeAmount,
		},
		{
			name: "both sides set",
			lines: []LineInput{
				{AccountID: 10, Debit: dec("5.00"), Credit: dec("5.00")},
			},
			wantErr: ErrBothDebitAndCredit,
		},
		{
			name: "neither side set",
			lines: []LineInput{
				{AccountID: 10},
				{AccountID: 20, Credit: dec("10.00")},
			},
			wantErr: ErrZeroAmount,
		},
		{
			name: "too many decimal places",
			lines: []LineInput{
				{AccountID: 10, Debit: dec("10.005")},
				{AccountID: 20, Credit: dec("10.005")},
			},
			wantErr: ErrAmountScale,
		},
		{
			name: "unbalanced",
			lines: []LineInput{
				{AccountID: 10, Debit: dec("100.00")},
				{AccountID: 20, Credit: dec("99.00")},
			},
			wantErr: ErrUnbalanced,
		},
		{
			name: "balanced multi line",
			lines: []LineInput{
				{AccountID: 10, Debit: dec("60.00")},
				{AccountID: 30, Debit: dec("40.00")},
				{AccountID: 20, Credit: dec("100.00")},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateLines(tc.lines)
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestUnbalancedErrorReportsTotals(t *testing.T) {
	err := validateLines([]LineInput{
		{AccountID: 10, Debit: dec("100.00")},
		{AccountID: 20, Credit: dec("99.50")},
	})
	require.ErrorIs(t, err, ErrUnbalanced)
	require.Contains(t, err.Error(), "100.00")
	require.Contains(t, err.Error(), "99.50")
}

func TestCreateInputValidate(t *testing.T) {
	valid := CreateInput{
		Number: "JRN-010",
		Date:   time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		Lines: []LineInput{
			{AccountID: 10, Debit: dec("25.00")},
			{AccountID: 20, Credit: dec("25.00")},
		},
	}
	require.NoError(t, valid.Validate())

	missingNumber := valid
	missingNumber.Number = ""
	require.Equal(t, shared.KindValidation, shared.KindOf(missingNumber.Validate()))

	missingDate := valid
	missingDate.Date = time.Time{}
	require.Equal(t, shared.KindValidation, shared.KindOf(missingDate.Validate()))

	badRef := valid
	badRef.Reference = &shared.DocumentRef{Kind: "invoice"}
	require.Error(t, badRef.Validate())
}

func TestReverseLinesSwapsSides(t *testing.T) {
	original := []Line{
		{AccountID: 10, Debit: dec("75.00"), CostCenter: "OPS", Memo: "rent"},
		{AccountID: 20, Credit: dec("75.00")},
	}
	reversed := reverseLines(original)
	require.Len(t, reversed, 2)
	require.True(t, reversed[0].Credit.Equal(dec("75.00")))
	require.True(t, reversed[0].Debit.IsZero())
	require.Equal(t, "OPS", reversed[0].CostCenter)
	require.True(t, reversed[1].Debit.Equal(dec("75.00")))
}

func TestLineAccountsDeduplicates(t *testing.T) {
	lines := []Line{
		{AccountID: 10, Debit: decimal.NewFromInt(1)},
		{AccountID: 20, Credit: decimal.NewFromInt(1)},
		{AccountID: 10, Debit: decimal.NewFromInt(2)},
	}
	require.Equal(t, []int64{10, 20}, lineAccounts(lines))
}
