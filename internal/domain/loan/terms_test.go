package loan

import (
	"testing"
	"time"

	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/domain/ledger"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/domain/terms"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoInstallments = "[REQ] 140 USD for books. REPAY 50 USD Feb 1, 2025 and REPAY 100 USD Jan 1, 2025 #Boston (Zelle, Cash App)"

var fundedAt = time.Date(2024, time.December, 10, 15, 4, 5, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newConfirmed(t *testing.T) *Terms {
	t.Helper()
	lt, err := NewTerms(twoInstallments, "borrower-1", Options{DefaultCurrency: "USD"})
	require.NoError(t, err)
	require.NoError(t, lt.AssignLender("lender-1"))
	lt.LateFee = dec("10")
	require.NoError(t, lt.Confirm(fundedAt))
	return lt
}

func TestNewTermsFromDescription(t *testing.T) {
	lt, err := NewTerms(twoInstallments, " borrower-1 ", Options{DefaultCurrency: "USD"})
	require.NoError(t, err)

	assert.Equal(t, "borrower-1", lt.Borrower)
	assert.Empty(t, lt.Lender)
	assert.True(t, lt.Principal.Equal(dec("140")))
	assert.Equal(t, "USD", lt.Currency)
	assert.Equal(t, "Boston", lt.Location)
	assert.Equal(t, []string{"Zelle", "Cash App"}, lt.PaymentMethods)
	require.Len(t, lt.RepaymentAmounts, 2)
	assert.True(t, lt.RepaymentAmounts[0].Equal(dec("50")))

	assert.Equal(t, StatusCreated, lt.Status())
	assert.Nil(t, lt.FundDate())
	assert.True(t, lt.TotalBalance().Equal(dec("150")))
	assert.False(t, lt.IsInsured())

	unpaid := lt.UnpaidBalances()
	require.Len(t, unpaid, 2)
	assert.Equal(t, time.January, unpaid[0].DueDate().Month())
}

func TestNewTermsRejectsBadInput(t *testing.T) {
	_, err := NewTerms(twoInstallments, "  ", Options{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewTerms("REPAY 50 USD Feb 1, 2025", "borrower-1", Options{})
	assert.ErrorIs(t, err, terms.ErrMalformedTerms)
}

func TestConfirm(t *testing.T) {
	lt, err := NewTerms(twoInstallments, "borrower-1", Options{})
	require.NoError(t, err)

	assert.ErrorIs(t, lt.Confirm(fundedAt), ErrMissingLender)

	require.NoError(t, lt.AssignLender("lender-1"))
	require.NoError(t, lt.Confirm(fundedAt))
	assert.Equal(t, StatusActive, lt.Status())
	require.NotNil(t, lt.FundDate())
	assert.Equal(t, time.Date(2024, time.December, 10, 0, 0, 0, 0, time.UTC), *lt.FundDate())

	err = lt.Confirm(fundedAt.Add(time.Hour))
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	var ste *InvalidStateTransitionError
	require.ErrorAs(t, err, &ste)
	assert.Equal(t, StatusActive, ste.From)

	assert.ErrorIs(t, lt.AssignLender("lender-2"), ErrInvalidStateTransition)
	assert.Equal(t, "lender-1", lt.Lender)
}

func TestConfirmEmptySchedule(t *testing.T) {
	lt, err := NewTerms("[REQ] 100 USD, repay when I can", "borrower-1", Options{})
	require.NoError(t, err)
	require.NoError(t, lt.AssignLender("lender-1"))

	assert.True(t, lt.TotalBalance().IsZero())
	assert.ErrorIs(t, lt.Confirm(fundedAt), ErrEmptySchedule)
	assert.Equal(t, StatusCreated, lt.Status())
}

func TestMakePaymentWaterfall(t *testing.T) {
	lt := newConfirmed(t)

	p, err := lt.MakePayment(dec("120"), fundedAt.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Len(t, p.Applied, 2)

	balances := lt.Balances()
	assert.True(t, balances[0].Remaining().Equal(dec("30")), "feb installment")
	assert.True(t, balances[1].Remaining().Equal(dec("0")), "jan installment")
	assert.True(t, lt.TotalBalance().Equal(dec("30")))
	assert.Len(t, lt.Payments(), 1)
	assert.Equal(t, StatusActive, lt.Status())
}

func TestMakePaymentRequiresConfirmation(t *testing.T) {
	lt, err := NewTerms(twoInstallments, "borrower-1", Options{})
	require.NoError(t, err)

	_, err = lt.MakePayment(dec("10"), fundedAt)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestMakePaymentOverpayment(t *testing.T) {
	lt := newConfirmed(t)
	_, err := lt.MakePayment(dec("151"), fundedAt)
	assert.ErrorIs(t, err, ledger.ErrOverpayment)
	assert.True(t, lt.TotalBalance().Equal(dec("150")))
}

func TestFullPaymentMarksRepaid(t *testing.T) {
	lt := newConfirmed(t)
	_, err := lt.MakePayment(dec("150"), fundedAt)
	require.NoError(t, err)

	assert.True(t, lt.IsRepaid())
	assert.Equal(t, StatusRepaid, lt.Status())

	_, err = lt.MakePayment(dec("1"), fundedAt)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	assert.ErrorIs(t, lt.MarkDefaulted(), ErrInvalidStateTransition)
	assert.NoError(t, lt.MarkRepaid())
}

func TestImposeLateFeeOnce(t *testing.T) {
	lt := newConfirmed(t)
	_, err := lt.MakePayment(dec("120"), fundedAt)
	require.NoError(t, err)

	charged, err := lt.ImposeLateFee()
	require.NoError(t, err)
	assert.True(t, charged)
	assert.True(t, lt.WasChargedLateFee())
	assert.Equal(t, StatusLateFeeImposed, lt.Status())
	assert.True(t, lt.TotalBalance().Equal(dec("40")))

	charged, err = lt.ImposeLateFee()
	require.NoError(t, err)
	assert.False(t, charged)
	assert.True(t, lt.TotalBalance().Equal(dec("40")))

	_, err = lt.MakePayment(dec("40"), fundedAt)
	require.NoError(t, err)
	assert.Equal(t, StatusRepaid, lt.Status())
}

func TestTerminalStatesAreExclusive(t *testing.T) {
	lt := newConfirmed(t)
	require.NoError(t, lt.MarkDefaulted())
	assert.Equal(t, StatusDefaulted, lt.Status())
	assert.NoError(t, lt.MarkDefaulted())

	assert.ErrorIs(t, lt.MarkRepaid(), ErrInvalidStateTransition)
	_, err := lt.ImposeLateFee()
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	assert.False(t, lt.IsRepaid())
}

func TestMarkBeforeConfirmation(t *testing.T) {
	lt, err := NewTerms(twoInstallments, "borrower-1", Options{})
	require.NoError(t, err)
	assert.ErrorIs(t, lt.MarkRepaid(), ErrInvalidStateTransition)
	assert.ErrorIs(t, lt.MarkDefaulted(), ErrInvalidStateTransition)
}

func TestInsurancePresence(t *testing.T) {
	lt := newConfirmed(t)
	lt.Insurance = &Insurance{Reference: "policy-7"}
	assert.True(t, lt.IsInsured())
}

func TestAssignLenderKeepsFirstLender(t *testing.T) {
	lt, err := NewTerms(twoInstallments, "borrower-1", Options{})
	require.NoError(t, err)

	require.NoError(t, lt.AssignLender("lender-A"))
	require.NoError(t, lt.AssignLender("LENDER-A"))
	assert.ErrorIs(t, lt.AssignLender("lender-B"), ErrInvalidStateTransition)
	assert.Equal(t, "lender-A", lt.Lender)
}

func TestZeroLateFeeKeepsChargeAvailable(t *testing.T) {
	lt := newConfirmed(t)
	lt.LateFee = decimal.Zero

	charged, err := lt.ImposeLateFee()
	require.NoError(t, err)
	assert.False(t, charged)
	assert.Equal(t, StatusActive, lt.Status())

	lt.LateFee = dec("10")
	charged, err = lt.ImposeLateFee()
	require.NoError(t, err)
	assert.True(t, charged)
	assert.True(t, lt.TotalBalance().Equal(dec("170")))
}

func TestNewTermsAppliesDefaultCurrency(t *testing.T) {
	lt, err := NewTerms("[REQ] $500 for rent. REPAY $520 on Jan 15, 2025", "borrower-1", Options{DefaultCurrency: "cad"})
	require.NoError(t, err)
	assert.Equal(t, "CAD", lt.Currency)
	assert.True(t, lt.Principal.Equal(dec("500")))

	lt, err = NewTerms("[REQ] $500 EUR. REPAY $520 on Jan 15, 2025", "borrower-1", Options{DefaultCurrency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, "EUR", lt.Currency)

	_, err = NewTerms("[REQ] $500. REPAY $520 on Jan 15, 2025", "borrower-1", Options{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
