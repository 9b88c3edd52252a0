package ledger

import (
	"testing"

	"github.com/lattice-exchange/matchcore/coretypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountLedger_ReserveRelease(t *testing.T) {
	l := NewAccountLedger()
	l.Deposit("alice", "USD", coretypes.MustPrice("100"))

	rej := l.Reserve("alice", "USD", coretypes.MustPrice("40"))
	require.Nil(t, rej)

	bal := l.Balance("alice", "USD")
	assert.True(t, bal.Free.Equal(coretypes.MustPrice("60")))
	assert.True(t, bal.Reserved.Equal(coretypes.MustPrice("40")))

	l.Release("alice", "USD", coretypes.MustPrice("40"))
	bal = l.Balance("alice", "USD")
	assert.True(t, bal.Free.Equal(coretypes.MustPrice("100")))
	assert.True(t, bal.Reserved.IsZero())
}

func TestAccountLedger_ReserveInsufficientRejects(t *testing.T) {
	l := NewAccountLedger()
	l.Deposit("alice", "USD", coretypes.MustPrice("10"))

	rej := l.Reserve("alice", "USD", coretypes.MustPrice("11"))
	require.NotNil(t, rej)
	assert.Equal(t, coretypes.RejectInsufficientBalance, rej.Reason)
}

func TestAccountLedger_ReleaseClampsAtReserved(t *testing.T) {
	l := NewAccountLedger()
	l.Deposit("alice", "USD", coretypes.MustPrice("10"))
	require.Nil(t, l.Reserve("alice", "USD", coretypes.MustPrice("5")))

	l.Release("alice", "USD", coretypes.MustPrice("999"))
	bal := l.Balance("alice", "USD")
	assert.True(t, bal.Reserved.IsZero())
	assert.True(t, bal.Free.Equal(coretypes.MustPrice("10")))
}

func TestAccountLedger_SettleFillMovesBothLegs(t *testing.T) {
	l := NewAccountLedger()
	l.Deposit("bob", "USD", coretypes.MustPrice("1000"))
	l.Deposit("alice", "BTC", coretypes.MustPrice("10"))

	require.Nil(t, l.Reserve("bob", "USD", coretypes.MustPrice("1000")))
	require.Nil(t, l.Reserve("alice", "BTC", coretypes.MustPrice("10")))

	err := l.SettleFill("bob", "alice", "BTC", "USD",
		coretypes.MustPrice("100"), coretypes.MustPrice("2"),
		coretypes.Zero, coretypes.Zero)
	require.NoError(t, err)

	assert.True(t, l.Balance("alice", "USD").Free.Equal(coretypes.MustPrice("200")))
	assert.True(t, l.Balance("bob", "BTC").Free.Equal(coretypes.MustPrice("2")))
	assert.True(t, l.Balance("bob", "USD").Reserved.Equal(coretypes.MustPrice("800")))
	assert.True(t, l.Balance("alice", "BTC").Reserved.Equal(coretypes.MustPrice("8")))
}

func TestAccountLedger_SettleFillDeductsFee(t *testing.T) {
	l := NewAccountLedger()
	l.Deposit("bob", "USD", coretypes.MustPrice("1000"))
	l.Deposit("alice", "BTC", coretypes.MustPrice("10"))
	require.Nil(t, l.Reserve("bob", "USD", coretypes.MustPrice("1000")))
	require.Nil(t, l.Reserve("alice", "BTC", coretypes.MustPrice("10")))

	err := l.SettleFill("bob", "alice", "BTC", "USD",
		coretypes.MustPrice("100"), coretypes.MustPrice("1"),
		coretypes.MustPrice("0.001"), coretypes.MustPrice("0.5"))
	require.NoError(t, err)

	assert.True(t, l.Balance("alice", "USD").Free.Equal(coretypes.MustPrice("99.5")), "seller fee comes out of the quote credit")
	assert.True(t, l.Balance("bob", "BTC").Free.Equal(coretypes.MustPrice("0.999")), "buyer fee comes out of the base credit")
}

func TestAccountLedger_SettleFillSameOwnerSelfTrade(t *testing.T) {
	l := NewAccountLedger()
	l.Deposit("alice", "USD", coretypes.MustPrice("1000"))
	l.Deposit("alice", "BTC", coretypes.MustPrice("10"))
	require.Nil(t, l.Reserve("alice", "USD", coretypes.MustPrice("1000")))
	require.Nil(t, l.Reserve("alice", "BTC", coretypes.MustPrice("10")))

	err := l.SettleFill("alice", "alice", "BTC", "USD",
		coretypes.MustPrice("100"), coretypes.MustPrice("1"),
		coretypes.Zero, coretypes.Zero)
	require.NoError(t, err, "locking the same owner book twice must not deadlock")
}

func TestAccountLedger_CreditIsSignedAndMayGoNegative(t *testing.T) {
	l := NewAccountLedger()
	l.Deposit("alice", "USD", coretypes.MustPrice("10"))

	l.Credit("alice", "USD", coretypes.MustPrice("-25"))
	bal := l.Balance("alice", "USD")
	assert.True(t, bal.Free.Equal(coretypes.MustPrice("-15")), "funding/P&L settlement may drive a wallet underwater")

	l.Credit("alice", "USD", coretypes.MustPrice("40"))
	assert.True(t, l.Balance("alice", "USD").Free.Equal(coretypes.MustPrice("25")))
}

func TestAccountLedger_SettleFillOverflowsIntoFree(t *testing.T) {
	// A market buy reserved at a stale estimate can fill higher; the debit
	// draws the overflow from free instead of failing.
	l := NewAccountLedger()
	l.Deposit("bob", "USD", coretypes.MustPrice("110"))
	l.Deposit("alice", "BTC", coretypes.MustPrice("1"))
	require.Nil(t, l.Reserve("bob", "USD", coretypes.MustPrice("100")))
	require.Nil(t, l.Reserve("alice", "BTC", coretypes.MustPrice("1")))

	err := l.SettleFill("bob", "alice", "BTC", "USD",
		coretypes.MustPrice("105"), coretypes.MustPrice("1"),
		coretypes.Zero, coretypes.Zero)
	require.NoError(t, err)

	bal := l.Balance("bob", "USD")
	assert.True(t, bal.Reserved.IsZero())
	assert.True(t, bal.Free.Equal(coretypes.MustPrice("5")))
}

func TestAccountLedger_SettleFillFailsWhenEvenFreeCannotCover(t *testing.T) {
	l := NewAccountLedger()
	l.Deposit("bob", "USD", coretypes.MustPrice("100"))
	l.Deposit("alice", "BTC", coretypes.MustPrice("1"))
	require.Nil(t, l.Reserve("bob", "USD", coretypes.MustPrice("100")))
	require.Nil(t, l.Reserve("alice", "BTC", coretypes.MustPrice("1")))

	err := l.SettleFill("bob", "alice", "BTC", "USD",
		coretypes.MustPrice("150"), coretypes.MustPrice("1"),
		coretypes.Zero, coretypes.Zero)
	require.Error(t, err)
}
