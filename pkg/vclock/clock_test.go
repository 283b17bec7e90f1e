package vclock

import (
	"testing"

	"github.com/kayua/causalnet/internal/errs"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(0, 0)
	require.ErrorIs(t, err, errs.ErrInvalidConfig)

	_, err = New(3, 3)
	require.ErrorIs(t, err, errs.ErrInvalidConfig)

	_, err = New(3, -1)
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestIncrement_OwnSlotStrictlyAdvances(t *testing.T) {
	clk, err := New(3, 1)
	require.NoError(t, err)

	before := clk.Snapshot()
	clk.Increment()
	after := clk.Snapshot()

	require.Equal(t, before[1]+1, after[1])
	for i := range before {
		if i == 1 {
			continue
		}
		require.Equal(t, before[i], after[i])
	}
}

func TestMerge_EachSlotAtLeastReceived(t *testing.T) {
	clk, err := New(3, 0)
	require.NoError(t, err)
	clk.Increment() // [1,0,0]

	received := []uint64{0, 5, 2}
	require.NoError(t, clk.Merge(received))

	got := clk.Snapshot()
	for i := range got {
		require.GreaterOrEqual(t, got[i], received[i])
	}
	require.Equal(t, []uint64{1, 5, 2}, got)
}

func TestMerge_Idempotent(t *testing.T) {
	clk, err := New(2, 0)
	require.NoError(t, err)
	v := []uint64{4, 7}
	require.NoError(t, clk.Merge(v))
	first := clk.Snapshot()
	require.NoError(t, clk.Merge(v))
	require.Equal(t, first, clk.Snapshot())
}

func TestMerge_LengthMismatch(t *testing.T) {
	clk, err := New(3, 0)
	require.NoError(t, err)
	err = clk.Merge([]uint64{1, 2})
	require.ErrorIs(t, err, errs.ErrMalformedVector)
}

func TestExpectedFor_IsLocalWithSenderSlotIncremented(t *testing.T) {
	clk, err := New(3, 0)
	require.NoError(t, err)
	clk.Increment()

	expected, err := clk.ExpectedFor(1)
	require.NoError(t, err)
	local := clk.Snapshot()
	local[1]++
	require.Equal(t, local, expected)
}

func TestExpectedFor_OutOfRange(t *testing.T) {
	clk, err := New(2, 0)
	require.NoError(t, err)
	_, err = clk.ExpectedFor(5)
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	v := []uint64{3, 0, 7}
	require.Equal(t, "3,0,7", Encode(v))

	got, err := Decode(Encode(v), len(v))
	require.NoError(t, err)
	require.Equal(t, v, got)
}

func TestDecode_ToleratesBrackets(t *testing.T) {
	got, err := Decode("[3, 0, 7]", 3)
	require.NoError(t, err)
	require.Equal(t, []uint64{3, 0, 7}, got)
}

func TestDecode_MalformedCount(t *testing.T) {
	_, err := Decode("1,2", 3)
	require.ErrorIs(t, err, errs.ErrMalformedVector)
}

func TestDecode_MalformedElement(t *testing.T) {
	_, err := Decode("1,x,3", 3)
	require.ErrorIs(t, err, errs.ErrMalformedVector)
}

func TestMergeFidge_BumpsOwnSlot(t *testing.T) {
	clk, err := New(2, 0)
	require.NoError(t, err)
	require.NoError(t, clk.MergeFidge([]uint64{0, 4}))
	require.Equal(t, []uint64{1, 4}, clk.Snapshot())
}

func TestReady_SenderSlotMustBeExactlyNext(t *testing.T) {
	clk, err := New(2, 1)
	require.NoError(t, err)

	ready, err := clk.Ready([]uint64{1, 0}, 0)
	require.NoError(t, err)
	require.True(t, ready)

	ready, err = clk.Ready([]uint64{2, 0}, 0)
	require.NoError(t, err)
	require.False(t, ready, "sender slot two ahead, not the immediate next message")
}

// TestReady_ToleratesReceiverSelfAdvance reproduces scenario S2: after P1
// delivers m1 from P0 and bumps its own slot, the held-back m2's vector
// still reports P1's slot at its pre-delivery value. Ready must not block
// on that since it is the receiver's own progress, not a causal dependency
// m2 is missing.
func TestReady_ToleratesReceiverSelfAdvance(t *testing.T) {
	clk, err := New(2, 1)
	require.NoError(t, err)

	// m1 delivered: merge [1,0] then bump own slot.
	require.NoError(t, clk.Merge([]uint64{1, 0}))
	clk.Increment()
	require.Equal(t, []uint64{1, 1}, clk.Snapshot())

	// m2 carries P0's clock at send time, [2,0], unaware P1 has since
	// advanced to slot 1.
	ready, err := clk.Ready([]uint64{2, 0}, 0)
	require.NoError(t, err)
	require.True(t, ready)
}

func TestReady_LengthMismatch(t *testing.T) {
	clk, err := New(2, 0)
	require.NoError(t, err)
	_, err = clk.Ready([]uint64{1}, 1)
	require.ErrorIs(t, err, errs.ErrMalformedVector)
}

func TestSingleProcessGroup(t *testing.T) {
	clk, err := New(1, 0)
	require.NoError(t, err)
	clk.Increment()
	require.Equal(t, []uint64{1}, clk.Snapshot())
	expected, err := clk.ExpectedFor(0)
	require.NoError(t, err)
	require.Equal(t, []uint64{2}, expected)
}
