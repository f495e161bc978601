package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cabletrack/internal/clock"
	ledgerdomain "github.com/smallbiznis/cabletrack/internal/ledger/domain"
	"github.com/smallbiznis/cabletrack/internal/ledger/repository"
	"github.com/smallbiznis/cabletrack/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (ledgerdomain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC))

	svc := NewService(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: clk,
	})
	return svc, conn, clk
}

func receipt(sourceID int64, cableType, cableLength string, qty int) ledgerdomain.MovementInput {
	return ledgerdomain.MovementInput{
		MovementType:  ledgerdomain.MovementTypeReceipt,
		SourceType:    ledgerdomain.SourceTypeCableReceiving,
		SourceID:      sourceID,
		CableType:     cableType,
		CableLength:   cableLength,
		QuantityDelta: qty,
	}
}

func consumption(sourceID int64, cableType, cableLength string, qty int) ledgerdomain.MovementInput {
	return ledgerdomain.MovementInput{
		MovementType:  ledgerdomain.MovementTypeConsumption,
		SourceType:    ledgerdomain.SourceTypeTicketFulfillment,
		SourceID:      sourceID,
		CableType:     cableType,
		CableLength:   cableLength,
		QuantityDelta: -qty,
	}
}

func TestRecordAndOnHand(t *testing.T) {
	svc, _, clk := newTestService(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, []ledgerdomain.MovementInput{
		receipt(1, "Cat6", "100m", 10),
		receipt(1, "Fiber", "200m", 2),
	})
	require.NoError(t, err)

	clk.Advance(time.Minute)
	_, err = svc.Record(ctx, []ledgerdomain.MovementInput{consumption(9, "Cat6", "100m", 1)})
	require.NoError(t, err)

	onHand, err := svc.OnHandSummary(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []ledgerdomain.OnHand{
		{CableType: "Cat6", CableLength: "100m", OnHand: 9},
		{CableType: "Fiber", CableLength: "200m", OnHand: 2},
	}, onHand)
}

func TestRecordSameSourceIsExactlyOnce(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Record(ctx, []ledgerdomain.MovementInput{consumption(42, "Cat6", "100m", 3)})
	require.NoError(t, err)
	assert.False(t, first.Skipped)
	assert.Len(t, first.Movements, 1)

	second, err := svc.Record(ctx, []ledgerdomain.MovementInput{consumption(42, "Cat6", "100m", 3)})
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Empty(t, second.Movements)

	rows, err := svc.List(ctx, ledgerdomain.ListFilter{SourceType: ledgerdomain.SourceTypeTicketFulfillment})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, -3, rows[0].QuantityDelta)

	exists, err := svc.ExistsForSource(ctx, ledgerdomain.SourceTypeTicketFulfillment, 42)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = svc.ExistsForSource(ctx, ledgerdomain.SourceTypeTicketFulfillment, 43)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRecordTxRollsBackWithCaller(t *testing.T) {
	svc, conn, _ := newTestService(t)
	ctx := context.Background()

	err := conn.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.RecordTx(ctx, tx, []ledgerdomain.MovementInput{receipt(7, "Cat6", "100m", 5)}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	exists, err := svc.ExistsForSource(ctx, ledgerdomain.SourceTypeCableReceiving, 7)
	require.NoError(t, err)
	assert.False(t, exists, "rolled back batch must not leave a source header")

	// The same source can be recorded once the failed attempt is gone.
	res, err := svc.Record(ctx, []ledgerdomain.MovementInput{receipt(7, "Cat6", "100m", 5)})
	require.NoError(t, err)
	assert.Len(t, res.Movements, 1)
}

func TestRecordValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		batch []ledgerdomain.MovementInput
		want  error
	}{
		{"empty", nil, ledgerdomain.ErrEmptyBatch},
		{"zero delta", []ledgerdomain.MovementInput{{MovementType: ledgerdomain.MovementTypeAdjustment, CableType: "Cat6", CableLength: "1m"}}, ledgerdomain.ErrInvalidQuantityDelta},
		{"positive consumption", []ledgerdomain.MovementInput{{MovementType: ledgerdomain.MovementTypeConsumption, CableType: "Cat6", CableLength: "1m", QuantityDelta: 2}}, ledgerdomain.ErrInvalidQuantityDelta},
		{"unknown type", []ledgerdomain.MovementInput{{MovementType: "theft", CableType: "Cat6", CableLength: "1m", QuantityDelta: -1}}, ledgerdomain.ErrInvalidMovementType},
		{"blank cable", []ledgerdomain.MovementInput{{MovementType: ledgerdomain.MovementTypeAdjustment, CableType: " ", CableLength: "1m", QuantityDelta: 1}}, ledgerdomain.ErrInvalidCableType},
		{"mixed sources", []ledgerdomain.MovementInput{receipt(1, "Cat6", "1m", 1), receipt(2, "Cat6", "1m", 1)}, ledgerdomain.ErrInvalidSource},
		{"half source", []ledgerdomain.MovementInput{{MovementType: ledgerdomain.MovementTypeAdjustment, SourceType: "manual", CableType: "Cat6", CableLength: "1m", QuantityDelta: 1}}, ledgerdomain.ErrInvalidSource},
	}
	for _, tc := range cases {
		_, err := svc.Record(ctx, tc.batch)
		assert.ErrorIs(t, err, tc.want, tc.name)
	}
}

func TestUnsourcedAdjustmentsAreNotDeduplicated(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	adj := ledgerdomain.MovementInput{MovementType: ledgerdomain.MovementTypeAdjustment, CableType: "Cat6", CableLength: "100m", QuantityDelta: -2}
	_, err := svc.Record(ctx, []ledgerdomain.MovementInput{adj})
	require.NoError(t, err)
	_, err = svc.Record(ctx, []ledgerdomain.MovementInput{adj})
	require.NoError(t, err)

	onHand, err := svc.OnHandSummary(ctx, true)
	require.NoError(t, err)
	require.Len(t, onHand, 1)
	assert.Equal(t, int64(-4), onHand[0].OnHand)
}

func TestOnHandFiltersZeroUnlessRequested(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, []ledgerdomain.MovementInput{receipt(1, "Cat5e", "50m", 3)})
	require.NoError(t, err)
	_, err = svc.Record(ctx, []ledgerdomain.MovementInput{consumption(2, "Cat5e", "50m", 3)})
	require.NoError(t, err)

	onHand, err := svc.OnHandSummary(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, onHand)

	onHand, err = svc.OnHandSummary(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []ledgerdomain.OnHand{{CableType: "Cat5e", CableLength: "50m", OnHand: 0}}, onHand)
}

func TestListNewestFirstWithLimit(t *testing.T) {
	svc, _, clk := newTestService(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		_, err := svc.Record(ctx, []ledgerdomain.MovementInput{receipt(i, "Cat6", "100m", int(i))})
		require.NoError(t, err)
		clk.Advance(time.Second)
	}

	rows, err := svc.List(ctx, ledgerdomain.ListFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 3, rows[0].QuantityDelta)
	assert.Equal(t, 2, rows[1].QuantityDelta)

	sourceID := int64(1)
	rows, err = svc.List(ctx, ledgerdomain.ListFilter{SourceID: &sourceID, MovementType: "receipt"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].QuantityDelta)

	_, err = svc.List(ctx, ledgerdomain.ListFilter{MovementType: "bogus"})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidMovementType)
}
