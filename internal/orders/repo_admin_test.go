package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatch_Assignments(t *testing.T) {
	st := StatusCancelled
	tracking := "AR123"
	p := Patch{Status: &st, TrackingNumber: &tracking}

	sets, args := p.assignments()
	assert.Equal(t, []string{
		"status = $2",
		"tracking_number = $3",
		"cancelled_at = COALESCE(cancelled_at, now())",
	}, sets)
	assert.Equal(t, []any{StatusCancelled, "AR123"}, args)
	assert.False(t, p.Empty())
	assert.True(t, Patch{}.Empty())
}

func lockedStatus(status Status, stockTaken bool) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"status", "stock_taken"}).AddRow(status, stockTaken)
}

func TestRepo_UpdateFields(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	fs := FulfillmentShipped
	shipped := now

	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery("SELECT status, stock_decremented_at IS NOT NULL FROM orders").
		WithArgs("o1").
		WillReturnRows(lockedStatus(StatusCompleted, true))
	mock.ExpectQuery("UPDATE orders SET fulfillment_status").
		WithArgs("o1", FulfillmentShipped, shipped).
		WillReturnRows(orderRow(pgxmock.NewRows(orderCols), "o1", "u1", StatusCompleted, now))
	mock.ExpectCommit()

	prev, o, err := repo.UpdateFields(context.Background(), "o1", Patch{FulfillmentStatus: &fs, ShippedAt: &shipped}, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, prev)
	assert.Equal(t, "o1", o.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_UpdateFields_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	notes := "x"

	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery("SELECT status, stock_decremented_at IS NOT NULL FROM orders").
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, _, err := repo.UpdateFields(context.Background(), "ghost", Patch{Notes: &notes}, nil)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_UpdateFields_GuardAborts(t *testing.T) {
	repo, mock := newMockRepo(t)
	st := StatusPending
	blocked := errors.New("blocked")

	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery("SELECT status, stock_decremented_at IS NOT NULL FROM orders").
		WithArgs("o1").
		WillReturnRows(lockedStatus(StatusRefunded, true))
	mock.ExpectRollback()

	prev, o, err := repo.UpdateFields(context.Background(), "o1", Patch{Status: &st}, func(prev Status) error {
		if !CanTransition(prev, st) {
			return blocked
		}
		return nil
	})
	assert.ErrorIs(t, err, blocked)
	assert.Equal(t, StatusRefunded, prev)
	assert.Nil(t, o)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_UpdateFields_CompletingTakesStockOnce(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	st := StatusCompleted

	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery("SELECT status, stock_decremented_at IS NOT NULL FROM orders").
		WithArgs("o1").
		WillReturnRows(lockedStatus(StatusPending, false))
	mock.ExpectQuery(`UPDATE orders SET status = \$2, stock_decremented_at = now\(\)`).
		WithArgs("o1", StatusCompleted).
		WillReturnRows(orderRow(pgxmock.NewRows(orderCols), "o1", "u1", StatusCompleted, now))
	mock.ExpectQuery("SELECT product_id, variant_id, quantity FROM order_items").
		WithArgs("o1").
		WillReturnRows(pgxmock.NewRows([]string{"product_id", "variant_id", "quantity"}).
			AddRow("p1", (*string)(nil), 2))
	mock.ExpectQuery("SELECT inventory_quantity FROM products").
		WithArgs("p1").
		WillReturnRows(pgxmock.NewRows([]string{"inventory_quantity"}).AddRow(3))
	mock.ExpectExec("UPDATE products SET inventory_quantity").
		WithArgs("p1", 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	prev, o, err := repo.UpdateFields(context.Background(), "o1", Patch{Status: &st}, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, prev)
	assert.Equal(t, StatusCompleted, o.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_UpdateFields_CompletingPaidOrderLeavesStock(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	st := StatusCompleted

	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery("SELECT status, stock_decremented_at IS NOT NULL FROM orders").
		WithArgs("o1").
		WillReturnRows(lockedStatus(StatusDisputed, true))
	mock.ExpectQuery(`UPDATE orders SET status = \$2, updated_at = now\(\)`).
		WithArgs("o1", StatusCompleted).
		WillReturnRows(orderRow(pgxmock.NewRows(orderCols), "o1", "u1", StatusCompleted, now))
	mock.ExpectCommit()

	prev, _, err := repo.UpdateFields(context.Background(), "o1", Patch{Status: &st}, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusDisputed, prev)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_CancelStalePending(t *testing.T) {
	repo, mock := newMockRepo(t)
	unpaid := time.Now().Add(-30 * time.Minute)
	pending := time.Now().Add(-72 * time.Hour)

	mock.ExpectQuery("UPDATE orders").
		WithArgs(unpaid, pending).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("o1").AddRow("o7"))

	ids, err := repo.CancelStalePending(context.Background(), unpaid, pending)
	require.NoError(t, err)
	assert.Equal(t, []string{"o1", "o7"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
