package billing

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplySubscriptionStateWritesFlag(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	occurredAt := time.Now().UTC()

	mock.ExpectExec("UPDATE users").
		WithArgs(true, occurredAt, "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := &PostgresUserStore{DB: db}
	applied, err := store.ApplySubscriptionState(context.Background(), "u1", true, occurredAt)

	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplySubscriptionStateMissingUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	occurredAt := time.Now().UTC()

	mock.ExpectExec("UPDATE users").
		WithArgs(false, occurredAt, "u-missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("u-missing").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	store := &PostgresUserStore{DB: db}
	applied, err := store.ApplySubscriptionState(context.Background(), "u-missing", false, occurredAt)

	assert.False(t, applied)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplySubscriptionStateSkipsStaleEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	occurredAt := time.Now().UTC().Add(-time.Hour)

	mock.ExpectExec("UPDATE users").
		WithArgs(false, occurredAt, "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	store := &PostgresUserStore{DB: db}
	applied, err := store.ApplySubscriptionState(context.Background(), "u1", false, occurredAt)

	require.NoError(t, err)
	assert.False(t, applied, "a stale event must be skipped, not applied")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkStripeSubscription(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE users").
		WithArgs("cus_1", "sub_1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := &PostgresUserStore{DB: db}
	err = store.LinkStripeSubscription(context.Background(), "u1", "cus_1", "sub_1")

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkStripeSubscriptionMissingUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE users").
		WithArgs("cus_1", "sub_1", "u-missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := &PostgresUserStore{DB: db}
	err = store.LinkStripeSubscription(context.Background(), "u-missing", "cus_1", "sub_1")

	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
