package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/traylinx/perfgov/internal/notify"
	"github.com/traylinx/perfgov/internal/tier"
)

var t0 = time.UnixMilli(1_700_000_000_000)

func downgrade() tier.Transition {
	return tier.Transition{From: tier.High, To: tier.Medium, Direction: tier.Down, Reason: tier.ReasonThroughput, Rate: 41.5, At: t0}
}

func newMockJournal(t *testing.T) (*Journal, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	j, err := New(db, DriverSQLite, "")
	require.NoError(t, err)
	return j, mock
}

func TestNew_RejectsBadTableName(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = New(db, DriverSQLite, "perf; DROP TABLE x")
	assert.Error(t, err)
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle", DSN: "x"})
	assert.Error(t, err)

	_, err = Open(context.Background(), Config{Driver: DriverSQLite})
	assert.Error(t, err)
}

func TestMigrate_UsesDriverSpecificKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	j, err := New(db, DriverPostgres, "transitions")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS transitions \\(\\s+id BIGSERIAL PRIMARY KEY").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_transitions_change_id").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, j.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord(t *testing.T) {
	j, mock := newMockJournal(t)

	mock.ExpectExec("INSERT INTO perf_transitions").
		WithArgs("downgrade_medium_1", "high", "medium", "down", "throughput", 41.5, t0.UnixMilli(), DeliveryPending).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, j.Record(context.Background(), EntryFor(downgrade(), "downgrade_medium_1")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_WrapsDriverError(t *testing.T) {
	j, mock := newMockJournal(t)
	boom := errors.New("disk full")

	mock.ExpectExec("INSERT INTO perf_transitions").WillReturnError(boom)

	err := j.Record(context.Background(), EntryFor(downgrade(), "id"))
	assert.ErrorIs(t, err, boom)
}

func TestSetDelivery(t *testing.T) {
	j, mock := newMockJournal(t)

	mock.ExpectExec("UPDATE perf_transitions SET delivery").
		WithArgs(DeliveryDropped, "id-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, j.SetDelivery(context.Background(), "id-1", DeliveryDropped))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistory(t *testing.T) {
	j, mock := newMockJournal(t)

	rows := sqlmock.NewRows([]string{"id", "change_id", "from_tier", "to_tier", "direction", "reason", "rate", "at_ms", "delivery"}).
		AddRow(2, "upgrade_high_2", "medium", "high", "up", "manual", 70.0, t0.Add(time.Minute).UnixMilli(), DeliveryConfirmed).
		AddRow(1, "downgrade_medium_1", "high", "medium", "down", "throughput", 41.5, t0.UnixMilli(), DeliveryDropped)
	mock.ExpectQuery("SELECT id, change_id, from_tier, to_tier, direction, reason, rate, at_ms, delivery FROM perf_transitions ORDER BY id DESC LIMIT").
		WithArgs(DefaultHistoryLimit).
		WillReturnRows(rows)

	history, err := j.History(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, int64(2), history[0].ID)
	assert.Equal(t, tier.High, history[0].To)
	assert.Equal(t, tier.Up, history[0].Direction)
	assert.Equal(t, tier.ReasonManual, history[0].Reason)
	assert.Equal(t, DeliveryConfirmed, history[0].Delivery)
	assert.True(t, t0.Equal(history[1].At))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	j, err := Open(ctx, Config{DSN: filepath.Join(t.TempDir(), "state", "journal.db")})
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Record(ctx, EntryFor(downgrade(), "a")))
	up := tier.Transition{From: tier.Medium, To: tier.High, Direction: tier.Up, Reason: tier.ReasonManual, Rate: 72, At: t0.Add(time.Minute)}
	require.NoError(t, j.Record(ctx, EntryFor(up, "b")))
	require.NoError(t, j.SetDelivery(ctx, "a", DeliveryConfirmed))

	history, err := j.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "b", history[0].ChangeID)
	assert.Equal(t, DeliveryPending, history[0].Delivery)
	assert.Equal(t, "a", history[1].ChangeID)
	assert.Equal(t, DeliveryConfirmed, history[1].Delivery)
	assert.Equal(t, 41.5, history[1].Rate)
}

func TestWriter_RecordsEventsInOrder(t *testing.T) {
	ctx := context.Background()
	j, err := Open(ctx, Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "journal.db")})
	require.NoError(t, err)
	defer j.Close()

	w := NewWriter(j, 8)
	w.TierChanged(downgrade(), "a")
	w.DeliveryDropped(notify.Record{ChangeID: "a"})
	w.Close()
	w.TierChanged(downgrade(), "late")

	history, err := j.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, DeliveryDropped, history[0].Delivery)
}
