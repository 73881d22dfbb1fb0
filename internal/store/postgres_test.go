package store

import (
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/ReliefPipe/internal/models"
)

func newMockPostgres(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS turns")).WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := newPostgresStoreFromDB(db)
	require.NoError(t, err)
	return s, mock
}

func TestPostgresStore_AddTurn(t *testing.T) {
	s, mock := newMockPostgres(t)
	turn := sampleTurn("t_1", 100)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO turns")).
		WithArgs(turn.ID, turn.InputType, turn.PhoneNumber, turn.Text, turn.Intent, turn.ResponseText, turn.AudioBytes, turn.SMSSent, turn.Time).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.AddTurn(turn))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AddTurnError(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO turns")).WillReturnError(errors.New("connection reset"))

	err := s.AddTurn(sampleTurn("t_1", 100))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "t_1")
}

func TestPostgresStore_GetTurns(t *testing.T) {
	s, mock := newMockPostgres(t)
	columns := []string{"id", "input_type", "phone_number", "text", "intent", "response_text", "audio_bytes", "sms_sent", "time"}

	mock.ExpectQuery(regexp.QuoteMeta("FROM turns ORDER BY seq DESC LIMIT $1")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("t_2", "text", nil, "hello", "unknown", "Sorry, I didn't understand. Could you clarify?", 0, false, int64(200)).
			AddRow("t_1", "sms", "+15551234567", "check status 42", "check_status", "Application 42 status: Approved", 128, true, int64(100)))

	turns, err := s.GetTurns(5)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "", turns[0].PhoneNumber)
	assert.Equal(t, models.IntentUnknown, turns[0].Intent)
	assert.Equal(t, sampleTurn("t_1", 100), turns[1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetTurnsUnlimited(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectQuery(`FROM turns ORDER BY seq DESC$`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "input_type", "phone_number", "text", "intent", "response_text", "audio_bytes", "sms_sent", "time"}))

	turns, err := s.GetTurns(0)
	require.NoError(t, err)
	assert.Empty(t, turns)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Receipts(t *testing.T) {
	s, mock := newMockPostgres(t)
	r := models.Receipt{To: "+15551234567", Status: models.MessageStatusFailed, Time: 7}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO receipts (recipient, status, time) VALUES ($1, $2, $3)")).
		WithArgs(r.To, r.Status, r.Time).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT recipient, status, time FROM receipts")).
		WillReturnRows(sqlmock.NewRows([]string{"recipient", "status", "time"}).AddRow(r.To, "failed", int64(7)))

	require.NoError(t, s.AddReceipt(r))
	receipts, err := s.GetReceipts()
	require.NoError(t, err)
	assert.Equal(t, []models.Receipt{r}, receipts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MigrationFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))

	_, err = newPostgresStoreFromDB(db)
	assert.Error(t, err)
}
