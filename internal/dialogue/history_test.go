package dialogue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryAppend(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO chat_messages").
		WithArgs("u1", roleUser, "hola").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO chat_messages").
		WithArgs("u1", roleModel, "¡Quiubo parce!").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewHistoryStore(mock, nil)
	store.Append(context.Background(), "u1",
		ChatMessage{Role: roleUser, Content: "hola"},
		ChatMessage{Role: roleModel, Content: "¡Quiubo parce!"})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryAppendSwallowsErrors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO chat_messages").
		WithArgs("u1", roleUser, "hola").
		WillReturnError(errors.New("connection refused"))

	store := NewHistoryStore(mock, nil)
	// Must not panic or propagate; the turn reply matters more than the log.
	store.Append(context.Background(), "u1", ChatMessage{Role: roleUser, Content: "hola"})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryList(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT id, role, content, created_at").
		WithArgs("u1", 50).
		WillReturnRows(pgxmock.NewRows([]string{"id", "role", "content", "created_at"}).
			AddRow(int64(1), roleUser, "hola", now).
			AddRow(int64(2), roleModel, "¡Quiubo parce!", now))

	store := NewHistoryStore(mock, nil)
	entries, err := store.List(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, roleUser, entries[0].Role)
	assert.Equal(t, "¡Quiubo parce!", entries[1].Content)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryClear(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM chat_messages").
		WithArgs("u1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	store := NewHistoryStore(mock, nil)
	n, err := store.Clear(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
