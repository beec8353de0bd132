package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFromEmptyRows(t *testing.T) {
	n, err := CopyFrom(context.Background(), nil, "learning_log", []string{"a"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"learning_log"}, []string{"id", "field"}).WillReturnResult(2)

	n, err := CopyFrom(context.Background(), mock, "learning_log", []string{"id", "field"},
		[][]any{{"1", "email"}, {"2", "bio"}})
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFromSchemaQualified(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"verify", "learning_log"}, []string{"id"}).WillReturnResult(1)

	n, err := CopyFrom(context.Background(), mock, "verify.learning_log", []string{"id"},
		[][]any{{"1"}})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFromError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"learning_log"}, []string{"id"}).WillReturnError(assert.AnError)

	_, err = CopyFrom(context.Background(), mock, "learning_log", []string{"id"}, [][]any{{"1"}})
	assert.Error(t, err)
}
