package handler

import (
	"context"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRowWriter struct {
	rows   []*QuestDBRow
	closed bool
}

func (w *fakeRowWriter) writeRow(_ context.Context, row *QuestDBRow) error {
	w.rows = append(w.rows, row)
	return nil
}

func (w *fakeRowWriter) close(_ context.Context) error {
	w.closed = true
	return nil
}

var testTimestamp = time.Date(2026, time.October, 18, 12, 0, 0, 0, time.UTC)

func encodeDocumentRows(doc document) ([]*QuestDBRow, error) {
	row := NewQuestDBRow("documents").
		AddSymbols(QuestDBSymbol{Name: "extension", Value: doc.extension}).
		AddColumns(
			QuestDBString("id", doc.id),
			QuestDBInt("size", int64(len(doc.body))),
			QuestDBBool("empty", doc.body == ""),
		).
		At(testTimestamp)

	return []*QuestDBRow{row}, nil
}

func Test_QuestDB_Handle(t *testing.T) {
	assert := assert.New(t)

	writer := &fakeRowWriter{}

	qdbHandler := NewQuestDB(nil, encodeDocumentRows)
	qdbHandler.writer = writer
	qdbHandler.SetTelemetry(newTestTelemetry("questdb"))
	require.NoError(t, qdbHandler.Init(t.Context()))

	assert.NoError(qdbHandler.Handle(t.Context(), document{id: "a", extension: ".yaml", body: "a: 1"}))
	assert.NoError(qdbHandler.Handle(t.Context(), document{id: "b", extension: ".json"}))

	require.Len(t, writer.rows, 2)

	row := writer.rows[0]
	assert.Equal("documents", row.Table)
	assert.Equal([]QuestDBSymbol{{Name: "extension", Value: ".yaml"}}, row.Symbols)
	assert.Len(row.Columns, 3)
	assert.Equal(int64(4), row.Columns[1].Value)
	assert.Equal(testTimestamp, row.Timestamp)

	assert.Equal(int64(2), qdbHandler.insertedRows.Load())

	qdbHandler.Close()
	assert.True(writer.closed)
}

func Test_QuestDB_InvalidRows(t *testing.T) {
	writer := &fakeRowWriter{}

	qdbHandler := NewQuestDB(nil, func(_ int) ([]*QuestDBRow, error) {
		valid := NewQuestDBRow("numbers").AddColumns(QuestDBInt("value", 1))
		invalid := NewQuestDBRow("numbers").AddColumns(QuestDBColumn{Name: "value", Type: QuestDBColumnTypeInt, Value: 1})
		return []*QuestDBRow{valid, invalid}, nil
	})
	qdbHandler.writer = writer
	qdbHandler.SetTelemetry(newTestTelemetry("questdb"))
	require.NoError(t, qdbHandler.Init(t.Context()))

	err := qdbHandler.Handle(t.Context(), 1)
	assert.ErrorIs(t, err, ErrQuestDBInvalidColumn)

	// No row is written if one of them is invalid
	assert.Empty(t, writer.rows)
}

func Test_QuestDBRow_Validate(t *testing.T) {
	suite := []struct {
		name string
		row  *QuestDBRow
		err  error
	}{
		{
			name: "valid",
			row: NewQuestDBRow("metrics").AddColumns(
				QuestDBBool("ok", true),
				QuestDBInt("count", 1),
				QuestDBLong("big", big.NewInt(1)),
				QuestDBFloat("ratio", 0.5),
				QuestDBString("name", "relay"),
				QuestDBTimestamp("at", testTimestamp),
			),
		},
		{
			name: "missing table",
			row:  NewQuestDBRow(""),
			err:  ErrQuestDBMissingTable,
		},
		{
			name: "nil long",
			row:  NewQuestDBRow("metrics").AddColumns(QuestDBLong("big", nil)),
			err:  ErrQuestDBInvalidColumn,
		},
		{
			name: "mismatched float",
			row:  NewQuestDBRow("metrics").AddColumns(QuestDBColumn{Name: "ratio", Type: QuestDBColumnTypeFloat, Value: float32(0.5)}),
			err:  ErrQuestDBInvalidColumn,
		},
		{
			name: "unknown type",
			row:  NewQuestDBRow("metrics").AddColumns(QuestDBColumn{Name: "x", Type: QuestDBColumnType(99), Value: 1}),
			err:  ErrQuestDBInvalidColumn,
		},
	}

	for _, tCase := range suite {
		t.Run(tCase.name, func(t *testing.T) {
			err := tCase.row.Validate()

			if tCase.err == nil {
				assert.NoError(t, err)
				return
			}

			assert.ErrorIs(t, err, tCase.err)
		})
	}
}

func Test_QuestDB_Server(t *testing.T) {
	addr := os.Getenv("RELAY_TEST_QUESTDB_ADDR")
	if addr == "" {
		t.Skip("RELAY_TEST_QUESTDB_ADDR not set")
	}

	cfg := DefaultQuestDBConfig()
	cfg.Address = addr

	qdbHandler := NewQuestDB(cfg, encodeDocumentRows)
	qdbHandler.SetTelemetry(newTestTelemetry("questdb"))
	require.NoError(t, qdbHandler.Init(t.Context()))
	defer qdbHandler.Close()

	assert.NoError(t, qdbHandler.Handle(t.Context(), document{id: "a", extension: ".toml", body: "a = 1"}))
}
