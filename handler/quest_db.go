package handler

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/FerroO2000/relay"
	"github.com/FerroO2000/relay/internal/config"
	qdb "github.com/questdb/go-questdb-client/v3"
	"go.opentelemetry.io/otel/attribute"
)

//////////////
//  CONFIG  //
//////////////

// QuestDBConfig structs contains the configuration for the QuestDB handler.
type QuestDBConfig struct {
	// Address of the QuestDB server.
	//
	// Default: localhost:9000
	Address string `json:"address" yaml:"address" toml:"address"`

	// AutoFlushRows is the number of rows buffered before they are sent.
	//
	// Default: 75000
	AutoFlushRows int `json:"auto_flush_rows" yaml:"auto_flush_rows" toml:"auto_flush_rows"`

	// AutoFlushInterval is the maximum time rows stay in the buffer.
	//
	// Default: 1s
	AutoFlushInterval time.Duration `json:"auto_flush_interval" yaml:"auto_flush_interval" toml:"auto_flush_interval"`

	// RetryTimeout is the total time spent retrying a failed flush.
	//
	// Default: 1s
	RetryTimeout time.Duration `json:"retry_timeout" yaml:"retry_timeout" toml:"retry_timeout"`
}

// DefaultQuestDBConfig returns the default QuestDB handler config.
func DefaultQuestDBConfig() *QuestDBConfig {
	return &QuestDBConfig{
		Address:           "localhost:9000",
		AutoFlushRows:     75_000,
		AutoFlushInterval: time.Second,
		RetryTimeout:      time.Second,
	}
}

// Validate checks the configuration.
func (c *QuestDBConfig) Validate(ac *config.AnomalyCollector) {
	def := DefaultQuestDBConfig()

	config.CheckNotEmpty(ac, "Address", &c.Address, def.Address)
	config.CheckPositive(ac, "AutoFlushRows", &c.AutoFlushRows, def.AutoFlushRows)
	config.CheckPositive(ac, "AutoFlushInterval", &c.AutoFlushInterval, def.AutoFlushInterval)
	config.CheckNotNegative(ac, "RetryTimeout", &c.RetryTimeout, def.RetryTimeout)
}

////////////
//  ROWS  //
////////////

var (
	// ErrQuestDBMissingTable is returned when a row has no table.
	ErrQuestDBMissingTable = errors.New("questdb row: missing table")
	// ErrQuestDBInvalidColumn is returned when the value of a column does not match its type.
	ErrQuestDBInvalidColumn = errors.New("questdb row: invalid column")
)

// QuestDBColumnType represents the type of a column.
// It does not include the symbol column since it is defined
// as a stand-alone struct in the row.
type QuestDBColumnType int

const (
	// QuestDBColumnTypeBool defines a boolean column.
	QuestDBColumnTypeBool QuestDBColumnType = iota
	// QuestDBColumnTypeInt defines an integer column.
	QuestDBColumnTypeInt
	// QuestDBColumnTypeLong defines a long integer column.
	QuestDBColumnTypeLong
	// QuestDBColumnTypeFloat defines a float column.
	QuestDBColumnTypeFloat
	// QuestDBColumnTypeString defines a string column.
	QuestDBColumnTypeString
	// QuestDBColumnTypeTimestamp defines a timestamp column.
	QuestDBColumnTypeTimestamp
)

// QuestDBColumn represents a column of a row.
type QuestDBColumn struct {
	Name  string
	Type  QuestDBColumnType
	Value any
}

// QuestDBBool returns a new boolean column.
func QuestDBBool(name string, value bool) QuestDBColumn {
	return QuestDBColumn{Name: name, Type: QuestDBColumnTypeBool, Value: value}
}

// QuestDBInt returns a new integer column.
func QuestDBInt(name string, value int64) QuestDBColumn {
	return QuestDBColumn{Name: name, Type: QuestDBColumnTypeInt, Value: value}
}

// QuestDBLong returns a new long integer column.
func QuestDBLong(name string, value *big.Int) QuestDBColumn {
	return QuestDBColumn{Name: name, Type: QuestDBColumnTypeLong, Value: value}
}

// QuestDBFloat returns a new float column.
func QuestDBFloat(name string, value float64) QuestDBColumn {
	return QuestDBColumn{Name: name, Type: QuestDBColumnTypeFloat, Value: value}
}

// QuestDBString returns a new string column.
func QuestDBString(name string, value string) QuestDBColumn {
	return QuestDBColumn{Name: name, Type: QuestDBColumnTypeString, Value: value}
}

// QuestDBTimestamp returns a new timestamp column.
func QuestDBTimestamp(name string, value time.Time) QuestDBColumn {
	return QuestDBColumn{Name: name, Type: QuestDBColumnTypeTimestamp, Value: value}
}

// QuestDBSymbol represents a symbol column.
// A symbol column must be written before any other column.
type QuestDBSymbol struct {
	Name  string
	Value string
}

// QuestDBRow represents a row to be inserted into the database.
type QuestDBRow struct {
	Table   string
	Symbols []QuestDBSymbol
	Columns []QuestDBColumn

	// Timestamp is the designated timestamp of the row.
	// If zero, the time of the insertion is used.
	Timestamp time.Time
}

// NewQuestDBRow returns a new row.
func NewQuestDBRow(table string) *QuestDBRow {
	return &QuestDBRow{
		Table: table,
	}
}

// AddSymbols adds symbols to the row.
func (qr *QuestDBRow) AddSymbols(symbols ...QuestDBSymbol) *QuestDBRow {
	qr.Symbols = append(qr.Symbols, symbols...)
	return qr
}

// AddColumns adds columns to the row.
func (qr *QuestDBRow) AddColumns(columns ...QuestDBColumn) *QuestDBRow {
	qr.Columns = append(qr.Columns, columns...)
	return qr
}

// At sets the designated timestamp of the row.
func (qr *QuestDBRow) At(timestamp time.Time) *QuestDBRow {
	qr.Timestamp = timestamp
	return qr
}

// Validate checks that the row has a table and that
// the value of every column matches its type.
func (qr *QuestDBRow) Validate() error {
	if qr.Table == "" {
		return ErrQuestDBMissingTable
	}

	for _, col := range qr.Columns {
		ok := false

		switch col.Type {
		case QuestDBColumnTypeBool:
			_, ok = col.Value.(bool)
		case QuestDBColumnTypeInt:
			_, ok = col.Value.(int64)
		case QuestDBColumnTypeLong:
			var v *big.Int
			v, ok = col.Value.(*big.Int)
			ok = ok && v != nil
		case QuestDBColumnTypeFloat:
			_, ok = col.Value.(float64)
		case QuestDBColumnTypeString:
			_, ok = col.Value.(string)
		case QuestDBColumnTypeTimestamp:
			_, ok = col.Value.(time.Time)
		}

		if !ok {
			return fmt.Errorf("%w: column %s of table %s", ErrQuestDBInvalidColumn, col.Name, qr.Table)
		}
	}

	return nil
}

// write adds the row to the buffer of the sender.
func (qr *QuestDBRow) write(ctx context.Context, sender qdb.LineSender, now time.Time) error {
	query := sender.Table(qr.Table)

	for _, symbol := range qr.Symbols {
		query.Symbol(symbol.Name, symbol.Value)
	}

	for _, col := range qr.Columns {
		switch col.Type {
		case QuestDBColumnTypeBool:
			query.BoolColumn(col.Name, col.Value.(bool))
		case QuestDBColumnTypeInt:
			query.Int64Column(col.Name, col.Value.(int64))
		case QuestDBColumnTypeLong:
			query.Long256Column(col.Name, col.Value.(*big.Int))
		case QuestDBColumnTypeFloat:
			query.Float64Column(col.Name, col.Value.(float64))
		case QuestDBColumnTypeString:
			query.StringColumn(col.Name, col.Value.(string))
		case QuestDBColumnTypeTimestamp:
			query.TimestampColumn(col.Name, col.Value.(time.Time))
		default:
			return fmt.Errorf("column %s: unknown type %d", col.Name, col.Type)
		}
	}

	timestamp := qr.Timestamp
	if timestamp.IsZero() {
		timestamp = now
	}

	return query.At(ctx, timestamp)
}

///////////////
//  HANDLER  //
///////////////

// QuestDBEncodeFunc converts an item into the rows to insert.
type QuestDBEncodeFunc[T any] func(item T) ([]*QuestDBRow, error)

type rowWriter interface {
	writeRow(ctx context.Context, row *QuestDBRow) error
	close(ctx context.Context) error
}

type lineSenderWriter struct {
	sender qdb.LineSender
}

func (w *lineSenderWriter) writeRow(ctx context.Context, row *QuestDBRow) error {
	return row.write(ctx, w.sender, time.Now())
}

func (w *lineSenderWriter) close(ctx context.Context) error {
	return w.sender.Close(ctx)
}

var _ relay.Handler[any] = (*QuestDB[any])(nil)

// QuestDB is a handler that inserts every item into QuestDB
// over the InfluxDB line protocol (HTTP transport).
type QuestDB[T any] struct {
	relay.HandlerBase

	cfg    *QuestDBConfig
	encode QuestDBEncodeFunc[T]

	writer rowWriter

	insertedRows atomic.Int64
}

// NewQuestDB returns a new QuestDB handler.
// If cfg is nil the default configuration is used.
func NewQuestDB[T any](cfg *QuestDBConfig, encode QuestDBEncodeFunc[T]) *QuestDB[T] {
	if cfg == nil {
		cfg = DefaultQuestDBConfig()
	}

	qdbCfg := *cfg

	return &QuestDB[T]{
		cfg:    &qdbCfg,
		encode: encode,
	}
}

// Init validates the configuration and creates the line sender.
func (qh *QuestDB[T]) Init(ctx context.Context) error {
	config.NewValidator(qh.Telemetry).Validate(qh.cfg)

	if qh.writer == nil {
		sender, err := qdb.NewLineSender(ctx,
			qdb.WithHttp(),
			qdb.WithAddress(qh.cfg.Address),
			qdb.WithAutoFlushRows(qh.cfg.AutoFlushRows),
			qdb.WithAutoFlushInterval(qh.cfg.AutoFlushInterval),
			qdb.WithRetryTimeout(qh.cfg.RetryTimeout),
		)
		if err != nil {
			return fmt.Errorf("creating questdb sender: %w", err)
		}

		qh.writer = &lineSenderWriter{sender: sender}
	}

	qh.Telemetry.NewCounter("inserted_rows", func() int64 { return qh.insertedRows.Load() })

	return nil
}

// Handle encodes the item and inserts the resulting rows.
func (qh *QuestDB[T]) Handle(ctx context.Context, item T) error {
	ctx, span := qh.Telemetry.NewTrace(ctx, "insert questdb rows")
	defer span.End()

	rows, err := qh.encode(item)
	if err != nil {
		return fmt.Errorf("encoding questdb rows: %w", err)
	}

	// Rows are checked upfront so that a broken one does not
	// leave a partial line in the sender buffer
	for _, row := range rows {
		if err := row.Validate(); err != nil {
			return err
		}
	}

	tmpInsRows := 0
	for _, row := range rows {
		if err := qh.writer.writeRow(ctx, row); err != nil {
			return fmt.Errorf("inserting row into %s: %w", row.Table, err)
		}

		tmpInsRows++
	}

	span.SetAttributes(attribute.Int("inserted_rows", tmpInsRows))

	qh.insertedRows.Add(int64(tmpInsRows))

	return nil
}

// Close flushes the pending rows and closes the sender.
func (qh *QuestDB[T]) Close() {
	if qh.writer == nil {
		return
	}

	if err := qh.writer.close(context.Background()); err != nil {
		qh.Telemetry.LogError("failed to close sender", err)
	}
}
