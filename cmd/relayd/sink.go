package main

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/FerroO2000/relay"
	"github.com/FerroO2000/relay/handler"
	"github.com/FerroO2000/relay/source"
	"github.com/FerroO2000/relay/store"
	"github.com/segmentio/kafka-go"
)

const questDBTable = "file_events"

// newSink returns the handler selected by the configuration.
// The store is only used by the store sink.
func newSink(cfg *daemonConfig, s *store.Store) (relay.Handler[source.FileEvent], error) {
	switch cfg.Sink {
	case sinkStore:
		return handler.NewStore(s, encodeStoreItem)
	case sinkKafka:
		return handler.NewKafka(&cfg.Kafka, encodeKafkaMessage), nil
	case sinkRedis:
		return handler.NewRedisStream(&cfg.Redis, encodeStreamValues), nil
	case sinkQuestDB:
		return handler.NewQuestDB(&cfg.QuestDB, encodeQuestDBRows), nil
	default:
		return handler.NewLog[source.FileEvent]("file event"), nil
	}
}

// extensionOf returns the lower case extension of the file,
// which is used as reference key in the store.
func extensionOf(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// encodeStoreItem keeps the last version of every file.
// The extension references the last active file with that extension.
func encodeStoreItem(event source.FileEvent) (store.Item, string, error) {
	item := store.Item{
		ID:        event.Path,
		Payload:   event.Contents,
		Active:    event.Op != source.FileOpRemove,
		UpdatedAt: event.ModTime,
	}

	ref := ""
	if item.Active {
		ref = extensionOf(event.Path)
	}

	return item, ref, nil
}

func encodeKafkaMessage(event source.FileEvent) (kafka.Message, error) {
	return kafka.Message{
		Key:   []byte(event.Path),
		Value: event.Contents,
		Headers: []kafka.Header{
			{Key: "op", Value: []byte(event.Op.String())},
		},
	}, nil
}

func encodeStreamValues(event source.FileEvent) (map[string]any, error) {
	return map[string]any{
		"path":     event.Path,
		"op":       event.Op.String(),
		"contents": string(event.Contents),
		"mod_time": event.ModTime.Format(time.RFC3339Nano),
	}, nil
}

func encodeQuestDBRows(event source.FileEvent) ([]*handler.QuestDBRow, error) {
	row := handler.NewQuestDBRow(questDBTable).
		AddSymbols(
			handler.QuestDBSymbol{Name: "op", Value: event.Op.String()},
			handler.QuestDBSymbol{Name: "extension", Value: extensionOf(event.Path)},
		).
		AddColumns(
			handler.QuestDBString("path", event.Path),
			handler.QuestDBInt("size", int64(len(event.Contents))),
		)

	if !event.ModTime.IsZero() {
		row.AddColumns(handler.QuestDBTimestamp("mod_time", event.ModTime))
	}

	return []*handler.QuestDBRow{row}, nil
}
