// Package handler contains ready-made relay handlers that deliver
// the items to a store, a log, Kafka, Redis streams or QuestDB.
//
// Every handler is generic over the item type and converts the item
// with a user provided encode function.
package handler
