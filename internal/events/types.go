// Package events provides event management functionality.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	TradeExecuted   EventType = "TRADE_EXECUTED"
	PositionClosed  EventType = "POSITION_CLOSED"
	PricesSynced    EventType = "PRICES_SYNCED"
	BackupCompleted EventType = "BACKUP_COMPLETED"
	ErrorOccurred   EventType = "ERROR_OCCURRED"
)

// AllTypes lists every event type the system emits
var AllTypes = []EventType{
	TradeExecuted,
	PositionClosed,
	PricesSynced,
	BackupCompleted,
	ErrorOccurred,
}

// Event is a single published event
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Type      EventType              `json:"type"`
	Module    string                 `json:"module"`
}
