package events

import (
	"encoding/json"
)

// EventData is implemented by every typed event payload
type EventData interface {
	EventType() EventType
}

// TradeExecutedData contains data for TradeExecuted events
type TradeExecutedData struct {
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Reference string  `json:"reference"`
	Quantity  int64   `json:"quantity"`
	Price     float64 `json:"price"`
	Total     float64 `json:"total"`
	Balance   float64 `json:"balance"`
}

// EventType returns the event type for TradeExecutedData
func (d *TradeExecutedData) EventType() EventType {
	return TradeExecuted
}

// PositionClosedData contains data for PositionClosed events
type PositionClosedData struct {
	Symbol      string  `json:"symbol"`
	RealizedPnL float64 `json:"realized_pnl"`
}

// EventType returns the event type for PositionClosedData
func (d *PositionClosedData) EventType() EventType {
	return PositionClosed
}

// PricesSyncedData contains data for PricesSynced events
type PricesSyncedData struct {
	Period   string   `json:"period"`
	Symbols  []string `json:"symbols"`
	Inserted int      `json:"inserted"`
}

// EventType returns the event type for PricesSyncedData
func (d *PricesSyncedData) EventType() EventType {
	return PricesSynced
}

// BackupCompletedData contains data for BackupCompleted events
type BackupCompletedData struct {
	Key       string `json:"key"`
	SizeBytes int64  `json:"size_bytes"`
}

// EventType returns the event type for BackupCompletedData
func (d *BackupCompletedData) EventType() EventType {
	return BackupCompleted
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Context map[string]interface{} `json:"context,omitempty"`
	Error   string                 `json:"error"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// Decode converts an event's data map back into its typed payload.
// Returns nil for unknown types or malformed data.
func (e *Event) Decode() EventData {
	var target EventData
	switch e.Type {
	case TradeExecuted:
		target = &TradeExecutedData{}
	case PositionClosed:
		target = &PositionClosedData{}
	case PricesSynced:
		target = &PricesSyncedData{}
	case BackupCompleted:
		target = &BackupCompletedData{}
	case ErrorOccurred:
		target = &ErrorEventData{}
	default:
		return nil
	}

	raw, err := json.Marshal(e.Data)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return nil
	}
	return target
}
