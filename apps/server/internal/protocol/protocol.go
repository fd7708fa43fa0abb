// Package protocol defines the JSON wire envelopes exchanged with
// clients. Every message is {"event": <name>, "data": <object>}.
package protocol

import (
	"encoding/json"
	"fmt"

	"cardroom/poker"
)

// Envelope wraps every client->server and server->client message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client->server events.
const (
	EventJoinTable         = "joinTable"
	EventLeaveTable        = "leaveTable"
	EventStartHand         = "startHand"
	EventAction            = "action"
	EventChangeSeat        = "changeSeat"
	EventWatchTable        = "watchTable"
	EventUnwatchTable      = "unwatchTable"
	EventCreateUserTable   = "createUserTable"
	EventGetTables         = "getTables"
	EventSubscribeTables   = "subscribeTables"
	EventUnsubscribeTables = "unsubscribeTables"
	EventGetState          = "getState"
)

// Server->client events.
const (
	EventReply          = "reply"
	EventGameState      = "gameState"
	EventSpectatorState = "spectatorState"
	EventTableList      = "tableList"
	EventAuthError      = "authError"
)

// Client payloads.

type JoinTableRequest struct {
	TableID   string `json:"tableId"`
	BuyIn     int64  `json:"buyIn"`
	SeatIndex int    `json:"seatIndex"`
	// PlayerID, when present, must match the session's bound identity.
	PlayerID string `json:"playerId,omitempty"`
}

type TableRef struct {
	TableID string `json:"tableId"`
}

type ActionRequest struct {
	TableID   string `json:"tableId"`
	Kind      string `json:"kind"`
	Amount    int64  `json:"amount,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	PlayerID  string `json:"playerId,omitempty"`
}

type ChangeSeatRequest struct {
	TableID      string `json:"tableId"`
	NewSeatIndex int    `json:"newSeatIndex"`
	PlayerID     string `json:"playerId,omitempty"`
}

type CreateUserTableRequest struct {
	Variant     string       `json:"variant"`
	StakeLabel  string       `json:"stakeLabel"`
	Blinds      poker.Blinds `json:"blinds"`
	BettingType string       `json:"bettingType"`
}

// Server payloads.

// Reply acknowledges one client request. Ref echoes the request event.
type Reply struct {
	Ref     string `json:"ref"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	TableID string `json:"tableId,omitempty"`
	Seat    *int   `json:"seat,omitempty"`
}

// TableState carries a viewer projection for one table.
type TableState struct {
	TableID string     `json:"tableId"`
	View    poker.View `json:"view"`
}

// TableSummary is one lobby listing row.
type TableSummary struct {
	TableID     string       `json:"tableId"`
	Variant     string       `json:"variant"`
	BettingType string       `json:"bettingType"`
	StakeLabel  string       `json:"stakeLabel"`
	Blinds      poker.Blinds `json:"blinds"`
	System      bool         `json:"system"`
	Seated      int          `json:"seated"`
	MaxSeats    int          `json:"maxSeats"`
	HandNumber  uint64       `json:"handNumber"`
	Stage       string       `json:"stage"`
}

type TableListPayload struct {
	Tables []TableSummary `json:"tables"`
}

type AuthErrorPayload struct {
	Error string `json:"error"`
}

// Marshal builds a ready-to-send envelope.
func Marshal(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// DecodeData unmarshals an envelope payload into out.
func DecodeData(env Envelope, out any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%s: missing data", env.Event)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s: bad payload: %w", env.Event, err)
	}
	return nil
}
