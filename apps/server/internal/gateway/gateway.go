// Package gateway maps WebSocket sessions to players and tables: it
// authenticates handshakes, dispatches client messages, and fans out
// per-viewer projections after every table mutation.
package gateway

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"cardroom/apps/server/internal/identity"
	"cardroom/apps/server/internal/lobby"
	"cardroom/apps/server/internal/protocol"
	"cardroom/apps/server/internal/table"
	"cardroom/poker"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: restrict origins in production deployments
	},
}

const (
	readLimit    = 65536
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 256
)

// Session is one WebSocket connection. PlayerID is empty for
// spectators.
type Session struct {
	ID       string
	PlayerID string
	Name     string

	conn    *websocket.Conn
	send    chan []byte
	gateway *Gateway

	mu      sync.Mutex
	watched map[string]bool // table channels this session observes
	seated  map[string]bool // tables this session joined as a player
}

// Gateway owns all sessions and the fan-out state.
type Gateway struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	watchers  map[string]map[string]*Session // tableID -> session id
	lobbySubs map[string]*Session

	lobby    *lobby.Lobby
	identity identity.Resolver
}

// New creates a gateway over the lobby and identity resolver.
func New(lby *lobby.Lobby, resolver identity.Resolver) *Gateway {
	return &Gateway{
		sessions:  make(map[string]*Session),
		watchers:  make(map[string]map[string]*Session),
		lobbySubs: make(map[string]*Session),
		lobby:     lby,
		identity:  resolver,
	}
}

// HandleWebSocket upgrades the connection and binds the session to the
// token's identity; without a valid token the session spectates.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Gateway] Upgrade error: %v", err)
		return
	}

	s := &Session{
		ID:      uuid.NewString(),
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		gateway: g,
		watched: make(map[string]bool),
		seated:  make(map[string]bool),
	}

	token := handshakeToken(r)
	if token != "" {
		id, err := g.identity.Resolve(token)
		if err != nil {
			s.sendEvent(protocol.EventAuthError, protocol.AuthErrorPayload{Error: err.Error()})
		} else {
			s.PlayerID = id.ID
			s.Name = id.DisplayName
		}
	}

	g.mu.Lock()
	g.sessions[s.ID] = s
	total := len(g.sessions)
	g.mu.Unlock()

	log.Printf("[Gateway] Session %s connected (player=%q), total: %d", s.ID, s.PlayerID, total)

	go s.readPump()
	go s.writePump()
}

func handshakeToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

func (s *Session) readPump() {
	defer func() {
		s.gateway.removeSession(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(readLimit)
	s.conn.SetReadDeadline(time.Now().Add(readTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		messageType, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Gateway] Read error: %v", err)
			}
			break
		}
		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			s.handleMessage(message)
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) enqueue(data []byte) {
	select {
	case s.send <- data:
	default:
		// Drop when the client cannot keep up.
	}
}

func (s *Session) sendEvent(event string, payload any) {
	data, err := protocol.Marshal(event, payload)
	if err != nil {
		log.Printf("[Gateway] Marshal %s failed: %v", event, err)
		return
	}
	s.enqueue(data)
}

func (s *Session) reply(ref string, err error, mutate func(*protocol.Reply)) {
	r := protocol.Reply{Ref: ref, Success: err == nil}
	if err != nil {
		r.Error = err.Error()
		r.Code = string(poker.CodeOf(err))
	}
	if mutate != nil && err == nil {
		mutate(&r)
	}
	s.sendEvent(protocol.EventReply, r)
}

// --- dispatch ---

func (s *Session) handleMessage(data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.reply("", fmt.Errorf("invalid message format: %w", err), nil)
		return
	}

	switch env.Event {
	case protocol.EventCreateUserTable:
		s.handleCreateUserTable(env)
	case protocol.EventJoinTable:
		s.handleJoinTable(env)
	case protocol.EventLeaveTable:
		s.handleLeaveTable(env)
	case protocol.EventStartHand:
		s.handleStartHand(env)
	case protocol.EventAction:
		s.handleAction(env)
	case protocol.EventChangeSeat:
		s.handleChangeSeat(env)
	case protocol.EventWatchTable:
		s.handleWatchTable(env)
	case protocol.EventUnwatchTable:
		s.handleUnwatchTable(env)
	case protocol.EventGetTables:
		s.reply(env.Event, nil, nil)
		s.sendEvent(protocol.EventTableList, protocol.TableListPayload{Tables: s.gateway.lobby.Summaries()})
	case protocol.EventSubscribeTables:
		s.gateway.subscribeLobby(s)
		s.reply(env.Event, nil, nil)
		s.sendEvent(protocol.EventTableList, protocol.TableListPayload{Tables: s.gateway.lobby.Summaries()})
	case protocol.EventUnsubscribeTables:
		s.gateway.unsubscribeLobby(s)
		s.reply(env.Event, nil, nil)
	case protocol.EventGetState:
		s.handleGetState(env)
	default:
		log.Printf("[Gateway] Unknown event %q from session %s", env.Event, s.ID)
		s.reply(env.Event, poker.NewError(poker.CodeActionIllegal, "unknown event"), nil)
	}
}

// requireAuth gates player-scoped messages on a bound identity.
func (s *Session) requireAuth(ref string) bool {
	if s.PlayerID == "" {
		s.reply(ref, poker.NewError(poker.CodeNotAuthenticated, ""), nil)
		return false
	}
	return true
}

// requireSelf rejects messages whose claimed player id is not the
// session's bound identity.
func (s *Session) requireSelf(ref, claimed string) bool {
	if claimed != "" && claimed != s.PlayerID {
		s.reply(ref, poker.NewError(poker.CodeUnauthorized, "player id mismatch"), nil)
		return false
	}
	return true
}

func (s *Session) lookupTable(ref, tableID string) (*table.Table, bool) {
	t, ok := s.gateway.lobby.Get(tableID)
	if !ok {
		s.reply(ref, poker.NewError(poker.CodeTableNotFound, tableID), nil)
		return nil, false
	}
	return t, true
}

func (s *Session) handleCreateUserTable(env protocol.Envelope) {
	if !s.requireAuth(env.Event) {
		return
	}
	var req protocol.CreateUserTableRequest
	if err := protocol.DecodeData(env, &req); err != nil {
		s.reply(env.Event, err, nil)
		return
	}
	t, err := s.gateway.lobby.CreateUserTable(
		poker.Variant(req.Variant), req.StakeLabel, req.Blinds,
		poker.BettingType(req.BettingType))
	if err != nil {
		s.reply(env.Event, err, nil)
		return
	}
	s.reply(env.Event, nil, func(r *protocol.Reply) { r.TableID = t.ID })
}

func (s *Session) handleJoinTable(env protocol.Envelope) {
	if !s.requireAuth(env.Event) {
		return
	}
	var req protocol.JoinTableRequest
	if err := protocol.DecodeData(env, &req); err != nil {
		s.reply(env.Event, err, nil)
		return
	}
	if !s.requireSelf(env.Event, req.PlayerID) {
		return
	}
	t, ok := s.lookupTable(env.Event, req.TableID)
	if !ok {
		return
	}

	err := t.SubmitEvent(table.Event{
		Type:     table.EventJoin,
		PlayerID: s.PlayerID,
		Name:     s.Name,
		Amount:   req.BuyIn,
		Seat:     req.SeatIndex,
	})
	if err != nil {
		s.reply(env.Event, err, nil)
		return
	}

	s.mu.Lock()
	s.seated[t.ID] = true
	s.mu.Unlock()

	seat, _, _ := t.Game().SeatOf(s.PlayerID)
	s.reply(env.Event, nil, func(r *protocol.Reply) {
		r.TableID = t.ID
		r.Seat = &seat
	})

	cfg := t.Config()
	s.gateway.lobby.EnsureCapacity(cfg.Variant, cfg.StakeLabel)
	s.gateway.ListChanged()
}

func (s *Session) handleLeaveTable(env protocol.Envelope) {
	if !s.requireAuth(env.Event) {
		return
	}
	var req protocol.TableRef
	if err := protocol.DecodeData(env, &req); err != nil {
		s.reply(env.Event, err, nil)
		return
	}
	t, ok := s.lookupTable(env.Event, req.TableID)
	if !ok {
		return
	}

	err := t.SubmitEvent(table.Event{Type: table.EventLeave, PlayerID: s.PlayerID})
	s.mu.Lock()
	delete(s.seated, t.ID)
	s.mu.Unlock()
	s.reply(env.Event, err, nil)
	if err == nil {
		s.gateway.ListChanged()
	}
}

func (s *Session) handleStartHand(env protocol.Envelope) {
	if !s.requireAuth(env.Event) {
		return
	}
	var req protocol.TableRef
	if err := protocol.DecodeData(env, &req); err != nil {
		s.reply(env.Event, err, nil)
		return
	}
	t, ok := s.lookupTable(env.Event, req.TableID)
	if !ok {
		return
	}
	if _, _, seated := t.Game().SeatOf(s.PlayerID); !seated {
		s.reply(env.Event, poker.NewError(poker.CodeNotInHand, ""), nil)
		return
	}
	s.reply(env.Event, t.SubmitEvent(table.Event{Type: table.EventStartHand}), nil)
}

func (s *Session) handleAction(env protocol.Envelope) {
	if !s.requireAuth(env.Event) {
		return
	}
	var req protocol.ActionRequest
	if err := protocol.DecodeData(env, &req); err != nil {
		s.reply(env.Event, err, nil)
		return
	}
	if !s.requireSelf(env.Event, req.PlayerID) {
		return
	}
	kind := poker.ActionKind(req.Kind)
	if !kind.Valid() {
		s.reply(env.Event, poker.NewError(poker.CodeActionIllegal, "unknown action kind"), nil)
		return
	}
	t, ok := s.lookupTable(env.Event, req.TableID)
	if !ok {
		return
	}
	err := t.SubmitEvent(table.Event{
		Type:     table.EventAction,
		PlayerID: s.PlayerID,
		Action:   kind,
		Amount:   req.Amount,
	})
	s.reply(env.Event, err, nil)
}

func (s *Session) handleChangeSeat(env protocol.Envelope) {
	if !s.requireAuth(env.Event) {
		return
	}
	var req protocol.ChangeSeatRequest
	if err := protocol.DecodeData(env, &req); err != nil {
		s.reply(env.Event, err, nil)
		return
	}
	if !s.requireSelf(env.Event, req.PlayerID) {
		return
	}
	t, ok := s.lookupTable(env.Event, req.TableID)
	if !ok {
		return
	}
	err := t.SubmitEvent(table.Event{
		Type:     table.EventChangeSeat,
		PlayerID: s.PlayerID,
		Seat:     req.NewSeatIndex,
	})
	s.reply(env.Event, err, nil)
}

func (s *Session) handleWatchTable(env protocol.Envelope) {
	var req protocol.TableRef
	if err := protocol.DecodeData(env, &req); err != nil {
		s.reply(env.Event, err, nil)
		return
	}
	t, ok := s.lookupTable(env.Event, req.TableID)
	if !ok {
		return
	}

	s.gateway.watch(t.ID, s)
	s.mu.Lock()
	s.watched[t.ID] = true
	s.mu.Unlock()

	// A returning player referencing their table re-attaches.
	s.resumeIfSeated(t)

	s.reply(env.Event, nil, nil)
	s.sendEvent(protocol.EventSpectatorState, protocol.TableState{TableID: t.ID, View: t.ProjectFor("")})
}

func (s *Session) handleUnwatchTable(env protocol.Envelope) {
	var req protocol.TableRef
	if err := protocol.DecodeData(env, &req); err != nil {
		s.reply(env.Event, err, nil)
		return
	}
	s.gateway.unwatch(req.TableID, s)
	s.mu.Lock()
	delete(s.watched, req.TableID)
	s.mu.Unlock()
	s.reply(env.Event, nil, nil)
}

func (s *Session) handleGetState(env protocol.Envelope) {
	var req protocol.TableRef
	if err := protocol.DecodeData(env, &req); err != nil {
		s.reply(env.Event, err, nil)
		return
	}
	t, ok := s.lookupTable(env.Event, req.TableID)
	if !ok {
		return
	}

	s.resumeIfSeated(t)
	s.reply(env.Event, nil, nil)

	if s.PlayerID != "" {
		if _, _, seated := t.Game().SeatOf(s.PlayerID); seated {
			s.mu.Lock()
			s.seated[t.ID] = true
			s.mu.Unlock()
			s.sendEvent(protocol.EventGameState, protocol.TableState{TableID: t.ID, View: t.ProjectFor(s.PlayerID)})
			return
		}
	}
	s.sendEvent(protocol.EventSpectatorState, protocol.TableState{TableID: t.ID, View: t.ProjectFor("")})
}

// resumeIfSeated cancels the disconnect grace when a seated player's
// new session references the table.
func (s *Session) resumeIfSeated(t *table.Table) {
	if s.PlayerID == "" {
		return
	}
	if _, _, seated := t.Game().SeatOf(s.PlayerID); !seated {
		return
	}
	s.mu.Lock()
	s.seated[t.ID] = true
	s.mu.Unlock()
	if err := t.SubmitEvent(table.Event{Type: table.EventConnResume, PlayerID: s.PlayerID}); err != nil {
		log.Printf("[Gateway] Resume failed for %s at %s: %v", s.PlayerID, t.ID, err)
	}
}

// --- fan-out ---

// TableChanged projects and emits state after a table mutation: one
// viewer-specific gameState per seated player, plus the sanitized
// spectatorState to the table channel.
func (g *Gateway) TableChanged(t *table.Table) {
	g.mu.RLock()
	sessions := make([]*Session, 0, len(g.sessions))
	for _, s := range g.sessions {
		sessions = append(sessions, s)
	}
	watching := make([]*Session, 0)
	for _, s := range g.watchers[t.ID] {
		watching = append(watching, s)
	}
	g.mu.RUnlock()

	for _, s := range sessions {
		if s.PlayerID == "" {
			continue
		}
		if _, _, seated := t.Game().SeatOf(s.PlayerID); !seated {
			continue
		}
		s.sendEvent(protocol.EventGameState, protocol.TableState{TableID: t.ID, View: t.ProjectFor(s.PlayerID)})
	}

	if len(watching) > 0 {
		view := t.ProjectFor("")
		data, err := protocol.Marshal(protocol.EventSpectatorState, protocol.TableState{TableID: t.ID, View: view})
		if err != nil {
			return
		}
		for _, s := range watching {
			s.enqueue(data)
		}
	}
}

// ListChanged pushes the table list to every lobby subscriber.
func (g *Gateway) ListChanged() {
	summaries := g.lobby.Summaries()
	data, err := protocol.Marshal(protocol.EventTableList, protocol.TableListPayload{Tables: summaries})
	if err != nil {
		return
	}

	g.mu.RLock()
	subs := make([]*Session, 0, len(g.lobbySubs))
	for _, s := range g.lobbySubs {
		subs = append(subs, s)
	}
	g.mu.RUnlock()

	for _, s := range subs {
		s.enqueue(data)
	}
}

func (g *Gateway) watch(tableID string, s *Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.watchers[tableID] == nil {
		g.watchers[tableID] = make(map[string]*Session)
	}
	g.watchers[tableID][s.ID] = s
}

func (g *Gateway) unwatch(tableID string, s *Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if set := g.watchers[tableID]; set != nil {
		delete(set, s.ID)
		if len(set) == 0 {
			delete(g.watchers, tableID)
		}
	}
}

func (g *Gateway) subscribeLobby(s *Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lobbySubs[s.ID] = s
}

func (g *Gateway) unsubscribeLobby(s *Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.lobbySubs, s.ID)
}

// removeSession tears down a closed connection and starts the
// disconnect grace for every table where the player holds a seat.
func (g *Gateway) removeSession(s *Session) {
	g.mu.Lock()
	delete(g.sessions, s.ID)
	delete(g.lobbySubs, s.ID)
	for tableID, set := range g.watchers {
		delete(set, s.ID)
		if len(set) == 0 {
			delete(g.watchers, tableID)
		}
	}
	total := len(g.sessions)
	g.mu.Unlock()

	s.mu.Lock()
	seated := make([]string, 0, len(s.seated))
	for tableID := range s.seated {
		seated = append(seated, tableID)
	}
	s.mu.Unlock()

	for _, tableID := range seated {
		if t, ok := g.lobby.Get(tableID); ok {
			if err := t.SubmitEvent(table.Event{Type: table.EventConnLost, PlayerID: s.PlayerID}); err != nil {
				log.Printf("[Gateway] ConnLost dispatch failed for %s: %v", tableID, err)
			}
		}
	}

	log.Printf("[Gateway] Session %s disconnected, total: %d", s.ID, total)
}
