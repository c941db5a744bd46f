package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	maxChatLength = 500
	maxNameLength = 20

	// Inbound throttle per connection; a client that exceeds it has its
	// messages dropped, not the connection.
	inboundRate  = 10
	inboundBurst = 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type client struct {
	conn     *websocket.Conn
	send     chan any
	limiter  *rate.Limiter
	playerID string
	roomCode string
}

// Server is the session gateway: it owns the store, the engines, the
// scheduler, and the live connection table, and routes every inbound
// message to the right engine before broadcasting personalized snapshots.
type Server struct {
	cfg   *Config
	store *RoomStore
	packs *WordPacks
	sched *PhaseScheduler
	word  *WordEngine
	mafia *MafiaEngine

	// mu guards clients and every client binding. Lock order: never
	// acquire mu while holding a room lock. Handlers copy the binding
	// under mu first, then lock the room; broadcast snapshots the client
	// table under mu before touching the room.
	mu      sync.Mutex
	clients map[*client]bool
}

func NewServer(cfg *Config) (*Server, error) {
	packs, err := loadWordPacks()
	if err != nil {
		return nil, err
	}

	sched := NewPhaseScheduler()
	s := &Server{
		cfg:     cfg,
		store:   NewRoomStore(),
		packs:   packs,
		sched:   sched,
		word:    NewWordEngine(cfg, packs, sched),
		mafia:   NewMafiaEngine(cfg, sched),
		clients: make(map[*client]bool),
	}
	sched.OnExpire(s.broadcastRoom)

	return s, nil
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()
}

func (s *Server) bind(c *client, playerID, roomCode string) {
	s.mu.Lock()
	c.playerID = playerID
	c.roomCode = roomCode
	s.mu.Unlock()
}

func (s *Server) binding(c *client) (playerID, roomCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return c.playerID, c.roomCode
}

// dropLocked removes a client whose send buffer is full. Caller holds s.mu.
func (s *Server) dropLocked(c *client) {
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *Server) sendTo(c *client, msg any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
		s.dropLocked(c)
	}
}

// sendToPlayer delivers to whichever connection is bound to the player.
func (s *Server) sendToPlayer(roomCode, playerID string, msg any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.clients {
		if c.roomCode == roomCode && c.playerID == playerID {
			select {
			case c.send <- msg:
			default:
				s.dropLocked(c)
			}
			return
		}
	}
}

// broadcastRoom sends every connection bound to the room its own
// personalized snapshot.
func (s *Server) broadcastRoom(room *Room) {
	s.mu.Lock()
	targets := make(map[*client]string)
	for c := range s.clients {
		if c.roomCode == room.Code {
			targets[c] = c.playerID
		}
	}
	s.mu.Unlock()

	room.lock()
	snapshots := make(map[*client]roomStateMessage, len(targets))
	for c, playerID := range targets {
		// Pending requesters are bound for approval delivery but see no
		// room state until a host lets them in.
		if room.player(playerID) == nil {
			continue
		}
		snapshots[c] = buildRoomState(room, playerID)
	}
	room.unlock()

	s.mu.Lock()
	for c, msg := range snapshots {
		if !s.clients[c] {
			continue
		}
		select {
		case c.send <- msg:
		default:
			s.dropLocked(c)
		}
	}
	s.mu.Unlock()
}

func (s *Server) sendError(c *client, err error) {
	s.sendTo(c, errorMessage{Type: "error", Message: err.Error()})
}

// serveWS upgrades a connection and runs its pumps.
func (s *Server) serveWS() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug().Err(err).Str("ip", realIP(r)).Msg("SERVE: Websocket upgrade failed")
			return
		}

		c := &client{
			conn:    conn,
			send:    make(chan any, 16),
			limiter: rate.NewLimiter(rate.Limit(inboundRate), inboundBurst),
		}
		s.register(c)

		log.Debug().Str("ip", realIP(r)).Msg("SERVE: Websocket connected")

		go c.writePump()
		s.readPump(c)
	}
}

func (c *client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func (s *Server) readPump(c *client) {
	defer func() {
		s.disconnect(c)
		_ = c.conn.Close()
	}()

	for {
		var msg inboundMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		if !c.limiter.Allow() {
			continue
		}
		s.handleMessage(c, msg)
	}
}

// disconnect demotes the bound player to disconnected; it never removes
// them, so the game survives a dropped socket and the player can resume.
func (s *Server) disconnect(c *client) {
	s.mu.Lock()
	playerID, roomCode := c.playerID, c.roomCode
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
	s.mu.Unlock()

	if roomCode == "" || playerID == "" {
		return
	}
	room, ok := s.store.Get(roomCode)
	if !ok {
		return
	}

	room.lock()
	if p := room.player(playerID); p != nil {
		p.IsConnected = false
		room.touch()
	}
	room.unlock()

	s.broadcastRoom(room)
}

// room resolves the client's bound room, or reports a typed error.
func (s *Server) room(c *client) (*Room, string, error) {
	playerID, roomCode := s.binding(c)
	if roomCode == "" {
		return nil, "", errRoomNotFound
	}
	room, ok := s.store.Get(roomCode)
	if !ok {
		return nil, "", errRoomNotFound
	}
	return room, playerID, nil
}

func decode[T any](data json.RawMessage) (T, bool) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		var zero T
		return zero, false
	}
	return out, true
}

func validName(name string) bool {
	return name != "" && len(name) <= maxNameLength
}

func (s *Server) handleMessage(c *client, msg inboundMessage) {
	switch msg.Type {
	case "create_room":
		s.handleCreateRoom(c, msg.Data)
	case "join_room":
		s.handleJoinRoom(c, msg.Data, false)
	case "request_join_room":
		s.handleJoinRoom(c, msg.Data, true)
	case "approve_join_request":
		s.handleApproveJoin(c, msg.Data)
	case "reject_join_request":
		s.handleRejectJoin(c, msg.Data)
	case "get_public_rooms":
		s.sendTo(c, buildPublicRooms(s.store.ListPublicRooms()))
	case "reconnect":
		s.handleReconnect(c, msg.Data)
	case "start_game":
		s.handleStartGame(c)
	case "send_message":
		s.handleSendMessage(c, msg.Data)
	case "start_voting":
		s.handleReadyToVote(c)
	case "vote":
		s.handleVote(c, msg.Data)
	case "next_round":
		s.handleNextRound(c)
	case "kick_player":
		s.handleKick(c, msg.Data)
	case "leave_room":
		s.handleLeave(c)
	case "update_settings":
		s.handleUpdateSettings(c, msg.Data)
	case "mafia_night_action":
		s.handleNightAction(c, msg.Data)
	case "mafia_chat":
		s.handleMafiaChat(c, msg.Data)
	case "end_night", "next_night_role":
		s.handleEndNight(c)
	case "return_to_lobby", "end_game":
		s.handleReturnToLobby(c)
	default:
		// Unknown types are dropped rather than answered, matching the
		// rest of the silent no-op policy for unroutable input.
	}
}

func (s *Server) handleCreateRoom(c *client, data json.RawMessage) {
	req, ok := decode[createRoomData](data)
	if !ok || !validName(req.PlayerName) {
		s.sendError(c, errInvalidAction)
		return
	}

	room, host := s.store.CreateRoom(req.PlayerName, GameType(req.GameType), req.IsPublic, req.RoomName, req.MaxPlayers)
	s.bind(c, host.ID, room.Code)

	s.sendTo(c, roomCreatedMessage{Type: "room_created", RoomCode: room.Code, PlayerID: host.ID})
	s.broadcastRoom(room)
}

// handleJoinRoom covers both direct joins and explicit join requests.
// Private rooms always go through the pending queue.
func (s *Server) handleJoinRoom(c *client, data json.RawMessage, request bool) {
	req, ok := decode[joinRoomData](data)
	if !ok || !validName(req.PlayerName) {
		s.sendError(c, errInvalidAction)
		return
	}

	room, ok := s.store.Get(req.RoomCode)
	if !ok {
		s.sendError(c, errRoomNotFound)
		return
	}

	room.lock()
	pending := request || !room.IsPublic
	var player *Player
	var playerID string
	var err error
	if pending {
		playerID, err = requestJoin(room, req.PlayerName)
	} else {
		player, err = addPlayer(room, req.PlayerName)
		if err == nil {
			playerID = player.ID
		}
	}
	room.unlock()

	if err != nil {
		s.sendError(c, err)
		return
	}

	s.bind(c, playerID, room.Code)

	if pending {
		s.sendTo(c, joinRequestSentMessage{Type: "join_request_sent"})
	} else {
		s.sendTo(c, roomJoinedMessage{Type: "room_joined", PlayerID: playerID, RoomCode: room.Code})
	}
	s.broadcastRoom(room)
}

func (s *Server) handleApproveJoin(c *client, data json.RawMessage) {
	req, ok := decode[targetPlayerData](data)
	if !ok {
		s.sendError(c, errInvalidAction)
		return
	}
	room, playerID, err := s.room(c)
	if err != nil {
		s.sendError(c, err)
		return
	}

	room.lock()
	if room.HostID != playerID {
		room.unlock()
		s.sendError(c, errNotHost)
		return
	}
	_, err = approveJoin(room, req.TargetPlayerID)
	room.unlock()

	if err != nil {
		s.sendError(c, err)
		return
	}

	s.sendToPlayer(room.Code, req.TargetPlayerID, roomJoinedMessage{
		Type:     "room_joined",
		PlayerID: req.TargetPlayerID,
		RoomCode: room.Code,
	})
	s.broadcastRoom(room)
}

func (s *Server) handleRejectJoin(c *client, data json.RawMessage) {
	req, ok := decode[targetPlayerData](data)
	if !ok {
		s.sendError(c, errInvalidAction)
		return
	}
	room, playerID, err := s.room(c)
	if err != nil {
		s.sendError(c, err)
		return
	}

	room.lock()
	if room.HostID != playerID {
		room.unlock()
		s.sendError(c, errNotHost)
		return
	}
	rejectJoin(room, req.TargetPlayerID)
	room.unlock()

	s.sendToPlayer(room.Code, req.TargetPlayerID, errorMessage{
		Type:    "error",
		Message: "your join request was declined",
	})
	s.unbindPlayer(room.Code, req.TargetPlayerID)
	s.broadcastRoom(room)
}

func (s *Server) unbindPlayer(roomCode, playerID string) {
	s.mu.Lock()
	for c := range s.clients {
		if c.roomCode == roomCode && c.playerID == playerID {
			c.playerID = ""
			c.roomCode = ""
		}
	}
	s.mu.Unlock()
}

func (s *Server) handleReconnect(c *client, data json.RawMessage) {
	req, ok := decode[reconnectData](data)
	if !ok {
		s.sendError(c, errInvalidAction)
		return
	}

	room, ok := s.store.Get(req.RoomCode)
	if !ok {
		s.sendError(c, errRoomNotFound)
		return
	}

	room.lock()
	_, err := reconnect(room, req.PlayerID)
	room.unlock()

	if err != nil {
		s.sendError(c, err)
		return
	}

	s.bind(c, req.PlayerID, req.RoomCode)
	s.sendTo(c, roomJoinedMessage{Type: "room_joined", PlayerID: req.PlayerID, RoomCode: req.RoomCode})
	s.broadcastRoom(room)
}

func (s *Server) handleStartGame(c *client) {
	room, playerID, err := s.room(c)
	if err != nil {
		s.sendError(c, err)
		return
	}

	room.lock()
	if room.HostID != playerID {
		err = errNotHost
	} else if room.GameType == GameMafia {
		err = s.mafia.StartGame(room)
	} else {
		err = s.word.StartGame(room)
	}
	room.unlock()

	if err != nil {
		s.sendError(c, err)
		return
	}
	s.broadcastRoom(room)
}

func (s *Server) handleSendMessage(c *client, data json.RawMessage) {
	req, ok := decode[sendMessageData](data)
	if !ok || req.Text == "" || len(req.Text) > maxChatLength {
		s.sendError(c, errInvalidAction)
		return
	}
	room, playerID, err := s.room(c)
	if err != nil {
		s.sendError(c, err)
		return
	}

	room.lock()
	player := room.player(playerID)
	chatPhase := room.Phase == PhaseDiscussion
	if room.GameType == GameMafia {
		chatPhase = room.Phase == PhaseDay
	}
	switch {
	case player == nil:
		err = errPlayerNotFound
	case !chatPhase:
		err = errInvalidPhase
	default:
		room.Messages = append(room.Messages, newMessage(playerID, player.Name, req.Text))
		room.touch()
	}
	room.unlock()

	if err != nil {
		s.sendError(c, err)
		return
	}
	s.broadcastRoom(room)
}

func (s *Server) handleReadyToVote(c *client) {
	room, playerID, err := s.room(c)
	if err != nil {
		s.sendError(c, err)
		return
	}

	room.lock()
	if room.GameType == GameMafia {
		err = s.mafia.ReadyToVote(room, playerID)
	} else {
		err = s.word.ReadyToVote(room, playerID)
	}
	room.unlock()

	if err != nil {
		s.sendError(c, err)
		return
	}
	s.broadcastRoom(room)
}

func (s *Server) handleVote(c *client, data json.RawMessage) {
	req, ok := decode[targetPlayerData](data)
	if !ok {
		s.sendError(c, errInvalidAction)
		return
	}
	room, playerID, err := s.room(c)
	if err != nil {
		s.sendError(c, err)
		return
	}

	room.lock()
	if room.GameType == GameMafia {
		err = s.mafia.SubmitVote(room, playerID, req.TargetPlayerID)
	} else {
		err = s.word.SubmitVote(room, playerID, req.TargetPlayerID)
	}
	room.unlock()

	if err != nil {
		s.sendError(c, err)
		return
	}
	s.broadcastRoom(room)
}

func (s *Server) handleNextRound(c *client) {
	room, playerID, err := s.room(c)
	if err != nil {
		s.sendError(c, err)
		return
	}

	room.lock()
	if room.HostID != playerID {
		err = errNotHost
	} else if room.GameType == GameMafia {
		err = s.mafia.NextRound(room)
	} else {
		err = s.word.NextRound(room)
	}
	room.unlock()

	if err != nil {
		s.sendError(c, err)
		return
	}
	s.broadcastRoom(room)
}

func (s *Server) handleKick(c *client, data json.RawMessage) {
	req, ok := decode[targetPlayerData](data)
	if !ok {
		s.sendError(c, errInvalidAction)
		return
	}
	room, playerID, err := s.room(c)
	if err != nil {
		s.sendError(c, err)
		return
	}

	room.lock()
	if room.HostID != playerID {
		room.unlock()
		s.sendError(c, errNotHost)
		return
	}
	empty, wasInGame := removePlayer(room, req.TargetPlayerID)
	room.unlock()

	if wasInGame || empty {
		s.sched.Cancel(room.Code)
	}

	s.sendToPlayer(room.Code, req.TargetPlayerID, errorMessage{
		Type:    "error",
		Message: "you have been removed from the room",
	})
	s.unbindPlayer(room.Code, req.TargetPlayerID)

	if empty {
		s.store.Delete(room.Code)
		return
	}
	s.broadcastRoom(room)
}

func (s *Server) handleLeave(c *client) {
	room, playerID, err := s.room(c)
	if err != nil {
		// Nothing to leave; not an error worth reporting.
		return
	}

	room.lock()
	empty, wasInGame := removePlayer(room, playerID)
	rejectJoin(room, playerID) // covers a pending requester backing out
	room.unlock()

	if wasInGame || empty {
		s.sched.Cancel(room.Code)
	}
	s.bind(c, "", "")

	if empty {
		s.store.Delete(room.Code)
		log.Debug().Str("code", room.Code).Msg("GAMES: Room emptied and destroyed")
		return
	}
	s.broadcastRoom(room)
}

func (s *Server) handleUpdateSettings(c *client, data json.RawMessage) {
	patch, ok := decode[SettingsPatch](data)
	if !ok {
		s.sendError(c, errInvalidAction)
		return
	}
	room, playerID, err := s.room(c)
	if err != nil {
		s.sendError(c, err)
		return
	}

	room.lock()
	switch {
	case room.HostID != playerID:
		err = errNotHost
	case room.Phase != PhaseLobby:
		err = errInvalidPhase
	default:
		updateSettings(room, patch)
	}
	room.unlock()

	if err != nil {
		s.sendError(c, err)
		return
	}
	s.broadcastRoom(room)
}

func (s *Server) handleNightAction(c *client, data json.RawMessage) {
	req, ok := decode[nightActionData](data)
	if !ok {
		s.sendError(c, errInvalidAction)
		return
	}
	room, playerID, err := s.room(c)
	if err != nil {
		s.sendError(c, err)
		return
	}
	if room.GameType != GameMafia {
		s.sendError(c, errInvalidAction)
		return
	}

	room.lock()
	err = s.mafia.NightAction(room, playerID, ActionType(req.ActionType), req.TargetID)
	room.unlock()

	if err != nil {
		s.sendError(c, err)
		return
	}
	s.broadcastRoom(room)
}

func (s *Server) handleMafiaChat(c *client, data json.RawMessage) {
	req, ok := decode[sendMessageData](data)
	if !ok || req.Text == "" || len(req.Text) > maxChatLength {
		s.sendError(c, errInvalidAction)
		return
	}
	room, playerID, err := s.room(c)
	if err != nil {
		s.sendError(c, err)
		return
	}
	if room.GameType != GameMafia {
		s.sendError(c, errInvalidAction)
		return
	}

	room.lock()
	err = s.mafia.MafiaChat(room, playerID, req.Text)
	room.unlock()

	if err != nil {
		s.sendError(c, err)
		return
	}
	s.broadcastRoom(room)
}

func (s *Server) handleEndNight(c *client) {
	room, playerID, err := s.room(c)
	if err != nil {
		s.sendError(c, err)
		return
	}
	if room.GameType != GameMafia {
		s.sendError(c, errInvalidAction)
		return
	}

	room.lock()
	if room.HostID != playerID {
		err = errNotHost
	} else {
		err = s.mafia.EndNight(room)
	}
	room.unlock()

	if err != nil {
		s.sendError(c, err)
		return
	}
	s.broadcastRoom(room)
}

func (s *Server) handleReturnToLobby(c *client) {
	room, playerID, err := s.room(c)
	if err != nil {
		s.sendError(c, err)
		return
	}

	room.lock()
	if room.HostID != playerID {
		room.unlock()
		s.sendError(c, errNotHost)
		return
	}
	room.resetToLobby()
	room.unlock()

	s.sched.Cancel(room.Code)
	s.broadcastRoom(room)
}

// reaper destroys rooms idle longer than the session timeout, the same way
// idle sessions are reaped upstream of the store.
func (s *Server) reaper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.sessionTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.cfg.sessionTimeout)
			for _, room := range s.store.Rooms() {
				room.lock()
				idle := room.LastActive.Before(cutoff)
				room.unlock()

				if idle {
					s.sched.Cancel(room.Code)
					s.store.Delete(room.Code)
					log.Debug().Str("code", room.Code).Msg("GAMES: Reaped idle room")
				}
			}
		}
	}
}
