package main

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	roomCodeLength = 6
	roomCodeChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	defaultMaxPlayers = 10
	minWordPlayers    = 3
)

// RoomStore owns every live room, keyed by code. The store mutex guards only
// the map itself; each Room carries its own lock for game-state mutation.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms: make(map[string]*Room),
	}
}

// newRoomCodeLocked generates a crypto-random 6-character code and ensures it
// doesn't collide with any live room. Caller must hold s.mu.
func (s *RoomStore) newRoomCodeLocked() string {
	for {
		buf := make([]byte, roomCodeLength)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, roomCodeLength)
		for i := range out {
			out[i] = roomCodeChars[int(buf[i])%len(roomCodeChars)]
		}
		code := string(out)

		if _, exists := s.rooms[code]; !exists {
			return code
		}
	}
}

func (s *RoomStore) CreateRoom(hostName string, gameType GameType, isPublic bool, roomName string, maxPlayers int) (*Room, *Player) {
	if gameType != GameMafia {
		gameType = GameWhosOut
	}
	if maxPlayers < minWordPlayers {
		maxPlayers = defaultMaxPlayers
	}

	host := &Player{
		ID:          uuid.NewString(),
		Name:        hostName,
		IsHost:      true,
		IsConnected: true,
	}

	room := &Room{
		HostID:      host.ID,
		GameType:    gameType,
		Phase:       PhaseLobby,
		Players:     []*Player{host},
		RoundNumber: 1,
		Settings:    defaultSettings(),
		IsPublic:    isPublic,
		RoomName:    roomName,
		MaxPlayers:  maxPlayers,
		Pending:     make(map[string]string),
		LastActive:  time.Now(),
	}
	if gameType == GameMafia {
		room.Mafia = newMafiaState()
	} else {
		room.Word = newWordState()
	}

	s.mu.Lock()
	room.Code = s.newRoomCodeLocked()
	s.rooms[room.Code] = room
	s.mu.Unlock()

	log.Debug().Str("code", room.Code).Str("game", string(gameType)).Msg("GAMES: Created room")

	return room, host
}

func (s *RoomStore) Get(code string) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[code]
	return room, ok
}

func (s *RoomStore) Delete(code string) {
	s.mu.Lock()
	delete(s.rooms, code)
	s.mu.Unlock()
}

// Rooms returns a snapshot of all live rooms, for the reaper and leaderboard.
func (s *RoomStore) Rooms() []*Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		out = append(out, room)
	}
	return out
}

// ListPublicRooms returns public rooms still waiting in the lobby.
func (s *RoomStore) ListPublicRooms() []*Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Room, 0)
	for _, room := range s.rooms {
		room.lock()
		if room.IsPublic && room.Phase == PhaseLobby {
			out = append(out, room)
		}
		room.unlock()
	}
	return out
}

// addPlayer joins a player directly. Caller must hold the room lock.
func addPlayer(room *Room, name string) (*Player, error) {
	if room.Phase != PhaseLobby {
		return nil, errGameInProgress
	}
	if len(room.Players) >= room.MaxPlayers {
		return nil, errRoomFull
	}

	player := &Player{
		ID:          uuid.NewString(),
		Name:        name,
		IsConnected: true,
	}
	room.Players = append(room.Players, player)
	room.touch()

	return player, nil
}

// requestJoin enqueues a pending join for a private room. Caller must hold
// the room lock.
func requestJoin(room *Room, name string) (string, error) {
	if room.Phase != PhaseLobby {
		return "", errGameInProgress
	}
	if len(room.Players)+len(room.Pending) >= room.MaxPlayers {
		return "", errRoomFull
	}

	playerID := uuid.NewString()
	room.Pending[playerID] = name
	room.touch()

	return playerID, nil
}

// approveJoin materializes a pending player. Caller must hold the room lock.
func approveJoin(room *Room, targetID string) (*Player, error) {
	name, ok := room.Pending[targetID]
	if !ok {
		return nil, errUnknownTarget
	}
	delete(room.Pending, targetID)

	if room.Phase != PhaseLobby {
		return nil, errGameInProgress
	}
	if len(room.Players) >= room.MaxPlayers {
		return nil, errRoomFull
	}

	player := &Player{
		ID:          targetID,
		Name:        name,
		IsConnected: true,
	}
	room.Players = append(room.Players, player)
	room.touch()

	return player, nil
}

// rejectJoin purges a pending entry. Caller must hold the room lock.
func rejectJoin(room *Room, targetID string) {
	delete(room.Pending, targetID)
	room.touch()
}

// reconnect re-attaches a player by id, preserving their accumulated state.
// Caller must hold the room lock.
func reconnect(room *Room, playerID string) (*Player, error) {
	player := room.player(playerID)
	if player == nil {
		return nil, errPlayerNotFound
	}
	player.IsConnected = true
	room.touch()
	return player, nil
}

// removePlayer handles both leaves and kicks. It promotes a new host when
// the host departs and reports whether the room emptied out (the caller
// deletes it) and whether a running game was broken (the caller already
// sees the room soft-reset to lobby).
func removePlayer(room *Room, playerID string) (empty, wasInGame bool) {
	idx := -1
	for i, p := range room.Players {
		if p.ID == playerID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false, false
	}

	wasInGame = room.inGame()
	room.Players = append(room.Players[:idx], room.Players[idx+1:]...)
	room.touch()

	if len(room.Players) == 0 {
		return true, wasInGame
	}

	if room.HostID == playerID {
		room.HostID = room.Players[0].ID
		room.Players[0].IsHost = true
	}

	// A game short a player cannot continue fairly.
	if wasInGame {
		room.resetToLobby()
	} else {
		room.bump()
	}

	return false, wasInGame
}

// updateSettings overwrites only the fields present in the patch. Caller
// must hold the room lock.
func updateSettings(room *Room, patch SettingsPatch) {
	if patch.AllowOddOneOutReveal != nil {
		room.Settings.AllowOddOneOutReveal = *patch.AllowOddOneOutReveal
	}
	if patch.EnableTimer != nil {
		room.Settings.EnableTimer = *patch.EnableTimer
	}
	if patch.DiscussionTimeMinutes != nil {
		v := *patch.DiscussionTimeMinutes
		if v >= 1 && v <= 10 {
			room.Settings.DiscussionTimeMinutes = v
		}
	}
	if patch.Category != nil {
		room.Settings.Category = *patch.Category
	}
	if patch.ExcludedCategories != nil {
		room.Settings.ExcludedCategories = *patch.ExcludedCategories
	}
	if patch.PreventRepeatOddOne != nil {
		room.Settings.PreventRepeatOddOne = *patch.PreventRepeatOddOne
	}
	room.touch()
}
