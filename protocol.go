package main

import "encoding/json"

// Inbound envelope: {type, data?}.
type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type createRoomData struct {
	PlayerName string `json:"playerName"`
	IsPublic   bool   `json:"isPublic,omitempty"`
	RoomName   string `json:"roomName,omitempty"`
	MaxPlayers int    `json:"maxPlayers,omitempty"`
	GameType   string `json:"gameType,omitempty"`
}

type joinRoomData struct {
	RoomCode   string `json:"roomCode"`
	PlayerName string `json:"playerName"`
}

type targetPlayerData struct {
	TargetPlayerID string `json:"targetPlayerId"`
}

type reconnectData struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

type sendMessageData struct {
	Text string `json:"text"`
}

type nightActionData struct {
	ActionType string `json:"actionType"`
	TargetID   string `json:"targetId"`
}

// SettingsPatch updates only the fields a host actually sent.
type SettingsPatch struct {
	AllowOddOneOutReveal  *bool     `json:"allowOddOneOutReveal,omitempty"`
	EnableTimer           *bool     `json:"enableTimer,omitempty"`
	DiscussionTimeMinutes *int      `json:"discussionTimeMinutes,omitempty"`
	Category              *string   `json:"category,omitempty"`
	ExcludedCategories    *[]string `json:"excludedCategories,omitempty"`
	PreventRepeatOddOne   *bool     `json:"preventRepeatOddOne,omitempty"`
}

// Outbound messages.
type roomCreatedMessage struct {
	Type     string `json:"type"` // "room_created"
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

type roomJoinedMessage struct {
	Type     string `json:"type"` // "room_joined"
	PlayerID string `json:"playerId"`
	RoomCode string `json:"roomCode,omitempty"`
}

type joinRequestSentMessage struct {
	Type string `json:"type"` // "join_request_sent"
}

type errorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

type publicRoomsMessage struct {
	Type  string           `json:"type"` // "public_rooms"
	Rooms []publicRoomView `json:"rooms"`
}

type publicRoomView struct {
	Code        string `json:"code"`
	RoomName    string `json:"roomName,omitempty"`
	GameType    string `json:"gameType"`
	PlayerCount int    `json:"playerCount"`
	MaxPlayers  int    `json:"maxPlayers"`
}

// roomStateMessage is the personalized snapshot sent after every mutation.
type roomStateMessage struct {
	Type       string   `json:"type"` // "room_state"
	Room       roomView `json:"room"`
	PlayerID   string   `json:"playerId"`
	PlayerWord *string  `json:"playerWord"`
}

type playerView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsHost      bool   `json:"isHost"`
	IsConnected bool   `json:"isConnected"`
	VotedFor    string `json:"votedFor,omitempty"`
	Points      int    `json:"points"`

	Alive               *bool    `json:"isAlive,omitempty"`
	Role                string   `json:"role,omitempty"`
	Team                string   `json:"team,omitempty"`
	InvestigationResult string   `json:"investigationResult,omitempty"`
	WatchResult         []string `json:"watchResult,omitempty"`
}

type roomView struct {
	Code        string            `json:"code"`
	HostID      string            `json:"hostId"`
	GameType    string            `json:"gameType"`
	Phase       string            `json:"phase"`
	Players     []playerView      `json:"players"`
	Messages    []*Message        `json:"messages"`
	TimerEndsAt int64             `json:"timerEndsAt,omitempty"`
	RoundNumber int               `json:"roundNumber"`
	ReadyCount  int               `json:"readyCount"`
	IsPublic    bool              `json:"isPublic"`
	RoomName    string            `json:"roomName,omitempty"`
	MaxPlayers  int               `json:"maxPlayers"`
	Pending     map[string]string `json:"pendingRequests,omitempty"`
	Settings    Settings          `json:"settings"`

	CurrentNightRole string     `json:"currentNightRole,omitempty"`
	NightResult      string     `json:"nightResult,omitempty"`
	Winner           string     `json:"winner,omitempty"`
	MafiaChat        []*Message `json:"mafiaChat,omitempty"`
}

// buildRoomState renders the room as seen by one player: the full public
// state, that player's own secret, and nobody else's. Caller must hold the
// room lock.
func buildRoomState(room *Room, viewerID string) roomStateMessage {
	gameOver := room.Phase == PhaseGameOver

	view := roomView{
		Code:        room.Code,
		HostID:      room.HostID,
		GameType:    string(room.GameType),
		Phase:       string(room.Phase),
		Players:     make([]playerView, 0, len(room.Players)),
		Messages:    room.Messages,
		TimerEndsAt: room.TimerEndsAt,
		RoundNumber: room.RoundNumber,
		IsPublic:    room.IsPublic,
		RoomName:    room.RoomName,
		MaxPlayers:  room.MaxPlayers,
		Settings:    room.Settings,
	}
	if view.Messages == nil {
		view.Messages = []*Message{}
	}

	// Pending join requests are a host concern.
	if viewerID == room.HostID && len(room.Pending) > 0 {
		view.Pending = room.Pending
	}

	var viewerIsMafia bool
	if room.GameType == GameMafia {
		view.CurrentNightRole = string(room.Mafia.CurrentNightRole)
		view.NightResult = room.Mafia.NightResult
		view.Winner = string(room.Mafia.Winner)
		view.ReadyCount = len(room.Mafia.Ready)
		if viewer := room.player(viewerID); viewer != nil && viewer.Mafia != nil {
			viewerIsMafia = viewer.Mafia.Team == TeamMafia
		}
		if viewerIsMafia || gameOver {
			view.MafiaChat = room.Mafia.MafiaChat
		}
	} else {
		view.ReadyCount = len(room.Word.Ready)
	}

	for _, p := range room.Players {
		pv := playerView{
			ID:          p.ID,
			Name:        p.Name,
			IsHost:      p.IsHost,
			IsConnected: p.IsConnected,
			VotedFor:    p.VotedFor,
			Points:      p.Points,
		}
		if p.Mafia != nil {
			alive := p.Mafia.Alive
			pv.Alive = &alive
			// Roles are secret until the game ends; each player sees only
			// their own, and mafia members recognize each other.
			sameTeamMafia := viewerIsMafia && p.Mafia.Team == TeamMafia
			if p.ID == viewerID || gameOver || sameTeamMafia {
				pv.Role = string(p.Mafia.Role)
				pv.Team = string(p.Mafia.Team)
			}
			if p.ID == viewerID {
				pv.InvestigationResult = p.Mafia.InvestigationResult
				pv.WatchResult = p.Mafia.WatchResult
			}
		}
		view.Players = append(view.Players, pv)
	}

	return roomStateMessage{
		Type:       "room_state",
		Room:       view,
		PlayerID:   viewerID,
		PlayerWord: playerWord(room, viewerID),
	}
}

// playerWord returns the viewer's secret word, or nil in the lobby and in
// mafia games.
func playerWord(room *Room, viewerID string) *string {
	if room.GameType != GameWhosOut || room.Phase == PhaseLobby || room.Word.CurrentPair == nil {
		return nil
	}

	word := room.Word.CurrentPair.Normal
	if viewerID == room.Word.OddOneOutID {
		word = room.Word.CurrentPair.Odd
	}
	return &word
}

func buildPublicRooms(rooms []*Room) publicRoomsMessage {
	out := publicRoomsMessage{
		Type:  "public_rooms",
		Rooms: make([]publicRoomView, 0, len(rooms)),
	}
	for _, room := range rooms {
		room.lock()
		out.Rooms = append(out.Rooms, publicRoomView{
			Code:        room.Code,
			RoomName:    room.RoomName,
			GameType:    string(room.GameType),
			PlayerCount: len(room.Players),
			MaxPlayers:  room.MaxPlayers,
		})
		room.unlock()
	}
	return out
}
