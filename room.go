package main

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type GameType string

const (
	GameWhosOut GameType = "whos-out"
	GameMafia   GameType = "mafia"
)

type Phase string

const (
	PhaseLobby      Phase = "lobby"
	PhaseDiscussion Phase = "discussion"
	PhaseVoting     Phase = "voting"
	PhaseReveal     Phase = "reveal"
	PhaseNight      Phase = "night"
	PhaseDay        Phase = "day"
	PhaseGameOver   Phase = "game_over"
)

// Message is one ephemeral chat line, cleared at the start of each round.
type Message struct {
	ID         string `json:"id"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
}

func newMessage(playerID, playerName, text string) *Message {
	return &Message{
		ID:         uuid.NewString(),
		PlayerID:   playerID,
		PlayerName: playerName,
		Text:       text,
		Timestamp:  time.Now().UnixMilli(),
	}
}

// Player carries the fields common to both games. Mafia-only state lives in
// the Mafia variant, populated when roles are dealt and nil otherwise.
type Player struct {
	ID          string
	Name        string
	IsHost      bool
	IsConnected bool
	VotedFor    string
	Points      int

	Mafia *MafiaPlayerState
}

type MafiaPlayerState struct {
	Role                Role
	Team                Team
	Alive               bool
	InvestigationResult string
	WatchResult         []string
}

// WordState is the whos-out variant payload of a Room.
type WordState struct {
	CurrentPair *WordPair
	OddOneOutID string
	LastOddID   string
	UsedWords   []string
	Ready       map[string]bool
}

// MafiaState is the mafia variant payload of a Room.
type MafiaState struct {
	CurrentNightRole Role
	NightActions     []NightAction
	MafiaChat        []*Message
	NightResult      string
	Winner           Team
	Ready            map[string]bool
}

type NightAction struct {
	PlayerID   string
	ActionType ActionType
	TargetID   string
}

type Settings struct {
	AllowOddOneOutReveal  bool     `json:"allowOddOneOutReveal"`
	EnableTimer           bool     `json:"enableTimer"`
	DiscussionTimeMinutes int      `json:"discussionTimeMinutes"`
	Category              string   `json:"category,omitempty"`
	ExcludedCategories    []string `json:"excludedCategories,omitempty"`
	PreventRepeatOddOne   bool     `json:"preventRepeatOddOne"`
}

func defaultSettings() Settings {
	return Settings{
		DiscussionTimeMinutes: 3,
	}
}

// Room is one isolated game session. All reads and writes go through mu;
// phaseVersion fences stale timers (see PhaseScheduler).
type Room struct {
	mu           sync.Mutex
	phaseVersion uint64

	Code        string
	HostID      string
	GameType    GameType
	Phase       Phase
	Players     []*Player
	Messages    []*Message
	TimerEndsAt int64 // epoch ms, 0 when no timer is running
	RoundNumber int
	Settings    Settings
	IsPublic    bool
	RoomName    string
	MaxPlayers  int
	Pending     map[string]string // playerID -> display name
	LastActive  time.Time

	Word  *WordState
	Mafia *MafiaState
}

func (r *Room) lock()   { r.mu.Lock() }
func (r *Room) unlock() { r.mu.Unlock() }

// bump invalidates every timer armed before this transition.
func (r *Room) bump() {
	r.phaseVersion++
}

func (r *Room) touch() {
	r.LastActive = time.Now()
}

func (r *Room) player(id string) *Player {
	for _, p := range r.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *Room) inGame() bool {
	return r.Phase != PhaseLobby
}

// resetToLobby clears every round-scoped field and returns the room to the
// lobby, keeping players and their accumulated points. Callers must also
// cancel any armed timer.
func (r *Room) resetToLobby() {
	r.bump()
	r.Phase = PhaseLobby
	r.Messages = nil
	r.TimerEndsAt = 0
	r.RoundNumber = 1

	for _, p := range r.Players {
		p.VotedFor = ""
		p.Mafia = nil
	}

	switch r.GameType {
	case GameMafia:
		r.Mafia = newMafiaState()
	default:
		used := r.Word.UsedWords
		r.Word = newWordState()
		r.Word.UsedWords = used
	}
}

func newWordState() *WordState {
	return &WordState{
		Ready: make(map[string]bool),
	}
}

func newMafiaState() *MafiaState {
	return &MafiaState{
		Ready: make(map[string]bool),
	}
}
