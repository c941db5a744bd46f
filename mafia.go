package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

type Role string

const (
	RoleMafia        Role = "mafia"
	RoleMafiaBoss    Role = "mafia_boss"
	RoleCivilian     Role = "civilian"
	RoleDetective    Role = "detective"
	RoleDoctor       Role = "doctor"
	RoleSpy          Role = "spy"
	RoleWatcher      Role = "watcher"
	RoleBodyguard    Role = "bodyguard"
	RoleSerialKiller Role = "serial_killer"
	RoleJester       Role = "jester"
)

type Team string

const (
	TeamMafia       Team = "mafia"
	TeamTown        Team = "town"
	TeamIndependent Team = "independent"
)

type ActionType string

const (
	ActionKill        ActionType = "kill"
	ActionProtect     ActionType = "protect"
	ActionInvestigate ActionType = "investigate"
	ActionWatch       ActionType = "watch"
	ActionGuard       ActionType = "guard"
)

const minMafiaPlayers = 6

func teamForRole(role Role) Team {
	switch role {
	case RoleMafia, RoleMafiaBoss:
		return TeamMafia
	case RoleSerialKiller, RoleJester:
		return TeamIndependent
	default:
		return TeamTown
	}
}

// roleDistribution scales the deal with the lobby size: roughly 22% mafia
// (a boss replaces one mafia from 12 players up), always one detective and
// one doctor, special roles at fixed thresholds, civilians for the rest.
func roleDistribution(playerCount int) []Role {
	if playerCount < minMafiaPlayers {
		return nil
	}

	mafiaCount := playerCount * 22 / 100
	if mafiaCount < 2 {
		mafiaCount = 2
	}

	roles := make([]Role, 0, playerCount)
	if playerCount >= 12 {
		roles = append(roles, RoleMafiaBoss)
		for i := 1; i < mafiaCount; i++ {
			roles = append(roles, RoleMafia)
		}
	} else {
		for i := 0; i < mafiaCount; i++ {
			roles = append(roles, RoleMafia)
		}
	}

	roles = append(roles, RoleDetective, RoleDoctor)

	if playerCount >= 15 {
		roles = append(roles, RoleSpy)
	}
	if playerCount >= 18 {
		roles = append(roles, RoleWatcher)
	}
	if playerCount >= 20 {
		roles = append(roles, RoleSerialKiller)
	}
	if playerCount >= 25 {
		roles = append(roles, RoleBodyguard)
	}

	for len(roles) < playerCount {
		roles = append(roles, RoleCivilian)
	}

	return roles
}

// assignRoles shuffles the distribution onto a shuffled player order.
func assignRoles(room *Room) {
	roles := roleDistribution(len(room.Players))

	rand.Shuffle(len(roles), func(i, j int) {
		roles[i], roles[j] = roles[j], roles[i]
	})

	order := make([]*Player, len(room.Players))
	copy(order, room.Players)
	rand.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})

	for i, p := range order {
		role := roles[i]
		p.Mafia = &MafiaPlayerState{
			Role:  role,
			Team:  teamForRole(role),
			Alive: true,
		}
	}
}

func aliveCounts(room *Room) (mafia, town, independent int) {
	for _, p := range room.Players {
		if p.Mafia == nil || !p.Mafia.Alive {
			continue
		}
		switch p.Mafia.Team {
		case TeamMafia:
			mafia++
		case TeamTown:
			town++
		default:
			independent++
		}
	}
	return mafia, town, independent
}

// winCheck returns the winning team, or "" while the game continues.
func winCheck(room *Room) Team {
	mafia, town, _ := aliveCounts(room)

	if mafia >= town && mafia > 0 {
		return TeamMafia
	}
	if mafia == 0 && town > 0 {
		return TeamTown
	}

	alive := 0
	var last *Player
	for _, p := range room.Players {
		if p.Mafia != nil && p.Mafia.Alive {
			alive++
			last = p
		}
	}
	if alive == 1 && last.Mafia.Role == RoleSerialKiller {
		return TeamIndependent
	}

	return ""
}

// MafiaEngine runs the elimination game. All methods expect the caller to
// hold the room lock.
type MafiaEngine struct {
	cfg   *Config
	sched *PhaseScheduler
}

func NewMafiaEngine(cfg *Config, sched *PhaseScheduler) *MafiaEngine {
	return &MafiaEngine{
		cfg:   cfg,
		sched: sched,
	}
}

func (e *MafiaEngine) StartGame(room *Room) error {
	if room.Phase != PhaseLobby {
		return errGameInProgress
	}
	if len(room.Players) < minMafiaPlayers {
		return errNotEnoughPlayers
	}

	assignRoles(room)
	room.RoundNumber = 1
	e.startNight(room)

	log.Debug().Str("code", room.Code).Int("players", len(room.Players)).Msg("GAMES: Started mafia game")
	return nil
}

func (e *MafiaEngine) NextRound(room *Room) error {
	if room.Phase != PhaseReveal {
		return errInvalidPhase
	}

	room.RoundNumber++
	e.startNight(room)
	return nil
}

func (e *MafiaEngine) startNight(room *Room) {
	room.bump()
	room.Phase = PhaseNight
	room.TimerEndsAt = 0
	room.Messages = nil
	room.Mafia.NightActions = nil
	room.Mafia.CurrentNightRole = ""
	room.Mafia.NightResult = ""
	room.Mafia.Ready = make(map[string]bool)
	for _, p := range room.Players {
		p.VotedFor = ""
		if p.Mafia != nil {
			p.Mafia.InvestigationResult = ""
			p.Mafia.WatchResult = nil
		}
	}
	room.touch()

	e.advanceNightRole(room)
}

// advanceNightRole steps the night-order state machine. When the order is
// exhausted the night resolves and the day begins.
func (e *MafiaEngine) advanceNightRole(room *Room) {
	next := nextNightRole(room)
	if next == "" {
		e.endNight(room)
		return
	}

	room.bump()
	room.Mafia.CurrentNightRole = next

	window := e.cfg.nightActionTimeout
	if actionForRole(next) == ActionKill {
		window = e.cfg.killActionTimeout
	}
	e.sched.Arm(room, window, e.expireNightRole)
}

// NightAction records one role-targeted action. Re-submitting re-targets
// rather than stacking.
func (e *MafiaEngine) NightAction(room *Room, playerID string, actionType ActionType, targetID string) error {
	if room.Phase != PhaseNight {
		return errInvalidPhase
	}
	player := room.player(playerID)
	if player == nil {
		return errPlayerNotFound
	}
	if player.Mafia == nil || !player.Mafia.Alive {
		return errInvalidAction
	}
	if player.Mafia.Role != room.Mafia.CurrentNightRole {
		return errInvalidAction
	}
	if actionForRole(player.Mafia.Role) != actionType {
		return errInvalidAction
	}
	target := room.player(targetID)
	if target == nil || target.Mafia == nil || !target.Mafia.Alive {
		return errUnknownTarget
	}

	replaced := false
	for i := range room.Mafia.NightActions {
		if room.Mafia.NightActions[i].PlayerID == playerID {
			room.Mafia.NightActions[i].TargetID = targetID
			replaced = true
			break
		}
	}
	if !replaced {
		room.Mafia.NightActions = append(room.Mafia.NightActions, NightAction{
			PlayerID:   playerID,
			ActionType: actionType,
			TargetID:   targetID,
		})
	}
	room.touch()

	if e.allHoldersActed(room) {
		e.advanceNightRole(room)
	}
	return nil
}

func (e *MafiaEngine) allHoldersActed(room *Room) bool {
	acted := make(map[string]bool, len(room.Mafia.NightActions))
	for _, a := range room.Mafia.NightActions {
		acted[a.PlayerID] = true
	}

	for _, p := range room.Players {
		if p.Mafia == nil || !p.Mafia.Alive {
			continue
		}
		if p.Mafia.Role == room.Mafia.CurrentNightRole && !acted[p.ID] {
			return false
		}
	}
	return true
}

// EndNight is the host's manual advance past the current night role.
func (e *MafiaEngine) EndNight(room *Room) error {
	if room.Phase != PhaseNight {
		return errInvalidPhase
	}
	e.advanceNightRole(room)
	return nil
}

func (e *MafiaEngine) expireNightRole(room *Room) {
	if room.Phase != PhaseNight {
		return
	}
	e.advanceNightRole(room)
}

// endNight resolves the collected actions and opens the day, unless the
// deaths already decided the game.
func (e *MafiaEngine) endNight(room *Room) {
	deaths, summary := resolveNight(room)
	room.Mafia.NightResult = summary

	if len(deaths) > 0 {
		if winner := winCheck(room); winner != "" {
			e.gameOver(room, winner)
			return
		}
	}

	room.bump()
	room.Phase = PhaseDay
	room.TimerEndsAt = 0
	room.Mafia.CurrentNightRole = ""
	room.Mafia.Ready = make(map[string]bool)
	room.touch()

	if room.Settings.EnableTimer {
		d := time.Duration(room.Settings.DiscussionTimeMinutes) * time.Minute
		e.sched.Arm(room, d, e.expireDay)
	}
}

func (e *MafiaEngine) expireDay(room *Room) {
	if room.Phase != PhaseDay {
		return
	}
	e.startVoting(room)
}

func aliveCount(room *Room) int {
	n := 0
	for _, p := range room.Players {
		if p.Mafia != nil && p.Mafia.Alive {
			n++
		}
	}
	return n
}

// ReadyToVote mirrors the word game's quorum, counting living players only.
func (e *MafiaEngine) ReadyToVote(room *Room, playerID string) error {
	if room.Phase != PhaseDay {
		return errInvalidPhase
	}
	player := room.player(playerID)
	if player == nil {
		return errPlayerNotFound
	}
	if player.Mafia == nil || !player.Mafia.Alive {
		return errInvalidAction
	}

	room.Mafia.Ready[playerID] = true
	room.touch()

	majority := (aliveCount(room) + 1) / 2
	if len(room.Mafia.Ready) >= majority {
		e.startVoting(room)
	}
	return nil
}

func (e *MafiaEngine) startVoting(room *Room) {
	room.bump()
	room.Phase = PhaseVoting
	room.Mafia.Ready = make(map[string]bool)
	for _, p := range room.Players {
		p.VotedFor = ""
	}

	e.sched.Arm(room, e.cfg.votingTimeout, e.expireVoting)
}

func (e *MafiaEngine) SubmitVote(room *Room, playerID, targetID string) error {
	if room.Phase != PhaseVoting {
		return errInvalidPhase
	}
	player := room.player(playerID)
	if player == nil {
		return errPlayerNotFound
	}
	if player.Mafia == nil || !player.Mafia.Alive {
		return errInvalidAction
	}
	if player.VotedFor != "" {
		return errAlreadyVoted
	}
	target := room.player(targetID)
	if target == nil || target.Mafia == nil || !target.Mafia.Alive {
		return errUnknownTarget
	}

	player.VotedFor = targetID
	room.touch()

	for _, p := range room.Players {
		if p.Mafia != nil && p.Mafia.Alive && p.VotedFor == "" {
			return nil
		}
	}
	e.tallyVotes(room)
	return nil
}

func (e *MafiaEngine) expireVoting(room *Room) {
	if room.Phase != PhaseVoting {
		return
	}
	e.tallyVotes(room)
}

// tallyVotes eliminates the plurality target. A tie eliminates no one: the
// town could not decide, and the round moves on.
func (e *MafiaEngine) tallyVotes(room *Room) {
	counts := make(map[string]int)
	for _, p := range room.Players {
		if p.Mafia != nil && p.Mafia.Alive && p.VotedFor != "" {
			counts[p.VotedFor]++
		}
	}

	max := 0
	leaders := []string{}
	for id, n := range counts {
		switch {
		case n > max:
			max = n
			leaders = []string{id}
		case n == max:
			leaders = append(leaders, id)
		}
	}

	if len(leaders) == 1 {
		eliminated := room.player(leaders[0])
		if eliminated != nil && eliminated.Mafia != nil && eliminated.Mafia.Alive {
			eliminated.Mafia.Alive = false
			room.Mafia.NightResult = fmt.Sprintf("%s was voted out.", eliminated.Name)
		}
	} else {
		room.Mafia.NightResult = "The vote was tied; no one was eliminated."
	}

	if winner := winCheck(room); winner != "" {
		e.gameOver(room, winner)
		return
	}

	room.bump()
	room.Phase = PhaseReveal
	room.TimerEndsAt = 0
	e.sched.Cancel(room.Code)
}

func (e *MafiaEngine) gameOver(room *Room, winner Team) {
	room.bump()
	room.Phase = PhaseGameOver
	room.TimerEndsAt = 0
	room.Mafia.Winner = winner
	e.sched.Cancel(room.Code)
	room.touch()

	log.Debug().Str("code", room.Code).Str("winner", string(winner)).Msg("GAMES: Mafia game over")
}

// MafiaChat appends to the mafia-only channel. Living mafia members only.
func (e *MafiaEngine) MafiaChat(room *Room, playerID, text string) error {
	if room.Phase != PhaseNight {
		return errInvalidPhase
	}
	player := room.player(playerID)
	if player == nil {
		return errPlayerNotFound
	}
	if player.Mafia == nil || !player.Mafia.Alive || player.Mafia.Team != TeamMafia {
		return errInvalidAction
	}

	room.Mafia.MafiaChat = append(room.Mafia.MafiaChat, newMessage(playerID, player.Name, text))
	room.touch()
	return nil
}
