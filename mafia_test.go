package main

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMafiaRoom builds a room with fixed roles assigned in player order, so
// tests are not at the mercy of the shuffle.
func newMafiaRoom(roles ...Role) *Room {
	room := &Room{
		Code:        "TEST01",
		GameType:    GameMafia,
		Phase:       PhaseLobby,
		RoundNumber: 1,
		Settings:    defaultSettings(),
		MaxPlayers:  30,
		Pending:     make(map[string]string),
		Mafia:       newMafiaState(),
		LastActive:  time.Now(),
	}
	for i, role := range roles {
		room.Players = append(room.Players, &Player{
			ID:          fmt.Sprintf("p%d", i),
			Name:        fmt.Sprintf("Player%d", i),
			IsConnected: true,
			Mafia: &MafiaPlayerState{
				Role:  role,
				Team:  teamForRole(role),
				Alive: true,
			},
		})
	}
	if len(room.Players) > 0 {
		room.HostID = room.Players[0].ID
		room.Players[0].IsHost = true
	}
	return room
}

func newMafiaEngineForTest() *MafiaEngine {
	return NewMafiaEngine(testConfig(), NewPhaseScheduler())
}

func TestRoleDistributionSizes(t *testing.T) {
	assert.Nil(t, roleDistribution(5), "below the minimum no deal exists")

	for _, n := range []int{6, 10, 12, 15, 18, 20, 25} {
		roles := roleDistribution(n)
		assert.Len(t, roles, n, "deal must cover every seat at %d players", n)
	}
}

func TestRoleDistributionThresholds(t *testing.T) {
	count := func(roles []Role, want Role) int {
		n := 0
		for _, r := range roles {
			if r == want {
				n++
			}
		}
		return n
	}

	six := roleDistribution(6)
	assert.Equal(t, 2, count(six, RoleMafia))
	assert.Equal(t, 0, count(six, RoleMafiaBoss))
	assert.Equal(t, 1, count(six, RoleDetective))
	assert.Equal(t, 1, count(six, RoleDoctor))
	assert.Equal(t, 2, count(six, RoleCivilian))

	twelve := roleDistribution(12)
	assert.Equal(t, 1, count(twelve, RoleMafiaBoss), "boss appears from 12 players")
	assert.Equal(t, 1, count(twelve, RoleMafia))

	twenty := roleDistribution(20)
	assert.Equal(t, 1, count(twenty, RoleSpy))
	assert.Equal(t, 1, count(twenty, RoleWatcher))
	assert.Equal(t, 1, count(twenty, RoleSerialKiller))
	assert.Equal(t, 0, count(twenty, RoleBodyguard), "bodyguard needs 25 players")

	twentyfive := roleDistribution(25)
	assert.Equal(t, 1, count(twentyfive, RoleBodyguard))
}

func TestTeamForRole(t *testing.T) {
	assert.Equal(t, TeamMafia, teamForRole(RoleMafia))
	assert.Equal(t, TeamMafia, teamForRole(RoleMafiaBoss))
	assert.Equal(t, TeamIndependent, teamForRole(RoleSerialKiller))
	assert.Equal(t, TeamTown, teamForRole(RoleDetective))
	assert.Equal(t, TeamTown, teamForRole(RoleCivilian))
}

func TestWinCheck(t *testing.T) {
	// Parity: two mafia against two town is a mafia win.
	room := newMafiaRoom(RoleMafia, RoleMafia, RoleCivilian, RoleCivilian)
	assert.Equal(t, TeamMafia, winCheck(room))

	// All mafia dead with town standing is a town win.
	room = newMafiaRoom(RoleMafia, RoleCivilian, RoleCivilian, RoleCivilian)
	room.Players[0].Mafia.Alive = false
	assert.Equal(t, TeamTown, winCheck(room))

	// A lone surviving serial killer takes it.
	room = newMafiaRoom(RoleSerialKiller, RoleMafia, RoleCivilian)
	room.Players[1].Mafia.Alive = false
	room.Players[2].Mafia.Alive = false
	assert.Equal(t, TeamIndependent, winCheck(room))

	// Two mafia against four town continues.
	room = newMafiaRoom(RoleMafia, RoleMafia, RoleCivilian, RoleCivilian, RoleCivilian, RoleDoctor)
	assert.Equal(t, Team(""), winCheck(room))
}

func TestMafiaStartGameRequiresSixPlayers(t *testing.T) {
	engine := newMafiaEngineForTest()
	store := NewRoomStore()

	room, _ := store.CreateRoom("Host", GameMafia, false, "", 30)
	room.lock()
	defer room.unlock()
	for i := 0; i < 4; i++ {
		_, err := addPlayer(room, fmt.Sprintf("Guest%d", i))
		require.NoError(t, err)
	}

	assert.ErrorIs(t, engine.StartGame(room), errNotEnoughPlayers)
	assert.Equal(t, PhaseLobby, room.Phase)

	_, err := addPlayer(room, "Guest4")
	require.NoError(t, err)
	require.NoError(t, engine.StartGame(room))

	assert.Equal(t, PhaseNight, room.Phase)
	assert.Equal(t, RoleMafia, room.Mafia.CurrentNightRole, "mafia wake first")
	for _, p := range room.Players {
		require.NotNil(t, p.Mafia)
		assert.True(t, p.Mafia.Alive)
		assert.NotEmpty(t, p.Mafia.Role)
	}
	assert.True(t, engine.sched.Armed(room.Code))
}

func TestNightActionValidation(t *testing.T) {
	engine := newMafiaEngineForTest()
	room := newMafiaRoom(RoleMafia, RoleMafia, RoleDetective, RoleDoctor, RoleCivilian, RoleCivilian)
	room.lock()
	defer room.unlock()
	engine.startNight(room)
	require.Equal(t, RoleMafia, room.Mafia.CurrentNightRole)

	// A role that is not awake cannot act.
	err := engine.NightAction(room, "p3", ActionProtect, "p4")
	assert.ErrorIs(t, err, errInvalidAction)

	// The action must match the role.
	err = engine.NightAction(room, "p0", ActionProtect, "p4")
	assert.ErrorIs(t, err, errInvalidAction)

	// Dead targets are off the table.
	room.Players[5].Mafia.Alive = false
	err = engine.NightAction(room, "p0", ActionKill, "p5")
	assert.ErrorIs(t, err, errUnknownTarget)

	// Re-submitting re-targets instead of stacking.
	require.NoError(t, engine.NightAction(room, "p0", ActionKill, "p4"))
	require.NoError(t, engine.NightAction(room, "p0", ActionKill, "p2"))
	require.Len(t, room.Mafia.NightActions, 1)
	assert.Equal(t, "p2", room.Mafia.NightActions[0].TargetID)
}

func TestNightRoleAdvancesWhenAllActed(t *testing.T) {
	engine := newMafiaEngineForTest()
	room := newMafiaRoom(RoleMafia, RoleMafia, RoleDetective, RoleDoctor, RoleCivilian, RoleCivilian)
	room.lock()
	defer room.unlock()
	engine.startNight(room)

	require.NoError(t, engine.NightAction(room, "p0", ActionKill, "p4"))
	assert.Equal(t, RoleMafia, room.Mafia.CurrentNightRole, "one of two mafia is not enough")

	require.NoError(t, engine.NightAction(room, "p1", ActionKill, "p4"))
	assert.Equal(t, RoleDoctor, room.Mafia.CurrentNightRole, "doctor wakes after the mafia")

	require.NoError(t, engine.NightAction(room, "p3", ActionProtect, "p4"))
	assert.Equal(t, RoleDetective, room.Mafia.CurrentNightRole)

	require.NoError(t, engine.NightAction(room, "p2", ActionInvestigate, "p0"))
	assert.Equal(t, PhaseDay, room.Phase, "night ends once the order is exhausted")
	assert.Equal(t, "A kill was attempted tonight, but the target was protected!", room.Mafia.NightResult)
	assert.Equal(t, "Player0 is mafia", room.Players[2].Mafia.InvestigationResult)
	assert.True(t, room.Players[4].Mafia.Alive, "protection blocks the kill")
}

func TestNightKillCanEndGame(t *testing.T) {
	engine := newMafiaEngineForTest()
	room := newMafiaRoom(RoleMafia, RoleMafia, RoleCivilian, RoleCivilian)
	room.lock()
	defer room.unlock()
	engine.startNight(room)

	require.NoError(t, engine.NightAction(room, "p0", ActionKill, "p2"))
	require.NoError(t, engine.NightAction(room, "p1", ActionKill, "p2"))

	assert.Equal(t, PhaseGameOver, room.Phase)
	assert.Equal(t, TeamMafia, room.Mafia.Winner)
	assert.False(t, engine.sched.Armed(room.Code))
}

func TestHostEndNightSkipsStalledRole(t *testing.T) {
	engine := newMafiaEngineForTest()
	room := newMafiaRoom(RoleMafia, RoleDetective, RoleDoctor, RoleCivilian, RoleCivilian, RoleCivilian)
	room.lock()
	defer room.unlock()
	engine.startNight(room)
	require.Equal(t, RoleMafia, room.Mafia.CurrentNightRole)

	require.NoError(t, engine.EndNight(room))
	assert.Equal(t, RoleDoctor, room.Mafia.CurrentNightRole, "host advance skips the silent mafia")

	assert.ErrorIs(t, engine.MafiaChat(room, "p1", "hi"), errInvalidAction)
	require.NoError(t, engine.MafiaChat(room, "p0", "who do we hit?"))
	assert.Len(t, room.Mafia.MafiaChat, 1)
}

func TestDayReadyQuorumCountsLivingOnly(t *testing.T) {
	engine := newMafiaEngineForTest()
	room := newMafiaRoom(RoleMafia, RoleMafia, RoleDetective, RoleDoctor, RoleCivilian, RoleCivilian)
	room.lock()
	defer room.unlock()

	room.Phase = PhaseDay
	room.Players[5].Mafia.Alive = false

	assert.ErrorIs(t, engine.ReadyToVote(room, "p5"), errInvalidAction)

	// Five alive, majority is three.
	require.NoError(t, engine.ReadyToVote(room, "p0"))
	require.NoError(t, engine.ReadyToVote(room, "p0"))
	require.NoError(t, engine.ReadyToVote(room, "p1"))
	assert.Equal(t, PhaseDay, room.Phase)

	require.NoError(t, engine.ReadyToVote(room, "p2"))
	assert.Equal(t, PhaseVoting, room.Phase)
}

func TestDayVotePluralityEliminates(t *testing.T) {
	engine := newMafiaEngineForTest()
	room := newMafiaRoom(RoleMafia, RoleMafia, RoleDoctor, RoleCivilian, RoleCivilian, RoleCivilian)
	room.lock()
	defer room.unlock()
	engine.startVoting(room)

	for _, voter := range []string{"p0", "p1", "p2", "p3"} {
		require.NoError(t, engine.SubmitVote(room, voter, "p4"))
	}
	require.NoError(t, engine.SubmitVote(room, "p4", "p0"))
	require.NoError(t, engine.SubmitVote(room, "p5", "p0"))

	assert.False(t, room.Players[4].Mafia.Alive)
	assert.Equal(t, "Player4 was voted out.", room.Mafia.NightResult)
	assert.Equal(t, PhaseReveal, room.Phase)
	assert.False(t, engine.sched.Armed(room.Code))
}

func TestDayVoteTieEliminatesNobody(t *testing.T) {
	engine := newMafiaEngineForTest()
	room := newMafiaRoom(RoleMafia, RoleMafia, RoleDoctor, RoleCivilian, RoleCivilian, RoleCivilian)
	room.lock()
	defer room.unlock()
	engine.startVoting(room)

	for _, voter := range []string{"p0", "p1", "p2"} {
		require.NoError(t, engine.SubmitVote(room, voter, "p4"))
	}
	for _, voter := range []string{"p3", "p4", "p5"} {
		require.NoError(t, engine.SubmitVote(room, voter, "p1"))
	}

	for _, p := range room.Players {
		assert.True(t, p.Mafia.Alive)
	}
	assert.Equal(t, "The vote was tied; no one was eliminated.", room.Mafia.NightResult)
	assert.Equal(t, PhaseReveal, room.Phase)
}

func TestDayVoteDoubleVoteRejected(t *testing.T) {
	engine := newMafiaEngineForTest()
	room := newMafiaRoom(RoleMafia, RoleMafia, RoleDoctor, RoleCivilian, RoleCivilian, RoleCivilian)
	room.lock()
	defer room.unlock()
	engine.startVoting(room)

	require.NoError(t, engine.SubmitVote(room, "p0", "p4"))
	assert.ErrorIs(t, engine.SubmitVote(room, "p0", "p5"), errAlreadyVoted)
	assert.Equal(t, "p4", room.Players[0].VotedFor)
}

func TestDayVoteCanEndGame(t *testing.T) {
	engine := newMafiaEngineForTest()

	// Voting out the last mafia hands the town the win.
	room := newMafiaRoom(RoleMafia, RoleCivilian, RoleCivilian, RoleCivilian)
	room.lock()
	engine.startVoting(room)
	for _, voter := range []string{"p0", "p1", "p2", "p3"} {
		require.NoError(t, engine.SubmitVote(room, voter, "p0"))
	}
	assert.Equal(t, PhaseGameOver, room.Phase)
	assert.Equal(t, TeamTown, room.Mafia.Winner)
	room.unlock()

	// Voting out a civilian at four alive tips parity to the mafia.
	room = newMafiaRoom(RoleMafia, RoleMafia, RoleCivilian, RoleCivilian)
	room.lock()
	defer room.unlock()
	engine.startVoting(room)
	for _, voter := range []string{"p0", "p1", "p3"} {
		require.NoError(t, engine.SubmitVote(room, voter, "p2"))
	}
	require.NoError(t, engine.SubmitVote(room, "p2", "p0"))
	assert.Equal(t, PhaseGameOver, room.Phase)
	assert.Equal(t, TeamMafia, room.Mafia.Winner)
}

func TestVotingExpiryTalliesPartialVotes(t *testing.T) {
	engine := newMafiaEngineForTest()
	room := newMafiaRoom(RoleMafia, RoleMafia, RoleDoctor, RoleCivilian, RoleCivilian, RoleCivilian)
	room.lock()
	defer room.unlock()
	engine.startVoting(room)

	require.NoError(t, engine.SubmitVote(room, "p0", "p4"))
	require.NoError(t, engine.SubmitVote(room, "p1", "p4"))

	engine.expireVoting(room)

	assert.False(t, room.Players[4].Mafia.Alive, "the sole leader is eliminated at expiry")
	assert.Equal(t, PhaseReveal, room.Phase)
}
