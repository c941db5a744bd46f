package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		votingTimeout:      time.Minute,
		nightActionTimeout: 20 * time.Second,
		killActionTimeout:  30 * time.Second,
		sessionTimeout:     time.Hour,
	}
}

func newWordFixture(t *testing.T, names ...string) (*WordEngine, *RoomStore, *Room) {
	t.Helper()

	packs, err := loadWordPacks()
	require.NoError(t, err)

	sched := NewPhaseScheduler()
	engine := NewWordEngine(testConfig(), packs, sched)
	store := NewRoomStore()

	room, _ := store.CreateRoom(names[0], GameWhosOut, false, "", 10)
	room.lock()
	defer room.unlock()
	for _, name := range names[1:] {
		_, err := addPlayer(room, name)
		require.NoError(t, err)
	}

	return engine, store, room
}

func TestStartGameDealsWordAndOddOne(t *testing.T) {
	engine, _, room := newWordFixture(t, "Alice", "Bob", "Cara")

	room.lock()
	defer room.unlock()

	require.NoError(t, engine.StartGame(room))

	assert.Equal(t, PhaseDiscussion, room.Phase)
	require.NotNil(t, room.Word.CurrentPair)
	assert.NotEmpty(t, room.Word.CurrentPair.Normal)
	assert.NotEmpty(t, room.Word.CurrentPair.Odd)
	assert.NotNil(t, room.player(room.Word.OddOneOutID), "odd one must be a room player")
	assert.Equal(t, 1, room.RoundNumber)
}

func TestStartGameRequiresThreePlayers(t *testing.T) {
	engine, _, room := newWordFixture(t, "Alice", "Bob")

	room.lock()
	defer room.unlock()

	err := engine.StartGame(room)
	assert.ErrorIs(t, err, errNotEnoughPlayers)
	assert.Equal(t, PhaseLobby, room.Phase)
	assert.Nil(t, room.Word.CurrentPair)
	assert.Empty(t, room.Word.OddOneOutID)
}

func TestStartGameRejectedMidGame(t *testing.T) {
	engine, _, room := newWordFixture(t, "Alice", "Bob", "Cara")

	room.lock()
	defer room.unlock()

	require.NoError(t, engine.StartGame(room))
	assert.ErrorIs(t, engine.StartGame(room), errGameInProgress)
}

func TestReadyToVoteQuorum(t *testing.T) {
	engine, _, room := newWordFixture(t, "Alice", "Bob", "Cara")

	room.lock()
	defer room.unlock()

	require.NoError(t, engine.StartGame(room))

	// One of three is not a majority.
	require.NoError(t, engine.ReadyToVote(room, room.Players[0].ID))
	assert.Equal(t, PhaseDiscussion, room.Phase)

	// The same player flagging again must not move the count.
	require.NoError(t, engine.ReadyToVote(room, room.Players[0].ID))
	assert.Equal(t, PhaseDiscussion, room.Phase)
	assert.Len(t, room.Word.Ready, 1)

	// A second distinct player reaches ceil(3/2) = 2.
	require.NoError(t, engine.ReadyToVote(room, room.Players[1].ID))
	assert.Equal(t, PhaseVoting, room.Phase)
	assert.Empty(t, room.Word.Ready, "ready set resets on advance")
}

func TestDoubleVoteIsNoOp(t *testing.T) {
	engine, _, room := newWordFixture(t, "Alice", "Bob", "Cara")

	room.lock()
	defer room.unlock()

	require.NoError(t, engine.StartGame(room))
	engine.startVoting(room)

	voter := room.Players[0]
	first := room.Players[1].ID
	require.NoError(t, engine.SubmitVote(room, voter.ID, first))

	pointsBefore := voter.Points
	err := engine.SubmitVote(room, voter.ID, room.Players[2].ID)
	assert.ErrorIs(t, err, errAlreadyVoted)
	assert.Equal(t, first, voter.VotedFor)
	assert.Equal(t, pointsBefore, voter.Points)
}

func TestVotingScoresAndReveal(t *testing.T) {
	engine, _, room := newWordFixture(t, "Alice", "Bob", "Cara")

	room.lock()
	defer room.unlock()

	require.NoError(t, engine.StartGame(room))
	engine.startVoting(room)
	require.True(t, engine.sched.Armed(room.Code))

	oddID := room.Word.OddOneOutID
	for _, p := range room.Players {
		require.NoError(t, engine.SubmitVote(room, p.ID, oddID))
	}

	assert.Equal(t, PhaseReveal, room.Phase)
	assert.Zero(t, room.TimerEndsAt)
	assert.False(t, engine.sched.Armed(room.Code), "voting timer must be cancelled on early completion")

	for _, p := range room.Players {
		if p.ID == oddID {
			// +15 for the self-vote, +5 bonus at close.
			assert.Equal(t, pointsOddSelfVote+pointsOddSelfBonus, p.Points)
		} else {
			assert.Equal(t, pointsCorrectVote, p.Points)
		}
	}
}

func TestVotingExpiryAssignsRandomVotes(t *testing.T) {
	engine, _, room := newWordFixture(t, "Alice", "Bob", "Cara")

	room.lock()
	defer room.unlock()

	require.NoError(t, engine.StartGame(room))
	engine.startVoting(room)
	require.NoError(t, engine.SubmitVote(room, room.Players[0].ID, room.Players[1].ID))

	engine.expireVoting(room)

	assert.Equal(t, PhaseReveal, room.Phase)
	for _, p := range room.Players {
		assert.NotEmpty(t, p.VotedFor)
	}
}

func TestNextRoundResetsRoundState(t *testing.T) {
	engine, _, room := newWordFixture(t, "Alice", "Bob", "Cara")

	room.lock()
	defer room.unlock()

	require.NoError(t, engine.StartGame(room))
	room.Messages = append(room.Messages, newMessage(room.Players[0].ID, "Alice", "hello"))
	engine.startVoting(room)
	engine.expireVoting(room)
	require.Equal(t, PhaseReveal, room.Phase)

	firstWord := room.Word.CurrentPair.Normal
	require.NoError(t, engine.NextRound(room))

	assert.Equal(t, PhaseDiscussion, room.Phase)
	assert.Equal(t, 2, room.RoundNumber)
	assert.Empty(t, room.Messages)
	assert.Contains(t, room.Word.UsedWords, firstWord)
	for _, p := range room.Players {
		assert.Empty(t, p.VotedFor)
	}
}

func TestNextRoundOnlyFromReveal(t *testing.T) {
	engine, _, room := newWordFixture(t, "Alice", "Bob", "Cara")

	room.lock()
	defer room.unlock()

	require.NoError(t, engine.StartGame(room))
	assert.ErrorIs(t, engine.NextRound(room), errInvalidPhase)
}

func TestPreventRepeatOddOnePolicy(t *testing.T) {
	engine, _, room := newWordFixture(t, "Alice", "Bob", "Cara")

	room.lock()
	defer room.unlock()

	room.Settings.PreventRepeatOddOne = true
	require.NoError(t, engine.StartGame(room))

	last := room.Word.OddOneOutID
	for i := 0; i < 20; i++ {
		engine.startVoting(room)
		engine.expireVoting(room)
		require.NoError(t, engine.NextRound(room))

		assert.NotEqual(t, last, room.Word.OddOneOutID)
		last = room.Word.OddOneOutID
	}
}

func TestPickPairHonorsCategoryFilter(t *testing.T) {
	packs, err := loadWordPacks()
	require.NoError(t, err)

	settings := Settings{Category: "animals"}
	pack := packs.eligible(settings)
	require.Len(t, pack, 1)
	assert.Equal(t, "animals", pack[0].Name)

	// Excluding every category falls back to the full set.
	settings = Settings{ExcludedCategories: packs.Categories()}
	assert.Len(t, packs.eligible(settings), len(packs.packs))
}

func TestPickPairAvoidsUsedWords(t *testing.T) {
	packs, err := loadWordPacks()
	require.NoError(t, err)

	settings := Settings{Category: "animals"}
	var used []string
	for i := 0; i < 8; i++ {
		pair := packs.PickPair(settings, used)
		assert.NotContains(t, used, pair.Normal)
		used = append(used, pair.Normal)
	}
}
