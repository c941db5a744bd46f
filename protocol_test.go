package main

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlayerWordVisibility(t *testing.T) {
	engine, _, room := newWordFixture(t, "Alice", "Bob", "Cara")

	room.lock()
	defer room.unlock()

	// No word exists in the lobby.
	snap := buildRoomState(room, room.Players[0].ID)
	assert.Nil(t, snap.PlayerWord)

	require.NoError(t, engine.StartGame(room))

	pair := room.Word.CurrentPair
	for _, p := range room.Players {
		snap := buildRoomState(room, p.ID)
		require.NotNil(t, snap.PlayerWord)
		if p.ID == room.Word.OddOneOutID {
			assert.Equal(t, pair.Odd, *snap.PlayerWord)
		} else {
			assert.Equal(t, pair.Normal, *snap.PlayerWord)
		}
	}
}

func TestWordSnapshotCarriesNoViewerSecrets(t *testing.T) {
	engine, _, room := newWordFixture(t, "Alice", "Bob", "Cara")

	room.lock()
	defer room.unlock()
	require.NoError(t, engine.StartGame(room))

	// Outside PlayerWord, every player must receive the identical room view;
	// anything that differs per viewer is a leak.
	a := buildRoomState(room, room.Players[0].ID)
	b := buildRoomState(room, room.Players[1].ID)

	if diff := cmp.Diff(a.Room, b.Room); diff != "" {
		t.Errorf("room view differs between viewers (-a +b):\n%s", diff)
	}
}

func TestMafiaRoleVisibility(t *testing.T) {
	room := newMafiaRoom(RoleMafia, RoleMafia, RoleDetective, RoleDoctor, RoleCivilian, RoleCivilian)
	room.Phase = PhaseNight
	room.Players[2].Mafia.InvestigationResult = "Player0 is mafia"
	room.Mafia.MafiaChat = append(room.Mafia.MafiaChat, newMessage("p0", "Player0", "target p4"))

	room.lock()
	defer room.unlock()

	// A townsperson sees only their own role and none of the mafia channel.
	town := buildRoomState(room, "p3")
	for _, pv := range town.Room.Players {
		require.NotNil(t, pv.Alive, "alive status is public")
		if pv.ID == "p3" {
			assert.Equal(t, string(RoleDoctor), pv.Role)
		} else {
			assert.Empty(t, pv.Role, "player %s role must stay hidden", pv.ID)
			assert.Empty(t, pv.Team)
		}
		assert.Empty(t, pv.InvestigationResult, "results belong to the investigator")
	}
	assert.Empty(t, town.Room.MafiaChat)

	// Mafia members recognize each other and share the night channel.
	mafia := buildRoomState(room, "p1")
	byID := make(map[string]playerView)
	for _, pv := range mafia.Room.Players {
		byID[pv.ID] = pv
	}
	assert.Equal(t, string(RoleMafia), byID["p0"].Role)
	assert.Equal(t, string(RoleMafia), byID["p1"].Role)
	assert.Empty(t, byID["p2"].Role, "town roles stay hidden from the mafia too")
	assert.Len(t, mafia.Room.MafiaChat, 1)

	// The detective's result reaches the detective alone.
	detective := buildRoomState(room, "p2")
	for _, pv := range detective.Room.Players {
		if pv.ID == "p2" {
			assert.Equal(t, "Player0 is mafia", pv.InvestigationResult)
		}
	}
}

func TestGameOverRevealsEverything(t *testing.T) {
	room := newMafiaRoom(RoleMafia, RoleMafia, RoleDetective, RoleDoctor, RoleCivilian, RoleCivilian)
	room.Phase = PhaseGameOver
	room.Mafia.Winner = TeamMafia
	room.Mafia.MafiaChat = append(room.Mafia.MafiaChat, newMessage("p0", "Player0", "gg"))

	room.lock()
	defer room.unlock()

	snap := buildRoomState(room, "p4")
	assert.Equal(t, string(TeamMafia), snap.Room.Winner)
	assert.Len(t, snap.Room.MafiaChat, 1)
	for _, pv := range snap.Room.Players {
		assert.NotEmpty(t, pv.Role, "every role is public once the game ends")
	}
}

func TestPendingRequestsAreHostOnly(t *testing.T) {
	store := NewRoomStore()
	room, host := store.CreateRoom("Host", GameWhosOut, false, "", 10)

	room.lock()
	defer room.unlock()

	guest, err := addPlayer(room, "Guest")
	require.NoError(t, err)
	_, err = requestJoin(room, "Mallory")
	require.NoError(t, err)

	assert.NotEmpty(t, buildRoomState(room, host.ID).Room.Pending)
	assert.Empty(t, buildRoomState(room, guest.ID).Room.Pending)
}

func TestBuildPublicRooms(t *testing.T) {
	store := NewRoomStore()
	room, _ := store.CreateRoom("Host", GameWhosOut, true, "casual", 8)

	got := buildPublicRooms(store.ListPublicRooms())

	want := publicRoomsMessage{
		Type: "public_rooms",
		Rooms: []publicRoomView{{
			Code:        room.Code,
			RoomName:    "casual",
			GameType:    string(GameWhosOut),
			PlayerCount: 1,
			MaxPlayers:  8,
		}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("public rooms mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshotMessagesNeverNil(t *testing.T) {
	store := NewRoomStore()
	room, host := store.CreateRoom("Host", GameWhosOut, false, "", 10)

	room.lock()
	defer room.unlock()

	snap := buildRoomState(room, host.ID)
	assert.NotNil(t, snap.Room.Messages, "clients expect an array, never null")
}
