package main

import (
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// Point awards for the whos-out voting phase.
const (
	pointsCorrectVote  = 10
	pointsOddSelfVote  = 15
	pointsOddSelfBonus = 5
)

// WordEngine runs the odd-one-out word game. All methods expect the caller
// to hold the room lock.
type WordEngine struct {
	cfg   *Config
	packs *WordPacks
	sched *PhaseScheduler
}

func NewWordEngine(cfg *Config, packs *WordPacks, sched *PhaseScheduler) *WordEngine {
	return &WordEngine{
		cfg:   cfg,
		packs: packs,
		sched: sched,
	}
}

// pickOddOneOut selects the decoy uniformly at random. When the room policy
// forbids repeats, it re-rolls until the pick differs from last round's.
func pickOddOneOut(room *Room) string {
	players := room.Players
	idx := rand.Intn(len(players))

	if room.Settings.PreventRepeatOddOne && len(players) > 1 {
		for players[idx].ID == room.Word.LastOddID {
			idx = rand.Intn(len(players))
		}
	}

	return players[idx].ID
}

// startRound deals a fresh word pair and decoy and opens discussion. Shared
// by StartGame and NextRound.
func (e *WordEngine) startRound(room *Room) {
	pair := e.packs.PickPair(room.Settings, room.Word.UsedWords)
	room.Word.CurrentPair = &pair
	room.Word.UsedWords = append(room.Word.UsedWords, pair.Normal)

	room.Word.LastOddID = room.Word.OddOneOutID
	room.Word.OddOneOutID = pickOddOneOut(room)

	for _, p := range room.Players {
		p.VotedFor = ""
	}
	room.Word.Ready = make(map[string]bool)
	room.Messages = nil

	room.bump()
	room.Phase = PhaseDiscussion
	room.TimerEndsAt = 0
	room.touch()

	if room.Settings.EnableTimer {
		d := time.Duration(room.Settings.DiscussionTimeMinutes) * time.Minute
		e.sched.Arm(room, d, e.expireDiscussion)
	}

	log.Debug().Str("code", room.Code).Int("round", room.RoundNumber).Msg("GAMES: Started whos-out round")
}

func (e *WordEngine) StartGame(room *Room) error {
	if room.Phase != PhaseLobby {
		return errGameInProgress
	}
	if len(room.Players) < minWordPlayers {
		return errNotEnoughPlayers
	}

	room.RoundNumber = 1
	e.startRound(room)
	return nil
}

func (e *WordEngine) NextRound(room *Room) error {
	if room.Phase != PhaseReveal {
		return errInvalidPhase
	}

	room.RoundNumber++
	e.startRound(room)
	return nil
}

// ReadyToVote flags a player as done discussing. A strict majority of
// distinct players forces the room into voting early.
func (e *WordEngine) ReadyToVote(room *Room, playerID string) error {
	if room.Phase != PhaseDiscussion {
		return errInvalidPhase
	}
	if room.player(playerID) == nil {
		return errPlayerNotFound
	}

	room.Word.Ready[playerID] = true
	room.touch()

	majority := (len(room.Players) + 1) / 2
	if len(room.Word.Ready) >= majority {
		e.startVoting(room)
	}
	return nil
}

func (e *WordEngine) startVoting(room *Room) {
	room.bump()
	room.Phase = PhaseVoting
	room.Word.Ready = make(map[string]bool)
	for _, p := range room.Players {
		p.VotedFor = ""
	}

	e.sched.Arm(room, e.cfg.votingTimeout, e.expireVoting)
}

// SubmitVote records a vote and awards points. A second vote by the same
// player is rejected before any state changes.
func (e *WordEngine) SubmitVote(room *Room, playerID, targetID string) error {
	if room.Phase != PhaseVoting {
		return errInvalidPhase
	}
	player := room.player(playerID)
	if player == nil {
		return errPlayerNotFound
	}
	if player.VotedFor != "" {
		return errAlreadyVoted
	}
	if room.player(targetID) == nil {
		return errUnknownTarget
	}

	player.VotedFor = targetID
	room.touch()

	if targetID == room.Word.OddOneOutID {
		if playerID == room.Word.OddOneOutID {
			player.Points += pointsOddSelfVote
		} else {
			player.Points += pointsCorrectVote
		}
	}

	if allVoted(room.Players) {
		odd := room.player(room.Word.OddOneOutID)
		if odd != nil && odd.VotedFor == room.Word.OddOneOutID {
			odd.Points += pointsOddSelfBonus
		}
		e.reveal(room)
	}
	return nil
}

func allVoted(players []*Player) bool {
	for _, p := range players {
		if p.VotedFor == "" {
			return false
		}
	}
	return true
}

func (e *WordEngine) reveal(room *Room) {
	room.bump()
	room.Phase = PhaseReveal
	room.TimerEndsAt = 0
	e.sched.Cancel(room.Code)
}

// expireDiscussion fires when an enabled discussion timer runs out.
func (e *WordEngine) expireDiscussion(room *Room) {
	if room.Phase != PhaseDiscussion {
		return
	}
	e.startVoting(room)
}

// expireVoting assigns a random vote to anyone who never voted, then moves
// to reveal. Auto-votes earn no points.
func (e *WordEngine) expireVoting(room *Room) {
	if room.Phase != PhaseVoting {
		return
	}

	for _, p := range room.Players {
		if p.VotedFor == "" {
			p.VotedFor = room.Players[rand.Intn(len(room.Players))].ID
		}
	}
	e.reveal(room)
}
