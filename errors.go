package main

import "errors"

// Validation failures reported to the offending connection only.
// None of these ever mutate room state.
var (
	errAlreadyVoted     = errors.New("you have already voted this round")
	errGameInProgress   = errors.New("the game has already started")
	errInvalidAction    = errors.New("that action is not available to you right now")
	errInvalidPhase     = errors.New("that action is not valid in the current phase")
	errNotEnoughPlayers = errors.New("not enough players to start the game")
	errNotHost          = errors.New("only the host can do that")
	errPlayerNotFound   = errors.New("player not found")
	errRoomFull         = errors.New("the room is full")
	errRoomNotFound     = errors.New("room not found")
	errUnknownTarget    = errors.New("unknown target player")
)
