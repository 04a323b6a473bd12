package domain

import "errors"

var (
	// ErrRoomNotFound is returned when no live room exists for a code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomEnded is returned when registering against a finished room.
	ErrRoomEnded = errors.New("room has ended")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrInvalidIdentity is returned when a participant id is not in the roster.
	ErrInvalidIdentity = errors.New("unknown participant identity")
	// ErrInvalidTransition rejects an out-of-order state machine request.
	ErrInvalidTransition = errors.New("invalid room transition")
	// ErrNoParticipants rejects starting a quiz with an empty lobby.
	ErrNoParticipants = errors.New("no participants in room")
	// ErrStaleQuestion rejects an answer for a question that is no longer active.
	ErrStaleQuestion = errors.New("question is no longer active")
	// ErrAlreadyAnswered rejects a second answer for the same question.
	ErrAlreadyAnswered = errors.New("participant already answered")
	// ErrRoomNotLive rejects answers outside the live phase.
	ErrRoomNotLive = errors.New("room is not accepting answers")
	// ErrDuplicateAvatarSeed rejects an avatar seed already held by another participant.
	ErrDuplicateAvatarSeed = errors.New("avatar seed already in use")
	// ErrParticipantKicked rejects actions from a removed participant.
	ErrParticipantKicked = errors.New("participant was removed from the room")
)
