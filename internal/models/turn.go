package models

type Role string

const (
	RoleUser      Role = "user"
	RoleCharacter Role = "character"
	// RoleFailure marks a request that did not produce a character reply. Failure turns are only kept in the
	// session's own log and never enter the shared transcript.
	RoleFailure Role = "failure"
)

// Turn is a single utterance in a conversation.
type Turn struct {
	// Sequence is assigned by the shared transcript and defines the global order. Zero for turns that never
	// entered the shared transcript.
	Sequence int64
	Role     Role
	// CharacterID is the speaking character. Empty for user turns.
	CharacterID CharacterID
	// Audience is the character a user turn was addressed to.
	Audience CharacterID
	// Speaker is the display name of whoever produced the turn, without any formatting.
	Speaker string
	Content string
}
