package models

// CharacterID identifies one of the characters the player can question.
type CharacterID string

const (
	CharacterDefendant    CharacterID = "defendant"
	CharacterHumanWitness CharacterID = "human-witness"
	CharacterAIWitness    CharacterID = "ai-witness"
)

// AllCharacters returns the fixed set of characters in presentation order.
func AllCharacters() []CharacterID {
	return []CharacterID{CharacterDefendant, CharacterHumanWitness, CharacterAIWitness}
}

// Valid reports whether id belongs to the fixed character set.
func (id CharacterID) Valid() bool {
	switch id {
	case CharacterDefendant, CharacterHumanWitness, CharacterAIWitness:
		return true
	default:
		return false
	}
}
