// Package character defines the people the player can question.
//
// Every character is the same plain data shape; only the prompt text and identity differ. Session control flow
// lives in package conversation and works on the Character interface.
package character

import (
	"embed"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/myrjola/turingtrial/internal/errors"
	"github.com/myrjola/turingtrial/internal/models"
)

// Character is what a conversation session needs to know about whom it is talking to.
type Character interface {
	ID() models.CharacterID
	DisplayName() string
	SystemPrompt() string
}

// Persona is the data variant implementing Character.
type Persona struct {
	id          models.CharacterID
	displayName string
	prompt      string
}

func NewPersona(id models.CharacterID, displayName, prompt string) Persona {
	return Persona{id: id, displayName: displayName, prompt: prompt}
}

func (p Persona) ID() models.CharacterID {
	return p.id
}

func (p Persona) DisplayName() string {
	return p.displayName
}

func (p Persona) SystemPrompt() string {
	return p.prompt
}

//go:embed prompts/*.txt
var promptFS embed.FS

var promptFiles = map[models.CharacterID]string{
	models.CharacterDefendant:    "defendant.txt",
	models.CharacterHumanWitness: "human_witness.txt",
	models.CharacterAIWitness:    "ai_witness.txt",
}

var displayNames = map[models.CharacterID]string{
	models.CharacterDefendant:    "Daniel Harrow",
	models.CharacterHumanWitness: "Maria Okafor",
	models.CharacterAIWitness:    "ARIA",
}

func mustPrompt(id models.CharacterID) string {
	b, err := promptFS.ReadFile("prompts/" + promptFiles[id])
	if err != nil {
		panic(err)
	}
	return string(b)
}

func Defendant() Persona {
	return NewPersona(models.CharacterDefendant, displayNames[models.CharacterDefendant],
		mustPrompt(models.CharacterDefendant))
}

func HumanWitness() Persona {
	return NewPersona(models.CharacterHumanWitness, displayNames[models.CharacterHumanWitness],
		mustPrompt(models.CharacterHumanWitness))
}

func AIWitness() Persona {
	return NewPersona(models.CharacterAIWitness, displayNames[models.CharacterAIWitness],
		mustPrompt(models.CharacterAIWitness))
}

// Cast returns the default characters in presentation order.
func Cast() []Character {
	return []Character{Defendant(), HumanWitness(), AIWitness()}
}

// LoadCast returns the default cast with prompts overridden by files in dir. A file is looked up by the same name
// as the embedded prompt, e.g. defendant.txt. Missing files keep the embedded prompt. An empty dir returns the
// default cast.
func LoadCast(dir string) ([]Character, error) {
	if dir == "" {
		return Cast(), nil
	}
	cast := make([]Character, 0, len(models.AllCharacters()))
	for _, id := range models.AllCharacters() {
		prompt := mustPrompt(id)
		path := filepath.Join(dir, promptFiles[id])
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			prompt = string(b)
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, errors.Wrap(err, "read prompt", slog.String("path", path))
		}
		cast = append(cast, NewPersona(id, displayNames[id], prompt))
	}
	return cast, nil
}
