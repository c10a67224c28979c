package models

// ViewHandle is a preloaded presentation bundle. It is immutable once cached.
type ViewHandle struct {
	ID           string
	Presentation any
	Controller   any
}

// Scene is the presentation part of a view handle loaded from the scene store.
type Scene struct {
	ID            string
	Title         string
	Description   string
	BackdropPath  string
	NarrationClip string
}

type SceneKind string

const (
	SceneKindMenu       SceneKind = "menu"
	SceneKindCharacter  SceneKind = "character"
	SceneKindVerdict    SceneKind = "verdict"
	SceneKindResolution SceneKind = "resolution"
)

// SceneController tells the coordination layer how to drive a scene.
type SceneController struct {
	Kind SceneKind
	// Character is set for SceneKindCharacter.
	Character CharacterID
}

// Scene returns the presentation as a Scene if it is one.
func (h ViewHandle) Scene() (Scene, bool) {
	s, ok := h.Presentation.(Scene)
	return s, ok
}

// SceneController returns the controller as a SceneController if it is one.
func (h ViewHandle) SceneController() (SceneController, bool) {
	c, ok := h.Controller.(SceneController)
	return c, ok
}
