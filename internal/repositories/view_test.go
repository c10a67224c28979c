package repositories_test

import (
	"context"
	"io"
	"testing"

	"github.com/myrjola/turingtrial/internal/models"
	"github.com/myrjola/turingtrial/internal/repositories"
	"github.com/myrjola/turingtrial/internal/sqlite"
	"github.com/myrjola/turingtrial/internal/testhelpers"
	"github.com/myrjola/turingtrial/internal/views"
	"github.com/stretchr/testify/require"
)

// newTestRepository creates a repository over a fresh in-memory database.
func newTestRepository(t *testing.T) *repositories.ViewRepository {
	t.Helper()
	ctx := context.Background()
	logger := testhelpers.NewLogger(io.Discard)
	db, err := sqlite.NewDatabase(ctx, ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close(ctx))
	})
	return repositories.NewViewRepository(db, logger)
}

func TestViewRepository_Load(t *testing.T) {
	t.Parallel()
	repo := newTestRepository(t)

	tests := []struct {
		name           string
		id             string
		wantController models.SceneController
		wantTitle      string
		wantErr        error
	}{
		{
			name:           "menu",
			id:             "menu",
			wantController: models.SceneController{Kind: models.SceneKindMenu, Character: ""},
			wantTitle:      "Courthouse hallway",
		},
		{
			name:           "character scene",
			id:             "ai-witness",
			wantController: models.SceneController{Kind: models.SceneKindCharacter, Character: models.CharacterAIWitness},
			wantTitle:      "Terminal",
		},
		{
			name:    "unknown",
			id:      "basement",
			wantErr: views.ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			handle, err := repo.Load(context.Background(), tt.id)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.id, handle.ID)
			controller, ok := handle.SceneController()
			require.True(t, ok)
			require.Equal(t, tt.wantController, controller)
			scene, ok := handle.Scene()
			require.True(t, ok)
			require.Equal(t, tt.wantTitle, scene.Title)
		})
	}
}

func TestViewRepository_List(t *testing.T) {
	t.Parallel()
	repo := newTestRepository(t)
	handles, err := repo.List(context.Background())
	require.NoError(t, err)
	ids := make([]string, 0, len(handles))
	for _, h := range handles {
		ids = append(ids, h.ID)
	}
	require.Equal(t, []string{"menu", "defendant", "human-witness", "ai-witness", "verdict", "resolution"}, ids)
}

func TestViewRepository_SetBackdrop(t *testing.T) {
	t.Parallel()
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.SetBackdrop(ctx, "verdict", "art/verdict.png"))
	handle, err := repo.Load(ctx, "verdict")
	require.NoError(t, err)
	scene, _ := handle.Scene()
	require.Equal(t, "art/verdict.png", scene.BackdropPath)

	require.ErrorIs(t, repo.SetBackdrop(ctx, "basement", "x.png"), views.ErrNotFound)
}
