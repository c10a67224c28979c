// Package repositories reads the scene store.
package repositories

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/myrjola/turingtrial/internal/errors"
	"github.com/myrjola/turingtrial/internal/models"
	"github.com/myrjola/turingtrial/internal/sqlite"
	"github.com/myrjola/turingtrial/internal/views"
)

type ViewRepository struct {
	db     *sqlite.Database
	logger *slog.Logger
}

func NewViewRepository(db *sqlite.Database, logger *slog.Logger) *ViewRepository {
	return &ViewRepository{
		db:     db,
		logger: logger.With("source", "ViewRepository"),
	}
}

type sceneRow struct {
	ID            string `db:"id"`
	Kind          string `db:"kind"`
	CharacterID   string `db:"character_id"`
	Title         string `db:"title"`
	Description   string `db:"description"`
	BackdropPath  string `db:"backdrop_path"`
	NarrationClip string `db:"narration_clip"`
}

func (r sceneRow) handle() models.ViewHandle {
	return models.ViewHandle{
		ID: r.ID,
		Presentation: models.Scene{
			ID:            r.ID,
			Title:         r.Title,
			Description:   r.Description,
			BackdropPath:  r.BackdropPath,
			NarrationClip: r.NarrationClip,
		},
		Controller: models.SceneController{
			Kind:      models.SceneKind(r.Kind),
			Character: models.CharacterID(r.CharacterID),
		},
	}
}

const selectScenes = `SELECT id, kind, character_id, title, description, backdrop_path, narration_clip FROM scenes`

// Load reads the scene with the given id. Unknown ids return views.ErrNotFound.
func (r *ViewRepository) Load(ctx context.Context, id string) (models.ViewHandle, error) {
	var row sceneRow
	if err := r.db.ReadOnly.GetContext(ctx, &row, selectScenes+` WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ViewHandle{}, errors.Wrap(views.ErrNotFound, "load scene", slog.String("id", id))
		}
		return models.ViewHandle{}, errors.Wrap(err, "load scene", slog.String("id", id))
	}
	return row.handle(), nil
}

// List returns every scene in presentation order.
func (r *ViewRepository) List(ctx context.Context) ([]models.ViewHandle, error) {
	var rows []sceneRow
	if err := r.db.ReadOnly.SelectContext(ctx, &rows, selectScenes+` ORDER BY ordinal, id`); err != nil {
		return nil, errors.Wrap(err, "list scenes")
	}
	handles := make([]models.ViewHandle, 0, len(rows))
	for _, row := range rows {
		handles = append(handles, row.handle())
	}
	return handles, nil
}

// SetBackdrop points the scene at a new backdrop image.
func (r *ViewRepository) SetBackdrop(ctx context.Context, id string, path string) error {
	result, err := r.db.ReadWrite.ExecContext(ctx, `UPDATE scenes SET backdrop_path = ? WHERE id = ?`, path, id)
	if err != nil {
		return errors.Wrap(err, "update backdrop", slog.String("id", id))
	}
	var n int64
	if n, err = result.RowsAffected(); err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return errors.Wrap(views.ErrNotFound, "update backdrop", slog.String("id", id))
	}
	r.logger.LogAttrs(ctx, slog.LevelInfo, "backdrop updated", slog.String("id", id), slog.String("path", path))
	return nil
}
