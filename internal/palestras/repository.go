package palestras

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/livebooks-app/backend/internal/models"
)

const palestraColumns = `id, usuario_id, COALESCE(titulo,''), media_urls, COALESCE(transcricao,''),
	status, COALESCE(generator_url,''), COALESCE(summary_type,''), created_at, updated_at`

// Repository handles palestra persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a palestras repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanPalestra(row pgx.Row) (*models.Palestra, error) {
	var p models.Palestra
	err := row.Scan(&p.ID, &p.UsuarioID, &p.Titulo, &p.MediaURLs, &p.Transcricao,
		&p.Status, &p.GeneratorURL, &p.SummaryType, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// Create inserts a new palestra in status aguardando with no media.
func (r *Repository) Create(ctx context.Context, p *models.Palestra) error {
	const q = `INSERT INTO palestras (id, usuario_id, titulo, media_urls, status, generator_url, summary_type)
		VALUES (gen_random_uuid(), $1, $2, '{}', $3, NULLIF($4,''), NULLIF($5,''))
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q,
		p.UsuarioID, p.Titulo, models.PalestraStatusAguardando, p.GeneratorURL, p.SummaryType).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

// GetByID returns a palestra by ID, or nil when it does not exist.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Palestra, error) {
	const q = `SELECT ` + palestraColumns + ` FROM palestras WHERE id = $1`
	return scanPalestra(r.pool.QueryRow(ctx, q, id))
}

// ListByUsuario returns palestras owned by a user, newest first.
func (r *Repository) ListByUsuario(ctx context.Context, usuarioID uuid.UUID) ([]models.Palestra, error) {
	const q = `SELECT ` + palestraColumns + ` FROM palestras WHERE usuario_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, usuarioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Palestra
	for rows.Next() {
		var p models.Palestra
		if err := rows.Scan(&p.ID, &p.UsuarioID, &p.Titulo, &p.MediaURLs, &p.Transcricao,
			&p.Status, &p.GeneratorURL, &p.SummaryType, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// AppendMediaURL appends one media handle to the palestra's ordered list.
// Handles are append-only once intake begins.
func (r *Repository) AppendMediaURL(ctx context.Context, id uuid.UUID, mediaURL string) error {
	const q = `UPDATE palestras SET media_urls = array_append(media_urls, $1), updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, mediaURL, id)
	return err
}

// UpdateStatus sets palestra status unconditionally (set-to-value, safe to
// race against concurrent status reads).
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	const q = `UPDATE palestras SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, status, id)
	return err
}

// UpdateStatusIf sets status only when the current status matches from.
// Returns true when the row was updated.
func (r *Repository) UpdateStatusIf(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	const q = `UPDATE palestras SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`
	tag, err := r.pool.Exec(ctx, q, to, id, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetTranscript writes the transcript and the new status in a single
// statement: the transcript write is all-or-nothing.
func (r *Repository) SetTranscript(ctx context.Context, id uuid.UUID, transcricao, status string) error {
	const q = `UPDATE palestras SET transcricao = $1, status = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.pool.Exec(ctx, q, transcricao, status, id)
	return err
}
