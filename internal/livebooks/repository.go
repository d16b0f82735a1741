package livebooks

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/livebooks-app/backend/internal/models"
)

const livebookColumns = `id, palestra_id, usuario_id, summary_type, COALESCE(pdf_url,''),
	COALESCE(html_url,''), COALESCE(docx_url,''), status, COALESCE(tempo_processamento,0),
	COALESCE(erro,''), created_at, updated_at`

// Repository handles livebook persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a livebooks repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanLivebook(row pgx.Row) (*models.Livebook, error) {
	var l models.Livebook
	err := row.Scan(&l.ID, &l.PalestraID, &l.UsuarioID, &l.SummaryType, &l.PDFURL,
		&l.HTMLURL, &l.DocxURL, &l.Status, &l.TempoProcessamento, &l.Erro,
		&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

// Create inserts a livebook in status processando. The partial unique index
// on (palestra_id, summary_type) for non-terminal rows makes this a
// conditional insert: when a livebook for the pair is already in flight the
// insert is a no-op and Create returns false.
func (r *Repository) Create(ctx context.Context, l *models.Livebook) (bool, error) {
	const q = `INSERT INTO livebooks (id, palestra_id, usuario_id, summary_type, status)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		ON CONFLICT (palestra_id, summary_type) WHERE status NOT IN ('concluido', 'erro') DO NOTHING
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, l.PalestraID, l.UsuarioID, l.SummaryType, models.LivebookStatusProcessando).
		Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	l.Status = models.LivebookStatusProcessando
	return true, nil
}

// GetByID returns a livebook by ID, or nil when it does not exist.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Livebook, error) {
	const q = `SELECT ` + livebookColumns + ` FROM livebooks WHERE id = $1`
	return scanLivebook(r.pool.QueryRow(ctx, q, id))
}

// ListByPalestra returns all livebooks for a palestra, newest first.
func (r *Repository) ListByPalestra(ctx context.Context, palestraID uuid.UUID) ([]models.Livebook, error) {
	const q = `SELECT ` + livebookColumns + ` FROM livebooks WHERE palestra_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, palestraID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Livebook
	for rows.Next() {
		var l models.Livebook
		if err := rows.Scan(&l.ID, &l.PalestraID, &l.UsuarioID, &l.SummaryType, &l.PDFURL,
			&l.HTMLURL, &l.DocxURL, &l.Status, &l.TempoProcessamento, &l.Erro,
			&l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, l)
	}
	return list, rows.Err()
}

// FindNonTerminal returns the in-flight livebook for a palestra, optionally
// narrowed to one variant. Nil when none is in flight.
func (r *Repository) FindNonTerminal(ctx context.Context, palestraID uuid.UUID, summaryType string) (*models.Livebook, error) {
	const q = `SELECT ` + livebookColumns + ` FROM livebooks
		WHERE palestra_id = $1 AND status NOT IN ('concluido', 'erro')
		AND ($2 = '' OR summary_type = $2)
		ORDER BY created_at DESC LIMIT 1`
	return scanLivebook(r.pool.QueryRow(ctx, q, palestraID, summaryType))
}

// FindLatest returns the most recent livebook for a palestra regardless of
// status, optionally narrowed to one variant.
func (r *Repository) FindLatest(ctx context.Context, palestraID uuid.UUID, summaryType string) (*models.Livebook, error) {
	const q = `SELECT ` + livebookColumns + ` FROM livebooks
		WHERE palestra_id = $1 AND ($2 = '' OR summary_type = $2)
		ORDER BY created_at DESC LIMIT 1`
	return scanLivebook(r.pool.QueryRow(ctx, q, palestraID, summaryType))
}

// MarkConcluido finalizes a livebook with whichever artifact URLs the
// generator supplied. Absent fields keep their previous value.
func (r *Repository) MarkConcluido(ctx context.Context, id uuid.UUID, pdfURL, htmlURL, docxURL string, tempoSeconds int) error {
	const q = `UPDATE livebooks SET
			status = $1,
			pdf_url = COALESCE(NULLIF($2,''), pdf_url),
			html_url = COALESCE(NULLIF($3,''), html_url),
			docx_url = COALESCE(NULLIF($4,''), docx_url),
			tempo_processamento = COALESCE(NULLIF($5, 0), tempo_processamento),
			updated_at = NOW()
		WHERE id = $6`
	_, err := r.pool.Exec(ctx, q, models.LivebookStatusConcluido, pdfURL, htmlURL, docxURL, tempoSeconds, id)
	return err
}

// MarkErro finalizes a livebook with an error detail and no artifacts.
func (r *Repository) MarkErro(ctx context.Context, id uuid.UUID, detail string) error {
	const q = `UPDATE livebooks SET status = $1, erro = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.pool.Exec(ctx, q, models.LivebookStatusErro, detail, id)
	return err
}
