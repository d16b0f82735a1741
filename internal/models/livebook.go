package models

import (
	"time"

	"github.com/google/uuid"
)

// LivebookStatus represents the generation lifecycle of a summary document.
const (
	LivebookStatusProcessando = "processando"
	LivebookStatusConcluido   = "concluido"
	LivebookStatusErro        = "erro"
)

// SummaryType is the requested variant: audience level x verbosity.
const (
	SummaryTypeGeralResumido   = "geral_resumido"
	SummaryTypeGeralCompleto   = "geral_completo"
	SummaryTypeTecnicoResumido = "tecnico_resumido"
	SummaryTypeTecnicoCompleto = "tecnico_completo"
)

var validSummaryTypes = map[string]bool{
	SummaryTypeGeralResumido:   true,
	SummaryTypeGeralCompleto:   true,
	SummaryTypeTecnicoResumido: true,
	SummaryTypeTecnicoCompleto: true,
}

// ValidSummaryType reports whether s is a recognized variant.
func ValidSummaryType(s string) bool { return validSummaryTypes[s] }

// Livebook is one AI-generated summary document derived from a palestra's
// transcript. Output artifact URLs stay empty until the generator reports
// completion via webhook.
type Livebook struct {
	ID                 uuid.UUID `json:"id"`
	PalestraID         uuid.UUID `json:"palestra_id"`
	UsuarioID          uuid.UUID `json:"usuario_id"`
	SummaryType        string    `json:"summary_type"`
	PDFURL             string    `json:"pdf_url,omitempty"`
	HTMLURL            string    `json:"html_url,omitempty"`
	DocxURL            string    `json:"docx_url,omitempty"`
	Status             string    `json:"status"`
	TempoProcessamento int       `json:"tempo_processamento,omitempty"` // seconds
	Erro               string    `json:"erro,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// IsTerminalLivebookStatus reports whether a livebook reached its final state.
func IsTerminalLivebookStatus(status string) bool {
	return status == LivebookStatusConcluido || status == LivebookStatusErro
}

// HasArtifact reports whether at least one output document URL is set.
func (l *Livebook) HasArtifact() bool {
	return l.PDFURL != "" || l.HTMLURL != "" || l.DocxURL != ""
}
