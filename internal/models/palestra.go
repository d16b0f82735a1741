package models

import (
	"time"

	"github.com/google/uuid"
)

// PalestraStatus represents the pipeline lifecycle of a talk.
const (
	PalestraStatusAguardando    = "aguardando"
	PalestraStatusTranscrevendo = "transcrevendo"
	PalestraStatusProcessando   = "processando"
	PalestraStatusConcluido     = "concluido"
	PalestraStatusErro          = "erro"
)

// Palestra is one recorded talk: its media, transcript and pipeline status.
type Palestra struct {
	ID           uuid.UUID `json:"id"`
	UsuarioID    uuid.UUID `json:"usuario_id"`
	Titulo       string    `json:"titulo,omitempty"`
	MediaURLs    []string  `json:"media_urls"`
	Transcricao  string    `json:"transcricao,omitempty"`
	Status       string    `json:"status"`
	GeneratorURL string    `json:"generator_url,omitempty"`
	SummaryType  string    `json:"summary_type,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasTranscript reports whether transcription has produced output.
func (p *Palestra) HasTranscript() bool {
	return p.Transcricao != ""
}

var palestraStatusRank = map[string]int{
	PalestraStatusAguardando:    0,
	PalestraStatusTranscrevendo: 1,
	PalestraStatusProcessando:   2,
	PalestraStatusConcluido:     3,
}

// IsTerminalPalestraStatus reports whether a palestra status admits no further
// pipeline transitions (outside an explicit caller-initiated retry).
func IsTerminalPalestraStatus(status string) bool {
	return status == PalestraStatusConcluido || status == PalestraStatusErro
}

// CanTransitionPalestra validates a palestra status transition. Forward moves
// only, with two exceptions: erro is reachable from any non-terminal status
// (and a retry may leave erro back into transcrevendo), and transcrevendo may
// re-enter from processando — intake acknowledges with processando before the
// worker picks the job up.
func CanTransitionPalestra(from, to string) bool {
	if from == to {
		return true
	}
	if from == PalestraStatusErro {
		return to == PalestraStatusTranscrevendo
	}
	if to == PalestraStatusErro {
		return !IsTerminalPalestraStatus(from)
	}
	if from == PalestraStatusProcessando && to == PalestraStatusTranscrevendo {
		return true
	}
	fromRank, okFrom := palestraStatusRank[from]
	toRank, okTo := palestraStatusRank[to]
	if !okFrom || !okTo {
		return false
	}
	return toRank > fromRank
}
