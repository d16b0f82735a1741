package transcriber

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livebooks-app/backend/internal/models"
	"github.com/livebooks-app/backend/pkg/queue"
)

type fakeStore struct {
	palestras   map[uuid.UUID]*models.Palestra
	statuses    []string
	transcricao string
	setErr      error
}

func newFakeStore(pals ...*models.Palestra) *fakeStore {
	s := &fakeStore{palestras: make(map[uuid.UUID]*models.Palestra)}
	for _, p := range pals {
		s.palestras[p.ID] = p
	}
	return s
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Palestra, error) {
	return s.palestras[id], nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	s.statuses = append(s.statuses, status)
	if p, ok := s.palestras[id]; ok {
		p.Status = status
	}
	return nil
}

func (s *fakeStore) SetTranscript(_ context.Context, id uuid.UUID, transcricao, status string) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.transcricao = transcricao
	s.statuses = append(s.statuses, status)
	if p, ok := s.palestras[id]; ok {
		p.Transcricao = transcricao
		p.Status = status
	}
	return nil
}

type fakeDownloader struct {
	content string
	err     error
}

func (d *fakeDownloader) MediaBucket() string { return "media-bucket" }

func (d *fakeDownloader) GetObjectStream(context.Context, string, string) (io.ReadCloser, string, int64, error) {
	if d.err != nil {
		return nil, "", 0, d.err
	}
	return io.NopCloser(strings.NewReader(d.content)), "audio/mpeg", int64(len(d.content)), nil
}

type fakeProvider struct {
	result *Result
	err    error
}

func (p *fakeProvider) Transcribe(context.Context, string, io.Reader, string) (*Result, error) {
	return p.result, p.err
}

type fakeDispatcher struct {
	dispatched []uuid.UUID
}

func (d *fakeDispatcher) DispatchAfterTranscription(_ context.Context, p *models.Palestra) {
	d.dispatched = append(d.dispatched, p.ID)
}

type fakePublisher struct {
	events []string
}

func (p *fakePublisher) PublishStatus(_ uuid.UUID, status string) {
	p.events = append(p.events, status)
}

func TestExecuteSuccess(t *testing.T) {
	pal := &models.Palestra{
		ID:           uuid.New(),
		UsuarioID:    uuid.New(),
		Status:       models.PalestraStatusAguardando,
		GeneratorURL: "https://generator.example.com/hook",
	}
	store := newFakeStore(pal)
	disp := &fakeDispatcher{}
	pub := &fakePublisher{}

	proc := NewProcessor(store, &fakeDownloader{content: "audio"}, &fakeProvider{result: &Result{Text: "ola mundo"}}, nil, nil)
	proc.SetDispatcher(disp)
	proc.SetStatusPublisher(pub)

	text, err := proc.Execute(context.Background(), queue.TranscriptionPayload{
		PalestraID: pal.ID,
		MediaKey:   "media/user-1/x/audio.mp3",
	})
	require.NoError(t, err)
	assert.Equal(t, "ola mundo", text)
	assert.Equal(t, "ola mundo", store.transcricao)
	assert.Equal(t, []string{models.PalestraStatusTranscrevendo, models.PalestraStatusProcessando}, store.statuses)
	assert.Equal(t, []uuid.UUID{pal.ID}, disp.dispatched)
	assert.Contains(t, pub.events, models.PalestraStatusProcessando)
}

func TestExecuteNoDispatchWithoutTarget(t *testing.T) {
	pal := &models.Palestra{ID: uuid.New(), Status: models.PalestraStatusAguardando}
	store := newFakeStore(pal)
	disp := &fakeDispatcher{}

	proc := NewProcessor(store, &fakeDownloader{content: "audio"}, &fakeProvider{result: &Result{Text: "texto"}}, nil, nil)
	proc.SetDispatcher(disp)

	_, err := proc.Execute(context.Background(), queue.TranscriptionPayload{PalestraID: pal.ID, MediaKey: "k"})
	require.NoError(t, err)
	assert.Empty(t, disp.dispatched)
}

func TestExecuteProviderFailure(t *testing.T) {
	pal := &models.Palestra{ID: uuid.New(), Status: models.PalestraStatusAguardando, GeneratorURL: "https://g.example.com"}
	store := newFakeStore(pal)
	disp := &fakeDispatcher{}

	provErr := &ProviderError{StatusCode: 500, Message: "engine down"}
	proc := NewProcessor(store, &fakeDownloader{content: "audio"}, &fakeProvider{err: provErr}, nil, nil)
	proc.SetDispatcher(disp)

	_, err := proc.Execute(context.Background(), queue.TranscriptionPayload{PalestraID: pal.ID, MediaKey: "k"})
	require.Error(t, err)
	var got *ProviderError
	require.True(t, errors.As(err, &got))

	// Failed attempt: status erro, no transcript, no downstream dispatch.
	assert.Equal(t, []string{models.PalestraStatusTranscrevendo, models.PalestraStatusErro}, store.statuses)
	assert.Empty(t, store.transcricao)
	assert.Empty(t, disp.dispatched)
}

func TestExecuteMissingMedia(t *testing.T) {
	pal := &models.Palestra{ID: uuid.New(), Status: models.PalestraStatusAguardando}
	store := newFakeStore(pal)

	proc := NewProcessor(store, &fakeDownloader{err: errors.New("no such key")}, &fakeProvider{}, nil, nil)
	_, err := proc.Execute(context.Background(), queue.TranscriptionPayload{PalestraID: pal.ID, MediaKey: "gone"})
	require.ErrorIs(t, err, ErrNoMedia)
	assert.Equal(t, []string{models.PalestraStatusTranscrevendo, models.PalestraStatusErro}, store.statuses)
}

func TestExecuteEmptyMedia(t *testing.T) {
	pal := &models.Palestra{ID: uuid.New(), Status: models.PalestraStatusAguardando}
	store := newFakeStore(pal)

	proc := NewProcessor(store, &fakeDownloader{content: ""}, &fakeProvider{}, nil, nil)
	_, err := proc.Execute(context.Background(), queue.TranscriptionPayload{PalestraID: pal.ID, MediaKey: "empty"})
	require.ErrorIs(t, err, ErrNoMedia)
}

func TestExecuteSkipsConcludedPalestra(t *testing.T) {
	pal := &models.Palestra{ID: uuid.New(), Status: models.PalestraStatusConcluido, Transcricao: "já transcrito"}
	store := newFakeStore(pal)
	disp := &fakeDispatcher{}

	proc := NewProcessor(store, &fakeDownloader{content: "audio"}, &fakeProvider{result: &Result{Text: "novo"}}, nil, nil)
	proc.SetDispatcher(disp)

	// A stale queued job must not drag a concluded palestra back into the
	// pipeline or overwrite its transcript.
	_, err := proc.Execute(context.Background(), queue.TranscriptionPayload{PalestraID: pal.ID, MediaKey: "k"})
	require.Error(t, err)
	assert.Empty(t, store.statuses)
	assert.Equal(t, "já transcrito", pal.Transcricao)
	assert.Empty(t, disp.dispatched)
}

func TestExecuteRetriesAfterErro(t *testing.T) {
	pal := &models.Palestra{ID: uuid.New(), Status: models.PalestraStatusErro}
	store := newFakeStore(pal)

	proc := NewProcessor(store, &fakeDownloader{content: "audio"}, &fakeProvider{result: &Result{Text: "segunda tentativa"}}, nil, nil)
	_, err := proc.Execute(context.Background(), queue.TranscriptionPayload{PalestraID: pal.ID, MediaKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "segunda tentativa", store.transcricao)
}

func TestExecuteUnknownPalestra(t *testing.T) {
	store := newFakeStore()
	proc := NewProcessor(store, &fakeDownloader{content: "audio"}, &fakeProvider{}, nil, nil)
	_, err := proc.Execute(context.Background(), queue.TranscriptionPayload{PalestraID: uuid.New(), MediaKey: "k"})
	require.ErrorIs(t, err, ErrPalestraNotFound)
	assert.Empty(t, store.statuses)
}

func TestExecuteTranscriptWriteFailure(t *testing.T) {
	pal := &models.Palestra{ID: uuid.New(), Status: models.PalestraStatusAguardando}
	store := newFakeStore(pal)
	store.setErr = errors.New("db down")

	proc := NewProcessor(store, &fakeDownloader{content: "audio"}, &fakeProvider{result: &Result{Text: "texto"}}, nil, nil)
	_, err := proc.Execute(context.Background(), queue.TranscriptionPayload{PalestraID: pal.ID, MediaKey: "k"})
	require.Error(t, err)
	assert.Equal(t, []string{models.PalestraStatusTranscrevendo, models.PalestraStatusErro}, store.statuses)
}
