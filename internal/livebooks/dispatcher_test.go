package livebooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livebooks-app/backend/internal/models"
)

type fakeCreatorStore struct {
	mu       sync.Mutex
	created  []*models.Livebook
	inflight map[string]bool
	err      error
}

func newFakeCreatorStore() *fakeCreatorStore {
	return &fakeCreatorStore{inflight: make(map[string]bool)}
}

func (s *fakeCreatorStore) Create(_ context.Context, l *models.Livebook) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	key := l.PalestraID.String() + "/" + l.SummaryType
	if s.inflight[key] {
		return false, nil
	}
	s.inflight[key] = true
	l.ID = uuid.New()
	l.Status = models.LivebookStatusProcessando
	s.created = append(s.created, l)
	return true, nil
}

func readyPalestra() *models.Palestra {
	return &models.Palestra{
		ID:          uuid.New(),
		UsuarioID:   uuid.New(),
		Titulo:      "Go em produção",
		Transcricao: "bom dia a todos, hoje vamos falar de concorrência",
		Status:      models.PalestraStatusProcessando,
		MediaURLs:   []string{"https://bucket.s3.amazonaws.com/media/a.mp3"},
	}
}

func TestDispatchCreatesAndNotifies(t *testing.T) {
	received := make(chan GenerationRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req GenerationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		received <- req
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := newFakeCreatorStore()
	d := NewDispatcher(store, srv.URL, nil)

	p := readyPalestra()
	lb, err := d.Dispatch(context.Background(), p, models.SummaryTypeTecnicoCompleto)
	require.NoError(t, err)
	require.Len(t, store.created, 1)
	assert.Equal(t, models.SummaryTypeTecnicoCompleto, lb.SummaryType)
	assert.Equal(t, p.ID, lb.PalestraID)

	select {
	case req := <-received:
		assert.Equal(t, p.ID, req.PalestraID)
		assert.Equal(t, lb.ID, req.LivebookID)
		assert.Equal(t, p.Transcricao, req.Transcricao)
		assert.Equal(t, models.SummaryTypeTecnicoCompleto, req.SummaryType)
	case <-time.After(2 * time.Second):
		t.Fatal("generation notification never arrived")
	}
}

func TestDispatchDefaultsVariant(t *testing.T) {
	store := newFakeCreatorStore()
	d := NewDispatcher(store, "http://generator.invalid", nil)

	lb, err := d.Dispatch(context.Background(), readyPalestra(), "")
	require.NoError(t, err)
	assert.Equal(t, models.SummaryTypeGeralResumido, lb.SummaryType)
}

func TestDispatchDuplicate(t *testing.T) {
	store := newFakeCreatorStore()
	d := NewDispatcher(store, "http://generator.invalid", nil)

	p := readyPalestra()
	_, err := d.Dispatch(context.Background(), p, models.SummaryTypeGeralCompleto)
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), p, models.SummaryTypeGeralCompleto)
	require.ErrorIs(t, err, ErrDuplicateDispatch)
	assert.Len(t, store.created, 1)

	// A different variant for the same palestra is not a duplicate.
	_, err = d.Dispatch(context.Background(), p, models.SummaryTypeTecnicoResumido)
	require.NoError(t, err)
}

func TestDispatchRequiresTranscript(t *testing.T) {
	store := newFakeCreatorStore()
	d := NewDispatcher(store, "http://generator.invalid", nil)

	p := readyPalestra()
	p.Transcricao = ""
	_, err := d.Dispatch(context.Background(), p, "")
	require.ErrorIs(t, err, ErrTranscriptNotReady)
	assert.Empty(t, store.created)
}

func TestDispatchRejectsUnknownVariant(t *testing.T) {
	d := NewDispatcher(newFakeCreatorStore(), "http://generator.invalid", nil)
	_, err := d.Dispatch(context.Background(), readyPalestra(), "resumo_magico")
	require.Error(t, err)
}

func TestDispatchSurvivesDeliveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "generator overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	store := newFakeCreatorStore()
	d := NewDispatcher(store, srv.URL, nil)

	// Rejected delivery does not roll the livebook back; it escalates through
	// the webhook timeout path instead.
	lb, err := d.Dispatch(context.Background(), readyPalestra(), "")
	require.NoError(t, err)
	require.NotNil(t, lb)
	assert.Len(t, store.created, 1)
}

func TestDispatchPrefersPalestraTarget(t *testing.T) {
	hit := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hit <- struct{}{}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(newFakeCreatorStore(), "http://fallback.invalid", nil)

	p := readyPalestra()
	p.GeneratorURL = srv.URL
	_, err := d.Dispatch(context.Background(), p, "")
	require.NoError(t, err)

	select {
	case <-hit:
	case <-time.After(2 * time.Second):
		t.Fatal("palestra-level generator target was not used")
	}
}

func TestDispatchAfterTranscriptionSkipsWithoutTarget(t *testing.T) {
	store := newFakeCreatorStore()
	d := NewDispatcher(store, "", nil)

	d.DispatchAfterTranscription(context.Background(), readyPalestra())
	assert.Empty(t, store.created)
}
