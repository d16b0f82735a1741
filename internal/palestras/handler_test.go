package palestras

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livebooks-app/backend/internal/models"
)

type fakeStore struct {
	palestras map[uuid.UUID]*models.Palestra
	created   []*models.Palestra
}

func newFakeStore(pals ...*models.Palestra) *fakeStore {
	s := &fakeStore{palestras: make(map[uuid.UUID]*models.Palestra)}
	for _, p := range pals {
		s.palestras[p.ID] = p
	}
	return s
}

func (s *fakeStore) Create(_ context.Context, p *models.Palestra) error {
	p.ID = uuid.New()
	s.palestras[p.ID] = p
	s.created = append(s.created, p)
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Palestra, error) {
	return s.palestras[id], nil
}

func (s *fakeStore) ListByUsuario(_ context.Context, usuarioID uuid.UUID) ([]models.Palestra, error) {
	var out []models.Palestra
	for _, p := range s.palestras {
		if p.UsuarioID == usuarioID {
			out = append(out, *p)
		}
	}
	return out, nil
}

type fakePresigner struct {
	presignedKey string
}

func (f *fakePresigner) MediaBucket() string          { return "media-bucket" }
func (f *fakePresigner) PresignExpire() time.Duration { return 15 * time.Minute }

func (f *fakePresigner) KeyFromPublicURL(bucket, url string) string {
	prefix := "https://" + bucket + ".s3.amazonaws.com/"
	if !strings.HasPrefix(url, prefix) {
		return ""
	}
	return strings.TrimPrefix(url, prefix)
}

func (f *fakePresigner) GeneratePresignedDownloadURL(_ context.Context, _, key string, _ time.Duration) (string, error) {
	f.presignedKey = key
	return "https://media-bucket.s3.amazonaws.com/" + key + "?X-Amz-Signature=abc", nil
}

func palestrasRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/palestras", h.Create)
	r.GET("/palestras", h.List)
	r.GET("/palestras/:id", h.GetByID)
	r.GET("/palestras/:id/status", h.Status)
	r.GET("/palestras/:id/media-url", h.MediaDownloadURL)
	return r
}

func TestCreatePalestra(t *testing.T) {
	store := newFakeStore()
	h := NewHandler(store, nil, nil)
	usuarioID := uuid.New()

	body := fmt.Sprintf(`{"usuario_id": "%s", "titulo": "Go em produção", "summary_type": "geral_completo"}`, usuarioID)
	req := httptest.NewRequest(http.MethodPost, "/palestras", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	palestrasRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, store.created, 1)
	assert.Equal(t, usuarioID, store.created[0].UsuarioID)
	assert.Equal(t, "Go em produção", store.created[0].Titulo)

	var resp struct {
		Data models.Palestra `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.PalestraStatusAguardando, resp.Data.Status)
}

func TestCreatePalestraValidation(t *testing.T) {
	h := NewHandler(newFakeStore(), nil, nil)
	router := palestrasRouter(h)

	for name, body := range map[string]string{
		"missing usuario_id":   `{"titulo": "x"}`,
		"malformed usuario_id": `{"usuario_id": "abc"}`,
		"unknown summary_type": fmt.Sprintf(`{"usuario_id": "%s", "summary_type": "super_resumo"}`, uuid.New()),
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/palestras", bytes.NewBufferString(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestStatusBeforeAndAfterTranscript(t *testing.T) {
	p := &models.Palestra{ID: uuid.New(), UsuarioID: uuid.New(), Status: models.PalestraStatusTranscrevendo}
	store := newFakeStore(p)
	router := palestrasRouter(NewHandler(store, nil, nil))

	get := func() map[string]any {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/palestras/"+p.ID.String()+"/status", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Data map[string]any `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp.Data
	}

	data := get()
	assert.Equal(t, models.PalestraStatusTranscrevendo, data["status"])
	assert.NotContains(t, data, "transcricao")

	p.Transcricao = "bom dia a todos"
	p.Status = models.PalestraStatusProcessando
	data = get()
	assert.Equal(t, models.PalestraStatusProcessando, data["status"])
	assert.Equal(t, "bom dia a todos", data["transcricao"])
}

func TestStatusUnknownPalestra(t *testing.T) {
	router := palestrasRouter(NewHandler(newFakeStore(), nil, nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/palestras/"+uuid.NewString()+"/status", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListByUsuario(t *testing.T) {
	usuarioID := uuid.New()
	store := newFakeStore(
		&models.Palestra{ID: uuid.New(), UsuarioID: usuarioID, Status: models.PalestraStatusAguardando},
		&models.Palestra{ID: uuid.New(), UsuarioID: usuarioID, Status: models.PalestraStatusConcluido},
		&models.Palestra{ID: uuid.New(), UsuarioID: uuid.New(), Status: models.PalestraStatusAguardando},
	)
	router := palestrasRouter(NewHandler(store, nil, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/palestras?usuario_id="+usuarioID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []models.Palestra `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 2)
}

func TestMediaDownloadURL(t *testing.T) {
	presigner := &fakePresigner{}
	p := &models.Palestra{
		ID:        uuid.New(),
		UsuarioID: uuid.New(),
		MediaURLs: []string{
			"https://media-bucket.s3.amazonaws.com/media/a/b/1_old.mp3",
			"https://media-bucket.s3.amazonaws.com/media/a/b/2_new.mp3",
		},
	}
	router := palestrasRouter(NewHandler(newFakeStore(p), presigner, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/palestras/"+p.ID.String()+"/media-url", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Most recent media object wins.
	assert.Equal(t, "media/a/b/2_new.mp3", presigner.presignedKey)

	var resp struct {
		Data struct {
			DownloadURL string `json:"download_url"`
			ExpiresIn   int    `json:"expires_in"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Data.DownloadURL, "X-Amz-Signature")
	assert.Equal(t, int((15 * time.Minute).Seconds()), resp.Data.ExpiresIn)
}

func TestMediaDownloadURLNoMedia(t *testing.T) {
	p := &models.Palestra{ID: uuid.New(), UsuarioID: uuid.New()}
	router := palestrasRouter(NewHandler(newFakeStore(p), &fakePresigner{}, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/palestras/"+p.ID.String()+"/media-url", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
