package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeDetector struct {
	detections []postprocess.Detection
	err        error
}

func (f *fakeDetector) Detect(_ context.Context, _ image.Image) ([]postprocess.Detection, error) {
	return f.detections, f.err
}

type memStore struct {
	mu      sync.Mutex
	results map[string]Result
	err     error
}

func newMemStore() *memStore {
	return &memStore{results: map[string]Result{}}
}

func (m *memStore) Put(_ context.Context, result Result) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[result.ID] = result
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result, ok := m.results[id]
	if !ok {
		return Result{}, errors.Wrapf(ErrNotFound, "result %s", id)
	}
	return result, nil
}

type recordingPublisher struct {
	published []Result
	err       error
}

func (r *recordingPublisher) Publish(_ context.Context, result Result) error {
	r.published = append(r.published, result)
	return r.err
}

var cat = postprocess.Detection{
	ID:         0,
	Class:      0,
	ClassName:  "cat",
	Confidence: 0.9,
	Box:        images.Rect{X: 40, Y: 40, Width: 20, Height: 20},
}

func pngBody(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func newServer(t *testing.T, opts Options) *Server {
	t.Helper()
	if opts.Detector == nil {
		opts.Detector = &fakeDetector{detections: []postprocess.Detection{cat}}
	}
	s, err := New(opts)
	require.NoError(t, err)
	return s
}

func do(s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(newServer(t, Options{}), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestDetectStoresAndPublishes(t *testing.T) {
	store := newMemStore()
	publisher := &recordingPublisher{}
	s := newServer(t, Options{Store: store, Publisher: publisher})

	rec := do(s, http.MethodPost, "/v1/detect", pngBody(t, 64, 48))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.ID)
	assert.Positive(t, result.Timestamp)
	assert.Equal(t, images.FormatPNG, result.Format)
	assert.Equal(t, 64, result.Width)
	assert.Equal(t, 48, result.Height)
	assert.Equal(t, []postprocess.Detection{cat}, result.Detections)

	require.Len(t, publisher.published, 1)
	assert.Equal(t, result.ID, publisher.published[0].ID)

	rec = do(s, http.MethodGet, "/v1/detections/"+result.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stored Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.Equal(t, result, stored)
}

func TestDetectPublishFailureIsNotFatal(t *testing.T) {
	publisher := &recordingPublisher{err: errors.New("broker down")}
	rec := do(newServer(t, Options{Publisher: publisher}), http.MethodPost, "/v1/detect", pngBody(t, 8, 8))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, publisher.published, 1)
}

func TestDetectErrors(t *testing.T) {
	failingStore := newMemStore()
	failingStore.err = errors.New("redis down")

	tests := []struct {
		name   string
		opts   Options
		body   []byte
		status int
	}{
		{
			name:   "not an image",
			body:   []byte("hello"),
			status: http.StatusBadRequest,
		},
		{
			name:   "body too large",
			opts:   Options{MaxBodyBytes: 16},
			body:   pngBody(t, 32, 32),
			status: http.StatusRequestEntityTooLarge,
		},
		{
			name:   "detector fails",
			opts:   Options{Detector: &fakeDetector{err: errors.New("device lost")}},
			body:   pngBody(t, 8, 8),
			status: http.StatusInternalServerError,
		},
		{
			name:   "store fails",
			opts:   Options{Store: failingStore},
			body:   pngBody(t, 8, 8),
			status: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(newServer(t, tt.opts), http.MethodPost, "/v1/detect", tt.body)
			assert.Equal(t, tt.status, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestGetDetectionsNotFound(t *testing.T) {
	rec := do(newServer(t, Options{Store: newMemStore()}), http.MethodGet, "/v1/detections/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(newServer(t, Options{}), http.MethodGet, "/v1/detections/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "no store configured")
}

func TestNewRequiresDetector(t *testing.T) {
	s, err := New(Options{})
	assert.Error(t, err)
	assert.Nil(t, s)
}

func TestRunStopsWithContext(t *testing.T) {
	s := newServer(t, Options{Addr: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.Run(ctx))
}

func TestRunInvalidAddress(t *testing.T) {
	s := newServer(t, Options{Addr: "127.0.0.1:-1"})
	assert.Error(t, s.Run(context.Background()))
}
