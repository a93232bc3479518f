package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/windfall/shadowing/internal/cache"
	"github.com/windfall/shadowing/internal/client"
	"github.com/windfall/shadowing/internal/config"
	httphandler "github.com/windfall/shadowing/internal/handler/http"
	wshandler "github.com/windfall/shadowing/internal/handler/ws"
	"github.com/windfall/shadowing/internal/logger"
	"github.com/windfall/shadowing/internal/model"
	"github.com/windfall/shadowing/internal/player"
	"github.com/windfall/shadowing/internal/recorder"
	"github.com/windfall/shadowing/internal/session"
	"github.com/windfall/shadowing/internal/view"
)

// fakeBackend serves the backend REST API from memory.
type fakeBackend struct {
	mu           sync.Mutex
	materials    map[int64]model.MaterialDetail
	calls        []string
	nextPractice int64
	uploads      map[int64][]byte
	// evaluateGate, when set, holds evaluate requests until it is closed.
	evaluateGate chan struct{}
}

func newFakeBackend() *fakeBackend {
	b := &fakeBackend{
		materials:    make(map[int64]model.MaterialDetail),
		nextPractice: 500,
		uploads:      make(map[int64][]byte),
	}
	for _, id := range []int64{1, 2} {
		m := model.MaterialDetail{
			Material: model.Material{ID: id, Title: fmt.Sprintf("Material %d", id), SourceType: model.SourceYouTube, Duration: 60},
		}
		for i := 0; i < 3; i++ {
			start := float64(i * 10)
			m.Segments = append(m.Segments, model.Segment{
				ID: id*10 + int64(i), Text: fmt.Sprintf("line %d", i+1), StartTime: start, EndTime: start + 6, Order: i,
			})
		}
		b.materials[id] = m
	}
	return b
}

func (b *fakeBackend) record(r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, r.Method+" "+r.URL.Path)
}

func (b *fakeBackend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *fakeBackend) upload(practiceID int64) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uploads[practiceID]
}

// holdEvaluations blocks evaluate requests until the returned func is called.
func (b *fakeBackend) holdEvaluations(t *testing.T) func() {
	gate := make(chan struct{})
	b.mu.Lock()
	b.evaluateGate = gate
	b.mu.Unlock()

	var once sync.Once
	release := func() { once.Do(func() { close(gate) }) }
	t.Cleanup(release)
	return release
}

func (b *fakeBackend) count(call string) int {
	n := 0
	for _, c := range b.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/materials", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
		b.mu.Lock()
		defer b.mu.Unlock()
		out := []model.Material{}
		for _, m := range b.materials {
			out = append(out, m.Material)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		writeJSON(w, http.StatusOK, out)
	})

	mux.HandleFunc("GET /api/materials/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
		b.mu.Lock()
		defer b.mu.Unlock()
		m, ok := b.materials[pathID(r)]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Material not found"})
			return
		}
		writeJSON(w, http.StatusOK, m)
	})

	mux.HandleFunc("DELETE /api/materials/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.materials, pathID(r))
		writeJSON(w, http.StatusOK, map[string]string{"message": "Material deleted"})
	})

	mux.HandleFunc("POST /api/materials/youtube", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
		var req struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "url required"})
			return
		}
		writeJSON(w, http.StatusOK, model.YouTubeImportResult{MaterialID: 3, Title: "Imported", Message: "ok"})
	})

	mux.HandleFunc("POST /api/materials/pdf", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
		writeJSON(w, http.StatusOK, model.PDFImportResult{MaterialID: 4, Title: "Doc", SegmentCount: 2})
	})

	mux.HandleFunc("GET /api/segments/{id}/audio", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3-audio-bytes"))
	})

	mux.HandleFunc("POST /api/segments/{id}/practice", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
		file, _, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "file required"})
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)

		b.mu.Lock()
		defer b.mu.Unlock()
		b.nextPractice++
		b.uploads[b.nextPractice] = data
		writeJSON(w, http.StatusOK, model.Practice{ID: b.nextPractice, SegmentID: pathID(r), RecordingPath: "practice.webm"})
	})

	mux.HandleFunc("GET /api/segments/{id}/practices", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
		writeJSON(w, http.StatusOK, []model.Practice{{ID: 1, SegmentID: pathID(r)}})
	})

	mux.HandleFunc("GET /api/practice/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
		writeJSON(w, http.StatusOK, model.Practice{ID: pathID(r), SegmentID: 10})
	})

	mux.HandleFunc("POST /api/practice/{id}/evaluate", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
		b.mu.Lock()
		gate := b.evaluateGate
		b.mu.Unlock()
		if gate != nil {
			<-gate
		}
		writeJSON(w, http.StatusOK, model.EvaluationResult{
			PracticeID:      pathID(r),
			TranscribedText: "line one",
			OriginalText:    "line 1",
			Evaluation:      model.Evaluation{AccuracyScore: 79, OverallFeedback: "Almost."},
		})
	})

	return mux
}

type testApp struct {
	router   http.Handler
	backend  *fakeBackend
	sessions *session.Registry
	queries  *cache.QueryCache
	hub      *WebSocketHub
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	log := logger.NewNop()

	backend := newFakeBackend()
	backendSrv := httptest.NewServer(backend.handler())
	t.Cleanup(backendSrv.Close)

	api := client.NewBackendClient(backendSrv.URL, 5*time.Second)
	queries, err := cache.New(cache.Options{MaxEntries: 100, Retry: 1}, log)
	require.NoError(t, err)
	t.Cleanup(queries.Close)

	sessions := session.NewRegistry(func(opts view.PracticeOptions, source recorder.Source) *view.PracticeView {
		return view.NewPracticeView(view.PracticeDeps{
			API:     api,
			Queries: queries,
			Engines: func(d float64) player.EngineFactory { return player.ClockEngineFactory(d, 10*time.Millisecond) },
			Source:  source,
			Log:     log,
		}, opts)
	}, time.Hour, log)
	t.Cleanup(func() { sessions.CloseAll(context.Background()) })

	cfg := &config.Config{
		CORSAllowedOrigins: []string{"*"},
		CORSAllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
		CORSAllowedHeaders: []string{"Content-Type"},
	}

	hub := NewWebSocketHub(sessions, wshandler.NewHandler(log), cfg.CORSAllowedOrigins, log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	handlers := Handlers{
		Health:   httphandler.NewHealthHandler(sessions.Len),
		Library:  httphandler.NewLibraryHandler(log, view.NewMaterialList(api, queries, log)),
		Imports:  httphandler.NewImportHandler(log, view.NewYouTubeImport(api, queries, log), view.NewPDFImport(api, queries, log), 1<<20),
		Sessions: httphandler.NewSessionHandler(log, sessions, 1<<20),
		Segments: httphandler.NewSegmentHandler(log, api, api, queries),
	}

	return &testApp{
		router:   NewRouter(cfg, log, handlers, hub),
		backend:  backend,
		sessions: sessions,
		queries:  queries,
		hub:      hub,
	}
}
