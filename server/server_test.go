package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content_draft_generator/generator"
	"content_draft_generator/store"
)

// stubLLM answers with a short marker per prompt and streams it in one chunk.
func stubLLM(fail bool) generator.TextCompletion {
	return generator.TextCompletionFunc(func(_ context.Context, prompt string, opts generator.CompletionOptions) (string, error) {
		if fail {
			return "", errors.New("upstream unavailable")
		}
		out := "point one | point two"
		if strings.Contains(prompt, "feedback") {
			out = "revised draft"
		}
		if opts.Stream && opts.OnChunk != nil {
			opts.OnChunk(out)
		}
		return out, nil
	})
}

func newTestServer(t *testing.T, fail bool) (*Server, store.Store) {
	t.Helper()
	return newServerWith(t, stubLLM(fail), store.NewMemory(0), Options{MaxConcurrent: 2})
}

func newServerWith(t *testing.T, llm generator.TextCompletion, st store.Store, opts Options, variants ...*generator.Variant) (*Server, store.Store) {
	t.Helper()
	runner, err := generator.NewRunner(llm)
	require.NoError(t, err)
	agent, err := generator.NewAgent(runner, variants...)
	require.NoError(t, err)

	opts.Store = st
	srv, err := New(agent, opts)
	require.NoError(t, err)
	return srv, st
}

func articleBody() map[string]any {
	return map[string]any{
		"pipeline": generator.ArticlePipeline,
		"inputs": map[string]string{
			generator.FieldContentType:            "Blog Post",
			generator.FieldBrand:                  "Dasho",
			generator.FieldBrandDescription:       "scheduling app",
			generator.FieldTopic:                  "standups",
			generator.FieldWritingStyle:           "friendly",
			generator.FieldTargetAudience:         "managers",
			generator.FieldAdditionalInstructions: "",
		},
	}
}

func do(t *testing.T, h http.Handler, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) sessionResp {
	t.Helper()
	var resp sessionResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestSessionLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, false)
	h := srv.Routes()

	rec := do(t, h, http.MethodPost, "/api/sessions", articleBody())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decodeSession(t, rec)
	require.NotEmpty(t, created.SessionID)
	require.NotNil(t, created.Result)
	assert.Equal(t, "Dasho", created.Result.Title)
	assert.Empty(t, created.History)

	critique, ok := created.Result.Section(generator.FieldCritique)
	require.True(t, ok)
	assert.Equal(t, []string{"point one", "point two"}, critique.Items)

	path := "/api/sessions/" + created.SessionID
	rec = do(t, h, http.MethodPost, path+"/feedback", map[string]string{"feedback": "make it shorter"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, h, http.MethodPost, path+"/feedback", map[string]string{"feedback": "add a title"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decodeSession(t, do(t, h, http.MethodGet, path, nil))
	require.Len(t, got.History, 2)
	assert.Equal(t, "make it shorter", got.History[0].Feedback)
	assert.Equal(t, "add a title", got.History[1].Feedback)
	assert.Equal(t, "revised draft", got.History[0].Output)

	rec = do(t, h, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegenerateKeepsThread(t *testing.T) {
	srv, _ := newTestServer(t, false)
	h := srv.Routes()

	created := decodeSession(t, do(t, h, http.MethodPost, "/api/sessions", articleBody()))
	path := "/api/sessions/" + created.SessionID
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, path+"/feedback", map[string]string{"feedback": "more"}).Code)

	rec := do(t, h, http.MethodPost, path+"/generate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decodeSession(t, rec).History, 1)
}

func TestRequestErrors(t *testing.T) {
	srv, st := newTestServer(t, false)
	h := srv.Routes()

	t.Run("missing inputs", func(t *testing.T) {
		body := map[string]any{"pipeline": generator.ArticlePipeline, "inputs": map[string]string{"brand": "x"}}
		rec := do(t, h, http.MethodPost, "/api/sessions", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), generator.FieldTopic)
	})

	t.Run("unknown pipeline", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/sessions", map[string]any{"pipeline": "poem"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown session", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/sessions/nope/feedback", map[string]string{"feedback": "x"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("empty feedback", func(t *testing.T) {
		created := decodeSession(t, do(t, h, http.MethodPost, "/api/sessions", articleBody()))
		rec := do(t, h, http.MethodPost, "/api/sessions/"+created.SessionID+"/feedback", map[string]string{"feedback": "  "})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("feedback before a run", func(t *testing.T) {
		sess := generator.NewSession("pending", generator.ArticlePipeline, nil)
		require.NoError(t, st.Save(context.Background(), sess))
		rec := do(t, h, http.MethodPost, "/api/sessions/pending/feedback", map[string]string{"feedback": "x"})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("bad export format", func(t *testing.T) {
		created := decodeSession(t, do(t, h, http.MethodPost, "/api/sessions", articleBody()))
		rec := do(t, h, http.MethodGet, "/api/sessions/"+created.SessionID+"/export?format=pdf", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestModelFailureIsBadGateway(t *testing.T) {
	srv, _ := newTestServer(t, true)
	rec := do(t, srv.Routes(), http.MethodPost, "/api/sessions", articleBody())
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "upstream unavailable")
}

func TestEventStream(t *testing.T) {
	srv, _ := newTestServer(t, false)
	body := articleBody()
	body["options"] = map[string]any{"stream": true}

	rec := do(t, srv.Routes(), http.MethodPost, "/api/sessions", body, "Accept", "text/event-stream")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	out := rec.Body.String()
	assert.Equal(t, 4, strings.Count(out, "event: stage_start\n"))
	assert.Equal(t, 4, strings.Count(out, "event: stage_end\n"))
	assert.Contains(t, out, "event: chunk\ndata: {\"stage\":\"analyze_instructions\"")
	assert.Contains(t, out, "event: result\n")
	assert.NotContains(t, out, "event: error")
}

func TestExport(t *testing.T) {
	srv, _ := newTestServer(t, false)
	h := srv.Routes()
	created := decodeSession(t, do(t, h, http.MethodPost, "/api/sessions", articleBody()))
	path := "/api/sessions/" + created.SessionID
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, path+"/feedback", map[string]string{"feedback": "tone down"}).Code)

	rec := do(t, h, http.MethodGet, path+"/export?format=md", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "# Dasho\n"))
	assert.Contains(t, rec.Body.String(), "> Feedback: tone down")

	rec = do(t, h, http.MethodGet, path+"/export?format=html", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "<title>Dasho</title>")
	assert.Contains(t, rec.Body.String(), "<li>point one</li>")
}

func TestPipelinesAndStatic(t *testing.T) {
	srv, _ := newTestServer(t, false)
	h := srv.Routes()

	rec := do(t, h, http.MethodGet, "/api/pipelines", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var catalog struct {
		Pipelines    []pipelineView `json:"pipelines"`
		ContentTypes []string       `json:"content_types"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &catalog))
	require.Len(t, catalog.Pipelines, 2)
	assert.Equal(t, generator.ArticlePipeline, catalog.Pipelines[0].Name)
	assert.Len(t, catalog.Pipelines[0].Stages, 4)
	assert.Equal(t, generator.ContentTypes, catalog.ContentTypes)

	rec = do(t, h, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Draft Generator")

	rec = do(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, false)
	h := srv.Routes()
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/sessions", articleBody()).Code)

	rec := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `draftgen_requests_total{kind="generate",pipeline="article",status="ok"} 1`)
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("s1")
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, k.size())

	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	assert.Equal(t, 2, k.size())
	unlockA()
	unlockB()
	assert.Equal(t, 0, k.size())
}

func TestDeleteWaitsForInFlightFeedback(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	llm := generator.TextCompletionFunc(func(_ context.Context, prompt string, _ generator.CompletionOptions) (string, error) {
		if strings.Contains(prompt, "user feedback") {
			close(entered)
			<-release
			return "revised draft", nil
		}
		return "point one | point two", nil
	})
	srv, _ := newServerWith(t, llm, store.NewMemory(0), Options{})
	h := srv.Routes()

	created := decodeSession(t, do(t, h, http.MethodPost, "/api/sessions", articleBody()))
	path := "/api/sessions/" + created.SessionID

	var wg sync.WaitGroup
	var feedbackCode, deleteCode int
	wg.Add(1)
	go func() {
		defer wg.Done()
		feedbackCode = do(t, h, http.MethodPost, path+"/feedback", map[string]string{"feedback": "shorter"}).Code
	}()
	<-entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		deleteCode = do(t, h, http.MethodDelete, path, nil).Code
	}()
	close(release)
	wg.Wait()

	assert.Equal(t, http.StatusOK, feedbackCode)
	assert.Equal(t, http.StatusNoContent, deleteCode)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, path, nil).Code)
}

// deadlineStore fails saves whose context is already done, like a network store would.
type deadlineStore struct {
	store.Store
}

func (d deadlineStore) Save(ctx context.Context, sess *generator.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.Store.Save(ctx, sess)
}

func TestRunFinishingAtDeadlineIsSaved(t *testing.T) {
	p := generator.MustPipeline(generator.PipelineSpec{
		Name:           "slow",
		ExternalInputs: []string{"x"},
		Stages:         []generator.StageSpec{{Name: "wait", Inputs: []string{"x"}, Output: "y", Template: "{x}"}},
	})
	variant := &generator.Variant{
		Pipeline: p,
		Feedback: generator.MustFeedbackStage(p, generator.StageSpec{
			Name: "fb", Inputs: []string{"y", generator.FeedbackField}, Output: "z", Template: "{y} {user_feedback}",
		}),
	}
	// Answers only after the request deadline has passed.
	llm := generator.TextCompletionFunc(func(ctx context.Context, _ string, _ generator.CompletionOptions) (string, error) {
		<-ctx.Done()
		return "done", nil
	})
	st := deadlineStore{Store: store.NewMemory(0)}
	srv, _ := newServerWith(t, llm, st, Options{RequestTimeout: 20 * time.Millisecond}, variant)
	h := srv.Routes()

	rec := do(t, h, http.MethodPost, "/api/sessions", map[string]any{"pipeline": "slow", "inputs": map[string]string{"x": "1"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	id := decodeSession(t, rec).SessionID
	sess, err := st.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "done", sess.Result.Value("y"))
}
