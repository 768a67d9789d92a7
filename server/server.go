package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"content_draft_generator/export"
	"content_draft_generator/generator"
	"content_draft_generator/logger"
	"content_draft_generator/metrics"
	"content_draft_generator/store"
)

const saveTimeout = 5 * time.Second

//go:embed web
var embeddedStatic embed.FS

// Options 配置 Server；零值字段使用默认值。
type Options struct {
	Store          store.Store
	Metrics        *metrics.Metrics
	Logger         *logger.Logger
	RequestTimeout time.Duration
	MaxConcurrent  int64
	Completion     generator.CompletionOptions
	ReverseThread  bool
}

type Server struct {
	agent    *generator.Agent
	store    store.Store
	metrics  *metrics.Metrics
	log      *logger.Logger
	locks    *keyedMutex
	limiter  *semaphore.Weighted
	timeout  time.Duration
	defaults generator.CompletionOptions
	reverse  bool
	staticFS http.Handler
}

func New(agent *generator.Agent, opts Options) (*Server, error) {
	if agent == nil {
		return nil, errors.New("generator agent required")
	}

	sub, err := fs.Sub(embeddedStatic, "web")
	if err != nil {
		return nil, err
	}

	s := &Server{
		agent:    agent,
		store:    opts.Store,
		metrics:  opts.Metrics,
		log:      opts.Logger,
		locks:    newKeyedMutex(),
		timeout:  opts.RequestTimeout,
		defaults: opts.Completion,
		reverse:  opts.ReverseThread,
		staticFS: http.FileServer(http.FS(sub)),
	}
	if s.store == nil {
		s.store = store.NewMemory(24 * time.Hour)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.log == nil {
		s.log = logger.NewNop()
	}
	if s.timeout <= 0 {
		s.timeout = 3 * time.Minute
	}
	if s.defaults.Model == "" {
		s.defaults = agent.Defaults()
	}
	if opts.MaxConcurrent > 0 {
		s.limiter = semaphore.NewWeighted(opts.MaxConcurrent)
	}
	return s, nil
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/pipelines", s.handlePipelines)
		r.Post("/sessions", s.handleSessionCreate)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleSessionGet)
			r.Delete("/", s.handleSessionDelete)
			r.Post("/generate", s.handleRegenerate)
			r.Post("/feedback", s.handleFeedback)
			r.Get("/export", s.handleExport)
		})
		r.NotFound(http.NotFound)
	})

	r.Handle("/*", s.staticFS)
	return r
}

// --- Handlers ---

type optionsReq struct {
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Stream      *bool    `json:"stream,omitempty"`
}

type sessionCreateReq struct {
	Pipeline string            `json:"pipeline"`
	Inputs   map[string]string `json:"inputs"`
	Options  *optionsReq       `json:"options,omitempty"`
}

type feedbackReq struct {
	Feedback string `json:"feedback"`
}

type resultView struct {
	generator.Presentation
	Summary   string `json:"summary"`
	FinalHTML string `json:"final_html"`
}

type feedbackView struct {
	Feedback  string    `json:"feedback"`
	Output    string    `json:"output"`
	HTML      string    `json:"html"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionResp struct {
	SessionID string            `json:"session_id"`
	Pipeline  string            `json:"pipeline"`
	Inputs    map[string]string `json:"inputs"`
	Result    *resultView       `json:"result,omitempty"`
	History   []feedbackView    `json:"history"`
}

type pipelineView struct {
	Name           string                `json:"name"`
	Description    string                `json:"description"`
	ExternalInputs []string              `json:"external_inputs"`
	Outputs        []string              `json:"outputs"`
	Stages         []generator.StageSpec `json:"stages"`
	Feedback       generator.StageSpec   `json:"feedback"`
}

func (s *Server) handlePipelines(w http.ResponseWriter, _ *http.Request) {
	var out []pipelineView
	for _, v := range s.agent.Variants() {
		out = append(out, pipelineView{
			Name:           v.Pipeline.Name(),
			Description:    v.Pipeline.Description(),
			ExternalInputs: v.Pipeline.ExternalInputs(),
			Outputs:        v.Pipeline.Outputs(),
			Stages:         v.Pipeline.Stages(),
			Feedback:       v.Feedback.Spec(),
		})
	}
	writeJSON(w, map[string]any{
		"pipelines":     out,
		"content_types": generator.ContentTypes,
	})
}

func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	var req sessionCreateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Pipeline == "" {
		req.Pipeline = generator.ArticlePipeline
	}
	if _, ok := s.agent.Variant(req.Pipeline); !ok {
		http.Error(w, "unknown pipeline "+req.Pipeline, http.StatusBadRequest)
		return
	}

	sess := generator.NewSession(uuid.NewString(), req.Pipeline, req.Inputs)
	opts := s.completionOptions(req.Options)
	sess.Options = &opts

	s.run(w, r, sess, "generate", func(ctx context.Context, ro ...generator.RunOption) error {
		_, err := s.agent.Generate(ctx, sess, ro...)
		return err
	})
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, s.view(sess))
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.store.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, err := s.store.Load(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	s.run(w, r, sess, "generate", func(ctx context.Context, ro ...generator.RunOption) error {
		_, err := s.agent.Generate(ctx, sess, ro...)
		return err
	})
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Feedback) == "" {
		http.Error(w, "feedback is required", http.StatusBadRequest)
		return
	}

	id := chi.URLParam(r, "id")
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, err := s.store.Load(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	s.run(w, r, sess, "feedback", func(ctx context.Context, ro ...generator.RunOption) error {
		_, err := s.agent.Revise(ctx, sess, req.Feedback, ro...)
		return err
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if sess.Result == nil {
		writeError(w, generator.ErrNoActiveRun)
		return
	}
	p := generator.Present(sess.Result)
	doc := export.Markdown(p, sess.Thread(s.reverse))

	switch r.URL.Query().Get("format") {
	case "", "md", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(doc))
	case "html":
		body, err := export.HTML(doc)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(export.Document(p.Title, body)))
	default:
		http.Error(w, "format must be md or html", http.StatusBadRequest)
	}
}

// run executes one model-bound action under the concurrency limit and the
// request timeout, saves the session and writes the response. Clients that
// accept text/event-stream get stage progress as server-sent events.
func (s *Server) run(w http.ResponseWriter, r *http.Request, sess *generator.Session, kind string, action func(context.Context, ...generator.RunOption) error) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	if s.limiter != nil {
		if err := s.limiter.Acquire(ctx, 1); err != nil {
			http.Error(w, "server busy", http.StatusServiceUnavailable)
			return
		}
		defer s.limiter.Release(1)
	}
	done := s.metrics.Track()
	defer done()

	log := s.log.With("session_id", sess.ID, "pipeline", sess.Pipeline, "kind", kind)

	var stream *eventStream
	var ro []generator.RunOption
	if wantsEventStream(r) {
		var ok bool
		if stream, ok = newEventStream(w); ok {
			ro = append(ro, stream.runOptions()...)
		}
	}

	err := action(ctx, ro...)
	s.metrics.ObserveRequest(sess.Pipeline, kind, err)
	if err == nil {
		err = s.save(ctx, sess)
	}
	if err != nil {
		log.Warn("request failed", "error", err)
		if stream != nil {
			stream.sendError(err)
			return
		}
		writeError(w, err)
		return
	}
	log.Info("request complete", "feedback_rounds", len(sess.Feedback))

	view := s.view(sess)
	if stream != nil {
		stream.send("result", view)
		return
	}
	writeJSON(w, view)
}

// save outlives the request deadline so a finished run is not dropped.
func (s *Server) save(ctx context.Context, sess *generator.Session) error {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	return s.store.Save(saveCtx, sess)
}

func (s *Server) completionOptions(req *optionsReq) generator.CompletionOptions {
	opts := s.defaults
	if req == nil {
		return opts
	}
	if req.Model != "" {
		opts.Model = req.Model
	}
	if req.Temperature != nil {
		opts.Temperature = *req.Temperature
	}
	if req.MaxTokens > 0 {
		opts.MaxTokens = req.MaxTokens
	}
	if req.Stream != nil {
		opts.Stream = *req.Stream
	}
	return opts
}

func (s *Server) view(sess *generator.Session) sessionResp {
	resp := sessionResp{
		SessionID: sess.ID,
		Pipeline:  sess.Pipeline,
		Inputs:    sess.Inputs,
		History:   []feedbackView{},
	}
	if sess.Result != nil {
		p := generator.Present(sess.Result)
		rv := &resultView{Presentation: p}
		if final, ok := p.Section(generator.FieldFinalOutput); ok {
			rv.Summary = export.Summary(final.Text, 120)
			rv.FinalHTML = s.renderHTML(final.Text)
		}
		resp.Result = rv
	}
	for _, rec := range sess.Thread(s.reverse) {
		resp.History = append(resp.History, feedbackView{
			Feedback:  rec.Feedback,
			Output:    strings.TrimSpace(rec.Output),
			HTML:      s.renderHTML(rec.Output),
			CreatedAt: rec.CreatedAt,
		})
	}
	return resp
}

func (s *Server) renderHTML(md string) string {
	out, err := export.HTML(strings.TrimSpace(md))
	if err != nil {
		s.log.Warn("markdown render failed", "error", err)
		return ""
	}
	return out
}

// --- Helpers ---

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, generator.ErrInputValidation):
		return http.StatusBadRequest
	case errors.Is(err, generator.ErrPrecondition):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, generator.ErrExternalCall):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}
