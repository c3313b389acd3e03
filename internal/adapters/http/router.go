package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/codesearch/internal/core/domain"
	"github.com/kirillkom/codesearch/internal/core/ports"
	"github.com/kirillkom/codesearch/internal/core/usecase"
)

const serviceName = "codesearch-api"

type RepositoryResolver interface {
	Resolve(name string) (string, error)
}

// SearchRecorder receives one observation per finished synchronous search.
type SearchRecorder interface {
	RecordSearch(service string, stats domain.SearchStats, answer domain.FinalAnswer)
}

type Options struct {
	RateLimitRPS      float64
	RateLimitBurst    int
	MaxInFlight       int
	BackpressureWait  time.Duration
	MaxRequestBytes   int64
	MetricsHandler    http.Handler
	RequestMiddleware func(string, http.Handler) http.Handler
	Recorder          SearchRecorder
}

type Router struct {
	opts      Options
	searcher  ports.CodeSearcher
	submitter ports.SearchJobSubmitter
	jobs      ports.SearchJobReader
	resolver  RepositoryResolver
}

func NewRouter(
	opts Options,
	searcher ports.CodeSearcher,
	submitter ports.SearchJobSubmitter,
	jobs ports.SearchJobReader,
	resolver RepositoryResolver,
) *Router {
	if opts.MaxRequestBytes <= 0 {
		opts.MaxRequestBytes = 1 << 20
	}
	return &Router{
		opts:      opts,
		searcher:  searcher,
		submitter: submitter,
		jobs:      jobs,
		resolver:  resolver,
	}
}

func (rt *Router) Handler() http.Handler {
	validator := mustLoadValidator()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", rt.opts.MetricsHandler)
	}

	apiMux := http.NewServeMux()
	apiMux.Handle("POST /v1/search", validator.wrap(http.MethodPost, "/v1/search", rt.search))
	apiMux.Handle("POST /v1/estimate", validator.wrap(http.MethodPost, "/v1/estimate", rt.estimate))
	apiMux.Handle("POST /v1/search/jobs", validator.wrap(http.MethodPost, "/v1/search/jobs", rt.submitJob))
	apiMux.Handle("GET /v1/search/jobs/{id}", validator.wrap(http.MethodGet, "/v1/search/jobs/{id}", rt.getJob))
	var api http.Handler = apiMux
	if rt.opts.MaxInFlight > 0 {
		api = backpressureMiddleware(api, rt.opts.MaxInFlight, rt.opts.BackpressureWait)
	}
	if rt.opts.RateLimitRPS > 0 {
		api = rateLimitMiddleware(api, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	}
	mux.Handle("/v1/", api)

	var handler http.Handler = mux
	if rt.opts.RequestMiddleware != nil {
		handler = rt.opts.RequestMiddleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type searchRequest struct {
	Repository  string `json:"repository"`
	Question    string `json:"question"`
	Model       string `json:"model"`
	Concurrency int    `json:"concurrency"`
	MaxTokens   int    `json:"max_tokens"`
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !rt.decode(w, r, &req) {
		return
	}
	root, err := rt.resolver.Resolve(req.Repository)
	if err != nil {
		rt.fail(w, r, err)
		return
	}

	report, err := rt.searcher.Search(r.Context(), domain.SearchRequest{
		Root:        root,
		Question:    req.Question,
		Model:       req.Model,
		Concurrency: req.Concurrency,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	if rt.opts.Recorder != nil {
		rt.opts.Recorder.RecordSearch(serviceName, report.Stats, report.Answer)
	}
	writeJSON(w, http.StatusOK, usecase.Summarize(report))
}

type estimateRequest struct {
	Repository string `json:"repository"`
	MaxTokens  int    `json:"max_tokens"`
}

func (rt *Router) estimate(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if !rt.decode(w, r, &req) {
		return
	}
	root, err := rt.resolver.Resolve(req.Repository)
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	estimate, err := rt.searcher.Estimate(r.Context(), root, req.MaxTokens)
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, estimate)
}

type jobRequest struct {
	Repository string `json:"repository"`
	Question   string `json:"question"`
	Model      string `json:"model"`
}

func (rt *Router) submitJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if !rt.decode(w, r, &req) {
		return
	}
	job, err := rt.submitter.Submit(r.Context(), req.Repository, req.Question, req.Model)
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (rt *Router) getJob(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "job id is required")
		return
	}
	job, err := rt.jobs.GetByID(r.Context(), id)
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (rt *Router) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, rt.opts.MaxRequestBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func (rt *Router) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		loggerFrom(r.Context()).Error("request_failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
