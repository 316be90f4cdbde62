// Package httpapi serves the verifier as a JSON HTTP API.
//
//	GET  /healthz
//	POST /v1/cid              body: any JSON document
//	POST /v1/bundles:verify   body: a bundle, or a model.VerifyBundleRequest
//	POST /v1/chains:validate  body: a receipt array or a bundle
//
// Verification failures are 200 responses with valid/allVerified false.
// Malformed input gets a model.CodedError body with a 4xx status.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"signet.dev/verify/bundle"
	"signet.dev/verify/model"
)

const defaultMaxBodyBytes = 8 << 20

type Options struct {
	MaxBodyBytes int64
	Logger       *slog.Logger

	// Defaults for chain validation. The check_receipt_hash and hydrate query
	// parameters override them per request.
	CheckReceiptHash bool
	Hydrate          bool
}

type server struct {
	svc  *model.Service
	opts Options
	log  *slog.Logger
}

// New returns the API handler for svc.
func New(svc *model.Service, opts Options) http.Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &server{svc: svc, opts: opts, log: logger}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/cid", s.handleCID).Methods(http.MethodPost)
	r.HandleFunc("/v1/bundles:verify", s.handleVerifyBundle).Methods(http.MethodPost)
	r.HandleFunc("/v1/chains:validate", s.handleValidateChain).Methods(http.MethodPost)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, model.NewError(model.ErrNotFound, "no route for "+r.URL.Path))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, model.NewError(model.ErrInvalidRequest, r.Method+" not allowed on "+r.URL.Path))
	})
	r.Use(s.requestLogging)
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"keys":   s.svc.Keys.Len(),
		"store":  s.svc.Store != nil,
	})
}

func (s *server) handleCID(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	resp, err := s.svc.ComputeCID(r.Context(), body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleVerifyBundle(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	req, err := decodeVerifyRequest(body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	for _, h := range []string{bundle.HeaderResponseCID, bundle.HeaderSignature, bundle.HeaderKeyID} {
		if v := r.Header.Get(h); v != "" {
			req.Headers[h] = v
		}
	}
	q := r.URL.Query()
	req.StrictKey = req.StrictKey || queryBool(q.Get("strict_key"))
	req.IncludeChain = req.IncludeChain || queryBool(q.Get("include_chain"))
	req.ResponseCIDFallback = req.ResponseCIDFallback || queryBool(q.Get("response_cid_fallback"))

	verdict, err := s.svc.VerifyBundle(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("bundle verified",
		"trace_id", verdict.TraceID,
		"valid", verdict.Valid,
		"failed_step", verdict.FailedStep,
		"kid", verdict.KeyID,
	)
	writeJSON(w, http.StatusOK, verdict)
}

func (s *server) handleValidateChain(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	rep, err := s.svc.ValidateChain(r.Context(), model.ValidateChainRequest{
		Document:         body,
		CheckReceiptHash: queryBoolOr(q.Get("check_receipt_hash"), s.opts.CheckReceiptHash),
		Hydrate:          queryBoolOr(q.Get("hydrate"), s.opts.Hydrate),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("chain validated", "trace_id", rep.TraceID, "hops", len(rep.Hops), "all_verified", rep.AllVerified)
	writeJSON(w, http.StatusOK, rep)
}

// decodeVerifyRequest accepts a bare bundle or an envelope with a "bundle"
// member.
func decodeVerifyRequest(body []byte) (model.VerifyBundleRequest, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return model.VerifyBundleRequest{}, model.NewError(model.ErrInvalidRequest, "body must be a JSON object: "+err.Error())
	}
	if _, ok := probe["bundle"]; !ok {
		return model.VerifyBundleRequest{Bundle: body}, nil
	}
	var req model.VerifyBundleRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return model.VerifyBundleRequest{}, model.NewError(model.ErrInvalidRequest, "invalid request envelope: "+err.Error())
	}
	return req, nil
}

func (s *server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	defer r.Body.Close()
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, model.NewError(model.ErrInvalidRequest, "request body too large"))
			return nil, false
		}
		writeJSON(w, http.StatusBadRequest, model.NewError(model.ErrInvalidRequest, err.Error()))
		return nil, false
	}
	return b, true
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	ce := model.MapError(err)
	code := statusFor(ce.Code)
	if code >= 500 {
		s.log.Error("request failed", "code", ce.Code, "err", ce.Message)
	}
	writeJSON(w, code, ce)
}

func statusFor(code model.ErrorCode) int {
	switch code {
	case model.ErrInvalidRequest, model.ErrInvalidCID, model.ErrCanonicalization,
		model.ErrEncoding, model.ErrKeyNotFound:
		return http.StatusBadRequest
	case model.ErrEmptyChain:
		return http.StatusUnprocessableEntity
	case model.ErrNotFound:
		return http.StatusNotFound
	case model.ErrMissingStore:
		return http.StatusConflict
	case model.ErrStorage, model.ErrCIDMismatch:
		return http.StatusBadGateway
	case model.ErrCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func queryBool(v string) bool {
	return queryBoolOr(v, false)
}

// queryBoolOr parses v, or returns def when v is empty or not a boolean.
func queryBoolOr(v string, def bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		level := slog.LevelDebug
		if rec.status >= 500 {
			level = slog.LevelError
		} else if rec.status >= 400 {
			level = slog.LevelWarn
		}
		s.log.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
