package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/go-playground/validator/v10"

	"reasongate/internal/analyzers"
	"reasongate/internal/config"
	"reasongate/internal/logging"
	"reasongate/internal/orchestrate"
	"reasongate/internal/reasonerr"
	"reasongate/internal/securefs"
	"reasongate/internal/session"
	"reasongate/internal/tournament"
)

// maxLineBytes bounds a single request line.
const maxLineBytes = 16 << 20

// Deps wires the server to the core.
type Deps struct {
	Config       config.Config
	Orchestrator *orchestrate.Orchestrator
	Scheduler    *tournament.Scheduler
	Manager      *session.Manager
	Reader       *securefs.Reader
	Tracer       *analyzers.Tracer
	Perf         *analyzers.PerfModeler
	Boundary     *analyzers.BoundaryAnalyzer
}

// handler processes one validated tool call.
type handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Server reads one JSON-RPC request per line and writes one response per
// line. Requests are handled concurrently; the output stream is serialized.
type Server struct {
	in    io.Reader
	out   io.Writer
	outMu sync.Mutex

	deps     Deps
	validate *validator.Validate
	tools    map[string]handler
	wg       sync.WaitGroup
}

// NewServer creates a Server bound to the given streams.
func NewServer(in io.Reader, out io.Writer, deps Deps) *Server {
	s := &Server{
		in:       in,
		out:      out,
		deps:     deps,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	s.tools = map[string]handler{
		"escalate_analysis":         s.handleEscalate,
		"trace_execution_path":      s.handleTrace,
		"cross_system_impact":       s.handleCrossSystem,
		"performance_bottleneck":    s.handlePerf,
		"hypothesis_test":           s.handleHypothesisTest,
		"start_conversation":        s.handleStartConversation,
		"continue_conversation":     s.handleContinueConversation,
		"finalize_conversation":     s.handleFinalizeConversation,
		"get_conversation_status":   s.handleStatus,
		"run_hypothesis_tournament": s.handleTournament,
	}
	return s
}

// Serve runs the read loop until the input closes or the context ends.
// In-flight requests are drained before returning.
func (s *Server) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		s.wg.Add(1)
		go func(raw []byte) {
			defer s.wg.Done()
			s.dispatch(ctx, raw)
		}(line)
	}

	s.wg.Wait()
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("request stream error: %w", err)
	}
	return ctx.Err()
}

func (s *Server) dispatch(ctx context.Context, raw []byte) {
	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		s.write(response{JSONRPC: "2.0", Error: &rpcError{Code: codeParseError, Message: "invalid JSON"}})
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		s.write(response{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: codeInvalidRequest, Message: "not a JSON-RPC 2.0 request"}})
		return
	}

	h, ok := s.tools[req.Method]
	if !ok {
		s.write(response{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("unknown tool %q", req.Method)}})
		return
	}

	logging.RPC("-> %s", req.Method)
	result, err := h(ctx, req.Params)
	if err != nil {
		s.write(response{JSONRPC: "2.0", ID: req.ID, Error: s.toRPCError(err)})
		return
	}
	s.write(response{JSONRPC: "2.0", ID: req.ID, Result: result})
}

// write emits exactly one JSON object per line on stdout.
func (s *Server) write(resp response) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	enc := json.NewEncoder(s.out)
	if err := enc.Encode(resp); err != nil {
		logging.Error(logging.CategoryRPC, "failed to write response: %v", err)
	}
}

// decodeAndValidate unmarshals params into v and schema-checks it. A
// violation becomes an invalid-params error with {field_path, message}
// pairs.
func (s *Server) decodeAndValidate(params json.RawMessage, v interface{}) error {
	if len(params) == 0 {
		return &validationError{violations: []FieldViolation{{FieldPath: "params", Message: "missing parameters"}}}
	}
	if err := json.Unmarshal(params, v); err != nil {
		return &validationError{violations: []FieldViolation{{FieldPath: "params", Message: "malformed parameters: " + err.Error()}}}
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			out := make([]FieldViolation, 0, len(verrs))
			for _, fe := range verrs {
				out = append(out, FieldViolation{
					FieldPath: fe.Namespace(),
					Message:   fmt.Sprintf("failed %q constraint", fe.Tag()),
				})
			}
			return &validationError{violations: out}
		}
		return &validationError{violations: []FieldViolation{{FieldPath: "params", Message: err.Error()}}}
	}
	return nil
}

// validationError carries schema violations to the error translator.
type validationError struct {
	violations []FieldViolation
}

func (e *validationError) Error() string {
	return fmt.Sprintf("%d parameter violations", len(e.violations))
}

// toRPCError is the single place internal errors become protocol errors.
// Session and filesystem failures are the caller's fault (invalid request);
// api and unknown failures are ours (internal error).
func (s *Server) toRPCError(err error) *rpcError {
	var verr *validationError
	if errors.As(err, &verr) {
		return &rpcError{Code: codeInvalidParams, Message: "parameter validation failed", Data: verr.violations}
	}

	ce := reasonerr.Classify(err)
	data := errorData{
		Category:    string(ce.Category),
		Code:        string(ce.Code),
		Retryable:   ce.Retryable,
		Suggestions: ce.Suggestions,
	}
	code := codeInternalError
	if ce.Category == reasonerr.CategorySession || ce.Category == reasonerr.CategoryFilesystem {
		code = codeInvalidParams
	}
	return &rpcError{Code: code, Message: ce.Message, Data: data}
}
