package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reasongate/internal/analyzers"
	"reasongate/internal/config"
	"reasongate/internal/dialogue"
	"reasongate/internal/gemini"
	"reasongate/internal/orchestrate"
	"reasongate/internal/reasonerr"
	"reasongate/internal/securefs"
	"reasongate/internal/session"
	"reasongate/internal/tournament"
)

type stubChat struct {
	script []string
}

func (c *stubChat) Send(ctx context.Context, text string) (string, error) {
	if len(c.script) == 0 {
		return "ok", nil
	}
	resp := c.script[0]
	c.script = c.script[1:]
	return resp, nil
}

type stubFactory struct {
	chat *stubChat
}

func (f *stubFactory) StartChat(ctx context.Context, history []gemini.Message) (gemini.Chat, error) {
	return f.chat, nil
}

// runServer feeds input lines through a fully wired server and returns the
// responses keyed by request id.
func runServer(t *testing.T, chat *stubChat, root string, input string) map[string]response {
	t.Helper()

	reader, err := securefs.NewReader(root)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(reader.Close)

	mgr := session.NewManager(session.DefaultManagerConfig())
	t.Cleanup(mgr.Destroy)

	factory := &stubFactory{chat: chat}
	adapter := dialogue.NewAdapter(factory, reader)

	var out bytes.Buffer
	srv := NewServer(strings.NewReader(input), &out, Deps{
		Config:       config.DefaultConfig(),
		Orchestrator: orchestrate.New(mgr, adapter, reader),
		Scheduler:    tournament.NewScheduler(mgr, factory, adapter, reader),
		Manager:      mgr,
		Reader:       reader,
		Tracer:       analyzers.NewTracer(reader),
		Perf:         analyzers.NewPerfModeler(reader),
		Boundary:     analyzers.NewBoundaryAnalyzer(reader),
	})
	if err := srv.Serve(context.Background()); err != nil {
		t.Fatalf("Serve returned %v", err)
	}

	responses := make(map[string]response)
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var resp response
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			t.Fatalf("stdout line is not JSON: %q", line)
		}
		responses[string(resp.ID)] = resp
	}
	return responses
}

func TestServeInvalidJSON(t *testing.T) {
	responses := runServer(t, &stubChat{}, t.TempDir(), "this is not json\n")
	for _, resp := range responses {
		if resp.Error == nil || resp.Error.Code != codeParseError {
			t.Fatalf("expected parse error, got %+v", resp)
		}
		return
	}
	t.Fatal("no response written for malformed input")
}

func TestServeUnknownMethod(t *testing.T) {
	responses := runServer(t, &stubChat{}, t.TempDir(),
		`{"jsonrpc":"2.0","id":1,"method":"no_such_tool","params":{}}`+"\n")
	resp := responses["1"]
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method-not-found, got %+v", resp)
	}
}

func TestServeNotJSONRPC(t *testing.T) {
	responses := runServer(t, &stubChat{}, t.TempDir(),
		`{"id":1,"method":"get_conversation_status"}`+"\n")
	resp := responses["1"]
	if resp.Error == nil || resp.Error.Code != codeInvalidRequest {
		t.Fatalf("expected invalid-request, got %+v", resp)
	}
}

func TestServeValidationViolations(t *testing.T) {
	// analysis_type outside the enum and an empty code scope.
	req := `{"jsonrpc":"2.0","id":7,"method":"escalate_analysis","params":{` +
		`"claude_context":{"attempted_approaches":[],"stuck_description":"","code_scope":{"files":[]}},` +
		`"analysis_type":"psychic","depth_level":3}}`
	responses := runServer(t, &stubChat{}, t.TempDir(), req+"\n")

	resp := responses["7"]
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid-params, got %+v", resp)
	}

	raw, _ := json.Marshal(resp.Error.Data)
	var violations []FieldViolation
	if err := json.Unmarshal(raw, &violations); err != nil {
		t.Fatalf("error data is not a violation list: %s", raw)
	}
	if len(violations) == 0 {
		t.Fatal("no field violations reported")
	}
	for _, v := range violations {
		if v.FieldPath == "" || v.Message == "" {
			t.Errorf("violation missing field path or message: %+v", v)
		}
	}
}

func TestServeSessionNotFound(t *testing.T) {
	responses := runServer(t, &stubChat{}, t.TempDir(),
		`{"jsonrpc":"2.0","id":3,"method":"get_conversation_status","params":{"session_id":"missing"}}`+"\n")

	resp := responses["3"]
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid-params for a missing session, got %+v", resp)
	}

	raw, _ := json.Marshal(resp.Error.Data)
	var data errorData
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("error data shape: %s", raw)
	}
	if data.Code != string(reasonerr.CodeSessionNotFound) {
		t.Errorf("error code = %s, want SESSION_NOT_FOUND", data.Code)
	}
	if data.Category != "session" {
		t.Errorf("category = %s, want session", data.Category)
	}
	if len(data.Suggestions) == 0 {
		t.Error("no suggested next steps attached")
	}
}

func TestServeStartConversation(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "svc.go"), []byte("package svc"), 0o644); err != nil {
		t.Fatal(err)
	}

	chat := &stubChat{script: []string{"Looked at svc.go. What calls the handler?"}}
	req := `{"jsonrpc":"2.0","id":9,"method":"start_conversation","params":{` +
		`"claude_context":{"attempted_approaches":["reading the code"],"stuck_description":"handler panics","code_scope":{"files":["svc.go"]}},` +
		`"analysis_type":"execution_trace"}}`
	responses := runServer(t, chat, root, req+"\n")

	resp := responses["9"]
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}

	raw, _ := json.Marshal(resp.Result)
	var out orchestrate.StartOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("result shape: %s", raw)
	}
	if out.SessionID == "" {
		t.Error("no session id in result")
	}
	if out.Status != session.StatusActive {
		t.Errorf("status = %s, want active", out.Status)
	}
	if len(out.SuggestedFollowUps) == 0 {
		t.Error("follow-ups missing from the opening response")
	}
}

func TestServeConcurrentRequestsAllAnswered(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 8; i++ {
		b.WriteString(`{"jsonrpc":"2.0","id":`)
		b.WriteString(string(rune('0' + i)))
		b.WriteString(`,"method":"get_conversation_status","params":{"session_id":"x"}}` + "\n")
	}
	responses := runServer(t, &stubChat{}, t.TempDir(), b.String())
	if len(responses) != 8 {
		t.Fatalf("got %d responses for 8 requests", len(responses))
	}
}

func TestToRPCErrorMapping(t *testing.T) {
	srv := &Server{}

	cases := []struct {
		err  error
		code int
	}{
		{&validationError{violations: []FieldViolation{{FieldPath: "x", Message: "m"}}}, codeInvalidParams},
		{reasonerr.New(reasonerr.CodeSessionLocked, "busy"), codeInvalidParams},
		{reasonerr.New(reasonerr.CodePathTraversal, "escape"), codeInvalidParams},
		{reasonerr.New(reasonerr.CodeRateLimit, "slow down"), codeInternalError},
		{reasonerr.New(reasonerr.CodeAPIParse, "garbage"), codeInternalError},
		{context.DeadlineExceeded, codeInternalError},
	}
	for _, c := range cases {
		if got := srv.toRPCError(c.err); got.Code != c.code {
			t.Errorf("toRPCError(%v).Code = %d, want %d", c.err, got.Code, c.code)
		}
	}

	// Retryability must survive the translation.
	rpcErr := srv.toRPCError(reasonerr.New(reasonerr.CodeSessionLocked, "busy"))
	data, ok := rpcErr.Data.(errorData)
	if !ok {
		t.Fatalf("error data type %T", rpcErr.Data)
	}
	if !data.Retryable {
		t.Error("SESSION_LOCKED lost its retryable flag")
	}
}

func TestDecodeAndValidateMalformedParams(t *testing.T) {
	srv := NewServer(strings.NewReader(""), &bytes.Buffer{}, Deps{})
	var p StatusParams

	if err := srv.decodeAndValidate(nil, &p); err == nil {
		t.Error("missing params accepted")
	}
	if err := srv.decodeAndValidate(json.RawMessage(`{"session_id":42}`), &p); err == nil {
		t.Error("type-mismatched params accepted")
	}
	if err := srv.decodeAndValidate(json.RawMessage(`{"session_id":"s1"}`), &p); err != nil {
		t.Errorf("valid params rejected: %v", err)
	}
}
