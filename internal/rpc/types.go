// Package rpc is the request boundary: a line-delimited JSON-RPC 2.0 server
// over stdin/stdout. One JSON object per line; stderr carries diagnostics
// only, stdout carries responses only. Every inbound parameter object is
// schema-checked before processing, and all errors surfacing here are
// translated from the internal taxonomy into protocol errors.
package rpc

import (
	"encoding/json"
)

// request is one inbound JSON-RPC 2.0 call.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// response is one outbound JSON-RPC 2.0 reply.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError is the protocol error shape.
type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// JSON-RPC 2.0 error codes used by the boundary.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// FieldViolation is one schema-validation failure.
type FieldViolation struct {
	FieldPath string `json:"field_path"`
	Message   string `json:"message"`
}

// errorData is attached to taxonomy-classified protocol errors.
type errorData struct {
	Category    string   `json:"category"`
	Code        string   `json:"code"`
	Retryable   bool     `json:"retryable"`
	Suggestions []string `json:"suggested_next_steps,omitempty"`
}

// ClaudeContext is the caller-assistant context shared by several tools.
type ClaudeContext struct {
	AttemptedApproaches []string          `json:"attempted_approaches" validate:"required"`
	PartialFindings     []json.RawMessage `json:"partial_findings"`
	StuckDescription    string            `json:"stuck_description" validate:"required"`
	CodeScope           CodeScope         `json:"code_scope" validate:"required"`
}

// CodeScope names the files and optional entry points under analysis.
type CodeScope struct {
	Files        []string       `json:"files" validate:"required,min=1,dive,required"`
	EntryPoints  []CodeLocation `json:"entry_points,omitempty" validate:"omitempty,dive"`
	ServiceNames []string       `json:"service_names,omitempty"`
}

// CodeLocation is a file/line reference in tool parameters.
type CodeLocation struct {
	File         string `json:"file" validate:"required"`
	Line         int    `json:"line" validate:"gte=0"`
	FunctionName string `json:"function_name,omitempty"`
}

// EscalateParams backs escalate_analysis.
type EscalateParams struct {
	ClaudeContext     ClaudeContext `json:"claude_context" validate:"required"`
	AnalysisType      string        `json:"analysis_type" validate:"required,oneof=execution_trace cross_system performance hypothesis_test"`
	DepthLevel        int           `json:"depth_level" validate:"gte=1,lte=5"`
	TimeBudgetSeconds int           `json:"time_budget_seconds" validate:"gte=0"`
}

// TraceParams backs trace_execution_path.
type TraceParams struct {
	EntryPoint      CodeLocation `json:"entry_point" validate:"required"`
	MaxDepth        int          `json:"max_depth" validate:"gte=0"`
	IncludeDataFlow *bool        `json:"include_data_flow"`
}

// ChangeScope names the changed surface for cross_system_impact.
type ChangeScope struct {
	Files        []string `json:"files" validate:"required,min=1"`
	ServiceNames []string `json:"service_names,omitempty"`
}

// CrossSystemParams backs cross_system_impact.
type CrossSystemParams struct {
	ChangeScope ChangeScope `json:"change_scope" validate:"required"`
	ImpactTypes []string    `json:"impact_types,omitempty" validate:"omitempty,dive,oneof=breaking performance behavioral"`
}

// CodePath names the suspect path for performance_bottleneck.
type CodePath struct {
	EntryPoint      CodeLocation `json:"entry_point" validate:"required"`
	SuspectedIssues []string     `json:"suspected_issues,omitempty"`
}

// PerfParams backs performance_bottleneck.
type PerfParams struct {
	CodePath     CodePath `json:"code_path" validate:"required"`
	ProfileDepth int      `json:"profile_depth" validate:"gte=0,lte=5"`
}

// HypothesisTestParams backs hypothesis_test.
type HypothesisTestParams struct {
	Hypothesis   string    `json:"hypothesis" validate:"required"`
	CodeScope    CodeScope `json:"code_scope" validate:"required"`
	TestApproach string    `json:"test_approach" validate:"required"`
}

// StartConversationParams backs start_conversation.
type StartConversationParams struct {
	ClaudeContext   ClaudeContext `json:"claude_context" validate:"required"`
	AnalysisType    string        `json:"analysis_type" validate:"required,oneof=execution_trace cross_system performance hypothesis_test"`
	InitialQuestion string        `json:"initial_question,omitempty"`
}

// ContinueParams backs continue_conversation.
type ContinueParams struct {
	SessionID           string `json:"session_id" validate:"required"`
	Message             string `json:"message" validate:"required"`
	IncludeCodeSnippets bool   `json:"include_code_snippets,omitempty"`
}

// FinalizeParams backs finalize_conversation.
type FinalizeParams struct {
	SessionID     string `json:"session_id" validate:"required"`
	SummaryFormat string `json:"summary_format,omitempty" validate:"omitempty,oneof=detailed concise actionable"`
}

// StatusParams backs get_conversation_status.
type StatusParams struct {
	SessionID string `json:"session_id" validate:"required"`
}

// TournamentConfigParams bounds the tournament shape.
type TournamentConfigParams struct {
	MaxHypotheses    int `json:"max_hypotheses" validate:"omitempty,gte=2,lte=20"`
	MaxRounds        int `json:"max_rounds" validate:"omitempty,gte=1,lte=5"`
	ParallelSessions int `json:"parallel_sessions" validate:"omitempty,gte=1,lte=10"`
}

// TournamentParams backs run_hypothesis_tournament.
type TournamentParams struct {
	ClaudeContext    ClaudeContext           `json:"claude_context" validate:"required"`
	Issue            string                  `json:"issue" validate:"required"`
	TournamentConfig *TournamentConfigParams `json:"tournament_config,omitempty"`
}
