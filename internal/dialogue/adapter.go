// Package dialogue drives the multi-turn protocol with the remote reasoning
// service: chat start-up with primed history, continuation with optional
// code excerpts, and finalization into a structured result. It keeps no
// remote state of its own; the chat handle preserves conversational context.
package dialogue

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"reasongate/internal/gemini"
	"reasongate/internal/logging"
	"reasongate/internal/sanitize"
	"reasongate/internal/securefs"
	"reasongate/internal/session"
)

// fileMentionPattern recognizes filename references, optionally with a line
// number, in caller messages (for example "server.go:142").
var fileMentionPattern = regexp.MustCompile(`\b([\w./-]+\.\w+)(?::(\d+))?\b`)

// snippetContextLines is how many lines of context surround a referenced
// line in an appended excerpt.
const snippetContextLines = 3

// Adapter binds the chat factory and the secure reader into the start /
// continue / finalize protocol.
type Adapter struct {
	factory gemini.ChatFactory
	reader  *securefs.Reader
}

// NewAdapter creates an Adapter.
func NewAdapter(factory gemini.ChatFactory, reader *securefs.Reader) *Adapter {
	return &Adapter{factory: factory, reader: reader}
}

// StartResult carries the opening response of a new dialogue.
type StartResult struct {
	Chat      gemini.Chat
	Response  string
	FollowUps []string
}

// Start opens a chat primed with a system-instructions turn and a stock
// acknowledgement, sends the initial analysis request, and extracts up to
// three follow-up questions from the response.
func (a *Adapter) Start(ctx context.Context, reqCtx session.RequestContext, kind, initialQuestion string, files map[string][]byte) (*StartResult, error) {
	history := []gemini.Message{
		{Role: gemini.RoleUser, Text: buildSystemTurn(reqCtx)},
		{Role: gemini.RoleModel, Text: ackTurn},
	}

	chat, err := a.factory.StartChat(ctx, history)
	if err != nil {
		return nil, fmt.Errorf("failed to start dialogue: %w", err)
	}

	response, err := chat.Send(ctx, buildInitialRequest(kind, initialQuestion, files))
	if err != nil {
		return nil, fmt.Errorf("initial analysis request failed: %w", err)
	}

	followUps := ExtractFollowUps(response)
	logging.Dialogue("dialogue started (%s), %d follow-ups extracted", kind, len(followUps))
	return &StartResult{Chat: chat, Response: response, FollowUps: followUps}, nil
}

// ContinueResult carries one continuation round-trip plus the recomputed
// progress gate.
type ContinueResult struct {
	Response    string
	Progress    float64
	Finalizable bool
}

// Continue sends a sanitized caller message. When the message references a
// known filename and includeSnippets is set, a sanitized excerpt around the
// referenced line is appended. Progress is recomputed from the session's
// observable state, never from the remote's self-report.
func (a *Adapter) Continue(ctx context.Context, chat gemini.Chat, reqCtx session.RequestContext, msg string, includeSnippets bool) (*ContinueResult, error) {
	var excerpt string
	if includeSnippets {
		excerpt = a.excerptFor(msg)
	}

	response, err := chat.Send(ctx, buildContinueMessage(msg, excerpt))
	if err != nil {
		return nil, fmt.Errorf("continuation failed: %w", err)
	}

	progress := ComputeProgress(reqCtx)
	return &ContinueResult{
		Response:    response,
		Progress:    progress,
		Finalizable: Finalizable(progress),
	}, nil
}

// excerptFor pulls a small excerpt around the first file reference in msg.
// Read failures just drop the excerpt; the message still goes out.
func (a *Adapter) excerptFor(msg string) string {
	m := fileMentionPattern.FindStringSubmatch(msg)
	if m == nil {
		return ""
	}
	file := m[1]

	data, err := a.reader.Read(file)
	if err != nil {
		logging.Dialogue("skipping excerpt for %s: %v", file, err)
		return ""
	}

	lines := strings.Split(string(data), "\n")
	line := 1
	if m[2] != "" {
		if n, err := strconv.Atoi(m[2]); err == nil && n >= 1 {
			line = n
		}
	}
	if line > len(lines) {
		line = len(lines)
	}

	lo := line - 1 - snippetContextLines
	if lo < 0 {
		lo = 0
	}
	hi := line + snippetContextLines
	if hi > len(lines) {
		hi = len(lines)
	}

	var b strings.Builder
	for i := lo; i < hi; i++ {
		fmt.Fprintf(&b, "%d: %s\n", i+1, lines[i])
	}
	return sanitize.FormatFile(fmt.Sprintf("%s:%d", file, line), b.String())
}

// Finalize sends the synthesis prompt and parses the structured result out
// of the response prose. A response with no balanced JSON object is an
// API_PARSE_ERROR.
func (a *Adapter) Finalize(ctx context.Context, chat gemini.Chat, format SummaryFormat) (*AnalysisResult, error) {
	response, err := chat.Send(ctx, buildSynthesisPrompt(format))
	if err != nil {
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}

	var rr remoteResult
	if err := ParseJSONBlock(response, &rr); err != nil {
		return nil, err
	}
	return mapRemoteResult(rr), nil
}
