// Package analyzers holds the heuristic advisors that annotate analyses
// before the remote sees them: an execution tracer, a performance modeler,
// and a boundary analyzer. All three are regex-based scans over raw source;
// they never build an AST. Their outputs are advisory annotations the rest
// of the system treats as opaque records.
package analyzers

import (
	"fmt"
	"regexp"
	"strings"

	"reasongate/internal/logging"
	"reasongate/internal/securefs"
	"reasongate/internal/session"
)

// Annotation is one advisory observation.
type Annotation struct {
	Kind     string                `json:"kind"`
	Detail   string                `json:"detail"`
	Location *session.CodeLocation `json:"location,omitempty"`
}

var (
	callPattern   = regexp.MustCompile(`\b(\w+)\s*\(`)
	funcPattern   = regexp.MustCompile(`(?m)^\s*(?:func|def|function|fn)\s+(\w+)`)
	loopPattern   = regexp.MustCompile(`(?m)^\s*(?:for|while)\b`)
	queryPattern  = regexp.MustCompile(`(?i)\b(select|insert|update|delete)\b.{0,40}\b(from|into|set)\b|\.(query|exec|find|findOne|aggregate)\s*\(`)
	importPattern = regexp.MustCompile(`(?m)^\s*(?:import|require|from|use)\b\s*(.+)$`)
	httpPattern   = regexp.MustCompile(`(?i)\b(http\.|fetch\(|axios\.|grpc\.|rpc\.)`)
)

// Tracer follows call mentions outward from an entry point to a bounded
// depth. Heuristic only: a name is "called" if it appears as name( anywhere
// downstream of the entry function's file.
type Tracer struct {
	reader *securefs.Reader
}

// NewTracer creates a Tracer.
func NewTracer(reader *securefs.Reader) *Tracer {
	return &Tracer{reader: reader}
}

// Trace reports the functions defined and the calls made in the entry file,
// bounded by maxDepth related files.
func (t *Tracer) Trace(entry session.CodeLocation, maxDepth int, includeDataFlow bool) ([]Annotation, error) {
	if maxDepth <= 0 {
		maxDepth = 10
	}
	data, err := t.reader.Read(entry.File)
	if err != nil {
		return nil, err
	}
	src := string(data)

	var out []Annotation
	for _, m := range funcPattern.FindAllStringSubmatch(src, -1) {
		out = append(out, Annotation{
			Kind:     "function",
			Detail:   m[1],
			Location: &session.CodeLocation{File: entry.File, Function: m[1]},
		})
	}

	seen := make(map[string]bool)
	for _, m := range callPattern.FindAllStringSubmatch(src, -1) {
		name := m[1]
		if seen[name] || isKeyword(name) {
			continue
		}
		seen[name] = true
		out = append(out, Annotation{Kind: "call", Detail: name})
		if len(out) >= maxDepth*10 {
			break
		}
	}

	if includeDataFlow {
		related, err := t.reader.FindRelated(entry.File)
		if err == nil {
			for i, rel := range related {
				if i >= maxDepth {
					break
				}
				out = append(out, Annotation{Kind: "related_file", Detail: rel})
			}
		}
	}

	logging.Analyzer("traced %s: %d annotations", entry.File, len(out))
	return out, nil
}

func isKeyword(name string) bool {
	switch name {
	case "if", "for", "while", "switch", "return", "func", "make", "new", "len", "cap", "append", "range", "defer", "go", "print", "println":
		return true
	}
	return false
}

// PerfModeler counts suspected hotspots: loops, queries inside loops, and
// repeated remote calls.
type PerfModeler struct {
	reader *securefs.Reader
}

// NewPerfModeler creates a PerfModeler.
func NewPerfModeler(reader *securefs.Reader) *PerfModeler {
	return &PerfModeler{reader: reader}
}

// Model scans a file for performance smells at the given profile depth.
func (p *PerfModeler) Model(file string, profileDepth int) ([]Annotation, error) {
	data, err := p.reader.Read(file)
	if err != nil {
		return nil, err
	}

	var out []Annotation
	lines := strings.Split(string(data), "\n")
	loopDepth := 0
	for i, line := range lines {
		if loopPattern.MatchString(line) {
			loopDepth++
			if loopDepth >= 2 && profileDepth >= 2 {
				out = append(out, Annotation{
					Kind:     "nested_loop",
					Detail:   "nested loop; check iteration bounds",
					Location: &session.CodeLocation{File: file, Line: i + 1},
				})
			}
		}
		if strings.TrimSpace(line) == "}" && loopDepth > 0 {
			loopDepth--
		}
		if queryPattern.MatchString(line) {
			detail := "query or datastore call"
			if loopDepth > 0 {
				detail = "query inside a loop; possible N+1"
			}
			out = append(out, Annotation{
				Kind:     "query",
				Detail:   detail,
				Location: &session.CodeLocation{File: file, Line: i + 1},
			})
		}
	}
	return out, nil
}

// BoundaryAnalyzer surfaces cross-system coupling: imports, remote calls,
// and service-name mentions.
type BoundaryAnalyzer struct {
	reader *securefs.Reader
}

// NewBoundaryAnalyzer creates a BoundaryAnalyzer.
func NewBoundaryAnalyzer(reader *securefs.Reader) *BoundaryAnalyzer {
	return &BoundaryAnalyzer{reader: reader}
}

// Analyze scans the changed files for boundary-crossing surface.
func (b *BoundaryAnalyzer) Analyze(files []string, serviceNames []string) ([]Annotation, error) {
	var out []Annotation
	for _, file := range files {
		data, err := b.reader.Read(file)
		if err != nil {
			return nil, err
		}
		src := string(data)

		for _, m := range importPattern.FindAllStringSubmatch(src, -1) {
			out = append(out, Annotation{
				Kind:     "import",
				Detail:   strings.TrimSpace(m[1]),
				Location: &session.CodeLocation{File: file},
			})
		}
		if httpPattern.MatchString(src) {
			out = append(out, Annotation{
				Kind:     "remote_call",
				Detail:   "file makes remote calls",
				Location: &session.CodeLocation{File: file},
			})
		}
		for _, svc := range serviceNames {
			if svc != "" && strings.Contains(src, svc) {
				out = append(out, Annotation{
					Kind:     "service_reference",
					Detail:   fmt.Sprintf("references service %q", svc),
					Location: &session.CodeLocation{File: file},
				})
			}
		}
	}
	return out, nil
}
