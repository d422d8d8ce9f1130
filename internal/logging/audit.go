package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType names an audit event. Each type renders to a fact of the
// same family so the trail can be grepped or loaded as predicates.
type AuditEventType string

const (
	// Session events -> session_event/3
	AuditSessionStart AuditEventType = "session_start"
	AuditSessionEnd   AuditEventType = "session_end"

	// Matching -> concept_match/4, concept_miss/3
	AuditConceptMatch AuditEventType = "concept_match"
	AuditConceptMiss  AuditEventType = "concept_miss"

	// Co-creation -> co_creation/4
	AuditCoCreation AuditEventType = "co_creation"

	// Reflection -> reflection/3
	AuditReflection AuditEventType = "reflection"

	// Embedding failures -> embedding_fallback/3
	AuditEmbeddingFallback AuditEventType = "embedding_fallback"

	// Persistence -> snapshot_op/4
	AuditSnapshotSave AuditEventType = "snapshot_save"
	AuditSnapshotLoad AuditEventType = "snapshot_load"
)

// AuditEvent is one line of the audit trail.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"` // Unix milliseconds
	EventType  AuditEventType         `json:"event"`
	SessionID  string                 `json:"session"`
	Target     string                 `json:"target,omitempty"`
	Success    bool                   `json:"success"`
	DurationMs int64                  `json:"dur_ms,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Message    string                 `json:"msg"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
	Fact       string                 `json:"fact"`
}

// =============================================================================
// AUDIT LOGGER
// =============================================================================

var (
	auditFile *os.File
	auditMu   sync.Mutex
)

// AuditLogger writes session-scoped audit events. The zero value is usable.
type AuditLogger struct {
	sessionID string
}

// InitAudit opens the audit trail. No-op outside debug mode.
func InitAudit() error {
	if !IsDebugMode() || logsDir == "" {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil
	}
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	date := time.Now().Format("2006-01-02")
	path := filepath.Join(logsDir, fmt.Sprintf("%s_audit.log", date))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file
	return nil
}

// CloseAudit closes the audit trail.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// AuditWithSession returns an audit logger stamped with sessionID.
func AuditWithSession(sessionID string) *AuditLogger {
	return &AuditLogger{sessionID: sessionID}
}

// Log writes an event when the trail is open.
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsDebugMode() {
		return
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.SessionID == "" {
		event.SessionID = a.sessionID
	}
	event.Fact = formatFact(event)

	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile != nil {
		auditFile.Write(append(data, '\n'))
	}
}

func formatFact(e AuditEvent) string {
	switch e.EventType {
	case AuditConceptMatch:
		sim, _ := e.Fields["similarity"].(float64)
		return fmt.Sprintf("concept_match(%d, \"%s\", \"%s\", %.4f).", e.Timestamp, e.SessionID, escapeString(e.Target), sim)

	case AuditConceptMiss:
		return fmt.Sprintf("concept_miss(%d, \"%s\", %v).", e.Timestamp, e.SessionID, e.Fields["fallback"] == true)

	case AuditCoCreation:
		n, _ := e.Fields["suggestions"].(int)
		return fmt.Sprintf("co_creation(%d, \"%s\", \"%s\", %d).", e.Timestamp, e.SessionID, escapeString(e.Target), n)

	case AuditReflection:
		return fmt.Sprintf("reflection(%d, \"%s\", \"%s\").", e.Timestamp, e.SessionID, escapeString(e.Target))

	case AuditEmbeddingFallback:
		return fmt.Sprintf("embedding_fallback(%d, \"%s\", \"%s\").", e.Timestamp, e.SessionID, escapeString(e.Error))

	case AuditSnapshotSave, AuditSnapshotLoad:
		return fmt.Sprintf("snapshot_op(%d, /%s, \"%s\", %v).", e.Timestamp, e.EventType, escapeString(e.Target), e.Success)

	default:
		return fmt.Sprintf("session_event(%d, /%s, \"%s\").", e.Timestamp, e.EventType, e.SessionID)
	}
}

// escapeString quotes s for use inside a fact string literal.
func escapeString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/10)

	for _, c := range s {
		switch c {
		case '"':
			b.WriteString("\\\"")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// =============================================================================
// CONVENIENCE METHODS
// =============================================================================

// SessionStart records the start of a session.
func (a *AuditLogger) SessionStart(engine string) {
	a.Log(AuditEvent{
		EventType: AuditSessionStart,
		Target:    engine,
		Success:   true,
		Message:   fmt.Sprintf("Session started: %s (engine=%s)", a.sessionID, engine),
	})
}

// SessionEnd records the end of a session.
func (a *AuditLogger) SessionEnd(inputs int, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  AuditSessionEnd,
		Success:    true,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"inputs": inputs},
		Message:    fmt.Sprintf("Session ended: %s (%d inputs, %dms)", a.sessionID, inputs, durationMs),
	})
}

// ConceptMatch records a matched input.
func (a *AuditLogger) ConceptMatch(concept string, similarity float64, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  AuditConceptMatch,
		Target:     concept,
		Success:    true,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"similarity": similarity},
		Message:    fmt.Sprintf("Matched %s (similarity=%.4f)", concept, similarity),
	})
}

// ConceptMiss records an input that matched nothing.
func (a *AuditLogger) ConceptMiss(fallback bool, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  AuditConceptMiss,
		Success:    true,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"fallback": fallback},
		Message:    "No concept matched",
	})
}

// CoCreation records a co-creation round.
func (a *AuditLogger) CoCreation(primary string, suggestions int, err error) {
	ev := AuditEvent{
		EventType: AuditCoCreation,
		Target:    primary,
		Success:   err == nil,
		Fields:    map[string]interface{}{"suggestions": suggestions},
		Message:   fmt.Sprintf("Co-creation led by %s: %d suggestions", primary, suggestions),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	a.Log(ev)
}

// Reflection records a proactive prompt.
func (a *AuditLogger) Reflection(prompt string) {
	a.Log(AuditEvent{
		EventType: AuditReflection,
		Target:    prompt,
		Success:   true,
		Message:   "Reflection: " + prompt,
	})
}

// EmbeddingFallback records an embedding failure.
func (a *AuditLogger) EmbeddingFallback(engine string, err error) {
	ev := AuditEvent{
		EventType: AuditEmbeddingFallback,
		Target:    engine,
		Success:   false,
		Message:   "Embedding failed on " + engine,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	a.Log(ev)
}

// Snapshot records a snapshot save or load.
func (a *AuditLogger) Snapshot(op AuditEventType, path string, err error) {
	ev := AuditEvent{
		EventType: op,
		Target:    path,
		Success:   err == nil,
		Message:   fmt.Sprintf("%s %s", op, path),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	a.Log(ev)
}
