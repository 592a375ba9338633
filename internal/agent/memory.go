package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	logx "calagent/pkg/logx"

	"calagent/internal/parser"
)

const (
	memorySchemaVersion = 1

	maxHistory    = 100
	successWindow = 20
)

// DecisionRecord is one remembered scheduling decision.
type DecisionRecord struct {
	Time            time.Time `json:"time"`
	Title           string    `json:"title"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
	Confidence      float64   `json:"confidence"`
	Success         bool      `json:"success"`
	CalendarStress  float64   `json:"calendar_stress"`
}

type memoryFile struct {
	SchemaVersion     int              `json:"schema_version"`
	UserID            string           `json:"user_id"`
	LastInteraction   time.Time        `json:"last_interaction"`
	TotalInteractions int              `json:"total_interactions"`
	FieldCounters     map[string]int   `json:"field_counters"`
	SuccessRate       float64          `json:"success_rate"`
	History           []DecisionRecord `json:"history"`
}

// Memory is the session's persisted learning state: per-field extraction
// counters and a bounded history of past decisions, stored as a versioned
// JSON document. An empty path keeps everything in process memory only.
type Memory struct {
	mu   sync.Mutex
	path string
	log  logx.Logger
	data memoryFile
}

// OpenMemory loads the memory file at path, starting fresh when the file
// is absent, unreadable, or carries an unknown schema version.
func OpenMemory(path, userID string, log logx.Logger) *Memory {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Memory{path: path, log: log}
	m.data = memoryFile{
		SchemaVersion: memorySchemaVersion,
		UserID:        userID,
		FieldCounters: map[string]int{},
	}

	if path == "" {
		return m
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("memory file unreadable, starting fresh", logx.String("path", path), logx.Err(err))
		}
		return m
	}

	var loaded memoryFile
	if err := json.Unmarshal(raw, &loaded); err != nil {
		log.Warn("memory file corrupt, starting fresh", logx.String("path", path), logx.Err(err))
		return m
	}
	if loaded.SchemaVersion != memorySchemaVersion {
		log.Warn("memory schema mismatch, starting fresh",
			logx.Int("found", loaded.SchemaVersion),
			logx.Int("want", memorySchemaVersion))
		return m
	}
	if loaded.FieldCounters == nil {
		loaded.FieldCounters = map[string]int{}
	}
	loaded.UserID = userID
	m.data = loaded
	return m
}

// RecordParse counts which fields the text-understanding collaborator
// managed to extract. The counters feed the agent report.
func (m *Memory) RecordParse(d parser.Draft) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d.Title != "" {
		m.data.FieldCounters["title"]++
	}
	if len(d.Participants) > 0 {
		m.data.FieldCounters["participants"]++
	}
	if d.Duration != nil {
		m.data.FieldCounters["duration"]++
	}
	if d.Location != "" {
		m.data.FieldCounters["location"]++
	}
	m.data.TotalInteractions++
	m.data.LastInteraction = time.Now()
	m.saveLocked()
}

// RecordDecision appends one decision to the bounded history and
// recomputes the success rate over the trailing window.
func (m *Memory) RecordDecision(rec DecisionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data.History = append(m.data.History, rec)
	if len(m.data.History) > maxHistory {
		m.data.History = m.data.History[len(m.data.History)-maxHistory:]
	}

	window := m.data.History
	if len(window) > successWindow {
		window = window[len(window)-successWindow:]
	}
	ok := 0
	for _, r := range window {
		if r.Success {
			ok++
		}
	}
	if len(window) > 0 {
		m.data.SuccessRate = float64(ok) / float64(len(window))
	}
	m.data.LastInteraction = rec.Time
	m.saveLocked()
}

func (m *Memory) SuccessRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.SuccessRate
}

// Stats returns the counters the agent report surfaces.
func (m *Memory) Stats() (interactions int, learningConfidence int, last time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, field := range []string{"title", "duration", "participants", "location"} {
		learningConfidence += m.data.FieldCounters[field]
	}
	return len(m.data.History), learningConfidence, m.data.LastInteraction
}

// saveLocked writes the snapshot atomically (tmp file + rename). Persistence
// failures are logged, never fatal: the in-process copy stays authoritative.
func (m *Memory) saveLocked() {
	if m.path == "" {
		return
	}
	raw, err := json.MarshalIndent(m.data, "", "  ")
	if err != nil {
		m.log.Error("encode memory", logx.Err(err))
		return
	}
	tmp := m.path + ".tmp"
	if err := writeFileSync(tmp, raw); err != nil {
		m.log.Error("write memory", logx.String("path", tmp), logx.Err(err))
		return
	}
	if err := os.Rename(tmp, m.path); err != nil {
		m.log.Error("replace memory", logx.String("path", m.path), logx.Err(err))
	}
}

func writeFileSync(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
