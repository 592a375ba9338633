package config

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Storage configures the meeting store.
	Storage StorageConfig `json:"storage"`

	// Agent configures the scheduling agent session created at startup.
	Agent AgentConfig `json:"agent"`

	// Parser configures the text-understanding collaborator.
	Parser ParserConfig `json:"parser,omitempty"`

	// Sweeper controls the proactive conflict sweep service.
	Sweeper SweeperConfig `json:"sweeper,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the meeting store.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "memory": in-process store, lost on restart
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./calagent.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// AgentConfig configures the per-user agent session.
//
// Mode values: conservative, balanced, autonomous, learning, aggressive.
// ConfidenceThreshold, when non-zero, overrides the mode's default and is
// clamped to [0.3, 0.9].
type AgentConfig struct {
	UserID              string  `json:"user_id"`
	Mode                string  `json:"mode"`
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty"`
	Timezone            string  `json:"timezone,omitempty"` // IANA TZ, e.g. "Asia/Jakarta"

	// MemoryPath is where the learning memory snapshot lives.
	// Empty disables learning persistence (memory stays in-process).
	MemoryPath string `json:"memory_path,omitempty"`
}

// ParserConfig controls the text-understanding collaborator.
//
// Driver values:
//   - "rules": built-in keyword/regex extraction (default)
//
// RatePerSec bounds parse calls; 0 disables limiting. Model-backed drivers
// are quota-bound, so the limit applies to any driver uniformly.
type ParserConfig struct {
	Driver     string `json:"driver,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	// Timeout is a Go duration string bounding a single parse call.
	Timeout string `json:"timeout,omitempty"`
}

// SweeperConfig controls the background sweep that raises calendar alerts
// and materializes recurring meetings.
//
// Every is a Go duration string (e.g. "10m", "1h"). HorizonDays bounds how
// far ahead the sweep looks (default 7).
type SweeperConfig struct {
	Enabled     bool   `json:"enabled"`
	Every       string `json:"every,omitempty"`
	HorizonDays int    `json:"horizon_days,omitempty"`
}
