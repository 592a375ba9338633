package config

import (
	"strings"

	logx "calagent/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging. The summary is best-effort; it exists so the
// reload log line says what actually moved.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 12)

	// Logging
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Storage changes require a restart; surface them so the operator knows
	// the running store still uses the old settings.
	if !equalStorage(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.restart_required", true),
		)
	}

	// Agent (mode/threshold apply live)
	if !strings.EqualFold(strings.TrimSpace(oldCfg.Agent.Mode), strings.TrimSpace(newCfg.Agent.Mode)) ||
		oldCfg.Agent.ConfidenceThreshold != newCfg.Agent.ConfidenceThreshold ||
		strings.TrimSpace(oldCfg.Agent.Timezone) != strings.TrimSpace(newCfg.Agent.Timezone) ||
		strings.TrimSpace(oldCfg.Agent.UserID) != strings.TrimSpace(newCfg.Agent.UserID) {
		changed = append(changed, "agent")
		attrs = append(attrs,
			logx.String("agent.mode", strings.TrimSpace(newCfg.Agent.Mode)),
			logx.Float64("agent.threshold", newCfg.Agent.ConfidenceThreshold),
		)
	}

	// Parser
	if !strings.EqualFold(strings.TrimSpace(oldCfg.Parser.Driver), strings.TrimSpace(newCfg.Parser.Driver)) ||
		oldCfg.Parser.RatePerSec != newCfg.Parser.RatePerSec ||
		strings.TrimSpace(oldCfg.Parser.Timeout) != strings.TrimSpace(newCfg.Parser.Timeout) {
		changed = append(changed, "parser")
		attrs = append(attrs,
			logx.String("parser.driver", strings.TrimSpace(newCfg.Parser.Driver)),
			logx.Int("parser.rate_per_sec", newCfg.Parser.RatePerSec),
		)
	}

	// Sweeper
	if oldCfg.Sweeper.Enabled != newCfg.Sweeper.Enabled ||
		strings.TrimSpace(oldCfg.Sweeper.Every) != strings.TrimSpace(newCfg.Sweeper.Every) ||
		oldCfg.Sweeper.HorizonDays != newCfg.Sweeper.HorizonDays {
		changed = append(changed, "sweeper")
		attrs = append(attrs,
			logx.Bool("sweeper.enabled", newCfg.Sweeper.Enabled),
			logx.String("sweeper.every", strings.TrimSpace(newCfg.Sweeper.Every)),
		)
	}

	return changed, attrs
}

func equalStorage(a, b StorageConfig) bool {
	return strings.EqualFold(strings.TrimSpace(a.Driver), strings.TrimSpace(b.Driver)) &&
		strings.TrimSpace(a.Path) == strings.TrimSpace(b.Path) &&
		strings.TrimSpace(a.BusyTimeout) == strings.TrimSpace(b.BusyTimeout)
}
