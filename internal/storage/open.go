package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "calagent/pkg/logx"
)

// Store is the persistence API consumed by the scheduling core.
//
// FindOverlapping uses half-open interval semantics: a stored meeting
// conflicts with [start, end) iff stored.Start < end && stored.End > start.
type Store interface {
	CreateMeeting(ctx context.Context, m Meeting) (Meeting, error)
	Meetings(ctx context.Context, from, to time.Time) ([]Meeting, error)
	MeetingByID(ctx context.Context, id int64) (Meeting, error)
	UpdateMeeting(ctx context.Context, id int64, p Patch) (Meeting, error)
	DeleteMeeting(ctx context.Context, id int64) (bool, error)
	FindOverlapping(ctx context.Context, start, end time.Time, excludeID int64) ([]Meeting, error)
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		if strings.TrimSpace(cfg.Path) != "" {
			driver = "sqlite"
		} else {
			driver = "memory"
		}
	}

	switch driver {
	case "memory", "mem":
		return NewMemory(), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
