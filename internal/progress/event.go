package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported stages.
const (
	StageRunStart     Stage = "RUN_START"
	StageRunDone      Stage = "RUN_DONE"
	StageRunError     Stage = "RUN_ERROR"
	StageWindowStart  Stage = "WINDOW_START"
	StageWindowDone   Stage = "WINDOW_DONE"
	StageWindowSkip   Stage = "WINDOW_SKIPPED"
	StageWindowError  Stage = "WINDOW_ERROR"
	StagePeriodMerged Stage = "PERIOD_MERGED"
)

// Event captures one step of a harvest run.
type Event struct {
	// RunID identifies the run in 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	Stage Stage
	// Label is the publisher selection label.
	Label string
	// Window is the window key for window stages, or the month for PERIOD_MERGED.
	Window string
	// Slot is the worker slot that handled the window.
	Slot int
	// IDs and Records count identifiers discovered and records written.
	IDs     int64
	Records int64
	Dur     time.Duration
	// Note carries low-volume context such as error text or an artifact path.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageWindowStart, StageWindowDone, StageWindowSkip, StageWindowError, StagePeriodMerged:
		if e.Window == "" {
			return fmt.Errorf("%s requires a window", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
