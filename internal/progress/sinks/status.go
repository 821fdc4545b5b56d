package sinks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/news-harvester/internal/progress"
)

// WindowStatus is the latest known state of one window.
type WindowStatus struct {
	Label   string    `json:"label"`
	Window  string    `json:"window"`
	Worker  int       `json:"worker"`
	Stage   string    `json:"stage"`
	IDs     int64     `json:"ids"`
	Records int64     `json:"records"`
	Note    string    `json:"note,omitempty"`
	Updated time.Time `json:"updated"`
}

// RunStatus summarizes the current run.
type RunStatus struct {
	RunID    string         `json:"run_id,omitempty"`
	State    string         `json:"state"`
	Started  time.Time      `json:"started,omitempty"`
	Finished time.Time      `json:"finished,omitempty"`
	Done     int            `json:"windows_done"`
	Skipped  int            `json:"windows_skipped"`
	Failed   int            `json:"windows_failed"`
	Running  int            `json:"windows_running"`
	Records  int64          `json:"records"`
	Merged   []string       `json:"merged,omitempty"`
	Note     string         `json:"note,omitempty"`
	Windows  []WindowStatus `json:"windows"`
}

// StatusSink keeps an in-memory snapshot of the run for the status server.
type StatusSink struct {
	mu      sync.RWMutex
	run     RunStatus
	windows map[string]*WindowStatus
}

// NewStatusSink returns an idle StatusSink.
func NewStatusSink() *StatusSink {
	return &StatusSink{run: RunStatus{State: "idle"}, windows: map[string]*WindowStatus{}}
}

// Consume folds the batch into the snapshot.
func (s *StatusSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.run = RunStatus{RunID: evt.RunUUID().String(), State: "running", Started: evt.TS}
			s.windows = map[string]*WindowStatus{}
		case progress.StageRunDone:
			s.run.State, s.run.Finished = "done", evt.TS
		case progress.StageRunError:
			s.run.State, s.run.Finished, s.run.Note = "failed", evt.TS, evt.Note
		case progress.StagePeriodMerged:
			s.run.Merged = append(s.run.Merged, evt.Note)
		default:
			key := evt.Label + ":" + evt.Window
			w := s.windows[key]
			if w == nil {
				w = &WindowStatus{Label: evt.Label, Window: evt.Window}
				s.windows[key] = w
			}
			w.Worker, w.Stage, w.Updated, w.Note = evt.Slot, string(evt.Stage), evt.TS, evt.Note
			if evt.IDs > 0 {
				w.IDs = evt.IDs
			}
			if evt.Records > 0 {
				w.Records = evt.Records
			}
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StatusSink) Close(context.Context) error {
	return nil
}

// Snapshot returns a copy of the current status with windows sorted by key.
func (s *StatusSink) Snapshot() RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.run
	out.Merged = append([]string(nil), s.run.Merged...)
	out.Windows = make([]WindowStatus, 0, len(s.windows))
	for _, w := range s.windows {
		out.Windows = append(out.Windows, *w)
		switch progress.Stage(w.Stage) {
		case progress.StageWindowDone:
			out.Done++
			out.Records += w.Records
		case progress.StageWindowSkip:
			out.Skipped++
		case progress.StageWindowError:
			out.Failed++
		case progress.StageWindowStart:
			out.Running++
		}
	}
	sort.Slice(out.Windows, func(i, j int) bool {
		if out.Windows[i].Label != out.Windows[j].Label {
			return out.Windows[i].Label < out.Windows[j].Label
		}
		return out.Windows[i].Window < out.Windows[j].Window
	})
	return out
}
