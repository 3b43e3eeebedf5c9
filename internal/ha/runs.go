package ha

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunState is a state of the failover state machine
type RunState string

const (
	StateCheckPrimaryHealth RunState = "CheckPrimaryHealth"
	StateDecideFailover     RunState = "DecideFailover"
	StatePromoteReplica     RunState = "PromoteReplica"
	StateWaitForPromotion   RunState = "WaitForPromotion"
	StateScaleSecondary     RunState = "ScaleSecondary"
	StateWaitForScaling     RunState = "WaitForScaling"
	StateUpdateDNS          RunState = "UpdateDns"
	StatePostFailoverCheck  RunState = "PostFailoverCheck"
	StateNotify             RunState = "Notify"
	StateDone               RunState = "Done"
)

// RunStatus is the outcome of a run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusNoop      RunStatus = "noop"
	RunStatusSucceeded RunStatus = "succeeded"
	// RunStatusDegraded means every step succeeded but the secondary failed
	// its post-failover check. Nothing is rolled back.
	RunStatusDegraded RunStatus = "degraded"
	RunStatusFailed   RunStatus = "failed"
	RunStatusTimedOut RunStatus = "timed_out"
)

// Terminal reports whether the status is final
func (s RunStatus) Terminal() bool {
	return s != RunStatusRunning && s != ""
}

// StepRecord captures one state visit
type StepRecord struct {
	State      RunState  `json:"state"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Error      string    `json:"error,omitempty"`
}

// Run is the record of one pass through the state machine.
type Run struct {
	ID          string    `json:"id"`
	Domain      string    `json:"domain"`
	Reason      string    `json:"reason"`
	TriggeredBy string    `json:"triggered_by,omitempty"`
	Forced      bool      `json:"forced,omitempty"`
	Status      RunStatus `json:"status"`
	State       RunState  `json:"state"`

	Steps []StepRecord `json:"steps"`

	PrimaryCheck *HealthCheckResult   `json:"primary_check,omitempty"`
	Event        *FailoverEvent       `json:"event,omitempty"`
	Promotion    *PromotionResult     `json:"promotion,omitempty"`
	Scale        *ScaleResult         `json:"scale,omitempty"`
	DNS          *DNSCutoverResult    `json:"dns,omitempty"`
	PostCheck    *HealthCheckResult   `json:"post_check,omitempty"`
	Notification *NotificationMessage `json:"notification,omitempty"`

	FailedState RunState `json:"failed_state,omitempty"`
	Error       string   `json:"error,omitempty"`
	NotifyError string   `json:"notify_error,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`

	err error
}

// TriggerRequest describes why and by whom a run is started.
type TriggerRequest struct {
	Reason      string
	TriggeredBy string
	Force       bool
}

func newRun(domain string, req TriggerRequest) *Run {
	return &Run{
		ID:          uuid.New().String(),
		Domain:      domain,
		Reason:      req.Reason,
		TriggeredBy: req.TriggeredBy,
		Forced:      req.Force,
		Status:      RunStatusRunning,
		State:       StateCheckPrimaryHealth,
		Steps:       make([]StepRecord, 0, 10),
		StartedAt:   time.Now(),
	}
}

// Err returns the fatal error that ended the run, if any.
func (r *Run) Err() error {
	return r.err
}

// Duration returns the elapsed run time
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// StatesVisited returns the states in the order they ran.
func (r *Run) StatesVisited() []RunState {
	states := make([]RunState, 0, len(r.Steps))
	for _, s := range r.Steps {
		states = append(states, s.State)
	}
	return states
}

// Clone returns a deep copy safe to hand out of a store.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		c := *r
		return &c
	}
	var c Run
	if err := json.Unmarshal(data, &c); err != nil {
		c = *r
	}
	c.err = r.err
	return &c
}

// MemoryRunStore keeps runs in process memory
type MemoryRunStore struct {
	mu    sync.RWMutex
	runs  map[string]*Run
	order []string
	limit int
}

// NewMemoryRunStore creates a store retaining at most limit runs.
func NewMemoryRunStore(limit int) *MemoryRunStore {
	if limit <= 0 {
		limit = 1000
	}
	return &MemoryRunStore{
		runs:  make(map[string]*Run),
		order: make([]string, 0),
		limit: limit,
	}
}

// SaveRun inserts or replaces a run
func (s *MemoryRunStore) SaveRun(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; !exists {
		s.order = append(s.order, run.ID)
	}
	s.runs[run.ID] = run.Clone()

	if len(s.order) > s.limit {
		evict := s.order[:len(s.order)-s.limit]
		for _, id := range evict {
			delete(s.runs, id)
		}
		s.order = append([]string(nil), s.order[len(s.order)-s.limit:]...)
	}
	return nil
}

// GetRun returns a run by ID
func (s *MemoryRunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run.Clone(), nil
}

// ListRuns returns the newest runs first. An empty domain lists all domains.
func (s *MemoryRunStore) ListRuns(ctx context.Context, domain string, limit int) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Run, 0)
	for _, run := range s.runs {
		if domain != "" && run.Domain != domain {
			continue
		}
		result = append(result, run.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
