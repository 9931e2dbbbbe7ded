package analyser

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"shepherd/pkg/chart"
)

// Session accumulates the records of one run. It is created by the caller,
// handed to Analyser.Run and can be inspected afterwards.
type Session struct {
	ID      string
	Mode    chart.Mode
	Columns []string

	clock clockwork.Clock

	mu       sync.Mutex
	records  []BuildingRecord
	total    int
	started  time.Time
	finished time.Time
}

// NewSession prepares a session for mode. The column schema is fixed here
// for the whole run. A nil clock uses real time.
func NewSession(mode chart.Mode, tmpl chart.Template, clock clockwork.Clock) (*Session, error) {
	cols, err := tmpl.ColumnLabels(mode)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Session{
		ID:      uuid.NewString(),
		Mode:    mode,
		Columns: cols,
		clock:   clock,
	}, nil
}

func (s *Session) begin(total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = total
	s.records = make([]BuildingRecord, 0, total)
	s.started = s.clock.Now()
	s.finished = time.Time{}
}

// add appends a record and returns the progress snapshot after it.
func (s *Session) add(r BuildingRecord) Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return Progress{Building: r.name, Processed: len(s.records), Total: s.total}
}

func (s *Session) finish() {
	s.mu.Lock()
	s.finished = s.clock.Now()
	s.mu.Unlock()
}

// Records returns the records collected so far in document order.
func (s *Session) Records() []BuildingRecord {
	s.mu.Lock()
	out := make([]BuildingRecord, len(s.records))
	copy(out, s.records)
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].position < out[j].position })
	return out
}

// Table snapshots the session as a ResultTable.
func (s *Session) Table() ResultTable {
	recs := s.Records()
	s.mu.Lock()
	defer s.mu.Unlock()
	return ResultTable{
		RunID:      s.ID,
		Mode:       s.Mode,
		Columns:    s.Columns,
		Records:    recs,
		StartedAt:  s.started,
		FinishedAt: s.finished,
	}
}
