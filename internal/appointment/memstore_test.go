package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/physio-scheduling/internal/course"
	"github.com/hackgods/physio-scheduling/internal/referral"
)

// memStore is an in-memory Repository. InTx holds the store mutex for the
// whole transaction and restores a snapshot when fn fails, which gives the
// same all-or-nothing outcome as a database transaction.
type memStore struct {
	mu sync.Mutex

	appts    map[uuid.UUID]Appointment
	courses  map[uuid.UUID]course.Course
	ledger   []course.LedgerEntry
	cases    map[uuid.UUID]referral.Case
	history  []referral.StatusHistory
	counters map[string]int64
	audits   []AuditEntry
	nextID   int64
}

func newMemStore() *memStore {
	return &memStore{
		appts:    make(map[uuid.UUID]Appointment),
		courses:  make(map[uuid.UUID]course.Course),
		cases:    make(map[uuid.UUID]referral.Case),
		counters: make(map[string]int64),
	}
}

type memSnapshot struct {
	appts    map[uuid.UUID]Appointment
	courses  map[uuid.UUID]course.Course
	ledger   []course.LedgerEntry
	cases    map[uuid.UUID]referral.Case
	history  []referral.StatusHistory
	counters map[string]int64
	audits   []AuditEntry
	nextID   int64
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) snapshot() memSnapshot {
	return memSnapshot{
		appts:    cloneMap(s.appts),
		courses:  cloneMap(s.courses),
		ledger:   append([]course.LedgerEntry(nil), s.ledger...),
		cases:    cloneMap(s.cases),
		history:  append([]referral.StatusHistory(nil), s.history...),
		counters: cloneMap(s.counters),
		audits:   append([]AuditEntry(nil), s.audits...),
		nextID:   s.nextID,
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.appts = snap.appts
	s.courses = snap.courses
	s.ledger = snap.ledger
	s.cases = snap.cases
	s.history = snap.history
	s.counters = snap.counters
	s.audits = snap.audits
	s.nextID = snap.nextID
}

func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(ctx, &memTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getAppointment(id)
}

func (s *memStore) FindOverlapping(_ context.Context, q OverlapQuery) ([]Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findOverlapping(q), nil
}

func (s *memStore) SetCalendarEventID(_ context.Context, id uuid.UUID, eventID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	a.CalendarEventID = eventID
	s.appts[id] = a
	return nil
}

func (s *memStore) getAppointment(id uuid.UUID) (*Appointment, error) {
	a, ok := s.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (s *memStore) findOverlapping(q OverlapQuery) []Appointment {
	var out []Appointment
	for _, a := range s.appts {
		if q.Matches(&a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// Test accessors, safe outside transactions.

func (s *memStore) appointment(id uuid.UUID) Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appts[id]
}

func (s *memStore) courseByID(id uuid.UUID) course.Course {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.courses[id]
}

func (s *memStore) referralCase(id uuid.UUID) referral.Case {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cases[id]
}

func (s *memStore) ledgerEntries() []course.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]course.LedgerEntry(nil), s.ledger...)
}

func (s *memStore) historyFor(caseID uuid.UUID) []referral.StatusHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []referral.StatusHistory
	for _, h := range s.history {
		if h.CaseID == caseID {
			out = append(out, h)
		}
	}
	return out
}

func (s *memStore) allAppointments() []Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Appointment, 0, len(s.appts))
	for _, a := range s.appts {
		out = append(out, a)
	}
	return out
}

func (s *memStore) auditCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audits)
}

func (s *memStore) putCourse(c course.Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[c.ID] = c
}

func (s *memStore) putCase(c referral.Case) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cases[c.ID] = c
}

// memTx runs with memStore.mu held.
type memTx struct {
	s *memStore
}

func (t *memTx) LockPractitionerDay(context.Context, uuid.UUID, time.Time) error { return nil }

func (t *memTx) GetAppointmentForUpdate(_ context.Context, id uuid.UUID) (*Appointment, error) {
	return t.s.getAppointment(id)
}

func (t *memTx) FindOverlapping(_ context.Context, q OverlapQuery) ([]Appointment, error) {
	return t.s.findOverlapping(q), nil
}

func (t *memTx) InsertAppointment(_ context.Context, a *Appointment) error {
	probe := OverlapQuery{PractitionerID: a.PractitionerID, Date: a.Date, Start: a.Start, End: a.End}
	if a.Status.Blocking() && len(t.s.findOverlapping(probe)) > 0 {
		return &ConflictError{}
	}
	t.s.appts[a.ID] = *a
	return nil
}

func (t *memTx) UpdateAppointment(_ context.Context, a *Appointment) error {
	if _, ok := t.s.appts[a.ID]; !ok {
		return ErrAppointmentNotFound
	}
	t.s.appts[a.ID] = *a
	return nil
}

func (t *memTx) RecordAudit(_ context.Context, e AuditEntry) error {
	t.s.audits = append(t.s.audits, e)
	return nil
}

func (t *memTx) GetCourse(_ context.Context, id uuid.UUID) (*course.Course, error) {
	c, ok := t.s.courses[id]
	if !ok {
		return nil, course.ErrCourseNotFound
	}
	return &c, nil
}

func (t *memTx) GetCourseForUpdate(ctx context.Context, id uuid.UUID) (*course.Course, error) {
	return t.GetCourse(ctx, id)
}

func (t *memTx) UpdateCourseBalance(_ context.Context, c *course.Course) error {
	t.s.courses[c.ID] = *c
	return nil
}

func (t *memTx) LastLedgerEntry(_ context.Context, courseID, referenceID uuid.UUID) (*course.LedgerEntry, error) {
	for i := len(t.s.ledger) - 1; i >= 0; i-- {
		e := t.s.ledger[i]
		if e.CourseID == courseID && e.ReferenceID == referenceID {
			return &e, nil
		}
	}
	return nil, nil
}

func (t *memTx) InsertLedgerEntry(_ context.Context, e *course.LedgerEntry) error {
	t.s.nextID++
	e.ID = t.s.nextID
	t.s.ledger = append(t.s.ledger, *e)
	return nil
}

func (t *memTx) GetCase(_ context.Context, id uuid.UUID) (*referral.Case, error) {
	c, ok := t.s.cases[id]
	if !ok {
		return nil, referral.ErrCaseNotFound
	}
	return &c, nil
}

func (t *memTx) GetCaseForUpdate(ctx context.Context, id uuid.UUID) (*referral.Case, error) {
	return t.GetCase(ctx, id)
}

func (t *memTx) InsertCase(_ context.Context, c *referral.Case) error {
	t.s.cases[c.ID] = *c
	return nil
}

func (t *memTx) UpdateCase(_ context.Context, c *referral.Case) error {
	if _, ok := t.s.cases[c.ID]; !ok {
		return referral.ErrCaseNotFound
	}
	t.s.cases[c.ID] = *c
	return nil
}

func (t *memTx) InsertStatusHistory(_ context.Context, h *referral.StatusHistory) error {
	t.s.nextID++
	h.ID = t.s.nextID
	t.s.history = append(t.s.history, *h)
	return nil
}

func (t *memTx) NextSequence(_ context.Context, name string) (int64, error) {
	t.s.counters[name]++
	return t.s.counters[name], nil
}

// recordingEmitter keeps every emitted event.
type recordingEmitter struct {
	mu     sync.Mutex
	events []Event
}

func (e *recordingEmitter) Emit(_ context.Context, ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *recordingEmitter) ofType(t EventType) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Event
	for _, ev := range e.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type staticHours Hours

func (h staticHours) BusinessHours(context.Context, uuid.UUID) (Hours, error) {
	return Hours(h), nil
}
