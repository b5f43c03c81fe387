package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/physio-scheduling/internal/course"
	redisclient "github.com/hackgods/physio-scheduling/internal/redis"
	"github.com/hackgods/physio-scheduling/internal/referral"
)

var (
	homeClinic  = uuid.MustParse("00000000-0000-0000-0000-0000000000c1")
	otherClinic = uuid.MustParse("00000000-0000-0000-0000-0000000000c2")
	pt1         = uuid.MustParse("00000000-0000-0000-0000-0000000000a1")
	pt2         = uuid.MustParse("00000000-0000-0000-0000-0000000000a2")
	patientA    = uuid.MustParse("00000000-0000-0000-0000-0000000000b1")
	patientB    = uuid.MustParse("00000000-0000-0000-0000-0000000000b2")

	staff    = Actor{ID: uuid.MustParse("00000000-0000-0000-0000-0000000000d1"), Role: RoleStaff}
	staff2   = Actor{ID: uuid.MustParse("00000000-0000-0000-0000-0000000000d2"), Role: RoleTherapist}
	manager  = Actor{ID: uuid.MustParse("00000000-0000-0000-0000-0000000000d3"), Role: RoleManager}
	selfPatA = Actor{ID: uuid.MustParse("00000000-0000-0000-0000-0000000000d4"), Role: RolePatient, PatientID: &patientA}

	testNow = time.Date(2025, 3, 9, 8, 0, 0, 0, time.UTC)
	day     = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
)

type fixture struct {
	store  *memStore
	events *recordingEmitter
	mgr    *Manager
}

func newFixture(t *testing.T, opts ...func(*Options)) *fixture {
	t.Helper()

	store := newMemStore()
	events := &recordingEmitter{}
	now := func() time.Time { return testNow }
	ledger := course.NewLedger(now)

	o := Options{
		Repo:      store,
		Referrals: referral.NewSynchronizer(ledger, homeClinic, now),
		Ledger:    ledger,
		Hours:     staticHours(DefaultHours),
		Emitter:   events,
		Location:  time.UTC,
		Now:       now,
		Logger:    zerolog.Nop(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	return &fixture{store: store, events: events, mgr: NewManager(o)}
}

func tod(s string) TimeOfDay {
	v, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return v
}

func strp(s string) *string { return &s }

func registered(patient, practitioner uuid.UUID, start, end string) BookingRequest {
	p := patient
	return BookingRequest{
		Kind:           KindRegisteredPatient,
		PatientID:      &p,
		PractitionerID: practitioner,
		ClinicID:       homeClinic,
		Date:           day,
		Start:          tod(start),
		End:            tod(end),
	}
}

func (f *fixture) addCourse(patient uuid.UUID, total, used int) course.Course {
	c := course.Course{
		ID:        uuid.New(),
		PatientID: patient,
		Name:      "Lower back rehab",
		Total:     total,
		Used:      used,
		Remaining: total - used,
		Status:    course.StatusActive,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
	if c.Remaining == 0 {
		c.Status = course.StatusCompleted
	}
	f.store.putCourse(c)
	return c
}

func (f *fixture) addCase(patient, target uuid.UUID, courseID *uuid.UUID) referral.Case {
	c := referral.Case{
		ID:             uuid.New(),
		Code:           "PN202502-0042",
		PatientID:      patient,
		SourceClinicID: homeClinic,
		TargetClinicID: target,
		CourseID:       courseID,
		Status:         referral.StatusPending,
		CreatedAt:      testNow,
		UpdatedAt:      testNow,
	}
	f.store.putCase(c)
	return c
}

func (f *fixture) book(t *testing.T, req BookingRequest) *Appointment {
	t.Helper()
	a, err := f.mgr.Create(context.Background(), req, staff)
	if err != nil {
		t.Fatalf("Create(%s-%s): %v", req.Start, req.End, err)
	}
	return a
}

// bookWithCase books patientA with pt1 against a referral case that uses
// the given course.
func (f *fixture) bookWithCase(t *testing.T, target uuid.UUID, remaining int) (*Appointment, course.Course, referral.Case) {
	t.Helper()
	crs := f.addCourse(patientA, remaining, 0)
	pn := f.addCase(patientA, target, &crs.ID)

	req := registered(patientA, pt1, "09:00", "10:00")
	req.ClinicID = target
	req.CourseID = &crs.ID
	req.ReferralCaseID = &pn.ID
	return f.book(t, req), crs, pn
}

func assertBalanced(t *testing.T, c course.Course) {
	t.Helper()
	if c.Remaining+c.Used != c.Total {
		t.Fatalf("course %s unbalanced: remaining %d + used %d != total %d", c.ID, c.Remaining, c.Used, c.Total)
	}
	if c.Remaining < 0 || c.Used < 0 {
		t.Fatalf("course %s negative balance: remaining %d used %d", c.ID, c.Remaining, c.Used)
	}
}

func TestCreate_OverlapRejectedWithConflicts(t *testing.T) {
	f := newFixture(t)
	first := f.book(t, registered(patientA, pt1, "09:00", "10:00"))

	_, err := f.mgr.Create(context.Background(), registered(patientB, pt1, "09:30", "10:30"), staff)

	var cerr *ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if len(cerr.Conflicts) != 1 || cerr.Conflicts[0].ID != first.ID {
		t.Fatalf("expected conflict with %s, got %+v", first.ID, cerr.Conflicts)
	}
	if n := len(f.store.allAppointments()); n != 1 {
		t.Fatalf("expected 1 stored appointment, got %d", n)
	}
	if n := len(f.events.ofType(EventCreated)); n != 1 {
		t.Fatalf("expected 1 created event, got %d", n)
	}
}

func TestCreate_TouchingIntervalsAllowed(t *testing.T) {
	f := newFixture(t)
	f.book(t, registered(patientA, pt1, "09:00", "10:00"))
	f.book(t, registered(patientB, pt1, "10:00", "11:00"))

	if n := len(f.store.allAppointments()); n != 2 {
		t.Fatalf("expected 2 appointments, got %d", n)
	}
}

func TestCreate_OtherPractitionerAndCancelledDoNotConflict(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, registered(patientA, pt1, "09:00", "10:00"))
	f.book(t, registered(patientB, pt2, "09:00", "10:00"))

	if _, err := f.mgr.Cancel(context.Background(), a.ID, "patient called", staff); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	f.book(t, registered(patientB, pt1, "09:30", "10:30"))
}

func TestCreate_ValidatesByBookingKind(t *testing.T) {
	p := patientA
	cases := []struct {
		name  string
		req   BookingRequest
		field string
	}{
		{
			name:  "walk-in without name",
			req:   BookingRequest{Kind: KindWalkIn, PractitionerID: pt1, ClinicID: homeClinic, Date: day, Start: tod("09:00"), End: tod("09:30")},
			field: "visitor_name",
		},
		{
			name:  "walk-in with patient",
			req:   BookingRequest{Kind: KindWalkIn, PatientID: &p, VisitorName: strp("Somchai"), PractitionerID: pt1, ClinicID: homeClinic, Date: day, Start: tod("09:00"), End: tod("09:30")},
			field: "patient_id",
		},
		{
			name:  "walk-in with bad phone",
			req:   BookingRequest{Kind: KindWalkIn, VisitorName: strp("Somchai"), VisitorPhone: strp("12"), PractitionerID: pt1, ClinicID: homeClinic, Date: day, Start: tod("09:00"), End: tod("09:30")},
			field: "visitor_phone",
		},
		{
			name:  "walk-in with bad email",
			req:   BookingRequest{Kind: KindWalkIn, VisitorName: strp("Somchai"), VisitorEmail: strp("not-an-email"), PractitionerID: pt1, ClinicID: homeClinic, Date: day, Start: tod("09:00"), End: tod("09:30")},
			field: "visitor_email",
		},
		{
			name:  "registered without patient",
			req:   BookingRequest{Kind: KindRegisteredPatient, PractitionerID: pt1, ClinicID: homeClinic, Date: day, Start: tod("09:00"), End: tod("09:30")},
			field: "patient_id",
		},
		{
			name: "registered with walk-in fields",
			req: func() BookingRequest {
				r := registered(patientA, pt1, "09:00", "09:30")
				r.VisitorName = strp("Somchai")
				return r
			}(),
			field: "visitor_name",
		},
		{
			name:  "missing clinic",
			req:   func() BookingRequest { r := registered(patientA, pt1, "09:00", "09:30"); r.ClinicID = uuid.Nil; return r }(),
			field: "clinic_id",
		},
		{
			name:  "missing kind",
			req:   func() BookingRequest { r := registered(patientA, pt1, "09:00", "09:30"); r.Kind = ""; return r }(),
			field: "booking_kind",
		},
		{
			name:  "end before start",
			req:   registered(patientA, pt1, "10:00", "09:00"),
			field: "end_time",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.mgr.Create(context.Background(), tc.req, staff)

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if _, ok := verr.Fields[tc.field]; !ok {
				t.Fatalf("expected field %q in %v", tc.field, verr.Fields)
			}
			if n := len(f.store.allAppointments()); n != 0 {
				t.Fatalf("expected nothing stored, got %d", n)
			}
		})
	}
}

func TestCreate_WalkInNormalisesPhone(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, BookingRequest{
		Kind:           KindWalkIn,
		VisitorName:    strp("  Somchai  "),
		VisitorPhone:   strp("081 234 5678"),
		PractitionerID: pt1,
		ClinicID:       homeClinic,
		Date:           day,
		Start:          tod("13:00"),
		End:            tod("13:30"),
	})

	if a.PatientID != nil {
		t.Fatalf("walk-in must not carry a patient")
	}
	if *a.VisitorName != "Somchai" {
		t.Fatalf("expected trimmed name, got %q", *a.VisitorName)
	}
	if *a.VisitorPhone != "+66812345678" {
		t.Fatalf("expected E.164 phone, got %q", *a.VisitorPhone)
	}
}

func TestCreate_CourseMustBeBookable(t *testing.T) {
	expired := day.AddDate(0, 0, -1)

	cases := []struct {
		name   string
		setup  func(f *fixture) course.Course
		reason course.StateReason
	}{
		{"other patient", func(f *fixture) course.Course { return f.addCourse(patientB, 5, 0) }, course.ReasonNotOwned},
		{"used up", func(f *fixture) course.Course { return f.addCourse(patientA, 5, 5) }, course.ReasonNotActive},
		{"expired", func(f *fixture) course.Course {
			c := f.addCourse(patientA, 5, 1)
			c.ExpiresOn = &expired
			f.store.putCourse(c)
			return c
		}, course.ReasonExpired},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			crs := tc.setup(f)
			req := registered(patientA, pt1, "09:00", "10:00")
			req.CourseID = &crs.ID

			_, err := f.mgr.Create(context.Background(), req, staff)

			var serr *course.StateError
			if !errors.As(err, &serr) {
				t.Fatalf("expected course.StateError, got %v", err)
			}
			if serr.Reason != tc.reason {
				t.Fatalf("expected reason %s, got %s", tc.reason, serr.Reason)
			}
			if serr.Remaining != crs.Remaining {
				t.Fatalf("expected remaining %d, got %d", crs.Remaining, serr.Remaining)
			}
			if n := len(f.store.allAppointments()); n != 0 {
				t.Fatalf("expected nothing stored, got %d", n)
			}
		})
	}
}

func TestCreate_SharedCourseIsBookable(t *testing.T) {
	f := newFixture(t)
	crs := f.addCourse(patientB, 5, 0)
	crs.SharedPatientIDs = []uuid.UUID{patientA}
	f.store.putCourse(crs)

	req := registered(patientA, pt1, "09:00", "10:00")
	req.CourseID = &crs.ID
	f.book(t, req)
}

func TestCreate_AutoCreatesPendingReferral(t *testing.T) {
	f := newFixture(t)
	req := registered(patientA, pt1, "09:00", "10:00")
	req.AutoCreateReferral = true

	a := f.book(t, req)

	if a.ReferralCaseID == nil || !a.AutoCreatedReferral {
		t.Fatalf("expected auto-created referral link, got %+v", a)
	}
	pn := f.store.referralCase(*a.ReferralCaseID)
	if pn.Status != referral.StatusPending {
		t.Fatalf("expected PENDING, got %s", pn.Status)
	}
	if pn.Code != "PN202503-0001" {
		t.Fatalf("unexpected code %s", pn.Code)
	}
	if pn.PatientID != patientA || pn.TargetClinicID != homeClinic {
		t.Fatalf("unexpected case %+v", pn)
	}
	hist := f.store.historyFor(pn.ID)
	if len(hist) != 1 || hist[0].NewStatus != referral.StatusPending {
		t.Fatalf("expected one creation history row, got %+v", hist)
	}
}

func TestCreate_ExistingReferralMustMatchPatient(t *testing.T) {
	f := newFixture(t)
	pn := f.addCase(patientB, homeClinic, nil)

	req := registered(patientA, pt1, "09:00", "10:00")
	req.ReferralCaseID = &pn.ID
	req.AutoCreateReferral = true

	_, err := f.mgr.Create(context.Background(), req, staff)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Fields["referral_case_id"] == "" {
		t.Fatalf("expected referral_case_id validation error, got %v", err)
	}
	if n := len(f.store.allAppointments()); n != 0 {
		t.Fatalf("expected nothing stored, got %d", n)
	}
}

func TestCreate_PatientSelfService(t *testing.T) {
	f := newFixture(t)

	if _, err := f.mgr.Create(context.Background(), registered(patientA, pt1, "09:00", "10:00"), selfPatA); err != nil {
		t.Fatalf("self booking: %v", err)
	}

	_, err := f.mgr.Create(context.Background(), registered(patientB, pt1, "11:00", "12:00"), selfPatA)
	var aerr *AuthorizationError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}
}

type busyLocker struct{}

func (busyLocker) WithPractitionerDayLock(context.Context, uuid.UUID, time.Time, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func TestCreate_LockBusy(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Locker = busyLocker{} })

	_, err := f.mgr.Create(context.Background(), registered(patientA, pt1, "09:00", "10:00"), staff)
	if !errors.Is(err, ErrBookingBusy) {
		t.Fatalf("expected ErrBookingBusy, got %v", err)
	}
}

func TestCreate_ConcurrentBookingsNeverDoubleBook(t *testing.T) {
	f := newFixture(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 24; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := NewTimeOfDay(9, 0) + TimeOfDay(i%8*15)
			req := registered(patientA, pt1, start.String(), (start + 60).String())
			_, err := f.mgr.Create(context.Background(), req, staff)

			var cerr *ConflictError
			switch {
			case err == nil:
				mu.Lock()
				succeeded++
				mu.Unlock()
			case errors.As(err, &cerr):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded == 0 {
		t.Fatal("expected at least one booking to succeed")
	}

	appts := f.store.allAppointments()
	for i := range appts {
		for j := i + 1; j < len(appts); j++ {
			a, b := appts[i], appts[j]
			if a.Status.Blocking() && b.Status.Blocking() && Overlaps(a.Start, a.End, b.Start, b.End) {
				t.Fatalf("double booking: %s-%s and %s-%s", a.Start, a.End, b.Start, b.End)
			}
		}
	}
}

func TestComplete_DebitsOnceAndRetryIsIdempotent(t *testing.T) {
	f := newFixture(t)
	a, crs, pn := f.bookWithCase(t, homeClinic, 1)
	ctx := context.Background()

	done, err := f.mgr.Complete(ctx, a.ID, CompleteRequest{}, staff)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != StatusCompleted || done.CompletedAt == nil {
		t.Fatalf("expected COMPLETED with timestamp, got %+v", done)
	}

	got := f.store.courseByID(crs.ID)
	if got.Remaining != 0 || got.Status != course.StatusCompleted {
		t.Fatalf("expected exhausted course, got remaining %d status %s", got.Remaining, got.Status)
	}
	assertBalanced(t, got)
	if s := f.store.referralCase(pn.ID).Status; s != referral.StatusAccepted {
		t.Fatalf("expected ACCEPTED referral, got %s", s)
	}

	if _, err := f.mgr.Complete(ctx, a.ID, CompleteRequest{}, staff); err != nil {
		t.Fatalf("retry Complete: %v", err)
	}
	got = f.store.courseByID(crs.ID)
	if got.Remaining != 0 {
		t.Fatalf("retry must not debit again, remaining %d", got.Remaining)
	}
	if n := len(f.store.ledgerEntries()); n != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", n)
	}
	if n := len(f.events.ofType(EventCompleted)); n != 1 {
		t.Fatalf("expected 1 completed event, got %d", n)
	}
}

func TestComplete_RequiresStaff(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, registered(patientA, pt1, "09:00", "10:00"))

	_, err := f.mgr.Complete(context.Background(), a.ID, CompleteRequest{}, selfPatA)
	var aerr *AuthorizationError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}
}

func TestComplete_CourseWithoutReferralUsesAppointmentReference(t *testing.T) {
	f := newFixture(t)
	crs := f.addCourse(patientA, 4, 0)
	req := registered(patientA, pt1, "09:00", "10:00")
	req.CourseID = &crs.ID
	a := f.book(t, req)

	if _, err := f.mgr.Complete(context.Background(), a.ID, CompleteRequest{}, staff); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	entries := f.store.ledgerEntries()
	if len(entries) != 1 || entries[0].ReferenceID != a.ID || entries[0].Kind != course.KindUse {
		t.Fatalf("expected one USE keyed by appointment, got %+v", entries)
	}
	assertBalanced(t, f.store.courseByID(crs.ID))
}

func TestComplete_IntraClinicReferralNeedsNoAssessment(t *testing.T) {
	// No home clinic configured.
	f := newFixture(t, func(o *Options) {
		o.Referrals = referral.NewSynchronizer(o.Ledger, uuid.Nil, o.Now)
	})
	req := registered(patientA, pt1, "09:00", "10:00")
	req.ClinicID = otherClinic
	req.AutoCreateReferral = true
	a := f.book(t, req)

	if _, err := f.mgr.Complete(context.Background(), a.ID, CompleteRequest{}, staff); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	pn := f.store.referralCase(*a.ReferralCaseID)
	if pn.SourceClinicID != pn.TargetClinicID {
		t.Fatalf("expected intra-clinic case, got %+v", pn)
	}
	if pn.Status != referral.StatusAccepted {
		t.Fatalf("expected ACCEPTED, got %s", pn.Status)
	}
}

func TestComplete_SharedCourseBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	crs := f.addCourse(patientB, 2, 0)
	crs.SharedPatientIDs = []uuid.UUID{patientA}
	f.store.putCourse(crs)

	ownerCase := f.addCase(patientB, homeClinic, &crs.ID)
	sharedCase := f.addCase(patientA, homeClinic, &crs.ID)

	ownerReq := registered(patientB, pt1, "09:00", "10:00")
	ownerReq.CourseID = &crs.ID
	ownerReq.ReferralCaseID = &ownerCase.ID
	owner := f.book(t, ownerReq)

	sharedReq := registered(patientA, pt2, "09:00", "10:00")
	sharedReq.CourseID = &crs.ID
	sharedReq.ReferralCaseID = &sharedCase.ID
	shared := f.book(t, sharedReq)

	for _, id := range []uuid.UUID{owner.ID, shared.ID, shared.ID} {
		if _, err := f.mgr.Complete(ctx, id, CompleteRequest{}, staff); err != nil {
			t.Fatalf("Complete(%s): %v", id, err)
		}
	}

	got := f.store.courseByID(crs.ID)
	assertBalanced(t, got)
	if got.Used != 2 || got.Status != course.StatusCompleted {
		t.Fatalf("expected both sessions used, got used %d status %s", got.Used, got.Status)
	}
	uses := map[uuid.UUID]int{}
	for _, e := range f.store.ledgerEntries() {
		if e.Kind == course.KindUse {
			uses[e.ReferenceID]++
		}
	}
	if len(uses) != 2 || uses[ownerCase.ID] != 1 || uses[sharedCase.ID] != 1 {
		t.Fatalf("expected one USE per referral case, got %v", uses)
	}

	if _, err := f.mgr.Reverse(ctx, shared.ID, "wrong patient", manager); err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	got = f.store.courseByID(crs.ID)
	assertBalanced(t, got)
	if got.Remaining != 1 || got.Status != course.StatusActive {
		t.Fatalf("expected ACTIVE with one session back, got remaining %d status %s", got.Remaining, got.Status)
	}
	if s := f.store.referralCase(ownerCase.ID).Status; s != referral.StatusAccepted {
		t.Fatalf("owner case must stay ACCEPTED, got %s", s)
	}
}

func TestComplete_CrossClinicNeedsAssessment(t *testing.T) {
	f := newFixture(t)
	a, crs, pn := f.bookWithCase(t, otherClinic, 3)
	ctx := context.Background()

	_, err := f.mgr.Complete(ctx, a.ID, CompleteRequest{
		Assessment: &referral.Assessment{Diagnosis: strp("Lumbar strain")},
	}, staff)

	var aerr *referral.AssessmentRequiredError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected AssessmentRequiredError, got %v", err)
	}
	want := []string{"chief_complaint", "present_history", "pain_score"}
	if len(aerr.Missing) != len(want) {
		t.Fatalf("expected missing %v, got %v", want, aerr.Missing)
	}
	for i := range want {
		if aerr.Missing[i] != want[i] {
			t.Fatalf("expected missing %v, got %v", want, aerr.Missing)
		}
	}

	if s := f.store.appointment(a.ID).Status; s != StatusScheduled {
		t.Fatalf("appointment must stay SCHEDULED, got %s", s)
	}
	if s := f.store.referralCase(pn.ID).Status; s != referral.StatusPending {
		t.Fatalf("referral must stay PENDING, got %s", s)
	}
	if got := f.store.courseByID(crs.ID); got.Used != 0 {
		t.Fatalf("course must not be debited, used %d", got.Used)
	}
	if n := len(f.store.ledgerEntries()); n != 0 {
		t.Fatalf("expected no ledger entries, got %d", n)
	}

	pain := 6
	_, err = f.mgr.Complete(ctx, a.ID, CompleteRequest{
		Assessment: &referral.Assessment{
			Diagnosis:      strp("Lumbar strain"),
			ChiefComplaint: strp("Pain when bending"),
			PresentHistory: strp("Two weeks after lifting"),
			PainScore:      &pain,
		},
		BodyAnnotationRef: strp("annotations/lumbar-1.json"),
	}, staff)
	if err != nil {
		t.Fatalf("Complete with assessment: %v", err)
	}

	got := f.store.referralCase(pn.ID)
	if got.Status != referral.StatusAccepted || got.Assessment.Diagnosis == nil || *got.Assessment.Diagnosis != "Lumbar strain" {
		t.Fatalf("expected accepted case with merged assessment, got %+v", got)
	}
	if ref := f.store.appointment(a.ID).BodyAnnotationRef; ref == nil || *ref != "annotations/lumbar-1.json" {
		t.Fatalf("expected body annotation ref to be stored")
	}
}

func TestComplete_RejectsPainScoreOutOfRange(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, registered(patientA, pt1, "09:00", "10:00"))
	pain := 11

	_, err := f.mgr.Complete(context.Background(), a.ID, CompleteRequest{
		Assessment: &referral.Assessment{PainScore: &pain},
	}, staff)

	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Fields["pain_score"] == "" {
		t.Fatalf("expected pain_score validation error, got %v", err)
	}
}

func TestReverse_RestoresSessionAndReferral(t *testing.T) {
	f := newFixture(t)
	a, crs, pn := f.bookWithCase(t, homeClinic, 1)
	ctx := context.Background()

	if _, err := f.mgr.Complete(ctx, a.ID, CompleteRequest{}, staff); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	rev, err := f.mgr.Reverse(ctx, a.ID, "completed by mistake", manager)
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if rev.Status != StatusScheduled || rev.CompletedAt != nil {
		t.Fatalf("expected SCHEDULED without completion time, got %+v", rev)
	}

	got := f.store.courseByID(crs.ID)
	if got.Remaining != 1 || got.Status != course.StatusActive {
		t.Fatalf("expected remaining 1 ACTIVE, got %d %s", got.Remaining, got.Status)
	}
	assertBalanced(t, got)

	c := f.store.referralCase(pn.ID)
	if c.Status != referral.StatusPending || c.AcceptedAt != nil {
		t.Fatalf("expected PENDING case, got %+v", c)
	}

	hist := f.store.historyFor(pn.ID)
	last := hist[len(hist)-1]
	if !last.IsReversal || last.OldStatus != referral.StatusAccepted || last.NewStatus != referral.StatusPending {
		t.Fatalf("unexpected reversal history %+v", last)
	}
	if last.ActorID == nil || *last.ActorID != manager.ID {
		t.Fatalf("expected manager as history actor")
	}
}

func TestReverse_RequiresElevatedRole(t *testing.T) {
	f := newFixture(t)
	a, crs, _ := f.bookWithCase(t, homeClinic, 2)
	ctx := context.Background()

	if _, err := f.mgr.Complete(ctx, a.ID, CompleteRequest{}, staff); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	before := f.store.courseByID(crs.ID)
	audits := f.store.auditCount()

	for _, actor := range []Actor{staff, staff2, selfPatA} {
		_, err := f.mgr.Reverse(ctx, a.ID, "", actor)
		var aerr *AuthorizationError
		if !errors.As(err, &aerr) {
			t.Fatalf("%s: expected AuthorizationError, got %v", actor.Role, err)
		}
	}

	if s := f.store.appointment(a.ID).Status; s != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", s)
	}
	if got := f.store.courseByID(crs.ID); got.Used != before.Used || got.Remaining != before.Remaining || got.Status != before.Status {
		t.Fatalf("course changed: %+v -> %+v", before, got)
	}
	if f.store.auditCount() != audits {
		t.Fatalf("rejected reversal must not write audit rows")
	}
}

func TestReverse_OnlyFromCompleted(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, registered(patientA, pt1, "09:00", "10:00"))

	_, err := f.mgr.Reverse(context.Background(), a.ID, "", manager)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCompleteReverseComplete_OneNetDebit(t *testing.T) {
	f := newFixture(t)
	a, crs, _ := f.bookWithCase(t, homeClinic, 3)
	ctx := context.Background()

	steps := []func() error{
		func() error { _, err := f.mgr.Complete(ctx, a.ID, CompleteRequest{}, staff); return err },
		func() error { _, err := f.mgr.Reverse(ctx, a.ID, "wrong patient", manager); return err },
		func() error { _, err := f.mgr.Complete(ctx, a.ID, CompleteRequest{}, staff); return err },
		func() error { _, err := f.mgr.Complete(ctx, a.ID, CompleteRequest{}, staff); return err },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		assertBalanced(t, f.store.courseByID(crs.ID))
	}

	got := f.store.courseByID(crs.ID)
	if got.Used != 1 || got.Remaining != 2 {
		t.Fatalf("expected one net debit, got used %d remaining %d", got.Used, got.Remaining)
	}
}

func TestCancel_CompletedAcceptedReferralReturnsSession(t *testing.T) {
	f := newFixture(t)
	a, crs, pn := f.bookWithCase(t, homeClinic, 2)
	ctx := context.Background()

	if _, err := f.mgr.Complete(ctx, a.ID, CompleteRequest{}, staff); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got := f.store.courseByID(crs.ID); got.Remaining != 1 {
		t.Fatalf("expected remaining 1 after completion, got %d", got.Remaining)
	}

	cancelled, err := f.mgr.Cancel(ctx, a.ID, "double entry", manager)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled || cancelled.CancellationReason == nil || cancelled.CancelledBy == nil {
		t.Fatalf("unexpected cancelled appointment %+v", cancelled)
	}

	got := f.store.courseByID(crs.ID)
	if got.Remaining != 2 {
		t.Fatalf("expected session returned, remaining %d", got.Remaining)
	}
	assertBalanced(t, got)
	if s := f.store.referralCase(pn.ID).Status; s != referral.StatusCancelled {
		t.Fatalf("expected CANCELLED referral, got %s", s)
	}

	var returns int
	for _, e := range f.store.ledgerEntries() {
		if e.Kind == course.KindReturn {
			returns++
		}
	}
	if returns != 1 {
		t.Fatalf("expected exactly one RETURN, got %d", returns)
	}

	evs := f.events.ofType(EventCancelled)
	if len(evs) != 1 || evs[0].Reason != "double entry" {
		t.Fatalf("expected cancelled event with reason, got %+v", evs)
	}
}

func TestCancel_ScheduledPendingReferralWithoutCourse(t *testing.T) {
	f := newFixture(t)
	pn := f.addCase(patientA, homeClinic, nil)
	req := registered(patientA, pt1, "09:00", "10:00")
	req.ReferralCaseID = &pn.ID
	a := f.book(t, req)

	if _, err := f.mgr.Cancel(context.Background(), a.ID, "", staff); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if s := f.store.referralCase(pn.ID).Status; s != referral.StatusCancelled {
		t.Fatalf("expected CANCELLED referral, got %s", s)
	}
	if n := len(f.store.ledgerEntries()); n != 0 {
		t.Fatalf("expected no ledger entries, got %d", n)
	}
	hist := f.store.historyFor(pn.ID)
	if len(hist) != 1 || hist[0].OldStatus != referral.StatusPending || hist[0].NewStatus != referral.StatusCancelled {
		t.Fatalf("unexpected history %+v", hist)
	}
}

func TestCancel_RequiresOwnerOrElevated(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, registered(patientA, pt1, "09:00", "10:00"))
	ctx := context.Background()

	_, err := f.mgr.Cancel(ctx, a.ID, "", staff2)
	var aerr *AuthorizationError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}
	if s := f.store.appointment(a.ID).Status; s != StatusScheduled {
		t.Fatalf("expected SCHEDULED, got %s", s)
	}

	if _, err := f.mgr.Cancel(ctx, a.ID, "cannot make it", selfPatA); err != nil {
		t.Fatalf("owning patient cancel: %v", err)
	}
}

func TestGet_PatientSeesOnlyOwnAppointments(t *testing.T) {
	f := newFixture(t)
	mine := f.book(t, registered(patientA, pt1, "09:00", "10:00"))
	theirs := f.book(t, registered(patientB, pt1, "10:00", "11:00"))
	ctx := context.Background()

	if got, err := f.mgr.Get(ctx, mine.ID, selfPatA); err != nil || got.ID != mine.ID {
		t.Fatalf("own appointment: %v %v", got, err)
	}
	if _, err := f.mgr.Get(ctx, theirs.ID, staff2); err != nil {
		t.Fatalf("staff read: %v", err)
	}

	_, err := f.mgr.Get(ctx, theirs.ID, selfPatA)
	var aerr *AuthorizationError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}
	if _, err := f.mgr.Get(ctx, uuid.New(), staff); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}
}

func TestCancel_TerminalStatesRejected(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, registered(patientA, pt1, "09:00", "10:00"))
	ctx := context.Background()

	if _, err := f.mgr.Cancel(ctx, a.ID, "", manager); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := f.mgr.Cancel(ctx, a.ID, "", manager); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := f.mgr.Complete(ctx, a.ID, CompleteRequest{}, staff); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on complete, got %v", err)
	}
}

func TestReschedule_ExcludesSelfAndEmitsPrevious(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, registered(patientA, pt1, "09:00", "10:00"))

	moved, err := f.mgr.Reschedule(context.Background(), a.ID, RescheduleRequest{
		Date: day, Start: tod("09:30"), End: tod("10:30"),
	}, staff)
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if moved.Start != tod("09:30") || moved.End != tod("10:30") {
		t.Fatalf("unexpected range %s-%s", moved.Start, moved.End)
	}

	evs := f.events.ofType(EventRescheduled)
	if len(evs) != 1 || evs[0].PreviousStart == nil || *evs[0].PreviousStart != tod("09:00") {
		t.Fatalf("expected reschedule event with previous start, got %+v", evs)
	}
}

func TestReschedule_ConflictLeavesAppointmentUntouched(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, registered(patientA, pt1, "09:00", "10:00"))
	other := f.book(t, registered(patientB, pt1, "11:00", "12:00"))

	_, err := f.mgr.Reschedule(context.Background(), a.ID, RescheduleRequest{
		Date: day, Start: tod("11:30"), End: tod("12:30"),
	}, staff)

	var cerr *ConflictError
	if !errors.As(err, &cerr) || cerr.Conflicts[0].ID != other.ID {
		t.Fatalf("expected conflict with %s, got %v", other.ID, err)
	}
	if got := f.store.appointment(a.ID); got.Start != tod("09:00") {
		t.Fatalf("appointment moved despite conflict: %s", got.Start)
	}
	if n := len(f.events.ofType(EventRescheduled)); n != 0 {
		t.Fatalf("expected no reschedule event, got %d", n)
	}
}

func TestReschedule_UnchangedIsNoop(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, registered(patientA, pt1, "09:00", "10:00"))
	audits := f.store.auditCount()

	if _, err := f.mgr.Reschedule(context.Background(), a.ID, RescheduleRequest{
		Date: day, Start: tod("09:00"), End: tod("10:00"),
	}, staff); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if f.store.auditCount() != audits || len(f.events.ofType(EventRescheduled)) != 0 {
		t.Fatalf("unchanged reschedule must not write or emit")
	}
}

func TestReschedule_NotAfterCompletion(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, registered(patientA, pt1, "09:00", "10:00"))
	ctx := context.Background()
	if _, err := f.mgr.Complete(ctx, a.ID, CompleteRequest{}, staff); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	_, err := f.mgr.Reschedule(ctx, a.ID, RescheduleRequest{Date: day, Start: tod("14:00"), End: tod("15:00")}, staff)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestChangeStatus(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, registered(patientA, pt1, "09:00", "10:00"))
	ctx := context.Background()

	if _, err := f.mgr.ChangeStatus(ctx, a.ID, TransitionConfirm, selfPatA); err != nil {
		t.Fatalf("confirm by owner: %v", err)
	}
	if _, err := f.mgr.ChangeStatus(ctx, a.ID, TransitionStart, selfPatA); err == nil {
		t.Fatal("patient must not start a session")
	}
	if _, err := f.mgr.ChangeStatus(ctx, a.ID, TransitionStart, staff); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.mgr.ChangeStatus(ctx, a.ID, TransitionComplete, staff); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete through ChangeStatus must be rejected, got %v", err)
	}
	got, err := f.mgr.ChangeStatus(ctx, a.ID, TransitionNoShow, staff)
	if err != nil {
		t.Fatalf("no-show: %v", err)
	}
	if got.Status != StatusNoShow {
		t.Fatalf("expected NO_SHOW, got %s", got.Status)
	}
	if n := len(f.events.ofType(EventStatusChanged)); n != 3 {
		t.Fatalf("expected 3 status events, got %d", n)
	}
}

func TestCheckConflict(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, registered(patientA, pt1, "09:00", "10:00"))
	ctx := context.Background()

	res, err := f.mgr.CheckConflict(ctx, OverlapQuery{PractitionerID: pt1, Date: day, Start: tod("09:30"), End: tod("10:30")})
	if err != nil {
		t.Fatalf("CheckConflict: %v", err)
	}
	if !res.HasConflict || len(res.Conflicts) != 1 {
		t.Fatalf("expected one conflict, got %+v", res)
	}

	res, err = f.mgr.CheckConflict(ctx, OverlapQuery{PractitionerID: pt1, Date: day, Start: tod("09:30"), End: tod("10:30"), ExcludeID: &a.ID})
	if err != nil {
		t.Fatalf("CheckConflict: %v", err)
	}
	if res.HasConflict {
		t.Fatalf("excluded appointment must not conflict")
	}

	_, err = f.mgr.CheckConflict(ctx, OverlapQuery{PractitionerID: pt1, Date: day, Start: tod("10:00"), End: tod("10:00")})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for empty range, got %v", err)
	}
}

func TestAvailableSlots(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, registered(patientA, pt1, "10:00", "11:00"))
	ctx := context.Background()

	all, err := f.mgr.AvailableSlots(ctx, homeClinic, day, nil)
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	if len(all) != 22 {
		t.Fatalf("expected 22 slots in 09:00-20:00, got %d", len(all))
	}

	free, err := f.mgr.AvailableSlots(ctx, homeClinic, day, &pt1)
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	if len(free) != 20 {
		t.Fatalf("expected 20 free slots, got %d", len(free))
	}
	for _, s := range free {
		if s.Start == tod("10:00") || s.Start == tod("10:30") {
			t.Fatalf("booked slot %s offered", s.Start)
		}
	}

	if _, err := f.mgr.Cancel(ctx, a.ID, "", manager); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	free, _ = f.mgr.AvailableSlots(ctx, homeClinic, day, &pt1)
	if len(free) != 22 {
		t.Fatalf("cancelled appointment must free its slots, got %d", len(free))
	}
}

func TestAvailableSlots_TodayInClinicTimezone(t *testing.T) {
	bangkok, err := time.LoadLocation("Asia/Bangkok")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 03:10 UTC is 10:10 in Bangkok.
	now := time.Date(2025, 3, 10, 3, 10, 0, 0, time.UTC)
	f := newFixture(t, func(o *Options) {
		o.Location = bangkok
		o.Now = func() time.Time { return now }
	})

	slots, err := f.mgr.AvailableSlots(context.Background(), homeClinic, day, nil)
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	if len(slots) == 0 || slots[0].Start != tod("10:00") {
		t.Fatalf("expected first slot 10:00, got %+v", slots)
	}
}

func TestEventsCarryCommittedState(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, BookingRequest{
		Kind:           KindWalkIn,
		VisitorName:    strp("Walk In"),
		VisitorEmail:   strp("walkin@example.com"),
		PractitionerID: pt1,
		ClinicID:       homeClinic,
		Date:           day,
		Start:          tod("15:00"),
		End:            tod("15:30"),
	})

	evs := f.events.ofType(EventCreated)
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	ev := evs[0]
	if ev.AppointmentID != a.ID || ev.Status != StatusScheduled || ev.ActorID != staff.ID {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.VisitorEmail == nil || *ev.VisitorEmail != "walkin@example.com" {
		t.Fatalf("expected visitor email on event")
	}
}
