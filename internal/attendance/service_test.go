package attendance

import (
	"context"
	"sync"
	"testing"

	"schoolattend/internal/domain"
	"schoolattend/internal/queue"
	"schoolattend/internal/roster"
	"schoolattend/internal/store/memory"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []queue.Message
}

func (p *recordingPublisher) Publish(_ context.Context, msg queue.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

type fixture struct {
	svc    *Service
	roster *roster.Service
	pub    *recordingPublisher
	class  domain.Class
	ids    []string
}

// newFixture creates one class with n enrolled students.
func newFixture(t *testing.T, n int) fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	rs := roster.NewService(st, nil)
	pub := &recordingPublisher{}
	svc := NewService(st, rs, pub, nil, nil)

	class, err := rs.CreateClass(ctx, roster.ClassInput{Name: "Grade 5A"}, "admin")
	if err != nil {
		t.Fatalf("CreateClass: %v", err)
	}
	f := fixture{svc: svc, roster: rs, pub: pub, class: class}
	names := []string{"Asha", "Ben", "Chen", "Dara", "Eli", "Fay", "Gus", "Hana"}
	for i := 0; i < n; i++ {
		v, err := rs.CreateStudent(ctx, roster.StudentInput{
			Name:       names[i],
			RollNumber: names[i][:1] + "-01",
			Email:      names[i] + "@school.test",
			ClassIDs:   []string{class.ID},
		})
		if err != nil {
			t.Fatalf("CreateStudent: %v", err)
		}
		f.ids = append(f.ids, v.ID)
	}
	return f
}

func (f fixture) mark(t *testing.T, date string, entries ...Entry) MarkResult {
	t.Helper()
	res, err := f.svc.MarkAttendance(context.Background(), MarkRequest{ClassID: f.class.ID, Date: date, Entries: entries})
	if err != nil {
		t.Fatalf("MarkAttendance: %v", err)
	}
	return res
}

func TestMarkIsIdempotentOverwrite(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	first := f.mark(t, "2024-03-01", Entry{StudentID: f.ids[0], Status: "present"})
	second := f.mark(t, "2024-03-01T15:30:00Z", Entry{StudentID: f.ids[0], Status: "ABSENT"})
	if len(first.SavedRecords) != 1 || len(second.SavedRecords) != 1 {
		t.Fatalf("saved = %d, %d", len(first.SavedRecords), len(second.SavedRecords))
	}
	if first.SavedRecords[0].ID != second.SavedRecords[0].ID {
		t.Fatalf("overwrite created a new record: %s vs %s", first.SavedRecords[0].ID, second.SavedRecords[0].ID)
	}

	recs, err := f.svc.ListRecords(ctx, ListFilter{ClassID: f.class.ID, Date: "2024-03-01"})
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(recs) != 1 || recs[0].Status != domain.StatusAbsent {
		t.Fatalf("records = %+v", recs)
	}
	if recs[0].StudentName != "Asha" || recs[0].ClassName != "Grade 5A" {
		t.Fatalf("display data missing: %+v", recs[0])
	}
}

func TestSummaryCountsUnmarkedAsAbsent(t *testing.T) {
	f := newFixture(t, 3)
	f.mark(t, "2024-03-01", Entry{StudentID: f.ids[0], Status: "present"})

	sum, err := f.svc.Summarize(context.Background(), f.class.ID, "2024-03-01")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.Total != 3 || sum.Present != 1 || sum.Absent != 2 || sum.Percentage != 33 {
		t.Fatalf("summary = %+v", sum)
	}
	if len(sum.Students) != 3 || sum.Students[1].Marked || sum.Students[1].Status != domain.StatusAbsent {
		t.Fatalf("students = %+v", sum.Students)
	}
}

func TestSummaryAllPresent(t *testing.T) {
	f := newFixture(t, 2)
	f.mark(t, "2024-03-02",
		Entry{StudentID: f.ids[0], Status: "present"},
		Entry{StudentID: f.ids[1], Status: "present"},
	)
	sum, err := f.svc.Summarize(context.Background(), f.class.ID, "2024-03-02")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.Percentage != 100 || sum.Absent != 0 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestSummaryEmptyClass(t *testing.T) {
	f := newFixture(t, 0)
	sum, err := f.svc.Summarize(context.Background(), f.class.ID, "2024-03-01")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.Total != 0 || sum.Present != 0 || sum.Absent != 0 || sum.Percentage != 0 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestSummaryIgnoresOtherDays(t *testing.T) {
	f := newFixture(t, 1)
	f.mark(t, "2024-03-01", Entry{StudentID: f.ids[0], Status: "present"})
	sum, err := f.svc.Summarize(context.Background(), f.class.ID, "2024-03-02")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.Present != 0 || sum.Percentage != 0 {
		t.Fatalf("summary leaked another day: %+v", sum)
	}
}

func TestMarkPartialBatch(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	other, err := f.roster.CreateClass(ctx, roster.ClassInput{Name: "Grade 6B"}, "admin")
	if err != nil {
		t.Fatalf("CreateClass: %v", err)
	}
	outsider, err := f.roster.CreateStudent(ctx, roster.StudentInput{
		Name: "Ivo", RollNumber: "I-01", Email: "ivo@school.test", ClassIDs: []string{other.ID},
	})
	if err != nil {
		t.Fatalf("CreateStudent: %v", err)
	}

	res := f.mark(t, "2024-03-01",
		Entry{StudentID: f.ids[0], Status: "present"},
		Entry{StudentID: outsider.ID, Status: "present"},
		Entry{StudentID: "ghost", Status: "present"},
		Entry{StudentID: f.ids[1], Status: "late"},
	)
	if len(res.SavedRecords) != 1 || res.SavedRecords[0].StudentID != f.ids[0] {
		t.Fatalf("saved = %+v", res.SavedRecords)
	}
	want := []domain.Code{domain.CodeNotEnrolled, domain.CodeStudentNotFound, domain.CodeInvalidArgument}
	if len(res.Errors) != len(want) {
		t.Fatalf("errors = %+v", res.Errors)
	}
	for i, code := range want {
		if res.Errors[i].Code != code {
			t.Errorf("errors[%d].Code = %s, want %s", i, res.Errors[i].Code, code)
		}
	}
	if len(f.pub.msgs) != 1 || f.pub.msgs[0].Type != EventMarked {
		t.Fatalf("published = %+v", f.pub.msgs)
	}
	var evt MarkedEvent
	if err := f.pub.msgs[0].Decode(&evt); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if evt.ClassID != f.class.ID || evt.Date != "2024-03-01" || evt.Saved != 1 {
		t.Fatalf("event = %+v", evt)
	}
}

func TestMarkRejectsBadBatch(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	entry := Entry{StudentID: f.ids[0], Status: "present"}
	cases := []struct {
		name string
		req  MarkRequest
		want domain.Code
	}{
		{"unknown class", MarkRequest{ClassID: "nope", Date: "2024-03-01", Entries: []Entry{entry}}, domain.CodeClassNotFound},
		{"bad date", MarkRequest{ClassID: f.class.ID, Date: "03/01/2024", Entries: []Entry{entry}}, domain.CodeInvalidDate},
		{"no entries", MarkRequest{ClassID: f.class.ID, Date: "2024-03-01"}, domain.CodeInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.MarkAttendance(ctx, tc.req)
			if domain.CodeOf(err) != tc.want {
				t.Fatalf("got %v, want %s", err, tc.want)
			}
		})
	}
	if len(f.pub.msgs) != 0 {
		t.Fatalf("rejected batch published %d events", len(f.pub.msgs))
	}
}

func TestSummarizeRange(t *testing.T) {
	f := newFixture(t, 2)
	f.mark(t, "2024-03-03", Entry{StudentID: f.ids[0], Status: "present"})
	f.mark(t, "2024-03-01",
		Entry{StudentID: f.ids[0], Status: "present"},
		Entry{StudentID: f.ids[1], Status: "present"},
	)
	f.mark(t, "2024-04-01", Entry{StudentID: f.ids[1], Status: "present"})

	rep, err := f.svc.SummarizeRange(context.Background(), f.class.ID, "2024-03-01", "2024-03-31")
	if err != nil {
		t.Fatalf("SummarizeRange: %v", err)
	}
	if len(rep.Days) != 2 {
		t.Fatalf("days = %+v", rep.Days)
	}
	if rep.Days[0].Date != "2024-03-01" || rep.Days[0].Percentage != 100 {
		t.Errorf("day 0 = %+v", rep.Days[0])
	}
	if rep.Days[1].Date != "2024-03-03" || rep.Days[1].Percentage != 50 {
		t.Errorf("day 1 = %+v", rep.Days[1])
	}
	if rep.Days[0].Students != nil {
		t.Errorf("range summaries should not carry per-student rows")
	}
}

func TestSummarizeRangeValidation(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	if _, err := f.svc.SummarizeRange(ctx, "", "2024-03-02", "2024-03-01"); domain.CodeOf(err) != domain.CodeInvalidDate {
		t.Errorf("reversed range: %v", err)
	}
	if _, err := f.svc.SummarizeRange(ctx, "", "2023-01-01", "2024-12-31"); domain.CodeOf(err) != domain.CodeInvalidArgument {
		t.Errorf("long range: %v", err)
	}
	if _, err := f.svc.SummarizeRange(ctx, "", "2024-01-01", "2025-01-01"); domain.CodeOf(err) != domain.CodeInvalidArgument {
		t.Errorf("367 day range: %v", err)
	}
	if _, err := f.svc.SummarizeRange(ctx, "", "2024-01-01", "2024-12-31"); err != nil {
		t.Errorf("366 day range: %v", err)
	}
	if _, err := f.svc.SummarizeRange(ctx, "missing", "2024-01-01", "2024-01-02"); domain.CodeOf(err) != domain.CodeClassNotFound {
		t.Errorf("unknown class: %v", err)
	}
}

func TestDeleteRecord(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	res := f.mark(t, "2024-03-01", Entry{StudentID: f.ids[0], Status: "present"})
	if err := f.svc.DeleteRecord(ctx, res.SavedRecords[0].ID); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if err := f.svc.DeleteRecord(ctx, res.SavedRecords[0].ID); domain.CodeOf(err) != domain.CodeNotFound {
		t.Fatalf("second delete: %v", err)
	}
	sum, err := f.svc.Summarize(ctx, f.class.ID, "2024-03-01")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.Present != 0 || sum.Students[0].Marked {
		t.Fatalf("summary after delete = %+v", sum)
	}
}
