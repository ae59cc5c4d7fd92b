package worker

import (
	"context"
	"testing"
	"time"

	"schoolattend/internal/attendance"
	"schoolattend/internal/queue"
	"schoolattend/internal/roster"
	"schoolattend/internal/store/memory"
)

func setup(t *testing.T, marks ...string) (*attendance.Service, string) {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	rs := roster.NewService(st, nil)
	svc := attendance.NewService(st, rs, nil, nil, nil)
	class, err := rs.CreateClass(ctx, roster.ClassInput{Name: "Grade 5A"}, "admin")
	if err != nil {
		t.Fatalf("CreateClass: %v", err)
	}
	var entries []attendance.Entry
	for i, status := range marks {
		name := string(rune('A' + i))
		v, err := rs.CreateStudent(ctx, roster.StudentInput{
			Name: name, RollNumber: name, Email: name + "@school.test", ClassIDs: []string{class.ID},
		})
		if err != nil {
			t.Fatalf("CreateStudent: %v", err)
		}
		entries = append(entries, attendance.Entry{StudentID: v.ID, Status: status})
	}
	if len(entries) > 0 {
		if _, err := svc.MarkAttendance(ctx, attendance.MarkRequest{ClassID: class.ID, Date: "2024-03-01", Entries: entries}); err != nil {
			t.Fatalf("MarkAttendance: %v", err)
		}
	}
	return svc, class.ID
}

func event(t *testing.T, classID string) queue.Message {
	t.Helper()
	msg, err := queue.NewMessage(attendance.EventMarked, attendance.MarkedEvent{ClassID: classID, Date: "2024-03-01", Saved: 1})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	return msg
}

func TestHandleAlertsBelowThreshold(t *testing.T) {
	svc, classID := setup(t, "present", "absent", "absent", "present")
	p := NewProcessor(svc, 75, nil, nil)
	alert, err := p.Handle(context.Background(), event(t, classID))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if alert == nil || alert.Percentage != 50 {
		t.Fatalf("alert = %+v", alert)
	}
	if len(alert.Absent) != 2 || alert.Absent[0] != "B" || alert.Absent[1] != "C" {
		t.Fatalf("absent = %v", alert.Absent)
	}
}

func TestHandleNoAlert(t *testing.T) {
	svc, classID := setup(t, "present", "present", "present", "absent")
	p := NewProcessor(svc, 75, nil, nil)
	alert, err := p.Handle(context.Background(), event(t, classID))
	if err != nil || alert != nil {
		t.Fatalf("Handle = %+v, %v", alert, err)
	}
	if alert, err := p.Handle(context.Background(), queue.Message{Type: "other"}); err != nil || alert != nil {
		t.Fatalf("unknown type = %+v, %v", alert, err)
	}
	if _, err := p.Handle(context.Background(), queue.Message{Type: attendance.EventMarked, Body: []byte("{")}); err == nil {
		t.Fatal("bad body accepted")
	}
}

func TestRunStopsWithContext(t *testing.T) {
	svc, classID := setup(t, "absent")
	q := queue.NewInMemory(4)
	if err := q.Publish(context.Background(), event(t, classID)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- NewProcessor(svc, 75, nil, nil).Run(ctx, q) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
