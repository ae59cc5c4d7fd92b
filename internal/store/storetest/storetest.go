// Package storetest holds the behaviour every domain.Store backend must share.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"schoolattend/internal/domain"
)

// Run exercises s against the domain.Store contract. Data is created with
// fresh ids so the suite can run against a shared database.
func Run(t *testing.T, s domain.Store) {
	t.Helper()
	t.Run("ClassLifecycle", func(t *testing.T) { classLifecycle(t, s) })
	t.Run("EnrollmentOrder", func(t *testing.T) { enrollmentOrder(t, s) })
	t.Run("UpsertAttendance", func(t *testing.T) { upsertAttendance(t, s) })
	t.Run("CascadeDelete", func(t *testing.T) { cascadeDelete(t, s) })
	t.Run("Users", func(t *testing.T) { users(t, s) })
	t.Run("Rollback", func(t *testing.T) { rollback(t, s) })
}

func mustDay(t *testing.T, v string) time.Time {
	t.Helper()
	d, err := domain.ParseDay(v)
	if err != nil {
		t.Fatalf("ParseDay(%q): %v", v, err)
	}
	return d
}

func newClass(t *testing.T, s domain.Store) domain.Class {
	t.Helper()
	c, err := s.CreateClass(context.Background(), domain.Class{Name: "class-" + uuid.NewString()[:8], CreatedBy: "tester"})
	if err != nil {
		t.Fatalf("CreateClass: %v", err)
	}
	return c
}

func newStudent(t *testing.T, s domain.Store, name string) domain.Student {
	t.Helper()
	st, err := s.CreateStudent(context.Background(), domain.Student{
		Name: name, RollNumber: uuid.NewString()[:6], Email: uuid.NewString() + "@school.test",
	})
	if err != nil {
		t.Fatalf("CreateStudent: %v", err)
	}
	return st
}

func enroll(t *testing.T, s domain.Store, studentID, classID string) {
	t.Helper()
	if _, err := s.InsertEnrollment(context.Background(), domain.Enrollment{StudentID: studentID, ClassID: classID}); err != nil {
		t.Fatalf("InsertEnrollment: %v", err)
	}
}

func classLifecycle(t *testing.T, s domain.Store) {
	ctx := context.Background()
	c := newClass(t, s)
	teacher := "t-1"
	c.Name = "renamed"
	c.AssignedTeacher = &teacher
	updated, err := s.UpdateClass(ctx, c)
	if err != nil {
		t.Fatalf("UpdateClass: %v", err)
	}
	if updated.Name != "renamed" || updated.AssignedTeacher == nil || *updated.AssignedTeacher != teacher {
		t.Fatalf("updated = %+v", updated)
	}
	if err := s.DeleteClass(ctx, c.ID); err != nil {
		t.Fatalf("DeleteClass: %v", err)
	}
	if _, err := s.GetClass(ctx, c.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetClass after delete: %v", err)
	}
	if err := s.DeleteClass(ctx, c.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second DeleteClass: %v", err)
	}
}

func enrollmentOrder(t *testing.T, s domain.Store) {
	ctx := context.Background()
	c := newClass(t, s)
	first := newStudent(t, s, "first")
	second := newStudent(t, s, "second")
	enroll(t, s, second.ID, c.ID)
	enroll(t, s, first.ID, c.ID)

	got, err := s.StudentsInClass(ctx, c.ID)
	if err != nil {
		t.Fatalf("StudentsInClass: %v", err)
	}
	if len(got) != 2 || got[0].ID != second.ID || got[1].ID != first.ID {
		t.Fatalf("order = %+v", got)
	}
	if _, err := s.InsertEnrollment(ctx, domain.Enrollment{StudentID: first.ID, ClassID: c.ID}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate enrollment: %v", err)
	}
	ok, err := s.IsEnrolled(ctx, first.ID, c.ID)
	if err != nil || !ok {
		t.Fatalf("IsEnrolled = %v, %v", ok, err)
	}
	if err := s.DeleteEnrollmentsForStudent(ctx, first.ID); err != nil {
		t.Fatalf("DeleteEnrollmentsForStudent: %v", err)
	}
	if classes, _ := s.ClassesForStudent(ctx, first.ID); len(classes) != 0 {
		t.Fatalf("classes after delete = %+v", classes)
	}
	empty := newClass(t, s)
	if got, err := s.StudentsInClass(ctx, empty.ID); err != nil || got == nil || len(got) != 0 {
		t.Fatalf("empty class = %#v, %v", got, err)
	}
}

func upsertAttendance(t *testing.T, s domain.Store) {
	ctx := context.Background()
	c := newClass(t, s)
	st := newStudent(t, s, "marked")
	enroll(t, s, st.ID, c.ID)

	d := mustDay(t, "2024-03-01")
	first, err := s.UpsertAttendance(ctx, domain.AttendanceRecord{ClassID: c.ID, StudentID: st.ID, Date: d, Status: domain.StatusPresent})
	if err != nil {
		t.Fatalf("UpsertAttendance: %v", err)
	}
	second, err := s.UpsertAttendance(ctx, domain.AttendanceRecord{ClassID: c.ID, StudentID: st.ID, Date: d, Status: domain.StatusAbsent})
	if err != nil {
		t.Fatalf("UpsertAttendance: %v", err)
	}
	if first.ID != second.ID || second.Status != domain.StatusAbsent || !second.Date.Equal(d) {
		t.Fatalf("first = %+v, second = %+v", first, second)
	}
	if _, err := s.UpsertAttendance(ctx, domain.AttendanceRecord{ClassID: c.ID, StudentID: st.ID, Date: mustDay(t, "2024-03-02"), Status: domain.StatusPresent}); err != nil {
		t.Fatalf("UpsertAttendance: %v", err)
	}

	day1, err := s.ListAttendance(ctx, domain.AttendanceFilter{ClassID: c.ID, From: d, To: domain.NextDay(d)})
	if err != nil {
		t.Fatalf("ListAttendance: %v", err)
	}
	if len(day1) != 1 || day1[0].ID != first.ID {
		t.Fatalf("day 1 = %+v", day1)
	}
	all, _ := s.ListAttendance(ctx, domain.AttendanceFilter{StudentID: st.ID})
	if len(all) != 2 || !all[0].Date.Before(all[1].Date) {
		t.Fatalf("all = %+v", all)
	}
	if err := s.DeleteAttendance(ctx, first.ID); err != nil {
		t.Fatalf("DeleteAttendance: %v", err)
	}
	if _, err := s.GetAttendance(ctx, first.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetAttendance after delete: %v", err)
	}
}

func cascadeDelete(t *testing.T, s domain.Store) {
	ctx := context.Background()
	c := newClass(t, s)
	st := newStudent(t, s, "cascade")
	enroll(t, s, st.ID, c.ID)
	if _, err := s.UpsertAttendance(ctx, domain.AttendanceRecord{ClassID: c.ID, StudentID: st.ID, Date: mustDay(t, "2024-03-01"), Status: domain.StatusPresent}); err != nil {
		t.Fatalf("UpsertAttendance: %v", err)
	}
	if err := s.DeleteStudent(ctx, st.ID); err != nil {
		t.Fatalf("DeleteStudent: %v", err)
	}
	if recs, _ := s.ListAttendance(ctx, domain.AttendanceFilter{ClassID: c.ID}); len(recs) != 0 {
		t.Fatalf("records survived student delete: %+v", recs)
	}
	if got, _ := s.StudentsInClass(ctx, c.ID); len(got) != 0 {
		t.Fatalf("enrollments survived student delete: %+v", got)
	}
}

func users(t *testing.T, s domain.Store) {
	ctx := context.Background()
	email := uuid.NewString() + "@school.test"
	u, err := s.CreateUser(ctx, domain.User{Name: "U", Email: email, PasswordHash: "x", Role: domain.RoleTeacher})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := s.CreateUser(ctx, domain.User{Name: "V", Email: email, PasswordHash: "y", Role: domain.RoleAdmin}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate email: %v", err)
	}
	got, err := s.GetUserByEmail(ctx, email)
	if err != nil || got.ID != u.ID || got.PasswordHash != "x" {
		t.Fatalf("GetUserByEmail = %+v, %v", got, err)
	}
	if _, err := s.GetUser(ctx, uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetUser missing: %v", err)
	}
}

func rollback(t *testing.T, s domain.Store) {
	ctx := context.Background()
	var id string
	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx domain.Store) error {
		c, err := tx.CreateClass(ctx, domain.Class{Name: "rolled-back", CreatedBy: "tester"})
		if err != nil {
			return err
		}
		id = c.ID
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx = %v", err)
	}
	if _, err := s.GetClass(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("rolled back class visible: %v", err)
	}
}
