package roster

import (
	"context"
	"errors"
	"testing"

	"schoolattend/internal/domain"
	"schoolattend/internal/store/memory"
)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	st := memory.New()
	return NewService(st, nil), st
}

func mustClass(t *testing.T, s *Service, name string) domain.Class {
	t.Helper()
	c, err := s.CreateClass(context.Background(), ClassInput{Name: name}, "admin-1")
	if err != nil {
		t.Fatalf("CreateClass(%q): %v", name, err)
	}
	return c
}

func mustStudent(t *testing.T, s *Service, name, roll string, classIDs ...string) StudentView {
	t.Helper()
	v, err := s.CreateStudent(context.Background(), StudentInput{
		Name: name, RollNumber: roll, Email: name + "@school.test", ClassIDs: classIDs,
	})
	if err != nil {
		t.Fatalf("CreateStudent(%q): %v", name, err)
	}
	return v
}

func classIDs(classes []domain.Class) []string {
	out := make([]string, 0, len(classes))
	for _, c := range classes {
		out = append(out, c.ID)
	}
	return out
}

func TestCreateClassTrimsAndValidates(t *testing.T) {
	s, _ := newService(t)
	c := mustClass(t, s, "  Grade 5A  ")
	if c.Name != "Grade 5A" || c.CreatedBy != "admin-1" {
		t.Fatalf("unexpected class %+v", c)
	}
	_, err := s.CreateClass(context.Background(), ClassInput{Name: "   "}, "admin-1")
	if domain.CodeOf(err) != domain.CodeInvalidArgument {
		t.Fatalf("blank name: got %v", err)
	}
}

func TestUpdateClassNotFound(t *testing.T) {
	s, _ := newService(t)
	_, err := s.UpdateClass(context.Background(), "missing", ClassInput{Name: "X"})
	if !errors.Is(err, domain.ErrClassNotFound) {
		t.Fatalf("got %v, want ClassNotFound", err)
	}
}

func TestCreateStudentNormalizesFields(t *testing.T) {
	s, _ := newService(t)
	a := mustClass(t, s, "A")
	v, err := s.CreateStudent(context.Background(), StudentInput{
		Name: " Ada ", RollNumber: " 001 ", Email: "  Ada@School.TEST ", ClassIDs: []string{a.ID, a.ID},
	})
	if err != nil {
		t.Fatal(err)
	}
	if v.Name != "Ada" || v.RollNumber != "001" || v.Email != "ada@school.test" {
		t.Fatalf("fields not normalized: %+v", v.Student)
	}
	if len(v.Classes) != 1 || v.Classes[0].ID != a.ID {
		t.Fatalf("classes = %+v, want only %s", v.Classes, a.ID)
	}
}

func TestCreateStudentValidation(t *testing.T) {
	s, _ := newService(t)
	a := mustClass(t, s, "A")
	tests := []struct {
		name string
		in   StudentInput
		want error
	}{
		{"no classes", StudentInput{Name: "n", RollNumber: "1", Email: "e@x"}, domain.ErrEmptyEnrollmentSet},
		{"blank class ids", StudentInput{Name: "n", RollNumber: "1", Email: "e@x", ClassIDs: []string{" "}}, domain.ErrEmptyEnrollmentSet},
		{"unknown class", StudentInput{Name: "n", RollNumber: "1", Email: "e@x", ClassIDs: []string{a.ID, "nope"}}, domain.ErrClassNotFound},
		{"missing name", StudentInput{RollNumber: "1", Email: "e@x", ClassIDs: []string{a.ID}}, &domain.Error{Code: domain.CodeInvalidArgument}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateStudent(context.Background(), tt.in)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
	all, _ := s.ListStudents(context.Background(), "")
	if len(all) != 0 {
		t.Fatalf("failed creates left %d students behind", len(all))
	}
}

func TestRollNumberUniquePerClass(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	a := mustClass(t, s, "A")
	b := mustClass(t, s, "B")

	mustStudent(t, s, "ann", "001", a.ID)
	mustStudent(t, s, "bob", "001", b.ID)

	_, err := s.CreateStudent(ctx, StudentInput{Name: "cat", RollNumber: "001", Email: "cat@x", ClassIDs: []string{a.ID}})
	if !errors.Is(err, domain.ErrDuplicateRollNumber) {
		t.Fatalf("got %v, want DuplicateRollNumber", err)
	}

	// moving bob into A would clash with ann
	bobs, _ := s.ListStudents(ctx, b.ID)
	_, err = s.Enroll(ctx, bobs[0].ID, []string{a.ID, b.ID})
	if !errors.Is(err, domain.ErrDuplicateRollNumber) {
		t.Fatalf("re-enroll: got %v, want DuplicateRollNumber", err)
	}
	classes, _ := s.ClassesForStudent(ctx, bobs[0].ID)
	if got := classIDs(classes); len(got) != 1 || got[0] != b.ID {
		t.Fatalf("failed enroll changed memberships: %v", got)
	}
}

func TestUpdateStudentKeepsOwnRollNumber(t *testing.T) {
	s, _ := newService(t)
	a := mustClass(t, s, "A")
	ann := mustStudent(t, s, "ann", "001", a.ID)

	v, err := s.UpdateStudent(context.Background(), ann.ID, StudentInput{
		Name: "Ann B", RollNumber: "001", Email: "ann@x", ClassIDs: []string{a.ID},
	})
	if err != nil {
		t.Fatalf("UpdateStudent: %v", err)
	}
	if v.Name != "Ann B" {
		t.Fatalf("name = %q", v.Name)
	}
}

func TestUpdateStudentNotFound(t *testing.T) {
	s, _ := newService(t)
	a := mustClass(t, s, "A")
	_, err := s.UpdateStudent(context.Background(), "ghost", StudentInput{Name: "g", RollNumber: "1", Email: "g@x", ClassIDs: []string{a.ID}})
	if !errors.Is(err, domain.ErrStudentNotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestEnrollIsFullReplace(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	a := mustClass(t, s, "A")
	b := mustClass(t, s, "B")
	c := mustClass(t, s, "C")
	st := mustStudent(t, s, "ann", "001", a.ID)

	if _, err := s.Enroll(ctx, st.ID, []string{a.ID, b.ID}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Enroll(ctx, st.ID, []string{c.ID})
	if err != nil {
		t.Fatal(err)
	}
	if ids := classIDs(got); len(ids) != 1 || ids[0] != c.ID {
		t.Fatalf("classes = %v, want [%s]", ids, c.ID)
	}
	for _, old := range []string{a.ID, b.ID} {
		ok, _ := s.IsEnrolled(ctx, st.ID, old)
		if ok {
			t.Fatalf("leftover enrollment in %s", old)
		}
		members, _ := s.StudentsInClass(ctx, old)
		if len(members) != 0 {
			t.Fatalf("class %s still lists %d students", old, len(members))
		}
	}
}

func TestEnrollRejectsEmptyAndUnknown(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	a := mustClass(t, s, "A")
	st := mustStudent(t, s, "ann", "001", a.ID)

	if _, err := s.Enroll(ctx, st.ID, nil); !errors.Is(err, domain.ErrEmptyEnrollmentSet) {
		t.Fatalf("empty: got %v", err)
	}
	if _, err := s.Enroll(ctx, st.ID, []string{"zzz"}); !errors.Is(err, domain.ErrClassNotFound) {
		t.Fatalf("unknown: got %v", err)
	}
	if _, err := s.Enroll(ctx, "ghost", []string{a.ID}); !errors.Is(err, domain.ErrStudentNotFound) {
		t.Fatalf("ghost: got %v", err)
	}
	if ok, _ := s.IsEnrolled(ctx, st.ID, a.ID); !ok {
		t.Fatal("rejected enroll must keep previous membership")
	}
}

func TestStudentsInClassOrderAndEmpty(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	a := mustClass(t, s, "A")
	empty := mustClass(t, s, "Empty")

	first := mustStudent(t, s, "first", "1", a.ID)
	second := mustStudent(t, s, "second", "2", a.ID)

	got, err := s.StudentsInClass(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != first.ID || got[1].ID != second.ID {
		t.Fatalf("order = %+v", got)
	}

	none, err := s.StudentsInClass(ctx, empty.ID)
	if err != nil || none == nil || len(none) != 0 {
		t.Fatalf("empty class: %v, %v", none, err)
	}
	if _, err := s.StudentsInClass(ctx, "missing"); !errors.Is(err, domain.ErrClassNotFound) {
		t.Fatalf("missing class: %v", err)
	}
}

func TestDeleteClassCascadesEnrollments(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	a := mustClass(t, s, "A")
	b := mustClass(t, s, "B")
	st := mustStudent(t, s, "ann", "1", a.ID, b.ID)

	if err := s.DeleteClass(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	classes, _ := s.ClassesForStudent(ctx, st.ID)
	if ids := classIDs(classes); len(ids) != 1 || ids[0] != b.ID {
		t.Fatalf("classes after delete = %v", ids)
	}
	if err := s.DeleteClass(ctx, a.ID); !errors.Is(err, domain.ErrClassNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestDeleteStudent(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	a := mustClass(t, s, "A")
	st := mustStudent(t, s, "ann", "1", a.ID)

	if err := s.DeleteStudent(ctx, st.ID); err != nil {
		t.Fatal(err)
	}
	members, _ := s.StudentsInClass(ctx, a.ID)
	if len(members) != 0 {
		t.Fatalf("members = %d", len(members))
	}
	if err := s.DeleteStudent(ctx, st.ID); !errors.Is(err, domain.ErrStudentNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}
