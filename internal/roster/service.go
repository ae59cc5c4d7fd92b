// Package roster manages classes, students and the enrollments between them.
package roster

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"schoolattend/internal/domain"
)

// ClassInput carries the writable fields of a class.
type ClassInput struct {
	Name            string
	AssignedTeacher *string
}

// StudentInput carries the writable fields of a student plus the full set of
// classes the student must belong to afterwards.
type StudentInput struct {
	Name       string
	RollNumber string
	Email      string
	ClassIDs   []string
}

// ClassRef is the short form of a class embedded in student responses.
type ClassRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StudentView is a student together with its current classes.
type StudentView struct {
	domain.Student
	Classes []ClassRef `json:"classIds"`
}

// Service resolves enrollments and validates roster writes.
type Service struct {
	store domain.Store
	log   *zap.Logger
}

// NewService creates a service backed by a store.
func NewService(store domain.Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, log: log}
}

// ---------- classes ----------

// CreateClass stores a new class owned by createdBy.
func (s *Service) CreateClass(ctx context.Context, in ClassInput, createdBy string) (domain.Class, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Class{}, domain.Errorf(domain.CodeInvalidArgument, "class name is required")
	}
	return s.store.CreateClass(ctx, domain.Class{
		Name:            name,
		CreatedBy:       createdBy,
		AssignedTeacher: trimmedOrNil(in.AssignedTeacher),
	})
}

// ListClasses returns every class.
func (s *Service) ListClasses(ctx context.Context) ([]domain.Class, error) {
	return s.store.ListClasses(ctx)
}

// GetClass returns a class or ClassNotFound.
func (s *Service) GetClass(ctx context.Context, id string) (domain.Class, error) {
	return getClass(ctx, s.store, id)
}

// UpdateClass renames a class and sets its assigned teacher.
func (s *Service) UpdateClass(ctx context.Context, id string, in ClassInput) (domain.Class, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Class{}, domain.Errorf(domain.CodeInvalidArgument, "class name is required")
	}
	c, err := s.store.UpdateClass(ctx, domain.Class{ID: id, Name: name, AssignedTeacher: trimmedOrNil(in.AssignedTeacher)})
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Class{}, domain.Errorf(domain.CodeClassNotFound, "class %s not found", id)
	}
	return c, err
}

// DeleteClass removes a class along with its enrollments and attendance.
func (s *Service) DeleteClass(ctx context.Context, id string) error {
	err := s.store.DeleteClass(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Errorf(domain.CodeClassNotFound, "class %s not found", id)
	}
	if err == nil {
		s.log.Info("class deleted", zap.String("class_id", id))
	}
	return err
}

// ---------- enrollment resolver ----------

// StudentsInClass returns the enrolled students in insertion order. A class
// without enrollments yields an empty slice.
func (s *Service) StudentsInClass(ctx context.Context, classID string) ([]domain.Student, error) {
	if _, err := getClass(ctx, s.store, classID); err != nil {
		return nil, err
	}
	return s.store.StudentsInClass(ctx, classID)
}

// ClassesForStudent returns the classes a student is enrolled in.
func (s *Service) ClassesForStudent(ctx context.Context, studentID string) ([]domain.Class, error) {
	if _, err := getStudent(ctx, s.store, studentID); err != nil {
		return nil, err
	}
	return s.store.ClassesForStudent(ctx, studentID)
}

// IsEnrolled reports whether the enrollment row for the pair exists.
func (s *Service) IsEnrolled(ctx context.Context, studentID, classID string) (bool, error) {
	return s.store.IsEnrolled(ctx, studentID, classID)
}

// Enroll replaces the full enrollment set of a student with classIDs.
func (s *Service) Enroll(ctx context.Context, studentID string, classIDs []string) ([]domain.Class, error) {
	var classes []domain.Class
	err := s.store.WithTx(ctx, func(tx domain.Store) error {
		st, err := getStudent(ctx, tx, studentID)
		if err != nil {
			return err
		}
		ids, err := checkEnrollment(ctx, tx, st, classIDs)
		if err != nil {
			return err
		}
		if err := replaceEnrollments(ctx, tx, st.ID, ids); err != nil {
			return err
		}
		classes, err = tx.ClassesForStudent(ctx, st.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("enrollment replaced", zap.String("student_id", studentID), zap.Int("classes", len(classes)))
	return classes, nil
}

// ---------- students ----------

// CreateStudent stores a student and its enrollments atomically.
func (s *Service) CreateStudent(ctx context.Context, in StudentInput) (StudentView, error) {
	st, err := normalizeStudent(in)
	if err != nil {
		return StudentView{}, err
	}
	var view StudentView
	err = s.store.WithTx(ctx, func(tx domain.Store) error {
		ids, err := checkEnrollment(ctx, tx, st, in.ClassIDs)
		if err != nil {
			return err
		}
		created, err := tx.CreateStudent(ctx, st)
		if err != nil {
			return err
		}
		if err := replaceEnrollments(ctx, tx, created.ID, ids); err != nil {
			return err
		}
		view, err = loadView(ctx, tx, created)
		return err
	})
	return view, err
}

// UpdateStudent rewrites a student's fields and replaces its enrollments.
func (s *Service) UpdateStudent(ctx context.Context, id string, in StudentInput) (StudentView, error) {
	st, err := normalizeStudent(in)
	if err != nil {
		return StudentView{}, err
	}
	st.ID = id
	var view StudentView
	err = s.store.WithTx(ctx, func(tx domain.Store) error {
		if _, err := getStudent(ctx, tx, id); err != nil {
			return err
		}
		ids, err := checkEnrollment(ctx, tx, st, in.ClassIDs)
		if err != nil {
			return err
		}
		updated, err := tx.UpdateStudent(ctx, st)
		if err != nil {
			return err
		}
		if err := replaceEnrollments(ctx, tx, id, ids); err != nil {
			return err
		}
		view, err = loadView(ctx, tx, updated)
		return err
	})
	return view, err
}

// GetStudent returns a student with its classes.
func (s *Service) GetStudent(ctx context.Context, id string) (StudentView, error) {
	st, err := getStudent(ctx, s.store, id)
	if err != nil {
		return StudentView{}, err
	}
	return loadView(ctx, s.store, st)
}

// ListStudents returns all students, or only those enrolled in classID.
func (s *Service) ListStudents(ctx context.Context, classID string) ([]StudentView, error) {
	var (
		students []domain.Student
		err      error
	)
	if classID != "" {
		students, err = s.StudentsInClass(ctx, classID)
	} else {
		students, err = s.store.ListStudents(ctx)
	}
	if err != nil {
		return nil, err
	}
	out := make([]StudentView, 0, len(students))
	for _, st := range students {
		v, err := loadView(ctx, s.store, st)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// DeleteStudent removes a student along with its enrollments and attendance.
func (s *Service) DeleteStudent(ctx context.Context, id string) error {
	err := s.store.DeleteStudent(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Errorf(domain.CodeStudentNotFound, "student %s not found", id)
	}
	if err == nil {
		s.log.Info("student deleted", zap.String("student_id", id))
	}
	return err
}

// ---------- helpers ----------

func getClass(ctx context.Context, store domain.RosterStore, id string) (domain.Class, error) {
	c, err := store.GetClass(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Class{}, domain.Errorf(domain.CodeClassNotFound, "class %s not found", id)
	}
	return c, err
}

func getStudent(ctx context.Context, store domain.RosterStore, id string) (domain.Student, error) {
	st, err := store.GetStudent(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Student{}, domain.Errorf(domain.CodeStudentNotFound, "student %s not found", id)
	}
	return st, err
}

func normalizeStudent(in StudentInput) (domain.Student, error) {
	st := domain.Student{
		Name:       strings.TrimSpace(in.Name),
		RollNumber: strings.TrimSpace(in.RollNumber),
		Email:      domain.NormalizeEmail(in.Email),
	}
	switch {
	case st.Name == "":
		return st, domain.Errorf(domain.CodeInvalidArgument, "name is required")
	case st.RollNumber == "":
		return st, domain.Errorf(domain.CodeInvalidArgument, "rollNumber is required")
	case st.Email == "":
		return st, domain.Errorf(domain.CodeInvalidArgument, "email is required")
	}
	return st, nil
}

// checkEnrollment validates the desired class set for st and returns it
// de-duplicated in request order. st.ID is empty for a student not yet stored.
func checkEnrollment(ctx context.Context, store domain.RosterStore, st domain.Student, classIDs []string) ([]string, error) {
	ids := dedupe(classIDs)
	if len(ids) == 0 {
		return nil, domain.ErrEmptyEnrollmentSet
	}
	for _, id := range ids {
		if _, err := getClass(ctx, store, id); err != nil {
			return nil, err
		}
	}
	for _, id := range ids {
		members, err := store.StudentsInClass(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			if m.ID != st.ID && m.RollNumber == st.RollNumber {
				return nil, domain.Errorf(domain.CodeDuplicateRollNumber,
					"roll number %q already exists in class %s", st.RollNumber, id)
			}
		}
	}
	return ids, nil
}

// replaceEnrollments deletes every enrollment of the student, then inserts one
// row per class.
func replaceEnrollments(ctx context.Context, store domain.RosterStore, studentID string, classIDs []string) error {
	if err := store.DeleteEnrollmentsForStudent(ctx, studentID); err != nil {
		return err
	}
	for _, classID := range classIDs {
		_, err := store.InsertEnrollment(ctx, domain.Enrollment{StudentID: studentID, ClassID: classID})
		switch {
		case errors.Is(err, domain.ErrConflict):
			return domain.Errorf(domain.CodeDuplicateEnrollment, "student %s already enrolled in class %s", studentID, classID)
		case errors.Is(err, domain.ErrNotFound):
			return domain.Errorf(domain.CodeClassNotFound, "class %s not found", classID)
		case err != nil:
			return err
		}
	}
	return nil
}

func loadView(ctx context.Context, store domain.RosterStore, st domain.Student) (StudentView, error) {
	classes, err := store.ClassesForStudent(ctx, st.ID)
	if err != nil {
		return StudentView{}, err
	}
	refs := make([]ClassRef, 0, len(classes))
	for _, c := range classes {
		refs = append(refs, ClassRef{ID: c.ID, Name: c.Name})
	}
	return StudentView{Student: st, Classes: refs}, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
