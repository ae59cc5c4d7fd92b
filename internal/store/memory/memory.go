// Package memory is a process-local storage backend with the same uniqueness
// rules as the database backends. It backs STORE_BACKEND=memory and the tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"schoolattend/internal/domain"
)

type dataset struct {
	classes      map[string]domain.Class
	classOrder   []string
	students     map[string]domain.Student
	studentOrder []string
	enrollments  []domain.Enrollment
	records      []domain.AttendanceRecord
	users        map[string]domain.User
}

func newDataset() *dataset {
	return &dataset{
		classes:  make(map[string]domain.Class),
		students: make(map[string]domain.Student),
		users:    make(map[string]domain.User),
	}
}

func (d *dataset) clone() *dataset {
	out := newDataset()
	for k, v := range d.classes {
		out.classes[k] = v
	}
	for k, v := range d.students {
		out.students[k] = v
	}
	for k, v := range d.users {
		out.users[k] = v
	}
	out.classOrder = append([]string(nil), d.classOrder...)
	out.studentOrder = append([]string(nil), d.studentOrder...)
	out.enrollments = append([]domain.Enrollment(nil), d.enrollments...)
	out.records = append([]domain.AttendanceRecord(nil), d.records...)
	return out
}

type state struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	data *dataset
	now  func() time.Time
}

// Store keeps everything in maps guarded by a mutex. Writers outside a
// transaction wait for the open transaction, so a rollback only ever
// discards the transaction's own writes.
type Store struct {
	*state
	inTx bool
}

// New creates an empty store.
func New() *Store {
	return &Store{state: &state{data: newDataset(), now: func() time.Time { return time.Now().UTC() }}}
}

// WithTx serializes transactions and restores a snapshot when fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(tx domain.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	if err := fn(&Store{state: s.state, inTx: true}); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return ctx.Err()
}

func (s *Store) lockWrite() (unlock func()) {
	if !s.inTx {
		s.txMu.Lock()
	}
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		if !s.inTx {
			s.txMu.Unlock()
		}
	}
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// ---------- classes ----------

func (s *Store) CreateClass(_ context.Context, c domain.Class) (domain.Class, error) {
	defer s.lockWrite()()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, ok := s.data.classes[c.ID]; ok {
		return domain.Class{}, domain.ErrConflict
	}
	c.CreatedAt = s.now()
	c.UpdatedAt = c.CreatedAt
	s.data.classes[c.ID] = c
	s.data.classOrder = append(s.data.classOrder, c.ID)
	return c, nil
}

func (s *Store) GetClass(_ context.Context, id string) (domain.Class, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.data.classes[id]
	if !ok {
		return domain.Class{}, domain.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListClasses(_ context.Context) ([]domain.Class, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Class, 0, len(s.data.classOrder))
	for _, id := range s.data.classOrder {
		out = append(out, s.data.classes[id])
	}
	return out, nil
}

func (s *Store) UpdateClass(_ context.Context, c domain.Class) (domain.Class, error) {
	defer s.lockWrite()()
	cur, ok := s.data.classes[c.ID]
	if !ok {
		return domain.Class{}, domain.ErrNotFound
	}
	cur.Name = c.Name
	cur.AssignedTeacher = c.AssignedTeacher
	cur.UpdatedAt = s.now()
	s.data.classes[c.ID] = cur
	return cur, nil
}

// DeleteClass removes the class with its enrollments and attendance records.
func (s *Store) DeleteClass(_ context.Context, id string) error {
	defer s.lockWrite()()
	if _, ok := s.data.classes[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.data.classes, id)
	s.data.classOrder = removeID(s.data.classOrder, id)
	s.data.enrollments = filterEnrollments(s.data.enrollments, func(e domain.Enrollment) bool { return e.ClassID != id })
	s.data.records = filterRecords(s.data.records, func(r domain.AttendanceRecord) bool { return r.ClassID != id })
	return nil
}

// ---------- students ----------

func (s *Store) CreateStudent(_ context.Context, st domain.Student) (domain.Student, error) {
	defer s.lockWrite()()
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if _, ok := s.data.students[st.ID]; ok {
		return domain.Student{}, domain.ErrConflict
	}
	st.CreatedAt = s.now()
	st.UpdatedAt = st.CreatedAt
	s.data.students[st.ID] = st
	s.data.studentOrder = append(s.data.studentOrder, st.ID)
	return st, nil
}

func (s *Store) GetStudent(_ context.Context, id string) (domain.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.data.students[id]
	if !ok {
		return domain.Student{}, domain.ErrNotFound
	}
	return st, nil
}

func (s *Store) ListStudents(_ context.Context) ([]domain.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Student, 0, len(s.data.studentOrder))
	for _, id := range s.data.studentOrder {
		out = append(out, s.data.students[id])
	}
	return out, nil
}

func (s *Store) UpdateStudent(_ context.Context, st domain.Student) (domain.Student, error) {
	defer s.lockWrite()()
	cur, ok := s.data.students[st.ID]
	if !ok {
		return domain.Student{}, domain.ErrNotFound
	}
	cur.Name = st.Name
	cur.RollNumber = st.RollNumber
	cur.Email = st.Email
	cur.UpdatedAt = s.now()
	s.data.students[st.ID] = cur
	return cur, nil
}

// DeleteStudent removes the student with its enrollments and attendance records.
func (s *Store) DeleteStudent(_ context.Context, id string) error {
	defer s.lockWrite()()
	if _, ok := s.data.students[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.data.students, id)
	s.data.studentOrder = removeID(s.data.studentOrder, id)
	s.data.enrollments = filterEnrollments(s.data.enrollments, func(e domain.Enrollment) bool { return e.StudentID != id })
	s.data.records = filterRecords(s.data.records, func(r domain.AttendanceRecord) bool { return r.StudentID != id })
	return nil
}

// ---------- enrollments ----------

func (s *Store) StudentsInClass(_ context.Context, classID string) ([]domain.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Student{}
	for _, e := range s.data.enrollments {
		if e.ClassID != classID {
			continue
		}
		if st, ok := s.data.students[e.StudentID]; ok {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *Store) ClassesForStudent(_ context.Context, studentID string) ([]domain.Class, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Class{}
	for _, e := range s.data.enrollments {
		if e.StudentID != studentID {
			continue
		}
		if c, ok := s.data.classes[e.ClassID]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) IsEnrolled(_ context.Context, studentID, classID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.data.enrollments {
		if e.StudentID == studentID && e.ClassID == classID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) DeleteEnrollmentsForStudent(_ context.Context, studentID string) error {
	defer s.lockWrite()()
	s.data.enrollments = filterEnrollments(s.data.enrollments, func(e domain.Enrollment) bool { return e.StudentID != studentID })
	return nil
}

func (s *Store) InsertEnrollment(_ context.Context, e domain.Enrollment) (domain.Enrollment, error) {
	defer s.lockWrite()()
	for _, cur := range s.data.enrollments {
		if cur.StudentID == e.StudentID && cur.ClassID == e.ClassID {
			return domain.Enrollment{}, domain.ErrConflict
		}
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = s.now()
	e.UpdatedAt = e.CreatedAt
	s.data.enrollments = append(s.data.enrollments, e)
	return e, nil
}

// ---------- attendance ----------

func (s *Store) UpsertAttendance(_ context.Context, rec domain.AttendanceRecord) (domain.AttendanceRecord, error) {
	defer s.lockWrite()()
	rec.Date = domain.StartOfDay(rec.Date)
	now := s.now()
	for i, cur := range s.data.records {
		if cur.ClassID == rec.ClassID && cur.StudentID == rec.StudentID && cur.Date.Equal(rec.Date) {
			cur.Status = rec.Status
			cur.UpdatedAt = now
			s.data.records[i] = cur
			return cur, nil
		}
	}
	rec.ID = uuid.NewString()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	s.data.records = append(s.data.records, rec)
	return rec, nil
}

func (s *Store) ListAttendance(_ context.Context, f domain.AttendanceFilter) ([]domain.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.AttendanceRecord{}
	for _, r := range s.data.records {
		if f.ClassID != "" && r.ClassID != f.ClassID {
			continue
		}
		if f.StudentID != "" && r.StudentID != f.StudentID {
			continue
		}
		if !f.From.IsZero() && r.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !r.Date.Before(f.To) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) GetAttendance(_ context.Context, id string) (domain.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.data.records {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.AttendanceRecord{}, domain.ErrNotFound
}

func (s *Store) DeleteAttendance(_ context.Context, id string) error {
	defer s.lockWrite()()
	n := len(s.data.records)
	s.data.records = filterRecords(s.data.records, func(r domain.AttendanceRecord) bool { return r.ID != id })
	if len(s.data.records) == n {
		return domain.ErrNotFound
	}
	return nil
}

// ---------- users ----------

func (s *Store) CreateUser(_ context.Context, u domain.User) (domain.User, error) {
	defer s.lockWrite()()
	for _, cur := range s.data.users {
		if cur.Email == u.Email {
			return domain.User{}, domain.ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = s.now()
	u.UpdatedAt = u.CreatedAt
	s.data.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.data.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.data.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func filterEnrollments(in []domain.Enrollment, keep func(domain.Enrollment) bool) []domain.Enrollment {
	out := make([]domain.Enrollment, 0, len(in))
	for _, e := range in {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func filterRecords(in []domain.AttendanceRecord, keep func(domain.AttendanceRecord) bool) []domain.AttendanceRecord {
	out := make([]domain.AttendanceRecord, 0, len(in))
	for _, r := range in {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
