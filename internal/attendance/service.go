// Package attendance records daily marks and aggregates them into summaries.
package attendance

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"schoolattend/internal/domain"
	"schoolattend/internal/metrics"
	"schoolattend/internal/queue"
	"schoolattend/internal/roster"
)

// EventMarked is published after a batch saved at least one record.
const EventMarked = "attendance.marked"

// maxReportDays bounds SummarizeRange.
const maxReportDays = 366

// MarkedEvent is the body of an EventMarked message.
type MarkedEvent struct {
	ClassID string `json:"classId"`
	Date    string `json:"date"`
	Saved   int    `json:"saved"`
}

// Publisher receives attendance events. queue.Queue satisfies it.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Entry is one student's mark inside a batch.
type Entry struct {
	StudentID string
	Status    string
}

// MarkRequest is a batch of marks for one class and one day.
type MarkRequest struct {
	ClassID string
	Date    string
	Entries []Entry
}

// RecordView is an attendance record with class and student display data.
type RecordView struct {
	ID          string        `json:"id"`
	ClassID     string        `json:"classId"`
	ClassName   string        `json:"className"`
	StudentID   string        `json:"studentId"`
	StudentName string        `json:"studentName"`
	RollNumber  string        `json:"rollNumber"`
	Date        string        `json:"date"`
	Status      domain.Status `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// EntryError explains why one entry of a batch was not saved.
type EntryError struct {
	StudentID string      `json:"studentId"`
	Code      domain.Code `json:"code"`
	Reason    string      `json:"reason"`
}

// MarkResult carries both halves of a partially successful batch.
type MarkResult struct {
	SavedRecords []RecordView `json:"savedRecords"`
	Errors       []EntryError `json:"errors"`
}

// Report is a multi-day rollup.
type Report struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	Days []Summary `json:"days"`
}

// ListFilter selects records for ListRecords; empty fields match everything.
type ListFilter struct {
	ClassID   string
	StudentID string
	Date      string
}

// Service coordinates attendance recording and aggregation.
type Service struct {
	store   domain.Store
	roster  *roster.Service
	events  Publisher
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewService creates a service. events and m may be nil.
func NewService(store domain.Store, roster *roster.Service, events Publisher, m *metrics.Metrics, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, roster: roster, events: events, metrics: m, log: log}
}

// MarkAttendance validates the batch parameters, then upserts every entry
// independently. Entry failures are returned in MarkResult.Errors.
func (s *Service) MarkAttendance(ctx context.Context, req MarkRequest) (MarkResult, error) {
	class, err := s.roster.GetClass(ctx, req.ClassID)
	if err != nil {
		return MarkResult{}, err
	}
	day, err := domain.ParseDay(req.Date)
	if err != nil {
		return MarkResult{}, err
	}
	if len(req.Entries) == 0 {
		return MarkResult{}, domain.Errorf(domain.CodeInvalidArgument, "records must not be empty")
	}

	res := MarkResult{SavedRecords: []RecordView{}, Errors: []EntryError{}}
	for _, e := range req.Entries {
		view, err := s.markOne(ctx, class, day, e)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			code := domain.CodeOf(err)
			reason := err.Error()
			var de *domain.Error
			if errors.As(err, &de) {
				reason = de.Message
			} else {
				s.log.Error("attendance upsert failed",
					zap.String("class_id", class.ID), zap.String("student_id", e.StudentID), zap.Error(err))
				reason = "internal error"
			}
			res.Errors = append(res.Errors, EntryError{StudentID: e.StudentID, Code: code, Reason: reason})
			s.metrics.MarkRejected(string(code))
			continue
		}
		res.SavedRecords = append(res.SavedRecords, view)
		s.metrics.MarkSaved(string(view.Status))
	}

	s.log.Info("attendance marked",
		zap.String("class_id", class.ID), zap.String("date", domain.FormatDay(day)),
		zap.Int("saved", len(res.SavedRecords)), zap.Int("rejected", len(res.Errors)))

	if len(res.SavedRecords) > 0 {
		s.publish(ctx, MarkedEvent{ClassID: class.ID, Date: domain.FormatDay(day), Saved: len(res.SavedRecords)})
	}
	return res, nil
}

func (s *Service) markOne(ctx context.Context, class domain.Class, day time.Time, e Entry) (RecordView, error) {
	status, ok := domain.ParseStatus(e.Status)
	if !ok {
		return RecordView{}, domain.Errorf(domain.CodeInvalidArgument, "status %q must be present or absent", e.Status)
	}
	student, err := s.store.GetStudent(ctx, e.StudentID)
	if errors.Is(err, domain.ErrNotFound) {
		return RecordView{}, domain.Errorf(domain.CodeStudentNotFound, "student %s not found", e.StudentID)
	}
	if err != nil {
		return RecordView{}, err
	}
	enrolled, err := s.roster.IsEnrolled(ctx, student.ID, class.ID)
	if err != nil {
		return RecordView{}, err
	}
	if !enrolled {
		return RecordView{}, domain.Errorf(domain.CodeNotEnrolled, "student %s is not enrolled in class %s", student.ID, class.ID)
	}
	rec, err := s.store.UpsertAttendance(ctx, domain.AttendanceRecord{
		ClassID:   class.ID,
		StudentID: student.ID,
		Date:      day,
		Status:    status,
	})
	if err != nil {
		return RecordView{}, err
	}
	return toView(rec, class, student), nil
}

func (s *Service) publish(ctx context.Context, evt MarkedEvent) {
	if s.events == nil {
		return
	}
	msg, err := queue.NewMessage(EventMarked, evt)
	if err == nil {
		err = s.events.Publish(ctx, msg)
	}
	if err != nil {
		s.log.Warn("queue publish failed", zap.String("class_id", evt.ClassID), zap.Error(err))
	}
}

// Summarize computes the statistics of a class for one day.
func (s *Service) Summarize(ctx context.Context, classID, date string) (Summary, error) {
	class, err := s.roster.GetClass(ctx, classID)
	if err != nil {
		return Summary{}, err
	}
	day, err := domain.ParseDay(date)
	if err != nil {
		return Summary{}, err
	}
	enrolled, err := s.store.StudentsInClass(ctx, class.ID)
	if err != nil {
		return Summary{}, err
	}
	if len(enrolled) == 0 {
		return Summary{ClassID: class.ID, ClassName: class.Name, Date: domain.FormatDay(day), Students: []StudentStatus{}}, nil
	}
	records, err := s.store.ListAttendance(ctx, domain.AttendanceFilter{
		ClassID: class.ID,
		From:    day,
		To:      domain.NextDay(day),
	})
	if err != nil {
		return Summary{}, err
	}
	sum := newSummary(class.ID, domain.FormatDay(day), enrolled, records)
	sum.ClassName = class.Name
	return sum, nil
}

type groupKey struct {
	day     time.Time
	classID string
}

// SummarizeRange groups the records of [from, to] by (day, class) and
// summarizes every group against the class's current enrollment. An empty
// classID covers all classes.
func (s *Service) SummarizeRange(ctx context.Context, classID, from, to string) (Report, error) {
	start, err := domain.ParseDay(from)
	if err != nil {
		return Report{}, err
	}
	end, err := domain.ParseDay(to)
	if err != nil {
		return Report{}, err
	}
	if end.Before(start) {
		return Report{}, domain.Errorf(domain.CodeInvalidDate, "to %s is before from %s", to, from)
	}
	if end.Sub(start) >= maxReportDays*24*time.Hour {
		return Report{}, domain.Errorf(domain.CodeInvalidArgument, "range must not exceed %d days", maxReportDays)
	}
	if classID != "" {
		if _, err := s.roster.GetClass(ctx, classID); err != nil {
			return Report{}, err
		}
	}

	records, err := s.store.ListAttendance(ctx, domain.AttendanceFilter{
		ClassID: classID,
		From:    start,
		To:      domain.NextDay(end),
	})
	if err != nil {
		return Report{}, err
	}

	groups := make(map[groupKey][]domain.AttendanceRecord)
	var keys []groupKey
	for _, r := range records {
		k := groupKey{day: domain.StartOfDay(r.Date), classID: r.ClassID}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], r)
	}
	sort.Slice(keys, func(i, j int) bool {
		if !keys[i].day.Equal(keys[j].day) {
			return keys[i].day.Before(keys[j].day)
		}
		return keys[i].classID < keys[j].classID
	})

	enrolledBy := make(map[string][]domain.Student)
	classes := make(map[string]domain.Class)
	report := Report{From: domain.FormatDay(start), To: domain.FormatDay(end), Days: make([]Summary, 0, len(keys))}
	for _, k := range keys {
		enrolled, ok := enrolledBy[k.classID]
		if !ok {
			if enrolled, err = s.store.StudentsInClass(ctx, k.classID); err != nil {
				return Report{}, err
			}
			enrolledBy[k.classID] = enrolled
			if c, err := s.store.GetClass(ctx, k.classID); err == nil {
				classes[k.classID] = c
			}
		}
		sum := newSummary(k.classID, domain.FormatDay(k.day), enrolled, groups[k])
		sum.ClassName = classes[k.classID].Name
		sum.Students = nil
		report.Days = append(report.Days, sum)
	}
	return report, nil
}

// ListRecords returns stored records with display data resolved.
func (s *Service) ListRecords(ctx context.Context, f ListFilter) ([]RecordView, error) {
	filter := domain.AttendanceFilter{ClassID: f.ClassID, StudentID: f.StudentID}
	if f.Date != "" {
		day, err := domain.ParseDay(f.Date)
		if err != nil {
			return nil, err
		}
		filter.From, filter.To = day, domain.NextDay(day)
	}
	records, err := s.store.ListAttendance(ctx, filter)
	if err != nil {
		return nil, err
	}
	classes := make(map[string]domain.Class)
	students := make(map[string]domain.Student)
	out := make([]RecordView, 0, len(records))
	for _, r := range records {
		c, ok := classes[r.ClassID]
		if !ok {
			if c, err = s.store.GetClass(ctx, r.ClassID); err != nil && !errors.Is(err, domain.ErrNotFound) {
				return nil, err
			}
			classes[r.ClassID] = c
		}
		st, ok := students[r.StudentID]
		if !ok {
			if st, err = s.store.GetStudent(ctx, r.StudentID); err != nil && !errors.Is(err, domain.ErrNotFound) {
				return nil, err
			}
			students[r.StudentID] = st
		}
		out = append(out, toView(r, c, st))
	}
	return out, nil
}

// DeleteRecord removes one record; the day then reads as unmarked.
func (s *Service) DeleteRecord(ctx context.Context, id string) error {
	err := s.store.DeleteAttendance(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Errorf(domain.CodeNotFound, "attendance record %s not found", id)
	}
	return err
}

func toView(r domain.AttendanceRecord, c domain.Class, st domain.Student) RecordView {
	return RecordView{
		ID:          r.ID,
		ClassID:     r.ClassID,
		ClassName:   c.Name,
		StudentID:   r.StudentID,
		StudentName: st.Name,
		RollNumber:  st.RollNumber,
		Date:        domain.FormatDay(r.Date),
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}
