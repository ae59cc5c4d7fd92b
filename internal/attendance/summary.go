package attendance

import "schoolattend/internal/domain"

// StudentStatus is the resolved status of one enrolled student.
type StudentStatus struct {
	StudentID  string        `json:"studentId"`
	Name       string        `json:"studentName"`
	RollNumber string        `json:"rollNumber"`
	Status     domain.Status `json:"status"`
	Marked     bool          `json:"marked"`
}

// Summary holds the attendance statistics of one class on one day.
type Summary struct {
	ClassID    string          `json:"classId"`
	ClassName  string          `json:"className,omitempty"`
	Date       string          `json:"date"`
	Total      int             `json:"total"`
	Present    int             `json:"present"`
	Absent     int             `json:"absent"`
	Percentage int             `json:"percentage"`
	Students   []StudentStatus `json:"students,omitempty"`
}

// Tally resolves every enrolled student against the day's records. Students
// without a record count as absent; records of students not in enrolled are
// ignored.
func Tally(enrolled []domain.Student, records []domain.AttendanceRecord) (present int, statuses []StudentStatus) {
	marks := make(map[string]domain.Status, len(records))
	for _, r := range records {
		marks[r.StudentID] = r.Status
	}
	statuses = make([]StudentStatus, 0, len(enrolled))
	for _, st := range enrolled {
		status, marked := marks[st.ID]
		if !marked {
			status = domain.StatusAbsent
		}
		if status == domain.StatusPresent {
			present++
		}
		statuses = append(statuses, StudentStatus{
			StudentID:  st.ID,
			Name:       st.Name,
			RollNumber: st.RollNumber,
			Status:     status,
			Marked:     marked,
		})
	}
	return present, statuses
}

// Percentage returns present/total*100 rounded half up, or 0 for an empty class.
func Percentage(present, total int) int {
	if total <= 0 {
		return 0
	}
	return (present*200 + total) / (2 * total)
}

func newSummary(classID string, day string, enrolled []domain.Student, records []domain.AttendanceRecord) Summary {
	present, statuses := Tally(enrolled, records)
	total := len(enrolled)
	return Summary{
		ClassID:    classID,
		Date:       day,
		Total:      total,
		Present:    present,
		Absent:     total - present,
		Percentage: Percentage(present, total),
		Students:   statuses,
	}
}
