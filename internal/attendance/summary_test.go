package attendance

import (
	"testing"

	"schoolattend/internal/domain"
)

func TestPercentage(t *testing.T) {
	tests := []struct {
		present, total, want int
	}{
		{0, 0, 0},
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13}, // 12.5 rounds up
		{1, 200, 1}, // 0.5 rounds up
		{3, 3, 100},
		{0, 5, 0},
	}
	for _, tt := range tests {
		if got := Percentage(tt.present, tt.total); got != tt.want {
			t.Errorf("Percentage(%d, %d) = %d, want %d", tt.present, tt.total, got, tt.want)
		}
	}
}

func TestTallyDefaultsToAbsentAndIgnoresOrphans(t *testing.T) {
	enrolled := []domain.Student{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}, {ID: "c", Name: "C"}}
	records := []domain.AttendanceRecord{
		{StudentID: "a", Status: domain.StatusPresent},
		{StudentID: "b", Status: domain.StatusAbsent},
		{StudentID: "gone", Status: domain.StatusPresent},
	}
	present, statuses := Tally(enrolled, records)
	if present != 1 {
		t.Fatalf("present = %d, want 1", present)
	}
	if len(statuses) != 3 {
		t.Fatalf("statuses = %d", len(statuses))
	}
	if statuses[2].Status != domain.StatusAbsent || statuses[2].Marked {
		t.Fatalf("unmarked student resolved to %+v", statuses[2])
	}
	if !statuses[1].Marked {
		t.Fatal("explicit absent must be reported as marked")
	}
}
