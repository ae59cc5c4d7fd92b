// Package worker consumes attendance events and raises low-attendance alerts.
package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"schoolattend/internal/attendance"
	"schoolattend/internal/domain"
	"schoolattend/internal/metrics"
	"schoolattend/internal/queue"
)

// Summarizer computes a class summary for one day.
type Summarizer interface {
	Summarize(ctx context.Context, classID, date string) (attendance.Summary, error)
}

// Alert describes a class day below the attendance threshold.
type Alert struct {
	ClassID    string
	ClassName  string
	Date       string
	Percentage int
	Threshold  int
	Absent     []string
}

// Processor recomputes the summary named by each event.
type Processor struct {
	summaries Summarizer
	threshold int
	metrics   *metrics.Metrics
	log       *zap.Logger
}

// NewProcessor creates a processor alerting below threshold percent.
func NewProcessor(s Summarizer, threshold int, m *metrics.Metrics, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{summaries: s, threshold: threshold, metrics: m, log: log}
}

// Handle processes one message. It returns a non-nil Alert when the class
// day is below the threshold. Unknown message types are ignored.
func (p *Processor) Handle(ctx context.Context, msg queue.Message) (*Alert, error) {
	if msg.Type != attendance.EventMarked {
		return nil, nil
	}
	var evt attendance.MarkedEvent
	if err := msg.Decode(&evt); err != nil {
		return nil, fmt.Errorf("decode %s: %w", msg.Type, err)
	}
	sum, err := p.summaries.Summarize(ctx, evt.ClassID, evt.Date)
	if err != nil {
		return nil, fmt.Errorf("summarize %s on %s: %w", evt.ClassID, evt.Date, err)
	}
	p.metrics.SetClassPercentage(sum.ClassID, sum.Percentage)
	if sum.Total == 0 || sum.Percentage >= p.threshold {
		return nil, nil
	}

	alert := &Alert{
		ClassID:    sum.ClassID,
		ClassName:  sum.ClassName,
		Date:       sum.Date,
		Percentage: sum.Percentage,
		Threshold:  p.threshold,
	}
	for _, st := range sum.Students {
		if st.Status == domain.StatusAbsent {
			alert.Absent = append(alert.Absent, st.Name)
		}
	}
	p.log.Warn("low attendance",
		zap.String("class_id", alert.ClassID),
		zap.String("class_name", alert.ClassName),
		zap.String("date", alert.Date),
		zap.Int("percentage", alert.Percentage),
		zap.Int("threshold", alert.Threshold),
		zap.Strings("absent", alert.Absent))
	return alert, nil
}

// Run consumes q until ctx ends. Failed messages are logged and skipped.
func (p *Processor) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	p.log.Info("worker started", zap.Int("threshold", p.threshold))
	for msg := range messages {
		if _, err := p.Handle(ctx, msg); err != nil {
			if domain.CodeOf(err) == domain.CodeClassNotFound {
				p.log.Info("event for deleted class dropped", zap.Error(err))
				continue
			}
			p.log.Error("event processing failed", zap.String("type", msg.Type), zap.Error(err))
		}
	}
	p.log.Info("worker stopped")
	return nil
}
