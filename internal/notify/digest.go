package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zulandar/padtest/internal/models"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule checks a 5-field cron expression.
func ParseSchedule(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("notify: schedule %q: %w", expr, err)
	}
	return nil
}

// Digest summarises the runs stored in a period.
type Digest struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	Runs        int
	Tests       int
	Partial     int
	// MinSafety is the lowest safety factor reported, 0 without safety tests.
	MinSafety float64
	ByKind    []KindDigest
}

// KindDigest holds test counts for one kind.
type KindDigest struct {
	Kind    string
	Tests   int
	Partial int
}

// BuildDigest reads the runs created in [since, until).
func BuildDigest(db *gorm.DB, since, until time.Time) (*Digest, error) {
	d := &Digest{PeriodStart: since, PeriodEnd: until}

	var runIDs []string
	if err := db.Model(&models.Run{}).
		Where("created_at >= ? AND created_at < ?", since, until).
		Pluck("id", &runIDs).Error; err != nil {
		return nil, fmt.Errorf("notify: digest runs: %w", err)
	}
	d.Runs = len(runIDs)
	if d.Runs == 0 {
		return d, nil
	}

	var outcomes []models.TestOutcome
	if err := db.Where("run_id IN ?", runIDs).Find(&outcomes).Error; err != nil {
		return nil, fmt.Errorf("notify: digest tests: %w", err)
	}
	byKind := map[string]*KindDigest{}
	for _, o := range outcomes {
		d.Tests++
		kd, ok := byKind[o.Kind]
		if !ok {
			kd = &KindDigest{Kind: o.Kind}
			byKind[o.Kind] = kd
		}
		kd.Tests++
		if o.Status != "complete" {
			d.Partial++
			kd.Partial++
		}
		if o.SafetyFactor > 0 && (d.MinSafety == 0 || o.SafetyFactor < d.MinSafety) {
			d.MinSafety = o.SafetyFactor
		}
	}
	for _, kd := range byKind {
		d.ByKind = append(d.ByKind, *kd)
	}
	sort.Slice(d.ByKind, func(i, j int) bool { return d.ByKind[i].Kind < d.ByKind[j].Kind })
	return d, nil
}

// FormatDigest formats a digest as an event.
func FormatDigest(d *Digest) Event {
	var body []string
	body = append(body, fmt.Sprintf("**Period**: %s – %s",
		d.PeriodStart.Format("Jan 2 15:04"),
		d.PeriodEnd.Format("Jan 2 15:04")))
	body = append(body, fmt.Sprintf("**Runs**: %d, **Tests**: %d (%d partial)", d.Runs, d.Tests, d.Partial))
	if d.MinSafety > 0 {
		body = append(body, fmt.Sprintf("**Lowest safety factor**: %s", num(d.MinSafety)))
	}
	if len(d.ByKind) > 0 {
		body = append(body, "", "**Per kind**:")
		for _, kd := range d.ByKind {
			body = append(body, fmt.Sprintf("  %s: %d tests, %d partial", kd.Kind, kd.Tests, kd.Partial))
		}
	}

	severity := "info"
	if d.Partial > 0 {
		severity = "warning"
	}
	return Event{
		Title:    "Run Digest",
		Body:     strings.Join(body, "\n"),
		Severity: severity,
		Color:    severityColor(severity),
		Fields: []Field{
			{Name: "Runs", Value: fmt.Sprintf("%d", d.Runs), Short: true},
			{Name: "Tests", Value: fmt.Sprintf("%d", d.Tests), Short: true},
		},
	}
}

// Scheduler posts a digest of the new runs on a cron schedule.
type Scheduler struct {
	db  *gorm.DB
	hub *Hub
	log *zap.Logger
	now func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewScheduler creates a scheduler whose first digest covers runs created
// from now on.
func NewScheduler(db *gorm.DB, hub *Hub, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{db: db, hub: hub, log: log, now: time.Now, last: time.Now()}
}

// Post sends the digest of the runs since the previous post. Empty periods
// are skipped.
func (s *Scheduler) Post(ctx context.Context) error {
	s.mu.Lock()
	since, until := s.last, s.now()
	s.mu.Unlock()

	d, err := BuildDigest(s.db, since, until)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.last = until
	s.mu.Unlock()
	if d.Runs == 0 {
		s.log.Debug("digest skipped, no runs", zap.Time("since", since))
		return nil
	}
	evt := FormatDigest(d)
	return s.hub.Send(ctx, Message{Text: evt.Title, Events: []Event{evt}})
}

// Run posts on the schedule until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, expr string) error {
	c := cron.New(cron.WithParser(cronParser))
	_, err := c.AddFunc(expr, func() {
		if err := s.Post(ctx); err != nil {
			s.log.Warn("post digest", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("notify: schedule %q: %w", expr, err)
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
