package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/npcsense/game/perception"
	"github.com/kasuganosora/npcsense/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entry holds one operator action to be logged.
type Entry struct {
	TraceID    string
	Operator   string
	Action     string
	ZoneID     int
	Agent      string
	Request    interface{}
	Error      string
	IP         string
	DurationMs int
}

// Config tunes the batch writers.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	QueueSize     int
}

func (c *Config) withDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 2 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
}

// Stats reports journal throughput.
type Stats struct {
	TransitionsWritten uint64 `json:"transitions_written"`
	TransitionsDropped uint64 `json:"transitions_dropped"`
	EntriesWritten     uint64 `json:"entries_written"`
	EntriesDropped     uint64 `json:"entries_dropped"`
}

// Service logs operator actions and journals belief transitions
// asynchronously in batches.
type Service struct {
	db      *gorm.DB
	entries *batcher[model.AuditLog]
	journal *batcher[model.TransitionLog]
	logger  *zap.Logger
}

// New creates a new audit Service and starts its background workers.
func New(db *gorm.DB, cfg Config, logger *zap.Logger) *Service {
	cfg.withDefaults()
	return &Service{
		db:      db,
		entries: newBatcher[model.AuditLog]("audit", db, cfg, logger),
		journal: newBatcher[model.TransitionLog]("transitions", db, cfg, logger),
		logger:  logger,
	}
}

// Log enqueues an operator action for async DB write.
func (svc *Service) Log(entry Entry) {
	reqJSON, _ := json.Marshal(entry.Request)
	svc.entries.enqueue(&model.AuditLog{
		TraceID:    entry.TraceID,
		Operator:   entry.Operator,
		Action:     entry.Action,
		ZoneID:     entry.ZoneID,
		Agent:      entry.Agent,
		Request:    datatypes.JSON(reqJSON),
		Error:      entry.Error,
		IP:         entry.IP,
		DurationMs: entry.DurationMs,
	})
}

// RecordTransition implements world.Recorder.
func (svc *Service) RecordTransition(zoneID int, tr perception.Transition) {
	loc, _ := json.Marshal(tr.Stimulus.Location)
	belief, _ := json.Marshal(tr.Belief.Blackboard())
	svc.journal.enqueue(&model.TransitionLog{
		ID:        uuid.NewString(),
		ZoneID:    zoneID,
		Agent:     string(tr.Agent),
		FromPhase: tr.From.String(),
		ToPhase:   tr.To.String(),
		Rule:      tr.Rule,
		Source:    string(tr.Stimulus.Source),
		Sense:     tr.Stimulus.Sense.String(),
		Location:  datatypes.JSON(loc),
		Tag:       tr.Stimulus.Tag,
		SimTimeMs: tr.Stimulus.At.Milliseconds(),
		Belief:    datatypes.JSON(belief),
	})
}

// Stop flushes remaining rows and shuts down the workers.
// It blocks until both worker goroutines have finished.
func (svc *Service) Stop(_ context.Context) {
	svc.entries.stop()
	svc.journal.stop()
}

// Stats returns write and drop counters.
func (svc *Service) Stats() Stats {
	return Stats{
		TransitionsWritten: svc.journal.written.Load(),
		TransitionsDropped: svc.journal.dropped.Load(),
		EntriesWritten:     svc.entries.written.Load(),
		EntriesDropped:     svc.entries.dropped.Load(),
	}
}

// Query filters journaled transitions. Zero values match everything.
type Query struct {
	ZoneID int
	Agent  string
	Rule   string
	Since  time.Time
	Limit  int
}

// Transitions returns journaled transitions, newest first.
func (svc *Service) Transitions(ctx context.Context, q Query) ([]model.TransitionLog, error) {
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 100
	}
	tx := svc.db.WithContext(ctx).Model(&model.TransitionLog{})
	if q.ZoneID != 0 {
		tx = tx.Where("zone_id = ?", q.ZoneID)
	}
	if q.Agent != "" {
		tx = tx.Where("agent = ?", q.Agent)
	}
	if q.Rule != "" {
		tx = tx.Where("rule = ?", q.Rule)
	}
	if !q.Since.IsZero() {
		tx = tx.Where("created_at >= ?", q.Since)
	}
	var out []model.TransitionLog
	err := tx.Order("created_at DESC").Order("sim_time_ms DESC").Limit(q.Limit).Find(&out).Error
	return out, err
}

// Entries returns the most recent operator actions, newest first.
func (svc *Service) Entries(ctx context.Context, limit int) ([]model.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []model.AuditLog
	err := svc.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}

// Prune deletes journaled transitions older than cutoff.
func (svc *Service) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := svc.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.TransitionLog{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		svc.logger.Info("pruned transition journal", zap.Int64("rows", res.RowsAffected))
	}
	return res.RowsAffected, nil
}
