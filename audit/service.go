package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kasuganosora/progression/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entry is one intake decision to be journaled.
type Entry struct {
	TraceID    string
	LearnerID  string
	Kind       string
	Status     model.EventStatus
	Payload    interface{}
	Error      string
	IP         string
	DurationMs int
}

// Options tunes the background writer. Zero values take defaults.
type Options struct {
	Buffer        int
	BatchSize     int
	FlushInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.Buffer <= 0 {
		o.Buffer = 1024
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 2 * time.Second
	}
	return o
}

// Service journals intake decisions asynchronously in batches. Journaling
// never blocks or fails the request being journaled.
type Service struct {
	db     *gorm.DB
	opts   Options
	ch     chan *model.EventLog
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	logger *zap.Logger
}

// New creates a new audit Service and starts its background worker.
func New(db *gorm.DB, logger *zap.Logger, opts Options) *Service {
	opts = opts.withDefaults()
	svc := &Service{
		db:     db,
		opts:   opts,
		ch:     make(chan *model.EventLog, opts.Buffer),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Log enqueues an entry. When the buffer is full the entry is dropped.
func (svc *Service) Log(entry Entry) {
	var payload datatypes.JSON
	if entry.Payload != nil {
		if b, err := json.Marshal(entry.Payload); err == nil {
			payload = datatypes.JSON(b)
		}
	}
	record := &model.EventLog{
		TraceID:    entry.TraceID,
		LearnerID:  entry.LearnerID,
		Kind:       entry.Kind,
		Status:     entry.Status,
		Payload:    payload,
		Error:      entry.Error,
		IP:         entry.IP,
		DurationMs: entry.DurationMs,
	}
	select {
	case <-svc.stopCh:
		svc.logger.Warn("audit stopped, dropping entry", zap.String("trace_id", entry.TraceID))
	case svc.ch <- record:
	default:
		svc.logger.Warn("audit channel full, dropping entry",
			zap.String("trace_id", entry.TraceID),
			zap.String("kind", entry.Kind))
	}
}

// Recent returns the newest journal rows, optionally for one learner.
func (svc *Service) Recent(ctx context.Context, learnerID string, limit int) ([]model.EventLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := svc.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if learnerID != "" {
		q = q.Where("learner_id = ?", learnerID)
	}
	var rows []model.EventLog
	err := q.Find(&rows).Error
	return rows, err
}

// Stop flushes remaining entries and shuts down the worker.
// It blocks until the worker goroutine has finished.
func (svc *Service) Stop(_ context.Context) {
	svc.once.Do(func() { close(svc.stopCh) })
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(svc.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]*model.EventLog, 0, svc.opts.BatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.CreateInBatches(&batch, svc.opts.BatchSize).Error; err != nil {
			svc.logger.Error("audit batch write failed", zap.Int("rows", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= svc.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}
