package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nexurateam/nexura-app-sub001/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 2 * time.Second
	queueSize            = 1024
)

// Entry is one admin or moderation action.
type Entry struct {
	TraceID string
	UserID  string
	Action  string
	Request any
	Error   string
	IP      string
}

// Service logs audit entries asynchronously in batches.
type Service struct {
	db            *gorm.DB
	ch            chan *model.AuditLog
	stopCh        chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
	logger        *zap.Logger
	batchSize     int
	flushInterval time.Duration
}

// Option adjusts a Service.
type Option func(*Service)

// WithBatch sets how many entries trigger a write and how often partial
// batches are flushed.
func WithBatch(size int, every time.Duration) Option {
	return func(s *Service) {
		if size > 0 {
			s.batchSize = size
		}
		if every > 0 {
			s.flushInterval = every
		}
	}
}

// New creates a new audit Service and starts its background worker.
func New(db *gorm.DB, logger *zap.Logger, opts ...Option) *Service {
	svc := &Service{
		db:            db,
		ch:            make(chan *model.AuditLog, queueSize),
		stopCh:        make(chan struct{}),
		logger:        logger,
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
	}
	for _, o := range opts {
		o(svc)
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Log enqueues an entry for async DB write. Entries are dropped, with a
// warning, when the queue is full or the service has stopped.
func (svc *Service) Log(entry Entry) {
	var reqJSON datatypes.JSON
	if entry.Request != nil {
		b, err := json.Marshal(entry.Request)
		if err != nil {
			svc.logger.Warn("audit request not encodable", zap.String("action", entry.Action), zap.Error(err))
		} else {
			reqJSON = datatypes.JSON(b)
		}
	}
	record := &model.AuditLog{
		TraceID: entry.TraceID,
		UserID:  entry.UserID,
		Action:  entry.Action,
		Request: reqJSON,
		Error:   entry.Error,
		IP:      entry.IP,
	}
	select {
	case <-svc.stopCh:
		svc.logger.Warn("audit stopped, dropping entry", zap.String("action", entry.Action))
		return
	default:
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("audit channel full, dropping entry",
			zap.String("action", entry.Action))
	}
}

// Recent returns the newest entries, newest first.
func (svc *Service) Recent(ctx context.Context, limit int) ([]model.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var logs []model.AuditLog
	err := svc.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&logs).Error
	return logs, err
}

// Stop flushes remaining entries and shuts down the worker. It returns once
// the worker is done or ctx expires, whichever is first.
func (svc *Service) Stop(ctx context.Context) {
	svc.stopOnce.Do(func() { close(svc.stopCh) })
	done := make(chan struct{})
	go func() {
		svc.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		svc.logger.Warn("audit flush abandoned", zap.Error(ctx.Err()))
	}
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(svc.flushInterval)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, svc.batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.Create(&batch).Error; err != nil {
			svc.logger.Error("audit batch write failed", zap.Int("entries", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= svc.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
					if len(batch) >= svc.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}
