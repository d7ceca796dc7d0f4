// Package usage records one audit row per dispatched request. Recording is
// asynchronous and never blocks or fails the request path.
package usage

import (
	"sync"
	"time"

	"github.com/driftlock/dispatch-proxy/internal/services/database"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// RequestLog is the persisted audit record for one dispatch.
type RequestLog struct {
	ID          uint   `gorm:"primaryKey"`
	RequestID   string `gorm:"size:64;index"`
	Fingerprint string `gorm:"size:64;index"`
	Tier        string `gorm:"size:16"`
	CacheTier   string `gorm:"size:16"`
	Provider    string `gorm:"size:64"`
	Model       string `gorm:"size:128"`
	Attempts    int
	InputUnits  int
	OutputUnits int
	DurationMs  int64
	Success     bool
	Error       string `gorm:"size:512"`
	CreatedAt   time.Time
}

// Recorder writes RequestLog rows through a buffered channel drained by a
// single background goroutine.
type Recorder struct {
	db       *database.DB
	tasks    chan RequestLog
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewRecorder migrates the audit table and starts the writer goroutine.
func NewRecorder(db *database.DB, bufferSize int) (*Recorder, error) {
	if err := db.AutoMigrate(&RequestLog{}); err != nil {
		return nil, err
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}

	r := &Recorder{
		db:      db,
		tasks:   make(chan RequestLog, bufferSize),
		stopped: make(chan struct{}),
	}
	r.wg.Add(1)
	go r.run()
	return r, nil
}

// Record enqueues one audit row. Rows are dropped with a warning when the
// buffer is full or the recorder has stopped.
func (r *Recorder) Record(entry RequestLog) {
	select {
	case <-r.stopped:
		fiberlog.Warnf("[%s] Recorder stopped, dropping audit record", entry.RequestID)
	case r.tasks <- entry:
	default:
		fiberlog.Warnf("[%s] Audit buffer full, dropping record", entry.RequestID)
	}
}

// Stop drains pending rows and terminates the writer.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopped)
		close(r.tasks)
	})
	r.wg.Wait()
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for entry := range r.tasks {
		if err := r.db.Create(&entry).Error; err != nil {
			fiberlog.Errorf("[%s] Failed to persist audit record: %v", entry.RequestID, err)
		}
	}
}
