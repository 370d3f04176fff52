// Package audit appends download events to the audit trail without
// ever blocking the download path. Events queue into a bounded channel
// drained by a single worker; overflow drops with a counter.
package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/uleam-dti/dms/pkg/graph"
)

// DefaultQueueSize bounds the in-flight event backlog.
const DefaultQueueSize = 256

// Store is the graph surface the recorder writes to.
type Store interface {
	Execute(ctx context.Context, aql string, bindVars map[string]any) error
}

type event struct {
	DocumentID string
	UserID     string
	IPAddress  string
}

// Recorder is the asynchronous audit writer.
type Recorder struct {
	store  Store
	logger hclog.Logger

	queue   chan event
	stopCh  chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Int64
}

// Config wires the recorder.
type Config struct {
	Store     Store
	QueueSize int
	Logger    hclog.Logger
}

// NewRecorder builds and starts the worker.
func NewRecorder(cfg Config) *Recorder {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	r := &Recorder{
		store:  cfg.Store,
		logger: cfg.Logger.Named("audit"),
		queue:  make(chan event, cfg.QueueSize),
		stopCh: make(chan struct{}),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// RecordDownload enqueues one event. Never blocks: when the queue is
// full the event is dropped and counted.
func (r *Recorder) RecordDownload(docID, userID, ipAddress string) {
	select {
	case r.queue <- event{DocumentID: docID, UserID: userID, IPAddress: ipAddress}:
	default:
		n := r.dropped.Add(1)
		r.logger.Warn("audit queue full, event dropped", "doc_id", docID, "total_dropped", n)
	}
}

// Dropped reports how many events were discarded due to backpressure.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Stop drains the queue and stops the worker.
func (r *Recorder) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for {
		select {
		case ev := <-r.queue:
			r.write(ev)
		case <-r.stopCh:
			// Drain what is already queued, then exit.
			for {
				select {
				case ev := <-r.queue:
					r.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(ev event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := r.store.Execute(ctx, `
		INSERT {
			document_id: @document_id,
			user_id: @user_id,
			ip_address: @ip_address,
			timestamp: DATE_ISO8601(DATE_NOW())
		} INTO `+graph.ColAuditDownloads,
		map[string]any{
			"document_id": ev.DocumentID,
			"user_id":     ev.UserID,
			"ip_address":  ev.IPAddress,
		})
	if err != nil {
		r.logger.Error("audit write failed", "doc_id", ev.DocumentID, "error", err)
	}
}
