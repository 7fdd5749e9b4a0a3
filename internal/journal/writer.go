package journal

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/perfgov/internal/capability"
	"github.com/traylinx/perfgov/internal/notify"
	"github.com/traylinx/perfgov/internal/throughput"
	"github.com/traylinx/perfgov/internal/tier"
)

type op struct {
	entry    *Entry
	changeID string
	delivery string
}

// Writer records engine events on its own goroutine so database latency never reaches the
// engine loop. Events that arrive while the queue is full are dropped with a warning.
type Writer struct {
	journal *Journal
	timeout time.Duration
	queue   chan op

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewWriter starts a writer with the given queue capacity.
func NewWriter(j *Journal, queueSize int) *Writer {
	if queueSize <= 0 {
		queueSize = 64
	}
	w := &Writer{
		journal: j,
		timeout: 5 * time.Second,
		queue:   make(chan op, queueSize),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Writer) run() {
	defer close(w.done)
	for o := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		var err error
		if o.entry != nil {
			err = w.journal.Record(ctx, *o.entry)
		} else {
			err = w.journal.SetDelivery(ctx, o.changeID, o.delivery)
		}
		cancel()
		if err != nil {
			log.WithField("component", "journal").Warn(err)
		}
	}
}

func (w *Writer) enqueue(o op) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	select {
	case w.queue <- o:
	default:
		log.WithField("component", "journal").Warn("Journal queue full, dropping event")
	}
}

// TierChanged journals a committed transition.
func (w *Writer) TierChanged(tr tier.Transition, changeID string) {
	e := EntryFor(tr, changeID)
	w.enqueue(op{entry: &e})
}

// Confirmed marks a delivered change as acknowledged.
func (w *Writer) Confirmed(changeID string) {
	w.enqueue(op{changeID: changeID, delivery: DeliveryConfirmed})
}

// DeliveryDropped marks an abandoned change.
func (w *Writer) DeliveryDropped(rec notify.Record) {
	w.enqueue(op{changeID: rec.ChangeID, delivery: DeliveryDropped})
}

func (w *Writer) CapabilityChanged(capability.State) {}
func (w *Writer) Sampled(throughput.Sample, float64) {}

// Close flushes the queue and waits for the writer to finish.
func (w *Writer) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
}
