package notify

import (
	"context"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/perfgov/internal/scheduler"
	"github.com/traylinx/perfgov/internal/tier"
)

// Config tunes the delivery protocol.
type Config struct {
	// RetryDelay is the wait before resending after a failed send.
	RetryDelay time.Duration

	// ConfirmTimeout is how long a sent message waits for confirmation.
	ConfirmTimeout time.Duration

	// MaxRetries drops the record once this many retries were counted.
	MaxRetries int

	// SendTimeout bounds one transport send.
	SendTimeout time.Duration
}

// DefaultConfig returns the default delivery configuration.
func DefaultConfig() Config {
	return Config{
		RetryDelay:     time.Second,
		ConfirmTimeout: 5 * time.Second,
		MaxRetries:     3,
		SendTimeout:    2 * time.Second,
	}
}

// DropFunc is called when a record is abandoned after exhausting its retries.
type DropFunc func(Record)

type record struct {
	Record
	timer scheduler.Handle
}

// Notifier tracks in-flight notifications. All methods must be called from the scheduler's
// owner, which is also where every timer callback runs.
type Notifier struct {
	cfg       Config
	transport Transport
	sched     scheduler.Scheduler
	onDrop    DropFunc

	ctx     context.Context
	cancel  context.CancelFunc
	records map[string]*record
	closed  bool
}

// NewNotifier creates a notifier. transport may be nil, in which case every attempt fails.
func NewNotifier(cfg Config, transport Transport, sched scheduler.Scheduler, onDrop DropFunc) *Notifier {
	def := DefaultConfig()
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = def.ConfirmTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		cfg:       cfg,
		transport: transport,
		sched:     sched,
		onDrop:    onDrop,
		ctx:       ctx,
		cancel:    cancel,
		records:   make(map[string]*record),
	}
}

// Notify starts delivery of a committed transition and returns its change id.
func (n *Notifier) Notify(tr tier.Transition) string {
	msg := NewMessage(tr)
	if n.closed {
		return msg.ChangeID
	}
	rec := &record{Record: Record{ChangeID: msg.ChangeID, Message: *msg}}
	n.records[rec.ChangeID] = rec
	n.attempt(rec)
	return rec.ChangeID
}

func (n *Notifier) attempt(rec *record) {
	if n.closed || n.records[rec.ChangeID] != rec {
		return
	}

	if err := n.send(&rec.Message); err != nil {
		log.WithField("component", "notify").Warnf("Delivery of %s failed: %v", rec.ChangeID, err)
		n.retry(rec, true)
		return
	}

	rec.SentAt = n.sched.Now()
	rec.timer = n.sched.AfterFunc(n.cfg.ConfirmTimeout, func() {
		if n.closed || n.records[rec.ChangeID] != rec {
			return
		}
		log.WithField("component", "notify").Warnf("No confirmation for %s within %s", rec.ChangeID, n.cfg.ConfirmTimeout)
		n.retry(rec, false)
	})
}

func (n *Notifier) send(msg *Message) (err error) {
	if n.transport == nil || !n.transport.IsConnected() {
		return ErrNotConnected
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			log.WithField("component", "notify").Errorf("Panic in transport send: %v", r)
			err = ErrNotConnected
		}
	}()
	ctx, cancel := context.WithTimeout(n.ctx, n.cfg.SendTimeout)
	defer cancel()
	return n.transport.Send(ctx, msg)
}

// retry counts one retry and either schedules the next attempt or abandons the record.
// A failed send waits RetryDelay; a confirmation timeout resends immediately.
func (n *Notifier) retry(rec *record, delayed bool) {
	rec.RetryCount++
	if rec.RetryCount >= n.cfg.MaxRetries {
		delete(n.records, rec.ChangeID)
		log.WithField("component", "notify").Errorf("Giving up on %s after %d retries (%s -> %s)", rec.ChangeID, rec.RetryCount, rec.Message.From, rec.Message.To)
		if n.onDrop != nil {
			n.onDrop(rec.Record)
		}
		return
	}
	if !delayed {
		n.attempt(rec)
		return
	}
	rec.timer = n.sched.AfterFunc(n.cfg.RetryDelay, func() {
		n.attempt(rec)
	})
}

// Confirm acknowledges a delivery. Unknown or already confirmed ids are ignored.
func (n *Notifier) Confirm(changeID string) bool {
	rec, ok := n.records[changeID]
	if !ok {
		return false
	}
	if rec.timer != nil {
		rec.timer.Stop()
	}
	delete(n.records, changeID)
	log.WithField("component", "notify").Debugf("Change %s confirmed", changeID)
	return true
}

// Pending returns the in-flight records ordered by change id.
func (n *Notifier) Pending() []Record {
	out := make([]Record, 0, len(n.records))
	for _, rec := range n.records {
		out = append(out, rec.Record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChangeID < out[j].ChangeID })
	return out
}

// Close cancels every timer and forgets all in-flight records.
func (n *Notifier) Close() {
	if n.closed {
		return
	}
	n.closed = true
	for id, rec := range n.records {
		if rec.timer != nil {
			rec.timer.Stop()
		}
		delete(n.records, id)
	}
	n.cancel()
}
