package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Dispatcher delivers messages off the request path. Best effort: a failed
// delivery is logged and dropped, deduplication lives upstream in the
// first-PAID check, not here.
type Dispatcher struct {
	notifier Notifier
	log      *zap.Logger
	queue    chan Message
	done     chan struct{}
	timeout  time.Duration
}

func NewDispatcher(n Notifier, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		notifier: n,
		log:      log,
		queue:    make(chan Message, 256),
		done:     make(chan struct{}),
		timeout:  10 * time.Second,
	}
}

// Start launches the delivery worker; the returned function drains nothing
// and just stops it.
func (d *Dispatcher) Start() func() {
	go d.loop()
	return func() { close(d.done) }
}

func (d *Dispatcher) loop() {
	for {
		select {
		case <-d.done:
			return
		case m := <-d.queue:
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			if err := d.notifier.Send(ctx, m); err != nil {
				d.log.Warn("notification delivery failed",
					zap.String("phone", m.Phone),
					zap.String("template", m.Template),
					zap.Error(err))
			}
			cancel()
		}
	}
}

// Enqueue never blocks the caller; on a full queue the message is dropped
// and logged.
func (d *Dispatcher) Enqueue(m Message) {
	select {
	case d.queue <- m:
	default:
		d.log.Warn("notification queue full, dropping message",
			zap.String("phone", m.Phone),
			zap.String("template", m.Template))
	}
}
