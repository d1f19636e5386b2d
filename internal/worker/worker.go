package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/config"
	internal_js "gitlab.com/nuloafrica/api/document-verification-processor/internal/jetstream"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/observer"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/logger"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/utils"
)

const (
	defaultMsgChanCap  = 100
	defaultFetchBatch  = 10
	defaultFetchWait   = 5 * time.Second
	defaultTaskTimeout = time.Minute
	submitNakDelay     = 5 * time.Second
	fetchErrorPause    = time.Second
)

// Action is how a delivered message is settled
type Action int

const (
	ActionAck Action = iota
	ActionNak
	ActionTerm
)

func (a Action) String() string {
	switch a {
	case ActionAck:
		return "ack"
	case ActionNak:
		return "nak"
	case ActionTerm:
		return "term"
	default:
		return "unknown"
	}
}

// Decision is a handler's verdict on one message
type Decision struct {
	Action Action
	Delay  time.Duration // redelivery delay for ActionNak
	Reason string        // error text, sanitized into a metric label
}

// Ack settles the message as done
func Ack() Decision { return Decision{Action: ActionAck} }

// Nak asks for redelivery after delay
func Nak(delay time.Duration, reason string) Decision {
	return Decision{Action: ActionNak, Delay: delay, Reason: reason}
}

// Term drops the message for good
func Term(reason string) Decision { return Decision{Action: ActionTerm, Reason: reason} }

// Delivery is the part of a JetStream message a handler sees
type Delivery struct {
	Subject      string
	Data         []byte
	Header       nats.Header
	NumDelivered uint64
}

// Handler decides what to do with one delivery
type Handler interface {
	Handle(ctx context.Context, d Delivery) Decision
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, d Delivery) Decision

// Handle calls f
func (f HandlerFunc) Handle(ctx context.Context, d Delivery) Decision { return f(ctx, d) }

// acker is the settlement surface of *nats.Msg
type acker interface {
	Ack(opts ...nats.AckOpt) error
	NakWithDelay(delay time.Duration, opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
}

// puller is the fetch surface of a pull *nats.Subscription
type puller interface {
	Fetch(batch int, opts ...nats.PullOpt) ([]*nats.Msg, error)
}

// Options binds a worker to one durable pull consumer
type Options struct {
	Stream   string
	Subject  string
	Consumer config.ConsumerNatsConfig
	Pool     config.WorkerPoolConfig
}

// Worker pulls messages from a durable consumer and runs them on an ants pool
type Worker struct {
	opts    Options
	js      internal_js.ClientInterface
	pool    *ants.Pool
	handler Handler
	logger  *zap.Logger
	msgCh   chan *nats.Msg
	stopWg  sync.WaitGroup
	cancel  context.CancelFunc
	mu      sync.Mutex
	running bool
}

// New creates a worker. The consumer must already exist, see queue.SetupTopology.
func New(js internal_js.ClientInterface, opts Options, handler Handler) (*Worker, error) {
	log := logger.Log.Named("worker").With(zap.String("consumer", opts.Consumer.Consumer))

	poolSize := opts.Pool.PoolSize
	if poolSize <= 0 {
		poolSize = 1
	}
	poolOpts := []ants.Option{
		ants.WithLogger(newAntsLoggerAdapter(log.Named("ants_pool"))),
		ants.WithPanicHandler(func(p interface{}) {
			log.Error("Worker panic caught", zap.Any("panic", p), zap.Stack("stack"))
		}),
	}
	if opts.Pool.ExpiryTime > 0 {
		poolOpts = append(poolOpts, ants.WithExpiryDuration(opts.Pool.ExpiryTime))
	}
	pool, err := ants.NewPool(poolSize, poolOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}

	queueSize := opts.Pool.QueueSize
	if queueSize <= 0 {
		queueSize = defaultMsgChanCap
	}

	log.Info("Worker initialized", zap.Int("pool_size", poolSize), zap.Int("queue_size", queueSize))
	return &Worker{
		opts:    opts,
		js:      js,
		pool:    pool,
		handler: handler,
		logger:  log,
		msgCh:   make(chan *nats.Msg, queueSize),
	}, nil
}

// Start subscribes and runs the fetch and dispatch loops until ctx is cancelled
func (w *Worker) Start(ctx context.Context) error {
	sub, err := w.js.SubscribePull(w.opts.Stream, w.opts.Subject, w.opts.Consumer.Consumer)
	if err != nil {
		return fmt.Errorf("failed to create pull subscription: %w", err)
	}
	return w.run(ctx, sub)
}

func (w *Worker) run(ctx context.Context, sub puller) error {
	derivedCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.running = true
	w.mu.Unlock()

	w.stopWg.Add(2)
	go w.fetchMessages(derivedCtx, sub)
	go w.dispatchMessages(derivedCtx)
	w.logger.Info("Worker started", zap.String("subject", w.opts.Subject))

	<-derivedCtx.Done()
	w.logger.Info("Worker context cancelled, initiating shutdown")
	return nil
}

// Stop waits for the loops, then for in-flight tasks, and releases the pool
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel, running := w.cancel, w.running
	w.running = false
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if running {
		w.stopWg.Wait()
	}

	// Messages still buffered were never started; redeliver them elsewhere.
drain:
	for {
		select {
		case msg := <-w.msgCh:
			if err := msg.NakWithDelay(0); err != nil {
				w.logger.Debug("Failed to NAK buffered message on shutdown", zap.Error(err))
			}
		default:
			break drain
		}
	}

	if err := w.pool.ReleaseTimeout(w.taskTimeout()); err != nil {
		w.logger.Warn("Worker pool release timed out", zap.Error(err))
	}
	w.logger.Info("Worker stopped")
}

func (w *Worker) fetchMessages(ctx context.Context, sub puller) {
	defer w.stopWg.Done()
	consumer := w.opts.Consumer.Consumer

	batch := w.opts.Consumer.FetchBatch
	if batch <= 0 {
		batch = defaultFetchBatch
	}
	wait := w.opts.Consumer.FetchMaxWait
	if wait <= 0 {
		wait = defaultFetchWait
	}

	for {
		if ctx.Err() != nil {
			return
		}
		observer.IncWorkerFetchRequest(consumer)
		// nats.go rejects MaxWait combined with Context, so the wait rides on the context.
		fetchCtx, cancel := context.WithTimeout(ctx, wait)
		msgs, err := sub.Fetch(batch, nats.Context(fetchCtx))
		cancel()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, nats.ErrConnectionClosed) {
				return
			}
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			observer.IncWorkerFetchError(consumer)
			w.logger.Error("Fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(fetchErrorPause):
			}
			continue
		}

		for _, msg := range msgs {
			select {
			case w.msgCh <- msg:
			case <-ctx.Done():
				if nakErr := msg.NakWithDelay(0); nakErr != nil {
					w.logger.Debug("Failed to NAK fetched message on shutdown", zap.Error(nakErr))
				}
				return
			}
		}
	}
}

func (w *Worker) dispatchMessages(ctx context.Context) {
	defer w.stopWg.Done()
	consumer := w.opts.Consumer.Consumer

	for {
		observer.SetWorkerQueueLength(consumer, len(w.msgCh))
		observer.SetWorkerPoolRunning(consumer, w.pool.Running())

		select {
		case <-ctx.Done():
			return
		case msg := <-w.msgCh:
			current := msg
			err := w.pool.Submit(func() {
				taskCtx, cancel := context.WithTimeout(context.Background(), w.taskTimeout())
				defer cancel()
				w.process(taskCtx, current)
			})
			if err != nil {
				w.logger.Error("Failed to submit task to ants pool", zap.Error(err))
				if nakErr := current.NakWithDelay(submitNakDelay); nakErr != nil {
					w.logger.Error("Failed to NAK message after pool submission error", zap.Error(nakErr))
				}
				continue
			}
			observer.IncWorkerTasksSubmitted(consumer)
		}
	}
}

// process runs the handler for one message and settles it
func (w *Worker) process(ctx context.Context, msg *nats.Msg) {
	defer utils.RecoverWithLog(ctx, "worker task")

	d := Delivery{Subject: msg.Subject, Data: msg.Data, Header: msg.Header}
	meta, err := msg.Metadata()
	if err != nil {
		w.logger.Error("Failed to get message metadata", zap.Error(err))
		w.settle(ctx, msg, d, Term("metadata"), 0)
		return
	}
	d.NumDelivered = meta.NumDelivered

	start := time.Now()
	decision := w.handler.Handle(ctx, d)
	w.settle(ctx, msg, d, decision, time.Since(start))
}

// settle applies a decision and records it
func (w *Worker) settle(ctx context.Context, msg acker, d Delivery, decision Decision, took time.Duration) {
	consumer := w.opts.Consumer.Consumer
	observer.IncEventsReceived(d.Subject, consumer)
	observer.ObserveEventProcessingDuration(d.Subject, consumer, took)
	observer.IncEventProcessingAction(d.Subject, consumer, decision.Action.String(), decision.Reason)

	log := logger.FromContextOr(ctx, w.logger).With(
		zap.String("subject", d.Subject),
		zap.Uint64("num_delivered", d.NumDelivered))

	var err error
	switch decision.Action {
	case ActionAck:
		err = msg.Ack()
		observer.IncEventsProcessed(d.Subject, consumer)
	case ActionNak:
		log.Debug("Requesting redelivery", zap.Duration("delay", decision.Delay), zap.String("reason", decision.Reason))
		err = msg.NakWithDelay(decision.Delay)
		observer.IncEventsFailed(d.Subject, consumer)
	default:
		log.Warn("Terminating message", zap.String("reason", decision.Reason))
		err = msg.Term()
		observer.IncEventsFailed(d.Subject, consumer)
	}
	if err != nil {
		log.Error("Failed to settle message", zap.Stringer("action", decision.Action), zap.Error(err))
	}
}

func (w *Worker) taskTimeout() time.Duration {
	if w.opts.Pool.TaskTimeout > 0 {
		return w.opts.Pool.TaskTimeout
	}
	return defaultTaskTimeout
}

type antsLoggerAdapter struct {
	logger *zap.Logger
}

func newAntsLoggerAdapter(logger *zap.Logger) *antsLoggerAdapter {
	return &antsLoggerAdapter{logger: logger}
}

func (a *antsLoggerAdapter) Printf(format string, args ...interface{}) {
	a.logger.Info(fmt.Sprintf(format, args...))
}
