package transport

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"safecircle/internal/notification/models"
)

// dedup remembers keys already accepted per channel.
type dedup struct {
	mu   sync.Mutex
	seen map[string]string
}

func (d *dedup) check(ch models.Channel, key string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = make(map[string]string)
	}
	k := string(ch) + "|" + key
	if msgID, ok := d.seen[k]; ok {
		return msgID, true
	}
	msgID := uuid.NewString()
	d.seen[k] = msgID
	return msgID, false
}

// LogTransport writes payloads to the log. It stands in for real providers
// in local deployments.
type LogTransport struct {
	logger *slog.Logger
	dedup  dedup
}

func NewLogTransport(logger *slog.Logger) *LogTransport {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(ctx context.Context, ch models.Channel, p models.Payload) (DeliveryResult, error) {
	if err := ctx.Err(); err != nil {
		return DeliveryResult{}, Transient(err)
	}
	msgID, dup := t.dedup.check(ch, p.DedupKey)
	if dup {
		return DeliveryResult{ProviderMessageID: msgID, Status: models.DeliverySent, Duplicate: true}, nil
	}
	t.logger.InfoContext(ctx, "notification delivered",
		"channel", string(ch),
		"user_id", p.UserID.String(),
		"escalation_id", p.EscalationID.String(),
		"type", string(p.Type),
		"priority", p.Priority.String(),
		"title", p.Title,
		"items", len(p.Items),
	)
	return DeliveryResult{ProviderMessageID: msgID, Status: models.DeliverySent}, nil
}

// Sent is one payload accepted by a Recorder.
type Sent struct {
	Channel models.Channel
	Payload models.Payload
}

// Recorder keeps every accepted payload and can be scripted to fail.
type Recorder struct {
	mu    sync.Mutex
	dedup dedup
	sent  []Sent
	fail  map[models.Channel][]error
	calls map[models.Channel]int
}

func NewRecorder() *Recorder {
	return &Recorder{
		fail:  make(map[models.Channel][]error),
		calls: make(map[models.Channel]int),
	}
}

// FailNext makes the next len(errs) sends on ch return errs in order.
func (r *Recorder) FailNext(ch models.Channel, errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[ch] = append(r.fail[ch], errs...)
}

func (r *Recorder) Send(ctx context.Context, ch models.Channel, p models.Payload) (DeliveryResult, error) {
	r.mu.Lock()
	r.calls[ch]++
	if errs := r.fail[ch]; len(errs) > 0 {
		err := errs[0]
		r.fail[ch] = errs[1:]
		r.mu.Unlock()
		return DeliveryResult{}, err
	}
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return DeliveryResult{}, Transient(err)
	}
	msgID, dup := r.dedup.check(ch, p.DedupKey)
	if !dup {
		r.mu.Lock()
		r.sent = append(r.sent, Sent{Channel: ch, Payload: p})
		r.mu.Unlock()
	}
	return DeliveryResult{ProviderMessageID: msgID, Status: models.DeliverySent, Duplicate: dup}, nil
}

// Sent returns accepted payloads in acceptance order.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.sent)
}

// Calls counts Send invocations on ch, failed ones included.
func (r *Recorder) Calls(ch models.Channel) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[ch]
}
