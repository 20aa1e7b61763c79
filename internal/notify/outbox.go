package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/korelia/storefront-backend/internal/metrics"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

const (
	DefaultMaxAttempts  = 6
	DefaultPollInterval = 5 * time.Second
	DefaultBaseBackoff  = 30 * time.Second
	DefaultMaxBackoff   = 30 * time.Minute
	defaultBatchSize    = 20
	sendTimeout         = 30 * time.Second
)

type Options struct {
	MaxAttempts  int
	PollInterval time.Duration
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	BatchSize    int
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = DefaultBaseBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	return o
}

// Entry is one queued message as seen by the admin outbox view.
type Entry struct {
	ID            int64      `json:"id"`
	Kind          string     `json:"kind"`
	To            string     `json:"to"`
	Subject       string     `json:"subject"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	LastError     string     `json:"last_error,omitempty"`
	NextAttemptAt time.Time  `json:"next_attempt_at"`
	CreatedAt     time.Time  `json:"created_at"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
}

type Stats struct {
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

// Outbox persists messages in SQLite and delivers them from a background
// worker with exponential backoff between attempts.
type Outbox struct {
	db     *sql.DB
	sender Sender
	opts   Options
	now    func() time.Time

	processMu sync.Mutex
	wake      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

func OpenOutbox(path string, sender Sender, opts Options) (*Outbox, error) {
	if sender == nil {
		return nil, errors.New("outbox sender is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create outbox dir: %w", err)
	}

	dsn := path + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open outbox db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	o := &Outbox{
		db:     db,
		sender: sender,
		opts:   opts.withDefaults(),
		now:    time.Now,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if err := o.initSchema(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, errors.Join(err, fmt.Errorf("close outbox db after schema init failure: %w", closeErr))
		}
		return nil, err
	}
	return o, nil
}

func (o *Outbox) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS outbox (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		recipient TEXT NOT NULL,
		subject TEXT NOT NULL,
		body_text TEXT NOT NULL,
		body_html TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		next_attempt_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		sent_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_outbox_due ON outbox(status, next_attempt_at);
	`
	if _, err := o.db.Exec(schema); err != nil {
		return fmt.Errorf("init outbox schema: %w", err)
	}
	return nil
}

// Enqueue stores m for delivery and nudges the worker.
func (o *Outbox) Enqueue(ctx context.Context, m Message) error {
	if m.To == "" {
		return errors.New("message recipient is required")
	}
	now := o.now().UTC().UnixMilli()
	_, err := o.db.ExecContext(ctx, `
		INSERT INTO outbox (kind, recipient, subject, body_text, body_html, status, next_attempt_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Kind, m.To, m.Subject, m.Text, m.HTML, StatusPending, now, now)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", m.Kind, err)
	}

	select {
	case o.wake <- struct{}{}:
	default:
	}
	return nil
}

// Start launches the delivery worker.
func (o *Outbox) Start() {
	o.startOnce.Do(func() {
		go o.run()
	})
}

// Stop halts the worker and waits for the current batch to finish.
func (o *Outbox) Stop() {
	o.stopOnce.Do(func() {
		close(o.stop)
	})
	// Never started: consume startOnce so there is nothing to wait for.
	o.startOnce.Do(func() { close(o.done) })
	<-o.done
}

func (o *Outbox) Close() error {
	o.Stop()
	return o.db.Close()
}

func (o *Outbox) run() {
	defer close(o.done)

	ticker := time.NewTicker(o.opts.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := o.ProcessDue(context.Background()); err != nil {
			slog.Error("outbox processing failed", "error", err)
		}
		select {
		case <-o.stop:
			return
		case <-ticker.C:
		case <-o.wake:
		}
	}
}

type dueRow struct {
	id       int64
	attempts int
	msg      Message
}

// ProcessDue attempts every pending message whose next attempt is due and
// returns how many were sent.
func (o *Outbox) ProcessDue(ctx context.Context) (int, error) {
	o.processMu.Lock()
	defer o.processMu.Unlock()

	rows, err := o.due(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, r := range rows {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		sendErr := o.sender.Send(sendCtx, r.msg)
		cancel()

		if sendErr == nil {
			if err := o.markSent(ctx, r.id); err != nil {
				return sent, err
			}
			metrics.RecordOutboxDelivery(r.msg.Kind, "sent")
			sent++
			continue
		}

		attempts := r.attempts + 1
		if attempts >= o.opts.MaxAttempts {
			slog.Error("email delivery gave up", "id", r.id, "kind", r.msg.Kind, "to", r.msg.To, "attempts", attempts, "error", sendErr)
			metrics.RecordOutboxDelivery(r.msg.Kind, "failed")
			if err := o.markFailed(ctx, r.id, attempts, sendErr); err != nil {
				return sent, err
			}
			continue
		}

		delay := CalculateBackoff(attempts-1, o.opts.BaseBackoff, o.opts.MaxBackoff)
		slog.Warn("email delivery failed, will retry", "id", r.id, "kind", r.msg.Kind, "attempts", attempts, "retry_in", delay, "error", sendErr)
		metrics.RecordOutboxDelivery(r.msg.Kind, "retry")
		if err := o.markRetry(ctx, r.id, attempts, o.now().Add(delay), sendErr); err != nil {
			return sent, err
		}
	}

	if stats, err := o.Stats(ctx); err == nil {
		metrics.SetOutboxPending(stats.Pending)
	}
	return sent, nil
}

func (o *Outbox) due(ctx context.Context) ([]dueRow, error) {
	rows, err := o.db.QueryContext(ctx, `
		SELECT id, kind, recipient, subject, body_text, body_html, attempts
		FROM outbox
		WHERE status = ? AND next_attempt_at <= ?
		ORDER BY next_attempt_at, id
		LIMIT ?`,
		StatusPending, o.now().UTC().UnixMilli(), o.opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("query due messages: %w", err)
	}
	defer rows.Close()

	var out []dueRow
	for rows.Next() {
		var r dueRow
		if err := rows.Scan(&r.id, &r.msg.Kind, &r.msg.To, &r.msg.Subject, &r.msg.Text, &r.msg.HTML, &r.attempts); err != nil {
			return nil, fmt.Errorf("scan due message: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (o *Outbox) markSent(ctx context.Context, id int64) error {
	_, err := o.db.ExecContext(ctx,
		`UPDATE outbox SET status = ?, attempts = attempts + 1, last_error = '', sent_at = ? WHERE id = ?`,
		StatusSent, o.now().UTC().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("mark message %d sent: %w", id, err)
	}
	return nil
}

func (o *Outbox) markRetry(ctx context.Context, id int64, attempts int, next time.Time, cause error) error {
	_, err := o.db.ExecContext(ctx,
		`UPDATE outbox SET attempts = ?, last_error = ?, next_attempt_at = ? WHERE id = ?`,
		attempts, cause.Error(), next.UTC().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("reschedule message %d: %w", id, err)
	}
	return nil
}

func (o *Outbox) markFailed(ctx context.Context, id int64, attempts int, cause error) error {
	_, err := o.db.ExecContext(ctx,
		`UPDATE outbox SET status = ?, attempts = ?, last_error = ? WHERE id = ?`,
		StatusFailed, attempts, cause.Error(), id)
	if err != nil {
		return fmt.Errorf("mark message %d failed: %w", id, err)
	}
	return nil
}

func (o *Outbox) Stats(ctx context.Context) (Stats, error) {
	rows, err := o.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM outbox GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("outbox stats: %w", err)
	}
	defer rows.Close()

	var s Stats
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return Stats{}, fmt.Errorf("scan outbox stats: %w", err)
		}
		switch status {
		case StatusPending:
			s.Pending = n
		case StatusSent:
			s.Sent = n
		case StatusFailed:
			s.Failed = n
		}
	}
	return s, rows.Err()
}

// Recent lists the newest messages, most recent first.
func (o *Outbox) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := o.db.QueryContext(ctx, `
		SELECT id, kind, recipient, subject, status, attempts, last_error, next_attempt_at, created_at, sent_at
		FROM outbox ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		var next, created int64
		var sent sql.NullInt64
		if err := rows.Scan(&e.ID, &e.Kind, &e.To, &e.Subject, &e.Status, &e.Attempts, &e.LastError, &next, &created, &sent); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		e.NextAttemptAt = time.UnixMilli(next).UTC()
		e.CreatedAt = time.UnixMilli(created).UTC()
		if sent.Valid {
			t := time.UnixMilli(sent.Int64).UTC()
			e.SentAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CalculateBackoff returns base·2^attempt, capped at max.
func CalculateBackoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		return max
	}
	delay := base * time.Duration(1<<attempt)
	if delay > max || delay <= 0 {
		return max
	}
	return delay
}
