package app

import (
	"context"
	"errors"
	"log"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v3"
)

// ==========================================
// BATCH INGESTION QUEUE
// ==========================================

// BatchItem is one forwarded photo waiting to be counted.
type BatchItem struct {
	Origin      Origin
	Fingerprint string
	MessageID   int64
}

// BatchTally always satisfies Received == Recorded + Duplicate + Failed once an item is done.
type BatchTally struct {
	Received  int
	Recorded  int
	Duplicate int
	Failed    int
}

// BatchStore is the part of the leaderboard the queue writes to and reads the summary from.
type BatchStore interface {
	RecordFromOrigin(ctx context.Context, o Origin, fingerprint, source string, messageID *int64) (RecordResult, error)
	Top(ctx context.Context, n int) ([]Standing, error)
}

// BatchStatus is a read-only view of an active job.
type BatchStatus struct {
	JobID     string
	ActorID   int64
	Pending   int
	Tally     BatchTally
	StartedAt time.Time
}

type batchJob struct {
	id        string
	actorID   int64
	chatID    int64
	startedAt time.Time

	// pending is guarded by BatchQueue.mu so that the empty check and the
	// registry removal happen together.
	pending []BatchItem
	wake    chan struct{}

	mu    sync.Mutex
	tally BatchTally

	// Owned by the worker goroutine.
	status    tele.Editable
	lastEdit  time.Time
	sinceEdit int
	edits     int
}

func (j *batchJob) snapshot() BatchTally {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.tally
}

func (j *batchJob) update(fn func(t *BatchTally)) BatchTally {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn(&j.tally)
	return j.tally
}

type itemOutcome int

const (
	outcomeRecorded itemOutcome = iota
	outcomeDuplicate
	outcomeFailed
)

// BatchQueue buffers forwarded photos per admin and drains each admin's
// queue with a single worker. The registry maps an actor to their one active job.
type BatchQueue struct {
	cfg   BatchConfig
	store BatchStore
	out   Messenger
	now   func() time.Time

	mu       sync.Mutex
	jobs     map[int64]*batchJob
	closed   bool
	stopping chan struct{}
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	itemTimeout time.Duration
}

func NewBatchQueue(cfg BatchConfig, store BatchStore, out Messenger) *BatchQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &BatchQueue{
		cfg:         cfg,
		store:       store,
		out:         out,
		now:         time.Now,
		jobs:        make(map[int64]*batchJob),
		stopping:    make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
		itemTimeout: 30 * time.Second,
	}
}

// Enqueue hands a photo to the actor's worker, starting one if needed. It never blocks on I/O.
func (q *BatchQueue) Enqueue(actorID, chatID int64, item BatchItem) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		log.Printf("⚠️ batch queue stopped, dropping photo from actor %d (%s)", actorID, item.Fingerprint)
		return
	}

	job, ok := q.jobs[actorID]
	if !ok {
		job = &batchJob{
			id:        uuid.NewString(),
			actorID:   actorID,
			chatID:    chatID,
			startedAt: q.now(),
			wake:      make(chan struct{}, 1),
		}
		q.jobs[actorID] = job
		q.wg.Add(1)
		go q.run(job)
		log.Printf("📦 batch %s started for actor %d", job.id, actorID)
	}
	job.pending = append(job.pending, item)

	select {
	case job.wake <- struct{}{}:
	default:
	}
}

// Active lists running jobs, oldest first.
func (q *BatchQueue) Active() []BatchStatus {
	q.mu.Lock()
	out := make([]BatchStatus, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, BatchStatus{
			JobID:     j.id,
			ActorID:   j.actorID,
			Pending:   len(j.pending),
			StartedAt: j.startedAt,
		})
	}
	jobs := make(map[int64]*batchJob, len(q.jobs))
	for k, v := range q.jobs {
		jobs[k] = v
	}
	q.mu.Unlock()

	for i := range out {
		out[i].Tally = jobs[out[i].ActorID].snapshot()
	}
	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt.Before(out[k].StartedAt) })
	return out
}

// Stop rejects new items, lets every worker drain its queue and finalize
// without waiting for the quiet period, and waits until they exit. If ctx ends
// first the workers are cancelled and the remaining photos are dropped.
func (q *BatchQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.stopping)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
	}

	// Out of time: abort the workers and wait for them to exit so the caller
	// can close the store safely. Unprocessed photos are logged by release.
	abandoned := q.pendingCount()
	q.cancel()
	select {
	case <-done:
	case <-time.After(stopGrace):
		log.Printf("❌ batch workers still running %s after cancel", stopGrace)
	}
	log.Printf("⚠️ batch queue stopped early, %d queued photos abandoned", abandoned)
	return ctx.Err()
}

// stopGrace bounds the wait for workers once Stop has cancelled them.
const stopGrace = 5 * time.Second

func (q *BatchQueue) pendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, j := range q.jobs {
		n += len(j.pending)
	}
	return n
}

func (q *BatchQueue) run(job *batchJob) {
	defer q.wg.Done()
	defer q.release(job)
	defer recoverPanic("batch-worker-" + job.id)

	quiet := time.NewTimer(q.cfg.QuietPeriod)
	defer quiet.Stop()

	for {
		if q.ctx.Err() != nil {
			return
		}
		if item, ok := q.pop(job); ok {
			q.process(job, item)
			resetTimer(quiet, q.cfg.QuietPeriod)
			continue
		}

		select {
		case <-job.wake:
		case <-quiet.C:
			if q.retire(job) {
				q.finalize(job)
				return
			}
		case <-q.stopping:
			if q.retire(job) {
				q.finalize(job)
				return
			}
		}
	}
}

func (q *BatchQueue) pop(job *batchJob) (BatchItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(job.pending) == 0 {
		return BatchItem{}, false
	}
	item := job.pending[0]
	job.pending[0] = BatchItem{}
	job.pending = job.pending[1:]
	return item, true
}

// retire removes the job from the registry if nothing is left to process.
// From then on a new arrival for the same actor starts a fresh job.
func (q *BatchQueue) retire(job *batchJob) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(job.pending) > 0 {
		return false
	}
	if q.jobs[job.actorID] == job {
		delete(q.jobs, job.actorID)
	}
	return true
}

// release is the last-resort cleanup for a worker that died outside an item.
func (q *BatchQueue) release(job *batchJob) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.jobs[job.actorID] != job {
		return
	}
	delete(q.jobs, job.actorID)
	if n := len(job.pending); n > 0 {
		log.Printf("❌ batch %s for actor %d exited with %d unprocessed photos", job.id, job.actorID, n)
	}
}

func (q *BatchQueue) process(job *batchJob, item BatchItem) {
	tally := job.update(func(t *BatchTally) { t.Received++ })
	if tally.Received == 1 {
		q.openStatus(job, tally)
	}

	outcome := q.recordItem(job, item)
	job.update(func(t *BatchTally) {
		switch outcome {
		case outcomeRecorded:
			t.Recorded++
		case outcomeDuplicate:
			t.Duplicate++
		default:
			t.Failed++
		}
	})
	job.sinceEdit++

	if job.sinceEdit >= q.cfg.EditEvery || q.now().Sub(job.lastEdit) >= q.cfg.EditInterval {
		q.pushProgress(job, false)
	}
}

func (q *BatchQueue) recordItem(job *batchJob, item BatchItem) (outcome itemOutcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("💥 PANIC [batch %s] actor=%d fingerprint=%s: %v\n%s", job.id, job.actorID, item.Fingerprint, r, string(debug.Stack()))
			outcome = outcomeFailed
		}
	}()

	ctx, cancel := context.WithTimeout(q.ctx, q.itemTimeout)
	defer cancel()

	msgID := item.MessageID
	res, err := q.store.RecordFromOrigin(ctx, item.Origin, item.Fingerprint, SourceForward, &msgID)
	switch {
	case errors.Is(err, ErrUnattributable):
		log.Printf("⚠️ batch %s actor=%d fingerprint=%s: unattributable origin %T", job.id, job.actorID, item.Fingerprint, item.Origin)
		return outcomeFailed
	case err != nil:
		log.Printf("⚠️ batch %s actor=%d fingerprint=%s: %v", job.id, job.actorID, item.Fingerprint, err)
		return outcomeFailed
	case res == Duplicate:
		return outcomeDuplicate
	default:
		return outcomeRecorded
	}
}

func (q *BatchQueue) openStatus(job *batchJob, tally BatchTally) {
	job.lastEdit = q.now()
	msg, err := q.out.Send(q.ctx, job.chatID, formatBatchProgress(tally, false))
	if err != nil {
		log.Printf("⚠️ batch %s: cannot send status to %d: %v", job.id, job.chatID, err)
		return
	}
	job.status = msg
}

// pushProgress edits the status message, or sends it if the first send failed.
func (q *BatchQueue) pushProgress(job *batchJob, done bool) {
	text := formatBatchProgress(job.snapshot(), done)
	job.sinceEdit = 0
	job.lastEdit = q.now()

	if job.status == nil {
		msg, err := q.out.Send(q.ctx, job.chatID, text)
		if err != nil {
			log.Printf("⚠️ batch %s: cannot send status to %d: %v", job.id, job.chatID, err)
			return
		}
		job.status = msg
		return
	}
	if err := q.out.Edit(q.ctx, job.status, text); err != nil {
		log.Printf("⚠️ batch %s: cannot edit status for %d: %v", job.id, job.chatID, err)
		return
	}
	job.edits++
}

func (q *BatchQueue) finalize(job *batchJob) {
	if job.sinceEdit > 0 {
		q.pushProgress(job, true)
	}

	tally := job.snapshot()
	var top []Standing
	if q.cfg.SummaryTop > 0 {
		ctx, cancel := context.WithTimeout(q.ctx, q.itemTimeout)
		var err error
		top, err = q.store.Top(ctx, q.cfg.SummaryTop)
		cancel()
		if err != nil {
			log.Printf("⚠️ batch %s: top snapshot failed: %v", job.id, err)
		}
	}

	elapsed := q.now().Sub(job.startedAt)
	if _, err := q.out.Send(q.ctx, job.chatID, formatBatchSummary(tally, top, elapsed)); err != nil {
		log.Printf("⚠️ batch %s: cannot send summary to %d: %v", job.id, job.chatID, err)
	}
	log.Printf("📦 batch %s done for actor %d: received=%d recorded=%d duplicate=%d failed=%d edits=%d in %s",
		job.id, job.actorID, tally.Received, tally.Recorded, tally.Duplicate, tally.Failed, job.edits, formatDuration(elapsed))
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
