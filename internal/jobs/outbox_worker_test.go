package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type fakeOutboxRepo struct {
	jobs      []OutboxJob
	doneErr   map[int64]error
	doneIDs   []int64
	retryIDs  []int64
	retryAt   []time.Time
	failedIDs []int64
	lastError string
}

func (r *fakeOutboxRepo) ClaimPending(_ context.Context, _ int32) ([]OutboxJob, error) {
	return r.jobs, nil
}

func (r *fakeOutboxRepo) MarkDone(_ context.Context, jobID int64) error {
	if err := r.doneErr[jobID]; err != nil {
		return err
	}
	r.doneIDs = append(r.doneIDs, jobID)
	return nil
}

func (r *fakeOutboxRepo) MarkRetry(_ context.Context, jobID int64, next time.Time, lastError string) error {
	r.retryIDs = append(r.retryIDs, jobID)
	r.retryAt = append(r.retryAt, next)
	r.lastError = lastError
	return nil
}

func (r *fakeOutboxRepo) MarkFailed(_ context.Context, jobID int64, lastError string) error {
	r.failedIDs = append(r.failedIDs, jobID)
	r.lastError = lastError
	return nil
}

type fakePublisher struct {
	topics []string
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, _ []byte) error {
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	return nil
}

func newTestWorker(outbox *fakeOutboxRepo, pub *fakePublisher) *Worker {
	w := NewWorker(outbox, pub, slog.New(slog.NewTextHandler(io.Discard, nil)))
	w.now = func() time.Time { return time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC) }
	return w
}

func TestWorkerRunOnceSuccess(t *testing.T) {
	outbox := &fakeOutboxRepo{jobs: []OutboxJob{
		{ID: 1, Topic: "repayment_recorded", Attempts: 1, Payload: []byte(`{"loan_id":"loan-1"}`)},
		{ID: 2, Topic: "negotiation_undone", Attempts: 1, Payload: []byte(`{"loan_id":"loan-1"}`)},
	}}
	pub := &fakePublisher{}

	if err := newTestWorker(outbox, pub).RunOnce(context.Background(), 10); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(outbox.doneIDs) != 2 || outbox.doneIDs[0] != 1 {
		t.Fatalf("expected jobs marked done, got %v", outbox.doneIDs)
	}
	if len(pub.topics) != 2 || pub.topics[1] != "negotiation_undone" {
		t.Fatalf("unexpected published topics: %v", pub.topics)
	}
}

func TestWorkerRunOnceRetryOnPublishError(t *testing.T) {
	outbox := &fakeOutboxRepo{jobs: []OutboxJob{{ID: 1, Topic: "loan_funded", Attempts: 2, Payload: []byte(`{"loan_id":"loan-1"}`)}}}
	w := newTestWorker(outbox, &fakePublisher{err: errors.New("hub down")})

	if err := w.RunOnce(context.Background(), 10); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(outbox.retryIDs) != 1 || outbox.retryIDs[0] != 1 {
		t.Fatalf("expected job marked retry")
	}
	if want := w.now().Add(30 * time.Second); !outbox.retryAt[0].Equal(want) {
		t.Fatalf("expected retry at %s, got %s", want, outbox.retryAt[0])
	}
	if outbox.lastError != "hub down" {
		t.Fatalf("unexpected last error %q", outbox.lastError)
	}
}

func TestWorkerRunOnceTerminalFailure(t *testing.T) {
	outbox := &fakeOutboxRepo{jobs: []OutboxJob{{ID: 9, Topic: "loan_funded", Attempts: 5, Payload: []byte(`{"loan_id":"loan-1"}`)}}}

	if err := newTestWorker(outbox, &fakePublisher{err: errors.New("hub down")}).RunOnce(context.Background(), 10); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(outbox.failedIDs) != 1 || outbox.failedIDs[0] != 9 {
		t.Fatalf("expected job marked failed")
	}
}

func TestWorkerRejectsBadJobs(t *testing.T) {
	outbox := &fakeOutboxRepo{jobs: []OutboxJob{
		{ID: 1, Topic: "register_loan", Attempts: 1, Payload: []byte(`{"loan_id":"loan-1"}`)},
		{ID: 2, Topic: "loan_funded", Attempts: 1, Payload: []byte(`not json`)},
		{ID: 3, Topic: "loan_funded", Attempts: 5, Payload: []byte(`{}`)},
	}}
	pub := &fakePublisher{}

	if err := newTestWorker(outbox, pub).RunOnce(context.Background(), 10); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(outbox.retryIDs) != 2 || len(outbox.failedIDs) != 1 || outbox.failedIDs[0] != 3 {
		t.Fatalf("unexpected outcome retry=%v failed=%v", outbox.retryIDs, outbox.failedIDs)
	}
	if outbox.lastError != "missing_loan_id" {
		t.Fatalf("unexpected last error %q", outbox.lastError)
	}
	if len(pub.topics) != 0 {
		t.Fatalf("bad jobs must not be published")
	}
}

func TestWorkerRunOnceContinuesAfterStatusUpdateError(t *testing.T) {
	outbox := &fakeOutboxRepo{
		jobs: []OutboxJob{
			{ID: 1, Topic: "loan_funded", Attempts: 1, Payload: []byte(`{"loan_id":"loan-1"}`)},
			{ID: 2, Topic: "loan_repaid", Attempts: 1, Payload: []byte(`{"loan_id":"loan-2"}`)},
			{ID: 3, Topic: "bogus", Attempts: 1, Payload: []byte(`{"loan_id":"loan-3"}`)},
		},
		doneErr: map[int64]error{1: errors.New("conn reset")},
	}
	pub := &fakePublisher{}

	err := newTestWorker(outbox, pub).RunOnce(context.Background(), 10)
	if err == nil || !errors.Is(err, outbox.doneErr[1]) {
		t.Fatalf("expected status update error to be reported, got %v", err)
	}
	if len(outbox.doneIDs) != 1 || outbox.doneIDs[0] != 2 {
		t.Fatalf("expected job 2 marked done, got %v", outbox.doneIDs)
	}
	if len(outbox.retryIDs) != 1 || outbox.retryIDs[0] != 3 {
		t.Fatalf("expected job 3 retried, got %v", outbox.retryIDs)
	}
	if len(pub.topics) != 2 {
		t.Fatalf("expected both relayable jobs published, got %v", pub.topics)
	}
}
