package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "stageflow/contracts/mq"
)

type fakeDirectory struct {
	emails map[string]string
	err    error
}

func (f *fakeDirectory) EmailsFor(ctx context.Context, usernames []string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []string
	for _, u := range usernames {
		if addr, ok := f.emails[u]; ok {
			out = append(out, addr)
		}
	}
	return out, nil
}

type fakeMailer struct {
	sent [][]string
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, to []string, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	return nil
}

type fakeDeduper struct {
	seen map[string]bool
}

func (f *fakeDeduper) IsDuplicate(ctx context.Context, key string) bool {
	if f.seen[key] {
		return true
	}
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	f.seen[key] = true
	return false
}

type fakeRetryCounter struct {
	counts map[string]int64
}

func (f *fakeRetryCounter) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeRetryCounter) Reset(ctx context.Context, key string) error {
	delete(f.counts, key)
	return nil
}

type fakeDLQ struct {
	published [][]byte
	errors    []string
}

func (f *fakeDLQ) PublishToDLQ(routingKey string, payload []byte, originalError string) error {
	f.published = append(f.published, payload)
	f.errors = append(f.errors, originalError)
	return nil
}

func payloadJSON(t *testing.T, p mqcontracts.EmailPayload) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return raw
}

func newTestHandler(dir *fakeDirectory, mailer *fakeMailer, dlq *fakeDLQ) (*EmailHandler, *fakeRetryCounter) {
	retries := &fakeRetryCounter{}
	h := NewEmailHandler(dir, mailer, &fakeDeduper{}, retries, dlq, zap.NewNop())
	return h, retries
}

func TestHandleEmailSends(t *testing.T) {
	dir := &fakeDirectory{emails: map[string]string{"alice": "alice@example.com", "bob": "bob@example.com"}}
	mailer := &fakeMailer{}
	h, retries := newTestHandler(dir, mailer, &fakeDLQ{})

	raw := payloadJSON(t, mqcontracts.EmailPayload{
		Kind:       mqcontracts.KindStageCompleted,
		Recipients: []string{"alice", "bob"},
		Subject:    "Stage completed",
		Body:       "Initial is done",
		Project:    "acme-onboarding",
		Stage:      0,
	})

	require.NoError(t, h.HandleEmail(context.Background(), raw))
	require.Len(t, mailer.sent, 1)
	assert.ElementsMatch(t, []string{"alice@example.com", "bob@example.com"}, mailer.sent[0])
	assert.Empty(t, retries.counts)
}

func TestHandleEmailDedupesRedelivery(t *testing.T) {
	dir := &fakeDirectory{emails: map[string]string{"alice": "alice@example.com"}}
	mailer := &fakeMailer{}
	h, _ := newTestHandler(dir, mailer, &fakeDLQ{})

	raw := payloadJSON(t, mqcontracts.EmailPayload{
		Kind:       mqcontracts.KindTaskAssigned,
		Recipients: []string{"alice"},
		Project:    "acme-onboarding",
		Stage:      1,
	})

	require.NoError(t, h.HandleEmail(context.Background(), raw))
	require.NoError(t, h.HandleEmail(context.Background(), raw))
	assert.Len(t, mailer.sent, 1)
}

func TestHandleEmailMalformedPayloadAcks(t *testing.T) {
	h, _ := newTestHandler(&fakeDirectory{}, &fakeMailer{}, &fakeDLQ{})

	err := h.HandleEmail(context.Background(), json.RawMessage(`{not json`))
	assert.NoError(t, err)
}

func TestHandleEmailUnknownRecipientsAck(t *testing.T) {
	dir := &fakeDirectory{emails: map[string]string{}}
	mailer := &fakeMailer{}
	h, _ := newTestHandler(dir, mailer, &fakeDLQ{})

	raw := payloadJSON(t, mqcontracts.EmailPayload{
		Kind:       mqcontracts.KindTaskVerified,
		Recipients: []string{"ghost"},
		Project:    "acme-onboarding",
	})

	require.NoError(t, h.HandleEmail(context.Background(), raw))
	assert.Empty(t, mailer.sent)
}

func TestHandleEmailRetriesThenDeadLetters(t *testing.T) {
	dir := &fakeDirectory{emails: map[string]string{"alice": "alice@example.com"}}
	mailer := &fakeMailer{err: errors.New("smtp: connection refused")}
	dlq := &fakeDLQ{}
	h := NewEmailHandler(dir, mailer, &noopDeduper{}, &fakeRetryCounter{}, dlq, zap.NewNop())

	raw := payloadJSON(t, mqcontracts.EmailPayload{
		Kind:       mqcontracts.KindVerificationRequired,
		Recipients: []string{"alice"},
		Project:    "acme-onboarding",
		Stage:      2,
	})

	for i := 0; i < maxRetries-1; i++ {
		err := h.HandleEmail(context.Background(), raw)
		require.Error(t, err)
	}
	assert.Empty(t, dlq.published)

	// delivery maxRetries exhausts the budget, the message is parked and acked
	require.NoError(t, h.HandleEmail(context.Background(), raw))
	require.Len(t, dlq.published, 1)
	assert.Contains(t, dlq.errors[0], "connection refused")
}

type noopDeduper struct{}

func (noopDeduper) IsDuplicate(ctx context.Context, key string) bool { return false }
