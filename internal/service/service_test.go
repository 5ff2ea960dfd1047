package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/psds-microservice/agri-support-service/internal/classifier"
	"github.com/psds-microservice/agri-support-service/internal/model"
	"github.com/psds-microservice/agri-support-service/internal/store"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// tickClock advances one second per call so orderings are deterministic.
type tickClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTickClock() *tickClock { return &tickClock{now: epoch} }

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type recordedEvent struct {
	event string
	key   string
}

type fakeProducer struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *fakeProducer) ProduceRequestEvent(ctx context.Context, event string, key string, payload map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{event: event, key: key})
}

func (p *fakeProducer) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.event)
	}
	return out
}

type fakeImages struct {
	saved int
}

func (f *fakeImages) Save(u *model.Upload) (string, error) {
	f.saved++
	return "/api/files/leaf-" + u.Filename, nil
}

type fakeClassifier struct {
	pred  *classifier.Prediction
	err   error
	calls int
}

func (f *fakeClassifier) Classify(ctx context.Context, crop string, image *model.Upload) (*classifier.Prediction, error) {
	f.calls++
	return f.pred, f.err
}

type fakeAdvisor struct {
	answer string
	err    error
	calls  int
	got    [2]string
}

func (f *fakeAdvisor) Advise(ctx context.Context, crop, disease string) (string, error) {
	f.calls++
	f.got = [2]string{crop, disease}
	return f.answer, f.err
}

type fixture struct {
	store    *store.MemoryStore
	events   *fakeProducer
	images   *fakeImages
	requests *RequestService
	chat     *ChatService
	views    *AssignmentService

	farmer   *model.Identity
	agentA   *model.Identity
	agentB   *model.Identity
	overseer *model.Identity
	outsider *model.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	clock := newTickClock()
	f := &fixture{store: st, events: &fakeProducer{}, images: &fakeImages{}}
	f.requests = NewRequestService(st, f.images, f.events).WithClock(clock.Now)
	f.chat = NewChatService(st, f.events).WithClock(clock.Now)
	f.views = NewAssignmentService(st)

	save := func(username string, roles ...model.Role) *model.Identity {
		ident := &model.Identity{Username: username, Roles: model.RoleSet(roles)}
		require.NoError(t, st.SaveIdentity(ctx, ident))
		return ident
	}
	f.farmer = save("farmer", model.RoleRequester)
	f.agentA = save("officer_a", model.RoleAgent)
	f.agentB = save("officer_b", model.RoleAgent)
	f.overseer = save("admin", model.RoleOverseer)
	f.outsider = save("other_farmer", model.RoleRequester)
	return f
}

func (f *fixture) create(t *testing.T) *model.SupportRequest {
	t.Helper()
	r, err := f.requests.Create(context.Background(), f.farmer, CreateInput{Category: "rice blast", Description: "leaves yellowing"})
	require.NoError(t, err)
	return r
}

func requireInvariants(t *testing.T, st store.RequestStore, id uint64) {
	t.Helper()
	r, err := st.GetRequest(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, r.CheckInvariants())
}
