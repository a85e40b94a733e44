package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stayline/hotel-concierge/internal/pms"
)

type recordingNotifier struct {
	mu      sync.Mutex
	notices []BookingNotice
}

func (r *recordingNotifier) SendBookingConfirmation(ctx context.Context, notice BookingNotice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice)
	return nil
}

type recordingArchiver struct {
	mu      sync.Mutex
	notices []BookingNotice
}

func (r *recordingArchiver) ArchiveBooking(ctx context.Context, notice BookingNotice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice)
	return nil
}

func newTestService(t *testing.T) (*Service, *recordingNotifier, *recordingArchiver) {
	t.Helper()
	notifier := &recordingNotifier{}
	archiver := &recordingArchiver{}
	engine := newTestEngine(t, pms.NewMockClient())
	store := NewMemorySessionStore(time.Hour)
	svc := NewService(engine, store, nil,
		WithNotifier(notifier),
		WithArchiver(archiver),
	)
	return svc, notifier, archiver
}

func driveToConfirmation(t *testing.T, svc *Service, userID string) *Reply {
	t.Helper()
	ctx := context.Background()
	for _, text := range []string{
		"2026-09-10 to 2026-09-12 for 2 guests",
		"1",
		"Jane Smith jane@example.com +14155551234",
	} {
		reply, err := svc.ProcessUtterance(ctx, Utterance{UserID: userID, Text: text, Channel: ChannelWhatsApp})
		require.NoError(t, err)
		if reply.Confirmed {
			return reply
		}
	}
	t.Fatal("conversation did not reach confirmation")
	return nil
}

func TestServicePersistsAcrossCalls(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	reply, err := svc.ProcessUtterance(ctx, Utterance{UserID: "u1", Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, StageCollectingDates, reply.Stage)

	reply, err = svc.ProcessUtterance(ctx, Utterance{UserID: "u1", Text: "2026-09-10 to 2026-09-12 for 2 guests"})
	require.NoError(t, err)
	assert.Equal(t, StagePresentingOptions, reply.Stage)

	// The session survived between calls: the room list stage was
	// reachable only because the first call was persisted.
	snap, err := svc.SessionSnapshot(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "2026-09-10", snap.Slots.CheckInDate)
	assert.NotEmpty(t, snap.AvailableOffers)
}

func TestServiceConfirmationFansOut(t *testing.T) {
	svc, notifier, archiver := newTestService(t)

	reply := driveToConfirmation(t, svc, "u1")
	assert.True(t, reply.Confirmed)
	assert.NotEmpty(t, reply.ConfirmationNumber)

	require.Len(t, notifier.notices, 1)
	notice := notifier.notices[0]
	assert.Equal(t, reply.ConfirmationNumber, notice.ConfirmationNumber)
	assert.Equal(t, "Jane Smith", notice.Guest.Name)
	assert.Equal(t, "jane@example.com", notice.Guest.Email)
	assert.Equal(t, ChannelWhatsApp, notice.Channel)
	assert.Equal(t, "2026-09-10", notice.CheckIn)

	require.Len(t, archiver.notices, 1)
	assert.Equal(t, reply.ConfirmationNumber, archiver.notices[0].ConfirmationNumber)
}

func TestServiceConfirmationFansOutOnce(t *testing.T) {
	svc, notifier, _ := newTestService(t)
	driveToConfirmation(t, svc, "u1")

	// A status query on a confirmed session must not re-announce.
	_, err := svc.ProcessUtterance(context.Background(), Utterance{UserID: "u1", Text: "status"})
	require.NoError(t, err)
	assert.Len(t, notifier.notices, 1)
}

func TestServiceResetClearsPersistedSession(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ProcessUtterance(ctx, Utterance{UserID: "u1", Text: "2026-09-10 to 2026-09-12 for 2 guests"})
	require.NoError(t, err)

	reply, err := svc.ProcessUtterance(ctx, Utterance{UserID: "u1", Text: "reset"})
	require.NoError(t, err)
	assert.Equal(t, StageGreeting, reply.Stage)

	snap, err := svc.SessionSnapshot(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Empty(t, snap.Slots.CheckInDate)
	assert.Empty(t, snap.AvailableOffers)
}

func TestServiceOperatorReset(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ProcessUtterance(ctx, Utterance{UserID: "u1", Text: "2026-09-10 to 2026-09-12 for 2 guests"})
	require.NoError(t, err)

	require.NoError(t, svc.ResetSession(ctx, "u1"))
	snap, err := svc.SessionSnapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

// gatedBackend parks availability calls until released, so a test can
// interleave other work while a turn is mid-flight.
type gatedBackend struct {
	next    pms.Client
	entered chan struct{}
	release chan struct{}
}

func (g *gatedBackend) CheckAvailability(ctx context.Context, req pms.AvailabilityRequest) ([]pms.RoomOffer, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.next.CheckAvailability(ctx, req)
}

func (g *gatedBackend) CreateBooking(ctx context.Context, req pms.BookingRequest) (*pms.BookingConfirmation, error) {
	return g.next.CreateBooking(ctx, req)
}

func TestServiceDiscardsTurnThatLostResetRace(t *testing.T) {
	// Two service instances over one Redis. The keyed mutex only covers
	// one process, so a reset on the second instance can land while the
	// first instance's turn is blocked on the backend.
	mr := miniredis.RunT(t)
	storeA := NewRedisSessionStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)
	storeB := NewRedisSessionStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)

	gate := &gatedBackend{
		next:    pms.NewMockClient(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	svcA := NewService(newTestEngine(t, gate), storeA, nil)
	svcB := NewService(newTestEngine(t, pms.NewMockClient()), storeB, nil)

	ctx := context.Background()
	_, err := svcB.ProcessUtterance(ctx, Utterance{UserID: "u1", Text: "hi"})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svcA.ProcessUtterance(ctx, Utterance{UserID: "u1", Text: "2026-09-10 to 2026-09-12 for 2 guests"})
		done <- err
	}()

	<-gate.entered
	reply, err := svcB.ProcessUtterance(ctx, Utterance{UserID: "u1", Text: "reset"})
	require.NoError(t, err)
	require.Equal(t, StageGreeting, reply.Stage)

	close(gate.release)
	require.NoError(t, <-done)

	// The reset won: the blocked turn's state was not written back.
	snap, err := svcB.SessionSnapshot(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, StageGreeting, snap.Stage)
	assert.Empty(t, snap.Slots.CheckInDate)
	assert.Empty(t, snap.AvailableOffers)
}

func TestServiceRejectsEmptyUserID(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.ProcessUtterance(context.Background(), Utterance{Text: "hi"})
	assert.Error(t, err)
}

func TestServiceConcurrentUsersIsolated(t *testing.T) {
	svc, notifier, _ := newTestService(t)

	var wg sync.WaitGroup
	users := []string{"u1", "u2", "u3", "u4"}
	for _, u := range users {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			driveToConfirmation(t, svc, userID)
		}(u)
	}
	wg.Wait()

	assert.Len(t, notifier.notices, len(users))
	seen := make(map[string]bool)
	for _, n := range notifier.notices {
		assert.False(t, seen[n.ConfirmationNumber], "duplicate confirmation %s", n.ConfirmationNumber)
		seen[n.ConfirmationNumber] = true
	}
}
