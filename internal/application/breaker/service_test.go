package breaker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	appbreaker "github.com/ahrav/provisioner/internal/application/breaker"
	"github.com/ahrav/provisioner/internal/domain/breaker"
	"github.com/ahrav/provisioner/internal/domain/notification"
	"github.com/ahrav/provisioner/internal/domain/provisioning"
	"github.com/ahrav/provisioner/internal/domain/system"
	"github.com/ahrav/provisioner/internal/infra/storage/memory"
	"github.com/ahrav/provisioner/pkg/common/logger"
	"github.com/ahrav/provisioner/pkg/common/timeutil"
)

// MockNotifier is a testify mock for notification.Notifier.
type MockNotifier struct{ mock.Mock }

func (m *MockNotifier) Send(ctx context.Context, topic notification.Topic, msg notification.Message, recipients ...string) error {
	args := m.Called(ctx, topic, msg, recipients)
	return args.Error(0)
}

type noopMetrics struct{}

func (noopMetrics) IncBreakWarnings(context.Context, string) {}
func (noopMetrics) IncBreakBlocks(context.Context, string)   {}

type fixture struct {
	sys      system.System
	systems  *memory.SystemStore
	breakers *memory.BreakerStore
	notifier *MockNotifier
	clock    *timeutil.Mock
	svc      *appbreaker.Service
}

func newFixture(t *testing.T, cfg *breaker.Config) *fixture {
	t.Helper()
	sys := system.System{ID: uuid.New(), Name: "ldap", ConnectorKey: "memory"}
	f := &fixture{
		sys:      sys,
		systems:  memory.NewSystemStore(sys),
		breakers: memory.NewBreakerStore(),
		notifier: new(MockNotifier),
		clock:    timeutil.NewMock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)),
	}
	if cfg != nil {
		cfg.SystemID = sys.ID
		require.NoError(t, f.breakers.Save(context.Background(), *cfg))
		f.breakers.SetRecipients(cfg.ID, "ops@example.com")
	}
	f.svc = appbreaker.NewService(
		f.breakers, f.breakers, f.breakers, f.systems, f.notifier, f.clock,
		logger.Noop(), noop.NewTracerProvider().Tracer("test"), noopMetrics{},
	)
	return f
}

// check reloads the system like the pipeline does before each attempt.
func (f *fixture) check(t *testing.T, opType provisioning.OperationType) appbreaker.Decision {
	t.Helper()
	sys, err := f.systems.FindByID(context.Background(), f.sys.ID)
	require.NoError(t, err)
	d, err := f.svc.Check(context.Background(), sys, opType)
	require.NoError(t, err)
	return d
}

func updateConfig() *breaker.Config {
	return &breaker.Config{
		ID:            uuid.New(),
		OperationType: provisioning.OpUpdate,
		Period:        time.Minute,
		WarningLimit:  breaker.Limit(3),
		DisableLimit:  breaker.Limit(5),
	}
}

func TestCheck_WarnThenBlock(t *testing.T) {
	f := newFixture(t, updateConfig())
	f.notifier.On("Send", mock.Anything, notification.TopicBreakWarning, mock.Anything, []string{"ops@example.com"}).Return(nil).Twice()
	f.notifier.On("Send", mock.Anything, notification.TopicBreakDisabled, mock.Anything, []string{"ops@example.com"}).Return(nil).Once()

	var got []appbreaker.Decision
	for range 6 {
		got = append(got, f.check(t, provisioning.OpUpdate))
		f.clock.Advance(2 * time.Second)
	}

	assert.Equal(t, []appbreaker.Decision{
		appbreaker.Allow,
		appbreaker.Allow,
		appbreaker.Warn,
		appbreaker.Warn,
		appbreaker.Block,
		appbreaker.AlreadyBlocked,
	}, got)
	f.notifier.AssertExpectations(t)

	sys, err := f.systems.FindByID(context.Background(), f.sys.ID)
	require.NoError(t, err)
	assert.True(t, sys.IsBlocked(provisioning.OpUpdate))
	assert.False(t, sys.IsBlocked(provisioning.OpCreate))

	w, err := f.breakers.Load(context.Background(), f.sys.ID)
	require.NoError(t, err)
	assert.Len(t, w.Entries, 5, "blocked attempts are not counted")
}

func TestCheck_ConcurrentAttemptsEscalateOnce(t *testing.T) {
	cfg := updateConfig()
	cfg.WarningLimit = nil
	cfg.DisableLimit = breaker.Limit(2)
	f := newFixture(t, cfg)
	f.notifier.On("Send", mock.Anything, notification.TopicBreakDisabled, mock.Anything, mock.Anything).Return(nil)

	// Every attempt carries the snapshot loaded before the type was blocked.
	const attempts = 8
	decisions := make([]appbreaker.Decision, attempts)
	var wg sync.WaitGroup
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := f.svc.Check(context.Background(), f.sys, provisioning.OpUpdate)
			assert.NoError(t, err)
			decisions[i] = d
		}()
	}
	wg.Wait()

	counts := map[appbreaker.Decision]int{}
	for _, d := range decisions {
		counts[d]++
	}
	assert.Equal(t, 1, counts[appbreaker.Allow])
	assert.Equal(t, 1, counts[appbreaker.Block])
	assert.Equal(t, attempts-2, counts[appbreaker.AlreadyBlocked])
	f.notifier.AssertNumberOfCalls(t, "Send", 1)

	w, err := f.breakers.Load(context.Background(), f.sys.ID)
	require.NoError(t, err)
	assert.Len(t, w.Entries, 2, "attempts after the block are not counted")
}

func TestCheck_WindowSlides(t *testing.T) {
	f := newFixture(t, updateConfig())

	for range 2 {
		assert.Equal(t, appbreaker.Allow, f.check(t, provisioning.OpUpdate))
	}
	f.clock.Advance(61 * time.Second)
	assert.Equal(t, appbreaker.Allow, f.check(t, provisioning.OpUpdate))

	w, err := f.breakers.Load(context.Background(), f.sys.ID)
	require.NoError(t, err)
	assert.Len(t, w.Entries, 1, "entries older than the period are pruned")
	f.notifier.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCheck_TypesAreIndependent(t *testing.T) {
	f := newFixture(t, updateConfig())
	f.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	for range 5 {
		f.check(t, provisioning.OpUpdate)
	}
	assert.Equal(t, appbreaker.Allow, f.check(t, provisioning.OpCreate), "no config for CREATE")
	assert.Equal(t, appbreaker.AlreadyBlocked, f.check(t, provisioning.OpUpdate))
}

func TestCheck_NoOrDisabledConfig(t *testing.T) {
	t.Run("no config", func(t *testing.T) {
		f := newFixture(t, nil)
		for range 10 {
			assert.Equal(t, appbreaker.Allow, f.check(t, provisioning.OpUpdate))
		}
		w, err := f.breakers.Load(context.Background(), f.sys.ID)
		require.NoError(t, err)
		assert.Empty(t, w.Entries)
	})

	t.Run("disabled config", func(t *testing.T) {
		cfg := updateConfig()
		cfg.Disabled = true
		f := newFixture(t, cfg)
		for range 10 {
			assert.Equal(t, appbreaker.Allow, f.check(t, provisioning.OpUpdate))
		}
	})
}

func TestCheck_NotificationFailureDoesNotFail(t *testing.T) {
	f := newFixture(t, updateConfig())
	f.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	for range 4 {
		f.check(t, provisioning.OpUpdate)
	}
	assert.Equal(t, appbreaker.Block, f.check(t, provisioning.OpUpdate))
}

func TestUnblockAndState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, updateConfig())
	f.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	state, err := f.svc.State(ctx, f.sys.ID, provisioning.OpUpdate)
	require.NoError(t, err)
	assert.Equal(t, breaker.StateOpen, state)

	for range 3 {
		f.check(t, provisioning.OpUpdate)
	}
	state, err = f.svc.State(ctx, f.sys.ID, provisioning.OpUpdate)
	require.NoError(t, err)
	assert.Equal(t, breaker.StateWarned, state)

	for range 2 {
		f.check(t, provisioning.OpUpdate)
	}
	state, err = f.svc.State(ctx, f.sys.ID, provisioning.OpUpdate)
	require.NoError(t, err)
	assert.Equal(t, breaker.StateBlocked, state)

	require.NoError(t, f.svc.Unblock(ctx, f.sys.ID, provisioning.OpUpdate))

	state, err = f.svc.State(ctx, f.sys.ID, provisioning.OpUpdate)
	require.NoError(t, err)
	assert.Equal(t, breaker.StateOpen, state)
	assert.Equal(t, appbreaker.Allow, f.check(t, provisioning.OpUpdate))

	assert.ErrorIs(t, f.svc.Unblock(ctx, uuid.New(), provisioning.OpUpdate), system.ErrSystemNotFound)
}
