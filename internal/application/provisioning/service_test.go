package provisioning_test

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

	"github.com/ahrav/provisioner/internal/application/breaker"
	"github.com/ahrav/provisioner/internal/application/provisioning"
	"github.com/ahrav/provisioner/internal/domain/approval"
	breakerDomain "github.com/ahrav/provisioner/internal/domain/breaker"
	"github.com/ahrav/provisioner/internal/domain/connector"
	"github.com/ahrav/provisioner/internal/domain/mapping"
	"github.com/ahrav/provisioner/internal/domain/notification"
	provisioningDomain "github.com/ahrav/provisioner/internal/domain/provisioning"
	"github.com/ahrav/provisioner/internal/domain/system"
	connmem "github.com/ahrav/provisioner/internal/infra/connector/memory"
	"github.com/ahrav/provisioner/internal/infra/storage/memory"
	"github.com/ahrav/provisioner/pkg/common/logger"
	"github.com/ahrav/provisioner/pkg/common/timeutil"
)

const objectClass = "__ACCOUNT__"

// MockNotifier is a testify mock for notification.Notifier.
type MockNotifier struct{ mock.Mock }

func (m *MockNotifier) Send(ctx context.Context, topic notification.Topic, msg notification.Message, recipients ...string) error {
	args := m.Called(ctx, topic, msg, recipients)
	return args.Error(0)
}

// sent counts the messages sent on topic.
func (m *MockNotifier) sent(topic notification.Topic) int {
	n := 0
	for _, c := range m.Calls {
		if c.Arguments.Get(1) == topic {
			n++
		}
	}
	return n
}

// MockApprover is a testify mock for approval.Approver.
type MockApprover struct{ mock.Mock }

func (m *MockApprover) StartProcess(ctx context.Context, definitionKey string, variables map[string]any) (approval.Result, error) {
	args := m.Called(ctx, definitionKey, variables)
	return args.Get(0).(approval.Result), args.Error(1)
}

type noopMetrics struct{}

func (noopMetrics) ObserveStageDuration(context.Context, string, string, time.Duration) {}
func (noopMetrics) IncOperations(context.Context, string, string)                       {}
func (noopMetrics) ObserveOperationDuration(context.Context, string, time.Duration)     {}
func (noopMetrics) AddInFlight(context.Context, int64)                                  {}
func (noopMetrics) IncBreakWarnings(context.Context, string)                            {}
func (noopMetrics) IncBreakBlocks(context.Context, string)                              {}

// flakySystems fails the first failures lookups.
type flakySystems struct {
	system.Repository
	mu       sync.Mutex
	failures int
}

func (f *flakySystems) FindByID(ctx context.Context, id uuid.UUID) (system.System, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return system.System{}, errors.New("connection refused")
	}
	f.mu.Unlock()
	return f.Repository.FindByID(ctx, id)
}

type harness struct {
	sys      system.System
	ops      *memory.OperationStore
	systems  *memory.SystemStore
	breakers *memory.BreakerStore
	gateway  *connmem.Gateway
	notifier *MockNotifier
	approver *MockApprover
	clock    *timeutil.Mock
	svc      *provisioning.Service
}

type harnessSetup struct {
	cfg  provisioning.Config
	sys  system.System
	sets []mapping.Set
	// wrapSystems decorates the system repository the service sees.
	wrapSystems func(system.Repository) system.Repository
}

type harnessOption func(*harnessSetup)

func withSystem(fn func(*system.System)) harnessOption {
	return func(hs *harnessSetup) { fn(&hs.sys) }
}

func withoutMapping() harnessOption {
	return func(hs *harnessSetup) { hs.sets = nil }
}

func withConfig(fn func(*provisioning.Config)) harnessOption {
	return func(hs *harnessSetup) { fn(&hs.cfg) }
}

func withSystems(wrap func(system.Repository) system.Repository) harnessOption {
	return func(hs *harnessSetup) { hs.wrapSystems = wrap }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	sys := system.System{ID: uuid.New(), Name: "ldap", ConnectorKey: connmem.Key}
	sets := []mapping.Set{{
		ID:          uuid.New(),
		SystemID:    sys.ID,
		EntityType:  provisioningDomain.EntityIdentity,
		ObjectClass: objectClass,
		Active:      true,
		Mappings: []mapping.AttributeMapping{
			{Name: "name", IdmAttribute: "username", Createable: true, Updateable: true, ReturnedByDefault: true},
			{Name: "email", Createable: true, Updateable: true, ReturnedByDefault: true},
			{Name: "password", Createable: true, Updateable: true},
		},
	}}
	hs := harnessSetup{
		cfg:         provisioning.Config{Enabled: true, MaxInFlight: 4},
		sys:         sys,
		sets:        sets,
		wrapSystems: func(r system.Repository) system.Repository { return r },
	}
	for _, opt := range opts {
		opt(&hs)
	}
	cfg, sys, sets := hs.cfg, hs.sys, hs.sets

	h := &harness{
		sys:      sys,
		ops:      memory.NewOperationStore(),
		systems:  memory.NewSystemStore(sys),
		breakers: memory.NewBreakerStore(),
		gateway:  connmem.New(),
		notifier: new(MockNotifier),
		approver: new(MockApprover),
		clock:    timeutil.NewMock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)),
	}
	h.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	tracer := noop.NewTracerProvider().Tracer("test")
	breakerSvc := breaker.NewService(h.breakers, h.breakers, h.breakers, h.systems, h.notifier, h.clock,
		logger.Noop(), tracer, noopMetrics{})

	svc, err := provisioning.NewService(cfg, provisioning.Dependencies{
		Operations: h.ops,
		Systems:    hs.wrapSystems(h.systems),
		Mappings:   memory.NewMappingStore(sets...),
		Gateway:    h.gateway,
		Breaker:    breakerSvc,
		Approver:   h.approver,
		Notifier:   h.notifier,
	}, logger.Noop(), tracer, noopMetrics{})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *harness) newOp(t *testing.T, opType provisioningDomain.OperationType, uid string, desired map[string]any) provisioningDomain.Operation {
	t.Helper()
	op, err := provisioningDomain.NewOperation(opType, h.sys.ID, provisioningDomain.EntityIdentity, "alice", uid, desired)
	require.NoError(t, err)
	return op
}

func (h *harness) putObject(uid string, attrs ...connector.Attribute) {
	h.gateway.Put(connmem.Key, connector.Object{UID: uid, ObjectClass: objectClass, Attributes: attrs})
}

func (h *harness) writes() int {
	return len(h.gateway.CallsOf(connmem.MethodCreate)) +
		len(h.gateway.CallsOf(connmem.MethodUpdate)) +
		len(h.gateway.CallsOf(connmem.MethodDelete))
}

func (h *harness) assertArchived(t *testing.T, id uuid.UUID) {
	t.Helper()
	_, err := h.ops.FindByID(context.Background(), id)
	assert.ErrorIs(t, err, provisioningDomain.ErrOperationNotFound)
	_, err = h.ops.FindArchived(context.Background(), id)
	assert.NoError(t, err)
}

func (h *harness) assertQueued(t *testing.T, id uuid.UUID) provisioningDomain.Operation {
	t.Helper()
	op, err := h.ops.FindByID(context.Background(), id)
	require.NoError(t, err)
	return op
}

func TestSubmitSync_DisabledSystem(t *testing.T) {
	h := newHarness(t, withSystem(func(s *system.System) { s.Disabled = true }))

	op := h.newOp(t, provisioningDomain.OpCreate, "", map[string]any{"name": "alice"})
	out, err := h.svc.SubmitSync(context.Background(), op)
	require.NoError(t, err)

	assert.Equal(t, provisioningDomain.StateNotExecuted, out.Result.State)
	assert.Equal(t, provisioningDomain.CodeSystemDisabled, out.Result.Code)
	assert.Empty(t, h.gateway.Calls(), "connector must never be called")
	assert.Equal(t, 1, h.notifier.sent(notification.TopicProvisioning))
	h.assertQueued(t, op.ID)
}

func TestSubmitSync_PolicyGates(t *testing.T) {
	testCases := []struct {
		desc     string
		opt      harnessOption
		wantCode provisioningDomain.Code
	}{
		{
			desc:     "global switch off",
			opt:      withConfig(func(c *provisioning.Config) { c.Enabled = false }),
			wantCode: provisioningDomain.CodeProvisioningDisabled,
		},
		{
			desc:     "provisioning disabled on system",
			opt:      withSystem(func(s *system.System) { s.DisabledProvisioning = true }),
			wantCode: provisioningDomain.CodeProvisioningDisabled,
		},
		{
			desc:     "readonly system",
			opt:      withSystem(func(s *system.System) { s.Readonly = true }),
			wantCode: provisioningDomain.CodeSystemReadonly,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			h := newHarness(t, tc.opt)

			out, err := h.svc.SubmitSync(context.Background(), h.newOp(t, provisioningDomain.OpCreate, "", map[string]any{"name": "alice"}))
			require.NoError(t, err)

			assert.Equal(t, provisioningDomain.StateNotExecuted, out.Result.State)
			assert.Equal(t, tc.wantCode, out.Result.Code)
			assert.Zero(t, h.writes())
		})
	}
}

func TestSubmitSync_MissingConnector(t *testing.T) {
	h := newHarness(t, withSystem(func(s *system.System) { s.ConnectorKey = "" }))

	out, err := h.svc.SubmitSync(context.Background(), h.newOp(t, provisioningDomain.OpCreate, "", nil))
	require.NoError(t, err)

	assert.Equal(t, provisioningDomain.StateException, out.Result.State)
	assert.Equal(t, provisioningDomain.CodeConnectorKeyMissing, out.Result.Code)
	assert.False(t, out.IsRetryable())
}

func TestProvision_CreatesMissingObject(t *testing.T) {
	h := newHarness(t)

	out, err := h.svc.Provision(context.Background(), provisioning.ProvisionRequest{
		SystemID:        h.sys.ID,
		EntityType:      provisioningDomain.EntityIdentity,
		EntityID:        "alice",
		SystemEntityUID: "cn=alice",
		Type:            provisioningDomain.OpUpdate,
		Attributes:      map[string]any{"username": "alice", "email": "a@x.com", "department": "ops"},
	})
	require.NoError(t, err)

	assert.Equal(t, provisioningDomain.OpCreate, out.Type)
	assert.Equal(t, provisioningDomain.StateExecuted, out.Result.State)
	assert.NotEmpty(t, out.SystemEntityUID)

	creates := h.gateway.CallsOf(connmem.MethodCreate)
	require.Len(t, creates, 1)
	assert.Equal(t, []connector.Attribute{
		connector.NewAttribute("name", "alice"),
		connector.NewAttribute("email", "a@x.com"),
	}, creates[0].Attributes)
	h.assertArchived(t, out.ID)
}

func TestSubmitSync_UnchangedUpdateSkipsConnector(t *testing.T) {
	h := newHarness(t)
	h.putObject("uid-1", connector.NewAttribute("email", "a@x.com"))

	out, err := h.svc.SubmitSync(context.Background(), h.newOp(t, provisioningDomain.OpUpdate, "uid-1", map[string]any{"email": "a@x.com"}))
	require.NoError(t, err)

	assert.Equal(t, provisioningDomain.OpUpdate, out.Type)
	assert.Equal(t, provisioningDomain.StateExecuted, out.Result.State)
	assert.Equal(t, provisioningDomain.CodeNothingChanged, out.Result.Code)
	assert.Len(t, h.gateway.CallsOf(connmem.MethodRead), 1)
	assert.Zero(t, h.writes())
	h.assertArchived(t, out.ID)
}

func TestSubmitSync_UpdateSendsDelta(t *testing.T) {
	h := newHarness(t)
	h.putObject("uid-1", connector.NewAttribute("name", "alice"), connector.NewAttribute("email", "a@x.com"))

	out, err := h.svc.SubmitSync(context.Background(), h.newOp(t, provisioningDomain.OpUpdate, "uid-1", map[string]any{
		"name":  "alice",
		"email": "alice@x.com",
	}))
	require.NoError(t, err)
	assert.Equal(t, provisioningDomain.CodeExecuted, out.Result.Code)

	updates := h.gateway.CallsOf(connmem.MethodUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, []connector.Attribute{connector.NewAttribute("email", "alice@x.com")}, updates[0].Attributes)
}

func TestSubmitSync_BreakerBlocksBurst(t *testing.T) {
	h := newHarness(t)
	cfg := breakerDomain.Config{
		ID:            uuid.New(),
		SystemID:      h.sys.ID,
		OperationType: provisioningDomain.OpUpdate,
		Period:        60 * time.Second,
		WarningLimit:  breakerDomain.Limit(3),
		DisableLimit:  breakerDomain.Limit(5),
	}
	require.NoError(t, h.breakers.Save(context.Background(), cfg))
	h.breakers.SetRecipients(cfg.ID, "ops@example.com")
	h.putObject("uid-1", connector.NewAttribute("email", "a@x.com"))

	ctx := context.Background()
	var results []provisioningDomain.Operation
	for i := range 6 {
		out, err := h.svc.SubmitSync(ctx, h.newOp(t, provisioningDomain.OpUpdate, "uid-1", map[string]any{
			"email": "a@x.com",
			"name":  string(rune('a' + i)),
		}))
		require.NoError(t, err)
		results = append(results, out)
		h.clock.Advance(2 * time.Second)
	}

	for _, out := range results[:4] {
		assert.Equal(t, provisioningDomain.StateExecuted, out.Result.State)
	}
	assert.Equal(t, provisioningDomain.StateBlocked, results[4].Result.State)
	assert.Equal(t, provisioningDomain.CodeOperationBlocked, results[4].Result.Code)
	assert.Equal(t, provisioningDomain.StateBlocked, results[5].Result.State)

	sys, err := h.systems.FindByID(ctx, h.sys.ID)
	require.NoError(t, err)
	assert.True(t, sys.Blocked.UpdateBlocked)
	assert.Equal(t, 2, h.notifier.sent(notification.TopicBreakWarning))
	assert.Equal(t, 1, h.notifier.sent(notification.TopicBreakDisabled))

	assert.Len(t, h.gateway.CallsOf(connmem.MethodRead), 4, "blocked operations never reach reconciliation")
	assert.Len(t, h.gateway.CallsOf(connmem.MethodUpdate), 4)

	state, err := h.svc.BreakerState(ctx, h.sys.ID, provisioningDomain.OpUpdate)
	require.NoError(t, err)
	assert.Equal(t, breakerDomain.StateBlocked, state)

	// Canceling a blocked operation finishes it.
	canceled, err := h.svc.Cancel(ctx, results[5].ID)
	require.NoError(t, err)
	assert.Equal(t, provisioningDomain.StateCanceled, canceled.Result.State)
	h.assertArchived(t, canceled.ID)

	again, err := h.svc.Cancel(ctx, results[5].ID)
	require.NoError(t, err)
	assert.Equal(t, provisioningDomain.StateCanceled, again.Result.State)

	require.NoError(t, h.svc.Unblock(ctx, h.sys.ID, provisioningDomain.OpUpdate))
	out, err := h.svc.Retry(ctx, results[4].ID)
	require.NoError(t, err)
	assert.Equal(t, provisioningDomain.StateExecuted, out.Result.State)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown operation", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.Cancel(ctx, uuid.New())
		assert.ErrorIs(t, err, provisioningDomain.ErrOperationNotFound)
	})

	t.Run("executed operation is a no-op", func(t *testing.T) {
		h := newHarness(t)
		out, err := h.svc.SubmitSync(ctx, h.newOp(t, provisioningDomain.OpCreate, "", map[string]any{"name": "alice"}))
		require.NoError(t, err)

		canceled, err := h.svc.Cancel(ctx, out.ID)
		require.NoError(t, err)
		assert.Equal(t, provisioningDomain.StateExecuted, canceled.Result.State)
	})

	t.Run("cancel cannot be submitted", func(t *testing.T) {
		h := newHarness(t)
		op := h.newOp(t, provisioningDomain.OpCreate, "", nil).WithType(provisioningDomain.OpCancel)
		_, err := h.svc.SubmitSync(ctx, op)
		assert.ErrorIs(t, err, provisioning.ErrCancelNotAllowed)
	})
}

func TestSubmitSync_ConnectorFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.putObject("uid-1", connector.NewAttribute("email", "a@x.com"))
	h.gateway.FailOn(connmem.MethodUpdate, errors.New("connection reset by peer"))

	out, err := h.svc.SubmitSync(ctx, h.newOp(t, provisioningDomain.OpUpdate, "uid-1", map[string]any{"email": "b@x.com"}))
	require.NoError(t, err, "connector failures are recorded, not returned")

	assert.Equal(t, provisioningDomain.StateException, out.Result.State)
	assert.Equal(t, provisioningDomain.CodeTargetUpdateFailed, out.Result.Code)
	assert.Equal(t, "connection reset by peer", out.Result.Cause)
	assert.True(t, out.IsRetryable())
	h.assertQueued(t, out.ID)

	h.gateway.FailOn(connmem.MethodUpdate, nil)
	n, err := h.svc.RetryFailed(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	h.assertArchived(t, out.ID)
	archived, err := h.svc.Get(ctx, out.ID)
	require.NoError(t, err)
	assert.Equal(t, provisioningDomain.StateExecuted, archived.Result.State)
	assert.Equal(t, 2, archived.Attempts)
}

func TestSubmitSync_ConfigurationErrorsAreNotRetried(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withoutMapping())

	out, err := h.svc.SubmitSync(ctx, h.newOp(t, provisioningDomain.OpCreate, "", map[string]any{"name": "alice"}))
	require.NoError(t, err)

	assert.Equal(t, provisioningDomain.StateException, out.Result.State)
	assert.Equal(t, provisioningDomain.CodeMappingNotFound, out.Result.Code)
	assert.Equal(t, provisioningDomain.KindConfiguration, out.Result.Code.Kind())

	n, err := h.svc.RetryFailed(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, h.gateway.Calls())
}

func TestRetryFailed_SkipsNonRetryableBacklog(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i := range 2 {
		stuck := h.newOp(t, provisioningDomain.OpCreate, "", map[string]any{"name": "alice"})
		stuck.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		stuck = stuck.WithResult(provisioningDomain.ExceptionResult(errors.New("no mapping"), provisioningDomain.CodeMappingNotFound))
		require.NoError(t, h.ops.Save(ctx, stuck))
	}
	failed := h.newOp(t, provisioningDomain.OpCreate, "", map[string]any{"name": "alice"})
	failed.CreatedAt = base.Add(10 * time.Minute)
	failed = failed.WithResult(provisioningDomain.ExceptionResult(errors.New("connection reset"), provisioningDomain.CodeTargetCreateFailed))
	require.NoError(t, h.ops.Save(ctx, failed))

	n, err := h.svc.RetryFailed(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, h.gateway.CallsOf(connmem.MethodCreate), 1)
	h.assertArchived(t, failed.ID)

	n, err = h.svc.RetryFailed(ctx, 2)
	require.NoError(t, err)
	assert.Zero(t, n, "configuration errors wait for an operator")
	assert.Equal(t, 2, h.ops.Len())
}

func TestSubmitSync_Delete(t *testing.T) {
	testCases := []struct {
		desc   string
		exists bool
	}{
		{desc: "existing object", exists: true},
		{desc: "already absent object", exists: false},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			h := newHarness(t)
			if tc.exists {
				h.putObject("uid-1", connector.NewAttribute("name", "alice"))
			}

			out, err := h.svc.SubmitSync(context.Background(), h.newOp(t, provisioningDomain.OpDelete, "uid-1", nil))
			require.NoError(t, err)

			assert.Equal(t, provisioningDomain.StateExecuted, out.Result.State)
			assert.Zero(t, h.gateway.Len())
			assert.Len(t, h.gateway.CallsOf(connmem.MethodDelete), 1)
			h.assertArchived(t, out.ID)
		})
	}
}

func TestApproval(t *testing.T) {
	ctx := context.Background()
	requireApproval := withSystem(func(s *system.System) { s.ApprovalDefinition = "account-approval" })

	t.Run("suspends and resumes on approval", func(t *testing.T) {
		h := newHarness(t, requireApproval)
		h.approver.On("StartProcess", mock.Anything, "account-approval", mock.Anything).
			Return(approval.Result{ProcessID: "p-1"}, nil).Once()

		out, err := h.svc.SubmitSync(ctx, h.newOp(t, provisioningDomain.OpCreate, "", map[string]any{"name": "alice"}))
		require.NoError(t, err)

		assert.Equal(t, provisioningDomain.StateCreated, out.Result.State)
		assert.Equal(t, provisioning.NameApproval, out.SuspendedAt)
		assert.Empty(t, h.gateway.Calls())
		assert.Equal(t, provisioning.NameApproval, h.assertQueued(t, out.ID).SuspendedAt, "suspension is persisted")

		_, err = h.svc.Retry(ctx, out.ID)
		assert.ErrorIs(t, err, provisioning.ErrOperationSuspended)

		resumed, err := h.svc.Resume(ctx, out.ID, true)
		require.NoError(t, err)
		assert.Equal(t, provisioningDomain.StateExecuted, resumed.Result.State)
		assert.Len(t, h.gateway.CallsOf(connmem.MethodCreate), 1)
		h.assertArchived(t, out.ID)
		h.approver.AssertExpectations(t)
	})

	t.Run("rejection cancels", func(t *testing.T) {
		h := newHarness(t, requireApproval)
		h.approver.On("StartProcess", mock.Anything, mock.Anything, mock.Anything).Return(approval.Result{ProcessID: "p-2"}, nil)

		out, err := h.svc.SubmitSync(ctx, h.newOp(t, provisioningDomain.OpCreate, "", nil))
		require.NoError(t, err)

		rejected, err := h.svc.Resume(ctx, out.ID, false)
		require.NoError(t, err)
		assert.Equal(t, provisioningDomain.StateCanceled, rejected.Result.State)
		assert.Equal(t, provisioningDomain.CodeApprovalRejected, rejected.Result.Code)
		assert.Empty(t, h.gateway.Calls())
		h.assertArchived(t, out.ID)
	})

	t.Run("auto approval continues", func(t *testing.T) {
		h := newHarness(t, requireApproval)
		h.approver.On("StartProcess", mock.Anything, mock.Anything, mock.Anything).
			Return(approval.Result{Ended: true, Approved: true}, nil)

		out, err := h.svc.SubmitSync(ctx, h.newOp(t, provisioningDomain.OpCreate, "", nil))
		require.NoError(t, err)
		assert.Equal(t, provisioningDomain.StateExecuted, out.Result.State)
	})

	t.Run("approval engine failure", func(t *testing.T) {
		h := newHarness(t, requireApproval)
		h.approver.On("StartProcess", mock.Anything, mock.Anything, mock.Anything).
			Return(approval.Result{}, errors.New("definition missing"))

		out, err := h.svc.SubmitSync(ctx, h.newOp(t, provisioningDomain.OpCreate, "", nil))
		require.NoError(t, err)
		assert.Equal(t, provisioningDomain.CodeApprovalFailed, out.Result.Code)
	})

	t.Run("retry after approval does not ask again", func(t *testing.T) {
		h := newHarness(t, requireApproval)
		h.approver.On("StartProcess", mock.Anything, "account-approval", mock.Anything).
			Return(approval.Result{ProcessID: "p-3"}, nil).Once()

		out, err := h.svc.SubmitSync(ctx, h.newOp(t, provisioningDomain.OpCreate, "", map[string]any{"name": "alice"}))
		require.NoError(t, err)
		require.Equal(t, provisioning.NameApproval, out.SuspendedAt)

		h.gateway.FailOn(connmem.MethodCreate, errors.New("connection reset by peer"))
		failed, err := h.svc.Resume(ctx, out.ID, true)
		require.NoError(t, err)
		assert.Equal(t, provisioningDomain.StateException, failed.Result.State)
		assert.Equal(t, provisioningDomain.CodeTargetCreateFailed, failed.Result.Code)
		assert.True(t, h.assertQueued(t, out.ID).Context.Approved, "approval is persisted")

		h.gateway.FailOn(connmem.MethodCreate, nil)
		retried, err := h.svc.Retry(ctx, out.ID)
		require.NoError(t, err)
		assert.Equal(t, provisioningDomain.StateExecuted, retried.Result.State)
		assert.Empty(t, retried.SuspendedAt)
		h.assertArchived(t, out.ID)
		h.approver.AssertNumberOfCalls(t, "StartProcess", 1)
	})

	t.Run("auto approval is remembered", func(t *testing.T) {
		h := newHarness(t, requireApproval)
		h.approver.On("StartProcess", mock.Anything, mock.Anything, mock.Anything).
			Return(approval.Result{Ended: true, Approved: true}, nil).Once()
		h.gateway.FailOn(connmem.MethodCreate, errors.New("connection reset by peer"))

		out, err := h.svc.SubmitSync(ctx, h.newOp(t, provisioningDomain.OpCreate, "", map[string]any{"name": "alice"}))
		require.NoError(t, err)
		assert.True(t, out.Context.Approved)

		h.gateway.FailOn(connmem.MethodCreate, nil)
		n, err := h.svc.RetryFailed(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		h.assertArchived(t, out.ID)
		h.approver.AssertNumberOfCalls(t, "StartProcess", 1)
	})

	t.Run("system lookup failure does not skip approval", func(t *testing.T) {
		h := newHarness(t,
			requireApproval,
			withConfig(func(c *provisioning.Config) { c.DisabledProcessors = []string{provisioning.NameDisabledGate} }),
			withSystems(func(r system.Repository) system.Repository { return &flakySystems{Repository: r, failures: 1} }),
		)
		h.approver.On("StartProcess", mock.Anything, "account-approval", mock.Anything).
			Return(approval.Result{ProcessID: "p-4"}, nil).Once()

		out, err := h.svc.SubmitSync(ctx, h.newOp(t, provisioningDomain.OpCreate, "", map[string]any{"name": "alice"}))
		require.NoError(t, err)
		assert.Equal(t, provisioning.NameApproval, out.SuspendedAt)
		assert.Empty(t, h.gateway.Calls())
		h.approver.AssertExpectations(t)
	})

	t.Run("resume of a running operation", func(t *testing.T) {
		h := newHarness(t)
		op := h.newOp(t, provisioningDomain.OpCreate, "", nil)
		require.NoError(t, h.ops.Save(ctx, op))

		_, err := h.svc.Resume(ctx, op.ID, true)
		assert.Error(t, err)
	})
}

func TestSecretDelivery(t *testing.T) {
	h := newHarness(t)

	out, err := h.svc.Provision(context.Background(), provisioning.ProvisionRequest{
		SystemID:         h.sys.ID,
		EntityType:       provisioningDomain.EntityIdentity,
		EntityID:         "alice",
		Type:             provisioningDomain.OpCreate,
		Attributes:       map[string]any{"username": "alice", "password": "s3cret"},
		SecretAttributes: []string{"password"},
	})
	require.NoError(t, err)
	assert.Equal(t, provisioningDomain.StateExecuted, out.Result.State)

	require.Equal(t, 1, h.notifier.sent(notification.TopicPasswordDelivery))
	for _, c := range h.notifier.Calls {
		if c.Arguments.Get(1) != notification.TopicPasswordDelivery {
			continue
		}
		assert.Equal(t, []string{"alice"}, c.Arguments.Get(3))
		assert.Equal(t, "s3cret", c.Arguments.Get(2).(notification.Message).Params["password"])
	}
}

func TestSubmit_Async(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	var ids []uuid.UUID
	for range 5 {
		op := h.newOp(t, provisioningDomain.OpCreate, "", map[string]any{"name": "alice"})
		require.NoError(t, h.svc.Submit(ctx, op))
		ids = append(ids, op.ID)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, h.svc.Wait(waitCtx))

	for _, id := range ids {
		h.assertArchived(t, id)
	}
	assert.Len(t, h.gateway.CallsOf(connmem.MethodCreate), 5)
}

func TestSubmitBatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.putObject("uid-1", connector.NewAttribute("email", "a@x.com"))
	h.gateway.FailOn(connmem.MethodDelete, errors.New("permission denied"))

	ops := []provisioningDomain.Operation{
		h.newOp(t, provisioningDomain.OpUpdate, "uid-1", map[string]any{"email": "b@x.com"}),
		h.newOp(t, provisioningDomain.OpDelete, "uid-1", nil),
		h.newOp(t, provisioningDomain.OpCreate, "", map[string]any{"name": "bob"}),
	}
	results, err := h.svc.SubmitBatch(ctx, ops)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, out := range results {
		assert.Equal(t, ops[i].ID, out.ID, "results keep input order")
	}
	assert.Equal(t, provisioningDomain.StateExecuted, results[0].Result.State)
	assert.Equal(t, provisioningDomain.StateException, results[1].Result.State)
	assert.Equal(t, provisioningDomain.StateExecuted, results[2].Result.State)
}

func TestSubmitSync_SameObjectIsSerialized(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.putObject("uid-1", connector.NewAttribute("email", "a@x.com"))

	ops := make([]provisioningDomain.Operation, 10)
	for i := range ops {
		ops[i] = h.newOp(t, provisioningDomain.OpUpdate, "uid-1", map[string]any{"name": string(rune('a' + i))})
	}

	var wg sync.WaitGroup
	for _, op := range ops {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := h.svc.SubmitSync(ctx, op)
			assert.NoError(t, err)
			assert.Equal(t, provisioningDomain.StateExecuted, out.Result.State)
		}()
	}
	wg.Wait()

	assert.Len(t, h.gateway.CallsOf(connmem.MethodCreate), 0)
	assert.Equal(t, 1, h.gateway.Len())
}

func TestNewService_RequiredProcessors(t *testing.T) {
	_, err := provisioning.NewService(
		provisioning.Config{DisabledProcessors: []string{provisioning.NameBreaker}},
		provisioning.Dependencies{},
		logger.Noop(), noop.NewTracerProvider().Tracer("test"), noopMetrics{},
	)
	assert.Error(t, err)
}
