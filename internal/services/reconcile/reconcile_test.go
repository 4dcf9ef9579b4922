package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/billing-gateway/internal/audit"
	"github.com/magabrotheeeer/billing-gateway/internal/models"
	"github.com/magabrotheeeer/billing-gateway/internal/paymentprovider"
	"github.com/magabrotheeeer/billing-gateway/internal/storage"
)

// fakeRepo хранит подписчиков в памяти и повторяет семантику слияния
// ApplyReconcile из хранилища.
type fakeRepo struct {
	subscribers map[string]*models.Subscriber
	writes      int
}

func newFakeRepo(subs ...*models.Subscriber) *fakeRepo {
	r := &fakeRepo{subscribers: make(map[string]*models.Subscriber)}
	for _, s := range subs {
		copied := *s
		r.subscribers[s.ID] = &copied
	}
	return r
}

func (r *fakeRepo) GetByID(_ context.Context, id string) (*models.Subscriber, error) {
	sub, ok := r.subscribers[id]
	if !ok {
		return nil, fmt.Errorf("fakeRepo: %w", storage.ErrSubscriberNotFound)
	}
	copied := *sub
	return &copied, nil
}

func (r *fakeRepo) ApplyReconcile(_ context.Context, id string, upd models.ReconcileUpdate) (*models.Subscriber, bool, error) {
	sub, ok := r.subscribers[id]
	if !ok {
		return nil, false, fmt.Errorf("fakeRepo: %w", storage.ErrSubscriberNotFound)
	}
	if upd.EventAt != nil && sub.LastEventAt != nil && !sub.LastEventAt.Before(*upd.EventAt) {
		copied := *sub
		return &copied, false, nil
	}
	if sub.ExternalCustomerID == nil && upd.ExternalCustomerID != nil {
		sub.ExternalCustomerID = upd.ExternalCustomerID
	}
	if upd.ExternalSubscriptionID != nil {
		sub.ExternalSubscriptionID = upd.ExternalSubscriptionID
	}
	if upd.Status != nil {
		sub.SubscriptionStatus = *upd.Status
	}
	if upd.Tier != nil {
		sub.SubscriptionTier = *upd.Tier
	}
	if upd.EventAt != nil {
		sub.LastEventAt = upd.EventAt
	}
	r.writes++
	copied := *sub
	return &copied, true, nil
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) ListActiveSubscriptions(ctx context.Context, customerID string) ([]paymentprovider.Subscription, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]paymentprovider.Subscription), args.Error(1)
}

func (m *mockProvider) CancelSubscription(ctx context.Context, id string) (*paymentprovider.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentprovider.Subscription), args.Error(1)
}

func (m *mockProvider) ListPayments(ctx context.Context, customerID string) ([]paymentprovider.Payment, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]paymentprovider.Payment), args.Error(1)
}

func (m *mockProvider) CreateRefund(ctx context.Context, paymentID string) (*paymentprovider.Refund, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentprovider.Refund), args.Error(1)
}

type noopCache struct{}

func (noopCache) Invalidate(context.Context, string) error { return nil }

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func newService(repo *fakeRepo, provider *mockProvider, recorder *audit.Recorder) *Service {
	return New(repo, provider, noopCache{}, recorder, newNoopLogger())
}

func baseSubscriber() *models.Subscriber {
	return &models.Subscriber{
		ID:                 "usr_1",
		Email:              "u@example.com",
		SubscriptionStatus: models.StatusNone,
		SubscriptionTier:   models.TierStarter,
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	repo := newFakeRepo(baseSubscriber())
	svc := newService(repo, &mockProvider{}, audit.NewRecorder())

	active := models.StatusActive
	pro := models.TierPro
	eventAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	upd := models.ReconcileUpdate{Status: &active, Tier: &pro, EventAt: &eventAt}

	first, applied, err := svc.Reconcile(context.Background(), TriggerWebhook, "usr_1", upd)
	require.NoError(t, err)
	assert.True(t, applied)

	second, applied, err := svc.Reconcile(context.Background(), TriggerWebhook, "usr_1", upd)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, first, second)
}

func TestReconcile_OutOfOrderEventsIgnored(t *testing.T) {
	repo := newFakeRepo(baseSubscriber())
	svc := newService(repo, &mockProvider{}, audit.NewRecorder())

	older := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)
	active := models.StatusActive
	pastDue := models.StatusPastDue

	// сначала применяется новое событие B
	sub, applied, err := svc.Reconcile(context.Background(), TriggerWebhook, "usr_1",
		models.ReconcileUpdate{Status: &active, EventAt: &newer})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, models.StatusActive, sub.SubscriptionStatus)

	// затем приходит устаревшее событие A
	sub, applied, err = svc.Reconcile(context.Background(), TriggerWebhook, "usr_1",
		models.ReconcileUpdate{Status: &pastDue, EventAt: &older})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, models.StatusActive, sub.SubscriptionStatus)
}

func TestReconcile_AdministrativeUpdateIsUnconditional(t *testing.T) {
	repo := newFakeRepo(baseSubscriber())
	svc := newService(repo, &mockProvider{}, audit.NewRecorder())

	eventAt := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)
	active := models.StatusActive
	canceled := models.StatusCanceled

	_, _, err := svc.Reconcile(context.Background(), TriggerWebhook, "usr_1",
		models.ReconcileUpdate{Status: &active, EventAt: &eventAt})
	require.NoError(t, err)

	// административное действие без токена упорядочивания
	sub, applied, err := svc.Reconcile(context.Background(), TriggerCancel, "usr_1",
		models.ReconcileUpdate{Status: &canceled})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, models.StatusCanceled, sub.SubscriptionStatus)
}

func TestReconcile_ConflictingCustomerIDNotApplied(t *testing.T) {
	existing := "cus_A"
	sub := baseSubscriber()
	sub.ExternalCustomerID = &existing
	repo := newFakeRepo(sub)
	svc := newService(repo, &mockProvider{}, audit.NewRecorder())

	conflicting := "cus_B"
	updated, _, err := svc.Reconcile(context.Background(), TriggerWebhook, "usr_1",
		models.ReconcileUpdate{ExternalCustomerID: &conflicting})
	require.NoError(t, err)
	assert.Equal(t, "cus_A", *updated.ExternalCustomerID)
}

func TestReconcile_EmitsExactlyOneAuditEvent(t *testing.T) {
	repo := newFakeRepo(baseSubscriber())
	recorder := audit.NewRecorder()
	svc := newService(repo, &mockProvider{}, recorder)

	active := models.StatusActive
	_, _, err := svc.Reconcile(context.Background(), TriggerVerify, "usr_1",
		models.ReconcileUpdate{Status: &active})
	require.NoError(t, err)

	events := recorder.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.KindSuspiciousRequest, events[0].Kind)
	assert.Equal(t, "checkout_success", events[0].Detail["action"])
}

func TestAdminCancel_NoActiveSubscriptions(t *testing.T) {
	custID := "cus_1"
	sub := baseSubscriber()
	sub.ExternalCustomerID = &custID
	repo := newFakeRepo(sub)
	provider := &mockProvider{}
	provider.On("ListActiveSubscriptions", mock.Anything, "cus_1").
		Return([]paymentprovider.Subscription{}, nil).Once()
	svc := newService(repo, provider, audit.NewRecorder())

	_, err := svc.AdminCancel(context.Background(), "usr_1")
	assert.ErrorIs(t, err, ErrNoActiveSubscriptions)
	assert.Zero(t, repo.writes, "no local write on not-found outcome")
}

func TestAdminCancel_NoCustomerID(t *testing.T) {
	repo := newFakeRepo(baseSubscriber())
	svc := newService(repo, &mockProvider{}, audit.NewRecorder())

	_, err := svc.AdminCancel(context.Background(), "usr_1")
	assert.ErrorIs(t, err, ErrNoActiveSubscriptions)
	assert.Zero(t, repo.writes)
}

func TestAdminCancel_CancelsAllSubscriptions(t *testing.T) {
	custID := "cus_1"
	sub := baseSubscriber()
	sub.ExternalCustomerID = &custID
	sub.SubscriptionStatus = models.StatusActive
	sub.SubscriptionTier = models.TierPro
	repo := newFakeRepo(sub)

	provider := &mockProvider{}
	provider.On("ListActiveSubscriptions", mock.Anything, "cus_1").
		Return([]paymentprovider.Subscription{{ID: "sub_1"}, {ID: "sub_2"}}, nil).Once()
	provider.On("CancelSubscription", mock.Anything, "sub_1").
		Return(&paymentprovider.Subscription{ID: "sub_1", Status: "canceled"}, nil).Once()
	provider.On("CancelSubscription", mock.Anything, "sub_2").
		Return(&paymentprovider.Subscription{ID: "sub_2", Status: "canceled"}, nil).Once()

	recorder := audit.NewRecorder()
	svc := newService(repo, provider, recorder)

	result, err := svc.AdminCancel(context.Background(), "usr_1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sub_1", "sub_2"}, result.CanceledIDs)
	assert.Empty(t, result.UnresolvedIDs)
	assert.Equal(t, models.StatusCanceled, result.Subscriber.SubscriptionStatus)
	assert.Equal(t, models.TierStarter, result.Subscriber.SubscriptionTier)
	provider.AssertExpectations(t)

	events := recorder.ByKind(audit.KindAdminAction)
	require.Len(t, events, 1)
	assert.Equal(t, "admin_cancel", events[0].Detail["action"])
	assert.Equal(t, "sub_1,sub_2", events[0].Detail["canceled_ids"])
}

func TestAdminCancel_PartialFailureStillDowngrades(t *testing.T) {
	custID := "cus_1"
	sub := baseSubscriber()
	sub.ExternalCustomerID = &custID
	sub.SubscriptionStatus = models.StatusActive
	repo := newFakeRepo(sub)

	provider := &mockProvider{}
	provider.On("ListActiveSubscriptions", mock.Anything, "cus_1").
		Return([]paymentprovider.Subscription{{ID: "sub_1"}, {ID: "sub_2"}}, nil).Once()
	provider.On("CancelSubscription", mock.Anything, "sub_1").
		Return(nil, errors.New("provider unavailable")).Once()
	provider.On("CancelSubscription", mock.Anything, "sub_2").
		Return(&paymentprovider.Subscription{ID: "sub_2", Status: "canceled"}, nil).Once()

	svc := newService(repo, provider, audit.NewRecorder())

	result, err := svc.AdminCancel(context.Background(), "usr_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"sub_1"}, result.UnresolvedIDs)
	assert.Equal(t, []string{"sub_2"}, result.CanceledIDs)
	// локальное понижение применяется даже при частичном сбое
	assert.Equal(t, models.StatusCanceled, result.Subscriber.SubscriptionStatus)
	assert.Equal(t, models.TierStarter, result.Subscriber.SubscriptionTier)
}

func TestAdminRefund_RefundsOnlyNewestPayment(t *testing.T) {
	custID := "cus_1"
	sub := baseSubscriber()
	sub.ExternalCustomerID = &custID
	sub.SubscriptionStatus = models.StatusActive
	sub.SubscriptionTier = models.TierPro
	repo := newFakeRepo(sub)

	newer := paymentprovider.Payment{
		ID: "pay_new", Amount: 2900, Status: paymentprovider.PaymentStatusSucceeded,
		CreatedAt: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
	}
	older := paymentprovider.Payment{
		ID: "pay_old", Amount: 2900, Status: paymentprovider.PaymentStatusSucceeded,
		CreatedAt: time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC),
	}

	provider := &mockProvider{}
	provider.On("ListPayments", mock.Anything, "cus_1").
		Return([]paymentprovider.Payment{newer, older}, nil).Once()
	provider.On("CreateRefund", mock.Anything, "pay_new").
		Return(&paymentprovider.Refund{ID: "re_1", PaymentID: "pay_new", Amount: 2900}, nil).Once()

	recorder := audit.NewRecorder()
	svc := newService(repo, provider, recorder)

	result, err := svc.AdminRefund(context.Background(), "usr_1")
	require.NoError(t, err)
	assert.Equal(t, "pay_new", result.PaymentID)
	assert.Equal(t, "re_1", result.RefundID)
	assert.Equal(t, models.StatusCanceled, result.Subscriber.SubscriptionStatus)
	assert.Equal(t, models.TierStarter, result.Subscriber.SubscriptionTier)
	// pay_old не трогается
	provider.AssertNotCalled(t, "CreateRefund", mock.Anything, "pay_old")

	events := recorder.ByKind(audit.KindAdminAction)
	require.Len(t, events, 1)
	assert.Equal(t, "re_1", events[0].Detail["refund_id"])
}

func TestAdminRefund_SkipsFailedAndZeroPayments(t *testing.T) {
	custID := "cus_1"
	sub := baseSubscriber()
	sub.ExternalCustomerID = &custID
	repo := newFakeRepo(sub)

	provider := &mockProvider{}
	provider.On("ListPayments", mock.Anything, "cus_1").
		Return([]paymentprovider.Payment{
			{ID: "pay_failed", Amount: 2900, Status: "failed"},
			{ID: "pay_zero", Amount: 0, Status: paymentprovider.PaymentStatusSucceeded},
			{ID: "pay_ok", Amount: 2900, Status: paymentprovider.PaymentStatusSucceeded},
		}, nil).Once()
	provider.On("CreateRefund", mock.Anything, "pay_ok").
		Return(&paymentprovider.Refund{ID: "re_2", PaymentID: "pay_ok", Amount: 2900}, nil).Once()

	svc := newService(repo, provider, audit.NewRecorder())

	result, err := svc.AdminRefund(context.Background(), "usr_1")
	require.NoError(t, err)
	assert.Equal(t, "pay_ok", result.PaymentID)
}

func TestAdminRefund_NoRefundablePayment(t *testing.T) {
	custID := "cus_1"
	sub := baseSubscriber()
	sub.ExternalCustomerID = &custID
	repo := newFakeRepo(sub)

	provider := &mockProvider{}
	provider.On("ListPayments", mock.Anything, "cus_1").
		Return([]paymentprovider.Payment{}, nil).Once()

	svc := newService(repo, provider, audit.NewRecorder())

	_, err := svc.AdminRefund(context.Background(), "usr_1")
	assert.ErrorIs(t, err, ErrNoRefundablePayment)
	assert.Zero(t, repo.writes)
}

func TestApplyWebhook(t *testing.T) {
	tests := []struct {
		name       string
		event      WebhookEvent
		wantStatus models.SubscriptionStatus
		wantTier   models.SubscriptionTier
		wantWrites int
	}{
		{
			name: "subscription updated",
			event: WebhookEvent{
				Type:           EventSubscriptionUpdated,
				SubscriberID:   "usr_1",
				CustomerID:     "cus_1",
				SubscriptionID: "sub_1",
				PriceID:        "price_pro_monthly",
				Status:         "active",
				CreatedAt:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			},
			wantStatus: models.StatusActive,
			wantTier:   models.TierPro,
			wantWrites: 1,
		},
		{
			name: "subscription deleted downgrades",
			event: WebhookEvent{
				Type:         EventSubscriptionDeleted,
				SubscriberID: "usr_1",
				CreatedAt:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			},
			wantStatus: models.StatusCanceled,
			wantTier:   models.TierStarter,
			wantWrites: 1,
		},
		{
			name: "unknown event type acknowledged without write",
			event: WebhookEvent{
				Type:         "invoice.finalized",
				SubscriberID: "usr_1",
			},
			wantStatus: models.StatusNone,
			wantTier:   models.TierStarter,
			wantWrites: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo(baseSubscriber())
			svc := newService(repo, &mockProvider{}, audit.NewRecorder())

			err := svc.ApplyWebhook(context.Background(), tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.wantWrites, repo.writes)

			sub, err := repo.GetByID(context.Background(), "usr_1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, sub.SubscriptionStatus)
			assert.Equal(t, tt.wantTier, sub.SubscriptionTier)
		})
	}
}

func TestApplyWebhook_UnknownSubscriberAcknowledged(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo, &mockProvider{}, audit.NewRecorder())

	err := svc.ApplyWebhook(context.Background(), WebhookEvent{
		Type:         EventSubscriptionDeleted,
		SubscriberID: "usr_missing",
		CreatedAt:    time.Now(),
	})
	assert.NoError(t, err)
}

func TestReconcile_StaleWebhookDoesNotUndoCancel(t *testing.T) {
	repo := newFakeRepo(baseSubscriber())
	svc := newService(repo, &mockProvider{}, audit.NewRecorder())

	eventAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	active := models.StatusActive
	canceled := models.StatusCanceled

	_, _, err := svc.Reconcile(context.Background(), TriggerWebhook, "usr_1",
		models.ReconcileUpdate{Status: &active, EventAt: &eventAt})
	require.NoError(t, err)

	// административная отмена без токена
	_, _, err = svc.Reconcile(context.Background(), TriggerCancel, "usr_1",
		models.ReconcileUpdate{Status: &canceled})
	require.NoError(t, err)

	// запоздавший повтор старого webhook не возвращает active
	sub, applied, err := svc.Reconcile(context.Background(), TriggerWebhook, "usr_1",
		models.ReconcileUpdate{Status: &active, EventAt: &eventAt})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, models.StatusCanceled, sub.SubscriptionStatus)
}
