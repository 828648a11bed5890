package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackrockpay/terminal-gateway/internal/mti"
	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/domain"
	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/repository"
)

func TestAuthorize_SendsAuthorizationRequest(t *testing.T) {
	env := newTestEnv(t, true)

	txn := env.authorize(t, protoOnline, 5000)

	assert.Equal(t, domain.StateAuthSent, txn.State)
	require.Len(t, txn.Traces, 1)
	assert.False(t, txn.Traces[0].Resolved)

	sent := env.proc.sentMessages(t)
	require.Len(t, sent, 1)
	assert.Equal(t, mti.AuthorizationRequest, sent[0].MTI)
	assert.Equal(t, txn.Traces[0].Trace, sent[0].TraceNumber())
	amount, err := sent[0].Amount()
	require.NoError(t, err)
	assert.Equal(t, int64(5000), amount)

	assert.Equal(t, 1, env.svc.correlator.Len())
	assert.Equal(t, 1, env.corrs.count())
	assert.Equal(t, []string{"transaction.created", "transaction.auth_sent"}, env.notes.kinds(txn.ID))
	assert.Equal(t, []string{"txn.events.created", "txn.events.auth_sent"}, env.pub.published())
}

func TestAuthorize_RejectsBadInput(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	_, err := env.svc.Authorize(ctx, AuthorizeRequest{Protocol: "POS Terminal -999", Amount: 100, Currency: "USD"})
	assert.ErrorIs(t, err, domain.ErrUnknownProtocol)

	_, err = env.svc.Authorize(ctx, AuthorizeRequest{Protocol: protoOnline, Amount: 100, Currency: "JPY"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedCurrency)

	_, err = env.svc.Authorize(ctx, AuthorizeRequest{Protocol: protoOnline, Amount: 0, Currency: "USD"})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestAuthorize_QueuesOfflineWhenDisconnected(t *testing.T) {
	env := newTestEnv(t, false)

	txn := env.authorize(t, protoOffline, 5000)

	assert.Equal(t, domain.StateOfflineQueued, txn.State)
	assert.True(t, txn.Offline)
	require.NotNil(t, txn.ApprovalCode)
	assert.True(t, len(*txn.ApprovalCode) > 2 && (*txn.ApprovalCode)[:2] == "OF")
	assert.Empty(t, env.proc.sentMessages(t))
	assert.Equal(t, 0, env.svc.correlator.Len())
}

func TestAuthorize_DeclinesWhenOfflineIneligible(t *testing.T) {
	env := newTestEnv(t, false)

	// Protocol without offline capability.
	txn := env.authorize(t, protoOnline, 5000)
	assert.Equal(t, domain.StateDeclined, txn.State)
	assert.Equal(t, domain.ReasonNoConnectivity, txn.DeclineReason)

	// Offline-capable but over the floor limit.
	txn = env.authorize(t, protoOffline, 100001)
	assert.Equal(t, domain.StateDeclined, txn.State)
	assert.Equal(t, domain.ReasonOfflineLimit, txn.DeclineReason)
}

func TestHandleUpstream_ApprovalDrivesCaptureAndSettlement(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	txn := env.authorize(t, protoOnline, 5000)

	authReq := env.proc.sentMessages(t)[0]
	require.NoError(t, env.svc.HandleUpstreamMessage(ctx, respond(t, authReq, mti.ResponseApproved, "123456", env.clock.Now())))

	stored, err := env.txns.GetByID(ctx, nil, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCaptureSent, stored.State)
	require.NotNil(t, stored.ApprovalCode)
	assert.Equal(t, "123456", *stored.ApprovalCode)

	sent := env.proc.sentMessages(t)
	require.Len(t, sent, 2)
	assert.Equal(t, mti.FinancialRequest, sent[1].MTI)

	require.NoError(t, env.svc.HandleUpstreamMessage(ctx, respond(t, sent[1], mti.ResponseApproved, "", env.clock.Now())))

	stored, err = env.txns.GetByID(ctx, nil, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSettled, stored.State)
	require.NotNil(t, stored.SettledAt)
	assert.Equal(t, 0, env.svc.correlator.Len())
	assert.Equal(t, 0, env.corrs.count())
	assert.Equal(t, []string{
		"transaction.created", "transaction.auth_sent", "transaction.approved",
		"transaction.capture_sent", "transaction.settled",
	}, env.notes.kinds(txn.ID))
}

func TestHandleUpstream_UpstreamDecline(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	txn := env.authorize(t, protoOnline, 5000)
	authReq := env.proc.sentMessages(t)[0]

	require.NoError(t, env.svc.HandleUpstreamMessage(ctx, respond(t, authReq, "05", "", env.clock.Now())))

	stored, err := env.txns.GetByID(ctx, nil, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateDeclined, stored.State)
	assert.Equal(t, domain.ReasonUpstreamDecline, stored.DeclineReason)
	require.NotNil(t, stored.ResponseCode)
	assert.Equal(t, "05", *stored.ResponseCode)
	require.Len(t, env.proc.sentMessages(t), 1)
}

func TestHandleUpstream_BadApprovalCodeDeclines(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	txn := env.authorize(t, protoOnline, 5000)
	authReq := env.proc.sentMessages(t)[0]

	// Protocol expects six numeric digits.
	require.NoError(t, env.svc.HandleUpstreamMessage(ctx, respond(t, authReq, mti.ResponseApproved, "AB12", env.clock.Now())))

	stored, err := env.txns.GetByID(ctx, nil, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateDeclined, stored.State)
	assert.Equal(t, domain.ReasonProtocolError, stored.DeclineReason)
}

func TestHandleUpstream_UnknownTraceDiscarded(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	txn := env.authorize(t, protoOnline, 5000)
	authReq := env.proc.sentMessages(t)[0]

	stray := mti.NewMessage(mti.AuthorizationResponse)
	for _, f := range []int{mti.FieldProcessingCode, mti.FieldAmount, mti.FieldTerminalID, mti.FieldMerchantID} {
		v, ok := authReq.Get(f)
		require.True(t, ok)
		require.NoError(t, stray.Set(f, v))
	}
	require.NoError(t, stray.Set(mti.FieldTransmission, mti.FormatTransmission(env.clock.Now())))
	require.NoError(t, stray.Set(mti.FieldTrace, "000042"))
	require.NoError(t, stray.Set(mti.FieldResponseCode, mti.ResponseApproved))
	require.NoError(t, stray.Set(mti.FieldApprovalCode, "123456"))
	raw, err := mti.Encode(stray)
	require.NoError(t, err)

	require.NoError(t, env.svc.HandleUpstreamMessage(ctx, raw))

	stored, err := env.txns.GetByID(ctx, nil, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateAuthSent, stored.State)
	assert.Equal(t, 1, env.svc.correlator.Len())
}

func TestHandleUpstream_ReplayedResponseIsNoOp(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	txn := env.authorize(t, protoOnline, 5000)
	authReq := env.proc.sentMessages(t)[0]
	resp := respond(t, authReq, mti.ResponseApproved, "123456", env.clock.Now())

	require.NoError(t, env.svc.HandleUpstreamMessage(ctx, resp))
	require.NoError(t, env.svc.HandleUpstreamMessage(ctx, resp))

	stored, err := env.txns.GetByID(ctx, nil, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCaptureSent, stored.State)
	// Only the original authorization and one capture left the terminal.
	require.Len(t, env.proc.sentMessages(t), 2)
}

func settledTransaction(env *testEnv) *domain.Transaction {
	now := env.clock.Now()
	settled := now.Add(-time.Minute)
	code := "123456"
	rc := mti.ResponseApproved
	txn := &domain.Transaction{
		ID:           uuid.New(),
		MerchantID:   "MERCH001",
		TerminalID:   "TERM0001",
		Protocol:     protoOnline,
		Amount:       5000,
		Currency:     "USD",
		State:        domain.StateSettled,
		ApprovalCode: &code,
		ResponseCode: &rc,
		BatchNumber:  "001",
		CreatedAt:    now.Add(-2 * time.Minute),
		UpdatedAt:    settled,
		SettledAt:    &settled,
	}
	env.txns.seed(txn)
	return txn
}

func TestAdvice_ReversalOnceOnly(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	txn := settledTransaction(env)

	require.NoError(t, env.svc.HandleUpstreamMessage(ctx, advice(t, mti.ProcReversal, 5000, txn.ID, env.clock.Now())))

	stored, err := env.txns.GetByID(ctx, nil, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateReversed, stored.State)

	sent := env.proc.sentMessages(t)
	require.Len(t, sent, 1)
	assert.Equal(t, mti.AdviceResponse, sent[0].MTI)
	rc, _ := sent[0].Get(mti.FieldResponseCode)
	assert.Equal(t, mti.ResponseApproved, rc)

	// A replayed reversal is rejected: state holds, response declines.
	require.NoError(t, env.svc.HandleUpstreamMessage(ctx, advice(t, mti.ProcReversal, 5000, txn.ID, env.clock.Now())))
	stored, err = env.txns.GetByID(ctx, nil, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateReversed, stored.State)

	sent = env.proc.sentMessages(t)
	require.Len(t, sent, 2)
	rc, _ = sent[1].Get(mti.FieldResponseCode)
	assert.Equal(t, adviceDeclined, rc)
}

func TestAdvice_AdjustmentKeepsSettled(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	txn := settledTransaction(env)

	require.NoError(t, env.svc.HandleUpstreamMessage(ctx, advice(t, mti.ProcAdjustment, 7000, txn.ID, env.clock.Now())))

	stored, err := env.txns.GetByID(ctx, nil, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSettled, stored.State)
	assert.Equal(t, int64(7000), stored.Amount)
	assert.Contains(t, env.notes.kinds(txn.ID), "transaction.adjusted")
}

func TestAdvice_UnknownTransactionRejected(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	require.NoError(t, env.svc.HandleUpstreamMessage(ctx, advice(t, mti.ProcReversal, 5000, uuid.New(), env.clock.Now())))

	sent := env.proc.sentMessages(t)
	require.Len(t, sent, 1)
	rc, _ := sent[0].Get(mti.FieldResponseCode)
	assert.Equal(t, adviceDeclined, rc)
}

func TestCancel(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	txn := env.authorize(t, protoOnline, 5000)

	_, err := env.svc.Cancel(ctx, "SOMEONE_ELSE", txn.ID)
	assert.ErrorIs(t, err, domain.ErrNotTransactionOwner)

	cancelled, err := env.svc.Cancel(ctx, "MERCH001", txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCancelled, cancelled.State)
	assert.Equal(t, 0, env.svc.correlator.Len())
	assert.Equal(t, 0, env.corrs.count())

	_, err = env.svc.Cancel(ctx, "MERCH001", txn.ID)
	assert.ErrorIs(t, err, domain.ErrTerminalState)
}

func TestCancel_SettledNotCancellable(t *testing.T) {
	env := newTestEnv(t, true)
	txn := settledTransaction(env)

	_, err := env.svc.Cancel(context.Background(), "MERCH001", txn.ID)
	var illegal *domain.ErrIllegalTransition
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, domain.StateSettled, illegal.From)
}

func TestClose_IdempotentAfterPayout(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	txn := settledTransaction(env)

	require.NoError(t, env.svc.Close(ctx, txn.ID))
	stored, err := env.txns.GetByID(ctx, nil, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateClosed, stored.State)

	require.NoError(t, env.svc.Close(ctx, txn.ID))
}

func TestNotifications_AcknowledgeOnce(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	txn := env.authorize(t, protoOnline, 5000)

	notes, err := env.svc.Notifications(ctx, "MERCH001", 10)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, txn.ID, notes[0].TransactionID)

	require.NoError(t, env.svc.AcknowledgeNotification(ctx, "MERCH001", notes[0].ID))

	remaining, err := env.svc.Notifications(ctx, "MERCH001", 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)

	err = env.svc.AcknowledgeNotification(ctx, "MERCH001", notes[0].ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	err = env.svc.AcknowledgeNotification(ctx, "SOMEONE_ELSE", notes[1].ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAuthorize_SendFailureFallsBackOffline(t *testing.T) {
	env := newTestEnv(t, true)
	env.proc.sendErr = errors.New("connection reset")

	txn := env.authorize(t, protoOffline, 5000)

	assert.Equal(t, domain.StateOfflineQueued, txn.State)
	assert.Equal(t, 0, env.svc.correlator.Len())
	assert.Equal(t, 0, env.corrs.count())
}
