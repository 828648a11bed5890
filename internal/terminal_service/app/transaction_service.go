package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/blackrockpay/terminal-gateway/internal/mti"
	"github.com/blackrockpay/terminal-gateway/internal/platform/config"
	"github.com/blackrockpay/terminal-gateway/internal/platform/database"
	"github.com/blackrockpay/terminal-gateway/internal/platform/keyedmutex"
	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/adapters/upstream"
	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/correlator"
	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/domain"
	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/repository"
)

// ErrInvalidAmount rejects authorization requests whose amount is not a
// positive number of minor units.
var ErrInvalidAmount = errors.New("amount must be a positive number of minor units")

// adviceDeclined is the field 39 code on rejected reversal/adjustment
// advice ("invalid transaction").
const adviceDeclined = "12"

// TxQuerier is a Querier that can also open database transactions. Both
// *pgxpool.Pool and pgxmock pools satisfy it.
type TxQuerier interface {
	database.Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// AuthorizeRequest carries the validated input for a new transaction.
type AuthorizeRequest struct {
	MerchantID string
	TerminalID string
	Protocol   string
	Amount     int64
	Currency   string
}

// TransactionService owns the transaction lifecycle: it drives the MTI
// exchange with the upstream processor, applies the state machine, persists
// every transition together with its merchant notification, and publishes
// lifecycle events on the broker.
type TransactionService struct {
	db         TxQuerier
	txRepo     repository.TransactionRepository
	corrRepo   repository.CorrelationRepository
	notifRepo  repository.NotificationRepository
	correlator *correlator.Correlator
	traceGen   *correlator.TraceGenerator
	processor  upstream.Processor
	publisher  EventPublisher
	locks      *keyedmutex.KeyedMutex
	cfg        *config.Config
	logger     *slog.Logger
	now        func() time.Time
}

func NewTransactionService(
	db TxQuerier,
	txRepo repository.TransactionRepository,
	corrRepo repository.CorrelationRepository,
	notifRepo repository.NotificationRepository,
	processor upstream.Processor,
	publisher EventPublisher,
	cfg *config.Config,
	logger *slog.Logger,
) *TransactionService {
	return &TransactionService{
		db:         db,
		txRepo:     txRepo,
		corrRepo:   corrRepo,
		notifRepo:  notifRepo,
		correlator: correlator.New(),
		traceGen:   correlator.NewTraceGenerator(),
		processor:  processor,
		publisher:  publisher,
		locks:      keyedmutex.New(),
		cfg:        cfg,
		logger:     logger.With("component", "transaction_service"),
		now:        time.Now,
	}
}

// RehydrateCorrelations reloads pending exchanges from the database after a
// restart so their responses still match and their timeouts still fire.
func (s *TransactionService) RehydrateCorrelations(ctx context.Context) error {
	pending, err := s.corrRepo.ListPending(ctx, s.db)
	if err != nil {
		return fmt.Errorf("list pending correlations: %w", err)
	}
	s.correlator.Rehydrate(pending)
	s.logger.InfoContext(ctx, "correlations rehydrated", "count", len(pending))
	return nil
}

// Authorize creates a transaction and drives it through the authorization
// request. The returned transaction reflects how far the exchange got:
// AUTH_SENT when the 0100 left the terminal, OFFLINE_QUEUED when
// connectivity was down and the protocol allows deferral, DECLINED when
// neither was possible.
func (s *TransactionService) Authorize(ctx context.Context, req AuthorizeRequest) (*domain.Transaction, error) {
	proto, err := domain.LookupProtocol(req.Protocol)
	if err != nil {
		return nil, err
	}
	if !domain.SupportedCurrencies[req.Currency] {
		return nil, domain.ErrUnsupportedCurrency
	}
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	now := s.now()
	deadline := now.Add(s.cfg.AuthTimeout())
	txn := &domain.Transaction{
		ID:            uuid.New(),
		MerchantID:    req.MerchantID,
		TerminalID:    req.TerminalID,
		Protocol:      req.Protocol,
		Amount:        req.Amount,
		Currency:      req.Currency,
		State:         domain.StateCreated,
		BatchNumber:   s.cfg.BatchNumber,
		CreatedAt:     now,
		UpdatedAt:     now,
		StateDeadline: &deadline,
	}
	if err := s.txRepo.Create(ctx, s.db, txn); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}
	s.recordCreated(ctx, txn)

	s.locks.Lock(txn.ID.String())
	defer s.locks.Unlock(txn.ID.String())
	if err := s.sendAuthorization(ctx, txn, proto, domain.EventAuthSend); err != nil {
		return nil, err
	}
	return txn, nil
}

// sendAuthorization emits the 0100 for txn, via ev AuthSend on first attempt
// or OfflineRetry when draining the offline queue. The caller holds the
// transaction lock.
func (s *TransactionService) sendAuthorization(ctx context.Context, txn *domain.Transaction, proto domain.Protocol, ev domain.Event) error {
	if !s.processor.Online() {
		if ev == domain.EventOfflineRetry {
			// Connectivity dropped again between the worker's check and
			// here; leave the transaction queued.
			return nil
		}
		return s.queueOffline(ctx, txn, proto)
	}

	pc, err := s.registerTrace(txn.ID, s.cfg.AuthTimeout())
	if err != nil {
		return err
	}
	raw, err := s.buildRequest(txn, mti.AuthorizationRequest, mti.ProcPurchase, pc.TraceNumber)
	if err != nil {
		s.dropCorrelation(ctx, pc.TraceNumber)
		s.logger.ErrorContext(ctx, "authorization encode failed", "transaction_id", txn.ID, "error", err)
		return s.transition(ctx, txn, domain.EventDecline, domain.ReasonProtocolError, "", nil)
	}

	txn.AppendTrace(pc.TraceNumber, mti.AuthorizationRequest)
	txn.StateDeadline = &pc.ExpiresAt
	if err := s.transition(ctx, txn, ev, "", "", func(dbtx pgx.Tx) error {
		return s.corrRepo.Create(ctx, dbtx, pc)
	}); err != nil {
		s.dropCorrelation(ctx, pc.TraceNumber)
		return err
	}

	if err := s.processor.Send(ctx, raw); err != nil {
		s.logger.WarnContext(ctx, "authorization send failed", "transaction_id", txn.ID, "error", err)
		s.dropCorrelation(ctx, pc.TraceNumber)
		txn.ResolveTrace(pc.TraceNumber)
		if deleteErr := s.corrRepo.Delete(ctx, s.db, pc.TraceNumber); deleteErr != nil && !errors.Is(deleteErr, repository.ErrNotFound) {
			return deleteErr
		}
		return s.queueOffline(ctx, txn, proto)
	}
	upstreamMessagesTotal.WithLabelValues(mti.AuthorizationRequest, "outbound").Inc()
	return nil
}

// queueOffline parks an eligible authorization for later replay with a
// provisional offline approval code, or declines it when the protocol or
// amount rules it out. The caller holds the transaction lock.
func (s *TransactionService) queueOffline(ctx context.Context, txn *domain.Transaction, proto domain.Protocol) error {
	if !proto.OfflineCapable {
		return s.transition(ctx, txn, domain.EventDecline, domain.ReasonNoConnectivity, "", nil)
	}
	if txn.Amount > s.cfg.OfflineAmountLimit {
		return s.transition(ctx, txn, domain.EventDecline, domain.ReasonOfflineLimit, "", nil)
	}
	provisional := proto.GenerateApprovalCode(true)
	txn.ApprovalCode = &provisional
	txn.Offline = true
	deadline := s.now().Add(s.cfg.OfflineWindow())
	txn.StateDeadline = &deadline
	if err := s.transition(ctx, txn, domain.EventOfflineQueue, "", "", nil); err != nil {
		return err
	}
	offlineQueuedTotal.Inc()
	return nil
}

// HandleUpstreamMessage is the completion path: the transport invokes it
// with every raw message arriving from the processor.
func (s *TransactionService) HandleUpstreamMessage(ctx context.Context, raw []byte) error {
	msg, err := mti.Decode(raw)
	if err != nil {
		discardedResponsesTotal.WithLabelValues("undecodable").Inc()
		s.logger.ErrorContext(ctx, "undecodable upstream message", "error", err)
		return err
	}
	upstreamMessagesTotal.WithLabelValues(msg.MTI, "inbound").Inc()

	switch {
	case msg.MTI == mti.Advice:
		return s.handleAdvice(ctx, msg)
	case mti.IsResponse(msg.MTI):
		return s.handleResponse(ctx, msg)
	default:
		discardedResponsesTotal.WithLabelValues("unexpected_mti").Inc()
		s.logger.WarnContext(ctx, "unexpected inbound request discarded", "mti", msg.MTI)
		return nil
	}
}

func (s *TransactionService) handleResponse(ctx context.Context, msg *mti.Message) error {
	trace := msg.TraceNumber()
	now := s.now()

	txnID, err := s.correlator.Resolve(trace, now)
	switch {
	case errors.Is(err, correlator.ErrUnmatchedResponse):
		discardedResponsesTotal.WithLabelValues("unmatched").Inc()
		s.logger.WarnContext(ctx, "late or unknown response discarded", "mti", msg.MTI, "trace", trace)
		return nil
	case errors.Is(err, correlator.ErrExpiredCorrelation):
		// The response beat the sweeper to an already-expired exchange; the
		// transaction is timed out either way.
		discardedResponsesTotal.WithLabelValues("expired").Inc()
		return s.declineExpired(ctx, txnID, trace)
	case err != nil:
		return err
	}

	s.locks.Lock(txnID.String())
	defer s.locks.Unlock(txnID.String())

	txn, err := s.txRepo.GetByID(ctx, s.db, txnID)
	if err != nil {
		return fmt.Errorf("load transaction %s: %w", txnID, err)
	}
	if txn.State.IsTerminal() {
		discardedResponsesTotal.WithLabelValues("terminal_state").Inc()
		return s.deleteCorrelationRow(ctx, trace)
	}
	if !txn.ResolveTrace(trace) {
		discardedResponsesTotal.WithLabelValues("replayed").Inc()
		s.logger.WarnContext(ctx, "replayed response discarded", "transaction_id", txn.ID, "trace", trace)
		return s.deleteCorrelationRow(ctx, trace)
	}

	dropRow := func(dbtx pgx.Tx) error {
		err := s.corrRepo.Delete(ctx, dbtx, trace)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}

	rc, _ := msg.Get(mti.FieldResponseCode)
	txn.ResponseCode = &rc
	approved := rc == mti.ResponseApproved

	switch msg.MTI {
	case mti.AuthorizationResponse:
		return s.completeAuthorization(ctx, txn, msg, approved, dropRow)
	case mti.FinancialResponse:
		return s.completeCapture(ctx, txn, approved, dropRow)
	default:
		// 0230 correlates to nothing the gateway sends.
		discardedResponsesTotal.WithLabelValues("unexpected_mti").Inc()
		return s.deleteCorrelationRow(ctx, trace)
	}
}

func (s *TransactionService) completeAuthorization(ctx context.Context, txn *domain.Transaction, msg *mti.Message, approved bool, dropRow func(pgx.Tx) error) error {
	if !approved {
		return s.transition(ctx, txn, domain.EventDecline, domain.ReasonUpstreamDecline, "", dropRow)
	}

	proto, err := domain.LookupProtocol(txn.Protocol)
	if err != nil {
		return err
	}
	code, ok := msg.Get(mti.FieldApprovalCode)
	code = strings.TrimRight(code, " ")
	if !ok || !proto.ValidateApprovalCode(code) {
		s.logger.WarnContext(ctx, "approval code failed protocol validation", "transaction_id", txn.ID, "protocol", txn.Protocol)
		return s.transition(ctx, txn, domain.EventDecline, domain.ReasonProtocolError, "", dropRow)
	}
	txn.ApprovalCode = &code
	if err := s.transition(ctx, txn, domain.EventAuthApproved, "", "", dropRow); err != nil {
		return err
	}
	return s.sendCapture(ctx, txn)
}

// sendCapture emits the 0200 immediately after an approved authorization.
// The caller holds the transaction lock.
func (s *TransactionService) sendCapture(ctx context.Context, txn *domain.Transaction) error {
	pc, err := s.registerTrace(txn.ID, s.cfg.CaptureTimeout())
	if err != nil {
		return err
	}
	raw, err := s.buildRequest(txn, mti.FinancialRequest, mti.ProcPurchase, pc.TraceNumber)
	if err != nil {
		s.dropCorrelation(ctx, pc.TraceNumber)
		s.logger.ErrorContext(ctx, "capture encode failed", "transaction_id", txn.ID, "error", err)
		return s.transition(ctx, txn, domain.EventDecline, domain.ReasonProtocolError, "", nil)
	}

	txn.AppendTrace(pc.TraceNumber, mti.FinancialRequest)
	txn.StateDeadline = &pc.ExpiresAt
	if err := s.transition(ctx, txn, domain.EventCaptureSend, "", "", func(dbtx pgx.Tx) error {
		return s.corrRepo.Create(ctx, dbtx, pc)
	}); err != nil {
		s.dropCorrelation(ctx, pc.TraceNumber)
		return err
	}

	if err := s.processor.Send(ctx, raw); err != nil {
		s.logger.WarnContext(ctx, "capture send failed", "transaction_id", txn.ID, "error", err)
		s.dropCorrelation(ctx, pc.TraceNumber)
		txn.ResolveTrace(pc.TraceNumber)
		return s.transition(ctx, txn, domain.EventDecline, domain.ReasonNoConnectivity, "", func(dbtx pgx.Tx) error {
			err := s.corrRepo.Delete(ctx, dbtx, pc.TraceNumber)
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			return err
		})
	}
	upstreamMessagesTotal.WithLabelValues(mti.FinancialRequest, "outbound").Inc()
	return nil
}

func (s *TransactionService) completeCapture(ctx context.Context, txn *domain.Transaction, approved bool, dropRow func(pgx.Tx) error) error {
	if !approved {
		return s.transition(ctx, txn, domain.EventDecline, domain.ReasonUpstreamDecline, "", dropRow)
	}
	now := s.now()
	txn.SettledAt = &now
	txn.StateDeadline = nil
	return s.transition(ctx, txn, domain.EventCaptureApproved, "", "", dropRow)
}

// handleAdvice applies an inbound 0220 reversal or adjustment to a settled
// transaction and answers it with a 0230. The advice names the transaction
// in field 48.
func (s *TransactionService) handleAdvice(ctx context.Context, msg *mti.Message) error {
	idRaw, _ := msg.Get(mti.FieldAdditionalData)
	txnID, err := uuid.Parse(strings.TrimSpace(idRaw))
	if err != nil {
		s.logger.WarnContext(ctx, "advice without a usable transaction reference", "error", err)
		return s.respondAdvice(ctx, msg, adviceDeclined)
	}

	s.locks.Lock(txnID.String())
	defer s.locks.Unlock(txnID.String())

	txn, err := s.txRepo.GetByID(ctx, s.db, txnID)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.WarnContext(ctx, "advice for unknown transaction", "transaction_id", txnID)
		return s.respondAdvice(ctx, msg, adviceDeclined)
	}
	if err != nil {
		return fmt.Errorf("load transaction %s: %w", txnID, err)
	}
	if txn.State.IsTerminal() {
		discardedResponsesTotal.WithLabelValues("terminal_state").Inc()
		s.logger.WarnContext(ctx, "advice rejected, transaction already terminal", "transaction_id", txn.ID, "state", txn.State)
		return s.respondAdvice(ctx, msg, adviceDeclined)
	}

	proc, _ := msg.Get(mti.FieldProcessingCode)
	switch proc {
	case mti.ProcReversal:
		err = s.transition(ctx, txn, domain.EventReversal, "", "", nil)
	case mti.ProcAdjustment:
		var amount int64
		amount, err = msg.Amount()
		if err == nil {
			txn.Amount = amount
			err = s.transition(ctx, txn, domain.EventAdjustment, "", "transaction.adjusted", nil)
		}
	default:
		s.logger.WarnContext(ctx, "advice with unsupported processing code", "transaction_id", txn.ID, "processing_code", proc)
		return s.respondAdvice(ctx, msg, adviceDeclined)
	}
	if err != nil {
		if respErr := s.respondAdvice(ctx, msg, adviceDeclined); respErr != nil {
			return respErr
		}
		return err
	}
	return s.respondAdvice(ctx, msg, mti.ResponseApproved)
}

// respondAdvice answers an inbound 0220 with a 0230 echoing its key fields.
func (s *TransactionService) respondAdvice(ctx context.Context, advice *mti.Message, responseCode string) error {
	resp := mti.NewMessage(mti.AdviceResponse)
	for _, f := range []int{mti.FieldProcessingCode, mti.FieldAmount, mti.FieldTrace, mti.FieldTerminalID, mti.FieldMerchantID} {
		if v, ok := advice.Get(f); ok {
			if err := resp.Set(f, v); err != nil {
				return err
			}
		}
	}
	if err := resp.Set(mti.FieldTransmission, mti.FormatTransmission(s.now().UTC())); err != nil {
		return err
	}
	if err := resp.Set(mti.FieldResponseCode, responseCode); err != nil {
		return err
	}
	raw, err := mti.Encode(resp)
	if err != nil {
		return err
	}
	if err := s.processor.Send(ctx, raw); err != nil {
		s.logger.WarnContext(ctx, "advice response send failed", "error", err)
		return nil
	}
	upstreamMessagesTotal.WithLabelValues(mti.AdviceResponse, "outbound").Inc()
	return nil
}

// Cancel aborts a transaction on the merchant's behalf. Only transactions
// that have not yet been captured can be cancelled.
func (s *TransactionService) Cancel(ctx context.Context, merchantID string, id uuid.UUID) (*domain.Transaction, error) {
	s.locks.Lock(id.String())
	defer s.locks.Unlock(id.String())

	txn, err := s.txRepo.GetByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if txn.MerchantID != merchantID {
		return nil, domain.ErrNotTransactionOwner
	}
	if txn.State.IsTerminal() {
		return nil, domain.ErrTerminalState
	}

	traces := s.correlator.CancelByTransaction(id)
	err = s.transition(ctx, txn, domain.EventCancel, domain.ReasonMerchantCancel, "", func(dbtx pgx.Tx) error {
		for _, trace := range traces {
			if err := s.corrRepo.Delete(ctx, dbtx, trace); err != nil && !errors.Is(err, repository.ErrNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, trace := range traces {
		txn.ResolveTrace(trace)
	}
	return txn, nil
}

// Close moves a settled transaction to CLOSED once its payout is confirmed.
// Closing an already-closed transaction is a no-op.
func (s *TransactionService) Close(ctx context.Context, id uuid.UUID) error {
	s.locks.Lock(id.String())
	defer s.locks.Unlock(id.String())

	txn, err := s.txRepo.GetByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if txn.State == domain.StateClosed {
		return nil
	}
	return s.transition(ctx, txn, domain.EventClose, "", "", nil)
}

// GetTransaction loads one transaction for its owning merchant.
func (s *TransactionService) GetTransaction(ctx context.Context, merchantID string, id uuid.UUID) (*domain.Transaction, error) {
	txn, err := s.txRepo.GetByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if txn.MerchantID != merchantID {
		return nil, domain.ErrNotTransactionOwner
	}
	return txn, nil
}

// ListTransactions pages through a merchant's transactions, newest first.
func (s *TransactionService) ListTransactions(ctx context.Context, merchantID string, limit, offset int) ([]domain.Transaction, error) {
	return s.txRepo.GetByMerchant(ctx, s.db, merchantID, limit, offset)
}

// Notifications returns the merchant's undelivered notifications, oldest
// first. Records stay queued until acknowledged.
func (s *TransactionService) Notifications(ctx context.Context, merchantID string, limit int) ([]domain.Notification, error) {
	return s.notifRepo.ListUndelivered(ctx, s.db, merchantID, limit)
}

// AcknowledgeNotification marks one notification delivered. Acknowledging an
// already-delivered or foreign notification returns ErrNotFound.
func (s *TransactionService) AcknowledgeNotification(ctx context.Context, merchantID string, id uuid.UUID) error {
	return s.notifRepo.MarkDelivered(ctx, s.db, id, merchantID, s.now())
}

// declineExpired force-declines the transaction behind an expired exchange.
func (s *TransactionService) declineExpired(ctx context.Context, txnID uuid.UUID, trace string) error {
	s.locks.Lock(txnID.String())
	defer s.locks.Unlock(txnID.String())

	txn, err := s.txRepo.GetByID(ctx, s.db, txnID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.deleteCorrelationRow(ctx, trace)
		}
		return err
	}
	txn.ResolveTrace(trace)
	if txn.State.IsTerminal() {
		return s.deleteCorrelationRow(ctx, trace)
	}
	return s.transition(ctx, txn, domain.EventTimeout, domain.ReasonTimeout, "", func(dbtx pgx.Tx) error {
		err := s.corrRepo.Delete(ctx, dbtx, trace)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	})
}

// transition applies ev to txn through the state machine and persists the
// new state, its merchant notification and any extra writes in one database
// transaction, guarded by the state the caller read. The broker publish
// happens after commit and is best-effort; the notification row is the
// durable record.
func (s *TransactionService) transition(ctx context.Context, txn *domain.Transaction, ev domain.Event, reason, kind string, extra func(pgx.Tx) error) error {
	from := txn.State
	next, err := domain.NextState(from, ev)
	if err != nil {
		return err
	}
	now := s.now()
	txn.State = next
	txn.UpdatedAt = now
	if reason != "" {
		txn.DeclineReason = reason
	}
	if next.IsTerminal() {
		txn.StateDeadline = nil
	}
	if kind == "" {
		kind = domain.NotificationKind(next)
	}

	payload, err := json.Marshal(newTransactionEvent(txn, kind, now))
	if err != nil {
		txn.State = from
		return fmt.Errorf("marshal transaction event: %w", err)
	}
	n := &domain.Notification{
		ID:            uuid.New(),
		MerchantID:    txn.MerchantID,
		TransactionID: txn.ID,
		Kind:          kind,
		Payload:       payload,
		CreatedAt:     now,
	}

	err = pgx.BeginFunc(ctx, s.db, func(dbtx pgx.Tx) error {
		if err := s.txRepo.Update(ctx, dbtx, txn, from); err != nil {
			return err
		}
		if err := s.notifRepo.Create(ctx, dbtx, n); err != nil {
			return err
		}
		if extra != nil {
			return extra(dbtx)
		}
		return nil
	})
	if err != nil {
		txn.State = from
		return err
	}

	transitionsTotal.WithLabelValues(string(from), string(next)).Inc()
	if next == domain.StateDeclined {
		declinesTotal.WithLabelValues(txn.DeclineReason).Inc()
	}
	if pubErr := s.publisher.Publish(ctx, eventSubject(kind), payload); pubErr != nil {
		s.logger.WarnContext(ctx, "event publish failed", "subject", eventSubject(kind), "error", pubErr)
	}
	s.logger.InfoContext(ctx, "transaction transition",
		"transaction_id", txn.ID, "from", from, "to", next, "reason", txn.DeclineReason)
	return nil
}

// recordCreated queues the creation notification. Creation is not a state
// transition, so failures here only log; the transaction itself is durable.
func (s *TransactionService) recordCreated(ctx context.Context, txn *domain.Transaction) {
	kind := domain.NotificationKind(domain.StateCreated)
	payload, err := json.Marshal(newTransactionEvent(txn, kind, txn.CreatedAt))
	if err != nil {
		s.logger.ErrorContext(ctx, "marshal creation event failed", "transaction_id", txn.ID, "error", err)
		return
	}
	n := &domain.Notification{
		ID:            uuid.New(),
		MerchantID:    txn.MerchantID,
		TransactionID: txn.ID,
		Kind:          kind,
		Payload:       payload,
		CreatedAt:     txn.CreatedAt,
	}
	if err := s.notifRepo.Create(ctx, s.db, n); err != nil {
		s.logger.ErrorContext(ctx, "queue creation notification failed", "transaction_id", txn.ID, "error", err)
		return
	}
	if err := s.publisher.Publish(ctx, eventSubject(kind), payload); err != nil {
		s.logger.WarnContext(ctx, "event publish failed", "subject", eventSubject(kind), "error", err)
	}
}

// registerTrace draws trace numbers until one registers cleanly. Collisions
// are only possible while a previous exchange with the same six digits is
// still pending.
func (s *TransactionService) registerTrace(txnID uuid.UUID, timeout time.Duration) (correlator.PendingCorrelation, error) {
	for attempt := 0; attempt < 8; attempt++ {
		pc, err := s.correlator.Register(s.traceGen.Next(), txnID, s.now(), timeout)
		if err == nil {
			return pc, nil
		}
	}
	return correlator.PendingCorrelation{}, correlator.ErrDuplicateTrace
}

// dropCorrelation removes an in-memory correlation that never produced a
// live exchange.
func (s *TransactionService) dropCorrelation(ctx context.Context, trace string) {
	if _, err := s.correlator.Resolve(trace, s.now()); err != nil && !errors.Is(err, correlator.ErrUnmatchedResponse) && !errors.Is(err, correlator.ErrExpiredCorrelation) {
		s.logger.WarnContext(ctx, "drop correlation failed", "trace", trace, "error", err)
	}
}

func (s *TransactionService) deleteCorrelationRow(ctx context.Context, trace string) error {
	err := s.corrRepo.Delete(ctx, s.db, trace)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}

// buildRequest assembles an outbound request or advice for txn and returns
// its encoded bytes. Field 48 carries the gateway transaction id so the
// processor can reference it on later advice.
func (s *TransactionService) buildRequest(txn *domain.Transaction, mtiCode, procCode, trace string) ([]byte, error) {
	m := mti.NewMessage(mtiCode)
	fields := []struct {
		field int
		value string
	}{
		{mti.FieldProcessingCode, procCode},
		{mti.FieldAmount, strconv.FormatInt(txn.Amount, 10)},
		{mti.FieldTransmission, mti.FormatTransmission(s.now().UTC())},
		{mti.FieldTrace, trace},
		{mti.FieldTerminalID, txn.TerminalID},
		{mti.FieldMerchantID, txn.MerchantID},
		{mti.FieldAdditionalData, txn.ID.String()},
		{mti.FieldCurrency, txn.Currency},
	}
	for _, f := range fields {
		if err := m.Set(f.field, f.value); err != nil {
			return nil, err
		}
	}
	return mti.Encode(m)
}
