package app

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/blackrockpay/terminal-gateway/internal/mti"
	"github.com/blackrockpay/terminal-gateway/internal/platform/config"
	"github.com/blackrockpay/terminal-gateway/internal/platform/database"
	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/correlator"
	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/domain"
	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/repository"
)

const (
	protoOnline  = "POS Terminal -101.4 (6-digit approval)"
	protoOffline = "POS Terminal -201.3 (6-digit approval)"
)

// fakeDB satisfies TxQuerier for unit tests; the in-memory repositories
// never touch it, it only has to hand out transactions for BeginFunc.
type fakeDB struct{}

func (fakeDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("unexpected direct Exec")
}
func (fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("unexpected direct Query")
}
func (fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("unexpected direct QueryRow")
}
func (fakeDB) Begin(context.Context) (pgx.Tx, error) { return &fakeTx{}, nil }

type fakeTx struct{ closed bool }

func (t *fakeTx) Begin(context.Context) (pgx.Tx, error) { panic("nested begin") }
func (t *fakeTx) Commit(context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	return nil
}
func (t *fakeTx) Rollback(context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	return nil
}
func (t *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("unexpected CopyFrom")
}
func (t *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("unexpected SendBatch")
}
func (t *fakeTx) LargeObjects() pgx.LargeObjects { panic("unexpected LargeObjects") }
func (t *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("unexpected Prepare")
}
func (t *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("unexpected tx Exec")
}
func (t *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("unexpected tx Query")
}
func (t *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row { panic("unexpected tx QueryRow") }
func (t *fakeTx) Conn() *pgx.Conn                                  { return nil }

// memTxRepo is an in-memory TransactionRepository with the same
// optimistic-concurrency contract as the postgres one.
type memTxRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*domain.Transaction
}

func newMemTxRepo() *memTxRepo {
	return &memTxRepo{rows: make(map[uuid.UUID]*domain.Transaction)}
}

func cloneTxn(t *domain.Transaction) *domain.Transaction {
	c := *t
	c.Traces = append([]domain.TraceRef(nil), t.Traces...)
	return &c
}

func (r *memTxRepo) Create(_ context.Context, _ database.Querier, txn *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[txn.ID] = cloneTxn(txn)
	return nil
}

func (r *memTxRepo) GetByID(_ context.Context, _ database.Querier, id uuid.UUID) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	txn, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneTxn(txn), nil
}

func (r *memTxRepo) GetByMerchant(_ context.Context, _ database.Querier, merchantID string, limit, offset int) ([]domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Transaction
	for _, txn := range r.rows {
		if txn.MerchantID == merchantID {
			out = append(out, *cloneTxn(txn))
		}
	}
	return out, nil
}

func (r *memTxRepo) Update(_ context.Context, _ database.Querier, txn *domain.Transaction, expected domain.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.rows[txn.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.State != expected {
		return repository.ErrStateConflict
	}
	r.rows[txn.ID] = cloneTxn(txn)
	return nil
}

func (r *memTxRepo) ListInState(_ context.Context, _ database.Querier, state domain.State, limit int) ([]domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Transaction
	for _, txn := range r.rows {
		if txn.State == state && len(out) < limit {
			out = append(out, *cloneTxn(txn))
		}
	}
	return out, nil
}

// seed stores a transaction directly, bypassing the service.
func (r *memTxRepo) seed(txn *domain.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[txn.ID] = cloneTxn(txn)
}

type memCorrRepo struct {
	mu   sync.Mutex
	rows map[string]correlator.PendingCorrelation
}

func newMemCorrRepo() *memCorrRepo {
	return &memCorrRepo{rows: make(map[string]correlator.PendingCorrelation)}
}

func (r *memCorrRepo) Create(_ context.Context, _ database.Querier, pc correlator.PendingCorrelation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[pc.TraceNumber] = pc
	return nil
}

func (r *memCorrRepo) Delete(_ context.Context, _ database.Querier, trace string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[trace]; !ok {
		return repository.ErrNotFound
	}
	delete(r.rows, trace)
	return nil
}

func (r *memCorrRepo) ListPending(_ context.Context, _ database.Querier) ([]correlator.PendingCorrelation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []correlator.PendingCorrelation
	for _, pc := range r.rows {
		out = append(out, pc)
	}
	return out, nil
}

func (r *memCorrRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

type memNotifRepo struct {
	mu   sync.Mutex
	rows []*domain.Notification
}

func newMemNotifRepo() *memNotifRepo { return &memNotifRepo{} }

func (r *memNotifRepo) Create(_ context.Context, _ database.Querier, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *n
	r.rows = append(r.rows, &c)
	return nil
}

func (r *memNotifRepo) ListUndelivered(_ context.Context, _ database.Querier, merchantID string, limit int) ([]domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Notification
	for _, n := range r.rows {
		if n.MerchantID == merchantID && !n.Delivered && len(out) < limit {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (r *memNotifRepo) MarkDelivered(_ context.Context, _ database.Querier, id uuid.UUID, merchantID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.rows {
		if n.ID == id && n.MerchantID == merchantID && !n.Delivered {
			n.Delivered = true
			n.DeliveredAt = &at
			return nil
		}
	}
	return repository.ErrNotFound
}

// kinds returns the notification kinds recorded for one transaction, in
// creation order.
func (r *memNotifRepo) kinds(txnID uuid.UUID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.rows {
		if n.TransactionID == txnID {
			out = append(out, n.Kind)
		}
	}
	return out
}

type stubProcessor struct {
	mu      sync.Mutex
	online  bool
	sendErr error
	sent    [][]byte
}

func (p *stubProcessor) Send(_ context.Context, raw []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return p.sendErr
	}
	p.sent = append(p.sent, append([]byte(nil), raw...))
	return nil
}

func (p *stubProcessor) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

func (p *stubProcessor) setOnline(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = v
}

func (p *stubProcessor) sentMessages(t *testing.T) []*mti.Message {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*mti.Message, len(p.sent))
	for i, raw := range p.sent {
		msg, err := mti.Decode(raw)
		require.NoError(t, err)
		out[i] = msg
	}
	return out
}

type stubPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *stubPublisher) Publish(_ context.Context, subject string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *stubPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.subjects...)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	svc   *TransactionService
	txns  *memTxRepo
	corrs *memCorrRepo
	notes *memNotifRepo
	proc  *stubProcessor
	pub   *stubPublisher
	clock *fakeClock
}

func newTestEnv(t *testing.T, online bool) *testEnv {
	t.Helper()
	env := &testEnv{
		txns:  newMemTxRepo(),
		corrs: newMemCorrRepo(),
		notes: newMemNotifRepo(),
		proc:  &stubProcessor{online: online},
		pub:   &stubPublisher{},
		clock: newFakeClock(),
	}
	cfg := &config.Config{
		AuthTimeoutSeconds:    30,
		CaptureTimeoutSeconds: 30,
		SweepIntervalMillis:   1000,
		OfflineRetryLimit:     3,
		OfflineRetrySeconds:   5,
		OfflineWindowMinutes:  15,
		OfflineAmountLimit:    100000,
		BatchNumber:           "001",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.svc = NewTransactionService(fakeDB{}, env.txns, env.corrs, env.notes, env.proc, env.pub, cfg, logger)
	env.svc.now = env.clock.Now
	return env
}

func (e *testEnv) authorize(t *testing.T, protocol string, amount int64) *domain.Transaction {
	t.Helper()
	txn, err := e.svc.Authorize(context.Background(), AuthorizeRequest{
		MerchantID: "MERCH001",
		TerminalID: "TERM0001",
		Protocol:   protocol,
		Amount:     amount,
		Currency:   "USD",
	})
	require.NoError(t, err)
	return txn
}

// respond builds the upstream answer to the given outbound request.
func respond(t *testing.T, req *mti.Message, responseCode, approvalCode string, at time.Time) []byte {
	t.Helper()
	respMTI, ok := mti.ResponseMTI(req.MTI)
	require.True(t, ok)
	resp := mti.NewMessage(respMTI)
	for _, f := range []int{mti.FieldProcessingCode, mti.FieldAmount, mti.FieldTrace, mti.FieldTerminalID, mti.FieldMerchantID} {
		v, ok := req.Get(f)
		require.True(t, ok)
		require.NoError(t, resp.Set(f, v))
	}
	require.NoError(t, resp.Set(mti.FieldTransmission, mti.FormatTransmission(at)))
	require.NoError(t, resp.Set(mti.FieldResponseCode, responseCode))
	if approvalCode != "" {
		require.NoError(t, resp.Set(mti.FieldApprovalCode, approvalCode))
	}
	raw, err := mti.Encode(resp)
	require.NoError(t, err)
	return raw
}

// advice builds an inbound 0220 referencing txnID in field 48.
func advice(t *testing.T, procCode string, amount int64, txnID uuid.UUID, at time.Time) []byte {
	t.Helper()
	m := mti.NewMessage(mti.Advice)
	require.NoError(t, m.Set(mti.FieldProcessingCode, procCode))
	require.NoError(t, m.Set(mti.FieldAmount, strconv.FormatInt(amount, 10)))
	require.NoError(t, m.Set(mti.FieldTransmission, mti.FormatTransmission(at)))
	require.NoError(t, m.Set(mti.FieldTrace, "990001"))
	require.NoError(t, m.Set(mti.FieldTerminalID, "TERM0001"))
	require.NoError(t, m.Set(mti.FieldMerchantID, "MERCH001"))
	require.NoError(t, m.Set(mti.FieldAdditionalData, txnID.String()))
	require.NoError(t, m.Set(mti.FieldCurrency, "USD"))
	raw, err := mti.Encode(m)
	require.NoError(t, err)
	return raw
}
