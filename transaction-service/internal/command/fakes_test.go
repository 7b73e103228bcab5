package command

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/eaglebank/wallet/shared/apperr"
	"github.com/eaglebank/wallet/shared/models"
	sharedredis "github.com/eaglebank/wallet/shared/redis"
	"github.com/eaglebank/wallet/transaction-service/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// fault makes the fake ledger misbehave on matching calls. A lost fault
// applies the mutation and then reports err, like a reply lost on the wire.
type fault struct {
	op    string
	match string
	err   error
	lost  bool
	times int // 0 means every call
}

// fakeLedger is an in-memory ledger service with reference idempotency and
// void fencing.
type fakeLedger struct {
	mu        sync.Mutex
	ledgers   map[string]*models.Ledger // by account
	owners    map[string]string         // owner -> account
	mutations map[string]*models.LedgerMutation
	faults    []*fault
	calls     []string

	closedLate map[string]bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		ledgers:   map[string]*models.Ledger{},
		owners:    map[string]string{},
		mutations: map[string]*models.LedgerMutation{},

		closedLate: map[string]bool{},
	}
}

func (l *fakeLedger) open(owner, account, balance string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ledgers[account] = &models.Ledger{AccountID: account, OwnerID: owner, Balance: decimal.RequireFromString(balance), Status: models.LedgerActive}
	l.owners[owner] = account
}

// closeAfterLookup makes mutations on account see a closed ledger while
// owner lookups still find it active.
func (l *fakeLedger) closeAfterLookup(account string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closedLate[account] = true
}

func (l *fakeLedger) inject(f *fault) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.faults = append(l.faults, f)
}

func (l *fakeLedger) heal() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.faults = nil
}

func (l *fakeLedger) balance(account string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ledgers[account].Balance.StringFixed(2)
}

func (l *fakeLedger) total() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	sum := decimal.Zero
	for _, ledger := range l.ledgers {
		sum = sum.Add(ledger.Balance)
	}
	return sum
}

func (l *fakeLedger) mutationCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		if c != "get" {
			n++
		}
	}
	return n
}

// check returns the fault for op on any of keys; must hold mu.
func (l *fakeLedger) check(op string, keys ...string) *fault {
	for i, f := range l.faults {
		if f.op != op {
			continue
		}
		hit := f.match == ""
		for _, k := range keys {
			if f.match == k {
				hit = true
			}
		}
		if !hit {
			continue
		}
		if f.times > 0 {
			f.times--
			if f.times == 0 {
				l.faults = append(l.faults[:i:i], l.faults[i+1:]...)
			}
		}
		return f
	}
	return nil
}

func (l *fakeLedger) GetByOwner(_ context.Context, ownerID string) (*models.Ledger, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, "get")
	if f := l.check("get", ownerID); f != nil {
		return nil, f.err
	}
	account, ok := l.owners[ownerID]
	if !ok || l.ledgers[account].Status != models.LedgerActive {
		return nil, apperr.ErrLedgerNotFound
	}
	cp := *l.ledgers[account]
	return &cp, nil
}

func (l *fakeLedger) Debit(_ context.Context, accountID string, amount decimal.Decimal, reference string) (*models.Ledger, error) {
	return l.mutate(models.MutationDebit, accountID, amount, reference)
}

func (l *fakeLedger) Credit(_ context.Context, accountID string, amount decimal.Decimal, reference string) (*models.Ledger, error) {
	return l.mutate(models.MutationCredit, accountID, amount, reference)
}

func (l *fakeLedger) mutate(typ models.MutationType, accountID string, amount decimal.Decimal, reference string) (*models.Ledger, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, string(typ)+":"+reference)

	f := l.check(string(typ), accountID, reference)
	if f != nil && !f.lost {
		return nil, f.err
	}

	ledger, ok := l.ledgers[accountID]
	if !ok {
		return nil, apperr.ErrLedgerNotFound
	}
	if existing, seen := l.mutations[reference]; seen {
		switch existing.Type {
		case models.MutationVoid:
			return nil, apperr.ErrMutationVoided
		case models.MutationRejected:
			return nil, apperr.FromCode(existing.Reason, "", 409)
		}
		cp := *ledger
		return &cp, nil
	}
	var refused *apperr.Error
	switch {
	case ledger.Status != models.LedgerActive || l.closedLate[accountID]:
		refused = apperr.ErrLedgerClosed
	case typ == models.MutationDebit && ledger.Balance.LessThan(amount):
		refused = apperr.ErrInsufficientFunds
	}
	if refused != nil {
		l.mutations[reference] = &models.LedgerMutation{Reference: reference, AccountID: accountID, Type: models.MutationRejected, Amount: amount, Reason: refused.Code}
		if f != nil {
			return nil, f.err
		}
		return nil, refused
	}
	if typ == models.MutationDebit {
		ledger.Balance = ledger.Balance.Sub(amount)
	} else {
		ledger.Balance = ledger.Balance.Add(amount)
	}
	l.mutations[reference] = &models.LedgerMutation{Reference: reference, AccountID: accountID, Type: typ, Amount: amount, BalanceAfter: ledger.Balance}

	if f != nil {
		return nil, f.err
	}
	cp := *ledger
	return &cp, nil
}

func (l *fakeLedger) Void(_ context.Context, reference, accountID string) (*models.LedgerMutation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, "void:"+reference)
	if f := l.check("void", accountID, reference); f != nil {
		return nil, f.err
	}
	if existing, ok := l.mutations[reference]; ok {
		if existing.AccountID != accountID {
			return nil, apperr.ErrReferenceReused
		}
		cp := *existing
		return &cp, nil
	}
	m := &models.LedgerMutation{Reference: reference, AccountID: accountID, Type: models.MutationVoid}
	l.mutations[reference] = m
	cp := *m
	return &cp, nil
}

type fakeIdentity struct {
	phones map[string]string
	err    error
}

func (f *fakeIdentity) Resolve(_ context.Context, phone string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if owner, ok := f.phones[phone]; ok {
		return owner, nil
	}
	return "", apperr.ErrReceiverNotFound
}

// fakeSagas stores copies so that what the orchestrator holds in memory can
// drift from what was persisted, as it does with a real database.
type fakeSagas struct {
	mu      sync.Mutex
	sagas   map[string]models.Saga
	saveErr func(*models.Saga) error
}

func newFakeSagas() *fakeSagas { return &fakeSagas{sagas: map[string]models.Saga{}} }

func (f *fakeSagas) Create(_ context.Context, s *models.Saga) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.IdempotencyKey != "" {
		for _, existing := range f.sagas {
			if existing.SenderOwner == s.SenderOwner && existing.IdempotencyKey == s.IdempotencyKey {
				return apperr.ErrIdempotencyKeyExists
			}
		}
	}
	f.sagas[s.TransferID] = *s
	return nil
}

func (f *fakeSagas) Get(_ context.Context, id string) (*models.Saga, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sagas[id]
	if !ok {
		return nil, apperr.ErrTransferNotFound
	}
	return &s, nil
}

func (f *fakeSagas) GetByIdempotencyKey(_ context.Context, owner, key string) (*models.Saga, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sagas {
		if s.SenderOwner == owner && s.IdempotencyKey == key {
			cp := s
			return &cp, nil
		}
	}
	return nil, apperr.ErrTransferNotFound
}

func (f *fakeSagas) Save(_ context.Context, s *models.Saga) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		if err := f.saveErr(s); err != nil {
			return err
		}
	}
	if _, ok := f.sagas[s.TransferID]; !ok {
		return apperr.ErrTransferNotFound
	}
	f.sagas[s.TransferID] = *s
	return nil
}

func (f *fakeSagas) ClaimDue(_ context.Context, now, leaseUntil time.Time, limit int) ([]*models.Saga, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []*models.Saga
	for id, s := range f.sagas {
		if s.State.Terminal() || s.NextRunAt.After(now) {
			continue
		}
		s.NextRunAt = leaseUntil
		f.sagas[id] = s
		cp := s
		due = append(due, &cp)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].TransferID < due[j].TransferID })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (f *fakeSagas) CountByState(_ context.Context) (map[models.SagaState]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := map[models.SagaState]int{}
	for _, s := range f.sagas {
		if s.State != models.SagaCompleted && s.State != models.SagaFailed {
			counts[s.State]++
		}
	}
	return counts, nil
}

func (f *fakeSagas) all() []models.Saga {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Saga, 0, len(f.sagas))
	for _, s := range f.sagas {
		out = append(out, s)
	}
	return out
}

func (f *fakeSagas) makeDue(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sagas[id]
	s.NextRunAt = time.Now().Add(-time.Second)
	f.sagas[id] = s
}

var errFakeDB = errors.New("database unavailable")

type fakeHistory struct {
	mu       sync.Mutex
	records  map[string]*models.TransferRecord
	failures int
}

func newFakeHistory() *fakeHistory { return &fakeHistory{records: map[string]*models.TransferRecord{}} }

func (h *fakeHistory) Append(_ context.Context, r *models.TransferRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failures > 0 {
		h.failures--
		return errFakeDB
	}
	if _, ok := h.records[r.TransferID]; !ok {
		h.records[r.TransferID] = r
	}
	return nil
}

func (h *fakeHistory) get(id string) *models.TransferRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.records[id]
}

func (h *fakeHistory) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

type publishedEvent struct {
	stream, eventType string
	data              any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, stream, eventType string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{stream, eventType, data})
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.eventType)
	}
	return out
}

type fixture struct {
	ledger    *fakeLedger
	identity  *fakeIdentity
	sagas     *fakeSagas
	history   *fakeHistory
	publisher *recordingPublisher
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	locker    *sharedredis.Locker
	redis     *miniredis.Miniredis
	svc       *TransferCommandService
}

func testOptions() Options {
	return Options{
		InlineCompensationAttempts: 3,
		MaxCompensationAttempts:    5,
		CompensationBackoff:        time.Millisecond,
		RetryBackoff:               time.Millisecond,
		StaleAfter:                 time.Minute,
	}
}

// newFixture wires alice (acc-a, 100.00) and bob (acc-b, 0.00); bob is
// reachable under +15550002.
func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger := zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
	f := &fixture{
		ledger:    newFakeLedger(),
		identity:  &fakeIdentity{phones: map[string]string{"+15550001": "usr-alice", "+15550002": "usr-bob"}},
		sagas:     newFakeSagas(),
		history:   newFakeHistory(),
		publisher: &recordingPublisher{},
		registry:  prometheus.NewRegistry(),
		locker:    sharedredis.NewLocker(rdb, sharedredis.LockOptions{Expiry: 5 * time.Second, Tries: 1}, logger),
		redis:     mr,
	}
	f.metrics = metrics.New(f.registry)
	f.ledger.open("usr-alice", "acc-a", "100.00")
	f.ledger.open("usr-bob", "acc-b", "0.00")

	f.svc = NewTransferCommandService(Dependencies{
		Ledgers:   f.ledger,
		Identity:  f.identity,
		Sagas:     f.sagas,
		History:   f.history,
		Locker:    f.locker,
		Publisher: f.publisher,
		Metrics:   f.metrics,
	}, opts, logger)
	return f
}

func (f *fixture) counter(name string) float64 {
	families, err := f.registry.Gather()
	if err != nil {
		return -1
	}
	total := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func (f *fixture) gauge(name, state string) float64 {
	families, err := f.registry.Gather()
	if err != nil {
		return -1
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "state" && lp.GetValue() == state {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	return 0
}
