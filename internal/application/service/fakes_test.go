package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/guide-audit/internal/domain/entity"
	"github.com/shopspring/decimal"
)

var errStore = errors.New("store unavailable")

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

type passthroughTx struct {
	calls int
	mu    sync.Mutex
}

func (p *passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return fn(ctx)
}

// memStore backs every fake repository with maps guarded by one mutex
type memStore struct {
	mu sync.Mutex

	nextID    int64
	guides    map[int64]*entity.Guide
	procs     map[int64]*entity.Procedure
	snapshots map[string]*entity.ValidationSnapshot
	statuses  map[[2]int64]*entity.ProcedureStatus
	ledger    []entity.LedgerEntry

	contracts []*entity.Contract
	items     map[string]*entity.ContractItem
	prices    []*entity.ReferencePrice
	sizes     map[string]*entity.SizeClassification

	totalsUpdates int
	lastFilter    entity.LedgerFilter

	referenceErr   error
	snapshotErr    error
	ledgerErr      error
	setApprovedErr map[int64]error
}

func newMemStore() *memStore {
	return &memStore{
		guides:         make(map[int64]*entity.Guide),
		procs:          make(map[int64]*entity.Procedure),
		snapshots:      make(map[string]*entity.ValidationSnapshot),
		statuses:       make(map[[2]int64]*entity.ProcedureStatus),
		items:          make(map[string]*entity.ContractItem),
		sizes:          make(map[string]*entity.SizeClassification),
		setApprovedErr: make(map[int64]error),
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) addGuide(g *entity.Guide) *entity.Guide {
	m.mu.Lock()
	defer m.mu.Unlock()
	g.ID = m.id()
	cp := *g
	m.guides[g.ID] = &cp
	return g
}

func (m *memStore) addProcedure(guideID int64, code, total, qty string) *entity.Procedure {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := dec(qty)
	p := &entity.Procedure{
		ID:          m.id(),
		GuideID:     guideID,
		Code:        code,
		Description: "procedure " + code,
		Quantity:    q,
		TotalValue:  dec(total),
	}
	if q.IsPositive() {
		p.UnitPrice = p.TotalValue.DivRound(q, 2)
	}
	p.Sequence = len(m.procs) + 1
	cp := *p
	m.procs[p.ID] = &cp
	return p
}

func (m *memStore) addContract(operatorID, number string, status string) *entity.Contract {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &entity.Contract{
		ID:         m.id(),
		Number:     number,
		OperatorID: operatorID,
		Status:     status,
		EndDate:    time.Now().AddDate(1, 0, 0),
	}
	m.contracts = append(m.contracts, c)
	return c
}

func (m *memStore) addItem(contractID int64, code, price string, inPackage bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[fmt.Sprintf("%d/%s", contractID, code)] = &entity.ContractItem{
		ID:              m.id(),
		ContractID:      contractID,
		Code:            code,
		ContractedPrice: dec(price),
		InPackage:       inPackage,
	}
}

func (m *memStore) addPrice(code, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices = append(m.prices, &entity.ReferencePrice{ID: m.id(), Table: "CBHPM", Code: code, Price: dec(price)})
}

func (m *memStore) addSize(code, class string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sizes[code] = &entity.SizeClassification{Code: code, SizeClass: class}
}

func (m *memStore) procedure(id int64) entity.Procedure {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.procs[id]
}

func (m *memStore) guide(id int64) entity.Guide {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.guides[id]
}

func (m *memStore) snapshotsOf(guideID, procID int64) []entity.ValidationSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.ValidationSnapshot
	for _, s := range m.snapshots {
		if s.GuideID == guideID && s.ProcedureID == procID {
			out = append(out, *s)
		}
	}
	return out
}

func (m *memStore) ledgerOf(procID int64) []entity.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.LedgerEntry
	for _, e := range m.ledger {
		if e.ProcedureID == procID {
			out = append(out, e)
		}
	}
	return out
}

func snapshotKey(guideID, procID int64, kind entity.CheckKind) string {
	return fmt.Sprintf("%d/%d/%s", guideID, procID, kind)
}

type fakeGuideRepo struct{ s *memStore }

func (r fakeGuideRepo) Create(ctx context.Context, g *entity.Guide) error {
	r.s.addGuide(g)
	return nil
}

func (r fakeGuideRepo) GetByID(ctx context.Context, id int64) (*entity.Guide, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.guides[id]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (r fakeGuideRepo) UpdateTotals(ctx context.Context, g *entity.Guide) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.guides[g.ID]; !ok {
		return entity.NewNotFound("guide", g.ID)
	}
	cp := *g
	r.s.guides[g.ID] = &cp
	r.s.totalsUpdates++
	return nil
}

type fakeProcedureRepo struct{ s *memStore }

func (r fakeProcedureRepo) Create(ctx context.Context, p *entity.Procedure) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p.ID = r.s.id()
	cp := *p
	r.s.procs[p.ID] = &cp
	return nil
}

func (r fakeProcedureRepo) GetByID(ctx context.Context, id int64) (*entity.Procedure, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.procs[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r fakeProcedureRepo) ListByGuide(ctx context.Context, guideID int64) ([]*entity.Procedure, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Procedure
	for _, p := range r.s.procs {
		if p.GuideID == guideID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (r fakeProcedureRepo) SetApproved(ctx context.Context, id int64, unitPrice, quantity decimal.Decimal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.setApprovedErr[id]; err != nil {
		return err
	}
	p, ok := r.s.procs[id]
	if !ok {
		return entity.NewNotFound("procedure", id)
	}
	p.ApprovedUnitPrice = decimal.NewNullDecimal(unitPrice)
	p.ApprovedQuantity = decimal.NewNullDecimal(quantity)
	return nil
}

type fakeReferenceRepo struct{ s *memStore }

func (r fakeReferenceRepo) ActiveContract(ctx context.Context, operatorID string, at time.Time) (*entity.Contract, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.referenceErr != nil {
		return nil, r.s.referenceErr
	}
	for _, c := range r.s.contracts {
		if c.OperatorID == operatorID && c.ActiveAt(at) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r fakeReferenceRepo) ActiveContractFor(ctx context.Context, operatorID, code string, at time.Time) (*entity.Contract, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.referenceErr != nil {
		return nil, r.s.referenceErr
	}
	var best *entity.Contract
	for _, c := range r.s.contracts {
		if c.OperatorID != operatorID || !c.ActiveAt(at) {
			continue
		}
		if _, ok := r.s.items[fmt.Sprintf("%d/%s", c.ID, code)]; !ok {
			continue
		}
		if best == nil || c.EndDate.After(best.EndDate) {
			best = c
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (r fakeReferenceRepo) ContractItem(ctx context.Context, contractID int64, code string) (*entity.ContractItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	item, ok := r.s.items[fmt.Sprintf("%d/%s", contractID, code)]
	if !ok {
		return nil, nil
	}
	cp := *item
	return &cp, nil
}

func (r fakeReferenceRepo) ReferencePrice(ctx context.Context, code string, at time.Time) (*entity.ReferencePrice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.referenceErr != nil {
		return nil, r.s.referenceErr
	}
	for _, p := range r.s.prices {
		if p.Code == code && p.ValidAt(at) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r fakeReferenceRepo) SizeClass(ctx context.Context, code string) (*entity.SizeClassification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.referenceErr != nil {
		return nil, r.s.referenceErr
	}
	sz, ok := r.s.sizes[code]
	if !ok {
		return nil, nil
	}
	cp := *sz
	return &cp, nil
}

type fakeSnapshotRepo struct{ s *memStore }

func (r fakeSnapshotRepo) Upsert(ctx context.Context, snap *entity.ValidationSnapshot) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.snapshotErr != nil {
		return r.s.snapshotErr
	}
	key := snapshotKey(snap.GuideID, snap.ProcedureID, snap.Kind)
	if prev, ok := r.s.snapshots[key]; ok {
		snap.ID = prev.ID
	} else {
		snap.ID = r.s.id()
	}
	cp := *snap
	r.s.snapshots[key] = &cp
	return nil
}

func (r fakeSnapshotRepo) ListByProcedure(ctx context.Context, guideID, procedureID int64) ([]*entity.ValidationSnapshot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.ValidationSnapshot
	for _, kind := range entity.CheckKinds {
		if snap, ok := r.s.snapshots[snapshotKey(guideID, procedureID, kind)]; ok {
			cp := *snap
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r fakeSnapshotRepo) SetStatus(ctx context.Context, guideID, procedureID int64, status entity.CheckStatus, auditorID, notes string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, snap := range r.s.snapshots {
		if snap.GuideID == guideID && snap.ProcedureID == procedureID {
			snap.Status = status
			snap.AuditorID = auditorID
			snap.Notes = notes
		}
	}
	return nil
}

type fakeStatusRepo struct{ s *memStore }

func (r fakeStatusRepo) Upsert(ctx context.Context, st *entity.ProcedureStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *st
	cp.UpdatedAt = time.Now()
	r.s.statuses[[2]int64{st.GuideID, st.ProcedureID}] = &cp
	return nil
}

func (r fakeStatusRepo) ListByGuide(ctx context.Context, guideID int64) ([]*entity.ProcedureStatus, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.ProcedureStatus
	for k, st := range r.s.statuses {
		if k[0] == guideID {
			cp := *st
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeLedgerRepo struct{ s *memStore }

func (r fakeLedgerRepo) Append(ctx context.Context, e *entity.LedgerEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.ledgerErr != nil {
		return r.s.ledgerErr
	}
	r.s.ledger = append(r.s.ledger, *e)
	return nil
}

func (r fakeLedgerRepo) ListByGuide(ctx context.Context, ref string) ([]entity.LedgerEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []entity.LedgerEntry
	for _, e := range r.s.ledger {
		if fmt.Sprint(e.GuideID) == ref || e.GuideNumber == ref {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r fakeLedgerRepo) List(ctx context.Context, f entity.LedgerFilter) ([]entity.LedgerEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.lastFilter = f
	if r.s.ledgerErr != nil {
		return nil, r.s.ledgerErr
	}
	var out []entity.LedgerEntry
	for _, e := range r.s.ledger {
		if f.From != nil && e.DecidedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && e.DecidedAt.After(*f.To) {
			continue
		}
		if f.OperatorID != "" && e.OperatorID != f.OperatorID {
			continue
		}
		if len(f.Decisions) > 0 {
			match := false
			for _, d := range f.Decisions {
				if e.Decision == d {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// services wires every service over one memStore
type services struct {
	store      *memStore
	tx         *passthroughTx
	resolver   ReferenceResolver
	validation ValidationService
	ledger     LedgerService
	decision   DecisionService
	analytics  AnalyticsService
	guides     GuideService
	references ReferenceDataService
}

func newServices() *services {
	s := newMemStore()
	tx := &passthroughTx{}
	log := nopLogger{}

	resolver := NewReferenceResolver(fakeReferenceRepo{s}, log)
	ledger := NewLedgerService(fakeLedgerRepo{s}, 2, log)
	return &services{
		store:      s,
		tx:         tx,
		resolver:   resolver,
		validation: NewValidationService(fakeGuideRepo{s}, fakeProcedureRepo{s}, fakeSnapshotRepo{s}, resolver, decimal.Zero, log),
		ledger:     ledger,
		decision: NewDecisionService(fakeGuideRepo{s}, fakeProcedureRepo{s}, fakeSnapshotRepo{s}, fakeStatusRepo{s},
			ledger, resolver, tx, 2, log),
		analytics:  NewAnalyticsService(ledger, log),
		guides:     NewGuideService(fakeGuideRepo{s}, fakeProcedureRepo{s}, tx, log),
		references: NewReferenceDataService(fakeReferenceRepo{s}, resolver, log),
	}
}

func (r fakeReferenceRepo) CreateContract(ctx context.Context, c *entity.Contract) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c.ID = r.s.id()
	cp := *c
	r.s.contracts = append(r.s.contracts, &cp)
	return nil
}

func (r fakeReferenceRepo) PutContractItem(ctx context.Context, item *entity.ContractItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := fmt.Sprintf("%d/%s", item.ContractID, item.Code)
	if prev, ok := r.s.items[key]; ok {
		item.ID = prev.ID
	} else {
		item.ID = r.s.id()
	}
	cp := *item
	r.s.items[key] = &cp
	return nil
}

func (r fakeReferenceRepo) CreateReferencePrice(ctx context.Context, p *entity.ReferencePrice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p.ID = r.s.id()
	cp := *p
	r.s.prices = append(r.s.prices, &cp)
	return nil
}

func (r fakeReferenceRepo) PutSizeClass(ctx context.Context, sc *entity.SizeClassification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *sc
	r.s.sizes[sc.Code] = &cp
	return nil
}
