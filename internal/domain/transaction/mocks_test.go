package transaction

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type MockRawRepo struct {
	InsertFunc       func(ctx context.Context, raw *RawTransaction) error
	ListByFileIDFunc func(ctx context.Context, fileID string, userID int64) ([]*RawTransaction, error)
}

func (m *MockRawRepo) Insert(ctx context.Context, raw *RawTransaction) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, raw)
	}
	return nil
}
func (m *MockRawRepo) ListByFileID(ctx context.Context, fileID string, userID int64) ([]*RawTransaction, error) {
	if m.ListByFileIDFunc != nil {
		return m.ListByFileIDFunc(ctx, fileID, userID)
	}
	return nil, nil
}

type MockFileRepo struct {
	GetByIDFunc     func(ctx context.Context, id string, userID int64) (*StatementFile, error)
	MarkPendingFunc func(ctx context.Context, id string, userID int64, parsingConfidence float64) error
	SetStatusFunc   func(ctx context.Context, id string, status FileStatus) error
	UpdateStatsFunc func(ctx context.Context, id string, stats FileStats) error

	mu       sync.Mutex
	statuses []FileStatus
	stats    []FileStats
}

func (m *MockFileRepo) GetByID(ctx context.Context, id string, userID int64) (*StatementFile, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id, userID)
	}
	return nil, nil
}
func (m *MockFileRepo) MarkPending(ctx context.Context, id string, userID int64, parsingConfidence float64) error {
	if m.MarkPendingFunc != nil {
		return m.MarkPendingFunc(ctx, id, userID, parsingConfidence)
	}
	return nil
}
func (m *MockFileRepo) SetStatus(ctx context.Context, id string, status FileStatus) error {
	m.mu.Lock()
	m.statuses = append(m.statuses, status)
	m.mu.Unlock()
	if m.SetStatusFunc != nil {
		return m.SetStatusFunc(ctx, id, status)
	}
	return nil
}
func (m *MockFileRepo) UpdateStats(ctx context.Context, id string, stats FileStats) error {
	m.mu.Lock()
	m.stats = append(m.stats, stats)
	m.mu.Unlock()
	if m.UpdateStatsFunc != nil {
		return m.UpdateStatsFunc(ctx, id, stats)
	}
	return nil
}

func (m *MockFileRepo) lastStats() (FileStats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.stats) == 0 {
		return FileStats{}, false
	}
	return m.stats[len(m.stats)-1], true
}

// memTransactionStore is an in-memory Repository enforcing the same two
// uniqueness rules as the transactions table.
type memTransactionStore struct {
	mu         sync.Mutex
	rows       map[string]*Transaction
	order      []string
	byRaw      map[string]string
	byFP       map[string]string
	failInsert map[string]error // keyed by raw transaction id
	inserts    int
}

func newMemTransactionStore() *memTransactionStore {
	return &memTransactionStore{
		rows:       map[string]*Transaction{},
		byRaw:      map[string]string{},
		byFP:       map[string]string{},
		failInsert: map[string]error{},
	}
}

func fpKey(userID int64, fp string) string {
	return fmt.Sprintf("%d|%s", userID, fp)
}

func clone(t *Transaction) *Transaction {
	c := *t
	return &c
}

func (s *memTransactionStore) Insert(_ context.Context, txn *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++

	if err, ok := s.failInsert[txn.RawTransactionID]; ok {
		return err
	}
	if _, ok := s.byRaw[txn.RawTransactionID]; ok {
		return ErrAlreadyProcessed
	}
	if !txn.IsDuplicate {
		if _, ok := s.byFP[fpKey(txn.UserID, txn.Fingerprint)]; ok {
			return ErrDuplicateFingerprint
		}
	}

	row := clone(txn)
	row.IsInternalTransfer = false
	row.RelatedTransactionID = nil
	s.rows[row.ID] = row
	s.order = append(s.order, row.ID)
	s.byRaw[row.RawTransactionID] = row.ID
	if !row.IsDuplicate {
		s.byFP[fpKey(row.UserID, row.Fingerprint)] = row.ID
	}
	return nil
}

func (s *memTransactionStore) GetByID(_ context.Context, id string, userID int64) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok || row.UserID != userID {
		return nil, nil
	}
	return clone(row), nil
}

func (s *memTransactionStore) FindByFingerprint(_ context.Context, userID int64, fingerprint string) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byFP[fpKey(userID, fingerprint)]
	if !ok {
		return nil, nil
	}
	return clone(s.rows[id]), nil
}

func (s *memTransactionStore) ListByUserID(_ context.Context, userID int64, _ ListFilter) ([]*Transaction, error) {
	return s.filter(func(t *Transaction) bool { return t.UserID == userID }), nil
}

func (s *memTransactionStore) ListByFileID(_ context.Context, fileID string) ([]*Transaction, error) {
	return s.filter(func(t *Transaction) bool { return t.FileID == fileID }), nil
}

func (s *memTransactionStore) ListTransferCandidates(_ context.Context, userID int64) ([]*Transaction, error) {
	out := s.filter(func(t *Transaction) bool {
		return t.UserID == userID && !t.IsDuplicate && t.RelatedTransactionID == nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *memTransactionStore) LinkTransfer(_ context.Context, debitID, creditID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	debit, okD := s.rows[debitID]
	credit, okC := s.rows[creditID]
	if !okD || !okC {
		return false, ErrTransactionNotFound
	}
	if debit.RelatedTransactionID != nil || credit.RelatedTransactionID != nil {
		return false, nil
	}
	d, c := debitID, creditID
	debit.IsInternalTransfer, debit.RelatedTransactionID = true, &c
	credit.IsInternalTransfer, credit.RelatedTransactionID = true, &d
	return true, nil
}

func (s *memTransactionStore) ListUncategorized(_ context.Context, userID int64, limit int) ([]*Transaction, error) {
	out := s.filter(func(t *Transaction) bool { return t.UserID == userID && t.CategoryID == nil && !t.IsDuplicate })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memTransactionStore) UpdateCategorization(_ context.Context, id string, params CategorizationUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return ErrTransactionNotFound
	}
	conf, src := params.Confidence, params.Source
	row.VendorName = params.VendorName
	row.CategoryID = params.CategoryID
	row.CategorizationConfidence = &conf
	row.CategorizationSource = &src
	return nil
}

func (s *memTransactionStore) Update(_ context.Context, id string, userID int64, params UpdateParams) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok || row.UserID != userID {
		return nil, ErrTransactionNotFound
	}
	if params.VendorName != nil {
		row.VendorName = *params.VendorName
	}
	if params.CategoryID != nil {
		row.CategoryID = params.CategoryID
	}
	if params.Notes != nil {
		row.Notes = params.Notes
	}
	return clone(row), nil
}

func (s *memTransactionStore) ListActiveUserIDs(_ context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[int64]bool{}
	var ids []int64
	for _, id := range s.order {
		uid := s.rows[id].UserID
		if !seen[uid] {
			seen[uid] = true
			ids = append(ids, uid)
		}
	}
	return ids, nil
}

func (s *memTransactionStore) filter(keep func(*Transaction) bool) []*Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Transaction
	for _, id := range s.order {
		if row := s.rows[id]; keep(row) {
			out = append(out, clone(row))
		}
	}
	return out
}
