package store

import (
	"sync"

	"github.com/efreitasn/auctionsim/internal/domain"
)

// TransactionStore is a thread-safe in-memory store for transactions,
// keyed by specialist. Transactions are append-only and chronological.
type TransactionStore struct {
	mu           sync.RWMutex
	transactions map[string][]*domain.Transaction // specialist_id → transactions
}

// NewTransactionStore creates an empty TransactionStore.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{
		transactions: make(map[string][]*domain.Transaction),
	}
}

// Append adds a transaction to its specialist's chronological list.
func (s *TransactionStore) Append(tx *domain.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transactions[tx.SpecialistID] = append(s.transactions[tx.SpecialistID], tx)
}

// ListBySpecialist returns all transactions for a specialist in
// chronological order. Returns an empty slice if there are none.
func (s *TransactionStore) ListBySpecialist(specialistID string) []*domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs := s.transactions[specialistID]
	if txs == nil {
		return []*domain.Transaction{}
	}

	// Return a copy to avoid callers mutating the internal slice.
	result := make([]*domain.Transaction, len(txs))
	copy(result, txs)
	return result
}

// Count returns the number of transactions recorded for a specialist.
func (s *TransactionStore) Count(specialistID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.transactions[specialistID])
}

// Reset drops a specialist's transactions at a day boundary.
func (s *TransactionStore) Reset(specialistID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transactions, specialistID)
}
