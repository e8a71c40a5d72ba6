package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
)

// MethodRepository serves payment methods from memory, typically seeded from config.
type MethodRepository struct {
	mu      sync.RWMutex
	methods map[string]domain.PaymentMethod
}

var _ domain.MethodRepository = (*MethodRepository)(nil)

func NewMethodRepository(methods ...domain.PaymentMethod) *MethodRepository {
	r := &MethodRepository{methods: make(map[string]domain.PaymentMethod, len(methods))}
	for _, m := range methods {
		r.methods[m.ID] = m
	}
	return r
}

func (r *MethodRepository) GetMethod(_ context.Context, id string) (*domain.PaymentMethod, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.methods[id]
	if !ok {
		return nil, domain.NewError(domain.KindMethodNotFound, "payment method not found", "method_id", id)
	}
	return &m, nil
}

func (r *MethodRepository) Upsert(m domain.PaymentMethod) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[m.ID] = m
}

func (r *MethodRepository) List() []domain.PaymentMethod {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.PaymentMethod, 0, len(r.methods))
	for _, m := range r.methods {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AuditLog keeps callback deliveries in arrival order.
type AuditLog struct {
	mu      sync.Mutex
	entries []domain.CallbackAuditEntry
}

var _ domain.CallbackAuditLog = (*AuditLog)(nil)

func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (l *AuditLog) Record(_ context.Context, entry domain.CallbackAuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func (l *AuditLog) Entries() []domain.CallbackAuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.CallbackAuditEntry(nil), l.entries...)
}
