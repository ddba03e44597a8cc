package order

import (
	"fmt"
	"sync"

	"voicecart/internal/domain"
)

// taxRate is applied to the subtotal on every recompute.
const taxRate = 0.08

// Action is a ledger mutation kind.
type Action string

const (
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
)

// Ledger holds the current order. One instance is shared by every session in
// the process (see DESIGN.md for the scope decision); the mutex makes each
// mutation plus the summary recompute a single atomic step, so readers never
// observe a summary that disagrees with the items.
type Ledger struct {
	mu      sync.Mutex
	items   []domain.OrderItem
	summary domain.OrderSummary
	labels  LabelTable
}

// NewLedger returns an empty ledger using the given label table. A nil table
// falls back to DefaultLabels.
func NewLedger(labels LabelTable) *Ledger {
	if labels == nil {
		labels = DefaultLabels()
	}
	return &Ledger{labels: labels, summary: domain.OrderSummary{Items: []domain.OrderItem{}}}
}

// ApplyUpdate mutates the order and returns the freshly recomputed summary.
// Items merge on (itemName, size): add increments an existing entry's
// quantity, remove decrements and deletes the entry when the removal covers
// the remaining quantity. Quantity never goes negative.
func (l *Ledger) ApplyUpdate(action Action, itemName, size string, quantity int, price float64) (domain.OrderSummary, error) {
	if quantity < 1 {
		return domain.OrderSummary{}, fmt.Errorf("quantity must be at least 1, got %d", quantity)
	}
	if price < 0 {
		return domain.OrderSummary{}, fmt.Errorf("price must not be negative, got %v", price)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	idx := -1
	for i, item := range l.items {
		if item.Item == itemName && item.Size == size {
			idx = i
			break
		}
	}

	switch action {
	case ActionAdd:
		if idx >= 0 {
			l.items[idx].Quantity += quantity
		} else {
			l.items = append(l.items, domain.OrderItem{
				Item:     itemName,
				Size:     size,
				Quantity: quantity,
				Price:    price,
				Display:  l.labels.Display(itemName, size),
			})
		}
	case ActionRemove:
		if idx >= 0 {
			if l.items[idx].Quantity > quantity {
				l.items[idx].Quantity -= quantity
			} else {
				l.items = append(l.items[:idx], l.items[idx+1:]...)
			}
		}
	default:
		return domain.OrderSummary{}, fmt.Errorf("unknown action %q", action)
	}

	l.recompute()
	return l.snapshot(), nil
}

// Summary returns a copy of the last computed summary.
func (l *Ledger) Summary() domain.OrderSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot()
}

// recompute derives the summary from the current items. Caller holds the lock.
func (l *Ledger) recompute() {
	var total float64
	for _, item := range l.items {
		total += item.Price * float64(item.Quantity)
	}
	tax := total * taxRate
	l.summary = domain.OrderSummary{
		Items:      l.items,
		Total:      total,
		Tax:        tax,
		FinalTotal: total + tax,
	}
}

// snapshot copies the summary so callers can't alias the internal item slice.
// Caller holds the lock.
func (l *Ledger) snapshot() domain.OrderSummary {
	items := make([]domain.OrderItem, len(l.items))
	copy(items, l.items)
	s := l.summary
	s.Items = items
	return s
}
