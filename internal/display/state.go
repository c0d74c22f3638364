package display

import (
	"sync"

	"github.com/noah-isme/kasir-gateway/internal/pricing"
)

// CartLine is one product entry in the in-progress order as received from the
// backend. Monetary fields are decimal strings on the wire.
type CartLine struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	UnitPrice         string `json:"unitPrice"`
	Quantity          int    `json:"quantity"`
	LineTotal         string `json:"lineTotal"`
	TaxRatePercent    string `json:"taxRatePercent,omitempty"`
	AfterTaxUnitPrice string `json:"afterTaxUnitPrice,omitempty"`
}

// QRPayment is a scannable payment request shown in place of the cart.
type QRPayment struct {
	QRImageData        string `json:"qrImageData"`
	Amount             int64  `json:"amount"`
	PaymentMethodLabel string `json:"paymentMethodLabel"`
	TransactionID      string `json:"transactionId"`
}

// StoreInfo is a read-only snapshot of store identity received from the backend.
type StoreInfo struct {
	DisplayName string `json:"displayName"`
	Address     string `json:"address"`
}

// Totals holds figures derived from the cart and discount. They are computed
// on every snapshot, never stored.
type Totals struct {
	Subtotal int64 `json:"subtotal"`
	Discount int64 `json:"discount"`
	Tax      int64 `json:"tax"`
	Total    int64 `json:"total"`
}

// Snapshot is an immutable copy of the reconciled view model handed to
// renderers. Seq increases by one per accepted transition; renderers use it
// to discard snapshots older than what they already show, since overlapping
// transitions may hand their snapshots to subscribers out of order.
type Snapshot struct {
	Seq       uint64     `json:"seq"`
	Cart      []CartLine `json:"cart"`
	Discount  int64      `json:"discount"`
	StoreInfo StoreInfo  `json:"storeInfo"`
	QRPayment *QRPayment `json:"qrPayment,omitempty"`
	Totals    Totals     `json:"totals"`
}

// State is the reconciled customer-display view model. The interpreter is the
// only writer; snapshot readers and subscriber fan-out may run concurrently.
type State struct {
	mu        sync.Mutex
	seq       uint64
	cart      []CartLine
	discount  int64
	storeInfo StoreInfo
	qr        *QRPayment
	subs      []func(Snapshot)
}

// NewState returns an empty display state.
func NewState() *State {
	return &State{}
}

// Subscribe registers a callback invoked with a fresh snapshot after every
// accepted transition. Callbacks must not block.
func (s *State) Subscribe(fn func(Snapshot)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// Snapshot returns a deep copy of the current state with derived totals.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	snap := Snapshot{
		Seq:       s.seq,
		Cart:      append([]CartLine(nil), s.cart...),
		Discount:  s.discount,
		StoreInfo: s.storeInfo,
	}
	if s.qr != nil {
		qr := *s.qr
		snap.QRPayment = &qr
	}
	lines := make([]pricing.Line, 0, len(s.cart))
	for _, ln := range s.cart {
		lines = append(lines, pricing.Line{
			Qty:        ln.Quantity,
			UnitPrice:  pricing.ParseAmount(ln.UnitPrice),
			TaxRateBps: pricing.ParseRateBps(ln.TaxRatePercent),
		})
	}
	sum := pricing.Compute(lines, s.discount)
	snap.Totals = Totals{Subtotal: sum.Subtotal, Discount: sum.Discount, Tax: sum.Tax, Total: sum.Total}
	return snap
}

func (s *State) notifyLocked() {
	s.seq++
	snap := s.snapshotLocked()
	subs := append([]func(Snapshot){}, s.subs...)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
	s.mu.Lock()
}

// ReplaceCart swaps the cart wholesale. It reports whether the state changed;
// a structurally identical cart is a no-op and does not notify subscribers.
func (s *State) ReplaceCart(lines []CartLine) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cartsEqual(s.cart, lines) {
		return false
	}
	s.cart = append([]CartLine(nil), lines...)
	s.notifyLocked()
	return true
}

// ClearCart empties the cart. The discount is zeroed alongside unless a QR
// payment is active, matching the reconciliation rule for emptied carts.
func (s *State) ClearCart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cart) == 0 {
		return
	}
	s.cart = nil
	if s.qr == nil {
		s.discount = 0
	}
	s.notifyLocked()
}

// SetDiscount overwrites the order-level discount.
func (s *State) SetDiscount(v int64) {
	if v < 0 {
		v = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.discount == v {
		return
	}
	s.discount = v
	s.notifyLocked()
}

// Discount returns the current order-level discount.
func (s *State) Discount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discount
}

// CartEmpty reports whether the cart holds no lines.
func (s *State) CartEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cart) == 0
}

// SetStoreInfo replaces the store identity snapshot.
func (s *State) SetStoreInfo(info StoreInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storeInfo == info {
		return
	}
	s.storeInfo = info
	s.notifyLocked()
}

// SetQRPayment installs a QR payment payload, replacing any previous one.
func (s *State) SetQRPayment(qr QRPayment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := qr
	s.qr = &copied
	s.notifyLocked()
}

// ClearQRPayment removes the QR payload. It reports whether one was present,
// so cancellation events are an observable no-op when nothing is showing.
func (s *State) ClearQRPayment() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.qr == nil {
		return false
	}
	s.qr = nil
	s.notifyLocked()
	return true
}

// QRActive reports whether a QR payment is currently showing.
func (s *State) QRActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.qr != nil
}

func cartsEqual(a, b []CartLine) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
