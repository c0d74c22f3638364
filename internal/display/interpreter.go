package display

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/kasir-gateway/internal/obs"
)

const (
	defaultQRPaymentTTL   = 5 * time.Minute
	defaultCartClearDelay = 200 * time.Millisecond
	defaultRefreshDelay   = 500 * time.Millisecond
)

// Interpreter converts inbound frames into display state transitions with
// idempotence under consecutive duplicate delivery. Follow-up steps (the
// post-QR cart clear, the QR expiry, the refresh resync) run through the
// scheduler as explicit cancellable transitions rather than bare timers.
type Interpreter struct {
	State *State
	Sched Scheduler
	Log   zerolog.Logger

	// QRPaymentTTL bounds how long a QR payment stays on screen without an
	// explicit outcome. Zero means the 5 minute default.
	QRPaymentTTL   time.Duration
	CartClearDelay time.Duration
	RefreshDelay   time.Duration

	// Resync requests a full state recovery from the backend. Installed by
	// the connection manager.
	Resync func()

	mu              sync.Mutex
	lastKey         string
	cancelQRExpiry  func()
	cancelCartClear func()
}

// Handle decodes and applies a single inbound frame.
func (it *Interpreter) Handle(frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		it.Log.Warn().Err(err).Msg("display: undecodable frame")
		countFrame("invalid", "dropped")
		return
	}
	if env.Type == "" {
		countFrame("invalid", "dropped")
		return
	}

	it.mu.Lock()
	key := env.DedupKey()
	if key == it.lastKey {
		it.mu.Unlock()
		countFrame(env.Type, "deduped")
		return
	}
	it.mu.Unlock()

	switch env.Type {
	case TypeCartUpdate:
		it.applyCartUpdate(env)
	case TypeStoreInfo:
		it.applyStoreInfo(env)
	case TypeQRPayment:
		if !it.applyQRPayment(env) {
			return
		}
	case TypePaymentSuccess:
		it.applyPaymentSuccess()
	case TypeQRPaymentCancelled:
		it.applyQRCancelled()
	case TypeQRPaymentConfirmation:
		it.applyQRConfirmation(env)
	case TypeRestoreCartDisplay:
		it.applyRestore()
	case TypeRefreshDisplay:
		it.applyRefresh()
	default:
		it.Log.Debug().Str("type", env.Type).Msg("display: unknown frame type")
		countFrame(env.Type, "unknown")
		return
	}

	it.mu.Lock()
	it.lastKey = key
	it.mu.Unlock()
	countFrame(env.Type, "applied")
}

func (it *Interpreter) applyCartUpdate(env Envelope) {
	lines := env.Cart
	if env.IsItemDeletion && env.DeletedItemID != "" {
		// The replacement payload may still carry the deleted line when the
		// backend raced the deletion; filter it out regardless.
		filtered := make([]CartLine, 0, len(lines))
		for _, ln := range lines {
			if ln.ID == env.DeletedItemID {
				continue
			}
			filtered = append(filtered, ln)
		}
		lines = filtered
	}
	it.State.ReplaceCart(lines)
	if env.Discount != nil {
		it.State.SetDiscount(*env.Discount)
	}
	if len(lines) == 0 && !it.State.QRActive() {
		it.State.SetDiscount(0)
	}
}

func (it *Interpreter) applyStoreInfo(env Envelope) {
	if env.StoreInfo == nil {
		return
	}
	it.State.SetStoreInfo(*env.StoreInfo)
}

func (it *Interpreter) applyQRPayment(env Envelope) bool {
	if strings.TrimSpace(env.QRImageData) == "" {
		it.Log.Warn().Str("transaction_id", env.TransactionID).Msg("display: qr payment without image payload")
		countFrame(env.Type, "dropped")
		return false
	}
	it.State.SetQRPayment(QRPayment{
		QRImageData:        env.QRImageData,
		Amount:             env.Amount,
		PaymentMethodLabel: env.PaymentMethodLabel,
		TransactionID:      env.TransactionID,
	})
	it.resetQRExpiry()
	// The QR view is installed before the cart clear is even scheduled, so
	// the empty-cart state can never render first.
	it.scheduleCartClear()
	return true
}

func (it *Interpreter) applyPaymentSuccess() {
	it.cancelPending()
	it.State.ClearQRPayment()
	it.State.ClearCart()
}

func (it *Interpreter) applyQRCancelled() {
	if it.State.ClearQRPayment() {
		it.cancelPending()
	}
}

func (it *Interpreter) applyQRConfirmation(env Envelope) {
	if it.State.QRActive() || env.Original == nil {
		return
	}
	// Catch-up path for a qr_payment frame that was lost or arrived out of
	// order.
	it.applyQRPayment(*env.Original)
}

func (it *Interpreter) applyRestore() {
	it.cancelPending()
	it.State.ClearQRPayment()
}

func (it *Interpreter) applyRefresh() {
	it.sched().After(it.refreshDelay(), func() {
		if it.Resync != nil {
			it.Resync()
		}
	})
}

func (it *Interpreter) scheduleCartClear() {
	it.mu.Lock()
	if it.cancelCartClear != nil {
		it.cancelCartClear()
	}
	it.cancelCartClear = it.sched().After(it.cartClearDelay(), func() {
		it.State.ClearCart()
	})
	it.mu.Unlock()
}

func (it *Interpreter) resetQRExpiry() {
	it.mu.Lock()
	if it.cancelQRExpiry != nil {
		it.cancelQRExpiry()
	}
	it.cancelQRExpiry = it.sched().After(it.qrTTL(), func() {
		if it.State.ClearQRPayment() {
			it.Log.Info().Msg("display: qr payment expired")
			if obs.DisplayQRExpiredTotal != nil {
				obs.DisplayQRExpiredTotal.Inc()
			}
		}
	})
	it.mu.Unlock()
}

func (it *Interpreter) cancelPending() {
	it.mu.Lock()
	if it.cancelQRExpiry != nil {
		it.cancelQRExpiry()
		it.cancelQRExpiry = nil
	}
	if it.cancelCartClear != nil {
		it.cancelCartClear()
		it.cancelCartClear = nil
	}
	it.mu.Unlock()
}

func (it *Interpreter) sched() Scheduler {
	if it.Sched != nil {
		return it.Sched
	}
	return TimerScheduler{}
}

func (it *Interpreter) qrTTL() time.Duration {
	if it.QRPaymentTTL > 0 {
		return it.QRPaymentTTL
	}
	return defaultQRPaymentTTL
}

func (it *Interpreter) cartClearDelay() time.Duration {
	if it.CartClearDelay > 0 {
		return it.CartClearDelay
	}
	return defaultCartClearDelay
}

func (it *Interpreter) refreshDelay() time.Duration {
	if it.RefreshDelay > 0 {
		return it.RefreshDelay
	}
	return defaultRefreshDelay
}

func countFrame(frameType, result string) {
	if obs.DisplayFramesTotal == nil {
		return
	}
	obs.DisplayFramesTotal.WithLabelValues(frameType, result).Inc()
}
