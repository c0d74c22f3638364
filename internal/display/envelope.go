package display

import "fmt"

// Event types carried on the backend event channel.
const (
	TypeCartUpdate            = "cart_update"
	TypeStoreInfo             = "store_info"
	TypeQRPayment             = "qr_payment"
	TypePaymentSuccess        = "payment_success"
	TypeQRPaymentCancelled    = "qr_payment_cancelled"
	TypeQRPaymentConfirmation = "qr_payment_confirmation"
	TypeRestoreCartDisplay    = "restore_cart_display"
	TypeRefreshDisplay        = "refresh_customer_display"
)

// Envelope is the wire frame for customer-display events. The type tag
// selects which of the optional payload fields are meaningful.
type Envelope struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`

	Cart           []CartLine `json:"cart,omitempty"`
	Discount       *int64     `json:"discount,omitempty"`
	IsItemDeletion bool       `json:"isItemDeletion,omitempty"`
	DeletedItemID  string     `json:"deletedItemId,omitempty"`

	StoreInfo *StoreInfo `json:"storeInfo,omitempty"`

	QRImageData        string `json:"qrImageData,omitempty"`
	Amount             int64  `json:"amount,omitempty"`
	PaymentMethodLabel string `json:"paymentMethodLabel,omitempty"`
	TransactionID      string `json:"transactionId,omitempty"`

	// Original carries the embedded first attempt on confirmation frames.
	Original *Envelope `json:"originalMessage,omitempty"`
}

// DedupKey identifies a frame for consecutive-duplicate suppression.
func (e Envelope) DedupKey() string {
	return fmt.Sprintf("%s:%d", e.Type, e.Timestamp)
}
