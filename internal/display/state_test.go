package display

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplaceCartStructuralNoop(t *testing.T) {
	st := NewState()
	notified := 0
	st.Subscribe(func(Snapshot) { notified++ })

	lines := []CartLine{{ID: "p1", Name: "Teh Manis", UnitPrice: "4000", Quantity: 1, LineTotal: "4000"}}
	require.True(t, st.ReplaceCart(lines))
	require.Equal(t, 1, notified)

	// Same content under a different slice header must not notify.
	again := []CartLine{{ID: "p1", Name: "Teh Manis", UnitPrice: "4000", Quantity: 1, LineTotal: "4000"}}
	require.False(t, st.ReplaceCart(again))
	require.Equal(t, 1, notified)

	require.True(t, st.ReplaceCart(nil))
	require.Equal(t, 2, notified)
}

func TestSnapshotDerivesTotals(t *testing.T) {
	st := NewState()
	st.ReplaceCart([]CartLine{
		{ID: "p1", UnitPrice: "10000", Quantity: 2, TaxRatePercent: "10"},
		{ID: "p2", UnitPrice: "5000", Quantity: 1},
	})
	st.SetDiscount(3000)

	snap := st.Snapshot()
	require.Equal(t, int64(25000), snap.Totals.Subtotal)
	require.Equal(t, int64(3000), snap.Totals.Discount)
	require.Equal(t, int64(1760), snap.Totals.Tax)
	require.Equal(t, int64(23760), snap.Totals.Total)
}

func TestSnapshotIsACopy(t *testing.T) {
	st := NewState()
	st.ReplaceCart([]CartLine{{ID: "p1", UnitPrice: "4000", Quantity: 1}})
	st.SetQRPayment(QRPayment{QRImageData: "img", TransactionID: "trx-1"})

	snap := st.Snapshot()
	snap.Cart[0].ID = "mutated"
	snap.QRPayment.TransactionID = "mutated"

	fresh := st.Snapshot()
	require.Equal(t, "p1", fresh.Cart[0].ID)
	require.Equal(t, "trx-1", fresh.QRPayment.TransactionID)
}

func TestClearCartKeepsDiscountWhileQRActive(t *testing.T) {
	st := NewState()
	st.ReplaceCart([]CartLine{{ID: "p1", UnitPrice: "4000", Quantity: 1}})
	st.SetDiscount(500)
	st.SetQRPayment(QRPayment{QRImageData: "img"})

	st.ClearCart()
	require.Equal(t, int64(500), st.Discount())

	require.True(t, st.ClearQRPayment())
	st.ReplaceCart([]CartLine{{ID: "p2", UnitPrice: "4000", Quantity: 1}})
	st.ClearCart()
	require.Zero(t, st.Discount())
}

func TestClearQRPaymentReportsPresence(t *testing.T) {
	st := NewState()
	require.False(t, st.ClearQRPayment())

	st.SetQRPayment(QRPayment{QRImageData: "img"})
	require.True(t, st.QRActive())
	require.True(t, st.ClearQRPayment())
	require.False(t, st.QRActive())
	require.False(t, st.ClearQRPayment())
}

func TestSubscriberReceivesSnapshotOfTransition(t *testing.T) {
	st := NewState()
	var got []Snapshot
	st.Subscribe(func(s Snapshot) { got = append(got, s) })

	st.SetStoreInfo(StoreInfo{DisplayName: "Toko Berkah"})
	st.SetDiscount(100)

	require.Len(t, got, 2)
	require.Equal(t, "Toko Berkah", got[0].StoreInfo.DisplayName)
	require.Equal(t, int64(100), got[1].Discount)
}

func TestSnapshotSequenceIncreasesPerTransition(t *testing.T) {
	st := NewState()
	var seqs []uint64
	st.Subscribe(func(snap Snapshot) { seqs = append(seqs, snap.Seq) })

	st.SetDiscount(100)
	st.SetStoreInfo(StoreInfo{DisplayName: "Toko Berkah"})
	st.ReplaceCart([]CartLine{{ID: "p1", UnitPrice: "1000", Quantity: 1}})

	require.Equal(t, []uint64{1, 2, 3}, seqs)
	require.Equal(t, uint64(3), st.Snapshot().Seq)
}
