package payment

import (
	"encoding/json"
	"fmt"
	"net/url"

	"sepukopi/backend/internal/domain"
)

const defaultMerchant = "SEPUKOPI"

// QRISGenerator produces simulated QRIS payment instructions. The QR image is
// rendered by quickchart.io from a JSON payload; no acquirer is involved.
type QRISGenerator struct {
	merchant string
}

func NewQRISGenerator(merchant string) *QRISGenerator {
	if merchant == "" {
		merchant = defaultMerchant
	}
	return &QRISGenerator{merchant: merchant}
}

func (g *QRISGenerator) Generate(tx domain.Transaction) domain.PaymentInstruction {
	payload, _ := json.Marshal(map[string]any{
		"merchant": g.merchant,
		"order_id": tx.Code,
		"amount":   tx.TotalAmountCents,
	})

	qr := url.Values{}
	qr.Set("text", string(payload))
	qr.Set("size", "300")

	return domain.PaymentInstruction{
		TransactionID:    tx.ID,
		OrderID:          tx.Code,
		TotalAmountCents: tx.TotalAmountCents,
		Merchant:         g.merchant,
		QRURL:            fmt.Sprintf("https://quickchart.io/qr?%s", qr.Encode()),
		PaymentStatus:    "waiting_for_payment",
	}
}
