package payment

import (
	"net/url"
	"strings"
	"testing"

	"sepukopi/backend/internal/domain"
)

func TestGenerateEncodesOrderAndAmount(t *testing.T) {
	gen := NewQRISGenerator("WARUNGKU")

	instruction := gen.Generate(domain.Transaction{
		ID:               "tx-1",
		Code:             "20260830-007",
		TotalAmountCents: 4500000,
	})

	if instruction.Merchant != "WARUNGKU" {
		t.Fatalf("expected merchant WARUNGKU, got %s", instruction.Merchant)
	}
	if instruction.OrderID != "20260830-007" {
		t.Fatalf("expected order id from code, got %s", instruction.OrderID)
	}
	if instruction.PaymentStatus != "waiting_for_payment" {
		t.Fatalf("unexpected status %s", instruction.PaymentStatus)
	}

	parsed, err := url.Parse(instruction.QRURL)
	if err != nil {
		t.Fatalf("parse QR url: %v", err)
	}
	if parsed.Host != "quickchart.io" || parsed.Path != "/qr" {
		t.Fatalf("unexpected QR endpoint %s", instruction.QRURL)
	}
	text := parsed.Query().Get("text")
	if !strings.Contains(text, "20260830-007") || !strings.Contains(text, "4500000") {
		t.Fatalf("QR payload missing order or amount: %s", text)
	}
}

func TestGenerateFallsBackToDefaultMerchant(t *testing.T) {
	gen := NewQRISGenerator("")
	instruction := gen.Generate(domain.Transaction{ID: "tx-2"})
	if instruction.Merchant != "SEPUKOPI" {
		t.Fatalf("expected default merchant, got %s", instruction.Merchant)
	}
}
