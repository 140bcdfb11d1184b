package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"crypto-role-subscription/internal/domain/model"
)

func TestParseParams(t *testing.T) {
	got, err := parseParams([]string{"ticker_to=xmr", " bgcolor =", "description=a=b"})
	if err != nil {
		t.Fatalf("parseParams: %v", err)
	}
	if got["ticker_to"] != "xmr" || got["bgcolor"] != "" || got["description"] != "a=b" {
		t.Errorf("unexpected params %v", got)
	}
	if _, err := parseParams([]string{"novalue"}); err == nil {
		t.Error("expected an error without '='")
	}
	if p, _ := parseParams(nil); p != nil {
		t.Errorf("expected nil map, got %v", p)
	}
}

func TestPrintMethods(t *testing.T) {
	role := "role-1"
	dur := 30 * 24 * time.Hour
	amount := decimal.RequireFromString("0.5")
	var buf bytes.Buffer
	printMethods(&buf, []*model.PaymentMethod{
		{Name: "VIP", Kind: model.MethodKindPayment, RoleID: &role, Duration: &dur, Amount: &amount, Coin: "XMR", Network: "MAINNET"},
		{Name: "Tip", Kind: model.MethodKindDonation, Coin: "XMR", Network: "MAINNET"},
	})
	out := buf.String()
	for _, want := range []string{"VIP", "role-1", "30d", "0.5", "one-time", "any", "XMR/MAINNET"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
