package broker

import (
	"errors"
	"testing"

	"seller-market/internal/types"
)

func TestResolveBuiltins(t *testing.T) {
	r := NewRegistry()
	cases := map[string]string{
		"gs":      "Ghadir Shahr (Ganjine)",
		"shahr":   "Shahr",
		"bbi":     "Bourse Bazar Iran",
		"karamad": "Karamad",
		"tejarat": "Tejarat",
		"ebb":     "EBB",
	}
	for code, name := range cases {
		p, err := r.Resolve(code)
		if err != nil {
			t.Fatalf("Resolve(%s): %v", code, err)
		}
		if p.Name != name {
			t.Errorf("%s name = %q", code, p.Name)
		}
	}
}

func TestResolveEndpoints(t *testing.T) {
	p, err := NewRegistry().Resolve("BBI")
	if err != nil {
		t.Fatal(err)
	}
	want := types.Endpoints{
		Captcha:     "https://identity-bbi.ephoenix.ir/api/Captcha/GetCaptcha",
		Login:       "https://identity-bbi.ephoenix.ir/api/v2/accounts/login",
		NewOrder:    "https://api-bbi.ephoenix.ir/api/v2/orders/NewOrder",
		EditOrder:   "https://api-bbi.ephoenix.ir/api/v2/orders/EditOrder",
		TradingBook: "https://api-bbi.ephoenix.ir/api/v2/tradingbook/GetLastTradingBook",
		CalcOrder:   "https://api-bbi.ephoenix.ir/api/v2/orders/CalculateOrderParam",
		OpenOrders:  "https://api-bbi.ephoenix.ir/api/v2/orders/GetOpenOrders",
		MarketData:  "https://mdapi1.ephoenix.ir/api/v2/instruments/full",
	}
	if p.Endpoints != want {
		t.Errorf("endpoints mismatch:\n got %+v\nwant %+v", p.Endpoints, want)
	}
	if p.Code != "bbi" {
		t.Errorf("code not normalised: %q", p.Code)
	}
}

func TestResolveUnknown(t *testing.T) {
	_, err := NewRegistry().Resolve("nope")
	var ub *types.UnknownBrokerError
	if !errors.As(err, &ub) {
		t.Fatalf("expected UnknownBrokerError, got %v", err)
	}
	if ub.Code != "nope" {
		t.Errorf("code = %q", ub.Code)
	}
	if !types.IsTerminal(err) {
		t.Error("unknown broker must be terminal")
	}
}

func TestRegisterExtendsRegistry(t *testing.T) {
	r := NewRegistry(WithHosts("http://127.0.0.1:9000/{broker}/id/", "http://127.0.0.1:9000/{broker}/api", ""))
	r.Register("Mofid", "Mofid Securities")
	p, err := r.Resolve("mofid")
	if err != nil {
		t.Fatal(err)
	}
	if p.Endpoints.Login != "http://127.0.0.1:9000/mofid/id/api/v2/accounts/login" {
		t.Errorf("login = %q", p.Endpoints.Login)
	}
	if p.Endpoints.OpenOrders != "http://127.0.0.1:9000/mofid/api/api/v2/orders/GetOpenOrders" {
		t.Errorf("open orders = %q", p.Endpoints.OpenOrders)
	}
	if len(r.Codes()) != 7 {
		t.Errorf("codes = %v", r.Codes())
	}
}
