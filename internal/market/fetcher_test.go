package market

import (
	"context"
	"errors"
	"testing"

	"seller-market/internal/broker/brokertest"
	"seller-market/internal/cache"
	"seller-market/internal/types"
)

var acct = types.AccountContext{
	Credentials: types.Credentials{Username: "4580090306", Password: "pw", BrokerCode: "gs"},
	ISIN:        "IRO1MHRN0001",
	Side:        types.SideBuy,
}

func TestBuyingPowerIsCached(t *testing.T) {
	fb := brokertest.New("gs")
	f := NewFetcher(cache.NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		bal, err := f.BuyingPower(ctx, fb, acct, "tok", true)
		if err != nil {
			t.Fatal(err)
		}
		if bal.BuyingPower != 1_000_014_598 {
			t.Fatalf("buying power = %d", bal.BuyingPower)
		}
	}
	if fb.Calls("TradingBook") != 1 {
		t.Errorf("expected one network fetch, got %d", fb.Calls("TradingBook"))
	}

	if _, err := f.BuyingPower(ctx, fb, acct, "tok", false); err != nil {
		t.Fatal(err)
	}
	if fb.Calls("TradingBook") != 2 {
		t.Errorf("useCache=false must bypass the cache")
	}
}

func TestLimitsAreCachedPerInstrument(t *testing.T) {
	fb := brokertest.New("gs")
	f := NewFetcher(cache.NewMemoryStore())
	ctx := context.Background()

	lim, err := f.Limits(ctx, fb, acct, "tok", true)
	if err != nil {
		t.Fatal(err)
	}
	if lim.MaxPrice != 3601 || lim.MinPrice != 3279 || lim.MaxVolume != 400_000 {
		t.Errorf("unexpected limits %+v", lim)
	}
	if lim.FetchedAt.IsZero() {
		t.Error("fetch time not stamped")
	}

	other := acct
	other.ISIN = "IRO1FOLD0001"
	if _, err := f.Limits(ctx, fb, other, "tok", true); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Limits(ctx, fb, acct, "tok", true); err != nil {
		t.Fatal(err)
	}
	if fb.Calls("InstrumentInfo") != 2 {
		t.Errorf("expected one fetch per isin, got %d", fb.Calls("InstrumentInfo"))
	}
}

func TestMissingFieldSurfacesAsDataUnavailable(t *testing.T) {
	fb := brokertest.New("gs")
	fb.LimitsFn = func(ctx context.Context, token, isin string) (types.InstrumentLimits, error) {
		return types.InstrumentLimits{}, &types.MissingFieldError{Field: "t.maxap"}
	}
	store := cache.NewMemoryStore()
	f := NewFetcher(store)

	_, err := f.Limits(context.Background(), fb, acct, "tok", true)
	var de *types.DataUnavailableError
	if !errors.As(err, &de) {
		t.Fatalf("expected DataUnavailableError, got %v", err)
	}
	if de.Field != "t.maxap" || de.Step != types.StepLimits || de.Account != "4580090306" {
		t.Errorf("unexpected error %+v", de)
	}
	if _, ok := store.Get(context.Background(), types.CategoryMarketData, LimitsKey(acct)); ok {
		t.Error("failed fetch must not populate the cache")
	}
}

func TestBrokerFailureIsNotDefaulted(t *testing.T) {
	fb := brokertest.New("gs")
	fb.BalanceFn = func(ctx context.Context, token string) (types.AccountBalance, error) {
		return types.AccountBalance{}, errors.New("i/o timeout")
	}
	f := NewFetcher(cache.NewMemoryStore())

	bal, err := f.BuyingPower(context.Background(), fb, acct, "tok", true)
	var de *types.DataUnavailableError
	if !errors.As(err, &de) || de.Step != types.StepBalance {
		t.Fatalf("expected DataUnavailableError, got %v", err)
	}
	if bal.BuyingPower != 0 {
		t.Errorf("returned balance on failure: %+v", bal)
	}
}
