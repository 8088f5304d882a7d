package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/orderflow/backbone/common/config"
)

func TestSet_FixedWindow_ThirdRequestWithinWindowIsRateLimited(t *testing.T) {
	cfg := config.RateLimiting{
		IsEnabled: true,
		DefaultPolicy: config.RateLimitPolicy{
			PermitLimit:   2,
			WindowSeconds: 60,
			QueueLimit:    0,
		},
		ProductAPIPolicy: config.RateLimitPolicy{PermitLimit: 100, WindowSeconds: 60},
		OrderAPIPolicy:   config.RateLimitPolicy{PermitLimit: 100, WindowSeconds: 60},
		PaymentAPIPolicy: config.ConcurrencyPolicy{PermitLimit: 10},
	}
	set := NewSet(cfg)

	handler := set.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/checkout", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	first := do()
	second := do()
	third := do()

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, http.StatusTooManyRequests, third.Code)
	assert.Equal(t, "60", third.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate_limit_exceeded","message":"Too many requests. Please try again later."}`, third.Body.String())
}

func TestSet_Disabled_AlwaysAdmits(t *testing.T) {
	cfg := config.RateLimiting{IsEnabled: false, DefaultPolicy: config.RateLimitPolicy{PermitLimit: 1, WindowSeconds: 60}}
	set := NewSet(cfg)
	handler := set.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/checkout", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestFixedWindow_QueuedWaiterPromotedOnReset(t *testing.T) {
	fw := NewFixedWindow(FixedWindowPolicy{PermitLimit: 1, Window: 30 * time.Millisecond, QueueLimit: 1, QueueOrder: OldestFirst})

	lease, ok := fw.Acquire(context.Background(), "k")
	assert.True(t, ok)
	defer lease.Release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, ok = fw.Acquire(ctx, "k")
	assert.True(t, ok)
}

func TestConcurrency_ReleaseFreesSlotForNextWaiter(t *testing.T) {
	c := NewConcurrency(ConcurrencyPolicy{PermitLimit: 1, QueueLimit: 1, QueueOrder: OldestFirst})

	lease, ok := c.Acquire(context.Background(), "k")
	assert.True(t, ok)

	done := make(chan bool, 1)
	go func() {
		l2, ok2 := c.Acquire(context.Background(), "k")
		done <- ok2
		if ok2 {
			l2.Release()
		}
	}()

	time.Sleep(10 * time.Millisecond)
	lease.Release()

	select {
	case ok2 := <-done:
		assert.True(t, ok2)
	case <-time.After(time.Second):
		t.Fatal("waiter was never promoted")
	}
}
