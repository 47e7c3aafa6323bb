package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/go-hindi-bpe/internal/bpe"
	"github.com/example/go-hindi-bpe/internal/server"
)

// ---------------------------------------------------------------------------
// request validation and limits
// ---------------------------------------------------------------------------

func TestEncode_OversizedTextRejectedAs413(t *testing.T) {
	h := newTestHandler(t, server.WithMaxTextBytes(10))

	// Four Devanagari runes are twelve bytes.
	rec := post(h, "/encode", `{"text":"नमस्"}`)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("want 413, got %d", rec.Code)
	}
	if body := decodeBody[map[string]string](t, rec); body["error"] == "" {
		t.Error("want non-empty error field")
	}
}

func TestEncode_TextAtExactLimitIsAccepted(t *testing.T) {
	h := newTestHandler(t, server.WithMaxTextBytes(len("भारत")))

	rec := post(h, "/encode", `{"text":"भारत"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200 for exactly-limit text, got %d", rec.Code)
	}
}

func TestDecode_OversizedBodyRejectedAs413(t *testing.T) {
	h := newTestHandler(t)

	ids := strings.Repeat("23,", 400_000)
	rec := post(h, "/decode", `{"ids":[`+ids+`23]}`)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("want 413, got %d", rec.Code)
	}
}

func TestEncode_RequestTimeoutCancelsInFlight(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	tok := &blockingTokenizer{Model: greetingModel(t), release: release}
	h := server.NewHandler(tok, server.WithRequestTimeout(20*time.Millisecond))

	rec := post(h, "/encode", `{"text":"नमस्ते"}`)

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("want 504 on timeout, got %d", rec.Code)
	}
	if body := decodeBody[map[string]string](t, rec); body["error"] == "" {
		t.Error("want non-empty error field")
	}
}

// ---------------------------------------------------------------------------
// worker pool / concurrency throttling
// ---------------------------------------------------------------------------

func TestEncode_ConcurrencyThrottling(t *testing.T) {
	const workers = 2
	const totalRequests = 5

	var (
		mu         sync.Mutex
		peak       int
		current    int32
		releaseAll = make(chan struct{})
	)
	tok := &countingTokenizer{
		Model: greetingModel(t),
		onEnter: func() {
			n := int(atomic.AddInt32(&current, 1))

			mu.Lock()
			if n > peak {
				peak = n
			}
			mu.Unlock()
			<-releaseAll
		},
		onExit: func() { atomic.AddInt32(&current, -1) },
	}

	h := server.NewHandler(tok, server.WithWorkers(workers))

	var wg sync.WaitGroup
	codes := make([]int, totalRequests)
	for i := range totalRequests {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			codes[idx] = post(h, "/encode", `{"text":"भारत"}`).Code
		}(i)
	}

	// Give goroutines time to reach the tokenizer.
	time.Sleep(50 * time.Millisecond)
	close(releaseAll)
	wg.Wait()

	mu.Lock()
	got := peak
	mu.Unlock()

	if got > workers {
		t.Errorf("peak concurrency %d exceeded worker limit %d", got, workers)
	}
	for i, code := range codes {
		if code != http.StatusOK {
			t.Errorf("request %d: want 200, got %d", i, code)
		}
	}
}

func TestEncode_WaiterCancelledWhileThrottled(t *testing.T) {
	release := make(chan struct{})
	tok := &blockingTokenizer{Model: greetingModel(t), release: release}
	h := server.NewHandler(tok, server.WithWorkers(1), server.WithRequestTimeout(5*time.Second))

	// First request occupies the single worker slot.
	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		post(h, "/encode", `{"text":"पहला"}`)
	}()

	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/encode", strings.NewReader(`{"text":"दूसरा"}`)).WithContext(ctx)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("want 503 when waiter context cancelled, got %d", rec.Code)
	}

	close(release)
	<-firstDone
}

func TestEncode_TimedOutWorkKeepsItsSlot(t *testing.T) {
	release := make(chan struct{})
	tok := &blockingTokenizer{Model: greetingModel(t), release: release}
	h := server.NewHandler(tok, server.WithWorkers(1), server.WithRequestTimeout(20*time.Millisecond))

	// The first encode times out but keeps running inside the tokenizer.
	if rec := post(h, "/encode", `{"text":"पहला"}`); rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("first request: want 504, got %d", rec.Code)
	}

	// While it runs, the only slot is still taken.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/encode", strings.NewReader(`{"text":"दूसरा"}`)).WithContext(ctx)
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("second request: want 503 while the slot is held, got %d", rec.Code)
	}

	// Once the stuck encode returns, the slot is free again.
	close(release)
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec := post(h, "/encode", `{"text":"भारत"}`)
		if rec.Code == http.StatusOK {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("slot never released: last status %d", rec.Code)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// blockingTokenizer blocks Encode until release is closed.
type blockingTokenizer struct {
	*bpe.Model
	release chan struct{}
}

func (b *blockingTokenizer) Encode(text string) bpe.Encoding {
	<-b.release
	return b.Model.Encode(text)
}

// countingTokenizer calls onEnter/onExit around Encode.
type countingTokenizer struct {
	*bpe.Model
	onEnter func()
	onExit  func()
}

func (c *countingTokenizer) Encode(text string) bpe.Encoding {
	c.onEnter()
	defer c.onExit()
	return c.Model.Encode(text)
}

var (
	_ server.Tokenizer = (*blockingTokenizer)(nil)
	_ server.Tokenizer = (*countingTokenizer)(nil)
)
