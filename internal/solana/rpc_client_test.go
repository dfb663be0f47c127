package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// rpcServer answers every request with handler(method, params).
func rpcServer(t *testing.T, handler func(method string, params []interface{}) interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  handler(req.Method, req.Params),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestHTTPClient_GetTransaction(t *testing.T) {
	server := rpcServer(t, func(method string, params []interface{}) interface{} {
		if method != "getTransaction" {
			t.Errorf("expected method getTransaction, got %s", method)
		}
		cfg := params[1].(map[string]interface{})
		if cfg["commitment"] != "confirmed" {
			t.Errorf("expected confirmed commitment, got %v", cfg["commitment"])
		}
		return map[string]interface{}{
			"slot":      int64(123456),
			"blockTime": int64(1700000000),
			"meta": map[string]interface{}{
				"err":         nil,
				"fee":         5000,
				"logMessages": []string{"Program log: Hello", "Program log: World"},
			},
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	tx, err := client.GetTransaction(context.Background(), "testsig123")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if tx == nil {
		t.Fatal("expected transaction, got nil")
	}
	if tx.Slot != 123456 {
		t.Errorf("expected slot 123456, got %d", tx.Slot)
	}
	if tx.Meta == nil || tx.Meta.Fee != 5000 {
		t.Errorf("expected meta with fee 5000, got %+v", tx.Meta)
	}
	if tx.Failed() {
		t.Error("expected successful transaction")
	}
}

func TestHTTPClient_GetTransaction_NotFound(t *testing.T) {
	server := rpcServer(t, func(string, []interface{}) interface{} { return nil })
	defer server.Close()

	client := NewHTTPClient(server.URL)
	tx, err := client.GetTransaction(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if tx != nil {
		t.Errorf("expected nil for not found, got %+v", tx)
	}
}

func TestHTTPClient_GetTransaction_ExecutionError(t *testing.T) {
	server := rpcServer(t, func(string, []interface{}) interface{} {
		return map[string]interface{}{
			"slot": int64(10),
			"meta": map[string]interface{}{
				"err": map[string]interface{}{"InstructionError": []interface{}{2, map[string]interface{}{"Custom": 6001}}},
			},
		}
	})
	defer server.Close()

	tx, err := NewHTTPClient(server.URL).GetTransaction(context.Background(), "sig")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if !tx.Failed() {
		t.Error("expected failed transaction")
	}
}

func TestHTTPClient_SendTransaction_SingleAttempt(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(time.Millisecond))
	_, err := client.SendTransaction(context.Background(), "AQID", SendOpts{SkipPreflight: true})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("expected exactly one broadcast, got %d", calls.Load())
	}
}

func TestHTTPClient_SendTransaction_Params(t *testing.T) {
	server := rpcServer(t, func(method string, params []interface{}) interface{} {
		if method != "sendTransaction" {
			t.Errorf("expected sendTransaction, got %s", method)
		}
		if params[0] != "AQID" {
			t.Errorf("unexpected payload %v", params[0])
		}
		cfg := params[1].(map[string]interface{})
		if cfg["skipPreflight"] != true || cfg["encoding"] != "base64" {
			t.Errorf("unexpected config %v", cfg)
		}
		return "5sig"
	})
	defer server.Close()

	sig, err := NewHTTPClient(server.URL).SendTransaction(context.Background(), "AQID", SendOpts{SkipPreflight: true})
	if err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}
	if sig != "5sig" {
		t.Errorf("expected 5sig, got %s", sig)
	}
}

func TestHTTPClient_SimulateTransaction(t *testing.T) {
	server := rpcServer(t, func(string, []interface{}) interface{} {
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 1},
			"value": map[string]interface{}{
				"err":           "BlockhashNotFound",
				"logs":          []string{"log"},
				"unitsConsumed": 1200,
			},
		}
	})
	defer server.Close()

	sim, err := NewHTTPClient(server.URL).SimulateTransaction(context.Background(), "AQID")
	if err != nil {
		t.Fatalf("SimulateTransaction: %v", err)
	}
	if sim.Err != "BlockhashNotFound" {
		t.Errorf("expected simulated error, got %v", sim.Err)
	}
	if sim.UnitsConsumed != 1200 {
		t.Errorf("expected 1200 units, got %d", sim.UnitsConsumed)
	}
}

func TestHTTPClient_GetBlockHeightAndBalance(t *testing.T) {
	server := rpcServer(t, func(method string, _ []interface{}) interface{} {
		switch method {
		case "getBlockHeight":
			return 250000000
		case "getBalance":
			return map[string]interface{}{"context": map[string]interface{}{"slot": 1}, "value": 1500000000}
		}
		t.Errorf("unexpected method %s", method)
		return nil
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	height, err := client.GetBlockHeight(context.Background())
	if err != nil {
		t.Fatalf("GetBlockHeight: %v", err)
	}
	if height != 250000000 {
		t.Errorf("expected height 250000000, got %d", height)
	}

	balance, err := client.GetBalance(context.Background(), "owner")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if balance != 1500000000 {
		t.Errorf("expected 1500000000 lamports, got %d", balance)
	}
}

func TestHTTPClient_GetTokenBalance_SumsAccounts(t *testing.T) {
	account := func(amount string) map[string]interface{} {
		return map[string]interface{}{
			"pubkey": "acc",
			"account": map[string]interface{}{
				"data": map[string]interface{}{
					"parsed": map[string]interface{}{
						"info": map[string]interface{}{
							"tokenAmount": map[string]interface{}{"amount": amount, "decimals": 6},
						},
					},
				},
			},
		}
	}
	server := rpcServer(t, func(method string, params []interface{}) interface{} {
		if method != "getTokenAccountsByOwner" {
			t.Errorf("unexpected method %s", method)
		}
		filter := params[1].(map[string]interface{})
		if filter["mint"] != "mint1" {
			t.Errorf("expected mint filter, got %v", filter)
		}
		return map[string]interface{}{"value": []interface{}{account("300000"), account("200000")}}
	})
	defer server.Close()

	balance, err := NewHTTPClient(server.URL).GetTokenBalance(context.Background(), "owner", "mint1")
	if err != nil {
		t.Fatalf("GetTokenBalance: %v", err)
	}
	if balance.Amount != 500000 || balance.Decimals != 6 || balance.Accounts != 2 {
		t.Errorf("unexpected balance %+v", balance)
	}
}

func TestHTTPClient_GetTokenBalance_NoAccounts(t *testing.T) {
	server := rpcServer(t, func(string, []interface{}) interface{} {
		return map[string]interface{}{"value": []interface{}{}}
	})
	defer server.Close()

	balance, err := NewHTTPClient(server.URL).GetTokenBalance(context.Background(), "owner", "mint1")
	if err != nil {
		t.Fatalf("GetTokenBalance: %v", err)
	}
	if balance.Amount != 0 || balance.Accounts != 0 {
		t.Errorf("expected empty balance, got %+v", balance)
	}
}

func TestHTTPClient_Retry(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": 42})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(time.Millisecond))
	height, err := client.GetBlockHeight(context.Background())
	if err != nil {
		t.Fatalf("GetBlockHeight: %v", err)
	}
	if height != 42 {
		t.Errorf("expected 42, got %d", height)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestHTTPClient_RPCError(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]interface{}{"code": -32602, "message": "Invalid param"},
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(time.Millisecond))
	_, err := client.GetBlockHeight(context.Background())

	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("expected *RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != -32602 {
		t.Errorf("expected code -32602, got %d", rpcErr.Code)
	}
	if attempts.Load() != 1 {
		t.Errorf("RPC errors must not be retried, got %d attempts", attempts.Load())
	}
}

func TestHTTPClient_Observer(t *testing.T) {
	server := rpcServer(t, func(string, []interface{}) interface{} { return 1 })
	defer server.Close()

	var observed []string
	client := NewHTTPClient(server.URL, WithObserver(func(method string, _ time.Duration, err error) {
		if err != nil {
			t.Errorf("unexpected error %v", err)
		}
		observed = append(observed, method)
	}))

	if _, err := client.GetBlockHeight(context.Background()); err != nil {
		t.Fatalf("GetBlockHeight: %v", err)
	}
	if len(observed) != 1 || observed[0] != "getBlockHeight" {
		t.Errorf("unexpected observations %v", observed)
	}
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.GetBlockHeight(ctx)
	if err != context.DeadlineExceeded {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}
