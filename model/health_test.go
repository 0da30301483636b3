package model

import (
	"sync"
	"testing"
	"time"
)

func TestEndpointHealthTracking(t *testing.T) {
	r := NewDefaultRegistry()

	if !r.IsEndpointAvailable("llama3.1") {
		t.Error("expected endpoint to be available initially")
	}
	if h := r.GetEndpointHealth("llama3.1"); h != nil {
		t.Error("expected no health info before any requests")
	}

	r.MarkEndpointSuccess("llama3.1")

	h := r.GetEndpointHealth("llama3.1")
	if h == nil {
		t.Fatal("expected health info after success")
	}
	if !h.Available || h.FailureCount != 0 || h.LastSuccess.IsZero() {
		t.Errorf("unexpected health after success: %+v", h)
	}
}

func TestCircuitBreaker(t *testing.T) {
	r := NewDefaultRegistry()
	r.SetHealthConfig(HealthConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  50 * time.Millisecond,
	})

	r.MarkEndpointFailure("llama3.1")
	if !r.IsEndpointAvailable("llama3.1") {
		t.Error("expected endpoint available after 1 failure")
	}

	r.MarkEndpointFailure("llama3.1")
	if r.IsEndpointAvailable("llama3.1") {
		t.Error("expected circuit open after 2 failures")
	}

	chain := r.GetAvailableFallbackChain(CapabilityGrading)
	for _, m := range chain {
		if m == "llama3.1" {
			t.Error("open endpoint should be filtered from the chain")
		}
	}

	time.Sleep(80 * time.Millisecond)
	if !r.IsEndpointAvailable("llama3.1") {
		t.Error("expected half-open probe after recovery timeout")
	}

	r.MarkEndpointSuccess("llama3.1")
	if h := r.GetEndpointHealth("llama3.1"); h.CircuitOpen {
		t.Error("success should close the circuit")
	}
}

func TestAvailableFallbackChainAllOpen(t *testing.T) {
	r := NewDefaultRegistry()
	r.SetHealthConfig(HealthConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour})

	for _, m := range r.GetFallbackChain(CapabilityDetection) {
		r.MarkEndpointFailure(m)
	}

	chain := r.GetAvailableFallbackChain(CapabilityDetection)
	if len(chain) != 2 {
		t.Errorf("expected full chain when everything is open, got %v", chain)
	}
}

func TestResetEndpointHealth(t *testing.T) {
	r := NewDefaultRegistry()
	r.ResetEndpointHealth("llama3.1")

	r.MarkEndpointFailure("llama3.1")
	r.ResetEndpointHealth("llama3.1")
	if h := r.GetEndpointHealth("llama3.1"); h != nil {
		t.Errorf("expected health cleared, got %+v", h)
	}
}

func TestHealthConcurrentAccess(t *testing.T) {
	r := NewDefaultRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				r.MarkEndpointFailure("mistral")
			} else {
				r.MarkEndpointSuccess("mistral")
			}
			_ = r.IsEndpointAvailable("mistral")
			_ = r.GetAvailableFallbackChain(CapabilityFast)
		}(i)
	}
	wg.Wait()
}
