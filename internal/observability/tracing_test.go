package observability

import "testing"

func TestInitTracerDisabledIsNoop(t *testing.T) {
	InitTracer(Config{Enabled: false})

	mu.Lock()
	provider := tracerProvider
	mu.Unlock()
	if provider != nil {
		t.Fatal("disabled tracing must not install a provider")
	}

	ShutdownTracer()
}
