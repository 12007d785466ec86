package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), zap.NewNop(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}

	_, span := Tracer().Start(context.Background(), "noop")
	span.End()
}
