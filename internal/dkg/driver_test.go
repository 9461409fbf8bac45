package dkg

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/guardianwallet/signer/internal/scheme"
)

func TestTSSDriverProcessRoundUnknownSession(t *testing.T) {
	engine := scheme.NewTSSEngine(zap.NewNop())
	driver := NewTSSDriver(engine)

	if _, err := driver.ProcessRound(context.Background(), "missing", nil); err == nil {
		t.Fatal("expected error for unknown keygen session")
	}
}
