package scheme

import (
	"testing"

	"go.uber.org/zap"
)

func TestProcessSigningRoundUnknownSession(t *testing.T) {
	e := NewTSSEngine(zap.NewNop())

	if _, err := e.ProcessSigningRound("missing", nil); err == nil {
		t.Fatal("expected error for unknown signing session")
	}
}

func TestProcessKeygenRoundUnknownSession(t *testing.T) {
	e := NewTSSEngine(zap.NewNop())

	if _, err := e.ProcessKeygenRound("missing", nil); err == nil {
		t.Fatal("expected error for unknown keygen session")
	}
}

func TestAbortSigningIsIdempotent(t *testing.T) {
	e := NewTSSEngine(zap.NewNop())
	e.AbortSigning("never-started") // must not panic
	e.AbortSigning("never-started")
}

func TestAbortKeygenIsIdempotent(t *testing.T) {
	e := NewTSSEngine(zap.NewNop())
	e.AbortKeygen("never-started") // must not panic
	e.AbortKeygen("never-started")
}

func TestStartSigningRejectsMalformedShareData(t *testing.T) {
	e := NewTSSEngine(zap.NewNop())

	_, err := e.StartSigning(SigningContext{
		SessionID:    "sess-1",
		PartyIndex:   0,
		TotalParties: 3,
		Threshold:    1,
		MessageHash:  []byte("0123456789012345678901234567890"),
		CoreShare:    []byte("not-json"),
	})
	if err == nil {
		t.Fatal("expected error for malformed share data")
	}
}

func TestStartSigningRejectsDuplicateSession(t *testing.T) {
	e := NewTSSEngine(zap.NewNop())
	e.signing["dup"] = &signSession{partyIDs: sortedPartyIDs(3)}

	_, err := e.StartSigning(SigningContext{SessionID: "dup", TotalParties: 3, Threshold: 1})
	if err == nil {
		t.Fatal("expected error for duplicate session id")
	}
}

func TestStartKeygenRejectsDuplicateSession(t *testing.T) {
	e := NewTSSEngine(zap.NewNop())
	e.keygen["dup"] = &keygenSession{partyIDs: sortedPartyIDs(3)}

	_, err := e.StartKeygen(KeygenContext{SessionID: "dup", TotalParties: 3, Threshold: 1})
	if err == nil {
		t.Fatal("expected error for duplicate session id")
	}
}

func TestPadTo32(t *testing.T) {
	got := padTo32([]byte{1, 2, 3})
	if len(got) != 32 {
		t.Fatalf("expected 32 bytes, got %d", len(got))
	}
	for i := 0; i < 29; i++ {
		if got[i] != 0 {
			t.Fatalf("expected leading zero at %d, got %d", i, got[i])
		}
	}
	if got[29] != 1 || got[30] != 2 || got[31] != 3 {
		t.Fatalf("unexpected tail bytes: %v", got[29:])
	}
}

func TestSortedPartyIDsAreOneIndexedAndSorted(t *testing.T) {
	ids := sortedPartyIDs(3)
	if len(ids) != 3 {
		t.Fatalf("expected 3 party ids, got %d", len(ids))
	}
	if ids[0].KeyInt().Int64() != 1 {
		t.Fatalf("expected first party key to be 1, got %s", ids[0].KeyInt())
	}
	for i := 1; i < len(ids); i++ {
		if ids[i-1].KeyInt().Cmp(ids[i].KeyInt()) >= 0 {
			t.Fatal("expected strictly increasing party keys after sort")
		}
	}
}
