package errors

import (
	stderrors "errors"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindInternal},
		{"plain", stderrors.New("boom"), KindInternal},
		{"typed", New(KindNoPool, "no pool"), KindNoPool},
		{"wrapped", Wrap(KindRPC, "call", stderrors.New("timeout")), KindRPC},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Fatalf("KindOf() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(KindRPC, "fetch balance", cause)
	if !stderrors.Is(err, cause) {
		t.Fatalf("wrapped error should match its cause")
	}
	if err.Error() != "fetch balance: connection refused" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestIs(t *testing.T) {
	err := New(KindPendingTx, "pending")
	if !Is(err, KindPendingTx) {
		t.Fatalf("expected KindPendingTx match")
	}
	if Is(err, KindValidation) {
		t.Fatalf("unexpected KindValidation match")
	}
	if Is(nil, KindPendingTx) {
		t.Fatalf("nil should never match")
	}
}

func TestAs(t *testing.T) {
	inner := New(KindInsufficientBalance, "not enough")
	wrapped := Wrap(KindPartial, "step failed", inner)
	e, ok := As(wrapped)
	if !ok {
		t.Fatalf("expected typed error")
	}
	if e.Kind != KindPartial {
		t.Fatalf("outermost kind should win, got %v", e.Kind)
	}
}
