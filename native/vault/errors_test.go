package vault

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("invoke: %w", ErrPriceTooLow)
	code, ok := CodeOf(wrapped)
	if !ok || code != CodePriceTooLow {
		t.Fatalf("expected PriceTooLow, got %v (%v)", code, ok)
	}
	if _, ok := CodeOf(errors.New("disk on fire")); ok {
		t.Fatalf("plain errors must not carry a code")
	}
	if CodeInvalidEpochId.String() != "InvalidEpochId" {
		t.Fatalf("unexpected name %q", CodeInvalidEpochId.String())
	}
	if Code(99).String() != "Code(99)" {
		t.Fatalf("unexpected name %q", Code(99).String())
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("boom")
	err := wrap(ErrTokenTransferFailed, cause)
	if !errors.Is(err, cause) || !errors.Is(err, ErrTokenTransferFailed) {
		t.Fatalf("wrap lost a link: %v", err)
	}
	if wrap(ErrTokenTransferFailed, nil) != nil {
		t.Fatalf("wrapping nil must stay nil")
	}
}

func TestApplyRateAndEpochBounds(t *testing.T) {
	got, err := applyRate(maxAmount, 2)
	if err == nil {
		t.Fatalf("expected overflow, got %v", got)
	}
	if _, err := nextEpoch(^uint32(0)); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected epoch overflow, got %v", err)
	}
}
