package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	meta := MetadataFor(CodePaymentDeclined)
	if meta.HTTPStatus != http.StatusPaymentRequired {
		t.Fatalf("expected 402 for declined, got %d", meta.HTTPStatus)
	}
	if meta.Retryable {
		t.Fatal("declines must not be retryable")
	}
}

func TestMetadataForUnknownCodeFallsBack(t *testing.T) {
	meta := MetadataFor(Code("NOPE"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal fallback, got %d", meta.HTTPStatus)
	}
}

func TestRetryableDefaultsPerCode(t *testing.T) {
	cases := map[Code]bool{
		CodeValidation:         false,
		CodeNotFound:           false,
		CodePaymentDeclined:    false,
		CodeConcurrentAccess:   true,
		CodeGatewayUnavailable: true,
		CodeDependency:         true,
	}
	for code, want := range cases {
		if got := New(code, "x").Retryable(); got != want {
			t.Errorf("code %s: retryable = %v, want %v", code, got, want)
		}
	}
}

func TestWithRetryableOverride(t *testing.T) {
	err := New(CodeDependency, "write outcome unknown").WithRetryable(false)
	if err.Retryable() {
		t.Fatal("override to non-retryable did not stick")
	}
	if IsRetryable(err) {
		t.Fatal("IsRetryable should honor the override")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("socket closed")
	err := Wrap(CodeGatewayUnavailable, cause, "create intent")
	if !stdErrors.Is(err, cause) {
		t.Fatal("wrapped cause not reachable via errors.Is")
	}
	if As(fmt.Errorf("outer: %w", err)).Code() != CodeGatewayUnavailable {
		t.Fatal("As should find the typed error through wrapping")
	}
}

func TestDumpIncludesCodeAndChain(t *testing.T) {
	err := Wrap(CodeConcurrentAccess, stdErrors.New("row locked"), "lock intent")
	dump := Dump(err)
	if dump.Code != CodeConcurrentAccess {
		t.Fatalf("unexpected code %s", dump.Code)
	}
	if !dump.Retryable {
		t.Fatal("dump should carry the retryable flag")
	}
	if len(dump.Chain) < 2 {
		t.Fatalf("expected full chain, got %v", dump.Chain)
	}
}
