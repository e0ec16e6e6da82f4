package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeAuthFailed, status: http.StatusBadGateway, publicMsg: "distributor authentication failed"},
		{code: CodeSessionExpired, status: http.StatusBadGateway, publicMsg: "distributor session expired", retryable: true},
		{code: CodeTransport, status: http.StatusBadGateway, publicMsg: "distributor unreachable", retryable: true, detailsOK: true},
		{code: CodeParse, status: http.StatusBadGateway, publicMsg: "unexpected distributor response", detailsOK: true},
		{code: CodeConfiguration, status: http.StatusUnprocessableEntity, publicMsg: "distributor is not configured for ordering", detailsOK: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, publicMsg: "rate limit exceeded", retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("connection refused")
	wrapped := Wrap(CodeTransport, cause, "search request failed")

	if !stdErrors.Is(wrapped, cause) {
		t.Fatal("expected wrapped error to match cause via errors.Is")
	}
	if typed := As(wrapped); typed == nil || typed.Code() != CodeTransport {
		t.Fatalf("expected transport code, got %v", wrapped)
	}
}

func TestHasCode(t *testing.T) {
	err := Wrap(CodeSessionExpired, stdErrors.New("timed out"), "session rejected")
	if !HasCode(err, CodeSessionExpired) {
		t.Fatal("expected HasCode to match")
	}
	if HasCode(err, CodeAuthFailed) {
		t.Fatal("expected HasCode mismatch for other code")
	}
	if HasCode(nil, CodeAuthFailed) {
		t.Fatal("nil error should not carry a code")
	}
}

func TestAsNonDomainError(t *testing.T) {
	if As(stdErrors.New("plain")) != nil {
		t.Fatal("expected nil for non-domain error")
	}
}
