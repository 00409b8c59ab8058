package errors

import (
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestCodeOfDomainError(t *testing.T) {
	err := fmt.Errorf("grant role: %w", Wrap(CodePermissionDenied, "missing manage roles", fmt.Errorf("http 403")))
	if got := CodeOf(err); got != CodePermissionDenied {
		t.Fatalf("code = %q, want %q", got, CodePermissionDenied)
	}
	if !IsPermissionDenied(err) {
		t.Fatal("expected permission denied")
	}
	if IsNotFound(err) {
		t.Fatal("did not expect not found")
	}
}

func TestCodeOfGRPCStatus(t *testing.T) {
	tests := []struct {
		code codes.Code
		want Code
	}{
		{codes.PermissionDenied, CodePermissionDenied},
		{codes.NotFound, CodeNotFound},
		{codes.ResourceExhausted, CodeRateLimited},
		{codes.Unavailable, CodeUnknown},
	}
	for _, tc := range tests {
		if got := CodeOf(status.Error(tc.code, "boom")); got != tc.want {
			t.Fatalf("CodeOf(%s) = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestCodeOfNil(t *testing.T) {
	if got := CodeOf(nil); got != "" {
		t.Fatalf("code = %q, want empty", got)
	}
}

func TestErrorIsMatchesByCode(t *testing.T) {
	err := New(CodeInsufficientFunds, "balance too low")
	if !err.Is(New(CodeInsufficientFunds, "other message")) {
		t.Fatal("expected code match")
	}
	if err.Is(New(CodeInvalidAmount, "balance too low")) {
		t.Fatal("expected code mismatch")
	}
}

func TestGRPCStatusUsesMappedCode(t *testing.T) {
	err := New(CodeTicketAlreadyClaimed, "claimed")
	if got := status.Code(err); got != codes.AlreadyExists {
		t.Fatalf("status code = %s, want %s", got, codes.AlreadyExists)
	}
	if got := CodeInsufficientFunds.GRPCCode(); got != codes.FailedPrecondition {
		t.Fatalf("grpc code = %s, want %s", got, codes.FailedPrecondition)
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Wrap(CodeNotFound, "fetch member", fmt.Errorf("unknown member"))
	if got := err.Error(); got != "fetch member: unknown member" {
		t.Fatalf("error = %q", got)
	}
}
