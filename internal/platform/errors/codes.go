// Package errors provides structured error handling for guildshop.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Gateway errors
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeNotFound         Code = "NOT_FOUND"
	CodeRateLimited      Code = "RATE_LIMITED"

	// Configuration errors
	CodeConfigMissing Code = "CONFIG_MISSING"

	// Economy errors
	CodeInvalidAmount     Code = "INVALID_AMOUNT"
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"
	CodeSelfTransfer      Code = "SELF_TRANSFER"

	// Catalog errors
	CodeCatalogInvalidName     Code = "CATALOG_INVALID_NAME"
	CodeCatalogInvalidPrice    Code = "CATALOG_INVALID_PRICE"
	CodeCatalogInvalidReward   Code = "CATALOG_INVALID_REWARD"
	CodeCatalogInvalidCurrency Code = "CATALOG_INVALID_CURRENCY"
	CodeCategoryNotEmpty       Code = "CATEGORY_NOT_EMPTY"

	// Ticket errors
	CodeTicketNotOpen        Code = "TICKET_NOT_OPEN"
	CodeTicketAlreadyClaimed Code = "TICKET_ALREADY_CLAIMED"
	CodeTicketForbidden      Code = "TICKET_FORBIDDEN"

	// Reputation errors
	CodeEndorsementRejected Code = "ENDORSEMENT_REJECTED"
	CodeInvalidThreshold    Code = "INVALID_THRESHOLD"

	// Redeem errors
	CodeInvalidNickname Code = "INVALID_NICKNAME"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeInvalidAmount,
		CodeSelfTransfer,
		CodeCatalogInvalidName,
		CodeCatalogInvalidPrice,
		CodeCatalogInvalidReward,
		CodeCatalogInvalidCurrency,
		CodeEndorsementRejected,
		CodeInvalidThreshold,
		CodeInvalidNickname:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeInsufficientFunds,
		CodeCategoryNotEmpty,
		CodeTicketNotOpen,
		CodeConfigMissing:
		return codes.FailedPrecondition

	case CodeTicketAlreadyClaimed:
		return codes.AlreadyExists

	case CodePermissionDenied,
		CodeTicketForbidden:
		return codes.PermissionDenied

	case CodeNotFound:
		return codes.NotFound

	case CodeRateLimited:
		return codes.ResourceExhausted

	default:
		return codes.Internal
	}
}

func codeFromGRPC(code codes.Code) Code {
	switch code {
	case codes.PermissionDenied:
		return CodePermissionDenied
	case codes.NotFound:
		return CodeNotFound
	case codes.ResourceExhausted:
		return CodeRateLimited
	default:
		return CodeUnknown
	}
}
