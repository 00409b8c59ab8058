// Package admin serves the shop's operator API over gRPC: guild settings,
// reputation tiers, the catalog, tickets, balances and redeems.
package admin

import (
	"context"
	"errors"
	"log"
	"strings"

	apperrors "github.com/opshop/guildshop/internal/platform/errors"
	"github.com/opshop/guildshop/internal/services/shop/domain/catalog"
	"github.com/opshop/guildshop/internal/services/shop/domain/economy"
	"github.com/opshop/guildshop/internal/services/shop/domain/redeem"
	"github.com/opshop/guildshop/internal/services/shop/domain/reputation"
	"github.com/opshop/guildshop/internal/services/shop/domain/settings"
	"github.com/opshop/guildshop/internal/services/shop/domain/tickets"
	"github.com/opshop/guildshop/internal/services/shop/domain/xp"
	"github.com/opshop/guildshop/internal/services/shop/storage"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "guildshop.admin.v1.AdminService"

// TransactionLister pages through the ledger.
type TransactionLister interface {
	ListTransactionsPage(ctx context.Context, req storage.TransactionPageRequest) (storage.TransactionPage, error)
}

// Deps are the domain services the admin API drives.
type Deps struct {
	Settings     *settings.Service
	Reputation   *reputation.Engine
	Catalog      *catalog.Service
	Tickets      *tickets.Service
	Economy      *economy.Service
	XP           *xp.Service
	Redeem       *redeem.Service
	Transactions TransactionLister
	// OwnerID is the only actor allowed to change configuration, balances
	// and the catalog.
	OwnerID string
	Logf    func(string, ...any)
}

// Server implements the admin service.
type Server struct {
	deps Deps
}

// NewServer creates an admin server.
func NewServer(deps Deps) *Server {
	if deps.Logf == nil {
		deps.Logf = log.Printf
	}
	deps.OwnerID = strings.TrimSpace(deps.OwnerID)
	return &Server{deps: deps}
}

// Register attaches the admin service to registrar.
func Register(registrar grpc.ServiceRegistrar, server *Server) {
	registrar.RegisterService(&serviceDesc, server)
}

type adminServer interface {
	caller(ctx context.Context) (caller, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*adminServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetSettings", (*Server).GetSettings),
		unary("UpdateSettings", (*Server).UpdateSettings),
		unary("SetTier", (*Server).SetTier),
		unary("RemoveTier", (*Server).RemoveTier),
		unary("ListTiers", (*Server).ListTiers),
		unary("AwardReputation", (*Server).AwardReputation),
		unary("CreateCategory", (*Server).CreateCategory),
		unary("UpdateCategory", (*Server).UpdateCategory),
		unary("ListCategories", (*Server).ListCategories),
		unary("DeleteCategory", (*Server).DeleteCategory),
		unary("CreateItem", (*Server).CreateItem),
		unary("UpdateItem", (*Server).UpdateItem),
		unary("ListItems", (*Server).ListItems),
		unary("DeleteItem", (*Server).DeleteItem),
		unary("OpenTicket", (*Server).OpenTicket),
		unary("ClaimTicket", (*Server).ClaimTicket),
		unary("UnclaimTicket", (*Server).UnclaimTicket),
		unary("CloseTicket", (*Server).CloseTicket),
		unary("DeleteTicket", (*Server).DeleteTicket),
		unary("CompleteOrder", (*Server).CompleteOrder),
		unary("GetTranscript", (*Server).GetTranscript),
		unary("GetAccount", (*Server).GetAccount),
		unary("ModifyTokens", (*Server).ModifyTokens),
		unary("ModifyCredits", (*Server).ModifyCredits),
		unary("AddXP", (*Server).AddXP),
		unary("Transfer", (*Server).Transfer),
		unary("ListTransactions", (*Server).ListTransactions),
		unary("GetEconomyConfig", (*Server).GetEconomyConfig),
		unary("UpdateEconomyConfig", (*Server).UpdateEconomyConfig),
		unary("Leaderboard", (*Server).Leaderboard),
		unary("ExchangeTokens", (*Server).ExchangeTokens),
		unary("RedeemNickname", (*Server).RedeemNickname),
	},
	Metadata: "guildshop/admin/v1/admin.proto",
}

// FullMethod returns the gRPC method path of an admin method.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// unary adapts a typed handler to a MethodDesc. Requests and responses are
// Struct messages mapped onto Req and Resp.
func unary[Req, Resp any](name string, call func(*Server, context.Context, Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				var typed Req
				if err := FromStruct(req.(*structpb.Struct), &typed); err != nil {
					return nil, status.Errorf(codes.InvalidArgument, "%s: %v", name, err)
				}
				server := srv.(*Server)
				resp, err := call(server, ctx, typed)
				if err != nil {
					server.deps.Logf("[admin] %s by %q: %v", name, ActorIDFromContext(ctx), err)
					return nil, handleDomainError(err)
				}
				server.deps.Logf("[admin] %s by %q", name, ActorIDFromContext(ctx))
				out, err := ToStruct(resp)
				if err != nil {
					return nil, status.Errorf(codes.Internal, "%s: %v", name, err)
				}
				return out, nil
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// handleDomainError maps domain and storage errors onto gRPC status codes.
func handleDomainError(err error) error {
	if _, ok := status.FromError(err); ok && !isDomainError(err) {
		return err
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, storage.ErrInsufficientBalance):
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	code := apperrors.CodeOf(err)
	if code == apperrors.CodeUnknown {
		return status.Error(codes.Internal, err.Error())
	}
	return status.Error(code.GRPCCode(), err.Error())
}

func isDomainError(err error) bool {
	var domainErr *apperrors.Error
	return errors.As(err, &domainErr)
}

// caller is the authenticated actor of one call.
type caller struct {
	UserID string
	Owner  bool
}

func (s *Server) caller(ctx context.Context) (caller, error) {
	actorID := ActorIDFromContext(ctx)
	if actorID == "" {
		return caller{}, status.Errorf(codes.Unauthenticated, "%s metadata is required", ActorIDHeader)
	}
	return caller{UserID: actorID, Owner: s.deps.OwnerID != "" && actorID == s.deps.OwnerID}, nil
}

// requireOwner admits only the configured bot owner.
func (s *Server) requireOwner(ctx context.Context) (caller, error) {
	c, err := s.caller(ctx)
	if err != nil {
		return caller{}, err
	}
	if s.deps.OwnerID == "" {
		return caller{}, apperrors.New(apperrors.CodeConfigMissing, "owner id is not configured")
	}
	if !c.Owner {
		return caller{}, apperrors.New(apperrors.CodePermissionDenied, "only the bot owner may do this")
	}
	return c, nil
}

// requireSelfOrOwner admits userID acting for themselves and the owner.
func (s *Server) requireSelfOrOwner(ctx context.Context, userID string) (caller, error) {
	c, err := s.caller(ctx)
	if err != nil {
		return caller{}, err
	}
	if !c.Owner && c.UserID != strings.TrimSpace(userID) {
		return caller{}, apperrors.New(apperrors.CodePermissionDenied, "you can only act on your own account")
	}
	return c, nil
}

func (c caller) ticketActor() tickets.Actor {
	return tickets.Actor{UserID: c.UserID, Admin: c.Owner}
}

func required(field string, value string) error {
	if strings.TrimSpace(value) == "" {
		return status.Errorf(codes.InvalidArgument, "%s is required", field)
	}
	return nil
}
