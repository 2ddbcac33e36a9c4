// Package grpcserver exposes the gymflow backend API handlers.
package grpcserver

import (
	"context"
	"errors"

	"github.com/and161185/gymflow/internal/api"
	"github.com/and161185/gymflow/internal/convert"
	"github.com/and161185/gymflow/internal/errs"
	"github.com/and161185/gymflow/internal/metrics"
	"github.com/and161185/gymflow/internal/model"
	"github.com/and161185/gymflow/internal/service"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Server wires services into gRPC handlers.
type Server struct {
	auth     service.AuthService
	profiles service.ProfileService
	metrics  *metrics.Backend
}

var _ api.BackendServer = (*Server)(nil)

// New constructs a gRPC server with injected services. m may be nil.
func New(auth service.AuthService, profiles service.ProfileService, m *metrics.Backend) *Server {
	return &Server{auth: auth, profiles: profiles, metrics: m}
}

// toStatus maps service sentinels to gRPC codes.
func toStatus(op string, err error) error {
	switch {
	case errors.Is(err, errs.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, errs.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, errs.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, "already exists")
	case errors.Is(err, errs.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "bad credentials")
	case errors.Is(err, errs.ErrForbidden):
		return status.Error(codes.PermissionDenied, "forbidden")
	case errors.Is(err, errs.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, "rate limited")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, op)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, op)
	default:
		return status.Errorf(codes.Internal, "%s: %v", op, err)
	}
}

func principal(ctx context.Context) (service.Principal, error) {
	p, ok := PrincipalFromCtx(ctx)
	if !ok {
		return service.Principal{}, status.Error(codes.Unauthenticated, "no auth")
	}
	return p, nil
}

func badRequest(err error) error {
	return status.Errorf(codes.InvalidArgument, "bad request: %v", err)
}

// --- Auth ---

// Register creates a new email account.
func (s *Server) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := convert.FromCredentials(req)
	if err != nil {
		return nil, badRequest(err)
	}
	if c.Username == "" || c.Password == "" {
		return nil, status.Error(codes.InvalidArgument, "empty username/password")
	}
	id, err := s.auth.Register(ctx, c.Username, c.Password)
	if err != nil {
		return nil, toStatus("register", err)
	}
	return convert.ToUserID(id), nil
}

// Login authenticates with a password or a federated assertion and returns a session.
func (s *Server) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := convert.FromCredentials(req)
	if err != nil {
		return nil, badRequest(err)
	}
	ip := remoteAddr(ctx)

	var (
		tok  model.Tokens
		u    model.User
		prov model.Provider
	)
	if c.Assertion != "" {
		tok, u, err = s.auth.LoginFederated(ctx, c.Assertion, ip)
		prov = u.Provider
	} else {
		tok, u, err = s.auth.Login(ctx, c.Username, c.Password, ip)
		prov = model.ProviderEmail
	}
	if err != nil {
		s.metrics.Login(loginOutcome(err))
		return nil, toStatus("login", err)
	}
	s.metrics.Login("ok")
	return convert.ToSession(u.ID, prov, tok), nil
}

func loginOutcome(err error) string {
	switch {
	case errors.Is(err, errs.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, errs.ErrUnauthorized):
		return "denied"
	default:
		return "error"
	}
}

// RefreshSession re-issues the caller's token.
func (s *Server) RefreshSession(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	tok, err := s.auth.Refresh(ctx, p)
	if err != nil {
		return nil, toStatus("refresh", err)
	}
	return convert.ToSession(p.UserID, p.Provider, tok), nil
}

// SetPassword stores a local password for the caller.
func (s *Server) SetPassword(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	pw, err := convert.FromPassword(req)
	if err != nil {
		return nil, badRequest(err)
	}
	if err := s.auth.SetPassword(ctx, p.UserID, pw); err != nil {
		return nil, toStatus("set password", err)
	}
	return &structpb.Struct{}, nil
}

// --- Profile ---

// GetProfile returns the profile named in the request, or the caller's when none is given.
// Reading another user's profile is admin-only.
func (s *Server) GetProfile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	target := p.UserID
	if _, ok := req.GetFields()[convert.FieldUserID]; ok {
		if target, err = convert.FromUserID(req); err != nil {
			return nil, badRequest(err)
		}
	}
	if target != p.UserID {
		caller, err := s.profiles.Get(ctx, p.UserID)
		if err != nil {
			return nil, toStatus("get profile", err)
		}
		if caller.Role != model.RoleAdmin {
			return nil, toStatus("get profile", errs.ErrForbidden)
		}
	}
	prof, err := s.profiles.Get(ctx, target)
	if err != nil {
		return nil, toStatus("get profile", err)
	}
	return convert.ToProfile(*prof), nil
}

// UpdateProfile applies a partial profile update.
func (s *Server) UpdateProfile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	target, upd, err := convert.FromProfileUpdate(req)
	if err != nil {
		return nil, badRequest(err)
	}
	prof, err := s.profiles.Update(ctx, p.UserID, target, upd)
	if err != nil {
		return nil, toStatus("update profile", err)
	}
	return convert.ToProfile(*prof), nil
}

// GetAuthMetadata describes the caller's sign-in.
func (s *Server) GetAuthMetadata(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	m, err := s.profiles.AuthMetadata(ctx, p)
	if err != nil {
		return nil, toStatus("auth metadata", err)
	}
	return convert.ToAuthMetadata(m), nil
}

// GetGlobalSetting reads a global setting.
func (s *Server) GetGlobalSetting(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if _, err := principal(ctx); err != nil {
		return nil, err
	}
	key, err := convert.FromKey(req)
	if err != nil {
		return nil, badRequest(err)
	}
	g, err := s.profiles.GlobalSetting(ctx, key)
	if err != nil {
		return nil, toStatus("global setting", err)
	}
	return convert.ToGlobalSetting(g), nil
}
