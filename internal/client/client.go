// Package client is the gRPC transport of the gymflow client. It implements the data sources
// of the profile fetcher and the password gate over the backend API.
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/and161185/gymflow/internal/api"
	"github.com/and161185/gymflow/internal/convert"
	"github.com/and161185/gymflow/internal/errs"
	"github.com/and161185/gymflow/internal/model"
	"github.com/gofrs/uuid/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrUnavailable is returned when the backend cannot be reached or reports itself not serving.
var ErrUnavailable = errors.New("backend unavailable")

// DefaultTimeout bounds a single call when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// TokenSource yields the access token attached to each call; "" sends no credentials.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

// Token implements TokenSource.
func (f TokenFunc) Token() string { return f() }

type bearerCreds struct {
	src    TokenSource
	secure bool
}

func (b bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	if b.src == nil {
		return nil, nil
	}
	tok := b.src.Token()
	if tok == "" {
		return nil, nil
	}
	return map[string]string{"authorization": "Bearer " + tok}, nil
}

func (b bearerCreds) RequireTransportSecurity() bool { return b.secure }

// TransportCredentials loads TLS settings. insecure skips server verification (dev only).
func TransportCredentials(caPath string, insecure bool) (credentials.TransportCredentials, error) {
	if insecure {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil //nolint:gosec // dev flag
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, fmt.Errorf("read CA cert: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}), nil
}

// Client calls the backend API.
type Client struct {
	cc      grpc.ClientConnInterface
	closer  func() error
	health  healthpb.HealthClient
	creds   bearerCreds
	timeout time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeout bounds every call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithPlaintextBearer allows sending the token over a connection without transport security.
// Only for in-process transports.
func WithPlaintextBearer() Option {
	return func(c *Client) { c.creds.secure = false }
}

// Dial opens a TLS connection to addr.
func Dial(addr string, tc credentials.TransportCredentials, tokens TokenSource, opts ...Option) (*Client, error) {
	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(tc))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c := New(cc, tokens, opts...)
	c.closer = cc.Close
	return c, nil
}

// New wraps an existing connection. The caller keeps ownership of cc.
func New(cc grpc.ClientConnInterface, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		cc:      cc,
		health:  healthpb.NewHealthClient(cc),
		creds:   bearerCreds{src: tokens, secure: true},
		timeout: DefaultTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Close releases the connection opened by Dial.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, authed bool) (*structpb.Struct, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	var opts []grpc.CallOption
	if authed {
		opts = append(opts, grpc.PerRPCCredentials(c.creds))
	}
	out, err := api.Invoke(ctx, c.cc, method, in, opts...)
	if err != nil {
		return nil, fromStatus(err)
	}
	return out, nil
}

// fromStatus maps gRPC codes back to the shared sentinels.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var base error
	switch st.Code() {
	case codes.InvalidArgument:
		base = errs.ErrInvalidArgument
	case codes.NotFound:
		base = errs.ErrNotFound
	case codes.AlreadyExists:
		base = errs.ErrAlreadyExists
	case codes.Unauthenticated:
		base = errs.ErrUnauthorized
	case codes.PermissionDenied:
		base = errs.ErrForbidden
	case codes.ResourceExhausted:
		base = errs.ErrRateLimited
	case codes.Unavailable:
		base = ErrUnavailable
	case codes.DeadlineExceeded:
		base = context.DeadlineExceeded
	case codes.Canceled:
		base = context.Canceled
	default:
		return err
	}
	return fmt.Errorf("%w: %s", base, st.Message())
}

// Register creates an email account and returns its id.
func (c *Client) Register(ctx context.Context, username, password string) (uuid.UUID, error) {
	out, err := c.invoke(ctx, api.MethodRegister, convert.ToCredentials(convert.Credentials{Username: username, Password: password}), false)
	if err != nil {
		return uuid.Nil, err
	}
	return convert.FromUserID(out)
}

// Login signs in with a password.
func (c *Client) Login(ctx context.Context, username, password string) (model.Session, error) {
	return c.login(ctx, convert.Credentials{Username: username, Password: password})
}

// LoginFederated signs in with an identity assertion from a federated provider.
func (c *Client) LoginFederated(ctx context.Context, assertion string) (model.Session, error) {
	return c.login(ctx, convert.Credentials{Assertion: assertion})
}

func (c *Client) login(ctx context.Context, creds convert.Credentials) (model.Session, error) {
	out, err := c.invoke(ctx, api.MethodLogin, convert.ToCredentials(creds), false)
	if err != nil {
		return model.Session{}, err
	}
	return convert.FromSession(out)
}

// RefreshSession exchanges the current token for a fresh one.
func (c *Client) RefreshSession(ctx context.Context) (model.Session, error) {
	out, err := c.invoke(ctx, api.MethodRefreshSession, nil, true)
	if err != nil {
		return model.Session{}, err
	}
	return convert.FromSession(out)
}

// GetProfile loads the stored profile of userID.
func (c *Client) GetProfile(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	out, err := c.invoke(ctx, api.MethodGetProfile, convert.ToUserID(userID), true)
	if err != nil {
		return nil, err
	}
	p, err := convert.FromProfile(out)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetAuthMetadata describes the caller's sign-in.
func (c *Client) GetAuthMetadata(ctx context.Context) (model.AuthMetadata, error) {
	out, err := c.invoke(ctx, api.MethodGetAuthMetadata, nil, true)
	if err != nil {
		return model.AuthMetadata{}, err
	}
	return convert.FromAuthMetadata(out)
}

// GetGlobalSetting reads a single global setting.
func (c *Client) GetGlobalSetting(ctx context.Context, key string) (model.GlobalSetting, error) {
	out, err := c.invoke(ctx, api.MethodGetGlobalSetting, convert.ToKey(key), true)
	if err != nil {
		return model.GlobalSetting{}, err
	}
	return convert.FromGlobalSetting(out)
}

// UpdateProfile applies a partial profile update.
func (c *Client) UpdateProfile(ctx context.Context, userID uuid.UUID, upd model.ProfileUpdate) error {
	_, err := c.invoke(ctx, api.MethodUpdateProfile, convert.ToProfileUpdate(userID, upd), true)
	return err
}

// SetPassword stores a local password for the signed-in user.
func (c *Client) SetPassword(ctx context.Context, password string) error {
	_, err := c.invoke(ctx, api.MethodSetPassword, convert.ToPassword(password), true)
	return err
}

// Ping checks backend liveness through the standard health service.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %s", ErrUnavailable, resp.GetStatus())
	}
	return nil
}
