package exporter

import (
	"context"
	"fmt"
	"net"
	"net/url"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding/gzip"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/hyp3rd/otlpexport/pkg/completion"
	"github.com/hyp3rd/otlpexport/pkg/retry"
)

// GRPCExporter ships OTLP requests over a single shared gRPC connection.
type GRPCExporter struct {
	*base

	conn     *grpc.ClientConn
	method   string
	md       metadata.MD
	callOpts []grpc.CallOption
}

var _ Exporter = (*GRPCExporter)(nil)

// BuildGRPC constructs a gRPC exporter. The connection is created lazily by grpc-go,
// so no network I/O happens here.
func (b *Builder) BuildGRPC() (*GRPCExporter, error) {
	settings, endpoint, tlsConfig, err := b.prepare()
	if err != nil {
		return nil, err
	}

	settings.Protocol = ProtocolGRPC

	creds := insecure.NewCredentials()
	if tlsConfig != nil {
		creds = credentials.NewTLS(tlsConfig)
	}

	dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if settings.RetryPolicy != nil {
		dialOpts = append(dialOpts,
			grpc.WithChainUnaryInterceptor(retry.UnaryClientInterceptor(*settings.RetryPolicy, settings.Logger)),
		)
	}

	target := grpcTarget(endpoint)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, ewrap.Wrapf(ErrInvalidEndpoint, "create grpc client for %s: %v", target, err)
	}

	shared, err := newBase(settings)
	if err != nil {
		_ = conn.Close()

		return nil, err
	}

	var callOpts []grpc.CallOption
	if settings.CompressionEnabled {
		callOpts = append(callOpts, grpc.UseCompressor(gzip.Name))
	}

	return &GRPCExporter{
		base:     shared,
		conn:     conn,
		method:   settings.Signal.GRPCMethod(),
		md:       settings.Headers.metadata(),
		callOpts: callOpts,
	}, nil
}

// Export implements Exporter.
func (e *GRPCExporter) Export(ctx context.Context, payload proto.Message, items int) *completion.Token {
	n := itemCount(items)

	token, ok := e.start(ctx, n)
	if !ok {
		return token
	}

	go func() {
		defer e.life.end()

		callCtx, cancel := callContext(ctx, e.settings.Timeout)
		defer cancel()

		if e.md != nil {
			outgoing, _ := metadata.FromOutgoingContext(callCtx)
			callCtx = metadata.NewOutgoingContext(callCtx, metadata.Join(outgoing, e.md))
		}

		resp := e.settings.Signal.newResponse()

		err := e.conn.Invoke(callCtx, e.method, payload, resp, e.callOpts...)
		if err != nil {
			e.onFailure(ctx, token, n, err)

			return
		}

		e.succeed(ctx, token, n, resp)
	}()

	return token
}

func (e *GRPCExporter) onFailure(ctx context.Context, token *completion.Token, items int64, err error) {
	code := retry.CodeOf(err)

	st, ok := status.FromError(err)
	if !ok {
		st = status.New(code, err.Error())
	}

	e.logFailure(ctx, st)

	e.fail(ctx, token, items, &ExportError{
		Transport: ProtocolGRPC,
		Signal:    e.settings.Signal,
		Outcome:   retry.Classify(code),
		Code:      code,
		Message:   st.Message(),
		Err:       err,
	})
}

func (e *GRPCExporter) logFailure(ctx context.Context, st *status.Status) {
	plural := e.settings.Signal.Plural()
	detail := attribute.String("error_message", st.Message())

	switch st.Code() {
	case codes.Unimplemented:
		e.logger.Error(ctx, st.Err(),
			fmt.Sprintf("failed to export %s: the collector responded with UNIMPLEMENTED; "+
				"it is likely not configured with an otlp receiver for %s in its pipelines", plural, plural),
			detail,
		)
	case codes.Unavailable:
		e.logger.Error(ctx, st.Err(),
			fmt.Sprintf("failed to export %s: the collector is UNAVAILABLE; "+
				"make sure it is running and reachable from this network", plural),
			detail,
		)
	default:
		e.logger.Warn(ctx,
			fmt.Sprintf("failed to export %s: the collector responded with gRPC status code %d (%s)",
				plural, uint32(st.Code()), st.Code()),
			detail,
		)
	}
}

// Shutdown implements Exporter.
func (e *GRPCExporter) Shutdown(ctx context.Context) *completion.Token {
	if e.conn.GetState() == connectivity.Shutdown {
		return completion.Succeeded()
	}

	return e.life.shutdown(ctx, func() error {
		err := e.conn.Close()
		if err != nil {
			return ewrap.Wrap(err, "close grpc connection")
		}

		return nil
	})
}

// grpcTarget returns host:port for endpoint, defaulting the port by scheme.
func grpcTarget(endpoint *url.URL) string {
	port := endpoint.Port()
	if port == "" {
		port = "80"
		if endpoint.Scheme == "https" {
			port = "443"
		}
	}

	return net.JoinHostPort(endpoint.Hostname(), port)
}
