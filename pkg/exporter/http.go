package exporter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hyp3rd/ewrap"
	"github.com/klauspost/compress/gzip"
	"go.opentelemetry.io/otel/attribute"
	rpcstatus "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/hyp3rd/otlpexport/pkg/completion"
	"github.com/hyp3rd/otlpexport/pkg/logging"
	"github.com/hyp3rd/otlpexport/pkg/retry"
)

const (
	contentTypeProtobuf = "application/x-protobuf"
	maxResponseBody     = 4 << 20

	httpMaxIdleConns        = 100
	httpMaxIdleConnsPerHost = 10
	httpIdleConnTimeout     = 90 * time.Second
	httpDialTimeout         = 10 * time.Second
	httpTLSHandshakeTimeout = 10 * time.Second
)

// HTTPExporter ships OTLP requests as protobuf bodies over HTTP.
type HTTPExporter struct {
	*base

	client    *http.Client
	transport *http.Transport
}

var _ Exporter = (*HTTPExporter)(nil)

// BuildHTTP constructs an HTTP exporter. No request is made until Export.
func (b *Builder) BuildHTTP() (*HTTPExporter, error) {
	settings, _, tlsConfig, err := b.prepare()
	if err != nil {
		return nil, err
	}

	settings.Protocol = ProtocolHTTP

	transport := newHTTPTransport()
	if tlsConfig != nil {
		transport.TLSClientConfig = tlsConfig
	}

	client := &http.Client{Transport: transport}
	if settings.RetryPolicy != nil {
		client = retry.NewHTTPClient(client, *settings.RetryPolicy, logging.NewLeveledLogger(settings.Logger))
	}

	shared, err := newBase(settings)
	if err != nil {
		return nil, err
	}

	return &HTTPExporter{
		base:      shared,
		client:    client,
		transport: transport,
	}, nil
}

func newHTTPTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   httpDialTimeout,
		KeepAlive: 30 * time.Second,
	}

	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          httpMaxIdleConns,
		MaxIdleConnsPerHost:   httpMaxIdleConnsPerHost,
		IdleConnTimeout:       httpIdleConnTimeout,
		TLSHandshakeTimeout:   httpTLSHandshakeTimeout,
		ExpectContinueTimeout: time.Second,
	}
}

// Export implements Exporter.
func (e *HTTPExporter) Export(ctx context.Context, payload proto.Message, items int) *completion.Token {
	n := itemCount(items)

	token, ok := e.start(ctx, n)
	if !ok {
		return token
	}

	go func() {
		defer e.life.end()

		callCtx, cancel := callContext(ctx, e.settings.Timeout)
		defer cancel()

		e.send(callCtx, ctx, token, n, payload)
	}()

	return token
}

func (e *HTTPExporter) send(callCtx, ctx context.Context, token *completion.Token, items int64, payload proto.Message) {
	req, err := e.newRequest(callCtx, payload)
	if err != nil {
		e.fail(ctx, token, items, &ExportError{
			Transport: ProtocolHTTP,
			Signal:    e.settings.Signal,
			Outcome:   retry.Fatal,
			Code:      retry.CodeOf(err),
			Message:   err.Error(),
			Err:       err,
		})

		return
	}

	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Error(ctx, err,
			fmt.Sprintf("failed to export %s: the request could not be executed", e.settings.Signal.Plural()),
			attribute.String("error_message", err.Error()),
		)

		e.fail(ctx, token, items, &ExportError{
			Transport: ProtocolHTTP,
			Signal:    e.settings.Signal,
			Outcome:   retry.ClassifyHTTP(nil, err),
			Code:      retry.CodeOfTransportError(err),
			Message:   err.Error(),
			Err:       err,
		})

		return
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		body = nil
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		out := e.settings.Signal.newResponse()
		if len(body) > 0 {
			err = proto.Unmarshal(body, out)
			if err != nil {
				e.logger.Debug(ctx, "collector response could not be decoded", attribute.String("error", err.Error()))
			}
		}

		e.succeed(ctx, token, items, out)

		return
	}

	message := statusMessage(body)

	e.logger.Warn(ctx,
		fmt.Sprintf("failed to export %s: the collector responded with HTTP status code %d",
			e.settings.Signal.Plural(), resp.StatusCode),
		attribute.String("error_message", message),
	)

	code := retry.CodeFromHTTPStatus(resp.StatusCode)
	e.fail(ctx, token, items, &ExportError{
		Transport:  ProtocolHTTP,
		Signal:     e.settings.Signal,
		Outcome:    retry.Classify(code),
		Code:       code,
		HTTPStatus: resp.StatusCode,
		Message:    message,
		Err:        ewrap.Newf("unexpected HTTP status %d: %s", resp.StatusCode, message),
	})
}

func (e *HTTPExporter) newRequest(ctx context.Context, payload proto.Message) (*http.Request, error) {
	body, err := proto.Marshal(payload)
	if err != nil {
		return nil, ewrap.Wrap(err, "marshal export request")
	}

	if e.settings.CompressionEnabled {
		body, err = gzipBytes(body)
		if err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.settings.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, ewrap.Wrap(err, "create export request")
	}

	e.settings.Headers.applyTo(req.Header)
	req.Header.Set("Content-Type", contentTypeProtobuf)

	if e.settings.CompressionEnabled {
		req.Header.Set("Content-Encoding", "gzip")
	}

	return req, nil
}

func gzipBytes(raw []byte) ([]byte, error) {
	var buf bytes.Buffer

	zw := gzip.NewWriter(&buf)

	_, err := zw.Write(raw)
	if err != nil {
		return nil, ewrap.Wrap(err, "gzip export request")
	}

	err = zw.Close()
	if err != nil {
		return nil, ewrap.Wrap(err, "gzip export request")
	}

	return buf.Bytes(), nil
}

// statusMessage extracts the google.rpc.Status message from an error body, falling
// back to the raw body text.
func statusMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var st rpcstatus.Status

	err := proto.Unmarshal(body, &st)
	if err == nil && st.GetMessage() != "" {
		return st.GetMessage()
	}

	return strings.TrimSpace(string(body))
}

// Shutdown implements Exporter.
func (e *HTTPExporter) Shutdown(ctx context.Context) *completion.Token {
	return e.life.shutdown(ctx, func() error {
		e.transport.CloseIdleConnections()

		return nil
	})
}
