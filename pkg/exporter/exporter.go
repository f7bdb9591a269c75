package exporter

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/proto"

	"github.com/hyp3rd/otlpexport/pkg/completion"
	"github.com/hyp3rd/otlpexport/pkg/exportmetrics"
	"github.com/hyp3rd/otlpexport/pkg/logging"
	"github.com/hyp3rd/otlpexport/pkg/retry"
)

// ErrExporterShutdown is reported by exports issued after Shutdown.
var ErrExporterShutdown = ewrap.New("exporter is shut down")

// Exporter ships pre-serialized OTLP requests to a collector.
type Exporter interface {
	// Export sends payload, which carries items telemetry items. It returns at once;
	// the token resolves when the call settles. Cancelling ctx does not cancel the call.
	Export(ctx context.Context, payload proto.Message, items int) *completion.Token
	// Shutdown lets in-flight calls finish, bounded by ctx, then releases the connection.
	// Calling it on a terminated exporter returns an already-succeeded token.
	Shutdown(ctx context.Context) *completion.Token
	// Settings returns a copy of the settings the exporter was built with.
	Settings() Settings
	// Status returns the exporter's running totals.
	Status() exportmetrics.Status
}

// ExportError describes a failed export. It is the error carried by a failed token.
type ExportError struct {
	Transport  Protocol
	Signal     Signal
	Outcome    retry.Outcome
	Code       codes.Code
	HTTPStatus int
	Message    string
	Err        error
}

// Error implements error.
func (e *ExportError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("export %s over %s failed with HTTP status %d: %s",
			e.Signal.Plural(), e.Transport, e.HTTPStatus, e.Message)
	}

	return fmt.Sprintf("export %s over %s failed with code %s: %s",
		e.Signal.Plural(), e.Transport, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ExportError) Unwrap() error {
	return e.Err
}

// lifecycle tracks in-flight calls so Shutdown can drain them before closing.
type lifecycle struct {
	mu         sync.RWMutex
	closed     bool
	inflight   sync.WaitGroup
	once       sync.Once
	token      *completion.Token
	terminated atomic.Bool
}

// begin registers a call. It reports false once shutdown has started.
func (l *lifecycle) begin() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return false
	}

	l.inflight.Add(1)

	return true
}

func (l *lifecycle) end() {
	l.inflight.Done()
}

func (l *lifecycle) shutdown(ctx context.Context, release func() error) *completion.Token {
	if l.terminated.Load() {
		return completion.Succeeded()
	}

	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()

		token := completion.New()
		l.token = token

		drained := make(chan struct{})

		go func() {
			l.inflight.Wait()
			close(drained)
		}()

		go func() {
			select {
			case <-drained:
			case <-ctx.Done():
			}

			err := release()
			l.terminated.Store(true)

			if err != nil {
				token.Fail(err)

				return
			}

			token.Succeed()
		}()
	})

	return l.token
}

// callContext detaches ctx from cancellation and applies the per-call deadline.
func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx = context.WithoutCancel(ctx)
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}

	return context.WithCancel(ctx)
}

// base holds what both transports share.
type base struct {
	settings Settings
	recorder *exportmetrics.Recorder
	logger   logging.Adapter
	life     lifecycle
}

func newBase(settings Settings) (*base, error) {
	recorder, err := exportmetrics.NewRecorder(settings.MeterProvider, string(settings.Signal), string(settings.Protocol))
	if err != nil {
		return nil, err
	}

	logger := logging.With(settings.Logger,
		attribute.String("otlp.signal", string(settings.Signal)),
		attribute.String("otlp.transport", string(settings.Protocol)),
	)

	return &base{
		settings: settings,
		recorder: recorder,
		logger:   logger,
	}, nil
}

// Settings implements Exporter.
func (b *base) Settings() Settings {
	return b.settings.clone()
}

// Status implements Exporter.
func (b *base) Status() exportmetrics.Status {
	status := b.recorder.Status()
	status.Endpoint = b.settings.Endpoint

	return status
}

// start records items as seen and registers the call. When the exporter is already
// shut down the returned token has failed and ok is false.
func (b *base) start(ctx context.Context, items int64) (*completion.Token, bool) {
	b.recorder.AddSeen(ctx, items)

	token := completion.New()
	if b.life.begin() {
		return token, true
	}

	err := &ExportError{
		Transport: b.settings.Protocol,
		Signal:    b.settings.Signal,
		Outcome:   retry.Fatal,
		Code:      codes.Canceled,
		Message:   ErrExporterShutdown.Error(),
		Err:       ErrExporterShutdown,
	}
	b.recorder.AddFailed(ctx, items)
	b.logger.Debug(ctx, "export after shutdown ignored")
	token.Fail(err)

	return token, false
}

func (b *base) succeed(ctx context.Context, token *completion.Token, items int64, resp proto.Message) {
	if rejected, msg := partialSuccess(resp); rejected > 0 || msg != "" {
		b.logger.Warn(ctx, fmt.Sprintf("partial success exporting %s", b.settings.Signal.Plural()),
			attribute.Int64("rejected", rejected),
			attribute.String("error_message", msg),
		)
	}

	b.recorder.AddSuccess(ctx, items)
	token.Succeed()
}

func (b *base) fail(ctx context.Context, token *completion.Token, items int64, err *ExportError) {
	b.recorder.AddFailed(ctx, items)
	b.recorder.RecordError(err)

	b.logger.Debug(ctx, fmt.Sprintf("failed to export %s, details follow", b.settings.Signal.Plural()),
		attribute.String("error", err.Err.Error()),
	)

	token.Fail(err)
}

func itemCount(items int) int64 {
	if items < 0 {
		return 0
	}

	return int64(items)
}
