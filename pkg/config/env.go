package config

import (
	"context"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/hyp3rd/ewrap"
)

// EnvLoader reads overrides from variables such as OTLPEXPORT_EXPORTER__ENDPOINT, where
// "__" separates nesting levels.
type EnvLoader struct {
	Prefix string
}

// Load implements Loader.
func (el EnvLoader) Load(ctx context.Context) (map[string]any, error) {
	prefix := el.Prefix
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}

	result := map[string]any{}

	for _, kv := range os.Environ() {
		if ctx.Err() != nil {
			return nil, ewrap.Wrap(ctx.Err(), "read environment")
		}

		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}

		path := envKeyToPath(strings.TrimPrefix(name, prefix))
		if len(path) == 0 {
			continue
		}

		if isListKey(path) {
			setNested(result, path, splitList(value))

			continue
		}

		setNested(result, path, value)
	}

	if len(result) == 0 {
		return nil, errSkipLoader
	}

	return result, nil
}

// OTelEnvLoader maps the standard OTEL_EXPORTER_OTLP_* variables onto the exporter section.
// Lookup defaults to os.LookupEnv.
type OTelEnvLoader struct {
	Lookup func(key string) (string, bool)
}

// Load implements Loader.
func (ol OTelEnvLoader) Load(_ context.Context) (map[string]any, error) {
	lookup := ol.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	exporter := map[string]any{}

	if v, ok := lookup("OTEL_EXPORTER_OTLP_ENDPOINT"); ok && v != "" {
		exporter["endpoint"] = v
	}

	if v, ok := lookup("OTEL_EXPORTER_OTLP_PROTOCOL"); ok && v != "" {
		exporter["protocol"] = otelProtocol(v)
	}

	if v, ok := lookup("OTEL_EXPORTER_OTLP_COMPRESSION"); ok && v != "" {
		exporter["compression"] = v
	}

	if v, ok := lookup("OTEL_EXPORTER_OTLP_TIMEOUT"); ok && v != "" {
		ms, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, invalidConfigError("OTEL_EXPORTER_OTLP_TIMEOUT must be milliseconds, got %q", v)
		}

		exporter["timeout"] = strconv.FormatInt(ms, 10) + "ms"
	}

	if v, ok := lookup("OTEL_EXPORTER_OTLP_HEADERS"); ok && v != "" {
		headers, err := otelHeaders(v)
		if err != nil {
			return nil, err
		}

		exporter["headers"] = headers
	}

	if v, ok := lookup("OTEL_EXPORTER_OTLP_CERTIFICATE"); ok && v != "" {
		exporter["tls"] = map[string]any{"ca_file": v}
	}

	if len(exporter) == 0 {
		return nil, errSkipLoader
	}

	return map[string]any{"exporter": exporter}, nil
}

func otelProtocol(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "http/protobuf":
		return "http"
	default:
		return raw
	}
}

// otelHeaders decodes the comma separated, percent-encoded key=value list.
func otelHeaders(raw string) ([]string, error) {
	entries := splitList(raw)

	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, invalidConfigError("malformed OTEL_EXPORTER_OTLP_HEADERS entry %q", entry)
		}

		decoded, err := url.QueryUnescape(strings.TrimSpace(value))
		if err != nil {
			return nil, invalidConfigError("malformed OTEL_EXPORTER_OTLP_HEADERS value for %q", key)
		}

		out = append(out, strings.TrimSpace(key)+"="+decoded)
	}

	return out, nil
}

func envKeyToPath(key string) []string {
	key = strings.ReplaceAll(strings.ToLower(key), "-", "_")

	var path []string

	for seg := range strings.SplitSeq(key, "__") {
		if seg != "" {
			path = append(path, seg)
		}
	}

	return path
}

func isListKey(path []string) bool {
	switch strings.Join(path, ".") {
	case "exporter.signals", "exporter.headers":
		return true
	default:
		return false
	}
}

func splitList(raw string) []string {
	var out []string

	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}

func setNested(root map[string]any, path []string, value any) {
	cursor := root

	for _, segment := range path[:len(path)-1] {
		next, ok := cursor[segment].(map[string]any)
		if !ok {
			next = map[string]any{}
			cursor[segment] = next
		}

		cursor = next
	}

	cursor[path[len(path)-1]] = value
}
