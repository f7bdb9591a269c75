package exporter

// DelegatingBuilder is implemented by signal-specific builders that wrap a transport
// Builder. Callers use it to reach the shared transport settings without knowing the
// concrete wrapper type.
type DelegatingBuilder interface {
	TransportBuilder() *Builder
}

// Configure applies fn to the transport builder behind b and returns b.
func Configure[T DelegatingBuilder](b T, fn func(*Builder)) T {
	fn(b.TransportBuilder())

	return b
}
