// Package identity carries the calling identity through a context so that
// registry scans can run with elevated visibility without any process-wide
// security state. Elevation is strictly call-scoped: the elevated identity
// lives only in the derived context handed to the closure, so the caller's
// context is untouched on every exit path, including panics and errors.
package identity

import "context"

// Identity describes who a piece of work runs as.
type Identity struct {
	Name   string
	System bool
}

// Anonymous is the identity of unauthenticated callers, e.g. webhook senders.
func Anonymous() Identity {
	return Identity{Name: "anonymous"}
}

// System is the elevated service identity used for registry scans.
func System() Identity {
	return Identity{Name: "system", System: true}
}

type contextKeyType struct{}

var contextKey contextKeyType

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey, id)
}

// FromContext returns the identity carried by ctx, or Anonymous when none is set.
func FromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(contextKey).(Identity); ok {
		return id
	}
	return Anonymous()
}

// RunAs executes fn under the given identity. The elevation cannot outlive
// the call: fn receives a derived context and the caller keeps its own.
func RunAs(ctx context.Context, id Identity, fn func(ctx context.Context) error) error {
	return fn(WithIdentity(ctx, id))
}
