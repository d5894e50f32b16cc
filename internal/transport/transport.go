// Package transport declares the contract every session transport adapter
// satisfies: open a client channel, forward bytes both ways, close on
// disconnect.
package transport

import "context"

// Adapter listens for client connections and bridges them to session
// output/input until ctx is canceled, at which point it stops accepting new
// connections and returns; it does not wait for connections already being
// served to finish.
type Adapter interface {
	Start(ctx context.Context) error
}
