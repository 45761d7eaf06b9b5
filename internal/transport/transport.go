// SPDX-License-Identifier: MIT
// Package transport fans published pipeline frames out to network
// consumers. Transports attach at the render side of the snapshot
// publishers and never touch the audio hot path.
package transport

// Transport defines a generic interface for sending processed data or
// events. Implementations must be safe for concurrent use.
type Transport interface {
	Send(data any) error
	Close() error
}
