package port

import "context"

// Peer is another node of the network that can be asked to run its checkpoint.
type Peer interface {
	Checkpoint(ctx context.Context) error
	Addr() string
}
