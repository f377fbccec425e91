package core

import (
	"fmt"

	"github.com/olyamironova/peer-exchange/internal/domain"
)

// DuplicatePolicy decides which block orders the duplicate guard drops.
type DuplicatePolicy string

const (
	// DuplicateByClient drops every block order of a client that already
	// appears as buyer or seller in the ledger. Once a client has traded,
	// none of its later block orders execute.
	DuplicateByClient DuplicatePolicy = "client"
	DuplicateOff      DuplicatePolicy = "off"
)

func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch p := DuplicatePolicy(s); p {
	case DuplicateByClient, DuplicateOff:
		return p, nil
	}
	return "", fmt.Errorf("unknown duplicate policy %q", s)
}

// isDuplicate consults the committed ledger only; trades of the block being
// executed are not visible to it.
func (e *Engine) isDuplicate(o *domain.Order) bool {
	switch e.policy {
	case DuplicateByClient:
		return e.ledger.HasClient(o.ClientID)
	}
	return false
}
