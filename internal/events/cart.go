// Package events contains the events the storefront publishes about its cart.
package events

import (
	"encoding/json"
	"time"

	"github.com/abgdnv/storefront/pkg/messaging"
)

const (
	// CartSyncedSubject prefixes the subjects of CartSynced events, the op is appended.
	CartSyncedSubject = "cart.synced"
	// CartSyncedWildcard matches every CartSynced subject.
	CartSyncedWildcard = CartSyncedSubject + ".>"
)

var _ messaging.Event = CartSynced{}

// CartSynced reports the outcome of one remote cart operation.
type CartSynced struct {
	Identity  string    `json:"identity"`
	Op        string    `json:"op"`
	ItemID    string    `json:"item_id,omitempty"`
	Quantity  int       `json:"quantity,omitempty"`
	Succeeded bool      `json:"succeeded"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

func (e CartSynced) Subject() string {
	return CartSyncedSubject + "." + e.Op
}

func (e CartSynced) Payload() ([]byte, error) {
	return json.Marshal(e)
}
