// Package propmeta defines PropertyMetadata, shared by the component
// model, the event payloads that carry it, and the store that
// persists it.
package propmeta

import "time"

// Metadata describes a single property on a component. A Metadata
// record exists for every property ever set on a component, per
// spec section 3's invariant.
type Metadata struct {
	IsEditable   bool
	IsVisible    bool
	DisplayName  string
	Description  string
	IsReadOnly   bool
	LastModified time.Time
	LastError    string
}

// Clone returns a value copy, safe to hand to callers outside the lock
// that guards the owning component's metadata map.
func (m Metadata) Clone() Metadata {
	return m
}
