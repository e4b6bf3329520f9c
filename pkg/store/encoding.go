package store

import (
	"encoding/json"
	"time"

	"github.com/gardenfabric/core/pkg/propmeta"
	"github.com/gardenfabric/core/pkg/valuetype"
)

// document is the on-disk/on-bucket shape shared by every Store
// backend: a properties map plus a parallel metadata map, per the
// spec's store format.
type document struct {
	Properties map[string]valuetype.Value `json:"properties"`
	Metadata   map[string]metadataWire    `json:"metadata,omitempty"`
}

// metadataWire is propmeta.Metadata with JSON tags; kept separate so
// the in-memory Metadata type carries no encoding concerns.
type metadataWire struct {
	IsEditable   bool      `json:"isEditable"`
	IsVisible    bool      `json:"isVisible"`
	DisplayName  string    `json:"displayName,omitempty"`
	Description  string    `json:"description,omitempty"`
	IsReadOnly   bool      `json:"isReadOnly"`
	LastModified time.Time `json:"lastModified"`
	LastError    string    `json:"lastError,omitempty"`
}

func toWireMetadata(md propmeta.Metadata) metadataWire {
	return metadataWire(md)
}

func fromWireMetadata(w metadataWire) propmeta.Metadata {
	return propmeta.Metadata(w)
}

// EncodeDocument serializes properties and metadata into the shared
// wire document used by every Store backend.
func EncodeDocument(properties map[string]valuetype.Value, metadata map[string]propmeta.Metadata) ([]byte, error) {
	doc := document{
		Properties: properties,
		Metadata:   make(map[string]metadataWire, len(metadata)),
	}
	for k, v := range metadata {
		doc.Metadata[k] = toWireMetadata(v)
	}
	return json.Marshal(doc)
}

// DecodeDocument parses the shared wire document back into property
// and metadata maps. An empty/absent input decodes to empty maps.
func DecodeDocument(data []byte) (map[string]valuetype.Value, map[string]propmeta.Metadata, error) {
	if len(data) == 0 {
		return map[string]valuetype.Value{}, map[string]propmeta.Metadata{}, nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, err
	}
	props := doc.Properties
	if props == nil {
		props = map[string]valuetype.Value{}
	}
	metadata := make(map[string]propmeta.Metadata, len(doc.Metadata))
	for k, v := range doc.Metadata {
		metadata[k] = fromWireMetadata(v)
	}
	return props, metadata, nil
}
