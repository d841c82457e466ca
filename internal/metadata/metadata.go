package metadata

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// SchemaVersion identifies the batch metadata document shape
const SchemaVersion = "farm-batch-v1"

// Document is the off-chain batch metadata record. Its canonical JSON
// encoding is what gets fingerprinted, so field order is fixed by the
// struct declaration and Extra keys marshal sorted.
type Document struct {
	Schema       string            `json:"schema"`
	Origin       string            `json:"origin"`
	HarvestTime  uint64            `json:"harvestTime"`
	InspectionID string            `json:"inspectionId"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// NewDocument builds a batch metadata document
func NewDocument(origin string, harvestTime uint64, inspectionID string, extra map[string]string) Document {
	return Document{
		Schema:       SchemaVersion,
		Origin:       origin,
		HarvestTime:  harvestTime,
		InspectionID: inspectionID,
		Extra:        extra,
	}
}

// CanonicalJSON returns the document's canonical encoding
func (d Document) CanonicalJSON() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode metadata document: %w", err)
	}
	return data, nil
}

// Fingerprint returns the keccak256 hash of the document's canonical JSON.
// The hash is written on-chain at mint so the off-chain document can be
// verified later.
func (d Document) Fingerprint() ([32]byte, error) {
	data, err := d.CanonicalJSON()
	if err != nil {
		return [32]byte{}, err
	}

	var hash [32]byte
	copy(hash[:], crypto.Keccak256(data))
	return hash, nil
}

// FingerprintURI hashes a caller-supplied URI string. Used when the caller
// hosts the metadata themselves and only the link is anchored on-chain.
func FingerprintURI(uri string) [32]byte {
	var hash [32]byte
	copy(hash[:], crypto.Keccak256([]byte(uri)))
	return hash
}
