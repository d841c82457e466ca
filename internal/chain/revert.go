package chain

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
)

// Revert names recognized from the token contract's custom errors
const (
	RevertInsufficientApproval = "ERC721InsufficientApproval"
	RevertIncorrectOwner       = "ERC721IncorrectOwner"
	RevertNonexistentToken     = "ERC721NonexistentToken"
	RevertInvalidReceiver      = "ERC721InvalidReceiver"
	RevertUnauthorizedAccount  = "OwnableUnauthorizedAccount"
	RevertInvalidOwner         = "OwnableInvalidOwner"
	RevertInvalidTokenID       = "ERC721InvalidTokenId"
	RevertReasonString         = "Error"
)

// revertSignatures maps each recognized custom error to its Solidity
// signature. Selectors are derived from these at startup.
var revertSignatures = map[string]string{
	RevertInsufficientApproval: "ERC721InsufficientApproval(address,uint256)",
	RevertIncorrectOwner:       "ERC721IncorrectOwner(address,uint256,address)",
	RevertNonexistentToken:     "ERC721NonexistentToken(uint256)",
	RevertInvalidReceiver:      "ERC721InvalidReceiver(address)",
	RevertUnauthorizedAccount:  "OwnableUnauthorizedAccount(address)",
	RevertInvalidOwner:         "OwnableInvalidOwner(address)",
	RevertInvalidTokenID:       "ERC721InvalidTokenId(uint256)",
	RevertReasonString:         "Error(string)",
}

var selectorToName = func() map[[4]byte]string {
	m := make(map[[4]byte]string, len(revertSignatures))
	for name, sig := range revertSignatures {
		var selector [4]byte
		copy(selector[:], crypto.Keccak256([]byte(sig))[:4])
		m[selector] = name
	}
	return m
}()

// RevertError is a contract revert decoded from RPC error data
type RevertError struct {
	// Name is one of the Revert* constants
	Name string
	// Reason is the decoded message for Error(string) reverts, empty for
	// custom errors.
	Reason string
	// Data is the raw revert payload
	Data []byte
}

// Error implements error
func (e *RevertError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("execution reverted: %s: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("execution reverted: %s", e.Name)
}

// DecodeRevert inspects an RPC error for revert data and matches it against
// the known custom-error selectors. The second return is false when the
// error carries no decodable revert.
func DecodeRevert(err error) (*RevertError, bool) {
	data, ok := revertData(err)
	if !ok || len(data) < 4 {
		return nil, false
	}

	var selector [4]byte
	copy(selector[:], data[:4])
	name, known := selectorToName[selector]
	if !known {
		return nil, false
	}

	decoded := &RevertError{Name: name, Data: data}
	if name == RevertReasonString {
		decoded.Reason = unpackReasonString(data[4:])
	}
	return decoded, true
}

// revertData extracts the raw revert payload carried by a JSON-RPC error
func revertData(err error) ([]byte, bool) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return nil, false
	}

	switch data := dataErr.ErrorData().(type) {
	case string:
		raw, decodeErr := hex.DecodeString(strings.TrimPrefix(data, "0x"))
		if decodeErr != nil {
			return nil, false
		}
		return raw, true
	case []byte:
		return data, true
	default:
		return nil, false
	}
}

// unpackReasonString decodes the ABI-encoded string argument of an
// Error(string) revert. Layout: 32-byte offset, 32-byte length, bytes.
func unpackReasonString(payload []byte) string {
	if len(payload) < 64 {
		return ""
	}
	// the length word is attacker-controlled; compare as uint64 so a huge
	// value cannot wrap the slice bounds
	length := binary.BigEndian.Uint64(payload[56:64])
	if length > uint64(len(payload)-64) {
		return ""
	}
	return string(payload[64 : 64+length])
}
