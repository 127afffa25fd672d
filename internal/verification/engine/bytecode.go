package engine

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultMetadataStripMax bounds the declared CBOR trailer length. Declared
// lengths above it are treated as implausible and the strip is skipped.
const DefaultMetadataStripMax = 200

// Comparison is the output of a pure bytecode comparison: hash equality
// plus both sides' lengths and hashes for diagnostics.
type Comparison struct {
	Matches        bool
	OnChainLength  int
	CompiledLength int
	OnChainHash    string
	CompiledHash   string
}

// StripMetadata removes the Solidity CBOR metadata trailer from runtime
// bytecode given as a hex string. The last two bytes declare the trailer
// length in bytes; the strip removes the trailer plus those two bytes.
// Implausible declared lengths (non-positive, above maxLen, or consuming
// the whole string) leave the input unchanged, as does input shorter than
// 4 hex characters. Stripping is idempotent in practice: a stripped
// string's trailing bytes no longer decode to a plausible length, and a
// second strip that would misfire is bounded by the same sanity checks.
func StripMetadata(bytecode string, maxLen int) string {
	raw := strings.TrimPrefix(bytecode, "0x")
	if len(raw) < 4 {
		return bytecode
	}
	lenBytes, err := strconv.ParseInt(raw[len(raw)-4:], 16, 32)
	if err != nil || lenBytes <= 0 || int(lenBytes) > maxLen {
		return bytecode
	}
	stripChars := (int(lenBytes) + 2) * 2
	if len(raw) <= stripChars {
		return bytecode
	}
	return "0x" + raw[:len(raw)-stripChars]
}

// CompareBytecode compares two hex-encoded byte strings by Keccak-256 hash
// without stripping metadata. Inputs may or may not carry a 0x prefix.
func CompareBytecode(onChain, compiled string) Comparison {
	onChainHex := normalizeHex(onChain)
	compiledHex := normalizeHex(compiled)

	onChainHash := hashHex(onChainHex)
	compiledHash := hashHex(compiledHex)

	return Comparison{
		Matches:        onChainHash == compiledHash,
		OnChainLength:  len(onChainHex),
		CompiledLength: len(compiledHex),
		OnChainHash:    onChainHash,
		CompiledHash:   compiledHash,
	}
}

// CompareRuntimeBytecode strips the metadata trailer from both sides before
// hashing. Two builds of the same source differ only in the trailer (it
// embeds build provenance), so comparing raw bytes would systematically
// report false mismatches.
func CompareRuntimeBytecode(onChain, compiled string, stripMax int) Comparison {
	if stripMax <= 0 {
		stripMax = DefaultMetadataStripMax
	}
	onChainStripped := StripMetadata(normalizeHex(onChain), stripMax)
	compiledStripped := StripMetadata(normalizeHex(compiled), stripMax)

	onChainHash := hashHex(onChainStripped)
	compiledHash := hashHex(compiledStripped)

	return Comparison{
		Matches:        onChainHash == compiledHash,
		OnChainLength:  len(onChainStripped),
		CompiledLength: len(compiledStripped),
		OnChainHash:    onChainHash,
		CompiledHash:   compiledHash,
	}
}

// HashBytecode returns the Keccak-256 hash of unstripped bytecode. This is
// what gets persisted on the deployment record; the stripped comparison
// hashes stay internal to the engine.
func HashBytecode(bytecode string) string {
	return hashHex(normalizeHex(bytecode))
}

func normalizeHex(s string) string {
	if strings.HasPrefix(s, "0x") {
		return s
	}
	return "0x" + s
}

// hashHex keccak-hashes the bytes a hex string encodes. Odd-length or
// malformed hex is hashed as its raw string bytes so the comparison still
// produces a deterministic answer instead of an error.
func hashHex(s string) string {
	raw := strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(raw)
	if err != nil {
		b = []byte(raw)
	}
	return crypto.Keccak256Hash(b).Hex()
}
