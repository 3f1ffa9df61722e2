package transfer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// CanonicalBytes returns the deterministic byte representation the signature
// covers: JSON with struct fields in declaration order, map keys sorted, and
// the signature field excluded. Identical manifests always produce identical
// bytes, so repeated exports of an unchanged store are byte-identical.
func CanonicalBytes(m *Manifest) ([]byte, error) {
	unsigned := *m
	unsigned.Signature = ""
	data, err := json.Marshal(&unsigned)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize manifest: %w", err)
	}
	return data, nil
}

// Sign computes and attaches the SHA-256 signature over the canonical bytes.
func Sign(m *Manifest) error {
	data, err := CanonicalBytes(m)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(data)
	m.Signature = hex.EncodeToString(sum[:])
	return nil
}

// Verify recomputes the signature over the received manifest and compares it
// to the attached one. A mismatch returns a SignatureMismatchError carrying
// both values for diagnosis.
func Verify(m *Manifest) error {
	data, err := CanonicalBytes(m)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(data)
	computed := hex.EncodeToString(sum[:])
	if computed != m.Signature {
		return &SignatureMismatchError{Expected: m.Signature, Computed: computed}
	}
	return nil
}

// WriteManifest writes the manifest as a single JSON file, atomically.
func WriteManifest(m *Manifest, path string) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace manifest: %w", err)
	}
	return nil
}

// ReadManifest parses a manifest file. Structural corruption is fatal and
// reported with the decoder's byte offset where available.
func ReadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return ParseManifest(raw)
}

// ParseManifest decodes manifest bytes.
func ParseManifest(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, fmt.Errorf("%w: at byte offset %d: %v", ErrCorruptManifest, syntaxErr.Offset, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrCorruptManifest, err)
	}
	if !compatibleVersion(m.Version) {
		return nil, fmt.Errorf("%w: got %q, understand major %q", ErrUnsupportedVersion, m.Version, majorOf(ManifestVersion))
	}
	return &m, nil
}

// compatibleVersion accepts any manifest sharing our major version.
func compatibleVersion(version string) bool {
	if version == "" {
		return false
	}
	return majorOf(version) == majorOf(ManifestVersion)
}

func majorOf(version string) string {
	if i := strings.IndexByte(version, '.'); i >= 0 {
		return version[:i]
	}
	return version
}
