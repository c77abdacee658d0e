package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

// fileExt is the suffix for L2 entry files.
const fileExt = ".cache"

// Hasher maps logical cache keys to fixed-length storage addresses and
// builds the tier-specific locations derived from them. Addresses are
// the lowercase hex SHA-256 of the logical key, so they are uniform in
// length and safe for filenames and remote keys regardless of what the
// caller uses as a key. The mapping is one-way: the logical key cannot
// be recovered from an address.
type Hasher struct {
	namespace string
}

// NewHasher creates a hasher scoped to one namespace. The namespace is
// folded into file paths and remote keys, not into the address itself,
// so instances with different namespaces never collide in storage.
func NewHasher(namespace string) *Hasher {
	return &Hasher{namespace: namespace}
}

// Namespace returns the namespace this hasher is scoped to.
func (h *Hasher) Namespace() string {
	return h.namespace
}

// Address returns the storage address for a logical key.
func (h *Hasher) Address(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// FileRelPath returns the entry file path for a key, relative to the
// file tier's base directory.
func (h *Hasher) FileRelPath(key string) string {
	return filepath.Join(h.namespace, h.Address(key)+fileExt)
}

// RemoteKey returns the remote store key for a logical key under the
// given deployment prefix.
func (h *Hasher) RemoteKey(prefix, key string) string {
	return prefix + ":" + h.namespace + ":" + h.Address(key)
}

// RemotePrefix returns the glob pattern matching every remote key this
// hasher can produce under the given deployment prefix.
func (h *Hasher) RemotePrefix(prefix string) string {
	return prefix + ":" + h.namespace + ":*"
}

// AddressFromRemoteKey strips the deployment prefix and namespace from
// a remote key, returning the bare storage address. The second return
// is false when the key does not belong to this hasher's namespace.
func (h *Hasher) AddressFromRemoteKey(prefix, remoteKey string) (string, bool) {
	want := prefix + ":" + h.namespace + ":"
	if !strings.HasPrefix(remoteKey, want) {
		return "", false
	}
	return strings.TrimPrefix(remoteKey, want), true
}
