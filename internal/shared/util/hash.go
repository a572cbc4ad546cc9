package util

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strings"
)

// NamespaceKey hashes a storage namespace. A CNPJ hashes the same whether
// or not it carries punctuation, so "12.345.678/0001-90" and
// "12345678000190" share a directory.
func NamespaceKey(namespace string) string {
	ns := strings.TrimSpace(namespace)
	if digits := DigitsOnly(ns); len(digits) == 14 && len(digits) >= len(ns)-4 {
		ns = digits
	}
	sum := sha256.Sum256([]byte(ns))
	return hex.EncodeToString(sum[:])
}

// ObjectKey builds "<namespace hash>/<prefix>_<name>". The name must already be sanitized.
func ObjectKey(namespace, prefix, name string) string {
	return path.Join(NamespaceKey(namespace), prefix+"_"+name)
}
