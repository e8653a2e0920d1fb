// Package fingerprint computes the two digests the duplicate registry keys
// on: a cryptographic hash of the raw source file and a cheap semantic
// fingerprint of the extracted content.
package fingerprint

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/Neuropilotai/inventory-backend/internal/domain"
)

// fingerprintSampleSize bounds how many line items feed the content
// fingerprint so it stays stable under trailing-item extraction noise.
const fingerprintSampleSize = 3

// FileHash returns the SHA-256 hex digest of the raw source bytes. It
// catches byte-identical re-scans even under a different filename.
func FileHash(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FileHashBytes hashes an in-memory file.
func FileHashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ContentFingerprint returns an MD5 hex digest over a normalized projection
// of the parsed content: identifier, date, total, item count, and the first
// three items' (code, qty, price). Two extractions of the same invoice
// produce the same fingerprint even when the file bytes differ.
func ContentFingerprint(inv domain.ParsedInvoice) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(strings.TrimSpace(inv.Identifier)))
	b.WriteByte('|')
	b.WriteString(inv.Date.Format("2006-01-02"))
	b.WriteByte('|')
	b.WriteString(inv.TotalAmount.StringFixed(2))
	b.WriteByte('|')
	fmt.Fprintf(&b, "%d", len(inv.Items))

	sample := inv.Items
	if len(sample) > fingerprintSampleSize {
		sample = sample[:fingerprintSampleSize]
	}
	for _, item := range sample {
		b.WriteByte('|')
		b.WriteString(strings.ToUpper(strings.TrimSpace(item.Code)))
		b.WriteByte(':')
		b.WriteString(item.Quantity.String())
		b.WriteByte(':')
		b.WriteString(item.UnitPrice.StringFixed(2))
	}

	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
