// Package xid generates local record identities and client idempotency keys.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// New returns a local identity such as "itm-lz3k9q1c-4f1a2b3c4d5e". The time
// component keeps ids roughly sortable by creation.
func New(prefix string) string {
	stamp := strconv.FormatInt(time.Now().UnixNano(), 36)
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return prefix + "-" + stamp
	}
	return prefix + "-" + stamp + "-" + hex.EncodeToString(buf)
}

// ClientKey returns the idempotency key a record carries to the remote store.
// It is fixed at local creation and never regenerated.
func ClientKey() string {
	return uuid.NewString()
}
