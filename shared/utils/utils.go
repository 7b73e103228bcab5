package utils

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// GenerateID returns "<prefix>-<ulid>". IDs from one process sort by creation
// time.
func GenerateID(prefix string) string {
	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	entropyMu.Unlock()

	return fmt.Sprintf("%s-%s", prefix, strings.ToLower(id.String()))
}

// ValidateAccountID validates the account id format
func ValidateAccountID(accountID string) bool {
	return hasULIDSuffix(accountID, "acc-")
}

// ValidateTransferID validates the transfer id format
func ValidateTransferID(transferID string) bool {
	return hasULIDSuffix(transferID, "trf-")
}

func hasULIDSuffix(id, prefix string) bool {
	if !strings.HasPrefix(id, prefix) {
		return false
	}
	_, err := ulid.ParseStrict(strings.ToUpper(strings.TrimPrefix(id, prefix)))
	return err == nil
}
