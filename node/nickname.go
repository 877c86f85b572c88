package node

import (
	"strings"

	"github.com/google/uuid"
)

const (
	nicknamePrefix = "guest-"
	maxNicknameLen = 16
)

// GenerateNickname returns a fresh display name for a connection that has
// not picked one yet.
func GenerateNickname() string {
	id := uuid.NewString()
	return nicknamePrefix + id[:8]
}

// ValidNickname reports whether a client-chosen nickname is acceptable.
func ValidNickname(name string) bool {
	if name == "" || len(name) > maxNicknameLen {
		return false
	}
	return !strings.ContainsAny(name, " \t\r\n")
}
