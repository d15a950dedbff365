package services

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	"github.com/sme-lending/backend/internal/apperr"
	"github.com/sme-lending/backend/internal/repositories"
)

// fromStore converts repository errors into the service error taxonomy.
func fromStore(what, op string, err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return apperr.NotFound(what)
	}
	return apperr.Storage(op, err)
}

// inviteTokenBytes gives 256 bits of entropy.
const inviteTokenBytes = 32

func newInviteToken() (string, error) {
	b := make([]byte, inviteTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func strPtr(s string) *string {
	return &s
}
