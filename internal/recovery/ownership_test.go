package recovery

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestVerifyOwnership_SameIdentityPasses(t *testing.T) {
	id := uuid.New()
	assert.NoError(t, VerifyOwnership(id, id))
}

func TestVerifyOwnership_MismatchedIdentityRejected(t *testing.T) {
	err := VerifyOwnership(uuid.New(), uuid.New())
	assert.Error(t, err)
}
