package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew_NilClientSelectsMemoryLimiter(t *testing.T) {
	l := New(nil, Rule{Prefix: "p", Limit: 10, Window: time.Second}, nil, false)
	_, ok := l.(*MemoryLimiter)
	assert.True(t, ok)
	_ = l.Close()
}
