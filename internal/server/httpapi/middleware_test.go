package httpapi

import (
	"fmt"
	"testing"
	"time"

	"github.com/dmitrijs2005/carenest/internal/cachex"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestLimiterPool_StaysBounded(t *testing.T) {
	p := newLimiterPool(0.001, 1)
	p.cache = cachex.NewTTL[string, *rate.Limiter](time.Minute, 3)

	for i := 0; i < 50; i++ {
		assert.True(t, p.allow(fmt.Sprintf("ip:10.0.0.%d", i)))
	}
	assert.LessOrEqual(t, p.cache.Len(), 3)
}

func TestLimiterPool_KeepsBucketPerKey(t *testing.T) {
	p := newLimiterPool(0.001, 1)

	assert.True(t, p.allow("user:alice"))
	assert.False(t, p.allow("user:alice"))
	assert.True(t, p.allow("user:bob"))
	assert.Equal(t, 2, p.cache.Len())
}

func TestLimiterPool_DisabledOrNil(t *testing.T) {
	var nilPool *limiterPool
	assert.True(t, nilPool.allow("x"))

	p := newLimiterPool(0, 1)
	for i := 0; i < 5; i++ {
		assert.True(t, p.allow("x"))
	}
	assert.Zero(t, p.cache.Len())
}
