package goplus

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroupRecoversPanic(t *testing.T) {
	var g Group
	var ran atomic.Int32

	g.Go(func() { panic("boom") })
	g.Go(func() { ran.Add(1) })
	g.Wait()

	assert.Equal(t, int32(1), ran.Load())
	assert.Equal(t, int64(0), g.Running())
}
