// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package dispatch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestLoop_RunsInPostingOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewLoop()
	var got []int
	for i := 0; i < 100; i++ {
		l.Post(func() { got = append(got, i) })
	}
	l.Flush()
	l.Close()

	want := make([]int, 100)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, got)
}

func TestLoop_PostFromCallbackDoesNotBlock(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewLoop()
	var order []string
	l.Post(func() {
		order = append(order, "outer")
		l.Post(func() { order = append(order, "inner") })
		order = append(order, "outer-done")
	})
	l.Flush()
	l.Flush()
	l.Close()

	assert.Equal(t, []string{"outer", "outer-done", "inner"}, order)
}

func TestLoop_CloseDrainsAndRejects(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewLoop()
	var mu sync.Mutex
	ran := 0
	for i := 0; i < 10; i++ {
		l.Post(func() {
			mu.Lock()
			ran++
			mu.Unlock()
		})
	}
	l.Close()
	l.Close()

	assert.Equal(t, 10, ran)
	assert.False(t, l.Post(func() {}))
	l.Flush()
}
