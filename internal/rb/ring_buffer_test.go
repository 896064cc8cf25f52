package rb

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_RingBuffer_FIFO(t *testing.T) {
	assert := assert.New(t)

	rb := NewRingBuffer[int](8)

	for i := range 5 {
		assert.NoError(rb.Write(i))
	}
	assert.Equal(5, rb.Len())

	for i := range 5 {
		item, err := rb.Read(t.Context())
		assert.NoError(err)
		assert.Equal(i, item)
	}
	assert.Equal(0, rb.Len())
}

func Test_RingBuffer_GrowAndShrink(t *testing.T) {
	assert := assert.New(t)

	rb := NewRingBuffer[int](8)
	assert.Equal(8, rb.Cap())

	const items = 1000
	for i := range items {
		assert.NoError(rb.Write(i))
	}
	assert.Equal(items, rb.Len())
	assert.Equal(1024, rb.Cap())

	for i := range items {
		item, err := rb.Read(t.Context())
		assert.NoError(err)
		assert.Equal(i, item)
	}

	assert.Equal(8, rb.Cap())
}

func Test_RingBuffer_CapacityRounding(t *testing.T) {
	suite := []struct {
		capacity int
		expected int
	}{
		{0, MinCapacity},
		{-4, MinCapacity},
		{8, 8},
		{9, 16},
		{100, 128},
	}

	for _, tCase := range suite {
		t.Run(fmt.Sprintf("capacity-%d", tCase.capacity), func(t *testing.T) {
			assert.Equal(t, tCase.expected, NewRingBuffer[int](tCase.capacity).Cap())
		})
	}
}

func Test_RingBuffer_Close(t *testing.T) {
	assert := assert.New(t)

	rb := NewRingBuffer[string](8)

	assert.NoError(rb.Write("a"))
	assert.NoError(rb.Write("b"))

	rb.Close()
	rb.Close()
	assert.True(rb.IsClosed())

	assert.ErrorIs(rb.Write("c"), ErrClosed)

	// Items written before closing are still delivered
	item, err := rb.Read(t.Context())
	assert.NoError(err)
	assert.Equal("a", item)

	item, err = rb.Read(t.Context())
	assert.NoError(err)
	assert.Equal("b", item)

	_, err = rb.Read(t.Context())
	assert.ErrorIs(err, ErrClosed)
}

func Test_RingBuffer_ReadWaitsForWrite(t *testing.T) {
	assert := assert.New(t)

	rb := NewRingBuffer[int](8)

	go func() {
		time.Sleep(20 * time.Millisecond)
		assert.NoError(rb.Write(42))
	}()

	item, err := rb.Read(t.Context())
	assert.NoError(err)
	assert.Equal(42, item)
}

func Test_RingBuffer_ReadWakesOnClose(t *testing.T) {
	rb := NewRingBuffer[int](8)

	go func() {
		time.Sleep(20 * time.Millisecond)
		rb.Close()
	}()

	_, err := rb.Read(t.Context())
	assert.ErrorIs(t, err, ErrClosed)
}

func Test_RingBuffer_ReadContext(t *testing.T) {
	rb := NewRingBuffer[int](8)

	ctx, cancelCtx := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancelCtx()

	_, err := rb.Read(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func Test_RingBuffer_Discard(t *testing.T) {
	assert := assert.New(t)

	rb := NewRingBuffer[int](8)
	for i := range 100 {
		assert.NoError(rb.Write(i))
	}

	assert.Equal(100, rb.Discard())
	assert.Equal(0, rb.Len())
	assert.Equal(8, rb.Cap())
}

func Test_RingBuffer_MultipleProducers(t *testing.T) {
	const (
		producers        = 8
		itemsPerProducer = 10_000
	)

	type item struct {
		producer int
		value    int
	}

	assert := assert.New(t)

	rb := NewRingBuffer[item](64)

	wg := &sync.WaitGroup{}
	for p := range producers {
		wg.Go(func() {
			for v := range itemsPerProducer {
				assert.NoError(rb.Write(item{producer: p, value: v}))
			}
		})
	}

	go func() {
		wg.Wait()
		rb.Close()
	}()

	next := make([]int, producers)
	total := 0

	for {
		it, err := rb.Read(t.Context())
		if err != nil {
			assert.ErrorIs(err, ErrClosed)
			break
		}

		// Items of the same producer must come out in order
		assert.Equal(next[it.producer], it.value)
		next[it.producer]++
		total++
	}

	assert.Equal(producers*itemsPerProducer, total)
}
