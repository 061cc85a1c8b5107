package bloom

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_Sizing(t *testing.T) {
	// n=1000, p=0.01: m = ceil(-1000*ln(0.01)/ln(2)^2) = 9586, k = round(m/n*ln2) = 7.
	f := New(1000, 0.01)
	assert.Equal(t, uint64(9586), f.Bits())
	assert.Equal(t, 7, f.Hashes())
}

func TestNew_ClampsDegenerateArguments(t *testing.T) {
	f := New(0, 0)
	assert.GreaterOrEqual(t, f.Bits(), uint64(64))
	assert.GreaterOrEqual(t, f.Hashes(), 1)

	f = New(-10, 2.5)
	assert.GreaterOrEqual(t, f.Bits(), uint64(64))
	assert.GreaterOrEqual(t, f.Hashes(), 1)
}

func TestEmptyFilter_AlwaysNegative(t *testing.T) {
	f := New(1000, 0.01)
	for i := 0; i < 100; i++ {
		assert.False(t, f.Test([]byte(fmt.Sprintf("item-%d", i))))
	}
}

func TestNoFalseNegatives(t *testing.T) {
	const n = 10_000
	f := New(n, 0.01)

	for i := 0; i < n; i++ {
		f.Add([]byte(fmt.Sprintf("event-id-%d", i)))
	}
	for i := 0; i < n; i++ {
		assert.True(t, f.Test([]byte(fmt.Sprintf("event-id-%d", i))),
			"added item %d must test positive", i)
	}
}

func TestFalsePositiveRate_NearTarget(t *testing.T) {
	const (
		n      = 10_000
		target = 0.01
	)
	f := New(n, target)

	for i := 0; i < n; i++ {
		f.Add([]byte(fmt.Sprintf("present-%d", i)))
	}

	falsePositives := 0
	const probes = 10_000
	for i := 0; i < probes; i++ {
		if f.Test([]byte(fmt.Sprintf("absent-%d", i))) {
			falsePositives++
		}
	}

	// Double hashing costs a small constant factor over ideal hashing;
	// 3x the target still catches sizing regressions.
	rate := float64(falsePositives) / probes
	assert.Less(t, rate, 3*target, "false positive rate %.4f", rate)
}

func TestConcurrentAddTest(t *testing.T) {
	f := New(1000, 0.01)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			f.Add([]byte(fmt.Sprintf("w-%d", i)))
		}
	}()
	for i := 0; i < 500; i++ {
		f.Test([]byte(fmt.Sprintf("r-%d", i)))
	}
	<-done

	for i := 0; i < 500; i++ {
		assert.True(t, f.Test([]byte(fmt.Sprintf("w-%d", i))))
	}
}
