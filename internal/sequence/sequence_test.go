package sequence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"examreg/pkg/derrors"
	"examreg/pkg/sentinel"
)

type AllocatorSuite struct {
	suite.Suite
	alloc *Allocator
	ctx   context.Context
}

func (s *AllocatorSuite) SetupTest() {
	s.alloc = NewAllocator(NewInMemory())
	s.ctx = context.Background()
}

func TestAllocatorSuite(t *testing.T) {
	suite.Run(t, new(AllocatorSuite))
}

func (s *AllocatorSuite) TestFirstValueIsOne() {
	v, err := s.alloc.Next(s.ctx, CounterRegistrationID)
	s.Require().NoError(err)
	s.Equal(int64(1), v)
}

func (s *AllocatorSuite) TestCountersAreIndependent() {
	for i := 0; i < 3; i++ {
		_, err := s.alloc.Next(s.ctx, CounterRegistrationID)
		s.Require().NoError(err)
	}
	v, err := s.alloc.Next(s.ctx, CounterReceiptNumber)
	s.Require().NoError(err)
	s.Equal(int64(1), v)

	cur, err := s.alloc.Current(s.ctx, CounterRegistrationID)
	s.Require().NoError(err)
	s.Equal(int64(3), cur)
}

func (s *AllocatorSuite) TestCurrentOfAbsentCounterIsZero() {
	cur, err := s.alloc.Current(s.ctx, "never-used")
	s.Require().NoError(err)
	s.Zero(cur)
}

func (s *AllocatorSuite) TestReset() {
	_, err := s.alloc.Next(s.ctx, CounterReceiptNumber)
	s.Require().NoError(err)

	s.Require().NoError(s.alloc.Reset(s.ctx, CounterReceiptNumber, 100))

	v, err := s.alloc.Next(s.ctx, CounterReceiptNumber)
	s.Require().NoError(err)
	s.Equal(int64(101), v)
}

// TestConcurrentNextIsGapless issues values from many goroutines and checks
// they form exactly 1..N with no duplicates.
func (s *AllocatorSuite) TestConcurrentNextIsGapless() {
	const callers = 64

	var wg sync.WaitGroup
	values := make([]int64, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := s.alloc.Next(s.ctx, CounterReceiptNumber)
			s.NoError(err)
			values[i] = v
		}(i)
	}
	wg.Wait()

	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	for i, v := range values {
		s.Equal(int64(i+1), v, "expected a dense run of values with no duplicates")
	}
}

// flakyStore fails a fixed number of times with ErrUnavailable before
// delegating to an in-memory store.
type flakyStore struct {
	*InMemory
	mu       sync.Mutex
	failures int
}

func (f *flakyStore) Next(ctx context.Context, name string) (int64, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return 0, fmt.Errorf("simulated outage: %w", sentinel.ErrUnavailable)
	}
	f.mu.Unlock()
	return f.InMemory.Next(ctx, name)
}

func TestAllocatorRetriesTransientFailures(t *testing.T) {
	store := &flakyStore{InMemory: NewInMemory(), failures: 2}
	alloc := NewAllocator(store)

	v, err := alloc.Next(context.Background(), CounterRegistrationID)
	require.NoError(t, err)
	require.Equal(t, int64(1), v)
}

func TestAllocatorSurfacesExhaustedRetries(t *testing.T) {
	store := &flakyStore{InMemory: NewInMemory(), failures: 10}
	alloc := NewAllocator(store)

	_, err := alloc.Next(context.Background(), CounterRegistrationID)
	require.Error(t, err)
	require.True(t, derrors.HasCode(err, derrors.CodeAllocationFailed))
}

func TestAllocatorDoesNotRetryPermanentErrors(t *testing.T) {
	store := &permanentErrStore{}
	alloc := NewAllocator(store)

	_, err := alloc.Next(context.Background(), CounterRegistrationID)
	require.Error(t, err)
	require.True(t, derrors.HasCode(err, derrors.CodeAllocationFailed))
	require.Equal(t, 1, store.calls, "permanent errors must not be retried")
}

type permanentErrStore struct {
	calls int
}

func (p *permanentErrStore) Next(context.Context, string) (int64, error) {
	p.calls++
	return 0, fmt.Errorf("schema broken")
}

func (p *permanentErrStore) Current(context.Context, string) (int64, error) { return 0, nil }

func (p *permanentErrStore) Reset(context.Context, string, int64) error { return nil }
