package scan

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	numbers map[string][]int
	calls   int
	err     error
}

func (f *fakeLister) ListBillNumbers(ctx context.Context, session, billType string) ([]int, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.numbers[billType], nil
}

type fakeWatermarks struct {
	max map[string]int
	err error
}

func (f *fakeWatermarks) MaxBillNumber(ctx context.Context, billType string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.max[billType], nil
}

func TestDeltaAboveFloor(t *testing.T) {
	lister := &fakeLister{numbers: map[string][]int{"HB": {1, 2, 3, 4, 5}}}
	marks := &fakeWatermarks{max: map[string]int{}}
	s := NewScanner(lister, marks)

	delta, err := s.Delta(context.Background(), "89R", "HB", 3)
	require.NoError(t, err)
	require.Equal(t, []int{4, 5}, delta)
}

func TestDeltaUsesPersistedWatermark(t *testing.T) {
	lister := &fakeLister{numbers: map[string][]int{"SB": {10, 11, 12, 13}}}
	marks := &fakeWatermarks{max: map[string]int{"SB": 12}}
	s := NewScanner(lister, marks)

	// The persisted watermark is higher than the job's own floor.
	delta, err := s.Delta(context.Background(), "89R", "SB", 10)
	require.NoError(t, err)
	require.Equal(t, []int{13}, delta)
}

func TestDeltaEmptyWhenExhausted(t *testing.T) {
	lister := &fakeLister{numbers: map[string][]int{"HB": {1, 2}}}
	marks := &fakeWatermarks{max: map[string]int{"HB": 2}}
	s := NewScanner(lister, marks)

	delta, err := s.Delta(context.Background(), "89R", "HB", 0)
	require.NoError(t, err)
	require.Empty(t, delta)
}

func TestAvailableCachesListings(t *testing.T) {
	lister := &fakeLister{numbers: map[string][]int{"HB": {1, 2, 3}}}
	s := NewScanner(lister, &fakeWatermarks{max: map[string]int{}})

	for i := 0; i < 3; i++ {
		numbers, err := s.Available(context.Background(), "89R", "HB")
		require.NoError(t, err)
		require.Equal(t, []int{1, 2, 3}, numbers)
	}
	require.Equal(t, 1, lister.calls)

	s.Reset()
	_, err := s.Available(context.Background(), "89R", "HB")
	require.NoError(t, err)
	require.Equal(t, 2, lister.calls)
}

func TestDeltaListerError(t *testing.T) {
	wantErr := errors.New("connection reset")
	s := NewScanner(&fakeLister{err: wantErr}, &fakeWatermarks{})

	_, err := s.Delta(context.Background(), "89R", "HB", 0)
	require.ErrorIs(t, err, wantErr)
}

func TestDeltaWatermarkError(t *testing.T) {
	wantErr := errors.New("db down")
	lister := &fakeLister{numbers: map[string][]int{"HB": {1}}}
	s := NewScanner(lister, &fakeWatermarks{err: wantErr})

	_, err := s.Delta(context.Background(), "89R", "HB", 0)
	require.ErrorIs(t, err, wantErr)
}
