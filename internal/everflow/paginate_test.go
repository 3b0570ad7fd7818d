package everflow

import (
	"context"
	"errors"
	"testing"

	errx "github.com/eflow-agent/server/internal/core/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pagesOf serves the given page sizes with sequential integer records.
func pagesOf(sizes []int, total int, calls *int) PageFunc[int] {
	return func(_ context.Context, page, _ int) (Page[int], error) {
		*calls++
		if page > len(sizes) {
			return Page[int]{TotalCount: total}, nil
		}
		start := 0
		for _, n := range sizes[:page-1] {
			start += n
		}
		recs := make([]int, sizes[page-1])
		for i := range recs {
			recs[i] = start + i
		}
		return Page[int]{Records: recs, TotalCount: total}, nil
	}
}

func TestFetchAllShortLastPage(t *testing.T) {
	calls := 0
	got, err := FetchAll(context.Background(), "test", pagesOf([]int{50, 50, 20}, 0, &calls), PageOptions[int]{PageSize: 50})
	require.NoError(t, err)

	assert.Len(t, got, 120)
	assert.Equal(t, 3, calls)
	for i, v := range got {
		require.Equal(t, i, v, "records out of order")
	}
}

func TestFetchAllPageCeiling(t *testing.T) {
	calls := 0
	full := func(_ context.Context, page, pageSize int) (Page[int], error) {
		calls++
		return Page[int]{Records: make([]int, pageSize)}, nil
	}

	got, err := FetchAll(context.Background(), "endless", full, PageOptions[int]{PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, MaxPages, calls)
	assert.Len(t, got, MaxPages*10)
}

func TestFetchAllEmptyPageStops(t *testing.T) {
	calls := 0
	got, err := FetchAll(context.Background(), "test", pagesOf([]int{50, 50}, 0, &calls), PageOptions[int]{PageSize: 50})
	require.NoError(t, err)
	assert.Len(t, got, 100)
	assert.Equal(t, 3, calls)
}

func TestFetchAllTotalCountStops(t *testing.T) {
	calls := 0
	got, err := FetchAll(context.Background(), "test", pagesOf([]int{50, 50, 50, 50}, 100, &calls), PageOptions[int]{PageSize: 50})
	require.NoError(t, err)
	assert.Len(t, got, 100)
	assert.Equal(t, 2, calls)
}

func TestFetchAllLimit(t *testing.T) {
	calls := 0
	got, err := FetchAll(context.Background(), "test", pagesOf([]int{50, 50, 50}, 0, &calls), PageOptions[int]{PageSize: 50, Limit: 60})
	require.NoError(t, err)
	assert.Len(t, got, 60)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 59, got[59])
}

func TestFetchAllDeduplicates(t *testing.T) {
	pages := [][]string{{"a", "b", ""}, {"b", "c"}}
	fetch := func(_ context.Context, page, _ int) (Page[string], error) {
		return Page[string]{Records: pages[page-1]}, nil
	}

	got, err := FetchAll(context.Background(), "test", fetch, PageOptions[string]{
		PageSize: 3,
		Key:      func(s string) string { return s },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestFetchAllErrorDiscardsPartialResults(t *testing.T) {
	cause := errors.New("connection reset")
	fetch := func(_ context.Context, page, pageSize int) (Page[int], error) {
		if page == 2 {
			return Page[int]{}, cause
		}
		return Page[int]{Records: make([]int, pageSize)}, nil
	}

	got, err := FetchAll(context.Background(), "test", fetch, PageOptions[int]{PageSize: 50})
	assert.Nil(t, got)
	assert.ErrorIs(t, err, errx.ErrFetchFailed)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "page 2")
}

func TestFetchAllEmptyCollectionIsNotAnError(t *testing.T) {
	calls := 0
	got, err := FetchAll(context.Background(), "test", pagesOf(nil, 0, &calls), PageOptions[int]{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1, calls)
}
