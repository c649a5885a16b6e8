package pagination_test

import (
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justbri/marquee/pagination"
)

func Test_PageSize_Normalisation(t *testing.T) {
	cfg := pagination.DefaultConfig()

	tests := []struct {
		name      string
		requested int
		expected  int
	}{
		{"zero uses default", 0, 10},
		{"negative uses default", -3, 10},
		{"within range kept", 7, 7},
		{"at maximum kept", 30, 30},
		{"above maximum clamped", 31, 30},
		{"far above maximum clamped", 1000, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, cfg.PageSize(tt.requested))
		})
	}
}

func Test_New_When_MiddlePageOfSixteen(t *testing.T) {
	// act
	p := pagination.New("/api/v1.0/movies", 16, 2, 5)

	// assert
	assert.Equal(t, "/api/v1.0/movies?page=1&pageSize=5", p.PrevPageToken)
	assert.Equal(t, "/api/v1.0/movies?page=3&pageSize=5", p.NextPageToken)
	assert.Equal(t, pagination.Window{Offset: 10, Limit: 5}, p.Window())
}

func Test_New_When_FirstPage(t *testing.T) {
	p := pagination.New("/movies", 16, 0, 5)

	assert.Empty(t, p.PrevPageToken)
	assert.Equal(t, "/movies?page=1&pageSize=5", p.NextPageToken)
}

func Test_New_When_LastPage(t *testing.T) {
	p := pagination.New("/movies", 16, 3, 5)

	assert.Equal(t, "/movies?page=2&pageSize=5", p.PrevPageToken)
	assert.Empty(t, p.NextPageToken)
}

func Test_New_When_NextOffsetEqualsTotal(t *testing.T) {
	p := pagination.New("/movies", 15, 2, 5)

	assert.Empty(t, p.NextPageToken)
}

func Test_New_When_EmptyCollection(t *testing.T) {
	p := pagination.New("/movies", 0, 0, 10)

	assert.Empty(t, p.PrevPageToken)
	assert.Empty(t, p.NextPageToken)
	assert.Empty(t, pagination.Slice([]int{}, p.Window()))
}

func Test_New_When_Page_Overflows_Offset(t *testing.T) {
	// setup
	items := make([]int, 16)
	for i := range items {
		items[i] = i
	}

	tests := []struct {
		name string
		page int
	}{
		{"product wraps negative", math.MaxInt/10 + 1},
		{"product just fits", math.MaxInt / 10},
		{"largest page", math.MaxInt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// act
			p := pagination.New("/movies", 16, tt.page, 10)

			// assert
			assert.Empty(t, pagination.Slice(items, p.Window()))
			assert.Empty(t, p.NextPageToken)
			assert.Equal(t, "/movies?page=1&pageSize=10", p.PrevPageToken)
		})
	}
}

func Test_NewNumbered_When_Page_Overflows_Offset(t *testing.T) {
	n := pagination.NewNumbered(16, math.MaxInt, 10)

	assert.Empty(t, pagination.Slice(make([]int, 16), n.Window()))
}

func Test_PrevPage_When_PageBeyondEnd(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		page     int
		pageSize int
		expected int
	}{
		{"uneven total points at partial last page", 16, 10, 5, 3},
		{"even total points at last full page", 15, 10, 5, 2},
		{"just past the end is naive", 16, 4, 5, 3},
		{"empty collection clamps to zero", 0, 3, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev, ok := pagination.PrevPage(tt.total, tt.page, tt.pageSize)

			require.True(t, ok)
			assert.Equal(t, tt.expected, prev)
		})
	}
}

func Test_PrevPage_Is_SelfCorrecting(t *testing.T) {
	// setup
	items := make([]int, 16)
	for i := range items {
		items[i] = i
	}

	// act
	p := pagination.New("/movies", len(items), 10, 5)
	prev, _ := pagination.PrevPage(len(items), 10, 5)

	// assert
	assert.Empty(t, pagination.Slice(items, p.Window()))
	assert.NotEmpty(t, pagination.Slice(items, pagination.Window{Offset: prev * 5, Limit: 5}))
	assert.Contains(t, p.PrevPageToken, "page=3")
}

func Test_Pages_Concatenate_To_Whole_Collection(t *testing.T) {
	for total := 0; total <= 40; total++ {
		for pageSize := 1; pageSize <= 12; pageSize++ {
			items := make([]int, total)
			for i := range items {
				items[i] = i
			}

			var got []int
			pages := (total + pageSize - 1) / pageSize
			for page := range pages {
				got = append(got, pagination.Slice(items, pagination.New("/x", total, page, pageSize).Window())...)
			}

			require.Equal(t, len(items), len(got), "total=%d pageSize=%d", total, pageSize)
			for i, v := range got {
				require.Equal(t, i, v, "total=%d pageSize=%d", total, pageSize)
			}
		}
	}
}

func Test_New_Is_Idempotent(t *testing.T) {
	a := pagination.New("/movies", 23, 1, 7)
	b := pagination.New("/movies", 23, 1, 7)

	assert.Equal(t, a, b)
}

func Test_Link_Carries_Page_And_PageSize(t *testing.T) {
	link := pagination.Link("/api/v1.0/users/abc/reviews", 4, 12)

	assert.Equal(t, "/api/v1.0/users/abc/reviews?page=4&pageSize=12", link)
}

func Test_NewNumbered(t *testing.T) {
	tests := []struct {
		total, page    int
		pages          int
		expectedWindow pagination.Window
	}{
		{41, 1, 3, pagination.Window{Offset: 0, Limit: 20}},
		{41, 3, 3, pagination.Window{Offset: 40, Limit: 20}},
		{40, 0, 2, pagination.Window{Offset: 0, Limit: 20}},
		{0, 1, 0, pagination.Window{Offset: 0, Limit: 20}},
	}

	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.total)+"/"+strconv.Itoa(tt.page), func(t *testing.T) {
			n := pagination.NewNumbered(tt.total, tt.page, 20)

			assert.Equal(t, tt.pages, n.TotalPages)
			assert.Equal(t, tt.total, n.TotalResults)
			assert.Equal(t, tt.expectedWindow, n.Window())
		})
	}
}

func Test_Window_Bounds(t *testing.T) {
	items := []string{"a", "b", "c"}

	assert.Equal(t, []string{"a", "b", "c"}, pagination.Slice(items, pagination.All()))
	assert.Equal(t, []string{"b"}, pagination.Slice(items, pagination.Window{Offset: 1, Limit: 1}))
	assert.Equal(t, []string{"c"}, pagination.Slice(items, pagination.Window{Offset: 2, Limit: 5}))
	assert.Empty(t, pagination.Slice(items, pagination.Window{Offset: 9, Limit: 5}))
}
