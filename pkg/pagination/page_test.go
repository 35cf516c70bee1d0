package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPage(t *testing.T) {
	var zero Page[int]
	assert.Equal(t, 0, zero.Len())
	assert.False(t, zero.IsSingle())

	list := List([]int{1, 2, 3})
	assert.Equal(t, []int{1, 2, 3}, list.Items())
	assert.False(t, list.IsSingle())

	single := Single("summary")
	assert.Equal(t, []string{"summary"}, single.Items())
	assert.True(t, single.IsSingle())
}

func TestParams_Merge(t *testing.T) {
	base := Params{"branch": "main", "take": 999}
	merged := base.Merge(Params{"take": 10})

	assert.Equal(t, Params{"branch": "main", "take": 10}, merged)
	assert.Equal(t, 999, base["take"], "Merge must not modify the receiver")

	var empty Params
	assert.NotNil(t, empty.Clone())
}

func TestPageParams(t *testing.T) {
	fixed := Params{"branch": "main", ParamSkip: "caller"}

	tests := []struct {
		name   string
		cfg    Config
		index  int
		expect Params
	}{
		{
			name:   "offset limit first page",
			cfg:    Config{PageSize: 50, Style: StyleOffsetLimit, SupportsPagination: true},
			index:  0,
			expect: Params{"branch": "main", ParamTake: 50, ParamSkip: 0},
		},
		{
			name:   "offset limit third page",
			cfg:    Config{PageSize: 50, Style: StyleOffsetLimit, SupportsPagination: true},
			index:  2,
			expect: Params{"branch": "main", ParamTake: 50, ParamSkip: 100},
		},
		{
			name:   "page number",
			cfg:    Config{PageSize: 20, Style: StylePageNumber, SupportsPagination: true},
			index:  3,
			expect: Params{"branch": "main", ParamSkip: "caller", ParamPage: 3, ParamPageSize: 20},
		},
		{
			name:   "no pagination keeps fixed params only",
			cfg:    Config{PageSize: 20, Style: StyleOffsetLimit, SupportsPagination: false},
			index:  0,
			expect: Params{"branch": "main", ParamSkip: "caller"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, pageParams(tt.cfg, fixed, tt.index))
		})
	}
}
