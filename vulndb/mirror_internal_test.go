package vulndb

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdater_advanceBar(t *testing.T) {
	u := NewUpdater(nil, nil, WithProgressWriter(io.Discard))

	tests := []struct {
		name        string
		page        Page
		wantTotal   int64
		wantCurrent int64
	}{
		{
			name:        "first page",
			page:        Page{Number: 1, TotalEntries: 150},
			wantTotal:   150,
			wantCurrent: 100,
		},
		{
			name:        "total grows",
			page:        Page{Number: 2, TotalEntries: 250},
			wantTotal:   250,
			wantCurrent: 200,
		},
		{
			name:        "last partial page",
			page:        Page{Number: 3, TotalEntries: 250},
			wantTotal:   250,
			wantCurrent: 250,
		},
		{
			name:        "total shrinks",
			page:        Page{Number: 4, TotalEntries: 230},
			wantTotal:   230,
			wantCurrent: 230,
		},
	}

	bar := u.advanceBar(nil, tests[0].page)
	require.NotNil(t, bar)
	defer bar.Finish()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar = u.advanceBar(bar, tt.page)
			assert.Equal(t, tt.wantTotal, bar.Total())
			assert.Equal(t, tt.wantCurrent, bar.Current())
		})
	}
}
