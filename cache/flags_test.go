package cache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/rarfs/cache"
)

func TestParseFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    cache.Flags
		wantErr bool
	}{
		{"", 0, false},
		{"0", 0, false},
		{"6", cache.FlagAutoDelete | cache.FlagNoCache, false},
		{"stream", cache.FlagStream, false},
		{"AutoDelete, overwrite", cache.FlagAutoDelete | cache.FlagOverwrite, false},
		{"none", 0, false},
		{"bogus", 0, true},
		{"-1", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := cache.ParseFlags(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFlagsString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "none", cache.Flags(0).String())
	assert.Equal(t, "autodelete,stream", (cache.FlagAutoDelete | cache.FlagStream).String())
	assert.Equal(t, "overwrite,0x10", (cache.FlagOverwrite | 16).String())
	assert.True(t, (cache.FlagNoCache | cache.FlagStream).Has(cache.FlagStream))
	assert.False(t, cache.FlagNoCache.Has(cache.FlagStream))
}
