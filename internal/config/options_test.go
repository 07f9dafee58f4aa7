package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		environ []string
		levels  []int
		must    int
	}{
		{name: "default", environ: nil, levels: []int{1}},
		{name: "opt in level 2", environ: []string{"SEMANTIC_STRICTNESS_LEVEL_2=1"}, levels: []int{1, 2}},
		{name: "level 1 via prefix ignored", environ: []string{"SEMANTIC_STRICTNESS_LEVEL_1=1"}, levels: []int{1}},
		{name: "falsey opt in", environ: []string{"SEMANTIC_STRICTNESS_LEVEL_3=0"}, levels: []int{1}},
		{name: "disabled wins", environ: []string{"SEMANTIC_STRICTNESS_LEVEL_2=1", "SEMANTIC_STRICTNESS_DISABLED=1"}, levels: []int{}},
		{name: "must count", environ: []string{"REQUIRED_MUST_COUNT=4", "PATH=/usr/bin", "garbage"}, levels: []int{1}, must: 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FromEnv(tc.environ)
			assert.Equal(t, tc.levels, got.StrictnessLevels)
			assert.Equal(t, tc.must, got.RequiredMustCount)
		})
	}
}

func TestOptions_HasLevel(t *testing.T) {
	o := FromEnv([]string{"SEMANTIC_STRICTNESS_LEVEL_2=yes"})
	assert.True(t, o.HasLevel(1))
	assert.True(t, o.HasLevel(2))
	assert.False(t, o.HasLevel(3))
	assert.True(t, DefaultOptions().HasLevel(1))
}
