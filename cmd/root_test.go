package cmd

import (
	"testing"

	"github.com/alecthomas/kong"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formosa/cmd/rank"
)

func parseCLI(t *testing.T, args ...string) (*CLI, *kong.Context, error) {
	t.Helper()

	var cli CLI
	parser, err := kong.New(&cli, kong.Name("formosa"))
	require.NoError(t, err)

	ctx, err := parser.Parse(args)
	return &cli, ctx, err
}

func TestCLICommandStructure(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"fetch", "-f", "input.csv"}, "fetch"},
		{[]string{"rank", "-f", "input.csv"}, "rank"},
		{[]string{"harvest", "cse", "-f", "ranked.csv"}, "harvest <source>"},
		{[]string{"normalize"}, "normalize"},
		{[]string{"reason", "-f", "ranked.csv", "-t", "prompt.txt"}, "reason"},
		{[]string{"dataset", "filter", "-f", "ranked.csv", "-o", "out"}, "dataset filter"},
		{[]string{"dataset", "split", "-d", "images", "-o", "out"}, "dataset split"},
		{[]string{"dataset", "rename", "-d", "images"}, "dataset rename"},
	}
	for _, tc := range tests {
		_, ctx, err := parseCLI(t, tc.args...)
		require.NoError(t, err, "args %v", tc.args)
		assert.Equal(t, tc.want, ctx.Command())
	}
}

func TestCLIRejectsUnknownSource(t *testing.T) {
	_, _, err := parseCLI(t, "harvest", "bing", "-f", "ranked.csv")
	require.Error(t, err)
}

func TestBuildCounterRejectsUnknownMode(t *testing.T) {
	_, err := buildCounter("guess")
	require.Error(t, err)
}

func TestBuildCounterScrapeNeedsNoCredentials(t *testing.T) {
	counter, err := buildCounter("scrape")
	require.NoError(t, err)
	assert.IsType(t, &rank.ScrapeCounter{}, counter)
}

func TestRankModeFallsBackToConfig(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("rank.mode", "scrape")

	cli, _, err := parseCLI(t, "rank", "-f", "input.csv")
	require.NoError(t, err)
	assert.Empty(t, cli.Rank.Mode, "flag must default to empty so the config key decides")

	counter, err := buildCounter(rankMode(cli.Rank.Mode))
	require.NoError(t, err)
	assert.IsType(t, &rank.ScrapeCounter{}, counter)
}

func TestCLIDefaults(t *testing.T) {
	cli, _, err := parseCLI(t, "normalize")
	require.NoError(t, err)

	assert.Equal(t, 95, cli.Normalize.Quality)
	assert.Equal(t, "./logs/", cli.LogDir)
	assert.Equal(t, "./cache.db", cli.CacheDBFile)
}

func TestCLISplitRatioDefault(t *testing.T) {
	cli, _, err := parseCLI(t, "dataset", "split", "-d", "images", "-o", "out")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, cli.Dataset.Split.TrainRatio, 1e-9)
}
