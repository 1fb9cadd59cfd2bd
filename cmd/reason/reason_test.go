package reason

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formosa/internal/apierr"
	"formosa/internal/config"
	"formosa/internal/jsonl"
	"formosa/internal/ratelimit"
	"formosa/internal/testutil"
)

const testTemplate = "Describe <|attraction_name|>: <|attraction_description|>"

// fakeGenerator records the prompts it saw and answers from a fixed map.
type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	images  []string
	fail    map[string]error
}

func (f *fakeGenerator) Generate(prompt, imagePath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.fail[imagePath]; ok {
		return "", err
	}
	f.prompts = append(f.prompts, prompt)
	f.images = append(f.images, imagePath)
	return "a view of the attraction", nil
}

func writeRankedCSV(env *testutil.Env) string {
	env.WriteString("ranked.csv",
		"\uFEFF資料名稱,文字描述\n日月潭,台灣最大的湖泊\n阿里山,著名的山區景點\n")
	return env.Path("ranked.csv")
}

func readRecords(t *testing.T, path string) []map[string]any {
	t.Helper()
	var records []map[string]any
	require.NoError(t, jsonl.Scan(path, func(line map[string]any) error {
		records = append(records, line)
		return nil
	}))
	return records
}

func baseOptions(env *testutil.Env, gen Generator) Options {
	return Options{
		Input:             env.Path("ranked.csv"),
		ImageDir:          env.Path("images"),
		Output:            env.Path("reasoning.jsonl"),
		Template:          testTemplate,
		NameColumn:        "資料名稱",
		DescriptionColumn: "文字描述",
		Workers:           2,
		Generator:         gen,
	}
}

func TestRunGeneratesRecords(t *testing.T) {
	env := testutil.NewEnv(t)
	writeRankedCSV(env)
	env.WriteFile("images/日月潭/日月潭_001.jpg", []byte("img"))
	env.WriteFile("images/日月潭/日月潭_002.jpg", []byte("img"))
	env.WriteFile("images/阿里山/阿里山_001.jpg", []byte("img"))

	gen := &fakeGenerator{}
	opts := baseOptions(env, gen)
	opts.Limiter = ratelimit.New("test", 1000)
	stats, err := Run(opts)
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.Generated)
	assert.Zero(t, stats.Failed)

	records := readRecords(t, env.Path("reasoning.jsonl"))
	require.Len(t, records, 3)

	byFile := make(map[string]map[string]any)
	for _, r := range records {
		byFile[r["image_filename"].(string)] = r
	}
	first := byFile["日月潭_001.jpg"]
	require.NotNil(t, first)
	assert.Equal(t, "日月潭", first["attraction_name"])
	assert.Equal(t, "台灣最大的湖泊", first["attraction_description"])
	assert.Equal(t, "a view of the attraction", first["reasoning"])
	assert.Contains(t, first["image_path"], "日月潭_001.jpg")
}

func TestRunRendersPromptPerAttraction(t *testing.T) {
	env := testutil.NewEnv(t)
	writeRankedCSV(env)
	env.WriteFile("images/日月潭/日月潭_001.jpg", []byte("img"))

	gen := &fakeGenerator{}
	_, err := Run(baseOptions(env, gen))
	require.NoError(t, err)

	require.Len(t, gen.prompts, 1)
	assert.Equal(t, "Describe 日月潭: 台灣最大的湖泊", gen.prompts[0])
}

func TestRunResumesFromExistingOutput(t *testing.T) {
	env := testutil.NewEnv(t)
	writeRankedCSV(env)
	env.WriteFile("images/日月潭/日月潭_001.jpg", []byte("img"))
	env.WriteFile("images/日月潭/日月潭_002.jpg", []byte("img"))
	env.WriteString("reasoning.jsonl",
		`{"attraction_name":"日月潭","image_filename":"日月潭_001.jpg","reasoning":"done"}`+"\n")

	gen := &fakeGenerator{}
	stats, err := Run(baseOptions(env, gen))
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, int64(1), stats.Generated)
	require.Len(t, gen.images, 1)
	assert.Contains(t, gen.images[0], "日月潭_002.jpg")
}

func TestRunCapsImagesPerAttraction(t *testing.T) {
	env := testutil.NewEnv(t)
	writeRankedCSV(env)
	for i := 1; i <= 5; i++ {
		env.WriteFile(fmt.Sprintf("images/日月潭/日月潭_%03d.jpg", i), []byte("img"))
	}

	gen := &fakeGenerator{}
	opts := baseOptions(env, gen)
	opts.MaxPerAttraction = 2
	stats, err := Run(opts)
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.Generated)
}

func TestRunContinuesPastFailures(t *testing.T) {
	env := testutil.NewEnv(t)
	writeRankedCSV(env)
	env.WriteFile("images/日月潭/日月潭_001.jpg", []byte("img"))
	env.WriteFile("images/日月潭/日月潭_002.jpg", []byte("img"))

	gen := &fakeGenerator{fail: map[string]error{
		env.Path("images/日月潭/日月潭_001.jpg"): fmt.Errorf("model refused"),
	}}
	stats, err := Run(baseOptions(env, gen))
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Generated)
}

// retryCountingGenerator fails with a rate limit a fixed number of times.
type retryCountingGenerator struct {
	mu       sync.Mutex
	failures int
	attempts int
}

func (g *retryCountingGenerator) Generate(prompt, imagePath string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.attempts++
	if g.attempts <= g.failures {
		return "", apierr.NewRateLimitError("slow down")
	}
	return "recovered", nil
}

func TestRunRetriesRateLimits(t *testing.T) {
	prevAttempts, prevDelay := config.RetryMaxAttempts, config.RetryBaseDelay
	config.RetryMaxAttempts, config.RetryBaseDelay = 3, time.Millisecond
	defer func() { config.RetryMaxAttempts, config.RetryBaseDelay = prevAttempts, prevDelay }()

	env := testutil.NewEnv(t)
	writeRankedCSV(env)
	env.WriteFile("images/日月潭/日月潭_001.jpg", []byte("img"))

	gen := &retryCountingGenerator{failures: 2}
	stats, err := Run(baseOptions(env, gen))
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.Generated)
	assert.Equal(t, 3, gen.attempts)

	records := readRecords(t, env.Path("reasoning.jsonl"))
	require.Len(t, records, 1)
	assert.Equal(t, "recovered", records[0]["reasoning"])
}

func TestRunRejectsTemplateWithoutPlaceholder(t *testing.T) {
	env := testutil.NewEnv(t)
	writeRankedCSV(env)

	opts := baseOptions(env, &fakeGenerator{})
	opts.Template = "no placeholders here"
	_, err := Run(opts)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "placeholder"))
}
