package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestInitConfigDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	InitConfig()

	assert.Equal(t, time.Second, RequestDelay)
	assert.Equal(t, 3, RetryMaxAttempts)
	assert.Equal(t, 2*time.Second, RetryBaseDelay)
	assert.Equal(t, "api", viper.GetString("rank.mode"))
	assert.Equal(t, 100, viper.GetInt("rank.batchsize"))
	assert.Equal(t, 10, viper.GetInt("harvest.maxmaps"))
	assert.Equal(t, 100, viper.GetInt("harvest.maxcse"))
}

func TestSplitKeys(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "single key", input: "abc", expected: []string{"abc"}},
		{name: "multiple keys", input: "a,b,c", expected: []string{"a", "b", "c"}},
		{name: "whitespace trimmed", input: " a , b ", expected: []string{"a", "b"}},
		{name: "empty string", input: "", expected: nil},
		{name: "trailing comma", input: "a,", expected: []string{"a"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, splitKeys(tc.input))
		})
	}
}

func TestInitConfigReadsKeys(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("google.apikeys", "key1,key2")
	viper.Set("gemini.apikeys", "g1")
	InitConfig()

	assert.Equal(t, []string{"key1", "key2"}, GoogleAPIKeys)
	assert.Equal(t, []string{"g1"}, GeminiAPIKeys)
}
