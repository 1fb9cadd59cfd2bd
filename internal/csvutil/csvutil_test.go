package csvutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadTableStripsBOM(t *testing.T) {
	path := writeTemp(t, "\uFEFF唯一識別碼,資料名稱\nC1_001,阿里山\n")

	table, err := ReadTable(path)
	require.NoError(t, err)

	assert.True(t, table.HasColumn("唯一識別碼"))
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "阿里山", table.Get(table.Rows[0], "資料名稱"))
}

func TestReadTableSkipsShortRows(t *testing.T) {
	path := writeTemp(t, "a,b\n1,2\n\"only one\"\n3,4\n")

	table, err := ReadTable(path)
	require.NoError(t, err)
	assert.Len(t, table.Rows, 2)
}

func TestGetMissingColumn(t *testing.T) {
	path := writeTemp(t, "a,b\n1,2\n")

	table, err := ReadTable(path)
	require.NoError(t, err)
	assert.Equal(t, "", table.Get(table.Rows[0], "missing"))
}

func TestParseRowsSkipsInvalid(t *testing.T) {
	path := writeTemp(t, "name,count\nA,1\n,2\nB,3\n")

	table, err := ReadTable(path)
	require.NoError(t, err)

	type pair struct{ name, count string }
	items := ParseRows(table, func(get func(string) string) (pair, error) {
		if get("name") == "" {
			return pair{}, errors.New("missing name")
		}
		return pair{get("name"), get("count")}, nil
	})

	require.Len(t, items, 2)
	assert.Equal(t, "A", items[0].name)
	assert.Equal(t, "B", items[1].name)
}

func TestWriteTableRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, WriteTable(path,
		[]string{"資料名稱", "search_count"},
		[][]string{{"阿里山", "1200"}, {"日月潭", "800"}},
	))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, len(data) > 3 && string(data[:3]) == "\xef\xbb\xbf")

	table, err := ReadTable(path)
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "1200", table.Get(table.Rows[0], "search_count"))
}
