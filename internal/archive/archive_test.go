package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSuffix = "-northern-ireland-street.csv"

// stubFetcher serves canned bodies for Download and Get.
type stubFetcher struct {
	body    []byte
	getBody []byte
	err     error
	getErr  error
}

func (s *stubFetcher) Download(_ context.Context, _ string) (io.ReadCloser, error) {
	if s.err != nil {
		return nil, s.err
	}
	return io.NopCloser(bytes.NewReader(s.body)), nil
}

func (s *stubFetcher) Get(_ context.Context, _ string) ([]byte, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.getBody, nil
}

func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func testClient(f *stubFetcher) *Client {
	return NewClient(f, Options{
		ArchiveURL:   "https://data.police.uk/data/archive/latest.zip",
		MetadataURL:  "https://data.police.uk/api/crimes-street-dates",
		RegionSuffix: testSuffix,
	})
}

func TestFetchAllMonths(t *testing.T) {
	zipData := buildZip(t, map[string]string{
		"2024-02/2024-02" + testSuffix:       "Month,Reported by\n2024-02,PSNI\n",
		"2024-01/2024-01" + testSuffix:       "Month,Reported by\n2024-01,PSNI\n\n2024-01,PSNI\n",
		"2024-01/2024-01-cleveland-street.csv": "Month,Reported by\nignored\n",
	})

	c := testClient(&stubFetcher{body: zipData})
	months, err := c.FetchAllMonths(context.Background())
	require.NoError(t, err)
	require.Len(t, months, 2)

	// Ordering is by month key, never archive traversal order.
	assert.Equal(t, "2024-01", months[0].Month)
	assert.Equal(t, "2024-02", months[1].Month)

	// Blank lines are dropped, header retained.
	assert.Equal(t, []string{"Month,Reported by", "2024-01,PSNI", "2024-01,PSNI"}, months[0].Lines)
}

func TestFetchAllMonths_SkipsEmptyEntry(t *testing.T) {
	zipData := buildZip(t, map[string]string{
		"2024-01/2024-01" + testSuffix: "",
		"2024-02/2024-02" + testSuffix: "Month\n2024-02\n",
	})

	c := testClient(&stubFetcher{body: zipData})
	months, err := c.FetchAllMonths(context.Background())
	require.NoError(t, err)
	require.Len(t, months, 1)
	assert.Equal(t, "2024-02", months[0].Month)
}

func TestFetchAllMonths_NoMatchingEntries(t *testing.T) {
	zipData := buildZip(t, map[string]string{
		"2024-01/2024-01-cleveland-street.csv": "Month\n2024-01\n",
	})

	c := testClient(&stubFetcher{body: zipData})
	_, err := c.FetchAllMonths(context.Background())
	assert.True(t, eris.Is(err, ErrExtraction))
}

func TestFetchAllMonths_TransferError(t *testing.T) {
	c := testClient(&stubFetcher{err: eris.New("http 503 from archive")})
	_, err := c.FetchAllMonths(context.Background())
	assert.True(t, eris.Is(err, ErrTransfer))
}

func TestFetchAllMonths_CorruptArchive(t *testing.T) {
	c := testClient(&stubFetcher{body: []byte("this is not a zip file at all")})
	_, err := c.FetchAllMonths(context.Background())
	assert.True(t, eris.Is(err, ErrExtraction))
}

func TestFetchAvailableMonths(t *testing.T) {
	c := testClient(&stubFetcher{
		getBody: []byte(`[{"date":"2024-01"},{"date":"2024-03"},{"date":"2024-02"}]`),
	})
	months := c.FetchAvailableMonths(context.Background())
	assert.Equal(t, []string{"2024-01", "2024-02", "2024-03"}, months)
}

func TestFetchAvailableMonths_DegradesOnError(t *testing.T) {
	c := testClient(&stubFetcher{getErr: eris.New("boom")})
	months := c.FetchAvailableMonths(context.Background())

	require.NotEmpty(t, months)
	now := time.Now().UTC()
	want := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -2, 0).Format("2006-01")
	assert.Equal(t, want, months[len(months)-1], "fallback assumes the latest two months are unavailable")
}

func TestFetchAvailableMonths_DegradesOnBadJSON(t *testing.T) {
	c := testClient(&stubFetcher{getBody: []byte("<html>nope</html>")})
	months := c.FetchAvailableMonths(context.Background())
	assert.NotEmpty(t, months)
}

func TestMonthFromEntry(t *testing.T) {
	assert.Equal(t, "2024-01", monthFromEntry("2024-01/2024-01"+testSuffix, testSuffix))
	assert.Equal(t, "2023-12", monthFromEntry("2023-12"+testSuffix, testSuffix))
}
