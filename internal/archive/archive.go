// Package archive streams the data.police.uk bulk archive and extracts
// the per-month CSV entries for the target region.
package archive

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/krolaw/zipstream"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mspence07/PropertyIntel/internal/fetcher"
)

// Sentinel errors for the two fatal fetch outcomes. Callers check with
// eris.Is.
var (
	// ErrTransfer means the remote endpoint returned a non-success
	// status or the transfer itself failed.
	ErrTransfer = eris.New("archive: transfer failed")

	// ErrExtraction means the archive container was corrupt or carried
	// no entries for the target region.
	ErrExtraction = eris.New("archive: extraction failed")
)

// MonthData holds one month's raw CSV lines, header included.
type MonthData struct {
	Month string
	Lines []string
}

// Options configures the archive client.
type Options struct {
	// ArchiveURL is the single bulk archive containing every
	// historical month in per-month folders.
	ArchiveURL string

	// MetadataURL lists the months the source currently publishes.
	MetadataURL string

	// RegionSuffix selects archive entries, e.g.
	// "-northern-ireland-street.csv".
	RegionSuffix string
}

// Client fetches and extracts the bulk crime archive.
type Client struct {
	fetcher fetcher.Fetcher
	opts    Options
}

// NewClient creates an archive client over the given fetcher.
func NewClient(f fetcher.Fetcher, opts Options) *Client {
	return &Client{fetcher: f, opts: opts}
}

// FetchAllMonths downloads the archive and returns one MonthData per
// covered month, ordered ascending by month key. The zip is processed
// as a stream: only the current entry's lines are buffered, never the
// whole decompressed archive. A month whose entry has no lines is
// simply absent from the result.
func (c *Client) FetchAllMonths(ctx context.Context) ([]MonthData, error) {
	log := zap.L().With(zap.String("component", "archive"))
	log.Info("downloading bulk archive", zap.String("url", c.opts.ArchiveURL))

	body, err := c.fetcher.Download(ctx, c.opts.ArchiveURL)
	if err != nil {
		return nil, eris.Wrapf(ErrTransfer, "download %s: %v", c.opts.ArchiveURL, err)
	}
	defer body.Close() //nolint:errcheck

	zr := zipstream.NewReader(bufio.NewReaderSize(body, 64*1024))

	var months []MonthData
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "archive: cancelled")
		}

		header, err := zr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(ErrExtraction, "read zip entry: %v", err)
		}

		name := header.Name
		if !strings.HasSuffix(name, c.opts.RegionSuffix) {
			continue
		}

		month := monthFromEntry(name, c.opts.RegionSuffix)

		lines, err := readLines(zr)
		if err != nil {
			return nil, eris.Wrapf(ErrExtraction, "read entry %s: %v", name, err)
		}
		if len(lines) == 0 {
			continue
		}

		log.Info("extracted month", zap.String("month", month), zap.Int("lines", len(lines)))
		months = append(months, MonthData{Month: month, Lines: lines})
	}

	if len(months) == 0 {
		return nil, eris.Wrapf(ErrExtraction, "no entries matching %q in archive", c.opts.RegionSuffix)
	}

	// Archive traversal order is usually ascending already, but
	// correctness never relies on it.
	sort.Slice(months, func(i, j int) bool { return months[i].Month < months[j].Month })

	log.Info("archive extraction complete", zap.Int("months", len(months)))
	return months, nil
}

// FetchAvailableMonths queries the metadata endpoint for the months
// the source currently publishes, ascending. The signal is advisory
// only: on any failure it degrades to a conservative default (the
// trailing three years ending two months ago) instead of returning an
// error.
func (c *Client) FetchAvailableMonths(ctx context.Context) []string {
	log := zap.L().With(zap.String("component", "archive"))

	data, err := c.fetcher.Get(ctx, c.opts.MetadataURL)
	if err != nil {
		log.Warn("metadata fetch failed, assuming latest two months unavailable", zap.Error(err))
		return defaultAvailableMonths(time.Now().UTC())
	}

	var entries []struct {
		Date string `json:"date"`
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Warn("metadata parse failed, assuming latest two months unavailable", zap.Error(err))
		return defaultAvailableMonths(time.Now().UTC())
	}

	months := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Date != "" {
			months = append(months, e.Date)
		}
	}
	sort.Strings(months)

	if len(months) == 0 {
		log.Warn("metadata listed no months, assuming latest two months unavailable")
		return defaultAvailableMonths(time.Now().UTC())
	}
	return months
}

// defaultAvailableMonths builds the fallback month list: 36 months
// ending 2 months before now, since the source typically lags about
// two months behind.
func defaultAvailableMonths(now time.Time) []string {
	end := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -2, 0)
	months := make([]string, 0, 36)
	for i := 35; i >= 0; i-- {
		months = append(months, end.AddDate(0, -i, 0).Format("2006-01"))
	}
	return months
}

// monthFromEntry derives the month key from an entry path like
// "2024-01/2024-01-northern-ireland-street.csv".
func monthFromEntry(name, suffix string) string {
	base := name
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}
	return strings.TrimSuffix(base, suffix)
}

// readLines buffers the current entry's non-blank lines.
func readLines(zr *zipstream.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(zr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
