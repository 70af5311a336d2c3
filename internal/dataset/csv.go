package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"xbacktest/internal/bar"
	"xbacktest/internal/feed"
)

// LoadCSV reads a bar file in the spec.md §6.1 text format: a header row
// naming columns date,time[,ms],open,high,low,close,volume,openint[,bid*,
// ask*], position-independent once the header is known.
func LoadCSV(filePath, instrument string, res bar.Resolution, interval int) (*feed.MemoryFeed, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("dataset.LoadCSV: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("dataset.LoadCSV: read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	need := func(name string) (int, error) {
		i, ok := col[name]
		if !ok {
			return 0, fmt.Errorf("dataset.LoadCSV: missing column %q", name)
		}
		return i, nil
	}

	dateCol, err := need("date")
	if err != nil {
		return nil, err
	}
	timeCol, err := need("time")
	if err != nil {
		return nil, err
	}
	openCol, err := need("open")
	if err != nil {
		return nil, err
	}
	highCol, err := need("high")
	if err != nil {
		return nil, err
	}
	lowCol, err := need("low")
	if err != nil {
		return nil, err
	}
	closeCol, err := need("close")
	if err != nil {
		return nil, err
	}
	volCol, err := need("volume")
	if err != nil {
		return nil, err
	}
	openIntCol, err := need("openint")
	if err != nil {
		return nil, err
	}
	msCol, hasMS := col["ms"]
	bidCol, hasBid := col["bid"]
	askCol, hasAsk := col["ask"]
	bidSizeCol, hasBidSize := col["bidsize"]
	askSizeCol, hasAskSize := col["asksize"]

	parseFloat := func(s string) (float64, error) { return strconv.ParseFloat(strings.TrimSpace(s), 64) }
	parseInt := func(s string) (int64, error) { return strconv.ParseInt(strings.TrimSpace(s), 10, 64) }

	var bars []bar.Bar
	lineNo := 1
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dataset.LoadCSV: line %d: %w", lineNo+1, err)
		}
		lineNo++

		dt, err := parseDateTime(row[dateCol], row[timeCol])
		if err != nil {
			return nil, fmt.Errorf("dataset.LoadCSV: line %d: %w", lineNo, err)
		}
		if hasMS && msCol < len(row) {
			if ms, err := parseInt(row[msCol]); err == nil {
				dt = dt.Add(time.Duration(ms) * time.Millisecond)
			}
		}

		o, err := parseFloat(row[openCol])
		if err != nil {
			return nil, fmt.Errorf("dataset.LoadCSV: line %d open: %w", lineNo, err)
		}
		h, err := parseFloat(row[highCol])
		if err != nil {
			return nil, fmt.Errorf("dataset.LoadCSV: line %d high: %w", lineNo, err)
		}
		l, err := parseFloat(row[lowCol])
		if err != nil {
			return nil, fmt.Errorf("dataset.LoadCSV: line %d low: %w", lineNo, err)
		}
		c, err := parseFloat(row[closeCol])
		if err != nil {
			return nil, fmt.Errorf("dataset.LoadCSV: line %d close: %w", lineNo, err)
		}
		v, err := parseInt(row[volCol])
		if err != nil {
			return nil, fmt.Errorf("dataset.LoadCSV: line %d volume: %w", lineNo, err)
		}
		oi, err := parseInt(row[openIntCol])
		if err != nil {
			return nil, fmt.Errorf("dataset.LoadCSV: line %d openint: %w", lineNo, err)
		}

		b := bar.Bar{
			Instrument:   instrument,
			DateTime:     dt,
			Open:         o,
			High:         h,
			Low:          l,
			Close:        c,
			Volume:       v,
			OpenInterest: oi,
			Resolution:   res,
			Interval:     interval,
		}
		if hasBid || hasAsk {
			q := &bar.Quote{Last: c}
			if hasBid && bidCol < len(row) {
				q.Bid, _ = parseFloat(row[bidCol])
			}
			if hasAsk && askCol < len(row) {
				q.Ask, _ = parseFloat(row[askCol])
			}
			if hasBidSize && bidSizeCol < len(row) {
				q.BidSize, _ = parseInt(row[bidSizeCol])
			}
			if hasAskSize && askSizeCol < len(row) {
				q.AskSize, _ = parseInt(row[askSizeCol])
			}
			b.Quote = q
		}
		bars = append(bars, b)
	}

	return feed.NewMemoryFeed(instrument, res, interval, bars, nil)
}

func parseDateTime(dateStr, timeStr string) (time.Time, error) {
	dateStr = strings.TrimSpace(dateStr)
	timeStr = strings.TrimSpace(timeStr)

	dateLayouts := []string{"2006-01-02", "20060102", "2006/01/02"}
	var d time.Time
	var err error
	for _, layout := range dateLayouts {
		if d, err = time.Parse(layout, dateStr); err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised date %q", dateStr)
	}
	if timeStr == "" {
		return d.UTC(), nil
	}

	timeLayouts := []string{"15:04:05", "15:04", "150405"}
	var tOfDay time.Time
	for _, layout := range timeLayouts {
		if tOfDay, err = time.Parse(layout, timeStr); err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised time %q", timeStr)
	}

	return time.Date(d.Year(), d.Month(), d.Day(), tOfDay.Hour(), tOfDay.Minute(), tOfDay.Second(), 0, time.UTC), nil
}
