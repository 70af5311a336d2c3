package dataset

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"xbacktest/internal/bar"
	"xbacktest/internal/feed"
)

// tsRecord mirrors TsFileLoader.h's TsFileItem: a 1-byte-packed C struct
// (no padding at all) with a 32-byte instrument name, a tick-count
// datetime, four doubles, and two 64-bit volumes.
type tsRecord struct {
	Name     [32]byte
	DateTime int64
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   int64
	OpenInt  int64
}

const tsRecordSize = 32 + 8 + 8*4 + 8 + 8

// ticksPerSecond is the TeaFiles/.NET tick resolution: 100-nanosecond
// units.
const ticksPerSecond = 10_000_000

// epochTicks is the number of 100ns ticks between the TeaFiles epoch
// (0001-01-01T00:00:00Z, the .NET DateTime.Ticks origin) and the Unix
// epoch, used to convert tick counts without overflowing int64 duration
// arithmetic.
const epochTicks = 621_355_968_000_000_000

// LoadTimeSeriesBinary reads the time-series-binary bar format (spec.md
// §6.1): fixed-width records packed with no padding, timestamped in
// ticks since a fixed epoch.
func LoadTimeSeriesBinary(filePath, instrument string, res bar.Resolution, interval int) (*feed.MemoryFeed, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("dataset.LoadTimeSeriesBinary: %w", err)
	}
	if len(data)%tsRecordSize != 0 {
		return nil, fmt.Errorf("dataset.LoadTimeSeriesBinary: file size %d is not a multiple of record size %d", len(data), tsRecordSize)
	}

	n := len(data) / tsRecordSize
	var bars []bar.Bar
	r := bytes.NewReader(data)
	for i := 0; i < n; i++ {
		var rec tsRecord
		if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
			return nil, fmt.Errorf("dataset.LoadTimeSeriesBinary: record %d: %w", i, err)
		}
		inst := cString(rec.Name[:])
		if inst != instrument {
			continue
		}
		bars = append(bars, bar.Bar{
			Instrument:   instrument,
			DateTime:     ticksToTime(rec.DateTime),
			Open:         rec.Open,
			High:         rec.High,
			Low:          rec.Low,
			Close:        rec.Close,
			Volume:       rec.Volume,
			OpenInterest: rec.OpenInt,
			Resolution:   res,
			Interval:     interval,
		})
	}

	return feed.NewMemoryFeed(instrument, res, interval, bars, nil)
}

// ticksToTime converts a TeaFiles-style tick count into a time.Time via
// the Unix epoch, avoiding the int64-duration overflow that a direct
// offset from year 1 would hit.
func ticksToTime(ticks int64) time.Time {
	unixTicks := ticks - epochTicks
	sec := unixTicks / ticksPerSecond
	nsec := (unixTicks % ticksPerSecond) * 100
	return time.Unix(sec, nsec).UTC()
}
