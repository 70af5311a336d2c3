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

// packedRecord mirrors BinFileLoader.h's BinFileItem: 4-byte-aligned C
// struct with an 8-byte instrument code, YYYYMMDD/HHMMSS integer
// date/time, six doubles, and a hot-contract flag. encoding/binary reads
// fields in declared order regardless of Go's own in-memory padding, so
// this layout can be read directly off the wire.
type packedRecord struct {
	Instrument [8]byte
	Date       uint32
	Time       uint32
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	OpenInt    float64
	Hot        uint32
}

const packedRecordSize = 8 + 4 + 4 + 8*6 + 4

// LoadPackedBinary reads the packed-binary bar format (spec.md §6.1),
// scanning sequentially for instrument breaks and, within the run
// matching instrument, contiguous hot_flag >= 0 sub-periods.
func LoadPackedBinary(filePath, instrument string, res bar.Resolution, interval int) (*feed.MemoryFeed, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("dataset.LoadPackedBinary: %w", err)
	}
	if len(data)%packedRecordSize != 0 {
		return nil, fmt.Errorf("dataset.LoadPackedBinary: file size %d is not a multiple of record size %d", len(data), packedRecordSize)
	}

	n := len(data) / packedRecordSize
	var bars []bar.Bar
	var hotFlags []bool
	r := bytes.NewReader(data)
	for i := 0; i < n; i++ {
		var rec packedRecord
		if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
			return nil, fmt.Errorf("dataset.LoadPackedBinary: record %d: %w", i, err)
		}
		inst := cString(rec.Instrument[:])
		if inst != instrument {
			continue // contiguous run belonging to a different instrument
		}
		bars = append(bars, bar.Bar{
			Instrument:   instrument,
			DateTime:     packedDateTime(rec.Date, rec.Time),
			Open:         rec.Open,
			High:         rec.High,
			Low:          rec.Low,
			Close:        rec.Close,
			Volume:       int64(rec.Volume),
			OpenInterest: int64(rec.OpenInt),
			Resolution:   res,
			Interval:     interval,
		})
		hotFlags = append(hotFlags, int32(rec.Hot) >= 0)
	}

	return feed.NewMemoryFeed(instrument, res, interval, bars, hotFlags)
}

// packedDateTime decodes BinFileLoader::getDateTime's YYYYMMDD/HHMMSS
// split.
func packedDateTime(date, t uint32) time.Time {
	year := int(date / 10000)
	month := int((date % 10000) / 100)
	day := int(date % 100)
	hour := int(t / 10000)
	min := int((t % 10000) / 100)
	sec := int(t % 100)
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC)
}

func cString(b []byte) string {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return string(b)
	}
	return string(b[:i])
}
