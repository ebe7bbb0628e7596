package marketdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// LoadCSV reads a candle file into a single-symbol Series. The file must
// carry a header row naming at least open_time, open, high, low and close;
// a volume column is picked up when present. open_time is Unix milliseconds.
func LoadCSV(path, symbol string) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("marketdata: opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("marketdata: reading header of %s: %w", path, err)
	}
	cols := map[string]int{}
	for i, name := range header {
		cols[name] = i
	}
	for _, required := range []string{"open_time", "open", "high", "low", "close"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("marketdata: %s is missing column %q", path, required)
		}
	}
	volCol, hasVol := cols["volume"]

	var (
		times []time.Time
		bars  []Bar
		row   = 1
	)
	for {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("marketdata: %s row %d: %w", path, row, err)
		}
		row++

		ms, err := strconv.ParseInt(rec[cols["open_time"]], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("marketdata: %s row %d: bad open_time: %w", path, row, err)
		}
		b := Bar{}
		for _, fld := range []struct {
			name string
			dst  *float64
		}{
			{"open", &b.Open}, {"high", &b.High}, {"low", &b.Low}, {"close", &b.Close},
		} {
			v, err := strconv.ParseFloat(rec[cols[fld.name]], 64)
			if err != nil {
				return nil, fmt.Errorf("marketdata: %s row %d: bad %s: %w", path, row, fld.name, err)
			}
			*fld.dst = v
		}
		if hasVol {
			if v, err := strconv.ParseFloat(rec[volCol], 64); err == nil {
				b.Volume = v
			}
		}
		times = append(times, time.UnixMilli(ms).UTC())
		bars = append(bars, b)
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("marketdata: %s contains no bars", path)
	}
	return NewSeries(symbol, times, bars)
}
