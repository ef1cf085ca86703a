package columnar

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/shopspring/decimal"
)

// recordFields is timestamp + 5 decimal columns, each stored as a
// fixed-point int64 scaled by decimalx.FixedPointScale.
const recordFields = 6
const scale = 1e8

func toFixed(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromFloat(scale)).Round(0).IntPart()
}

func fromFixed(v int64) decimal.Decimal {
	return decimal.NewFromInt(v).Div(decimal.NewFromFloat(scale))
}

// encode serializes candles into a zstd-compressed, fixed-width binary
// blob: one row-major record per candle (all six fields stored together),
// little-endian int64s.
func encode(candles []Candle) ([]byte, error) {
	var raw bytes.Buffer
	buf := make([]byte, 8)
	for _, c := range candles {
		vals := [recordFields]int64{
			c.Timestamp,
			toFixed(c.Open),
			toFixed(c.High),
			toFixed(c.Low),
			toFixed(c.Close),
			toFixed(c.Volume),
		}
		for _, v := range vals {
			binary.LittleEndian.PutUint64(buf, uint64(v))
			raw.Write(buf)
		}
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("columnar: new zstd writer: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(raw.Bytes(), nil), nil
}

// decode reverses encode.
func decode(blob []byte) ([]Candle, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("columnar: new zstd reader: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("columnar: decompress: %w", err)
	}

	recordSize := 8 * recordFields
	if len(raw)%recordSize != 0 {
		return nil, fmt.Errorf("columnar: corrupt file, %d bytes not a multiple of record size %d", len(raw), recordSize)
	}

	n := len(raw) / recordSize
	out := make([]Candle, 0, n)
	r := bytes.NewReader(raw)
	buf := make([]byte, 8)
	for i := 0; i < n; i++ {
		var vals [recordFields]int64
		for j := 0; j < recordFields; j++ {
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, fmt.Errorf("columnar: read record %d field %d: %w", i, j, err)
			}
			vals[j] = int64(binary.LittleEndian.Uint64(buf))
		}
		out = append(out, Candle{
			Timestamp: vals[0],
			Open:      fromFixed(vals[1]),
			High:      fromFixed(vals[2]),
			Low:       fromFixed(vals[3]),
			Close:     fromFixed(vals[4]),
			Volume:    fromFixed(vals[5]),
		})
	}
	return out, nil
}
