package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Observation is a single recorded sample. It is never mutated once appended.
type Observation struct {
	Price float64   `json:"price"`
	Time  Timestamp `json:"time"`
}

// NewObservation builds an observation stamped at the given instant.
func NewObservation(price float64, at time.Time) Observation {
	return Observation{Price: price, Time: NewTimestamp(at)}
}

// Timestamp is persisted as fractional Unix seconds. Values loaded from disk keep
// their original JSON text so rewriting the log does not alter earlier records.
type Timestamp struct {
	t   time.Time
	raw json.RawMessage
}

// NewTimestamp wraps t for persistence.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t: t}
}

// Time returns the wrapped instant.
func (ts Timestamp) Time() time.Time {
	return ts.t
}

// MarshalJSON implements json.Marshaler.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if len(ts.raw) > 0 {
		return ts.raw, nil
	}
	secs := float64(ts.t.UnixNano()) / float64(time.Second)
	return strconv.AppendFloat(nil, secs, 'f', -1, 64), nil
}

// UnmarshalJSON accepts a JSON number of Unix seconds, a string holding such a
// number, or an RFC3339 string.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("timestamp is empty")
	}

	var parsed time.Time
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if secs, err := strconv.ParseFloat(s, 64); err == nil {
			parsed = fromUnixSeconds(secs)
		} else if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			parsed = t
		} else {
			return fmt.Errorf("unrecognised timestamp %q", s)
		}
	} else {
		secs, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("parse timestamp: %w", err)
		}
		parsed = fromUnixSeconds(secs)
	}

	ts.t = parsed
	ts.raw = append(json.RawMessage(nil), data...)
	return nil
}

func fromUnixSeconds(secs float64) time.Time {
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(math.Round(frac*1e9))).UTC()
}
