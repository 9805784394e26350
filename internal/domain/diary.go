package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// DiaryEntry is the note stored for one day. Day is the unique key.
type DiaryEntry struct {
	Day       int64  `json:"day"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

type WriteEntryRequest struct {
	Day  *int64 `json:"day" validate:"required"`
	Text string `json:"text" validate:"required,notblank"`
}

// maxExactDay is the largest integer a JSON client can send as a float
// without losing precision.
const maxExactDay = 1 << 53

// UnmarshalJSON accepts any whole JSON number for day, so 10 and 10.0 name
// the same day. Strings, fractions and out of range values are rejected.
// A missing or null day is left nil for the validator.
func (r *WriteEntryRequest) UnmarshalJSON(data []byte) error {
	var wire struct {
		Day  json.RawMessage `json:"day"`
		Text string          `json:"text"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	day, err := parseDay(wire.Day)
	if err != nil {
		return err
	}

	r.Day = day
	r.Text = wire.Text
	return nil
}

func parseDay(raw json.RawMessage) (*int64, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}

	n, ok := v.(json.Number)
	if !ok {
		return nil, fmt.Errorf("day must be a number, got %s", raw)
	}

	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return &i, nil
	}

	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > maxExactDay {
		return nil, fmt.Errorf("day must be a whole number, got %s", n)
	}
	i := int64(f)
	return &i, nil
}

type TodayResponse struct {
	Day   int64  `json:"day"`
	Start string `json:"start"`
	Now   int64  `json:"now"`
}
