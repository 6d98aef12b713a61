package pedido

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const dataLayout = "2006-01-02"

// Data is a calendar date with no time of day or zone.
type Data struct {
	t time.Time
}

func NewData(year int, month time.Month, day int) Data {
	return Data{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func ParseData(value string) (Data, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Data{}, nil
	}
	if len(value) > len(dataLayout) && value[len(dataLayout)] == 'T' {
		value = value[:len(dataLayout)]
	}
	parsed, err := time.Parse(dataLayout, value)
	if err != nil {
		return Data{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", value)
	}
	return Data{t: parsed}, nil
}

func (d Data) IsZero() bool { return d.t.IsZero() }

func (d Data) Time() time.Time { return d.t }

func (d Data) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(dataLayout)
}

func (d Data) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Data) UnmarshalJSON(raw []byte) error {
	if string(raw) == "null" {
		*d = Data{}
		return nil
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("date must be a string")
	}
	parsed, err := ParseData(value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Data) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.t, nil
}

func (d *Data) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Data{}
		return nil
	case time.Time:
		*d = NewData(v.Year(), v.Month(), v.Day())
		return nil
	case string:
		return d.scanString(v)
	case []byte:
		return d.scanString(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Data", src)
	}
}

func (d *Data) scanString(value string) error {
	value = strings.TrimSpace(value)
	if len(value) > len(dataLayout) {
		value = value[:len(dataLayout)]
	}
	parsed, err := ParseData(value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
