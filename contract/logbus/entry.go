package logbus

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

const isoLocal = "2006-01-02T15:04:05"

// Entry is the wire body of one forwarded log record.
// It is serialized as a flat JSON object with exactly these five keys.
type Entry struct {
	Service string `json:"service"`
	Level   string `json:"level"`
	Message string `json:"message"`
	Time    string `json:"time"`
	Host    string `json:"host"`
}

// NewEntry builds an Entry. No field is validated; empty strings are legal.
func NewEntry(service, level, message string, created time.Time, host string) Entry {
	return Entry{
		Service: service,
		Level:   level,
		Message: message,
		Time:    FormatTime(created),
		Host:    host,
	}
}

// EpochTime converts fractional epoch seconds to a time.Time, rounded to the microsecond.
func EpochTime(seconds float64) time.Time {
	sec, frac := math.Modf(seconds)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*int64(time.Microsecond))
}

// FormatTime renders t in local time as ISO-8601 without a zone suffix.
// Microseconds are appended only when non-zero.
func FormatTime(t time.Time) string {
	t = t.Local()

	s := t.Format(isoLocal)
	if us := t.Nanosecond() / int(time.Microsecond); us != 0 {
		s += fmt.Sprintf(".%06d", us)
	}

	return s
}

// Encode returns the UTF-8 JSON body.
func (e Entry) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEntry parses a body produced by Encode.
func DecodeEntry(b []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return Entry{}, err
	}

	return e, nil
}

func (e Entry) String() string {
	return fmt.Sprintf("LogEntry(service=%q, level=%q, message=%q, time=%q, host=%q)",
		e.Service, e.Level, e.Message, e.Time, e.Host)
}
