package gwasm

import (
	"encoding/json"
	"fmt"
	"time"
)

// Timeout is a task deadline in the daemon's clock format, HH:MM:SS. The
// zero value is not a valid timeout; build one with ParseTimeout or
// NewTimeout.
type Timeout struct {
	d time.Duration
}

// DefaultTimeout is applied to both the task and subtask deadlines when a
// builder is not given explicit values.
var DefaultTimeout = Timeout{d: 10 * time.Minute}

// NewTimeout truncates d to whole seconds. Durations outside (0s, 24h) are
// rejected since the wire format cannot carry them.
func NewTimeout(d time.Duration) (Timeout, error) {
	d = d.Truncate(time.Second)
	if d <= 0 {
		return Timeout{}, ErrZeroTimeout
	}
	if d >= 24*time.Hour {
		return Timeout{}, fmt.Errorf("timeout %v does not fit in HH:MM:SS", d)
	}
	return Timeout{d: d}, nil
}

// ParseTimeout parses a strict HH:MM:SS string: exactly two digits per
// component, hours below 24, minutes and seconds below 60. A value of
// 00:00:00 is rejected with ErrZeroTimeout.
func ParseTimeout(s string) (Timeout, error) {
	if len(s) != len("00:00:00") || s[2] != ':' || s[5] != ':' {
		return Timeout{}, fmt.Errorf("invalid timeout %q: expected HH:MM:SS", s)
	}

	hours, err := timeoutComponent(s[0:2], 23)
	if err != nil {
		return Timeout{}, fmt.Errorf("invalid timeout %q: %w", s, err)
	}
	minutes, err := timeoutComponent(s[3:5], 59)
	if err != nil {
		return Timeout{}, fmt.Errorf("invalid timeout %q: %w", s, err)
	}
	seconds, err := timeoutComponent(s[6:8], 59)
	if err != nil {
		return Timeout{}, fmt.Errorf("invalid timeout %q: %w", s, err)
	}

	d := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second
	if d == 0 {
		return Timeout{}, fmt.Errorf("invalid timeout %q: %w", s, ErrZeroTimeout)
	}

	return Timeout{d: d}, nil
}

func timeoutComponent(s string, max int) (int, error) {
	if s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, fmt.Errorf("non-numeric component %q", s)
	}
	n := int(s[0]-'0')*10 + int(s[1]-'0')
	if n > max {
		return 0, fmt.Errorf("component %q out of range", s)
	}
	return n, nil
}

// Duration returns the timeout as a time.Duration.
func (t Timeout) Duration() time.Duration {
	return t.d
}

func (t Timeout) String() string {
	d := t.d
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

func (t Timeout) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Timeout) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeout(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
