package broadcast

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Defaults used when the configuration leaves a field empty.
const (
	DefaultSpec     = "0 21 * * *"
	DefaultTimezone = "Europe/Chisinau"
	DefaultMessage  = "ну чё когда в факторку"
)

// ErrInvalidSchedule wraps every schedule configuration error.
var ErrInvalidSchedule = errors.New("invalid broadcast schedule")

// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
var specParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var (
	reHHMM  = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	reDaily = regexp.MustCompile(`^(\d{1,2}) (\d{1,2}) \* \* \*$`)
)

// Schedule is a validated trigger definition plus the message it sends.
// The zero value is not usable; build one with NewSchedule.
type Schedule struct {
	spec    string
	daily   string // "HH:MM" when the spec is a plain daily trigger
	loc     *time.Location
	message string
	sched   cron.Schedule
}

// NewSchedule validates a trigger and message.
//
// spec is either a cron expression/descriptor ("0 21 * * *", "@daily") or a
// daily wall-clock time "HH:MM". timezone is an IANA name evaluated for every
// trigger.
func NewSchedule(spec, timezone, message string) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Schedule{}, fmt.Errorf("%w: schedule required", ErrInvalidSchedule)
	}
	tz := strings.TrimSpace(timezone)
	if tz == "" {
		return Schedule{}, fmt.Errorf("%w: timezone required", ErrInvalidSchedule)
	}
	if strings.TrimSpace(message) == "" {
		return Schedule{}, fmt.Errorf("%w: message required", ErrInvalidSchedule)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Schedule{}, fmt.Errorf("%w: timezone %q: %v", ErrInvalidSchedule, tz, err)
	}

	daily := ""
	if reHHMM.MatchString(spec) {
		h, mm, err := parseHHMM(spec)
		if err != nil {
			return Schedule{}, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		spec = fmt.Sprintf("%d %d * * *", mm, h)
	}
	if m := reDaily.FindStringSubmatch(spec); m != nil {
		mm, _ := strconv.Atoi(m[1])
		h, _ := strconv.Atoi(m[2])
		if h <= 23 && mm <= 59 {
			daily = fmt.Sprintf("%02d:%02d", h, mm)
		}
	}

	sched, err := specParser.Parse(spec)
	if err != nil {
		return Schedule{}, fmt.Errorf("%w: spec %q: %v", ErrInvalidSchedule, spec, err)
	}
	return Schedule{spec: spec, daily: daily, loc: loc, message: message, sched: sched}, nil
}

func (s Schedule) IsZero() bool { return s.sched == nil }

// Spec returns the normalized cron expression.
func (s Schedule) Spec() string { return s.spec }

func (s Schedule) Message() string { return s.message }

func (s Schedule) Location() *time.Location {
	if s.loc == nil {
		return time.Local
	}
	return s.loc
}

// Daily returns the "HH:MM" trigger time when the schedule fires once a day
// at a fixed time, and "" otherwise.
func (s Schedule) Daily() string { return s.daily }

// Next returns the first trigger strictly after t, in the schedule timezone.
func (s Schedule) Next(t time.Time) time.Time {
	if s.sched == nil {
		return time.Time{}
	}
	return s.sched.Next(t.In(s.Location()))
}

// Describe renders the trigger for humans, e.g. "21:00 (Europe/Chisinau)".
func (s Schedule) Describe() string {
	when := s.daily
	if when == "" {
		when = s.spec
	}
	return when + " (" + s.Location().String() + ")"
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
