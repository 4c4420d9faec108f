package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleKind tags the two recurrence variants.
type ScheduleKind string

const (
	ScheduleInterval ScheduleKind = "interval"
	ScheduleCron     ScheduleKind = "cron"
)

// SchedulePolicy computes the next fire time for a recurring job.
type SchedulePolicy struct {
	Kind         ScheduleKind
	IntervalSec  int64
	CronExpr     string // normalized 6-field form
	cronSchedule cron.Schedule
}

var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// ParseSchedulePolicy parses a schedule string: a bare integer is an
// interval in seconds; otherwise the string is split on "|" or space into
// 5/6/7 cron fields (5 fields get "0" prepended for seconds).
func ParseSchedulePolicy(s string) (SchedulePolicy, error) {
	if s == "" {
		return SchedulePolicy{}, fmt.Errorf("%w: schedule", ErrInvalidParams)
	}

	if interval, err := strconv.ParseInt(s, 10, 64); err == nil {
		return SchedulePolicy{Kind: ScheduleInterval, IntervalSec: interval}, nil
	}

	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ' ' })
	switch len(parts) {
	case 5:
		parts = append([]string{"0"}, parts...)
	case 6, 7:
		// already has seconds (and possibly year, which the parser below ignores)
	default:
		return SchedulePolicy{}, fmt.Errorf("%w: schedule", ErrInvalidParams)
	}

	normalized := strings.Join(parts[:6], " ")
	sched, err := cronParser.Parse(normalized)
	if err != nil {
		return SchedulePolicy{}, fmt.Errorf("%w: schedule", ErrInvalidParams)
	}

	return SchedulePolicy{Kind: ScheduleCron, CronExpr: normalized, cronSchedule: sched}, nil
}

// String renders the canonical form.
func (p SchedulePolicy) String() string {
	switch p.Kind {
	case ScheduleInterval:
		return strconv.FormatInt(p.IntervalSec, 10)
	case ScheduleCron:
		return p.CronExpr
	default:
		return ""
	}
}

// NextFire returns the next epoch-second fire time strictly after afterEpochS,
// or false if that time would exceed untilEpochS (when set).
func (p SchedulePolicy) NextFire(afterEpochS int64, untilEpochS *int64) (int64, bool) {
	var next int64
	switch p.Kind {
	case ScheduleInterval:
		if p.IntervalSec <= 0 {
			return 0, false
		}
		next = (afterEpochS/p.IntervalSec)*p.IntervalSec + p.IntervalSec
	case ScheduleCron:
		sched := p.cronSchedule
		if sched == nil {
			parsed, err := cronParser.Parse(p.CronExpr)
			if err != nil {
				return 0, false
			}
			sched = parsed
		}
		next = sched.Next(time.Unix(afterEpochS, 0).UTC()).Unix()
	default:
		return 0, false
	}

	if untilEpochS != nil && next > *untilEpochS {
		return 0, false
	}
	return next, true
}
