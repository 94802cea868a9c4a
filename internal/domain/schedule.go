package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/vladimiradmaev/dosekit/internal/utils"
)

const minutesPerDay = 24 * 60

// ScheduleItem is one segment of a daily schedule. StartTime uses the
// "HH:MM" wall-clock format; the segment extends until the next item's start
// (or midnight for the last item).
type ScheduleItem struct {
	StartTime string
	Value     float64
}

// DailySchedule maps any wall-clock time to a scheduled value, repeating
// every 24 hours.
type DailySchedule struct {
	items []scheduleItem
}

type scheduleItem struct {
	startMinutes int
	value        float64
}

// NewDailySchedule validates and builds a schedule. Items must start at
// "00:00", be strictly increasing, and use valid "HH:MM" times, so that the
// full day is covered.
func NewDailySchedule(items []ScheduleItem) (*DailySchedule, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("schedule requires at least one item")
	}
	parsed := make([]scheduleItem, 0, len(items))
	for _, item := range items {
		if _, err := time.Parse("15:04", item.StartTime); err != nil {
			return nil, fmt.Errorf("invalid start time format %q: %w", item.StartTime, err)
		}
		parsed = append(parsed, scheduleItem{
			startMinutes: utils.TimeToMinutes(item.StartTime),
			value:        item.Value,
		})
	}
	sort.Slice(parsed, func(i, j int) bool {
		return parsed[i].startMinutes < parsed[j].startMinutes
	})
	if parsed[0].startMinutes != 0 {
		return nil, fmt.Errorf("schedule must start at 00:00 to cover the full day")
	}
	for i := 1; i < len(parsed); i++ {
		if parsed[i].startMinutes == parsed[i-1].startMinutes {
			return nil, fmt.Errorf("schedule items overlap at minute %d", parsed[i].startMinutes)
		}
	}
	return &DailySchedule{items: parsed}, nil
}

// ValueAt returns the scheduled value in effect at t.
func (s *DailySchedule) ValueAt(t time.Time) float64 {
	minutes := t.Hour()*60 + t.Minute()
	value := s.items[0].value
	for _, item := range s.items {
		if item.startMinutes > minutes {
			break
		}
		value = item.value
	}
	return value
}

// Between returns the absolute schedule segments overlapping [start, end),
// clipped to the interval and in chronological order.
func (s *DailySchedule) Between(start, end time.Time) []AbsoluteScheduleValue {
	if !end.After(start) {
		return nil
	}
	var segments []AbsoluteScheduleValue
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	for day.Before(end) {
		for i, item := range s.items {
			segStart := day.Add(time.Duration(item.startMinutes) * time.Minute)
			var segEnd time.Time
			if i+1 < len(s.items) {
				segEnd = day.Add(time.Duration(s.items[i+1].startMinutes) * time.Minute)
			} else {
				segEnd = day.Add(minutesPerDay * time.Minute)
			}
			if !segEnd.After(start) || !segStart.Before(end) {
				continue
			}
			if segStart.Before(start) {
				segStart = start
			}
			if segEnd.After(end) {
				segEnd = end
			}
			segments = append(segments, AbsoluteScheduleValue{
				StartDate: segStart,
				EndDate:   segEnd,
				Value:     item.value,
			})
		}
		day = day.AddDate(0, 0, 1)
	}
	return segments
}

// AbsoluteScheduleValue is a scheduled value over an absolute time interval.
type AbsoluteScheduleValue struct {
	StartDate time.Time
	EndDate   time.Time
	Value     float64
}

// BasalRateSchedule is a daily schedule of basal rates in U/hr.
type BasalRateSchedule struct {
	DailySchedule
}

// NewBasalRateSchedule builds a basal rate schedule from HH:MM items.
func NewBasalRateSchedule(items []ScheduleItem) (*BasalRateSchedule, error) {
	s, err := NewDailySchedule(items)
	if err != nil {
		return nil, err
	}
	return &BasalRateSchedule{DailySchedule: *s}, nil
}

// InsulinSensitivitySchedule is a daily schedule of ISF values in mg/dL
// per unit.
type InsulinSensitivitySchedule struct {
	DailySchedule
}

// NewInsulinSensitivitySchedule builds a sensitivity schedule.
func NewInsulinSensitivitySchedule(items []ScheduleItem) (*InsulinSensitivitySchedule, error) {
	s, err := NewDailySchedule(items)
	if err != nil {
		return nil, err
	}
	return &InsulinSensitivitySchedule{DailySchedule: *s}, nil
}

// CarbRatioSchedule is a daily schedule of carb ratios in grams per unit.
type CarbRatioSchedule struct {
	DailySchedule
}

// NewCarbRatioSchedule builds a carb ratio schedule.
func NewCarbRatioSchedule(items []ScheduleItem) (*CarbRatioSchedule, error) {
	s, err := NewDailySchedule(items)
	if err != nil {
		return nil, err
	}
	return &CarbRatioSchedule{DailySchedule: *s}, nil
}

// BasalRateHistory is a chronological list of absolute basal-rate-change
// points, used when pump schedule changes do not align to a daily schedule.
type BasalRateHistory []AbsoluteScheduleValue

// Between returns the history segments overlapping [start, end), clipped to
// the interval.
func (h BasalRateHistory) Between(start, end time.Time) []AbsoluteScheduleValue {
	var segments []AbsoluteScheduleValue
	for _, segment := range h {
		if !segment.EndDate.After(start) || !segment.StartDate.Before(end) {
			continue
		}
		clipped := segment
		if clipped.StartDate.Before(start) {
			clipped.StartDate = start
		}
		if clipped.EndDate.After(end) {
			clipped.EndDate = end
		}
		segments = append(segments, clipped)
	}
	return segments
}
