package core

import (
	"regexp"
	"strings"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

var monthKeyRe = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// MonthKey extracts YYYY-MM from an ISO date.
func MonthKey(date string) string {
	if len(date) < 7 {
		return date
	}
	return date[:7]
}

// ValidMonthKey reports whether key is a well-formed YYYY-MM.
func ValidMonthKey(key string) bool {
	return monthKeyRe.MatchString(key)
}

// CurrentMonthKey returns the month key for now.
func CurrentMonthKey(now time.Time) string {
	return now.Format(monthLayout)
}

// MonthLabel renders "2025-12" as "Dec 2025".
func MonthLabel(key string) string {
	t, err := time.Parse(monthLayout, key)
	if err != nil {
		return key
	}
	return t.Format("Jan 2006")
}

// FormatDate renders "2025-12-05" as "Dec 5, 2025".
func FormatDate(iso string) string {
	t, err := time.Parse(dateLayout, iso)
	if err != nil {
		return iso
	}
	return t.Format("Jan 2, 2006")
}

// ValidateDate checks a YYYY-MM-DD date string.
func ValidateDate(date string) error {
	date = strings.TrimSpace(date)
	if date == "" {
		return ErrEmptyDate
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return ErrInvalidDate
	}
	return nil
}

// Today returns the ISO date for now.
func Today(now time.Time) string {
	return now.Format(dateLayout)
}
