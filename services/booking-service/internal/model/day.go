package model

import "time"

// Day is a calendar date annotated with its weekday and holiday status.
// Identity is the date; the holiday flag comes from the external holiday
// source and is cached per (country, year).
type Day struct {
	Date    time.Time
	Weekday time.Weekday
	Holiday bool
}

func NewDay(date time.Time, holiday bool) Day {
	d := Date(date)
	return Day{Date: d, Weekday: d.Weekday(), Holiday: holiday}
}
