package limiter

import (
	"strconv"
	"time"
)

// WindowKey is the fixed-window counter key for one window index.
func WindowKey(tenantID, endpointClass string, windowIndex int64) string {
	return "rate_limit:" + tenantID + ":" + endpointClass + ":" + strconv.FormatInt(windowIndex, 10)
}

// BucketKey is the token-bucket state key.
func BucketKey(tenantID, endpointClass string) string {
	return "burst_rate_limit:" + tenantID + ":" + endpointClass
}

// QuotaKey is the usage key for the calendar month (UTC) containing at.
func QuotaKey(tenantID string, dim Dimension, at time.Time) string {
	return "quota:" + tenantID + ":" + string(dim) + ":" + at.UTC().Format("2006-01")
}

// windowIndex is floor(now / window) in milliseconds.
func windowIndex(now time.Time, window time.Duration) int64 {
	ms := window.Milliseconds()
	t := now.UnixMilli()
	idx := t / ms
	if t%ms < 0 {
		idx--
	}
	return idx
}

// nextMonth returns the first instant of the UTC month after at.
func nextMonth(at time.Time) time.Time {
	u := at.UTC()
	return time.Date(u.Year(), u.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

// ceilSeconds rounds d up to a whole number of seconds, with a floor of one.
func ceilSeconds(d time.Duration) time.Duration {
	if d <= time.Second {
		return time.Second
	}
	return (d + time.Second - 1) / time.Second * time.Second
}
