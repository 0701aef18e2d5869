package core

import (
	"time"
)

// ScheduleOptions controls how composed posts are spread over a calendar.
type ScheduleOptions struct {
	Start        time.Time
	PostsPerWeek int
	TimeTables   TimeTables
	// B2B skips Saturdays and Sundays entirely.
	B2B      bool
	Now      time.Time
	Location *time.Location
}

// SlotTimes assigns one timestamp per entry of platforms, in order.
//
// The walk starts at midnight of opts.Start. Posts of a week are floor(7/ppw)
// days apart, and the first 7 mod ppw of them skip one extra day so the week
// stays balanced (4 per week lands Mon/Wed/Fri/Sun). Above 7 per week slot i
// lands on day floor(i*7/ppw).
// The time of day rotates through the platform's table by a running post
// counter. A candidate that is not after now, or not after the previous
// post, exhausts its day. The returned times are strictly increasing.
func SlotTimes(platforms []Platform, opts ScheduleOptions) []time.Time {
	loc := opts.Location
	if loc == nil {
		loc = opts.Start.Location()
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	ppw := opts.PostsPerWeek
	if ppw <= 0 {
		ppw = 1
	}

	start := opts.Start.In(loc)
	weekStart := midnight(start, loc)
	cursor := weekStart
	slot := 0
	counter := 0
	var last time.Time

	out := make([]time.Time, 0, len(platforms))
	for _, platform := range platforms {
		table := opts.TimeTables.For(platform)
		for {
			for !cursor.Before(weekStart.AddDate(0, 0, 7)) {
				weekStart = weekStart.AddDate(0, 0, 7)
				slot = 0
			}
			if slot >= ppw {
				weekStart = weekStart.AddDate(0, 0, 7)
				slot = 0
				if cursor.Before(weekStart) {
					cursor = weekStart
				}
				continue
			}

			target := weekStart.AddDate(0, 0, dayOffset(slot, ppw))
			if target.Before(cursor) {
				target = cursor
			}
			if opts.B2B && isWeekend(target) {
				cursor = target.AddDate(0, 0, 1)
				continue
			}

			tod := table[counter%len(table)]
			ts := time.Date(target.Year(), target.Month(), target.Day(), tod.Hour, tod.Minute, 0, 0, loc)
			if !ts.After(now) || !ts.After(last) {
				cursor = target.AddDate(0, 0, 1)
				continue
			}

			out = append(out, ts)
			last = ts
			counter++
			slot++
			if ppw <= 7 {
				cursor = target.AddDate(0, 0, 1)
			} else {
				cursor = target
			}
			break
		}
	}
	return out
}

// ScheduledSlot pairs a composed post with its publish time.
type ScheduledSlot struct {
	Post ComposedPost
	At   time.Time
}

// ScheduleCalendar places posts on the calendar in the order given.
func ScheduleCalendar(posts []ComposedPost, opts ScheduleOptions) []ScheduledSlot {
	platforms := make([]Platform, len(posts))
	for i, p := range posts {
		platforms[i] = p.Platform
	}
	times := SlotTimes(platforms, opts)
	out := make([]ScheduledSlot, len(posts))
	for i, p := range posts {
		out[i] = ScheduledSlot{Post: p, At: times[i]}
	}
	return out
}

// BuildScheduledPosts turns composed posts into scheduled records for userID.
func BuildScheduledPosts(userID string, runID *string, posts []ComposedPost, opts ScheduleOptions) []*ScheduledPost {
	slots := ScheduleCalendar(posts, opts)

	created := opts.Now
	if created.IsZero() {
		created = time.Now()
	}
	created = created.UTC()

	out := make([]*ScheduledPost, 0, len(slots))
	for _, slot := range slots {
		p := slot.Post
		post := &ScheduledPost{
			ID:           NewID(),
			UserID:       userID,
			RunID:        runID,
			Content:      p.Content,
			Platform:     p.Platform,
			Category:     p.Category,
			ScheduledFor: slot.At.UTC(),
			Status:       PostStatusScheduled,
			CreatedAt:    created,
			UpdatedAt:    created,
		}
		if p.ImageURL != "" {
			url := p.ImageURL
			post.ImageURL = &url
		}
		out = append(out, post)
	}
	return out
}

// dayOffset is the day within the week of the given weekly slot.
func dayOffset(slot, ppw int) int {
	if ppw > 7 {
		return slot * 7 / ppw
	}
	return slot*(7/ppw) + min(slot, 7%ppw)
}

func midnight(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
