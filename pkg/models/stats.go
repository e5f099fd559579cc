package models

// BatchResult is the aggregate tally of one or more bulk-write calls.
// For a single call, Success+Failed always equals the number of
// documents submitted.
type BatchResult struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// Add accumulates another batch's tally into r.
func (r *BatchResult) Add(other BatchResult) {
	r.Success += other.Success
	r.Failed += other.Failed
}

// Total returns the number of documents accounted for.
func (r BatchResult) Total() int { return r.Success + r.Failed }

// UserStat is one entry of a most-active-users ranking.
type UserStat struct {
	Username     string `json:"username"`
	MessageCount int    `json:"message_count"`
}

// ReactionStat is one entry of a most-used-reactions ranking.
type ReactionStat struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// DailyStats is the per-day rollup for one channel. It is computed on
// demand and never persisted.
type DailyStats struct {
	Date          string `json:"date"` // YYYY-MM-DD
	MessageCount  int    `json:"message_count"`
	ReactionCount int    `json:"reaction_count"`

	// HourlyMessageCounts always holds exactly 24 values indexed by
	// hour of day; hours without activity are explicit zeros.
	HourlyMessageCounts []int `json:"hourly_message_counts"`

	UserStats    []UserStat     `json:"user_stats,omitempty"`
	TopReactions []ReactionStat `json:"top_reactions,omitempty"`
}

// TopPost is one entry of the reaction-weight ranking. Link may be
// empty when no usable timestamp source existed for the post.
type TopPost struct {
	Text          string     `json:"text"`
	Link          string     `json:"link,omitempty"`
	UserID        string     `json:"user_id"`
	ReactionCount int        `json:"reaction_count"`
	Reactions     []Reaction `json:"reactions"`
}

// WeeklyStats is the 7-day rollup ending at EndDate. Totals cover only
// the days that computed successfully; a day listed in ErrorDates
// contributes nothing and is absent from DailyStats.
type WeeklyStats struct {
	StartDate string `json:"start_date"` // YYYY-MM-DD
	EndDate   string `json:"end_date"`

	MessageCount  int `json:"message_count"`
	ReactionCount int `json:"reaction_count"`

	// HourlyMessageCounts is the day-ordered concatenation of each
	// successful day's 24-value series. Its length is 24 * len(DailyStats),
	// i.e. less than 168 when any day failed; consumers indexing into
	// fixed 168-slot layouts must account for that.
	HourlyMessageCounts []int `json:"hourly_message_counts"`

	TopPosts   []TopPost    `json:"top_posts,omitempty"`
	ErrorDates []string     `json:"error_dates,omitempty"`
	DailyStats []DailyStats `json:"daily_stats"`
}

// IsEmpty reports whether no day of the period produced data, the
// sentinel condition for "no data for period".
func (w WeeklyStats) IsEmpty() bool { return len(w.DailyStats) == 0 }
