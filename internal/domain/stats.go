package domain

import "time"

// TickStats holds statistics about one scheduler pass.
type TickStats struct {
	Targets    int           `json:"targets"`
	Failed     int           `json:"failed"`
	NewPosts   int           `json:"new_posts"`
	Dispatched int           `json:"dispatched"`
	Duration   time.Duration `json:"duration"`
}
