package stats

type DayStatus struct {
	Date   string `json:"date"`
	Status string `json:"status"`
}

type MemberMonthResponse struct {
	MemberID int64       `json:"member_id"`
	Month    string      `json:"month"`
	Days     []DayStatus `json:"days"`
}

type MemberSummaryResponse struct {
	MemberID     int64         `json:"member_id"`
	Month        string        `json:"month"`
	DaysAttended int           `json:"days_attended"`
	TotalSeconds int64         `json:"total_seconds"`
	TotalHours   float64       `json:"total_hours"`
	Grade        string        `json:"grade,omitempty"`
	TeamRate     *RateResponse `json:"team_rate,omitempty"`
}

type GenerationCount struct {
	Generation int `json:"generation"`
	Count      int `json:"count"`
}

type TeamView struct {
	TeamID      int64             `json:"team_id"`
	Name        string            `json:"name"`
	Total       int               `json:"total"`
	Generations []GenerationCount `json:"generations"`
}

type DayView struct {
	Date  string     `json:"date"`
	Total int        `json:"total"`
	Teams []TeamView `json:"teams"`
}

type DailySummaryResponse struct {
	Month string    `json:"month"`
	Days  []DayView `json:"days"`
}

type RateResponse struct {
	TeamID     int64   `json:"team_id"`
	WindowDays int     `json:"window_days"`
	From       string  `json:"from"`
	To         string  `json:"to"`
	TeamSize   int     `json:"team_size"`
	ActiveDays int     `json:"active_days"`
	Rate       float64 `json:"rate"`
}
