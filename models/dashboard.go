package models

import "time"

// StatusCounts 按温度统计的线索数量
type StatusCounts struct {
	Total int `json:"total"`
	Hot   int `json:"hot"`
	Warm  int `json:"warm"`
	Cold  int `json:"cold"`
}

// 提醒剩余天数分类
type DaysKind string

const (
	DaysKindOverdue  DaysKind = "overdue"
	DaysKindToday    DaysKind = "today"
	DaysKindUpcoming DaysKind = "upcoming"
	DaysKindInvalid  DaysKind = "invalid"
)

// DaysLabel 提醒剩余天数展示值
type DaysLabel struct {
	Kind DaysKind `json:"kind"`
	Days int      `json:"days"` // 逾期时为逾期天数
	Text string   `json:"text"`
}

// ReminderItem 提醒列表项
type ReminderItem struct {
	Lead    Lead      `json:"lead"`
	DueAt   time.Time `json:"dueAt"`
	Overdue bool      `json:"overdue"`
	Label   DaysLabel `json:"label"`
}

// DashboardView 看板数据
type DashboardView struct {
	Leads         []Lead         `json:"leads"`
	Counts        StatusCounts   `json:"counts"`
	Reminders     []ReminderItem `json:"reminders"`
	FiltersActive bool           `json:"filtersActive"`
}
