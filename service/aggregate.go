package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BerniceZTT/edulead_crm/models"
)

// CountStatuses 按温度统计，未知温度只计入总数
func CountStatuses(leads []models.Lead) models.StatusCounts {
	counts := models.StatusCounts{Total: len(leads)}
	for _, lead := range leads {
		switch strings.ToLower(strings.TrimSpace(lead.Status)) {
		case "hot":
			counts.Hot++
		case "warm":
			counts.Warm++
		case "cold":
			counts.Cold++
		}
	}
	return counts
}

// ReminderQueue 返回设置了提醒的线索，按提醒时间升序，时间相同保持原顺序
func ReminderQueue(leads []models.Lead) []models.Lead {
	queue := make([]models.Lead, 0)
	for _, lead := range leads {
		if lead.Reminder != nil {
			queue = append(queue, lead)
		}
	}
	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].Reminder.Before(*queue[j].Reminder)
	})
	return queue
}

// DaysRemaining 只比较日历日期，统一换算到 now 的时区后取零点相减
func DaysRemaining(reminder *time.Time, now time.Time) models.DaysLabel {
	if reminder == nil || reminder.IsZero() {
		return models.DaysLabel{Kind: models.DaysKindInvalid, Text: "Invalid"}
	}

	loc := now.Location()
	due := midnight(reminder.In(loc))
	today := midnight(now)
	days := calendarDays(today, due)

	switch {
	case days < 0:
		return models.DaysLabel{Kind: models.DaysKindOverdue, Days: -days, Text: fmt.Sprintf("Overdue by %s", pluralDays(-days))}
	case days == 0:
		return models.DaysLabel{Kind: models.DaysKindToday, Text: "Today"}
	default:
		return models.DaysLabel{Kind: models.DaysKindUpcoming, Days: days, Text: fmt.Sprintf("%s left", pluralDays(days))}
	}
}

// DaysRemainingString 从原始字符串计算剩余天数，无法解析时返回 Invalid
func DaysRemainingString(value string, now time.Time) models.DaysLabel {
	t, ok := ParseDateString(value)
	if !ok {
		return DaysRemaining(nil, now)
	}
	return DaysRemaining(&t, now)
}

// BuildReminderItems 为提醒队列附加剩余天数
func BuildReminderItems(queue []models.Lead, now time.Time) []models.ReminderItem {
	items := make([]models.ReminderItem, 0, len(queue))
	for _, lead := range queue {
		if lead.Reminder == nil {
			continue
		}
		items = append(items, models.ReminderItem{
			Lead:    lead,
			DueAt:   *lead.Reminder,
			Overdue: lead.Reminder.Before(now),
			Label:   DaysRemaining(lead.Reminder, now),
		})
	}
	return items
}

// BuildDashboard 计算看板：可见线索、基于可见线索的统计、全部线索的提醒队列
func BuildDashboard(leads []models.Lead, query string, filters models.FilterState, now time.Time) models.DashboardView {
	visible := VisibleLeads(leads, query, filters)
	return models.DashboardView{
		Leads:         visible,
		Counts:        CountStatuses(visible),
		Reminders:     BuildReminderItems(ReminderQueue(leads), now),
		FiltersActive: filters.IsActive(),
	}
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// calendarDays 两个零点之间相差的天数，按 UTC 日期计算以避开夏令时
func calendarDays(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

func pluralDays(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}
