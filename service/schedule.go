package service

import (
	"context"
	"time"

	"github.com/BerniceZTT/edulead_crm/models"
	"github.com/BerniceZTT/edulead_crm/utils"
)

// ScheduleEvery 按固定间隔执行任务，ctx 取消后退出；interval 不大于 0 时不启动
func ScheduleEvery(ctx context.Context, interval time.Duration, task func(context.Context)) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				task(ctx)
			}
		}
	}()
}

// 每天指定时间执行任务
func ScheduleDailyTaskAt(ctx context.Context, hour, min, sec int, task func(context.Context)) {
	go func() {
		for {
			now := time.Now()
			timer := time.NewTimer(nextDailyRun(now, hour, min, sec).Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				task(ctx)
			}
		}
	}()
}

func nextDailyRun(now time.Time, hour, min, sec int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, min, sec, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// ReminderDigest 提醒汇总
type ReminderDigest struct {
	Total    int `json:"total"`
	Overdue  int `json:"overdue"`
	DueToday int `json:"dueToday"`
}

// SummarizeReminders 统计逾期与今日到期的提醒
func SummarizeReminders(items []models.ReminderItem) ReminderDigest {
	digest := ReminderDigest{Total: len(items)}
	for _, item := range items {
		switch item.Label.Kind {
		case models.DaysKindOverdue:
			digest.Overdue++
		case models.DaysKindToday:
			digest.DueToday++
		}
	}
	return digest
}

// ProcessReminderDigest 每日提醒检查：先刷新工作集，再记录并广播汇总
func ProcessReminderDigest(ctx context.Context, c *Coordinator, hub Broadcaster) {
	if _, ok := c.session.Current(); !ok {
		utils.Logger.Debug().Msg("未登录，跳过每日提醒检查")
		return
	}
	if err := c.Refresh(ctx); err != nil {
		utils.Logger.Warn().Err(err).Msg("每日提醒检查刷新失败，使用现有数据")
	}

	digest := SummarizeReminders(c.Reminders())
	utils.Logger.Info().
		Int("total", digest.Total).
		Int("overdue", digest.Overdue).
		Int("dueToday", digest.DueToday).
		Msg("每日提醒检查完成")

	if hub != nil && digest.Total > 0 {
		hub.Broadcast(LiveEvent{Type: EventReminderDigest, Data: digest})
	}
}
