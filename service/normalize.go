package service

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/BerniceZTT/edulead_crm/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// 支持的时间格式，不带时区的按 UTC 解析
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// NormalizeLead 将任意结构的线索记录规范化，对任何输入都返回完整的 Lead
func NormalizeLead(raw models.RawLead, now time.Time) models.Lead {
	lead := models.Lead{
		ID:                     leadID(raw),
		UserName:               firstString(raw, "userName", "username"),
		UserNumber:             firstString(raw, "userNumber"),
		Course:                 optionalString(raw, "course", "courseofintrest", "title"),
		ProgramType:            optionalString(raw, "programType"),
		Profession:             optionalString(raw, "profession"),
		Location:               optionalString(raw, "location", "city"),
		LeadFrom:               firstString(raw, "leadfrom", "source"),
		Status:                 firstString(raw, "status"),
		Pipeline:               firstString(raw, "pipeline"),
		AssignedTo:             optionalString(raw, "assignedto"),
		Conversations:          normalizeConversations(raw["conversations"], now),
		Remarks:                normalizeRemarks(raw["remarks"], now),
		Reminder:               optionalDate(raw["reminder"]),
		FollowUpCount:          toCount(raw["followUpCount"]),
		RespondedAfterFollowUp: toBool(raw["respondedAfterFollowUp"]),
		LastFollowUpSentAt:     optionalDate(raw["lastFollowUpSentAt"]),
		DateCreated:            UnwrapDate(raw["datecreated"], now),
		LastInteracted:         UnwrapDate(raw["lastInteracted"], now),
	}

	if lead.UserName == "" {
		lead.UserName = models.DefaultLeadName
	}
	if lead.UserNumber == "" {
		lead.UserNumber = models.DefaultLeadPhone
	}
	if lead.LeadFrom == "" {
		lead.LeadFrom = models.DefaultLeadSource
	}
	if lead.Status == "" {
		lead.Status = models.StatusCold
	}
	if lead.Pipeline == "" {
		lead.Pipeline = models.PipelineNew
	}

	return lead
}

// NormalizeLeads 批量规范化
func NormalizeLeads(raws []models.RawLead, now time.Time) []models.Lead {
	leads := make([]models.Lead, 0, len(raws))
	for _, raw := range raws {
		leads = append(leads, NormalizeLead(raw, now))
	}
	return leads
}

// NormalizeUser 规范化员工记录，角色缺省为普通员工
func NormalizeUser(raw models.RawUser) models.User {
	user := models.User{
		ID:         idValue(raw["_id"]),
		Username:   firstString(raw, "username", "userName"),
		Email:      firstString(raw, "useremail", "email"),
		UserNumber: firstString(raw, "userNumber"),
		Role:       models.UserRole(strings.ToLower(firstString(raw, "role"))),
	}
	if user.ID == "" {
		user.ID = idValue(raw["id"])
	}
	if !user.Role.Valid() {
		user.Role = models.UserRoleUSER
	}
	return user
}

// NormalizeUsers 批量规范化员工
func NormalizeUsers(raws []models.RawUser) []models.User {
	users := make([]models.User, 0, len(raws))
	for _, raw := range raws {
		users = append(users, NormalizeUser(raw))
	}
	return users
}

// UnwrapDate 解析字符串、{$date: ...} 包装对象或毫秒时间戳，失败时返回 fallback
func UnwrapDate(value interface{}, fallback time.Time) time.Time {
	if t, ok := resolveDate(value); ok {
		return t
	}
	return fallback
}

// ParseDateString 解析时间字符串
func ParseDateString(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func resolveDate(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case string:
		return ParseDateString(v)
	case time.Time:
		return v, !v.IsZero()
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, !v.IsZero()
	case primitive.DateTime:
		return v.Time().UTC(), true
	case map[string]interface{}:
		if inner, ok := v["$date"]; ok {
			return resolveDate(inner)
		}
		if inner, ok := v["$numberLong"]; ok {
			if ms, ok := toInt64(inner); ok {
				return time.UnixMilli(ms).UTC(), true
			}
		}
	case models.RawLead:
		return resolveDate(map[string]interface{}(v))
	case json.Number, float64, int, int64:
		if ms, ok := toInt64(v); ok {
			return time.UnixMilli(ms).UTC(), true
		}
	}
	return time.Time{}, false
}

func optionalDate(value interface{}) *time.Time {
	if t, ok := resolveDate(value); ok {
		return &t
	}
	return nil
}

func leadID(raw models.RawLead) string {
	if id := idValue(raw["_id"]); id != "" {
		return id
	}
	if id := idValue(raw["id"]); id != "" {
		return id
	}
	return primitive.NewObjectID().Hex()
}

// idValue 解析字符串 id 或 {$oid: "..."} 形式
func idValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case primitive.ObjectID:
		if v.IsZero() {
			return ""
		}
		return v.Hex()
	case map[string]interface{}:
		return idValue(v["$oid"])
	case json.Number:
		return v.String()
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return strconv.FormatInt(int64(v), 10)
		}
	}
	return ""
}

func firstString(raw map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if s := stringValue(raw[key]); s != "" {
			return s
		}
	}
	return ""
}

func optionalString(raw map[string]interface{}, keys ...string) *string {
	if s := firstString(raw, keys...); s != "" {
		return &s
	}
	return nil
}

func stringValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	}
	return ""
}

func toInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		if f, err := v.Float64(); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			return int64(f), true
		}
	case float64:
		if !math.IsInf(v, 0) && !math.IsNaN(v) {
			return int64(v), true
		}
	case int:
		return int64(v), true
	case int64:
		return v, true
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func toCount(value interface{}) int {
	n, ok := toInt64(value)
	if !ok || n < 0 {
		return 0
	}
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(n)
}

func toBool(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && b
	default:
		n, ok := toInt64(v)
		return ok && n != 0
	}
}

func normalizeConversations(value interface{}, now time.Time) []models.Conversation {
	conversations := []models.Conversation{}
	items, ok := value.([]interface{})
	if !ok {
		return conversations
	}
	for _, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		conversations = append(conversations, models.Conversation{
			ID:        idValue(entry["_id"]),
			UserMsg:   stringValue(entry["userMsg"]),
			BotReply:  stringValue(entry["botReply"]),
			Timestamp: UnwrapDate(entry["timestamp"], now),
		})
	}
	return conversations
}

func normalizeRemarks(value interface{}, now time.Time) []models.Remark {
	remarks := []models.Remark{}
	items, ok := value.([]interface{})
	if !ok {
		return remarks
	}
	for _, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		remarks = append(remarks, models.Remark{
			ID:        idValue(entry["_id"]),
			Remark:    stringValue(entry["remark"]),
			Timestamp: UnwrapDate(entry["timestamp"], now),
		})
	}
	return remarks
}
