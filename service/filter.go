package service

import (
	"strings"
	"time"

	"github.com/BerniceZTT/edulead_crm/models"
)

// 截止日期包含当天全天
const toDateInclusive = 24 * time.Hour

// 来源标签格式不统一，这些类别按子串模糊匹配
var fuzzySources = []string{"whatsapp", "manual"}

// VisibleLeads 按搜索词与筛选条件过滤线索，保持输入顺序且不修改输入
func VisibleLeads(leads []models.Lead, query string, filters models.FilterState) []models.Lead {
	matcher := newLeadMatcher(query, filters)

	visible := make([]models.Lead, 0, len(leads))
	for _, lead := range leads {
		if matcher.match(lead) {
			visible = append(visible, lead)
		}
	}
	return visible
}

// ParseFilterDate 解析筛选日期，纯日期按 UTC 零点
func ParseFilterDate(value string) (time.Time, bool) {
	return ParseDateString(value)
}

type leadMatcher struct {
	query         string
	courses       []string
	programTypes  []string
	professions   []string
	statuses      []string
	pipelines     []string
	assignedUsers []string
	sources       []string
	from          *time.Time
	to            *time.Time
}

func newLeadMatcher(query string, filters models.FilterState) *leadMatcher {
	m := &leadMatcher{
		query:         strings.ToLower(query),
		courses:       lowerAll(filters.Courses),
		programTypes:  lowerAll(filters.ProgramTypes),
		professions:   lowerAll(filters.Professions),
		statuses:      lowerAll(filters.Statuses),
		pipelines:     lowerAll(filters.Pipelines),
		assignedUsers: lowerAll(filters.AssignedUsers),
		sources:       lowerAll(filters.Sources),
	}
	if from, ok := ParseFilterDate(filters.FromDate); ok {
		m.from = &from
	}
	if to, ok := ParseFilterDate(filters.ToDate); ok {
		end := to.Add(toDateInclusive)
		m.to = &end
	}
	return m
}

func (m *leadMatcher) match(lead models.Lead) bool {
	return m.matchText(lead) &&
		matchOptional(m.courses, lead.Course) &&
		matchOptional(m.programTypes, lead.ProgramType) &&
		matchOptional(m.professions, lead.Profession) &&
		matchValue(m.statuses, lead.Status) &&
		matchValue(m.pipelines, lead.Pipeline) &&
		matchOptional(m.assignedUsers, lead.AssignedTo) &&
		m.matchSource(lead.LeadFrom) &&
		m.matchDate(lead.DateCreated)
}

func (m *leadMatcher) matchText(lead models.Lead) bool {
	if m.query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(lead.UserName), m.query) ||
		strings.Contains(strings.ToLower(lead.UserNumber), m.query)
}

func (m *leadMatcher) matchSource(source string) bool {
	if len(m.sources) == 0 {
		return true
	}
	source = strings.ToLower(strings.TrimSpace(source))
	for _, token := range m.sources {
		if isFuzzySource(token) {
			if source != "" && (strings.Contains(source, token) || strings.Contains(token, source)) {
				return true
			}
			continue
		}
		if token == source {
			return true
		}
	}
	return false
}

func (m *leadMatcher) matchDate(created time.Time) bool {
	if m.from != nil && created.Before(*m.from) {
		return false
	}
	if m.to != nil && created.After(*m.to) {
		return false
	}
	return true
}

// isFuzzySource 选中的来源是否属于模糊匹配的类别
func isFuzzySource(value string) bool {
	for _, category := range fuzzySources {
		if strings.Contains(value, category) {
			return true
		}
	}
	return false
}

func matchValue(selected []string, value string) bool {
	if len(selected) == 0 {
		return true
	}
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return false
	}
	for _, s := range selected {
		if s == value {
			return true
		}
	}
	return false
}

func matchOptional(selected []string, value *string) bool {
	if len(selected) == 0 {
		return true
	}
	if value == nil {
		return false
	}
	return matchValue(selected, *value)
}

func lowerAll(values []string) []string {
	lowered := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			lowered = append(lowered, v)
		}
	}
	return lowered
}
