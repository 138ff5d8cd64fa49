package models

import (
	"sort"
	"strings"
	"time"
)

// 线索温度
const (
	StatusHot  = "Hot"
	StatusWarm = "Warm"
	StatusCold = "Cold"
)

// 销售管道阶段
const (
	PipelineNew           = "New"
	PipelineContacted     = "Contacted"
	PipelineAskedTime     = "Asked Time"
	PipelineNotInterested = "Not Interested"
)

// 规范化时的默认值
const (
	DefaultLeadName   = "Unknown Student"
	DefaultLeadPhone  = "0000000000"
	DefaultLeadSource = "Manual"
)

// Conversation 与线索的一次消息往来
type Conversation struct {
	ID        string    `json:"_id,omitempty"`
	UserMsg   string    `json:"userMsg"`
	BotReply  string    `json:"botReply"`
	Timestamp time.Time `json:"timestamp"`
}

// Remark 员工备注
type Remark struct {
	ID        string    `json:"_id"`
	Remark    string    `json:"remark"`
	Timestamp time.Time `json:"timestamp"`
}

// Lead 规范化后的线索
type Lead struct {
	ID                     string         `json:"_id"`
	UserName               string         `json:"userName"`
	UserNumber             string         `json:"userNumber"`
	Course                 *string        `json:"course"`
	ProgramType            *string        `json:"programType"`
	Profession             *string        `json:"profession"`
	Location               *string        `json:"location"`
	LeadFrom               string         `json:"leadfrom"`
	Status                 string         `json:"status"`
	Pipeline               string         `json:"pipeline"`
	AssignedTo             *string        `json:"assignedto"`
	Conversations          []Conversation `json:"conversations"`
	Remarks                []Remark       `json:"remarks"`
	Reminder               *time.Time     `json:"reminder"`
	FollowUpCount          int            `json:"followUpCount"`
	RespondedAfterFollowUp bool           `json:"respondedAfterFollowUp"`
	LastFollowUpSentAt     *time.Time     `json:"lastFollowUpSentAt"`
	DateCreated            time.Time      `json:"datecreated"`
	LastInteracted         time.Time      `json:"lastInteracted"`
}

// IsAssignedTo 线索是否分配给指定员工（大小写敏感，与后端一致）
func (l Lead) IsAssignedTo(username string) bool {
	return l.AssignedTo != nil && *l.AssignedTo == username
}

// RemarksNewestFirst 按时间倒序返回备注副本，时间相同保持原顺序的逆序
func (l Lead) RemarksNewestFirst() []Remark {
	remarks := make([]Remark, len(l.Remarks))
	for i, r := range l.Remarks {
		remarks[len(l.Remarks)-1-i] = r
	}
	sort.SliceStable(remarks, func(i, j int) bool {
		return remarks[i].Timestamp.After(remarks[j].Timestamp)
	})
	return remarks
}

// Clone 深拷贝，保证状态替换时不共享切片
func (l Lead) Clone() Lead {
	c := l
	if l.Conversations != nil {
		c.Conversations = append([]Conversation(nil), l.Conversations...)
	}
	if l.Remarks != nil {
		c.Remarks = append([]Remark(nil), l.Remarks...)
	}
	return c
}

// LeadDetail 线索详情响应
type LeadDetail struct {
	Lead
	Remarks        []Remark `json:"remarks"`
	AssigneeKnown  bool     `json:"assigneeKnown"`
	EditableNumber string   `json:"editableNumber"`
}

// LeadForm 新增/编辑线索表单
type LeadForm struct {
	UserName    string  `json:"userName"`
	UserNumber  string  `json:"userNumber"`
	Course      *string `json:"course"`
	ProgramType *string `json:"programType"`
	Profession  *string `json:"profession"`
	Location    *string `json:"location"`
	LeadFrom    string  `json:"leadfrom"`
	Status      string  `json:"status"`
	Pipeline    string  `json:"pipeline"`
}

// ApplyDefaults 填充表单默认值
func (f LeadForm) ApplyDefaults() LeadForm {
	if f.Course == nil || strings.TrimSpace(*f.Course) == "" {
		f.Course = StrPtr(CourseOptions[0])
	}
	if f.ProgramType == nil || strings.TrimSpace(*f.ProgramType) == "" {
		f.ProgramType = StrPtr(ProgramTypeOptions[0])
	}
	if f.Profession == nil || strings.TrimSpace(*f.Profession) == "" {
		f.Profession = StrPtr(ProfessionOptions[0])
	}
	if strings.TrimSpace(f.LeadFrom) == "" {
		f.LeadFrom = SourceManualFull
	}
	if strings.TrimSpace(f.Status) == "" {
		f.Status = StatusCold
	}
	if strings.TrimSpace(f.Pipeline) == "" {
		f.Pipeline = PipelineNew
	}
	return f
}

// Payload 转为远程接口请求体
func (f LeadForm) Payload() map[string]interface{} {
	payload := map[string]interface{}{
		"userName":   strings.TrimSpace(f.UserName),
		"userNumber": strings.TrimSpace(f.UserNumber),
		"leadfrom":   f.LeadFrom,
		"status":     f.Status,
		"pipeline":   f.Pipeline,
	}
	setOptional(payload, "course", f.Course)
	setOptional(payload, "programType", f.ProgramType)
	setOptional(payload, "profession", f.Profession)
	setOptional(payload, "location", f.Location)
	return payload
}

func setOptional(payload map[string]interface{}, key string, value *string) {
	if value == nil {
		return
	}
	payload[key] = *value
}

// StrPtr 字符串指针
func StrPtr(s string) *string {
	return &s
}
