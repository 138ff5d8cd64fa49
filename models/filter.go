package models

import "strings"

// 线索来源中可模糊匹配的类别
const (
	SourceWhatsApp   = "WhatsApp"
	SourceMetaAds    = "Meta Ads"
	SourceWebsite    = "Website"
	SourceManualFull = "Manual (Call / Walk-in / Referral)"
)

// 筛选面板与表单的可选项
var (
	CourseOptions      = []string{"Python Fullstack with AI", "Java Fullstack with AI", "MERN Stack with AI", "Data Science", "Data Analytics", "Digital Marketing"}
	ProgramTypeOptions = []string{"8 Hours", "2 Hours"}
	ProfessionOptions  = []string{"Job Seeker", "Student", "Working Professional"}
	SourceOptions      = []string{SourceWhatsApp, SourceMetaAds, SourceWebsite, SourceManualFull}
	StatusOptions      = []string{StatusHot, StatusWarm, StatusCold}
	PipelineOptions    = []string{PipelineNew, PipelineContacted, PipelineAskedTime, PipelineNotInterested}
)

// FilterState 多维筛选条件，不持久化
type FilterState struct {
	Courses       []string `json:"courses" form:"courses"`
	ProgramTypes  []string `json:"programTypes" form:"programTypes"`
	Professions   []string `json:"professions" form:"professions"`
	Sources       []string `json:"sources" form:"sources"`
	Statuses      []string `json:"statuses" form:"statuses"`
	Pipelines     []string `json:"pipelines" form:"pipelines"`
	AssignedUsers []string `json:"assignedUsers" form:"assignedUsers"`
	FromDate      string   `json:"fromDate" form:"fromDate"`
	ToDate        string   `json:"toDate" form:"toDate"`
}

// IsActive 是否设置了任一筛选条件
func (f FilterState) IsActive() bool {
	return len(f.Courses) > 0 ||
		len(f.ProgramTypes) > 0 ||
		len(f.Professions) > 0 ||
		len(f.Sources) > 0 ||
		len(f.Statuses) > 0 ||
		len(f.Pipelines) > 0 ||
		len(f.AssignedUsers) > 0 ||
		strings.TrimSpace(f.FromDate) != "" ||
		strings.TrimSpace(f.ToDate) != ""
}

// FilterOptions 筛选面板选项响应
type FilterOptions struct {
	Courses      []string `json:"courses"`
	ProgramTypes []string `json:"programTypes"`
	Professions  []string `json:"professions"`
	Sources      []string `json:"sources"`
	Statuses     []string `json:"statuses"`
	Pipelines    []string `json:"pipelines"`
	Staff        []string `json:"staff"`
}

// CanonicalStatus 返回目录中的标准写法
func CanonicalStatus(status string) (string, bool) {
	return canonicalOption(StatusOptions, status)
}

// CanonicalPipeline 返回目录中的标准写法
func CanonicalPipeline(pipeline string) (string, bool) {
	return canonicalOption(PipelineOptions, pipeline)
}

func canonicalOption(options []string, value string) (string, bool) {
	value = strings.TrimSpace(value)
	for _, option := range options {
		if strings.EqualFold(option, value) {
			return option, true
		}
	}
	return "", false
}
