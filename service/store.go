package service

import (
	"sync"

	"github.com/BerniceZTT/edulead_crm/models"
)

// MergeResult 推送线索合并结果
type MergeResult int

const (
	MergeAdded      MergeResult = iota + 1 // 已加入工作集
	MergeDuplicate                         // id 或号码已存在
	MergeNotVisible                        // 当前用户无权查看
)

func (r MergeResult) String() string {
	switch r {
	case MergeAdded:
		return "added"
	case MergeDuplicate:
		return "duplicate"
	case MergeNotVisible:
		return "not_visible"
	}
	return "unknown"
}

// LeadStore 当前会话的线索与员工工作集
// 所有写操作都基于最新状态构造新切片后整体替换，读操作返回副本
type LeadStore struct {
	mu         sync.RWMutex
	leads      []models.Lead
	users      []models.User
	selectedID string
	issued     uint64 // 已发出的最大拉取序号
	applied    uint64 // 已应用的最大拉取序号
}

// NewLeadStore 创建空工作集
func NewLeadStore() *LeadStore {
	return &LeadStore{leads: []models.Lead{}, users: []models.User{}}
}

// BeginFetch 为一次远程拉取分配序号
func (s *LeadStore) BeginFetch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return s.issued
}

// ApplyFetch 应用拉取结果；比已应用结果更旧的响应被丢弃并返回 false
// users 为 nil 时保留现有员工列表
func (s *LeadStore) ApplyFetch(seq uint64, leads []models.Lead, users []models.User) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq <= s.applied {
		return false
	}
	s.applied = seq
	s.leads = cloneLeads(leads)
	if users != nil {
		s.users = append([]models.User{}, users...)
	}
	if s.selectedID != "" && indexOf(s.leads, s.selectedID) < 0 {
		s.selectedID = ""
	}
	return true
}

// ReplaceLead 按 id 替换线索，不存在时返回 false
func (s *LeadStore) ReplaceLead(lead models.Lead) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.leads, lead.ID)
	if i < 0 {
		return false
	}
	next := make([]models.Lead, len(s.leads))
	copy(next, s.leads)
	next[i] = lead.Clone()
	s.leads = next
	return true
}

// RemoveLead 按 id 移除线索，被选中的线索同时取消选中
func (s *LeadStore) RemoveLead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.leads, id)
	if i < 0 {
		return false
	}
	next := make([]models.Lead, 0, len(s.leads)-1)
	next = append(next, s.leads[:i]...)
	next = append(next, s.leads[i+1:]...)
	s.leads = next
	if s.selectedID == id {
		s.selectedID = ""
	}
	return true
}

// MergeIncoming 合并推送的新线索：id 已存在的丢弃，普通员工只接收分配给自己的线索，新线索放在最前
func (s *LeadStore) MergeIncoming(lead models.Lead, viewer models.User) MergeResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.leads {
		if existing.ID == lead.ID {
			return MergeDuplicate
		}
	}

	if !viewer.IsAdmin() && !lead.IsAssignedTo(viewer.Username) {
		return MergeNotVisible
	}

	next := make([]models.Lead, 0, len(s.leads)+1)
	next = append(next, lead.Clone())
	next = append(next, s.leads...)
	s.leads = next
	return MergeAdded
}

// Select 选中线索，id 不存在时返回 false
func (s *LeadStore) Select(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if indexOf(s.leads, id) < 0 {
		return false
	}
	s.selectedID = id
	return true
}

// Selected 当前选中的线索
func (s *LeadStore) Selected() (models.Lead, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.selectedID == "" {
		return models.Lead{}, false
	}
	if i := indexOf(s.leads, s.selectedID); i >= 0 {
		return s.leads[i].Clone(), true
	}
	return models.Lead{}, false
}

// Find 按 id 查找线索
func (s *LeadStore) Find(id string) (models.Lead, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := indexOf(s.leads, id); i >= 0 {
		return s.leads[i].Clone(), true
	}
	return models.Lead{}, false
}

// Leads 工作集副本
func (s *LeadStore) Leads() []models.Lead {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneLeads(s.leads)
}

// Users 员工列表副本
func (s *LeadStore) Users() []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.User{}, s.users...)
}

// HasUser 员工列表中是否存在该用户名
func (s *LeadStore) HasUser(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return true
		}
	}
	return false
}

// Reset 退出登录时清空工作集，进行中的拉取结果随之失效
func (s *LeadStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads = []models.Lead{}
	s.users = []models.User{}
	s.selectedID = ""
	s.applied = s.issued
}

func indexOf(leads []models.Lead, id string) int {
	for i, l := range leads {
		if l.ID == id {
			return i
		}
	}
	return -1
}

func cloneLeads(leads []models.Lead) []models.Lead {
	result := make([]models.Lead, len(leads))
	for i, l := range leads {
		result[i] = l.Clone()
	}
	return result
}
