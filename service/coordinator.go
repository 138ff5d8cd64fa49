package service

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/BerniceZTT/edulead_crm/models"
	"github.com/BerniceZTT/edulead_crm/repository"
	"github.com/BerniceZTT/edulead_crm/utils"
)

// LeadAPI 远程线索服务
type LeadAPI interface {
	FetchAll(ctx context.Context) (*repository.FetchAllResponse, error)
	FetchDashboard(ctx context.Context, username string) (*repository.DashboardResponse, error)
	AddLead(ctx context.Context, payload map[string]interface{}) (models.RawLead, error)
	UpdateLead(ctx context.Context, payload map[string]interface{}) (models.RawLead, error)
	EditLead(ctx context.Context, payload map[string]interface{}) (models.RawLead, error)
	DeleteLead(ctx context.Context, id string) error
	AddRemark(ctx context.Context, leadID, remark string) (models.RawLead, error)
	DeleteRemark(ctx context.Context, leadID, remarkID string) (models.RawLead, error)
}

// 允许通过 UpdateFields 修改的字段
var updatableFields = map[string]string{
	"status":      utils.ActionUpdate,
	"pipeline":    utils.ActionUpdate,
	"reminder":    utils.ActionUpdate,
	"course":      utils.ActionUpdate,
	"programType": utils.ActionUpdate,
	"profession":  utils.ActionUpdate,
	"location":    utils.ActionUpdate,
	"leadfrom":    utils.ActionUpdate,
	"assignedto":  utils.ActionAssign,
}

// Coordinator 线索写操作协调：每个操作一次远程调用，成功后以响应替换本地记录
type Coordinator struct {
	api     LeadAPI
	store   *LeadStore
	session *Session
	scoped  bool // true 时按会话用户拉取 /dashboard，否则拉取全部 /users
	now     func() time.Time
}

// NewCoordinator 创建协调器，会话退出时清空工作集
func NewCoordinator(api LeadAPI, store *LeadStore, session *Session, scoped bool) *Coordinator {
	c := &Coordinator{
		api:     api,
		store:   store,
		session: session,
		scoped:  scoped,
		now:     time.Now,
	}
	session.OnChange(func(state SessionState, _ models.User) {
		if state == SessionUnauthenticated {
			store.Reset()
		}
	})
	return c
}

// Store 工作集
func (c *Coordinator) Store() *LeadStore {
	return c.store
}

// Refresh 重新拉取工作集；过期的响应被丢弃，授权失败时强制退出
func (c *Coordinator) Refresh(ctx context.Context) error {
	user, ok := c.session.Current()
	if !ok {
		return utils.CreateUnauthorizedError()
	}

	seq := c.store.BeginFetch()
	now := c.now()

	var leads []models.Lead
	var users []models.User

	if c.scoped {
		resp, err := c.api.FetchDashboard(ctx, user.Username)
		if err != nil {
			return c.remoteFailure(ctx, err)
		}
		if !resp.Success {
			message := resp.Message
			if message == "" {
				message = "Failed to fetch data"
			}
			return &utils.RemoteError{Op: "fetch dashboard", StatusCode: http.StatusBadGateway, Message: message}
		}
		leads = NormalizeLeads(resp.Leads, now)
		switch {
		case resp.Staffs != nil:
			users = NormalizeUsers(resp.Staffs)
		case !user.IsAdmin():
			users = []models.User{user}
		}
	} else {
		resp, err := c.api.FetchAll(ctx)
		if err != nil {
			return c.remoteFailure(ctx, err)
		}
		leads = visibleTo(NormalizeLeads(resp.Leads, now), user)
		users = NormalizeUsers(resp.Users)
	}

	if !c.store.ApplyFetch(seq, leads, users) {
		utils.Logger.Debug().Uint64("seq", seq).Msg("丢弃过期的拉取结果")
		return nil
	}

	utils.Logger.Info().
		Str("username", user.Username).
		Int("leads", len(leads)).
		Int("users", len(users)).
		Msg("工作集已刷新")
	return nil
}

// Dashboard 当前工作集的看板视图
func (c *Coordinator) Dashboard(query string, filters models.FilterState) models.DashboardView {
	return BuildDashboard(c.store.Leads(), query, filters, c.now())
}

// Reminders 提醒列表
func (c *Coordinator) Reminders() []models.ReminderItem {
	return BuildReminderItems(ReminderQueue(c.store.Leads()), c.now())
}

// FilterOptions 筛选面板选项，员工来自当前员工列表
func (c *Coordinator) FilterOptions() models.FilterOptions {
	staff := []string{}
	for _, u := range c.store.Users() {
		if u.Username != "" {
			staff = append(staff, u.Username)
		}
	}
	return models.FilterOptions{
		Courses:      models.CourseOptions,
		ProgramTypes: models.ProgramTypeOptions,
		Professions:  models.ProfessionOptions,
		Sources:      models.SourceOptions,
		Statuses:     models.StatusOptions,
		Pipelines:    models.PipelineOptions,
		Staff:        staff,
	}
}

// Detail 选中线索并返回详情
func (c *Coordinator) Detail(id string) (*models.LeadDetail, error) {
	if !c.store.Select(id) {
		return nil, utils.CreateNotFoundError("Lead")
	}
	lead, ok := c.store.Selected()
	if !ok {
		return nil, utils.CreateNotFoundError("Lead")
	}
	return c.detail(lead), nil
}

// Selected 当前选中线索的详情
func (c *Coordinator) Selected() (*models.LeadDetail, bool) {
	lead, ok := c.store.Selected()
	if !ok {
		return nil, false
	}
	return c.detail(lead), true
}

func (c *Coordinator) detail(lead models.Lead) *models.LeadDetail {
	return &models.LeadDetail{
		Lead:           lead,
		Remarks:        lead.RemarksNewestFirst(),
		AssigneeKnown:  lead.AssignedTo == nil || c.store.HasUser(*lead.AssignedTo),
		EditableNumber: utils.EditablePhone(lead.UserNumber),
	}
}

// CreateLead 新增线索，成功后重新拉取工作集
func (c *Coordinator) CreateLead(ctx context.Context, form models.LeadForm) (models.Lead, error) {
	if _, err := c.authorize(utils.ActionCreate); err != nil {
		return models.Lead{}, err
	}

	form, err := validateForm(form.ApplyDefaults())
	if err != nil {
		return models.Lead{}, err
	}

	raw, err := c.api.AddLead(ctx, form.Payload())
	if err != nil {
		return models.Lead{}, c.remoteFailure(ctx, err)
	}
	lead := NormalizeLead(raw, c.now())

	utils.Logger.Info().Str("leadId", lead.ID).Str("name", lead.UserName).Msg("线索已创建")
	c.refreshAfterMutation(ctx)
	return lead, nil
}

// EditLead 编辑线索详情，表单中未填写的字段保留原值
func (c *Coordinator) EditLead(ctx context.Context, id string, form models.LeadForm) (models.Lead, error) {
	if _, err := c.authorize(utils.ActionUpdate); err != nil {
		return models.Lead{}, err
	}
	existing, ok := c.store.Find(id)
	if !ok {
		return models.Lead{}, utils.CreateNotFoundError("Lead")
	}

	form, err := validateForm(mergeForm(existing, form))
	if err != nil {
		return models.Lead{}, err
	}

	payload := form.Payload()
	payload["_id"] = id
	raw, err := c.api.EditLead(ctx, payload)
	if err != nil {
		return models.Lead{}, c.remoteFailure(ctx, err)
	}
	return c.replaceFromResponse(id, raw), nil
}

// UpdateFields 局部更新线索字段，只接受白名单内的字段
func (c *Coordinator) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) (models.Lead, error) {
	user, err := c.authorize(utils.ActionUpdate)
	if err != nil {
		return models.Lead{}, err
	}

	payload := map[string]interface{}{}
	for key, value := range fields {
		action, allowed := updatableFields[key]
		if !allowed {
			continue
		}
		if !utils.HasPermission(user.Role, action) {
			return models.Lead{}, utils.CreateForbiddenError("Only admins can assign leads")
		}
		normalized, err := normalizeField(key, value)
		if err != nil {
			return models.Lead{}, err
		}
		payload[key] = normalized
	}
	if len(payload) == 0 {
		return models.Lead{}, utils.CreateBadRequestError("No updatable fields provided")
	}

	if _, ok := c.store.Find(id); !ok {
		return models.Lead{}, utils.CreateNotFoundError("Lead")
	}

	payload["_id"] = id
	raw, err := c.api.UpdateLead(ctx, payload)
	if err != nil {
		return models.Lead{}, c.remoteFailure(ctx, err)
	}
	return c.replaceFromResponse(id, raw), nil
}

// AssignLead 分配线索，仅管理员；username 为空表示取消分配
func (c *Coordinator) AssignLead(ctx context.Context, id, username string) (models.Lead, error) {
	if _, err := c.authorize(utils.ActionAssign); err != nil {
		return models.Lead{}, err
	}
	var assignee interface{}
	if username = strings.TrimSpace(username); username != "" {
		assignee = username
	}
	return c.UpdateFields(ctx, id, map[string]interface{}{"assignedto": assignee})
}

// SetStatus 修改线索温度
func (c *Coordinator) SetStatus(ctx context.Context, id, status string) (models.Lead, error) {
	return c.UpdateFields(ctx, id, map[string]interface{}{"status": status})
}

// SetPipeline 修改管道阶段
func (c *Coordinator) SetPipeline(ctx context.Context, id, pipeline string) (models.Lead, error) {
	return c.UpdateFields(ctx, id, map[string]interface{}{"pipeline": pipeline})
}

// SetReminder 设置提醒时间，nil 表示清除
func (c *Coordinator) SetReminder(ctx context.Context, id string, at *time.Time) (models.Lead, error) {
	var value interface{}
	if at != nil {
		value = at.UTC().Format(time.RFC3339)
	}
	return c.UpdateFields(ctx, id, map[string]interface{}{"reminder": value})
}

// AddRemark 添加备注
func (c *Coordinator) AddRemark(ctx context.Context, id, text string) (models.Lead, error) {
	if _, err := c.authorize(utils.ActionRemark); err != nil {
		return models.Lead{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Lead{}, utils.CreateBadRequestError("Remark cannot be empty")
	}
	if _, ok := c.store.Find(id); !ok {
		return models.Lead{}, utils.CreateNotFoundError("Lead")
	}

	raw, err := c.api.AddRemark(ctx, id, text)
	if err != nil {
		return models.Lead{}, c.remoteFailure(ctx, err)
	}
	return c.replaceFromResponse(id, raw), nil
}

// DeleteRemark 删除备注
func (c *Coordinator) DeleteRemark(ctx context.Context, id, remarkID string) (models.Lead, error) {
	if _, err := c.authorize(utils.ActionRemark); err != nil {
		return models.Lead{}, err
	}
	if strings.TrimSpace(remarkID) == "" {
		return models.Lead{}, utils.CreateBadRequestError("Remark id is required")
	}
	if _, ok := c.store.Find(id); !ok {
		return models.Lead{}, utils.CreateNotFoundError("Lead")
	}

	raw, err := c.api.DeleteRemark(ctx, id, remarkID)
	if err != nil {
		return models.Lead{}, c.remoteFailure(ctx, err)
	}
	return c.replaceFromResponse(id, raw), nil
}

// DeleteLead 删除线索，需要确认且仅管理员可操作
func (c *Coordinator) DeleteLead(ctx context.Context, id string, confirmed bool) error {
	if !confirmed {
		return utils.CreateConfirmationRequiredError("delete this lead")
	}
	if _, err := c.authorize(utils.ActionDelete); err != nil {
		return err
	}
	if _, ok := c.store.Find(id); !ok {
		return utils.CreateNotFoundError("Lead")
	}

	if err := c.api.DeleteLead(ctx, id); err != nil {
		return c.remoteFailure(ctx, err)
	}
	c.store.RemoveLead(id)

	utils.Logger.Info().Str("leadId", id).Msg("线索已删除")
	c.refreshAfterMutation(ctx)
	return nil
}

// authorize 校验登录态与角色权限，在发起任何远程调用之前执行
func (c *Coordinator) authorize(action string) (models.User, error) {
	user, ok := c.session.Current()
	if !ok {
		return models.User{}, utils.CreateUnauthorizedError()
	}
	if !utils.HasPermission(user.Role, action) {
		switch action {
		case utils.ActionAssign:
			return user, utils.CreateForbiddenError("Only admins can assign leads")
		case utils.ActionDelete:
			return user, utils.CreateForbiddenError("Only admins can delete leads")
		}
		return user, utils.CreateForbiddenError("")
	}
	return user, nil
}

// remoteFailure 授权失败时强制退出并返回会话过期错误
func (c *Coordinator) remoteFailure(ctx context.Context, err error) error {
	if utils.IsAuthFailure(err) {
		c.session.ForceLogout(ctx, err.Error())
		return utils.CreateSessionExpiredError()
	}
	return err
}

// refreshAfterMutation 写操作成功后的重新拉取，失败只记录日志
func (c *Coordinator) refreshAfterMutation(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		utils.Logger.Warn().Err(err).Msg("写操作后刷新失败，数据可能不是最新")
	}
}

func (c *Coordinator) replaceFromResponse(id string, raw models.RawLead) models.Lead {
	if raw == nil {
		raw = models.RawLead{}
	}
	if idValue(raw["_id"]) == "" && idValue(raw["id"]) == "" {
		raw["_id"] = id
	}
	lead := NormalizeLead(raw, c.now())
	if !c.store.ReplaceLead(lead) {
		utils.Logger.Debug().Str("leadId", id).Msg("线索已不在工作集中")
	}
	return lead
}

// visibleTo 普通员工只能看到分配给自己的线索
func visibleTo(leads []models.Lead, user models.User) []models.Lead {
	if user.IsAdmin() {
		return leads
	}
	visible := make([]models.Lead, 0, len(leads))
	for _, lead := range leads {
		if lead.IsAssignedTo(user.Username) {
			visible = append(visible, lead)
		}
	}
	return visible
}

func validateForm(form models.LeadForm) (models.LeadForm, error) {
	form.UserName = strings.TrimSpace(form.UserName)
	if form.UserName == "" {
		return form, utils.CreateBadRequestError("Name is required")
	}
	form.UserNumber = utils.DigitsOnly(form.UserNumber)
	if !utils.IsValidPhone(form.UserNumber) {
		return form, utils.CreateBadRequestError("Phone number must be 10 digits")
	}
	if form.Status != "" {
		status, ok := models.CanonicalStatus(form.Status)
		if !ok {
			return form, utils.CreateBadRequestError("Unknown status: " + form.Status)
		}
		form.Status = status
	}
	if form.Pipeline != "" {
		pipeline, ok := models.CanonicalPipeline(form.Pipeline)
		if !ok {
			return form, utils.CreateBadRequestError("Unknown pipeline stage: " + form.Pipeline)
		}
		form.Pipeline = pipeline
	}
	return form, nil
}

// mergeForm 编辑表单基于现有线索，号码去掉国家码前缀后校验
func mergeForm(lead models.Lead, form models.LeadForm) models.LeadForm {
	if strings.TrimSpace(form.UserName) == "" {
		form.UserName = lead.UserName
	}
	if strings.TrimSpace(form.UserNumber) == "" {
		form.UserNumber = utils.EditablePhone(lead.UserNumber)
	} else {
		form.UserNumber = utils.EditablePhone(utils.DigitsOnly(form.UserNumber))
	}
	if form.Course == nil {
		form.Course = lead.Course
	}
	if form.ProgramType == nil {
		form.ProgramType = lead.ProgramType
	}
	if form.Profession == nil {
		form.Profession = lead.Profession
	}
	if form.Location == nil {
		form.Location = lead.Location
	}
	if strings.TrimSpace(form.LeadFrom) == "" {
		form.LeadFrom = lead.LeadFrom
	}
	if strings.TrimSpace(form.Status) == "" {
		form.Status = lead.Status
	}
	if strings.TrimSpace(form.Pipeline) == "" {
		form.Pipeline = lead.Pipeline
	}
	return form
}

func normalizeField(key string, value interface{}) (interface{}, error) {
	switch key {
	case "status":
		s, _ := value.(string)
		status, ok := models.CanonicalStatus(s)
		if !ok {
			return nil, utils.CreateBadRequestError("Unknown status: " + s)
		}
		return status, nil
	case "pipeline":
		s, _ := value.(string)
		pipeline, ok := models.CanonicalPipeline(s)
		if !ok {
			return nil, utils.CreateBadRequestError("Unknown pipeline stage: " + s)
		}
		return pipeline, nil
	case "reminder":
		if value == nil {
			return nil, nil
		}
		s, _ := value.(string)
		if strings.TrimSpace(s) == "" {
			return nil, nil
		}
		t, ok := ParseDateString(s)
		if !ok {
			return nil, utils.CreateBadRequestError("Invalid reminder date")
		}
		return t.UTC().Format(time.RFC3339), nil
	}

	if value == nil {
		return nil, nil
	}
	s, ok := value.(string)
	if !ok {
		return nil, utils.CreateBadRequestError("Field " + key + " must be a string")
	}
	if s = strings.TrimSpace(s); s == "" {
		return nil, nil
	}
	return s, nil
}
