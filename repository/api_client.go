package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BerniceZTT/edulead_crm/models"
	"github.com/BerniceZTT/edulead_crm/utils"
)

// APIConfig 远程线索服务配置
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// TokenProvider 提供当前会话的 accessToken，未登录时返回空串
type TokenProvider interface {
	Token() string
}

// TokenFunc 函数形式的 TokenProvider
type TokenFunc func() string

// Token 实现 TokenProvider
func (f TokenFunc) Token() string {
	return f()
}

// FetchAllResponse GET /users 响应
type FetchAllResponse struct {
	Users []models.RawUser `json:"users"`
	Leads []models.RawLead `json:"leads"`
}

// DashboardResponse POST /dashboard 响应，staffs 只对管理员返回
type DashboardResponse struct {
	Success bool             `json:"success"`
	User    models.RawUser   `json:"user"`
	Leads   []models.RawLead `json:"leads"`
	Staffs  []models.RawUser `json:"staffs"`
	Message string           `json:"message"`
}

// LoginResponse POST /login 响应
type LoginResponse struct {
	Success     bool           `json:"success"`
	User        models.RawUser `json:"user"`
	AccessToken string         `json:"accessToken"`
	Message     string         `json:"message"`
}

// APIClient 远程线索服务客户端
type APIClient struct {
	baseURL string
	tokens  TokenProvider
	http    *http.Client
}

// NewAPIClient 创建客户端；tokens 为 nil 时不发送授权头
func NewAPIClient(cfg APIConfig, tokens TokenProvider) *APIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &APIClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		tokens:  tokens,
		http:    &http.Client{Timeout: timeout},
	}
}

// FetchAll 拉取全部线索与员工
func (c *APIClient) FetchAll(ctx context.Context) (*FetchAllResponse, error) {
	var resp FetchAllResponse
	if err := c.do(ctx, "fetch data", http.MethodGet, "/users", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchDashboard 按会话用户拉取可见线索
func (c *APIClient) FetchDashboard(ctx context.Context, username string) (*DashboardResponse, error) {
	var resp DashboardResponse
	body := map[string]interface{}{"username": username}
	if err := c.do(ctx, "fetch dashboard", http.MethodPost, "/dashboard", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login 远程登录；success=false 通过响应返回而不是错误
func (c *APIClient) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	var resp LoginResponse
	body := map[string]interface{}{"username": username, "password": password}
	if err := c.do(ctx, "log in", http.MethodPost, "/login", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AddLead 新增线索，响应 {success, user}
func (c *APIClient) AddLead(ctx context.Context, payload map[string]interface{}) (models.RawLead, error) {
	return c.leadRequest(ctx, "add lead", http.MethodPost, "/add", payload)
}

// UpdateLead 局部更新线索字段，payload 必须包含 _id
func (c *APIClient) UpdateLead(ctx context.Context, payload map[string]interface{}) (models.RawLead, error) {
	return c.leadRequest(ctx, "update lead", http.MethodPut, "/Users", payload)
}

// EditLead 编辑线索详情
func (c *APIClient) EditLead(ctx context.Context, payload map[string]interface{}) (models.RawLead, error) {
	return c.leadRequest(ctx, "edit lead details", http.MethodPut, "/Users/edit", payload)
}

// DeleteLead 删除线索
func (c *APIClient) DeleteLead(ctx context.Context, id string) error {
	var resp struct {
		Success bool `json:"success"`
	}
	return c.do(ctx, "delete lead", http.MethodDelete, "/leads/"+url.PathEscape(id), nil, &resp)
}

// AddRemark 添加备注
func (c *APIClient) AddRemark(ctx context.Context, leadID, remark string) (models.RawLead, error) {
	body := map[string]interface{}{"_id": leadID, "remark": remark}
	return c.leadRequest(ctx, "add remark", http.MethodPost, "/Users/remarks", body)
}

// DeleteRemark 删除备注
func (c *APIClient) DeleteRemark(ctx context.Context, leadID, remarkID string) (models.RawLead, error) {
	body := map[string]interface{}{"_id": leadID, "remarkId": remarkID}
	return c.leadRequest(ctx, "delete remark", http.MethodDelete, "/Users/remarks", body)
}

// leadRequest 返回单条线索的接口，兼容直接返回线索和 {user: 线索} 两种形式
func (c *APIClient) leadRequest(ctx context.Context, op, method, path string, body interface{}) (models.RawLead, error) {
	var resp map[string]interface{}
	if err := c.do(ctx, op, method, path, body, &resp); err != nil {
		return nil, err
	}
	for _, key := range []string{"user", "lead"} {
		if inner, ok := resp[key].(map[string]interface{}); ok {
			return models.RawLead(inner), nil
		}
	}
	return models.RawLead(resp), nil
}

func (c *APIClient) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	fullURL := c.baseURL + path

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return utils.NewAppError(fmt.Sprintf("Failed to %s", op), http.StatusInternalServerError, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return &utils.RemoteError{Op: op, Message: fmt.Sprintf("Failed to %s", op), Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	headers := map[string]string{}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
			headers["Authorization"] = "Bearer " + token
		}
	}
	utils.LogApiRequest(method, fullURL, nil, maskSecrets(body), headers)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		utils.LogError(err, map[string]interface{}{"op": op, "url": fullURL}, "远程接口请求失败")
		return &utils.RemoteError{Op: op, Message: fmt.Sprintf("Failed to %s", op), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	utils.LogApiResponse(method, fullURL, resp.StatusCode, time.Since(start), len(raw))
	if err != nil {
		return &utils.RemoteError{Op: op, StatusCode: resp.StatusCode, Message: fmt.Sprintf("Failed to %s", op), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &utils.RemoteError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    remoteMessage(raw, fmt.Sprintf("Failed to %s", op)),
		}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return &utils.RemoteError{Op: op, StatusCode: resp.StatusCode, Message: "Invalid response from server", Err: err}
	}
	return nil
}

// remoteMessage 从错误响应中取 message 或 error 字段
func remoteMessage(raw []byte, fallback string) string {
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fallback
	}
	for _, key := range []string{"message", "error"} {
		if msg, ok := payload[key].(string); ok && strings.TrimSpace(msg) != "" {
			return msg
		}
	}
	return fallback
}

// maskSecrets 日志中隐藏密码
func maskSecrets(body interface{}) interface{} {
	m, ok := body.(map[string]interface{})
	if !ok {
		return body
	}
	if _, has := m["password"]; !has {
		return body
	}
	masked := make(map[string]interface{}, len(m))
	for k, v := range m {
		masked[k] = v
	}
	masked["password"] = "******"
	return masked
}
