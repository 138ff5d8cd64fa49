package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/BerniceZTT/edulead_crm/models"
	"github.com/BerniceZTT/edulead_crm/repository"
	"github.com/BerniceZTT/edulead_crm/utils"

	"github.com/google/uuid"
)

// SessionState 会话状态
type SessionState string

const (
	SessionUnauthenticated SessionState = "unauthenticated"
	SessionAuthenticated   SessionState = "authenticated"
)

const invalidCredentialsMessage = "Invalid email or password. Please check your credentials."

// 调用方 token 默认有效期
const defaultClientTokenTTL = 12 * time.Hour

// Identity 登录成功后的身份
type Identity struct {
	User  models.User
	Token string
}

// Authenticator 校验用户名密码
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*Identity, error)
}

// SessionStore 登录态持久化
type SessionStore interface {
	Load(ctx context.Context) (*models.SessionRecord, error)
	Save(ctx context.Context, record models.SessionRecord) error
	Clear(ctx context.Context) error
}

// SessionInfo 当前会话信息
type SessionInfo struct {
	State      SessionState `json:"state"`
	User       *models.User `json:"user,omitempty"`
	LoggedInAt *time.Time   `json:"loggedInAt,omitempty"`
	ExpiresAt  *time.Time   `json:"expiresAt,omitempty"`
}

// Session 操作员会话，所有数据访问都以它为前提
type Session struct {
	mu         sync.RWMutex
	state      SessionState
	user       models.User
	token      string
	loggedInAt time.Time

	// 每次登录生成新的 sessionID，签发给调用方的 token 与之绑定
	sessionID  string
	signingKey []byte
	clientTTL  time.Duration

	auth  Authenticator
	store SessionStore
	now   func() time.Time

	listenersMu sync.Mutex
	listeners   []func(SessionState, models.User)
}

// NewSession 创建未登录的会话；store 为 nil 时使用内存存储
func NewSession(auth Authenticator, store SessionStore) *Session {
	if store == nil {
		store = NewMemorySessionStore()
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		utils.Logger.Fatal().Err(err).Msg("生成会话签名密钥失败")
	}
	return &Session{
		state:      SessionUnauthenticated,
		signingKey: key,
		clientTTL:  defaultClientTokenTTL,
		auth:       auth,
		store:      store,
		now:        time.Now,
	}
}

// UseSigningKey 使用固定的签名密钥，重启后恢复的会话 token 仍然有效
func (s *Session) UseSigningKey(key []byte, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(key) > 0 {
		s.signingKey = key
	}
	if ttl > 0 {
		s.clientTTL = ttl
	}
}

// OnChange 注册会话状态变更回调，回调在锁外执行
func (s *Session) OnChange(fn func(SessionState, models.User)) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Login 登录并持久化会话，返回签发给调用方的 token；已有其他会话时先退出旧会话
func (s *Session) Login(ctx context.Context, username, password string) (models.User, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return models.User{}, "", utils.CreateBadRequestError("Username and password are required")
	}

	identity, err := s.auth.Authenticate(ctx, username, password)
	if err != nil {
		utils.Logger.Warn().Err(err).Str("username", username).Msg("登录失败")
		return models.User{}, "", err
	}

	// 旧会话的工作集与推送连接不能带给新用户
	if s.State() == SessionAuthenticated {
		s.clear(ctx, "relogin")
	}

	now := s.now()
	sessionID := uuid.NewString()
	s.mu.RLock()
	key, ttl := s.signingKey, s.clientTTL
	s.mu.RUnlock()
	clientToken, err := utils.GenerateSessionToken(key, sessionID, identity.User, now, ttl)
	if err != nil {
		return models.User{}, "", utils.NewAppError("Failed to start session", http.StatusInternalServerError, err)
	}

	s.mu.Lock()
	s.state = SessionAuthenticated
	s.user = identity.User
	s.token = identity.Token
	s.loggedInAt = now
	s.sessionID = sessionID
	s.mu.Unlock()

	record := models.SessionRecord{
		AccessToken: identity.Token,
		SessionID:   sessionID,
		User:        identity.User,
		LoggedInAt:  now,
	}
	if err := s.store.Save(ctx, record); err != nil {
		utils.Logger.Error().Err(err).Msg("保存会话失败")
	}

	utils.Logger.Info().
		Str("username", identity.User.Username).
		Str("role", string(identity.User.Role)).
		Msg("登录成功")

	s.notify(SessionAuthenticated, identity.User)
	return identity.User, clientToken, nil
}

// Authorize 校验调用方 token：签名有效且属于当前会话
func (s *Session) Authorize(token string) (models.User, error) {
	if token == "" {
		return models.User{}, ErrMissingSessionToken
	}

	s.mu.RLock()
	key := s.signingKey
	s.mu.RUnlock()
	claims, err := utils.ParseSessionToken(key, token)
	if err != nil {
		return models.User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != SessionAuthenticated ||
		subtle.ConstantTimeCompare([]byte(claims.SessionID), []byte(s.sessionID)) != 1 {
		return models.User{}, ErrSessionEnded
	}
	return s.user, nil
}

var (
	// ErrMissingSessionToken 请求未携带 token
	ErrMissingSessionToken = errors.New("missing session token")
	// ErrSessionEnded token 所属的会话已退出或被新登录替换
	ErrSessionEnded = errors.New("session ended")
)

// Logout 用户主动退出，必须确认
func (s *Session) Logout(ctx context.Context, confirmed bool) error {
	if !confirmed {
		return utils.CreateConfirmationRequiredError("log out")
	}
	s.clear(ctx, "logout")
	return nil
}

// ForceLogout 远程接口拒绝授权时强制退出，无需确认
func (s *Session) ForceLogout(ctx context.Context, reason string) {
	if s.State() != SessionAuthenticated {
		return
	}
	utils.Logger.Warn().Str("reason", reason).Msg("会话失效，强制退出")
	s.clear(ctx, reason)
}

// Restore 服务启动时恢复持久化的会话，过期 token 直接丢弃
func (s *Session) Restore(ctx context.Context) bool {
	record, err := s.store.Load(ctx)
	if err != nil {
		utils.Logger.Error().Err(err).Msg("读取持久化会话失败")
		return false
	}
	if record == nil || record.User.Username == "" {
		return false
	}
	if utils.TokenExpired(record.AccessToken, s.now()) {
		utils.Logger.Info().Str("username", record.User.Username).Msg("持久化会话已过期")
		if err := s.store.Clear(ctx); err != nil {
			utils.Logger.Error().Err(err).Msg("清除过期会话失败")
		}
		return false
	}

	// 旧版本记录没有 sessionID，此时调用方需要重新登录
	sessionID := record.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s.mu.Lock()
	s.state = SessionAuthenticated
	s.user = record.User
	s.token = record.AccessToken
	s.loggedInAt = record.LoggedInAt
	s.sessionID = sessionID
	s.mu.Unlock()

	utils.Logger.Info().Str("username", record.User.Username).Msg("已恢复会话")
	s.notify(SessionAuthenticated, record.User)
	return true
}

// Token 当前 accessToken，未登录或本地认证时为空
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != SessionAuthenticated {
		return ""
	}
	return s.token
}

// State 当前状态
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Current 当前登录用户
func (s *Session) Current() (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != SessionAuthenticated {
		return models.User{}, false
	}
	return s.user, true
}

// Info 会话信息快照
func (s *Session) Info() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := SessionInfo{State: s.state}
	if s.state != SessionAuthenticated {
		return info
	}
	user := s.user
	loggedInAt := s.loggedInAt
	info.User = &user
	info.LoggedInAt = &loggedInAt
	if claims, err := utils.InspectToken(s.token); err == nil && !claims.ExpiresAt.IsZero() {
		exp := claims.ExpiresAt
		info.ExpiresAt = &exp
	}
	return info
}

func (s *Session) clear(ctx context.Context, reason string) {
	s.mu.Lock()
	user := s.user
	s.state = SessionUnauthenticated
	s.user = models.User{}
	s.token = ""
	s.loggedInAt = time.Time{}
	s.sessionID = ""
	s.mu.Unlock()

	if err := s.store.Clear(ctx); err != nil {
		utils.Logger.Error().Err(err).Msg("清除持久化会话失败")
	}

	utils.Logger.Info().Str("username", user.Username).Str("reason", reason).Msg("已退出登录")
	s.notify(SessionUnauthenticated, models.User{})
}

func (s *Session) notify(state SessionState, user models.User) {
	s.listenersMu.Lock()
	listeners := append([]func(SessionState, models.User){}, s.listeners...)
	s.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(state, user)
	}
}

// LoginAPI 远程登录接口
type LoginAPI interface {
	Login(ctx context.Context, username, password string) (*repository.LoginResponse, error)
}

// RemoteAuthenticator 通过远程 /login 接口认证
type RemoteAuthenticator struct {
	api LoginAPI
}

// NewRemoteAuthenticator 创建远程认证器
func NewRemoteAuthenticator(api LoginAPI) *RemoteAuthenticator {
	return &RemoteAuthenticator{api: api}
}

// Authenticate 实现 Authenticator
func (a *RemoteAuthenticator) Authenticate(ctx context.Context, username, password string) (*Identity, error) {
	resp, err := a.api.Login(ctx, username, password)
	if err != nil {
		if utils.IsAuthFailure(err) {
			return nil, utils.NewApiError(invalidCredentialsMessage, http.StatusUnauthorized, "INVALID_CREDENTIALS")
		}
		return nil, err
	}
	if !resp.Success {
		message := resp.Message
		if message == "" {
			message = invalidCredentialsMessage
		}
		return nil, utils.NewApiError(message, http.StatusUnauthorized, "INVALID_CREDENTIALS")
	}

	user := NormalizeUser(resp.User)

	// 响应中缺少的身份信息从 token claims 补全
	if claims, err := utils.InspectToken(resp.AccessToken); err == nil {
		if user.Username == "" {
			user.Username = claims.Username
		}
		if user.ID == "" {
			user.ID = claims.ID
		}
		if _, hasRole := resp.User["role"]; !hasRole && models.UserRole(strings.ToLower(claims.Role)).Valid() {
			user.Role = models.UserRole(strings.ToLower(claims.Role))
		}
	}
	if user.Username == "" {
		user.Username = username
	}

	return &Identity{User: user, Token: resp.AccessToken}, nil
}

// UsersAPI 拉取全部用户与线索的接口
type UsersAPI interface {
	FetchAll(ctx context.Context) (*repository.FetchAllResponse, error)
}

// LocalAuthenticator 拉取用户列表后按邮箱或用户名比对明文密码，仅用于演示数据
type LocalAuthenticator struct {
	api UsersAPI
}

// NewLocalAuthenticator 创建本地认证器
func NewLocalAuthenticator(api UsersAPI) *LocalAuthenticator {
	return &LocalAuthenticator{api: api}
}

// Authenticate 实现 Authenticator
func (a *LocalAuthenticator) Authenticate(ctx context.Context, username, password string) (*Identity, error) {
	resp, err := a.api.FetchAll(ctx)
	if err != nil {
		return nil, err
	}

	for _, raw := range resp.Users {
		email := stringValue(raw["useremail"])
		name := firstString(raw, "username", "userName")
		if !strings.EqualFold(email, username) && name != username {
			continue
		}
		if stored, ok := raw["password"].(string); ok && stored == password {
			return &Identity{User: NormalizeUser(raw)}, nil
		}
		break
	}

	return nil, utils.NewApiError(invalidCredentialsMessage, http.StatusUnauthorized, "INVALID_CREDENTIALS")
}

// MemorySessionStore 内存会话存储，服务重启后需要重新登录
type MemorySessionStore struct {
	mu     sync.Mutex
	record *models.SessionRecord
}

// NewMemorySessionStore 创建内存会话存储
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{}
}

// Load 实现 SessionStore
func (m *MemorySessionStore) Load(_ context.Context) (*models.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.record == nil {
		return nil, nil
	}
	record := *m.record
	return &record, nil
}

// Save 实现 SessionStore
func (m *MemorySessionStore) Save(_ context.Context, record models.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = &record
	return nil
}

// Clear 实现 SessionStore
func (m *MemorySessionStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = nil
	return nil
}
