package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/BerniceZTT/edulead_crm/models"
	"github.com/BerniceZTT/edulead_crm/utils"

	"github.com/gorilla/websocket"
)

// 远程推送中唯一处理的消息类型
const liveMessageNewUser = "new_user"

// Viewer 当前会话身份
type Viewer interface {
	Current() (models.User, bool)
	Token() string
}

type liveMessage struct {
	Type string         `json:"type"`
	User models.RawLead `json:"user"`
}

// LiveListener 订阅远程推送的新线索，断线后按固定间隔重连
type LiveListener struct {
	url    string
	delay  time.Duration
	dialer *websocket.Dialer

	store  *LeadStore
	viewer Viewer
	hub    Broadcaster
	now    func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLiveListener 创建推送监听；hub 为 nil 时不向浏览器转发
func NewLiveListener(url string, delay time.Duration, store *LeadStore, viewer Viewer, hub Broadcaster) *LiveListener {
	if delay <= 0 {
		delay = 3 * time.Second
	}
	return &LiveListener{
		url:    url,
		delay:  delay,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
		store:  store,
		viewer: viewer,
		hub:    hub,
		now:    time.Now,
	}
}

// Start 开始监听，已在运行时忽略
func (l *LiveListener) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil || l.url == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(ctx, l.done)
	utils.Logger.Info().Str("url", l.url).Msg("开始监听实时推送")
}

// Stop 断开连接并取消待执行的重连，返回时监听协程已退出
func (l *LiveListener) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	utils.Logger.Info().Msg("已停止实时推送监听")
}

// Running 是否正在监听
func (l *LiveListener) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

func (l *LiveListener) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		if err := l.listen(ctx); err != nil && ctx.Err() == nil {
			utils.Logger.Warn().Err(err).Dur("retryIn", l.delay).Msg("实时推送连接断开，稍后重连")
		}

		timer := time.NewTimer(l.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// listen 建立一次连接并读取到断开为止
func (l *LiveListener) listen(ctx context.Context) error {
	header := http.Header{}
	if token := l.viewer.Token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := l.dialer.DialContext(ctx, l.url, header)
	if err != nil {
		return err
	}
	utils.Logger.Info().Str("url", l.url).Msg("实时推送已连接")

	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-closed:
			_ = conn.Close()
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		l.HandleMessage(data)
	}
}

// HandleMessage 处理一条推送消息，只有 new_user 会被合并进工作集
func (l *LiveListener) HandleMessage(data []byte) (MergeResult, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var msg liveMessage
	if err := dec.Decode(&msg); err != nil {
		utils.Logger.Warn().Err(err).Msg("无法解析推送消息")
		return 0, false
	}
	if msg.Type != liveMessageNewUser || msg.User == nil {
		return 0, false
	}

	viewer, ok := l.viewer.Current()
	if !ok {
		return 0, false
	}

	lead := NormalizeLead(msg.User, l.now())
	result := l.store.MergeIncoming(lead, viewer)

	utils.Logger.Info().
		Str("leadId", lead.ID).
		Str("result", result.String()).
		Msg("收到推送线索")

	if result == MergeAdded && l.hub != nil {
		l.hub.Broadcast(LiveEvent{Type: EventNewLead, Data: lead})
	}
	return result, true
}
