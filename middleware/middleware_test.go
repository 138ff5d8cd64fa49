package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/BerniceZTT/edulead_crm/models"
	"github.com/BerniceZTT/edulead_crm/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// staticSession 只接受 sessionToken
type staticSession struct {
	user models.User
}

const sessionToken = "session-token"

var bearer = map[string]string{"Authorization": "Bearer " + sessionToken}

func (s staticSession) Authorize(token string) (models.User, error) {
	if token != sessionToken {
		return models.User{}, errors.New("unknown token")
	}
	return s.user, nil
}

type recordingLogs struct {
	mu   sync.Mutex
	logs []models.OperationLog
	err  error
}

func (r *recordingLogs) Insert(_ context.Context, log models.OperationLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
	return r.err
}

var (
	admin = models.User{ID: "u1", Username: "admin", Role: models.UserRoleADMIN}
	staff = models.User{ID: "u2", Username: "ravi", Role: models.UserRoleUSER}
)

func perform(router *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	router := gin.New()
	router.Use(RequestID(), Logger())
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("requestId")) })

	w := perform(router, http.MethodGet, "/ping", "", nil)
	id := w.Header().Get(RequestIDHeader)
	assert.Len(t, id, 36)
	assert.Equal(t, id, w.Body.String())

	w = perform(router, http.MethodGet, "/ping", "", map[string]string{RequestIDHeader: "abc-123"})
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestLoggerKeepsRequestBody(t *testing.T) {
	router := gin.New()
	router.Use(Logger())
	router.POST("/echo", func(c *gin.Context) {
		var body map[string]string
		require.NoError(t, c.ShouldBindJSON(&body))
		c.JSON(http.StatusOK, body)
	})

	w := perform(router, http.MethodPost, "/echo", `{"email":"a@b.c","password":"secret"}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"email":"a@b.c","password":"secret"}`, w.Body.String())
}

func TestRecovery(t *testing.T) {
	router := gin.New()
	router.Use(Recovery())
	router.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := perform(router, http.MethodGet, "/boom", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
}

func TestErrorHandler(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler())
	router.GET("/missing", func(c *gin.Context) { _ = c.Error(utils.CreateNotFoundError("Lead")) })
	router.GET("/written", func(c *gin.Context) {
		c.JSON(http.StatusTeapot, gin.H{"ok": true})
		_ = c.Error(errors.New("ignored"))
	})

	w := perform(router, http.MethodGet, "/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"Lead not found","code":"RESOURCE_NOT_FOUND"}`, w.Body.String())

	w = perform(router, http.MethodGet, "/written", "", nil)
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestSessionGate(t *testing.T) {
	router := gin.New()
	router.GET("/leads", SessionGate(staticSession{user: staff}), func(c *gin.Context) {
		user, ok := CurrentUser(c)
		require.True(t, ok)
		c.String(http.StatusOK, user.Username)
	})

	t.Run("rejects missing token", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/leads", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), `"code":"MISSING_TOKEN"`)

		w = perform(router, http.MethodGet, "/leads", "", map[string]string{"Authorization": "Basic " + sessionToken})
		assert.Contains(t, w.Body.String(), `"code":"MISSING_TOKEN"`)
	})

	t.Run("rejects unknown token", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/leads", "", map[string]string{"Authorization": "Bearer stale"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), `"code":"INVALID_TOKEN"`)
	})

	t.Run("stores current user", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/leads", "", bearer)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ravi", w.Body.String())
	})
}

func TestPermissionMiddleware(t *testing.T) {
	build := func(user models.User) *gin.Engine {
		router := gin.New()
		router.DELETE("/leads/:id", SessionGate(staticSession{user: user}), PermissionMiddleware(utils.ActionDelete),
			func(c *gin.Context) { c.Status(http.StatusNoContent) })
		return router
	}

	w := perform(build(staff), http.MethodDelete, "/leads/a", "", bearer)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "permission to delete")

	w = perform(build(admin), http.MethodDelete, "/leads/a", "", bearer)
	assert.Equal(t, http.StatusNoContent, w.Code)

	router := gin.New()
	router.GET("/x", PermissionMiddleware(utils.ActionUpdate), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusUnauthorized, perform(router, http.MethodGet, "/x", "", nil).Code)
}

func TestAdminGate(t *testing.T) {
	build := func(user models.User) *gin.Engine {
		router := gin.New()
		router.GET("/logs", SessionGate(staticSession{user: user}), AdminGate(), func(c *gin.Context) { c.Status(http.StatusOK) })
		return router
	}

	assert.Equal(t, http.StatusForbidden, perform(build(staff), http.MethodGet, "/logs", "", bearer).Code)
	assert.Equal(t, http.StatusOK, perform(build(admin), http.MethodGet, "/logs", "", bearer).Code)
}

func TestOperationLoggerRecordsMutations(t *testing.T) {
	logs := &recordingLogs{}
	router := gin.New()
	router.Use(RequestID(), OperationLoggerMiddleware(logs))
	gated := router.Group("/api", SessionGate(staticSession{user: staff}))
	gated.PATCH("/leads/:id", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"success": true}) })
	gated.DELETE("/leads/:id", func(c *gin.Context) {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": "Permission denied"})
	})
	gated.GET("/leads", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.POST("/api/auth/login", func(c *gin.Context) { c.Status(http.StatusOK) })

	perform(router, http.MethodPatch, "/api/leads/abc", `{"status":"Hot","token":"t0p"}`,
		map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2", "Authorization": "Bearer " + sessionToken})
	perform(router, http.MethodDelete, "/api/leads/abc", "", bearer)
	perform(router, http.MethodGet, "/api/leads", "", bearer)
	perform(router, http.MethodPost, "/api/auth/login", `{"password":"x"}`, nil)

	require.Len(t, logs.logs, 2)

	patch := logs.logs[0]
	assert.Equal(t, http.MethodPatch, patch.Method)
	assert.Equal(t, "abc", patch.LeadID)
	assert.Equal(t, "ravi", patch.Operator)
	assert.Equal(t, "user", patch.OperatorRole)
	assert.True(t, patch.Success)
	assert.Equal(t, "10.0.0.1", patch.IPAddress)
	assert.Len(t, patch.RequestID, 36)
	assert.Equal(t, map[string]interface{}{"status": "Hot", "token": "******"}, patch.RequestBody)

	del := logs.logs[1]
	assert.False(t, del.Success)
	assert.Equal(t, http.StatusForbidden, del.StatusCode)
	assert.Equal(t, "Permission denied", del.ErrorMessage)
}

func TestOperationLoggerFallsBackToMinimalLog(t *testing.T) {
	logs := &recordingLogs{err: errors.New("disk full")}
	router := gin.New()
	router.Use(OperationLoggerMiddleware(logs))
	router.POST("/api/leads", func(c *gin.Context) { c.Status(http.StatusCreated) })

	w := perform(router, http.MethodPost, "/api/leads", `{"userName":"Priya"}`, nil)

	assert.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, logs.logs, 2)
	assert.Nil(t, logs.logs[1].RequestBody)
	assert.Contains(t, logs.logs[1].ErrorMessage, "disk full")
	assert.Equal(t, "anonymous", logs.logs[1].Operator)
}

func TestSanitizeDataNested(t *testing.T) {
	data := map[string]interface{}{
		"user": map[string]interface{}{"Password": "x", "name": "a"},
		"list": []interface{}{map[string]interface{}{"accessToken": "y"}},
	}

	assert.Equal(t, map[string]interface{}{
		"user": map[string]interface{}{"Password": "******", "name": "a"},
		"list": []interface{}{map[string]interface{}{"accessToken": "******"}},
	}, sanitizeData(data))
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	router := gin.New()
	router.Use(CORS([]string{"http://localhost:5173"}))
	router.GET("/api/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := perform(router, http.MethodOptions, "/api/health", "", map[string]string{
		"Origin":                        "http://localhost:5173",
		"Access-Control-Request-Method": "GET",
	})
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	w = perform(router, http.MethodGet, "/api/health", "", map[string]string{"Origin": "http://evil.test"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}
