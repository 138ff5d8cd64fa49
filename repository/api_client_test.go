package repository

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BerniceZTT/edulead_crm/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

type recorded struct {
	method string
	path   string
	auth   string
	body   map[string]interface{}
}

func newTestServer(t *testing.T, status int, response string) (*httptest.Server, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.auth = r.Header.Get("Authorization")
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestFetchAll(t *testing.T) {
	srv, rec := newTestServer(t, http.StatusOK, `{"users":[{"username":"ravi"}],"leads":[{"_id":"a","followUpCount":3}]}`)
	client := NewAPIClient(APIConfig{BaseURL: srv.URL + "/", Timeout: time.Second}, nil)

	resp, err := client.FetchAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, rec.method)
	assert.Equal(t, "/users", rec.path)
	assert.Empty(t, rec.auth)
	require.Len(t, resp.Leads, 1)
	assert.Equal(t, json.Number("3"), resp.Leads[0]["followUpCount"])
	assert.Equal(t, "ravi", resp.Users[0]["username"])
}

func TestFetchDashboardSendsBearerToken(t *testing.T) {
	srv, rec := newTestServer(t, http.StatusOK, `{"success":true,"leads":[{"_id":"a"}]}`)
	client := NewAPIClient(APIConfig{BaseURL: srv.URL}, staticToken("tok-123"))

	resp, err := client.FetchDashboard(context.Background(), "ravi")

	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", rec.auth)
	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/dashboard", rec.path)
	assert.Equal(t, "ravi", rec.body["username"])
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Staffs)
}

func TestLoginFailureIsNotAnError(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{"success":false,"message":"Invalid credentials"}`)
	client := NewAPIClient(APIConfig{BaseURL: srv.URL}, nil)

	resp, err := client.Login(context.Background(), "ravi", "wrong")

	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "Invalid credentials", resp.Message)
}

func TestNon2xxBecomesRemoteError(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusConflict, `{"message":"Lead already exists"}`)
	client := NewAPIClient(APIConfig{BaseURL: srv.URL}, nil)

	_, err := client.AddLead(context.Background(), map[string]interface{}{"userName": "x"})

	var remoteErr *utils.RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, http.StatusConflict, remoteErr.StatusCode)
	assert.Equal(t, "Lead already exists", remoteErr.Message)
	assert.Equal(t, "add lead", remoteErr.Op)
}

func TestRemoteErrorFallbackMessage(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusInternalServerError, `oops`)
	client := NewAPIClient(APIConfig{BaseURL: srv.URL}, nil)

	err := client.DeleteLead(context.Background(), "abc")

	var remoteErr *utils.RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, "Failed to delete lead", remoteErr.Message)
}

func TestUnauthorizedIsAuthFailure(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusUnauthorized, `{"error":"jwt expired"}`)
	client := NewAPIClient(APIConfig{BaseURL: srv.URL}, staticToken("old"))

	_, err := client.FetchDashboard(context.Background(), "ravi")

	assert.True(t, utils.IsAuthFailure(err))
	assert.Equal(t, "jwt expired", err.Error())
}

func TestLeadResponsesUnwrapUserEnvelope(t *testing.T) {
	srv, rec := newTestServer(t, http.StatusOK, `{"success":true,"user":{"_id":"new-1","userName":"Priya"}}`)
	client := NewAPIClient(APIConfig{BaseURL: srv.URL}, nil)

	lead, err := client.AddLead(context.Background(), map[string]interface{}{"userName": "Priya"})

	require.NoError(t, err)
	assert.Equal(t, "/add", rec.path)
	assert.Equal(t, "new-1", lead["_id"])
}

func TestLeadResponsesBareLead(t *testing.T) {
	srv, rec := newTestServer(t, http.StatusOK, `{"_id":"a","status":"Hot"}`)
	client := NewAPIClient(APIConfig{BaseURL: srv.URL}, nil)

	lead, err := client.UpdateLead(context.Background(), map[string]interface{}{"_id": "a", "status": "Hot"})

	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, rec.method)
	assert.Equal(t, "/Users", rec.path)
	assert.Equal(t, "Hot", lead["status"])
}

func TestRemarkEndpoints(t *testing.T) {
	srv, rec := newTestServer(t, http.StatusOK, `{"_id":"a","remarks":[]}`)
	client := NewAPIClient(APIConfig{BaseURL: srv.URL}, nil)

	_, err := client.AddRemark(context.Background(), "a", "Called")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/Users/remarks", rec.path)
	assert.Equal(t, "Called", rec.body["remark"])

	_, err = client.DeleteRemark(context.Background(), "a", "r1")
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, rec.method)
	assert.Equal(t, "r1", rec.body["remarkId"])
	assert.Equal(t, "a", rec.body["_id"])
}

func TestDeleteLeadEscapesID(t *testing.T) {
	srv, rec := newTestServer(t, http.StatusOK, `{"success":true}`)
	client := NewAPIClient(APIConfig{BaseURL: srv.URL}, nil)

	require.NoError(t, client.DeleteLead(context.Background(), "65f0c0ffee"))
	assert.Equal(t, "/leads/65f0c0ffee", rec.path)
	assert.Equal(t, http.MethodDelete, rec.method)
}

func TestNetworkFailure(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{}`)
	srv.Close()
	client := NewAPIClient(APIConfig{BaseURL: srv.URL, Timeout: time.Second}, nil)

	_, err := client.FetchAll(context.Background())

	var remoteErr *utils.RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, 0, remoteErr.StatusCode)
	assert.False(t, utils.IsAuthFailure(err))
}

func TestMaskSecrets(t *testing.T) {
	body := map[string]interface{}{"username": "ravi", "password": "secret"}
	masked := maskSecrets(body).(map[string]interface{})
	assert.Equal(t, "******", masked["password"])
	assert.Equal(t, "secret", body["password"])
}
