package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BerniceZTT/edulead_crm/models"
	"github.com/BerniceZTT/edulead_crm/repository"
	"github.com/BerniceZTT/edulead_crm/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRemote 模拟远程线索服务
type fakeRemote struct {
	mu       sync.Mutex
	leads    []map[string]interface{}
	users    []map[string]interface{}
	calls    map[string]int
	failWith int
	bodies   map[string]map[string]interface{}
	lastAuth string
	nextID   int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		leads: []map[string]interface{}{
			{"_id": "a", "userName": "Arjun", "userNumber": "919876543210", "status": "Hot", "assignedto": "ravi",
				"remarks": []interface{}{
					map[string]interface{}{"_id": "r1", "remark": "first", "timestamp": "2024-03-01T10:00:00Z"},
					map[string]interface{}{"_id": "r2", "remark": "second", "timestamp": "2024-03-02T10:00:00Z"},
				}},
			{"_id": "b", "userName": "Meena", "userNumber": "9123456789", "status": "Cold", "assignedto": "ghost"},
			{"_id": "c", "userName": "Kiran", "userNumber": "9000000000", "status": "Warm"},
		},
		users: []map[string]interface{}{
			{"_id": "u1", "username": "ravi", "role": "user"},
			{"_id": "u2", "username": "admin", "role": "admin"},
		},
		calls:  map[string]int{},
		bodies: map[string]map[string]interface{}{},
	}
}

func (f *fakeRemote) find(id string) map[string]interface{} {
	for _, l := range f.leads {
		if l["_id"] == id {
			return l
		}
	}
	return nil
}

func (f *fakeRemote) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeRemote) body(key string) map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[key]
}

func (f *fakeRemote) auth() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAuth
}

func (f *fakeRemote) fail(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = status
}

func (f *fakeRemote) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := r.Method + " " + r.URL.Path
	if strings.HasPrefix(r.URL.Path, "/leads/") {
		key = r.Method + " /leads/:id"
	}
	f.calls[key]++
	f.lastAuth = r.Header.Get("Authorization")

	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.bodies[key] = body

	w.Header().Set("Content-Type", "application/json")
	if f.failWith != 0 {
		w.WriteHeader(f.failWith)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"message": "remote failure"})
		return
	}

	write := func(v interface{}) { _ = json.NewEncoder(w).Encode(v) }

	switch key {
	case "GET /users":
		write(map[string]interface{}{"users": f.users, "leads": f.leads})
	case "POST /dashboard":
		write(map[string]interface{}{"success": true, "leads": f.leads, "staffs": f.users})
	case "POST /add":
		f.nextID++
		lead := map[string]interface{}{"_id": fmt.Sprintf("new-%d", f.nextID)}
		for k, v := range body {
			lead[k] = v
		}
		f.leads = append([]map[string]interface{}{lead}, f.leads...)
		write(map[string]interface{}{"success": true, "user": lead})
	case "PUT /Users", "PUT /Users/edit":
		lead := f.find(fmt.Sprint(body["_id"]))
		if lead == nil {
			w.WriteHeader(http.StatusNotFound)
			write(map[string]interface{}{"message": "Lead not found"})
			return
		}
		for k, v := range body {
			lead[k] = v
		}
		write(lead)
	case "DELETE /leads/:id":
		id := strings.TrimPrefix(r.URL.Path, "/leads/")
		next := f.leads[:0]
		for _, l := range f.leads {
			if l["_id"] != id {
				next = append(next, l)
			}
		}
		f.leads = next
		write(map[string]interface{}{"success": true})
	case "POST /Users/remarks":
		lead := f.find(fmt.Sprint(body["_id"]))
		remarks, _ := lead["remarks"].([]interface{})
		remarks = append(remarks, map[string]interface{}{"_id": "r-new", "remark": body["remark"], "timestamp": "2024-03-05T10:00:00Z"})
		lead["remarks"] = remarks
		write(lead)
	case "DELETE /Users/remarks":
		lead := f.find(fmt.Sprint(body["_id"]))
		remarks, _ := lead["remarks"].([]interface{})
		kept := []interface{}{}
		for _, r := range remarks {
			if r.(map[string]interface{})["_id"] != body["remarkId"] {
				kept = append(kept, r)
			}
		}
		lead["remarks"] = kept
		write(lead)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type coordinatorFixture struct {
	remote      *fakeRemote
	session     *Session
	store       *LeadStore
	coordinator *Coordinator
}

func newFixture(t *testing.T, viewer models.User, scoped bool) *coordinatorFixture {
	t.Helper()
	remote := newFakeRemote()
	srv := httptest.NewServer(remote)
	t.Cleanup(srv.Close)

	session := NewSession(&fakeAuth{identity: &Identity{User: viewer, Token: "tok-" + viewer.Username}}, nil)
	client := repository.NewAPIClient(repository.APIConfig{BaseURL: srv.URL, Timeout: 2 * time.Second}, session)
	store := NewLeadStore()
	coordinator := NewCoordinator(client, store, session, scoped)
	coordinator.now = func() time.Time { return fixedNow }

	_, _, err := session.Login(context.Background(), viewer.Username, "pw")
	require.NoError(t, err)
	require.NoError(t, coordinator.Refresh(context.Background()))

	return &coordinatorFixture{remote: remote, session: session, store: store, coordinator: coordinator}
}

func assertAPIError(t *testing.T, err error, status int, code string) {
	t.Helper()
	var apiErr *utils.ApiError
	require.True(t, errors.As(err, &apiErr), "expected ApiError, got %v", err)
	assert.Equal(t, status, apiErr.StatusCode)
	if code != "" {
		assert.Equal(t, code, apiErr.ErrorCode)
	}
}

func TestRefreshScopedUsesDashboardEndpoint(t *testing.T) {
	f := newFixture(t, adminViewer, true)

	assert.Equal(t, 1, f.remote.count("POST /dashboard"))
	assert.Equal(t, 0, f.remote.count("GET /users"))
	assert.Equal(t, "Bearer tok-admin", f.remote.auth())
	assert.Equal(t, "admin", f.remote.body("POST /dashboard")["username"])
	assert.Equal(t, []string{"a", "b", "c"}, ids(f.store.Leads()))
	assert.Len(t, f.store.Users(), 2)
}

func TestRefreshLocalScopesLeadsForStaff(t *testing.T) {
	f := newFixture(t, ravi, false)

	assert.Equal(t, 1, f.remote.count("GET /users"))
	assert.Equal(t, []string{"a"}, ids(f.store.Leads()))
}

func TestRefreshRequiresSession(t *testing.T) {
	f := newFixture(t, adminViewer, true)
	require.NoError(t, f.session.Logout(context.Background(), true))

	assert.Empty(t, f.store.Leads(), "logout clears the working set")
	assertAPIError(t, f.coordinator.Refresh(context.Background()), http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestRefreshAuthFailureForcesLogout(t *testing.T) {
	f := newFixture(t, adminViewer, true)
	f.remote.fail(http.StatusUnauthorized)

	err := f.coordinator.Refresh(context.Background())

	assertAPIError(t, err, http.StatusUnauthorized, "SESSION_EXPIRED")
	assert.Equal(t, SessionUnauthenticated, f.session.State())
	assert.Empty(t, f.store.Leads())
}

func TestRefreshFailureKeepsState(t *testing.T) {
	f := newFixture(t, adminViewer, true)
	f.remote.fail(http.StatusInternalServerError)

	err := f.coordinator.Refresh(context.Background())

	var remoteErr *utils.RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, SessionAuthenticated, f.session.State())
	assert.Len(t, f.store.Leads(), 3)
}

func TestReloginDropsPreviousWorkingSet(t *testing.T) {
	f := newFixture(t, adminViewer, true)
	require.Len(t, f.store.Leads(), 3)

	f.session.auth = &fakeAuth{identity: &Identity{User: ravi, Token: "tok-ravi"}}
	f.remote.fail(http.StatusInternalServerError)
	_, _, err := f.session.Login(context.Background(), "ravi", "pw")
	require.NoError(t, err)
	require.Error(t, f.coordinator.Refresh(context.Background()))

	current, ok := f.session.Current()
	require.True(t, ok)
	assert.Equal(t, "ravi", current.Username)
	assert.Empty(t, f.store.Leads(), "admin leads must not survive into the new session")
}

func TestCreateLeadValidatesBeforeNetwork(t *testing.T) {
	f := newFixture(t, ravi, true)

	_, err := f.coordinator.CreateLead(context.Background(), models.LeadForm{UserName: "  ", UserNumber: "9876543210"})
	assertAPIError(t, err, http.StatusBadRequest, "BAD_REQUEST")

	_, err = f.coordinator.CreateLead(context.Background(), models.LeadForm{UserName: "Priya", UserNumber: "12345"})
	assertAPIError(t, err, http.StatusBadRequest, "BAD_REQUEST")

	assert.Equal(t, 0, f.remote.count("POST /add"))
}

func TestCreateLeadAppliesDefaultsAndRefetches(t *testing.T) {
	f := newFixture(t, adminViewer, true)

	lead, err := f.coordinator.CreateLead(context.Background(), models.LeadForm{UserName: " Priya ", UserNumber: "98765-43210"})

	require.NoError(t, err)
	assert.Equal(t, "new-1", lead.ID)
	assert.Equal(t, "9876543210", f.remote.body("POST /add")["userNumber"])
	assert.Equal(t, "Priya", f.remote.body("POST /add")["userName"])
	assert.Equal(t, models.CourseOptions[0], f.remote.body("POST /add")["course"])
	assert.Equal(t, models.SourceManualFull, f.remote.body("POST /add")["leadfrom"])
	assert.Equal(t, models.StatusCold, f.remote.body("POST /add")["status"])
	assert.Equal(t, models.PipelineNew, f.remote.body("POST /add")["pipeline"])
	assert.Equal(t, 2, f.remote.count("POST /dashboard"))
	assert.Equal(t, []string{"new-1", "a", "b", "c"}, ids(f.store.Leads()))
}

func TestUpdateFieldsReplacesLead(t *testing.T) {
	f := newFixture(t, ravi, true)
	_, err := f.coordinator.Detail("a")
	require.NoError(t, err)

	lead, err := f.coordinator.SetStatus(context.Background(), "a", "warm")

	require.NoError(t, err)
	assert.Equal(t, models.StatusWarm, lead.Status)
	assert.Equal(t, "Warm", f.remote.body("PUT /Users")["status"])
	selected, ok := f.coordinator.Selected()
	require.True(t, ok)
	assert.Equal(t, models.StatusWarm, selected.Status)
}

func TestUpdateFieldsWhitelist(t *testing.T) {
	f := newFixture(t, adminViewer, true)

	_, err := f.coordinator.UpdateFields(context.Background(), "a", map[string]interface{}{"followUpCount": 9, "_id": "zzz"})
	assertAPIError(t, err, http.StatusBadRequest, "BAD_REQUEST")

	_, err = f.coordinator.SetPipeline(context.Background(), "a", "Archived")
	assertAPIError(t, err, http.StatusBadRequest, "BAD_REQUEST")

	lead, err := f.coordinator.UpdateFields(context.Background(), "a", map[string]interface{}{"pipeline": "asked time", "secret": "x"})
	require.NoError(t, err)
	assert.Equal(t, models.PipelineAskedTime, lead.Pipeline)
	_, leaked := f.remote.body("PUT /Users")["secret"]
	assert.False(t, leaked)
	assert.Equal(t, "a", f.remote.body("PUT /Users")["_id"])

	_, err = f.coordinator.SetStatus(context.Background(), "missing", "Hot")
	assertAPIError(t, err, http.StatusNotFound, "RESOURCE_NOT_FOUND")
}

func TestUpdateFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, adminViewer, true)
	f.remote.fail(http.StatusInternalServerError)

	_, err := f.coordinator.SetStatus(context.Background(), "a", "Cold")

	require.Error(t, err)
	lead, ok := f.store.Find("a")
	require.True(t, ok)
	assert.Equal(t, models.StatusHot, lead.Status)
}

func TestAssignLeadAdminOnly(t *testing.T) {
	f := newFixture(t, ravi, true)
	before := f.remote.count("PUT /Users")

	_, err := f.coordinator.AssignLead(context.Background(), "a", "meena")
	assertAPIError(t, err, http.StatusForbidden, "FORBIDDEN")

	_, err = f.coordinator.UpdateFields(context.Background(), "a", map[string]interface{}{"assignedto": "meena"})
	assertAPIError(t, err, http.StatusForbidden, "FORBIDDEN")

	assert.Equal(t, before, f.remote.count("PUT /Users"), "refused before any network call")
}

func TestAssignLeadAsAdmin(t *testing.T) {
	f := newFixture(t, adminViewer, true)

	lead, err := f.coordinator.AssignLead(context.Background(), "c", " ravi ")
	require.NoError(t, err)
	assert.True(t, lead.IsAssignedTo("ravi"))

	lead, err = f.coordinator.AssignLead(context.Background(), "c", "")
	require.NoError(t, err)
	assert.Nil(t, lead.AssignedTo)
}

func TestSetReminder(t *testing.T) {
	f := newFixture(t, ravi, true)
	at := time.Date(2024, 3, 20, 15, 30, 0, 0, time.FixedZone("IST", 19800))

	lead, err := f.coordinator.SetReminder(context.Background(), "a", &at)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-20T10:00:00Z", f.remote.body("PUT /Users")["reminder"])
	require.NotNil(t, lead.Reminder)
	assert.True(t, lead.Reminder.Equal(at))
	assert.Len(t, f.coordinator.Reminders(), 1)

	lead, err = f.coordinator.SetReminder(context.Background(), "a", nil)
	require.NoError(t, err)
	assert.Nil(t, lead.Reminder)
	assert.Empty(t, f.coordinator.Reminders())
}

func TestRemarks(t *testing.T) {
	f := newFixture(t, ravi, true)

	_, err := f.coordinator.AddRemark(context.Background(), "a", "   ")
	assertAPIError(t, err, http.StatusBadRequest, "BAD_REQUEST")
	assert.Equal(t, 0, f.remote.count("POST /Users/remarks"))

	_, err = f.coordinator.AddRemark(context.Background(), "a", " Called back ")
	require.NoError(t, err)
	assert.Equal(t, "Called back", f.remote.body("POST /Users/remarks")["remark"])

	detail, err := f.coordinator.Detail("a")
	require.NoError(t, err)
	require.Len(t, detail.Remarks, 3)
	assert.Equal(t, "r-new", detail.Remarks[0].ID, "newest first")
	assert.Equal(t, "r1", detail.Remarks[2].ID)

	_, err = f.coordinator.DeleteRemark(context.Background(), "a", "r1")
	require.NoError(t, err)
	detail, err = f.coordinator.Detail("a")
	require.NoError(t, err)
	assert.Len(t, detail.Remarks, 2)
}

func TestDetail(t *testing.T) {
	f := newFixture(t, adminViewer, true)

	detail, err := f.coordinator.Detail("a")
	require.NoError(t, err)
	assert.True(t, detail.AssigneeKnown)
	assert.Equal(t, "9876543210", detail.EditableNumber)

	detail, err = f.coordinator.Detail("b")
	require.NoError(t, err)
	assert.False(t, detail.AssigneeKnown, "ghost is not in the staff list")

	_, err = f.coordinator.Detail("missing")
	assertAPIError(t, err, http.StatusNotFound, "")
}

func TestEditLeadKeepsUnsetFields(t *testing.T) {
	f := newFixture(t, adminViewer, true)

	lead, err := f.coordinator.EditLead(context.Background(), "a", models.LeadForm{Location: models.StrPtr("Chennai")})

	require.NoError(t, err)
	assert.Equal(t, 1, f.remote.count("PUT /Users/edit"))
	assert.Equal(t, "Arjun", f.remote.body("PUT /Users/edit")["userName"])
	assert.Equal(t, "9876543210", f.remote.body("PUT /Users/edit")["userNumber"])
	assert.Equal(t, "Hot", f.remote.body("PUT /Users/edit")["status"])
	require.NotNil(t, lead.Location)
	assert.Equal(t, "Chennai", *lead.Location)
}

func TestDeleteLead(t *testing.T) {
	t.Run("requires confirmation", func(t *testing.T) {
		f := newFixture(t, adminViewer, true)
		err := f.coordinator.DeleteLead(context.Background(), "a", false)
		assertAPIError(t, err, http.StatusBadRequest, "CONFIRMATION_REQUIRED")
		assert.Equal(t, 0, f.remote.count("DELETE /leads/:id"))
	})

	t.Run("admin only", func(t *testing.T) {
		f := newFixture(t, ravi, true)
		err := f.coordinator.DeleteLead(context.Background(), "a", true)
		assertAPIError(t, err, http.StatusForbidden, "FORBIDDEN")
		assert.Equal(t, 0, f.remote.count("DELETE /leads/:id"))
	})

	t.Run("removes and clears selection", func(t *testing.T) {
		f := newFixture(t, adminViewer, true)
		_, err := f.coordinator.Detail("b")
		require.NoError(t, err)

		require.NoError(t, f.coordinator.DeleteLead(context.Background(), "b", true))

		_, ok := f.coordinator.Selected()
		assert.False(t, ok)
		assert.Equal(t, []string{"a", "c"}, ids(f.store.Leads()))
		assert.Equal(t, 2, f.remote.count("POST /dashboard"))
	})
}

func TestMutationAuthFailureForcesLogout(t *testing.T) {
	f := newFixture(t, adminViewer, true)
	f.remote.fail(http.StatusForbidden)

	_, err := f.coordinator.AddRemark(context.Background(), "a", "hello")

	assertAPIError(t, err, http.StatusUnauthorized, "SESSION_EXPIRED")
	assert.Equal(t, SessionUnauthenticated, f.session.State())
}

func TestDashboardAndFilterOptions(t *testing.T) {
	f := newFixture(t, adminViewer, true)

	view := f.coordinator.Dashboard("", models.FilterState{Statuses: []string{"Hot", "Warm"}})
	assert.Equal(t, []string{"a", "c"}, ids(view.Leads))
	assert.Equal(t, models.StatusCounts{Total: 2, Hot: 1, Warm: 1}, view.Counts)

	options := f.coordinator.FilterOptions()
	assert.Equal(t, []string{"ravi", "admin"}, options.Staff)
	assert.Equal(t, models.StatusOptions, options.Statuses)
}
