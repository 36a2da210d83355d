package controllers

import (
	"database/sql/driver"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workloadinsights/backend/internal/database/dbtest"
	"github.com/workloadinsights/backend/internal/events"
	"github.com/workloadinsights/backend/internal/models"
)

type assignmentsResponse struct {
	ActivityID       string    `json:"activity_id"`
	AssignedToUserID *string   `json:"assigned_to_user_id"`
	UserIDs          []string  `json:"user_ids"`
	Added            []string  `json:"added"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (e *testEnv) createActivity(as *models.User, body gin.H) models.Activity {
	e.t.Helper()
	w := e.do(http.MethodPost, "/api/activities", as, body)
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.Activity](e.t, w)
}

func TestCreateActivity(t *testing.T) {
	env := newTestEnv(t)
	cat := env.createCategory("Plumbing")

	a := env.createActivity(&env.admin, gin.H{
		"category_id":  cat.ID,
		"location":     " Lab 2 ",
		"notes":        "Leaking tap",
		"priority":     models.PriorityHigh,
		"assignee_ids": []string{env.staff.ID},
	})
	assert.Equal(t, env.admin.ID, a.UserID)
	assert.Equal(t, "Lab 2", a.Location)
	assert.Equal(t, models.StatusOpen, a.Status)
	assert.Equal(t, models.PriorityHigh, a.Priority)
	require.NotNil(t, a.AssignedToUserID)
	assert.Equal(t, env.staff.ID, *a.AssignedToUserID)
	require.Len(t, a.Assignments, 1)
	require.NotNil(t, a.Category)
	assert.Equal(t, "Plumbing", a.Category.Name)
	assert.Contains(t, env.pub.types(), events.ActivityCreated)

	got := env.notifier.wait(t)
	assert.Equal(t, a.ID, got.ActivityID)
	assert.Equal(t, []string{env.staff.ID}, got.UserIDs)
	assert.Equal(t, env.admin.ID, got.By)
}

func TestCreateActivityWithoutAssigneesDoesNotNotify(t *testing.T) {
	env := newTestEnv(t)
	cat := env.createCategory("Plumbing")

	a := env.createActivity(&env.staff, gin.H{"category_id": cat.ID, "status": models.StatusInProgress})
	assert.Equal(t, env.staff.ID, a.UserID)
	assert.Equal(t, models.PriorityMedium, a.Priority)
	assert.Equal(t, models.StatusInProgress, a.Status)
	assert.Nil(t, a.AssignedToUserID)
	env.notifier.none(t)
}

func TestCreateActivityValidation(t *testing.T) {
	env := newTestEnv(t)
	cat := env.createCategory("Plumbing")

	w := env.do(http.MethodPost, "/api/activities", &env.staff, gin.H{"notes": "no category"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "category_id")

	w = env.do(http.MethodPost, "/api/activities", &env.staff, gin.H{"category_id": cat.ID, "status": "CLOSED"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/activities", &env.staff, gin.H{
		"category_id": "4f5c1b7e-0000-4000-8000-000000000000",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "category_id")

	w = env.do(http.MethodPost, "/api/activities", &env.staff, gin.H{
		"category_id":  cat.ID,
		"assignee_ids": []string{"not-a-uuid"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateActivityOnBehalfRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	cat := env.createCategory("Plumbing")

	w := env.do(http.MethodPost, "/api/activities", &env.staff, gin.H{"category_id": cat.ID, "user_id": env.admin.ID})
	assert.Equal(t, http.StatusForbidden, w.Code)

	a := env.createActivity(&env.admin, gin.H{"category_id": cat.ID, "user_id": env.staff.ID})
	assert.Equal(t, env.staff.ID, a.UserID)
}

func TestListActivitiesFilters(t *testing.T) {
	env := newTestEnv(t)
	cat := env.createCategory("Plumbing")
	other := env.createUser("Tono", "tono@school.test", models.RoleStaff, "")

	env.createActivity(&env.admin, gin.H{"category_id": cat.ID, "notes": "Broken pipe", "priority": models.PriorityHigh, "assignee_ids": []string{env.staff.ID, other.ID}})
	env.createActivity(&env.admin, gin.H{"category_id": cat.ID, "notes": "Dripping tap", "status": models.StatusResolved})
	env.createActivity(&env.staff, gin.H{"category_id": cat.ID, "location": "Library"})
	env.notifier.wait(t)

	w := env.do(http.MethodGet, "/api/activities", &env.staff, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 3, decode[listResponse[models.Activity]](t, w).Meta["total"])

	w = env.do(http.MethodGet, "/api/activities?status=resolved", &env.staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[listResponse[models.Activity]](t, w)
	require.Len(t, list.Data, 1)
	assert.Equal(t, "Dripping tap", list.Data[0].Notes)
	assert.Equal(t, models.StatusResolved, list.Meta["status"])

	// matches through the secondary assignment, not the primary pointer
	w = env.do(http.MethodGet, "/api/activities?assigned_to="+other.ID, &env.staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list = decode[listResponse[models.Activity]](t, w)
	require.Len(t, list.Data, 1)
	assert.Equal(t, "Broken pipe", list.Data[0].Notes)
	assert.Len(t, list.Data[0].Assignments, 2)

	w = env.do(http.MethodGet, "/api/activities?user_id="+env.staff.ID, &env.staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[listResponse[models.Activity]](t, w).Data, 1)

	w = env.do(http.MethodGet, "/api/activities?q=LIBRARY", &env.staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[listResponse[models.Activity]](t, w).Data, 1)

	w = env.do(http.MethodGet, "/api/activities?limit=2&page=2", &env.staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[listResponse[models.Activity]](t, w).Data, 1)

	w = env.do(http.MethodGet, "/api/activities?priority=urgent", &env.staff, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(http.MethodGet, "/api/activities?from=yesterday", &env.staff, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateActivityOptimisticConcurrency(t *testing.T) {
	env := newTestEnv(t)
	cat := env.createCategory("Plumbing")
	a := env.createActivity(&env.staff, gin.H{"category_id": cat.ID, "notes": "Leak"})

	w := env.do(http.MethodPut, "/api/activities/"+a.ID, &env.staff, gin.H{
		"status":              models.StatusInProgress,
		"expected_updated_at": a.UpdatedAt,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[models.Activity](t, w)
	assert.Equal(t, models.StatusInProgress, updated.Status)
	assert.Equal(t, "Leak", updated.Notes)
	assert.False(t, updated.UpdatedAt.Equal(a.UpdatedAt))
	assert.Contains(t, env.pub.types(), events.ActivityUpdated)

	// a second editor still holding the original version loses
	w = env.do(http.MethodPut, "/api/activities/"+a.ID, &env.admin, gin.H{
		"status":              models.StatusResolved,
		"expected_updated_at": a.UpdatedAt,
	})
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "updated_at")

	var stored models.Activity
	require.NoError(t, env.db.First(&stored, "id = ?", a.ID).Error)
	assert.Equal(t, models.StatusInProgress, stored.Status)

	// without a version the write is last-writer-wins
	w = env.do(http.MethodPut, "/api/activities/"+a.ID, &env.admin, gin.H{
		"status":           models.StatusResolved,
		"resolution_notes": "Replaced washer",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Replaced washer", decode[models.Activity](t, w).ResolutionNotes)
}

func TestUpdateActivityErrors(t *testing.T) {
	env := newTestEnv(t)
	cat := env.createCategory("Plumbing")
	a := env.createActivity(&env.staff, gin.H{"category_id": cat.ID})

	w := env.do(http.MethodPut, "/api/activities/"+a.ID, &env.staff, gin.H{"priority": "URGENT"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPut, "/api/activities/5b0e2f4a-0000-4000-8000-000000000000", &env.staff, gin.H{"notes": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAddUpdateMovesStatus(t *testing.T) {
	env := newTestEnv(t)
	cat := env.createCategory("Plumbing")
	a := env.createActivity(&env.admin, gin.H{"category_id": cat.ID})

	w := env.do(http.MethodPost, "/api/activities/"+a.ID+"/updates", &env.staff, gin.H{"notes": "On my way", "status": models.StatusInProgress})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	upd := decode[models.ActivityUpdate](t, w)
	assert.Equal(t, models.UpdateSourceWeb, upd.Source)
	require.NotNil(t, upd.AuthorID)
	assert.Equal(t, env.staff.ID, *upd.AuthorID)
	assert.Contains(t, env.pub.types(), events.ActivityUpdateAdded)

	w = env.do(http.MethodPost, "/api/activities/"+a.ID+"/updates", &env.staff, gin.H{"notes": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/api/activities/"+a.ID, &env.staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[models.Activity](t, w)
	assert.Equal(t, models.StatusInProgress, got.Status)
	require.Len(t, got.Updates, 1)
	assert.Equal(t, "On my way", got.Updates[0].Notes)

	w = env.do(http.MethodGet, "/api/activities/"+a.ID+"/updates", &env.staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[listResponse[models.ActivityUpdate]](t, w).Data, 1)
}

func TestDeleteActivityPermissions(t *testing.T) {
	env := newTestEnv(t)
	cat := env.createCategory("Plumbing")
	other := env.createUser("Tono", "tono@school.test", models.RoleStaff, "")
	a := env.createActivity(&env.staff, gin.H{"category_id": cat.ID, "assignee_ids": []string{other.ID}})
	env.notifier.wait(t)

	w := env.do(http.MethodDelete, "/api/activities/"+a.ID, &other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(http.MethodDelete, "/api/activities/"+a.ID, &env.staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, env.pub.types(), events.ActivityDeleted)

	var n int64
	require.NoError(t, env.db.Model(&models.ActivityAssignment{}).Where("activity_id = ?", a.ID).Count(&n).Error)
	assert.Zero(t, n)

	w = env.do(http.MethodGet, "/api/activities/"+a.ID, &env.staff, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReplaceAssignmentsNotifiesOnlyAddedUsers(t *testing.T) {
	env := newTestEnv(t)
	cat := env.createCategory("Plumbing")
	other := env.createUser("Tono", "tono@school.test", models.RoleStaff, "6281200000003")
	a := env.createActivity(&env.admin, gin.H{"category_id": cat.ID, "assignee_ids": []string{env.staff.ID}})
	env.notifier.wait(t)

	w := env.do(http.MethodPut, "/api/activities/"+a.ID+"/assignments", &env.admin, gin.H{
		"user_ids": []string{other.ID, env.staff.ID, other.ID},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[assignmentsResponse](t, w)
	require.NotNil(t, got.AssignedToUserID)
	assert.Equal(t, other.ID, *got.AssignedToUserID)
	assert.Equal(t, []string{other.ID, env.staff.ID}, got.UserIDs, "primary comes first")
	assert.Equal(t, []string{other.ID}, got.Added)
	assert.Contains(t, env.pub.types(), events.ActivityAssigned)

	n := env.notifier.wait(t)
	assert.Equal(t, []string{other.ID}, n.UserIDs)

	// clearing removes every assignee and the primary pointer
	w = env.do(http.MethodPut, "/api/activities/"+a.ID+"/assignments", &env.admin, gin.H{"user_ids": []string{}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got = decode[assignmentsResponse](t, w)
	assert.Nil(t, got.AssignedToUserID)
	assert.Empty(t, got.UserIDs)
	assert.Empty(t, got.Added)
	env.notifier.none(t)
}

func TestReplaceAssignmentsErrors(t *testing.T) {
	env := newTestEnv(t)
	cat := env.createCategory("Plumbing")
	a := env.createActivity(&env.admin, gin.H{"category_id": cat.ID})
	inactive := env.createUser("Gone", "gone@school.test", models.RoleStaff, "")
	require.NoError(t, env.db.Model(&inactive).Update("active", false).Error)

	w := env.do(http.MethodPut, "/api/activities/"+a.ID+"/assignments", &env.admin, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPut, "/api/activities/"+a.ID+"/assignments", &env.admin, gin.H{"user_ids": []string{inactive.ID}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPut, "/api/activities/"+a.ID+"/assignments", &env.admin, gin.H{
		"user_ids":            []string{env.staff.ID},
		"expected_updated_at": a.UpdatedAt.Add(-time.Second),
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	env.notifier.none(t)
}

func TestListActivitiesRetriesTransientErrors(t *testing.T) {
	env := newTestEnv(t)
	cat := env.createCategory("Plumbing")
	env.createActivity(&env.admin, gin.H{"category_id": cat.ID, "notes": "Leaking tap"})

	// auth lookup fails twice, the count once; all are retried
	failed := dbtest.FailQueries(t, env.db, 3, driver.ErrBadConn)
	w := env.do(http.MethodGet, "/api/activities", &env.staff, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 3, failed())
	list := decode[listResponse[models.Activity]](t, w)
	require.Len(t, list.Data, 1)
	assert.Equal(t, "Leaking tap", list.Data[0].Notes)
}
