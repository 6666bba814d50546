package rbac

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/coopledger/coopledger/internal/platform/httpx"
	"github.com/coopledger/coopledger/internal/shared"
)

func TestCheckRequiresEveryPermission(t *testing.T) {
	granted := []string{"credit.view", "Credit.Approve"}

	assert.NoError(t, Check(granted, shared.PermCreditView, shared.PermCreditApprove))

	err := Check(granted, shared.PermCreditView, shared.PermCreditDisburse)
	assert.True(t, errors.Is(err, httpx.ErrForbidden))
	assert.Contains(t, err.Error(), shared.PermCreditDisburse)
}

func TestCheckAny(t *testing.T) {
	granted := []string{shared.PermSavingsView}
	assert.NoError(t, CheckAny(granted, shared.PermSavingsOperate, shared.PermSavingsView))
	assert.Error(t, CheckAny(granted, shared.PermSavingsOperate))
	assert.NoError(t, CheckAny(granted))
}

func TestSuperuserBypassesChecks(t *testing.T) {
	granted := []string{shared.PermSuperuser}
	assert.NoError(t, Check(granted, shared.LedgerScopes()...))
	assert.NoError(t, CheckAny(granted, shared.PermCreditMoraRun))
}

func TestMiddlewareStatusCodes(t *testing.T) {
	mw := Middleware{}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	handler := mw.RequireAll(shared.PermLedgerPost)(ok)

	cases := []struct {
		name   string
		actor  *shared.Actor
		status int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"missing permission", &shared.Actor{ID: 7, Permissions: []string{shared.PermLedgerView}}, http.StatusForbidden},
		{"granted", &shared.Actor{ID: 7, Permissions: []string{shared.PermLedgerPost}}, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/journals", nil)
			if tc.actor != nil {
				req = req.WithContext(shared.ContextWithActor(req.Context(), *tc.actor))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestPermissionsHandlerListsGroups(t *testing.T) {
	r := chi.NewRouter()
	NewPermissionsHandler(Middleware{}).MountRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(shared.ContextWithActor(req.Context(), shared.Actor{ID: 1, Permissions: []string{shared.PermPermissionsView}}))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), shared.PermCreditMoraRun)
	assert.Contains(t, rec.Body.String(), shared.PermJobsRun)
}
