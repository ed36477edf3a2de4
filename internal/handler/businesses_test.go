package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mesaflow/api/internal/auth"
	"github.com/mesaflow/api/internal/database"
	"github.com/mesaflow/api/internal/handler"
)

type mockBusinessStore struct {
	businesses   map[uuid.UUID]database.Business
	staff        map[uuid.UUID]database.BusinessStaff
	usersByEmail map[string]database.User
	hours        []database.BusinessHour

	upserted []database.UpsertBusinessStaffParams
}

func newMockBusinessStore() *mockBusinessStore {
	return &mockBusinessStore{
		businesses:   make(map[uuid.UUID]database.Business),
		staff:        make(map[uuid.UUID]database.BusinessStaff),
		usersByEmail: make(map[string]database.User),
	}
}

func (m *mockBusinessStore) CreateBusiness(_ context.Context, arg database.CreateBusinessParams) (database.Business, error) {
	b := database.Business{
		ID:          uuid.New(),
		Name:        arg.Name,
		OwnerID:     arg.OwnerID,
		Email:       arg.Email,
		PhoneNumber: arg.PhoneNumber,
		Address:     arg.Address,
		City:        arg.City,
		State:       arg.State,
		Country:     arg.Country,
		PostalCode:  arg.PostalCode,
		IsActive:    true,
	}
	m.businesses[b.ID] = b
	return b, nil
}

func (m *mockBusinessStore) GetBusiness(_ context.Context, id uuid.UUID) (database.Business, error) {
	b, ok := m.businesses[id]
	if !ok {
		return database.Business{}, pgx.ErrNoRows
	}
	return b, nil
}

func (m *mockBusinessStore) GetBusinessStaff(_ context.Context, arg database.GetBusinessStaffParams) (database.BusinessStaff, error) {
	s, ok := m.staff[arg.UserID]
	if !ok {
		return database.BusinessStaff{}, pgx.ErrNoRows
	}
	return s, nil
}

func (m *mockBusinessStore) ListBusinessStaff(_ context.Context, _ uuid.UUID) ([]database.BusinessStaff, error) {
	out := make([]database.BusinessStaff, 0, len(m.staff))
	for _, s := range m.staff {
		out = append(out, s)
	}
	return out, nil
}

func (m *mockBusinessStore) UpsertBusinessStaff(_ context.Context, arg database.UpsertBusinessStaffParams) (database.BusinessStaff, error) {
	m.upserted = append(m.upserted, arg)
	s := database.BusinessStaff{
		BusinessID: arg.BusinessID,
		UserID:     arg.UserID,
		Roles:      arg.Roles,
		IsActive:   arg.IsActive,
	}
	m.staff[arg.UserID] = s
	return s, nil
}

func (m *mockBusinessStore) ListBusinessHours(_ context.Context, _ uuid.UUID) ([]database.BusinessHour, error) {
	return m.hours, nil
}

func (m *mockBusinessStore) CreateBusinessHour(_ context.Context, arg database.CreateBusinessHourParams) (database.BusinessHour, error) {
	h := database.BusinessHour{
		BusinessID: arg.BusinessID,
		Day:        arg.Day,
		StartTime:  arg.StartTime,
		EndTime:    arg.EndTime,
	}
	m.hours = append(m.hours, h)
	return h, nil
}

func (m *mockBusinessStore) GetUserByEmail(_ context.Context, email string) (database.User, error) {
	u, ok := m.usersByEmail[email]
	if !ok {
		return database.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func newBusinessRouter(store handler.BusinessStore) chi.Router {
	h := handler.NewBusinessHandler(store)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

// ownedBusiness seeds a business owned by the given user.
func ownedBusiness(store *mockBusinessStore, ownerID uuid.UUID) database.Business {
	b := database.Business{
		ID:       uuid.New(),
		Name:     "Mesa Cafe",
		OwnerID:  ownerID,
		IsActive: true,
	}
	store.businesses[b.ID] = b
	return b
}

func TestCreateBusiness_Created(t *testing.T) {
	claims := customerClaims()
	store := newMockBusinessStore()
	r := newBusinessRouter(store)

	rr := doAs(t, r, claims, "POST", "/businesses", map[string]string{
		"name":    "Mesa Cafe",
		"address": "1 Main St",
		"city":    "Springfield",
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["owner_id"] != claims.UserID.String() {
		t.Errorf("owner_id = %v, want %s", resp["owner_id"], claims.UserID)
	}
}

func TestCreateBusiness_MissingAddress(t *testing.T) {
	r := newBusinessRouter(newMockBusinessStore())

	rr := doAs(t, r, customerClaims(), "POST", "/businesses", map[string]string{
		"name": "Mesa Cafe",
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestGetBusiness_Public(t *testing.T) {
	store := newMockBusinessStore()
	b := ownedBusiness(store, uuid.New())
	r := newBusinessRouter(store)

	rr := doAs(t, r, nil, "GET", "/businesses/"+b.ID.String(), nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
}

func TestGetBusiness_NotFound(t *testing.T) {
	r := newBusinessRouter(newMockBusinessStore())

	rr := doAs(t, r, nil, "GET", "/businesses/"+uuid.NewString(), nil)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestListStaff_RequiresManager(t *testing.T) {
	store := newMockBusinessStore()
	b := ownedBusiness(store, uuid.New())
	r := newBusinessRouter(store)

	rr := doAs(t, r, customerClaims(), "GET", "/businesses/"+b.ID.String()+"/staff", nil)

	if rr.Code != http.StatusForbidden {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestListStaff_OwnerAllowed(t *testing.T) {
	claims := customerClaims()
	store := newMockBusinessStore()
	b := ownedBusiness(store, claims.UserID)
	r := newBusinessRouter(store)

	rr := doAs(t, r, claims, "GET", "/businesses/"+b.ID.String()+"/staff", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
}

func TestListStaff_RoleFilter(t *testing.T) {
	claims := customerClaims()
	store := newMockBusinessStore()
	b := ownedBusiness(store, claims.UserID)
	courier := uuid.New()
	store.staff[courier] = database.BusinessStaff{
		BusinessID: b.ID, UserID: courier, Roles: []string{"delivery"}, IsActive: true,
	}
	cook := uuid.New()
	store.staff[cook] = database.BusinessStaff{
		BusinessID: b.ID, UserID: cook, Roles: []string{"kitchen"}, IsActive: true,
	}
	r := newBusinessRouter(store)

	rr := doAs(t, r, claims, "GET", "/businesses/"+b.ID.String()+"/staff?role=delivery", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	var staff []map[string]interface{}
	decodeInto(t, rr, &staff)
	if len(staff) != 1 || staff[0]["user_id"] != courier.String() {
		t.Errorf("unexpected roster: %v", staff)
	}
}

func TestUpsertStaff_ByEmail(t *testing.T) {
	claims := customerClaims()
	store := newMockBusinessStore()
	b := ownedBusiness(store, claims.UserID)
	target := database.User{ID: uuid.New(), Email: "cook@test.com"}
	store.usersByEmail[target.Email] = target
	r := newBusinessRouter(store)

	rr := doAs(t, r, claims, "PUT", "/businesses/"+b.ID.String()+"/staff", map[string]any{
		"email": "Cook@Test.com",
		"roles": []string{"kitchen"},
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if len(store.upserted) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(store.upserted))
	}
	got := store.upserted[0]
	if got.UserID != target.ID {
		t.Errorf("user ID = %s, want %s", got.UserID, target.ID)
	}
	if !got.IsActive {
		t.Error("is_active should default to true")
	}
	if len(got.Roles) != 1 || got.Roles[0] != "kitchen" {
		t.Errorf("roles = %v, want [kitchen]", got.Roles)
	}
}

func TestUpsertStaff_UnknownEmail(t *testing.T) {
	claims := customerClaims()
	store := newMockBusinessStore()
	b := ownedBusiness(store, claims.UserID)
	r := newBusinessRouter(store)

	rr := doAs(t, r, claims, "PUT", "/businesses/"+b.ID.String()+"/staff", map[string]any{
		"email": "nobody@test.com",
		"roles": []string{"kitchen"},
	})

	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestUpsertStaff_InvalidRole(t *testing.T) {
	claims := customerClaims()
	store := newMockBusinessStore()
	b := ownedBusiness(store, claims.UserID)
	r := newBusinessRouter(store)

	rr := doAs(t, r, claims, "PUT", "/businesses/"+b.ID.String()+"/staff", map[string]any{
		"user_id": uuid.NewString(),
		"roles":   []string{"janitor"},
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestUpsertStaff_RequiresTarget(t *testing.T) {
	claims := customerClaims()
	store := newMockBusinessStore()
	b := ownedBusiness(store, claims.UserID)
	r := newBusinessRouter(store)

	rr := doAs(t, r, claims, "PUT", "/businesses/"+b.ID.String()+"/staff", map[string]any{
		"roles": []string{"kitchen"},
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestCreateHour_Created(t *testing.T) {
	claims := customerClaims()
	store := newMockBusinessStore()
	b := ownedBusiness(store, claims.UserID)
	r := newBusinessRouter(store)

	rr := doAs(t, r, claims, "POST", "/businesses/"+b.ID.String()+"/hours", map[string]any{
		"day":        1,
		"start_time": "08:00",
		"end_time":   "22:00",
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	if len(store.hours) != 1 {
		t.Fatalf("expected 1 hour, got %d", len(store.hours))
	}
}

func TestCreateHour_BadClock(t *testing.T) {
	claims := customerClaims()
	store := newMockBusinessStore()
	b := ownedBusiness(store, claims.UserID)
	r := newBusinessRouter(store)

	for _, clock := range []string{"8:00", "25:00", "12:61", "noon", ""} {
		rr := doAs(t, r, claims, "POST", "/businesses/"+b.ID.String()+"/hours", map[string]any{
			"day":        1,
			"start_time": clock,
			"end_time":   "22:00",
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("clock %q: status got %d, want %d", clock, rr.Code, http.StatusBadRequest)
		}
	}
}

func TestCreateHour_BadDay(t *testing.T) {
	claims := customerClaims()
	store := newMockBusinessStore()
	b := ownedBusiness(store, claims.UserID)
	r := newBusinessRouter(store)

	rr := doAs(t, r, claims, "POST", "/businesses/"+b.ID.String()+"/hours", map[string]any{
		"day":        7,
		"start_time": "08:00",
		"end_time":   "22:00",
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestListHours_Public(t *testing.T) {
	store := newMockBusinessStore()
	b := ownedBusiness(store, uuid.New())
	store.hours = []database.BusinessHour{
		{BusinessID: b.ID, Day: 1, StartTime: "08:00", EndTime: "22:00"},
	}
	r := newBusinessRouter(store)

	rr := doAs(t, r, nil, "GET", "/businesses/"+b.ID.String()+"/hours", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
}

// Admins hold manager standing everywhere without being on the roster.
func TestListStaff_AdminAllowed(t *testing.T) {
	store := newMockBusinessStore()
	b := ownedBusiness(store, uuid.New())
	r := newBusinessRouter(store)

	admin := &auth.Claims{UserID: uuid.New(), Role: "admin"}
	rr := doAs(t, r, admin, "GET", "/businesses/"+b.ID.String()+"/staff", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
}
