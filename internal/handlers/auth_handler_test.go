package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/khanhquoc4114/app-sub000/internal/middleware"
	"github.com/khanhquoc4114/app-sub000/internal/models"
	"github.com/khanhquoc4114/app-sub000/pkg/utils"
)

type memoryUserStore struct {
	byEmail   map[string]*models.User
	nextID    int64
	createErr error
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{byEmail: make(map[string]*models.User)}
}

func (s *memoryUserStore) CreateUser(_ context.Context, user *models.User) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.nextID++
	user.ID = s.nextID
	stored := *user
	s.byEmail[user.Email] = &stored
	return nil
}

func (s *memoryUserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	user, ok := s.byEmail[email]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return user, nil
}

func (s *memoryUserStore) GetByID(_ context.Context, id int64) (*models.User, error) {
	for _, user := range s.byEmail {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func newAuthTestApp(store *memoryUserStore) *fiber.App {
	handler := NewAuthHandler(store, "secret")
	app := fiber.New()
	app.Post("/api/auth/register", handler.Register)
	app.Post("/api/auth/login", handler.Login)
	app.Get("/api/auth/me", middleware.AuthRequired("secret"), handler.Me)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	var payload map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp, payload
}

func TestRegisterThenLogin(t *testing.T) {
	store := newMemoryUserStore()
	app := newAuthTestApp(store)

	resp, payload := postJSON(t, app, "/api/auth/register",
		`{"email":" Guest@Example.com ","password":"longenough","full_name":" Guest One ","role":"host"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%v)", resp.StatusCode, payload)
	}
	stored := store.byEmail["guest@example.com"]
	if stored == nil || stored.FullName != "Guest One" || stored.Role != models.RoleHost {
		t.Fatalf("unexpected stored user: %+v", stored)
	}
	if stored.PasswordHash == "longenough" || !utils.CheckPassword("longenough", stored.PasswordHash) {
		t.Fatalf("password not hashed with bcrypt")
	}

	resp, payload = postJSON(t, app, "/api/auth/login", `{"email":"guest@example.com","password":"longenough"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	token, _ := payload["token"].(string)
	claims, err := utils.ValidateToken(token, "secret")
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != "1" || claims.Role != models.RoleHost {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	meResp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer meResp.Body.Close()
	var me struct {
		User struct {
			ID       int64  `json:"id"`
			FullName string `json:"full_name"`
		} `json:"user"`
	}
	if err := json.NewDecoder(meResp.Body).Decode(&me); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if meResp.StatusCode != http.StatusOK || me.User.ID != 1 || me.User.FullName != "Guest One" {
		t.Fatalf("unexpected /me response %d %+v", meResp.StatusCode, me)
	}
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad email", `{"email":"nope","password":"longenough"}`, http.StatusBadRequest},
		{"short password", `{"email":"a@b.co","password":"short"}`, http.StatusBadRequest},
		{"staff self signup", `{"email":"a@b.co","password":"longenough","role":"staff"}`, http.StatusBadRequest},
		{"unknown role", `{"email":"a@b.co","password":"longenough","role":"coach"}`, http.StatusBadRequest},
		{"malformed", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := postJSON(t, newAuthTestApp(newMemoryUserStore()), "/api/auth/register", tt.body)
			if resp.StatusCode != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestRegisterConflicts(t *testing.T) {
	store := newMemoryUserStore()
	app := newAuthTestApp(store)

	body := `{"email":"dup@example.com","password":"longenough"}`
	if resp, _ := postJSON(t, app, "/api/auth/register", body); resp.StatusCode != http.StatusCreated {
		t.Fatalf("first register: %d", resp.StatusCode)
	}
	if resp, _ := postJSON(t, app, "/api/auth/register", body); resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for existing email, got %d", resp.StatusCode)
	}

	// A concurrent insert surfaces as a unique violation from the database.
	store.createErr = &pgconn.PgError{Code: "23505"}
	if resp, _ := postJSON(t, app, "/api/auth/register", `{"email":"race@example.com","password":"longenough"}`); resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for unique violation, got %d", resp.StatusCode)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	store := newMemoryUserStore()
	app := newAuthTestApp(store)
	postJSON(t, app, "/api/auth/register", `{"email":"guest@example.com","password":"longenough"}`)

	if resp, _ := postJSON(t, app, "/api/auth/login", `{"email":"guest@example.com","password":"wrongpass"}`); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if resp, _ := postJSON(t, app, "/api/auth/login", `{"email":"nobody@example.com","password":"longenough"}`); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown email, got %d", resp.StatusCode)
	}
}
