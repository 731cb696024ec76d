package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/geocoder89/userhub/internal/config"
	"github.com/geocoder89/userhub/internal/db"
	"github.com/geocoder89/userhub/internal/domain/user"
	apphttp "github.com/geocoder89/userhub/internal/http"
	"github.com/geocoder89/userhub/internal/repo/postgres"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

func testConfig() config.Config {
	return config.Config{
		Env:                "test",
		JWTSecret:          "integration-secret",
		BcryptCost:         4,
		CORSAllowedOrigins: []string{"http://localhost:3000"},
		MaxBodyBytes:       1 << 20,
	}
}

// setupPool connects to TEST_DB_DSN, migrates and truncates users. The
// test is skipped when no DSN is configured.
func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	pool, err := db.NewPool(dsn, 10)
	if err != nil {
		t.Fatalf("Failed to create pgx pool: %v", err)
	}

	t.Cleanup(pool.Close)

	ctx := context.Background()

	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	resetDB(t, pool)
	t.Cleanup(func() { resetDB(t, pool) })

	return pool
}

func resetDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	if _, err := pool.Exec(context.Background(), `TRUNCATE users`); err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}

func setupRouter(t *testing.T, pool *pgxpool.Pool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	router, err := apphttp.NewRouter(logger, apphttp.Deps{Config: testConfig(), Pool: pool})
	if err != nil {
		t.Fatalf("router: %v", err)
	}

	return router
}

func doRequest(router http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w
}

func mustReadJSON[T any](t *testing.T, w *httptest.ResponseRecorder, out *T) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to unmarshal json: %v, body=%s", err, w.Body.String())
	}
}

func registerBody(username, email string) string {
	return fmt.Sprintf(`{"nombres":"Ana","apellidos":"Diaz","correo":%q,"usuario":%q,"password":"pw-123456","telefono":"555","direccion":"Calle 1","edad":20}`, email, username)
}

func TestUsersIntegration_Register_Login_Update(t *testing.T) {
	pool := setupPool(t)
	router := setupRouter(t, pool)

	w := doRequest(router, http.MethodPost, "/api/auth/registro", "", registerBody("ana", "ana@example.com"))
	if w.Code != http.StatusCreated {
		t.Fatalf("register got status %d, body=%s", w.Code, w.Body.String())
	}

	var created struct {
		User user.Profile `json:"user"`
	}
	mustReadJSON(t, w, &created)

	if created.User.Role != user.RoleRegular || created.User.LearningLevel != user.LevelBeginner {
		t.Fatalf("unexpected defaults: %+v", created.User)
	}

	// duplicate email, different username
	w = doRequest(router, http.MethodPost, "/api/auth/registro", "", registerBody("other", "ana@example.com"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate email got status %d, body=%s", w.Code, w.Body.String())
	}

	w = doRequest(router, http.MethodPost, "/api/auth/login", "", `{"username":"ana","password":"pw-123456"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login got status %d, body=%s", w.Code, w.Body.String())
	}

	var login struct {
		Token string `json:"token"`
	}
	mustReadJSON(t, w, &login)

	w = doRequest(router, http.MethodPut, "/api/auth/actualizar", login.Token,
		fmt.Sprintf(`{"id":%q,"direccion":"Calle 2","password":"new-pass-1"}`, created.User.ID))
	if w.Code != http.StatusOK {
		t.Fatalf("update got status %d, body=%s", w.Code, w.Body.String())
	}

	// the old password no longer works, the new one does
	w = doRequest(router, http.MethodPost, "/api/auth/login", "", `{"username":"ana","password":"pw-123456"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("old password got status %d", w.Code)
	}

	w = doRequest(router, http.MethodPost, "/api/auth/login", "", `{"username":"ana","password":"new-pass-1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("new password got status %d, body=%s", w.Code, w.Body.String())
	}

	// someone else's id, even a malformed one, is refused before the store
	w = doRequest(router, http.MethodPut, "/api/auth/actualizar", login.Token, `{"id":"not-a-uuid","direccion":"x"}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("malformed id got status %d, body=%s", w.Code, w.Body.String())
	}
}

func TestUsersRepo_UniqueConstraints(t *testing.T) {
	pool := setupPool(t)
	repo := postgres.NewUsersRepo(pool, nil)
	ctx := context.Background()

	base := user.User{
		FirstNames: "Ana", LastNames: "Diaz", Email: "ana@example.com", Username: "ana",
		PasswordHash: "x", Phone: "1", Address: "a", Age: 20,
		Role: user.RoleRegular, LearningLevel: user.LevelBeginner,
	}

	first, err := repo.Create(ctx, base)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	dupEmail := base
	dupEmail.Username = "other"
	if _, err := repo.Create(ctx, dupEmail); !errors.Is(err, user.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	dupUser := base
	dupUser.Email = "other@example.com"
	if _, err := repo.Create(ctx, dupUser); !errors.Is(err, user.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	second := base
	second.Email, second.Username = "beto@example.com", "beto"
	created, err := repo.Create(ctx, second)
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	taken := first.Email
	if _, err := repo.Update(ctx, created.ID, user.Changes{Email: &taken}); !errors.Is(err, user.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken on update, got %v", err)
	}

	if _, err := repo.GetByID(ctx, "not-a-uuid"); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for malformed id, got %v", err)
	}
}

func TestUsersIntegration_ConcurrentRegistration(t *testing.T) {
	pool := setupPool(t)
	router := setupRouter(t, pool)

	const n = 8

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			w := doRequest(router, http.MethodPost, "/api/auth/registro", "",
				registerBody("same", fmt.Sprintf("same%d@example.com", i)))

			if w.Code == http.StatusCreated {
				mu.Lock()
				created++
				mu.Unlock()
			} else if w.Code != http.StatusBadRequest {
				t.Errorf("unexpected status %d, body=%s", w.Code, w.Body.String())
			}
		}(i)
	}

	wg.Wait()

	if created != 1 {
		t.Fatalf("expected exactly one registration to win, got %d", created)
	}

	var count int
	if err := pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM users WHERE username = 'same'`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}

	if count != 1 {
		t.Fatalf("expected one stored row, got %d", count)
	}
}
