package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geocoder89/userhub/internal/account"
	"github.com/geocoder89/userhub/internal/actorctx"
	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/http/handlers"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAccounts struct {
	registerFn     func(ctx context.Context, in account.RegisterInput) (user.Profile, error)
	authenticateFn func(ctx context.Context, username, password string) (string, error)
	updateFn       func(ctx context.Context, in account.UpdateProfileInput) (user.Profile, error)
	adminUpdateFn  func(ctx context.Context, in account.AdminUpdateInput) (user.Profile, error)
	getProfileFn   func(ctx context.Context, id string) (user.Profile, error)
}

func (f *fakeAccounts) Register(ctx context.Context, in account.RegisterInput) (user.Profile, error) {
	if f.registerFn != nil {
		return f.registerFn(ctx, in)
	}
	return user.Profile{}, nil
}

func (f *fakeAccounts) Authenticate(ctx context.Context, username, password string) (string, error) {
	if f.authenticateFn != nil {
		return f.authenticateFn(ctx, username, password)
	}
	return "", nil
}

func (f *fakeAccounts) UpdateProfile(ctx context.Context, in account.UpdateProfileInput) (user.Profile, error) {
	if f.updateFn != nil {
		return f.updateFn(ctx, in)
	}
	return user.Profile{}, nil
}

func (f *fakeAccounts) AdminUpdate(ctx context.Context, in account.AdminUpdateInput) (user.Profile, error) {
	if f.adminUpdateFn != nil {
		return f.adminUpdateFn(ctx, in)
	}
	return user.Profile{}, nil
}

func (f *fakeAccounts) GetProfile(ctx context.Context, id string) (user.Profile, error) {
	if f.getProfileFn != nil {
		return f.getProfileFn(ctx, id)
	}
	return user.Profile{}, nil
}

type errorEnvelope struct {
	Error struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func setupRouter(method, path string, h gin.HandlerFunc) *gin.Engine {
	r := gin.New()

	r.Handle(method, path, h)

	return r
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()

	var env errorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode error body: %v body=%s", err, w.Body.String())
	}
	return env
}

const validRegisterBody = `{
	"nombres":"Ana","apellidos":"Diaz","correo":"ana@example.com","usuario":"ana",
	"password":"pw","telefono":"555","direccion":"Calle 1","edad":"20"
}`

func TestRegisterHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		svcErr     error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "created",
			body:       validRegisterBody,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "validation error",
			body:       validRegisterBody,
			svcErr:     &account.ValidationError{Fields: []account.FieldViolation{{Field: "edad", Rule: "min"}}},
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "email taken",
			body:       validRegisterBody,
			svcErr:     &account.ConflictError{Field: "correo", Err: user.ErrEmailTaken},
			wantStatus: http.StatusBadRequest,
			wantCode:   "email_taken",
		},
		{
			name:       "username taken",
			body:       validRegisterBody,
			svcErr:     &account.ConflictError{Field: "usuario", Err: user.ErrUsernameTaken},
			wantStatus: http.StatusBadRequest,
			wantCode:   "username_taken",
		},
		{
			name:       "store error",
			body:       validRegisterBody,
			svcErr:     errors.New("connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal_error",
		},
		{
			name:       "malformed json",
			body:       `{"nombres":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "non numeric age",
			body:       `{"edad":"twenty"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got account.RegisterInput

			svc := &fakeAccounts{
				registerFn: func(ctx context.Context, in account.RegisterInput) (user.Profile, error) {
					got = in
					if tt.svcErr != nil {
						return user.Profile{}, tt.svcErr
					}
					return user.Profile{ID: "u1", Username: in.Username, Age: *in.Age}, nil
				},
			}

			h := handlers.NewAccountsHandler(svc, nil)
			r := setupRouter(http.MethodPost, "/registro", h.Register)

			w := doJSON(r, http.MethodPost, "/registro", tt.body)

			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}

			if tt.wantCode != "" {
				if env := decodeError(t, w); env.Error.Code != tt.wantCode {
					t.Fatalf("got code %q, want %q", env.Error.Code, tt.wantCode)
				}
				return
			}

			if got.Age == nil || *got.Age != 20 {
				t.Fatalf("expected string age to be parsed to 20, got %v", got.Age)
			}

			var resp struct {
				Message string         `json:"message"`
				User    map[string]any `json:"user"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.User["usuario"] != "ana" {
				t.Fatalf("unexpected user: %v", resp.User)
			}
			if _, leaked := resp.User["password"]; leaked {
				t.Fatalf("password field leaked: %v", resp.User)
			}
		})
	}
}

func TestRegisterHandler_MissingAgeIsPassedAsNil(t *testing.T) {
	var got account.RegisterInput

	svc := &fakeAccounts{
		registerFn: func(ctx context.Context, in account.RegisterInput) (user.Profile, error) {
			got = in
			return user.Profile{}, &account.ValidationError{}
		},
	}

	r := setupRouter(http.MethodPost, "/registro", handlers.NewAccountsHandler(svc, nil).Register)
	doJSON(r, http.MethodPost, "/registro", `{"nombres":"Ana"}`)

	if got.Age != nil {
		t.Fatalf("expected nil age, got %d", *got.Age)
	}
}

func TestLoginHandler(t *testing.T) {
	tests := []struct {
		name       string
		svcErr     error
		wantStatus int
		wantCode   string
	}{
		{"ok", nil, http.StatusOK, ""},
		{"invalid credentials", account.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{"unexpected", errors.New("db down"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeAccounts{
				authenticateFn: func(ctx context.Context, username, password string) (string, error) {
					if username != "ana" || password != "pw" {
						t.Errorf("unexpected credentials %q/%q", username, password)
					}
					if tt.svcErr != nil {
						return "", tt.svcErr
					}
					return "signed.jwt.token", nil
				},
			}

			r := setupRouter(http.MethodPost, "/login", handlers.NewAccountsHandler(svc, nil).Login)
			w := doJSON(r, http.MethodPost, "/login", `{"username":"ana","password":"pw"}`)

			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}

			if tt.wantCode != "" {
				if env := decodeError(t, w); env.Error.Code != tt.wantCode {
					t.Fatalf("got code %q, want %q", env.Error.Code, tt.wantCode)
				}
				return
			}

			var resp map[string]string
			_ = json.Unmarshal(w.Body.Bytes(), &resp)
			if resp["token"] != "signed.jwt.token" {
				t.Fatalf("unexpected body %s", w.Body.String())
			}
		})
	}
}

func TestUpdateProfileHandler(t *testing.T) {
	tests := []struct {
		name       string
		svcErr     error
		wantStatus int
		wantCode   string
	}{
		{"ok", nil, http.StatusOK, ""},
		{"no changes", account.ErrNoChanges, http.StatusBadRequest, "no_changes"},
		{"not found", user.ErrNotFound, http.StatusNotFound, "not_found"},
		{"forbidden", account.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"email conflict", &account.ConflictError{Field: "correo", Err: user.ErrEmailTaken}, http.StatusBadRequest, "email_taken"},
		{"missing id", &account.ValidationError{Fields: []account.FieldViolation{{Field: "id", Rule: "required"}}}, http.StatusBadRequest, "invalid_request"},
		{"store error", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got account.UpdateProfileInput

			svc := &fakeAccounts{
				updateFn: func(ctx context.Context, in account.UpdateProfileInput) (user.Profile, error) {
					got = in
					if tt.svcErr != nil {
						return user.Profile{}, tt.svcErr
					}
					return user.Profile{ID: in.ID, Email: in.Email}, nil
				},
			}

			r := setupRouter(http.MethodPut, "/actualizar", handlers.NewAccountsHandler(svc, nil).UpdateProfile)
			w := doJSON(r, http.MethodPut, "/actualizar",
				`{"id":"u1","correo":"new@example.com","edad":30,"rol":"admin","nivel_aprendizaje":"advanced"}`)

			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}

			if tt.wantCode != "" {
				if env := decodeError(t, w); env.Error.Code != tt.wantCode {
					t.Fatalf("got code %q, want %q", env.Error.Code, tt.wantCode)
				}
				return
			}

			if got.ID != "u1" || got.Email != "new@example.com" || got.Age != 30 {
				t.Fatalf("unexpected input passed to service: %+v", got)
			}
		})
	}
}

func TestAdminUpdateHandler_PassesPathIDAndPrivilegedFields(t *testing.T) {
	var got account.AdminUpdateInput

	svc := &fakeAccounts{
		adminUpdateFn: func(ctx context.Context, in account.AdminUpdateInput) (user.Profile, error) {
			got = in
			return user.Profile{ID: in.ID}, nil
		},
	}

	r := setupRouter(http.MethodPut, "/admin/usuarios/:id", handlers.NewAccountsHandler(svc, nil).AdminUpdateUser)
	w := doJSON(r, http.MethodPut, "/admin/usuarios/u9", `{"rol":"admin","nivel_aprendizaje":"advanced"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}

	if got.ID != "u9" || got.Role != "admin" || got.LearningLevel != "advanced" {
		t.Fatalf("unexpected input: %+v", got)
	}
}

func TestMeHandler(t *testing.T) {
	svc := &fakeAccounts{
		getProfileFn: func(ctx context.Context, id string) (user.Profile, error) {
			if id != "u1" {
				return user.Profile{}, user.ErrNotFound
			}
			return user.Profile{ID: "u1", Username: "ana"}, nil
		},
	}

	h := handlers.NewAccountsHandler(svc, nil)

	r := gin.New()
	r.GET("/perfil", func(c *gin.Context) {
		if id := c.GetHeader("X-Test-User"); id != "" {
			ctx := actorctx.WithActor(c.Request.Context(), actorctx.Actor{UserID: id, Role: "regular"})
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}, h.Me)

	tests := []struct {
		name       string
		user       string
		wantStatus int
	}{
		{"own profile", "u1", http.StatusOK},
		{"vanished account", "u2", http.StatusNotFound},
		{"no identity", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/perfil", nil)
			if tt.user != "" {
				req.Header.Set("X-Test-User", tt.user)
			}

			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestMeHandler_ConditionalGet(t *testing.T) {
	stamp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	svc := &fakeAccounts{
		getProfileFn: func(ctx context.Context, id string) (user.Profile, error) {
			return user.Profile{ID: id, Username: "ana", UpdatedAt: stamp}, nil
		},
	}

	h := handlers.NewAccountsHandler(svc, nil)

	r := gin.New()
	r.GET("/perfil", func(c *gin.Context) {
		ctx := actorctx.WithActor(c.Request.Context(), actorctx.Actor{UserID: "u1", Role: "regular"})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, h.Me)

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/perfil", nil))

	if first.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", first.Code)
	}

	etag := first.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("expected ETag header")
	}

	req := httptest.NewRequest(http.MethodGet, "/perfil", nil)
	req.Header.Set("If-None-Match", etag)

	second := httptest.NewRecorder()
	r.ServeHTTP(second, req)

	if second.Code != http.StatusNotModified {
		t.Fatalf("got status %d, want 304", second.Code)
	}

	stamp = stamp.Add(time.Second)

	third := httptest.NewRecorder()
	r.ServeHTTP(third, req)

	if third.Code != http.StatusOK {
		t.Fatalf("got status %d after an update, want 200", third.Code)
	}
}
