package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/geocoder89/userhub/internal/account"
	"github.com/geocoder89/userhub/internal/actorctx"
	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/gin-gonic/gin"
)

type AccountService interface {
	Register(ctx context.Context, in account.RegisterInput) (user.Profile, error)
	Authenticate(ctx context.Context, username, password string) (string, error)
	UpdateProfile(ctx context.Context, in account.UpdateProfileInput) (user.Profile, error)
	AdminUpdate(ctx context.Context, in account.AdminUpdateInput) (user.Profile, error)
	GetProfile(ctx context.Context, id string) (user.Profile, error)
}

type AccountsHandler struct {
	svc     AccountService
	log     *slog.Logger
	timeout time.Duration
}

func NewAccountsHandler(svc AccountService, log *slog.Logger) *AccountsHandler {
	if log == nil {
		log = slog.Default()
	}

	return &AccountsHandler{svc: svc, log: log, timeout: 5 * time.Second}
}

// flexInt accepts 20 as well as "20". An empty string or null leaves it unset.
type flexInt struct {
	set   bool
	value int
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		return nil
	}

	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}

		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}

		n, err := strconv.Atoi(s)
		if err != nil {
			return &json.UnmarshalTypeError{Value: "string " + strconv.Quote(s), Type: reflect.TypeOf(0)}
		}

		f.set, f.value = true, n
		return nil
	}

	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return &json.UnmarshalTypeError{Value: raw, Type: reflect.TypeOf(0)}
	}

	f.set, f.value = true, n
	return nil
}

func (f flexInt) ptr() *int {
	if !f.set {
		return nil
	}
	v := f.value
	return &v
}

type RegisterRequest struct {
	FirstNames string  `json:"nombres"`
	LastNames  string  `json:"apellidos"`
	Email      string  `json:"correo"`
	Username   string  `json:"usuario"`
	Password   string  `json:"password"`
	Phone      string  `json:"telefono"`
	Address    string  `json:"direccion"`
	Age        flexInt `json:"edad"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ProfileRequest carries the self-service fields. rol and nivel_aprendizaje
// are not part of it and are dropped if sent.
type ProfileRequest struct {
	FirstNames string  `json:"nombres"`
	LastNames  string  `json:"apellidos"`
	Email      string  `json:"correo"`
	Username   string  `json:"usuario"`
	Password   string  `json:"password"`
	Phone      string  `json:"telefono"`
	Address    string  `json:"direccion"`
	Age        flexInt `json:"edad"`
}

func (r ProfileRequest) fields() account.ProfileFields {
	age := 0
	if r.Age.set {
		age = r.Age.value
	}

	return account.ProfileFields{
		FirstNames: r.FirstNames,
		LastNames:  r.LastNames,
		Email:      r.Email,
		Username:   r.Username,
		Password:   r.Password,
		Phone:      r.Phone,
		Address:    r.Address,
		Age:        age,
	}
}

type UpdateProfileRequest struct {
	ID string `json:"id"`
	ProfileRequest
}

type AdminUpdateRequest struct {
	ProfileRequest
	Role          string `json:"rol"`
	LearningLevel string `json:"nivel_aprendizaje"`
}

func (h *AccountsHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	p, err := h.svc.Register(cctx, account.RegisterInput{
		FirstNames: req.FirstNames,
		LastNames:  req.LastNames,
		Email:      req.Email,
		Username:   req.Username,
		Password:   req.Password,
		Phone:      req.Phone,
		Address:    req.Address,
		Age:        req.Age.ptr(),
	})

	if err != nil {
		h.respondServiceError(ctx, "register", err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"message": "User registered",
		"user":    p,
	})
}

func (h *AccountsHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	token, err := h.svc.Authenticate(cctx, req.Username, req.Password)
	if err != nil {
		h.respondServiceError(ctx, "login", err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *AccountsHandler) UpdateProfile(ctx *gin.Context) {
	var req UpdateProfileRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	p, err := h.svc.UpdateProfile(cctx, account.UpdateProfileInput{
		ID:            req.ID,
		ProfileFields: req.fields(),
	})

	if err != nil {
		h.respondServiceError(ctx, "update_profile", err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "User updated",
		"user":    p,
	})
}

func (h *AccountsHandler) AdminUpdateUser(ctx *gin.Context) {
	var req AdminUpdateRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	p, err := h.svc.AdminUpdate(cctx, account.AdminUpdateInput{
		ID:            ctx.Param("id"),
		ProfileFields: req.fields(),
		Role:          req.Role,
		LearningLevel: req.LearningLevel,
	})

	if err != nil {
		h.respondServiceError(ctx, "admin_update", err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "User updated",
		"user":    p,
	})
}

func (h *AccountsHandler) Me(ctx *gin.Context) {
	actor, ok := actorctx.From(ctx.Request.Context())
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	p, err := h.svc.GetProfile(cctx, actor.UserID)
	if err != nil {
		h.respondServiceError(ctx, "get_profile", err)
		return
	}

	RespondProfile(ctx, p)
}

func (h *AccountsHandler) respondServiceError(ctx *gin.Context, op string, err error) {
	var verr *account.ValidationError
	var cerr *account.ConflictError

	switch {
	case errors.As(err, &verr):
		RespondBadRequest(ctx, "Validation failed", gin.H{"fields": verr.Fields})
	case errors.As(err, &cerr):
		RespondConflict(ctx, cerr.Code(), cerr.Field, conflictMessage(cerr))
	case errors.Is(err, account.ErrInvalidCredentials):
		RespondUnauthorized(ctx, "invalid_credentials", "Username or password is incorrect.")
	case errors.Is(err, account.ErrNoChanges):
		RespondError(ctx, http.StatusBadRequest, "no_changes", "No changes to apply", nil)
	case errors.Is(err, account.ErrForbidden):
		RespondForbidden(ctx, "You cannot modify this account")
	case errors.Is(err, user.ErrNotFound):
		RespondNotFound(ctx, "User not found")
	default:
		h.log.ErrorContext(ctx.Request.Context(), "account operation failed",
			"op", op,
			"request_id", requestIDFrom(ctx),
			"err", err,
		)
		RespondInternal(ctx, "Something went wrong")
	}
}

func conflictMessage(cerr *account.ConflictError) string {
	switch cerr.Code() {
	case "email_taken":
		return "Email is already in use."
	case "username_taken":
		return "Username is already in use."
	default:
		return "Value is already in use."
	}
}
