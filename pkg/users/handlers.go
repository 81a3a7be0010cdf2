package users

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/traintrack/traintrack/pkg/auth"
	"github.com/traintrack/traintrack/pkg/httputil"
	"github.com/traintrack/traintrack/pkg/middleware"
	"github.com/traintrack/traintrack/pkg/observability"
	"github.com/traintrack/traintrack/pkg/storage"
)

// maxRosterSize caps roster uploads at 5 MiB.
const maxRosterSize = 5 << 20

// Handlers exposes the user and authentication endpoints.
type Handlers struct {
	service *Service
	auth    *auth.Service
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewHandlers creates the user HTTP handlers.
func NewHandlers(service *Service, authService *auth.Service, metrics *observability.Metrics, logger *observability.Logger) *Handlers {
	return &Handlers{
		service: service,
		auth:    authService,
		metrics: metrics,
		logger:  logger,
	}
}

// RegisterRoutes mounts the user routes on the router.
func (h *Handlers) RegisterRoutes(r *mux.Router, guard *middleware.Guard) {
	r.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/forgot-password", h.ForgotPassword).Methods(http.MethodPost)
	r.HandleFunc("/verify-otp", h.VerifyOTP).Methods(http.MethodPost)
	r.HandleFunc("/reset-password", h.ResetPassword).Methods(http.MethodPost)
	r.HandleFunc("/register-admin", h.RegisterAdmin).Methods(http.MethodPost)

	r.Handle("/logout",
		guard.Require()(http.HandlerFunc(h.Logout))).Methods(http.MethodPost)

	admin := guard.Require(storage.RoleAdmin)
	r.Handle("/import-roster",
		admin(http.HandlerFunc(h.ImportRoster))).Methods(http.MethodPost)
	r.Handle("/change-role",
		admin(http.HandlerFunc(h.ChangeRole))).Methods(http.MethodPost)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates a user and returns a fresh session token.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Email, "email") ||
		!httputil.RequireNonEmpty(w, req.Password, "password") {
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if h.metrics != nil {
			h.metrics.LoginsTotal.WithLabelValues("failure").Inc()
		}
		switch {
		case errors.Is(err, auth.ErrUserNotFound):
			httputil.WriteNotFoundError(w, "user not found")
		case errors.Is(err, auth.ErrInvalidCredential):
			httputil.WriteUnauthorized(w, "invalid credentials")
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}

	if h.metrics != nil {
		h.metrics.LoginsTotal.WithLabelValues("success").Inc()
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"message": "Login successful",
		"token":   result.Token,
		"user":    result.User,
	})
}

// Logout revokes the session behind the caller's bearer token.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		httputil.WriteBadRequest(w, "token is required")
		return
	}

	if err := h.auth.Logout(r.Context(), token); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.SessionRevokedTotal.Inc()
	}

	httputil.WriteSuccess(w, map[string]string{"message": "Logged out successfully"})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword issues an OTP to the account's mail address and returns the
// correlation id for the verify step.
func (h *Handlers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Email, "email") {
		return
	}

	correlationID, err := h.auth.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			httputil.WriteNotFoundError(w, "user not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.OTPIssuedTotal.Inc()
	}

	httputil.WriteSuccess(w, map[string]string{
		"message": "OTP sent to your email",
		"uuid":    correlationID,
	})
}

type verifyOTPRequest struct {
	UUID string `json:"uuid"`
	OTP  string `json:"otp"`
}

// VerifyOTP redeems the OTP and returns a short-lived reset token.
func (h *Handlers) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UUID, "uuid") ||
		!httputil.RequireNonEmpty(w, req.OTP, "otp") {
		return
	}

	resetToken, err := h.auth.VerifyOTP(r.Context(), req.UUID, req.OTP)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidOrExpired) {
			httputil.WriteBadRequest(w, "invalid or expired OTP")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]string{
		"message":    "OTP verified",
		"resetToken": resetToken,
	})
}

type resetPasswordRequest struct {
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// ResetPassword sets a new password using a reset token carried as a bearer
// token.
func (h *Handlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		httputil.WriteUnauthorized(w, "reset token is required")
		return
	}

	var req resetPasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.NewPassword, "new_password") ||
		!httputil.RequireNonEmpty(w, req.ConfirmPassword, "confirm_password") {
		return
	}

	err := h.auth.ResetPassword(r.Context(), token, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidOrExpired):
			httputil.WriteBadRequest(w, "invalid or expired reset token")
		case errors.Is(err, auth.ErrPasswordMismatch):
			httputil.WriteBadRequest(w, "passwords do not match")
		case errors.Is(err, auth.ErrWeakPassword):
			httputil.WriteBadRequest(w, err.Error())
		case errors.Is(err, auth.ErrUserNotFound):
			httputil.WriteNotFoundError(w, "user not found")
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}

	httputil.WriteSuccess(w, map[string]string{"message": "Password reset successful"})
}

type registerAdminRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterAdmin creates an admin account.
func (h *Handlers) RegisterAdmin(w http.ResponseWriter, r *http.Request) {
	var req registerAdminRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") ||
		!httputil.RequireNonEmpty(w, req.Email, "email") ||
		!httputil.RequireNonEmpty(w, req.Password, "password") {
		return
	}

	admin, err := h.service.RegisterAdmin(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrBadEmailDomain):
			httputil.WriteBadRequest(w, err.Error())
		case errors.Is(err, storage.ErrAlreadyExists):
			httputil.WriteErrorMessage(w, http.StatusConflict, "user already exists")
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}

	httputil.WriteCreated(w, map[string]interface{}{
		"message":     "Admin registered successfully",
		"roll_number": admin.RollNumber,
	})
}

// ImportRoster bulk-creates students from an uploaded CSV roster.
func (h *Handlers) ImportRoster(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxRosterSize); err != nil {
		httputil.WriteBadRequest(w, "invalid multipart form")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		httputil.WriteBadRequest(w, "roster file is required")
		return
	}
	defer file.Close()

	result, err := h.service.ImportRoster(r.Context(), file)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"message":      "Roster processed",
		"createdUsers": result.Created,
		"skippedUsers": result.Skipped,
	})
}

type changeRoleRequest struct {
	RollNumber string       `json:"roll_number"`
	Role       storage.Role `json:"role"`
}

// ChangeRole updates a user's role.
func (h *Handlers) ChangeRole(w http.ResponseWriter, r *http.Request) {
	var req changeRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.RollNumber, "roll_number") ||
		!httputil.RequireNonEmpty(w, string(req.Role), "role") {
		return
	}

	user, err := h.service.ChangeRole(r.Context(), req.RollNumber, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRole):
			httputil.WriteBadRequest(w, err.Error())
		case errors.Is(err, storage.ErrNotFound):
			httputil.WriteNotFoundError(w, "user not found")
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"message":     "Role updated",
		"roll_number": user.RollNumber,
		"role":        user.Role,
	})
}
