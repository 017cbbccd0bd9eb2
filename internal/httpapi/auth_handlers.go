package httpapi

import (
	"errors"
	"net/http"
	"time"

	"shiftdesk.org/internal/audit"
	"shiftdesk.org/internal/auth"
	"shiftdesk.org/internal/obs"
)

type loginRequest struct {
	EmployeeID string `json:"employeeId"`
	Password   string `json:"password"`
}

type tokenPairResponse struct {
	Success            bool         `json:"success"`
	User               auth.Profile `json:"user"`
	AccessToken        string       `json:"accessToken"`
	RefreshToken       string       `json:"refreshToken"`
	AccessExpiresAt    time.Time    `json:"accessExpiresAt"`
	RefreshExpiresAt   time.Time    `json:"refreshExpiresAt"`
	MustChangePassword bool         `json:"mustChangePassword"`
}

func pairResponse(res *auth.LoginResult) tokenPairResponse {
	return tokenPairResponse{
		Success:            true,
		User:               res.User,
		AccessToken:        res.AccessToken,
		RefreshToken:       res.RefreshToken,
		AccessExpiresAt:    res.AccessExpiresAt,
		RefreshExpiresAt:   res.RefreshExpiresAt,
		MustChangePassword: res.MustChangePassword,
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.auth.Login(r.Context(), auth.LoginInput{
		EmployeeID: req.EmployeeID,
		Password:   req.Password,
		IPAddress:  clientIP(r),
		UserAgent:  r.UserAgent(),
	})
	if err != nil {
		writeAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"employee_id": res.User.EmployeeID,
		"ip_address":  clientIP(r),
	})
	writeJSON(w, http.StatusOK, pairResponse(res))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.auth.ChangePassword(r.Context(), principal.UserID, auth.ChangePasswordInput{
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		writeAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.password.changed", map[string]any{
		"employee_id": res.User.EmployeeID,
	})
	writeJSON(w, http.StatusOK, pairResponse(res))
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.RefreshToken == "" {
		writeError(w, r, http.StatusBadRequest, "refreshToken is required")
		return
	}

	access, exp, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"accessToken":     access,
		"accessExpiresAt": exp,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := a.auth.Logout(r.Context(), principal.UserID); err != nil {
		writeAuthError(w, r, err)
		return
	}
	// Blacklist the presented token too, so it dies immediately even
	// if a version check is ever skipped.
	if token, ok := auth.TokenFromContext(r.Context()); ok {
		if err := a.auth.RevokeAccessToken(r.Context(), token, principal.UserID, "logout"); err != nil {
			obs.LogRequest(map[string]any{
				"type":  "error",
				"event": "logout_blacklist_failed",
				"error": err.Error(),
			})
		}
	}

	_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{
		"employee_id": principal.EmployeeID,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Logged out successfully",
	})
}

func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"valid":   true,
		"user": map[string]any{
			"id":                 principal.UserID,
			"employeeId":         principal.EmployeeID,
			"name":               principal.Name,
			"email":              principal.Email,
			"role":               principal.Role,
			"mustChangePassword": principal.MustChangePassword,
		},
	})
}

type resetPasswordRequest struct {
	EmployeeID  string `json:"employeeId"`
	NewPassword string `json:"newPassword,omitempty"`
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.auth.ResetPassword(r.Context(), principal, auth.ResetPasswordInput{
		TargetEmployeeID: req.EmployeeID,
		NewPassword:      req.NewPassword,
	})
	if err != nil {
		writeAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.password.reset", map[string]any{
		"target_employee_id": res.EmployeeID,
	})

	payload := map[string]any{
		"success":            true,
		"message":            "Password reset successfully",
		"employeeId":         res.EmployeeID,
		"name":               res.Name,
		"mustChangePassword": res.MustChangePassword,
	}
	if res.TempPassword != "" {
		payload["tempPassword"] = res.TempPassword
	}
	writeJSON(w, http.StatusOK, payload)
}

type resetRateLimitRequest struct {
	EmployeeID string `json:"employeeId"`
}

func (a *API) handleResetRateLimit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req resetRateLimitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.auth.ResetRateLimit(r.Context(), principal, req.EmployeeID); err != nil {
		writeAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.rate_limit.reset", map[string]any{
		"target_employee_id": req.EmployeeID,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Rate limit cleared",
	})
}

// writeAuthError maps service rejections to HTTP statuses and echoes
// the stable code plus any detail fields the client needs.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var e *auth.Error
	if !errors.As(err, &e) {
		obs.LogRequest(map[string]any{
			"type":       "error",
			"event":      "auth_internal_error",
			"path":       r.URL.Path,
			"request_id": RequestIDFromContext(r.Context()),
			"error":      err.Error(),
		})
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Authentication failed",
			"code":    auth.CodeAuthFailed,
		})
		return
	}

	payload := map[string]any{
		"success": false,
		"error":   e.Message,
		"code":    e.Code,
	}
	if e.RemainingAttempts != nil {
		payload["remainingAttempts"] = *e.RemainingAttempts
	}
	if e.LockedUntil != nil {
		payload["lockedUntil"] = e.LockedUntil.UTC().Format(time.RFC3339)
	}
	if len(e.Violations) > 0 {
		payload["violations"] = e.Violations
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, statusForCode(e.Code), payload)
}

func statusForCode(code auth.Code) int {
	switch code {
	case auth.CodeInvalidInput, auth.CodeMissingFields, auth.CodeWeakPassword,
		auth.CodeMismatchedConfirmation, auth.CodeSameAsOldPassword:
		return http.StatusBadRequest
	case auth.CodeInvalidCredentials, auth.CodeWrongCurrentPassword,
		auth.CodeTokenExpired, auth.CodeTokenInvalid,
		auth.CodeTokenVersionMismatch, auth.CodeTokenBlacklisted:
		return http.StatusUnauthorized
	case auth.CodeAccountInactive, auth.CodeInsufficientPermissions,
		auth.CodePasswordChangeRequired:
		return http.StatusForbidden
	case auth.CodeUserNotFound:
		return http.StatusNotFound
	case auth.CodeAccountLocked:
		return http.StatusLocked
	case auth.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
