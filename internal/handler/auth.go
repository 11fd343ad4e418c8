package handler

import (
    "errors"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/vehicle-rental-marketplace/internal/apperr"
    "github.com/iliyamo/vehicle-rental-marketplace/internal/config"
    "github.com/iliyamo/vehicle-rental-marketplace/internal/middleware"
    "github.com/iliyamo/vehicle-rental-marketplace/internal/model"
    "github.com/iliyamo/vehicle-rental-marketplace/internal/repository"
    "github.com/iliyamo/vehicle-rental-marketplace/internal/utils"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg    config.Config
	Users  *repository.UserRepo
	Tokens *repository.TokenRepo
}

func NewAuthHandler(cfg config.Config, u *repository.UserRepo, t *repository.TokenRepo) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t}
}

// ----- DTOs -----

type registerReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name"`
}
type loginReq struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Plan  string `json:"plan"`
	Role  string `json:"role"`
}
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

var errInvalidCredentials = apperr.New(apperr.KindAuthRequired, "invalid credentials")

func (h *AuthHandler) role(email string) string {
	if h.Cfg.AdminEmail != "" && strings.EqualFold(email, h.Cfg.AdminEmail) {
		return middleware.RoleAdmin
	}
	return middleware.RoleHost
}

// issue signs an identity token, stores a fresh refresh token and builds the
// response.
func (h *AuthHandler) issue(c echo.Context, u model.UserProfile) (authResp, error) {
	ctx, cancel := reqCtx(c)
	defer cancel()

	access, err := utils.NewIdentityToken(h.Cfg.JWTSecret, utils.IdentityClaims{UserID: u.ID, Email: u.Email, Name: u.Name}, h.Cfg.AccessTTLMin)
	if err != nil {
		return authResp{}, err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return authResp{}, err
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return authResp{}, err
	}
	return authResp{
		User:    userPart{ID: u.ID, Email: u.Email, Name: u.Name, Plan: u.Plan, Role: h.role(u.Email)},
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
	}, nil
}

// Register: create user and return tokens immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bind(c, &req); err != nil {
		return err
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := checkStruct(req); err != nil {
		return err
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.Create(ctx, req.Email, req.Password, req.Name, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, errorBody{Error: string(apperr.KindValidation), Message: "email already exists", Fields: []string{"email"}})
		}
		return err
	}
	resp, err := h.issue(c, u)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, resp)
}

// Login: verify and return new pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := checkStruct(req); err != nil {
		return err
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	cred, err := h.Users.GetCredential(ctx, req.Email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return errInvalidCredentials
		}
		return err
	}
	if !utils.VerifyPassword(cred.PasswordHash, req.Password) {
		return errInvalidCredentials
	}
	u, err := h.Users.Get(ctx, cred.UserID)
	if err != nil {
		return err
	}
	resp, err := h.issue(c, u)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh: validate by hash, revoke old, issue new.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return apperr.Validation("refresh_token required", "refresh_token")
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := reqCtx(c)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return apperr.New(apperr.KindAuthRequired, "invalid refresh")
	}
	_ = h.Tokens.RevokeByHash(ctx, hash)

	u, err := h.Users.Get(ctx, userID)
	if err != nil {
		return err
	}
	resp, err := h.issue(c, u)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// Logout revokes the refresh token in the body, or every refresh token of
// the authenticated caller when the body carries none.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	refreshToken := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := reqCtx(c)
	defer cancel()

	if refreshToken != "" {
		hash := utils.HashRefreshRaw(refreshToken)
		if _, err := h.Tokens.ValidateRefresh(ctx, hash); err != nil {
			return apperr.New(apperr.KindAuthRequired, "invalid refresh token")
		}
		if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	}
	if id, ok := middleware.IdentityFrom(c); ok {
		if err := h.Tokens.RevokeAllForUser(ctx, id.ID); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	}
	return apperr.Validation("provide Authorization header or refresh_token", "refresh_token")
}

// Me returns the caller's identity and, when one exists, their profile.
func (h *AuthHandler) Me(c echo.Context) error {
	id := caller(c)
	resp := echo.Map{"success": true, "identity": id}

	ctx, cancel := reqCtx(c)
	defer cancel()
	if u, err := h.Users.Get(ctx, id.ID); err == nil {
		resp["user"] = u
	}
	return c.JSON(http.StatusOK, resp)
}
