package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/iliyamo/vehicle-rental-marketplace/internal/model"
)

type envelope[T any] struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
	Data    T    `json:"data"`
}

type created struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

// ----- auth -----

type TokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type UserPart struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Plan  string `json:"plan"`
	Role  string `json:"role"`
}

// AuthResponse is returned by register, login and refresh.
type AuthResponse struct {
	User    UserPart  `json:"user"`
	Access  TokenPart `json:"access"`
	Refresh TokenPart `json:"refresh"`
}

func (c *Client) Register(ctx context.Context, email, password, name string) (AuthResponse, error) {
	var out AuthResponse
	in := map[string]string{"email": email, "password": password, "name": name}
	err := c.do(ctx, http.MethodPost, "/api/auth/register", "", in, &out)
	return out, err
}

func (c *Client) Login(ctx context.Context, email, password string) (AuthResponse, error) {
	var out AuthResponse
	in := map[string]string{"email": email, "password": password}
	err := c.do(ctx, http.MethodPost, "/api/auth/login", "", in, &out)
	return out, err
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (AuthResponse, error) {
	var out AuthResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": refreshToken}, &out)
	return out, err
}

func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", "", map[string]string{"refresh_token": refreshToken}, nil)
}

// ----- vehicles -----

// ListVehicles lists vehicles, optionally narrowed to a status and owner.
func (c *Client) ListVehicles(ctx context.Context, status, ownerID string) ([]model.Vehicle, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if ownerID != "" {
		q.Set("ownerId", ownerID)
	}
	path := "/api/vehicles"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	tok, _ := c.token(ctx, false)
	var out envelope[[]model.Vehicle]
	if err := c.do(ctx, http.MethodGet, path, tok, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) GetVehicle(ctx context.Context, id string) (model.Vehicle, error) {
	var out envelope[model.Vehicle]
	err := c.do(ctx, http.MethodGet, "/api/vehicles/"+url.PathEscape(id), "", nil, &out)
	return out.Data, err
}

func (c *Client) VehicleStats(ctx context.Context) (model.VehicleStats, error) {
	var out envelope[model.VehicleStats]
	err := c.do(ctx, http.MethodGet, "/api/vehicles/stats/summary", "", nil, &out)
	return out.Data, err
}

func (c *Client) CreateVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error) {
	return c.vehicleWrite(ctx, http.MethodPost, "/api/vehicles", v)
}

// UpdateVehicle sends patch as a full-document overlay.
func (c *Client) UpdateVehicle(ctx context.Context, id string, patch map[string]any) (model.Vehicle, error) {
	return c.vehicleWrite(ctx, http.MethodPut, "/api/vehicles/"+url.PathEscape(id), patch)
}

func (c *Client) SetVehicleStatus(ctx context.Context, id, status string) (model.Vehicle, error) {
	return c.vehicleWrite(ctx, http.MethodPatch, "/api/vehicles/"+url.PathEscape(id)+"/status", map[string]string{"status": status})
}

func (c *Client) DeleteVehicle(ctx context.Context, id string) error {
	tok, err := c.token(ctx, true)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, "/api/vehicles/"+url.PathEscape(id), tok, nil, nil)
}

func (c *Client) vehicleWrite(ctx context.Context, method, path string, in any) (model.Vehicle, error) {
	tok, err := c.token(ctx, true)
	if err != nil {
		return model.Vehicle{}, err
	}
	var out envelope[model.Vehicle]
	err = c.do(ctx, method, path, tok, in, &out)
	return out.Data, err
}

// ----- users -----

func (c *Client) GetUser(ctx context.Context, id string) (model.UserProfile, error) {
	tok, err := c.token(ctx, true)
	if err != nil {
		return model.UserProfile{}, err
	}
	var out envelope[model.UserProfile]
	err = c.do(ctx, http.MethodGet, "/api/users/"+url.PathEscape(id), tok, nil, &out)
	return out.Data, err
}

// UpdateUser patches the caller's profile.
func (c *Client) UpdateUser(ctx context.Context, id string, patch map[string]any) (model.UserProfile, error) {
	tok, err := c.token(ctx, true)
	if err != nil {
		return model.UserProfile{}, err
	}
	var out envelope[model.UserProfile]
	err = c.do(ctx, http.MethodPatch, "/api/users/"+url.PathEscape(id), tok, patch, &out)
	return out.Data, err
}

func (c *Client) IncrementVehiclesCreated(ctx context.Context, id string) (int, error) {
	tok, err := c.token(ctx, true)
	if err != nil {
		return 0, err
	}
	var out struct {
		VehiclesCreated int `json:"vehiclesCreated"`
	}
	err = c.do(ctx, http.MethodPost, "/api/users/"+url.PathEscape(id)+"/vehicles-created", tok, nil, &out)
	return out.VehiclesCreated, err
}

func (c *Client) HostReviews(ctx context.Context, hostID string) ([]model.Review, error) {
	var out envelope[[]model.Review]
	err := c.do(ctx, http.MethodGet, "/api/hosts/"+url.PathEscape(hostID)+"/reviews", "", nil, &out)
	return out.Data, err
}

// ----- admin inbox -----

// ListMessages returns every support message. token is passed explicitly
// because the inbox retries token retrieval on its own.
func (c *Client) ListMessages(ctx context.Context, token string) ([]model.SupportMessage, error) {
	var out envelope[[]model.SupportMessage]
	if err := c.do(ctx, http.MethodGet, "/api/admin/messages?filter=all", token, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) PatchMessage(ctx context.Context, token, id string, p model.MessagePatch) (model.SupportMessage, error) {
	var out envelope[model.SupportMessage]
	err := c.do(ctx, http.MethodPatch, "/api/admin/messages/"+url.PathEscape(id), token, p, &out)
	return out.Data, err
}

// ----- support and reviews -----

type SupportRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Message   string `json:"message"`
	IssueType string `json:"issueType,omitempty"`
}

// SubmitSupport posts the contact form and returns the message id.
func (c *Client) SubmitSupport(ctx context.Context, r SupportRequest) (string, error) {
	var out created
	err := c.do(ctx, http.MethodPost, "/api/support/submit", "", r, &out)
	return out.ID, err
}

type ReviewToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (c *Client) CreateReviewToken(ctx context.Context, vehicleID, customerLabel string) (ReviewToken, error) {
	tok, err := c.token(ctx, true)
	if err != nil {
		return ReviewToken{}, err
	}
	var out ReviewToken
	in := map[string]string{"vehicleId": vehicleID, "customerLabel": customerLabel}
	err = c.do(ctx, http.MethodPost, "/api/review-tokens", tok, in, &out)
	return out, err
}

type ReviewTokenInfo struct {
	HostID        string    `json:"hostId"`
	HostName      string    `json:"hostName"`
	VehicleID     string    `json:"vehicleId"`
	ExpiresAt     time.Time `json:"expiresAt"`
	CustomerLabel string    `json:"customerLabel"`
}

func (c *Client) LookupReviewToken(ctx context.Context, token string) (ReviewTokenInfo, error) {
	var out ReviewTokenInfo
	err := c.do(ctx, http.MethodGet, "/api/review-tokens/"+url.PathEscape(token), "", nil, &out)
	return out, err
}

type ReviewRequest struct {
	Token       string `json:"token"`
	Rating      int    `json:"rating"`
	Comment     string `json:"comment,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	Email       string `json:"email,omitempty"`
}

// SubmitReview redeems a review token and returns the review id.
func (c *Client) SubmitReview(ctx context.Context, r ReviewRequest) (string, error) {
	var out created
	err := c.do(ctx, http.MethodPost, "/api/reviews/submit", "", r, &out)
	return out.ID, err
}
