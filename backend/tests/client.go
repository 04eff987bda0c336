package tests

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"
)

var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

func errorForStatus(code int, detail string) error {
	var sentinel error
	switch code {
	case http.StatusBadRequest:
		sentinel = ErrBadRequest
	case http.StatusUnauthorized:
		sentinel = ErrUnauthorized
	case http.StatusForbidden:
		sentinel = ErrForbidden
	case http.StatusNotFound:
		sentinel = ErrNotFound
	case http.StatusConflict:
		sentinel = ErrConflict
	default:
		return fmt.Errorf("request failed with status %d: %v", code, detail)
	}
	return fmt.Errorf("%w: %v", sentinel, detail)
}

type httpTestRequest struct {
	api http.Handler

	method   string
	endpoint string
	headers  map[string]string
	json     interface{}
}

func newHttpTestRequest(api http.Handler, method, endpoint string) *httpTestRequest {
	return &httpTestRequest{api: api, method: method, endpoint: endpoint}
}

func (r *httpTestRequest) Header(key, value string) *httpTestRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpTestRequest) Auth(token string) *httpTestRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpTestRequest) Json(data interface{}) *httpTestRequest {
	r.json = data
	return r
}

// Do executes the request. The data field of the response envelope is parsed
// into result, passing nil indicates that no result is expected.
func (r *httpTestRequest) Do(result interface{}) error {
	body := new(bytes.Buffer)
	if r.json != nil {
		err := json.NewEncoder(body).Encode(r.json)
		if err != nil {
			return fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
	}

	req := httptest.NewRequest(r.method, r.endpoint, body)
	for k, v := range r.headers {
		req.Header.Add(k, v)
	}

	w := httptest.NewRecorder()

	r.api.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		var errBody struct {
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(res.Body).Decode(&errBody); err != nil {
			errBody.Detail = w.Body.String()
		}
		return errorForStatus(res.StatusCode, errBody.Detail)
	}

	var envelope struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
	}
	if envelope.Status != "success" {
		return fmt.Errorf("unexpected response status '%v' from endpoint %v", envelope.Status, r.endpoint)
	}

	if result != nil {
		if err := json.Unmarshal(envelope.Data, result); err != nil {
			return fmt.Errorf("error parsing data from endpoint %v: %w", r.endpoint, err)
		}
	}

	return nil
}

type client struct {
	api       chi.Router
	authToken string
	userId    string
	username  string
}

func (c *client) Get(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "GET", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Post(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "POST", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Put(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "PUT", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Delete(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "DELETE", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

type profileData struct {
	Id       string  `json:"id"`
	Username string  `json:"username"`
	Email    string  `json:"email"`
	FullName string  `json:"full_name"`
	Bio      *string `json:"bio"`
	Avatar   *string `json:"avatar"`
	IsAdmin  bool    `json:"is_admin"`
}

type authData struct {
	Profile   profileData `json:"profile"`
	AuthToken string      `json:"auth_token"`
}

func (c *client) register(username, email, password string) error {
	body := map[string]string{
		"username": username, "email": email, "password": password,
		"full_name": username + " full name",
	}

	var res authData
	err := c.Post("/auth/register").Json(body).Do(&res)
	if err != nil {
		return err
	}

	c.authToken = res.AuthToken
	c.userId = res.Profile.Id
	c.username = res.Profile.Username

	return nil
}

func (c *client) login(email, password string) error {
	body := map[string]string{"email": email, "password": password}

	var res authData
	err := c.Post("/auth/login").Json(body).Do(&res)
	if err != nil {
		return err
	}

	c.authToken = res.AuthToken
	c.userId = res.Profile.Id
	c.username = res.Profile.Username

	return nil
}

func (c *client) logout() error {
	return c.Post("/auth/logout").Json(struct{}{}).Do(nil)
}

func (c *client) changePassword(oldPassword, newPassword string) error {
	body := map[string]string{"current_password": oldPassword, "new_password": newPassword}
	return c.Post("/auth/change-password").Json(body).Do(nil)
}

type contributorData struct {
	UserId   string `json:"user_id"`
	Username string `json:"username"`
}

type reviewData struct {
	Id       string `json:"id"`
	UserId   string `json:"user_id"`
	Username string `json:"username"`
	Review   string `json:"review"`
	Rating   int    `json:"rating"`
}

type projectData struct {
	Id          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	OwnerId     string  `json:"owner_id"`
	AvgRating   float64 `json:"avg_rating"`

	Images       []string          `json:"images"`
	Tags         []string          `json:"tags"`
	Contributors []contributorData `json:"contributors"`
	Reviews      []reviewData      `json:"reviews"`
}

func (c *client) createProject(title, description string, images, tags []string) (projectData, error) {
	body := map[string]interface{}{
		"title": title, "description": description, "images": images, "tags": tags,
	}

	var res projectData
	err := c.Post("/project/create").Json(body).Do(&res)
	return res, err
}

func (c *client) getProject(projectId string) (projectData, error) {
	var res projectData
	err := c.Get(fmt.Sprintf("/project/get/%v", projectId)).Do(&res)
	return res, err
}

func (c *client) listProjects() ([]projectData, error) {
	var res []projectData
	err := c.Get("/project/list").Do(&res)
	return res, err
}

func (c *client) myProjects() ([]projectData, error) {
	var res []projectData
	err := c.Get("/user/my_projects").Do(&res)
	return res, err
}

func (c *client) updateProject(projectId string, body map[string]interface{}) (projectData, error) {
	var res projectData
	err := c.Put(fmt.Sprintf("/project/update/%v", projectId)).Json(body).Do(&res)
	return res, err
}

type deleteCounts struct {
	Reviews      int64 `json:"reviews_deleted"`
	Contributors int64 `json:"contributors_deleted"`
	Images       int64 `json:"images_deleted"`
	TagLinks     int64 `json:"tag_links_deleted"`
}

func (c *client) deleteProject(projectId string) (deleteCounts, error) {
	var res deleteCounts
	err := c.Delete(fmt.Sprintf("/project/delete/%v", projectId)).Do(&res)
	return res, err
}

type tagData struct {
	Id      string `json:"id"`
	TagName string `json:"tag_name"`
}

func (c *client) listTags() ([]tagData, error) {
	var res []tagData
	err := c.Get("/project/tags").Do(&res)
	return res, err
}

func (c *client) addContributor(projectId, username string) error {
	body := map[string]string{"username": username}
	return c.Post(fmt.Sprintf("/project/add_contributor/%v", projectId)).Json(body).Do(nil)
}

func (c *client) removeContributor(projectId, contributorId string) error {
	return c.Delete(fmt.Sprintf("/project/remove_contributor/%v/%v", projectId, contributorId)).Do(nil)
}

func (c *client) addReview(projectId, review string, rating int) error {
	body := map[string]interface{}{"review": review, "rating": rating}
	return c.Post(fmt.Sprintf("/project/add_review/%v", projectId)).Json(body).Do(nil)
}

func (c *client) removeReview(projectId string) error {
	return c.Delete(fmt.Sprintf("/project/remove_review/%v", projectId)).Do(nil)
}

func (c *client) updateProfile(body map[string]interface{}) (profileData, error) {
	var res profileData
	err := c.Put("/user/update").Json(body).Do(&res)
	return res, err
}

type myReviewData struct {
	Id           string `json:"id"`
	ProjectId    string `json:"project_id"`
	ProjectTitle string `json:"project_title"`
	Review       string `json:"review"`
	Rating       int    `json:"rating"`
}

func (c *client) myReviews() ([]myReviewData, error) {
	var res []myReviewData
	err := c.Get("/user/my_reviews").Do(&res)
	return res, err
}

type dashboardData struct {
	TotalUsers     int64 `json:"total_users"`
	TotalProjects  int64 `json:"total_projects"`
	TotalReviews   int64 `json:"total_reviews"`
	NewUsers30d    int64 `json:"new_users_30d"`
	NewProjects30d int64 `json:"new_projects_30d"`
	NewReviews30d  int64 `json:"new_reviews_30d"`

	RecentReviews []struct {
		ProjectTitle string `json:"project_title"`
		Username     string `json:"username"`
		Rating       int    `json:"rating"`
	} `json:"recent_reviews"`
}

func (c *client) adminMetrics() (dashboardData, error) {
	var res dashboardData
	err := c.Get("/admin/metrics").Do(&res)
	return res, err
}

type adminUserData struct {
	Id       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsAdmin  bool   `json:"is_admin"`
}

func (c *client) adminListUsers(endpoint string) ([]adminUserData, error) {
	var res []adminUserData
	err := c.Get(endpoint).Do(&res)
	return res, err
}

type adminProjectData struct {
	Id            string  `json:"id"`
	Title         string  `json:"title"`
	OwnerUsername string  `json:"owner_username"`
	ReviewCount   int64   `json:"review_count"`
	AvgRating     float64 `json:"avg_rating"`
}

func (c *client) adminListProjects(endpoint string) ([]adminProjectData, error) {
	var res []adminProjectData
	err := c.Get(endpoint).Do(&res)
	return res, err
}

func (c *client) setAdmin(userId string, isAdmin bool) error {
	body := map[string]bool{"is_admin": isAdmin}
	return c.Put(fmt.Sprintf("/admin/users/%v/admin", userId)).Json(body).Do(nil)
}

func (c *client) adminDeleteUser(userId string) error {
	return c.Delete(fmt.Sprintf("/admin/users/%v", userId)).Do(nil)
}

func (c *client) adminDeleteProject(projectId string) (deleteCounts, error) {
	var res deleteCounts
	err := c.Delete(fmt.Sprintf("/admin/projects/%v", projectId)).Do(&res)
	return res, err
}
