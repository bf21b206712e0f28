// Package backoffice implements the ProductCatalog and Directory interfaces
// by communicating with the back office internal API.
package backoffice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mateatletas/payments/internal/domain"
)

// ErrUnauthorized is returned when the back office refuses the internal API key.
var ErrUnauthorized = errors.New("authentication failed with back office API")

// Client implements domain.ProductCatalog and domain.Directory
// by making HTTP requests to the back office API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new back office client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// FindByID fetches a single catalog product.
func (c *Client) FindByID(ctx context.Context, productID string) (*domain.Product, error) {
	var product domain.Product
	if err := c.get(ctx, "/api/internal/productos/"+url.PathEscape(productID), domain.ErrProductNotFound, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// FindSubscriptions fetches the active Subscription products.
func (c *Client) FindSubscriptions(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	path := "/api/internal/productos?" + url.Values{"tipo": {string(domain.ProductTypeSubscription)}}.Encode()
	if err := c.get(ctx, path, domain.ErrProductNotFound, &products); err != nil {
		return nil, err
	}

	// The back office may ignore the filter on older deployments.
	active := products[:0]
	for _, p := range products {
		if p.Active && p.Type == domain.ProductTypeSubscription {
			active = append(active, p)
		}
	}
	return active, nil
}

// FindTutor fetches a tutor by id.
func (c *Client) FindTutor(ctx context.Context, tutorID string) (*domain.Tutor, error) {
	var tutor domain.Tutor
	if err := c.get(ctx, "/api/internal/tutores/"+url.PathEscape(tutorID), domain.ErrTutorNotFound, &tutor); err != nil {
		return nil, err
	}
	return &tutor, nil
}

// FindStudent fetches a student scoped to its tutor.
func (c *Client) FindStudent(ctx context.Context, studentID, tutorID string) (*domain.Student, error) {
	path := fmt.Sprintf("/api/internal/tutores/%s/estudiantes/%s", url.PathEscape(tutorID), url.PathEscape(studentID))

	var student domain.Student
	if err := c.get(ctx, path, domain.ErrStudentNotFound, &student); err != nil {
		return nil, err
	}
	if student.TutorID != "" && student.TutorID != tutorID {
		return nil, domain.ErrStudentNotFound
	}
	if student.TutorID == "" {
		student.TutorID = tutorID
	}
	return &student, nil
}

// ListStudents fetches all students of a tutor.
func (c *Client) ListStudents(ctx context.Context, tutorID string) ([]domain.Student, error) {
	path := fmt.Sprintf("/api/internal/tutores/%s/estudiantes", url.PathEscape(tutorID))

	var students []domain.Student
	if err := c.get(ctx, path, domain.ErrTutorNotFound, &students); err != nil {
		return nil, err
	}
	return students, nil
}

// get issues an authenticated GET and decodes the JSON body into out.
// A 404 is reported as notFound.
func (c *Client) get(ctx context.Context, path string, notFound error, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Add internal API authentication
	req.Header.Set("X-Internal-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return notFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
