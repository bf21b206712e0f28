package mercadopago

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/mateatletas/payments/internal/domain"
)

// MockPreferences synthesizes checkout preferences without contacting the gateway.
type MockPreferences struct {
	FrontendURL string
	newID       func() string
}

// NewMockPreferences creates a generator whose init points live under frontendURL.
func NewMockPreferences(frontendURL string) *MockPreferences {
	return &MockPreferences{FrontendURL: frontendURL, newID: uuid.NewString}
}

// Generate returns a preference unique per call. The init point carries the
// entity id and the preference id as query parameters.
func (m *MockPreferences) Generate(kind domain.ReferenceKind, entityID string) domain.Preference {
	newID := m.newID
	if newID == nil {
		newID = uuid.NewString
	}

	prefID := fmt.Sprintf("mock-%s-%s-%s", kind, entityID, newID())
	query := url.Values{"id": {entityID}, "pref": {prefID}}
	initPoint := fmt.Sprintf("%s/pagos/mock/%s?%s", strings.TrimRight(m.FrontendURL, "/"), kind.MockPath(), query.Encode())

	return domain.Preference{
		ID:               prefID,
		InitPoint:        initPoint,
		SandboxInitPoint: initPoint,
	}
}
