package mercadopago

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/mateatletas/payments/internal/domain"
)

const (
	defaultCurrency            = "ARS"
	defaultStatementDescriptor = "MATEATLETAS"
	webhookPath                = "/api/pagos/webhook"
)

// PreferenceBuilder turns products and parties into provider payloads.
// It performs no I/O.
type PreferenceBuilder struct {
	BackendURL          string
	FrontendURL         string
	StatementDescriptor string
	Currency            string
}

// Membership builds the checkout payload for a pending membership.
func (b PreferenceBuilder) Membership(membershipID string, product domain.Product, tutor domain.Tutor) (domain.PreferenceData, error) {
	ref, err := domain.NewExternalReference(domain.KindMembership, membershipID)
	if err != nil {
		return domain.PreferenceData{}, err
	}

	description := strings.TrimSpace(product.Description)
	if description == "" {
		description = "Membresía Mateatletas - " + product.Name
	}

	return domain.PreferenceData{
		Items: []domain.PreferenceItem{{
			ID:          product.ID,
			Title:       product.Name,
			Description: description,
			Quantity:    1,
			UnitPrice:   product.Price,
			CurrencyID:  b.currency(),
		}},
		Payer:               payerFor(tutor),
		ExternalReference:   ref.String(),
		NotificationURL:     b.notificationURL(),
		BackURLs:            b.backURLs("suscripcion", "membresiaId", membershipID),
		AutoReturn:          domain.PaymentApproved,
		StatementDescriptor: b.statementDescriptor(),
		Metadata: map[string]any{
			"tipo":         string(domain.KindMembership),
			"membresia_id": membershipID,
			"tutor_id":     tutor.ID,
			"producto_id":  product.ID,
		},
	}, nil
}

// Course builds the checkout payload for a pre-enrolled student. The tutor pays.
func (b PreferenceBuilder) Course(enrollmentID string, product domain.Product, student domain.Student, tutor domain.Tutor) (domain.PreferenceData, error) {
	ref, err := domain.NewExternalReference(domain.KindEnrollment, enrollmentID)
	if err != nil {
		return domain.PreferenceData{}, err
	}

	description := strings.TrimSpace(product.Description)
	if description == "" {
		description = product.Name
	}

	return domain.PreferenceData{
		Items: []domain.PreferenceItem{{
			ID:          product.ID,
			Title:       fmt.Sprintf("%s - %s %s", product.Name, student.FirstName, student.LastName),
			Description: description,
			Quantity:    1,
			UnitPrice:   product.Price,
			CurrencyID:  b.currency(),
		}},
		Payer:               payerFor(tutor),
		ExternalReference:   ref.String(),
		NotificationURL:     b.notificationURL(),
		BackURLs:            b.backURLs("cursos", "inscripcionId", enrollmentID),
		AutoReturn:          domain.PaymentApproved,
		StatementDescriptor: b.statementDescriptor(),
		Metadata: map[string]any{
			"tipo":           string(domain.KindEnrollment),
			"inscripcion_id": enrollmentID,
			"estudiante_id":  student.ID,
			"tutor_id":       tutor.ID,
			"producto_id":    product.ID,
		},
	}, nil
}

func payerFor(tutor domain.Tutor) domain.PreferencePayer {
	return domain.PreferencePayer{
		Email:   tutor.Email,
		Name:    tutor.FirstName,
		Surname: tutor.LastName,
	}
}

func (b PreferenceBuilder) notificationURL() string {
	return strings.TrimRight(b.BackendURL, "/") + webhookPath
}

func (b PreferenceBuilder) backURLs(section, param, id string) domain.BackURLs {
	base := strings.TrimRight(b.FrontendURL, "/") + "/" + section
	query := "?" + url.Values{param: {id}}.Encode()
	return domain.BackURLs{
		Success: base + "/exito" + query,
		Failure: base + "/error" + query,
		Pending: base + "/pendiente" + query,
	}
}

func (b PreferenceBuilder) currency() string {
	if b.Currency == "" {
		return defaultCurrency
	}
	return b.Currency
}

func (b PreferenceBuilder) statementDescriptor() string {
	if b.StatementDescriptor == "" {
		return defaultStatementDescriptor
	}
	return b.StatementDescriptor
}
