// Package domain contains the core business entities and interfaces for the payment service.
// This is the innermost layer of the Clean Architecture - it has no dependencies on
// infrastructure packages.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductType distinguishes recurring memberships from one-off courses.
type ProductType string

const (
	ProductTypeSubscription ProductType = "Suscripcion"
	ProductTypeCourse       ProductType = "Curso"
)

// Product is a catalog entry as exposed by the back office.
type Product struct {
	ID             string          `json:"id"`
	Name           string          `json:"nombre"`
	Description    string          `json:"descripcion,omitempty"`
	Type           ProductType     `json:"tipo"`
	Price          decimal.Decimal `json:"precio"`
	DurationMonths *int            `json:"duracion_meses,omitempty"`
	Active         bool            `json:"activo"`
}

// Duration returns the membership duration in months, defaulting to 1.
func (p Product) Duration() int {
	if p.DurationMonths == nil || *p.DurationMonths <= 0 {
		return 1
	}
	return *p.DurationMonths
}

// Tutor is the paying party for memberships and course enrollments.
type Tutor struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"nombre"`
	LastName  string `json:"apellido"`
}

// Student belongs to exactly one tutor.
type Student struct {
	ID        string `json:"id"`
	TutorID   string `json:"tutor_id"`
	FirstName string `json:"nombre"`
	LastName  string `json:"apellido"`
}

// MembershipState is the state of a tutor membership.
type MembershipState string

const (
	MembershipPending   MembershipState = "Pending"
	MembershipActive    MembershipState = "Active"
	MembershipCancelled MembershipState = "Cancelled"
	MembershipOverdue   MembershipState = "Overdue"
)

// Open reports whether the state counts as a current membership.
func (s MembershipState) Open() bool {
	return s == MembershipPending || s == MembershipActive || s == MembershipOverdue
}

// Membership is a tutor's recurring-access record tied to a Subscription product.
type Membership struct {
	ID              string          `json:"id"`
	TutorID         string          `json:"tutor_id"`
	ProductID       string          `json:"producto_id"`
	State           MembershipState `json:"estado"`
	StartDate       *time.Time      `json:"fecha_inicio"`
	NextPaymentDate *time.Time      `json:"fecha_proximo_pago"`
	PreferenceID    *string         `json:"preferencia_id"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// MembershipStatus answers the polling endpoint for a single membership.
type MembershipStatus struct {
	HasMembership bool        `json:"tiene_membresia"`
	Membership    *Membership `json:"membresia"`
}

// EnrollmentState is the state of a course enrollment. There is no rejected
// state: a rejected payment deletes the enrollment.
type EnrollmentState string

const (
	EnrollmentPreEnrolled EnrollmentState = "PreEnrolled"
	EnrollmentActive      EnrollmentState = "Active"
)

// Enrollment is a student's access record tied to a single Course product.
type Enrollment struct {
	ID           string          `json:"id"`
	StudentID    string          `json:"estudiante_id"`
	ProductID    string          `json:"producto_id"`
	State        EnrollmentState `json:"estado"`
	PreferenceID *string         `json:"preferencia_id"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Preference is the redirect target returned to the client after checkout creation.
type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point,omitempty"`
}

// PreferenceItem is a single checkout line.
type PreferenceItem struct {
	ID          string
	Title       string
	Description string
	Quantity    int
	UnitPrice   decimal.Decimal
	CurrencyID  string
}

// PreferencePayer identifies who pays the checkout.
type PreferencePayer struct {
	Email   string
	Name    string
	Surname string
}

// BackURLs are the frontend pages the gateway redirects to after checkout.
type BackURLs struct {
	Success string
	Failure string
	Pending string
}

// PreferenceData is the provider-bound payload for a checkout preference.
type PreferenceData struct {
	Items               []PreferenceItem
	Payer               PreferencePayer
	ExternalReference   string
	NotificationURL     string
	BackURLs            BackURLs
	AutoReturn          string
	StatementDescriptor string
	Metadata            map[string]any
}

// Payment statuses reported by the gateway.
const (
	PaymentApproved  = "approved"
	PaymentRejected  = "rejected"
	PaymentCancelled = "cancelled"
	PaymentPending   = "pending"
)

// PaymentInfo contains the gateway-side details of a payment.
type PaymentInfo struct {
	PaymentID         string          `json:"payment_id"`
	Status            string          `json:"status"`
	StatusDetail      string          `json:"status_detail"`
	ExternalReference string          `json:"external_reference"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
}

// WebhookNotification represents an incoming webhook from MercadoPago.
type WebhookNotification struct {
	ID       string `json:"id"`
	Type     string `json:"type"`   // "payment", "merchant_order", etc.
	Action   string `json:"action"` // "payment.created", "payment.updated", etc.
	DataID   string `json:"data_id"`
	LiveMode *bool  `json:"live_mode"` // nil when the sender omitted it
}

// AckStatus summarizes what the dispatcher did with a notification.
type AckStatus string

const (
	AckProcessed AckStatus = "processed"
	AckIgnored   AckStatus = "ignored"
	AckDuplicate AckStatus = "duplicate"
)

// WebhookAck is returned to the gateway for every notification.
type WebhookAck struct {
	Status    AckStatus `json:"status"`
	Message   string    `json:"message"`
	PaymentID string    `json:"payment_id,omitempty"`
	Action    string    `json:"action,omitempty"`
}

// HistoryEntry is one row of the tutor payment history.
type HistoryEntry struct {
	ID        string          `json:"id"`
	Kind      string          `json:"tipo"` // "membresia" or "curso"
	Product   *Product        `json:"producto,omitempty"`
	State     string          `json:"estado"`
	Date      time.Time       `json:"fecha"`
	Amount    decimal.Decimal `json:"monto"`
	StudentID string          `json:"estudiante_id,omitempty"`
}

// HistorySummary aggregates the tutor payment history.
type HistorySummary struct {
	TotalRecords      int             `json:"total_pagos"`
	TotalSpent        decimal.Decimal `json:"total_gastado"`
	ActiveMemberships int             `json:"membresias_activas"`
	ActiveCourses     int             `json:"cursos_activos"`
}

// PaymentHistory is the full payment view for a tutor.
type PaymentHistory struct {
	Entries           []HistoryEntry `json:"historial"`
	Summary           HistorySummary `json:"resumen"`
	CurrentMembership *Membership    `json:"membresia_actual"`
	ActiveEnrollments []Enrollment   `json:"inscripciones_cursos_activas"`
}

// LifecycleEvent is published whenever a payment moves an entity to a new state.
type LifecycleEvent struct {
	Type       string    `json:"type"` // "membership.activated", "enrollment.rejected", ...
	EntityID   string    `json:"entity_id"`
	PartyID    string    `json:"party_id"`
	ProductID  string    `json:"product_id"`
	PaymentID  string    `json:"payment_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
