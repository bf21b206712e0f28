// Package mercadopago implements the PaymentGateway interface using the Mercado Pago SDK.
package mercadopago

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/mateatletas/payments/internal/domain"
)

// placeholderToken marks example tokens copied from .env templates.
const placeholderToken = "XXXXXXXX"

const defaultTimeout = 10 * time.Second

// preferenceCreator is the subset of preference.Client the adapter uses.
type preferenceCreator interface {
	Create(ctx context.Context, request preference.Request) (*preference.Response, error)
}

// paymentGetter is the subset of payment.Client the adapter uses.
type paymentGetter interface {
	Get(ctx context.Context, id int) (*payment.Response, error)
}

// Options configures the adapter.
type Options struct {
	AccessToken string
	Timeout     time.Duration
	Logger      *zap.Logger
}

// Adapter implements the domain.PaymentGateway interface using Mercado Pago SDK.
// A single access token is resolved at startup; mock mode is decided once from it.
// Checkouts and webhook lookups trip separate circuit breakers.
type Adapter struct {
	mock              bool
	preferences       preferenceCreator
	payments          paymentGetter
	preferenceBreaker *gobreaker.CircuitBreaker
	paymentBreaker    *gobreaker.CircuitBreaker
	timeout           time.Duration
	logger            *zap.Logger
}

// IsMockToken reports whether the token cannot reach the real provider.
func IsMockToken(token string) bool {
	token = strings.TrimSpace(token)
	return token == "" || strings.Contains(token, placeholderToken)
}

// NewAdapter creates a new Mercado Pago adapter.
func NewAdapter(opts Options) (*Adapter, error) {
	a := newAdapter(opts)
	if a.mock {
		a.logger.Warn("mercadopago access token not configured, running in mock mode")
		return a, nil
	}

	cfg, err := config.New(opts.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create MP config: %w", err)
	}
	a.preferences = preference.NewClient(cfg)
	a.payments = payment.NewClient(cfg)
	return a, nil
}

func newAdapter(opts Options) *Adapter {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger = logger.Named("mercadopago")

	return &Adapter{
		mock:              IsMockToken(opts.AccessToken),
		preferenceBreaker: newBreaker("mercadopago-preferences", logger),
		paymentBreaker:    newBreaker("mercadopago-payments", logger),
		timeout:           timeout,
		logger:            logger,
	}
}

// newBreaker opens after three consecutive failures and probes again after a minute.
// A caller that gave up is not a provider failure.
func newBreaker(name string, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// IsMockMode reports whether the adapter was built without a usable access token.
func (a *Adapter) IsMockMode() bool {
	return a.mock
}

// CreatePreference creates a Checkout Pro preference.
func (a *Adapter) CreatePreference(ctx context.Context, data domain.PreferenceData) (*domain.Preference, error) {
	if a.mock {
		return nil, fmt.Errorf("%w: gateway is in mock mode", domain.ErrIntegrationFailure)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	request := toPreferenceRequest(data)
	result, err := a.preferenceBreaker.Execute(func() (interface{}, error) {
		return a.preferences.Create(ctx, request)
	})
	if err != nil {
		a.logger.Error("failed to create preference",
			zap.String("external_reference", data.ExternalReference),
			zap.Error(err))
		return nil, integrationError("create preference", err)
	}

	return preferenceFromResponse(result.(*preference.Response))
}

// GetPayment retrieves payment information from Mercado Pago.
// Used when processing webhooks to get the current payment status.
func (a *Adapter) GetPayment(ctx context.Context, paymentID string) (*domain.PaymentInfo, error) {
	if a.mock {
		return nil, fmt.Errorf("%w: gateway is in mock mode", domain.ErrIntegrationFailure)
	}

	// SDK uses int for payment IDs
	id, err := strconv.Atoi(strings.TrimSpace(paymentID))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid payment ID %q", domain.ErrMalformedWebhook, paymentID)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	result, err := a.paymentBreaker.Execute(func() (interface{}, error) {
		return a.payments.Get(ctx, id)
	})
	if err != nil {
		a.logger.Error("failed to get payment", zap.String("payment_id", paymentID), zap.Error(err))
		return nil, integrationError("get payment", err)
	}

	res := result.(*payment.Response)
	return &domain.PaymentInfo{
		PaymentID:         paymentID,
		Status:            res.Status,
		StatusDetail:      res.StatusDetail,
		ExternalReference: res.ExternalReference,
		Amount:            decimal.NewFromFloat(res.TransactionAmount),
		Currency:          res.CurrencyID,
	}, nil
}

func integrationError(op string, err error) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: %s: circuit open: %v", domain.ErrIntegrationFailure, op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: timed out", domain.ErrIntegrationFailure, op)
	default:
		return fmt.Errorf("%w: %s: %v", domain.ErrIntegrationFailure, op, err)
	}
}

// preferenceFromResponse refuses responses missing the id or the init point.
func preferenceFromResponse(res *preference.Response) (*domain.Preference, error) {
	if res == nil || res.ID == "" || res.InitPoint == "" {
		return nil, fmt.Errorf("%w: preference response without id or init point", domain.ErrIntegrationFailure)
	}
	return &domain.Preference{
		ID:               res.ID,
		InitPoint:        res.InitPoint,
		SandboxInitPoint: res.SandboxInitPoint,
	}, nil
}

func toPreferenceRequest(data domain.PreferenceData) preference.Request {
	items := make([]preference.ItemRequest, 0, len(data.Items))
	for _, item := range data.Items {
		items = append(items, preference.ItemRequest{
			ID:          item.ID,
			Title:       item.Title,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.InexactFloat64(),
			CurrencyID:  item.CurrencyID,
		})
	}

	return preference.Request{
		Items: items,
		Payer: &preference.PayerRequest{
			Email:   data.Payer.Email,
			Name:    data.Payer.Name,
			Surname: data.Payer.Surname,
		},
		ExternalReference: data.ExternalReference,
		AutoReturn:        data.AutoReturn,
		BackURLs: &preference.BackURLsRequest{
			Success: data.BackURLs.Success,
			Failure: data.BackURLs.Failure,
			Pending: data.BackURLs.Pending,
		},
		NotificationURL:     data.NotificationURL,
		StatementDescriptor: data.StatementDescriptor,
		Metadata:            data.Metadata,
	}
}
