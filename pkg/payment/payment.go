package payment

import "context"

// STKRequest is one STK push initiation. Phone must already be normalized to
// the provider's 254XXXXXXXXX format; Amount is whole settlement-currency
// units (Daraja does not take cents).
type STKRequest struct {
	Amount           int64
	Phone            string
	CallbackURL      string
	AccountReference string
	Description      string
}

// STKResponse is the provider's immediate acknowledgment. It is not
// settlement: settlement arrives later on the callback URL.
type STKResponse struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResponseCode      string
	CustomerMessage   string
}

type Provider interface {
	InitiateSTKPush(ctx context.Context, req STKRequest) (*STKResponse, error)
}
