package payment

import (
	"context"
	"fmt"
	"sync/atomic"
)

// StubProvider acknowledges every STK push without calling anything. Used in
// tests and local development.
type StubProvider struct {
	Err  error // returned instead of a response when set
	seq  atomic.Int64
	Last STKRequest
}

func (s *StubProvider) InitiateSTKPush(_ context.Context, req STKRequest) (*STKResponse, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.Last = req
	n := s.seq.Add(1)
	return &STKResponse{
		MerchantRequestID: fmt.Sprintf("stub-merchant-%d", n),
		CheckoutRequestID: fmt.Sprintf("ws_CO_stub_%d", n),
		ResponseCode:      "0",
		CustomerMessage:   "Success. Request accepted for processing",
	}, nil
}
