package service

import (
	"context"

	"go.uber.org/zap"
)

// BatchError reports the failure of one message of a batch
type BatchError struct {
	Index   int    `json:"index"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BatchResponse holds one slot per request. Failed slots are nil and have a
// matching entry in Errors.
type BatchResponse struct {
	Results []*Response  `json:"results"`
	Errors  []BatchError `json:"errors"`
}

// BatchRouteMessages routes each message independently and in order, so one
// failure never aborts the rest of the batch
func (s *Service) BatchRouteMessages(ctx context.Context, reqs []Request) *BatchResponse {
	out := &BatchResponse{
		Results: make([]*Response, len(reqs)),
		Errors:  []BatchError{},
	}

	for i, req := range reqs {
		resp, err := s.RouteMessage(ctx, req)
		if err != nil {
			out.Errors = append(out.Errors, BatchError{
				Index:   i,
				Code:    Code(err),
				Message: err.Error(),
			})
			continue
		}
		out.Results[i] = resp
	}

	s.logger.Info("batch routed",
		zap.Int("messages", len(reqs)),
		zap.Int("errors", len(out.Errors)),
	)

	return out
}
