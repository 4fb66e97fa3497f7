package service

import (
	"billevents/internal/port/inbound"
	"errors"
)

// LifecycleHandler combines the submission and retrieval services into the
// single job handler the consumer dispatches on.
type LifecycleHandler struct {
	inbound.ExtractHandler
	inbound.RetrieveHandler
}

// NewLifecycleHandler creates a LifecycleHandler.
func NewLifecycleHandler(extract inbound.ExtractHandler, retrieve inbound.RetrieveHandler) (*LifecycleHandler, error) {
	if extract == nil {
		return nil, errors.New("extract handler cannot be nil")
	}
	if retrieve == nil {
		return nil, errors.New("retrieve handler cannot be nil")
	}
	return &LifecycleHandler{ExtractHandler: extract, RetrieveHandler: retrieve}, nil
}
