package rest

import (
	"encoding/json"
	"fmt"

	"github.com/ferrylabs/ferry/pkg/model"
)

type SubmitOrderRequest struct {
	Chain   model.Chain     `json:"chain" binding:"required"`
	Payload json.RawMessage `json:"payload" binding:"required"`
	Proof   string          `json:"proof" binding:"required"`
}

type SubmitOrderResponse struct {
	OrderID                 string            `json:"orderId"`
	Status                  model.OrderStatus `json:"status"`
	Fee                     string            `json:"fee"`
	EstimatedProcessingTime string            `json:"estimatedProcessingTime"`
}

type ListOrdersResponse struct {
	Orders []model.Order `json:"orders"`
}

type IntentResponse struct {
	OrderID     string      `json:"orderId"`
	TargetChain model.Chain `json:"targetChain"`
	Order       model.Order `json:"order"`
}

type VerifyRequest struct {
	OrderID   string `json:"orderId" binding:"required"`
	EscrowSrc string `json:"escrowSrc" binding:"required"`
	EscrowDst string `json:"escrowDst" binding:"required"`
}

type VerifyResponse struct {
	Verified bool     `json:"verified"`
	Issues   []string `json:"issues"`
}

type SecretRequest struct {
	OrderID string `json:"orderId" binding:"required"`
	Secret  string `json:"secret" binding:"required"`
}

type SecretResponse struct {
	Success bool              `json:"success"`
	Status  model.OrderStatus `json:"status"`
}

type CancelResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type SettleRequest struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	SrcTxHash string `json:"srcTxHash,omitempty"`
	DstTxHash string `json:"dstTxHash,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// RequestError is a non-2xx answer from the relayer API. 5xx answers are
// retryable, 4xx answers are not.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e RequestError) Error() string {
	return fmt.Sprintf("request failed with status %v, %v", e.StatusCode, e.Message)
}

func (e RequestError) Retryable() bool {
	return e.StatusCode >= 500
}
