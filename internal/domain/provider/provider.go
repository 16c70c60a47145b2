package provider

import (
	"context"

	"github.com/shopspring/decimal"
)

// Gateway is the mobile-money gateway. Implementations do not retry; callers own
// retry policy because a push request is not safe to repeat from the payer's view.
type Gateway interface {
	// STKPush sends a payment prompt to the payer's phone.
	STKPush(ctx context.Context, req *STKPushRequest) (*STKPushResponse, error)

	// STKQuery asks the gateway for the outcome of a push request.
	STKQuery(ctx context.Context, checkoutRequestID string) (*STKQueryResponse, error)

	// GenerateQR returns a dynamic payment QR code.
	GenerateQR(ctx context.Context, req *QRRequest) (*QRResponse, error)

	// Reversal returns funds of a settled transaction to the payer.
	Reversal(ctx context.Context, req *ReversalRequest) (*ReversalResponse, error)
}

// TokenProvider yields the bearer token for gateway calls.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}

// STKPushRequest is a push payment request. PhoneNumber must already be normalized.
type STKPushRequest struct {
	PhoneNumber      string
	Amount           decimal.Decimal
	AccountReference string
	TransactionDesc  string
}

type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type STKQueryResponse struct {
	MerchantRequestID   string
	CheckoutRequestID   string
	ResponseCode        string
	ResponseDescription string
	ResultCode          int
	ResultDesc          string
}

// Transaction codes accepted by the QR endpoint.
const (
	QRBuyGoods      = "BG"
	QRWithdrawAgent = "WA"
	QRPayBill       = "PB"
	QRSendMoney     = "SM"
	QRSendToBiz     = "SB"
)

type QRRequest struct {
	MerchantName string
	RefNo        string
	Amount       decimal.Decimal
	TrxCode      string
	// CPI is the credit party identifier (till, paybill, phone or agent number).
	CPI  string
	Size int
}

type QRResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	RequestID           string `json:"RequestID"`
	ResponseDescription string `json:"ResponseDescription"`
	// QRCode is a base64 encoded PNG.
	QRCode string `json:"QRCode"`
}

type ReversalRequest struct {
	TransactionID string
	Amount        decimal.Decimal
	Remarks       string
	Occasion      string
}

type ReversalResponse struct {
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ConversationID           string `json:"ConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`
}
