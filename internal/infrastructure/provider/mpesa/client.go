package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/farunova-art/farunova-sub001/internal/config"
	"github.com/farunova-art/farunova-sub001/internal/domain/dto"
	paymentErrors "github.com/farunova-art/farunova-sub001/internal/domain/errors"
	"github.com/farunova-art/farunova-sub001/internal/domain/provider"
	"github.com/farunova-art/farunova-sub001/internal/infrastructure/metrics"
)

// Gateway operation names, used in errors, logs and metrics.
const (
	OperationSTKPush  = "stk_push"
	OperationSTKQuery = "stk_query"
	OperationQR       = "qr_generate"
	OperationReversal = "reversal"
)

const (
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath = "/mpesa/stkpushquery/v1/query"
	qrPath       = "/mpesa/qrcode/v1/generate"
	reversalPath = "/mpesa/reversal/v1/request"

	commandTransactionReversal = "TransactionReversal"
	// Identifier type 11 is an organisation short code.
	identifierShortCode = "11"

	timestampLayout = "20060102150405"
	defaultQRSize   = 300
)

// gatewayErrorBody is the shape of non-2xx responses.
type gatewayErrorBody struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

type stkQueryBody struct {
	MerchantRequestID   string       `json:"MerchantRequestID"`
	CheckoutRequestID   string       `json:"CheckoutRequestID"`
	ResponseCode        string       `json:"ResponseCode"`
	ResponseDescription string       `json:"ResponseDescription"`
	ResultCode          *dto.FlexInt `json:"ResultCode"`
	ResultDesc          string       `json:"ResultDesc"`
}

// Client issues signed requests to the M-Pesa API. It does not retry.
type Client struct {
	cfg                config.MpesaConfig
	baseURL            string
	securityCredential string

	tokens  provider.TokenProvider
	client  *http.Client
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.client = client }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithSecurityCredential sets the encrypted initiator password used for reversals.
func WithSecurityCredential(credential string) Option {
	return func(c *Client) { c.securityCredential = credential }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(cfg config.MpesaConfig, tokens provider.TokenProvider, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		cfg:                cfg,
		baseURL:            cfg.GatewayURL(),
		securityCredential: cfg.SecurityCredential,
		tokens:             tokens,
		client:             &http.Client{Timeout: cfg.Timeout},
		logger:             logger,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// STKPush sends a payment prompt to the payer's phone.
func (c *Client) STKPush(ctx context.Context, req *provider.STKPushRequest) (*provider.STKPushResponse, error) {
	timestamp := c.timestamp()
	body := map[string]interface{}{
		"BusinessShortCode": c.cfg.ShortCode,
		"Password":          c.password(timestamp),
		"Timestamp":         timestamp,
		"TransactionType":   c.cfg.TransactionType,
		"Amount":            json.Number(req.Amount.String()),
		"PartyA":            req.PhoneNumber,
		"PartyB":            c.cfg.ReceivingParty(),
		"PhoneNumber":       req.PhoneNumber,
		"CallBackURL":       c.cfg.CallbackURL,
		"AccountReference":  req.AccountReference,
		"TransactionDesc":   req.TransactionDesc,
	}

	var result provider.STKPushResponse
	if err := c.post(ctx, OperationSTKPush, stkPushPath, body, &result); err != nil {
		return nil, err
	}
	if result.ResponseCode != "0" {
		return nil, paymentErrors.NewGatewayError(OperationSTKPush, http.StatusOK, result.ResponseCode, result.ResponseDescription)
	}
	if result.CheckoutRequestID == "" {
		return nil, paymentErrors.NewProtocolError("push response has no CheckoutRequestID", nil)
	}

	c.logger.Info("STK push accepted",
		zap.String("checkout_request_id", result.CheckoutRequestID),
		zap.String("merchant_request_id", result.MerchantRequestID))
	return &result, nil
}

// STKQuery asks for the outcome of a push request.
func (c *Client) STKQuery(ctx context.Context, checkoutRequestID string) (*provider.STKQueryResponse, error) {
	timestamp := c.timestamp()
	body := map[string]interface{}{
		"BusinessShortCode": c.cfg.ShortCode,
		"Password":          c.password(timestamp),
		"Timestamp":         timestamp,
		"CheckoutRequestID": checkoutRequestID,
	}

	var result stkQueryBody
	if err := c.post(ctx, OperationSTKQuery, stkQueryPath, body, &result); err != nil {
		return nil, err
	}
	if result.ResultCode == nil {
		return nil, paymentErrors.NewProtocolError("query response has no ResultCode", nil)
	}

	return &provider.STKQueryResponse{
		MerchantRequestID:   result.MerchantRequestID,
		CheckoutRequestID:   result.CheckoutRequestID,
		ResponseCode:        result.ResponseCode,
		ResponseDescription: result.ResponseDescription,
		ResultCode:          int(*result.ResultCode),
		ResultDesc:          result.ResultDesc,
	}, nil
}

// GenerateQR returns a dynamic QR code for the given merchant and amount.
func (c *Client) GenerateQR(ctx context.Context, req *provider.QRRequest) (*provider.QRResponse, error) {
	size := req.Size
	if size <= 0 {
		size = defaultQRSize
	}
	merchant := req.MerchantName
	if merchant == "" {
		merchant = c.cfg.QRMerchantName
	}
	cpi := req.CPI
	if cpi == "" {
		cpi = c.cfg.ReceivingParty()
	}
	body := map[string]interface{}{
		"MerchantName": merchant,
		"RefNo":        req.RefNo,
		"Amount":       json.Number(req.Amount.String()),
		"TrxCode":      req.TrxCode,
		"CPI":          cpi,
		"Size":         strconv.Itoa(size),
	}

	var result provider.QRResponse
	if err := c.post(ctx, OperationQR, qrPath, body, &result); err != nil {
		return nil, err
	}
	if result.QRCode == "" {
		return nil, paymentErrors.NewProtocolError("QR response has no QRCode", nil)
	}
	return &result, nil
}

// Reversal submits a refund of a settled transaction. The outcome arrives on the
// result URL; the response only acknowledges the request.
func (c *Client) Reversal(ctx context.Context, req *provider.ReversalRequest) (*provider.ReversalResponse, error) {
	if c.securityCredential == "" {
		return nil, paymentErrors.NewValidationError("reversal requires a security credential")
	}
	body := map[string]interface{}{
		"Initiator":                c.cfg.InitiatorName,
		"SecurityCredential":       c.securityCredential,
		"CommandID":                commandTransactionReversal,
		"OriginatingTransactionID": req.TransactionID,
		"Amount":                   json.Number(req.Amount.String()),
		"ReceiverParty":            c.cfg.ShortCode,
		"RecieverIdentifierType":   identifierShortCode,
		"ResultURL":                c.cfg.ReversalResultURL,
		"QueueTimeOutURL":          c.cfg.ReversalTimeoutURL,
		"Remarks":                  req.Remarks,
		"Occasion":                 req.Occasion,
	}

	var result provider.ReversalResponse
	if err := c.post(ctx, OperationReversal, reversalPath, body, &result); err != nil {
		return nil, err
	}
	if result.ResponseCode != "0" {
		return nil, paymentErrors.NewGatewayError(OperationReversal, http.StatusOK, result.ResponseCode, result.ResponseDescription)
	}

	c.logger.Info("Reversal accepted",
		zap.String("transaction_id", req.TransactionID),
		zap.String("conversation_id", result.ConversationID))
	return &result, nil
}

// password derives the per-request STK password.
func (c *Client) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.cfg.ShortCode + c.cfg.PassKey + timestamp))
}

func (c *Client) timestamp() string {
	return c.now().In(dto.EastAfricaTime).Format(timestampLayout)
}

func (c *Client) post(ctx context.Context, operation, path string, payload, out interface{}) (err error) {
	start := c.now()
	defer func() {
		c.metrics.ObserveGatewayRequest(operation, outcome(err), c.now().Sub(start))
	}()

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", operation, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", operation, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.Error("Gateway request failed",
			zap.String("operation", operation),
			zap.Error(err))
		return paymentErrors.NewTransportError(operation, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return paymentErrors.NewTransportError(operation, err)
	}

	c.logger.Debug("Gateway response received",
		zap.String("operation", operation),
		zap.Int("status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp gatewayErrorBody
		_ = json.Unmarshal(respBody, &errResp)

		c.logger.Error("Gateway returned an error",
			zap.String("operation", operation),
			zap.Int("status_code", resp.StatusCode),
			zap.String("error_code", errResp.ErrorCode),
			zap.String("response", string(respBody)))

		if resp.StatusCode == http.StatusUnauthorized {
			if clearErr := c.tokens.Clear(ctx); clearErr != nil {
				c.logger.Warn("Failed to clear rejected token", zap.Error(clearErr))
			}
		}
		return paymentErrors.NewGatewayError(operation, resp.StatusCode, errResp.ErrorCode, errResp.ErrorMessage)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		c.logger.Error("Gateway response could not be parsed",
			zap.String("operation", operation),
			zap.String("response", string(respBody)),
			zap.Error(err))
		return paymentErrors.NewProtocolError(fmt.Sprintf("unparseable %s response", operation), err)
	}
	return nil
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	if t := paymentErrors.TypeOf(err); t != "" {
		return t
	}
	return "error"
}
