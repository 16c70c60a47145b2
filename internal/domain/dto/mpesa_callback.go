package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FlexInt decodes an integer sent either as a JSON number or a numeric string.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid integer %s", data)
	}
	*f = FlexInt(n)
	return nil
}

// STKCallbackEnvelope is the body the gateway posts to the push callback URL.
type STKCallbackEnvelope struct {
	Body *struct {
		STKCallback *STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

type STKCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        *FlexInt          `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata"`
}

type CallbackMetadata struct {
	Item []CallbackItem `json:"Item"`
}

// CallbackItem is one named metadata value. Values arrive as numbers or strings.
type CallbackItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

// Lookup finds an item by name; item order is not guaranteed by the gateway.
func (m *CallbackMetadata) Lookup(name string) (CallbackItem, bool) {
	if m == nil {
		return CallbackItem{}, false
	}
	for _, item := range m.Item {
		if item.Name == name {
			return item, len(item.Value) > 0 && string(item.Value) != "null"
		}
	}
	return CallbackItem{}, false
}

// String returns the value with any JSON string quoting removed.
func (i CallbackItem) String() string {
	var s string
	if err := json.Unmarshal(i.Value, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(i.Value))
}

func (i CallbackItem) Decimal() (decimal.Decimal, error) {
	return decimal.NewFromString(i.String())
}

// Time parses the gateway's yyyyMMddHHmmss timestamps, which are in East Africa Time.
func (i CallbackItem) Time() (time.Time, error) {
	return time.ParseInLocation("20060102150405", i.String(), EastAfricaTime)
}

// EastAfricaTime is the gateway's local time zone (UTC+3, no DST).
var EastAfricaTime = time.FixedZone("EAT", 3*60*60)

// Metadata item names.
const (
	ItemReceiptNumber   = "MpesaReceiptNumber"
	ItemAmount          = "Amount"
	ItemPhoneNumber     = "PhoneNumber"
	ItemTransactionDate = "TransactionDate"
)

// ReversalResultEnvelope is posted to the reversal result and timeout URLs.
type ReversalResultEnvelope struct {
	Result *ReversalResult `json:"Result"`
}

type ReversalResult struct {
	ResultType               *FlexInt `json:"ResultType"`
	ResultCode               *FlexInt `json:"ResultCode"`
	ResultDesc               string   `json:"ResultDesc"`
	OriginatorConversationID string   `json:"OriginatorConversationID"`
	ConversationID           string   `json:"ConversationID"`
	TransactionID            string   `json:"TransactionID"`
}
