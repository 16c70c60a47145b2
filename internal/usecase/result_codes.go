package usecase

import "fmt"

// Push result codes reported by callbacks and status queries.
const (
	ResultSuccess              = 0
	ResultInsufficientBalance  = 1
	ResultSystemBusy           = 17
	ResultRuleLimited          = 26
	ResultSubscriberBusy       = 1001
	ResultTransactionExpired   = 1019
	ResultPushFailed           = 1025
	ResultCancelledByUser      = 1032
	ResultInternalFailure      = 1036
	ResultUserUnreachable      = 1037
	ResultInvalidInitiatorInfo = 2001
	ResultPushError            = 9999
)

var resultMessages = map[int]string{
	ResultSuccess:              "The service request is processed successfully",
	ResultInsufficientBalance:  "The balance is insufficient for the transaction",
	ResultSystemBusy:           "System busy, try again later",
	ResultRuleLimited:          "System busy, too many requests",
	ResultSubscriberBusy:       "Unable to lock subscriber, a transaction is already in process for the current subscriber",
	ResultTransactionExpired:   "Transaction has expired",
	ResultPushFailed:           "An error occurred while sending a push request",
	ResultCancelledByUser:      "Request cancelled by user",
	ResultInternalFailure:      "Internal failure, the request could not be completed",
	ResultUserUnreachable:      "DS timeout, user cannot be reached",
	ResultInvalidInitiatorInfo: "The initiator information is invalid",
	ResultPushError:            "An error occurred while sending a push request",
}

// ResultMessage maps a gateway result code to a human readable message.
func ResultMessage(code int) string {
	if msg, ok := resultMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("unknown result code %d", code)
}

func IsKnownResultCode(code int) bool {
	_, ok := resultMessages[code]
	return ok
}
