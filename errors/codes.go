package errors

// Kind is a machine-readable failure class.
type Kind string

const (
	KindNetwork         Kind = "NETWORK_ERROR"
	KindTimeout         Kind = "TIMEOUT_ERROR"
	KindRateLimited     Kind = "RATE_LIMIT_ERROR"
	KindAuth            Kind = "AUTH_ERROR"
	KindNotFound        Kind = "NOT_FOUND_ERROR"
	KindServer          Kind = "SERVER_ERROR"
	KindValidation      Kind = "VALIDATION_ERROR"
	KindCircuitOpen     Kind = "CIRCUIT_OPEN"
	KindCancelled       Kind = "CANCELLED"
	KindEndpointUnknown Kind = "ENDPOINT_UNKNOWN"
	KindUnknown         Kind = "UNKNOWN_ERROR"
)

// Kinds lists every failure class in a stable order.
var Kinds = []Kind{
	KindNetwork, KindTimeout, KindRateLimited, KindAuth, KindNotFound,
	KindServer, KindValidation, KindCircuitOpen, KindCancelled,
	KindEndpointUnknown, KindUnknown,
}

var retryableKinds = map[Kind]bool{
	KindNetwork:     true,
	KindTimeout:     true,
	KindServer:      true,
	KindRateLimited: true,
}

// IsRetryableKind reports whether a failure of kind k may be retried within
// the same call.
func IsRetryableKind(k Kind) bool {
	return retryableKinds[k]
}

type statusRule struct {
	min, max int
	kind     Kind
}

// statusTable is evaluated top to bottom; the first matching range wins.
var statusTable = []statusRule{
	{401, 401, KindAuth},
	{403, 403, KindAuth},
	{404, 404, KindNotFound},
	{429, 429, KindRateLimited},
	{500, 599, KindServer},
	{400, 499, KindValidation},
}

// KindForStatus classifies a non-success HTTP status code.
// Codes outside every range (1xx, 3xx, >599) are KindUnknown.
func KindForStatus(status int) Kind {
	for _, r := range statusTable {
		if status >= r.min && status <= r.max {
			return r.kind
		}
	}
	return KindUnknown
}

// IsSuccessStatus reports whether status is a 2xx code.
func IsSuccessStatus(status int) bool {
	return status >= 200 && status < 300
}
