package faults

// Error codes from upstream services map straight to a kind. The code
// table wins over the HTTP status when both are present.
var codeKinds = map[string]Kind{
	"ServiceUnavailable":     KindTransient,
	"InternalError":          KindTransient,
	"RequestTimeout":         KindTransient,
	"Throttling":             KindThrottling,
	"ThrottlingException":    KindThrottling,
	"RequestLimitExceeded":   KindThrottling,
	"AccessDenied":           KindAuthentication,
	"UnauthorizedOperation":  KindAuthentication,
	"InvalidUserID.NotFound": KindAuthentication,
	"ValidationException":    KindValidation,
	"InvalidParameterValue":  KindValidation,
	"MalformedInput":         KindValidation,
}

var statusKinds = map[int]Kind{
	429: KindThrottling,
	400: KindPermanent,
	403: KindPermanent,
	404: KindPermanent,
}

// Classify maps an upstream error code and HTTP status to a kind.
// Unknown inputs classify as transient so the caller errs on the side
// of retrying.
func Classify(code string, httpStatus int) Kind {
	if kind, ok := codeKinds[code]; ok {
		return kind
	}
	if httpStatus >= 500 {
		return KindTransient
	}
	if kind, ok := statusKinds[httpStatus]; ok {
		return kind
	}
	return KindTransient
}
