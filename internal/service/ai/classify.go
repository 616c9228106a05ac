package ai

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// Outcome tags the result of one generation attempt.
type Outcome int

const (
	Success Outcome = iota
	ConfigurationAbsent
	AuthRejected
	QuotaExceeded
	Transient
	Empty
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case ConfigurationAbsent:
		return "configuration_absent"
	case AuthRejected:
		return "auth_rejected"
	case QuotaExceeded:
		return "quota_exceeded"
	case Transient:
		return "transient"
	case Empty:
		return "empty"
	default:
		return "unknown"
	}
}

var authMarkers = []string{"API key", "401", "403", "PERMISSION_DENIED", "UNAUTHENTICATED"}

var quotaMarkers = []string{"quota", "429", "RESOURCE_EXHAUSTED", "rate limit"}

// Classify maps a generation error onto an Outcome. A nil error is Success.
func Classify(err error) Outcome {
	if err == nil {
		return Success
	}
	if errors.Is(err, ErrConfigurationAbsent) {
		return ConfigurationAbsent
	}

	if code, ok := apiErrorCode(err); ok {
		switch code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return AuthRejected
		case http.StatusTooManyRequests:
			return QuotaExceeded
		}
	}

	msg := err.Error()
	if containsAny(msg, authMarkers) {
		return AuthRejected
	}
	if containsAny(strings.ToLower(msg), lowerAll(quotaMarkers)) {
		return QuotaExceeded
	}
	return Transient
}

func apiErrorCode(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

// FallbackText renders the apology shown in place of a reply for o.
// Success has no fallback and yields "".
func FallbackText(o Outcome) string {
	switch o {
	case Success:
		return ""
	case ConfigurationAbsent:
		return "죄송합니다. AI 서비스가 설정되지 않았습니다. 관리자에게 문의해주세요."
	case AuthRejected:
		return "죄송합니다. API 키 설정에 문제가 있습니다. 관리자에게 문의해주세요."
	case QuotaExceeded:
		return "죄송합니다. 일일 사용량을 초과했습니다. 나중에 다시 시도해주세요."
	case Empty:
		return "죄송합니다. 응답을 생성할 수 없습니다."
	default:
		return "죄송합니다. 일시적인 오류가 발생했습니다. 다시 시도해주세요."
	}
}
