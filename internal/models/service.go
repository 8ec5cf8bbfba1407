package models

// Service categories a visitor can register for. The code is the internal
// identity; the prefix builds queue numbers; the display name is only for
// client-facing text and never drives logic.
const (
	ServiceConsultation = "consultation"
	ServiceCriminal     = "criminal"
	ServiceCivil        = "civil"
)

// ScopeAll marks an admin session that may act on every service category.
const ScopeAll = "ALL"

type ServiceInfo struct {
	Code   string `json:"code"`
	Prefix string `json:"prefix"`
	Name   string `json:"name"`
}

var services = []ServiceInfo{
	{Code: ServiceConsultation, Prefix: "A", Name: "Konsultasi Hukum"},
	{Code: ServiceCriminal, Prefix: "B", Name: "Pidana"},
	{Code: ServiceCivil, Prefix: "C", Name: "Perdata"},
}

func Services() []ServiceInfo {
	out := make([]ServiceInfo, len(services))
	copy(out, services)
	return out
}

func ValidService(code string) bool {
	for _, svc := range services {
		if svc.Code == code {
			return true
		}
	}
	return false
}

func ServicePrefix(code string) string {
	for _, svc := range services {
		if svc.Code == code {
			return svc.Prefix
		}
	}
	return "A"
}

func ServiceName(code string) string {
	for _, svc := range services {
		if svc.Code == code {
			return svc.Name
		}
	}
	return code
}

// ValidScope accepts ScopeAll or any service code.
func ValidScope(scope string) bool {
	return scope == ScopeAll || ValidService(scope)
}

// InScope reports whether a ticket of the given service category is visible
// to an admin with the given scope.
func InScope(scope, serviceType string) bool {
	return scope == ScopeAll || scope == serviceType
}
