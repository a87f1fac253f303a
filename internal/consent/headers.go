package consent

// Diagnostic header names exposed alongside consent-controlled responses.
// Intermediate proxies use them to make correct caching decisions; clients
// use them for debugging.
const (
	HeaderConsentVersion = "X-Empathy-Consent-Version"
	HeaderStoryStatus    = "X-Empathy-Story-Status"
	HeaderShareLevel     = "X-Empathy-Share-Level"
	HeaderAttribution    = "X-Empathy-Attribution"
)

// ConsentHeaders maps a decision to the response header set for
// consent-controlled content. Cache-Control comes verbatim from the decision;
// the Pragma/Expires pair covers HTTP/1.0 intermediaries.
func ConsentHeaders(d Decision) map[string]string {
	status := "restricted"
	if d.Allowed {
		status = "active"
	}
	return map[string]string{
		"Cache-Control":      d.CacheControl,
		"Pragma":             "no-cache",
		"Expires":            "0",
		HeaderConsentVersion: d.ConsentVersion,
		HeaderStoryStatus:    status,
		HeaderShareLevel:     string(d.ShareLevel),
		HeaderAttribution:    string(d.Attribution),
	}
}
