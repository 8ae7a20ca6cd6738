package domain

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

const (
	legitimateScore = 90
	phishingScore   = 30
)

// Assessment is the user-facing summary of a verdict.
type Assessment struct {
	SafetyScore        int      `json:"safety_score"`
	HTTPS              bool     `json:"https"`
	SuspiciousPatterns []string `json:"suspicious_patterns"`
	Advice             string   `json:"advice"`
}

func Assess(v Verdict) Assessment {
	a := Assessment{
		SafetyScore:        legitimateScore,
		HTTPS:              v.Features.NoHttps == 0,
		SuspiciousPatterns: []string{},
		Advice:             "This URL appears to be safe.",
	}
	if v.Result == Phishing {
		a.SafetyScore = phishingScore
		a.Advice = "This URL may be dangerous. Do not proceed."
	}
	if v.Features.RandomString == 1 {
		a.SuspiciousPatterns = append(a.SuspiciousPatterns, "Random string detected")
	}
	if v.Features.IpAddress == 1 {
		a.SuspiciousPatterns = append(a.SuspiciousPatterns, "IP address used as host")
	}
	if v.Features.AtSymbol == 1 {
		a.SuspiciousPatterns = append(a.SuspiciousPatterns, "@ symbol in URL")
	}
	return a
}

// RegisteredDomain returns the eTLD+1 of rawURL's host, or the bare host
// when it has no public suffix (IP literals, single labels).
func RegisteredDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ""
	}
	if net.ParseIP(host) != nil {
		return host
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return etld1
}
