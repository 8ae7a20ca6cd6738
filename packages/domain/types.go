// Package domain
package domain

import (
	"time"
	"trinayana/packages/features"

	"github.com/PuerkitoBio/goquery"
)

type Label string

const (
	Phishing   Label = "Phishing"
	Legitimate Label = "Legitimate"
)

// LabelFor maps a raw classifier output to its label. Only 1 means phishing.
func LabelFor(prediction int) Label {
	if prediction == 1 {
		return Phishing
	}
	return Legitimate
}

type PredictionRequest struct {
	URL string `json:"url"`
}

// Verdict is the /predict/url response body.
type Verdict struct {
	Result   Label           `json:"result"`
	Features features.Record `json:"features"`
}

type ScanRecord struct {
	ID               int64           `json:"id,omitempty"`
	URL              string          `json:"url"`
	RegisteredDomain string          `json:"registered_domain,omitempty"`
	Label            Label           `json:"result"`
	Features         features.Record `json:"features"`
	ScannedAt        time.Time       `json:"scanned_at"`
}

type FetchedPage struct {
	IsNonHTML  bool
	FinalURL   string
	Title      string
	Language   string // ISO 639-3, empty when undetected
	GoqueryDoc *goquery.Document
}

type LinkVerdict struct {
	URL      string `json:"url"`
	External bool   `json:"external"`
	Result   Label  `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
}

type PageScan struct {
	URL              string        `json:"url"`
	FinalURL         string        `json:"final_url"`
	RegisteredDomain string        `json:"registered_domain,omitempty"`
	Title            string        `json:"title,omitempty"`
	Language         string        `json:"language,omitempty"`
	Links            []LinkVerdict `json:"links"`
	PhishingCount    int           `json:"phishing_count"`
	Truncated        bool          `json:"truncated"`
}
