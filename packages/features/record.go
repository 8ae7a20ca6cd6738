// Package features derives the fixed lexical feature vector the phishing
// classifier is trained on from a raw URL string.
package features

// NumFeatures is the width of a Record.
const NumFeatures = 19

// Names lists the classifier columns in the order the model expects them.
// Record's field order and JSON encoding follow the same order.
var Names = [NumFeatures]string{
	"NumDots",
	"SubdomainLevel",
	"PathLevel",
	"UrlLength",
	"NumDash",
	"NumDashInHostname",
	"AtSymbol",
	"TildeSymbol",
	"NumUnderscore",
	"NumPercent",
	"NumQueryComponents",
	"NumAmpersand",
	"NumHash",
	"NumNumericChars",
	"NoHttps",
	"RandomString",
	"IpAddress",
	"DomainInSubdomains",
	"DomainInPaths",
}

// Record is one URL's feature vector. Flags are encoded as 0/1; no field is
// ever negative. The zero value is the fallback record returned when
// extraction fails.
type Record struct {
	NumDots            int `json:"NumDots"`
	SubdomainLevel     int `json:"SubdomainLevel"`
	PathLevel          int `json:"PathLevel"`
	UrlLength          int `json:"UrlLength"`
	NumDash            int `json:"NumDash"`
	NumDashInHostname  int `json:"NumDashInHostname"`
	AtSymbol           int `json:"AtSymbol"`
	TildeSymbol        int `json:"TildeSymbol"`
	NumUnderscore      int `json:"NumUnderscore"`
	NumPercent         int `json:"NumPercent"`
	NumQueryComponents int `json:"NumQueryComponents"`
	NumAmpersand       int `json:"NumAmpersand"`
	NumHash            int `json:"NumHash"`
	NumNumericChars    int `json:"NumNumericChars"`
	NoHttps            int `json:"NoHttps"`
	RandomString       int `json:"RandomString"`
	IpAddress          int `json:"IpAddress"`
	DomainInSubdomains int `json:"DomainInSubdomains"`
	DomainInPaths      int `json:"DomainInPaths"`
}

// Values returns the fields in Names order.
func (r Record) Values() [NumFeatures]int {
	return [NumFeatures]int{
		r.NumDots,
		r.SubdomainLevel,
		r.PathLevel,
		r.UrlLength,
		r.NumDash,
		r.NumDashInHostname,
		r.AtSymbol,
		r.TildeSymbol,
		r.NumUnderscore,
		r.NumPercent,
		r.NumQueryComponents,
		r.NumAmpersand,
		r.NumHash,
		r.NumNumericChars,
		r.NoHttps,
		r.RandomString,
		r.IpAddress,
		r.DomainInSubdomains,
		r.DomainInPaths,
	}
}

// Vector returns the fields in Names order as a model input row.
func (r Record) Vector() []float64 {
	vals := r.Values()
	row := make([]float64, NumFeatures)
	for i, v := range vals {
		row[i] = float64(v)
	}
	return row
}

// IsZero reports whether every field is 0, which is what a failed
// extraction produces.
func (r Record) IsZero() bool {
	return r == Record{}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
