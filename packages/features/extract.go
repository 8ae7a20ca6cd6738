package features

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	ErrEmptyURL = errors.New("empty url")

	ipv4Pattern      = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}$`)
	vowelPairPattern = regexp.MustCompile(`[aeiou]{2,}`)
)

// randomPathMinLength is the slash-free path length a path must exceed
// before it can be flagged as a random string.
const randomPathMinLength = 15

// ExtractionFailure wraps any fault met while deriving features. It never
// escapes Extract as anything but an error value next to the zero Record.
type ExtractionFailure struct {
	URL string
	Err error
}

func (e *ExtractionFailure) Error() string {
	return fmt.Sprintf("feature extraction failed for %q: %v", e.URL, e.Err)
}

func (e *ExtractionFailure) Unwrap() error { return e.Err }

// components holds the parts of a URL the features are computed over.
// Path and query keep their original percent-encoding.
type components struct {
	hostname string
	path     string
	query    string
}

// Extract computes the feature record for rawURL. It is total: when the URL
// cannot be decomposed the zero Record is returned together with an
// *ExtractionFailure for the caller to log. Extract holds no state and is
// safe for concurrent use.
func Extract(rawURL string) (rec Record, err error) {
	defer func() {
		if p := recover(); p != nil {
			rec = Record{}
			err = &ExtractionFailure{URL: rawURL, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	if rawURL == "" {
		return Record{}, &ExtractionFailure{URL: rawURL, Err: ErrEmptyURL}
	}

	parts, err := split(rawURL)
	if err != nil {
		return Record{}, &ExtractionFailure{URL: rawURL, Err: err}
	}
	return compute(rawURL, parts), nil
}

// MustExtract is Extract without the diagnostic error.
func MustExtract(rawURL string) Record {
	rec, _ := Extract(rawURL)
	return rec
}

func split(rawURL string) (components, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return components{}, err
	}

	path := u.RawPath
	if path == "" {
		// EscapedPath reproduces the input when no RawPath was kept.
		path = u.EscapedPath()
	}
	if u.Opaque != "" {
		path = u.Opaque
	}
	if slices.Contains(paramSchemes, strings.ToLower(u.Scheme)) {
		path = stripParams(path)
	}

	return components{
		hostname: strings.ToLower(u.Hostname()),
		path:     path,
		query:    u.RawQuery,
	}, nil
}

// paramSchemes use ";params" on the last path segment, which is not part
// of the path.
var paramSchemes = []string{"", "ftp", "hdl", "prospero", "http", "imap", "https", "shttp", "rtsp", "rtspu", "sip", "sips", "mms", "sftp", "tel"}

func stripParams(path string) string {
	lastSlash := strings.LastIndex(path, "/")
	if i := strings.Index(path[lastSlash+1:], ";"); i >= 0 {
		return path[:lastSlash+1+i]
	}
	return path
}

func compute(rawURL string, c components) Record {
	labels := hostLabels(c.hostname)
	root := rootDomain(labels)

	rec := Record{
		NumDots:            strings.Count(rawURL, "."),
		SubdomainLevel:     subdomainLevel(c.hostname),
		PathLevel:          strings.Count(c.path, "/"),
		UrlLength:          utf8.RuneCountInString(rawURL),
		NumDash:            strings.Count(rawURL, "-"),
		NumDashInHostname:  strings.Count(c.hostname, "-"),
		AtSymbol:           boolToInt(strings.Contains(rawURL, "@")),
		TildeSymbol:        boolToInt(strings.Contains(rawURL, "~")),
		NumUnderscore:      strings.Count(rawURL, "_"),
		NumPercent:         strings.Count(rawURL, "%"),
		NumQueryComponents: strings.Count(c.query, "="),
		NumAmpersand:       strings.Count(rawURL, "&"),
		NumHash:            strings.Count(rawURL, "#"),
		NumNumericChars:    countDigits(rawURL),
		NoHttps:            boolToInt(!strings.HasPrefix(rawURL, "https")),
		RandomString:       boolToInt(isRandomPath(c.path)),
		IpAddress:          boolToInt(ipv4Pattern.MatchString(c.hostname)),
	}

	if root != "" {
		rec.DomainInSubdomains = boolToInt(slices.Contains(labels[:len(labels)-2], root))
		rec.DomainInPaths = boolToInt(strings.Contains(c.path, root))
	}
	return rec
}

func hostLabels(hostname string) []string {
	if hostname == "" {
		return nil
	}
	return strings.Split(hostname, ".")
}

// rootDomain is the second-to-last hostname label, or "" when the hostname
// has fewer than two labels.
func rootDomain(labels []string) string {
	if len(labels) < 2 {
		return ""
	}
	return labels[len(labels)-2]
}

func subdomainLevel(hostname string) int {
	if hostname == "" {
		return 0
	}
	return max(strings.Count(hostname, ".")-1, 0)
}

// isRandomPath flags long paths with no lower-case vowel pair anywhere.
func isRandomPath(path string) bool {
	stripped := strings.ReplaceAll(path, "/", "")
	if utf8.RuneCountInString(stripped) <= randomPathMinLength {
		return false
	}
	return !vowelPairPattern.MatchString(path)
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}
