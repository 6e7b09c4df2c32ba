// Package wsdl loads the TestTrack SOAP service description and turns
// it into a Schema: type descriptors, the remote operation set, the
// service endpoint, and an entity factory.
//
// The service's WSDL declares several date-only elements as
// xsd:dateTime, which breaks decoding of the values the service
// actually returns. PatchDocument rewrites those declarations before
// parsing; Load always fetches the document fresh so the patched copy
// never leaks into a shared cache.
package wsdl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// DocumentName is the well-known name of the service description file.
const DocumentName = "ttsoapcgi.wsdl"

// cgiName is the CGI executable the SOAP endpoint lives behind.
const cgiName = "ttsoapcgi.exe"

// NormalizeURL turns a base site URL, a direct CGI URL, or a direct
// WSDL URL into the URL of the service description document.
func NormalizeURL(raw string) (string, error) {
	if strings.HasSuffix(raw, DocumentName) {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("wsdl: parse url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("wsdl: url %q has no scheme or host", raw)
	}
	if strings.HasSuffix(u.Path, cgiName) {
		u.Path = ""
		u.RawQuery = ""
		u.Fragment = ""
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	u.Path += DocumentName
	return u.String(), nil
}

// EndpointFromDocumentURL derives the CGI endpoint address from a
// normalized WSDL document URL. Used when the description itself
// declares no service address.
func EndpointFromDocumentURL(docURL string) string {
	return strings.TrimSuffix(docURL, DocumentName) + cgiName
}

var dateTimeElementRe = regexp.MustCompile(`<element name="([A-Za-z]+)" type="xsd:dateTime"`)

// PatchDocument rewrites WSDL element declarations whose name says
// date-only but whose declared type is xsd:dateTime. The service
// returns bare dates for these, which a conformant dateTime decoder
// rejects.
func PatchDocument(doc []byte) []byte {
	return dateTimeElementRe.ReplaceAllFunc(doc, func(m []byte) []byte {
		sub := dateTimeElementRe.FindSubmatch(m)
		name := string(sub[1])
		if !dateOnlyElement(name) {
			return m
		}
		return []byte(`<element name="` + name + `" type="xsd:date"`)
	})
}

func dateOnlyElement(name string) bool {
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "datetime") {
		return false
	}
	return lower == "date" || strings.HasPrefix(lower, "date") || strings.HasSuffix(lower, "date")
}

// Options configures Load.
type Options struct {
	// HTTPClient overrides the HTTP client used to fetch the document.
	HTTPClient *http.Client
}

// Option mutates Options.
type Option func(*Options)

// WithHTTPClient sets the HTTP client used to fetch the WSDL.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *Options) {
		o.HTTPClient = hc
	}
}

// Load fetches, patches, and parses the service description reachable
// from rawURL (a base site URL, CGI URL, or WSDL URL).
func Load(ctx context.Context, rawURL string, opts ...Option) (*Schema, error) {
	var options Options
	for _, opt := range opts {
		opt(&options)
	}
	hc := options.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	docURL, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return nil, fmt.Errorf("wsdl: build request: %w", err)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wsdl: fetch %s: %w", docURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wsdl: fetch %s: status %d", docURL, resp.StatusCode)
	}
	doc, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("wsdl: read %s: %w", docURL, err)
	}
	schema, err := Parse(PatchDocument(doc))
	if err != nil {
		return nil, fmt.Errorf("wsdl: %s does not describe a TestTrack SOAP service: %w", docURL, err)
	}
	return schema, nil
}
