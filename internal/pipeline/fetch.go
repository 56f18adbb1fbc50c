package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/receipt-tracker/internal/domain"
)

// RemoteFetcher downloads an image the caller referenced by URL.
type RemoteFetcher interface {
	Fetch(ctx context.Context, rawURL string) (data []byte, contentType string, err error)
}

// errNonPublicAddress is returned by the dialer for hosts that resolve to
// loopback, private, link-local or otherwise internal addresses.
var errNonPublicAddress = errors.New("non-public address")

// HTTPFetcher fetches images over HTTP(S) from public hosts only. Every
// failure is the caller's problem (bad URL, unreachable host, wrong status)
// and is reported as a ValidationError.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64

	// allowPrivate disables the public-address check; tests use it to
	// reach httptest servers on loopback.
	allowPrivate bool
}

// NewHTTPFetcher creates a fetcher with the given timeout and size cap.
func NewHTTPFetcher(timeout time.Duration, maxBytes int64) *HTTPFetcher {
	f := &HTTPFetcher{maxBytes: maxBytes}

	// The check runs on the resolved address of every dial, redirects
	// included, so DNS names cannot point it at internal hosts.
	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: func(network, address string, _ syscall.RawConn) error {
			if f.allowPrivate {
				return nil
			}
			return checkPublicAddress(address)
		},
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext

	f.client = &http.Client{Timeout: timeout, Transport: transport}
	return f
}

func checkPublicAddress(address string) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return err
	}
	ip = ip.Unmap()
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast() {
		return fmt.Errorf("%w %s", errNonPublicAddress, ip)
	}
	return nil
}

// Fetch implements RemoteFetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, "", domain.Invalid("image_url", "must be an absolute http(s) URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", domain.Invalid("image_url", "%v", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, errNonPublicAddress) {
			return nil, "", domain.Invalid("image_url", "host %s does not resolve to a public address", u.Hostname())
		}
		return nil, "", domain.Invalid("image_url", "fetch failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", domain.Invalid("image_url", "fetch returned status %d", resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", domain.Invalid("image_url", "read failed: %v", err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, "", domain.Invalid("image_url", "image is larger than %d bytes", f.maxBytes)
	}

	return data, resp.Header.Get("Content-Type"), nil
}

// detectImageType resolves the MIME type of an image from, in order, the
// declared type, the bytes and the filename. Only images and PDFs are
// accepted.
func detectImageType(data []byte, declared, filename string) (string, error) {
	candidates := []string{declared, http.DetectContentType(data)}
	if ext := path.Ext(filename); ext != "" {
		candidates = append(candidates, mime.TypeByExtension(strings.ToLower(ext)))
	}

	for _, c := range candidates {
		mediaType, _, err := mime.ParseMediaType(c)
		if err != nil {
			continue
		}
		if strings.HasPrefix(mediaType, "image/") || mediaType == "application/pdf" {
			return mediaType, nil
		}
	}
	return "", domain.Invalid("image", "unsupported content type %q", firstNonEmpty(declared, http.DetectContentType(data)))
}

// extensionFor picks the object-name extension for a MIME type.
func extensionFor(mediaType, filename string) string {
	switch mediaType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "application/pdf":
		return ".pdf"
	}
	if ext := path.Ext(filename); ext != "" {
		return ext
	}
	return fmt.Sprintf(".%s", strings.TrimPrefix(mediaType, "image/"))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
