package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/optimode/reachkit/internal/metrics"
	"github.com/optimode/reachkit/internal/provider"
	"github.com/optimode/reachkit/types"
)

// Yahoo's signup flow validates candidate identifiers before an account
// is created: an identifier that is "not available" is one that already
// exists. The probe captures the signup page's CSRF token (acrumb) and
// session cookies, then asks the validation endpoint about the local part.
const (
	defaultSignupURL   = "https://login.yahoo.com/account/create"
	defaultValidateURL = "https://login.yahoo.com/account/module/create?validateField=userId"
	defaultUserAgent   = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"

	defaultProbeTimeout = 10 * time.Second
)

// acrumbPatterns cover the token's known page placements. Yahoo has moved
// it between an input attribute and an inline JSON blob over the years.
var acrumbPatterns = []*regexp.Regexp{
	regexp.MustCompile(`name="acrumb"\s+value="([^"]+)"`),
	regexp.MustCompile(`value="([^"]+)"\s+name="acrumb"`),
	regexp.MustCompile(`"acrumb"\s*:\s*"([^"]+)"`),
}

// existsErrorNames are the validation answers that prove the identifier
// is taken, i.e. the mailbox exists.
var existsErrorNames = map[string]struct{}{
	"IDENTIFIER_NOT_AVAILABLE":  {},
	"IDENTIFIER_ALREADY_EXISTS": {},
	"IDENTIFIER_EXISTS":         {},
}

// YahooOptions configures the signup probe. Zero values mean production
// endpoints and defaults; tests point the URLs at httptest servers.
type YahooOptions struct {
	SignupURL   string
	ValidateURL string
	UserAgent   string
	Timeout     time.Duration
	Client      *http.Client
	Logger      zerolog.Logger
}

// Yahoo probes Yahoo-family mailboxes through the signup form.
type Yahoo struct {
	signupURL   string
	validateURL string
	userAgent   string
	timeout     time.Duration
	client      *http.Client
	log         zerolog.Logger
}

// NewYahoo builds the probe.
func NewYahoo(opts YahooOptions) *Yahoo {
	y := &Yahoo{
		signupURL:   opts.SignupURL,
		validateURL: opts.ValidateURL,
		userAgent:   opts.UserAgent,
		timeout:     opts.Timeout,
		client:      opts.Client,
		log:         opts.Logger,
	}
	if y.signupURL == "" {
		y.signupURL = defaultSignupURL
	}
	if y.validateURL == "" {
		y.validateURL = defaultValidateURL
	}
	if y.userAgent == "" {
		y.userAgent = defaultUserAgent
	}
	if y.timeout <= 0 {
		y.timeout = defaultProbeTimeout
	}
	if y.client == nil {
		y.client = &http.Client{}
	}
	return y
}

func (y *Yahoo) Provider() types.Provider { return types.ProviderYahoo }

func (y *Yahoo) Applies(domain string) bool { return provider.IsYahoo(domain) }

// Probe asks Yahoo's signup validation about local@domain.
func (y *Yahoo) Probe(ctx context.Context, local, domain string) types.Probe {
	out := types.Probe{Provider: types.ProviderYahoo}
	if !y.Applies(domain) {
		out.Error = "Not a Yahoo domain"
		metrics.Probe(string(types.ProviderYahoo), false, true)
		return out
	}

	ctx, cancel := context.WithTimeout(ctx, y.timeout)
	defer cancel()

	acrumb, cookies, err := y.fetchSession(ctx)
	if err != nil {
		out.Error = err.Error()
		metrics.Probe(string(types.ProviderYahoo), false, true)
		return out
	}

	out = y.validate(ctx, local, acrumb, cookies)
	metrics.Probe(string(types.ProviderYahoo), out.IsDeliverable, out.Error != "")
	return out
}

// fetchSession loads the signup page and captures the acrumb token plus
// the session cookies the validation endpoint requires.
func (y *Yahoo) fetchSession(ctx context.Context) (string, []*http.Cookie, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.signupURL, nil)
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("User-Agent", y.userAgent)

	resp, err := y.client.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", nil, err
	}

	for _, re := range acrumbPatterns {
		if m := re.FindSubmatch(body); m != nil {
			return string(m[1]), resp.Cookies(), nil
		}
	}
	return "", nil, fmt.Errorf("no acrumb token on signup page")
}

// validateResponse is the shape of the endpoint's JSON answer. Yahoo puts
// the identifier verdict in either field depending on the page version.
type validateResponse struct {
	Errors []struct {
		Name  string `json:"name"`
		Error string `json:"error"`
	} `json:"errors"`
}

// validate posts the candidate identifier and interprets the answer.
func (y *Yahoo) validate(ctx context.Context, local, acrumb string, cookies []*http.Cookie) types.Probe {
	out := types.Probe{Provider: types.ProviderYahoo}

	form := url.Values{}
	form.Set("specId", "yidregsimplified")
	form.Set("acrumb", acrumb)
	form.Set("userId", local)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, y.validateURL, strings.NewReader(form.Encode()))
	if err != nil {
		out.Error = err.Error()
		return out
	}
	req.Header.Set("User-Agent", y.userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := y.client.Do(req)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		out.Error = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		return out
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		out.Error = err.Error()
		return out
	}

	var parsed validateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		y.log.Debug().Err(err).Msg("yahoo probe: malformed validation response")
		return out
	}

	// No complaints about the identifier: it is free, so no such mailbox.
	if len(parsed.Errors) == 0 {
		out.IsValid = true
		return out
	}

	for _, e := range parsed.Errors {
		if _, ok := existsErrorNames[e.Error]; ok {
			out.IsValid = true
			out.IsDeliverable = true
			return out
		}
		if _, ok := existsErrorNames[e.Name]; ok {
			out.IsValid = true
			out.IsDeliverable = true
			return out
		}
	}

	// The endpoint objected for another reason (rate limit, malformed
	// identifier); surface the first error name verbatim.
	name := parsed.Errors[0].Error
	if name == "" {
		name = parsed.Errors[0].Name
	}
	out.Error = name
	return out
}
