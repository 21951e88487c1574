// internal/analysis/security/cookies.go
package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
	"github.com/xkilldash9x/comet-monkey/internal/analysis/core"
)

const CheckCookies = "cookies"

// checkCookies inspects each cookie's flags. Cookies registered to another
// site are additionally checked for SameSite=None without Secure.
func checkCookies(cookies []schemas.Cookie, pageURL *url.URL) []schemas.Finding {
	if len(cookies) == 0 {
		return []schemas.Finding{core.Passed(CheckCookies, "No cookies set")}
	}

	site := registrableDomain(pageURL.Hostname())
	var out []schemas.Finding
	for _, c := range cookies {
		var issues []string
		if !c.Secure {
			issues = append(issues, "not HTTPS-only")
		}
		if !c.HTTPOnly {
			issues = append(issues, "accessible from JavaScript")
		}
		if len(issues) > 0 {
			out = append(out, core.Violation("cookie-"+c.Name, schemas.SeverityHigh,
				fmt.Sprintf("Cookie %q is %s", c.Name, strings.Join(issues, " and "))).
				WithDetails("Insecure cookies can be intercepted or read by malicious scripts",
					"Set the Secure and HttpOnly flags on sensitive cookies").
				WithNodes(schemas.Node{Target: c.Domain + c.Path, Message: c.Name}))
		}

		if strings.EqualFold(c.SameSite, "None") && !c.Secure && isThirdParty(c.Domain, site) {
			out = append(out, core.Violation("third-party-cookie-"+c.Name, schemas.SeverityMedium,
				fmt.Sprintf("Third-party cookie %q uses SameSite=None without Secure", c.Name)).
				WithDetails("Browsers reject or leak cross-site cookies that are not Secure",
					"Mark cross-site cookies Secure or drop SameSite=None").
				WithNodes(schemas.Node{Target: c.Domain + c.Path, Message: c.Name}))
		}
	}

	if len(out) == 0 {
		return []schemas.Finding{
			core.Passed(CheckCookies, fmt.Sprintf("All %d cookie(s) have Secure and HttpOnly flags", len(cookies))),
		}
	}
	return out
}

// registrableDomain returns the eTLD+1 of host, or host itself when it has
// none (IP addresses, localhost).
func registrableDomain(host string) string {
	host = strings.ToLower(strings.TrimPrefix(host, "."))
	if net.ParseIP(host) != nil {
		return host
	}
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}

func isThirdParty(cookieDomain, site string) bool {
	if cookieDomain == "" || site == "" {
		return false
	}
	return registrableDomain(cookieDomain) != site
}
