// Package compliance decides which outbound content agents may send.
package compliance

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
)

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// AllowList is the set of approved URLs. Matching is case-insensitive and exact.
type AllowList struct {
	urls map[string]struct{}
}

func NewAllowList(links []models.ApprovedLink, media []models.ApprovedMedia) AllowList {
	urls := make(map[string]struct{}, len(links)+len(media))
	for _, l := range links {
		urls[strings.ToLower(l.URL)] = struct{}{}
	}
	for _, m := range media {
		urls[strings.ToLower(m.URL)] = struct{}{}
	}
	return AllowList{urls: urls}
}

func (a AllowList) Allows(url string) bool {
	_, ok := a.urls[strings.ToLower(url)]
	return ok
}

func (a AllowList) Len() int { return len(a.urls) }

type Decision struct {
	Allowed bool
	Blocked []string
}

// ViolationError is returned when a message contains URLs outside the allow-list.
type ViolationError struct {
	Blocked []string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("only pre-approved links and media may be sent: %s", strings.Join(e.Blocked, ", "))
}

// ExtractURLs returns every http(s) URL in text in order of appearance.
func ExtractURLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}

// Evaluate never fails: admins bypass the list and text without URLs is always allowed.
func Evaluate(text string, role models.Role, allow AllowList) Decision {
	if role == models.RoleAdmin {
		return Decision{Allowed: true}
	}
	blocked := ectolinq.Filter(ExtractURLs(text), func(url string) bool {
		return !allow.Allows(url)
	})
	if len(blocked) > 0 {
		return Decision{Allowed: false, Blocked: blocked}
	}
	return Decision{Allowed: true}
}

// Check is Evaluate returning a *ViolationError for blocked text.
func Check(text string, role models.Role, allow AllowList) error {
	decision := Evaluate(text, role, allow)
	if decision.Allowed {
		return nil
	}
	metrics.ComplianceBlocksTotal.Inc()
	return &ViolationError{Blocked: decision.Blocked}
}
