package compliance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func TestEvaluate(t *testing.T) {
	allow := NewAllowList(
		[]models.ApprovedLink{{ID: "l1", URL: "https://shop.example.com/Sale"}},
		[]models.ApprovedMedia{{ID: "m1", URL: "https://cdn.example.com/a.png"}},
	)

	tests := []struct {
		name    string
		text    string
		role    models.Role
		allowed bool
		blocked []string
	}{
		{"no urls", "hello there", models.RoleAgent, true, nil},
		{"approved link", "see https://shop.example.com/Sale now", models.RoleAgent, true, nil},
		{"approved link different case", "see HTTPS://SHOP.EXAMPLE.COM/sale", models.RoleAgent, true, nil},
		{"approved media", "https://cdn.example.com/a.png", models.RoleAgent, true, nil},
		{"unapproved", "go to http://evil.example.com", models.RoleAgent, false, []string{"http://evil.example.com"}},
		{"one of two unapproved", "https://shop.example.com/Sale and https://x.io/y", models.RoleAgent, false, []string{"https://x.io/y"}},
		{"prefix is not a match", "https://shop.example.com/Sale/extra", models.RoleAgent, false, []string{"https://shop.example.com/Sale/extra"}},
		{"admin bypass", "http://evil.example.com", models.RoleAdmin, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := Evaluate(tt.text, tt.role, allow)
			assert.Equal(t, tt.allowed, decision.Allowed)
			assert.Equal(t, tt.blocked, decision.Blocked)

			err := Check(tt.text, tt.role, allow)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			var violation *ViolationError
			require.ErrorAs(t, err, &violation)
			assert.Equal(t, tt.blocked, violation.Blocked)
		})
	}
}

func TestEmptyAllowList(t *testing.T) {
	allow := NewAllowList(nil, nil)
	assert.Equal(t, 0, allow.Len())
	assert.True(t, Evaluate("plain text", models.RoleAgent, allow).Allowed)
	assert.False(t, Evaluate("https://a.io", models.RoleAgent, allow).Allowed)
}

func TestExtractURLs(t *testing.T) {
	assert.Equal(t, []string{"http://a.io/x?y=1", "https://b.io"}, ExtractURLs("http://a.io/x?y=1 then https://b.io"))
	assert.Empty(t, ExtractURLs("ftp://nope.io"))
}
