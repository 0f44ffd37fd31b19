package notification

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/promo-notifier/internal/domain"
)

func TestFormatDiscount(t *testing.T) {
	assert.Equal(t, "25", FormatDiscount(25))
	assert.Equal(t, "12.5", FormatDiscount(12.5))
	assert.Equal(t, "0", FormatDiscount(0))
	assert.Equal(t, "33.3", FormatDiscount(33.333))
	assert.Equal(t, "12.3", FormatDiscount(12.25))
}

func TestRendererEscapesUserInput(t *testing.T) {
	r, err := NewRenderer(RendererConfig{})
	require.NoError(t, err)

	p := domain.Promotion{
		Name:      "Summer <Sale>",
		Discount:  12.5,
		StartDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
	}
	subject, html, err := r.Render(p, domain.Recipient{UserID: "u1", Email: "a@example.com"})
	require.NoError(t, err)

	assert.Equal(t, "🎉 New promotion available: Summer <Sale>", subject)
	assert.Contains(t, html, "Summer &lt;Sale&gt;")
	assert.Contains(t, html, "12.5% OFF")
	assert.Contains(t, html, "Hi there!")
	assert.Contains(t, html, "01/06/2024")
}

func TestRendererCustomTemplates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "body.liquid")
	require.NoError(t, os.WriteFile(path, []byte(`{{ user.name }}: {{ promotion.discount | discount }} at {{ cta_url }}`), 0o644))

	r, err := NewRenderer(RendererConfig{Subject: "{{ promotion.name }}!", BodyPath: path, CTAURL: "https://x.test"})
	require.NoError(t, err)

	subject, html, err := r.Render(domain.Promotion{Name: "Flash", Discount: 40}, domain.Recipient{Name: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "Flash!", subject)
	assert.Equal(t, "Ana: 40% at https://x.test", html)
}

func TestRendererRejectsBadTemplate(t *testing.T) {
	_, err := NewRenderer(RendererConfig{Subject: "{% if promotion.name %}unterminated"})
	assert.Error(t, err)

	_, err = NewRenderer(RendererConfig{BodyPath: "/nonexistent/body.liquid"})
	assert.Error(t, err)
}
