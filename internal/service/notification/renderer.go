package notification

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/osteele/liquid"
	"github.com/shopspring/decimal"

	"github.com/ignite/promo-notifier/internal/domain"
)

const defaultSubject = `🎉 New promotion available: {{ promotion.name }}`

const defaultBody = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{ promotion.name | escape }}</title></head>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Hi {{ user.name | escape }}!</h2>
  <h1>🎉 {{ promotion.name | escape }}</h1>
  <p style="font-size: 32px; color: #27ae60; font-weight: bold;">{{ promotion.discount | discount }} OFF!</p>
  {% if promotion.description != "" %}<p>{{ promotion.description | escape }}</p>{% endif %}
  <p><strong>From:</strong> {{ promotion.start_date }}<br><strong>Until:</strong> {{ promotion.end_date }}</p>
  <p><a href="{{ cta_url }}" style="background: #e74c3c; color: #fff; padding: 12px 24px; text-decoration: none;">Shop now</a></p>
  <hr>
  <p style="font-size: 12px; color: #777;">You are receiving this email because you opted in to promotional notifications.
  You can change your preferences in your account at any time.</p>
</body>
</html>
`

// Renderer produces the subject and HTML body for a promotion email.
type Renderer struct {
	subject *liquid.Template
	body    *liquid.Template
	ctaURL  string
}

// RendererConfig selects the templates. Empty fields use the built-in ones;
// BodyPath, when set, is read from disk.
type RendererConfig struct {
	Subject  string
	BodyPath string
	CTAURL   string
}

// NewRenderer parses the templates once. Syntax errors surface here, not
// during a dispatch.
func NewRenderer(cfg RendererConfig) (*Renderer, error) {
	engine := liquid.NewEngine()
	engine.RegisterFilter("discount", func(v interface{}) string {
		return FormatDiscount(toFloat(v)) + "%"
	})

	subjectSrc := cfg.Subject
	if subjectSrc == "" {
		subjectSrc = defaultSubject
	}
	bodySrc := defaultBody
	if cfg.BodyPath != "" {
		b, err := os.ReadFile(cfg.BodyPath)
		if err != nil {
			return nil, fmt.Errorf("read body template: %w", err)
		}
		bodySrc = string(b)
	}

	subject, err := engine.ParseString(subjectSrc)
	if err != nil {
		return nil, fmt.Errorf("parse subject template: %w", err)
	}
	body, err := engine.ParseString(bodySrc)
	if err != nil {
		return nil, fmt.Errorf("parse body template: %w", err)
	}
	return &Renderer{subject: subject, body: body, ctaURL: cfg.CTAURL}, nil
}

// Render fills the templates for one recipient.
func (r *Renderer) Render(p domain.Promotion, to domain.Recipient) (subject, html string, err error) {
	bindings := map[string]interface{}{
		"promotion": map[string]interface{}{
			"id":          p.ID,
			"name":        p.Name,
			"description": p.Description,
			"discount":    p.Discount,
			"start_date":  p.StartDate.Format("02/01/2006"),
			"end_date":    p.EndDate.Format("02/01/2006"),
		},
		"user": map[string]interface{}{
			"id":    to.UserID,
			"name":  greetingName(to),
			"email": to.Email,
		},
		"cta_url": r.ctaURL,
	}

	subject, serr := r.subject.RenderString(bindings)
	if serr != nil {
		return "", "", fmt.Errorf("render subject: %w", serr)
	}
	html, berr := r.body.RenderString(bindings)
	if berr != nil {
		return "", "", fmt.Errorf("render body: %w", berr)
	}
	return subject, html, nil
}

func greetingName(to domain.Recipient) string {
	if strings.TrimSpace(to.Name) == "" {
		return "there"
	}
	return to.Name
}

// FormatDiscount prints whole numbers without decimals and anything else
// with one decimal place.
func FormatDiscount(v float64) string {
	d := decimal.NewFromFloat(v)
	if d.IsInteger() {
		return d.StringFixed(0)
	}
	// half away from zero: 12.25 renders as 12.3
	return d.StringFixed(1)
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	}
	return 0
}
