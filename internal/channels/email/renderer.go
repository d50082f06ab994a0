package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"

	"fairground/internal/types"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

// RenderedEmail holds the pre-rendered email content ready for transmission.
type RenderedEmail struct {
	Subject  string
	BodyHTML string
	BodyText string
}

// templateData is the struct passed into body templates.
type templateData struct {
	Subject    string
	AppBaseURL string
	Data       types.Payload
}

// subjectTemplates maps each template tag to its subject line. Subjects are
// parsed as text templates against the job's template payload.
var subjectTemplates = map[types.TemplateTag]string{
	types.TemplateListingApproved:   `Your listing "{{.listing_title}}" is live`,
	types.TemplateListingRejected:   `Your listing "{{.listing_title}}" needs changes`,
	types.TemplateOrderApproved:     `Order confirmed: {{.listing_title}}`,
	types.TemplateOrderShipped:      `Your order is on its way: {{.listing_title}}`,
	types.TemplateAuctionOutbid:     `You've been outbid on {{.listing_title}}`,
	types.TemplateAuctionEndingSoon: `Auction ending soon: {{.listing_title}}`,
	types.TemplateSavedSearchMatch:  `New matches for "{{.query}}"`,
	types.TemplatePayoutSent:        `Your payout is on its way`,
}

// Renderer performs client-side template rendering with embedded template
// files, one HTML and one text body per template tag. Rendering ahead of the
// provider call keeps the vendor integration a dumb pipe and makes templates
// testable without network access.
type Renderer struct {
	htmlTemplates    map[types.TemplateTag]*template.Template
	textTemplates    map[types.TemplateTag]*texttemplate.Template
	subjectTemplates map[types.TemplateTag]*texttemplate.Template
	appBaseURL       string
}

// RendererConfig holds the parameters needed to construct a Renderer.
type RendererConfig struct {
	AppBaseURL string
}

// NewRenderer parses the embedded templates and returns a Renderer.
// Returns an error if any template tag is missing a body or fails to parse.
func NewRenderer(cfg RendererConfig) (*Renderer, error) {
	r := &Renderer{
		htmlTemplates:    make(map[types.TemplateTag]*template.Template),
		textTemplates:    make(map[types.TemplateTag]*texttemplate.Template),
		subjectTemplates: make(map[types.TemplateTag]*texttemplate.Template),
		appBaseURL:       cfg.AppBaseURL,
	}

	funcs := template.FuncMap{"money": formatMoney}

	for tag, subject := range subjectTemplates {
		subjTmpl, err := texttemplate.New(string(tag) + ".subject").Parse(subject)
		if err != nil {
			return nil, fmt.Errorf("parse subject template %q: %w", tag, err)
		}
		r.subjectTemplates[tag] = subjTmpl

		htmlName := fmt.Sprintf("templates/%s.html", tag)
		htmlTmpl, err := template.New(string(tag) + ".html").Funcs(funcs).ParseFS(templateFS, htmlName)
		if err != nil {
			return nil, fmt.Errorf("parse html template %q: %w", tag, err)
		}
		r.htmlTemplates[tag] = htmlTmpl

		textName := fmt.Sprintf("templates/%s.txt", tag)
		textTmpl, err := texttemplate.New(string(tag) + ".txt").Funcs(texttemplate.FuncMap(funcs)).ParseFS(templateFS, textName)
		if err != nil {
			return nil, fmt.Errorf("parse text template %q: %w", tag, err)
		}
		r.textTemplates[tag] = textTmpl
	}

	return r, nil
}

// Render produces the subject and both bodies for the given template tag.
// An unknown tag is a permanent failure; it cannot succeed on retry.
func (r *Renderer) Render(tag types.TemplateTag, data types.Payload) (*RenderedEmail, error) {
	subjTmpl, ok := r.subjectTemplates[tag]
	if !ok {
		return nil, types.NewAppError(
			types.ErrCodeValidationUnknownTemplate,
			fmt.Sprintf("no email template registered for tag %q", tag),
			nil,
		)
	}

	var subject bytes.Buffer
	if err := subjTmpl.Execute(&subject, map[string]any(data)); err != nil {
		return nil, fmt.Errorf("render subject for %q: %w", tag, err)
	}

	td := templateData{
		Subject:    subject.String(),
		AppBaseURL: r.appBaseURL,
		Data:       data,
	}

	var htmlBody bytes.Buffer
	if err := r.htmlTemplates[tag].ExecuteTemplate(&htmlBody, string(tag)+".html", td); err != nil {
		return nil, fmt.Errorf("render html body for %q: %w", tag, err)
	}

	var textBody bytes.Buffer
	if err := r.textTemplates[tag].ExecuteTemplate(&textBody, string(tag)+".txt", td); err != nil {
		return nil, fmt.Errorf("render text body for %q: %w", tag, err)
	}

	return &RenderedEmail{
		Subject:  subject.String(),
		BodyHTML: htmlBody.String(),
		BodyText: textBody.String(),
	}, nil
}

// formatMoney renders an integer cent amount with its currency code, e.g.
// "42.50 USD". Payload numbers arrive as float64 after JSON decoding. The
// currency may be empty for payloads that do not carry one.
func formatMoney(amount any, currency any) string {
	var rendered string
	if cents, ok := amount.(float64); ok {
		rendered = fmt.Sprintf("%.2f %v", cents/100, currency)
	} else {
		rendered = fmt.Sprintf("%v %v", amount, currency)
	}
	return strings.TrimSpace(rendered)
}
