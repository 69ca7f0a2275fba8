package mail

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"io"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/ksm-android/resultmail/pkg/recipients"
)

// Subject is shared by both variants.
const Subject = "Application Result for Calon Pengurus KSM Android 2025"

// Variant selects which result mail a batch sends.
type Variant string

const (
	Acceptance Variant = "acceptance"
	Rejection  Variant = "rejection"
)

// Variants lists every known variant in a stable order.
var Variants = []Variant{Acceptance, Rejection}

// ParseVariant accepts a variant name in any case.
func ParseVariant(s string) (Variant, error) {
	switch Variant(strings.ToLower(strings.TrimSpace(s))) {
	case Acceptance:
		return Acceptance, nil
	case Rejection:
		return Rejection, nil
	}
	return "", fmt.Errorf("unknown variant %q (expected acceptance or rejection)", s)
}

// RequiredFields are the recipient columns the variant's template reads.
func (v Variant) RequiredFields() []string {
	switch v {
	case Acceptance:
		return []string{recipients.ColumnName, recipients.ColumnRole, recipients.ColumnDivision}
	case Rejection:
		return []string{recipients.ColumnName}
	}
	return nil
}

// RenderError is returned when a recipient cannot be rendered, usually
// because a required column is missing or empty.
type RenderError struct {
	Variant Variant
	Err     error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("failed to render %s mail: %v", e.Variant, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

var (
	//go:embed templates/*.html templates/*.txt
	templateFS embed.FS

	textTemplates = map[Variant]*template.Template{}
	htmlTemplates = map[Variant]*htmltemplate.Template{}
	// plainTemplates render the text/plain alternative. Plain text needs no
	// escaping, so there is one set for both renderer modes.
	plainTemplates = map[Variant]*template.Template{}
)

func init() {
	for _, v := range Variants {
		htmlFiles := []string{"templates/layout.html", "templates/" + string(v) + ".html"}
		txtFiles := []string{"templates/layout.txt", "templates/" + string(v) + ".txt"}

		textTemplates[v] = template.Must(template.New(string(v)).
			Funcs(txtFuncMap()).
			Option("missingkey=error").
			ParseFS(templateFS, htmlFiles...))

		htmlTemplates[v] = htmltemplate.Must(htmltemplate.New(string(v)).
			Funcs(htmlFuncMap()).
			Option("missingkey=error").
			ParseFS(templateFS, htmlFiles...))

		plainTemplates[v] = template.Must(template.New(string(v)).
			Funcs(txtFuncMap()).
			Option("missingkey=error").
			ParseFS(templateFS, txtFiles...))
	}
}

// txtFuncMap is sprig plus required.
func txtFuncMap() template.FuncMap {
	funcMap := sprig.TxtFuncMap()
	funcMap["required"] = requiredFunc
	return funcMap
}

func htmlFuncMap() htmltemplate.FuncMap {
	funcMap := sprig.HtmlFuncMap()
	funcMap["required"] = requiredFunc
	return funcMap
}

// requiredFunc fails rendering when val is nil or an empty string.
func requiredFunc(msg string, val any) (any, error) {
	if val == nil {
		return nil, fmt.Errorf("required value is missing: %s", msg)
	}
	if s, ok := val.(string); ok && s == "" {
		return nil, fmt.Errorf("required value is empty: %s", msg)
	}
	return val, nil
}

type executor interface {
	ExecuteTemplate(w io.Writer, name string, data any) error
}

// Body is a rendered mail: the HTML part and its plain-text alternative.
type Body struct {
	HTML string
	Text string
}

// Renderer turns a recipient into the body of a variant.
//
// Recipient values are inserted verbatim by default, so markup in a name
// ends up in the mail as markup. EscapeHTML switches to contextual escaping.
type Renderer struct {
	EscapeHTML bool
}

func NewRenderer(escapeHTML bool) *Renderer {
	return &Renderer{EscapeHTML: escapeHTML}
}

// Render executes both parts of v for rcpt. Any missing or empty required
// column fails with a *RenderError.
func (r *Renderer) Render(v Variant, rcpt recipients.Recipient) (Body, error) {
	var exec executor
	if r != nil && r.EscapeHTML {
		if h, ok := htmlTemplates[v]; ok {
			exec = h
		}
	} else if t, ok := textTemplates[v]; ok {
		exec = t
	}
	plain, ok := plainTemplates[v]
	if exec == nil || !ok {
		return Body{}, &RenderError{Variant: v, Err: fmt.Errorf("no template for variant %q", v)}
	}

	fields := rcpt.Fields()
	var html, text bytes.Buffer
	if err := exec.ExecuteTemplate(&html, "layout", fields); err != nil {
		return Body{}, &RenderError{Variant: v, Err: err}
	}
	if err := plain.ExecuteTemplate(&text, "layout", fields); err != nil {
		return Body{}, &RenderError{Variant: v, Err: err}
	}
	return Body{HTML: html.String(), Text: text.String()}, nil
}
