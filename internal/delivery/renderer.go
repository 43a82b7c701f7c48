package delivery

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"
	texttemplate "text/template"

	"github.com/cockroachdb/errors"

	"github.com/notifyhub/delivery-queue/internal/domain"
)

// ErrTemplateNotFound is returned when a message names a template that was not loaded.
var ErrTemplateNotFound = errors.New("template not found")

// Renderer turns template messages into concrete bodies. Templates live in one
// directory as <name>.html (rendered into HTMLBody) and <name>.txt (into Body);
// either file alone is enough.
//
// A Renderer built without a directory renders every template as a plain
// "key: value" listing of its variables.
type Renderer struct {
	html *htmltemplate.Template
	text *texttemplate.Template
	dir  string
}

// NewRenderer parses every template in dir. An empty dir yields the fallback renderer.
func NewRenderer(dir string) (*Renderer, error) {
	r := &Renderer{dir: dir}
	if dir == "" {
		return r, nil
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, errors.Wrap(err, "open template dir")
	}

	htmlFiles, err := filepath.Glob(filepath.Join(dir, "*.html"))
	if err != nil {
		return nil, errors.Wrapf(err, "list html templates in %q", dir)
	}
	if len(htmlFiles) > 0 {
		t, err := htmltemplate.New("html").Option("missingkey=zero").ParseFiles(htmlFiles...)
		if err != nil {
			return nil, errors.Wrap(err, "parse html templates")
		}
		r.html = t
	}
	textFiles, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, errors.Wrapf(err, "list text templates in %q", dir)
	}
	if len(textFiles) > 0 {
		t, err := texttemplate.New("text").Option("missingkey=zero").ParseFiles(textFiles...)
		if err != nil {
			return nil, errors.Wrap(err, "parse text templates")
		}
		r.text = t
	}
	return r, nil
}

// Render returns msg with its bodies filled from its template. Messages that
// do not name a template are returned unchanged.
func (r *Renderer) Render(msg domain.NotificationMessage) (domain.NotificationMessage, error) {
	if !msg.IsTemplate() {
		return msg, nil
	}
	if r.dir == "" {
		msg.Body = listing(msg.TemplateVariables)
		return msg, nil
	}

	found := false
	if r.html != nil {
		if t := r.html.Lookup(msg.TemplateName + ".html"); t != nil {
			var buf bytes.Buffer
			if err := t.Execute(&buf, msg.TemplateVariables); err != nil {
				return msg, errors.Wrapf(err, "render %s.html", msg.TemplateName)
			}
			msg.HTMLBody = buf.String()
			found = true
		}
	}
	if r.text != nil {
		if t := r.text.Lookup(msg.TemplateName + ".txt"); t != nil {
			var buf bytes.Buffer
			if err := t.Execute(&buf, msg.TemplateVariables); err != nil {
				return msg, errors.Wrapf(err, "render %s.txt", msg.TemplateName)
			}
			msg.Body = buf.String()
			found = true
		}
	}
	if !found {
		return msg, errors.Wrapf(ErrTemplateNotFound, "%s", msg.TemplateName)
	}
	return msg, nil
}

func listing(vars map[string]any) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(fmt.Sprint(vars[k])))
		b.WriteByte('\n')
	}
	return b.String()
}
