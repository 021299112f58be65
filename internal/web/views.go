package web

import (
	"context"
	"embed"
	"fmt"
	"io"

	"github.com/JonMunkholm/rapidtable/internal/core"
	"github.com/a-h/templ"
)

//go:embed assets
var assetFiles embed.FS

const (
	htmxOrigin = "https://unpkg.com"
	htmxScript = htmxOrigin + "/htmx.org@2.0.4/dist/htmx.min.js"
)

func esc(s string) string { return templ.EscapeString(s) }

// page wraps body in the document layout.
func page(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
<link rel="stylesheet" href="/assets/rapid_table.css">
<script src="%s" defer></script>
<script src="/assets/rapid_table.js" defer></script>
</head>
<body>
<nav><a href="/">Tables</a></nav>
<h1>%s</h1>
<div id="flash"></div>
<main>
`, esc(title), htmxScript, esc(title)); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "\n</main>\n</body>\n</html>\n")
		return err
	})
}

// tableIndex lists the catalog grouped as Catalog.Info orders it.
func tableIndex(tables []core.TableInfo, path func(key string) string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if len(tables) == 0 {
			_, err := io.WriteString(w, "<p>No tables are registered.</p>")
			return err
		}
		group := ""
		for i, t := range tables {
			if i == 0 || t.Group != group {
				if i > 0 {
					io.WriteString(w, "</ul>\n")
				}
				group = t.Group
				fmt.Fprintf(w, "<h2>%s</h2>\n<ul>\n", esc(group))
			}
			fmt.Fprintf(w, `<li><a href="%s">%s</a></li>`+"\n", esc(path(t.Key)), esc(t.Label))
		}
		_, err := io.WriteString(w, "</ul>\n")
		return err
	})
}

// errorAlert is the flash fragment of a failed request.
func errorAlert(msg core.UserMessage) templ.Component {
	return flash("flash-error", fmt.Sprintf("%s. %s (%s)", msg.Message, msg.Action, msg.Code))
}

// noticeAlert is the flash fragment of a completed bulk action.
func noticeAlert(text string) templ.Component {
	return flash("flash-notice", text)
}

func flash(class, text string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<div class="flash %s" role="alert">%s</div>`, class, esc(text))
		return err
	})
}

// oobFlash renders c into the flash container from an htmx response whose
// main target is elsewhere.
func oobFlash(c templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<div id="flash" hx-swap-oob="innerHTML">`); err != nil {
			return err
		}
		if err := c.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</div>")
		return err
	})
}
