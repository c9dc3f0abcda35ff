package render

import (
	"fmt"
	"html"
	"strings"

	"github.com/wisbric/pdpsync/internal/catalog"
)

// RenderHTML is a pure function of (product, context) → html. It is
// deterministic: identical product + context always produce identical
// bytes, which is what makes the content-hash skip-if-unchanged check in
// RenderOne correct. JSON-LD, handlebars partials, and the full page-layout
// mechanism are out of scope — this produces the minimal deterministic
// document the rest of the pipeline needs to hash and store.
func RenderHTML(p catalog.Product, rc Context) []byte {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html lang=\"")
	b.WriteString(html.EscapeString(rc.Locale))
	b.WriteString("\">\n<head>\n<meta charset=\"utf-8\">\n<title>")
	b.WriteString(html.EscapeString(p.Name))
	b.WriteString("</title>\n</head>\n<body>\n")
	fmt.Fprintf(&b, "<div data-sku=%q>\n", p.SKU)
	fmt.Fprintf(&b, "  <h1>%s</h1>\n", html.EscapeString(p.Name))
	fmt.Fprintf(&b, "  <p class=\"description\">%s</p>\n", html.EscapeString(p.Description))
	fmt.Fprintf(&b, "  <p class=\"price\">%.2f</p>\n", p.Price)
	b.WriteString("  <ul class=\"images\">\n")
	for _, img := range p.Images {
		fmt.Fprintf(&b, "    <li><img src=%q></li>\n", html.EscapeString(img))
	}
	b.WriteString("  </ul>\n</div>\n</body>\n</html>\n")
	return []byte(b.String())
}
