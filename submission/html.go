package submission

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"golang.org/x/net/html"
)

var excessiveLinesRe = regexp.MustCompile(`\n{3,}`)

// dropped are elements that never hold the student's writing.
var dropped = map[string]bool{
	"script": true, "style": true, "noscript": true, "nav": true,
	"iframe": true, "object": true, "embed": true, "form": true,
	"button": true, "input": true, "head": true,
}

// converter is safe for concurrent use once built.
var converter = func() *md.Converter {
	c := md.NewConverter("", true, nil)
	c.Use(plugin.GitHubFlavored())
	return c
}()

// fromHTML converts an exported HTML document (LMS download, word processor
// "save as web page") into markdown text. The document title is kept as a
// heading when the body does not already start with it.
func fromHTML(raw string) (string, error) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", err
	}

	title := findTitle(doc)
	removeDropped(doc)

	root := doc
	if body := findElement(doc, "body"); body != nil {
		root = body
	}

	var sb strings.Builder
	if err := html.Render(&sb, root); err != nil {
		return "", err
	}

	markdown, err := converter.ConvertString(sb.String())
	if err != nil {
		return "", err
	}
	markdown = cleanMarkdown(markdown)

	if title != "" && !strings.Contains(firstLine(markdown), title) {
		markdown = "# " + title + "\n\n" + markdown
	}
	return strings.TrimSpace(markdown), nil
}

func findTitle(n *html.Node) string {
	if t := findElement(n, "title"); t != nil && t.FirstChild != nil {
		return strings.TrimSpace(t.FirstChild.Data)
	}
	return ""
}

// findElement returns the first element with the given tag name.
func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func removeDropped(n *html.Node) {
	var toRemove []*html.Node
	var collect func(*html.Node)
	collect = func(node *html.Node) {
		if node.Type == html.ElementNode && dropped[node.Data] {
			toRemove = append(toRemove, node)
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)

	for _, node := range toRemove {
		if node.Parent != nil {
			node.Parent.RemoveChild(node)
		}
	}
}

func cleanMarkdown(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	content = strings.Join(lines, "\n")
	return strings.TrimSpace(excessiveLinesRe.ReplaceAllString(content, "\n\n"))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
