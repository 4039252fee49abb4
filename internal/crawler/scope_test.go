package crawler

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func TestInScope(t *testing.T) {
	t.Parallel()
	scope, err := NewScope("https://example.com")
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"same host page", "https://example.com/about/company", true},
		{"base url", "https://example.com", true},
		{"other host", "https://other.example.org/about", false},
		{"subdomain is a different host", "https://www.example.com/about", false},
		{"fragment", "https://example.com/page#section", false},
		{"pdf", "https://example.com/reports/annual.pdf", false},
		{"uppercase extension", "https://example.com/logo.PNG", false},
		{"stylesheet", "https://example.com/static/site.css", false},
		{"script", "https://example.com/static/app.js", false},
		{"archive", "https://example.com/downloads/a.zip", false},
		{"video", "https://example.com/media/intro.mp4", false},
		{"invalid url", "ht tp://broken", false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := scope.InScope(tt.url); got != tt.want {
				t.Fatalf("InScope(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestExtractLinks(t *testing.T) {
	t.Parallel()
	scope, err := NewScope("https://example.com")
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	html := `<html><body>
		<a href="/news/update">news</a>
		<a href="https://example.com/about/">about</a>
		<a href="/news/update">duplicate</a>
		<a href="https://elsewhere.com/page">external</a>
		<a href="/brochure.pdf">document</a>
		<a href="/page#frag">fragment</a>
		<a href="contact">relative</a>
	</body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	base, _ := url.Parse("https://example.com/news/")

	got := scope.ExtractLinks(doc, base)
	want := []string{
		"https://example.com/news/update",
		"https://example.com/about/",
		"https://example.com/news/contact",
	}
	if len(got) != len(want) {
		t.Fatalf("ExtractLinks returned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("link[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
