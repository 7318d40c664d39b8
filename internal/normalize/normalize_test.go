package normalize

import (
	"strings"
	"testing"
)

func TestNormalize_Markers(t *testing.T) {
	markup := `<html><head><title>Example</title></head><body>
<p>Intro</p>
<a href="/x">Docs</a>
<a href="/home"><img src="/y" alt="Logo"></a>
</body></html>`

	page, err := Normalize(markup, "https://example.com")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	wantParts := []string{
		"[HYPERLINK: Docs -> https://example.com/x]",
		"IMAGE_ASSET: Logo | Source: https://example.com/y",
		"[HYPERLINK: IMAGE_ASSET: Logo | Source: https://example.com/y -> https://example.com/home]",
	}
	for _, want := range wantParts {
		if !strings.Contains(page.Text, want) {
			t.Errorf("Text missing %q:\n%s", want, page.Text)
		}
	}
	if page.Links != 2 || page.Images != 1 {
		t.Errorf("Links = %d, Images = %d, want 2/1", page.Links, page.Images)
	}
}

func TestNormalize_Layout(t *testing.T) {
	markup := `<html><head><title>  Shop  </title></head><body>
  <h1>Products</h1>

  <script>var x = 1;</script>
  <style>p { color: red }</style>
  <noscript>enable js</noscript>
  <!-- hidden -->
  <ul><li>One</li>  <li>  Two </li></ul>
</body></html>`

	page, err := Normalize(markup, "")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	want := "PAGE TITLE: Shop\n\nProducts\nOne\nTwo"
	if page.Text != want {
		t.Errorf("Text =\n%q\nwant\n%q", page.Text, want)
	}
	if page.Title != "Shop" {
		t.Errorf("Title = %q, want Shop", page.Title)
	}
}

func TestNormalize_Defaults(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		want   string
	}{
		{
			name:   "no title",
			markup: `<html><body><p>hi</p></body></html>`,
			want:   "PAGE TITLE: No title found\n\nhi",
		},
		{
			name:   "empty link text",
			markup: `<html><body><a href="https://other.org/z"> </a></body></html>`,
			want:   "PAGE TITLE: No title found\n\n[HYPERLINK: NO_TEXT -> https://other.org/z]",
		},
		{
			name:   "missing src and alt",
			markup: `<html><body><img></body></html>`,
			want:   "PAGE TITLE: No title found\n\nIMAGE_ASSET:  | Source:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := Normalize(tt.markup, "https://example.com")
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if page.Text != tt.want {
				t.Errorf("Text = %q, want %q", page.Text, tt.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	page, err := Normalize(`<body><a href="../a/b?q=1">rel</a><a href="mailto:x@y.z">mail</a></body>`, "https://example.com/docs/page")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	for _, want := range []string{
		"[HYPERLINK: rel -> https://example.com/a/b?q=1]",
		"[HYPERLINK: mail -> mailto:x@y.z]",
	} {
		if !strings.Contains(page.Body, want) {
			t.Errorf("Body missing %q:\n%s", want, page.Body)
		}
	}
}
