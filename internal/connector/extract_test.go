package connector

import (
	"bytes"
	"strings"
	"testing"
)

func TestNormalizeText(t *testing.T) {
	in := "Line one   with    spaces\n\n\n\n\nLine two\t\ttabbed\r\n"
	out := NormalizeText(in)

	if strings.Contains(out, "   ") {
		t.Fatalf("runs of spaces survive: %q", out)
	}
	if strings.Contains(out, "\n\n\n") {
		t.Fatalf("runs of blank lines survive: %q", out)
	}
	if !strings.Contains(out, "Line one with spaces") {
		t.Fatalf("content damaged: %q", out)
	}
}

func TestReadableTextStripsChrome(t *testing.T) {
	html := `<html><head><script>var x = 1;</script><style>p{color:red}</style></head>
	<body>
	<nav>Home | About</nav>
	<h1>Page Title</h1>
	<p>First paragraph of real content.</p>
	<ul><li>bullet point</li></ul>
	<footer>copyright</footer>
	</body></html>`

	text, err := ReadableText(bytes.NewReader([]byte(html)))
	if err != nil {
		t.Fatalf("readable text: %v", err)
	}
	if strings.Contains(text, "var x") || strings.Contains(text, "color:red") {
		t.Fatalf("script/style leaked: %q", text)
	}
	if strings.Contains(text, "Home | About") || strings.Contains(text, "copyright") {
		t.Fatalf("nav/footer leaked: %q", text)
	}
	for _, want := range []string{"Page Title", "First paragraph of real content.", "bullet point"} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in %q", want, text)
		}
	}
}

func TestExtractFileUnsupportedExtension(t *testing.T) {
	if _, err := ExtractFile("whatever.exe"); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestRegistryLookup(t *testing.T) {
	r := &Registry{connectors: map[string]Connector{}}
	r.register(NewAPIConnector())

	if _, err := r.Lookup("api"); err != nil {
		t.Fatalf("lookup api: %v", err)
	}
	if _, err := r.Lookup("carrier_pigeon"); err == nil {
		t.Fatal("expected error for unknown type")
	}
	if types := r.Types(); len(types) != 1 || types[0] != "api" {
		t.Fatalf("types = %v", types)
	}
}
