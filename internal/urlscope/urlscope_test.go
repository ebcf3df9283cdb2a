package urlscope

import (
	"errors"
	"testing"
)

func TestCanonicalize(t *testing.T) {
	t.Parallel()

	t.Run("default policy strips only the fragment", func(t *testing.T) {
		t.Parallel()

		c := NewCanonicalizer()
		tests := []struct {
			in   string
			want CanonicalURL
		}{
			{"http://example.com/page#frag", "http://example.com/page"},
			{"http://example.com/page", "http://example.com/page"},
			{"https://example.com/a/?q=1#x", "https://example.com/a/?q=1"},
			{"http://example.com/", "http://example.com/"},
			{"http://example.com", "http://example.com"},
			{"  http://example.com/x  ", "http://example.com/x"},
			{"http://example.com:8080/p#", "http://example.com:8080/p"},
		}
		for _, tt := range tests {
			got, err := c.Canonicalize(tt.in)
			if err != nil {
				t.Fatalf("Canonicalize(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Canonicalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		}
	})

	t.Run("strict policy", func(t *testing.T) {
		t.Parallel()

		c := NewStrictCanonicalizer()
		if !c.Strict() {
			t.Fatal("expected strict canonicalizer")
		}
		tests := []struct {
			in   string
			want CanonicalURL
		}{
			{"https://example.com/docs/", "http://www.example.com/docs"},
			{"http://www.example.com/docs#top", "http://www.example.com/docs"},
			{"http://example.com//", "http://www.example.com"},
			{"http://127.0.0.1:8080/a/", "http://127.0.0.1:8080/a"},
			{"http://example.com:8080/?q=1", "http://www.example.com:8080?q=1"},
		}
		for _, tt := range tests {
			got, err := c.Canonicalize(tt.in)
			if err != nil {
				t.Fatalf("Canonicalize(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Canonicalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		}
	})

	t.Run("idempotent under every policy", func(t *testing.T) {
		t.Parallel()

		inputs := []string{
			"http://example.com/page#frag",
			"https://Example.com/a/b/?x=1&y=2#z",
			"http://example.com//docs//",
			"http://example.com:81",
			"http://www.example.com/%7Euser/",
			"http://example.com/a%2Fb/",
		}
		policies := map[string]*Canonicalizer{
			"default": NewCanonicalizer(),
			"strict":  NewStrictCanonicalizer(),
			"scheme":  NewCanonicalizer(WithForceScheme("https")),
			"www":     NewCanonicalizer(WithWWWPrefix()),
			"slash":   NewCanonicalizer(WithTrimTrailingSlash()),
		}
		for name, c := range policies {
			for _, in := range inputs {
				once, err := c.Canonicalize(in)
				if err != nil {
					t.Fatalf("%s: Canonicalize(%q) error = %v", name, in, err)
				}
				twice, err := c.Canonicalize(once.String())
				if err != nil {
					t.Fatalf("%s: Canonicalize(%q) error = %v", name, once, err)
				}
				if once != twice {
					t.Errorf("%s: not idempotent: %q -> %q -> %q", name, in, once, twice)
				}
			}
		}
	})

	t.Run("rejects malformed and relative urls", func(t *testing.T) {
		t.Parallel()

		c := NewCanonicalizer()
		for _, in := range []string{"", "   ", "/about", "example.com/x", "http://[::1", "#top"} {
			_, err := c.Canonicalize(in)
			if !errors.Is(err, ErrMalformedURL) {
				t.Errorf("Canonicalize(%q) error = %v, want ErrMalformedURL", in, err)
			}
		}
	})

	t.Run("rejects non http schemes", func(t *testing.T) {
		t.Parallel()

		c := NewCanonicalizer()
		for _, in := range []string{"ftp://example.com/file", "mailto://user@example.com"} {
			_, err := c.Canonicalize(in)
			if !errors.Is(err, ErrUnsupportedScheme) {
				t.Errorf("Canonicalize(%q) error = %v, want ErrUnsupportedScheme", in, err)
			}
		}
	})

	t.Run("ignores unsupported forced scheme", func(t *testing.T) {
		t.Parallel()

		c := NewCanonicalizer(WithForceScheme("ftp"))
		if c.Strict() {
			t.Error("ftp must not enable a forced scheme")
		}
	})
}

func TestIsAbsoluteHTTPURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{"http://example.com", true},
		{"https://example.com/a", true},
		{"/about", true},
		{"about.html", true},
		{"//cdn.example.com/x", true},
		{"mailto:user@example.com", false},
		{"javascript:void(0)", false},
		{"ftp://example.com", false},
		{"", false},
		{"  ", false},
	}
	for _, tt := range tests {
		if got := IsAbsoluteHTTPURL(tt.in); got != tt.want {
			t.Errorf("IsAbsoluteHTTPURL(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsRelative(t *testing.T) {
	t.Parallel()

	if !IsRelative("/about") {
		t.Error("/about should be relative")
	}
	if !IsRelative("page.html?x=1") {
		t.Error("page.html should be relative")
	}
	if IsRelative("http://example.com/about") {
		t.Error("absolute url reported as relative")
	}
	if IsRelative("//cdn.example.com/x") {
		t.Error("scheme-relative url has a host")
	}
}

func TestPathDepth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int
	}{
		{"http://example.com", 0},
		{"http://example.com/", 1},
		{"http://example.com/a", 1},
		{"http://example.com/a/b", 2},
		{"http://example.com/a/b/?next=/c/d", 3},
	}
	for _, tt := range tests {
		if got := PathDepth(tt.in); got != tt.want {
			t.Errorf("PathDepth(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRegistrableDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"http://example.com/", "example.com", true},
		{"https://a.b.example.com/x", "example.com", true},
		{"http://shop.example.co.uk", "example.co.uk", true},
		{"http://WWW.Example.COM", "example.com", true},
		{"http://127.0.0.1:8080/", "", false},
		{"http://[::1]/", "", false},
		{"http://localhost:3000/", "", false},
		{"/relative", "", false},
	}
	for _, tt := range tests {
		got, ok := RegistrableDomain(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("RegistrableDomain(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestScope(t *testing.T) {
	t.Parallel()

	t.Run("root host equality without configured domain", func(t *testing.T) {
		t.Parallel()

		s := NewScope("http://example.com/", "")
		if s.RootHost() != "example.com" {
			t.Errorf("RootHost() = %q", s.RootHost())
		}
		if s.Domain() != "example.com" {
			t.Errorf("Domain() = %q", s.Domain())
		}
		if !s.IsInternal("http://example.com/about") {
			t.Error("same host should be internal")
		}
		if s.IsInternal("http://blog.example.com/") {
			t.Error("subdomain must not be internal without a configured domain")
		}
		if s.IsInternal("http://other.com/") {
			t.Error("other host must not be internal")
		}
		if !s.SameDomain("https://blog.example.com/post") {
			t.Error("subdomain shares the registrable domain")
		}
		if s.SameDomain("http://example.org/") {
			t.Error("different registrable domain")
		}
	})

	t.Run("configured domain matches as substring", func(t *testing.T) {
		t.Parallel()

		s := NewScope("http://www.example.com/", "example.com")
		if !s.IsInternal("http://blog.example.com/x") {
			t.Error("subdomain should be internal with configured domain")
		}
		if !s.IsInternal("http://notexample.com/") {
			t.Error("substring match includes notexample.com")
		}
		if s.IsInternal("http://other.com/") {
			t.Error("other.com must not be internal")
		}
	})

	t.Run("ip root falls back to host equality", func(t *testing.T) {
		t.Parallel()

		s := NewScope("http://127.0.0.1:8080/", "")
		if s.Domain() != "" {
			t.Errorf("Domain() = %q, want empty", s.Domain())
		}
		if !s.SameDomain("http://127.0.0.1:8080/a") {
			t.Error("same host must be same domain")
		}
		if s.SameDomain("http://127.0.0.1:9090/a") {
			t.Error("different port is a different host")
		}
	})
}
