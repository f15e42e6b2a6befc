package build

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func mapLookup(m map[string]string) Lookup {
	return func(logical string) (string, bool) {
		p, ok := m[logical]
		return p, ok
	}
}

func TestRewriter(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"img/logo.png":      "img/logo-abc123.png",
		"css/reset.css":     "css/reset-def456.css",
		"fonts/inter.woff2": "fonts/inter-0a1b2c.woff2",
		"css/icons/x.svg":   "sprites/x-777.svg",
	})

	tests := []struct {
		name     string
		referrer string
		in       string
		want     string
		count    int
	}{
		{
			name:     "relative url",
			referrer: "css/app.css",
			in:       `a{background:url(../img/logo.png)}`,
			want:     `a{background:url(../img/logo-abc123.png)}`,
			count:    1,
		},
		{
			name:     "double quoted url",
			referrer: "css/app.css",
			in:       `a{background:url("../img/logo.png")}`,
			want:     `a{background:url("../img/logo-abc123.png")}`,
			count:    1,
		},
		{
			name:     "single quoted url with spaces",
			referrer: "css/app.css",
			in:       `a{background:url( '../img/logo.png' )}`,
			want:     `a{background:url( '../img/logo-abc123.png' )}`,
			count:    1,
		},
		{
			name:     "absolute with prefix",
			referrer: "css/app.css",
			in:       `a{background:url(/img/logo.png)}`,
			want:     `a{background:url(/img/logo-abc123.png)}`,
			count:    1,
		},
		{
			name:     "query and fragment preserved",
			referrer: "css/app.css",
			in:       `@font-face{src:url(../fonts/inter.woff2?v=3#iefix)}`,
			want:     `@font-face{src:url(../fonts/inter-0a1b2c.woff2?v=3#iefix)}`,
			count:    1,
		},
		{
			name:     "import string",
			referrer: "css/app.css",
			in:       `@import "reset.css";`,
			want:     `@import "reset-def456.css";`,
			count:    1,
		},
		{
			name:     "physical in another directory",
			referrer: "css/app.css",
			in:       `a{mask:url(icons/x.svg)}`,
			want:     `a{mask:url(../sprites/x-777.svg)}`,
			count:    1,
		},
		{
			name:     "data uri untouched",
			referrer: "css/app.css",
			in:       `a{background:url(data:image/png;base64,AAAA)}`,
			want:     `a{background:url(data:image/png;base64,AAAA)}`,
		},
		{
			name:     "external untouched",
			referrer: "css/app.css",
			in:       `a{background:url(https://cdn.example.com/img/logo.png)} b{background:url(//cdn/img/logo.png)}`,
			want:     `a{background:url(https://cdn.example.com/img/logo.png)} b{background:url(//cdn/img/logo.png)}`,
		},
		{
			name:     "unknown asset untouched",
			referrer: "css/app.css",
			in:       `a{background:url(../img/other.png)} b{font-family:"Inter"}`,
			want:     `a{background:url(../img/other.png)} b{font-family:"Inter"}`,
		},
		{
			name:     "escaping the root untouched",
			referrer: "app.css",
			in:       `a{background:url(../img/logo.png)}`,
			want:     `a{background:url(../img/logo.png)}`,
		},
		{
			name:     "multiple references",
			referrer: "css/app.css",
			in:       `a{background:url(../img/logo.png)} b{background:url('/img/logo.png')}`,
			want:     `a{background:url(../img/logo-abc123.png)} b{background:url('/img/logo-abc123.png')}`,
			count:    2,
		},
	}

	r := NewRewriter(lookup, "/")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n := r.Rewrite(tt.referrer, []byte(tt.in))
			assert.Equal(t, tt.want, string(got))
			assert.Equal(t, tt.count, n)
		})
	}
}

func TestRewriterCustomPrefix(t *testing.T) {
	lookup := mapLookup(map[string]string{"img/logo.png": "img/logo-abc123.png"})

	r := NewRewriter(lookup, "https://cdn.example.com/assets/")
	got, n := r.Rewrite("css/app.css", []byte(`a{background:url(https://cdn.example.com/assets/img/logo.png)}`))
	assert.Equal(t, `a{background:url(https://cdn.example.com/assets/img/logo-abc123.png)}`, string(got))
	assert.Equal(t, 1, n)

	r = NewRewriter(lookup, "/static/")
	got, n = r.Rewrite("css/app.css", []byte(`a{background:url(/static/img/logo.png)} b{background:url(/img/logo.png)}`))
	assert.Equal(t, `a{background:url(/static/img/logo-abc123.png)} b{background:url(/img/logo.png)}`, string(got))
	assert.Equal(t, 1, n)
}

func TestRelativeTo(t *testing.T) {
	assert.Equal(t, "img/a.png", relativeTo(".", "img/a.png"))
	assert.Equal(t, "../img/a.png", relativeTo("css", "img/a.png"))
	assert.Equal(t, "a.png", relativeTo("css", "css/a.png"))
	assert.Equal(t, "../../x/a.png", relativeTo("css/vendor", "x/a.png"))
	assert.Equal(t, "../a.png", relativeTo("css/vendor", "css/a.png"))
}
