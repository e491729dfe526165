package inject

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInjectTotal(t *testing.T) {
	tests := []struct {
		name   string
		markup string
	}{
		{"empty", ""},
		{"no tags", "just some text"},
		{"only body", "<body>hi</body>"},
		{"well formed", "<!DOCTYPE html><html><head><title>x</title></head><body><p>x</p></body></html>"},
		{"unterminated", "<html><head><script>var a = '<"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Inject(tt.markup).String()
			assert.Equal(t, 1, strings.Count(doc, `name="viewport"`))
			assert.Equal(t, 1, strings.Count(doc, `<meta charset="UTF-8">`))
			assert.Equal(t, 1, Count(Inject(tt.markup)))
			assert.Equal(t, tt.markup, withoutBlock(doc, tt.markup), "original content is kept intact")
		})
	}
}

// withoutBlock removes the enhancement block, and the head synthesized to
// hold it, from an injected document
func withoutBlock(doc, markup string) string {
	block := enhancementBlock(!touchPattern.MatchString(markup))
	if strings.Contains(doc, "<head>"+block+"</head>") && !closeHeadPattern.MatchString(markup) {
		return strings.Replace(doc, "<head>"+block+"</head>", "", 1)
	}
	return strings.Replace(doc, block, "", 1)
}

func TestInjectBeforeHeadClose(t *testing.T) {
	markup := "<html><HEAD><script>var own = 1;</script></HEAD><body></body></html>"
	doc := Inject(markup).String()

	own := strings.Index(doc, "var own = 1;")
	shim := strings.Index(doc, ShimMarker)
	closeHead := strings.Index(doc, "</HEAD>")
	require.True(t, own >= 0 && shim >= 0 && closeHead >= 0)
	assert.Less(t, own, shim, "content scripts keep their position ahead of the block")
	assert.Less(t, shim, closeHead)
	assert.Equal(t, 1, strings.Count(strings.ToLower(doc), "<head>"))
}

func TestInjectSynthesizesHead(t *testing.T) {
	doc := Inject("<html><body>ok</body></html>").String()

	head := strings.Index(doc, "<head>")
	body := strings.Index(doc, "<body>")
	require.GreaterOrEqual(t, head, 0)
	assert.Less(t, head, body)
	assert.True(t, strings.HasPrefix(doc, "<html><head>"))
	assert.True(t, strings.HasSuffix(doc, "</head><body>ok</body></html>"))
}

func TestInjectBodyWithAttributes(t *testing.T) {
	doc := Inject(`<body class="x">ok</body>`).String()
	assert.True(t, strings.HasSuffix(doc, `</head><body class="x">ok</body>`))
}

func TestInjectPrependsWithoutMarkers(t *testing.T) {
	doc := Inject("<div>loose</div>").String()
	assert.True(t, strings.HasSuffix(doc, "<div>loose</div>"))
	assert.True(t, strings.HasPrefix(strings.TrimSpace(doc), "<meta"))
}

func TestInjectDeterministic(t *testing.T) {
	markup := "<html><head></head><body></body></html>"
	assert.Equal(t, Inject(markup), Inject(markup))
}

func TestInjectTouchGuard(t *testing.T) {
	without := Inject("<body></body>").String()
	assert.Contains(t, without, `data-gamehost="touch"`)

	with := Inject("<body><script>if ('ontouchstart' in window) {}</script></body>").String()
	assert.NotContains(t, with, `data-gamehost="touch"`)
}

func TestInjectInterceptsHostCalls(t *testing.T) {
	doc := Inject("").String()
	assert.Contains(t, doc, "window.alert = function")
	assert.Contains(t, doc, "window.confirm = function")
	assert.Contains(t, doc, "return true;")
	assert.Contains(t, doc, "'game-alert'")
	assert.Contains(t, doc, "'game-confirm'")
}

func TestReinjectingOriginalDoesNotDuplicate(t *testing.T) {
	markup := "<html><head></head><body>game</body></html>"
	first := Inject(markup)
	second := Inject(markup)
	assert.Equal(t, 1, Count(first))
	assert.Equal(t, 1, Count(second))

	// hardening a hardened document is the mistake reload must avoid
	assert.Equal(t, 2, Count(Inject(first.String())))
}
