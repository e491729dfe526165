package inject

import (
	"regexp"
	"strings"
	"sync"

	"github.com/GriffinCanCode/gamehost/internal/shared/types"
)

// ShimMarker tags the interception script so hardened documents can be
// recognized and counted.
const ShimMarker = `data-gamehost="shim"`

var (
	closeHeadPattern = regexp.MustCompile(`(?i)</head\s*>`)
	bodyOpenPattern  = regexp.MustCompile(`(?i)<body[\s>/]`)
	touchPattern     = regexp.MustCompile(`(?i)ontouchstart`)

	blocks    [2]string
	blockOnce sync.Once
)

const (
	metaTags = `
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<meta charset="UTF-8">`

	interceptScript = `
<script ` + ShimMarker + `>
window.alert = function(msg) {
  window.parent.postMessage({ type: '` + types.MessageAlert + `', message: String(msg) }, '*');
};
window.confirm = function(msg) {
  window.parent.postMessage({ type: '` + types.MessageConfirm + `', message: String(msg) }, '*');
  return true;
};
document.addEventListener('DOMContentLoaded', function() {
  if (/iPad|iPhone|iPod/.test(navigator.userAgent)) {
    document.body.style.margin = '0';
    document.body.style.padding = '0';
    var canvas = document.querySelector('canvas');
    if (canvas) {
      canvas.style.maxWidth = '100%';
      canvas.style.height = 'auto';
    }
  }
});
</script>`

	styleReset = `
<style>
body {
  margin: 0;
  padding: 20px;
  font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
}
.game-container, #game-container {
  max-width: 800px;
  margin: 0 auto;
}
</style>`

	touchGuard = `
<script data-gamehost="touch">
if (typeof window.isTouchDevice === 'undefined') {
  window.isTouchDevice = ('ontouchstart' in window) || (navigator.maxTouchPoints || 0) > 0;
}
</script>`
)

// enhancementBlock returns the block to splice in; withGuard adds the touch
// detection script.
func enhancementBlock(withGuard bool) string {
	blockOnce.Do(func() {
		base := metaTags + interceptScript + styleReset
		blocks[0] = base + "\n"
		blocks[1] = base + touchGuard + "\n"
	})
	if withGuard {
		return blocks[1]
	}
	return blocks[0]
}

// Inject returns the hardened form of markup. It is total and
// deterministic.
func Inject(markup string) types.HardenedDocument {
	enhancements := enhancementBlock(!touchPattern.MatchString(markup))

	if loc := closeHeadPattern.FindStringIndex(markup); loc != nil {
		return types.HardenedDocument(splice(markup, loc[0], enhancements))
	}

	if loc := bodyOpenPattern.FindStringIndex(markup); loc != nil {
		return types.HardenedDocument(splice(markup, loc[0], "<head>"+enhancements+"</head>"))
	}

	return types.HardenedDocument(enhancements + markup)
}

// Count reports how many interception shims doc carries.
func Count(doc types.HardenedDocument) int {
	return strings.Count(string(doc), ShimMarker)
}

func splice(s string, at int, insert string) string {
	var b strings.Builder
	b.Grow(len(s) + len(insert))
	b.WriteString(s[:at])
	b.WriteString(insert)
	b.WriteString(s[at:])
	return b.String()
}
