// Package analyzer statically vets game markup with a fixed set of text
// heuristics. It never parses or executes the document.
package analyzer

import (
	"regexp"

	"github.com/GriffinCanCode/gamehost/internal/shared/types"
)

// Rule identifiers, stable across releases
const (
	RuleControlsMismatch  = "controls-mismatch"
	RuleKeyboardSupport   = "keyboard-support"
	RuleDistanceCollision = "distance-collision"
	RuleGlobalLayout      = "global-layout"
	RuleGameContainer     = "game-container"
	RuleCharset           = "charset"
)

// Rule is one independent heuristic
type Rule struct {
	ID       string
	Severity types.Severity
	Text     string
	// Fires reports whether the finding applies to markup
	Fires func(markup string) bool
}

// Analyzer evaluates its rules in order and reports every one that fires
type Analyzer struct {
	rules []Rule
}

var (
	mentionsButtons = regexp.MustCompile(`(?i)左右按钮|点击左右|按下左右|left\s*button|right\s*button`)
	hasLeftRight    = regexp.MustCompile(`(?i)<button[^>]*>[^<]*左|<button[^>]*>[^<]*右`)
	hasArrowKeys    = regexp.MustCompile(`ArrowLeft|ArrowRight`)
	boundingRect    = regexp.MustCompile(`getBoundingClientRect\(\)`)
	rectEdges       = regexp.MustCompile(`(?i)(left|right|top|bottom)`)
	distanceCheck   = regexp.MustCompile(`Math\.abs\([^)]*\)\s*<\s*\d+`)
	bodyLayout      = regexp.MustCompile(`(?i)body\s*\{[^}]*?(display\s*:\s*flex|overflow\s*:\s*hidden)`)
	gameArea        = regexp.MustCompile(`(?i)(class="game-area")|(id="game-container")`)
	utf8Charset     = regexp.MustCompile(`(?i)charset=.*utf-8`)

	defaultAnalyzer = New(DefaultRules()...)
)

// DefaultRules returns the built-in rule set in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:       RuleControlsMismatch,
			Severity: types.SeverityWarning,
			Text:     "说明提到“左右按钮”，但页面未检测到对应的可点击按钮。建议补充可视化的左/右按钮，并保留键盘方向键支持。",
			Fires: func(m string) bool {
				return mentionsButtons.MatchString(m) && !hasLeftRight.MatchString(m)
			},
		},
		{
			ID:       RuleKeyboardSupport,
			Severity: types.SeverityInfo,
			Text:     "未检测到键盘方向键(ArrowLeft/ArrowRight)事件，建议同时支持键盘操作以提升可玩性。",
			Fires: func(m string) bool {
				return !hasArrowKeys.MatchString(m)
			},
		},
		{
			ID:       RuleDistanceCollision,
			Severity: types.SeverityWarning,
			Text:     "碰撞检测疑似使用固定距离阈值。建议改为轴对齐矩形相交（AABB）以获得更稳定的判定。",
			Fires: func(m string) bool {
				usesAABB := boundingRect.MatchString(m) && rectEdges.MatchString(m)
				return !usesAABB && distanceCheck.MatchString(m)
			},
		},
		{
			ID:       RuleGlobalLayout,
			Severity: types.SeverityInfo,
			Text:     "检测到对 <body> 设置了全局布局（flex/overflow）。建议将布局限制在游戏容器内（如 .game-area/#game-container），避免影响宿主页面。",
			Fires:    bodyLayout.MatchString,
		},
		{
			ID:       RuleGameContainer,
			Severity: types.SeverityInfo,
			Text:     "未检测到标准的游戏容器(.game-area 或 #game-container)。建议添加统一容器，便于自适应与样式隔离。",
			Fires: func(m string) bool {
				return !gameArea.MatchString(m)
			},
		},
		{
			ID:       RuleCharset,
			Severity: types.SeverityWarning,
			Text:     "未检测到 UTF-8 编码声明，建议在 <head> 中加入 <meta charset=\"UTF-8\">。",
			Fires: func(m string) bool {
				return !utf8Charset.MatchString(m)
			},
		},
	}
}

// New creates an analyzer over rules
func New(rules ...Rule) *Analyzer {
	return &Analyzer{rules: append([]Rule(nil), rules...)}
}

// Analyze returns the findings for markup in rule order. It never fails;
// a rule that panics is skipped.
func (a *Analyzer) Analyze(markup string) []types.Finding {
	findings := make([]types.Finding, 0, len(a.rules))
	for _, rule := range a.rules {
		if fires(rule, markup) {
			findings = append(findings, types.Finding{
				Rule:     rule.ID,
				Severity: rule.Severity,
				Text:     rule.Text,
			})
		}
	}
	return findings
}

// Rules returns the identifiers of the configured rules
func (a *Analyzer) Rules() []string {
	ids := make([]string, len(a.rules))
	for i, r := range a.rules {
		ids[i] = r.ID
	}
	return ids
}

func fires(rule Rule, markup string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return rule.Fires != nil && rule.Fires(markup)
}

// Analyze runs the default rule set
func Analyze(markup string) []types.Finding {
	return defaultAnalyzer.Analyze(markup)
}

// Summary counts findings per severity
func Summary(findings []types.Finding) map[types.Severity]int {
	counts := make(map[types.Severity]int, 3)
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}
