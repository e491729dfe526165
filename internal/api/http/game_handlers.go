package http

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/gamehost/internal/domain/analyzer"
	"github.com/GriffinCanCode/gamehost/internal/domain/inject"
	"github.com/GriffinCanCode/gamehost/internal/domain/lifecycle"
	"github.com/GriffinCanCode/gamehost/internal/shared/types"
	"github.com/GriffinCanCode/gamehost/internal/shared/utils"
	"github.com/GriffinCanCode/gamehost/internal/storage"
)

const (
	maxArchiveSize = 64 << 20

	// ShimCountHeader reports how many enhancement blocks a document carries
	ShimCountHeader = "X-Gamehost-Shims"
)

// contentSecurityPolicy confines played documents to inline code and data
const contentSecurityPolicy = "default-src 'none'; script-src 'unsafe-inline'; style-src 'unsafe-inline'; img-src data: blob:; media-src data: blob:; font-src data:; frame-ancestors 'self'"

var errNoMarkup = errors.New("html is required")

// readMarkup accepts a JSON {"html": ...} body, a multipart "file" upload,
// or the raw document. Raw and uploaded bytes are decoded to UTF-8.
func readMarkup(c *gin.Context) (string, error) {
	contentType := c.ContentType()
	switch {
	case contentType == gin.MIMEJSON:
		var req types.MarkupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return "", fmt.Errorf("invalid request: %w", err)
		}
		return req.HTML, utils.ValidateMarkup(req.HTML)

	case contentType == gin.MIMEMultipartPOSTForm:
		fh, err := c.FormFile("file")
		if err != nil {
			return "", fmt.Errorf("missing file: %w", err)
		}
		if fh.Size > utils.MaxMarkupSize {
			return "", fmt.Errorf("file size %d bytes exceeds maximum %d bytes", fh.Size, utils.MaxMarkupSize)
		}
		f, err := fh.Open()
		if err != nil {
			return "", err
		}
		defer f.Close()
		return decodeBody(f)

	default:
		return decodeBody(c.Request.Body)
	}
}

func decodeBody(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, utils.MaxMarkupSize+1))
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", errNoMarkup
	}
	if len(data) > utils.MaxMarkupSize {
		return "", fmt.Errorf("html exceeds maximum %d bytes", utils.MaxMarkupSize)
	}
	markup, err := utils.DecodeMarkup(data)
	if err != nil {
		return "", err
	}
	return markup, utils.ValidateMarkup(markup)
}

// findingsFor returns cached findings for markup, computing them on a miss
func (h *Handlers) findingsFor(markup string) ([]types.Finding, string, bool) {
	key := utils.ContentKey(markup)
	if findings, ok := h.findings.Get(key); ok {
		return findings, key, true
	}
	findings := h.analyzer.Analyze(markup)
	h.findings.Add(key, findings)
	return findings, key, false
}

// Analyze reports the heuristic findings for a document
func (h *Handlers) Analyze(c *gin.Context) {
	markup, err := readMarkup(c)
	if err != nil {
		h.fail(c, http.StatusBadRequest, err)
		return
	}

	done := h.metrics.TrackAnalysisOperation("analyze")
	findings, key, cached := h.findingsFor(markup)
	done(nil)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"findings": findings,
			"summary":  analyzer.Summary(findings),
			"key":      key,
			"cached":   cached,
		},
	})
}

// Inject returns the hardened form of a document
func (h *Handlers) Inject(c *gin.Context) {
	markup, err := readMarkup(c)
	if err != nil {
		h.fail(c, http.StatusBadRequest, err)
		return
	}

	done := h.metrics.TrackAnalysisOperation("inject")
	doc := inject.Inject(markup)
	done(nil)

	writeDocument(c, doc)
}

// PlayGame serves the hardened document of a saved game
func (h *Handlers) PlayGame(c *gin.Context) {
	bundle, ok := h.loadBundle(c)
	if !ok {
		return
	}

	findings, _, _ := h.findingsFor(bundle.Markup())
	for _, f := range findings {
		if f.Severity == types.SeverityError {
			h.logger.Warn("serving game with errors",
				zap.String("id", bundle.ID()),
				zap.String("rule", f.Rule))
		}
	}

	c.Header("Content-Security-Policy", contentSecurityPolicy)
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("Cache-Control", "no-store")
	writeDocument(c, inject.Inject(bundle.Markup()))
}

// ExportGame downloads the original markup of a saved game
func (h *Handlers) ExportGame(c *gin.Context) {
	bundle, ok := h.loadBundle(c)
	if !ok {
		return
	}

	artifact := lifecycle.ExportBundle(bundle)
	c.Header("Content-Disposition", attachment(artifact.FileName))
	c.Data(http.StatusOK, artifact.ContentType, artifact.Body)
}

func (h *Handlers) loadBundle(c *gin.Context) (*types.Bundle, bool) {
	gameID := c.Param("id")
	if err := utils.ValidateID(gameID, "id", true); err != nil {
		h.fail(c, http.StatusBadRequest, err)
		return nil, false
	}

	done := h.metrics.TrackStorageOperation("get")
	bundle, err := h.store.Get(c.Request.Context(), gameID)
	done(err)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.fail(c, http.StatusNotFound, errors.New("游戏不存在"))
			return nil, false
		}
		h.failWith(c, err)
		return nil, false
	}
	return bundle, true
}

// GenerateGame proxies a request to the generation service. A service-side
// failure is answered with success=false and status 200, like the service.
func (h *Handlers) GenerateGame(c *gin.Context) {
	if h.generator == nil {
		h.fail(c, http.StatusServiceUnavailable, errors.New("generation service is not configured"))
		return
	}

	var req types.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	if err := utils.ValidateMessage(req.Message); err != nil {
		h.fail(c, http.StatusBadRequest, err)
		return
	}

	done := h.metrics.TrackGenerationOperation("generate")
	result, err := h.generator.Generate(c.Request.Context(), req)
	done(err)
	if err != nil {
		h.failWith(c, err)
		return
	}

	body := gin.H{
		"success":     result.Success,
		"sessionId":   result.SessionID,
		"message":     result.Message,
		"agentName":   result.Agent.Name,
		"agentSource": result.Agent.Source,
		"modelName":   result.Agent.Model,
	}
	if result.Error != "" {
		body["error"] = result.Error
	}
	if result.Bundle != nil {
		markup := result.Bundle.Markup()
		findings, _, _ := h.findingsFor(markup)
		view := newGameView(result.Bundle)
		body["gameData"] = view
		body["findings"] = findings
	}
	c.JSON(http.StatusOK, body)
}

func writeDocument(c *gin.Context, doc types.HardenedDocument) {
	c.Header(ShimCountHeader, strconv.Itoa(inject.Count(doc)))
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(doc.String()))
}

// attachment formats a Content-Disposition header; non-ASCII names are
// carried in the RFC 2231 filename* parameter
func attachment(name string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return `attachment; filename="` + strings.Map(func(r rune) rune {
		if r > 0x7e || r < 0x20 || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, name) + `"`
}
