package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/gamehost/internal/shared/types"
	"github.com/GriffinCanCode/gamehost/internal/shared/utils"
	"github.com/GriffinCanCode/gamehost/internal/storage"
)

const archiveName = "gamehost-saved-games.json.gz"

// gameView is a saved game including its markup
type gameView struct {
	ID         string                 `json:"id"`
	Title      string                 `json:"title"`
	Type       string                 `json:"type,omitempty"`
	AgeGroup   string                 `json:"ageGroup,omitempty"`
	Difficulty string                 `json:"difficulty,omitempty"`
	Theme      string                 `json:"theme,omitempty"`
	HTML       string                 `json:"html"`
	Config     map[string]interface{} `json:"config,omitempty"`
	Agent      *types.Agent           `json:"agent,omitempty"`
	Generated  bool                   `json:"generatedByLLM,omitempty"`
	CreatedAt  *time.Time             `json:"createdAt,omitempty"`
}

func newGameView(b *types.Bundle) gameView {
	meta := b.Metadata()
	v := gameView{
		ID:         b.ID(),
		Title:      b.Title(storage.DefaultTitle),
		Type:       meta.Type,
		AgeGroup:   meta.AgeGroup,
		Difficulty: meta.Difficulty,
		Theme:      meta.Theme,
		HTML:       b.Markup(),
		Config:     b.Config(),
		Generated:  meta.Generated,
	}
	if agent := b.Agent(); agent.Name != "" || agent.Source != "" {
		v.Agent = &agent
	}
	if created := b.CreatedAt(); !created.IsZero() {
		v.CreatedAt = &created
	}
	return v
}

// SaveGame persists a game
func (h *Handlers) SaveGame(c *gin.Context) {
	var req types.SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	if err := utils.ValidateTitle(req.Title); err != nil {
		h.fail(c, http.StatusBadRequest, err)
		return
	}
	if err := utils.ValidateMarkup(req.HTML); err != nil {
		h.fail(c, http.StatusBadRequest, err)
		return
	}

	bundle := req.Bundle()
	done := h.metrics.TrackStorageOperation("save")
	gameID, err := h.store.Save(c.Request.Context(), bundle)
	done(err)
	if err != nil {
		h.failWith(c, err)
		return
	}

	title := bundle.Title(storage.DefaultTitle)
	h.logger.Info("game saved", zap.String("id", gameID), zap.String("title", title))
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"gameId":  gameID,
		"message": "游戏已保存",
		"data": gin.H{
			"id":    gameID,
			"title": title,
		},
	})
}

// ListGames lists saved games, newest first for stores that order them
func (h *Handlers) ListGames(c *gin.Context) {
	done := h.metrics.TrackStorageOperation("list")
	games, err := h.store.List(c.Request.Context())
	done(err)
	if err != nil {
		h.failWith(c, err)
		return
	}
	if games == nil {
		games = []types.Summary{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    games,
		"count":   len(games),
	})
}

// GetGame returns one saved game with its markup
func (h *Handlers) GetGame(c *gin.Context) {
	gameID := c.Param("id")
	if err := utils.ValidateID(gameID, "id", true); err != nil {
		h.fail(c, http.StatusBadRequest, err)
		return
	}

	done := h.metrics.TrackStorageOperation("get")
	bundle, err := h.store.Get(c.Request.Context(), gameID)
	done(err)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.fail(c, http.StatusNotFound, errors.New("游戏不存在"))
			return
		}
		h.failWith(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    newGameView(bundle),
	})
}

// DeleteGame removes a saved game. Deleting an unknown id is not an error.
func (h *Handlers) DeleteGame(c *gin.Context) {
	gameID := c.Param("id")
	if err := utils.ValidateID(gameID, "id", true); err != nil {
		h.fail(c, http.StatusBadRequest, err)
		return
	}

	done := h.metrics.TrackStorageOperation("delete")
	deleted, err := h.store.Delete(c.Request.Context(), gameID)
	done(err)
	if err != nil {
		h.failWith(c, err)
		return
	}

	message := "游戏已删除"
	if !deleted {
		message = "游戏不存在"
	}
	c.JSON(http.StatusOK, gin.H{
		"success": deleted,
		"message": message,
	})
}

// DeleteGames removes a batch of games; the body is a JSON array of ids.
// Individual failures are counted, not reported as errors.
func (h *Handlers) DeleteGames(c *gin.Context) {
	var ids []string
	if err := c.ShouldBindJSON(&ids); err != nil {
		h.fail(c, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	if len(ids) == 0 {
		h.fail(c, http.StatusBadRequest, errors.New("ids must not be empty"))
		return
	}
	if len(ids) > utils.MaxBatchSize {
		h.fail(c, http.StatusBadRequest, fmt.Errorf("ids exceeds maximum batch size %d", utils.MaxBatchSize))
		return
	}

	done := h.metrics.TrackStorageOperation("delete_batch")
	result, err := h.store.DeleteMany(c.Request.Context(), ids)
	done(err)
	if err != nil {
		h.failWith(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"successCount": result.SuccessCount,
		"failCount":    result.FailCount,
		"message":      fmt.Sprintf("成功删除 %d 个游戏，失败 %d 个", result.SuccessCount, result.FailCount),
	})
}

// StorageStats reports the store's footprint
func (h *Handlers) StorageStats(c *gin.Context) {
	done := h.metrics.TrackStorageOperation("stats")
	stats, err := h.store.Stats(c.Request.Context())
	done(err)
	if err != nil {
		h.failWith(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stats,
		"backend": h.backend,
	})
}

// ExportArchive streams every saved game as a gzip JSON archive
func (h *Handlers) ExportArchive(c *gin.Context) {
	if h.archive == nil {
		h.fail(c, http.StatusNotImplemented, fmt.Errorf("archives are not supported by the %s backend", h.backend))
		return
	}

	c.Header("Content-Type", "application/gzip")
	c.Header("Content-Disposition", attachment(archiveName))
	c.Status(http.StatusOK)

	done := h.metrics.TrackStorageOperation("export")
	n, err := h.archive.Export(c.Request.Context(), c.Writer)
	done(err)
	if err != nil {
		// Headers are already sent; the truncated body is all the client gets
		h.logger.Error("archive export failed", zap.Error(err))
		_ = c.Error(err)
		return
	}
	h.logger.Info("archive exported", zap.Int("games", n))
}

// ImportArchive merges an uploaded archive into the store. Games whose id
// already exists are skipped.
func (h *Handlers) ImportArchive(c *gin.Context) {
	if h.archive == nil {
		h.fail(c, http.StatusNotImplemented, fmt.Errorf("archives are not supported by the %s backend", h.backend))
		return
	}

	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxArchiveSize)
	done := h.metrics.TrackStorageOperation("import")
	n, err := h.archive.Import(c.Request.Context(), body)
	done(err)
	if err != nil {
		h.fail(c, http.StatusBadRequest, fmt.Errorf("导入失败: %w", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   n,
		"message": fmt.Sprintf("成功导入 %d 个游戏", n),
	})
}
