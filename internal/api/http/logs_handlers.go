package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/gamehost/internal/domain/bridge"
	"github.com/GriffinCanCode/gamehost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/gamehost/internal/shared/utils"
)

// MaxLogEntries caps one log batch
const MaxLogEntries = 100

// UILogEntry represents a log entry from the host page
type UILogEntry struct {
	ID        string                 `json:"id"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	GameID    string                 `json:"gameId,omitempty"`
	Context   map[string]interface{} `json:"context"`
	Timestamp string                 `json:"timestamp"`
}

// UILogStreamRequest represents a batch of logs from the host page
type UILogStreamRequest struct {
	Source  string       `json:"source"`
	Entries []UILogEntry `json:"entries"`
}

// StreamLogs writes host page logs into the server log
func (h *Handlers) StreamLogs(c *gin.Context) {
	var req UILogStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid log request format"})
		return
	}
	if req.Source != "ui" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid log source"})
		return
	}
	if len(req.Entries) == 0 || len(req.Entries) > MaxLogEntries {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "between 1 and 100 entries required"})
		return
	}

	logger := h.logger.Named("ui")
	for _, entry := range req.Entries {
		h.logUIEntry(logger, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"entriesReceived":  len(req.Entries),
		"entriesProcessed": len(req.Entries),
		"timestamp":        time.Now().Unix(),
	})
}

func (h *Handlers) logUIEntry(logger *logging.Logger, entry UILogEntry) {
	fields := make([]zap.Field, 0, len(entry.Context)+3)
	fields = append(fields,
		zap.String("ui_log_id", entry.ID),
		zap.String("ui_timestamp", entry.Timestamp),
	)
	if entry.GameID != "" && utils.ValidateID(entry.GameID, "gameId", true) == nil {
		fields = append(fields, zap.String("game_id", entry.GameID))
	}
	for key, value := range entry.Context {
		switch v := value.(type) {
		case string:
			fields = append(fields, zap.String(key, truncate(v)))
		case float64:
			fields = append(fields, zap.Float64(key, v))
		case bool:
			fields = append(fields, zap.Bool(key, v))
		default:
			fields = append(fields, zap.Any(key, v))
		}
	}

	message := truncate(entry.Message)
	switch entry.Level {
	case "error":
		logger.Error(message, fields...)
	case "warn":
		logger.Warn(message, fields...)
	case "debug", "verbose":
		logger.Debug(message, fields...)
	default:
		logger.Info(message, fields...)
	}
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= bridge.MaxNoticeLength {
		return s
	}
	return string(runes[:bridge.MaxNoticeLength]) + "…"
}
