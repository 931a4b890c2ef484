package routes

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"citrine-sage-backend/models"
	"citrine-sage-backend/services"
)

// sourcePreviewLen bounds the passage preview sent with a streamed answer.
const sourcePreviewLen = 200

func SetupChatRoutes(router *gin.Engine, rag *services.RAGService) {
	api := router.Group("/api")

	// Streamed answer: raw text fragments, then one delimiter line
	// carrying the sources as JSON.
	api.POST("/chat", func(c *gin.Context) {
		var req struct {
			Question string `json:"question"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Question == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_input",
				"message":    "No question provided",
			})
			return
		}

		c.Header("Content-Type", "text/plain; charset=utf-8")
		c.Status(http.StatusOK)

		for ev := range rag.StreamAnswer(c.Request.Context(), req.Question) {
			if ev.Text != "" {
				c.Writer.WriteString(ev.Text)
				c.Writer.Flush()
			}
			if ev.Final && ev.Sources != nil {
				refs := make([]models.SourceRef, 0, len(ev.Sources))
				for _, p := range ev.Sources {
					refs = append(refs, models.SourceRef{
						Content:  preview(p.Content),
						Metadata: p.Metadata,
					})
				}
				payload, _ := json.Marshal(refs)
				c.Writer.WriteString("\n__SOURCES__:" + string(payload))
				c.Writer.Flush()
			}
		}
	})

	api.GET("/summary", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"summary": rag.Summary(c.Request.Context())})
	})

	api.GET("/dialogue", func(c *gin.Context) {
		script, err := rag.DialogueScript(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"dialogue": script})
	})
}

func preview(content string) string {
	if len(content) > sourcePreviewLen {
		return content[:sourcePreviewLen] + "..."
	}
	return content
}
