package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/conorfennell/studyloop/internal/realtime"
)

// documentColumn is the column holding the document id in each table's events.
var documentColumn = map[string]string{
	realtime.TableDocuments: "id",
	realtime.TableQuizzes:   "document_id",
}

var knownTables = map[string]bool{
	realtime.TableDocuments:      true,
	realtime.TableQuizzes:        true,
	realtime.TableConceptMastery: true,
}

// handleRealtime streams the caller's row changes as server-sent events.
// A document_id narrows the stream to one of the caller's documents.
func (s *Server) handleRealtime() gin.HandlerFunc {
	return func(c *gin.Context) {
		table := c.Query("table")
		if table != "" && !knownTables[table] {
			respondStatus(c, http.StatusBadRequest, "unknown table "+table, "bad_request")
			return
		}
		topic := realtime.Topic{Table: table, Filter: realtime.Filter{Column: "user_id", Value: userID(c)}}

		if docID := c.Query("document_id"); docID != "" {
			column, ok := documentColumn[table]
			if !ok {
				respondStatus(c, http.StatusBadRequest, "document_id needs table documents or quizzes", "bad_request")
				return
			}
			if _, err := s.Documents.Get(c.Request.Context(), userID(c), docID); err != nil {
				respondError(c, err)
				return
			}
			topic.Filter = realtime.Filter{Column: column, Value: docID}
		}

		events, cancel := s.Hub.Subscribe(topic)
		defer cancel()
		realtime.ServeSSE(c.Writer, c.Request, events)
	}
}
