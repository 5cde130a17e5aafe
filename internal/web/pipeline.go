package web

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/conorfennell/studyloop/internal/cache"
	"github.com/conorfennell/studyloop/internal/domain"
)

type documentStatusRequest struct {
	Status       domain.ProcessingStatus `json:"status" validate:"required,oneof=pending processing completed failed"`
	ErrorMessage string                  `json:"errorMessage"`
}

type outlineConcept struct {
	Name            string `json:"name" validate:"required"`
	Explanation     string `json:"explanation"`
	SourceText      string `json:"sourceText"`
	ComplexityLevel string `json:"complexityLevel"`
}

type outlineTopic struct {
	Name     string           `json:"name" validate:"required"`
	Concepts []outlineConcept `json:"concepts" validate:"dive"`
}

type outlineRequest struct {
	Topics []outlineTopic `json:"topics" validate:"dive"`
}

type quizOption struct {
	Text        string `json:"optionText" validate:"required"`
	IsCorrect   bool   `json:"isCorrect"`
	Explanation string `json:"explanation"`
}

type quizQuestion struct {
	Text       string            `json:"question" validate:"required"`
	ConceptID  string            `json:"conceptId"`
	Hint       string            `json:"hint"`
	Difficulty domain.Difficulty `json:"difficultyLevel" validate:"omitempty,oneof=easy medium hard"`
	Options    []quizOption      `json:"options" validate:"min=2,dive"`
}

type createQuizRequest struct {
	DocumentID  string                  `json:"documentId" validate:"required"`
	Title       string                  `json:"title" validate:"required"`
	Description string                  `json:"description"`
	Status      domain.GenerationStatus `json:"generationStatus" validate:"omitempty,oneof=pending generating completed failed"`
	Questions   []quizQuestion          `json:"questions" validate:"dive"`
}

type quizStatusRequest struct {
	Status domain.GenerationStatus `json:"status" validate:"required,oneof=pending generating completed failed"`
}

func (s *Server) handlePipelineDocumentStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in documentStatusRequest
		if !s.bind(c, &in) {
			return
		}
		ok, err := s.Pipeline.UpdateDocumentStatus(c.Request.Context(), c.Param("id"), in.Status, in.ErrorMessage)
		if err != nil {
			respondError(c, err)
			return
		}
		if !ok {
			respondError(c, fmt.Errorf("document %s: %w", c.Param("id"), domain.ErrNotFound))
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// handlePipelineOutline replaces a document's topics and concepts. Outline
// rows emit no change events, so the owner's cached views are dropped here.
func (s *Server) handlePipelineOutline() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in outlineRequest
		if !s.bind(c, &in) {
			return
		}
		ctx := c.Request.Context()
		doc, err := s.Pipeline.FindDocument(ctx, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		if doc == nil {
			respondError(c, fmt.Errorf("document %s: %w", c.Param("id"), domain.ErrNotFound))
			return
		}

		topics := make([]domain.Topic, 0, len(in.Topics))
		for _, t := range in.Topics {
			topic := domain.Topic{DocumentID: doc.ID, Name: t.Name}
			for _, cn := range t.Concepts {
				topic.Concepts = append(topic.Concepts, domain.Concept{
					Name:            cn.Name,
					Explanation:     cn.Explanation,
					SourceText:      cn.SourceText,
					ComplexityLevel: cn.ComplexityLevel,
				})
			}
			topics = append(topics, topic)
		}
		if err := s.Pipeline.ReplaceOutline(ctx, doc.ID, topics); err != nil {
			respondError(c, err)
			return
		}
		if err := s.Cache.Invalidate(ctx, cache.UserKeys(doc.UserID, cache.ResourceDocuments, cache.ResourceDashboard)...); err != nil {
			s.log.Warn("Cache invalidation failed", "user_id", doc.UserID, "error", err)
		}
		c.JSON(http.StatusOK, gin.H{"topics": topics})
	}
}

// handlePipelineCreateQuiz stores a generated quiz for the document's owner.
// Every question needs exactly one correct option.
func (s *Server) handlePipelineCreateQuiz() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in createQuizRequest
		if !s.bind(c, &in) {
			return
		}
		ctx := c.Request.Context()
		doc, err := s.Pipeline.FindDocument(ctx, in.DocumentID)
		if err != nil {
			respondError(c, err)
			return
		}
		if doc == nil {
			respondError(c, fmt.Errorf("document %s: %w", in.DocumentID, domain.ErrNotFound))
			return
		}

		q := &domain.Quiz{
			Title:            in.Title,
			Description:      in.Description,
			DocumentID:       doc.ID,
			UserID:           doc.UserID,
			GenerationStatus: in.Status,
		}
		if q.GenerationStatus == "" {
			q.GenerationStatus = domain.GenerationCompleted
		}
		for i, qq := range in.Questions {
			correct := 0
			question := domain.Question{
				Text:       qq.Text,
				ConceptID:  qq.ConceptID,
				Hint:       qq.Hint,
				Difficulty: qq.Difficulty,
				OrderIndex: i,
			}
			for j, o := range qq.Options {
				if o.IsCorrect {
					correct++
				}
				question.Options = append(question.Options, domain.Option{
					Text:        o.Text,
					Index:       j,
					IsCorrect:   o.IsCorrect,
					Explanation: o.Explanation,
				})
			}
			if correct != 1 {
				respondStatus(c, http.StatusBadRequest,
					fmt.Sprintf("question %d has %d correct options, want exactly 1", i+1, correct), "validation_failed")
				return
			}
			q.Questions = append(q.Questions, question)
		}

		if err := s.Pipeline.InsertQuiz(ctx, q); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": q.ID, "generationStatus": q.GenerationStatus})
	}
}

func (s *Server) handlePipelineQuizStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in quizStatusRequest
		if !s.bind(c, &in) {
			return
		}
		ok, err := s.Pipeline.UpdateQuizStatus(c.Request.Context(), c.Param("id"), in.Status)
		if err != nil {
			respondError(c, err)
			return
		}
		if !ok {
			respondError(c, fmt.Errorf("quiz %s: %w", c.Param("id"), domain.ErrNotFound))
			return
		}
		c.Status(http.StatusNoContent)
	}
}
