package web

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/conorfennell/studyloop/internal/auth"
	"github.com/conorfennell/studyloop/internal/documents"
	"github.com/conorfennell/studyloop/internal/domain"
	"github.com/conorfennell/studyloop/internal/quiz"
	"github.com/conorfennell/studyloop/internal/study"
)

// bind decodes the JSON body into v and runs its validate tags.
func (s *Server) bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		respondStatus(c, http.StatusBadRequest, "invalid request body: "+err.Error(), "bad_request")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		respondError(c, err)
		return false
	}
	return true
}

type credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type verifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required"`
}

type resendRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (s *Server) handleSignUp() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in auth.SignUpInput
		if err := c.ShouldBindJSON(&in); err != nil {
			respondStatus(c, http.StatusBadRequest, "invalid request body: "+err.Error(), "bad_request")
			return
		}
		u, err := s.Auth.SignUp(c.Request.Context(), in)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"user": u, "verificationRequired": true})
	}
}

func (s *Server) handleSignIn() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in credentials
		if !s.bind(c, &in) {
			return
		}
		sess, err := s.Auth.SignIn(c.Request.Context(), in.Email, in.Password)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sess)
	}
}

func (s *Server) handleVerify() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in verifyRequest
		if !s.bind(c, &in) {
			return
		}
		sess, err := s.Auth.Verify(c.Request.Context(), in.Email, in.Code)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sess)
	}
}

func (s *Server) handleResend() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in resendRequest
		if !s.bind(c, &in) {
			return
		}
		if err := s.Auth.Resend(c.Request.Context(), in.Email); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusAccepted)
	}
}

func (s *Server) handleSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := s.Auth.Session(c.Request.Context(), c.GetString(ctxToken))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": u})
	}
}

func (s *Server) handleDashboard() gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := s.Dashboard.Dashboard(c.Request.Context(), userID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, data)
	}
}

func (s *Server) handleListDocuments() gin.HandlerFunc {
	return func(c *gin.Context) {
		docs, err := s.Documents.List(c.Request.Context(), userID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"documents": docs})
	}
}

func (s *Server) handleStorageStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := s.Documents.Stats(c.Request.Context(), userID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

// handleUploadDocuments accepts a multipart batch in the "files" field.
// Each file reports its own outcome; only a rejected batch is an error.
func (s *Server) handleUploadDocuments() gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			respondStatus(c, http.StatusBadRequest, "expected a multipart form", "bad_request")
			return
		}
		headers := form.File["files"]

		files := make([]documents.File, 0, len(headers))
		opened := make([]multipart.File, 0, len(headers))
		defer func() {
			for _, f := range opened {
				_ = f.Close()
			}
		}()
		for _, h := range headers {
			f, err := h.Open()
			if err != nil {
				respondError(c, fmt.Errorf("failed to open upload %s: %w", h.Filename, err))
				return
			}
			opened = append(opened, f)
			files = append(files, documents.File{
				Name:        h.Filename,
				ContentType: h.Header.Get("Content-Type"),
				Size:        h.Size,
				Content:     f,
			})
		}

		statuses, err := s.Documents.UploadBatch(c.Request.Context(), userID(c), files, nil)
		if err != nil {
			respondError(c, err)
			return
		}
		status := http.StatusCreated
		for _, st := range statuses {
			if !st.Complete {
				status = http.StatusMultiStatus
				break
			}
		}
		c.JSON(status, gin.H{"files": statuses})
	}
}

func (s *Server) handleRetryDocument() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if err := s.Documents.RetryProcessing(ctx, userID(c), c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		doc, err := s.Documents.Get(ctx, userID(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, doc)
	}
}

func (s *Server) handleDeleteDocument() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.Documents.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) handleListQuizzes() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := s.Quizzes.ListForUser(c.Request.Context(), userID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"quizzes": list})
	}
}

func (s *Server) handleGetQuiz() gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := s.Quizzes.Get(c.Request.Context(), userID(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, quiz.NewView(q))
	}
}

type submitRequest struct {
	Answers []domain.Answer `json:"answers" validate:"required,dive"`
}

func (s *Server) handleSubmitQuiz() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in submitRequest
		if !s.bind(c, &in) {
			return
		}
		res, err := s.Quizzes.Submit(c.Request.Context(), userID(c), c.Param("id"), in.Answers)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, res)
	}
}

func (s *Server) handleQuizAttempts() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if _, err := s.Quizzes.Get(ctx, userID(c), c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		attempts, err := s.Quizzes.Attempts(ctx, userID(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"attempts": attempts})
	}
}

func (s *Server) handleDocumentQuiz() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if _, err := s.Documents.Get(ctx, userID(c), c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		q, err := s.Quizzes.ForDocument(ctx, userID(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"quiz": q})
	}
}

type generateRequest struct {
	QuestionsPerConcept int `json:"questionsPerConcept" validate:"gte=0,lte=10"`
}

func (s *Server) handleGenerateQuiz() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in generateRequest
		if c.Request.ContentLength != 0 && !s.bind(c, &in) {
			return
		}
		resp, err := s.Quizzes.TriggerGeneration(c.Request.Context(), userID(c), c.Param("id"), in.QuestionsPerConcept)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, resp)
	}
}

func (s *Server) handleDocumentProgress() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := s.Study.DocumentProgress(c.Request.Context(), userID(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

func (s *Server) handleNextConcept() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := s.Study.NextConcept(c.Request.Context(), userID(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		var next *string
		if id != "" {
			next = &id
		}
		c.JSON(http.StatusOK, gin.H{"conceptId": next})
	}
}

type startSessionRequest struct {
	ConceptID string `json:"conceptId" validate:"required"`
}

func (s *Server) handleStartSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in startSessionRequest
		if !s.bind(c, &in) {
			return
		}
		sess, err := s.Study.StartSession(c.Request.Context(), userID(c), in.ConceptID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, sess)
	}
}

func (s *Server) handleRecordAttempt() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in study.AttemptInput
		if !s.bind(c, &in) {
			return
		}
		out, err := s.Study.RecordAttempt(c.Request.Context(), userID(c), c.Param("id"), in)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

func (s *Server) handleEndSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := s.Study.EndSession(c.Request.Context(), userID(c), c.Param("id"))
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
