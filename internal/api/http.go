package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/catalog"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/domain"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/errors"
)

func (a *API) registerRoutes(r gin.IRouter) {
	g := r.Group("", a.ath.GinMiddleware())

	g.POST("/attempts", a.httpStartAttempt)
	g.GET("/attempts", a.httpListAttempts)
	g.GET("/attempts/:id", a.httpGetAttempt)
	g.PATCH("/attempts/:id/answer", a.httpSubmitAnswer)
	g.POST("/attempts/:id/complete", a.httpCompleteAttempt)

	g.POST("/quizzes", a.httpCreateQuiz)
	g.GET("/quizzes", a.httpListQuizzes)
	g.GET("/quizzes/:id", a.httpGetQuiz)
	g.PATCH("/quizzes/:id", a.httpUpdateQuiz)
	g.GET("/quizzes/:id/questions", a.httpGetQuestions)
	g.POST("/quizzes/:id/questions", a.httpAddQuestion)
	g.PUT("/quizzes/:id/questions/:qid", a.httpUpdateQuestion)
	g.DELETE("/quizzes/:id/questions/:qid", a.httpDeleteQuestion)
	g.GET("/quizzes/:id/leaderboard", a.httpGetLeaderboard)
}

func (a *API) httpStartAttempt(c *gin.Context) {
	var req StartAttemptRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := a.StartAttempt(c.Request.Context(), &req)
	respond(c, http.StatusCreated, resp, err)
}

func (a *API) httpSubmitAnswer(c *gin.Context) {
	var req SubmitAnswerRequest
	if !bindJSON(c, &req) {
		return
	}
	req.AttemptID = c.Param("id")

	resp, err := a.SubmitAnswer(c.Request.Context(), &req)
	respond(c, http.StatusOK, resp, err)
}

func (a *API) httpCompleteAttempt(c *gin.Context) {
	resp, err := a.CompleteAttempt(c.Request.Context(), &CompleteAttemptRequest{
		AttemptID: c.Param("id"),
	})
	respond(c, http.StatusOK, resp, err)
}

func (a *API) httpGetAttempt(c *gin.Context) {
	resp, err := a.GetAttempt(c.Request.Context(), &GetAttemptRequest{
		AttemptID: c.Param("id"),
	})
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp.Attempt)
}

func (a *API) httpListAttempts(c *gin.Context) {
	var req ListAttemptsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		renderError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("%s", err), errors.WithCause(err)))
		return
	}

	resp, err := a.ListAttempts(c.Request.Context(), &req)
	respond(c, http.StatusOK, resp, err)
}

func (a *API) httpGetLeaderboard(c *gin.Context) {
	var req GetLeaderboardRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		renderError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("%s", err), errors.WithCause(err)))
		return
	}
	req.QuizID = c.Param("id")

	resp, err := a.GetLeaderboard(c.Request.Context(), &req)
	respond(c, http.StatusOK, resp, err)
}

func (a *API) httpCreateQuiz(c *gin.Context) {
	var req createQuizRequest
	if !bindJSON(c, &req) {
		return
	}

	who, err := identity(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}

	q, err := a.cs.CreateQuiz(c.Request.Context(), who, catalog.CreateQuizRequest{
		Title:       req.Title,
		Description: req.Description,
		Active:      req.Active,
		TimeLimit:   seconds(req.TimeLimitSeconds),
	})
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toQuiz(q))
}

func (a *API) httpListQuizzes(c *gin.Context) {
	who, err := identity(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}

	qs, err := a.cs.ListQuizzes(c.Request.Context(), who, catalog.ListQuizzesRequest{
		OwnerID: c.Query("owner_id"),
	})
	if err != nil {
		renderError(c, err)
		return
	}

	out := make([]Quiz, 0, len(qs))
	for i := range qs {
		out = append(out, toQuiz(&qs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"quizzes": out})
}

func (a *API) httpGetQuiz(c *gin.Context) {
	who, err := identity(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}

	q, err := a.cs.GetQuiz(c.Request.Context(), who, c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, toQuiz(q))
}

func (a *API) httpUpdateQuiz(c *gin.Context) {
	var req updateQuizRequest
	if !bindJSON(c, &req) {
		return
	}

	who, err := identity(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}

	update := catalog.UpdateQuizRequest{
		QuizID:      c.Param("id"),
		Title:       req.Title,
		Description: req.Description,
		Active:      req.Active,
	}
	if req.TimeLimitSeconds != nil {
		limit := seconds(*req.TimeLimitSeconds)
		update.TimeLimit = &limit
	}

	q, err := a.cs.UpdateQuiz(c.Request.Context(), who, update)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, toQuiz(q))
}

// httpGetQuestions returns the answer key to the quiz owner and question views to everyone else.
func (a *API) httpGetQuestions(c *gin.Context) {
	ctx := c.Request.Context()
	who, err := identity(ctx)
	if err != nil {
		renderError(c, err)
		return
	}

	quiz, err := a.cs.GetQuiz(ctx, who, c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}

	qs, err := a.cs.GetQuestions(ctx, who, quiz.QuizID)
	if err != nil {
		renderError(c, err)
		return
	}

	if quiz.OwnedBy(who) {
		out := make([]Question, 0, len(qs))
		for i := range qs {
			out = append(out, toQuestion(&qs[i]))
		}
		c.JSON(http.StatusOK, gin.H{"questions": out})
		return
	}

	out := make([]QuestionView, 0, len(qs))
	for i := range qs {
		out = append(out, toQuestionView(qs[i].View()))
	}
	c.JSON(http.StatusOK, gin.H{"questions": out})
}

func (a *API) httpAddQuestion(c *gin.Context) {
	var req questionRequest
	if !bindJSON(c, &req) {
		return
	}

	who, correct, ok := a.questionInput(c, &req)
	if !ok {
		return
	}

	q, err := a.cs.AddQuestion(c.Request.Context(), who, catalog.AddQuestionRequest{
		QuizID:  c.Param("id"),
		Prompt:  req.Prompt,
		Choices: req.Choices,
		Correct: correct,
		Points:  req.Points,
	})
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toQuestion(q))
}

func (a *API) httpUpdateQuestion(c *gin.Context) {
	var req questionRequest
	if !bindJSON(c, &req) {
		return
	}

	who, correct, ok := a.questionInput(c, &req)
	if !ok {
		return
	}

	q, err := a.cs.UpdateQuestion(c.Request.Context(), who, catalog.UpdateQuestionRequest{
		QuizID:     c.Param("id"),
		QuestionID: c.Param("qid"),
		Prompt:     req.Prompt,
		Choices:    req.Choices,
		Correct:    correct,
		Points:     req.Points,
	})
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, toQuestion(q))
}

func (a *API) httpDeleteQuestion(c *gin.Context) {
	who, err := identity(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}

	if err := a.cs.DeleteQuestion(c.Request.Context(), who, catalog.DeleteQuestionRequest{
		QuizID:     c.Param("id"),
		QuestionID: c.Param("qid"),
	}); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) questionInput(c *gin.Context, req *questionRequest) (domain.Identity, []int, bool) {
	who, err := identity(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return domain.Identity{}, nil, false
	}

	correct, err := parseChoices(req.Correct)
	if err != nil {
		renderError(c, err)
		return domain.Identity{}, nil, false
	}

	return who, correct, true
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		renderError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request body: %s", err), errors.WithCause(err)))
		return false
	}
	return true
}

func respond[T any](c *gin.Context, status int, resp *T, err error) {
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(status, resp)
}

func renderError(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: internal error", "path", c.FullPath(), "error", err)
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{
		"code":    e.Code.String(),
		"message": e.Message,
	})
}
