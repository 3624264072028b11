package httpapi

import (
	"net/http"
	"strconv"

	"github.com/p-n-ai/pai-course/internal/assignment"
	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/enrollment"
	"github.com/p-n-ai/pai-course/internal/notify"
)

func (s *Server) requireLearner(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := notify.LearnerID(r)
	if id == "" {
		writeBadRequest(w, "learner id is required")
		return "", false
	}
	return id, true
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := s.requireLearner(w, r)
	if !ok {
		return
	}
	st, err := s.enrollment.Enroll(r.Context(), learnerID, r.PathValue("courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (s *Server) handleViewSection(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := s.requireLearner(w, r)
	if !ok {
		return
	}
	addr, err := course.ParseAddress(r.PathValue("address"))
	if err != nil {
		writeBadRequest(w, "section address must look like 0-0-0")
		return
	}
	out, err := s.enrollment.RecordSectionViewed(r.Context(), learnerID, r.PathValue("courseID"), addr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := s.requireLearner(w, r)
	if !ok {
		return
	}
	d, err := s.enrollment.GetUserCourseDetails(r.Context(), learnerID, r.PathValue("courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleOutline(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := s.requireLearner(w, r)
	if !ok {
		return
	}
	v, err := s.enrollment.CourseView(r.Context(), learnerID, r.PathValue("courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type submitQuizRequest struct {
	Answers []int `json:"answers"`
}

func (s *Server) handleSubmitQuiz(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := s.requireLearner(w, r)
	if !ok {
		return
	}
	var req submitQuizRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	out, err := s.enrollment.SubmitQuiz(r.Context(), learnerID, r.PathValue("courseID"), r.PathValue("quizID"), req.Answers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUncomplete(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := s.requireLearner(w, r)
	if !ok {
		return
	}
	st, err := s.enrollment.Uncomplete(r.Context(), learnerID, r.PathValue("courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type completionRequest struct {
	IsCompleted  bool   `json:"is_completed"`
	Announcement string `json:"announcement"`
}

func (s *Server) handleSetCompletion(w http.ResponseWriter, r *http.Request) {
	var req completionRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	res, err := s.enrollment.SetCourseCompletion(r.Context(), r.PathValue("courseID"), req.IsCompleted, req.Announcement)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleCompletedLearners(w http.ResponseWriter, r *http.Request) {
	courseID := r.PathValue("courseID")
	learners, err := s.enrollment.CompletedLearners(r.Context(), courseID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("format") != "xlsx" {
		writeJSON(w, http.StatusOK, learners)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+courseID+`-completed.xlsx"`)
	if err := enrollment.WriteCompletedReport(w, courseID, learners); err != nil {
		writeError(w, r, err)
	}
}

func (s *Server) handleAvailableAssignments(w http.ResponseWriter, r *http.Request) {
	list, err := s.assignments.Available(r.Context(), r.PathValue("courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (s *Server) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	list, err := s.assignments.List(r.Context(), r.PathValue("courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (s *Server) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	var d assignment.Draft
	if err := decode(r, &d); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	a, err := s.assignments.Create(r.Context(), r.PathValue("courseID"), d)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleUpdateAssignment(w http.ResponseWriter, r *http.Request) {
	var d assignment.Draft
	if err := decode(r, &d); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	a, err := s.assignments.Update(r.Context(), r.PathValue("id"), d)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteAssignment(w http.ResponseWriter, r *http.Request) {
	if err := s.assignments.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reorderRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleReorderAssignments(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	list, err := s.assignments.Reorder(r.Context(), r.PathValue("courseID"), req.IDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type submitAssignmentRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleSubmitAssignment(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := s.requireLearner(w, r)
	if !ok {
		return
	}
	var req submitAssignmentRequest
	if err := decode(r, &req); err != nil || req.URL == "" {
		writeBadRequest(w, "a submission url is required")
		return
	}
	sub, err := s.assignments.Submit(r.Context(), learnerID, r.PathValue("id"), req.URL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	latestOnly, _ := strconv.ParseBool(r.URL.Query().Get("latest"))
	subs, err := s.assignments.Submissions(r.Context(), r.PathValue("id"), latestOnly)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(subs))
}

type gradeRequest struct {
	Grade    float64 `json:"grade"`
	Feedback string  `json:"feedback"`
}

func (s *Server) handleGradeSubmission(w http.ResponseWriter, r *http.Request) {
	var req gradeRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	sub, err := s.assignments.Grade(r.Context(), r.PathValue("id"), req.Grade, req.Feedback)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
