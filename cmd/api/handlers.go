package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"attendify/internal/attendance"
	"attendify/internal/auth"
	"attendify/internal/cloudinary"
	"attendify/internal/config"
	"attendify/internal/facematch"
	"attendify/internal/qrtoken"
	"attendify/internal/session"
)

type server struct {
	cfg     config.App
	engine  *facematch.Engine
	manager *session.Manager
	repo    *attendance.Repository // nil when the database is unreachable
	cdn     *cloudinary.Client     // nil when not configured
}

func (s *server) registerRoutes(r *gin.Engine) {
	r.POST("/v1/auth/login", s.login)

	authed := r.Group("/v1", auth.UserAuth(s.cfg.JWTSigningKey, s.cfg.JWTIssuer))

	authed.POST("/faces/enroll", s.enrollFace)
	authed.DELETE("/faces/:userID", s.unenrollFace)
	authed.GET("/faces", auth.RequireRole(auth.RoleFaculty, auth.RoleAdmin), s.listFaces)

	teacher := authed.Group("", auth.RequireRole(auth.RoleFaculty, auth.RoleAdmin))
	teacher.POST("/sessions", s.startSession)
	teacher.DELETE("/sessions/:id", s.stopSession)
	teacher.GET("/sessions/:id/report.csv", s.sessionReport)
	teacher.POST("/students", s.upsertStudent)
	teacher.GET("/classes/:classID", s.getClass)
	teacher.GET("/classes/:classID/events", s.classEvents)

	authed.GET("/sessions/:id/monitor", s.sessionMonitor)
	authed.POST("/sessions/:id/checkins/qr", s.checkInQR)
	authed.POST("/sessions/:id/checkins/face", s.checkInFace)
}

// login issues a demo token. Real identity lives outside the core; the
// handler exists so every protected route is exercisable end to end.
func (s *server) login(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
		Role   string `json:"role" binding:"required"`
		Name   string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch req.Role {
	case auth.RoleStudent, auth.RoleFaculty, auth.RoleAdmin:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}

	token, exp, err := auth.Issue(req.UserID, req.Role, req.Name, s.cfg.JWTIssuer, s.cfg.JWTSigningKey, s.cfg.AccessTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"access_token": token, "expires_at": exp.Unix()})
}

func (s *server) enrollFace(c *gin.Context) {
	var req struct {
		Frame string `json:"frame" binding:"required"` // base64-encoded image
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provide {\"frame\": \"<base64 image>\"}"})
		return
	}
	frame, err := decodeFrame(req.Frame)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "frame is not valid base64"})
		return
	}

	claims, _ := auth.FromContext(c)
	det, err := s.engine.Enroll(c.Request.Context(), frame, claims.Subject)
	if err != nil {
		c.JSON(statusForFaceError(err), gin.H{"error": userFacingFaceError(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":    claims.Subject,
		"enrolled":   s.engine.EmbeddingCount(claims.Subject),
		"box":        det.Box,
		"landmarks":  det.Landmarks,
		"det_score":  det.Score,
	})
}

func (s *server) unenrollFace(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	userID := c.Param("userID")
	if claims.Subject != userID && claims.Role != auth.RoleAdmin && claims.Role != auth.RoleFaculty {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot unenroll another user"})
		return
	}
	s.engine.Unenroll(userID)
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "enrolled": 0})
}

func (s *server) listFaces(c *gin.Context) {
	users := s.engine.EnrolledUsers()
	out := make([]gin.H, 0, len(users))
	for _, id := range users {
		out = append(out, gin.H{"user_id": id, "embeddings": s.engine.EmbeddingCount(id)})
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

func (s *server) startSession(c *gin.Context) {
	var req struct {
		ClassID string `json:"class_id" binding:"required"`
		Method  string `json:"method"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	method := session.Method(req.Method)
	if req.Method == "" {
		method = session.MethodQR
	}
	if !method.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "method must be \"qr\" or \"face\""})
		return
	}

	claims, _ := auth.FromContext(c)

	var roster []string
	if s.repo != nil {
		students, err := s.repo.ClassRoster(c.Request.Context(), req.ClassID)
		if err != nil {
			log.Printf("roster lookup failed for %s: %v", req.ClassID, err)
		}
		for _, st := range students {
			roster = append(roster, st.ID)
		}
	}

	_, info, err := s.manager.Start(req.ClassID, method, claims.Subject, roster)
	if err != nil {
		c.JSON(statusForSessionError(err), gin.H{"error": err.Error()})
		return
	}

	if s.repo != nil {
		if err := s.repo.CreateSession(c.Request.Context(), info, claims.Subject); err != nil {
			log.Printf("session persist failed: %v", err)
		}
	}

	resp := gin.H{
		"session_id": info.SessionID,
		"class_id":   info.ClassID,
		"method":     info.Method,
		"start_time": info.StartTime,
	}
	if info.QRToken != "" {
		dataURL, err := qrtoken.RenderDataURL(info.QRToken, qrtoken.DefaultImageSize)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "QR image generation failed"})
			return
		}
		resp["qr_token"] = info.QRToken
		resp["qr_image"] = dataURL
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *server) stopSession(c *gin.Context) {
	sessionID := c.Param("id")
	ctrl, err := s.manager.Get(sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	ctrl.Stop()
	if s.repo != nil {
		if err := s.repo.CloseSession(c.Request.Context(), sessionID, time.Now().UTC()); err != nil {
			log.Printf("session close persist failed: %v", err)
		}
	}
	c.JSON(http.StatusOK, ctrl.Monitor())
}

func (s *server) sessionMonitor(c *gin.Context) {
	ctrl, err := s.manager.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ctrl.Monitor())
}

func (s *server) checkInQR(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctrl, err := s.manager.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	claims, _ := auth.FromContext(c)
	evt, err := ctrl.CheckInQR(c.Request.Context(), req.Token, claims.Subject)
	if err != nil {
		s.respondCheckInError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"event": evt, "message": "Attendance marked successfully using QR Code"})
}

func (s *server) checkInFace(c *gin.Context) {
	var req struct {
		Frame    string `json:"frame" binding:"required"` // base64-encoded image
		Snapshot string `json:"snapshot"`                 // optional data URL for the report photo
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	frame, err := decodeFrame(req.Frame)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "frame is not valid base64"})
		return
	}

	ctrl, err := s.manager.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	out, err := s.engine.Recognize(c.Request.Context(), frame)
	if err != nil {
		c.JSON(statusForFaceError(err), gin.H{"error": userFacingFaceError(err)})
		return
	}

	claims, _ := auth.FromContext(c)
	// Students can only mark themselves: a matched face that belongs to a
	// different user is not their check-in.
	if claims.Role == auth.RoleStudent && out.Recognized && out.UserID != claims.Subject {
		c.JSON(http.StatusForbidden, gin.H{"error": "recognized face does not match the logged-in user"})
		return
	}

	photoURL := ""
	if s.cdn != nil && req.Snapshot != "" {
		if res, err := s.cdn.UploadSnapshot(req.Snapshot); err != nil {
			log.Printf("snapshot upload failed: %v", err)
		} else {
			photoURL = res.SecureURL
		}
	}

	evt, err := ctrl.CheckInFace(c.Request.Context(), out, photoURL)
	if err != nil {
		s.respondCheckInError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"event":      evt,
		"confidence": out.Confidence,
		"message":    "Attendance marked successfully using Face Recognition",
	})
}

func (s *server) upsertStudent(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database unavailable"})
		return
	}
	var st attendance.Student
	if err := c.ShouldBindJSON(&st); err != nil || st.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provide {\"id\", \"name\", \"email\"?}"})
		return
	}
	if err := s.repo.UpsertStudent(c.Request.Context(), st); err != nil {
		log.Printf("student upsert failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "student save failed"})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *server) getClass(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database unavailable"})
		return
	}
	classID := c.Param("classID")
	cls, err := s.repo.GetClass(c.Request.Context(), classID)
	if err != nil {
		log.Printf("class lookup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "class lookup failed"})
		return
	}
	if cls == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "class not found"})
		return
	}
	roster, err := s.repo.ClassRoster(c.Request.Context(), classID)
	if err != nil {
		log.Printf("roster lookup failed: %v", err)
	}
	c.JSON(http.StatusOK, gin.H{"class": cls, "roster": roster})
}

func (s *server) classEvents(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database unavailable"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	events, err := s.repo.ListClassEvents(c.Request.Context(), c.Param("classID"), limit, offset)
	if err != nil {
		log.Printf("class events lookup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *server) sessionReport(c *gin.Context) {
	sessionID := c.Param("id")
	classID := ""

	var events []session.Event
	if ctrl, err := s.manager.Get(sessionID); err == nil {
		events = ctrl.Events()
		classID = ctrl.ClassID()
	} else if s.repo != nil {
		// Session already swept from memory; the worker has the events.
		events, err = s.repo.ListSessionEvents(c.Request.Context(), sessionID)
		if err != nil {
			log.Printf("session events lookup failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "event lookup failed"})
			return
		}
		if len(events) > 0 {
			classID = events[0].ClassID
		}
	} else {
		c.JSON(http.StatusNotFound, gin.H{"error": session.ErrSessionNotFound.Error()})
		return
	}
	names := map[string]string{}
	if s.repo != nil {
		ids := make([]string, 0, len(events))
		for _, evt := range events {
			ids = append(ids, evt.StudentID)
		}
		if resolved, err := s.repo.StudentNames(c.Request.Context(), ids); err == nil {
			names = resolved
		}
	}

	filename := fmt.Sprintf("attendance_%s_%s.csv", classID, time.Now().UTC().Format("2006-01-02"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Header("Content-Type", "text/csv")
	if err := attendance.WriteReport(c.Writer, events, names); err != nil {
		log.Printf("report write failed: %v", err)
	}
}

func (s *server) respondCheckInError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrDuplicateCheckIn):
		// Idempotent from the student's perspective.
		c.JSON(http.StatusOK, gin.H{"message": "Attendance already marked", "duplicate": true})
	case errors.Is(err, session.ErrSessionNotActive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrInvalidQRCode), errors.Is(err, session.ErrNotRecognized):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrNotOnRoster):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func statusForSessionError(err error) int {
	switch {
	case errors.Is(err, session.ErrNoClassSelected):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrClassBusy), errors.Is(err, session.ErrAlreadyStarted):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func statusForFaceError(err error) int {
	switch {
	case errors.Is(err, facematch.ErrModelLoad):
		return http.StatusServiceUnavailable
	case errors.Is(err, facematch.ErrNoFace), errors.Is(err, facematch.ErrMultipleFaces):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

// userFacingFaceError keeps raw model errors out of responses.
func userFacingFaceError(err error) string {
	switch {
	case errors.Is(err, facematch.ErrModelLoad):
		return "camera features unavailable, try again"
	case errors.Is(err, facematch.ErrNoFace):
		return "no face detected in the image"
	case errors.Is(err, facematch.ErrMultipleFaces):
		return "multiple faces detected, please ensure only one face is visible"
	default:
		return "face detection failed"
	}
}

// decodeFrame accepts raw base64 or a full data URL.
func decodeFrame(s string) (facematch.Frame, error) {
	if idx := strings.Index(s, ";base64,"); idx >= 0 {
		s = s[idx+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty frame")
	}
	return facematch.Frame(data), nil
}
