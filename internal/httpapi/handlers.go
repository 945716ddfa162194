package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"callbridge/internal/auth"
	"callbridge/internal/calls"
	"callbridge/internal/config"
	"callbridge/internal/ingest"
	"callbridge/internal/orchestrator"
	"callbridge/internal/telephony"
	"callbridge/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Orchestrator *orchestrator.Service
	Ingest       *ingest.Service
	Store        calls.Store
	Cfg          config.Config
}

// --- Calls ---

type startCallRequest struct {
	TargetID string `json:"target_id"`
}

type callResponse struct {
	ID              string     `json:"id"`
	CallerID        string     `json:"caller_id"`
	TargetID        string     `json:"target_id"`
	ProviderCallSID string     `json:"provider_call_sid,omitempty"`
	ConferenceName  string     `json:"conference_name"`
	Status          string     `json:"status"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds int        `json:"duration_seconds,omitempty"`
	RecordingURL    string     `json:"recording_url,omitempty"`
	Transcript      string     `json:"transcript,omitempty"`
	Summary         string     `json:"summary,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toCallResponse(c calls.Call) callResponse {
	return callResponse{
		ID:              c.ID,
		CallerID:        c.CallerID,
		TargetID:        c.TargetID,
		ProviderCallSID: c.ProviderCallSID,
		ConferenceName:  c.ConferenceName,
		Status:          string(c.Status),
		StartedAt:       c.StartedAt,
		EndedAt:         c.EndedAt,
		DurationSeconds: c.DurationSeconds,
		RecordingURL:    c.RecordingURL,
		Transcript:      c.Transcript,
		Summary:         c.Summary,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

// StartCall bridges the authenticated caller and a target into a new call.
func (h Handlers) StartCall(c *gin.Context) {
	callerID, err := auth.UserID(c.Request.Context())
	if err != nil || callerID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}

	var req startCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.TargetID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "target_id required"})
		return
	}

	call, err := h.Orchestrator.StartCall(c.Request.Context(), callerID, req.TargetID)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, toCallResponse(call))
	case errors.Is(err, orchestrator.ErrConfiguration):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, orchestrator.ErrTargetBusy):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "target is already in an active call"})
	case errors.Is(err, telephony.ErrDialRejected):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "telephony provider rejected the call"})
	default:
		logger.FromGin(c).Error("start call failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call start failed"})
	}
}

// GetCall returns one call, including live or final transcript state.
func (h Handlers) GetCall(c *gin.Context) {
	callID := c.Param("call_id")
	if callID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	}

	call, err := h.Store.GetCall(c.Request.Context(), callID)
	if errors.Is(err, calls.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("call lookup failed", "call_id", callID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call lookup failed"})
		return
	}
	c.JSON(http.StatusOK, toCallResponse(call))
}

// ListCalls returns the authenticated caller's calls, newest first.
func (h Handlers) ListCalls(c *gin.Context) {
	callerID, err := auth.UserID(c.Request.Context())
	if err != nil || callerID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	list, err := h.Store.ListCallsByCaller(c.Request.Context(), callerID, limit)
	if err != nil {
		logger.FromGin(c).Error("call list failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call list failed"})
		return
	}
	out := make([]callResponse, 0, len(list))
	for _, call := range list {
		out = append(out, toCallResponse(call))
	}
	c.JSON(http.StatusOK, gin.H{"calls": out})
}

// --- Provider callbacks ---

// Webhook receives provider callbacks: status updates by default, recording
// notifications when type=recording. A 4xx tells the provider the payload is
// unusable; a 5xx asks it to retry delivery.
func (h Handlers) Webhook(c *gin.Context) {
	callID := c.Query("callId")
	if callID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "callId required"})
		return
	}

	var err error
	if c.Query("type") == "recording" {
		var ev telephony.RecordingEvent
		ev, err = telephony.ParseRecordingCallback(c.Request)
		if err == nil {
			err = h.Ingest.ApplyRecording(c.Request.Context(), callID, ev)
		}
	} else {
		var ev telephony.StatusEvent
		ev, err = telephony.ParseStatusCallback(c.Request)
		if err == nil {
			err = h.Ingest.ApplyStatus(c.Request.Context(), callID, ev)
		}
	}

	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	case errors.Is(err, telephony.ErrMalformedWebhook), errors.Is(err, ingest.ErrUnknownStatus):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "malformed webhook"})
	case errors.Is(err, calls.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
	default:
		logger.FromGin(c).Error("webhook processing failed", "call_id", callID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "webhook processing failed"})
	}
}

// Signal returns the call-control script a leg executes when answered. The
// provider renders whatever XML it receives, so errors answer 200 with a
// spoken error script rather than a status code the caller would hear as
// dead air.
func (h Handlers) Signal(c *gin.Context) {
	callID := c.Query("callId")
	conference := c.Query("conference")
	participant := c.Query("participant")

	if callID == "" || conference == "" || participant == "" {
		logger.FromGin(c).Warn("signal request missing parameters",
			"call_id", callID, "conference", conference, "participant", participant)
		c.Data(http.StatusOK, "application/xml", []byte(telephony.ErrorScript()))
		return
	}

	script, err := telephony.ConferenceScript(telephony.ConferenceScriptParams{
		Role:                 participant,
		ConferenceName:       conference,
		MediaStreamURL:       h.Cfg.MediaStreamURL(callID),
		RecordingCallbackURL: h.Cfg.RecordingWebhookURL(callID),
	})
	if err != nil {
		logger.FromGin(c).Warn("signal script render failed", "call_id", callID, "err", err)
		c.Data(http.StatusOK, "application/xml", []byte(telephony.ErrorScript()))
		return
	}
	c.Data(http.StatusOK, "application/xml", []byte(script))
}
