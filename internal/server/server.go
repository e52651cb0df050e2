// Package server exposes the feedback intake endpoints: a JSON API for
// direct submissions and the Slack interactivity callback behind the alert
// buttons. It is a thin HTTP layer; all validation and persistence happens
// in the feedback recorder.
package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/costguard/costguard/internal/feedback"
	"github.com/costguard/costguard/internal/models"
	"github.com/costguard/costguard/internal/store"
)

// maxBodyBytes bounds request bodies; Slack interaction payloads are small.
const maxBodyBytes = 1 << 20

// signatureMaxAge rejects replayed Slack callbacks.
const signatureMaxAge = 5 * time.Minute

// alertLookbackDays is how far back the Slack handler searches for the
// snapshot containing a clicked alert. Alerts older than this cannot be
// answered from Slack anymore.
const alertLookbackDays = 7

// Server handles feedback intake over HTTP.
type Server struct {
	recorder  *feedback.Recorder
	store     store.Store
	accountID string

	// signingSecret verifies Slack callback signatures. Empty disables
	// verification; only acceptable behind a trusted proxy.
	signingSecret string

	now func() time.Time
}

// New returns a Server recording through rec. The store is needed to locate
// the snapshot a clicked alert belongs to, since Slack buttons only carry
// the alert id.
func New(rec *feedback.Recorder, st store.Store, accountID, signingSecret string) *Server {
	return &Server{
		recorder:      rec,
		store:         st,
		accountID:     accountID,
		signingSecret: signingSecret,
		now:           time.Now,
	}
}

// Router returns the configured HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/feedback", s.handleFeedback).Methods(http.MethodPost)
	r.HandleFunc("/slack/interactions", s.handleSlackInteraction).Methods(http.MethodPost)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// feedbackRequest is the JSON API submission body.
type feedbackRequest struct {
	AlertID              string `json:"alert_id"`
	Date                 string `json:"date"`
	UserID               string `json:"user_id"`
	UserName             string `json:"user_name,omitempty"`
	FeedbackType         string `json:"feedback_type"`
	DurationType         string `json:"duration_type"`
	ExpectedDurationDays int    `json:"expected_duration_days,omitempty"`
	Explanation          string `json:"explanation,omitempty"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}

	fb, err := s.recorder.Record(r.Context(), feedback.Request{
		AlertID:              req.AlertID,
		Date:                 req.Date,
		AccountID:            s.accountID,
		UserID:               req.UserID,
		UserName:             req.UserName,
		FeedbackType:         models.FeedbackType(req.FeedbackType),
		DurationType:         models.DurationType(req.DurationType),
		ExpectedDurationDays: req.ExpectedDurationDays,
		Explanation:          req.Explanation,
	})
	if err != nil {
		writeRecordError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, fb)
}

// slackInteraction is the subset of Slack's block_actions payload we read.
type slackInteraction struct {
	Type string `json:"type"`
	User struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
	Actions []struct {
		ActionID string `json:"action_id"`
		BlockID  string `json:"block_id"`
		Value    string `json:"value"`
	} `json:"actions"`
}

// buttonSemantics maps an alert button to the recorded classification.
// "Expected" opens an ongoing change so the same alert suppresses tomorrow;
// the JSON API is the path for bounded or one-time answers.
var buttonSemantics = map[string]struct {
	feedbackType models.FeedbackType
	durationType models.DurationType
}{
	"feedback_expected":      {models.FeedbackExpected, models.DurationOngoing},
	"feedback_unexpected":    {models.FeedbackUnexpected, models.DurationOneTime},
	"feedback_investigating": {models.FeedbackInvestigating, models.DurationUnknown},
}

func (s *Server) handleSlackInteraction(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if err := s.verifySlackSignature(r, raw); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	// Slack posts form-encoded with the JSON under "payload".
	form, err := url.ParseQuery(string(raw))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	var interaction slackInteraction
	if err := json.Unmarshal([]byte(form.Get("payload")), &interaction); err != nil {
		writeError(w, http.StatusBadRequest, "invalid interaction payload")
		return
	}
	if interaction.Type != "block_actions" || len(interaction.Actions) == 0 {
		writeJSON(w, http.StatusOK, map[string]string{"text": ""})
		return
	}

	action := interaction.Actions[0]
	semantics, ok := buttonSemantics[action.ActionID]
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"text": ""})
		return
	}

	date, err := s.resolveAlertDate(r.Context(), action.Value)
	if err != nil {
		log.Printf("slack interaction: locate alert %s: %v", action.Value, err)
		writeJSON(w, http.StatusOK, map[string]string{
			"text": "Sorry, that alert could not be found anymore.",
		})
		return
	}

	_, err = s.recorder.Record(r.Context(), feedback.Request{
		AlertID:      action.Value,
		Date:         date,
		AccountID:    s.accountID,
		UserID:       interaction.User.ID,
		UserName:     interaction.User.Username,
		FeedbackType: semantics.feedbackType,
		DurationType: semantics.durationType,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{
			"text": fmt.Sprintf("Thanks <@%s>, recorded as *%s*.", interaction.User.ID, semantics.feedbackType),
		})
	case errors.Is(err, feedback.ErrDuplicateFeedback):
		writeJSON(w, http.StatusOK, map[string]string{
			"text": fmt.Sprintf("<@%s> you already answered this alert.", interaction.User.ID),
		})
	default:
		log.Printf("slack interaction: record feedback: %v", err)
		writeJSON(w, http.StatusOK, map[string]string{
			"text": "Something went wrong recording that, please try again.",
		})
	}
}

// resolveAlertDate walks recent snapshots looking for the alert. Slack
// buttons carry only the alert id, not the day it was raised.
func (s *Server) resolveAlertDate(ctx context.Context, alertID string) (string, error) {
	day := s.now().UTC()
	for i := 0; i <= alertLookbackDays; i++ {
		date := day.AddDate(0, 0, -i).Format("2006-01-02")
		snap, err := s.store.GetSnapshot(ctx, date, models.PeriodDaily, s.accountID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return "", err
		}
		for j := range snap.AnomaliesDetected {
			if snap.AnomaliesDetected[j].ID == alertID {
				return date, nil
			}
		}
	}
	return "", feedback.ErrAlertNotFound
}

// verifySlackSignature checks the v0 HMAC scheme. No-op when no signing
// secret is configured.
func (s *Server) verifySlackSignature(r *http.Request, body []byte) error {
	if s.signingSecret == "" {
		return nil
	}

	ts := r.Header.Get("X-Slack-Request-Timestamp")
	sig := r.Header.Get("X-Slack-Signature")
	if ts == "" || sig == "" {
		return errors.New("missing signature headers")
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return errors.New("malformed signature timestamp")
	}
	age := s.now().Sub(time.Unix(unix, 0))
	if age > signatureMaxAge || age < -signatureMaxAge {
		return errors.New("signature timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, []byte(s.signingSecret))
	fmt.Fprintf(mac, "v0:%s:", ts)
	mac.Write(body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return errors.New("signature mismatch")
	}
	return nil
}

func writeRecordError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, feedback.ErrAlertNotFound):
		writeError(w, http.StatusNotFound, "alert not found")
	case errors.Is(err, feedback.ErrDuplicateFeedback):
		writeError(w, http.StatusConflict, "feedback already recorded for this alert and user")
	case errors.Is(err, feedback.ErrConcurrentUpdate):
		writeError(w, http.StatusServiceUnavailable, "change log busy, retry")
	default:
		// Validation failures from the recorder are plain errors; anything
		// wrapped from the store is a 500.
		if isValidation(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("feedback: record: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// isValidation distinguishes bad input from infrastructure failure by the
// recorder's error construction: validation errors are unwrapped.
func isValidation(err error) bool {
	return errors.Unwrap(err) == nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
