package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sympfindx-server/internal/casestore"
	"github.com/sympfindx-server/internal/domain"
	"github.com/sympfindx-server/internal/service"
)

type stubImageClassifier struct {
	observations []domain.ClassifierObservation
	err          error
	sawDeadline  bool
}

func (s *stubImageClassifier) ClassifyImage(ctx context.Context, imageRef string) ([]domain.ClassifierObservation, error) {
	_, s.sawDeadline = ctx.Deadline()
	return s.observations, s.err
}

type stubSymptomClassifier struct {
	observations []domain.ClassifierObservation
	err          error
}

func (s *stubSymptomClassifier) ClassifySymptoms(ctx context.Context, symptomText string) ([]domain.ClassifierObservation, error) {
	return s.observations, s.err
}

type testEnv struct {
	server  *Server
	image   *stubImageClassifier
	symptom *stubSymptomClassifier
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	tmpDir, err := os.MkdirTemp("", "api-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := casestore.NewSQLiteStore(filepath.Join(tmpDir, "cases.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	image := &stubImageClassifier{observations: []domain.ClassifierObservation{
		{Label: "conjunctivitis", Confidence: 0.85},
		{Label: "normal", Confidence: 0.12},
		{Label: "stye", Confidence: 0.03},
	}}
	symptom := &stubSymptomClassifier{observations: []domain.ClassifierObservation{
		{Label: "conjunctivitis", Confidence: 0.78},
	}}

	hub := NewHub(logger)
	policy := domain.NewRoutingPolicy(domain.DefaultSpecialistDirectory())
	triage := service.NewTriageService(logger, store, image, symptom, policy, domain.FusionConfig{}, hub)
	review := service.NewReviewService(logger, store, hub)

	server := NewServer(logger, domain.ServerConfig{}, triage, review, store, hub)
	return &testEnv{server: server, image: image, symptom: symptom}
}

func (e *testEnv) do(t *testing.T, method, path string, actor *domain.Actor, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req.Header.Set("X-Actor-ID", actor.ID)
		req.Header.Set("X-Actor-Role", string(actor.Role))
	}

	w := httptest.NewRecorder()
	e.server.Router().ServeHTTP(w, req)
	return w
}

var (
	apiPatient    = domain.Actor{ID: "patient-1", Role: domain.RolePatient}
	apiSpecialist = domain.Actor{ID: "spec-1", Role: domain.RoleSpecialist}
	apiAdmin      = domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}
)

func decodeCase(t *testing.T, w *httptest.ResponseRecorder) *domain.CaseRecord {
	t.Helper()
	var record domain.CaseRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
	return &record
}

func decodeAPIError(t *testing.T, w *httptest.ResponseRecorder) *domain.APIError {
	t.Helper()
	var apiErr domain.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	return &apiErr
}

func analyze(t *testing.T, env *testEnv, actor domain.Actor) *domain.CaseRecord {
	t.Helper()
	w := env.do(t, "POST", "/api/v1/analyze", &actor, map[string]string{
		"image_ref":    "uploads/eye.jpg",
		"symptom_text": "red itchy eye with discharge",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeCase(t, w)
}

func TestServer_Health(t *testing.T) {
	env := newTestServer(t)

	w := env.do(t, "GET", "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestServer_RequiresActor(t *testing.T) {
	env := newTestServer(t)

	w := env.do(t, "POST", "/api/v1/analyze", nil, map[string]string{"symptom_text": "red eye"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, domain.CodeForbidden, decodeAPIError(t, w).Code)

	bogus := domain.Actor{ID: "someone", Role: "superuser"}
	w = env.do(t, "GET", "/api/v1/cases", &bogus, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestServer_Analyze(t *testing.T) {
	env := newTestServer(t)

	record := analyze(t, env, apiPatient)

	assert.Equal(t, "patient-1", record.OwnerID)
	assert.Equal(t, domain.StatusPending, record.Status)
	assert.Equal(t, "conjunctivitis", record.Fusion.PredictedLabel)
	assert.InDelta(t, 0.829, record.Fusion.OverallConfidence, 1e-9)
	assert.Equal(t, domain.RiskCritical, record.Fusion.RiskTier)
	assert.True(t, record.Routing.Recommended)
	assert.Equal(t, domain.UrgencyEmergency, record.Routing.Urgency)

	assert.True(t, env.image.sawDeadline, "request deadline reaches the classifiers")
}

func TestServer_Analyze_BadBody(t *testing.T) {
	env := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/v1/analyze", bytes.NewReader([]byte("{not json")))
	req.Header.Set("X-Actor-ID", apiPatient.ID)
	req.Header.Set("X-Actor-Role", string(apiPatient.Role))
	w := httptest.NewRecorder()
	env.server.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.CodeInvalidInput, decodeAPIError(t, w).Code)
}

func TestServer_Analyze_EmptySubmission(t *testing.T) {
	env := newTestServer(t)

	w := env.do(t, "POST", "/api/v1/analyze", &apiPatient, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.CodeInvalidInput, decodeAPIError(t, w).Code)
}

func TestServer_Analyze_UpstreamDown(t *testing.T) {
	env := newTestServer(t)
	env.image.err = fmt.Errorf("model down: %w", domain.ErrUpstreamUnavailable)

	w := env.do(t, "POST", "/api/v1/analyze", &apiPatient, map[string]string{
		"image_ref": "uploads/eye.jpg",
	})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, domain.CodeUpstreamUnavailable, decodeAPIError(t, w).Code)
}

func TestServer_GetCase_Access(t *testing.T) {
	env := newTestServer(t)
	record := analyze(t, env, apiPatient)

	w := env.do(t, "GET", "/api/v1/cases/"+record.ID, &apiPatient, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	other := domain.Actor{ID: "patient-2", Role: domain.RolePatient}
	w = env.do(t, "GET", "/api/v1/cases/"+record.ID, &other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, "GET", "/api/v1/cases/"+record.ID, &apiSpecialist, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, "GET", "/api/v1/cases/no-such-case", &apiPatient, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, domain.CodeCaseNotFound, decodeAPIError(t, w).Code)
}

func TestServer_History(t *testing.T) {
	env := newTestServer(t)
	analyze(t, env, apiPatient)
	analyze(t, env, apiPatient)

	w := env.do(t, "GET", "/api/v1/cases", &apiPatient, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Cases []domain.CaseRecord `json:"cases"`
		Count int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestServer_SpecialistEndpoints_RoleEnforced(t *testing.T) {
	env := newTestServer(t)

	paths := []struct {
		method string
		path   string
	}{
		{"GET", "/api/v1/specialist/pending-cases"},
		{"POST", "/api/v1/specialist/cases/some-id/claim"},
		{"POST", "/api/v1/specialist/review-case"},
		{"GET", "/api/v1/specialist/reviewed-cases"},
		{"GET", "/api/v1/specialist/stats"},
	}

	for _, p := range paths {
		w := env.do(t, p.method, p.path, &apiPatient, nil)
		assert.Equal(t, http.StatusForbidden, w.Code, "%s %s", p.method, p.path)
	}
}

func TestServer_AdminObservesSpecialistSurface(t *testing.T) {
	env := newTestServer(t)
	record := analyze(t, env, apiPatient)

	// Read-only queue endpoints are open to admins.
	w := env.do(t, "GET", "/api/v1/specialist/pending-cases", &apiAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var pending struct {
		Cases []domain.CaseRecord `json:"cases"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	require.Len(t, pending.Cases, 1)
	assert.Equal(t, record.ID, pending.Cases[0].ID)

	w = env.do(t, "GET", "/api/v1/specialist/reviewed-cases", &apiAdmin, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, "GET", "/api/v1/specialist/stats", &apiAdmin, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Acting on the queue stays specialist-only.
	w = env.do(t, "POST", "/api/v1/specialist/cases/"+record.ID+"/claim", &apiAdmin, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, "POST", "/api/v1/specialist/review-case", &apiAdmin, map[string]string{
		"case_id":         record.ID,
		"final_diagnosis": "conjunctivitis",
		"clinical_notes":  "notes",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestServer_PendingCases_RecommendedByDefault(t *testing.T) {
	env := newTestServer(t)

	// Low confidences fuse below the routine threshold, so routing does not
	// recommend a specialist.
	env.image.observations = []domain.ClassifierObservation{{Label: "normal", Confidence: 0.25}}
	env.symptom.observations = []domain.ClassifierObservation{{Label: "normal", Confidence: 0.2}}

	record := analyze(t, env, apiPatient)
	require.False(t, record.Routing.Recommended)

	w := env.do(t, "GET", "/api/v1/specialist/pending-cases", &apiSpecialist, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pending struct {
		Cases []domain.CaseRecord `json:"cases"`
		Count int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	assert.Zero(t, pending.Count, "not-recommended cases stay out of the default queue")

	w = env.do(t, "GET", "/api/v1/specialist/pending-cases?recommended=false", &apiSpecialist, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	assert.Equal(t, 1, pending.Count)
}

func TestServer_ReviewWorkflow(t *testing.T) {
	env := newTestServer(t)
	record := analyze(t, env, apiPatient)

	w := env.do(t, "GET", "/api/v1/specialist/pending-cases", &apiSpecialist, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pending struct {
		Cases []domain.CaseRecord `json:"cases"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	require.Len(t, pending.Cases, 1)

	w = env.do(t, "POST", "/api/v1/specialist/cases/"+record.ID+"/claim", &apiSpecialist, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.StatusInReview, decodeCase(t, w).Status)

	review := map[string]string{
		"case_id":                  record.ID,
		"final_diagnosis":          "bacterial conjunctivitis",
		"clinical_notes":           "purulent discharge",
		"treatment_recommendation": "topical antibiotics",
	}
	w = env.do(t, "POST", "/api/v1/specialist/review-case", &apiSpecialist, review)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	reviewed := decodeCase(t, w)
	assert.Equal(t, domain.StatusReviewed, reviewed.Status)
	require.NotNil(t, reviewed.Review)
	assert.Equal(t, "spec-1", reviewed.Review.ReviewerID)

	// Second review conflicts.
	w = env.do(t, "POST", "/api/v1/specialist/review-case", &apiSpecialist, review)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, domain.CodeAlreadyReviewed, decodeAPIError(t, w).Code)

	w = env.do(t, "GET", "/api/v1/specialist/reviewed-cases", &apiSpecialist, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var mine struct {
		Cases []domain.CaseRecord `json:"cases"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &mine))
	assert.Len(t, mine.Cases, 1)

	w = env.do(t, "GET", "/api/v1/specialist/stats", &apiSpecialist, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats domain.SpecialistStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats.TotalReviewed)
	assert.Zero(t, stats.PendingCount)
}

func TestServer_ClaimConflicts(t *testing.T) {
	env := newTestServer(t)
	record := analyze(t, env, apiPatient)

	w := env.do(t, "POST", "/api/v1/specialist/cases/"+record.ID+"/claim", &apiSpecialist, nil)
	require.Equal(t, http.StatusOK, w.Code)

	other := domain.Actor{ID: "spec-2", Role: domain.RoleSpecialist}
	w = env.do(t, "POST", "/api/v1/specialist/cases/"+record.ID+"/claim", &other, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, "POST", "/api/v1/specialist/cases/no-such-case/claim", &apiSpecialist, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
