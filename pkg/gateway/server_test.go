package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auralens/auralens/internal/config"
	"github.com/auralens/auralens/pkg/analysis"
	"github.com/auralens/auralens/pkg/media"
	"github.com/auralens/auralens/pkg/prompts"
	"github.com/auralens/auralens/pkg/session"
	"github.com/auralens/auralens/pkg/vision"
)

// echoAnalyzer answers every analysis call with deterministic text
type echoAnalyzer struct{}

func (echoAnalyzer) AnalyzeImage(_ context.Context, m media.File, _, _ string) (*vision.Result, error) {
	return &vision.Result{Text: "frame: " + m.Name}, nil
}

func (echoAnalyzer) AnalyzeVideo(_ context.Context, m media.File, _, _ string) (*vision.Result, error) {
	return &vision.Result{Text: "clip: " + m.Name}, nil
}

func (echoAnalyzer) AnalyzeText(_ context.Context, prompt, _ string) (*vision.Result, error) {
	return &vision.Result{Text: prompt}, nil
}

func (echoAnalyzer) Provider() string { return "echo" }

type nopStore struct{}

func (nopStore) SaveFile(_ []byte, originalName, prefix string) (string, error) {
	return prefix + "/" + originalName, nil
}

var testModels = config.ModelsConfig{
	SceneExtractor:      "extract-model",
	NarrativeAggregator: "fold-model",
	ContextualQA:        "qa-model",
	VisualQA:            "vqa-model",
	TextExtraction:      "ocr-model",
	ChangeDetection:     "cd-model",
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	lib, err := prompts.NewEmbedded(zerolog.Nop())
	require.NoError(t, err)

	broadcaster := NewBroadcaster(zerolog.Nop())

	orch, err := session.NewOrchestrator(session.Options{
		Registry:    session.NewRegistry(zerolog.Nop()),
		Analyzer:    echoAnalyzer{},
		Store:       nopStore{},
		Prompts:     lib,
		OnNarrative: broadcaster.Publish,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)

	oneShot, err := analysis.NewService(analysis.Options{
		Analyzer: echoAnalyzer{},
		Store:    nopStore{},
		Prompts:  lib,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	srv, err := NewServer(Config{
		Host:         "127.0.0.1",
		Port:         8000,
		Models:       testModels,
		Orchestrator: orch,
		Analysis:     oneShot,
		Broadcaster:  broadcaster,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	return srv, ts
}

func startSession(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp, err := http.Post(ts.URL+"/session/start", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body["session_id"])
	return body["session_id"]
}

func multipartUpload(t *testing.T, sessionID, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("session_id", sessionID))

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestStartSession(t *testing.T) {
	_, ts := newTestServer(t)

	id := startSession(t, ts)
	assert.NotEmpty(t, id)
}

func TestProcessFrame_Accepted(t *testing.T) {
	_, ts := newTestServer(t)
	id := startSession(t, ts)

	body, contentType := multipartUpload(t, id, "frame.jpg", "image/jpeg", []byte{0x1})
	resp, err := http.Post(ts.URL+"/session/process-frame", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var ack map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
	assert.Equal(t, "accepted", ack["status"])
	assert.Equal(t, id, ack["session_id"])
}

func TestProcessFrame_RejectsNonImage(t *testing.T) {
	_, ts := newTestServer(t)
	id := startSession(t, ts)

	body, contentType := multipartUpload(t, id, "notes.txt", "text/plain", []byte("hi"))
	resp, err := http.Post(ts.URL+"/session/process-frame", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProcessClip_RejectsNonVideo(t *testing.T) {
	_, ts := newTestServer(t)
	id := startSession(t, ts)

	body, contentType := multipartUpload(t, id, "frame.jpg", "image/jpeg", []byte{0x1})
	resp, err := http.Post(ts.URL+"/session/process-clip", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProcessFrame_UnknownSession(t *testing.T) {
	_, ts := newTestServer(t)

	body, contentType := multipartUpload(t, "no-such-session", "frame.jpg", "image/jpeg", []byte{0x1})
	resp, err := http.Post(ts.URL+"/session/process-frame", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProcessFrame_MissingSessionID(t *testing.T) {
	_, ts := newTestServer(t)

	body, contentType := multipartUpload(t, "", "frame.jpg", "image/jpeg", []byte{0x1})
	resp, err := http.Post(ts.URL+"/session/process-frame", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestQuery(t *testing.T) {
	_, ts := newTestServer(t)
	id := startSession(t, ts)

	payload, err := json.Marshal(map[string]string{
		"session_id": id,
		"question":   "what is happening right now?",
	})
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/session/query", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, id, body["session_id"])
	// The echo analyzer returns the rendered prompt, which embeds both
	// the narrative and the question.
	assert.Contains(t, body["answer"], "what is happening right now?")
	assert.Contains(t, body["answer"], session.SeedNarrative)
}

func TestQuery_UnknownSession(t *testing.T) {
	_, ts := newTestServer(t)

	payload := `{"session_id":"no-such-session","question":"anything?"}`
	resp, err := http.Post(ts.URL+"/session/query", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestQuery_MissingFields(t *testing.T) {
	_, ts := newTestServer(t)
	id := startSession(t, ts)

	for _, payload := range []string{
		`{"question":"no session"}`,
		fmt.Sprintf(`{"session_id":%q}`, id),
		`not json`,
	} {
		resp, err := http.Post(ts.URL+"/session/query", "application/json", strings.NewReader(payload))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "payload: %s", payload)
	}
}

func TestNarrative(t *testing.T) {
	_, ts := newTestServer(t)
	id := startSession(t, ts)

	resp, err := http.Get(ts.URL + "/session/" + id + "/narrative")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, session.SeedNarrative, body["narrative"])

	resp, err = http.Get(ts.URL + "/session/no-such-session/narrative")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// oneShotUpload builds a multipart body with form fields plus an "image"
// file part for the one-shot analysis endpoints.
func oneShotUpload(t *testing.T, fields map[string]string, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, value := range fields {
		require.NoError(t, mw.WriteField(name, value))
	}

	if filename != "" {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, filename))
		header.Set("Content-Type", contentType)
		part, err := mw.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestVQA(t *testing.T) {
	_, ts := newTestServer(t)

	body, contentType := oneShotUpload(t, map[string]string{"question": "is the door open?"}, "photo.jpg", "image/jpeg", []byte{0x1})
	resp, err := http.Post(ts.URL+"/vqa", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "frame: photo.jpg", result["answer"])
	assert.Equal(t, "vqa/photo.jpg", result["analyzed_path"])
	assert.Contains(t, result, "processing_time")
}

func TestVQA_MissingQuestion(t *testing.T) {
	_, ts := newTestServer(t)

	body, contentType := oneShotUpload(t, nil, "photo.jpg", "image/jpeg", []byte{0x1})
	resp, err := http.Post(ts.URL+"/vqa", contentType, body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVQA_RejectsNonImage(t *testing.T) {
	_, ts := newTestServer(t)

	body, contentType := oneShotUpload(t, map[string]string{"question": "what does it say?"}, "notes.txt", "text/plain", []byte("hi"))
	resp, err := http.Post(ts.URL+"/vqa", contentType, body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOCR(t *testing.T) {
	_, ts := newTestServer(t)

	body, contentType := oneShotUpload(t, nil, "sign.png", "image/png", []byte{0x1})
	resp, err := http.Post(ts.URL+"/ocr", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "frame: sign.png", result["text"])
	assert.Equal(t, "ocr/sign.png", result["analyzed_path"])
}

func TestOCR_MissingImage(t *testing.T) {
	_, ts := newTestServer(t)

	body, contentType := oneShotUpload(t, nil, "", "", nil)
	resp, err := http.Post(ts.URL+"/ocr", contentType, body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVideoAnalysis(t *testing.T) {
	_, ts := newTestServer(t)

	fields := map[string]string{"previous_scene_description": "An empty hallway."}
	body, contentType := oneShotUpload(t, fields, "door.jpg", "image/jpeg", []byte{0x1})
	resp, err := http.Post(ts.URL+"/video-analysis", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, true, result["has_changed"])
	assert.Equal(t, "frame: door.jpg", result["description_of_change"])
	assert.Equal(t, "video/door.jpg", result["analyzed_path"])
}

func TestVideoAnalysis_RejectsNonImage(t *testing.T) {
	_, ts := newTestServer(t)

	body, contentType := oneShotUpload(t, nil, "clip.mp4", "video/mp4", []byte{0x1})
	resp, err := http.Post(ts.URL+"/video-analysis", contentType, body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestModelsEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/config/models")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var models config.ModelsConfig
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&models))
	assert.Equal(t, testModels, models)
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestDatasetStatus_Disabled(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/dataset/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
