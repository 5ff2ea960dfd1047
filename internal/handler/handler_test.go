package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/agri-support-service/internal/auth"
	"github.com/psds-microservice/agri-support-service/internal/classifier"
	"github.com/psds-microservice/agri-support-service/internal/errs"
	"github.com/psds-microservice/agri-support-service/internal/imagestore"
	"github.com/psds-microservice/agri-support-service/internal/model"
	"github.com/psds-microservice/agri-support-service/internal/service"
	"github.com/psds-microservice/agri-support-service/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClassifier struct {
	pred *classifier.Prediction
	err  error
}

func (s stubClassifier) Classify(ctx context.Context, crop string, image *model.Upload) (*classifier.Prediction, error) {
	return s.pred, s.err
}

type stubAdvisor struct{ answer string }

func (s stubAdvisor) Advise(ctx context.Context, crop, disease string) (string, error) {
	if s.answer == "" {
		return "", errs.Upstream("advisory: not configured")
	}
	return s.answer, nil
}

type testAPI struct {
	engine *gin.Engine
	store  *store.MemoryStore
}

func newTestAPI(t *testing.T, cls classifier.Classifier) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	st := store.NewMemoryStore()
	idNo := "GO-17"
	for _, ident := range []*model.Identity{
		{Username: "farmer", Roles: model.RoleSet{model.RoleRequester}},
		{Username: "officer_a", Roles: model.RoleSet{model.RoleAgent}, IdentificationNumber: &idNo},
		{Username: "officer_b", Roles: model.RoleSet{model.RoleAgent}},
		{Username: "admin", Roles: model.RoleSet{model.RoleOverseer}},
	} {
		require.NoError(t, st.SaveIdentity(ctx, ident))
	}

	images := imagestore.New(t.TempDir())
	requests := service.NewRequestService(st, images, nil)
	views := service.NewAssignmentService(st)
	workflow := service.NewWorkflowService(cls, stubAdvisor{answer: "Spray copper fungicide."}, requests)
	rh := NewRequestHandler(requests, views, 1<<20)
	ch := NewChatHandler(service.NewChatService(st, nil))
	mh := NewMLHandler(workflow, nil, 1<<20)
	fh := NewFileHandler(images)

	r := gin.New()
	r.GET("/api/files/:name", fh.Get)
	v1 := r.Group("/api/v1")
	v1.Use(auth.New(st, auth.Options{TrustCallerHeader: true}).Middleware())
	v1.POST("/requests", rh.Create)
	v1.GET("/requests/mine", rh.Mine)
	v1.GET("/requests/officer/queue", rh.Queue)
	v1.GET("/requests/officer/assigned", rh.Assigned)
	v1.GET("/requests/:id", rh.Get)
	v1.POST("/requests/:id/take", rh.Take)
	v1.POST("/requests/:id/forward", rh.Forward)
	v1.POST("/requests/:id/archive", rh.Archive)
	v1.GET("/requests/:id/messages", ch.List)
	v1.POST("/requests/:id/messages", ch.Send)
	v1.GET("/users/officers", rh.Agents)
	v1.POST("/ml/predict", mh.Predict)
	v1.POST("/ml/predict-and-create", mh.PredictAndCreate)
	v1.POST("/ml/advice", mh.Advice)
	v1.GET("/ml/health", mh.Health)
	return &testAPI{engine: r, store: st}
}

func (a *testAPI) do(t *testing.T, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(auth.CallerHeader, user)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func (a *testAPI) multipart(t *testing.T, path, user string, fields map[string]string, image []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		part, err := mw.CreateFormFile("image", "leaf.png")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(auth.CallerHeader, user)
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func (a *testAPI) raw(method, path, user, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	if user != "" {
		req.Header.Set(auth.CallerHeader, user)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (a *testAPI) createRequest(t *testing.T) requestView {
	t.Helper()
	w := a.multipart(t, "/api/v1/requests", "farmer", map[string]string{
		"category":    "rice blast",
		"description": "leaves yellowing",
		"state":       "Kerala",
	}, []byte("\x89PNG fake"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[requestView](t, w)
}

func TestCreateAndFetchImage(t *testing.T) {
	api := newTestAPI(t, stubClassifier{})
	created := api.createRequest(t)
	assert.Equal(t, model.StatusOpen, created.Status)
	assert.Equal(t, "farmer", created.CreatedByUsername)
	require.NotNil(t, created.ImageURL)

	w := api.do(t, http.MethodGet, *created.ImageURL, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "\x89PNG fake", w.Body.String())

	w = api.do(t, http.MethodGet, "/api/files/..%2Fsecret", "", nil)
	assert.Contains(t, []int{http.StatusBadRequest, http.StatusNotFound}, w.Code)
}

func TestErrorMapping(t *testing.T) {
	api := newTestAPI(t, stubClassifier{})
	created := api.createRequest(t)
	path := "/api/v1/requests/" + itoa(created.ID)

	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodGet, path, "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodGet, path, "ghost", nil).Code)
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodPost, path+"/take", "farmer", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodPost, "/api/v1/requests/999/take", "officer_a", nil).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodGet, "/api/v1/requests/abc", "farmer", nil).Code)

	w := api.do(t, http.MethodPost, path+"/messages", "officer_a", sendMessageRequest{Message: "hi"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "must take the request first", decode[map[string]string](t, w)["error"])

	assert.Equal(t, http.StatusOK, api.do(t, http.MethodPost, path+"/archive", "admin", nil).Code)
	assert.Equal(t, http.StatusConflict, api.do(t, http.MethodPost, path+"/archive", "admin", nil).Code)
	assert.Equal(t, http.StatusConflict, api.do(t, http.MethodPost, path+"/messages", "farmer", sendMessageRequest{Message: "hi"}).Code)
}

func TestTakeForwardFlow(t *testing.T) {
	api := newTestAPI(t, stubClassifier{})
	created := api.createRequest(t)
	path := "/api/v1/requests/" + itoa(created.ID)

	queue := decode[model.Page[requestView]](t, api.do(t, http.MethodGet, "/api/v1/requests/officer/queue", "officer_a", nil))
	require.Len(t, queue.Items, 1)

	w := api.do(t, http.MethodPost, path+"/take", "officer_a", nil)
	require.Equal(t, http.StatusOK, w.Code)
	taken := decode[requestView](t, w)
	assert.Equal(t, model.StatusInProgress, taken.Status)
	require.NotNil(t, taken.AssignedOfficerUsername)
	assert.Equal(t, "officer_a", *taken.AssignedOfficerUsername)

	w = api.do(t, http.MethodPost, path+"/forward", "officer_a", forwardRequest{ToOfficerUsername: "officer_a"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, path+"/forward", "officer_a", forwardRequest{ToOfficerUsername: "officer_b"})
	require.Equal(t, http.StatusOK, w.Code)
	fwd := decode[requestView](t, w)
	assert.Equal(t, model.StatusOpen, fwd.Status)
	assert.Nil(t, fwd.TakenAt)

	assigned := decode[model.Page[requestView]](t, api.do(t, http.MethodGet, "/api/v1/requests/officer/assigned", "officer_b", nil))
	require.Len(t, assigned.Items, 1)
	assert.Equal(t, created.ID, assigned.Items[0].ID)
}

func TestIdentificationNumberVisibility(t *testing.T) {
	api := newTestAPI(t, stubClassifier{})
	created := api.createRequest(t)
	path := "/api/v1/requests/" + itoa(created.ID)
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, path+"/take", "officer_a", nil).Code)

	staff := decode[map[string]interface{}](t, api.do(t, http.MethodGet, path, "admin", nil))
	assert.Equal(t, "GO-17", staff["assigned_officer_identification_number"])

	farmer := decode[map[string]interface{}](t, api.do(t, http.MethodGet, path, "farmer", nil))
	_, present := farmer["assigned_officer_identification_number"]
	assert.False(t, present)
	officer := farmer["assigned_officer"].(map[string]interface{})
	_, present = officer["identification_number"]
	assert.False(t, present)
}

func TestChatThread(t *testing.T) {
	api := newTestAPI(t, stubClassifier{})
	created := api.createRequest(t)
	path := "/api/v1/requests/" + itoa(created.ID)
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, path+"/take", "officer_a", nil).Code)

	w := api.do(t, http.MethodPost, path+"/messages", "officer_a", sendMessageRequest{Message: "  use resistant seed  "})
	require.Equal(t, http.StatusCreated, w.Code)
	sent := decode[messageView](t, w)
	assert.Equal(t, "use resistant seed", sent.Message)
	assert.Equal(t, "AGENT", sent.SenderRole)

	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodPost, path+"/messages", "farmer", sendMessageRequest{Message: " "}).Code)

	page := decode[model.Page[messageView]](t, api.do(t, http.MethodGet, path+"/messages", "farmer", nil))
	require.Len(t, page.Items, 2)
	assert.Equal(t, "leaves yellowing", page.Items[0].Message)
	assert.Equal(t, "farmer", page.Items[0].SenderUsername)
	assert.Equal(t, model.DefaultMessagePage, page.Size)
}

func TestPredictAndCreateEndpoint(t *testing.T) {
	label := "Leaf Blast"
	api := newTestAPI(t, stubClassifier{pred: &classifier.Prediction{Crop: "rice", Prediction: &label}})

	w := api.multipart(t, "/api/v1/ml/predict-and-create", "farmer", map[string]string{"crop": "rice"}, []byte("img"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	res := decode[predictAndCreateResponse](t, w)
	require.NotNil(t, res.RequestTopic)
	assert.Equal(t, "rice • Leaf Blast", *res.RequestTopic)
	require.NotNil(t, res.Advice)
	require.NotNil(t, res.Request)
	assert.Contains(t, res.Request.Description, "Spray copper fungicide.")
}

func TestPredictAndCreateClassifierDown(t *testing.T) {
	api := newTestAPI(t, stubClassifier{err: errs.Upstream("model unavailable")})

	w := api.multipart(t, "/api/v1/ml/predict-and-create", "farmer", map[string]string{"crop": "rice"}, []byte("img"))
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[predictAndCreateResponse](t, w)
	assert.Equal(t, "model unavailable", res.Prediction.Error)
	assert.Nil(t, res.Request)
	assert.Nil(t, res.RequestTopic)

	mine := decode[model.Page[requestView]](t, api.do(t, http.MethodGet, "/api/v1/requests/mine", "farmer", nil))
	assert.Empty(t, mine.Items)
}

func TestPredictEndpoint(t *testing.T) {
	api := newTestAPI(t, stubClassifier{err: errs.Upstream("classifier timed out")})
	w := api.multipart(t, "/api/v1/ml/predict", "officer_a", map[string]string{"crop": "rice"}, []byte("img"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "classifier timed out", decode[classifier.Prediction](t, w).Error)
}

func TestAdviceEndpoint(t *testing.T) {
	api := newTestAPI(t, stubClassifier{})
	w := api.do(t, http.MethodPost, "/api/v1/ml/advice", "farmer", adviceRequest{CropName: "rice", DiseaseName: "Blast"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Spray copper fungicide.", decode[map[string]string](t, w)["answer"])

	w = api.do(t, http.MethodPost, "/api/v1/ml/advice", "farmer", adviceRequest{CropName: "rice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, http.StatusServiceUnavailable, api.do(t, http.MethodGet, "/api/v1/ml/health", "farmer", nil).Code)
}

func TestAgentsEndpoint(t *testing.T) {
	api := newTestAPI(t, stubClassifier{})
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodGet, "/api/v1/users/officers", "farmer", nil).Code)

	agents := decode[[]agentView](t, api.do(t, http.MethodGet, "/api/v1/users/officers", "admin", nil))
	assert.Len(t, agents, 2)
}

func TestReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ready", Ready(map[string]Checker{"db": func(context.Context) error { return nil }}))
	r.GET("/broken", Ready(map[string]Checker{"db": func(context.Context) error { return errs.Upstream("down") }}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/broken", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func itoa(id uint64) string { return strconv.FormatUint(id, 10) }

func TestForwardAuthenticatesBeforeReadingBody(t *testing.T) {
	api := newTestAPI(t, stubClassifier{})
	created := api.createRequest(t)
	path := "/api/v1/requests/" + itoa(created.ID) + "/forward"

	assert.Equal(t, http.StatusUnauthorized, api.raw(http.MethodPost, path, "", "application/json", "{not json").Code)
	assert.Equal(t, http.StatusUnauthorized, api.raw(http.MethodPost, path, "ghost", "application/json", "{not json").Code)

	w := api.raw(http.MethodPost, path, "officer_a", "application/json", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid body", decode[map[string]string](t, w)["error"])
}

func TestMalformedMultipartIsRejected(t *testing.T) {
	api := newTestAPI(t, stubClassifier{pred: &classifier.Prediction{}})
	w := api.raw(http.MethodPost, "/api/v1/ml/predict", "farmer",
		"multipart/form-data; boundary=xyz", "this is not a multipart body")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "malformed multipart body", decode[map[string]string](t, w)["error"])
}

func TestOversizedUploadIsRejected(t *testing.T) {
	api := newTestAPI(t, stubClassifier{pred: &classifier.Prediction{}})
	w := api.multipart(t, "/api/v1/requests", "farmer", map[string]string{
		"category":    "rice",
		"description": "spots",
	}, bytes.Repeat([]byte("x"), 3<<20))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	mine := decode[model.Page[requestView]](t, api.do(t, http.MethodGet, "/api/v1/requests/mine", "farmer", nil))
	assert.Empty(t, mine.Items)
}

func TestCreateWithoutMultipart(t *testing.T) {
	api := newTestAPI(t, stubClassifier{})
	form := url.Values{"category": {"wheat"}, "description": {"rust on leaves"}}
	w := api.raw(http.MethodPost, "/api/v1/requests", "farmer", "application/x-www-form-urlencoded", form.Encode())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[requestView](t, w)
	assert.Equal(t, "wheat", created.Category)
	assert.Nil(t, created.ImageURL)
}
