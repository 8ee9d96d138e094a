package backend

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/jo-hoe/gopicture/internal/backend/database"
	"github.com/jo-hoe/gopicture/internal/core"
	"github.com/jo-hoe/gopicture/internal/picture"
	"github.com/labstack/echo/v4"
)

const testAPIKey = "test-api-key"

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	return newTestServerWithDatabase(t, database.NewMemoryDatabase())
}

func newTestServerWithDatabase(t *testing.T, databaseService database.DatabaseService) *echo.Echo {
	t.Helper()

	cfg := &core.ServiceConfig{
		APIKey:   testAPIKey,
		Database: core.Database{Type: "memory"},
	}
	coreService, err := core.NewCoreServiceWithDatabase(cfg, databaseService)
	if err != nil {
		t.Fatalf("NewCoreServiceWithDatabase error: %v", err)
	}
	t.Cleanup(func() { _ = coreService.Close() })

	e := echo.New()
	e.HTTPErrorHandler = HTTPErrorHandler
	NewAPIService(coreService).SetRoutes(e)
	return e
}

func createTestJPEG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 120, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

// createPNGHeader returns only the signature and IHDR chunk of a grayscale PNG,
// which is all the decoder needs to report its dimensions.
func createPNGHeader(t *testing.T, width, height uint32) []byte {
	t.Helper()

	chunk := []byte("IHDR")
	chunk = binary.BigEndian.AppendUint32(chunk, width)
	chunk = binary.BigEndian.AppendUint32(chunk, height)
	chunk = append(chunk, 8, 0, 0, 0, 0)

	data := []byte("\x89PNG\r\n\x1a\n")
	data = binary.BigEndian.AppendUint32(data, uint32(len(chunk)-4))
	data = append(data, chunk...)
	return binary.BigEndian.AppendUint32(data, crc32.ChecksumIEEE(chunk))
}

type uploadForm struct {
	apiKey   string
	caption  string
	filename string
	mimeType string
	data     []byte
}

// newUploadRequest builds a multipart request; a nil data slice omits the picture part
func newUploadRequest(t *testing.T, method, target string, form uploadForm) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if form.apiKey != "" {
		if err := writer.WriteField(apiKeyField, form.apiKey); err != nil {
			t.Fatalf("WriteField error: %v", err)
		}
	}
	if form.caption != "" {
		if err := writer.WriteField(captionField, form.caption); err != nil {
			t.Fatalf("WriteField error: %v", err)
		}
	}
	if form.data != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, uploadField, form.filename))
		header.Set("Content-Type", form.mimeType)
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("CreatePart error: %v", err)
		}
		if _, err := part.Write(form.data); err != nil {
			t.Fatalf("part write error: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("multipart close error: %v", err)
	}

	req := httptest.NewRequest(method, target, &body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	return req
}

func validForm(t *testing.T) uploadForm {
	return uploadForm{
		apiKey:   testAPIKey,
		caption:  "a caption...",
		filename: "Disco Boogie.jpg",
		mimeType: "image/jpeg",
		data:     createTestJPEG(t, 720, 480),
	}
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeSuccess(t *testing.T, rec *httptest.ResponseRecorder) successBody {
	t.Helper()

	var envelope successEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to decode success envelope %q: %v", rec.Body.String(), err)
	}
	return envelope.Success
}

func expectErrorEnvelope(t *testing.T, rec *httptest.ResponseRecorder, status int, message string) {
	t.Helper()

	if rec.Code != status {
		t.Fatalf("expected status %d, got %d (%s)", status, rec.Code, rec.Body.String())
	}
	var envelope errorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to decode error envelope %q: %v", rec.Body.String(), err)
	}
	if envelope.Error.Status != status {
		t.Errorf("expected envelope status %d, got %d", status, envelope.Error.Status)
	}
	if message != "" && envelope.Error.Message != message {
		t.Errorf("expected message %q, got %q", message, envelope.Error.Message)
	}
}

func TestProbe(t *testing.T) {
	e := newTestServer(t)

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/probe", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

type unreachableDatabase struct {
	*database.MemoryDatabase
}

func (u *unreachableDatabase) DoesDatabaseExist() bool {
	return false
}

func TestProbe_StoreUnreachable(t *testing.T) {
	e := newTestServerWithDatabase(t, &unreachableDatabase{database.NewMemoryDatabase()})

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/probe", nil))
	expectErrorEnvelope(t, rec, http.StatusServiceUnavailable, core.MessageUnavailable)
}

func TestCreateAndGetPicture(t *testing.T) {
	e := newTestServer(t)

	rec := serve(e, newUploadRequest(t, http.MethodPost, "/picture/disco-boogie.jpg", validForm(t)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	success := decodeSuccess(t, rec)
	if success.Message != core.MessageCreated || success.Resource != "disco-boogie.jpg" {
		t.Errorf("unexpected success body: %+v", success)
	}

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/picture/disco-boogie.jpg", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if contentType := rec.Header().Get(echo.HeaderContentType); contentType != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %q", contentType)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("default variant is not an image: %v", err)
	}
	if cfg.Width != 360 || cfg.Height != 240 {
		t.Errorf("expected default variant 360x240, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestGetVariants(t *testing.T) {
	e := newTestServer(t)
	form := validForm(t)
	if rec := serve(e, newUploadRequest(t, http.MethodPost, "/picture/disco-boogie.jpg", form)); rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d (%s)", rec.Code, rec.Body.String())
	}

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/picture/source/disco-boogie.jpg", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("source: expected 200, got %d", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), form.data) {
		t.Error("source variant differs from the uploaded bytes")
	}

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/picture/thumb/disco-boogie.jpg", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("thumb: expected 200, got %d", rec.Code)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("thumb variant is not an image: %v", err)
	}
	if cfg.Width > 120 || cfg.Height > 90 {
		t.Errorf("thumb %dx%d exceeds 120x90", cfg.Width, cfg.Height)
	}

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/picture/large/disco-boogie.jpg", nil))
	expectErrorEnvelope(t, rec, http.StatusNotFound, core.MessageMissing)
}

func TestCreatePicture_Duplicate(t *testing.T) {
	e := newTestServer(t)

	if rec := serve(e, newUploadRequest(t, http.MethodPost, "/picture/disco-boogie.jpg", validForm(t))); rec.Code != http.StatusCreated {
		t.Fatalf("first create: expected 201, got %d", rec.Code)
	}
	rec := serve(e, newUploadRequest(t, http.MethodPost, "/picture/Disco_Boogie.jpg", validForm(t)))
	expectErrorEnvelope(t, rec, http.StatusForbidden, core.MessageExists)
}

func TestCreatePicture_Rejected(t *testing.T) {
	// 30000x30000 pixels in a few dozen bytes
	bomb := createPNGHeader(t, 30000, 30000)

	tests := []struct {
		name    string
		mutate  func(*uploadForm)
		status  int
		message string
	}{
		{
			name:    "missing api key",
			mutate:  func(f *uploadForm) { f.apiKey = "" },
			status:  http.StatusUnauthorized,
			message: core.MessageUnauthorized,
		},
		{
			name:    "wrong api key",
			mutate:  func(f *uploadForm) { f.apiKey = "nope" },
			status:  http.StatusUnauthorized,
			message: core.MessageUnauthorized,
		},
		{
			name:    "no upload",
			mutate:  func(f *uploadForm) { f.data = nil },
			status:  http.StatusBadRequest,
			message: core.MessageMissing,
		},
		{
			name:    "unsupported type",
			mutate:  func(f *uploadForm) { f.mimeType = "image/bmp" },
			status:  http.StatusBadRequest,
			message: core.MessageInvalid,
		},
		{
			name:    "caption too long",
			mutate:  func(f *uploadForm) { f.caption = strings.Repeat("x", 1025) },
			status:  http.StatusBadRequest,
			message: core.MessageInvalidCaption,
		},
		{
			name: "oversized image",
			mutate: func(f *uploadForm) {
				f.filename = "bomb.png"
				f.mimeType = "image/png"
				f.data = bomb
			},
			status:  http.StatusForbidden,
			message: core.MessageNotSaved,
		},
		{
			name:    "not an image",
			mutate:  func(f *uploadForm) { f.data = []byte("definitely not a jpeg") },
			status:  http.StatusForbidden,
			message: core.MessageNotSaved,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestServer(t)
			form := validForm(t)
			tt.mutate(&form)

			rec := serve(e, newUploadRequest(t, http.MethodPost, "/picture/disco-boogie.jpg", form))
			expectErrorEnvelope(t, rec, tt.status, tt.message)

			rec = serve(e, httptest.NewRequest(http.MethodGet, "/picture/disco-boogie.jpg", nil))
			if rec.Code != http.StatusNotFound {
				t.Errorf("expected nothing persisted, got %d", rec.Code)
			}
		})
	}
}

func TestCreatePicture_InCollection(t *testing.T) {
	e := newTestServer(t)

	rec := serve(e, newUploadRequest(t, http.MethodPost, "/pictures", validForm(t)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if resource := decodeSuccess(t, rec).Resource; resource != "disco-boogie.jpg" {
		t.Errorf("expected resource disco-boogie.jpg, got %q", resource)
	}

	rec = serve(e, newUploadRequest(t, http.MethodPost, "/pictures", validForm(t)))
	expectErrorEnvelope(t, rec, http.StatusForbidden, core.MessageExists)
}

func TestCreatePicture_Concurrent(t *testing.T) {
	e := newTestServer(t)
	form := validForm(t)

	const workers = 8
	requests := make([]*http.Request, workers)
	for i := range requests {
		requests[i] = newUploadRequest(t, http.MethodPost, "/picture/disco-boogie.jpg", form)
	}

	codes := make([]int, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = serve(e, requests[i]).Code
		}(i)
	}
	wg.Wait()

	created, forbidden := 0, 0
	for _, code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusForbidden:
			forbidden++
		default:
			t.Errorf("unexpected status %d", code)
		}
	}
	if created != 1 || forbidden != workers-1 {
		t.Errorf("expected 1 created and %d forbidden, got %d and %d", workers-1, created, forbidden)
	}
}

func TestReplacePicture(t *testing.T) {
	e := newTestServer(t)

	rec := serve(e, newUploadRequest(t, http.MethodPut, "/picture/disco-boogie.jpg", validForm(t)))
	expectErrorEnvelope(t, rec, http.StatusForbidden, core.MessageMissing)

	if rec := serve(e, newUploadRequest(t, http.MethodPost, "/picture/disco-boogie.jpg", validForm(t))); rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d", rec.Code)
	}

	form := validForm(t)
	form.caption = "second take"
	form.data = createTestJPEG(t, 200, 100)
	rec = serve(e, newUploadRequest(t, http.MethodPut, "/picture/disco-boogie.jpg", form))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if message := decodeSuccess(t, rec).Message; message != core.MessageUpdated {
		t.Errorf("expected %q, got %q", core.MessageUpdated, message)
	}

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/picture/source/disco-boogie.jpg", nil))
	if !bytes.Equal(rec.Body.Bytes(), form.data) {
		t.Error("expected source to be replaced")
	}
}

func TestDeletePicture(t *testing.T) {
	e := newTestServer(t)

	if rec := serve(e, newUploadRequest(t, http.MethodPost, "/picture/disco-boogie.jpg", validForm(t))); rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d", rec.Code)
	}

	rec := serve(e, httptest.NewRequest(http.MethodDelete, "/picture/disco-boogie.jpg?api_key=nope", nil))
	expectErrorEnvelope(t, rec, http.StatusUnauthorized, core.MessageUnauthorized)

	rec = serve(e, httptest.NewRequest(http.MethodDelete, "/picture/disco-boogie.jpg?api_key="+testAPIKey, nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if success := decodeSuccess(t, rec); success.Message != core.MessageDeleted || success.Resource != "disco-boogie.jpg" {
		t.Errorf("unexpected success body: %+v", success)
	}

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/picture/disco-boogie.jpg", nil))
	expectErrorEnvelope(t, rec, http.StatusNotFound, core.MessageMissing)

	rec = serve(e, httptest.NewRequest(http.MethodDelete, "/picture/disco-boogie.jpg?api_key="+testAPIKey, nil))
	expectErrorEnvelope(t, rec, http.StatusNotFound, core.MessageMissing)
}

func TestMutatingMetadataPath(t *testing.T) {
	e := newTestServer(t)

	rec := serve(e, newUploadRequest(t, http.MethodPost, "/picture/disco-boogie", validForm(t)))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestGetPictureMetaAndList(t *testing.T) {
	e := newTestServer(t)

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/picture/disco-boogie", nil))
	expectErrorEnvelope(t, rec, http.StatusNotFound, core.MessageMissing)

	if rec := serve(e, newUploadRequest(t, http.MethodPost, "/picture/disco-boogie.jpg", validForm(t))); rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d", rec.Code)
	}

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/picture/disco-boogie", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var fields map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &fields); err != nil {
		t.Fatalf("failed to decode metadata: %v", err)
	}
	for _, key := range []string{"name", "caption", "updated_at", "default_url", "thumb_url", "source_url"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("expected top-level field %q in %s", key, rec.Body.String())
		}
	}
	var meta picture.View
	if err := json.Unmarshal(rec.Body.Bytes(), &meta); err != nil {
		t.Fatalf("failed to decode metadata: %v", err)
	}
	if meta.Name != "disco-boogie" || meta.Caption != "a caption..." {
		t.Errorf("unexpected metadata: %+v", meta)
	}
	if meta.ThumbURL != "/picture/thumb/disco-boogie.jpg" {
		t.Errorf("unexpected thumb url %q", meta.ThumbURL)
	}

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/pictures", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list picturesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(list.Pictures) != 1 || list.Pictures[0].DefaultURL != "/picture/disco-boogie.jpg" {
		t.Errorf("unexpected list: %+v", list.Pictures)
	}
}

func TestPublicViewURLsResolve(t *testing.T) {
	e := newTestServer(t)

	form := validForm(t)
	form.filename = "50%.jpg"
	rec := serve(e, newUploadRequest(t, http.MethodPost, "/pictures", form))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/pictures", nil))
	var list picturesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(list.Pictures) != 1 {
		t.Fatalf("expected one picture, got %+v", list.Pictures)
	}

	view := list.Pictures[0]
	if view.Name != "50%" {
		t.Errorf("expected name 50%%, got %q", view.Name)
	}
	for _, target := range []string{view.DefaultURL, view.ThumbURL, view.SourceURL} {
		rec := serve(e, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d (%s)", target, rec.Code, rec.Body.String())
		}
	}
}

func TestGetVariants_Concurrent(t *testing.T) {
	e := newTestServer(t)
	if rec := serve(e, newUploadRequest(t, http.MethodPost, "/picture/disco-boogie.jpg", validForm(t))); rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d", rec.Code)
	}

	const workers = 8
	codes := make([]int, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			variant := picture.VariantThumb
			if i%2 == 1 {
				variant = picture.VariantSource
			}
			codes[i] = serve(e, httptest.NewRequest(http.MethodGet, "/picture/"+variant+"/disco-boogie.jpg", nil)).Code
		}(i)
	}
	wg.Wait()

	for i, code := range codes {
		if code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i, code)
		}
	}
}

func TestUnknownRoute(t *testing.T) {
	e := newTestServer(t)

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/nothing/here", nil))
	expectErrorEnvelope(t, rec, http.StatusNotFound, core.MessageMissing)
}
