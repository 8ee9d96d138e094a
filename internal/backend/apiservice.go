package backend

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/jo-hoe/gopicture/internal/common"
	"github.com/jo-hoe/gopicture/internal/core"
	"github.com/jo-hoe/gopicture/internal/picture"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	uploadField  = "picture"
	apiKeyField  = "api_key"
	captionField = "caption"
)

type APIService struct {
	coreService *core.CoreService
}

type variantRequest struct {
	Variant string `validate:"oneof=thumb source"`
}

type picturesResponse struct {
	Pictures []picture.View `json:"pictures"`
}

func NewAPIService(coreService *core.CoreService) *APIService {
	return &APIService{
		coreService: coreService,
	}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	if e.Validator == nil {
		e.Validator = common.NewGenericEchoValidator()
	}
	// Set probe route
	e.GET("/probe", s.probeHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/pictures", s.listPicturesHandler)
	e.POST("/pictures", s.createInCollectionHandler)

	// :file is either {name}.{ext} (resource) or {name} (metadata)
	e.GET("/picture/:file", s.getPictureHandler)
	e.POST("/picture/:file", s.createPictureHandler)
	e.PUT("/picture/:file", s.replacePictureHandler)
	e.DELETE("/picture/:file", s.deletePictureHandler)
	e.GET("/picture/:variant/:file", s.getVariantHandler)
}

// probeHandler reports ready only while the picture store is reachable
func (s *APIService) probeHandler(ctx echo.Context) error {
	if !s.coreService.IsReady() {
		slog.Warn("probeHandler: picture store is not reachable")
		return errorResponse(ctx, http.StatusServiceUnavailable, core.MessageUnavailable)
	}
	return ctx.String(http.StatusOK, "API Service is running")
}

func (s *APIService) listPicturesHandler(ctx echo.Context) error {
	pictures, err := s.coreService.ListPictures(ctx.Request().Context())
	if err != nil {
		return failureResponse(ctx, "listPicturesHandler", err)
	}

	response := picturesResponse{Pictures: make([]picture.View, 0, len(pictures))}
	for _, p := range pictures {
		response.Pictures = append(response.Pictures, p.PublicView())
	}
	return ctx.JSON(http.StatusOK, response)
}

func (s *APIService) getPictureHandler(ctx echo.Context) error {
	file := fileParam(ctx)
	name, ext, ok := picture.SplitFilename(file)
	if !ok {
		return s.getPictureMetaHandler(ctx, file)
	}
	return s.writeVariant(ctx, "getPictureHandler", picture.VariantDefault, name, ext)
}

func (s *APIService) getPictureMetaHandler(ctx echo.Context, name string) error {
	p, err := s.coreService.GetPictureMeta(ctx.Request().Context(), name)
	if err != nil {
		return failureResponse(ctx, "getPictureMetaHandler", err)
	}
	return ctx.JSON(http.StatusOK, p.PublicView())
}

func (s *APIService) getVariantHandler(ctx echo.Context) error {
	request := variantRequest{Variant: ctx.Param("variant")}
	if err := ctx.Validate(request); err != nil {
		slog.Debug("getVariantHandler: unknown variant", "variant", request.Variant, "error", err)
		return errorResponse(ctx, http.StatusNotFound, core.MessageMissing)
	}
	name, ext, ok := picture.SplitFilename(fileParam(ctx))
	if !ok {
		return errorResponse(ctx, http.StatusNotFound, core.MessageMissing)
	}
	return s.writeVariant(ctx, "getVariantHandler", request.Variant, name, ext)
}

func (s *APIService) writeVariant(ctx echo.Context, handler, variant, name, ext string) error {
	p, err := s.coreService.GetPicture(ctx.Request().Context(), name, ext)
	if err != nil {
		return failureResponse(ctx, handler, err)
	}
	data, _ := p.Variant(variant)
	return ctx.Blob(http.StatusOK, p.MimeType, data)
}

func (s *APIService) createPictureHandler(ctx echo.Context) error {
	name, ext, ok := picture.SplitFilename(fileParam(ctx))
	if !ok {
		return errorResponse(ctx, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	}

	request, err := s.pictureRequest(ctx, name, ext)
	if err != nil {
		return failureResponse(ctx, "createPictureHandler", err)
	}
	p, err := s.coreService.CreatePicture(ctx.Request().Context(), request)
	if err != nil {
		return failureResponse(ctx, "createPictureHandler", err)
	}
	return successResponse(ctx, http.StatusCreated, core.MessageCreated, p.Filename())
}

func (s *APIService) createInCollectionHandler(ctx echo.Context) error {
	request, err := s.pictureRequest(ctx, "", "")
	if err != nil {
		return failureResponse(ctx, "createInCollectionHandler", err)
	}
	p, err := s.coreService.CreatePicture(ctx.Request().Context(), request)
	if err != nil {
		return failureResponse(ctx, "createInCollectionHandler", err)
	}
	return successResponse(ctx, http.StatusCreated, core.MessageCreated, p.Filename())
}

func (s *APIService) replacePictureHandler(ctx echo.Context) error {
	name, ext, ok := picture.SplitFilename(fileParam(ctx))
	if !ok {
		return errorResponse(ctx, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	}

	request, err := s.pictureRequest(ctx, name, ext)
	if err != nil {
		return failureResponse(ctx, "replacePictureHandler", err)
	}
	p, err := s.coreService.ReplacePicture(ctx.Request().Context(), request)
	if err != nil {
		return failureResponse(ctx, "replacePictureHandler", err)
	}
	// Replacing reuses the create status
	return successResponse(ctx, http.StatusCreated, core.MessageUpdated, p.Filename())
}

func (s *APIService) deletePictureHandler(ctx echo.Context) error {
	name, ext, ok := picture.SplitFilename(fileParam(ctx))
	if !ok {
		return errorResponse(ctx, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	}

	filename, err := s.coreService.DeletePicture(ctx.Request().Context(), ctx.FormValue(apiKeyField), name, ext)
	if err != nil {
		return failureResponse(ctx, "deletePictureHandler", err)
	}
	return successResponse(ctx, http.StatusCreated, core.MessageDeleted, filename)
}

// pictureRequest reads the api key, caption and optional upload of a create or replace call.
// A missing upload is left nil so the core service can rank it against the api key check.
func (s *APIService) pictureRequest(ctx echo.Context, name, ext string) (*core.PictureRequest, error) {
	request := &core.PictureRequest{
		APIKey:  ctx.FormValue(apiKeyField),
		Name:    name,
		Ext:     ext,
		Caption: ctx.FormValue(captionField),
	}

	file, err := ctx.FormFile(uploadField)
	if err != nil {
		slog.Debug("pictureRequest: no uploaded picture", "error", err)
		return request, nil
	}

	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Error("pictureRequest: failed to close uploaded file reader", "error", cerr, "filename", file.Filename)
		}
	}()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}

	request.Upload = &picture.Upload{
		Filename: file.Filename,
		MimeType: file.Header.Get(echo.HeaderContentType),
		Data:     data,
	}
	return request, nil
}

// fileParam returns the decoded :file parameter. Echo routes on the raw path when the
// request carries escapes that differ from the default encoding, leaving params escaped.
func fileParam(ctx echo.Context) string {
	file := ctx.Param("file")
	if ctx.Request().URL.RawPath == "" {
		return file
	}
	if unescaped, err := url.PathUnescape(file); err == nil {
		return unescaped
	}
	return file
}
