package handler

import (
	"io"
	"mime"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"docvault/internal/http/middleware"
	"docvault/internal/model"
	"docvault/internal/service"
)

// PINHeader carries the access PIN for protected downloads.
const PINHeader = "X-Document-PIN"

// StrategyHeader reports which retrieval strategy produced the bytes.
const StrategyHeader = "X-Retrieval-Strategy"

// callerOf returns the authenticated caller or a 401 for the global error handler.
func callerOf(c *fiber.Ctx) (model.Caller, error) {
	caller, ok := middleware.CallerFromCtx(c)
	if !ok || caller.ID == "" {
		return model.Caller{}, fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}
	return caller, nil
}

// documentID validates the :id route param.
func documentID(c *fiber.Ctx) (string, bool) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

// ListDocuments handles GET /documents?limit=&offset=&category=&search=&all_versions=.
//
// @Summary List visible documents
// @Tags documents
// @Produce json
// @Security BearerAuth
// @Param limit query int false "page size (max 100)" default(10)
// @Param offset query int false "page offset" default(0)
// @Param category query string false "category filter" Enums(image, pdf, document, other)
// @Param search query string false "substring match on name, description and tags"
// @Param all_versions query bool false "include non-latest versions" default(false)
// @Success 200 {object} service.DocumentListResult
// @Failure 400 {object} errorPayload
// @Failure 401 {object} errorPayload
// @Router /documents [get]
func ListDocuments(svc service.DocumentService, log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := callerOf(c)
		if err != nil {
			return err
		}

		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}
		allVersions, err := strconv.ParseBool(c.Query("all_versions", "false"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ALL_VERSIONS", "all_versions must be a boolean")
		}

		filter := service.ListFilter{
			Category:    model.Category(c.Query("category")),
			Search:      c.Query("search"),
			AllVersions: allVersions,
		}
		res, err := svc.List(c.UserContext(), filter, service.Page{Limit: limit, Offset: offset}, caller)
		if err != nil {
			return serviceError(c, log, err)
		}
		return c.JSON(res)
	}
}

// UploadDocument handles POST /documents (multipart/form-data).
// Fields: file (required), access_level, pin, description, tags (repeated or comma separated).
//
// @Summary Upload a document or a new version of an existing one
// @Tags documents
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param file formData file true "payload"
// @Param access_level formData string false "access level" Enums(public, private, protected) default(private)
// @Param pin formData string false "required for protected documents, at least 4 characters"
// @Param description formData string false "description"
// @Param tags formData string false "comma separated"
// @Success 201 {object} model.Document
// @Failure 400 {object} errorPayload
// @Failure 409 {object} errorPayload
// @Failure 413 {object} errorPayload
// @Failure 502 {object} errorPayload
// @Router /documents [post]
func UploadDocument(svc service.DocumentService, log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := callerOf(c)
		if err != nil {
			return err
		}

		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot read uploaded file")
		}

		in := service.UploadInput{
			OwnerID:      caller.ID,
			Data:         data,
			OriginalName: fh.Filename,
			MimeType:     fh.Header.Get(fiber.HeaderContentType),
			AccessLevel:  model.AccessLevel(c.FormValue("access_level")),
			PIN:          c.FormValue("pin"),
			Description:  c.FormValue("description"),
			Tags:         formTags(c),
		}

		doc, err := svc.Upload(c.UserContext(), in)
		if err != nil {
			return serviceError(c, log, err)
		}
		return c.Status(fiber.StatusCreated).JSON(doc)
	}
}

func formTags(c *fiber.Ctx) []string {
	form, err := c.MultipartForm()
	if err != nil {
		return nil
	}
	var tags []string
	for _, v := range form.Value["tags"] {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}
	return tags
}

// GetDocument handles GET /documents/:id.
//
// @Summary Get document metadata
// @Tags documents
// @Produce json
// @Security BearerAuth
// @Param id path string true "document id" format(uuid)
// @Success 200 {object} model.Document
// @Failure 403 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Router /documents/{id} [get]
func GetDocument(svc service.DocumentService, log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := callerOf(c)
		if err != nil {
			return err
		}
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		doc, err := svc.Get(c.UserContext(), id, caller)
		if err != nil {
			return serviceError(c, log, err)
		}
		return c.JSON(doc)
	}
}

// DownloadDocument handles GET /documents/:id/download.
// The PIN is read from the X-Document-PIN header, falling back to the pin query parameter.
//
// @Summary Download document content
// @Tags documents
// @Produce octet-stream
// @Security BearerAuth
// @Param id path string true "document id" format(uuid)
// @Param X-Document-PIN header string false "PIN for protected documents"
// @Param pin query string false "PIN for protected documents"
// @Success 200 {file} file
// @Header 200 {string} X-Retrieval-Strategy "strategy that produced the bytes"
// @Failure 403 {object} errorPayload "PIN_REQUIRED, INVALID_PIN or FORBIDDEN"
// @Failure 404 {object} errorPayload
// @Failure 502 {object} errorPayload
// @Failure 503 {object} errorPayload
// @Router /documents/{id}/download [get]
func DownloadDocument(svc service.DocumentService, log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := callerOf(c)
		if err != nil {
			return err
		}
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		var pin *string
		if v := c.Get(PINHeader, c.Query("pin")); v != "" {
			pin = &v
		}

		res, err := svc.Download(c.UserContext(), id, caller, pin)
		if err != nil {
			return serviceError(c, log, err)
		}

		ct := res.MimeType
		if ct == "" {
			ct = fiber.MIMEOctetStream
		}
		c.Set(fiber.HeaderContentType, ct)
		c.Set(fiber.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": res.Filename}))
		c.Set(StrategyHeader, string(res.Strategy))
		return c.Status(fiber.StatusOK).Send(res.Data)
	}
}

// ListVersions handles GET /documents/:id/versions.
//
// @Summary List the version chain of a document, newest first
// @Tags documents
// @Produce json
// @Security BearerAuth
// @Param id path string true "document id" format(uuid)
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} errorPayload
// @Router /documents/{id}/versions [get]
func ListVersions(svc service.DocumentService, log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := callerOf(c)
		if err != nil {
			return err
		}
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		docs, err := svc.ListVersions(c.UserContext(), id, caller)
		if err != nil {
			return serviceError(c, log, err)
		}
		return c.JSON(fiber.Map{"data": docs, "total": len(docs)})
	}
}

// DeleteDocument handles DELETE /documents/:id.
// The body reports whether the blob was removed; metadata is gone either way.
//
// @Summary Delete a document and repair its version chain
// @Tags documents
// @Produce json
// @Security BearerAuth
// @Param id path string true "document id" format(uuid)
// @Success 200 {object} service.DeleteResult
// @Failure 403 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Router /documents/{id} [delete]
func DeleteDocument(svc service.DocumentService, log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := callerOf(c)
		if err != nil {
			return err
		}
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		res, err := svc.Delete(c.UserContext(), id, caller)
		if err != nil {
			return serviceError(c, log, err)
		}
		return c.Status(fiber.StatusOK).JSON(res)
	}
}
