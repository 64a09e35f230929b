package api

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Prakash8999/focusboard-pro/domain"
	"github.com/Prakash8999/focusboard-pro/upload"
)

type uploadResponse struct {
	URL string `json:"url"`
}

func uploadImage(uploader Uploader, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, domain.ValidationError{Field: "file", Reason: "missing multipart file"})
		}
		if fh.Size > upload.MaxImageSize {
			return writeError(c, upload.ErrTooLarge)
		}

		src, err := fh.Open()
		if err != nil {
			return writeError(c, err)
		}
		defer src.Close()
		data, err := io.ReadAll(io.LimitReader(src, upload.MaxImageSize+1))
		if err != nil {
			return writeError(c, err)
		}

		url, err := uploader.Upload(ctx, fh.Filename, fh.Header.Get(echo.HeaderContentType), int64(len(data)), data)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, uploadResponse{URL: url})
	}
}

type assistantRequest struct {
	Prompt string `json:"prompt"`
	AsJSON bool   `json:"asJson"`
}

type assistantResponse struct {
	Text string `json:"text"`
}

func assistantChat(assistant Assistant, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req assistantRequest
		if err := decodeBody(c, &req); err != nil {
			return jsonError(c, http.StatusBadRequest, "invalid_body", err)
		}
		if req.Prompt == "" {
			return writeError(c, domain.ValidationError{Field: "prompt", Reason: "must not be empty"})
		}

		if req.AsJSON {
			doc, err := assistant.ChatJSON(ctx, req.Prompt)
			if err != nil {
				return writeError(c, err)
			}
			return c.JSONBlob(http.StatusOK, doc)
		}

		text, err := assistant.Chat(ctx, req.Prompt)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, assistantResponse{Text: text})
	}
}
