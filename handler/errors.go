package handler

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// HTTPErrorHandler serves the static <code>.html page from pages for HTML
// requests and echo's JSON error for API routes.
func HTTPErrorHandler(pages fs.FS, log logrus.FieldLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
		}
		if code >= http.StatusInternalServerError {
			log.WithError(err).WithField("path", c.Request().URL.Path).Error("request failed")
		}

		if isAPI(c) {
			msg := http.StatusText(code)
			if he != nil && he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
			if err := c.JSON(code, map[string]string{"message": msg}); err != nil {
				log.WithError(err).Error("write error response")
			}
			return
		}

		page, err := fs.ReadFile(pages, fmt.Sprintf("%d.html", code))
		if err != nil {
			page, err = fs.ReadFile(pages, "500.html")
		}
		if err != nil {
			err = c.String(code, http.StatusText(code))
		} else if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.HTMLBlob(code, page)
		}
		if err != nil {
			log.WithError(err).Error("write error page")
		}
	}
}

func isAPI(c echo.Context) bool {
	p := c.Request().URL.Path
	return len(p) >= 5 && p[:5] == "/api/"
}
