package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const notFoundMessage = "Not found"

type requestError struct {
	Status  int
	Message string
}

func (e requestError) Error() string {
	return e.Message
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(c echo.Context, status int, message string) error {
	return c.JSON(status, errorBody{Error: message})
}

func handleNotFound(c echo.Context) error {
	return writeError(c, http.StatusNotFound, notFoundMessage)
}

// gatewayErrorHandler renders every failure as {"error": message}. Unknown
// routes and methods are a plain 404; anything the pipeline could not handle
// is reported as a bad gateway.
func gatewayErrorHandler(log *zap.SugaredLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var reqErr requestError
		if errors.As(err, &reqErr) {
			_ = writeError(c, reqErr.Status, reqErr.Message)
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			switch he.Code {
			case http.StatusNotFound, http.StatusMethodNotAllowed:
				_ = writeError(c, http.StatusNotFound, notFoundMessage)
			default:
				_ = writeError(c, he.Code, fmt.Sprint(he.Message))
			}
			return
		}

		log.Errorw("request failed", "path", c.Request().URL.Path, "error", err)
		_ = writeError(c, http.StatusBadGateway, err.Error())
	}
}
