package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"vidsafe/media"
	"vidsafe/stream"
)

func (a *API) VideoStream(c echo.Context) error {
	_, video, err := a.loadVideo(c)
	if video == nil {
		return err
	}

	res, err := a.Streamer.Serve(video, c.Request().Header.Get("Range"))
	switch {
	case errors.Is(err, stream.ErrNotReady):
		return message(c, http.StatusConflict, "Video is still being processed")
	case media.KindOf(err) == media.NotFound:
		log.Warnln(err)
		return message(c, http.StatusNotFound, "Video file not found")
	case err != nil:
		log.Errorln(err)
		return message(c, http.StatusInternalServerError, "Streaming failed")
	}

	header := c.Response().Header()
	for k, v := range res.Header {
		header[k] = v
	}
	c.Response().WriteHeader(res.Status)
	if res.Body == nil {
		return nil
	}
	defer res.Body.Close()
	if c.Request().Method == http.MethodHead {
		return nil
	}

	if _, err := io.Copy(c.Response(), res.Body); err != nil {
		// usually the player seeking away and closing the connection
		log.Debugf("stream of video %s ended early: %v", video.ID, err)
	}
	return nil
}
