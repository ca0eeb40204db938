// Package stream serves stored media files with single byte-range support.
package stream

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"vidsafe/media"
)

var ErrNotReady = errors.New("video has not finished processing")

// Response is what the HTTP layer should write back. Body is nil for
// responses without content and must be closed by the caller otherwise.
type Response struct {
	Status int
	Header http.Header
	Body   io.ReadCloser
}

type sectionReadCloser struct {
	*io.SectionReader
	file *os.File
}

func (s *sectionReadCloser) Close() error {
	return s.file.Close()
}

type Server struct {
	log *logrus.Entry
}

func NewServer(logger *logrus.Logger) *Server {
	return &Server{log: logger.WithField("component", "stream")}
}

// Serve opens the video's file and prepares a full or partial response for
// rangeHeader. Every call opens its own file handle, so concurrent requests
// never share a read offset.
func (s *Server) Serve(video *media.Video, rangeHeader string) (*Response, error) {
	if video.Status != media.StatusCompleted {
		return nil, fmt.Errorf("video %s is %s: %w", video.ID, video.Status, ErrNotReady)
	}

	file, err := os.Open(video.Filepath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, media.Failuref(media.NotFound, "file for video %s is missing", video.ID)
	} else if err != nil {
		return nil, fmt.Errorf("open %s: %w", video.Filepath, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat %s: %w", video.Filepath, err)
	}
	if info.IsDir() {
		file.Close()
		return nil, media.Failuref(media.NotFound, "file for video %s is missing", video.ID)
	}
	size := info.Size()
	if size != video.Filesize {
		s.log.WithField("video", video.ID).Warnf("recorded size %d differs from file size %d", video.Filesize, size)
	}

	header := make(http.Header)
	contentType := video.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	header.Set("Accept-Ranges", "bytes")

	if rangeHeader == "" {
		header.Set("Content-Length", strconv.FormatInt(size, 10))
		return &Response{Status: http.StatusOK, Header: header, Body: file}, nil
	}

	rng, err := ParseRange(rangeHeader, size)
	switch {
	case errors.Is(err, ErrUnsatisfiable):
		file.Close()
		header.Del("Content-Type")
		header.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		return &Response{Status: http.StatusRequestedRangeNotSatisfiable, Header: header}, nil
	case err != nil:
		s.log.WithField("video", video.ID).Debugf("serving full body: %v", err)
		header.Set("Content-Length", strconv.FormatInt(size, 10))
		return &Response{Status: http.StatusOK, Header: header, Body: file}, nil
	}

	s.log.WithField("video", video.ID).Debugf("serving %s of %s", rng.ContentRange(size), humanize.IBytes(uint64(size)))
	header.Set("Content-Range", rng.ContentRange(size))
	header.Set("Content-Length", strconv.FormatInt(rng.Length(), 10))
	return &Response{
		Status: http.StatusPartialContent,
		Header: header,
		Body: &sectionReadCloser{
			SectionReader: io.NewSectionReader(file, rng.Start, rng.Length()),
			file:          file,
		},
	}, nil
}
