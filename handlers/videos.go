package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"vidsafe/events"
	"vidsafe/media"
	"vidsafe/users"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100

	// submitTimeout bounds how long an upload waits for a queue slot.
	submitTimeout = 5 * time.Second
)

// scope restricts a listing to what user may see: admins see everything,
// editors their organisation, viewers their own uploads.
func scope(user *users.User) media.Filter {
	switch user.Role {
	case users.RoleAdmin:
		return media.Filter{}
	case users.RoleEditor:
		org := user.Organization
		return media.Filter{Organization: &org}
	default:
		return media.Filter{UploadedBy: user.ID}
	}
}

func canAccess(user *users.User, video *media.Video) bool {
	switch user.Role {
	case users.RoleAdmin:
		return true
	case users.RoleEditor:
		return video.Organization == user.Organization
	default:
		return video.UploadedBy == user.ID
	}
}

// loadVideo resolves :id to a record the current user may access, writing
// the error response itself when it cannot.
func (a *API) loadVideo(c echo.Context) (*users.User, *media.Video, error) {
	user, err := GetUser(c)
	if err != nil {
		return nil, nil, message(c, http.StatusUnauthorized, "Authentication required")
	}

	video, err := a.Videos.FindByID(c.Request().Context(), c.Param("id"))
	if errors.Is(err, media.ErrNotFound) {
		return nil, nil, message(c, http.StatusNotFound, "Video not found")
	} else if err != nil {
		log.Errorln(err)
		return nil, nil, message(c, http.StatusInternalServerError, "Failed to fetch video")
	}
	if !canAccess(user, video) {
		return nil, nil, message(c, http.StatusForbidden, "Access denied")
	}
	return user, video, nil
}

type uploadResponse struct {
	ID         string       `json:"id"`
	Title      string       `json:"title"`
	Status     media.Status `json:"status"`
	UploadedAt time.Time    `json:"uploadedAt"`
}

func (a *API) VideoUpload(c echo.Context) error {
	user, err := GetUser(c)
	if err != nil {
		return message(c, http.StatusUnauthorized, "Authentication required")
	}

	req := c.Request()
	req.Body = http.MaxBytesReader(c.Response(), req.Body, a.MaxUploadBytes)

	fh, err := c.FormFile("video")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return message(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("Upload exceeds %s", humanize.IBytes(uint64(a.MaxUploadBytes))))
		}
		return message(c, http.StatusBadRequest, "No video file provided")
	}
	src, err := fh.Open()
	if err != nil {
		log.Errorln(err)
		return message(c, http.StatusInternalServerError, "Upload failed")
	}
	defer src.Close()

	mtype, err := mimetype.DetectReader(src)
	if err != nil {
		log.Errorln(err)
		return message(c, http.StatusInternalServerError, "Upload failed")
	}
	if !strings.HasPrefix(mtype.String(), "video/") {
		log.Infof("rejected upload %q detected as %s", fh.Filename, mtype.String())
		return message(c, http.StatusBadRequest, "Only video files are allowed")
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		log.Errorln(err)
		return message(c, http.StatusInternalServerError, "Upload failed")
	}

	id := uuid.Must(uuid.NewV7()).String()
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if ext == "" {
		ext = mtype.Extension()
	}
	dst := filepath.Join(a.UploadDir, id+ext)

	written, err := writeUpload(dst, src)
	if err != nil {
		log.Errorf("write upload %s: %v", dst, err)
		return message(c, http.StatusInternalServerError, "Upload failed")
	}
	log.Infof("stored %q as %s (%s, %s)", fh.Filename, dst, humanize.IBytes(uint64(written)), mtype.String())

	title := c.FormValue("title")
	if title == "" {
		title = fh.Filename
	}
	video := &media.Video{
		ID:                id,
		Title:             title,
		Description:       c.FormValue("description"),
		Filename:          filepath.Base(dst),
		Filepath:          dst,
		Filesize:          written,
		MimeType:          mtype.String(),
		UploadedBy:        user.ID,
		Organization:      user.Organization,
		Status:            media.StatusUploading,
		SensitivityStatus: media.SensitivityPending,
	}
	if err := a.Videos.Create(req.Context(), video); err != nil {
		log.Errorln(err)
		removeFile(dst)
		return message(c, http.StatusInternalServerError, "Upload failed")
	}

	// The record stays Uploading if this fails and is resubmitted on the
	// next startup.
	submitCtx, cancel := context.WithTimeout(context.WithoutCancel(req.Context()), submitTimeout)
	_, err = a.Runner.Submit(submitCtx, id)
	cancel()
	if err != nil {
		log.Errorf("submit video %s: %v", id, err)
		a.Broker.Publish(events.Event{
			VideoID: id,
			Message: "Processing could not be scheduled; it will be retried on restart",
			Error:   true,
		})
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "Video uploaded successfully",
		"video": uploadResponse{
			ID:         video.ID,
			Title:      video.Title,
			Status:     video.Status,
			UploadedAt: video.CreatedAt,
		},
	})
}

func writeUpload(dst string, src io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0700); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		removeFile(dst)
		return 0, err
	}
	return n, nil
}

func removeFile(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Errorf("remove %s: %v", path, err)
	}
}

type pagination struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Pages int   `json:"pages"`
}

func positiveQueryInt(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return n, nil
}

func (a *API) VideosList(c echo.Context) error {
	user, err := GetUser(c)
	if err != nil {
		return message(c, http.StatusUnauthorized, "Authentication required")
	}

	filter := scope(user)
	if s := media.Status(c.QueryParam("status")); s != "" {
		if !s.Valid() {
			return message(c, http.StatusBadRequest, fmt.Sprintf("unknown status %q", s))
		}
		filter.Status = s
	}
	if s := media.SensitivityStatus(c.QueryParam("sensitivityStatus")); s != "" {
		if !s.Valid() {
			return message(c, http.StatusBadRequest, fmt.Sprintf("unknown sensitivityStatus %q", s))
		}
		filter.SensitivityStatus = s
	}

	page, err := positiveQueryInt(c, "page", 1)
	if err != nil {
		return message(c, http.StatusBadRequest, err.Error())
	}
	limit, err := positiveQueryInt(c, "limit", defaultPageSize)
	if err != nil {
		return message(c, http.StatusBadRequest, err.Error())
	}
	limit = min(limit, maxPageSize)
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	videos, total, err := a.Videos.List(c.Request().Context(), filter)
	if err != nil {
		log.Errorln(err)
		return message(c, http.StatusInternalServerError, "Failed to fetch videos")
	}
	if videos == nil {
		videos = []media.Video{}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"videos": videos,
		"pagination": pagination{
			Total: total,
			Page:  page,
			Limit: limit,
			Pages: int(math.Ceil(float64(total) / float64(limit))),
		},
	})
}

func (a *API) VideoGet(c echo.Context) error {
	_, video, err := a.loadVideo(c)
	if video == nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"video": video})
}

type videoDetails struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

func (a *API) VideoPatch(c echo.Context) error {
	_, video, err := a.loadVideo(c)
	if video == nil {
		return err
	}

	var details videoDetails
	if err := c.Bind(&details); err != nil {
		return message(c, http.StatusBadRequest, "Invalid request")
	}
	if details.Title != nil && strings.TrimSpace(*details.Title) == "" {
		return message(c, http.StatusBadRequest, "title must not be empty")
	}

	ctx := c.Request().Context()
	err = a.Videos.UpdateDetails(ctx, video.ID, details.Title, details.Description)
	if errors.Is(err, media.ErrNotFound) {
		return message(c, http.StatusNotFound, "Video not found")
	} else if err != nil {
		log.Errorln(err)
		return message(c, http.StatusInternalServerError, "Update failed")
	}

	updated, err := a.Videos.FindByID(ctx, video.ID)
	if err != nil {
		log.Errorln(err)
		return message(c, http.StatusInternalServerError, "Update failed")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message": "Video updated successfully",
		"video":   updated,
	})
}

// VideoDelete stops any in-flight run, then removes the record and its file.
func (a *API) VideoDelete(c echo.Context) error {
	_, video, err := a.loadVideo(c)
	if video == nil {
		return err
	}

	if done, ok := a.Runner.Cancel(video.ID); ok {
		select {
		case <-done:
		case <-time.After(a.cancelWait):
			log.Warnf("run for video %s did not stop within %s", video.ID, a.cancelWait)
		}
	}

	err = a.Videos.Delete(c.Request().Context(), video.ID)
	if errors.Is(err, media.ErrNotFound) {
		return message(c, http.StatusNotFound, "Video not found")
	} else if err != nil {
		log.Errorln(err)
		return message(c, http.StatusInternalServerError, "Deletion failed")
	}
	removeFile(video.Filepath)

	log.Infof("deleted video %s", video.ID)
	return message(c, http.StatusOK, "Video deleted successfully")
}
