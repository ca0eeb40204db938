package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
	"golang.org/x/sys/unix"

	"vidsafe/config"
)

type BuildInfo struct {
	BuildDate    string `json:"buildDate"`
	BuildId      string `json:"buildId"`
	BuildIdShort string `json:"buildIdShort"`
}

func MakeBuildInfo() BuildInfo {
	sha := config.GetGitSHA()
	short := sha
	if len(short) > 7 {
		short = short[0:7]
	}
	return BuildInfo{
		BuildDate:    config.GetBuildDate(),
		BuildId:      sha,
		BuildIdShort: short,
	}
}

// getFreeSpace returns the free space in bytes for the filesystem containing the given directory
func getFreeSpace(dir string) (uint64, error) {
	var stat unix.Statfs_t
	err := unix.Statfs(dir, &stat)
	if err != nil {
		return 0, fmt.Errorf("error getting filesystem stats: %v", err)
	}

	// Calculate free space
	freeSpace := stat.Bavail * uint64(stat.Bsize)
	return freeSpace, nil
}

// getDirectorySize calculates the total size of a directory in bytes
func getDirectorySize(dir string) (int64, error) {
	var size int64
	err := filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("error walking directory: %v", err)
	}
	return size, nil
}

func (a *API) StatusGet(c echo.Context) error {
	ffprobe, err := a.Inspector.Version(c.Request().Context())
	if err != nil {
		log.Errorln(err)
		ffprobe = "unavailable"
	}

	free, err := getFreeSpace(a.UploadDir)
	if err != nil {
		log.Errorln(err)
	}
	used, err := getDirectorySize(a.UploadDir)
	if err != nil {
		log.Errorln(err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"build":       MakeBuildInfo(),
		"ffprobe":     ffprobe,
		"free":        humanize.IBytes(free),
		"used":        humanize.IBytes(uint64(used)),
		"subscribers": a.Broker.Len(),
	})
}
