package decoder

import (
	"fmt"
	"os/exec"

	"artregistry/logging"

	"github.com/barasher/go-exiftool"
)

// Metadata is the descriptive information extracted from an image file
// at ingestion time.
type Metadata struct {
	Format      string
	Width       int
	Height      int
	CreatedWith string
}

// ExiftoolAvailable reports whether the exiftool binary is on PATH.
// Metadata extraction degrades to empty metadata without it.
func ExiftoolAvailable() bool {
	_, err := exec.LookPath("exiftool")
	return err == nil
}

// DescribeFile extracts metadata with exiftool. The creation tool tag is
// where AI generators and editors record themselves, which is worth
// keeping on the registered record.
func DescribeFile(path string) (Metadata, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		logging.LogError("Failed to initialize exiftool: %v", err)
		return Metadata{}, err
	}
	defer et.Close()

	fileInfos := et.ExtractMetadata(path)
	if len(fileInfos) == 0 {
		return Metadata{}, fmt.Errorf("no metadata extracted for %s", path)
	}
	fileInfo := fileInfos[0]
	if fileInfo.Err != nil {
		logging.LogError("Error extracting metadata for %s: %v", path, fileInfo.Err)
		return Metadata{}, fileInfo.Err
	}

	var meta Metadata
	if v, err := fileInfo.GetString("FileType"); err == nil {
		meta.Format = v
	}
	if v, err := fileInfo.GetInt("ImageWidth"); err == nil {
		meta.Width = int(v)
	}
	if v, err := fileInfo.GetInt("ImageHeight"); err == nil {
		meta.Height = int(v)
	}

	// Different producers use different tags for the originating tool.
	for _, tag := range []string{"Software", "CreatorTool", "Creator"} {
		if v, err := fileInfo.GetString(tag); err == nil && v != "" {
			meta.CreatedWith = v
			break
		}
	}
	return meta, nil
}
