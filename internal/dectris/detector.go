package dectris

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/jfolker/bigpicture/internal/codec"
	"github.com/jfolker/bigpicture/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DetectorConfig caches the detector subsystem parameters carried by the
// part-2 message of a global header. Immutable once populated; one per
// series. Field names match the JSON field names.
type DetectorConfig struct {
	BeamCenterX                    float64 // pixels
	BeamCenterY                    float64 // pixels
	BitDepthImage                  int64   // must be 32
	Compression                    codec.Compressor
	CountTime                      float64 // seconds
	CountrateCorrectionCountCutoff int64   // counts
	Description                    string
	DetectorDistance               float64 // meters
	DetectorNumber                 string
	FrameTime                      float64 // seconds
	NImages                        int64
	NTrigger                       int64
	OmegaStart                     float64 // degrees
	OmegaIncrement                 float64 // degrees
	SensorThickness                float64 // meters
	SoftwareVersion                string
	Wavelength                     float64 // angstroms
	XPixelSize                     float64 // meters
	XPixelsInDetector              int64
	YPixelSize                     float64 // meters
	YPixelsInDetector              int64
}

// detectorConfigWire uses pointer fields so that absent mandatory values
// are distinguishable from zero values.
type detectorConfigWire struct {
	BeamCenterX                    *float64 `json:"beam_center_x"`
	BeamCenterY                    *float64 `json:"beam_center_y"`
	BitDepthImage                  *int64   `json:"bit_depth_image"`
	Compression                    *string  `json:"compression"`
	CountTime                      *float64 `json:"count_time"`
	CountrateCorrectionCountCutoff *int64   `json:"countrate_correction_count_cutoff"`
	Description                    *string  `json:"description"`
	DetectorDistance               *float64 `json:"detector_distance"`
	DetectorNumber                 *string  `json:"detector_number"`
	FrameTime                      *float64 `json:"frame_time"`
	NImages                        *int64   `json:"nimages"`
	NTrigger                       *int64   `json:"ntrigger"`
	OmegaStart                     *float64 `json:"omega_start"`
	OmegaIncrement                 *float64 `json:"omega_increment"`
	SensorThickness                *float64 `json:"sensor_thickness"`
	SoftwareVersion                *string  `json:"software_version"`
	Wavelength                     *float64 `json:"wavelength"`
	XPixelSize                     *float64 `json:"x_pixel_size"`
	XPixelsInDetector              *int64   `json:"x_pixels_in_detector"`
	YPixelSize                     *float64 `json:"y_pixel_size"`
	YPixelsInDetector              *int64   `json:"y_pixels_in_detector"`
}

// ParseDetectorConfig populates a DetectorConfig from the part-2 payload.
// Every field is mandatory; absence is fatal for the series.
func ParseDetectorConfig(data []byte) (DetectorConfig, error) {
	var w detectorConfigWire
	if err := json.Unmarshal(data, &w); err != nil {
		return DetectorConfig{}, domain.Protocolf("detector config is not valid JSON: %v", err)
	}
	for _, f := range []struct {
		name string
		ok   bool
	}{
		{"beam_center_x", w.BeamCenterX != nil},
		{"beam_center_y", w.BeamCenterY != nil},
		{"bit_depth_image", w.BitDepthImage != nil},
		{"compression", w.Compression != nil},
		{"count_time", w.CountTime != nil},
		{"countrate_correction_count_cutoff", w.CountrateCorrectionCountCutoff != nil},
		{"description", w.Description != nil},
		{"detector_distance", w.DetectorDistance != nil},
		{"detector_number", w.DetectorNumber != nil},
		{"frame_time", w.FrameTime != nil},
		{"nimages", w.NImages != nil},
		{"ntrigger", w.NTrigger != nil},
		{"omega_start", w.OmegaStart != nil},
		{"omega_increment", w.OmegaIncrement != nil},
		{"sensor_thickness", w.SensorThickness != nil},
		{"software_version", w.SoftwareVersion != nil},
		{"wavelength", w.Wavelength != nil},
		{"x_pixel_size", w.XPixelSize != nil},
		{"x_pixels_in_detector", w.XPixelsInDetector != nil},
		{"y_pixel_size", w.YPixelSize != nil},
		{"y_pixels_in_detector", w.YPixelsInDetector != nil},
	} {
		if !f.ok {
			return DetectorConfig{}, domain.Protocolf("the DCU did not provide a value for %q in the detector config", f.name)
		}
	}

	if *w.BitDepthImage != 32 {
		return DetectorConfig{}, domain.Configf("bit_depth_image=%d, only 32-bit depth images are supported", *w.BitDepthImage)
	}
	compression, err := codec.ParseCompressor(*w.Compression)
	if err != nil {
		return DetectorConfig{}, err
	}

	return DetectorConfig{
		BeamCenterX:                    *w.BeamCenterX,
		BeamCenterY:                    *w.BeamCenterY,
		BitDepthImage:                  *w.BitDepthImage,
		Compression:                    compression,
		CountTime:                      *w.CountTime,
		CountrateCorrectionCountCutoff: *w.CountrateCorrectionCountCutoff,
		Description:                    *w.Description,
		DetectorDistance:               *w.DetectorDistance,
		DetectorNumber:                 *w.DetectorNumber,
		FrameTime:                      *w.FrameTime,
		NImages:                        *w.NImages,
		NTrigger:                       *w.NTrigger,
		OmegaStart:                     *w.OmegaStart,
		OmegaIncrement:                 *w.OmegaIncrement,
		SensorThickness:                *w.SensorThickness,
		SoftwareVersion:                *w.SoftwareVersion,
		Wavelength:                     *w.Wavelength,
		XPixelSize:                     *w.XPixelSize,
		XPixelsInDetector:              *w.XPixelsInDetector,
		YPixelSize:                     *w.YPixelSize,
		YPixelsInDetector:              *w.YPixelsInDetector,
	}, nil
}

// PixelBytes returns the size of one decoded pixel in bytes.
func (c *DetectorConfig) PixelBytes() int {
	return int(c.BitDepthImage) / 8
}

// ImageBytes returns the decoded size of one image in bytes.
func (c *DetectorConfig) ImageBytes() int {
	return c.PixelBytes() * int(c.XPixelsInDetector) * int(c.YPixelsInDetector)
}

// TotalFrames returns the number of frames the series will carry.
func (c *DetectorConfig) TotalFrames() int64 {
	return c.NImages * c.NTrigger
}

// ToJSON renders the config as a part-2 wire payload. Used to build test
// streams.
func (c *DetectorConfig) ToJSON() string {
	var b strings.Builder
	fmt.Fprintf(&b, "{")
	fmt.Fprintf(&b, "%q:%g,", "beam_center_x", c.BeamCenterX)
	fmt.Fprintf(&b, "%q:%g,", "beam_center_y", c.BeamCenterY)
	fmt.Fprintf(&b, "%q:%d,", "bit_depth_image", c.BitDepthImage)
	fmt.Fprintf(&b, "%q:%q,", "compression", c.Compression.String())
	fmt.Fprintf(&b, "%q:%g,", "count_time", c.CountTime)
	fmt.Fprintf(&b, "%q:%d,", "countrate_correction_count_cutoff", c.CountrateCorrectionCountCutoff)
	fmt.Fprintf(&b, "%q:%q,", "description", c.Description)
	fmt.Fprintf(&b, "%q:%g,", "detector_distance", c.DetectorDistance)
	fmt.Fprintf(&b, "%q:%q,", "detector_number", c.DetectorNumber)
	fmt.Fprintf(&b, "%q:%g,", "frame_time", c.FrameTime)
	fmt.Fprintf(&b, "%q:%d,", "nimages", c.NImages)
	fmt.Fprintf(&b, "%q:%d,", "ntrigger", c.NTrigger)
	fmt.Fprintf(&b, "%q:%g,", "omega_start", c.OmegaStart)
	fmt.Fprintf(&b, "%q:%g,", "omega_increment", c.OmegaIncrement)
	fmt.Fprintf(&b, "%q:%g,", "sensor_thickness", c.SensorThickness)
	fmt.Fprintf(&b, "%q:%q,", "software_version", c.SoftwareVersion)
	fmt.Fprintf(&b, "%q:%g,", "wavelength", c.Wavelength)
	fmt.Fprintf(&b, "%q:%g,", "x_pixel_size", c.XPixelSize)
	fmt.Fprintf(&b, "%q:%d,", "x_pixels_in_detector", c.XPixelsInDetector)
	fmt.Fprintf(&b, "%q:%g,", "y_pixel_size", c.YPixelSize)
	fmt.Fprintf(&b, "%q:%d", "y_pixels_in_detector", c.YPixelsInDetector)
	fmt.Fprintf(&b, "}")
	return b.String()
}
