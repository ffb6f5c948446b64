// Package archiver converts the Dectris stream feed into single-image
// miniCBF files, one file per diffraction frame.
package archiver

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"

	"github.com/jfolker/bigpicture/internal/cbf"
	"github.com/jfolker/bigpicture/internal/codec"
	"github.com/jfolker/bigpicture/internal/dectris"
	"github.com/jfolker/bigpicture/internal/domain"
	"github.com/jfolker/bigpicture/internal/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type parseState int

const (
	stateGlobalHeader parseState = iota + 1
	stateNewFrame
	stateMidPart2
	stateMidPart3
	stateMidPart4
	stateMidAppendix
)

// Options configure an Archiver for one deployment.
type Options struct {
	// UsingHeaderAppendix expects an appendix part after each global header.
	UsingHeaderAppendix bool
	// UsingImageAppendix expects an appendix part after each frame part 4.
	UsingImageAppendix bool
	// OutputDir receives the <series>-<frame>.cbf files. Default ".".
	OutputDir string
	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// Archiver is the top-level stream parser: it sequences
// Global -> (Frame)* -> SeriesEnd across many series and emits one CBF
// container per frame. It implements ports.StreamParser.
//
// An Archiver is owned by a single receive goroutine; only SetOutputDir
// may be called concurrently.
type Archiver struct {
	state              parseState
	usingImageAppendix bool

	global  *dectris.GlobalHeaderParser
	buf     *codec.Buffer
	handle  *cbf.Handle
	frameID int64
	// pending is set once a frame's pixel data has been built into the
	// handle and cleared when the file is committed.
	pending  bool
	appendix string

	outDir  atomic.Pointer[string]
	metrics *metrics.Metrics
}

// New returns an Archiver awaiting a global header part 1.
func New(opts Options) *Archiver {
	dir := opts.OutputDir
	if dir == "" {
		dir = "."
	}
	a := &Archiver{
		state:              stateGlobalHeader,
		usingImageAppendix: opts.UsingImageAppendix,
		global:             dectris.NewGlobalHeaderParser(opts.UsingHeaderAppendix),
		buf:                codec.NewBuffer(0),
		handle:             cbf.NewHandle(),
		frameID:            -1,
		metrics:            opts.Metrics,
	}
	a.outDir.Store(&dir)
	return a
}

// SetOutputDir changes the landing directory for subsequent frames. Safe
// to call from another goroutine (the config watcher).
func (a *Archiver) SetOutputDir(dir string) {
	if dir == "" {
		dir = "."
	}
	a.outDir.Store(&dir)
}

// OutputDir returns the current landing directory.
func (a *Archiver) OutputDir() string {
	return *a.outDir.Load()
}

// Parse absorbs one message part and returns true when the part completed
// an entire image series. Errors abort the current series; the caller must
// Reset before feeding further parts.
func (a *Archiver) Parse(data []byte) (bool, error) {
	switch a.state {
	case stateGlobalHeader:
		done, err := a.global.Parse(data)
		if err != nil {
			return false, err
		}
		if done {
			a.buf.Resize(a.global.Config().ImageBytes())
			a.state = stateNewFrame
			logger.Info().
				Int64("series", a.global.SeriesID()).
				Str("detail", a.global.Detail().String()).
				Str("compression", a.global.Config().Compression.String()).
				Int64("frames", a.global.Config().TotalFrames()).
				Msg("global header complete")
		}

	case stateNewFrame:
		end, err := a.parsePart1OrSeriesEnd(data)
		if err != nil {
			return false, err
		}
		if end {
			a.metrics.SeriesCompleted()
			a.Reset()
			return true, nil
		}
		a.buildHeader()
		a.state = stateMidPart2

	case stateMidPart2:
		if err := validateHtype(data, "dimage_d-1.0"); err != nil {
			return false, err
		}
		a.state = stateMidPart3

	case stateMidPart3:
		cfg := a.global.Config()
		if err := a.buf.Decode(cfg.Compression, data, cfg.PixelBytes()); err != nil {
			return false, err
		}
		if err := a.buildData(); err != nil {
			return false, err
		}
		a.state = stateMidPart4

	case stateMidPart4:
		if err := validateHtype(data, "dconfig-1.0"); err != nil {
			return false, err
		}
		if a.usingImageAppendix {
			a.state = stateMidAppendix
		} else {
			if err := a.Flush(); err != nil {
				return false, err
			}
			a.state = stateNewFrame
		}

	case stateMidAppendix:
		// Opaque to the core; facility extensions may use it to pick a
		// landing directory or naming convention.
		a.appendix = string(data)
		if err := a.Flush(); err != nil {
			return false, err
		}
		a.state = stateNewFrame

	default:
		return false, domain.Protocolf("series state machine is in an unknown state: %d", a.state)
	}
	return false, nil
}

// Reset discards all series state and returns to awaiting a global header.
// Idempotent.
func (a *Archiver) Reset() {
	a.state = stateGlobalHeader
	a.global.Reset()
	a.buf.Resize(0)
	a.handle.Reset()
	a.frameID = -1
	a.pending = false
	a.appendix = ""
}

type framePart1Wire struct {
	Htype  *string `json:"htype"`
	Series *int64  `json:"series"`
	Frame  *int64  `json:"frame"`
}

// parsePart1OrSeriesEnd returns true for a series-end record, false for a
// frame part 1, and an error for anything else.
func (a *Archiver) parsePart1OrSeriesEnd(data []byte) (bool, error) {
	var w framePart1Wire
	if err := json.Unmarshal(data, &w); err != nil {
		return false, domain.Protocolf("frame part 1 is not valid JSON: %v", err)
	}
	if w.Htype == nil {
		return false, domain.Protocolf("frame part 1 has no htype")
	}

	switch *w.Htype {
	case "dseries_end-1.0":
		if w.Series == nil || *w.Series != a.global.SeriesID() {
			return false, domain.Protocolf("invalid series end message, expected series id: %d, received %s",
				a.global.SeriesID(), formatInt64(w.Series))
		}
		logger.Info().Int64("series", *w.Series).Msg("series end record")
		return true, nil

	case "dimage-1.0":
		// If the metadata does not match this series there is no way to
		// recover the correct metadata; the whole file would be useless.
		if w.Series == nil || *w.Series != a.global.SeriesID() {
			return false, domain.Protocolf("invalid frame part 1 message, expected series id: %d, received %s",
				a.global.SeriesID(), formatInt64(w.Series))
		}
		if w.Frame == nil {
			return false, domain.Protocolf("frame part 1 has no frame id")
		}
		a.frameID = *w.Frame
		a.handle.Reset()
		a.handle.NewDataBlock("image")
		return false, nil
	}
	return false, domain.Protocolf("expected either a \"dimage-1.0\" (\"Frame Part 1\") or \"dseries_end-1.0\""+
		" (\"End of Series\") message, received %q", *w.Htype)
}

func validateHtype(data []byte, want string) error {
	got := json.Get(data, "htype").ToString()
	if got != want {
		return domain.Protocolf("expected htype %q, received %q", want, got)
	}
	return nil
}

// buildHeader composes the miniCBF header text block and the columns that
// carry it. Pixel sizes are emitted in micrometers and the beam center in
// whole pixels, both rounded to nearest.
func (a *Archiver) buildHeader() {
	cfg := a.global.Config()
	header := fmt.Sprintf("\n"+
		"# Detector: %s, S/N %s\n"+
		"# Pixel_size %de-6 m x %de-6 m\n"+
		"# Silicon sensor, thickness %.6f m\n"+
		"# Exposure_time %f s\n"+
		"# Exposure_period %f s\n"+
		"# Count_cutoff %d counts\n"+
		"# Wavelength %f A\n"+
		"# Detector_distance %f m\n"+
		"# Beam_xy (%d, %d) pixels\n"+
		"# Start_angle %f deg.\n"+
		"# Angle_increment %f deg.\n",
		cfg.Description, cfg.DetectorNumber,
		int64(math.Round(cfg.XPixelSize*1e6)), int64(math.Round(cfg.YPixelSize*1e6)),
		cfg.SensorThickness,
		cfg.CountTime,
		cfg.FrameTime,
		cfg.CountrateCorrectionCountCutoff,
		cfg.Wavelength,
		cfg.DetectorDistance,
		int64(math.Round(cfg.BeamCenterX)), int64(math.Round(cfg.BeamCenterY)),
		cfg.OmegaStart+float64(a.frameID-1)*cfg.OmegaIncrement,
		cfg.OmegaIncrement)

	a.handle.NewDataBlock("image_1")
	_ = a.handle.NewCategory("array_data")
	_ = a.handle.NewColumn("header_convention")
	_ = a.handle.SetValue("SLS_1.0")
	_ = a.handle.NewColumn("header_contents")
	_ = a.handle.SetValue(header)
}

func (a *Archiver) buildData() error {
	cfg := a.global.Config()
	if err := a.handle.NewCategory("array_data"); err != nil {
		return err
	}
	if err := a.handle.NewColumn("data"); err != nil {
		return err
	}
	nelem := int(cfg.XPixelsInDetector) * int(cfg.YPixelsInDetector)
	err := a.handle.SetIntegerArray(cbf.ByteOffset, 1, a.buf.Bytes(), cfg.PixelBytes(), true,
		nelem, "little_endian", int(cfg.XPixelsInDetector), int(cfg.YPixelsInDetector), 0)
	if err != nil {
		return err
	}
	a.pending = true
	return nil
}

// Flush commits the current frame's container to storage. A no-op when no
// complete frame is pending.
func (a *Archiver) Flush() error {
	if !a.pending {
		return nil
	}
	name := fmt.Sprintf("%d-%d.cbf", a.global.SeriesID(), a.frameID)
	path := filepath.Join(a.OutputDir(), name)

	f, err := os.Create(path)
	if err != nil {
		return &domain.EmitError{Path: path, Err: err}
	}
	if werr := a.handle.WriteFile(f, cbf.MsgDigest|cbf.MIMEHeaders|cbf.Pad4K, cbf.Base64); werr != nil {
		f.Close()
		return &domain.EmitError{Path: path, Err: werr}
	}
	if cerr := f.Close(); cerr != nil {
		return &domain.EmitError{Path: path, Err: cerr}
	}

	a.pending = false
	a.handle.Reset()
	a.metrics.FrameWritten()
	logger.Debug().Str("path", path).Msg("frame committed")
	return nil
}

func formatInt64(v *int64) string {
	if v == nil {
		return "none"
	}
	return fmt.Sprintf("%d", *v)
}
