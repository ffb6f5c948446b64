package archiver

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jfolker/bigpicture/internal/codec"
	"github.com/jfolker/bigpicture/internal/dectris"
	"github.com/jfolker/bigpicture/internal/domain"
)

func testConfig(compression codec.Compressor, ntrigger int64) dectris.DetectorConfig {
	return dectris.DetectorConfig{
		BeamCenterX:                    2.0,
		BeamCenterY:                    2.0,
		BitDepthImage:                  32,
		Compression:                    compression,
		CountTime:                      0.000099,
		CountrateCorrectionCountCutoff: 199996,
		Description:                    "Dectris EIGER2 Si 16M",
		DetectorDistance:               0.12,
		DetectorNumber:                 "E-32-0123",
		FrameTime:                      0.0001,
		NImages:                        1,
		NTrigger:                       ntrigger,
		OmegaStart:                     0.0,
		OmegaIncrement:                 0.1,
		SensorThickness:                0.00045,
		SoftwareVersion:                "1.8.0",
		Wavelength:                     0.9763,
		XPixelSize:                     0.000075,
		XPixelsInDetector:              4,
		YPixelSize:                     0.000075,
		YPixelsInDetector:              4,
	}
}

func globalPart1(series int64, detail string) []byte {
	return []byte(fmt.Sprintf(`{"htype":"dheader-1.0","series":%d,"header_detail":%q}`, series, detail))
}

func framePart1(series, frame int64) []byte {
	return []byte(fmt.Sprintf(`{"htype":"dimage-1.0","series":%d,"frame":%d}`, series, frame))
}

func framePart2() []byte {
	return []byte(`{"htype":"dimage_d-1.0","shape":[4,4],"type":"uint32","encoding":"lz4<","size":64}`)
}

func framePart4() []byte {
	return []byte(`{"htype":"dconfig-1.0","start_time":0,"stop_time":99000,"real_time":99000}`)
}

func seriesEnd(series int64) []byte {
	return []byte(fmt.Sprintf(`{"htype":"dseries_end-1.0","series":%d}`, series))
}

// rampPixels returns sixteen little-endian int32 pixels 0..15 (64 bytes).
func rampPixels() []byte {
	out := make([]byte, 0, 64)
	for i := 0; i < 16; i++ {
		out = binary.LittleEndian.AppendUint32(out, uint32(i))
	}
	return out
}

// encodePixels compresses the raw pixels as the DCU would.
func encodePixels(t *testing.T, c codec.Compressor, raw []byte) []byte {
	t.Helper()
	buf := codec.NewBuffer(0)
	n, err := buf.Encode(c, raw, 4)
	if err != nil {
		t.Fatalf("encode pixels: %v", err)
	}
	return buf.Bytes()[:n]
}

// run feeds parts to the archiver, requiring a series end exactly at the
// final part.
func run(t *testing.T, a *Archiver, parts ...[]byte) {
	t.Helper()
	for i, part := range parts {
		end, err := a.Parse(part)
		if err != nil {
			t.Fatalf("part %d: %v", i+1, err)
		}
		if end != (i == len(parts)-1) {
			t.Fatalf("part %d: seriesEnd = %t", i+1, end)
		}
	}
}

func mustExist(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("expected output file: %v", err)
		}
		for _, want := range []string{"###CBF: VERSION 1.5", "data_image_1", "SLS_1.0", "x-CBF_BYTE_OFFSET"} {
			if !strings.Contains(string(data), want) {
				t.Errorf("%s missing %q", name, want)
			}
		}
	}
}

func TestSingleFrameNoCompression(t *testing.T) {
	dir := t.TempDir()
	a := New(Options{OutputDir: dir})
	cfg := testConfig(codec.None, 1)

	run(t, a,
		globalPart1(1, "basic"), []byte(cfg.ToJSON()),
		framePart1(1, 1), framePart2(), rampPixels(), framePart4(),
		seriesEnd(1),
	)

	mustExist(t, dir, "1-1.cbf")
	if a.state != stateGlobalHeader {
		t.Errorf("state = %d, want global header", a.state)
	}
}

func TestTwoFramesLZ4(t *testing.T) {
	dir := t.TempDir()
	a := New(Options{OutputDir: dir})
	cfg := testConfig(codec.LZ4, 2)
	blob := encodePixels(t, codec.LZ4, make([]byte, 64))

	run(t, a,
		globalPart1(1, "basic"), []byte(cfg.ToJSON()),
		framePart1(1, 1), framePart2(), blob, framePart4(),
		framePart1(1, 2), framePart2(), blob, framePart4(),
		seriesEnd(1),
	)

	mustExist(t, dir, "1-1.cbf", "1-2.cbf")
}

func TestSingleFrameBSLZ4(t *testing.T) {
	dir := t.TempDir()
	a := New(Options{OutputDir: dir})
	cfg := testConfig(codec.BSLZ4, 1)
	raw := rampPixels()
	blob := encodePixels(t, codec.BSLZ4, raw)

	run(t, a,
		globalPart1(1, "basic"), []byte(cfg.ToJSON()),
		framePart1(1, 1), framePart2(), blob, framePart4(),
		seriesEnd(1),
	)

	mustExist(t, dir, "1-1.cbf")
}

func TestHeaderDetailAll(t *testing.T) {
	dir := t.TempDir()
	a := New(Options{OutputDir: dir})
	cfg := testConfig(codec.None, 1)
	maskBlob := make([]byte, 64)

	run(t, a,
		globalPart1(1, "all"), []byte(cfg.ToJSON()),
		[]byte(`{"htype":"dflatfield-1.0","shape":[4,4],"type":"float32"}`), maskBlob,
		[]byte(`{"htype":"dpixelmask-1.0","shape":[4,4],"type":"uint32"}`), maskBlob,
		[]byte(`{"htype":"dcountrate_table-1.0","shape":[4,4],"type":"float32"}`), maskBlob,
		framePart1(1, 1), framePart2(), rampPixels(), framePart4(),
		seriesEnd(1),
	)

	mustExist(t, dir, "1-1.cbf")
}

func TestAppendices(t *testing.T) {
	dir := t.TempDir()
	a := New(Options{
		UsingHeaderAppendix: true,
		UsingImageAppendix:  true,
		OutputDir:           dir,
	})
	cfg := testConfig(codec.LZ4, 2)
	blob := encodePixels(t, codec.LZ4, make([]byte, 64))

	run(t, a,
		globalPart1(1, "basic"), []byte(cfg.ToJSON()), []byte(`{"beamline":"21-ID-D"}`),
		framePart1(1, 1), framePart2(), blob, framePart4(), []byte("frame appendix 1"),
		framePart1(1, 2), framePart2(), blob, framePart4(), []byte("frame appendix 2"),
		seriesEnd(1),
	)

	mustExist(t, dir, "1-1.cbf", "1-2.cbf")
}

func TestSeriesIDMismatch(t *testing.T) {
	dir := t.TempDir()
	a := New(Options{OutputDir: dir})
	cfg := testConfig(codec.None, 1)

	run2 := func(parts ...[]byte) error {
		for _, part := range parts {
			if _, err := a.Parse(part); err != nil {
				return err
			}
		}
		return nil
	}

	if err := run2(globalPart1(1, "basic"), []byte(cfg.ToJSON())); err != nil {
		t.Fatal(err)
	}
	err := run2(framePart1(2, 1))
	var perr *domain.ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("frame from series 2: error = %v, want ProtocolError", err)
	}

	// The series is aborted; the archiver rearms for the next global
	// header after a reset.
	a.Reset()
	run(t, a,
		globalPart1(3, "basic"), []byte(cfg.ToJSON()),
		framePart1(3, 1), framePart2(), rampPixels(), framePart4(),
		seriesEnd(3),
	)
	mustExist(t, dir, "3-1.cbf")
}

func TestSeriesEndIDMismatch(t *testing.T) {
	a := New(Options{OutputDir: t.TempDir()})
	cfg := testConfig(codec.None, 1)

	if _, err := a.Parse(globalPart1(1, "basic")); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Parse([]byte(cfg.ToJSON())); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Parse(seriesEnd(2)); err == nil {
		t.Error("accepted series end for the wrong series")
	}
}

func TestUnexpectedHtypeInFrameSlot(t *testing.T) {
	a := New(Options{OutputDir: t.TempDir()})
	cfg := testConfig(codec.None, 1)

	if _, err := a.Parse(globalPart1(1, "basic")); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Parse([]byte(cfg.ToJSON())); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Parse(globalPart1(1, "basic")); err == nil {
		t.Error("accepted a global header part in the frame slot")
	}
}

func TestDecodeBufferSizing(t *testing.T) {
	a := New(Options{OutputDir: t.TempDir()})
	cfg := testConfig(codec.None, 1)

	if _, err := a.Parse(globalPart1(1, "basic")); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Parse([]byte(cfg.ToJSON())); err != nil {
		t.Fatal(err)
	}
	if a.buf.Size() != 64 {
		t.Errorf("decode buffer is %d bytes, want 64", a.buf.Size())
	}
}

func TestBadPixelBlobAbortsSeries(t *testing.T) {
	a := New(Options{OutputDir: t.TempDir()})
	cfg := testConfig(codec.LZ4, 1)

	for _, part := range [][]byte{
		globalPart1(1, "basic"), []byte(cfg.ToJSON()),
		framePart1(1, 1), framePart2(),
	} {
		if _, err := a.Parse(part); err != nil {
			t.Fatal(err)
		}
	}
	_, err := a.Parse([]byte("definitely not lz4"))
	var derr *domain.DecodeError
	if !errors.As(err, &derr) {
		t.Errorf("garbage blob: error = %v, want DecodeError", err)
	}
}

func TestStartAngleAdvancesPerFrame(t *testing.T) {
	dir := t.TempDir()
	a := New(Options{OutputDir: dir})
	cfg := testConfig(codec.None, 2)

	run(t, a,
		globalPart1(1, "basic"), []byte(cfg.ToJSON()),
		framePart1(1, 1), framePart2(), rampPixels(), framePart4(),
		framePart1(1, 2), framePart2(), rampPixels(), framePart4(),
		seriesEnd(1),
	)

	first, err := os.ReadFile(filepath.Join(dir, "1-1.cbf"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := os.ReadFile(filepath.Join(dir, "1-2.cbf"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(first), "# Start_angle 0.000000 deg.") {
		t.Error("frame 1 start angle not at omega_start")
	}
	if !strings.Contains(string(second), "# Start_angle 0.100000 deg.") {
		t.Error("frame 2 start angle did not advance by omega_increment")
	}
}

func TestResetIdempotent(t *testing.T) {
	a := New(Options{OutputDir: t.TempDir()})
	cfg := testConfig(codec.None, 1)

	a.Reset()
	a.Reset()
	run(t, a,
		globalPart1(1, "basic"), []byte(cfg.ToJSON()),
		framePart1(1, 1), framePart2(), rampPixels(), framePart4(),
		seriesEnd(1),
	)
}

func TestSetOutputDir(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	a := New(Options{OutputDir: first})
	cfg := testConfig(codec.None, 1)

	run(t, a,
		globalPart1(1, "basic"), []byte(cfg.ToJSON()),
		framePart1(1, 1), framePart2(), rampPixels(), framePart4(),
		seriesEnd(1),
	)
	a.SetOutputDir(second)
	run(t, a,
		globalPart1(2, "basic"), []byte(cfg.ToJSON()),
		framePart1(2, 1), framePart2(), rampPixels(), framePart4(),
		seriesEnd(2),
	)

	mustExist(t, first, "1-1.cbf")
	mustExist(t, second, "2-1.cbf")
}
