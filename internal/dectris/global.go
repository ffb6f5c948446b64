package dectris

import (
	"github.com/jfolker/bigpicture/internal/domain"
)

type globalState int

const (
	globalPart1 globalState = iota + 1
	globalPart2
	globalPart3
	globalPart4
	globalPart5
	globalPart6
	globalPart7
	globalPart8
	globalAppendix
	globalDone
)

// GlobalHeaderParser consumes the 2 or 8 metadata/blob parts of a series
// global header, plus the optional appendix, and holds the per-series
// metadata record until Reset.
//
// Global data arrives once per series, so this path is not latency
// critical; each part is parsed eagerly and validated.
type GlobalHeaderParser struct {
	state          globalState
	expectAppendix bool

	seriesID     int64
	headerDetail HeaderDetail
	config       DetectorConfig
	flatfield    Mask[float32]
	pixelmask    Mask[uint32]
	countrate    Mask[float32]
	appendix     string
}

// NewGlobalHeaderParser returns a parser in the part-1 state. Whether an
// appendix part follows the header is a deployment property and is latched
// here for the life of the parser.
func NewGlobalHeaderParser(expectAppendix bool) *GlobalHeaderParser {
	return &GlobalHeaderParser{
		state:          globalPart1,
		expectAppendix: expectAppendix,
		seriesID:       -1,
	}
}

// Parse absorbs one message part. It returns true once all global header
// data for the current series has been parsed, false while more parts are
// expected. Any error aborts the series; callers must Reset before reuse.
func (p *GlobalHeaderParser) Parse(data []byte) (bool, error) {
	switch p.state {
	case globalPart1:
		if err := p.parsePart1(data); err != nil {
			return false, err
		}
		switch p.headerDetail {
		case DetailBasic, DetailAll:
			p.state = globalPart2
		case DetailNone:
			return false, domain.Configf("incompatible DCU configuration; header_detail is \"none\", " +
				"cannot obtain necessary metadata to process image frames; set header_detail to \"all\"")
		default:
			return false, domain.Protocolf("global header parser stuck in unknown state: detail=%s", p.headerDetail)
		}

	case globalPart2:
		cfg, err := ParseDetectorConfig(data)
		if err != nil {
			return false, err
		}
		p.config = cfg
		if p.headerDetail == DetailAll {
			p.state = globalPart3
		} else {
			p.state = p.afterLastPart()
		}

	case globalPart3:
		if err := parseMaskHeader(data, "dflatfield-1.0", "flatfield", &p.flatfield); err != nil {
			return false, err
		}
		p.state = globalPart4
	case globalPart4:
		if err := p.flatfield.Fill("flatfield", data); err != nil {
			return false, err
		}
		p.state = globalPart5
	case globalPart5:
		if err := parseMaskHeader(data, "dpixelmask-1.0", "pixel mask", &p.pixelmask); err != nil {
			return false, err
		}
		p.state = globalPart6
	case globalPart6:
		if err := p.pixelmask.Fill("pixel mask", data); err != nil {
			return false, err
		}
		p.state = globalPart7
	case globalPart7:
		if err := parseMaskHeader(data, "dcountrate_table-1.0", "countrate table", &p.countrate); err != nil {
			return false, err
		}
		p.state = globalPart8
	case globalPart8:
		if err := p.countrate.Fill("countrate table", data); err != nil {
			return false, err
		}
		p.state = p.afterLastPart()

	case globalAppendix:
		// Opaque to the core; facility extensions interpret it.
		p.appendix = string(data)
		p.state = globalDone

	default:
		return false, domain.Protocolf("global header parser stuck in unknown state: %d", p.state)
	}
	return p.state == globalDone, nil
}

func (p *GlobalHeaderParser) afterLastPart() globalState {
	if p.expectAppendix {
		return globalAppendix
	}
	return globalDone
}

// Reset de-populates all series data and returns to the part-1 state. The
// appendix expectation is deployment config and survives. Idempotent.
func (p *GlobalHeaderParser) Reset() {
	p.state = globalPart1
	p.seriesID = -1
	p.headerDetail = DetailUnknown
	p.config = DetectorConfig{}
	p.flatfield.Reset()
	p.pixelmask.Reset()
	p.countrate.Reset()
	p.appendix = ""
}

// SeriesID returns the series id captured from part 1.
func (p *GlobalHeaderParser) SeriesID() int64 { return p.seriesID }

// Detail returns the header detail level captured from part 1.
func (p *GlobalHeaderParser) Detail() HeaderDetail { return p.headerDetail }

// Config returns the detector configuration captured from part 2.
func (p *GlobalHeaderParser) Config() *DetectorConfig { return &p.config }

// Flatfield returns the flatfield mask (header_detail=all only).
func (p *GlobalHeaderParser) Flatfield() *Mask[float32] { return &p.flatfield }

// Pixelmask returns the pixel mask (header_detail=all only).
func (p *GlobalHeaderParser) Pixelmask() *Mask[uint32] { return &p.pixelmask }

// CountrateTable returns the countrate table (header_detail=all only).
func (p *GlobalHeaderParser) CountrateTable() *Mask[float32] { return &p.countrate }

// Appendix returns the uninterpreted header appendix bytes, if any.
func (p *GlobalHeaderParser) Appendix() string { return p.appendix }

type globalPart1Wire struct {
	Htype        *string `json:"htype"`
	Series       *int64  `json:"series"`
	HeaderDetail *string `json:"header_detail"`
}

func (p *GlobalHeaderParser) parsePart1(data []byte) error {
	var w globalPart1Wire
	if err := json.Unmarshal(data, &w); err != nil {
		return domain.Protocolf("global header part 1 is not valid JSON: %v", err)
	}
	// htype is validated on part 1 in all builds; it is the anchor of the
	// whole series.
	if w.Htype == nil || *w.Htype != "dheader-1.0" {
		return domain.Protocolf("expected htype \"dheader-1.0\", received %q", deref(w.Htype))
	}
	if w.Series == nil {
		return domain.Protocolf("the DCU did not provide a valid value for \"series\" in the global header")
	}
	if w.HeaderDetail == nil {
		return domain.Protocolf("the DCU did not provide a valid value for \"header_detail\" in the global header")
	}
	detail, err := ParseHeaderDetail(*w.HeaderDetail)
	if err != nil {
		return err
	}
	p.seriesID = *w.Series
	p.headerDetail = detail
	return nil
}

type maskHeaderWire struct {
	Htype *string  `json:"htype"`
	Shape *[]int64 `json:"shape"`
	Type  *string  `json:"type"`
}

func parseMaskHeaderWire(data []byte, htype, name string) (maskHeaderWire, error) {
	var w maskHeaderWire
	if err := json.Unmarshal(data, &w); err != nil {
		return w, domain.Protocolf("%s header is not valid JSON: %v", name, err)
	}
	if w.Htype == nil || *w.Htype != htype {
		return w, domain.Protocolf("expected htype %q, received %q", htype, deref(w.Htype))
	}
	if w.Shape == nil || len(*w.Shape) < 2 {
		return w, domain.Protocolf("the DCU did not provide a valid shape for the %s", name)
	}
	return w, nil
}

func parseMaskHeader[T MaskElement](data []byte, htype, name string, m *Mask[T]) error {
	w, err := parseMaskHeaderWire(data, htype, name)
	if err != nil {
		return err
	}
	m.Alloc((*w.Shape)[0], (*w.Shape)[1])
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
