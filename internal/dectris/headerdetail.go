// Package dectris parses the per-series metadata of the Dectris stream
// interface: the part-1 series announcement, the part-2 detector
// configuration, and the calibration masks of header_detail=all.
package dectris

import (
	"github.com/jfolker/bigpicture/internal/domain"
)

// HeaderDetail is the header_detail field of a global header part 1. It
// determines how many metadata parts the DCU sends per series: basic means
// 2, all means 8. A DCU configured with none is unusable for archiving.
type HeaderDetail int

const (
	DetailUnknown HeaderDetail = iota
	DetailNone
	DetailBasic
	DetailAll
)

func (d HeaderDetail) String() string {
	switch d {
	case DetailNone:
		return "none"
	case DetailBasic:
		return "basic"
	case DetailAll:
		return "all"
	}
	return "unknown"
}

// ParseHeaderDetail maps the wire value of header_detail to a HeaderDetail.
func ParseHeaderDetail(s string) (HeaderDetail, error) {
	switch s {
	case "none":
		return DetailNone, nil
	case "basic":
		return DetailBasic, nil
	case "all":
		return DetailAll, nil
	}
	return DetailUnknown, domain.Protocolf("the DCU provided an unrecognized value for header_detail: %q", s)
}
