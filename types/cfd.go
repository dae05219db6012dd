package types

import (
	"fmt"
	"strings"
)

type BCFLAG uint8

const (
	BC_None BCFLAG = iota
	BC_Periodic
	BC_In
	BC_Out
	BC_Wall
)

var BCNameMap = map[string]BCFLAG{
	"periodic": BC_Periodic,
	"inflow":   BC_In,
	"in":       BC_In,
	"out":      BC_Out,
	"outflow":  BC_Out,
	"wall":     BC_Wall,
	"slip":     BC_Wall,
}

func (bc BCFLAG) String() string {
	switch bc {
	case BC_Periodic:
		return "periodic"
	case BC_In:
		return "inflow"
	case BC_Out:
		return "outflow"
	case BC_Wall:
		return "wall"
	}
	return "none"
}

// Side of a domain or box face
type Side uint8

const (
	Lo Side = iota
	Hi
)

//go:generate stringer -type=SourceType

// SourceType enumerates the source modules. The order is the summation order.
type SourceType uint8

const (
	ExternalSrc SourceType = iota
	ForcingSrc
	SpraySrc
	DiffusionSrc
	ManufacturedSrc
	NumSourceTypes
)

var SourceNameMap = map[string]SourceType{
	"external":     ExternalSrc,
	"ext":          ExternalSrc,
	"forcing":      ForcingSrc,
	"spray":        SpraySrc,
	"diffusion":    DiffusionSrc,
	"diff":         DiffusionSrc,
	"manufactured": ManufacturedSrc,
	"mms":          ManufacturedSrc,
}

func (st SourceType) String() string {
	switch st {
	case ExternalSrc:
		return "external"
	case ForcingSrc:
		return "forcing"
	case SpraySrc:
		return "spray"
	case DiffusionSrc:
		return "diffusion"
	case ManufacturedSrc:
		return "manufactured"
	}
	return fmt.Sprintf("SourceType(%d)", st)
}

func ParseSourceType(name string) (st SourceType, err error) {
	var ok bool
	if st, ok = SourceNameMap[strings.ToLower(strings.TrimSpace(name))]; !ok {
		err = fmt.Errorf("unknown source type %q", name)
	}
	return
}

// Scheme is the time integration strategy for a level advance
type Scheme uint8

const (
	MOL Scheme = iota
	SDC
)

func (s Scheme) String() string {
	if s == SDC {
		return "SDC"
	}
	return "MOL"
}

func ParseScheme(name string) (s Scheme, err error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "MOL", "":
		s = MOL
	case "SDC":
		s = SDC
	default:
		err = fmt.Errorf("unknown scheme %q", name)
	}
	return
}
