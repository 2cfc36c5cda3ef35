package ngspice

import (
	"strings"
	"unsafe"
)

// Mirrors of the structures declared in sharedspice.h. Field order and types
// must match the C layout exactly.

// ngcomplex_t
type cComplex struct {
	real float64
	imag float64
}

// vector_info
type cVectorInfo struct {
	name     *byte
	vType    int32
	flags    int16
	realData *float64
	compData *cComplex
	length   int32
}

// vecvalues
type cVecValues struct {
	name      *byte
	cReal     float64
	cImag     float64
	isScale   bool
	isComplex bool
}

// vecvaluesall
type cVecValuesAll struct {
	count int32
	index int32
	vecs  **cVecValues
}

// vecinfo
type cVecInfo struct {
	number     int32
	name       *byte
	isReal     bool
	pdvec      uintptr
	pdvecscale uintptr
}

// vecinfoall
type cVecInfoAll struct {
	name  *byte
	title *byte
	date  *byte
	typ   *byte
	count int32
	vecs  **cVecInfo
}

// Vector types reported in vector_info.v_type.
const (
	VectorReal    = 1
	VectorComplex = 2
)

// VectorValue is one vector's value at a single point of the analysis.
type VectorValue struct {
	Name      string  `json:"name"`
	Real      float64 `json:"real"`
	Imag      float64 `json:"imag"`
	IsScale   bool    `json:"is_scale"`
	IsComplex bool    `json:"is_complex"`
}

// VectorValuesAll is the data sent for one point of the analysis.
type VectorValuesAll struct {
	Count  int           `json:"count"`
	Index  int           `json:"index"`
	Values []VectorValue `json:"values"`
}

// VectorInfo describes one vector of a freshly set up plot.
type VectorInfo struct {
	Number int    `json:"number"`
	Name   string `json:"name"`
	IsReal bool   `json:"is_real"`
}

// PlotInfo is sent once per analysis before any data.
type PlotInfo struct {
	Name    string       `json:"name"`
	Title   string       `json:"title"`
	Date    string       `json:"date"`
	Type    string       `json:"type"`
	Vectors []VectorInfo `json:"vectors"`
}

// Vector is a complete vector read back from the engine.
type Vector struct {
	Name    string       `json:"name"`
	Type    int          `json:"type"`
	Flags   int          `json:"flags"`
	Real    []float64    `json:"real,omitempty"`
	Complex []complex128 `json:"complex,omitempty"`
}

// Stream tells where an output line was printed.
type Stream string

const (
	Stdout  Stream = "stdout"
	Stderr  Stream = "stderr"
	Unknown Stream = "unknown"
)

// Output is one line of engine console output.
type Output struct {
	Stream Stream `json:"stream"`
	Text   string `json:"text"`
}

// ClassifyOutput splits the stream prefix the engine puts in front of every
// printed line.
func ClassifyOutput(line string) Output {
	head, rest, _ := strings.Cut(line, " ")
	switch head {
	case string(Stdout):
		return Output{Stream: Stdout, Text: rest}
	case string(Stderr):
		return Output{Stream: Stderr, Text: rest}
	default:
		return Output{Stream: Unknown, Text: line}
	}
}

// Exit is the payload of the controlled-exit callback.
type Exit struct {
	Status    int  `json:"status"`
	Immediate bool `json:"immediate"`
	Quit      bool `json:"quit"`
}

// goString copies a NUL terminated C string.
func goString(p *byte) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	return string(unsafe.Slice(p, n))
}

// goStrings copies a NULL terminated array of C strings.
func goStrings(pp **byte) []string {
	if pp == nil {
		return nil
	}
	var out []string
	for i := 0; ; i++ {
		p := *(**byte)(unsafe.Add(unsafe.Pointer(pp), uintptr(i)*unsafe.Sizeof(pp)))
		if p == nil {
			return out
		}
		out = append(out, goString(p))
	}
}

func copyValuesAll(c *cVecValuesAll) VectorValuesAll {
	if c == nil {
		return VectorValuesAll{}
	}
	out := VectorValuesAll{
		Count: int(c.count),
		Index: int(c.index),
	}
	if c.count <= 0 || c.vecs == nil {
		return out
	}
	vecs := unsafe.Slice(c.vecs, int(c.count))
	out.Values = make([]VectorValue, 0, len(vecs))
	for _, v := range vecs {
		if v == nil {
			continue
		}
		out.Values = append(out.Values, VectorValue{
			Name:      goString(v.name),
			Real:      v.cReal,
			Imag:      v.cImag,
			IsScale:   v.isScale,
			IsComplex: v.isComplex,
		})
	}
	return out
}

func copyPlotInfo(c *cVecInfoAll) PlotInfo {
	if c == nil {
		return PlotInfo{}
	}
	out := PlotInfo{
		Name:  goString(c.name),
		Title: goString(c.title),
		Date:  goString(c.date),
		Type:  goString(c.typ),
	}
	if c.count <= 0 || c.vecs == nil {
		return out
	}
	vecs := unsafe.Slice(c.vecs, int(c.count))
	out.Vectors = make([]VectorInfo, 0, len(vecs))
	for _, v := range vecs {
		if v == nil {
			continue
		}
		out.Vectors = append(out.Vectors, VectorInfo{
			Number: int(v.number),
			Name:   goString(v.name),
			IsReal: v.isReal,
		})
	}
	return out
}

func copyVector(c *cVectorInfo) Vector {
	out := Vector{
		Name:  goString(c.name),
		Type:  int(c.vType),
		Flags: int(c.flags),
	}
	n := int(c.length)
	if n <= 0 {
		return out
	}
	if c.realData != nil {
		out.Real = append([]float64(nil), unsafe.Slice(c.realData, n)...)
	}
	if c.compData != nil {
		src := unsafe.Slice(c.compData, n)
		out.Complex = make([]complex128, n)
		for i, z := range src {
			out.Complex[i] = complex(z.real, z.imag)
		}
	}
	return out
}
