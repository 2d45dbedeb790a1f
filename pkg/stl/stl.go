// Package stl reads and writes STL triangle meshes. The detector uses a mesh
// as its outer envelope and exports its cell boxes as a mesh for inspection.
package stl

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	headerSize   = 80
	triangleSize = 50
)

// Triangle represents a single triangle in the STL format
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

// Mesh is a named collection of triangles
type Mesh struct {
	Name      string
	Triangles []Triangle
}

// Bounds returns the axis-aligned bounding box of the mesh
func (m *Mesh) Bounds() r3.Box {
	if len(m.Triangles) == 0 {
		return r3.Box{}
	}
	inf := math.Inf(1)
	box := r3.Box{
		Min: r3.Vec{X: inf, Y: inf, Z: inf},
		Max: r3.Vec{X: -inf, Y: -inf, Z: -inf},
	}
	for _, t := range m.Triangles {
		for _, v := range [][3]float32{t.Vertex1, t.Vertex2, t.Vertex3} {
			p := toVec(v)
			box.Min = r3.Vec{X: math.Min(box.Min.X, p.X), Y: math.Min(box.Min.Y, p.Y), Z: math.Min(box.Min.Z, p.Z)}
			box.Max = r3.Vec{X: math.Max(box.Max.X, p.X), Y: math.Max(box.Max.Y, p.Y), Z: math.Max(box.Max.Z, p.Z)}
		}
	}
	return box
}

// Translate returns a copy of the mesh moved by d
func (m *Mesh) Translate(d r3.Vec) *Mesh {
	out := &Mesh{Name: m.Name, Triangles: make([]Triangle, len(m.Triangles))}
	for i, t := range m.Triangles {
		out.Triangles[i] = Triangle{
			Normal:  t.Normal,
			Vertex1: fromVec(r3.Add(toVec(t.Vertex1), d)),
			Vertex2: fromVec(r3.Add(toVec(t.Vertex2), d)),
			Vertex3: fromVec(r3.Add(toVec(t.Vertex3), d)),
		}
	}
	return out
}

// ReadFile reads a binary or ASCII STL file
func ReadFile(path string) (*Mesh, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading STL file: %w", err)
	}
	return Read(bytes.NewReader(data))
}

// Read parses a binary or ASCII STL stream. ASCII is detected by the
// leading "solid" keyword together with a size that is not a valid binary file.
func Read(r io.Reader) (*Mesh, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading STL data: %w", err)
	}
	if isASCII(data) {
		return readASCII(data)
	}
	return readBinary(data)
}

func isASCII(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if !bytes.HasPrefix(trimmed, []byte("solid")) {
		return false
	}
	if len(data) >= headerSize+4 {
		n := binary.LittleEndian.Uint32(data[headerSize : headerSize+4])
		if uint64(len(data)) == uint64(headerSize+4)+uint64(n)*triangleSize {
			return false
		}
	}
	return true
}

func readBinary(data []byte) (*Mesh, error) {
	if len(data) < headerSize+4 {
		return nil, fmt.Errorf("binary STL too short: %d bytes", len(data))
	}
	name := strings.TrimRight(string(data[:headerSize]), "\x00 ")
	n := binary.LittleEndian.Uint32(data[headerSize : headerSize+4])
	want := uint64(headerSize+4) + uint64(n)*triangleSize
	if uint64(len(data)) < want {
		return nil, fmt.Errorf("binary STL declares %d triangles but holds %d bytes", n, len(data))
	}

	mesh := &Mesh{Name: name, Triangles: make([]Triangle, n)}
	r := bytes.NewReader(data[headerSize+4:])
	for i := range mesh.Triangles {
		if err := binary.Read(r, binary.LittleEndian, &mesh.Triangles[i]); err != nil {
			return nil, fmt.Errorf("error reading triangle %d: %w", i, err)
		}
		// attribute byte count
		if _, err := r.Seek(2, io.SeekCurrent); err != nil {
			return nil, fmt.Errorf("error skipping attribute of triangle %d: %w", i, err)
		}
	}
	return mesh, nil
}

func readASCII(data []byte) (*Mesh, error) {
	mesh := &Mesh{}
	scanner := bufio.NewScanner(bytes.NewReader(data))

	var current Triangle
	var vertices int
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "solid":
			if len(fields) > 1 {
				mesh.Name = strings.Join(fields[1:], " ")
			}
		case "facet":
			if len(fields) != 5 || fields[1] != "normal" {
				return nil, fmt.Errorf("line %d: malformed facet", line)
			}
			v, err := parseTriple(fields[2:])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			current = Triangle{Normal: v}
			vertices = 0
		case "vertex":
			if len(fields) != 4 {
				return nil, fmt.Errorf("line %d: malformed vertex", line)
			}
			v, err := parseTriple(fields[1:])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			switch vertices {
			case 0:
				current.Vertex1 = v
			case 1:
				current.Vertex2 = v
			case 2:
				current.Vertex3 = v
			default:
				return nil, fmt.Errorf("line %d: facet with more than 3 vertices", line)
			}
			vertices++
		case "endfacet":
			if vertices != 3 {
				return nil, fmt.Errorf("line %d: facet with %d vertices", line, vertices)
			}
			mesh.Triangles = append(mesh.Triangles, current)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning ASCII STL: %w", err)
	}
	return mesh, nil
}

func parseTriple(fields []string) ([3]float32, error) {
	var v [3]float32
	for i := 0; i < 3; i++ {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return v, fmt.Errorf("invalid number %q: %w", fields[i], err)
		}
		v[i] = float32(f)
	}
	return v, nil
}

// SaveToSTL writes triangles to a binary STL file
func SaveToSTL(filename string, triangles []Triangle) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("error creating STL file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if err := Write(w, "dose3d", triangles); err != nil {
		return err
	}
	return w.Flush()
}

// Write encodes triangles as binary STL
func Write(w io.Writer, name string, triangles []Triangle) error {
	header := make([]byte, headerSize)
	copy(header, name)
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("error writing STL header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(triangles))); err != nil {
		return fmt.Errorf("error writing triangle count: %w", err)
	}
	var attr [2]byte
	for i := range triangles {
		if err := binary.Write(w, binary.LittleEndian, &triangles[i]); err != nil {
			return fmt.Errorf("error writing triangle %d: %w", i, err)
		}
		if _, err := w.Write(attr[:]); err != nil {
			return fmt.Errorf("error writing triangle %d attribute: %w", i, err)
		}
	}
	return nil
}

// Box tessellates an axis-aligned box into 12 outward facing triangles
func Box(b r3.Box) []Triangle {
	lo, hi := b.Min, b.Max
	c := [8]r3.Vec{
		{X: lo.X, Y: lo.Y, Z: lo.Z}, {X: hi.X, Y: lo.Y, Z: lo.Z},
		{X: hi.X, Y: hi.Y, Z: lo.Z}, {X: lo.X, Y: hi.Y, Z: lo.Z},
		{X: lo.X, Y: lo.Y, Z: hi.Z}, {X: hi.X, Y: lo.Y, Z: hi.Z},
		{X: hi.X, Y: hi.Y, Z: hi.Z}, {X: lo.X, Y: hi.Y, Z: hi.Z},
	}
	// each face as two counter-clockwise triangles seen from outside
	faces := [6][4]int{
		{0, 3, 2, 1}, // -z
		{4, 5, 6, 7}, // +z
		{0, 1, 5, 4}, // -y
		{3, 7, 6, 2}, // +y
		{0, 4, 7, 3}, // -x
		{1, 2, 6, 5}, // +x
	}
	tris := make([]Triangle, 0, 12)
	for _, f := range faces {
		tris = append(tris,
			newTriangle(c[f[0]], c[f[1]], c[f[2]]),
			newTriangle(c[f[0]], c[f[2]], c[f[3]]),
		)
	}
	return tris
}

func newTriangle(a, b, c r3.Vec) Triangle {
	n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
	if norm := r3.Norm(n); norm > 0 {
		n = r3.Scale(1/norm, n)
	}
	return Triangle{
		Normal:  fromVec(n),
		Vertex1: fromVec(a),
		Vertex2: fromVec(b),
		Vertex3: fromVec(c),
	}
}

func toVec(v [3]float32) r3.Vec {
	return r3.Vec{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])}
}

func fromVec(v r3.Vec) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}
