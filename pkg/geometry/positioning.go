package geometry

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"
)

// LayerMarker starts a new layer group in a positioning file
const LayerMarker = "layer"

// ReadPositioningFile reads cell offsets grouped by layer from path
func ReadPositioningFile(path string) ([][]r3.Vec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New("cell positioning file not found").
			WithType(ErrTypeConfiguration).
			WithTag("path", path).
			Wrap(err)
	}
	defer f.Close()

	layers, err := ReadPositioning(f)
	if err != nil {
		return nil, errors.New("invalid cell positioning file").
			WithType(ErrTypeConfiguration).
			WithTag("path", path).
			Wrap(err)
	}
	return layers, nil
}

// ReadPositioning parses comma separated x,y,z offsets, one per line. A line
// starting with LayerMarker opens a new layer; blank lines and lines
// starting with '#' are skipped. Offsets before the first marker form the
// first layer.
func ReadPositioning(r io.Reader) ([][]r3.Vec, error) {
	var (
		layers  [][]r3.Vec
		current []r3.Vec
		started bool
		lineNo  int
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(strings.ToLower(line), LayerMarker) {
			if started {
				layers = append(layers, current)
			}
			current = nil
			started = true
			continue
		}

		v, err := parseOffset(line)
		if err != nil {
			return nil, errors.New("malformed cell offset").
				WithType(ErrTypeConfiguration).
				WithTag("line", lineNo).
				Wrap(err)
		}
		current = append(current, v)
		started = true
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.New("reading cell positioning failed").Wrap(err)
	}

	if started {
		layers = append(layers, current)
	}
	return layers, nil
}

func parseOffset(line string) (r3.Vec, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 3 {
		return r3.Vec{}, errors.Newf("expected 3 values, got %d", len(fields))
	}

	var xyz [3]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return r3.Vec{}, errors.Newf("value %d is not a number: %q", i, f)
		}
		xyz[i] = v
	}
	return r3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}
