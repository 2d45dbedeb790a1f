package scoring

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"dose3d/pkg/geometry"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"
)

// ReadDeposits reads "x,y,z,edep" records, positions in mm of the
// environment frame and energies in MeV. Lines starting with '#' and a
// non-numeric header line are skipped.
func ReadDeposits(r io.Reader) ([]Deposit, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var deposits []Deposit
	for first := true; ; first = false {
		record, err := cr.Read()
		if err == io.EOF {
			return deposits, nil
		}
		if err != nil {
			return nil, errors.New("reading deposits failed").
				WithType(geometry.ErrTypeConfiguration).
				Wrap(err)
		}
		line, _ := cr.FieldPos(0)

		if len(record) != 4 {
			return nil, errors.Newf("deposit record has %d fields, want 4", len(record)).
				WithType(geometry.ErrTypeConfiguration).
				WithTag("line", line)
		}

		if first {
			if _, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64); err != nil {
				// header
				continue
			}
		}

		var v [4]float64
		for i, field := range record {
			f, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, errors.New("parsing deposit failed").
					WithType(geometry.ErrTypeConfiguration).
					WithTag("line", line).
					WithTag("field", field).
					Wrap(err)
			}
			v[i] = f
		}

		deposits = append(deposits, Deposit{
			Position: r3.Vec{X: v[0], Y: v[1], Z: v[2]},
			Edep:     v[3],
		})
	}
}

// ReadDepositsFile reads deposits from a CSV file
func ReadDepositsFile(path string) ([]Deposit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New("opening deposits file failed").
			WithType(geometry.ErrTypeConfiguration).
			WithTag("path", path).
			Wrap(err)
	}
	defer f.Close()

	return ReadDeposits(f)
}
