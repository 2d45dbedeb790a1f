package export

import (
	"database/sql"
	"os"

	"dose3d/internal/models"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

const snapshotSchema = `CREATE TABLE IF NOT EXISTS scoring_volumes (
	run_id TEXT NOT NULL,
	granularity TEXT NOT NULL,
	global_id_x INTEGER NOT NULL,
	global_id_y INTEGER NOT NULL,
	global_id_z INTEGER NOT NULL,
	id_x INTEGER NOT NULL,
	id_y INTEGER NOT NULL,
	id_z INTEGER NOT NULL,
	pos_x REAL NOT NULL,
	pos_y REAL NOT NULL,
	pos_z REAL NOT NULL,
	global_pos_x REAL NOT NULL,
	global_pos_y REAL NOT NULL,
	global_pos_z REAL NOT NULL,
	volume REAL NOT NULL,
	mass REAL NOT NULL,
	edep REAL NOT NULL,
	dose REAL NOT NULL,
	mask_tag REAL NOT NULL,
	geo_tag REAL NOT NULL,
	weighted_geo_tag REAL NOT NULL,
	PRIMARY KEY (run_id, granularity, global_id_x, global_id_y, global_id_z, id_x, id_y, id_z)
)`

const insertVolume = `INSERT INTO scoring_volumes(
	run_id, granularity,
	global_id_x, global_id_y, global_id_z,
	id_x, id_y, id_z,
	pos_x, pos_y, pos_z,
	global_pos_x, global_pos_y, global_pos_z,
	volume, mass, edep, dose,
	mask_tag, geo_tag, weighted_geo_tag
) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

// WriteSnapshot stores the positioning, dose and tagging of every scoring
// volume of the given indexes in a SQLite database at path, tagged with the
// run id. An existing file is replaced.
func WriteSnapshot(path string, runID uuid.UUID, indexes map[models.Granularity]models.Index) (retErr error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.New("removing previous snapshot failed").
			WithTag("path", path).
			Wrap(err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return errors.New("opening snapshot database failed").
			WithTag("path", path).
			Wrap(err)
	}
	defer db.Close()

	if _, err := db.Exec(snapshotSchema); err != nil {
		return errors.New("creating snapshot schema failed").
			WithTag("path", path).
			Wrap(err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.Prepare(insertVolume)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, g := range models.Granularities {
		for _, h := range indexes[g].Hits() {
			if _, err := stmt.Exec(
				runID.String(), g.String(),
				h.GlobalID.X, h.GlobalID.Y, h.GlobalID.Z,
				h.ID.X, h.ID.Y, h.ID.Z,
				h.Centre.X, h.Centre.Y, h.Centre.Z,
				h.GlobalCentre.X, h.GlobalCentre.Y, h.GlobalCentre.Z,
				h.Volume, h.Mass, h.Edep, h.Dose,
				h.MaskTag, h.GeoTag, h.WeightedGeoTag,
			); err != nil {
				return errors.New("inserting scoring volume failed").
					WithTag("path", path).
					WithTag("granularity", g.String()).
					WithTag("global_id", h.GlobalID.String()).
					Wrap(err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	instrumentExport("snapshot")
	return nil
}

// SnapshotCount returns the number of stored volumes per granularity in
// the snapshot at path
func SnapshotCount(path string) (map[models.Granularity]int, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(`SELECT granularity, COUNT(*) FROM scoring_volumes GROUP BY granularity`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.Granularity]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		g, err := models.ParseGranularity(name)
		if err != nil {
			return nil, errors.New("reading snapshot failed").
				WithType(errors.Type(err)).
				WithTag("path", path).
				Wrap(err)
		}
		counts[g] = n
	}
	return counts, rows.Err()
}
